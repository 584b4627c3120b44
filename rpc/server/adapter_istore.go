package server

import (
	"encoding/json"
	"fmt"

	"github.com/ValentinKolb/xkv/lib/store"
	"github.com/ValentinKolb/xkv/rpc/common"
)

func NewIStoreServerAdapter() IRPCServerAdapter {
	return &iStoreServerAdapterImpl{}
}

type iStoreServerAdapterImpl struct{}

func (adapter *iStoreServerAdapterImpl) Handle(req *common.Message, s store.IStore) *common.Message {
	if s == nil {
		return common.NewErrorResponse(store.RetCUnavailable, "handler: store is nil")
	}

	switch req.MsgType {
	case common.MsgTKVSet:
		err := s.Set(req.Key, req.Value)
		return common.NewSetResponse(err)
	case common.MsgTKVDelete:
		err := s.Delete(req.Key)
		return common.NewDeleteResponse(err)
	case common.MsgTKVGet:
		val, ok, err := s.Get(req.Key)
		return common.NewGetResponse(val, ok, err)
	case common.MsgTKVHas:
		ok, err := s.Has(req.Key)
		return common.NewHasResponse(ok, err)
	case common.MsgTKVScan:
		pairs, err := s.Scan(req.Key)
		return common.NewScanResponse(pairs, err)
	case common.MsgTKVInfo:
		info, err := s.GetDBInfo()
		if err != nil {
			return common.NewDBInfoResponse(nil, err)
		}
		b, err := json.Marshal(info)
		return common.NewDBInfoResponse(b, err)
	default:
		return common.NewErrorResponse(
			store.RetCInvalidOperation,
			fmt.Sprintf("RPC IStoreAdapter - Unsupported message type: %s", req.MsgType),
		)
	}
}
