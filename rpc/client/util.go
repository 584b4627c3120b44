package client

import (
	"errors"
	"fmt"

	"github.com/ValentinKolb/xkv/lib/store"
	"github.com/ValentinKolb/xkv/rpc/common"
	"github.com/ValentinKolb/xkv/rpc/serializer"
	"github.com/ValentinKolb/xkv/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
)

var (
	Logger = logger.GetLogger("rpc")
)

// rpcClientAdapter is a struct that stores all data needed for an implementation of an RPC client
// Used by the sync and the async RPC store with composition pattern
type rpcClientAdapter struct {
	shardId    uint64
	config     common.ClientConfig
	transport  transport.IRPCClientTransport
	serializer serializer.IRPCSerializer
}

// invokeRPCRequest is a helper function used for all RPC Clients to send requests
// It takes a shard ID, a request message, a transport layer and a serializer as parameters
// It returns a response message and an error if any occurs
func invokeRPCRequest(shardId uint64, req *common.Message, t transport.IRPCClientTransport, s serializer.IRPCSerializer) (*common.Message, error) {
	reqBytes, err := s.Serialize(*req)
	if err != nil {
		return nil, store.NewError(store.RetCInternalError, fmt.Sprintf("failed to serialize %s request: %v", req.MsgType, err))
	}

	respBytes, err := t.Send(shardId, reqBytes)
	if err != nil {
		return nil, transportError(err)
	}

	return decodeResponse(req.MsgType, respBytes, s)
}

// decodeResponse deserializes a response and checks it for errors
// and for the expected message type
func decodeResponse(expected common.MessageType, respBytes []byte, s serializer.IRPCSerializer) (*common.Message, error) {
	resp := &common.Message{}
	if err := s.Deserialize(respBytes, resp); err != nil {
		return nil, store.NewError(store.RetCInternalError, fmt.Sprintf("failed to deserialize response: %v", err))
	}

	// error responses carry the return code of the server side store
	if err := resp.AsError(); err != nil {
		return nil, err
	}

	if resp.MsgType != expected {
		return nil, store.NewError(store.RetCInternalError, fmt.Sprintf("unexpected message type: %s, expected %s", resp.MsgType, expected))
	}

	return resp, nil
}

// transportError maps an error of the transport layer to a store error
func transportError(err error) error {
	code := store.RetCUnavailable
	if errors.Is(err, transport.ErrTimeout) {
		code = store.RetCTimeout
	}
	return store.NewError(code, err.Error())
}
