package serializer

import (
	"encoding/base64"
	"testing"

	"github.com/ValentinKolb/xkv/lib/store"
	"github.com/ValentinKolb/xkv/rpc/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONWireForm(t *testing.T) {
	s := NewJSONSerializer()

	data, err := s.Serialize(common.Message{
		MsgType: common.MsgTKVScan,
		Key:     attrKey[:9],
		Pairs:   []common.Pair{{Key: attrKey, Value: []byte("v")}},
	})
	require.NoError(t, err)

	b64 := base64.StdEncoding.EncodeToString
	assert.JSONEq(t, `{
		"msg_type": "scan",
		"key": "`+b64(attrKey[:9])+`",
		"pairs": [{"key": "`+b64(attrKey)+`", "value": "`+b64([]byte("v"))+`"}]
	}`, string(data))
}

func TestJSONDeserializeReplacesMessage(t *testing.T) {
	s := NewJSONSerializer()

	// a reused message must not keep the error of the previous response
	msg := common.Message{MsgType: common.MsgTError, Code: store.RetCTimeout, Err: "timeout", Value: []byte("old")}
	require.NoError(t, s.Deserialize([]byte(`{"msg_type":"get","value":"dg==","ok":true}`), &msg))

	assert.Equal(t, common.Message{MsgType: common.MsgTKVGet, Value: []byte("v"), Ok: true}, msg)
	assert.NoError(t, msg.AsError())
}

func TestJSONErrors(t *testing.T) {
	s := NewJSONSerializer()
	var msg common.Message

	err := s.Deserialize([]byte(`{"msg_type":"shout"}`), &msg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown message type")

	assert.Error(t, s.Deserialize([]byte(`{"msg_type":`), &msg))
}
