package serializer

import (
	"encoding/json"
	"fmt"

	"github.com/ValentinKolb/xkv/rpc/common"
)

// NewJSONSerializer creates a serializer writing messages as json objects.
// Message types are written by name, keys and values as base64 strings.
// It is meant for debugging the wire traffic, the binary serializer is smaller and faster.
func NewJSONSerializer() IRPCSerializer {
	return jsonSerializerImpl{}
}

type jsonSerializerImpl struct{}

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.IRPCSerializer)
// --------------------------------------------------------------------------

func (jsonSerializerImpl) Serialize(msg common.Message) ([]byte, error) {
	b, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("json: encoding %s message: %w", msg.MsgType, err)
	}
	return b, nil
}

// Deserialize replaces msg. Fields missing in b are left empty, not kept from a previous message.
func (jsonSerializerImpl) Deserialize(b []byte, msg *common.Message) error {
	var decoded common.Message
	if err := json.Unmarshal(b, &decoded); err != nil {
		return fmt.Errorf("json: decoding message: %w", err)
	}
	*msg = decoded
	return nil
}
