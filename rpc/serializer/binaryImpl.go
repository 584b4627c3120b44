package serializer

import (
	"encoding/binary"
	"fmt"

	"github.com/ValentinKolb/xkv/lib/store"
	"github.com/ValentinKolb/xkv/rpc/common"
)

// NewBinarySerializer creates a new serializer using a custom binary format
// optimized for speed and efficiency
func NewBinarySerializer() IRPCSerializer {
	return &binarySerializerImpl{}
}

// binarySerializerImpl implements IRPCSerializer using a custom binary format.
//
// Layout: MsgType (1 byte), flags (1 byte), then every present field in flag order.
// Byte fields are a uvarint length followed by the data, the code is a uvarint and
// the pairs are a uvarint count followed by key and value of each pair.
type binarySerializerImpl struct {
}

// Bit flags to indicate which optional fields are present
const (
	hasKey   byte = 1 << 0
	hasValue byte = 1 << 1
	hasPairs byte = 1 << 2
	hasOk    byte = 1 << 3
	hasCode  byte = 1 << 4
	hasErr   byte = 1 << 5
	hasMeta  byte = 1 << 6
)

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.IRPCSerializer)
// --------------------------------------------------------------------------

func (b binarySerializerImpl) Serialize(msg common.Message) ([]byte, error) {
	result := make([]byte, 2, b.sizeBytes(msg))
	result[0] = byte(msg.MsgType)

	var flags byte
	if msg.Key != nil {
		flags |= hasKey
		result = appendBytes(result, msg.Key)
	}
	if msg.Value != nil {
		flags |= hasValue
		result = appendBytes(result, msg.Value)
	}
	if len(msg.Pairs) > 0 {
		flags |= hasPairs
		result = binary.AppendUvarint(result, uint64(len(msg.Pairs)))
		for _, p := range msg.Pairs {
			result = appendBytes(result, p.Key)
			result = appendBytes(result, p.Value)
		}
	}
	if msg.Ok {
		flags |= hasOk
	}
	if msg.Code != store.RetCSuccess {
		flags |= hasCode
		result = binary.AppendUvarint(result, uint64(msg.Code))
	}
	if msg.Err != "" {
		flags |= hasErr
		result = binary.AppendUvarint(result, uint64(len(msg.Err)))
		result = append(result, msg.Err...)
	}
	if msg.Meta != nil {
		flags |= hasMeta
		result = appendBytes(result, msg.Meta)
	}

	// Set flags byte after knowing which fields are present
	result[1] = flags

	return result, nil
}

func (b binarySerializerImpl) Deserialize(data []byte, msg *common.Message) error {
	// Check minimum size (MsgType + flags)
	if len(data) < 2 {
		return fmt.Errorf("data too short for message header")
	}

	*msg = common.Message{MsgType: common.MessageType(data[0])}
	flags := data[1]
	r := reader{data: data, pos: 2}

	var err error
	if flags&hasKey != 0 {
		if msg.Key, err = r.bytes("key"); err != nil {
			return err
		}
	}
	if flags&hasValue != 0 {
		if msg.Value, err = r.bytes("value"); err != nil {
			return err
		}
	}
	if flags&hasPairs != 0 {
		n, err := r.uvarint("pair count")
		if err != nil {
			return err
		}
		// every pair needs at least two length bytes
		if n > uint64(len(data)-r.pos)/2 {
			return fmt.Errorf("data too short for %d pairs", n)
		}
		msg.Pairs = make([]common.Pair, n)
		for i := range msg.Pairs {
			if msg.Pairs[i].Key, err = r.bytes("pair key"); err != nil {
				return err
			}
			if msg.Pairs[i].Value, err = r.bytes("pair value"); err != nil {
				return err
			}
		}
	}
	msg.Ok = flags&hasOk != 0
	if flags&hasCode != 0 {
		code, err := r.uvarint("code")
		if err != nil {
			return err
		}
		msg.Code = store.RetCode(code)
	}
	if flags&hasErr != 0 {
		e, err := r.bytes("error")
		if err != nil {
			return err
		}
		msg.Err = string(e)
	}
	if flags&hasMeta != 0 {
		if msg.Meta, err = r.bytes("meta"); err != nil {
			return err
		}
	}

	return nil
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// sizeBytes calculates the total size needed for serialization
func (b binarySerializerImpl) sizeBytes(msg common.Message) int {
	// 1 byte for MsgType + 1 byte for flags
	size := 2

	if msg.Key != nil {
		size += binary.MaxVarintLen32 + len(msg.Key)
	}
	if msg.Value != nil {
		size += binary.MaxVarintLen32 + len(msg.Value)
	}
	if len(msg.Pairs) > 0 {
		size += binary.MaxVarintLen32
		for _, p := range msg.Pairs {
			size += 2*binary.MaxVarintLen32 + len(p.Key) + len(p.Value)
		}
	}
	if msg.Code != store.RetCSuccess {
		size += binary.MaxVarintLen64
	}
	if msg.Err != "" {
		size += binary.MaxVarintLen32 + len(msg.Err)
	}
	if msg.Meta != nil {
		size += binary.MaxVarintLen32 + len(msg.Meta)
	}

	return size
}

func appendBytes(dst, b []byte) []byte {
	dst = binary.AppendUvarint(dst, uint64(len(b)))
	return append(dst, b...)
}

// reader walks the serialized fields of a message
type reader struct {
	data []byte
	pos  int
}

func (r *reader) uvarint(field string) (uint64, error) {
	v, n := binary.Uvarint(r.data[r.pos:])
	if n <= 0 {
		return 0, fmt.Errorf("data too short for %s", field)
	}
	r.pos += n
	return v, nil
}

// bytes reads a length prefixed field. The result is a copy, so the frame buffer can be reused.
// A present but empty field decodes to an empty, non nil slice.
func (r *reader) bytes(field string) ([]byte, error) {
	n, err := r.uvarint(field + " length")
	if err != nil {
		return nil, err
	}
	if n > uint64(len(r.data)-r.pos) {
		return nil, fmt.Errorf("data too short for %s data", field)
	}
	out := make([]byte, n)
	copy(out, r.data[r.pos:])
	r.pos += int(n)
	return out, nil
}
