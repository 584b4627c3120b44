package common

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ValentinKolb/xkv/lib/store"
)

// --------------------------------------------------------------------------
// Message Structure
// --------------------------------------------------------------------------

// Message represents a single message used for both requests and responses.
// Which fields are used depends on the type of message.
type Message struct {
	// Type of message
	MsgType MessageType `json:"msg_type"`

	// General fields
	Key   []byte `json:"key,omitempty"`   // Used for: Set, Get, Has, Delete, Scan (prefix)
	Value []byte `json:"value,omitempty"` // Used for: Set (request), Get (response)
	Pairs []Pair `json:"pairs,omitempty"` // Used for: Scan (response)

	// Response only fields
	Ok   bool          `json:"ok,omitempty"`   // Used for: Get, Has responses
	Code store.RetCode `json:"code,omitempty"` // Return code of a failed operation
	Err  string        `json:"err,omitempty"`  // Empty if no error, otherwise contains the error message

	// Meta information
	Meta []byte `json:"meta,omitempty"` // Used for: DBInfo (response), Custom
}

// Pair is a key-value pair carried by a scan response.
type Pair struct {
	Key   []byte `json:"key"`
	Value []byte `json:"value,omitempty"`
}

// AsError converts the error fields of a response back into a *store.Error.
// It returns nil for successful responses.
func (m *Message) AsError() error {
	if m.MsgType != MsgTError && m.Err == "" && m.Code == store.RetCSuccess {
		return nil
	}
	code := m.Code
	if code == store.RetCSuccess {
		code = store.RetCInternalError
	}
	return store.NewError(code, m.Err)
}

// setErr copies err into the error fields of msg. Errors that carry a store
// return code keep it, everything else becomes an internal error.
func setErr(msg *Message, err error) *Message {
	if err == nil {
		return msg
	}
	msg.Err = err.Error()
	var sErr *store.Error
	if errors.As(err, &sErr) {
		msg.Code = sErr.Code
		msg.Err = sErr.Msg
	} else {
		msg.Code = store.RetCInternalError
	}
	return msg
}

// --------------------------------------------------------------------------
// Message Factory Functions
// --------------------------------------------------------------------------

// NewSetRequest creates a new Set request
func NewSetRequest(key []byte, value []byte) *Message {
	return &Message{
		MsgType: MsgTKVSet,
		Key:     key,
		Value:   value,
	}
}

// NewSetResponse creates a new Set response
func NewSetResponse(err error) *Message {
	return setErr(&Message{MsgType: MsgTKVSet}, err)
}

// NewDeleteRequest creates a new Delete request
func NewDeleteRequest(key []byte) *Message {
	return &Message{
		MsgType: MsgTKVDelete,
		Key:     key,
	}
}

// NewDeleteResponse creates a new Delete response
func NewDeleteResponse(err error) *Message {
	return setErr(&Message{MsgType: MsgTKVDelete}, err)
}

// NewGetRequest creates a new Get request
func NewGetRequest(key []byte) *Message {
	return &Message{
		MsgType: MsgTKVGet,
		Key:     key,
	}
}

// NewGetResponse creates a new Get response
func NewGetResponse(value []byte, ok bool, err error) *Message {
	return setErr(&Message{
		MsgType: MsgTKVGet,
		Ok:      ok,
		Value:   value,
	}, err)
}

// NewHasRequest creates a new Has request
func NewHasRequest(key []byte) *Message {
	return &Message{
		MsgType: MsgTKVHas,
		Key:     key,
	}
}

// NewHasResponse creates a new Has response
func NewHasResponse(ok bool, err error) *Message {
	return setErr(&Message{
		MsgType: MsgTKVHas,
		Ok:      ok,
	}, err)
}

// NewScanRequest creates a new Scan request for all keys starting with prefix
func NewScanRequest(prefix []byte) *Message {
	return &Message{
		MsgType: MsgTKVScan,
		Key:     prefix,
	}
}

// NewScanResponse creates a new Scan response
func NewScanResponse(pairs []store.KV, err error) *Message {
	msg := &Message{MsgType: MsgTKVScan}
	if len(pairs) > 0 {
		msg.Pairs = make([]Pair, len(pairs))
		for i, p := range pairs {
			msg.Pairs[i] = Pair{Key: p.Key, Value: p.Value}
		}
	}
	return setErr(msg, err)
}

// ToKV converts the pairs of a scan response.
func (m *Message) ToKV() []store.KV {
	out := make([]store.KV, len(m.Pairs))
	for i, p := range m.Pairs {
		out[i] = store.KV{Key: p.Key, Value: p.Value}
	}
	return out
}

// NewDBInfoRequest creates a new DBInfo request
func NewDBInfoRequest() *Message {
	return &Message{
		MsgType: MsgTKVInfo,
	}
}

// NewDBInfoResponse creates a new DBInfo response. The info is carried json encoded in Meta.
func NewDBInfoResponse(info []byte, err error) *Message {
	return setErr(&Message{
		MsgType: MsgTKVInfo,
		Meta:    info,
	}, err)
}

// NewCustomRequest creates a new Custom request
func NewCustomRequest(meta []byte) *Message {
	return &Message{
		MsgType: MsgTCustom,
		Meta:    meta,
	}
}

// NewCustomResponse creates a new Custom response
func NewCustomResponse(meta []byte, err error) *Message {
	return setErr(&Message{
		MsgType: MsgTCustom,
		Meta:    meta,
	}, err)
}

// NewErrorResponse creates a new Error response
func NewErrorResponse(code store.RetCode, err string) *Message {
	return &Message{
		MsgType: MsgTError,
		Code:    code,
		Err:     err,
	}
}

// --------------------------------------------------------------------------
// Message Type Definition
// --------------------------------------------------------------------------

// MessageType defines the type of message used in RPC communication.
type MessageType uint8

// String returns the string representation of a MessageType.
func (t MessageType) String() string {
	switch t {
	case MsgTKVSet:
		return "set"
	case MsgTKVDelete:
		return "delete"
	case MsgTKVGet:
		return "get"
	case MsgTKVHas:
		return "has"
	case MsgTKVScan:
		return "scan"
	case MsgTKVInfo:
		return "info"
	case MsgTCustom:
		return "custom"
	case MsgTError:
		return "error"
	case MsgTSuccess:
		return "success"
	default:
		return "unknown"
	}
}

// MarshalJSON implements the json.Marshaller interface for MessageType.
// This allows MessageType to be serialized as a string in JSON.
func (t MessageType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface for MessageType.
// This allows MessageType to be deserialized from a string in JSON.
func (t *MessageType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	// Convert string back to MessageType
	switch s {
	case "set":
		*t = MsgTKVSet
	case "delete":
		*t = MsgTKVDelete
	case "get":
		*t = MsgTKVGet
	case "has":
		*t = MsgTKVHas
	case "scan":
		*t = MsgTKVScan
	case "info":
		*t = MsgTKVInfo
	case "custom":
		*t = MsgTCustom
	case "error":
		*t = MsgTError
	case "success":
		*t = MsgTSuccess
	default:
		return fmt.Errorf("unknown message type: %s", s)
	}

	return nil
}

// --------------------------------------------------------------------------
// Message Type Constants
// --------------------------------------------------------------------------

const (
	// General message types

	MsgTUnknown MessageType = iota
	MsgTSuccess             // Indicates a successful operation
	MsgTError               // Indicates an error occurred

	// IStore operations

	MsgTKVSet    // Set a key-value pair
	MsgTKVDelete // Delete a key-value pair
	MsgTKVGet    // Get a value by key
	MsgTKVHas    // Check if a key exists
	MsgTKVScan   // List all pairs below a key prefix
	MsgTKVInfo   // Read the database info

	// Custom operations

	MsgTCustom // Custom operation type
)
