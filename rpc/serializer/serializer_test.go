package serializer

import (
	"bytes"
	"reflect"
	"testing"

	"github.com/ValentinKolb/xkv/lib/store"
	"github.com/ValentinKolb/xkv/rpc/common"
)

// testSerializers is a map of serializer name to factory function
var testSerializers = map[string]func() IRPCSerializer{
	"JSON":   NewJSONSerializer,
	"Binary": NewBinarySerializer,
}

// attrKey looks like an encoded xattr key: owner, class, name and zero padding
var attrKey = append([]byte{0, 0, 0, 0, 0, 0, 0, 7, 1, 'u', 's', 'e', 'r', '.', 'a'}, make([]byte, 16)...)

// testMessages creates a set of test messages with different fields filled
func testMessages() []common.Message {
	return []common.Message{
		// Basic message with just a type
		{MsgType: common.MsgTSuccess},

		// Set request with a binary key
		{
			MsgType: common.MsgTKVSet,
			Key:     attrKey,
			Value:   []byte("test-value"),
		},

		// Get response
		{
			MsgType: common.MsgTKVGet,
			Key:     []byte("test-key"),
			Value:   []byte("test-value"),
			Ok:      true,
		},

		// Error response with code
		{
			MsgType: common.MsgTError,
			Code:    store.RetCUnsupportedOperation,
			Err:     "test error message",
		},

		// Scan response
		{
			MsgType: common.MsgTKVScan,
			Key:     attrKey[:9],
			Pairs: []common.Pair{
				{Key: []byte("a"), Value: []byte("1")},
				{Key: attrKey, Value: bytes.Repeat([]byte{'*'}, 512)},
			},
		},

		// Message with all fields filled
		{
			MsgType: common.MsgTCustom,
			Key:     []byte("test-custom-key"),
			Value:   []byte("test-custom-value"),
			Pairs:   []common.Pair{{Key: []byte("k"), Value: []byte("v")}},
			Ok:      true,
			Code:    store.RetCTimeout,
			Err:     "timeout",
			Meta:    []byte("test-meta-data"),
		},
	}
}

// TestSerializerRoundTrip tests that messages can be serialized and deserialized correctly
func TestSerializerRoundTrip(t *testing.T) {
	messages := testMessages()

	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			serializer := factory()

			for i, msg := range messages {
				data, err := serializer.Serialize(msg)
				if err != nil {
					t.Errorf("Failed to serialize message %d: %v", i, err)
					continue
				}

				var result common.Message
				err = serializer.Deserialize(data, &result)
				if err != nil {
					t.Errorf("Failed to deserialize message %d: %v", i, err)
					continue
				}

				if !reflect.DeepEqual(msg, result) {
					t.Errorf("Message %d doesn't match after round trip:\nOriginal: %+v\nResult: %+v",
						i, msg, result)
				}
			}
		})
	}
}

// TestMessageTypes tests each message type with each serializer
func TestMessageTypes(t *testing.T) {
	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			serializer := factory()

			// Test each message type (don't test for MsgTUnknown since this should raise an error)
			for msgType := common.MsgTSuccess; msgType <= common.MsgTCustom; msgType++ {
				msg := common.Message{MsgType: msgType}

				data, err := serializer.Serialize(msg)
				if err != nil {
					t.Errorf("Failed to serialize message type %s: %v", msgType.String(), err)
					continue
				}

				var result common.Message
				err = serializer.Deserialize(data, &result)
				if err != nil {
					t.Errorf("Failed to deserialize message type %s: %v", msgType.String(), err)
					continue
				}

				if result.MsgType != msgType {
					t.Errorf("Message type doesn't match after round trip: Expected %s, got %s",
						msgType.String(), result.MsgType.String())
				}
			}
		})
	}
}

// TestErrorSurvivesTransport checks that a store error keeps its code over the wire
func TestErrorSurvivesTransport(t *testing.T) {
	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			serializer := factory()

			resp := common.NewScanResponse(nil, store.NewError(store.RetCUnsupportedOperation, "scan not supported"))
			data, err := serializer.Serialize(*resp)
			if err != nil {
				t.Fatalf("Failed to serialize: %v", err)
			}

			var result common.Message
			if err := serializer.Deserialize(data, &result); err != nil {
				t.Fatalf("Failed to deserialize: %v", err)
			}

			sErr, ok := result.AsError().(*store.Error)
			if !ok {
				t.Fatalf("expected *store.Error, got %T", result.AsError())
			}
			if sErr.Code != store.RetCUnsupportedOperation || sErr.Msg != "scan not supported" {
				t.Errorf("unexpected error after round trip: %v", sErr)
			}
		})
	}
}

// TestBinarySerializerSpecific tests specific edge cases for the binary serializer
func TestBinarySerializerSpecific(t *testing.T) {
	serializer := NewBinarySerializer()

	testCases := []struct {
		name string
		msg  common.Message
	}{
		{
			name: "Empty message",
			msg:  common.Message{},
		},
		{
			name: "Message with empty slices and zero values",
			msg: common.Message{
				MsgType: common.MsgTKVSet,
				Key:     []byte{},
				Value:   []byte{},
				Meta:    []byte{},
			},
		},
		{
			name: "Message with nil slices but Ok=true",
			msg: common.Message{
				MsgType: common.MsgTKVGet,
				Ok:      true,
			},
		},
		{
			name: "Key with zero bytes",
			msg: common.Message{
				MsgType: common.MsgTKVDelete,
				Key:     make([]byte, 300),
			},
		},
		{
			name: "Scan response with empty values",
			msg: common.Message{
				MsgType: common.MsgTKVScan,
				Pairs:   []common.Pair{{Key: []byte("a"), Value: []byte{}}, {Key: []byte("b"), Value: []byte{}}},
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			data, err := serializer.Serialize(tc.msg)
			if err != nil {
				t.Fatalf("Failed to serialize: %v", err)
			}

			var result common.Message
			if err := serializer.Deserialize(data, &result); err != nil {
				t.Fatalf("Failed to deserialize: %v", err)
			}

			// nil and empty slices are distinct on the wire
			if !reflect.DeepEqual(tc.msg, result) {
				t.Errorf("mismatch:\nOriginal: %#v\nResult: %#v", tc.msg, result)
			}
		})
	}
}

// TestBinaryDeserializeCopies checks that decoded fields do not alias the frame buffer
func TestBinaryDeserializeCopies(t *testing.T) {
	serializer := NewBinarySerializer()
	data, err := serializer.Serialize(common.Message{MsgType: common.MsgTKVSet, Key: []byte("key"), Value: []byte("value")})
	if err != nil {
		t.Fatalf("Failed to serialize: %v", err)
	}

	var result common.Message
	if err := serializer.Deserialize(data, &result); err != nil {
		t.Fatalf("Failed to deserialize: %v", err)
	}
	for i := range data {
		data[i] = 0xFF
	}
	if string(result.Key) != "key" || string(result.Value) != "value" {
		t.Errorf("decoded message changed with its buffer: %q=%q", result.Key, result.Value)
	}
}

// TestInvalidBinaryData tests how the binary serializer handles corrupt or invalid data
func TestInvalidBinaryData(t *testing.T) {
	serializer := NewBinarySerializer()

	testCases := []struct {
		name        string
		data        []byte
		expectError bool
	}{
		{
			name:        "Empty data",
			data:        []byte{},
			expectError: true,
		},
		{
			name:        "Too short header",
			data:        []byte{1}, // Only message type, no flags
			expectError: true,
		},
		{
			name:        "Valid header only",
			data:        []byte{1, 0}, // Message type 1, no flags
			expectError: false,
		},
		{
			name:        "Invalid length for key",
			data:        []byte{1, hasKey, 5, 'a', 'b', 'c'}, // Claims key length 5 but only 3 bytes provided
			expectError: true,
		},
		{
			name:        "Missing length for value",
			data:        []byte{1, hasValue},
			expectError: true,
		},
		{
			name:        "Too many pairs",
			data:        []byte{1, hasPairs, 100, 1, 'a', 1, 'b'},
			expectError: true,
		},
		{
			name:        "Truncated pair value",
			data:        []byte{1, hasPairs, 1, 1, 'a', 4, 'b'},
			expectError: true,
		},
		{
			name:        "Missing code",
			data:        []byte{2, hasCode},
			expectError: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var msg common.Message
			err := serializer.Deserialize(tc.data, &msg)

			if tc.expectError && err == nil {
				t.Errorf("Expected error but got none")
			} else if !tc.expectError && err != nil {
				t.Errorf("Did not expect error but got: %v", err)
			}
		})
	}
}
