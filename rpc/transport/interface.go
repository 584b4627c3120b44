package transport

import (
	"errors"

	"github.com/ValentinKolb/xkv/rpc/common"
)

var (
	// ErrTimeout is passed to a callback whose response did not arrive in time.
	ErrTimeout = errors.New("request timed out")
	// ErrConnectionLost is passed to the callbacks of all requests pending on a broken connection.
	ErrConnectionLost = errors.New("connection lost")
	// ErrClosed is returned for requests on a closed transport.
	ErrClosed = errors.New("transport closed")
)

// --------------------------------------------------------------------------
// Server Transport
// --------------------------------------------------------------------------

// ServerHandleFunc is a function type that handles incoming requests
// This function is called by a server transport layer when a request is received
// It takes a shardId and a request as parameters and returns a response
type ServerHandleFunc func(shardId uint64, req []byte) (resp []byte)

// IRPCServerTransport is the interface for the RPC transport layer
type IRPCServerTransport interface {
	// RegisterHandler registers a handler for the transport layer
	// This handler should be called when a request is received
	// The transport layer is responsible for routing the request to the appropriate shard
	RegisterHandler(handler ServerHandleFunc)
	// Listen starts the transport layer and serves incoming requests until Close is called
	Listen(config common.ServerConfig) error
	// Close stops accepting connections and closes the open ones
	Close() error
}

// --------------------------------------------------------------------------
// Client Transport
// --------------------------------------------------------------------------

// ResponseCallback receives the response of an asynchronous request.
// Exactly one of resp and err is meaningful.
type ResponseCallback func(resp []byte, err error)

// IRPCClientTransport is the interface for the RPC client transport
type IRPCClientTransport interface {
	// Connect initializes the transport with the given configuration
	Connect(config common.ClientConfig) error
	// Send sends a request to the server and returns the response
	Send(shardId uint64, req []byte) (resp []byte, err error)
	// SendAsync writes a request and returns without waiting for the response.
	// If it returns nil, cb runs exactly once from a transport goroutine, with the response,
	// ErrTimeout or ErrConnectionLost. If it returns an error, cb never runs.
	// req must not be modified until SendAsync returned.
	SendAsync(shardId uint64, req []byte, cb ResponseCallback) error
	// Close closes the transport connection
	Close() error
}
