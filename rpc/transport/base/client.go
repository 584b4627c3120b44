package base

import (
	"fmt"
	"math/rand"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/xkv/rpc/common"
	"github.com/ValentinKolb/xkv/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var Logger = logger.GetLogger("transport/rpc")

const (
	initialBackoff = 50 * time.Millisecond
	maxBackoff     = 5 * time.Second
)

// -----------------------------------------------------------
// Interface Definitions for dependency injection
// -----------------------------------------------------------

// IClientConnector defines the interface for transport-specific connection operations
type IClientConnector interface {
	// Connect establishes a single connection to the endpoint
	Connect(endpoint string) (net.Conn, error)

	// GetName returns the name of the transport type (e.g., "unix", "tcp")
	GetName() string

	// UpgradeConnection applies protocol-specific settings to an established connection
	UpgradeConnection(conn net.Conn, config common.ClientTransportConfig) error
}

// -----------------------------------------------------------
// Helper Types
// -----------------------------------------------------------

// responseResult contains the result of a request
type responseResult struct {
	data []byte
	err  error
}

// pendingCall is a request waiting for its response. Whoever removes it from
// the pending map (response, timeout, connection loss) runs the callback.
type pendingCall struct {
	cb    transport.ResponseCallback
	timer atomic.Pointer[time.Timer]
}

// clientConnection represents a single net connection
type clientConnection struct {
	endpoint string
	parent   *clientTransport
	stopCh   chan struct{} // Close signal for the reader goroutine
	pending  *xsync.MapOf[uint64, *pendingCall]

	connMu sync.Mutex // Protects conn and serializes writes
	conn   net.Conn
}

// clientTransport implements the core client transport functionality
// independent of the specific transport medium (unix, tcp, etc.)
type clientTransport struct {
	connector     IClientConnector
	config        common.ClientConfig
	connections   []*clientConnection
	connectionsMu sync.RWMutex
	nextConnIndex atomic.Uint64 // Round Robin counter
	nextRequestID atomic.Uint64
	stopping      atomic.Bool
}

// -----------------------------------------------------------
// Transport Factory Method (used for tcp, unix, etc.)
// -----------------------------------------------------------

// NewBaseClientTransport creates a new base client transport with the specified connector
func NewBaseClientTransport(connector IClientConnector) transport.IRPCClientTransport {
	return &clientTransport{
		connector: connector,
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IRPCClientTransport)
// --------------------------------------------------------------------------

func (t *clientTransport) Connect(config common.ClientConfig) error {
	if len(config.Transport.Endpoints) == 0 {
		return fmt.Errorf("no endpoints provided")
	}

	// Close all existing connections
	t.closeConnections()

	t.config = config
	t.stopping.Store(false)

	connectionsPerEP := 1
	if config.Transport.ConnectionsPerEndpoint > 0 {
		connectionsPerEP = config.Transport.ConnectionsPerEndpoint
	}

	connections := make([]*clientConnection, 0, len(config.Transport.Endpoints)*connectionsPerEP)
	for _, endpoint := range config.Transport.Endpoints {
		for i := 0; i < connectionsPerEP; i++ {
			clientConn := &clientConnection{
				endpoint: endpoint,
				stopCh:   make(chan struct{}),
				pending:  xsync.NewMapOf[uint64, *pendingCall](),
				parent:   t,
			}

			if err := clientConn.reconnect(); err != nil {
				Logger.Warningf("Failed to connect to %s (connection %d/%d): %v", endpoint, i+1, connectionsPerEP, err)
				continue
			}
			connections = append(connections, clientConn)
			Logger.Debugf("Connected to %s (connection %d/%d)", endpoint, i+1, connectionsPerEP)

			go clientConn.readResponses()
		}
	}

	if len(connections) == 0 {
		return fmt.Errorf("failed to connect to any endpoint")
	}

	t.connectionsMu.Lock()
	t.connections = connections
	t.connectionsMu.Unlock()

	Logger.Infof("Connected to %d out of %d connections to %d endpoints using %s transport",
		len(connections), len(config.Transport.Endpoints)*connectionsPerEP, len(config.Transport.Endpoints), t.connector.GetName())

	return nil
}

func (t *clientTransport) Send(shardId uint64, req []byte) ([]byte, error) {
	// We always try at least once, and up to maxRetries times
	maxRetries := t.config.Transport.RetryCount
	if maxRetries < 1 {
		maxRetries = 1
	}

	var lastErr error
	backoff := initialBackoff

	for i := 0; i < maxRetries; i++ {
		if t.stopping.Load() {
			return nil, transport.ErrClosed
		}
		conn := t.getNextConnection()
		if conn == nil {
			return nil, fmt.Errorf("no active connections available")
		}

		respCh := make(chan responseResult, 1)
		err := conn.send(shardId, t.nextRequestID.Add(1), req, func(data []byte, err error) {
			respCh <- responseResult{data, err}
		})
		if err == nil {
			res := <-respCh
			if res.err == nil {
				return res.data, nil
			}
			err = res.err
		}

		lastErr = err
		Logger.Debugf("Request attempt %d/%d failed: %v", i+1, maxRetries, err)

		if i < maxRetries-1 {
			// Exponential backoff with a small random jitter (+-10%)
			jitter := float64(backoff) * (0.9 + 0.2*rand.Float64())
			time.Sleep(time.Duration(jitter))
			backoff *= 2
		}
	}

	return nil, fmt.Errorf("failed to send request after %d attempts: %w", maxRetries, lastErr)
}

func (t *clientTransport) SendAsync(shardId uint64, req []byte, cb transport.ResponseCallback) error {
	if t.stopping.Load() {
		return transport.ErrClosed
	}

	// Try every connection at most once, a write error is usually a connection being re-established
	t.connectionsMu.RLock()
	attempts := len(t.connections)
	t.connectionsMu.RUnlock()

	var lastErr error
	for i := 0; i < attempts; i++ {
		conn := t.getNextConnection()
		if conn == nil {
			break
		}
		if lastErr = conn.send(shardId, t.nextRequestID.Add(1), req, cb); lastErr == nil {
			return nil
		}
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no active connections available")
	}
	return lastErr
}

func (t *clientTransport) Close() error {
	t.stopping.Store(true)
	t.closeConnections()
	return nil
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// getNextConnection selects the next connection via Round Robin
func (t *clientTransport) getNextConnection() *clientConnection {
	t.connectionsMu.RLock()
	defer t.connectionsMu.RUnlock()

	switch len(t.connections) {
	case 0:
		return nil
	case 1:
		return t.connections[0]
	default:
		return t.connections[t.nextConnIndex.Add(1)%uint64(len(t.connections))]
	}
}

// closeConnections closes all active connections. Pending requests fail with transport.ErrClosed.
func (t *clientTransport) closeConnections() {
	t.connectionsMu.Lock()
	connections := t.connections
	t.connections = nil
	t.connectionsMu.Unlock()

	for _, conn := range connections {
		close(conn.stopCh)
		conn.connMu.Lock()
		if conn.conn != nil {
			conn.conn.Close()
		}
		conn.connMu.Unlock()
	}
}

// send registers the callback under requestID and writes the request frame.
// If the frame can't be written the registration is undone and the error returned,
// unless the call was already resolved (timeout or connection loss) in the meantime.
func (c *clientConnection) send(shardID, requestID uint64, req []byte, cb transport.ResponseCallback) error {
	call := &pendingCall{cb: cb}
	c.pending.Store(requestID, call)

	if c.parent.config.TimeoutSecond > 0 {
		timeout := time.Duration(c.parent.config.TimeoutSecond) * time.Second
		call.timer.Store(time.AfterFunc(timeout, func() {
			c.resolve(requestID, nil, transport.ErrTimeout)
		}))
	}

	c.connMu.Lock()
	var err error
	if c.conn == nil {
		err = fmt.Errorf("connection to %s is closed", c.endpoint)
	} else {
		if c.parent.config.TimeoutSecond > 0 {
			_ = c.conn.SetWriteDeadline(time.Now().Add(time.Duration(c.parent.config.TimeoutSecond) * time.Second))
		}
		err = writeFrame(c.conn, shardID, requestID, req)
	}
	c.connMu.Unlock()

	if err != nil {
		if removed, ok := c.pending.LoadAndDelete(requestID); ok {
			removed.stopTimer()
			return err
		}
	}
	return nil
}

// resolve runs the callback of a pending request. It returns false if the request
// was unknown (e.g. it already timed out).
func (c *clientConnection) resolve(requestID uint64, data []byte, err error) bool {
	call, ok := c.pending.LoadAndDelete(requestID)
	if !ok {
		return false
	}
	call.stopTimer()
	call.cb(data, err)
	return true
}

// failAll resolves every pending request of the connection with err
func (c *clientConnection) failAll(err error) {
	var ids []uint64
	c.pending.Range(func(id uint64, _ *pendingCall) bool {
		ids = append(ids, id)
		return true
	})
	for _, id := range ids {
		c.resolve(id, nil, err)
	}
}

func (p *pendingCall) stopTimer() {
	if t := p.timer.Load(); t != nil {
		t.Stop()
	}
}

// readResponses reads responses in a loop and distributes them to waiting requests
func (c *clientConnection) readResponses() {
	for {
		c.connMu.Lock()
		conn := c.conn
		c.connMu.Unlock()

		var err error
		if conn == nil {
			err = fmt.Errorf("not connected")
		} else {
			var requestID uint64
			var data []byte
			_, requestID, data, err = readFrame(conn, nil)
			if err == nil {
				if !c.resolve(requestID, data, nil) {
					Logger.Debugf("Dropping response for unknown request ID %d from %s", requestID, c.endpoint)
				}
				continue
			}
		}

		select {
		case <-c.stopCh:
			c.failAll(transport.ErrClosed)
			return
		default:
		}

		Logger.Warningf("Connection to %s lost: %v", c.endpoint, err)
		c.failAll(fmt.Errorf("%w: %v", transport.ErrConnectionLost, err))

		// Try to restore the connection until the transport is closed
		backoff := initialBackoff
		for {
			if err := c.reconnect(); err == nil {
				Logger.Infof("Reconnected to %s", c.endpoint)
				break
			} else {
				Logger.Debugf("Failed to reconnect to %s: %v", c.endpoint, err)
			}
			select {
			case <-c.stopCh:
				c.failAll(transport.ErrClosed)
				return
			case <-time.After(backoff):
			}
			backoff = min(2*backoff, maxBackoff)
		}
	}
}

// reconnect establishes or restores a connection to the endpoint
func (c *clientConnection) reconnect() error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	select {
	case <-c.stopCh:
		return transport.ErrClosed
	default:
	}

	// Close the old connection if it exists
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}

	conn, err := c.parent.connector.Connect(c.endpoint)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %v", c.endpoint, err)
	}

	if err := c.parent.connector.UpgradeConnection(conn, c.parent.config.Transport); err != nil {
		conn.Close()
		return fmt.Errorf("failed to upgrade connection to %s: %v", c.endpoint, err)
	}

	c.conn = conn
	return nil
}
