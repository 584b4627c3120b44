// Package client implements RPC clients for the xkv store server.
// It provides implementations of the store.IStore and store.IAsyncStore interfaces
// that forward operations to a remote shard via RPC.
//
// The package focuses on:
//   - Transparent RPC access to the stores of remote shards
//   - Integration with the transport and serialization layers
//   - Mapping of transport failures and server return codes to *store.Error
//
// Key Components:
//
//   - NewRPCStore: creates a blocking client implementing store.IStore. Every call
//     sends one request and waits for its response (with retries on the transport).
//
//   - NewAsyncRPCStore: creates a client implementing store.IAsyncStore. Submit sends a
//     put or delete without waiting, the completion callback runs once the response,
//     a timeout or a connection loss resolves the request. This is the store the batch
//     dispatcher uses when it writes to a remote server.
//
// Usage Example:
//
//	config := common.ClientConfig{
//	  TimeoutSecond: 5,
//	  Transport: common.ClientTransportConfig{
//	    Endpoints:              []string{"localhost:8080"},
//	    RetryCount:             3,
//	    ConnectionsPerEndpoint: 1,
//	  },
//	}
//
//	s, _ := client.NewRPCStore(100, config, tcp.NewTCPClientTransport(), serializer.NewBinarySerializer())
//	_ = s.Set(key, []byte("value"))
//	pairs, _ := s.Scan(xattr.Prefix(owner, xattr.ClassXattr))
//
//	async, _ := client.NewAsyncRPCStore(100, config, tcp.NewTCPClientTransport(), serializer.NewBinarySerializer())
//	defer async.Close()
//	h, _ := async.Submit(store.OpPut, key, value, func(h store.Handle, r store.Result) { ... })
//
// Errors:
//
//	Transport timeouts are reported with store.RetCTimeout, any other transport failure with
//	store.RetCUnavailable. Errors of the server side store keep their return code.
//
// Thread Safety:
//
//	All client implementations are thread-safe and can be used concurrently from
//	multiple goroutines without additional synchronization.
package client
