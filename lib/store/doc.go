// Package store provides the high-level interfaces for key-value storage used by the
// batch engine, the rpc server and the command line tools. It is an abstraction layer
// over the lower-level db.KVDB implementations and over remote backends, adding write index
// management and unified error handling.
//
// Key Components:
//
//   - IStore Interface: The synchronous abstraction (Set, Delete, Get, Has, Scan, GetDBInfo).
//     Keys are raw byte strings, Scan returns the pairs of a key prefix sorted by key.
//
//   - IAsyncStore Interface: Non-blocking submission of single operations (OpPut, OpDelete).
//     Every accepted request completes exactly once through its CompletionFunc and must be
//     finalized afterward. HandleTable implements the handle bookkeeping shared by all
//     asynchronous stores.
//
//   - Error System: Error carries a RetCode and a message. Use errors.As to read the code.
//
//   - DBFactory: creates the db.KVDB instances used by the local and distributed stores.
//
// Implementations:
//
//	- Local Store (lstore): a single node store directly backed by a db.KVDB instance.
//	  Available in the "github.com/ValentinKolb/xkv/lib/store/lstore" package.
//
//	- Async Adapter (astore): turns any IStore into an IAsyncStore with a submission queue
//	  and a pool of workers.
//	  Available in the "github.com/ValentinKolb/xkv/lib/store/astore" package.
//
//	- Distributed Store (dstore): sync and async stores on top of Dragonboat RAFT.
//	  Available in the "github.com/ValentinKolb/xkv/lib/store/dstore" package.
//
//	- DynamoDB Store (ddbstore): one item per key in a DynamoDB table. Scan is not supported.
//	  Available in the "github.com/ValentinKolb/xkv/lib/store/ddbstore" package.
//
//	- Object Store (ostore): one object per key in an S3 compatible bucket.
//	  Available in the "github.com/ValentinKolb/xkv/lib/store/ostore" package.
//
//	The rpc client (rpc/client) implements both interfaces against a remote server.
package store
