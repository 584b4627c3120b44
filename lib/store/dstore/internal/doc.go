// Package internal provides the communication protocol structures and serialization
// logic for the dstore package. It defines the wire format used to transmit operations
// between the store client and the distributed state machine.
//
// This package is intended for internal use by the dstore implementation and should
// not be imported directly by external code.
//
// The package consists of two main components:
//
//   - Command System: Defines write operations (Set, Delete) that modify the
//     state of the database. Commands are serialized and proposed to the RAFT cluster,
//     executed on the state machine, and produce results that are returned to the client.
//
//   - Query System: Defines read operations (Get, Has, Scan, GetDBInfo) that retrieve data
//     without modifying the state. Queries are executed locally on the statemachine and
//     therefore do not require serialization.
//
// Command Format:
//
//	- 1 byte: Command type (Set, Delete)
//	- 4 bytes: Key length (uint32, big endian)
//	- N bytes: Key data
//	- M bytes: Value data (optional, only present for Set)
//
// Serialize always copies key and value, so a proposed command never aliases the caller's
// buffers. This is what allows the asynchronous store to hand pooled buffers back as soon
// as the completion fired.
//
// Thread Safety:
//
//	The types in this package are not thread-safe and should not be shared
//	across goroutines without external synchronization.
package internal
