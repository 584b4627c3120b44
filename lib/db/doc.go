// Package db provides a standardized interface for key-value database implementations.
// It defines the KVDB interface that allows for consistent interaction
// with various in-memory database backends while abstracting implementation details.
//
// The package focuses on:
//   - A unified interface for key-value operations on binary keys
//   - Feature discovery through capability flags
//   - Standardized persistence operations
//
// Key Components:
//
//   - KVDB Interface: The core interface that all database implementations must satisfy.
//     It provides methods for basic operations (Set, Get, Has, Delete), prefix enumeration (Scan),
//     metadata retrieval (GetInfo) and persistence operations (Save, Load).
//
//   - Feature Flags: The Feature type defines capability flags that implementations
//     can advertise through the SupportsFeature method. FeatureOrderedScan tells callers
//     whether Scan already returns keys sorted, so they can skip sorting.
//
//   - Database Information: The DatabaseInfo structure reports the size of the database,
//     the implementation type, and implementation-specific metadata.
//
// Note on write indices:
//   - All write operations carry a write-index that serves as a logical timestamp. The
//     replicated store passes the raft log index, the local store a counter.
//   - The write-index only increases monotonically. Attempts to set a lower index are ignored.
//
// Related Packages:
//
// The engines/maple package (github.com/ValentinKolb/xkv/lib/db/engines/maple) is a hash sharded
// engine built on xsync maps. Scans visit every shard and are unordered.
//
// The engines/spruce package (github.com/ValentinKolb/xkv/lib/db/engines/spruce) keeps all keys in a
// skip list, Scan seeks to the prefix and walks the keys in order.
//
// The testing package (github.com/ValentinKolb/xkv/lib/db/testing) provides
// standardized tests and benchmarks for database implementations that satisfy the db.KVDB interface.
package db
