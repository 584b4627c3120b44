// Package maple implements a concurrent in memory key-value database (KVDB).
// It provides an implementation of the db.KVDB interface with a focus on thread safety
// and throughput under many concurrent writers.
//
// Key Components:
//
//   - mapleImpl: The central database structure implementing db.KVDB. It manages shards
//     and provides the public API for key-value operations. It does not generate write
//     indices itself, the caller passes them in (raft log index, local counter, ...).
//
//   - Shard: A partition of the database holding a subset of the key space in an
//     xsync.MapOf. Shards operate independently to minimize contention. Each shard tracks
//     the bytes held by its keys and values so GetInfo can report an exact size.
//
// Internal Mechanisms:
//
//   - Sharding Strategy: Keys are hashed with FNV-1a and a per instance seed. The hash is
//     right-shifted by 7 bits before it selects the shard.
//
//   - Stale Writes: Every entry remembers the write index it was written with. Set and Delete
//     calls carrying a lower index than the stored entry are ignored.
//
//   - Scans: Scan visits all shards and filters by prefix, so it costs O(n) and returns keys in
//     no particular order. Use the spruce engine when prefix listings are frequent.
//
//   - Persistence: Save and Load use the snapshot format of the util package. Save takes a
//     fuzzy snapshot without blocking writers.
//
// Example usage:
//
//	database := maple.NewMapleDB(nil)
//	defer database.Close()
//
//	database.Set("key", []byte("value"), 1)
//	value, ok := database.Get("key")
package maple
