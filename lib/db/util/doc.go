// Package util provides utility components for
// database implementations that satisfy the db.KVDB interface.
//
// The package contains:
//   - functions: Hash functions and other utility functions
//   - snapshot: The binary snapshot format shared by all engines, so a snapshot written by one engine
//     can be loaded by another
//   - stats: Distribution statistics used to report how evenly shards are filled
package util
