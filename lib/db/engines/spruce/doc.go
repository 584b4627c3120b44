// Package spruce implements an ordered in memory key-value database (KVDB) backed by a skip list.
//
// Keys are kept in ascending byte order, so Scan seeks directly to the prefix and stops at the first key
// that no longer matches. This makes spruce the engine of choice when many prefix listings are served,
// e.g. listing all attributes of one owner. All operations are serialized by a single RWMutex, reads run
// concurrently with each other.
package spruce
