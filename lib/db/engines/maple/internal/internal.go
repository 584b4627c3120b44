package internal

import (
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"
)

// --------------------------------------------------------------------------
// Entry Type (value with metadata)
// --------------------------------------------------------------------------

// Entry stores a value with metadata
type Entry struct {
	Value []byte // Owned copy of the value
	Index uint64 // Write index when this entry was created/updated
}

// --------------------------------------------------------------------------
// Shard Type (partition of the database)
// --------------------------------------------------------------------------

// Shard represents a partition of the database.
// Each shard has its own map, keys are stored in full so there are no hash collisions between keys.
type Shard struct {
	Data  *xsync.MapOf[string, Entry]
	Bytes atomic.Int64 // bytes held by keys and values of this shard
}

// NewShard creates a new empty shard
func NewShard() *Shard {
	return &Shard{
		Data: xsync.NewMapOf[string, Entry](),
	}
}

// GetShard returns the appropriate shard for a hashed key
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func GetShard[T any](hash uint64, shards []*T) *T {
	// Shift right by 7 bits to use higher-quality bits for distribution
	return shards[(hash>>7)%uint64(len(shards))]
}
