package maple

import (
	"io"
	"runtime"
	"sync/atomic"

	"github.com/ValentinKolb/xkv/lib/db"
	"github.com/ValentinKolb/xkv/lib/db/engines/maple/internal"
	"github.com/ValentinKolb/xkv/lib/db/util"
)

// --------------------------------------------------------------------------
// Core Maple database structure
// --------------------------------------------------------------------------

// mapleImpl implements a concurrent in memory database with sharded data
type mapleImpl struct {
	seed      uint64            // Seed for hash function
	shards    []*internal.Shard // Array of shards
	currIndex atomic.Uint64     // Current logical timestamp
}

// DBOptions configures the mapleImpl behavior during initialization
type DBOptions struct {
	NumShards int // Number of shards (0 = auto)
}

// DefaultOptions returns the default mapleImpl options
func DefaultOptions() *DBOptions {
	return &DBOptions{
		NumShards: runtime.NumCPU(), // Auto-determine based on CPU count
	}
}

const supportedFeatures = db.FeatureSet |
	db.FeatureGet |
	db.FeatureDelete |
	db.FeatureHas |
	db.FeatureScan |
	db.FeatureSave |
	db.FeatureLoad

// --------------------------------------------------------------------------
// Initialization and Setup
// --------------------------------------------------------------------------

// NewMapleDB creates a new MapleDB instance with the specified options (optional)
func NewMapleDB(opts *DBOptions) db.KVDB {
	if opts == nil {
		opts = DefaultOptions()
	}
	if opts.NumShards <= 0 {
		opts.NumShards = runtime.NumCPU()
	}

	return &mapleImpl{
		seed:   util.GenerateSeed(),
		shards: newShards(opts.NumShards),
	}
}

func newShards(n int) []*internal.Shard {
	shards := make([]*internal.Shard, n)
	for i := range shards {
		shards[i] = internal.NewShard()
	}
	return shards
}

func (maple *mapleImpl) shardFor(key string) *internal.Shard {
	return internal.GetShard(util.HashString(key, maple.seed), maple.shards)
}

// --------------------------------------------------------------------------
// Core KVDB Interface Methods - Write Operations
// --------------------------------------------------------------------------

// Set inserts or updates an entry with the given key, value, and writeIndex.
// A write with a lower index than the stored entry is stale and ignored.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) Set(key string, value []byte, writeIdx uint64) {
	maple.SetWriteIdx(writeIdx)
	shard := maple.shardFor(key)

	// Copy value to prevent memory corruption
	valueCopy := make([]byte, len(value))
	copy(valueCopy, value)

	shard.Data.Compute(key, func(old internal.Entry, loaded bool) (internal.Entry, bool) {
		if loaded {
			if old.Index > writeIdx {
				return old, false
			}
			shard.Bytes.Add(int64(len(valueCopy) - len(old.Value)))
		} else {
			shard.Bytes.Add(int64(len(key) + len(valueCopy)))
		}
		return internal.Entry{Value: valueCopy, Index: writeIdx}, false
	})
}

// Delete removes an entry with the specified key. This change is immediate.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) Delete(key string, writeIdx uint64) {
	maple.SetWriteIdx(writeIdx)
	shard := maple.shardFor(key)

	shard.Data.Compute(key, func(old internal.Entry, loaded bool) (internal.Entry, bool) {
		if !loaded {
			return old, true
		}
		if old.Index > writeIdx {
			return old, false
		}
		shard.Bytes.Add(-int64(len(key) + len(old.Value)))
		return old, true
	})
}

// --------------------------------------------------------------------------
// Core KVDB Interface Methods - Read Operations
// --------------------------------------------------------------------------

// Get retrieves a value for a key.
// The returned value is a copy of the stored data and therefore safe to use and modify.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) Get(key string) ([]byte, bool) {
	entry, ok := maple.shardFor(key).Data.Load(key)
	if !ok {
		return nil, false
	}
	valueCopy := make([]byte, len(entry.Value))
	copy(valueCopy, entry.Value)
	return valueCopy, true
}

// Has checks if a key exists in the database.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) Has(key string) bool {
	_, ok := maple.shardFor(key).Data.Load(key)
	return ok
}

// Scan visits every shard, the order of the keys is unspecified.
// Entries written concurrently may or may not be visited.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) Scan(prefix string, fn func(key string, value []byte) bool) {
	for _, shard := range maple.shards {
		proceed := true
		shard.Data.Range(func(key string, entry internal.Entry) bool {
			if util.HasPrefix(key, prefix) {
				proceed = fn(key, entry.Value)
			}
			return proceed
		})
		if !proceed {
			return
		}
	}
}

// --------------------------------------------------------------------------
// Persistence Operations
// --------------------------------------------------------------------------

// Save persists the database to the writer.
// Concurrent writes during Save are allowed, the snapshot is fuzzy: it contains every entry that existed
// when Save started and was not deleted while Save ran.
func (maple *mapleImpl) Save(w io.Writer) error {
	type entryToSave struct {
		key   string
		value []byte
	}

	var entries []entryToSave
	for _, shard := range maple.shards {
		shard.Data.Range(func(key string, entry internal.Entry) bool {
			// stored values are never modified in place, so the slice can be shared
			entries = append(entries, entryToSave{key, entry.Value})
			return true
		})
	}

	sw, err := util.NewSnapshotWriter(w, util.SnapshotHeader{
		Engine:   string(db.ImplMaple),
		WriteIdx: maple.currIndex.Load(),
		Count:    uint64(len(entries)),
	})
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := sw.WriteEntry(e.key, e.value); err != nil {
			return err
		}
	}
	return sw.Close()
}

// Load replaces the content of the database with the snapshot read from r.
//
// Thread-safety: This function is not thread-safe and should not be called concurrently
func (maple *mapleImpl) Load(r io.Reader) error {
	shards := newShards(len(maple.shards))
	seed := util.GenerateSeed()

	h, err := util.ReadSnapshot(r, func(key string, value []byte) {
		shard := internal.GetShard(util.HashString(key, seed), shards)
		shard.Data.Store(key, internal.Entry{Value: value})
		shard.Bytes.Add(int64(len(key) + len(value)))
	})
	if err != nil {
		return err
	}

	maple.seed = seed
	maple.shards = shards
	maple.currIndex.Store(0)
	maple.SetWriteIdx(h.WriteIdx)
	return nil
}

// --------------------------------------------------------------------------
// KVDB Interface Implementation - Features and Metadata
// --------------------------------------------------------------------------

// GetInfo returns statistics about the database
func (maple *mapleImpl) GetInfo() db.DatabaseInfo {
	var (
		sizeBytes  int
		entries    int
		shardSizes = make([]float64, len(maple.shards))
	)
	for i, shard := range maple.shards {
		n := shard.Data.Size()
		entries += n
		sizeBytes += int(shard.Bytes.Load())
		shardSizes[i] = float64(n)
	}

	meta := &struct {
		CurrentWriteIndex uint64                 `json:"current_write_index"`
		ShardCount        int                    `json:"shard_count"`
		ShardDistribution util.DistributionStats `json:"shard_distribution"`
	}{
		CurrentWriteIndex: maple.currIndex.Load(),
		ShardCount:        len(maple.shards),
		ShardDistribution: util.NewDistributionStats(shardSizes),
	}

	return db.DatabaseInfo{
		SizeBytes:         sizeBytes,
		Entries:           entries,
		DbType:            db.ImplMaple,
		SupportedFeatures: db.FeatureList(supportedFeatures),
		Metadata:          meta,
	}
}

// SupportsFeature checks if this implementation supports a specific KVDB feature
func (maple *mapleImpl) SupportsFeature(feature db.Feature) bool {
	return supportedFeatures&feature == feature
}

func (maple *mapleImpl) Close() error {
	return nil
}

// --------------------------------------------------------------------------
// Index and Timestamp Management
// --------------------------------------------------------------------------

// SetWriteIdx safely updates the current index
// It only updates if the new index is greater than the current one
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) SetWriteIdx(newIdx uint64) {
	for {
		currIdx := maple.currIndex.Load()
		if newIdx <= currIdx {
			return
		}
		if maple.currIndex.CompareAndSwap(currIdx, newIdx) {
			return
		}
	}
}

// WriteIdx returns the current index of the database
func (maple *mapleImpl) WriteIdx() uint64 {
	return maple.currIndex.Load()
}
