package spruce

import (
	"io"
	"sync"
	"sync/atomic"

	"github.com/ValentinKolb/xkv/lib/db"
	"github.com/ValentinKolb/xkv/lib/db/util"
	"github.com/huandu/skiplist"
)

type entry struct {
	value []byte
	index uint64
}

type spruceImpl struct {
	mu        sync.RWMutex
	sl        *skiplist.SkipList
	sizeBytes int
	currIndex atomic.Uint64
}

const supportedFeatures = db.FeatureSet |
	db.FeatureGet |
	db.FeatureDelete |
	db.FeatureHas |
	db.FeatureScan |
	db.FeatureOrderedScan |
	db.FeatureSave |
	db.FeatureLoad

// NewSpruceDB creates an empty ordered database
func NewSpruceDB() db.KVDB {
	return &spruceImpl{
		sl: skiplist.New(skiplist.String),
	}
}

// --------------------------------------------------------------------------
// Write Operations
// --------------------------------------------------------------------------

func (s *spruceImpl) Set(key string, value []byte, writeIdx uint64) {
	s.SetWriteIdx(writeIdx)

	valueCopy := make([]byte, len(value))
	copy(valueCopy, value)

	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.sl.GetValue(key); ok {
		e := old.(*entry)
		if e.index > writeIdx {
			return // stale write
		}
		s.sizeBytes += len(valueCopy) - len(e.value)
	} else {
		s.sizeBytes += len(key) + len(valueCopy)
	}
	s.sl.Set(key, &entry{value: valueCopy, index: writeIdx})
}

func (s *spruceImpl) Delete(key string, writeIdx uint64) {
	s.SetWriteIdx(writeIdx)

	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.sl.GetValue(key)
	if !ok {
		return
	}
	e := old.(*entry)
	if e.index > writeIdx {
		return
	}
	s.sl.Remove(key)
	s.sizeBytes -= len(key) + len(e.value)
}

// --------------------------------------------------------------------------
// Query Operations
// --------------------------------------------------------------------------

func (s *spruceImpl) Get(key string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.sl.GetValue(key)
	if !ok {
		return nil, false
	}
	e := v.(*entry)
	valueCopy := make([]byte, len(e.value))
	copy(valueCopy, e.value)
	return valueCopy, true
}

func (s *spruceImpl) Has(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.sl.GetValue(key)
	return ok
}

// Scan visits the matching keys in ascending order. fn runs under the read lock and must not call
// write methods of the same database.
func (s *spruceImpl) Scan(prefix string, fn func(key string, value []byte) bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for el := s.sl.Find(prefix); el != nil; el = el.Next() {
		key := el.Key().(string)
		if !util.HasPrefix(key, prefix) {
			return
		}
		if !fn(key, el.Value.(*entry).value) {
			return
		}
	}
}

// --------------------------------------------------------------------------
// Persistence Operations
// --------------------------------------------------------------------------

// Save writes a consistent snapshot, writers are blocked while it is taken.
func (s *spruceImpl) Save(w io.Writer) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sw, err := util.NewSnapshotWriter(w, util.SnapshotHeader{
		Engine:   string(db.ImplSpruce),
		WriteIdx: s.currIndex.Load(),
		Count:    uint64(s.sl.Len()),
	})
	if err != nil {
		return err
	}
	for el := s.sl.Front(); el != nil; el = el.Next() {
		if err := sw.WriteEntry(el.Key().(string), el.Value.(*entry).value); err != nil {
			return err
		}
	}
	return sw.Close()
}

func (s *spruceImpl) Load(r io.Reader) error {
	sl := skiplist.New(skiplist.String)
	size := 0

	h, err := util.ReadSnapshot(r, func(key string, value []byte) {
		sl.Set(key, &entry{value: value})
		size += len(key) + len(value)
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.sl = sl
	s.sizeBytes = size
	s.mu.Unlock()

	s.currIndex.Store(0)
	s.SetWriteIdx(h.WriteIdx)
	return nil
}

// --------------------------------------------------------------------------
// Features and Metadata
// --------------------------------------------------------------------------

func (s *spruceImpl) GetInfo() db.DatabaseInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	meta := &struct {
		CurrentWriteIndex uint64 `json:"current_write_index"`
		MaxLevel          int    `json:"max_level"`
	}{
		CurrentWriteIndex: s.currIndex.Load(),
		MaxLevel:          s.sl.MaxLevel(),
	}

	return db.DatabaseInfo{
		SizeBytes:         s.sizeBytes,
		Entries:           s.sl.Len(),
		DbType:            db.ImplSpruce,
		SupportedFeatures: db.FeatureList(supportedFeatures),
		Metadata:          meta,
	}
}

func (s *spruceImpl) SupportsFeature(feature db.Feature) bool {
	return supportedFeatures&feature == feature
}

func (s *spruceImpl) SetWriteIdx(newIdx uint64) {
	for {
		currIdx := s.currIndex.Load()
		if newIdx <= currIdx {
			return
		}
		if s.currIndex.CompareAndSwap(currIdx, newIdx) {
			return
		}
	}
}

func (s *spruceImpl) WriteIdx() uint64 {
	return s.currIndex.Load()
}

func (s *spruceImpl) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sl.Init()
	s.sizeBytes = 0
	return nil
}
