package store

import (
	"bytes"
	"slices"

	"github.com/ValentinKolb/xkv/lib/db"
)

// ScanDB collects all pairs of database whose key starts with prefix, sorted by key.
// The returned keys and values are copies.
func ScanDB(database db.KVDB, prefix []byte) ([]KV, error) {
	if !database.SupportsFeature(db.FeatureScan) {
		return nil, NewError(RetCUnsupportedOperation, "Scan operation is not supported")
	}

	var pairs []KV
	database.Scan(string(prefix), func(key string, value []byte) bool {
		pairs = append(pairs, KV{Key: []byte(key), Value: bytes.Clone(value)})
		return true
	})

	if !database.SupportsFeature(db.FeatureOrderedScan) {
		SortKV(pairs)
	}
	return pairs, nil
}

// SortKV sorts pairs by key in ascending byte order
func SortKV(pairs []KV) {
	slices.SortFunc(pairs, func(a, b KV) int {
		return bytes.Compare(a.Key, b.Key)
	})
}
