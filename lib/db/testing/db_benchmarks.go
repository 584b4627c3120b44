package testing

import (
	"bytes"
	"fmt"
	"math/rand"
	"sync/atomic"
	"testing"

	"github.com/ValentinKolb/xkv/lib/db"
)

// RunKVDBBenchmarks runs all benchmarks for a key-value database implementations
func RunKVDBBenchmarks(b *testing.B, name string, factory DBFactory) {

	b.Run("Set", func(b *testing.B) {
		benchmarkSet(b, factory())
	})

	b.Run("SetExisting", func(b *testing.B) {
		benchmarkSetExisting(b, factory())
	})

	b.Run("Get", func(b *testing.B) {
		benchmarkGet(b, factory())
	})

	b.Run("Delete", func(b *testing.B) {
		benchmarkDelete(b, factory())
	})

	b.Run("Has(not)", func(b *testing.B) {
		benchmarkHasNot(b, factory())
	})

	b.Run("ScanPrefix", func(b *testing.B) {
		benchmarkScanPrefix(b, factory())
	})

	b.Run("SaveLoad", func(b *testing.B) {
		benchmarkSaveLoad(b, factory)
	})

	b.Run("MixedUsage", func(b *testing.B) {
		benchmarkMixedUsage(b, factory())
	})
}

// --------------------------------------------------------------------------
// Benchmark functions
// --------------------------------------------------------------------------

func benchmarkSet(b *testing.B, database db.KVDB) {
	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeatureSet)

	var counter atomic.Uint64
	value := bytes.Repeat([]byte("*"), 512)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			i := counter.Add(1)
			database.Set(binaryKey(i, '7', "1name_of_key"), value, i)
		}
	})
}

func benchmarkSetExisting(b *testing.B, database db.KVDB) {
	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeatureSet)

	const numKeys = 1000
	keys := make([]string, numKeys)
	for i := range keys {
		keys[i] = binaryKey(uint64(i), '7', "existing")
		database.Set(keys[i], []byte("initial"), 1)
	}

	var counter atomic.Uint64
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			i := counter.Add(1)
			database.Set(keys[i%numKeys], []byte("updated"), i)
		}
	})
}

func benchmarkGet(b *testing.B, database db.KVDB) {
	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeatureSet|db.FeatureGet)

	const numKeys = 10000
	keys := make([]string, numKeys)
	for i := range keys {
		keys[i] = binaryKey(uint64(i), '7', "get")
		database.Set(keys[i], []byte(fmt.Sprintf("value-%d", i)), uint64(i+1))
	}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		r := rand.New(rand.NewSource(rand.Int63()))
		for pb.Next() {
			database.Get(keys[r.Intn(numKeys)])
		}
	})
}

func benchmarkDelete(b *testing.B, database db.KVDB) {
	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeatureSet|db.FeatureDelete)

	keys := make([]string, b.N)
	for i := range keys {
		keys[i] = binaryKey(uint64(i), '7', "delete")
		database.Set(keys[i], []byte("value"), 1)
	}

	var counter atomic.Int64
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			i := counter.Add(1) - 1
			database.Delete(keys[i], 2)
		}
	})
}

func benchmarkHasNot(b *testing.B, database db.KVDB) {
	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeatureHas)

	var counter atomic.Uint64
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			database.Has(binaryKey(counter.Add(1), '7', "missing"))
		}
	})
}

// listing the 100 attributes of one owner among 100k keys
func benchmarkScanPrefix(b *testing.B, database db.KVDB) {
	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeatureSet|db.FeatureScan)

	for owner := uint64(0); owner < 1000; owner++ {
		for i := 0; i < 100; i++ {
			database.Set(binaryKey(owner, '7', fmt.Sprintf("attr_%d", i)), []byte("v"), 1)
		}
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		n := 0
		database.Scan(binaryKey(uint64(i%1000), '7', ""), func(string, []byte) bool {
			n++
			return true
		})
		if n != 100 {
			b.Fatalf("expected 100 keys, got %d", n)
		}
	}
}

// For these operations, parallelization is not meaningful as they read or replace the whole database
func benchmarkSaveLoad(b *testing.B, factory DBFactory) {
	database := factory()

	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeatureSet|db.FeatureSave|db.FeatureLoad)

	numEntries := 10000
	for i := 0; i < numEntries; i++ {
		database.Set(fmt.Sprintf("test-key-%d", i), []byte(fmt.Sprintf("test-value-%d", i)), uint64(i+1))
	}

	b.Run("Save", func(b *testing.B) {
		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			var buf bytes.Buffer
			database.Save(&buf)
		}
	})

	var loadBuf bytes.Buffer
	database.Save(&loadBuf)
	data := loadBuf.Bytes()

	b.Run("Load", func(b *testing.B) {
		loadDB := factory()
		defer loadDB.Close()
		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			loadDB.Load(bytes.NewReader(data))
		}
	})
}

func benchmarkMixedUsage(b *testing.B, database db.KVDB) {
	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeatureSet|db.FeatureGet|db.FeatureDelete|db.FeatureHas)

	const numKeys = 10000
	keys := make([]string, numKeys)
	for i := range keys {
		keys[i] = binaryKey(uint64(i), '7', "mixed")
		database.Set(keys[i], []byte("value"), 1)
	}

	var counter atomic.Uint64
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		r := rand.New(rand.NewSource(rand.Int63()))
		for pb.Next() {
			idx := counter.Add(1)
			key := keys[r.Intn(numKeys)]
			switch r.Intn(10) {
			case 0, 1, 2:
				database.Set(key, []byte("value"), idx)
			case 3:
				database.Delete(key, idx)
			case 4:
				database.Has(key)
			default:
				database.Get(key)
			}
		}
	})
}
