package testing

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"slices"
	"sync"
	"testing"

	"github.com/ValentinKolb/xkv/lib/db"
)

// DBFactory is a function that creates a new instance of a KVDB implementation
type DBFactory func() db.KVDB

// RunKVDBTests runs a comprehensive test suite for a KVDB implementation.
func RunKVDBTests(t *testing.T, name string, factory DBFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("Set&Get", func(t *testing.T) {
			testSetGet(t, factory())
		})

		t.Run("Delete", func(t *testing.T) {
			testDelete(t, factory())
		})

		t.Run("Has", func(t *testing.T) {
			testHas(t, factory())
		})

		t.Run("StaleWrites", func(t *testing.T) {
			testStaleWrites(t, factory())
		})

		t.Run("Scan", func(t *testing.T) {
			testScan(t, factory())
		})

		t.Run("OrderedScan", func(t *testing.T) {
			testOrderedScan(t, factory())
		})

		t.Run("SaveLoad", func(t *testing.T) {
			testSaveLoad(t, factory)
		})

		t.Run("EdgeCases", func(t *testing.T) {
			testEdgeCases(t, factory())
		})

		t.Run("Info", func(t *testing.T) {
			testInfo(t, factory())
		})

		t.Run("RealisticUsage", func(t *testing.T) {
			testRealisticUsage(t, factory())
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

// Checks if the database supports the specified feature
// Skip the test if it is not supported
func requireFeature(t testing.TB, database db.KVDB, feature db.Feature) {
	if !database.SupportsFeature(feature) {
		t.Skip()
	}
}

// binaryKey builds a key in the layout of structured attribute keys (big endian owner, class byte, name)
func binaryKey(owner uint64, class byte, name string) string {
	buf := make([]byte, 9+len(name))
	binary.BigEndian.PutUint64(buf, owner)
	buf[8] = class
	copy(buf[9:], name)
	return string(buf)
}

func scanKeys(database db.KVDB, prefix string) []string {
	var keys []string
	database.Scan(prefix, func(key string, _ []byte) bool {
		keys = append(keys, key)
		return true
	})
	return keys
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testSetGet(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet|db.FeatureGet)

	testKey := "test-key"
	testValue1 := []byte("test-value1")
	testValue2 := []byte("test-value2")

	database.Set(testKey, testValue1, 1)

	result, exists := database.Get(testKey)
	if !exists {
		t.Errorf("Expected key %s to exist after Set", testKey)
	}
	if !bytes.Equal(result, testValue1) {
		t.Errorf("Expected value %s, got %s", testValue1, result)
	}

	database.Set(testKey, testValue2, 2)

	result, exists = database.Get(testKey)
	if !exists {
		t.Errorf("Expected key %s to exist after Set", testKey)
	}
	if !bytes.Equal(result, testValue2) {
		t.Errorf("Expected value %s, got %s", testValue2, result)
	}

	if _, exists = database.Get("nonexistent-key"); exists {
		t.Errorf("Expected nonexistent key to return exists=false")
	}

	// modifying a returned value must not change the stored value
	retrievedValue, _ := database.Get(testKey)
	retrievedValue[0] = 'X'
	result, _ = database.Get(testKey)
	if !bytes.Equal(result, testValue2) {
		t.Errorf("Stored value was modified through the returned slice: %s", result)
	}

	// modifying the written slice must not change the stored value either
	input := []byte("input-value")
	database.Set("input-key", input, 3)
	input[0] = 'X'
	result, _ = database.Get("input-key")
	if !bytes.Equal(result, []byte("input-value")) {
		t.Errorf("Stored value was modified through the input slice: %s", result)
	}

	if database.WriteIdx() != 3 {
		t.Errorf("Expected write index 3, got %d", database.WriteIdx())
	}
}

func testDelete(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet|db.FeatureGet|db.FeatureDelete)

	testKey := "delete-test-key"
	testValue := []byte("delete-test-value")

	database.Set(testKey, testValue, 1)

	if _, exists := database.Get(testKey); !exists {
		t.Errorf("Expected key %s to exist after Set", testKey)
	}

	database.Delete(testKey, 10)

	if _, exists := database.Get(testKey); exists {
		t.Errorf("Expected key %s to not exist after Delete", testKey)
	}
	if database.Has(testKey) {
		t.Errorf("Expected key %s to not exist after Delete", testKey)
	}

	database.Delete("nonexistent-key", 11)
}

func testHas(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet|db.FeatureDelete|db.FeatureHas)

	testKey := "has-exists-test-key"

	if database.Has(testKey) {
		t.Errorf("Expected Has to return false for nonexistent key")
	}

	database.Set(testKey, []byte("value"), 1)
	if !database.Has(testKey) {
		t.Errorf("Expected Has to return true after Set")
	}

	database.Delete(testKey, 2)
	if database.Has(testKey) {
		t.Errorf("Expected Has to return false after Delete")
	}
}

func testStaleWrites(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet|db.FeatureGet|db.FeatureDelete)

	database.Set("stale", []byte("new"), 10)
	database.Set("stale", []byte("old"), 5)

	result, _ := database.Get("stale")
	if !bytes.Equal(result, []byte("new")) {
		t.Errorf("Expected stale write to be ignored, got %s", result)
	}

	database.Delete("stale", 7)
	if _, exists := database.Get("stale"); !exists {
		t.Errorf("Expected stale delete to be ignored")
	}

	// the write index never moves backwards
	database.SetWriteIdx(3)
	if database.WriteIdx() != 10 {
		t.Errorf("Expected write index 10, got %d", database.WriteIdx())
	}
}

func testScan(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet|db.FeatureScan)

	// two owners with the same class, the second one must not show up in the first one's listing
	for i := 0; i < 20; i++ {
		database.Set(binaryKey(123456, '7', fmt.Sprintf("attr_%02d", i)), []byte{byte(i)}, uint64(i+1))
		database.Set(binaryKey(123457, '7', fmt.Sprintf("attr_%02d", i)), []byte{byte(i)}, uint64(i+1))
	}
	database.Set(binaryKey(123456, '8', "other-class"), []byte("x"), 100)

	prefix := binaryKey(123456, '7', "")
	keys := scanKeys(database, prefix)
	if len(keys) != 20 {
		t.Fatalf("Expected 20 keys for prefix, got %d", len(keys))
	}
	for _, k := range keys {
		if k[:len(prefix)] != prefix {
			t.Errorf("Scan returned key %q outside of prefix", k)
		}
	}

	// early stop
	visited := 0
	database.Scan(prefix, func(string, []byte) bool {
		visited++
		return visited < 5
	})
	if visited != 5 {
		t.Errorf("Expected scan to stop after 5 keys, visited %d", visited)
	}

	if keys := scanKeys(database, binaryKey(999, '7', "")); len(keys) != 0 {
		t.Errorf("Expected no keys for unknown owner, got %d", len(keys))
	}

	if all := scanKeys(database, ""); len(all) != 41 {
		t.Errorf("Expected empty prefix to match all 41 keys, got %d", len(all))
	}
}

func testOrderedScan(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet|db.FeatureOrderedScan)

	// insert in reverse order, owners chosen so that little endian encoding would sort differently
	owners := []uint64{1 << 8, 2, 1}
	var expected []string
	for i, owner := range owners {
		for _, name := range []string{"c", "b", "a"} {
			key := binaryKey(owner, '7', name)
			database.Set(key, []byte(name), uint64(i+1))
			expected = append(expected, key)
		}
	}
	slices.Sort(expected)

	keys := scanKeys(database, "")
	if !slices.Equal(keys, expected) {
		t.Errorf("Expected keys in ascending order")
	}
}

func testSaveLoad(t *testing.T, factory DBFactory) {
	database := factory()
	database2 := factory()

	// close the databases after the test
	defer database.Close()
	defer database2.Close()

	requireFeature(t, database, db.FeatureSet|db.FeatureGet|db.FeatureSave|db.FeatureLoad)

	numEntries := 1000
	originalKeys := make([]string, numEntries)
	originalValues := make([][]byte, numEntries)

	for i := 0; i < numEntries; i++ {
		key := binaryKey(uint64(i), '7', fmt.Sprintf("save-load-test-key-%d", i))
		value := []byte(fmt.Sprintf("save-load-test-value-%d", i))
		originalKeys[i] = key
		originalValues[i] = value

		database.Set(key, value, uint64(i+1))
	}

	// existing data of the target is replaced
	database2.Set("stale-key", []byte("stale"), 1)

	var buf bytes.Buffer
	if err := database.Save(&buf); err != nil {
		t.Fatalf("Unexpected error during Save: %v", err)
	}
	if err := database2.Load(&buf); err != nil {
		t.Fatalf("Unexpected error during Load: %v", err)
	}

	for i := 0; i < numEntries; i++ {
		actualValue, exists := database2.Get(originalKeys[i])
		if !exists {
			t.Errorf("Key %q not found after Load", originalKeys[i])
			continue
		}
		if !bytes.Equal(actualValue, originalValues[i]) {
			t.Errorf("Value mismatch for key %q: expected %s, got %s", originalKeys[i], originalValues[i], actualValue)
		}
	}

	if _, exists := database2.Get("stale-key"); exists {
		t.Errorf("Expected Load to replace existing entries")
	}
	if database2.WriteIdx() != database.WriteIdx() {
		t.Errorf("Expected write index %d after Load, got %d", database.WriteIdx(), database2.WriteIdx())
	}

	if err := database2.Load(bytes.NewReader([]byte("garbage"))); err == nil {
		t.Errorf("Expected error when loading garbage")
	}
}

func testEdgeCases(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet|db.FeatureGet)

	emptyKeyValue := []byte("value for empty key")
	database.Set("", emptyKeyValue, 1)

	result, exists := database.Get("")
	if !exists {
		t.Errorf("Empty key not found after Set")
	} else if !bytes.Equal(result, emptyKeyValue) {
		t.Errorf("Value mismatch for empty key")
	}

	database.Set("nil-value-key", nil, 2)
	result, exists = database.Get("nil-value-key")
	if !exists {
		t.Errorf("Key for nil value not found after Set")
	} else if len(result) != 0 {
		t.Errorf("Nil value resulted in non-empty value: %v", result)
	}

	// keys that only differ in trailing zero bytes are distinct
	database.Set("pad", []byte("short"), 3)
	database.Set("pad\x00\x00", []byte("padded"), 4)
	result, _ = database.Get("pad")
	if !bytes.Equal(result, []byte("short")) {
		t.Errorf("Expected zero padded key to be distinct, got %s", result)
	}

	largeKey := string(bytes.Repeat([]byte{0xff}, 1000))
	database.Set(largeKey, []byte("value for large key"), 5)
	if result, exists = database.Get(largeKey); !exists || !bytes.Equal(result, []byte("value for large key")) {
		t.Errorf("Value mismatch for large key")
	}

	largeValue := make([]byte, 8*1024*1024)
	for i := range largeValue {
		largeValue[i] = byte(i % 256)
	}
	database.Set("large-value-key", largeValue, 6)
	if result, exists = database.Get("large-value-key"); !exists || !bytes.Equal(result, largeValue) {
		t.Errorf("Value mismatch for large value")
	}
}

func testInfo(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet|db.FeatureDelete)

	for i := 0; i < 10; i++ {
		database.Set(fmt.Sprintf("info-%d", i), make([]byte, 100), uint64(i+1))
	}
	database.Delete("info-0", 11)

	info := database.GetInfo()
	if info.Entries != 9 {
		t.Errorf("Expected 9 entries, got %d", info.Entries)
	}
	if want := 9 * (len("info-1") + 100); info.SizeBytes != want {
		t.Errorf("Expected %d bytes, got %d", want, info.SizeBytes)
	}
	for _, f := range info.SupportedFeatures {
		if !database.SupportsFeature(f) {
			t.Errorf("GetInfo lists feature %s but SupportsFeature denies it", f)
		}
	}
}

func testRealisticUsage(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet|db.FeatureGet|db.FeatureDelete)

	// every worker owns its keys, so the final state is known
	const (
		numWorkers    = 8
		keysPerWorker = 500
	)

	var wg sync.WaitGroup
	wg.Add(numWorkers)
	for w := 0; w < numWorkers; w++ {
		go func(worker int) {
			defer wg.Done()
			for i := 0; i < keysPerWorker; i++ {
				key := binaryKey(uint64(worker), '7', fmt.Sprintf("key-%d", i))
				database.Set(key, []byte(fmt.Sprintf("v1-%d", i)), 1)
				database.Get(key)
				database.Set(key, []byte(fmt.Sprintf("v2-%d", i)), 2)
				if i%3 == 0 {
					database.Delete(key, 3)
				}
			}
		}(w)
	}
	wg.Wait()

	for w := 0; w < numWorkers; w++ {
		for i := 0; i < keysPerWorker; i++ {
			key := binaryKey(uint64(w), '7', fmt.Sprintf("key-%d", i))
			value, exists := database.Get(key)
			if i%3 == 0 {
				if exists {
					t.Errorf("Key %q should be deleted", key)
				}
				continue
			}
			if !exists || string(value) != fmt.Sprintf("v2-%d", i) {
				t.Errorf("Key %q: expected v2-%d, got %q (exists=%v)", key, i, value, exists)
			}
		}
	}
}
