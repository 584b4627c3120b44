package attr

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/ValentinKolb/xkv/lib/batch"
	"github.com/ValentinKolb/xkv/lib/db/engines/spruce"
	"github.com/ValentinKolb/xkv/lib/store"
	"github.com/ValentinKolb/xkv/lib/store/astore"
	"github.com/ValentinKolb/xkv/lib/store/lstore"
	"github.com/ValentinKolb/xkv/lib/xattr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunBatches(t *testing.T) {
	backend := lstore.NewLocalStore(spruce.NewSpruceDB)
	async := astore.NewAsyncStore(backend, astore.Config{Workers: 4})
	defer func() { require.NoError(t, async.Close()) }()

	var out bytes.Buffer
	timer, err := RunBatches(context.Background(), async, BatchOptions{
		Owner:      RootOwner,
		Owners:     3,
		Repeat:     2,
		Keys:       50,
		NamePrefix: "1name_of_key",
		Value:      bytes.Repeat([]byte{'*'}, 512),
		Timeout:    10 * time.Second,
	}, &out)
	require.NoError(t, err)
	assert.EqualValues(t, 6, timer.Count())

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 6)
	for _, line := range lines {
		assert.Regexp(t, `^Elapsed time for stored 50 keys one at a time async: \d+ millisecs$`, line)
	}

	attrs := xattr.NewAttrs(backend, xattr.ClassXattr)
	for o := uint64(RootOwner); o < RootOwner+3; o++ {
		names, err := attrs.List(o)
		require.NoError(t, err)
		assert.Len(t, names, 50, "owner %d", o)
	}
	value, ok, err := attrs.Get(RootOwner+1, batch.KeyName("1name_of_key", 49))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Len(t, value, 512)

	PrintSummary(&out, timer)
	assert.Contains(t, out.String(), "6 batches:")
}

func TestRunBatchesStopsOnFailure(t *testing.T) {
	async := astore.NewAsyncStore(lstore.NewLocalStore(spruce.NewSpruceDB), astore.Config{})
	defer func() { require.NoError(t, async.Close()) }()

	var out bytes.Buffer
	// names longer than the name field fail before anything is submitted
	timer, err := RunBatches(context.Background(), async, BatchOptions{
		Owner:      RootOwner,
		Owners:     2,
		Repeat:     3,
		Keys:       10,
		NamePrefix: strings.Repeat("n", xattr.NameCapacity),
		Value:      []byte("v"),
	}, &out)
	require.Error(t, err)
	assert.ErrorIs(t, err, xattr.ErrInvalidName)
	assert.Zero(t, timer.Count())
	assert.Empty(t, out.String())
}

// failingStore fails every write of the attribute name fail
type failingStore struct {
	store.IStore
	fail string
}

func (s *failingStore) Set(key, value []byte) error {
	if k, err := xattr.Decode(key); err == nil && k.Name() == s.fail {
		return store.NewError(store.RetCInternalError, "disk full")
	}
	return s.IStore.Set(key, value)
}

func TestRunBatchesReportsPartialFailure(t *testing.T) {
	backend := &failingStore{IStore: lstore.NewLocalStore(spruce.NewSpruceDB), fail: batch.KeyName("1name_of_key", 3)}
	async := astore.NewAsyncStore(backend, astore.Config{Workers: 2})
	defer func() { require.NoError(t, async.Close()) }()

	var out bytes.Buffer
	timer, err := RunBatches(context.Background(), async, BatchOptions{
		Owner:      RootOwner,
		Owners:     1,
		Repeat:     1,
		Keys:       10,
		NamePrefix: "1name_of_key",
		Value:      []byte("v"),
		Timeout:    10 * time.Second,
	}, &out)
	require.ErrorIs(t, err, batch.ErrOperationFailed)
	assert.Contains(t, err.Error(), "partial")
	assert.Zero(t, timer.Count())
	assert.Empty(t, out.String())

	// the other nine writes went through
	names, err := xattr.NewAttrs(backend, xattr.ClassXattr).List(RootOwner)
	require.NoError(t, err)
	assert.Len(t, names, 9)
}

func TestRunBatchesRejectsInvalidOptions(t *testing.T) {
	async := astore.NewAsyncStore(lstore.NewLocalStore(spruce.NewSpruceDB), astore.Config{})
	defer func() { require.NoError(t, async.Close()) }()

	_, err := RunBatches(context.Background(), async, BatchOptions{Owners: 0, Repeat: 1, Keys: 1}, &bytes.Buffer{})
	assert.Error(t, err)
}
