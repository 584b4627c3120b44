package xattr

import (
	"testing"

	"github.com/ValentinKolb/xkv/lib/db"
	"github.com/ValentinKolb/xkv/lib/db/engines/maple"
	"github.com/ValentinKolb/xkv/lib/db/engines/spruce"
	"github.com/ValentinKolb/xkv/lib/store/lstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAttrs(t *testing.T) {
	for name, factory := range map[string]func() db.KVDB{
		"spruce": spruce.NewSpruceDB,
		"maple":  func() db.KVDB { return maple.NewMapleDB(nil) },
	} {
		t.Run(name, func(t *testing.T) {
			attrs := NewAttrs(lstore.NewLocalStore(factory), ClassXattr)

			require.NoError(t, attrs.Set(2, "user.b", []byte("2")))
			require.NoError(t, attrs.Set(2, "user.a", []byte("1")))
			require.NoError(t, attrs.Set(3, "user.c", []byte("3")))
			require.NoError(t, attrs.Set(2, "user.a", []byte("overwritten")))

			value, ok, err := attrs.Get(2, "user.a")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, "overwritten", string(value))

			_, ok, err = attrs.Get(3, "user.a")
			require.NoError(t, err)
			assert.False(t, ok)

			names, err := attrs.List(2)
			require.NoError(t, err)
			assert.Equal(t, []string{"user.a", "user.b"}, names)

			require.NoError(t, attrs.Remove(2, "user.a"))
			assert.ErrorIs(t, attrs.Remove(2, "user.a"), ErrNoAttr)

			names, err = attrs.List(2)
			require.NoError(t, err)
			assert.Equal(t, []string{"user.b"}, names)

			names, err = attrs.List(4)
			require.NoError(t, err)
			assert.Empty(t, names)
		})
	}
}

func TestAttrsInvalidName(t *testing.T) {
	attrs := NewAttrs(lstore.NewLocalStore(spruce.NewSpruceDB), ClassXattr)
	assert.ErrorIs(t, attrs.Set(2, "", []byte("v")), ErrInvalidName)
	_, _, err := attrs.Get(2, "a\x00")
	assert.ErrorIs(t, err, ErrInvalidName)
	assert.ErrorIs(t, attrs.Remove(2, ""), ErrInvalidName)
}
