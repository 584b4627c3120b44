package xattr

import (
	"bytes"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewKeyNameLength(t *testing.T) {
	_, err := NewKey(1, ClassXattr, strings.Repeat("a", NameCapacity))
	require.NoError(t, err)

	_, err = NewKey(1, ClassXattr, strings.Repeat("a", NameCapacity+1))
	require.ErrorIs(t, err, ErrInvalidName)

	_, err = NewKey(1, ClassXattr, "")
	require.ErrorIs(t, err, ErrInvalidName)

	_, err = NewKey(1, ClassXattr, "a\x00b")
	require.ErrorIs(t, err, ErrInvalidName)
}

func TestEncodeLayout(t *testing.T) {
	k, err := NewKey(0x0102030405060708, ClassXattr, "user.mime")
	require.NoError(t, err)

	buf := k.Encode()
	require.Len(t, buf, EncodedSize)
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8}, buf[:8])
	assert.Equal(t, ClassXattr, buf[8])
	assert.Equal(t, []byte("user.mime"), buf[PrefixSize:PrefixSize+9])
	assert.Equal(t, make([]byte, NameCapacity-9), buf[PrefixSize+9:])
	assert.True(t, bytes.HasPrefix(buf, Prefix(k.Owner(), k.Class())))
}

func TestEncodeToPadsDirtyBuffer(t *testing.T) {
	k, err := NewKey(42, ClassXattr, "short")
	require.NoError(t, err)

	dst := bytes.Repeat([]byte{0xff}, EncodedSize+10)
	n := k.EncodeTo(dst)
	assert.Equal(t, EncodedSize, n)
	assert.Equal(t, k.Encode(), dst[:EncodedSize])
	assert.Equal(t, byte(0xff), dst[EncodedSize], "bytes past the key are untouched")

	assert.Panics(t, func() { k.EncodeTo(make([]byte, EncodedSize-1)) })
}

func TestEncodeDeterministic(t *testing.T) {
	a, _ := NewKey(7, ClassXattr, "1name_of_key_3")
	b, _ := NewKey(7, ClassXattr, "1name_of_key_3")
	assert.Equal(t, a.Encode(), b.Encode())

	// any differing component gives a different key
	for _, other := range []struct {
		owner uint64
		class byte
		name  string
	}{
		{8, ClassXattr, "1name_of_key_3"},
		{7, 'x', "1name_of_key_3"},
		{7, ClassXattr, "1name_of_key_30"},
		{7, ClassXattr, "1name_of_key_"},
	} {
		c, err := NewKey(other.owner, other.class, other.name)
		require.NoError(t, err)
		assert.NotEqual(t, a.Encode(), c.Encode(), "%v", c)
	}
}

func TestDecodeRoundTrip(t *testing.T) {
	for _, name := range []string{"a", "user.comment", strings.Repeat("z", NameCapacity)} {
		k, err := NewKey(^uint64(0), ClassXattr, name)
		require.NoError(t, err)

		d, err := Decode(k.Encode())
		require.NoError(t, err)
		assert.Equal(t, k, d)
		assert.Equal(t, name, d.Name())
	}
}

func TestDecodeErrors(t *testing.T) {
	_, err := Decode(make([]byte, EncodedSize-1))
	assert.ErrorIs(t, err, ErrInvalidKey)

	// empty name
	_, err = Decode(make([]byte, EncodedSize))
	assert.ErrorIs(t, err, ErrInvalidKey)

	// garbage after the padding
	k, _ := NewKey(1, ClassXattr, "name")
	buf := k.Encode()
	buf[EncodedSize-1] = 'x'
	_, err = Decode(buf)
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestKeysSortByOwner(t *testing.T) {
	owners := []uint64{258, 1, 255, 256, 0, 1 << 40}
	encoded := make([][]byte, len(owners))
	for i, o := range owners {
		k, err := NewKey(o, ClassXattr, "n")
		require.NoError(t, err)
		encoded[i] = k.Encode()
	}
	sort.Slice(encoded, func(i, j int) bool { return bytes.Compare(encoded[i], encoded[j]) < 0 })

	var got []uint64
	for _, buf := range encoded {
		k, err := Decode(buf)
		require.NoError(t, err)
		got = append(got, k.Owner())
	}
	assert.Equal(t, []uint64{0, 1, 255, 256, 258, 1 << 40}, got)
}

func TestString(t *testing.T) {
	k, _ := NewKey(5, ClassXattr, "user.tag")
	assert.Equal(t, "5/7/user.tag", k.String())
}
