package xattr

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	// NameCapacity is the fixed width of the name field
	NameCapacity = 256

	ownerSize = 8
	classSize = 1

	// EncodedSize is the size of every encoded key
	EncodedSize = ownerSize + classSize + NameCapacity

	// PrefixSize is the size of the (owner, class) prefix returned by Prefix
	PrefixSize = ownerSize + classSize
)

// Class tags
const (
	ClassXattr byte = '7' // extended attribute of an inode
)

var (
	// ErrInvalidName is returned if a name is empty, contains a NUL byte or exceeds NameCapacity.
	ErrInvalidName = errors.New("invalid attribute name")
	// ErrInvalidKey is returned by Decode for buffers that are not an encoded key.
	ErrInvalidKey = errors.New("invalid encoded key")
)

// StructuredKey addresses one attribute of one owner.
// It is immutable once created by NewKey.
type StructuredKey struct {
	owner uint64
	class byte
	name  [NameCapacity]byte
	n     int // length of the name without padding
}

// NewKey creates a key for the attribute name of the given owner and class.
func NewKey(owner uint64, class byte, name string) (StructuredKey, error) {
	if err := ValidateName(name); err != nil {
		return StructuredKey{}, err
	}
	k := StructuredKey{owner: owner, class: class, n: len(name)}
	copy(k.name[:], name)
	return k, nil
}

// ValidateName checks whether name fits into the fixed name field.
func ValidateName(name string) error {
	switch {
	case len(name) == 0:
		return fmt.Errorf("%w: name is empty", ErrInvalidName)
	case len(name) > NameCapacity:
		return fmt.Errorf("%w: name is %d bytes long, at most %d bytes are allowed", ErrInvalidName, len(name), NameCapacity)
	case bytes.IndexByte([]byte(name), 0) >= 0:
		return fmt.Errorf("%w: name contains a NUL byte", ErrInvalidName)
	}
	return nil
}

func (k StructuredKey) Owner() uint64 { return k.owner }

func (k StructuredKey) Class() byte { return k.class }

// Name returns the name without the zero padding
func (k StructuredKey) Name() string { return string(k.name[:k.n]) }

// Encode returns a newly allocated buffer holding the encoded key.
func (k StructuredKey) Encode() []byte {
	buf := make([]byte, EncodedSize)
	k.EncodeTo(buf)
	return buf
}

// EncodeTo writes the encoded key into dst, which must be at least EncodedSize bytes long.
// The name field is zero padded explicitly, dst does not have to be zeroed.
func (k StructuredKey) EncodeTo(dst []byte) int {
	_ = dst[EncodedSize-1] // bounds check
	binary.BigEndian.PutUint64(dst[:ownerSize], k.owner)
	dst[ownerSize] = k.class
	copy(dst[PrefixSize:EncodedSize], k.name[:])
	return EncodedSize
}

func (k StructuredKey) String() string {
	return fmt.Sprintf("%d/%c/%s", k.owner, k.class, k.Name())
}

// Decode parses an encoded key
func Decode(buf []byte) (StructuredKey, error) {
	if len(buf) != EncodedSize {
		return StructuredKey{}, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidKey, EncodedSize, len(buf))
	}
	k := StructuredKey{
		owner: binary.BigEndian.Uint64(buf[:ownerSize]),
		class: buf[ownerSize],
	}
	copy(k.name[:], buf[PrefixSize:])

	// the name ends at the first padding byte, everything after it has to be padding as well
	k.n = bytes.IndexByte(k.name[:], 0)
	if k.n < 0 {
		k.n = NameCapacity
	}
	if k.n == 0 {
		return StructuredKey{}, fmt.Errorf("%w: empty name", ErrInvalidKey)
	}
	for _, b := range k.name[k.n:] {
		if b != 0 {
			return StructuredKey{}, fmt.Errorf("%w: name field is not zero padded", ErrInvalidKey)
		}
	}
	return k, nil
}

// Prefix returns the encoded (owner, class) prefix shared by all keys of an owner and class.
func Prefix(owner uint64, class byte) []byte {
	buf := make([]byte, PrefixSize)
	binary.BigEndian.PutUint64(buf[:ownerSize], owner)
	buf[ownerSize] = class
	return buf
}
