package xattr

import (
	"errors"
	"fmt"

	"github.com/ValentinKolb/xkv/lib/store"
)

// ErrNoAttr is returned by Remove for an attribute that is not set.
var ErrNoAttr = errors.New("no such attribute")

// Attrs reads and writes single attributes through a blocking store.
// All keys use the class of the Attrs.
type Attrs struct {
	store store.IStore
	class byte
}

// NewAttrs returns the attributes of class stored in s
func NewAttrs(s store.IStore, class byte) *Attrs {
	return &Attrs{store: s, class: class}
}

// Set stores value as the attribute name of owner, replacing any previous value.
func (a *Attrs) Set(owner uint64, name string, value []byte) error {
	k, err := NewKey(owner, a.class, name)
	if err != nil {
		return err
	}
	return a.store.Set(k.Encode(), value)
}

// Get returns the value of an attribute and whether it is set.
func (a *Attrs) Get(owner uint64, name string) ([]byte, bool, error) {
	k, err := NewKey(owner, a.class, name)
	if err != nil {
		return nil, false, err
	}
	return a.store.Get(k.Encode())
}

// List returns the names of all attributes of owner in key order.
// Stores without scan support fail with store.RetCUnsupportedOperation.
func (a *Attrs) List(owner uint64) ([]string, error) {
	pairs, err := a.store.Scan(Prefix(owner, a.class))
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(pairs))
	for _, p := range pairs {
		k, err := Decode(p.Key)
		if err != nil {
			return nil, fmt.Errorf("listing attributes of %d: %w", owner, err)
		}
		names = append(names, k.Name())
	}
	return names, nil
}

// Remove deletes an attribute. It fails with ErrNoAttr if the attribute is not set.
func (a *Attrs) Remove(owner uint64, name string) error {
	k, err := NewKey(owner, a.class, name)
	if err != nil {
		return err
	}

	key := k.Encode()
	ok, err := a.store.Has(key)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s of %d", ErrNoAttr, name, owner)
	}
	return a.store.Delete(key)
}
