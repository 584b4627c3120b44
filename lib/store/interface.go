package store

import (
	"fmt"

	"github.com/ValentinKolb/xkv/lib/db"
)

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// DBFactory is a function type that creates a new db used by the store.
// This is used to abstract the creation of the db from the store implementation.
type DBFactory func() db.KVDB

// KV is a single key-value pair as returned by IStore.Scan.
type KV struct {
	Key   []byte
	Value []byte
}

// IStore is the generic synchronous interface for interacting with a key–value store.
// Keys are raw byte strings and compared byte by byte.
// All write operations return only an error (nil on success),
// while read operations return the requested data along with an error (nil on success).
type IStore interface {
	// Set inserts or updates a key–value pair. An existing value is always overwritten.
	Set(key []byte, value []byte) (err error)
	// Delete deletes a key–value pair. The key should be removed from the store.
	Delete(key []byte) (err error)
	// Get return the value for a key. The boolean return value indicates whether a value for the key was found.
	Get(key []byte) (value []byte, loaded bool, err error)
	// Has returns whether a key exists in the store.
	Has(key []byte) (loaded bool, err error)
	// Scan returns all pairs whose key starts with prefix, sorted by key.
	// Stores that can't enumerate keys return an *Error with RetCUnsupportedOperation.
	Scan(prefix []byte) (pairs []KV, err error)
	// GetDBInfo returns metadata about the database underlying the store.
	// It is not guaranteed that all fields are filled in or that the information is up-to-date!
	GetDBInfo() (info db.DatabaseInfo, err error)
}

// --------------------------------------------------------------------------
// Custom Error Type
// --------------------------------------------------------------------------

// Error is a custom error type that wraps a return code (of type RetCode)
// and an error message.
type Error struct {
	Code RetCode // The return code
	Msg  string  // The error message.
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("KVStoreError (code %s): %s", e.Code, e.Msg)
}

// NewError creates a new KVStoreError with the given code and message.
func NewError(code RetCode, msg string) *Error {
	return &Error{
		Code: code,
		Msg:  msg,
	}
}

// --------------------------------------------------------------------------
// Return Codes
// --------------------------------------------------------------------------

type RetCode uint64

const (
	RetCSuccess              RetCode = iota // 0: Command executed successfully.
	RetCInternalError                       // 1: Command failed due to an internal error.
	RetCUnsupportedOperation                // 2: Operation is not supported by underlying database.
	RetCInvalidOperation                    // 3: Invalid operation.
	RetCTimeout                             // 4: The store did not answer in time.
	RetCUnavailable                         // 5: The store is closed or not reachable.
)

func (c RetCode) String() string {
	switch c {
	case RetCSuccess:
		return "Success"
	case RetCInternalError:
		return "InternalError"
	case RetCUnsupportedOperation:
		return "UnsupportedOperation"
	case RetCInvalidOperation:
		return "InvalidOperation"
	case RetCTimeout:
		return "Timeout"
	case RetCUnavailable:
		return "Unavailable"
	default:
		return fmt.Sprintf("Unknown(%d)", uint64(c))
	}
}
