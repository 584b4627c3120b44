package db

import "io"

// --------------------------------------------------------------------------
// Helper Types
// --------------------------------------------------------------------------

type Implementation string

const (
	ImplMaple  Implementation = "maple"
	ImplSpruce Implementation = "spruce"

	// remote backends reported by stores that are not backed by a KVDB
	ImplDynamoDB Implementation = "dynamodb"
	ImplObject   Implementation = "object"
)

// Feature represents database features as bit flags
type Feature uint64

const (
	FeatureSet         Feature = 1 << iota // Support for Set operations
	FeatureGet                             // Support for Get operations
	FeatureDelete                          // Support for Delete operations
	FeatureHas                             // Support for Has operations
	FeatureScan                            // Support for prefix Scan operations
	FeatureOrderedScan                     // Scan visits keys in ascending byte order
	FeatureSave                            // Support for Save operations
	FeatureLoad                            // Support for Load operations
)

func (f Feature) String() string {
	switch f {
	case FeatureSet:
		return "Set"
	case FeatureGet:
		return "Get"
	case FeatureDelete:
		return "Delete"
	case FeatureHas:
		return "Has"
	case FeatureScan:
		return "Scan"
	case FeatureOrderedScan:
		return "OrderedScan"
	case FeatureSave:
		return "Save"
	case FeatureLoad:
		return "Load"
	default:
		return "Unknown"
	}
}

type DatabaseInfo struct {
	SizeBytes         int            `json:"size_bytes"`
	Entries           int            `json:"entries"`
	DbType            Implementation `json:"db_type"`
	SupportedFeatures []Feature      `json:"supported_features"`
	Metadata          interface{}    `json:"metadata"`
}

// --------------------------------------------------------------------------
// Database Interface
// --------------------------------------------------------------------------

// KVDB defines an interface for key-value database implementations.
// Keys are arbitrary byte strings held in a Go string, they are compared byte by byte.
// Implementations can vary in their feature support, which can be queried with SupportsFeature.
type KVDB interface {

	// --------------------------------------------------------------------------
	// Write Operations
	// --------------------------------------------------------------------------

	// Set inserts or updates an entry with the given key, value, and writeIndex.
	// If the key already exists, the old value is overwritten.
	// The writeIndex parameter is used as a logical timestamp for the entry.
	// The database stores a copy of value, the caller may reuse the slice afterward.
	Set(key string, value []byte, writeIndex uint64)

	// Delete removes an entry with the specified key.
	// The key should be removed from the database and not be findable anymore.
	Delete(key string, writeIndex uint64)

	// --------------------------------------------------------------------------
	// Query Operations
	// --------------------------------------------------------------------------

	// Get retrieves the value for an exact key.
	// The boolean return value indicates whether a value for the key was found.
	// The returned value is a copy and safe to modify.
	Get(key string) (value []byte, loaded bool)

	// Has checks whether a key exists in the database.
	Has(key string) (loaded bool)

	// Scan calls fn for every entry whose key starts with prefix until fn returns false.
	// Implementations supporting FeatureOrderedScan visit the keys in ascending order.
	// The value passed to fn must not be retained or modified.
	Scan(prefix string, fn func(key string, value []byte) bool)

	// --------------------------------------------------------------------------
	// Persistence Operations
	// --------------------------------------------------------------------------

	// Save persists the current state of the database to the provided io.Writer.
	Save(w io.Writer) (err error)

	// Load restores the database state data provided by an io.Reader.
	Load(r io.Reader) (err error)

	// --------------------------------------------------------------------------
	// Feature Support
	// --------------------------------------------------------------------------

	// SupportsFeature checks if the database implementation supports the specified feature.
	// Returns true if the feature is supported, false otherwise.
	// Multiple features can be checked at once using bitwise OR (|) operator.
	SupportsFeature(feature Feature) (ok bool)

	// GetInfo returns information about the database.
	GetInfo() (info DatabaseInfo)

	// --------------------------------------------------------------------------
	// Write Index Operations
	// --------------------------------------------------------------------------

	// SetWriteIdx sets the current index of the database only if the provided index is greater than the current index.
	SetWriteIdx(index uint64)

	// WriteIdx returns the current index of the database .
	WriteIdx() (index uint64)

	// Close closes the database.
	Close() (err error)
}

// FeatureList expands a feature bit set into its single features.
func FeatureList(set Feature) []Feature {
	var out []Feature
	for f := FeatureSet; f <= FeatureLoad; f <<= 1 {
		if set&f == f {
			out = append(out, f)
		}
	}
	return out
}
