package provider

import (
	"context"
	"encoding/json"
)

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// Config is the single configuration object passed to every provider
// constructor. Options is opaque to the store façade and handed through
// verbatim; Instance is a back-reference to the owning store handle.
type Config struct {
	Name     string
	Instance any
	Options  map[string]any
}

// Factory is a function type that creates a new provider from its
// configuration. This is used to abstract the creation of the backend
// from the store implementation.
type Factory func(cfg Config) IProvider

// Predicate is a user-supplied matcher evaluated against the value at a
// path (or the whole entry value if no path is given). Returning an error
// aborts the surrounding scan.
type Predicate func(value json.RawMessage, key string) (bool, error)

// MapFunc transforms one entry value into an arbitrary raw JSON value.
type MapFunc func(value json.RawMessage, key string) (json.RawMessage, error)

// IProvider is the generic interface every grove backend implements.
//
// Values are raw JSON documents. The path parameter of an operation
// addresses a nested location inside one entry's document (see the
// docpath package); the empty path addresses the whole document.
//
// Shared edge-case policy for all path-based read operations: a path that
// does not resolve inside an entry makes that entry count as "no match"
// rather than raising an error. Get is the one exception and reports the
// miss through its boolean return.
type IProvider interface {

	// --------------------------------------------------------------------------
	// Lifecycle
	// --------------------------------------------------------------------------

	// Init prepares the provider for use. No other method may be called
	// before Init has returned without error.
	Init(ctx context.Context) error

	// Destroy irreversibly tears the provider down and removes all
	// entries. The instance is not reusable afterwards.
	Destroy(ctx context.Context) error

	// --------------------------------------------------------------------------
	// Read Operations
	// --------------------------------------------------------------------------

	// Has reports whether key exists (empty path) or the path resolves
	// inside the entry's value.
	Has(ctx context.Context, key, path string) (bool, error)

	// Get returns the value at path, or the whole entry value if the path
	// is empty. The boolean is false when the key is absent or the path
	// does not resolve; that is never an error.
	Get(ctx context.Context, key, path string) (json.RawMessage, bool, error)

	// GetAll returns a snapshot of the full key to value mapping.
	GetAll(ctx context.Context) (map[string]json.RawMessage, error)

	// GetMany returns the mapping restricted to the supplied keys. Keys
	// not present in the provider are absent from the result.
	GetMany(ctx context.Context, keys []string) (map[string]json.RawMessage, error)

	// Random returns count distinct random entries, sampled without
	// replacement. Asking for more entries than the provider holds is an
	// argument error.
	Random(ctx context.Context, count int) (map[string]json.RawMessage, error)

	// RandomKey samples count distinct random keys without replacement.
	RandomKey(ctx context.Context, count int) ([]string, error)

	// Keys returns all keys in insertion order.
	Keys(ctx context.Context) ([]string, error)

	// Values returns all entry values in insertion order.
	Values(ctx context.Context) ([]json.RawMessage, error)

	// Count returns the number of entries.
	Count(ctx context.Context) (int, error)

	// --------------------------------------------------------------------------
	// Write Operations
	// --------------------------------------------------------------------------

	// Set replaces the whole entry (empty path) or only the subtree at
	// path, creating the entry and intermediate containers as needed.
	Set(ctx context.Context, key, path string, value json.RawMessage) error

	// SetMany performs a bulk Set with an empty path for each pair. With
	// overwrite false, keys already present keep their current value.
	SetMany(ctx context.Context, data map[string]json.RawMessage, overwrite bool) error

	// Delete removes the whole entry (empty path) or only the field or
	// index at path. Deleting an absent key or unresolved path is a no-op.
	Delete(ctx context.Context, key, path string) error

	// DeleteMany deletes a batch of combined "key.path" strings, each
	// resolved with docpath.SplitKeyPath.
	DeleteMany(ctx context.Context, keyPaths []string) error

	// Clear removes all entries.
	Clear(ctx context.Context) error

	// --------------------------------------------------------------------------
	// Array Operations
	// --------------------------------------------------------------------------

	// Push appends value to the array at (key, path). With allowDupes
	// false the append is skipped when an equal element already exists.
	// A no-op if the target is absent or not an array.
	Push(ctx context.Context, key, path string, value json.RawMessage, allowDupes bool) error

	// Remove removes all elements equal to value from the array at
	// (key, path), preserving the order of the surviving elements. A
	// no-op if the target is absent or not an array.
	Remove(ctx context.Context, key, path string, value json.RawMessage) error

	// RemoveByFn removes all elements for which fn returns true.
	RemoveByFn(ctx context.Context, key, path string, fn Predicate) error

	// Includes reports whether the array at (key, path) contains an
	// element equal to value. False if the target is absent or not an
	// array.
	Includes(ctx context.Context, key, path string, value json.RawMessage) (bool, error)

	// --------------------------------------------------------------------------
	// Numeric Operations
	// --------------------------------------------------------------------------

	// Inc increments the numeric value at (key, path) by one. Silently a
	// no-op when no numeric value is found.
	Inc(ctx context.Context, key, path string) error

	// Dec decrements the numeric value at (key, path) by one. Silently a
	// no-op when no numeric value is found.
	Dec(ctx context.Context, key, path string) error

	// Math applies op with the given operand to the numeric value at
	// (key, path). Unlike Inc and Dec this fails with an operand error
	// when no numeric value is found. An unknown operation leaves the
	// value unchanged.
	Math(ctx context.Context, key, path string, op MathOp, operand float64) error

	// --------------------------------------------------------------------------
	// Query Operations
	// --------------------------------------------------------------------------

	// FindByFn scans entries in insertion order and returns the first
	// entry whose value at path satisfies fn. The boolean is false when
	// nothing matched.
	FindByFn(ctx context.Context, fn Predicate, path string) (string, json.RawMessage, bool, error)

	// FindByValue is FindByFn with an equality comparison against value.
	FindByValue(ctx context.Context, path string, value json.RawMessage) (string, json.RawMessage, bool, error)

	// FilterByFn collects all entries whose value at path satisfies fn.
	FilterByFn(ctx context.Context, fn Predicate, path string) (map[string]json.RawMessage, error)

	// FilterByValue collects all entries whose value at path equals value.
	FilterByValue(ctx context.Context, path string, value json.RawMessage) (map[string]json.RawMessage, error)

	// MapByFn transforms the value at path of every entry, in insertion
	// order. Entries where the path does not resolve are skipped.
	MapByFn(ctx context.Context, fn MapFunc, path string) ([]json.RawMessage, error)

	// MapByPath extracts the value at path from every entry, in insertion
	// order. Entries where the path does not resolve are skipped.
	MapByPath(ctx context.Context, path string) ([]json.RawMessage, error)

	// SomeByFn reports whether at least one entry's value at path
	// satisfies fn.
	SomeByFn(ctx context.Context, fn Predicate, path string) (bool, error)

	// SomeByValue reports whether at least one entry's value at path
	// equals value.
	SomeByValue(ctx context.Context, path string, value json.RawMessage) (bool, error)

	// EveryByFn reports whether every entry's value at path satisfies fn.
	// An entry where the path does not resolve counts as not matching.
	EveryByFn(ctx context.Context, fn Predicate, path string) (bool, error)

	// EveryByValue reports whether every entry's value at path equals
	// value.
	EveryByValue(ctx context.Context, path string, value json.RawMessage) (bool, error)

	// --------------------------------------------------------------------------
	// Identifier Allocation
	// --------------------------------------------------------------------------

	// AutoID allocates the next identifier. Identifiers are strictly
	// increasing decimal strings starting at "1" and are never reused
	// within one provider lifetime, even across deletions.
	AutoID(ctx context.Context) (string, error)
}
