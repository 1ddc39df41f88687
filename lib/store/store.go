package store

import (
	"context"
	"encoding/json"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/lni/dragonboat/v4/logger"

	"github.com/grovekv/grove/lib/docpath"
	"github.com/grovekv/grove/lib/provider"
)

// --------------------------------------------------------------------------
// Lifecycle States
// --------------------------------------------------------------------------

const (
	stateInitializing uint32 = iota
	stateReady
	stateDestroyed
)

// --------------------------------------------------------------------------
// Store Handle
// --------------------------------------------------------------------------

// Store is a named handle over one backing provider. All methods are safe
// for concurrent use; each is logically atomic at single-key granularity,
// but composite operations (Update, Ensure) span separate provider calls
// and are subject to read-modify-write races under concurrent writers.
type Store struct {
	name string
	id   string

	provider    provider.IProvider
	serialize   Serializer
	deserialize Deserializer
	transforms  bool
	autoEnsure  json.RawMessage

	ready   chan struct{}
	initErr error
	state   atomic.Uint32

	log logger.ILogger
}

// New creates a store handle for the given namespace name and begins
// initializing its provider in the background. A missing name or an
// invalid provider factory fails synchronously with a configuration
// error; everything the provider's Init reports surfaces on the first
// gated operation.
func New(name string, opts ...Option) (*Store, error) {
	if name == "" {
		return nil, provider.NewError(provider.KindConfig, "store requires a name")
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.factory == nil {
		return nil, provider.NewErrorf(provider.KindConfig, "store %q has no provider factory", name)
	}

	s := &Store{
		name:        name,
		id:          uuid.NewString(),
		serialize:   cfg.serializer,
		deserialize: cfg.deserializer,
		transforms:  cfg.transforms,
		autoEnsure:  cfg.autoEnsure,
		ready:       make(chan struct{}),
		log:         logger.GetLogger("store"),
	}

	s.provider = cfg.factory(provider.Config{
		Name:     name,
		Instance: s,
		Options:  cfg.providerOptions,
	})
	if s.provider == nil {
		return nil, provider.NewErrorf(provider.KindConfig, "provider factory for store %q returned nil", name)
	}

	go s.init()

	return s, nil
}

// init runs the provider's readiness hook and resolves the gate exactly
// once.
func (s *Store) init() {
	if err := s.provider.Init(context.Background()); err != nil {
		s.initErr = provider.NewErrorf(provider.KindInternal, "store %q: provider init: %v", s.name, err)
		s.log.Errorf("store %q (%s): provider init failed: %v", s.name, s.id, err)
	} else {
		s.state.CompareAndSwap(stateInitializing, stateReady)
		s.log.Infof("store %q (%s) ready", s.name, s.id)
	}
	close(s.ready)
}

// Name returns the namespace name the handle was created with.
func (s *Store) Name() string {
	return s.name
}

// awaitReady blocks until the provider's Init has resolved. It fails with
// a lifecycle error once the handle is destroyed and propagates any init
// failure to every subsequent caller.
func (s *Store) awaitReady(ctx context.Context) error {
	if s.state.Load() == stateDestroyed {
		return provider.NewErrorf(provider.KindLifecycle, "store %q has been destroyed", s.name)
	}
	select {
	case <-s.ready:
	case <-ctx.Done():
		return ctx.Err()
	}
	if s.state.Load() == stateDestroyed {
		return provider.NewErrorf(provider.KindLifecycle, "store %q has been destroyed", s.name)
	}
	return s.initErr
}

// Destroy irreversibly tears down the handle and its provider. Every
// later call on the handle fails with a lifecycle error.
func (s *Store) Destroy(ctx context.Context) error {
	if err := s.awaitReady(ctx); err != nil {
		return err
	}
	s.state.Store(stateDestroyed)
	s.log.Infof("store %q (%s) destroyed", s.name, s.id)
	return s.provider.Destroy(ctx)
}

// --------------------------------------------------------------------------
// Whole-Entry Routing
// --------------------------------------------------------------------------

// When a serialization codec is installed (transforms is true), the
// provider holds encoded documents it cannot address into. Path writes,
// array/numeric mutations and queries are then applied on the decoded
// document here and written back as one whole entry, instead of being
// delegated to the provider's path-addressed methods.

// loadDomain reads the whole entry for key and deserializes it.
func (s *Store) loadDomain(ctx context.Context, key string) (json.RawMessage, bool, error) {
	stored, exists, err := s.provider.Get(ctx, key, "")
	if err != nil || !exists {
		return nil, false, err
	}
	doc, err := s.deserialize(stored, key, "")
	if err != nil {
		return nil, false, err
	}
	return doc, true, nil
}

// storeDomain serializes doc and writes it back as the whole entry for
// key.
func (s *Store) storeDomain(ctx context.Context, key string, doc json.RawMessage) error {
	stored, err := s.serialize(doc, key, "")
	if err != nil {
		return err
	}
	return s.provider.Set(ctx, key, "", stored)
}

// --------------------------------------------------------------------------
// Read Operations
// --------------------------------------------------------------------------

// Get returns the value at keyOrPath, or nil when it is absent. When the
// key is missing and an autoEnsure default is configured, that default is
// substituted (deserialized) instead of nil. Deserialization always runs
// on the whole entry first; a sub-path is extracted from the deserialized
// document afterwards.
func (s *Store) Get(ctx context.Context, keyOrPath string) (json.RawMessage, error) {
	if err := s.awaitReady(ctx); err != nil {
		return nil, err
	}
	key, path := docpath.SplitKeyPath(keyOrPath)

	exists, err := s.provider.Has(ctx, key, "")
	if err != nil {
		return nil, err
	}
	if !exists {
		if s.autoEnsure == nil {
			return nil, nil
		}
		def, err := s.deserialize(s.autoEnsure, key, path)
		if err != nil {
			return nil, err
		}
		if path == "" {
			return def, nil
		}
		val, _ := docpath.GetRaw(def, path)
		return val, nil
	}

	stored, _, err := s.provider.Get(ctx, key, "")
	if err != nil {
		return nil, err
	}
	doc, err := s.deserialize(stored, key, path)
	if err != nil {
		return nil, err
	}
	if path == "" {
		return doc, nil
	}
	val, ok := docpath.GetRaw(doc, path)
	if !ok {
		return nil, nil
	}
	return val, nil
}

// Has reports whether keyOrPath resolves to an existing value. By
// contract it never fails on unexpected provider errors: those are
// logged and degrade to false. Only lifecycle errors propagate.
func (s *Store) Has(ctx context.Context, keyOrPath string) (bool, error) {
	if err := s.awaitReady(ctx); err != nil {
		return false, err
	}
	key, path := docpath.SplitKeyPath(keyOrPath)
	if s.transforms && path != "" {
		doc, exists, err := s.loadDomain(ctx, key)
		if err != nil {
			s.log.Warningf("store %q: has(%q) degraded to false: %v", s.name, keyOrPath, err)
			return false, nil
		}
		if !exists {
			return false, nil
		}
		_, ok := docpath.GetRaw(doc, path)
		return ok, nil
	}
	ok, err := s.provider.Has(ctx, key, path)
	if err != nil {
		s.log.Warningf("store %q: has(%q) degraded to false: %v", s.name, keyOrPath, err)
		return false, nil
	}
	return ok, nil
}

// GetAll returns the deserialized full key to value mapping.
func (s *Store) GetAll(ctx context.Context) (map[string]json.RawMessage, error) {
	if err := s.awaitReady(ctx); err != nil {
		return nil, err
	}
	stored, err := s.provider.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	return s.deserializeMap(stored)
}

// GetMany returns the deserialized mapping restricted to the supplied
// keys; keys not present are absent from the result.
func (s *Store) GetMany(ctx context.Context, keys []string) (map[string]json.RawMessage, error) {
	if err := s.awaitReady(ctx); err != nil {
		return nil, err
	}
	stored, err := s.provider.GetMany(ctx, keys)
	if err != nil {
		return nil, err
	}
	return s.deserializeMap(stored)
}

// Random returns count distinct random entries, deserialized.
func (s *Store) Random(ctx context.Context, count int) (map[string]json.RawMessage, error) {
	if err := s.awaitReady(ctx); err != nil {
		return nil, err
	}
	stored, err := s.provider.Random(ctx, count)
	if err != nil {
		return nil, err
	}
	return s.deserializeMap(stored)
}

// RandomKey returns count distinct random keys.
func (s *Store) RandomKey(ctx context.Context, count int) ([]string, error) {
	if err := s.awaitReady(ctx); err != nil {
		return nil, err
	}
	return s.provider.RandomKey(ctx, count)
}

// Keys returns all keys in insertion order.
func (s *Store) Keys(ctx context.Context) ([]string, error) {
	if err := s.awaitReady(ctx); err != nil {
		return nil, err
	}
	return s.provider.Keys(ctx)
}

// Values returns all entry values in insertion order, deserialized.
func (s *Store) Values(ctx context.Context) ([]json.RawMessage, error) {
	if err := s.awaitReady(ctx); err != nil {
		return nil, err
	}
	keys, err := s.provider.Keys(ctx)
	if err != nil {
		return nil, err
	}
	stored, err := s.provider.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]json.RawMessage, 0, len(keys))
	for _, key := range keys {
		v, exists := stored[key]
		if !exists {
			continue
		}
		d, err := s.deserialize(v, key, "")
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

// Count returns the number of entries.
func (s *Store) Count(ctx context.Context) (int, error) {
	if err := s.awaitReady(ctx); err != nil {
		return 0, err
	}
	return s.provider.Count(ctx)
}

func (s *Store) deserializeMap(stored map[string]json.RawMessage) (map[string]json.RawMessage, error) {
	out := make(map[string]json.RawMessage, len(stored))
	for k, v := range stored {
		d, err := s.deserialize(v, k, "")
		if err != nil {
			return nil, err
		}
		out[k] = d
	}
	return out, nil
}

// --------------------------------------------------------------------------
// Write Operations
// --------------------------------------------------------------------------

// Set serializes value and writes it at keyOrPath.
func (s *Store) Set(ctx context.Context, keyOrPath string, value json.RawMessage) error {
	if err := s.awaitReady(ctx); err != nil {
		return err
	}
	key, path := docpath.SplitKeyPath(keyOrPath)
	if s.transforms && path != "" {
		doc, _, err := s.loadDomain(ctx, key)
		if err != nil {
			return err
		}
		out, err := docpath.SetRaw(doc, path, value)
		if err != nil {
			return provider.NewErrorf(provider.KindInternal, "set %q: %v", keyOrPath, err)
		}
		return s.storeDomain(ctx, key, out)
	}
	stored, err := s.serialize(value, key, path)
	if err != nil {
		return err
	}
	return s.provider.Set(ctx, key, path, stored)
}

// SetMany bulk-writes whole entries. With overwrite false, existing keys
// keep their current value.
func (s *Store) SetMany(ctx context.Context, data map[string]json.RawMessage, overwrite bool) error {
	if err := s.awaitReady(ctx); err != nil {
		return err
	}
	stored := make(map[string]json.RawMessage, len(data))
	for k, v := range data {
		sv, err := s.serialize(v, k, "")
		if err != nil {
			return err
		}
		stored[k] = sv
	}
	return s.provider.SetMany(ctx, stored, overwrite)
}

// Delete removes the entry (or only the subtree) at keyOrPath. Absent
// targets are a no-op.
func (s *Store) Delete(ctx context.Context, keyOrPath string) error {
	if err := s.awaitReady(ctx); err != nil {
		return err
	}
	key, path := docpath.SplitKeyPath(keyOrPath)
	if s.transforms && path != "" {
		doc, exists, err := s.loadDomain(ctx, key)
		if err != nil || !exists {
			return err
		}
		out, err := docpath.DeleteRaw(doc, path)
		if err != nil {
			return provider.NewErrorf(provider.KindInternal, "delete %q: %v", keyOrPath, err)
		}
		return s.storeDomain(ctx, key, out)
	}
	return s.provider.Delete(ctx, key, path)
}

// DeleteMany removes a batch of combined "key.path" targets.
func (s *Store) DeleteMany(ctx context.Context, keyPaths []string) error {
	if err := s.awaitReady(ctx); err != nil {
		return err
	}
	if s.transforms {
		for _, keyPath := range keyPaths {
			if err := s.Delete(ctx, keyPath); err != nil {
				return err
			}
		}
		return nil
	}
	return s.provider.DeleteMany(ctx, keyPaths)
}

// Clear removes all entries.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.awaitReady(ctx); err != nil {
		return err
	}
	return s.provider.Clear(ctx)
}

// Update merges the partial value into the existing value at keyOrPath
// and writes the result back. It fails with a data error when there is no
// previous value. The read and write are separate provider calls; see the
// package documentation for the concurrency caveat.
func (s *Store) Update(ctx context.Context, keyOrPath string, partial json.RawMessage) (json.RawMessage, error) {
	return s.UpdateFn(ctx, keyOrPath, func(json.RawMessage) (json.RawMessage, error) {
		return partial, nil
	})
}

// UpdateFn is Update with the partial value computed from the previous
// one.
func (s *Store) UpdateFn(ctx context.Context, keyOrPath string, fn func(prev json.RawMessage) (json.RawMessage, error)) (json.RawMessage, error) {
	prev, err := s.Get(ctx, keyOrPath)
	if err != nil {
		return nil, err
	}
	if prev == nil {
		return nil, provider.NewErrorf(provider.KindData, "update: no value at %q in store %q", keyOrPath, s.name)
	}
	partial, err := fn(prev)
	if err != nil {
		return nil, err
	}
	merged, err := docpath.MergeRaw(prev, partial)
	if err != nil {
		return nil, provider.NewErrorf(provider.KindInternal, "update %q: %v", keyOrPath, err)
	}
	if err := s.Set(ctx, keyOrPath, merged); err != nil {
		return nil, err
	}
	return merged, nil
}

// Ensure returns the existing value at keyOrPath, or sets and returns the
// given default when nothing is there yet.
func (s *Store) Ensure(ctx context.Context, keyOrPath string, def json.RawMessage) (json.RawMessage, error) {
	if err := s.awaitReady(ctx); err != nil {
		return nil, err
	}
	key, path := docpath.SplitKeyPath(keyOrPath)
	var exists bool
	if s.transforms && path != "" {
		doc, found, err := s.loadDomain(ctx, key)
		if err != nil {
			return nil, err
		}
		if found {
			_, exists = docpath.GetRaw(doc, path)
		}
	} else {
		var err error
		exists, err = s.provider.Has(ctx, key, path)
		if err != nil {
			return nil, err
		}
	}
	if exists {
		return s.Get(ctx, keyOrPath)
	}
	if err := s.Set(ctx, keyOrPath, def); err != nil {
		return nil, err
	}
	return def, nil
}

// --------------------------------------------------------------------------
// Array Operations
// --------------------------------------------------------------------------

// Push appends value to the array at keyOrPath. With allowDupes false the
// append is skipped when an equal element is already present.
func (s *Store) Push(ctx context.Context, keyOrPath string, value json.RawMessage, allowDupes bool) error {
	if err := s.awaitReady(ctx); err != nil {
		return err
	}
	key, path := docpath.SplitKeyPath(keyOrPath)
	if s.transforms {
		doc, exists, err := s.loadDomain(ctx, key)
		if err != nil || !exists {
			return err
		}
		out, changed, err := provider.PushDoc(doc, path, value, allowDupes)
		if err != nil || !changed {
			return err
		}
		return s.storeDomain(ctx, key, out)
	}
	stored, err := s.serialize(value, key, path)
	if err != nil {
		return err
	}
	return s.provider.Push(ctx, key, path, stored, allowDupes)
}

// Remove removes all elements equal to value from the array at keyOrPath.
func (s *Store) Remove(ctx context.Context, keyOrPath string, value json.RawMessage) error {
	if err := s.awaitReady(ctx); err != nil {
		return err
	}
	key, path := docpath.SplitKeyPath(keyOrPath)
	if s.transforms {
		return s.removeDomain(ctx, key, path, func(item json.RawMessage) (bool, error) {
			return docpath.EqualRaw(item, value), nil
		})
	}
	stored, err := s.serialize(value, key, path)
	if err != nil {
		return err
	}
	return s.provider.Remove(ctx, key, path, stored)
}

// RemoveByFn removes all elements the predicate selects from the array at
// keyOrPath.
func (s *Store) RemoveByFn(ctx context.Context, keyOrPath string, fn provider.Predicate) error {
	if err := s.awaitReady(ctx); err != nil {
		return err
	}
	key, path := docpath.SplitKeyPath(keyOrPath)
	if s.transforms {
		return s.removeDomain(ctx, key, path, func(item json.RawMessage) (bool, error) {
			return fn(item, key)
		})
	}
	return s.provider.RemoveByFn(ctx, key, path, fn)
}

// removeDomain applies an array removal on the decoded entry.
func (s *Store) removeDomain(ctx context.Context, key, path string, match func(item json.RawMessage) (bool, error)) error {
	doc, exists, err := s.loadDomain(ctx, key)
	if err != nil || !exists {
		return err
	}
	out, changed, err := provider.RemoveDoc(doc, path, match)
	if err != nil || !changed {
		return err
	}
	return s.storeDomain(ctx, key, out)
}

// Includes reports whether the array at keyOrPath contains value.
func (s *Store) Includes(ctx context.Context, keyOrPath string, value json.RawMessage) (bool, error) {
	if err := s.awaitReady(ctx); err != nil {
		return false, err
	}
	key, path := docpath.SplitKeyPath(keyOrPath)
	if s.transforms {
		doc, exists, err := s.loadDomain(ctx, key)
		if err != nil || !exists {
			return false, err
		}
		return provider.IncludesDoc(doc, path, value), nil
	}
	stored, err := s.serialize(value, key, path)
	if err != nil {
		return false, err
	}
	return s.provider.Includes(ctx, key, path, stored)
}

// --------------------------------------------------------------------------
// Numeric Operations
// --------------------------------------------------------------------------

// Inc increments the numeric value at keyOrPath by one.
func (s *Store) Inc(ctx context.Context, keyOrPath string) error {
	return s.step(ctx, keyOrPath, 1)
}

// Dec decrements the numeric value at keyOrPath by one.
func (s *Store) Dec(ctx context.Context, keyOrPath string) error {
	return s.step(ctx, keyOrPath, -1)
}

func (s *Store) step(ctx context.Context, keyOrPath string, delta float64) error {
	if err := s.awaitReady(ctx); err != nil {
		return err
	}
	key, path := docpath.SplitKeyPath(keyOrPath)
	if s.transforms {
		doc, exists, err := s.loadDomain(ctx, key)
		if err != nil || !exists {
			return err
		}
		out, changed, err := provider.StepDoc(doc, path, delta)
		if err != nil || !changed {
			return err
		}
		return s.storeDomain(ctx, key, out)
	}
	if delta < 0 {
		return s.provider.Dec(ctx, key, path)
	}
	return s.provider.Inc(ctx, key, path)
}

// Math applies the named operation to the numeric value at keyOrPath.
func (s *Store) Math(ctx context.Context, keyOrPath string, op provider.MathOp, operand float64) error {
	if err := s.awaitReady(ctx); err != nil {
		return err
	}
	key, path := docpath.SplitKeyPath(keyOrPath)
	if s.transforms {
		doc, _, err := s.loadDomain(ctx, key)
		if err != nil {
			return err
		}
		out, changed, err := provider.MathDoc(doc, path, op, operand, keyOrPath)
		if err != nil || !changed {
			return err
		}
		return s.storeDomain(ctx, key, out)
	}
	return s.provider.Math(ctx, key, path, op, operand)
}

// --------------------------------------------------------------------------
// Identifier Allocation
// --------------------------------------------------------------------------

// AutoID allocates the next identifier from the provider.
func (s *Store) AutoID(ctx context.Context) (string, error) {
	if err := s.awaitReady(ctx); err != nil {
		return "", err
	}
	return s.provider.AutoID(ctx)
}

// --------------------------------------------------------------------------
// Batch Construction
// --------------------------------------------------------------------------

// Multi creates one store handle per name, sharing all other options.
func Multi(names []string, opts ...Option) (map[string]*Store, error) {
	if len(names) == 0 {
		return nil, provider.NewError(provider.KindConfig, "multi requires at least one name")
	}
	out := make(map[string]*Store, len(names))
	for _, name := range names {
		s, err := New(name, opts...)
		if err != nil {
			return nil, err
		}
		out[name] = s
	}
	return out, nil
}
