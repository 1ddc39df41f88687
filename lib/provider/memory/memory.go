package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/VictoriaMetrics/metrics"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/grovekv/grove/lib/docpath"
	"github.com/grovekv/grove/lib/provider"
)

// --------------------------------------------------------------------------
// Core provider structure
// --------------------------------------------------------------------------

// memoryProvider implements provider.IProvider with a process-local map.
// Entry documents live in a concurrent map; the insertion-ordered key
// index beside it makes scan order deterministic.
type memoryProvider struct {
	name    string
	options map[string]any

	data *xsync.MapOf[string, []byte] // Map of entry documents

	mu    sync.RWMutex // guards order
	order []string     // keys in insertion order

	counter   atomic.Uint64 // auto-increment id source
	destroyed atomic.Bool
}

// New creates a new in-memory provider from the given configuration.
// The Options mapping is retained verbatim but carries no settings the
// in-memory backend acts on.
func New(cfg provider.Config) provider.IProvider {
	return &memoryProvider{
		name:    cfg.Name,
		options: cfg.Options,
		data:    xsync.NewMapOf[string, []byte](),
	}
}

// compile-time conformance checks
var (
	_ provider.IProvider = (*memoryProvider)(nil)
	_ provider.Factory   = New
)

// guard checks the lifecycle state and counts the operation. Every public
// method calls it first.
func (m *memoryProvider) guard(op string) error {
	if m.destroyed.Load() {
		return provider.NewErrorf(provider.KindLifecycle, "provider %q has been destroyed", m.name)
	}
	metrics.GetOrCreateCounter(fmt.Sprintf(`grove_provider_ops_total{provider="memory",name=%q,op=%q}`, m.name, op)).Inc()
	return nil
}

// --------------------------------------------------------------------------
// Lifecycle
// --------------------------------------------------------------------------

func (m *memoryProvider) Init(ctx context.Context) error {
	if m.destroyed.Load() {
		return provider.NewErrorf(provider.KindLifecycle, "provider %q has been destroyed", m.name)
	}
	return nil
}

func (m *memoryProvider) Destroy(ctx context.Context) error {
	if err := m.guard("destroy"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data.Clear()
	m.order = nil
	m.destroyed.Store(true)
	return nil
}

// --------------------------------------------------------------------------
// Write Helpers
// --------------------------------------------------------------------------

// storeEntry inserts or replaces one entry and keeps the order index
// consistent. Caller must hold mu.
func (m *memoryProvider) storeEntry(key string, doc []byte) {
	if _, exists := m.data.Load(key); !exists {
		m.order = append(m.order, key)
	}
	m.data.Store(key, doc)
}

// dropEntry removes one entry and its order index slot. Caller must hold
// mu.
func (m *memoryProvider) dropEntry(key string) {
	if _, exists := m.data.LoadAndDelete(key); !exists {
		return
	}
	for i, k := range m.order {
		if k == key {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}

// mutate loads the entry for key, applies fn to its document and stores
// the result if fn reports a change. fn receives nil when the entry does
// not exist.
func (m *memoryProvider) mutate(key string, fn func(doc json.RawMessage, exists bool) (json.RawMessage, bool, error)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, exists := m.data.Load(key)
	out, changed, err := fn(doc, exists)
	if err != nil {
		return err
	}
	if changed {
		m.storeEntry(key, out)
	}
	return nil
}

// snapshotKeys returns a copy of the insertion-ordered key index.
func (m *memoryProvider) snapshotKeys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, len(m.order))
	copy(keys, m.order)
	return keys
}

func copyDoc(doc []byte) json.RawMessage {
	out := make(json.RawMessage, len(doc))
	copy(out, doc)
	return out
}

// --------------------------------------------------------------------------
// Read Operations
// --------------------------------------------------------------------------

func (m *memoryProvider) Has(ctx context.Context, key, path string) (bool, error) {
	if err := m.guard("has"); err != nil {
		return false, err
	}
	doc, exists := m.data.Load(key)
	if !exists {
		return false, nil
	}
	if path == "" {
		return true, nil
	}
	_, ok := docpath.GetRaw(doc, path)
	return ok, nil
}

func (m *memoryProvider) Get(ctx context.Context, key, path string) (json.RawMessage, bool, error) {
	if err := m.guard("get"); err != nil {
		return nil, false, err
	}
	doc, exists := m.data.Load(key)
	if !exists {
		return nil, false, nil
	}
	if path == "" {
		return copyDoc(doc), true, nil
	}
	val, ok := docpath.GetRaw(doc, path)
	if !ok {
		return nil, false, nil
	}
	return copyDoc(val), true, nil
}

func (m *memoryProvider) GetAll(ctx context.Context) (map[string]json.RawMessage, error) {
	if err := m.guard("getAll"); err != nil {
		return nil, err
	}
	out := make(map[string]json.RawMessage)
	for _, key := range m.snapshotKeys() {
		if doc, exists := m.data.Load(key); exists {
			out[key] = copyDoc(doc)
		}
	}
	return out, nil
}

func (m *memoryProvider) GetMany(ctx context.Context, keys []string) (map[string]json.RawMessage, error) {
	if err := m.guard("getMany"); err != nil {
		return nil, err
	}
	out := make(map[string]json.RawMessage)
	for _, key := range keys {
		if doc, exists := m.data.Load(key); exists {
			out[key] = copyDoc(doc)
		}
	}
	return out, nil
}

func (m *memoryProvider) Random(ctx context.Context, count int) (map[string]json.RawMessage, error) {
	keys, err := m.RandomKey(ctx, count)
	if err != nil {
		return nil, err
	}
	out := make(map[string]json.RawMessage, len(keys))
	for _, key := range keys {
		if doc, exists := m.data.Load(key); exists {
			out[key] = copyDoc(doc)
		}
	}
	return out, nil
}

func (m *memoryProvider) RandomKey(ctx context.Context, count int) ([]string, error) {
	if err := m.guard("randomKey"); err != nil {
		return nil, err
	}
	if count < 0 {
		return nil, provider.NewErrorf(provider.KindArgument, "random sample size %d is negative", count)
	}
	keys := m.snapshotKeys()
	if count > len(keys) {
		return nil, provider.NewErrorf(provider.KindArgument, "random sample size %d exceeds entry count %d", count, len(keys))
	}
	rand.Shuffle(len(keys), func(i, j int) {
		keys[i], keys[j] = keys[j], keys[i]
	})
	return keys[:count], nil
}

func (m *memoryProvider) Keys(ctx context.Context) ([]string, error) {
	if err := m.guard("keys"); err != nil {
		return nil, err
	}
	return m.snapshotKeys(), nil
}

func (m *memoryProvider) Values(ctx context.Context) ([]json.RawMessage, error) {
	if err := m.guard("values"); err != nil {
		return nil, err
	}
	keys := m.snapshotKeys()
	out := make([]json.RawMessage, 0, len(keys))
	for _, key := range keys {
		if doc, exists := m.data.Load(key); exists {
			out = append(out, copyDoc(doc))
		}
	}
	return out, nil
}

func (m *memoryProvider) Count(ctx context.Context) (int, error) {
	if err := m.guard("count"); err != nil {
		return 0, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.order), nil
}

// --------------------------------------------------------------------------
// Write Operations
// --------------------------------------------------------------------------

func (m *memoryProvider) Set(ctx context.Context, key, path string, value json.RawMessage) error {
	if err := m.guard("set"); err != nil {
		return err
	}
	return m.mutate(key, func(doc json.RawMessage, exists bool) (json.RawMessage, bool, error) {
		if path == "" {
			return copyDoc(value), true, nil
		}
		out, err := docpath.SetRaw(doc, path, value)
		if err != nil {
			return nil, false, provider.NewErrorf(provider.KindInternal, "set %q at %q: %v", key, path, err)
		}
		return out, true, nil
	})
}

func (m *memoryProvider) SetMany(ctx context.Context, data map[string]json.RawMessage, overwrite bool) error {
	if err := m.guard("setMany"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, value := range data {
		if !overwrite {
			if _, exists := m.data.Load(key); exists {
				continue
			}
		}
		m.storeEntry(key, copyDoc(value))
	}
	return nil
}

func (m *memoryProvider) Delete(ctx context.Context, key, path string) error {
	if err := m.guard("delete"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if path == "" {
		m.dropEntry(key)
		return nil
	}
	doc, exists := m.data.Load(key)
	if !exists {
		return nil
	}
	out, err := docpath.DeleteRaw(doc, path)
	if err != nil {
		return provider.NewErrorf(provider.KindInternal, "delete %q at %q: %v", key, path, err)
	}
	m.storeEntry(key, out)
	return nil
}

func (m *memoryProvider) DeleteMany(ctx context.Context, keyPaths []string) error {
	for _, keyPath := range keyPaths {
		key, path := docpath.SplitKeyPath(keyPath)
		if err := m.Delete(ctx, key, path); err != nil {
			return err
		}
	}
	return nil
}

func (m *memoryProvider) Clear(ctx context.Context) error {
	if err := m.guard("clear"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data.Clear()
	m.order = nil
	return nil
}

// --------------------------------------------------------------------------
// Array Operations
// --------------------------------------------------------------------------

func (m *memoryProvider) Push(ctx context.Context, key, path string, value json.RawMessage, allowDupes bool) error {
	if err := m.guard("push"); err != nil {
		return err
	}
	return m.mutate(key, func(doc json.RawMessage, exists bool) (json.RawMessage, bool, error) {
		if !exists {
			return nil, false, nil
		}
		out, changed, err := provider.PushDoc(doc, path, value, allowDupes)
		if err != nil {
			return nil, false, provider.NewErrorf(provider.KindInternal, "push %q at %q: %v", key, path, err)
		}
		return out, changed, nil
	})
}

func (m *memoryProvider) Remove(ctx context.Context, key, path string, value json.RawMessage) error {
	return m.removeWhere(ctx, "remove", key, path, func(item json.RawMessage) (bool, error) {
		return docpath.EqualRaw(item, value), nil
	})
}

func (m *memoryProvider) RemoveByFn(ctx context.Context, key, path string, fn provider.Predicate) error {
	return m.removeWhere(ctx, "removeByFn", key, path, func(item json.RawMessage) (bool, error) {
		return fn(item, key)
	})
}

// removeWhere rebuilds the array at (key, path) without the elements the
// match function selects, preserving the order of the kept elements.
func (m *memoryProvider) removeWhere(ctx context.Context, op, key, path string, match func(item json.RawMessage) (bool, error)) error {
	if err := m.guard(op); err != nil {
		return err
	}
	return m.mutate(key, func(doc json.RawMessage, exists bool) (json.RawMessage, bool, error) {
		if !exists {
			return nil, false, nil
		}
		return provider.RemoveDoc(doc, path, match)
	})
}

func (m *memoryProvider) Includes(ctx context.Context, key, path string, value json.RawMessage) (bool, error) {
	if err := m.guard("includes"); err != nil {
		return false, err
	}
	doc, exists := m.data.Load(key)
	if !exists {
		return false, nil
	}
	return provider.IncludesDoc(doc, path, value), nil
}

// --------------------------------------------------------------------------
// Numeric Operations
// --------------------------------------------------------------------------

func (m *memoryProvider) Inc(ctx context.Context, key, path string) error {
	return m.step(ctx, "inc", key, path, 1)
}

func (m *memoryProvider) Dec(ctx context.Context, key, path string) error {
	return m.step(ctx, "dec", key, path, -1)
}

// step adds delta to the numeric value at (key, path), silently doing
// nothing when no numeric value is found there.
func (m *memoryProvider) step(ctx context.Context, op, key, path string, delta float64) error {
	if err := m.guard(op); err != nil {
		return err
	}
	return m.mutate(key, func(doc json.RawMessage, exists bool) (json.RawMessage, bool, error) {
		if !exists {
			return nil, false, nil
		}
		out, changed, err := provider.StepDoc(doc, path, delta)
		if err != nil {
			return nil, false, provider.NewErrorf(provider.KindInternal, "%s %q at %q: %v", op, key, path, err)
		}
		return out, changed, nil
	})
}

func (m *memoryProvider) Math(ctx context.Context, key, path string, op provider.MathOp, operand float64) error {
	if err := m.guard("math"); err != nil {
		return err
	}
	return m.mutate(key, func(doc json.RawMessage, exists bool) (json.RawMessage, bool, error) {
		return provider.MathDoc(doc, path, op, operand, joinKeyPath(key, path))
	})
}

func joinKeyPath(key, path string) string {
	if path == "" {
		return key
	}
	return key + "." + path
}

// --------------------------------------------------------------------------
// Query Operations
// --------------------------------------------------------------------------

// scan walks all entries in insertion order, handing the value at path to
// fn. Entries where the path does not resolve are skipped. fn returns
// whether the scan should stop.
func (m *memoryProvider) scan(ctx context.Context, path string, fn func(key string, doc, val json.RawMessage) (bool, error)) error {
	for _, key := range m.snapshotKeys() {
		if err := ctx.Err(); err != nil {
			return err
		}
		doc, exists := m.data.Load(key)
		if !exists {
			continue
		}
		val := json.RawMessage(doc)
		if path != "" {
			v, ok := docpath.GetRaw(doc, path)
			if !ok {
				continue
			}
			val = v
		}
		stop, err := fn(key, doc, val)
		if err != nil {
			return err
		}
		if stop {
			return nil
		}
	}
	return nil
}

func (m *memoryProvider) FindByFn(ctx context.Context, fn provider.Predicate, path string) (string, json.RawMessage, bool, error) {
	if err := m.guard("findByFn"); err != nil {
		return "", nil, false, err
	}
	return m.find(ctx, path, fn)
}

func (m *memoryProvider) FindByValue(ctx context.Context, path string, value json.RawMessage) (string, json.RawMessage, bool, error) {
	if err := m.guard("findByValue"); err != nil {
		return "", nil, false, err
	}
	return m.find(ctx, path, equalTo(value))
}

func (m *memoryProvider) find(ctx context.Context, path string, fn provider.Predicate) (string, json.RawMessage, bool, error) {
	var (
		foundKey string
		foundDoc json.RawMessage
		found    bool
	)
	err := m.scan(ctx, path, func(key string, doc, val json.RawMessage) (bool, error) {
		hit, err := fn(val, key)
		if err != nil || !hit {
			return false, err
		}
		foundKey, foundDoc, found = key, copyDoc(doc), true
		return true, nil
	})
	if err != nil {
		return "", nil, false, err
	}
	return foundKey, foundDoc, found, nil
}

func (m *memoryProvider) FilterByFn(ctx context.Context, fn provider.Predicate, path string) (map[string]json.RawMessage, error) {
	if err := m.guard("filterByFn"); err != nil {
		return nil, err
	}
	return m.filter(ctx, path, fn)
}

func (m *memoryProvider) FilterByValue(ctx context.Context, path string, value json.RawMessage) (map[string]json.RawMessage, error) {
	if err := m.guard("filterByValue"); err != nil {
		return nil, err
	}
	return m.filter(ctx, path, equalTo(value))
}

func (m *memoryProvider) filter(ctx context.Context, path string, fn provider.Predicate) (map[string]json.RawMessage, error) {
	out := make(map[string]json.RawMessage)
	err := m.scan(ctx, path, func(key string, doc, val json.RawMessage) (bool, error) {
		hit, err := fn(val, key)
		if err != nil {
			return false, err
		}
		if hit {
			out[key] = copyDoc(doc)
		}
		return false, nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (m *memoryProvider) MapByFn(ctx context.Context, fn provider.MapFunc, path string) ([]json.RawMessage, error) {
	if err := m.guard("mapByFn"); err != nil {
		return nil, err
	}
	var out []json.RawMessage
	err := m.scan(ctx, path, func(key string, doc, val json.RawMessage) (bool, error) {
		mapped, err := fn(val, key)
		if err != nil {
			return false, err
		}
		out = append(out, mapped)
		return false, nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (m *memoryProvider) MapByPath(ctx context.Context, path string) ([]json.RawMessage, error) {
	if err := m.guard("mapByPath"); err != nil {
		return nil, err
	}
	var out []json.RawMessage
	err := m.scan(ctx, path, func(key string, doc, val json.RawMessage) (bool, error) {
		out = append(out, copyDoc(val))
		return false, nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (m *memoryProvider) SomeByFn(ctx context.Context, fn provider.Predicate, path string) (bool, error) {
	if err := m.guard("someByFn"); err != nil {
		return false, err
	}
	_, _, found, err := m.find(ctx, path, fn)
	return found, err
}

func (m *memoryProvider) SomeByValue(ctx context.Context, path string, value json.RawMessage) (bool, error) {
	if err := m.guard("someByValue"); err != nil {
		return false, err
	}
	_, _, found, err := m.find(ctx, path, equalTo(value))
	return found, err
}

func (m *memoryProvider) EveryByFn(ctx context.Context, fn provider.Predicate, path string) (bool, error) {
	if err := m.guard("everyByFn"); err != nil {
		return false, err
	}
	return m.every(ctx, path, fn)
}

func (m *memoryProvider) EveryByValue(ctx context.Context, path string, value json.RawMessage) (bool, error) {
	if err := m.guard("everyByValue"); err != nil {
		return false, err
	}
	return m.every(ctx, path, equalTo(value))
}

// every is the universal quantifier over all entries. An entry where the
// path does not resolve counts as not matching, so it fails the test.
func (m *memoryProvider) every(ctx context.Context, path string, fn provider.Predicate) (bool, error) {
	all := true
	seen := 0
	err := m.scan(ctx, path, func(key string, doc, val json.RawMessage) (bool, error) {
		seen++
		hit, err := fn(val, key)
		if err != nil {
			return false, err
		}
		if !hit {
			all = false
			return true, nil
		}
		return false, nil
	})
	if err != nil {
		return false, err
	}
	if path != "" {
		// entries skipped for an unresolved path still count against the
		// universal test
		m.mu.RLock()
		total := len(m.order)
		m.mu.RUnlock()
		if seen < total {
			return false, nil
		}
	}
	return all, nil
}

func equalTo(value json.RawMessage) provider.Predicate {
	return func(val json.RawMessage, _ string) (bool, error) {
		return docpath.EqualRaw(val, value), nil
	}
}

// --------------------------------------------------------------------------
// Identifier Allocation
// --------------------------------------------------------------------------

func (m *memoryProvider) AutoID(ctx context.Context) (string, error) {
	if err := m.guard("autoId"); err != nil {
		return "", err
	}
	return strconv.FormatUint(m.counter.Add(1), 10), nil
}
