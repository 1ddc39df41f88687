package store

import (
	"context"
	"encoding/json"

	"github.com/grovekv/grove/lib/docpath"
	"github.com/grovekv/grove/lib/provider"
)

// --------------------------------------------------------------------------
// Matcher (tagged union over the two query forms)
// --------------------------------------------------------------------------

// Matcher selects entries either by comparing the value at a path for
// equality or by evaluating a predicate. It is resolved once at the call
// boundary and dispatched to the matching provider method pair.
type Matcher struct {
	path  string
	value json.RawMessage
	fn    provider.Predicate
}

// MatchValue matches entries whose value at path equals value.
func MatchValue(path string, value json.RawMessage) Matcher {
	return Matcher{path: path, value: value}
}

// MatchFn matches entries for which fn resolves true, evaluated against
// the value at path or the whole entry value when path is empty.
func MatchFn(fn provider.Predicate, path string) Matcher {
	return Matcher{path: path, fn: fn}
}

func (m Matcher) validate() error {
	if m.fn == nil && m.value == nil {
		return provider.NewError(provider.KindArgument, "matcher requires a predicate or a path and value")
	}
	return nil
}

// predicate resolves the union into a single predicate form.
func (m Matcher) predicate() provider.Predicate {
	if m.fn != nil {
		return m.fn
	}
	want := m.value
	return func(val json.RawMessage, _ string) (bool, error) {
		return docpath.EqualRaw(val, want), nil
	}
}

// --------------------------------------------------------------------------
// Decoded Scanning
// --------------------------------------------------------------------------

// scanDomain walks all entries in key order, deserializing each before
// handing the value at path to fn. Entries where the path does not
// resolve are skipped. fn returns whether the scan should stop. It backs
// every query when a serialization codec is installed, because the
// provider can only match against encoded documents.
func (s *Store) scanDomain(ctx context.Context, path string, fn func(key string, doc, val json.RawMessage) (bool, error)) error {
	keys, err := s.provider.Keys(ctx)
	if err != nil {
		return err
	}
	for _, key := range keys {
		doc, exists, err := s.loadDomain(ctx, key)
		if err != nil {
			return err
		}
		if !exists {
			continue
		}
		val := doc
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

func (s *Store) findDomain(ctx context.Context, m Matcher) (string, json.RawMessage, bool, error) {
	fn := m.predicate()
	var (
		foundKey string
		foundDoc json.RawMessage
		found    bool
	)
	err := s.scanDomain(ctx, m.path, func(key string, doc, val json.RawMessage) (bool, error) {
		hit, err := fn(val, key)
		if err != nil || !hit {
			return false, err
		}
		foundKey, foundDoc, found = key, doc, true
		return true, nil
	})
	if err != nil {
		return "", nil, false, err
	}
	return foundKey, foundDoc, found, nil
}

// --------------------------------------------------------------------------
// Query Operations
// --------------------------------------------------------------------------

// Find returns the first matching entry in insertion order, deserialized.
// The boolean is false when nothing matched.
func (s *Store) Find(ctx context.Context, m Matcher) (string, json.RawMessage, bool, error) {
	if err := s.awaitReady(ctx); err != nil {
		return "", nil, false, err
	}
	if err := m.validate(); err != nil {
		return "", nil, false, err
	}
	if s.transforms {
		return s.findDomain(ctx, m)
	}

	var (
		key   string
		doc   json.RawMessage
		found bool
		err   error
	)
	if m.fn != nil {
		key, doc, found, err = s.provider.FindByFn(ctx, m.fn, m.path)
	} else {
		key, doc, found, err = s.provider.FindByValue(ctx, m.path, m.value)
	}
	if err != nil || !found {
		return "", nil, false, err
	}
	return key, doc, true, nil
}

// Filter collects all matching entries into a deserialized mapping.
func (s *Store) Filter(ctx context.Context, m Matcher) (map[string]json.RawMessage, error) {
	if err := s.awaitReady(ctx); err != nil {
		return nil, err
	}
	if err := m.validate(); err != nil {
		return nil, err
	}
	if s.transforms {
		fn := m.predicate()
		matches := make(map[string]json.RawMessage)
		err := s.scanDomain(ctx, m.path, func(key string, doc, val json.RawMessage) (bool, error) {
			hit, err := fn(val, key)
			if err != nil {
				return false, err
			}
			if hit {
				matches[key] = doc
			}
			return false, nil
		})
		if err != nil {
			return nil, err
		}
		return matches, nil
	}

	if m.fn != nil {
		return s.provider.FilterByFn(ctx, m.fn, m.path)
	}
	return s.provider.FilterByValue(ctx, m.path, m.value)
}

// Some reports whether at least one entry matches.
func (s *Store) Some(ctx context.Context, m Matcher) (bool, error) {
	if err := s.awaitReady(ctx); err != nil {
		return false, err
	}
	if err := m.validate(); err != nil {
		return false, err
	}
	if s.transforms {
		_, _, found, err := s.findDomain(ctx, m)
		return found, err
	}
	if m.fn != nil {
		return s.provider.SomeByFn(ctx, m.fn, m.path)
	}
	return s.provider.SomeByValue(ctx, m.path, m.value)
}

// Every reports whether every entry matches. An entry where the matcher
// path does not resolve counts as not matching.
func (s *Store) Every(ctx context.Context, m Matcher) (bool, error) {
	if err := s.awaitReady(ctx); err != nil {
		return false, err
	}
	if err := m.validate(); err != nil {
		return false, err
	}
	if s.transforms {
		fn := m.predicate()
		keys, err := s.provider.Keys(ctx)
		if err != nil {
			return false, err
		}
		for _, key := range keys {
			doc, exists, err := s.loadDomain(ctx, key)
			if err != nil {
				return false, err
			}
			if !exists {
				continue
			}
			val := doc
			if m.path != "" {
				v, ok := docpath.GetRaw(doc, m.path)
				if !ok {
					return false, nil
				}
				val = v
			}
			hit, err := fn(val, key)
			if err != nil {
				return false, err
			}
			if !hit {
				return false, nil
			}
		}
		return true, nil
	}
	if m.fn != nil {
		return s.provider.EveryByFn(ctx, m.fn, m.path)
	}
	return s.provider.EveryByValue(ctx, m.path, m.value)
}

// Map transforms the value at path of every entry, in insertion order.
// Values are deserialized before fn sees them.
func (s *Store) Map(ctx context.Context, fn provider.MapFunc, path string) ([]json.RawMessage, error) {
	if err := s.awaitReady(ctx); err != nil {
		return nil, err
	}
	if fn == nil {
		return nil, provider.NewError(provider.KindArgument, "map requires a function")
	}
	if s.transforms {
		var out []json.RawMessage
		err := s.scanDomain(ctx, path, func(key string, doc, val json.RawMessage) (bool, error) {
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
	return s.provider.MapByFn(ctx, fn, path)
}

// MapPath extracts the value at path from every entry, in insertion
// order, deserialized.
func (s *Store) MapPath(ctx context.Context, path string) ([]json.RawMessage, error) {
	return s.Map(ctx, func(value json.RawMessage, _ string) (json.RawMessage, error) {
		return value, nil
	}, path)
}
