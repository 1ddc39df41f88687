package codec

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/grovekv/grove/lib/docpath"
	"github.com/grovekv/grove/lib/provider"
	"github.com/grovekv/grove/lib/store"
)

func newGZipStore(t *testing.T, name string) *store.Store {
	t.Helper()
	ser, deser := GZip()
	s, err := store.New(name,
		store.WithSerializer(ser),
		store.WithDeserializer(deser),
	)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = s.Destroy(context.Background()) })
	return s
}

func TestGZipRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newGZipStore(t, "gzip-roundtrip")

	doc := json.RawMessage(`{"name":"test","items":[1,2,3],"nested":{"flag":true}}`)
	if err := s.Set(ctx, "entry", doc); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	got, err := s.Get(ctx, "entry")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !docpath.EqualRaw(got, doc) {
		t.Errorf("round trip mismatch: got %s, want %s", got, doc)
	}
}

func TestGZipStoredShape(t *testing.T) {
	ctx := context.Background()
	ser, _ := GZip()
	s := newGZipStore(t, "gzip-shape")

	doc := json.RawMessage(`{"payload":"` + strings.Repeat("x", 512) + `"}`)
	if err := s.Set(ctx, "entry", doc); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	// the provider holds the envelope, not the plain document
	stored, err := ser(doc, "entry", "")
	if err != nil {
		t.Fatalf("serialize failed: %v", err)
	}
	var env struct {
		GZ string `json:"$gz"`
	}
	if err := json.Unmarshal(stored, &env); err != nil {
		t.Fatalf("stored value is not an envelope: %v", err)
	}
	if env.GZ == "" {
		t.Errorf("envelope carries no compressed payload: %s", stored)
	}
	if len(stored) >= len(doc) {
		t.Errorf("compression did not shrink a repetitive document: %d >= %d", len(stored), len(doc))
	}
}

func TestGZipPassThroughOnPlainValues(t *testing.T) {
	_, deser := GZip()

	for _, raw := range []string{`{"a":1}`, `"text"`, `42`, `[1,2]`, `null`} {
		got, err := deser(json.RawMessage(raw), "k", "")
		if err != nil {
			t.Fatalf("deserialize(%s) failed: %v", raw, err)
		}
		if string(got) != raw {
			t.Errorf("deserialize(%s) = %s, want pass-through", raw, got)
		}
	}
}

func TestGZipSubPathWrites(t *testing.T) {
	ctx := context.Background()
	s := newGZipStore(t, "gzip-subpath")

	if err := s.Set(ctx, "k", json.RawMessage(`{"a":1}`)); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := s.Set(ctx, "k.b", json.RawMessage(`2`)); err != nil {
		t.Fatalf("sub-path Set failed: %v", err)
	}

	got, err := s.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !docpath.EqualRaw(got, json.RawMessage(`{"a":1,"b":2}`)) {
		t.Errorf("sub-path write lost: got %s, want {\"a\":1,\"b\":2}", got)
	}
	if got, _ = s.Get(ctx, "k.b"); string(got) != `2` {
		t.Errorf("Get(k.b) = %s", got)
	}
	if ok, err := s.Has(ctx, "k.b"); err != nil || !ok {
		t.Errorf("Has(k.b) = %v, %v", ok, err)
	}

	// a sub-path write on an absent key creates the entry, compressed
	if err := s.Set(ctx, "fresh.nested.n", json.RawMessage(`1`)); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if got, _ = s.Get(ctx, "fresh.nested.n"); string(got) != `1` {
		t.Errorf("Get(fresh.nested.n) = %s", got)
	}

	if err := s.Delete(ctx, "k.a"); err != nil {
		t.Fatalf("sub-path Delete failed: %v", err)
	}
	if got, _ = s.Get(ctx, "k"); !docpath.EqualRaw(got, json.RawMessage(`{"b":2}`)) {
		t.Errorf("sub-path delete: got %s, want {\"b\":2}", got)
	}
}

func TestGZipArrayAndNumericOps(t *testing.T) {
	ctx := context.Background()
	s := newGZipStore(t, "gzip-ops")

	if err := s.Set(ctx, "doc", json.RawMessage(`{"tags":["a"],"n":10}`)); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	if err := s.Push(ctx, "doc.tags", json.RawMessage(`"b"`), false); err != nil {
		t.Fatalf("Push failed: %v", err)
	}
	got, _ := s.Get(ctx, "doc.tags")
	if !docpath.EqualRaw(got, json.RawMessage(`["a","b"]`)) {
		t.Errorf("Push: got %s", got)
	}
	if ok, err := s.Includes(ctx, "doc.tags", json.RawMessage(`"a"`)); err != nil || !ok {
		t.Errorf("Includes = %v, %v", ok, err)
	}
	if err := s.Remove(ctx, "doc.tags", json.RawMessage(`"a"`)); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if got, _ = s.Get(ctx, "doc.tags"); !docpath.EqualRaw(got, json.RawMessage(`["b"]`)) {
		t.Errorf("Remove: got %s", got)
	}

	if err := s.Inc(ctx, "doc.n"); err != nil {
		t.Fatalf("Inc failed: %v", err)
	}
	if err := s.Math(ctx, "doc.n", provider.MathMultiply, 2); err != nil {
		t.Fatalf("Math failed: %v", err)
	}
	if got, _ = s.Get(ctx, "doc.n"); string(got) != `22` {
		t.Errorf("Inc+Math: got %s, want 22", got)
	}
}

func TestGZipQueries(t *testing.T) {
	ctx := context.Background()
	s := newGZipStore(t, "gzip-queries")

	for i, name := range []string{"ada", "grace", "linus"} {
		doc, _ := json.Marshal(map[string]any{"name": name, "rank": i})
		if err := s.Set(ctx, name, doc); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
	}

	key, doc, found, err := s.Find(ctx, store.MatchValue("name", json.RawMessage(`"grace"`)))
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if !found || key != "grace" {
		t.Fatalf("Find(name=grace) = %q, %v", key, found)
	}
	if rank, ok := docpath.NumberAt(doc, "rank"); !ok || rank != 1 {
		t.Errorf("found entry carries rank %v, %v", rank, ok)
	}

	matches, err := s.Filter(ctx, store.MatchFn(func(val json.RawMessage, _ string) (bool, error) {
		n, ok := docpath.NumberAt(val, "")
		return ok && n >= 1, nil
	}, "rank"))
	if err != nil {
		t.Fatalf("Filter failed: %v", err)
	}
	if len(matches) != 2 {
		t.Errorf("Filter(rank>=1) matched %d entries, want 2", len(matches))
	}

	every, err := s.Every(ctx, store.MatchFn(func(val json.RawMessage, _ string) (bool, error) {
		n, ok := docpath.NumberAt(val, "")
		return ok && n >= 0, nil
	}, "rank"))
	if err != nil || !every {
		t.Errorf("Every(rank>=0) = %v, %v", every, err)
	}

	ranks, err := s.MapPath(ctx, "rank")
	if err != nil {
		t.Fatalf("MapPath failed: %v", err)
	}
	if len(ranks) != 3 || string(ranks[1]) != `1` {
		t.Errorf("MapPath(rank) = %v", ranks)
	}
}

func TestIdentityPair(t *testing.T) {
	ser, deser := Identity()
	doc := json.RawMessage(`{"a":1}`)

	out, err := ser(doc, "k", "")
	if err != nil || string(out) != string(doc) {
		t.Errorf("Identity serialize: %s, %v", out, err)
	}
	out, err = deser(doc, "k", "")
	if err != nil || string(out) != string(doc) {
		t.Errorf("Identity deserialize: %s, %v", out, err)
	}
}
