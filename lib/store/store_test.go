package store

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/grovekv/grove/lib/docpath"
	"github.com/grovekv/grove/lib/provider"
)

// newStore creates a handle over the default in-memory provider and
// tears it down with the test.
func newStore(t *testing.T, name string, opts ...Option) *Store {
	t.Helper()
	s, err := New(name, opts...)
	if err != nil {
		t.Fatalf("failed to create store %q: %v", name, err)
	}
	t.Cleanup(func() { _ = s.Destroy(context.Background()) })
	return s
}

func raw(s string) json.RawMessage {
	return json.RawMessage(s)
}

// --------------------------------------------------------------------------
// Construction and Lifecycle
// --------------------------------------------------------------------------

func TestNewRequiresName(t *testing.T) {
	_, err := New("")
	if !provider.IsKind(err, provider.KindConfig) {
		t.Errorf("New(\"\") = %v, want a config error", err)
	}
}

func TestNewRequiresFactory(t *testing.T) {
	_, err := New("broken", WithProvider(nil))
	if !provider.IsKind(err, provider.KindConfig) {
		t.Errorf("New with nil factory = %v, want a config error", err)
	}
}

func TestNewRejectsNilProvider(t *testing.T) {
	_, err := New("broken", WithProvider(func(provider.Config) provider.IProvider {
		return nil
	}))
	if !provider.IsKind(err, provider.KindConfig) {
		t.Errorf("New with nil-returning factory = %v, want a config error", err)
	}
}

func TestDestroyedHandleRejectsOperations(t *testing.T) {
	ctx := context.Background()
	s, err := New("short-lived")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	if err := s.Set(ctx, "k", raw(`1`)); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := s.Destroy(ctx); err != nil {
		t.Fatalf("Destroy failed: %v", err)
	}

	if _, err := s.Get(ctx, "k"); !provider.IsKind(err, provider.KindLifecycle) {
		t.Errorf("Get after Destroy = %v, want a lifecycle error", err)
	}
	if err := s.Set(ctx, "k", raw(`2`)); !provider.IsKind(err, provider.KindLifecycle) {
		t.Errorf("Set after Destroy = %v, want a lifecycle error", err)
	}
	if err := s.Destroy(ctx); !provider.IsKind(err, provider.KindLifecycle) {
		t.Errorf("second Destroy = %v, want a lifecycle error", err)
	}
}

func TestOperationsBlockUntilReady(t *testing.T) {
	// New schedules Init on a goroutine; the first operation must not
	// race past it.
	ctx := context.Background()
	for i := 0; i < 32; i++ {
		s := newStore(t, "race-check")
		if err := s.Set(ctx, "k", raw(`true`)); err != nil {
			t.Fatalf("Set immediately after New failed: %v", err)
		}
	}
}

func TestMulti(t *testing.T) {
	ctx := context.Background()
	stores, err := Multi([]string{"users", "sessions"})
	if err != nil {
		t.Fatalf("Multi failed: %v", err)
	}
	if len(stores) != 2 {
		t.Fatalf("Multi created %d stores, want 2", len(stores))
	}
	for name, s := range stores {
		if s.Name() != name {
			t.Errorf("store under key %q reports name %q", name, s.Name())
		}
		_ = s.Destroy(ctx)
	}

	if _, err := Multi(nil); !provider.IsKind(err, provider.KindConfig) {
		t.Errorf("Multi(nil) = %v, want a config error", err)
	}
}

// --------------------------------------------------------------------------
// Path Addressing
// --------------------------------------------------------------------------

func TestGetSetWithPaths(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, "paths")

	if err := s.Set(ctx, "user", raw(`{"profile":{"name":"ada"}}`)); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	got, err := s.Get(ctx, "user.profile.name")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(got) != `"ada"` {
		t.Errorf("Get(user.profile.name) = %s", got)
	}

	// deep write creates the entry and intermediate containers
	if err := s.Set(ctx, "doc.c[1].a", raw(`7`)); err != nil {
		t.Fatalf("deep Set failed: %v", err)
	}
	got, err = s.Get(ctx, "doc.c[1].a")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(got) != `7` {
		t.Errorf("Get(doc.c[1].a) = %s", got)
	}

	// absent key and absent sub-path both read as nil
	if got, err = s.Get(ctx, "missing"); err != nil || got != nil {
		t.Errorf("Get(missing) = %s, %v", got, err)
	}
	if got, err = s.Get(ctx, "user.profile.age"); err != nil || got != nil {
		t.Errorf("Get(user.profile.age) = %s, %v", got, err)
	}

	// sub-path delete keeps the entry
	if err := s.Delete(ctx, "user.profile.name"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	ok, err := s.Has(ctx, "user")
	if err != nil || !ok {
		t.Errorf("entry vanished after sub-path delete: %v, %v", ok, err)
	}
	if ok, _ = s.Has(ctx, "user.profile.name"); ok {
		t.Errorf("sub-path survived delete")
	}
}

// --------------------------------------------------------------------------
// AutoEnsure
// --------------------------------------------------------------------------

func TestAutoEnsureSubstitutesDefault(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, "auto-ensure", WithAutoEnsure(raw(`{"count":0}`)))

	got, err := s.Get(ctx, "absent")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !docpath.EqualRaw(got, raw(`{"count":0}`)) {
		t.Errorf("Get(absent) = %s, want the default", got)
	}

	// sub-path reads resolve inside the default
	got, err = s.Get(ctx, "absent.count")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(got) != `0` {
		t.Errorf("Get(absent.count) = %s", got)
	}

	// the substitution is read-only: nothing was written
	if n, _ := s.Count(ctx); n != 0 {
		t.Errorf("autoEnsure wrote %d entries", n)
	}
	if ok, _ := s.Has(ctx, "absent"); ok {
		t.Errorf("autoEnsure made the key exist")
	}

	// a real value shadows the default
	if err := s.Set(ctx, "absent", raw(`{"count":9}`)); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if got, _ = s.Get(ctx, "absent.count"); string(got) != `9` {
		t.Errorf("stored value did not shadow the default: %s", got)
	}

	// existence is decided per key: once the key exists, a sub-path that
	// does not resolve reads as nil, not as the default
	if got, err = s.Get(ctx, "absent.flags"); err != nil || got != nil {
		t.Errorf("unresolved sub-path on an existing entry = %s, %v, want nil", got, err)
	}
}

// --------------------------------------------------------------------------
// Serialization Hooks
// --------------------------------------------------------------------------

func TestSerializerHooksWrapStoredValues(t *testing.T) {
	ctx := context.Background()
	serialize := func(value json.RawMessage, _, _ string) (json.RawMessage, error) {
		return docpath.SetRaw(nil, "v", value)
	}
	deserialize := func(value json.RawMessage, _, _ string) (json.RawMessage, error) {
		inner, ok := docpath.GetRaw(value, "v")
		if !ok {
			return value, nil
		}
		return inner, nil
	}
	s := newStore(t, "hooks",
		WithSerializer(serialize),
		WithDeserializer(deserialize),
	)

	if err := s.Set(ctx, "k", raw(`{"a":1}`)); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	got, err := s.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !docpath.EqualRaw(got, raw(`{"a":1}`)) {
		t.Errorf("hooked round trip: got %s", got)
	}

	// a sub-path write goes through the decoded document and survives a
	// whole-entry read
	if err := s.Set(ctx, "k.b", raw(`2`)); err != nil {
		t.Fatalf("sub-path Set failed: %v", err)
	}
	got, err = s.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !docpath.EqualRaw(got, raw(`{"a":1,"b":2}`)) {
		t.Errorf("sub-path write lost under the hooks: got %s", got)
	}

	// Export surfaces the stored (wrapped) representation
	data, err := s.Export(ctx)
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	var doc ExportDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("export document malformed: %v", err)
	}
	if !docpath.EqualRaw(doc.Keys["k"], raw(`{"v":{"a":1,"b":2}}`)) {
		t.Errorf("export holds %s, want the wrapped form", doc.Keys["k"])
	}
}

func TestValuesPassesKeysToHooks(t *testing.T) {
	ctx := context.Background()
	var seen []string
	deser := func(value json.RawMessage, key, _ string) (json.RawMessage, error) {
		seen = append(seen, key)
		return value, nil
	}
	s := newStore(t, "values-keys", WithDeserializer(deser))

	if err := s.Set(ctx, "a", raw(`1`)); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := s.Set(ctx, "b", raw(`2`)); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	seen = nil
	vals, err := s.Values(ctx)
	if err != nil {
		t.Fatalf("Values failed: %v", err)
	}
	if len(vals) != 2 || string(vals[0]) != `1` || string(vals[1]) != `2` {
		t.Errorf("Values = %v", vals)
	}
	if len(seen) != 2 || seen[0] != "a" || seen[1] != "b" {
		t.Errorf("deserializer saw keys %v, want [a b]", seen)
	}
}

// --------------------------------------------------------------------------
// Update and Ensure
// --------------------------------------------------------------------------

func TestUpdateMergesPartials(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, "update")

	if err := s.Set(ctx, "cfg", raw(`{"a":{"x":1},"b":1}`)); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	merged, err := s.Update(ctx, "cfg", raw(`{"a":{"y":2}}`))
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	want := raw(`{"a":{"x":1,"y":2},"b":1}`)
	if !docpath.EqualRaw(merged, want) {
		t.Errorf("Update returned %s, want %s", merged, want)
	}
	got, _ := s.Get(ctx, "cfg")
	if !docpath.EqualRaw(got, want) {
		t.Errorf("Update stored %s, want %s", got, want)
	}

	if _, err := s.Update(ctx, "missing", raw(`{"a":1}`)); !provider.IsKind(err, provider.KindData) {
		t.Errorf("Update on an absent key = %v, want a data error", err)
	}
}

func TestUpdateFn(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, "update-fn")

	if err := s.Set(ctx, "doc", raw(`{"n":1}`)); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	merged, err := s.UpdateFn(ctx, "doc", func(prev json.RawMessage) (json.RawMessage, error) {
		n, _ := docpath.NumberAt(prev, "n")
		return docpath.SetNumber(nil, "n", n+41)
	})
	if err != nil {
		t.Fatalf("UpdateFn failed: %v", err)
	}
	if n, _ := docpath.NumberAt(merged, "n"); n != 42 {
		t.Errorf("UpdateFn produced n=%v, want 42", n)
	}
}

func TestEnsure(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, "ensure")

	got, err := s.Ensure(ctx, "k", raw(`{"fresh":true}`))
	if err != nil {
		t.Fatalf("Ensure failed: %v", err)
	}
	if !docpath.EqualRaw(got, raw(`{"fresh":true}`)) {
		t.Errorf("Ensure on an absent key returned %s", got)
	}
	if ok, _ := s.Has(ctx, "k"); !ok {
		t.Errorf("Ensure did not write the default")
	}

	// a second Ensure leaves the stored value alone
	got, err = s.Ensure(ctx, "k", raw(`{"fresh":false}`))
	if err != nil {
		t.Fatalf("Ensure failed: %v", err)
	}
	if !docpath.EqualRaw(got, raw(`{"fresh":true}`)) {
		t.Errorf("second Ensure returned %s, want the first value", got)
	}
}

// --------------------------------------------------------------------------
// Query Operations
// --------------------------------------------------------------------------

func seedPeople(t *testing.T, s *Store) {
	t.Helper()
	ctx := context.Background()
	people := []string{
		`{"name":"ada","age":36,"active":true}`,
		`{"name":"grace","age":45,"active":true}`,
		`{"name":"linus","age":28,"active":false}`,
	}
	for _, p := range people {
		id, err := s.AutoID(ctx)
		if err != nil {
			t.Fatalf("AutoID failed: %v", err)
		}
		if err := s.Set(ctx, id, raw(p)); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
	}
}

func TestFindByValue(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, "find-value")
	seedPeople(t, s)

	key, doc, found, err := s.Find(ctx, MatchValue("name", raw(`"grace"`)))
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if !found || key != "2" {
		t.Fatalf("Find(name=grace) = %q, %v", key, found)
	}
	if n, _ := docpath.NumberAt(doc, "age"); n != 45 {
		t.Errorf("found entry has age %v", n)
	}

	if _, _, found, err = s.Find(ctx, MatchValue("name", raw(`"nobody"`))); err != nil || found {
		t.Errorf("Find of an absent value = %v, %v", found, err)
	}
}

func TestFindByFnReturnsFirstInInsertionOrder(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, "find-fn")
	seedPeople(t, s)

	key, _, found, err := s.Find(ctx, MatchFn(func(value json.RawMessage, _ string) (bool, error) {
		n, _ := docpath.NumberAt(value, "")
		return n >= 30, nil
	}, "age"))
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if !found || key != "1" {
		t.Errorf("Find(age>=30) = %q, %v, want the first seeded entry", key, found)
	}
}

func TestFilterSomeEvery(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, "filter")
	seedPeople(t, s)

	matches, err := s.Filter(ctx, MatchValue("active", raw(`true`)))
	if err != nil {
		t.Fatalf("Filter failed: %v", err)
	}
	if len(matches) != 2 {
		t.Errorf("Filter(active=true) matched %d entries, want 2", len(matches))
	}

	some, err := s.Some(ctx, MatchValue("name", raw(`"linus"`)))
	if err != nil || !some {
		t.Errorf("Some(name=linus) = %v, %v", some, err)
	}
	some, err = s.Some(ctx, MatchValue("name", raw(`"nobody"`)))
	if err != nil || some {
		t.Errorf("Some(name=nobody) = %v, %v", some, err)
	}

	every, err := s.Every(ctx, MatchFn(func(value json.RawMessage, _ string) (bool, error) {
		n, ok := docpath.NumberAt(value, "")
		return ok && n > 18, nil
	}, "age"))
	if err != nil || !every {
		t.Errorf("Every(age>18) = %v, %v", every, err)
	}
	every, err = s.Every(ctx, MatchValue("active", raw(`true`)))
	if err != nil || every {
		t.Errorf("Every(active=true) = %v, %v", every, err)
	}
}

func TestMatcherValidation(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, "matcher-validation")

	if _, _, _, err := s.Find(ctx, Matcher{}); !provider.IsKind(err, provider.KindArgument) {
		t.Errorf("Find with an empty matcher = %v, want an argument error", err)
	}
	if _, err := s.Map(ctx, nil, ""); !provider.IsKind(err, provider.KindArgument) {
		t.Errorf("Map(nil) = %v, want an argument error", err)
	}
}

func TestMapAndMapPath(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, "map")
	seedPeople(t, s)

	names, err := s.MapPath(ctx, "name")
	if err != nil {
		t.Fatalf("MapPath failed: %v", err)
	}
	want := []string{`"ada"`, `"grace"`, `"linus"`}
	if len(names) != len(want) {
		t.Fatalf("MapPath returned %d values, want %d", len(names), len(want))
	}
	for i, w := range want {
		if string(names[i]) != w {
			t.Errorf("MapPath[%d] = %s, want %s", i, names[i], w)
		}
	}

	doubled, err := s.Map(ctx, func(value json.RawMessage, _ string) (json.RawMessage, error) {
		n, _ := docpath.NumberAt(value, "")
		return json.Marshal(n * 2)
	}, "age")
	if err != nil {
		t.Fatalf("Map failed: %v", err)
	}
	if len(doubled) != 3 || string(doubled[0]) != "72" {
		t.Errorf("Map over age = %v", doubled)
	}
}

// --------------------------------------------------------------------------
// Export and Import
// --------------------------------------------------------------------------

func TestExportImportRoundTrip(t *testing.T) {
	ctx := context.Background()
	src := newStore(t, "export-src")
	seedPeople(t, src)

	data, err := src.Export(ctx)
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	var doc ExportDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("export document malformed: %v", err)
	}
	if doc.Name != "export-src" {
		t.Errorf("export carries name %q", doc.Name)
	}
	if doc.ExportTimestamp == 0 {
		t.Errorf("export carries no timestamp")
	}
	if len(doc.Keys) != 3 {
		t.Errorf("export carries %d keys, want 3", len(doc.Keys))
	}

	dst := newStore(t, "export-dst")
	if err := dst.Import(ctx, data, true, false); err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	srcAll, _ := src.GetAll(ctx)
	dstAll, _ := dst.GetAll(ctx)
	if len(srcAll) != len(dstAll) {
		t.Fatalf("imported %d entries, want %d", len(dstAll), len(srcAll))
	}
	for k, v := range srcAll {
		if !docpath.EqualRaw(v, dstAll[k]) {
			t.Errorf("key %q: imported %s, want %s", k, dstAll[k], v)
		}
	}
}

func TestImportOverwriteAndClear(t *testing.T) {
	ctx := context.Background()
	src := newStore(t, "import-src")
	if err := src.Set(ctx, "shared", raw(`{"from":"src"}`)); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	data, err := src.Export(ctx)
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	dst := newStore(t, "import-dst")
	if err := dst.Set(ctx, "shared", raw(`{"from":"dst"}`)); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := dst.Set(ctx, "extra", raw(`1`)); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	// overwrite false keeps the local value
	if err := dst.Import(ctx, data, false, false); err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	got, _ := dst.Get(ctx, "shared.from")
	if string(got) != `"dst"` {
		t.Errorf("Import without overwrite replaced the value: %s", got)
	}

	// overwrite true replaces it
	if err := dst.Import(ctx, data, true, false); err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if got, _ = dst.Get(ctx, "shared.from"); string(got) != `"src"` {
		t.Errorf("Import with overwrite kept the value: %s", got)
	}

	// clear wipes entries the document does not mention
	if err := dst.Import(ctx, data, true, true); err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if ok, _ := dst.Has(ctx, "extra"); ok {
		t.Errorf("Import with clear kept an unrelated entry")
	}
	if n, _ := dst.Count(ctx); n != 1 {
		t.Errorf("store holds %d entries after clearing import, want 1", n)
	}
}

func TestImportRejectsMalformedDocuments(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, "import-bad")
	if err := s.Import(ctx, []byte(`{nope`), true, false); !provider.IsKind(err, provider.KindArgument) {
		t.Errorf("Import of malformed data = %v, want an argument error", err)
	}
}
