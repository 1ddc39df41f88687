package testing

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/grovekv/grove/lib/docpath"
	"github.com/grovekv/grove/lib/provider"
)

// ProviderFactory is a function that creates a new ready-to-use instance
// of a provider implementation.
type ProviderFactory func() provider.IProvider

// RunProviderTests runs a comprehensive conformance suite against a
// provider implementation.
func RunProviderTests(t *testing.T, name string, factory ProviderFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("Set&Get", func(t *testing.T) {
			testSetGet(t, factory())
		})

		t.Run("AutoID", func(t *testing.T) {
			testAutoID(t, factory())
		})

		t.Run("Count&SetMany", func(t *testing.T) {
			testCountSetMany(t, factory())
		})

		t.Run("PathRoundTrip", func(t *testing.T) {
			testPathRoundTrip(t, factory())
		})

		t.Run("Delete", func(t *testing.T) {
			testDelete(t, factory())
		})

		t.Run("Push&Remove", func(t *testing.T) {
			testPushRemove(t, factory())
		})

		t.Run("Includes", func(t *testing.T) {
			testIncludes(t, factory())
		})

		t.Run("Inc&Dec", func(t *testing.T) {
			testIncDec(t, factory())
		})

		t.Run("Math", func(t *testing.T) {
			testMath(t, factory())
		})

		t.Run("Find&Filter&Some&Every", func(t *testing.T) {
			testQueries(t, factory())
		})

		t.Run("Map", func(t *testing.T) {
			testMap(t, factory())
		})

		t.Run("Random", func(t *testing.T) {
			testRandom(t, factory())
		})

		t.Run("GetMany&DeleteMany", func(t *testing.T) {
			testManyOps(t, factory())
		})

		t.Run("Clear&Destroy", func(t *testing.T) {
			testClearDestroy(t, factory())
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

func raw(t testing.TB, v any) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal %v: %v", v, err)
	}
	return b
}

func mustSet(t testing.TB, p provider.IProvider, key, path string, v any) {
	t.Helper()
	if err := p.Set(context.Background(), key, path, raw(t, v)); err != nil {
		t.Fatalf("Set(%q, %q) failed: %v", key, path, err)
	}
}

func mustGet(t testing.TB, p provider.IProvider, key, path string) json.RawMessage {
	t.Helper()
	val, ok, err := p.Get(context.Background(), key, path)
	if err != nil {
		t.Fatalf("Get(%q, %q) failed: %v", key, path, err)
	}
	if !ok {
		t.Fatalf("Get(%q, %q): expected value to exist", key, path)
	}
	return val
}

func wantEqual(t testing.TB, got json.RawMessage, want any) {
	t.Helper()
	if !docpath.EqualRaw(got, raw(t, want)) {
		t.Errorf("got %s, want %v", got, want)
	}
}

func wantCount(t testing.TB, p provider.IProvider, want int) {
	t.Helper()
	n, err := p.Count(context.Background())
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if n != want {
		t.Errorf("Count: got %d, want %d", n, want)
	}
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testSetGet(t *testing.T, p provider.IProvider) {
	ctx := context.Background()

	shapes := map[string]any{
		"object":  map[string]any{"a": 1.0, "b": "two"},
		"array":   []any{1.0, "two", true},
		"number":  42.5,
		"string":  "hello",
		"boolean": true,
		"null":    nil,
		"nested":  map[string]any{"a": []any{map[string]any{"b": []any{1.0, 2.0}}}},
	}

	for key, v := range shapes {
		mustSet(t, p, key, "", v)
		wantEqual(t, mustGet(t, p, key, ""), v)
	}

	// full replacement of an existing key
	mustSet(t, p, "object", "", "replaced")
	wantEqual(t, mustGet(t, p, "object", ""), "replaced")

	// missing data is a miss, never an error
	_, ok, err := p.Get(ctx, "nonexistent", "")
	if err != nil {
		t.Errorf("Get on missing key returned error: %v", err)
	}
	if ok {
		t.Errorf("Get on missing key reported a value")
	}

	// unresolved path is a miss too
	_, ok, err = p.Get(ctx, "string", "no.such.path")
	if err != nil {
		t.Errorf("Get on unresolved path returned error: %v", err)
	}
	if ok {
		t.Errorf("Get on unresolved path reported a value")
	}

	// has on keys and paths
	has, err := p.Has(ctx, "nested", "")
	if err != nil || !has {
		t.Errorf("Has(nested) = %v, %v; want true", has, err)
	}
	has, err = p.Has(ctx, "nested", "a[0].b[1]")
	if err != nil || !has {
		t.Errorf("Has(nested, a[0].b[1]) = %v, %v; want true", has, err)
	}
	has, err = p.Has(ctx, "nested", "a[0].c")
	if err != nil || has {
		t.Errorf("Has(nested, a[0].c) = %v, %v; want false", has, err)
	}
}

func testAutoID(t *testing.T, p provider.IProvider) {
	ctx := context.Background()

	for i := 1; i <= 50; i++ {
		id, err := p.AutoID(ctx)
		if err != nil {
			t.Fatalf("AutoID failed: %v", err)
		}
		if want := fmt.Sprintf("%d", i); id != want {
			t.Fatalf("AutoID: got %q, want %q", id, want)
		}
		// ids survive deletes of the keys they were used for
		mustSet(t, p, id, "", i)
		if i%2 == 0 {
			if err := p.Delete(ctx, id, ""); err != nil {
				t.Fatalf("Delete(%q) failed: %v", id, err)
			}
		}
	}

	id, err := p.AutoID(ctx)
	if err != nil {
		t.Fatalf("AutoID failed: %v", err)
	}
	if id != "51" {
		t.Errorf("AutoID after deletions: got %q, want %q", id, "51")
	}
}

func testCountSetMany(t *testing.T, p provider.IProvider) {
	ctx := context.Background()

	wantCount(t, p, 0)

	mustSet(t, p, "a", "", 1)
	mustSet(t, p, "b", "", 2)
	mustSet(t, p, "b", "", 3) // overwrite, no new key
	wantCount(t, p, 2)

	// overwrite=false never changes a pre-existing key
	err := p.SetMany(ctx, map[string]json.RawMessage{
		"a": raw(t, 100),
		"c": raw(t, 300),
	}, false)
	if err != nil {
		t.Fatalf("SetMany failed: %v", err)
	}
	wantCount(t, p, 3)
	wantEqual(t, mustGet(t, p, "a", ""), 1)
	wantEqual(t, mustGet(t, p, "c", ""), 300)

	// overwrite=true replaces
	err = p.SetMany(ctx, map[string]json.RawMessage{"a": raw(t, 100)}, true)
	if err != nil {
		t.Fatalf("SetMany failed: %v", err)
	}
	wantEqual(t, mustGet(t, p, "a", ""), 100)

	if err := p.Delete(ctx, "c", ""); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	wantCount(t, p, 2)
}

func testPathRoundTrip(t *testing.T, p provider.IProvider) {
	mustSet(t, p, "doc", "", map[string]any{"sibling": "untouched"})
	mustSet(t, p, "doc", "c[4].a[1]", "x")

	wantEqual(t, mustGet(t, p, "doc", "c[4].a[1]"), "x")

	// the whole entry reflects the write at the same location and the
	// sibling field survives
	whole := mustGet(t, p, "doc", "")
	embedded, ok := docpath.GetRaw(whole, "c[4].a[1]")
	if !ok {
		t.Fatalf("whole document %s does not resolve c[4].a[1]", whole)
	}
	wantEqual(t, embedded, "x")
	sib, ok := docpath.GetRaw(whole, "sibling")
	if !ok {
		t.Fatalf("sibling field lost: %s", whole)
	}
	wantEqual(t, sib, "untouched")

	// replacing a subtree leaves the rest alone
	mustSet(t, p, "doc", "c[4].a[1]", map[string]any{"deep": true})
	wantEqual(t, mustGet(t, p, "doc", "c[4].a[1].deep"), true)
	wantEqual(t, mustGet(t, p, "doc", "sibling"), "untouched")
}

func testDelete(t *testing.T, p provider.IProvider) {
	ctx := context.Background()

	obj := map[string]any{"b": 2.0, "c": 3.0, "d": 4.0, "e": 5.0}
	mustSet(t, p, "object", "", obj)

	// deleting an absent path is a no-op
	if err := p.Delete(ctx, "object", "a"); err != nil {
		t.Fatalf("Delete of absent path failed: %v", err)
	}
	wantEqual(t, mustGet(t, p, "object", ""), obj)
	wantCount(t, p, 1)

	// deleting an absent key is a no-op
	if err := p.Delete(ctx, "ghost", ""); err != nil {
		t.Fatalf("Delete of absent key failed: %v", err)
	}
	wantCount(t, p, 1)

	// path delete removes only the targeted subtree
	if err := p.Delete(ctx, "object", "c"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	wantEqual(t, mustGet(t, p, "object", ""), map[string]any{"b": 2.0, "d": 4.0, "e": 5.0})
	wantCount(t, p, 1)

	// key delete removes the entry
	if err := p.Delete(ctx, "object", ""); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	wantCount(t, p, 0)
}

func testPushRemove(t *testing.T, p provider.IProvider) {
	ctx := context.Background()

	mustSet(t, p, "list", "", []any{1.0, 2.0, 3.0})

	if err := p.Push(ctx, "list", "", raw(t, 4), true); err != nil {
		t.Fatalf("Push failed: %v", err)
	}
	wantEqual(t, mustGet(t, p, "list", ""), []any{1.0, 2.0, 3.0, 4.0})

	// a duplicate is skipped with allowDupes=false
	if err := p.Push(ctx, "list", "", raw(t, 4), false); err != nil {
		t.Fatalf("Push failed: %v", err)
	}
	wantEqual(t, mustGet(t, p, "list", ""), []any{1.0, 2.0, 3.0, 4.0})

	// but appended with allowDupes=true
	if err := p.Push(ctx, "list", "", raw(t, 4), true); err != nil {
		t.Fatalf("Push failed: %v", err)
	}
	wantEqual(t, mustGet(t, p, "list", ""), []any{1.0, 2.0, 3.0, 4.0, 4.0})

	// push onto a non-array is a silent no-op
	mustSet(t, p, "scalar", "", 7)
	if err := p.Push(ctx, "scalar", "", raw(t, 1), true); err != nil {
		t.Errorf("Push onto non-array returned error: %v", err)
	}
	wantEqual(t, mustGet(t, p, "scalar", ""), 7)

	// remove takes all occurrences, survivors keep their order
	mustSet(t, p, "seq", "", []any{1.0, 2.0, 3.0, 4.0, 5.0, 6.0, 4.0})
	if err := p.Remove(ctx, "seq", "", raw(t, 4)); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	wantEqual(t, mustGet(t, p, "seq", ""), []any{1.0, 2.0, 3.0, 5.0, 6.0})

	// remove by predicate
	err := p.RemoveByFn(ctx, "seq", "", func(item json.RawMessage, _ string) (bool, error) {
		n, _ := docpath.NumberAt(item, "")
		return n > 4, nil
	})
	if err != nil {
		t.Fatalf("RemoveByFn failed: %v", err)
	}
	wantEqual(t, mustGet(t, p, "seq", ""), []any{1.0, 2.0, 3.0})

	// remove on a nested path
	mustSet(t, p, "nested", "", map[string]any{"tags": []any{"a", "b", "a"}})
	if err := p.Remove(ctx, "nested", "tags", raw(t, "a")); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	wantEqual(t, mustGet(t, p, "nested", "tags"), []any{"b"})
}

func testIncludes(t *testing.T, p provider.IProvider) {
	ctx := context.Background()

	mustSet(t, p, "doc", "", map[string]any{"tags": []any{"go", "kv"}, "n": 1.0})

	ok, err := p.Includes(ctx, "doc", "tags", raw(t, "go"))
	if err != nil || !ok {
		t.Errorf("Includes(tags, go) = %v, %v; want true", ok, err)
	}
	ok, err = p.Includes(ctx, "doc", "tags", raw(t, "rust"))
	if err != nil || ok {
		t.Errorf("Includes(tags, rust) = %v, %v; want false", ok, err)
	}
	// not an array and absent targets are false, not errors
	ok, err = p.Includes(ctx, "doc", "n", raw(t, 1))
	if err != nil || ok {
		t.Errorf("Includes(n, 1) = %v, %v; want false", ok, err)
	}
	ok, err = p.Includes(ctx, "ghost", "tags", raw(t, "go"))
	if err != nil || ok {
		t.Errorf("Includes on absent key = %v, %v; want false", ok, err)
	}
}

func testIncDec(t *testing.T, p provider.IProvider) {
	ctx := context.Background()

	mustSet(t, p, "doc", "", map[string]any{"n": 10.0, "s": "text"})

	if err := p.Inc(ctx, "doc", "n"); err != nil {
		t.Fatalf("Inc failed: %v", err)
	}
	wantEqual(t, mustGet(t, p, "doc", "n"), 11)

	if err := p.Dec(ctx, "doc", "n"); err != nil {
		t.Fatalf("Dec failed: %v", err)
	}
	wantEqual(t, mustGet(t, p, "doc", "n"), 10)

	// non-numeric targets are silent no-ops
	if err := p.Inc(ctx, "doc", "s"); err != nil {
		t.Errorf("Inc on string returned error: %v", err)
	}
	wantEqual(t, mustGet(t, p, "doc", "s"), "text")
	if err := p.Dec(ctx, "ghost", ""); err != nil {
		t.Errorf("Dec on absent key returned error: %v", err)
	}
}

func testMath(t *testing.T, p provider.IProvider) {
	ctx := context.Background()

	mustSet(t, p, "n", "", 42)

	steps := []struct {
		op      provider.MathOp
		operand float64
		want    float64
	}{
		{provider.MathMultiply, 2, 84},
		{provider.MathDivide, 4, 21},
		{provider.MathAdd, 21, 42},
		{provider.MathSubtract, 2, 40},
		{provider.MathExponent, 2, 1600},
		{provider.MathModulo, 7, 4},
	}
	for _, step := range steps {
		if err := p.Math(ctx, "n", "", step.op, step.operand); err != nil {
			t.Fatalf("Math(%s, %v) failed: %v", step.op, step.operand, err)
		}
		wantEqual(t, mustGet(t, p, "n", ""), step.want)
	}

	// rand replaces the value with floor(random() * floor(operand))
	if err := p.Math(ctx, "n", "", provider.MathRandom, 10); err != nil {
		t.Fatalf("Math(rand) failed: %v", err)
	}
	got, ok := docpath.NumberAt(mustGet(t, p, "n", ""), "")
	if !ok || got < 0 || got > 9 || got != float64(int(got)) {
		t.Errorf("Math(rand, 10): got %v, want integer in [0, 9]", got)
	}

	// math on a missing numeric value is a hard operand failure
	err := p.Math(ctx, "ghost", "", provider.MathAdd, 1)
	if !provider.IsKind(err, provider.KindOperand) {
		t.Errorf("Math on absent key: got %v, want operand error", err)
	}
	mustSet(t, p, "s", "", "text")
	err = p.Math(ctx, "s", "", provider.MathAdd, 1)
	if !provider.IsKind(err, provider.KindOperand) {
		t.Errorf("Math on string: got %v, want operand error", err)
	}
}

// seedTagged fills the provider with count entries keyed by AutoID, each
// tagged with its sequence number.
func seedTagged(t testing.TB, p provider.IProvider, count int) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < count; i++ {
		id, err := p.AutoID(ctx)
		if err != nil {
			t.Fatalf("AutoID failed: %v", err)
		}
		mustSet(t, p, id, "", map[string]any{"count": float64(i)})
	}
}

func countAtLeast(n float64) provider.Predicate {
	return func(val json.RawMessage, _ string) (bool, error) {
		got, ok := docpath.NumberAt(val, "")
		return ok && got >= n, nil
	}
}

func testQueries(t *testing.T, p provider.IProvider) {
	ctx := context.Background()
	seedTagged(t, p, 200)

	// filter: exactly the upper half matches
	matches, err := p.FilterByFn(ctx, countAtLeast(100), "count")
	if err != nil {
		t.Fatalf("FilterByFn failed: %v", err)
	}
	if len(matches) != 100 {
		t.Errorf("FilterByFn: got %d matches, want 100", len(matches))
	}

	// find returns the first match in insertion order
	key, doc, found, err := p.FindByFn(ctx, countAtLeast(101), "count")
	if err != nil {
		t.Fatalf("FindByFn failed: %v", err)
	}
	if !found {
		t.Fatalf("FindByFn found nothing")
	}
	if key != "102" {
		t.Errorf("FindByFn: got key %q, want %q", key, "102")
	}
	wantEqual(t, doc, map[string]any{"count": 101.0})

	key, _, found, err = p.FindByValue(ctx, "count", raw(t, 101))
	if err != nil || !found || key != "102" {
		t.Errorf("FindByValue: got (%q, %v, %v), want key %q", key, found, err, "102")
	}

	_, _, found, err = p.FindByValue(ctx, "count", raw(t, 1000))
	if err != nil || found {
		t.Errorf("FindByValue with no match: got found=%v, err=%v", found, err)
	}

	// filter by value
	matches, err = p.FilterByValue(ctx, "count", raw(t, 42))
	if err != nil {
		t.Fatalf("FilterByValue failed: %v", err)
	}
	if len(matches) != 1 {
		t.Errorf("FilterByValue: got %d matches, want 1", len(matches))
	}

	// quantifiers
	some, err := p.SomeByValue(ctx, "count", raw(t, 101))
	if err != nil || !some {
		t.Errorf("SomeByValue(101) = %v, %v; want true", some, err)
	}
	some, err = p.SomeByFn(ctx, countAtLeast(200), "count")
	if err != nil || some {
		t.Errorf("SomeByFn(>=200) = %v, %v; want false", some, err)
	}
	every, err := p.EveryByFn(ctx, countAtLeast(0), "count")
	if err != nil || !every {
		t.Errorf("EveryByFn(>=0) = %v, %v; want true", every, err)
	}
	every, err = p.EveryByFn(ctx, countAtLeast(100), "count")
	if err != nil || every {
		t.Errorf("EveryByFn(>=100) = %v, %v; want false", every, err)
	}

	// an unresolved path excludes the entry from matching
	mustSet(t, p, "untagged", "", map[string]any{"other": true})
	matches, err = p.FilterByFn(ctx, countAtLeast(0), "count")
	if err != nil {
		t.Fatalf("FilterByFn failed: %v", err)
	}
	if len(matches) != 200 {
		t.Errorf("FilterByFn after untagged entry: got %d matches, want 200", len(matches))
	}
	every, err = p.EveryByFn(ctx, countAtLeast(0), "count")
	if err != nil || every {
		t.Errorf("EveryByFn with untagged entry = %v, %v; want false", every, err)
	}
}

func testMap(t *testing.T, p provider.IProvider) {
	ctx := context.Background()
	seedTagged(t, p, 5)

	// extraction keeps insertion order
	vals, err := p.MapByPath(ctx, "count")
	if err != nil {
		t.Fatalf("MapByPath failed: %v", err)
	}
	if len(vals) != 5 {
		t.Fatalf("MapByPath: got %d values, want 5", len(vals))
	}
	for i, v := range vals {
		wantEqual(t, v, float64(i))
	}

	// transformation sees the value at path
	doubled, err := p.MapByFn(ctx, func(val json.RawMessage, _ string) (json.RawMessage, error) {
		n, _ := docpath.NumberAt(val, "")
		return json.Marshal(n * 2)
	}, "count")
	if err != nil {
		t.Fatalf("MapByFn failed: %v", err)
	}
	for i, v := range doubled {
		wantEqual(t, v, float64(i*2))
	}
}

func testRandom(t *testing.T, p provider.IProvider) {
	ctx := context.Background()
	seedTagged(t, p, 10)

	keys, err := p.RandomKey(ctx, 5)
	if err != nil {
		t.Fatalf("RandomKey failed: %v", err)
	}
	if len(keys) != 5 {
		t.Fatalf("RandomKey: got %d keys, want 5", len(keys))
	}
	seen := make(map[string]bool)
	for _, key := range keys {
		if seen[key] {
			t.Errorf("RandomKey returned duplicate key %q", key)
		}
		seen[key] = true
	}

	entries, err := p.Random(ctx, 10)
	if err != nil {
		t.Fatalf("Random failed: %v", err)
	}
	if len(entries) != 10 {
		t.Errorf("Random: got %d entries, want 10", len(entries))
	}

	if _, err := p.Random(ctx, 11); !provider.IsKind(err, provider.KindArgument) {
		t.Errorf("Random beyond entry count: got %v, want argument error", err)
	}
}

func testManyOps(t *testing.T, p provider.IProvider) {
	ctx := context.Background()

	mustSet(t, p, "a", "", map[string]any{"x": 1.0, "y": 2.0})
	mustSet(t, p, "b", "", 2)
	mustSet(t, p, "c", "", 3)

	many, err := p.GetMany(ctx, []string{"a", "c", "ghost"})
	if err != nil {
		t.Fatalf("GetMany failed: %v", err)
	}
	if len(many) != 2 {
		t.Errorf("GetMany: got %d entries, want 2", len(many))
	}
	if _, present := many["ghost"]; present {
		t.Errorf("GetMany filled in a missing key")
	}

	// deleteMany resolves each element as a combined key.path
	if err := p.DeleteMany(ctx, []string{"a.x", "b"}); err != nil {
		t.Fatalf("DeleteMany failed: %v", err)
	}
	wantEqual(t, mustGet(t, p, "a", ""), map[string]any{"y": 2.0})
	wantCount(t, p, 2)

	keys, err := p.Keys(ctx)
	if err != nil {
		t.Fatalf("Keys failed: %v", err)
	}
	if len(keys) != 2 || keys[0] != "a" || keys[1] != "c" {
		t.Errorf("Keys: got %v, want [a c]", keys)
	}

	vals, err := p.Values(ctx)
	if err != nil {
		t.Fatalf("Values failed: %v", err)
	}
	if len(vals) != 2 {
		t.Errorf("Values: got %d values, want 2", len(vals))
	}
}

func testClearDestroy(t *testing.T, p provider.IProvider) {
	ctx := context.Background()
	seedTagged(t, p, 10)

	if err := p.Clear(ctx); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	wantCount(t, p, 0)

	// the id counter survives a clear
	id, err := p.AutoID(ctx)
	if err != nil {
		t.Fatalf("AutoID failed: %v", err)
	}
	if id != "11" {
		t.Errorf("AutoID after Clear: got %q, want %q", id, "11")
	}

	if err := p.Destroy(ctx); err != nil {
		t.Fatalf("Destroy failed: %v", err)
	}

	// every operation after destroy fails with a lifecycle error
	if _, _, err := p.Get(ctx, "a", ""); !provider.IsKind(err, provider.KindLifecycle) {
		t.Errorf("Get after Destroy: got %v, want lifecycle error", err)
	}
	if err := p.Set(ctx, "a", "", raw(t, 1)); !provider.IsKind(err, provider.KindLifecycle) {
		t.Errorf("Set after Destroy: got %v, want lifecycle error", err)
	}
	if _, err := p.Count(ctx); !provider.IsKind(err, provider.KindLifecycle) {
		t.Errorf("Count after Destroy: got %v, want lifecycle error", err)
	}
}
