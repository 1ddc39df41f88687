package docpath

import (
	"encoding/json"
	"reflect"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// --------------------------------------------------------------------------
// Key/Path Resolution
// --------------------------------------------------------------------------

// SplitKeyPath splits a combined "key.path" string at the first dot into
// the top-level key and the remainder path. A string without a dot is a
// bare key with an empty path.
func SplitKeyPath(keyPath string) (key, path string) {
	if i := strings.IndexByte(keyPath, '.'); i >= 0 {
		return keyPath[:i], keyPath[i+1:]
	}
	return keyPath, ""
}

// Normalize rewrites bracket indices into dotted segments so that both
// "c[4].a[1]" and "c.4.a.1" address the same location.
func Normalize(path string) string {
	if !strings.ContainsAny(path, "[]") {
		return path
	}
	var b strings.Builder
	b.Grow(len(path))
	for i := 0; i < len(path); i++ {
		switch c := path[i]; c {
		case '[':
			if b.Len() > 0 && path[i-1] != '.' {
				b.WriteByte('.')
			}
		case ']':
			// dropped, a following ".x" segment supplies its own dot
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// --------------------------------------------------------------------------
// Document Access
// --------------------------------------------------------------------------

// GetRaw returns the raw JSON value at path inside doc. The boolean
// indicates whether the path resolved to an existing location. An empty
// path returns the whole document.
func GetRaw(doc json.RawMessage, path string) (json.RawMessage, bool) {
	if path == "" {
		if len(doc) == 0 {
			return nil, false
		}
		return doc, true
	}
	res := gjson.GetBytes(doc, Normalize(path))
	if !res.Exists() {
		return nil, false
	}
	return json.RawMessage(res.Raw), true
}

// SetRaw replaces the value at path inside doc with the given raw JSON
// value, creating intermediate containers as needed (objects for string
// segments, arrays for numeric segments). An empty path replaces the
// whole document. The input document is not modified.
func SetRaw(doc json.RawMessage, path string, value json.RawMessage) (json.RawMessage, error) {
	if path == "" {
		out := make(json.RawMessage, len(value))
		copy(out, value)
		return out, nil
	}
	out, err := sjson.SetRawBytes(doc, Normalize(path), value)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteRaw removes the value at path inside doc. Deleting a path that
// does not resolve is a no-op and returns the document unchanged.
func DeleteRaw(doc json.RawMessage, path string) (json.RawMessage, error) {
	norm := Normalize(path)
	if !gjson.GetBytes(doc, norm).Exists() {
		return doc, nil
	}
	out, err := sjson.DeleteBytes(doc, norm)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// --------------------------------------------------------------------------
// Equality and Merging
// --------------------------------------------------------------------------

// EqualRaw reports whether two raw JSON values are semantically equal.
// Comparison is structural, so formatting and object key order do not
// matter.
func EqualRaw(a, b json.RawMessage) bool {
	var av, bv any
	if err := json.Unmarshal(a, &av); err != nil {
		return false
	}
	if err := json.Unmarshal(b, &bv); err != nil {
		return false
	}
	return reflect.DeepEqual(av, bv)
}

// MergeRaw deep-merges the patch document into the base document. Object
// fields are merged recursively, every other value kind in the patch
// replaces the base value outright.
func MergeRaw(base, patch json.RawMessage) (json.RawMessage, error) {
	var bv, pv any
	if err := json.Unmarshal(base, &bv); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(patch, &pv); err != nil {
		return nil, err
	}
	return json.Marshal(mergeValues(bv, pv))
}

func mergeValues(base, patch any) any {
	bm, bok := base.(map[string]any)
	pm, pok := patch.(map[string]any)
	if !bok || !pok {
		return patch
	}
	for k, pv := range pm {
		if bv, ok := bm[k]; ok {
			bm[k] = mergeValues(bv, pv)
		} else {
			bm[k] = pv
		}
	}
	return bm
}

// --------------------------------------------------------------------------
// Array Helpers
// --------------------------------------------------------------------------

// ArrayAt returns the elements of the array at path as raw JSON values.
// The boolean is false if the path does not resolve or the value there is
// not an array.
func ArrayAt(doc json.RawMessage, path string) ([]json.RawMessage, bool) {
	var res gjson.Result
	if path == "" {
		res = gjson.ParseBytes(doc)
	} else {
		res = gjson.GetBytes(doc, Normalize(path))
	}
	if !res.IsArray() {
		return nil, false
	}
	items := res.Array()
	out := make([]json.RawMessage, len(items))
	for i, item := range items {
		out[i] = json.RawMessage(item.Raw)
	}
	return out, true
}

// JoinArray assembles raw JSON elements back into a raw JSON array.
func JoinArray(items []json.RawMessage) json.RawMessage {
	var b strings.Builder
	b.WriteByte('[')
	for i, item := range items {
		if i > 0 {
			b.WriteByte(',')
		}
		b.Write(item)
	}
	b.WriteByte(']')
	return json.RawMessage(b.String())
}

// --------------------------------------------------------------------------
// Numeric Access
// --------------------------------------------------------------------------

// NumberAt returns the numeric value at path. The boolean is false if the
// path does not resolve or the value there is not a number.
func NumberAt(doc json.RawMessage, path string) (float64, bool) {
	var res gjson.Result
	if path == "" {
		res = gjson.ParseBytes(doc)
	} else {
		res = gjson.GetBytes(doc, Normalize(path))
	}
	if res.Type != gjson.Number {
		return 0, false
	}
	return res.Num, true
}

// SetNumber replaces the value at path with the given number. Integral
// values are written without a fractional part.
func SetNumber(doc json.RawMessage, path string, n float64) (json.RawMessage, error) {
	raw, err := json.Marshal(n)
	if err != nil {
		return nil, err
	}
	return SetRaw(doc, path, raw)
}
