package provider

import (
	"encoding/json"
	"math"

	"github.com/grovekv/grove/lib/docpath"
)

// --------------------------------------------------------------------------
// Document-Level Operations
// --------------------------------------------------------------------------

// The helpers below implement the array and numeric mutations of the
// contract on a single decoded document. Providers call them inside
// their entry mutation primitives; the store façade calls them on
// deserialized entries when a serialization codec is installed and the
// provider therefore only ever holds encoded whole-entry documents.

// PushDoc appends value to the array at path. The boolean reports
// whether the document changed; an absent or non-array target leaves it
// untouched.
func PushDoc(doc json.RawMessage, path string, value json.RawMessage, allowDupes bool) (json.RawMessage, bool, error) {
	items, ok := docpath.ArrayAt(doc, path)
	if !ok {
		return doc, false, nil
	}
	if !allowDupes {
		for _, item := range items {
			if docpath.EqualRaw(item, value) {
				return doc, false, nil
			}
		}
	}
	items = append(items, value)
	out, err := docpath.SetRaw(doc, path, docpath.JoinArray(items))
	if err != nil {
		return nil, false, err
	}
	return out, true, nil
}

// RemoveDoc rebuilds the array at path without the elements the match
// function selects, preserving the order of the kept elements.
func RemoveDoc(doc json.RawMessage, path string, match func(item json.RawMessage) (bool, error)) (json.RawMessage, bool, error) {
	items, ok := docpath.ArrayAt(doc, path)
	if !ok {
		return doc, false, nil
	}
	kept := make([]json.RawMessage, 0, len(items))
	removed := false
	for _, item := range items {
		hit, err := match(item)
		if err != nil {
			return nil, false, err
		}
		if hit {
			removed = true
			continue
		}
		kept = append(kept, item)
	}
	if !removed {
		return doc, false, nil
	}
	out, err := docpath.SetRaw(doc, path, docpath.JoinArray(kept))
	if err != nil {
		return nil, false, err
	}
	return out, true, nil
}

// IncludesDoc reports whether the array at path contains an element
// equal to value. An absent or non-array target is false.
func IncludesDoc(doc json.RawMessage, path string, value json.RawMessage) bool {
	items, ok := docpath.ArrayAt(doc, path)
	if !ok {
		return false
	}
	for _, item := range items {
		if docpath.EqualRaw(item, value) {
			return true
		}
	}
	return false
}

// StepDoc adds delta to the numeric value at path, leaving the document
// untouched when no numeric value is found there.
func StepDoc(doc json.RawMessage, path string, delta float64) (json.RawMessage, bool, error) {
	n, ok := docpath.NumberAt(doc, path)
	if !ok {
		return doc, false, nil
	}
	out, err := docpath.SetNumber(doc, path, n+delta)
	if err != nil {
		return nil, false, err
	}
	return out, true, nil
}

// MathDoc applies op to the numeric value at path. A missing numeric
// value and a result that is not a representable number are operand
// errors; an unknown operation leaves the document untouched. target
// names the addressed location in error messages.
func MathDoc(doc json.RawMessage, path string, op MathOp, operand float64, target string) (json.RawMessage, bool, error) {
	n, ok := docpath.NumberAt(doc, path)
	if !ok {
		return nil, false, NewErrorf(KindOperand, "math: no numeric value at %q", target)
	}
	res, known := op.Apply(n, operand)
	if !known {
		return doc, false, nil
	}
	if math.IsNaN(res) || math.IsInf(res, 0) {
		return nil, false, NewErrorf(KindOperand, "math: %s %v on %v yields no representable number", op, operand, n)
	}
	out, err := docpath.SetNumber(doc, path, res)
	if err != nil {
		return nil, false, err
	}
	return out, true, nil
}
