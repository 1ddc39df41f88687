// Package docpath implements dotted-path addressing for JSON documents.
// It provides two things: the resolution of combined "key.path" strings
// into a top-level key and a remainder path, and read/write/delete access
// to nested locations inside a single JSON document.
//
// A path is a sequence of dot-separated segments. Numeric segments and
// bracket indices ("c[4]" or "c.4") address array elements, all other
// segments address object fields. The empty path addresses the whole
// document.
//
// The actual traversal is delegated to the gjson and sjson libraries;
// this package only normalizes paths into their syntax and adds the
// semantics the store layer relies on (no-op deletes of unresolved
// paths, semantic equality, array helpers and numeric access).
package docpath
