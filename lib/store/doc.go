// Package store provides the user-facing façade of grove: a named handle
// over one pluggable backing provider, with path addressing,
// serialization hooks and a readiness-gated lifecycle layered on top.
//
// The package focuses on:
//   - One Store handle per logical namespace, owning exactly one
//     provider.IProvider instance for its lifetime
//   - Combined "key.path" addressing on every operation, resolved once
//     at the call boundary
//   - A serialize/deserialize pipeline applied around every provider
//     call, injected as two plain function values defaulting to identity
//   - A readiness gate: construction kicks the provider's Init
//     asynchronously and every public method waits for it; after Destroy
//     every call fails with a lifecycle error
//
// Key Components:
//
//   - Store: the handle itself. Construction fails synchronously when
//     the name is missing or the provider factory is invalid; everything
//     else is reported through the usual error returns.
//
//   - Matcher: the tagged union accepted by Find, Filter, Some and
//     Every. MatchValue(path, value) compares the value at a path for
//     equality, MatchFn(fn, path) evaluates a predicate. The union is
//     resolved once and dispatched to the matching provider method pair.
//
//   - Export/Import: a fixed flat JSON document (name, exportTimestamp,
//     keys) for moving a full namespace between stores or across
//     restarts.
//
// Composite operations (Update, Ensure, Push) perform separate reads and
// writes against the provider with no cross-call transaction; a
// concurrent write between those steps wins or loses by ordinary
// interleaving. Callers needing atomicity must serialize externally.
package store
