// Package provider defines the capability contract every grove backing
// store must implement, along with the shared types used across provider
// implementations and the store façade.
//
// The package focuses on:
//   - A unified interface (IProvider) covering CRUD, bulk operations,
//     random sampling, predicate and value-at-path queries, numeric
//     mutation and auto-incrementing id allocation
//   - A construction contract (Config) and factory pattern (Factory) so
//     that backends stay swappable behind the store façade
//   - A structured error system with coarse error kinds, allowing
//     callers to distinguish configuration, lifecycle, argument, operand
//     and data failures from internal ones
//
// Key Components:
//
//   - IProvider Interface: the core abstraction. All operations are
//     context-first: the bundled in-memory provider serves them
//     synchronously, but remote backends may block. Values are raw JSON
//     documents; nested locations inside one document are addressed with
//     docpath paths.
//
//   - Config: the single configuration object every provider constructor
//     accepts. Name identifies the logical namespace, Instance carries
//     an opaque back-reference to the owning store handle and Options is
//     a backend-specific mapping passed through verbatim.
//
//   - Error System: typed errors carrying an ErrKind and a readable
//     message. Structural no-match conditions (absent keys, unresolved
//     paths, type mismatches on array operations) are not errors; they
//     are reported through return values or silently ignored as the
//     contract of each operation documents.
//
// Implementations:
//
//	The reference implementation is the in-memory provider in
//	"github.com/grovekv/grove/lib/provider/memory". Conformance of any
//	other implementation can be checked with the reusable suite in
//	"github.com/grovekv/grove/lib/provider/testing".
package provider
