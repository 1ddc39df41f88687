// Package memory implements the grove provider contract with a
// process-local in-memory mapping. It is the reference implementation of
// the contract and the default backend of the store façade.
//
// Entries live in a concurrent hash map for lock-free point reads, with
// an insertion-ordered key index kept beside it so that scans (find,
// filter, map, some, every) and the Keys and Values snapshots are
// deterministic. Writes serialize on a single mutex; reads of individual
// entries do not take it.
//
// The provider keeps an auto-increment counter that starts at zero and
// survives deletions and Clear, so identifiers handed out by AutoID are
// never reused within one provider lifetime.
package memory
