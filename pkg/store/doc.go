// Package store is the in-memory session registry for query transcripts.
//
// Invariants:
// - Status transitions are forward-only; terminal transcripts are immutable.
// - Operations on the same id serialize; different ids never contend past
//   the registry lookup.
// - Running transcripts are never evicted.
package store
