// Package ledger implements the append-only change ledger at the heart of
// codetrail.
//
// Producers append immutable entries describing what happened (tool queries,
// index changes, classification updates, graph writes, user feedback,
// failures); the ledger assigns monotonic sequence numbers, buffers writes
// behind a flush timer for batched durability, fans entries out to in-process
// subscribers, and answers filtered queries, timeline projections, and
// bounded aggregations.
//
// Durability is write-behind: the persisted view lags the observable view by
// at most one flush interval or one full batch. Queries flush first, so reads
// within the process always see their own writes. A failed batch write is not
// re-queued; the at-most-once durability tradeoff is deliberate and surfaced
// to callers as an error from Flush.
package ledger
