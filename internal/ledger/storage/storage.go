// Package storage defines persistence contracts for the change ledger.
//
// It covers the raw entry journal and the compacted session summaries.
// Implementations (SQLite, bbolt) live in subpackages and translate the
// domain-shaped records into concrete rows; structured sub-fields (contexts,
// metadata, impact buckets) are stored as serialized JSON blobs inside
// otherwise flat rows.
//
// Common error types:
//   - ErrNotFound: requested record is missing
//   - ErrSessionCompacted: a summary already exists for the session
package storage

import (
	"context"
	"time"

	apperrors "github.com/codetrail/codetrail/internal/platform/errors"
	"github.com/codetrail/codetrail/internal/ledger/domain/entry"
	"github.com/codetrail/codetrail/internal/ledger/domain/summary"
)

// ErrNotFound indicates a requested persistence record is missing.
var ErrNotFound = apperrors.New(apperrors.CodeNotFound, "record not found")

// ErrSessionCompacted indicates a summary already exists for a session.
// The unique session constraint is what keeps raw-event provenance disjoint
// across summaries.
var ErrSessionCompacted = apperrors.New(apperrors.CodeSessionCompacted, "session already compacted")

// ListQuery filters and pages an entry listing. Zero values mean "no bound".
type ListQuery struct {
	// Since/Until bound the entry timestamp, inclusive.
	Since time.Time
	Until time.Time
	// CorrelationID and SessionID are exact-match filters.
	CorrelationID string
	SessionID     string
	// Types and Sources restrict to the given values when non-empty.
	Types   []entry.Type
	Sources []entry.Source
	// Ascending orders by sequence oldest-first; the default is newest-first.
	Ascending bool
	// Limit caps the result set; Offset skips leading rows.
	Limit  int
	Offset int
}

// SummaryQuery filters and pages a summary listing.
type SummaryQuery struct {
	Since     time.Time
	Until     time.Time
	SessionID string
	Category  summary.IntentCategory
	Ascending bool
	Limit     int
	Offset    int
}

// EntryStore owns the append-only raw entry journal.
type EntryStore interface {
	// AppendEntries persists a batch atomically. Entries arrive with their
	// sequence already assigned by the ledger.
	AppendEntries(ctx context.Context, entries []entry.Entry) error
	// GetEntry fetches one entry by id, or ErrNotFound.
	GetEntry(ctx context.Context, id string) (entry.Entry, error)
	// ListEntries returns entries matching the query, ordered by sequence.
	ListEntries(ctx context.Context, q ListQuery) ([]entry.Entry, error)
	// MaxSequence returns the highest persisted sequence, 0 when empty.
	// The ledger recovers its counter from this on startup.
	MaxSequence(ctx context.Context) (uint64, error)
	// CountEntries returns the number of persisted entries.
	CountEntries(ctx context.Context) (int64, error)
	// DeleteEntriesBefore removes entries with timestamps strictly older
	// than cutoff and reports how many were removed.
	DeleteEntriesBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// SummaryStore owns the compacted session summaries.
type SummaryStore interface {
	// PutSummary persists a new summary. Returns ErrSessionCompacted when a
	// summary for the same session already exists.
	PutSummary(ctx context.Context, s summary.Summary) error
	// GetSummary fetches one summary by id, or ErrNotFound.
	GetSummary(ctx context.Context, id string) (summary.Summary, error)
	// GetSummaryBySession fetches the summary for a session, or ErrNotFound.
	GetSummaryBySession(ctx context.Context, sessionID string) (summary.Summary, error)
	// ListSummaries returns summaries matching the query, ordered by start time.
	ListSummaries(ctx context.Context, q SummaryQuery) ([]summary.Summary, error)
	// DeleteSummariesBefore removes summaries whose end time is strictly
	// older than cutoff and reports how many were removed.
	DeleteSummariesBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Store combines both persistence contracts; concrete adapters implement it.
type Store interface {
	EntryStore
	SummaryStore
	Close() error
}
