package ledger

import (
	"context"
	"fmt"
	"sort"

	"github.com/codetrail/codetrail/internal/ledger/domain/entry"
	"github.com/codetrail/codetrail/internal/ledger/storage"
	apperrors "github.com/codetrail/codetrail/internal/platform/errors"
)

// Query flushes pending writes, then returns entries matching q ordered by
// sequence (newest first unless q.Ascending). Flushing first gives
// read-your-writes within this process; there is no cross-process guarantee.
func (l *Ledger) Query(ctx context.Context, q storage.ListQuery) ([]entry.Entry, error) {
	if l == nil {
		return nil, fmt.Errorf("ledger is not configured")
	}
	if err := l.Flush(ctx); err != nil {
		return nil, err
	}

	if l.store == nil {
		return l.queryRetained(q), nil
	}

	entries, err := l.store.ListEntries(ctx, q)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeStorageFailure, "query entries", err)
	}
	return entries, nil
}

// GetRecent returns the most recent entries up to limit.
func (l *Ledger) GetRecent(ctx context.Context, limit int) ([]entry.Entry, error) {
	if limit <= 0 {
		limit = boundedFetchLimit
	}
	return l.Query(ctx, storage.ListQuery{Limit: limit})
}

// GetEntry returns one entry by id, checking the unflushed buffer before
// storage so an append is immediately observable.
func (l *Ledger) GetEntry(ctx context.Context, entryID string) (entry.Entry, error) {
	if l == nil {
		return entry.Entry{}, fmt.Errorf("ledger is not configured")
	}
	if entryID == "" {
		return entry.Entry{}, fmt.Errorf("entry id is required")
	}

	l.mu.Lock()
	for i := len(l.pending) - 1; i >= 0; i-- {
		if l.pending[i].ID == entryID {
			found := l.pending[i]
			l.mu.Unlock()
			return found, nil
		}
	}
	for i := len(l.retained) - 1; i >= 0; i-- {
		if l.retained[i].ID == entryID {
			found := l.retained[i]
			l.mu.Unlock()
			return found, nil
		}
	}
	l.mu.Unlock()

	if l.store == nil {
		return entry.Entry{}, storage.ErrNotFound
	}
	return l.store.GetEntry(ctx, entryID)
}

// GetForEntity returns recent entries that impacted the given entity.
// Bounded fetch plus in-memory filter; acceptable given bounded retention.
func (l *Ledger) GetForEntity(ctx context.Context, entityID string, limit int) ([]entry.Entry, error) {
	if entityID == "" {
		return nil, fmt.Errorf("entity id is required")
	}
	return l.filterRecent(ctx, limit, func(e entry.Entry) bool {
		return anyOverlap([]string{entityID}, e.ImpactedEntities)
	})
}

// GetForFile returns recent entries that impacted the given file path.
func (l *Ledger) GetForFile(ctx context.Context, path string, limit int) ([]entry.Entry, error) {
	if path == "" {
		return nil, fmt.Errorf("file path is required")
	}
	return l.filterRecent(ctx, limit, func(e entry.Entry) bool {
		return anyOverlap([]string{path}, e.ImpactedFiles)
	})
}

func (l *Ledger) filterRecent(ctx context.Context, limit int, keep func(entry.Entry) bool) ([]entry.Entry, error) {
	if limit <= 0 || limit > boundedFetchLimit {
		limit = boundedFetchLimit
	}
	recent, err := l.Query(ctx, storage.ListQuery{Limit: boundedFetchLimit})
	if err != nil {
		return nil, err
	}
	var matched []entry.Entry
	for _, e := range recent {
		if keep(e) {
			matched = append(matched, e)
			if len(matched) >= limit {
				break
			}
		}
	}
	return matched, nil
}

// queryRetained serves queries in ephemeral mode from the in-memory log.
func (l *Ledger) queryRetained(q storage.ListQuery) []entry.Entry {
	l.mu.Lock()
	snapshot := make([]entry.Entry, len(l.retained))
	copy(snapshot, l.retained)
	l.mu.Unlock()

	var matched []entry.Entry
	for _, e := range snapshot {
		if matchesListQuery(e, q) {
			matched = append(matched, e)
		}
	}

	sort.Slice(matched, func(i, j int) bool {
		if q.Ascending {
			return matched[i].Sequence < matched[j].Sequence
		}
		return matched[i].Sequence > matched[j].Sequence
	})

	if q.Offset > 0 {
		if q.Offset >= len(matched) {
			return nil
		}
		matched = matched[q.Offset:]
	}
	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}
	return matched
}

func matchesListQuery(e entry.Entry, q storage.ListQuery) bool {
	if !q.Since.IsZero() && e.Timestamp.Before(q.Since) {
		return false
	}
	if !q.Until.IsZero() && e.Timestamp.After(q.Until) {
		return false
	}
	if q.CorrelationID != "" && e.CorrelationID != q.CorrelationID {
		return false
	}
	if q.SessionID != "" && e.SessionID != q.SessionID {
		return false
	}
	if len(q.Types) > 0 && !containsType(q.Types, e.Type) {
		return false
	}
	if len(q.Sources) > 0 && !containsSource(q.Sources, e.Source) {
		return false
	}
	return true
}
