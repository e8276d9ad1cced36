package bbolt

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/codetrail/codetrail/internal/ledger/domain/summary"
	"github.com/codetrail/codetrail/internal/ledger/storage"
	"go.etcd.io/bbolt"
)

// PutSummary persists a new session summary. The session index enforces one
// summary per session, mirroring the SQLite unique constraint.
func (s *Store) PutSummary(ctx context.Context, record summary.Summary) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.db == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(record.ID) == "" {
		return fmt.Errorf("summary id is required")
	}
	if strings.TrimSpace(record.SessionID) == "" {
		return fmt.Errorf("session id is required")
	}

	payload, err := marshalSummary(record)
	if err != nil {
		return err
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		byID := tx.Bucket([]byte(summaryBucket))
		bySession := tx.Bucket([]byte(summarySessionBucket))
		if byID == nil || bySession == nil {
			return fmt.Errorf("summary buckets are missing")
		}
		if bySession.Get([]byte(record.SessionID)) != nil {
			return storage.ErrSessionCompacted
		}
		if err := byID.Put([]byte(record.ID), payload); err != nil {
			return fmt.Errorf("put summary %s: %w", record.ID, err)
		}
		if err := bySession.Put([]byte(record.SessionID), []byte(record.ID)); err != nil {
			return fmt.Errorf("index summary %s: %w", record.ID, err)
		}
		return nil
	})
}

// GetSummary fetches one summary by id.
func (s *Store) GetSummary(ctx context.Context, id string) (summary.Summary, error) {
	if err := ctx.Err(); err != nil {
		return summary.Summary{}, err
	}
	if s == nil || s.db == nil {
		return summary.Summary{}, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(id) == "" {
		return summary.Summary{}, fmt.Errorf("summary id is required")
	}

	var result summary.Summary
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(summaryBucket))
		if bucket == nil {
			return fmt.Errorf("summary bucket is missing")
		}
		payload := bucket.Get([]byte(id))
		if payload == nil {
			return storage.ErrNotFound
		}
		return json.Unmarshal(payload, &result)
	})
	if err != nil {
		return summary.Summary{}, err
	}
	return result, nil
}

// GetSummaryBySession fetches the summary for a session via the index.
func (s *Store) GetSummaryBySession(ctx context.Context, sessionID string) (summary.Summary, error) {
	if err := ctx.Err(); err != nil {
		return summary.Summary{}, err
	}
	if s == nil || s.db == nil {
		return summary.Summary{}, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(sessionID) == "" {
		return summary.Summary{}, fmt.Errorf("session id is required")
	}

	var result summary.Summary
	err := s.db.View(func(tx *bbolt.Tx) error {
		byID := tx.Bucket([]byte(summaryBucket))
		bySession := tx.Bucket([]byte(summarySessionBucket))
		if byID == nil || bySession == nil {
			return fmt.Errorf("summary buckets are missing")
		}
		id := bySession.Get([]byte(sessionID))
		if id == nil {
			return storage.ErrNotFound
		}
		payload := byID.Get(id)
		if payload == nil {
			return storage.ErrNotFound
		}
		return json.Unmarshal(payload, &result)
	})
	if err != nil {
		return summary.Summary{}, err
	}
	return result, nil
}

// ListSummaries scans all summaries and filters/sorts in memory.
// Summary cardinality is one row per session, so a full scan stays cheap.
func (s *Store) ListSummaries(ctx context.Context, q storage.SummaryQuery) ([]summary.Summary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	var all []summary.Summary
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(summaryBucket))
		if bucket == nil {
			return fmt.Errorf("summary bucket is missing")
		}
		return bucket.ForEach(func(k, v []byte) error {
			var record summary.Summary
			if err := json.Unmarshal(v, &record); err != nil {
				return fmt.Errorf("unmarshal summary %s: %w", k, err)
			}
			if matchesSummaryQuery(record, q) {
				all = append(all, record)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(all, func(i, j int) bool {
		if q.Ascending {
			return all[i].StartTime.Before(all[j].StartTime)
		}
		return all[i].StartTime.After(all[j].StartTime)
	})

	if q.Offset > 0 {
		if q.Offset >= len(all) {
			return nil, nil
		}
		all = all[q.Offset:]
	}
	if q.Limit > 0 && len(all) > q.Limit {
		all = all[:q.Limit]
	}
	return all, nil
}

// DeleteSummariesBefore removes summaries whose end time is older than cutoff.
func (s *Store) DeleteSummariesBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("storage is not configured")
	}
	if cutoff.IsZero() {
		return 0, fmt.Errorf("cutoff is required")
	}

	var deleted int64
	err := s.db.Update(func(tx *bbolt.Tx) error {
		byID := tx.Bucket([]byte(summaryBucket))
		bySession := tx.Bucket([]byte(summarySessionBucket))
		if byID == nil || bySession == nil {
			return fmt.Errorf("summary buckets are missing")
		}

		cursor := byID.Cursor()
		for k, v := cursor.First(); k != nil; k, v = cursor.Next() {
			var record summary.Summary
			if err := json.Unmarshal(v, &record); err != nil {
				return fmt.Errorf("unmarshal summary %s: %w", k, err)
			}
			if !record.EndTime.Before(cutoff) {
				continue
			}
			if err := cursor.Delete(); err != nil {
				return fmt.Errorf("delete summary %s: %w", k, err)
			}
			if err := bySession.Delete([]byte(record.SessionID)); err != nil {
				return fmt.Errorf("delete summary index %s: %w", k, err)
			}
			deleted++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}

func matchesSummaryQuery(record summary.Summary, q storage.SummaryQuery) bool {
	if !q.Since.IsZero() && record.StartTime.Before(q.Since) {
		return false
	}
	if !q.Until.IsZero() && record.EndTime.After(q.Until) {
		return false
	}
	if q.SessionID != "" && record.SessionID != q.SessionID {
		return false
	}
	if q.Category != "" && record.IntentCategory != q.Category {
		return false
	}
	return true
}
