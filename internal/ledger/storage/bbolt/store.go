// Package bbolt provides a BoltDB-backed ledger store for single-binary
// embedded deployments where running SQLite is unwanted.
//
// Entries live in one bucket keyed by id with a secondary big-endian
// sequence index for ordered scans; summaries are keyed by id with a
// session index enforcing one summary per session.
package bbolt

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/codetrail/codetrail/internal/ledger/domain/entry"
	"github.com/codetrail/codetrail/internal/ledger/domain/summary"
	"github.com/codetrail/codetrail/internal/ledger/storage"
	"go.etcd.io/bbolt"
)

const (
	entryBucket          = "entries"
	entrySeqBucket       = "entries_by_seq"
	summaryBucket        = "summaries"
	summarySessionBucket = "summaries_by_session"
)

// Store provides a BoltDB-backed ledger store.
type Store struct {
	db *bbolt.DB
}

// Open opens a BoltDB-backed store at the provided path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	db, err := bbolt.Open(cleanPath, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open storage db: %w", err)
	}

	store := &Store{db: db}
	if err := store.ensureBuckets(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the underlying BoltDB database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// AppendEntries persists a batch of entries in one transaction.
func (s *Store) AppendEntries(ctx context.Context, entries []entry.Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.db == nil {
		return fmt.Errorf("storage is not configured")
	}
	if len(entries) == 0 {
		return nil
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		byID := tx.Bucket([]byte(entryBucket))
		bySeq := tx.Bucket([]byte(entrySeqBucket))
		if byID == nil || bySeq == nil {
			return fmt.Errorf("entry buckets are missing")
		}
		for i, e := range entries {
			if strings.TrimSpace(e.ID) == "" {
				return fmt.Errorf("entry %d: id is required", i)
			}
			if !e.Type.IsValid() {
				return fmt.Errorf("entry %d: event type is required", i)
			}
			if e.Sequence == 0 {
				return fmt.Errorf("entry %d: sequence is required", i)
			}
			payload, err := json.Marshal(e)
			if err != nil {
				return fmt.Errorf("marshal entry %s: %w", e.ID, err)
			}
			if err := byID.Put([]byte(e.ID), payload); err != nil {
				return fmt.Errorf("put entry %s: %w", e.ID, err)
			}
			if err := bySeq.Put(seqKey(e.Sequence), []byte(e.ID)); err != nil {
				return fmt.Errorf("index entry %s: %w", e.ID, err)
			}
		}
		return nil
	})
}

// GetEntry fetches one entry by id.
func (s *Store) GetEntry(ctx context.Context, id string) (entry.Entry, error) {
	if err := ctx.Err(); err != nil {
		return entry.Entry{}, err
	}
	if s == nil || s.db == nil {
		return entry.Entry{}, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(id) == "" {
		return entry.Entry{}, fmt.Errorf("entry id is required")
	}

	var result entry.Entry
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(entryBucket))
		if bucket == nil {
			return fmt.Errorf("entry bucket is missing")
		}
		payload := bucket.Get([]byte(id))
		if payload == nil {
			return storage.ErrNotFound
		}
		return json.Unmarshal(payload, &result)
	})
	if err != nil {
		return entry.Entry{}, err
	}
	return result, nil
}

// ListEntries scans the sequence index and filters in memory.
//
// The scan direction follows the requested ordering so limit/offset apply
// without materializing the full journal.
func (s *Store) ListEntries(ctx context.Context, q storage.ListQuery) ([]entry.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	var result []entry.Entry
	skipped := 0
	err := s.db.View(func(tx *bbolt.Tx) error {
		byID := tx.Bucket([]byte(entryBucket))
		bySeq := tx.Bucket([]byte(entrySeqBucket))
		if byID == nil || bySeq == nil {
			return fmt.Errorf("entry buckets are missing")
		}

		cursor := bySeq.Cursor()
		next := cursor.Prev
		k, v := cursor.Last()
		if q.Ascending {
			next = cursor.Next
			k, v = cursor.First()
		}

		for ; k != nil; k, v = next() {
			payload := byID.Get(v)
			if payload == nil {
				continue
			}
			var e entry.Entry
			if err := json.Unmarshal(payload, &e); err != nil {
				return fmt.Errorf("unmarshal entry %s: %w", v, err)
			}
			if !matchesQuery(e, q) {
				continue
			}
			if skipped < q.Offset {
				skipped++
				continue
			}
			result = append(result, e)
			if q.Limit > 0 && len(result) >= q.Limit {
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// MaxSequence returns the highest indexed sequence, 0 when empty.
func (s *Store) MaxSequence(ctx context.Context) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("storage is not configured")
	}

	var max uint64
	err := s.db.View(func(tx *bbolt.Tx) error {
		bySeq := tx.Bucket([]byte(entrySeqBucket))
		if bySeq == nil {
			return fmt.Errorf("sequence bucket is missing")
		}
		k, _ := bySeq.Cursor().Last()
		if k != nil {
			max = binary.BigEndian.Uint64(k)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return max, nil
}

// CountEntries returns the number of stored entries.
func (s *Store) CountEntries(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("storage is not configured")
	}

	var count int64
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(entryBucket))
		if bucket == nil {
			return fmt.Errorf("entry bucket is missing")
		}
		count = int64(bucket.Stats().KeyN)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// DeleteEntriesBefore removes entries older than cutoff.
func (s *Store) DeleteEntriesBefore(ctx context.Context, cutoff time.Time) (int64, error) {
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
		byID := tx.Bucket([]byte(entryBucket))
		bySeq := tx.Bucket([]byte(entrySeqBucket))
		if byID == nil || bySeq == nil {
			return fmt.Errorf("entry buckets are missing")
		}

		cursor := bySeq.Cursor()
		for k, v := cursor.First(); k != nil; k, v = cursor.Next() {
			payload := byID.Get(v)
			if payload == nil {
				continue
			}
			var e entry.Entry
			if err := json.Unmarshal(payload, &e); err != nil {
				return fmt.Errorf("unmarshal entry %s: %w", v, err)
			}
			if !e.Timestamp.Before(cutoff) {
				continue
			}
			if err := byID.Delete(v); err != nil {
				return fmt.Errorf("delete entry %s: %w", v, err)
			}
			if err := cursor.Delete(); err != nil {
				return fmt.Errorf("delete entry index %s: %w", v, err)
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

func (s *Store) ensureBuckets() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{entryBucket, entrySeqBucket, summaryBucket, summarySessionBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("create %s bucket: %w", name, err)
			}
		}
		return nil
	})
}

func seqKey(seq uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)
	return key
}

func matchesQuery(e entry.Entry, q storage.ListQuery) bool {
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

func containsType(values []entry.Type, v entry.Type) bool {
	for _, value := range values {
		if value == v {
			return true
		}
	}
	return false
}

func containsSource(values []entry.Source, v entry.Source) bool {
	for _, value := range values {
		if value == v {
			return true
		}
	}
	return false
}

var _ storage.Store = (*Store)(nil)

func marshalSummary(record summary.Summary) ([]byte, error) {
	payload, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("marshal summary: %w", err)
	}
	return payload, nil
}
