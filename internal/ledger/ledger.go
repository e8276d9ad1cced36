package ledger

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/codetrail/codetrail/internal/ledger/domain/entry"
	"github.com/codetrail/codetrail/internal/ledger/storage"
	apperrors "github.com/codetrail/codetrail/internal/platform/errors"
	"github.com/codetrail/codetrail/internal/platform/id"
)

// ErrNotInitialized indicates an append was attempted before Initialize.
var ErrNotInitialized = apperrors.New(apperrors.CodeLedgerNotInitialized, "ledger is not initialized")

// Ledger is the single source of truth for "what happened".
//
// All shared mutable state (pending buffer, sequence counter, subscriber map)
// is guarded by one mutex; storage I/O happens outside the lock so a slow
// flush never blocks appends beyond the buffer swap.
type Ledger struct {
	store  storage.EntryStore
	config Config

	mu          sync.Mutex
	initialized bool
	shutdown    bool
	nextSeq     uint64
	pending     []entry.Entry
	// retained holds flushed entries in ephemeral mode (no store configured)
	// so they stay query-able in memory.
	retained []entry.Entry
	subs     map[int]*subscriber
	nextSub  int

	timerStop chan struct{}
	timerDone chan struct{}

	now func() time.Time
}

// New creates a ledger over the given entry store.
//
// A nil store puts the ledger in ephemeral mode: entries stay query-able in
// memory for the lifetime of the process but are never persisted.
func New(store storage.EntryStore, config Config) *Ledger {
	return &Ledger{
		store:  store,
		config: config.normalized(),
		subs:   make(map[int]*subscriber),
		now:    time.Now,
	}
}

// Persistent reports whether the ledger writes through to durable storage.
func (l *Ledger) Persistent() bool {
	return l != nil && l.store != nil
}

// Initialize recovers the sequence counter from storage and starts the flush
// timer. It is idempotent; repeat calls are no-ops.
func (l *Ledger) Initialize(ctx context.Context) error {
	if l == nil {
		return fmt.Errorf("ledger is not configured")
	}

	l.mu.Lock()
	if l.initialized {
		l.mu.Unlock()
		return nil
	}
	l.mu.Unlock()

	// Recover the counter outside the lock; a restart must never reuse a
	// previously persisted sequence number.
	var maxSeq uint64
	if l.store != nil {
		recovered, err := l.store.MaxSequence(ctx)
		if err != nil {
			return fmt.Errorf("recover sequence: %w", err)
		}
		maxSeq = recovered
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.initialized {
		return nil
	}
	l.nextSeq = maxSeq + 1
	l.initialized = true

	if l.store != nil && l.config.FlushInterval > 0 {
		l.timerStop = make(chan struct{})
		l.timerDone = make(chan struct{})
		go l.flushLoop(l.timerStop, l.timerDone)
	}
	return nil
}

// Append records one entry: assigns id/timestamp/sequence when unset, buffers
// it, and synchronously notifies matching subscribers. The returned entry
// carries the assigned fields.
//
// When the buffer reaches MaxBatchSize the append triggers an inline flush;
// that is the only path where Append waits on storage.
func (l *Ledger) Append(ctx context.Context, e entry.Entry) (entry.Entry, error) {
	if l == nil {
		return entry.Entry{}, fmt.Errorf("ledger is not configured")
	}
	if !e.Type.IsValid() {
		return entry.Entry{}, apperrors.New(apperrors.CodeEntryTypeEmpty, "entry type is required")
	}

	if e.ID == "" {
		generated, err := id.NewID()
		if err != nil {
			return entry.Entry{}, fmt.Errorf("assign entry id: %w", err)
		}
		e.ID = generated
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = l.now().UTC()
	}
	e.Timestamp = e.Timestamp.UTC().Truncate(time.Millisecond)

	l.mu.Lock()
	if !l.initialized {
		l.mu.Unlock()
		return entry.Entry{}, ErrNotInitialized
	}
	if l.shutdown {
		l.mu.Unlock()
		return entry.Entry{}, fmt.Errorf("ledger is shut down")
	}
	if e.Sequence == 0 {
		e.Sequence = l.nextSeq
		l.nextSeq++
	} else if e.Sequence >= l.nextSeq {
		l.nextSeq = e.Sequence + 1
	}
	l.pending = append(l.pending, e)
	full := len(l.pending) >= l.config.MaxBatchSize
	listeners := l.matchingSubscribersLocked(e)
	l.mu.Unlock()

	// Notify after the entry is observable, before durability. A failing
	// subscriber never blocks the append or its siblings.
	for _, sub := range listeners {
		notify(sub, e)
	}

	if full {
		if err := l.Flush(ctx); err != nil {
			return e, err
		}
	}
	return e, nil
}

// Flush writes the pending buffer to storage. A no-op when the buffer is
// empty.
//
// The buffer is swapped atomically before the write; on write failure the
// dequeued entries are not re-queued. That at-most-once tradeoff keeps a
// poisoned batch from wedging the ledger permanently.
func (l *Ledger) Flush(ctx context.Context) error {
	if l == nil {
		return fmt.Errorf("ledger is not configured")
	}

	l.mu.Lock()
	if len(l.pending) == 0 {
		l.mu.Unlock()
		return nil
	}
	batch := l.pending
	l.pending = nil
	if l.store == nil {
		// Ephemeral mode: keep entries query-able in memory only.
		l.retained = append(l.retained, batch...)
		l.mu.Unlock()
		return nil
	}
	l.mu.Unlock()

	if err := l.store.AppendEntries(ctx, batch); err != nil {
		log.Printf("ledger flush failed, %d entries dropped: %v", len(batch), err)
		return apperrors.Wrap(apperrors.CodeStorageFailure, "flush ledger batch", err)
	}
	return nil
}

// Shutdown stops the flush timer and performs a final flush. Idempotent.
func (l *Ledger) Shutdown(ctx context.Context) error {
	if l == nil {
		return nil
	}

	l.mu.Lock()
	if l.shutdown {
		l.mu.Unlock()
		return nil
	}
	l.shutdown = true
	stop := l.timerStop
	done := l.timerDone
	l.timerStop = nil
	l.timerDone = nil
	l.mu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}
	return l.Flush(ctx)
}

// PruneExpired deletes persisted entries older than the retention window.
//
// This is ledger-level retention, independent from semantic session
// compaction: it is the only authority allowed to delete raw rows.
func (l *Ledger) PruneExpired(ctx context.Context) (int64, error) {
	if l == nil {
		return 0, fmt.Errorf("ledger is not configured")
	}
	if l.store == nil {
		return 0, nil
	}

	cutoff := l.now().UTC().AddDate(0, 0, -l.config.RetentionDays)
	deleted, err := l.store.DeleteEntriesBefore(ctx, cutoff)
	if err != nil {
		return 0, apperrors.Wrap(apperrors.CodeStorageFailure, "prune expired entries", err)
	}
	if deleted > 0 {
		log.Printf("ledger retention pruned %d entries older than %s", deleted, cutoff.Format(time.RFC3339))
	}
	return deleted, nil
}

// flushLoop drives periodic flushes until the stop channel closes.
func (l *Ledger) flushLoop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(l.config.FlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := l.Flush(context.Background()); err != nil {
				log.Printf("scheduled ledger flush: %v", err)
			}
		case <-stop:
			return
		}
	}
}
