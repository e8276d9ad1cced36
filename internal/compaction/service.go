// Package compaction folds raw ledger entries into durable session
// summaries.
//
// A compaction pass reconstructs session boundaries from a recent batch,
// infers each session's intent, aggregates its code surface losslessly, and
// stores one summary per session. Raw entries are never deleted here;
// retention stays with the ledger.
package compaction

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/codetrail/codetrail/internal/compaction/integrity"
	"github.com/codetrail/codetrail/internal/compaction/intent"
	"github.com/codetrail/codetrail/internal/ledger/domain/entry"
	"github.com/codetrail/codetrail/internal/ledger/domain/summary"
	"github.com/codetrail/codetrail/internal/ledger/storage"
	apperrors "github.com/codetrail/codetrail/internal/platform/errors"
	"github.com/codetrail/codetrail/internal/platform/id"
)

// EntrySource is the slice of the ledger the compaction service reads from.
type EntrySource interface {
	Query(ctx context.Context, q storage.ListQuery) ([]entry.Entry, error)
	PruneExpired(ctx context.Context) (int64, error)
}

// Result reports one compaction pass.
type Result struct {
	// Processed is how many raw entries the pass fetched.
	Processed int `json:"processed"`
	// Compacted is how many summaries the pass stored.
	Compacted int `json:"compacted"`
	// SessionsProcessed is how many reconstructed sessions the pass examined.
	SessionsProcessed int `json:"sessionsProcessed"`
	// Errors maps failed session ids to their error text.
	Errors   map[string]string `json:"errors,omitempty"`
	Duration time.Duration     `json:"duration"`
	// Success is false when any session failed or the batch fetch failed.
	Success bool `json:"success"`
}

// Service runs compaction passes over the ledger.
type Service struct {
	entries       EntrySource
	summaries     storage.SummaryStore
	analyzer      intent.Analyzer
	reconstructor *Reconstructor
	config        Config
	tracer        trace.Tracer
	now           func() time.Time

	mu       sync.Mutex
	autoStop chan struct{}
	autoDone chan struct{}
}

// New creates a compaction service. A nil analyzer falls back to the
// rule-based default.
func New(entries EntrySource, summaries storage.SummaryStore, analyzer intent.Analyzer, config Config) *Service {
	config = config.normalized()
	if analyzer == nil {
		analyzer = intent.NewRuleBased()
	}
	return &Service{
		entries:       entries,
		summaries:     summaries,
		analyzer:      analyzer,
		reconstructor: NewReconstructor(config.SessionTimeout),
		config:        config,
		tracer:        otel.Tracer("codetrail/compaction"),
		now:           time.Now,
	}
}

// Compact fetches the most recent batch, reconstructs sessions, and stores
// one summary per session. A batch below the minimum is a successful no-op.
// Per-session failures are captured; the pass keeps going.
func (s *Service) Compact(ctx context.Context) (Result, error) {
	if s == nil {
		return Result{}, fmt.Errorf("compaction service is not configured")
	}
	ctx, span := s.tracer.Start(ctx, "compaction.Compact")
	defer span.End()

	started := s.now()
	fetchLimit := s.config.BatchSize
	if s.config.MaxRawEvents < fetchLimit {
		fetchLimit = s.config.MaxRawEvents
	}
	batch, err := s.entries.Query(ctx, storage.ListQuery{Limit: fetchLimit})
	if err != nil {
		return Result{Duration: s.now().Sub(started)},
			apperrors.Wrap(apperrors.CodeCompactionFailed, "fetch compaction batch", err)
	}
	if len(batch) < s.config.MinEventsForCompaction {
		return Result{Processed: len(batch), Duration: s.now().Sub(started), Success: true}, nil
	}

	result := s.compactBatch(ctx, batch)
	result.Duration = s.now().Sub(started)
	span.SetAttributes(
		attribute.Int("compaction.processed", result.Processed),
		attribute.Int("compaction.compacted", result.Compacted),
		attribute.Bool("compaction.success", result.Success),
	)
	return result, nil
}

// CompactTimeRange compacts every session reconstructed inside the window.
// The whole-batch floor does not apply (an explicit range is an explicit
// request), but the fetch is still bounded at MaxRawEvents per pass.
func (s *Service) CompactTimeRange(ctx context.Context, start, end time.Time) (Result, error) {
	if s == nil {
		return Result{}, fmt.Errorf("compaction service is not configured")
	}
	ctx, span := s.tracer.Start(ctx, "compaction.CompactTimeRange")
	defer span.End()

	startedAt := s.now()
	batch, err := s.entries.Query(ctx, storage.ListQuery{Since: start, Until: end, Limit: s.config.MaxRawEvents})
	if err != nil {
		return Result{Duration: s.now().Sub(startedAt)},
			apperrors.Wrap(apperrors.CodeCompactionFailed, "fetch time range", err)
	}
	result := s.compactBatch(ctx, batch)
	result.Duration = s.now().Sub(startedAt)
	return result, nil
}

// CompactSession compacts one explicit session and returns its summary.
func (s *Service) CompactSession(ctx context.Context, sessionID string) (summary.Summary, error) {
	if s == nil {
		return summary.Summary{}, fmt.Errorf("compaction service is not configured")
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return summary.Summary{}, fmt.Errorf("session id is required")
	}

	entries, err := s.entries.Query(ctx, storage.ListQuery{SessionID: sessionID, Ascending: true})
	if err != nil {
		return summary.Summary{}, apperrors.Wrap(apperrors.CodeCompactionFailed, "fetch session entries", err)
	}
	if len(entries) == 0 {
		return summary.Summary{}, apperrors.New(apperrors.CodeNotFound,
			fmt.Sprintf("session %s has no entries", sessionID))
	}

	groups := s.reconstructor.Reconstruct(entries)
	// An explicit session id holds the run together regardless of gaps.
	merged := groups[len(groups)-1]
	for i := len(groups) - 2; i >= 0; i-- {
		merged.Entries = append(merged.Entries, groups[i].Entries...)
		merged.EndTime = groups[i].EndTime
	}
	merged.SessionID = sessionID

	folded, err := s.compactGroup(merged)
	if err != nil {
		return summary.Summary{}, err
	}
	if err := s.summaries.PutSummary(ctx, folded); err != nil {
		if errors.Is(err, storage.ErrSessionCompacted) {
			return summary.Summary{}, storage.ErrSessionCompacted
		}
		return summary.Summary{}, apperrors.Wrap(apperrors.CodeCompactionFailed, "store summary", err)
	}
	return folded, nil
}

// compactBatch reconstructs and folds a batch, capturing per-session errors.
// Sessions below the event minimum are skipped, not failed: their raw
// entries stay in the ledger until the session grows or retention removes
// them.
func (s *Service) compactBatch(ctx context.Context, batch []entry.Entry) Result {
	result := Result{Processed: len(batch), Success: true}
	for _, group := range s.reconstructor.Reconstruct(batch) {
		if len(group.Entries) < s.config.MinEventsForCompaction {
			continue
		}
		result.SessionsProcessed++

		folded, err := s.compactGroup(group)
		if err != nil {
			result.Errors = appendError(result.Errors, group.SessionID, err)
			result.Success = false
			continue
		}
		if err := s.summaries.PutSummary(ctx, folded); err != nil {
			if errors.Is(err, storage.ErrSessionCompacted) {
				// Already folded by an earlier pass; raw-event provenance
				// stays disjoint.
				continue
			}
			result.Errors = appendError(result.Errors, group.SessionID, err)
			result.Success = false
			continue
		}
		result.Compacted++
	}
	return result
}

// compactGroup folds one session group into a summary record.
func (s *Service) compactGroup(group summary.Group) (summary.Summary, error) {
	inferred, err := s.analyzer.Analyze(group)
	if err != nil {
		return summary.Summary{}, apperrors.Wrap(apperrors.CodeCompactionFailed, "analyze intent", err)
	}

	summaryID, err := id.NewID()
	if err != nil {
		return summary.Summary{}, fmt.Errorf("assign summary id: %w", err)
	}

	folded := summary.Summary{
		ID:              summaryID,
		SessionID:       group.SessionID,
		StartTime:       group.StartTime,
		EndTime:         group.EndTime,
		Source:          group.Source,
		IntentSummary:   inferred.Summary,
		IntentCategory:  inferred.Category,
		UserPrompts:     inferred.Prompts,
		ConfidenceScore: inferred.Confidence,
	}

	var (
		files     = newOrderedSet()
		entities  = newOrderedSet()
		modified  = newOrderedSet()
		created   = newOrderedSet()
		deleted   = newOrderedSet()
		verticals = newOrderedSet()
		horiz     = newOrderedSet()
		tools     = newOrderedSet()
	)
	hasMCP, hasGraph, hasClassification, hasUser := false, false, false, false

	for _, e := range group.Entries {
		files.add(e.ImpactedFiles...)
		entities.add(e.ImpactedEntities...)
		verticals.add(e.DomainTags...)
		horiz.add(e.InfraTags...)

		switch changeKind(e.Type) {
		case changeCreated:
			created.add(e.ImpactedFiles...)
		case changeDeleted:
			deleted.add(e.ImpactedFiles...)
		case changeModified:
			modified.add(e.ImpactedFiles...)
		}

		if e.Type.Namespace() == entry.NamespaceIndex {
			folded.IndexUpdates.FilesIndexed += len(e.ImpactedFiles)
		}
		if e.GraphDiff != nil && !e.GraphDiff.Empty() {
			hasGraph = true
			folded.IndexUpdates.NodesAdded += e.GraphDiff.NodesAdded
			folded.IndexUpdates.NodesRemoved += e.GraphDiff.NodesRemoved
			folded.IndexUpdates.EdgesAdded += e.GraphDiff.EdgesAdded
			folded.IndexUpdates.EdgesRemoved += e.GraphDiff.EdgesRemoved
		}
		if e.MCPContext != nil {
			hasMCP = true
			tools.add(e.MCPContext.Tool)
			folded.QueryTraces = append(folded.QueryTraces, summary.QueryTrace{
				Tool:         e.MCPContext.Tool,
				Query:        e.MCPContext.Query,
				ResultCount:  e.MCPContext.ResultCount,
				ResponseTime: e.MCPContext.ResponseTime,
				Timestamp:    e.Timestamp,
			})
		}
		if e.HasClassificationChange() {
			hasClassification = true
		}
		if e.HasUserInteraction() {
			hasUser = true
		}
		if folded.GitCommit == "" {
			folded.GitCommit = e.Metadata["gitCommit"]
		}
		if folded.GitBranch == "" {
			folded.GitBranch = e.Metadata["gitBranch"]
		}
	}

	folded.CodeAccessed = summary.CodeAccessed{Files: files.values(), Entities: entities.values()}
	folded.CodeChanges = summary.CodeChanges{
		Modified: modified.values(),
		Created:  created.values(),
		Deleted:  deleted.values(),
	}
	folded.SemanticImpact = summary.SemanticImpact{Verticals: verticals.values(), Horizontals: horiz.values()}
	folded.ToolsUsed = tools.values()

	// Provenance is complete: every folded entry's id is recorded. Volume
	// is bounded at fetch time, never by dropping ids here.
	folded.RawEventIDs = group.EntryIDs()

	completeness := 0.3
	if hasMCP {
		completeness += 0.2
	}
	if hasGraph {
		completeness += 0.2
	}
	if hasClassification {
		completeness += 0.15
	}
	if hasUser {
		completeness += 0.15
	}
	if completeness > 1 {
		completeness = 1
	}
	folded.Completeness = completeness

	hash, err := integrity.ContentHash(folded)
	if err != nil {
		return summary.Summary{}, fmt.Errorf("hash summary: %w", err)
	}
	folded.ContentHash = hash
	return folded, nil
}

// ActiveSessions reconstructs session groups over the most recent entries.
// Sessions already summarized are filtered out.
func (s *Service) ActiveSessions(ctx context.Context) ([]summary.Group, error) {
	if s == nil {
		return nil, fmt.Errorf("compaction service is not configured")
	}
	recent, err := s.entries.Query(ctx, storage.ListQuery{Limit: activeSessionScan})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeCompactionFailed, "fetch recent entries", err)
	}

	var active []summary.Group
	for _, group := range s.reconstructor.Reconstruct(recent) {
		if len(group.Entries) == 0 {
			continue
		}
		if _, err := s.summaries.GetSummaryBySession(ctx, group.SessionID); err == nil {
			continue
		} else if !errors.Is(err, storage.ErrNotFound) {
			return nil, apperrors.Wrap(apperrors.CodeCompactionFailed, "check session summary", err)
		}
		active = append(active, group)
	}
	return active, nil
}

// VerifyIntegrity recomputes the stored summary's content hash and compares.
// A mismatch is a signal, not an error: the summary stays readable.
func (s *Service) VerifyIntegrity(ctx context.Context, summaryID string) (bool, error) {
	if s == nil {
		return false, fmt.Errorf("compaction service is not configured")
	}
	stored, err := s.summaries.GetSummary(ctx, summaryID)
	if err != nil {
		return false, err
	}
	return integrity.Verify(stored)
}

// ContentHash exposes the canonical summary digest.
func (s *Service) ContentHash(sum summary.Summary) (string, error) {
	return integrity.ContentHash(sum)
}

// CleanupRawEvents delegates raw-entry deletion to ledger retention; the
// compaction service itself never deletes raw rows.
func (s *Service) CleanupRawEvents(ctx context.Context) (int64, error) {
	if s == nil {
		return 0, fmt.Errorf("compaction service is not configured")
	}
	return s.entries.PruneExpired(ctx)
}

// StartAutoCompaction begins periodic Compact runs. A second start while
// running is a no-op, as is starting with a non-positive interval.
func (s *Service) StartAutoCompaction() {
	if s == nil || s.config.AutoInterval <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.autoStop != nil {
		return
	}
	s.autoStop = make(chan struct{})
	s.autoDone = make(chan struct{})
	go s.autoLoop(s.autoStop, s.autoDone)
}

// StopAutoCompaction halts the scheduler and waits for an in-flight run.
// Idempotent.
func (s *Service) StopAutoCompaction() {
	if s == nil {
		return
	}
	s.mu.Lock()
	stop := s.autoStop
	done := s.autoDone
	s.autoStop = nil
	s.autoDone = nil
	s.mu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}
}

// Shutdown stops the scheduler and runs one final pass.
func (s *Service) Shutdown(ctx context.Context) error {
	if s == nil {
		return nil
	}
	s.StopAutoCompaction()
	if _, err := s.Compact(ctx); err != nil {
		return fmt.Errorf("final compaction: %w", err)
	}
	return nil
}

// autoLoop runs Compact on a ticker until stopped. A failed run is logged
// and the schedule continues.
func (s *Service) autoLoop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.config.AutoInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			result, err := s.Compact(context.Background())
			if err != nil {
				log.Printf("auto compaction failed: %v", err)
				continue
			}
			if !result.Success {
				log.Printf("auto compaction finished with %d session errors", len(result.Errors))
			}
		case <-stop:
			return
		}
	}
}

type changeClass int

const (
	changeNone changeClass = iota
	changeModified
	changeCreated
	changeDeleted
)

// changeKind classifies an event type by its trailing action verb.
func changeKind(t entry.Type) changeClass {
	name := string(t)
	switch {
	case strings.HasSuffix(name, ":added"), strings.HasSuffix(name, ":created"):
		return changeCreated
	case strings.HasSuffix(name, ":deleted"), strings.HasSuffix(name, ":removed"):
		return changeDeleted
	case strings.HasSuffix(name, ":modified"), strings.HasSuffix(name, ":changed"),
		strings.HasSuffix(name, ":updated"):
		return changeModified
	default:
		return changeNone
	}
}

func appendError(errs map[string]string, sessionID string, err error) map[string]string {
	if errs == nil {
		errs = make(map[string]string)
	}
	errs[sessionID] = err.Error()
	return errs
}

// orderedSet deduplicates strings preserving first-seen order.
type orderedSet struct {
	seen  map[string]struct{}
	order []string
}

func newOrderedSet() *orderedSet {
	return &orderedSet{seen: make(map[string]struct{})}
}

func (s *orderedSet) add(values ...string) {
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, dup := s.seen[v]; dup {
			continue
		}
		s.seen[v] = struct{}{}
		s.order = append(s.order, v)
	}
}

func (s *orderedSet) values() []string {
	if len(s.order) == 0 {
		return nil
	}
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}
