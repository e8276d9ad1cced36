package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/codetrail/codetrail/internal/ledger/domain/summary"
	"github.com/codetrail/codetrail/internal/ledger/storage"
)

func testSummary(id, sessionID string, start time.Time) summary.Summary {
	return summary.Summary{
		ID:             id,
		SessionID:      sessionID,
		StartTime:      start,
		EndTime:        start.Add(10 * time.Minute),
		Source:         summary.SessionSourceAgent,
		IntentSummary:  "queried 3 files while debugging",
		IntentCategory: summary.IntentDebugging,
		RawEventIDs:    []string{"e1", "e2"},
		ContentHash:    "abc123",
	}
}

func TestPutAndGetSummaryRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	start := time.Date(2026, 8, 2, 9, 0, 0, 0, time.UTC)
	record := testSummary("c1", "s1", start)
	record.UserPrompts = []string{"why does the build fail"}
	record.CodeChanges = summary.CodeChanges{Modified: []string{"a.go"}}

	if err := store.PutSummary(ctx, record); err != nil {
		t.Fatalf("put summary: %v", err)
	}

	got, err := store.GetSummary(ctx, "c1")
	if err != nil {
		t.Fatalf("get summary: %v", err)
	}
	if got.SessionID != "s1" || got.IntentCategory != summary.IntentDebugging {
		t.Fatalf("unexpected summary %+v", got)
	}
	if len(got.UserPrompts) != 1 || got.UserPrompts[0] != "why does the build fail" {
		t.Fatalf("expected prompts to survive, got %v", got.UserPrompts)
	}

	bySession, err := store.GetSummaryBySession(ctx, "s1")
	if err != nil {
		t.Fatalf("get summary by session: %v", err)
	}
	if bySession.ID != "c1" {
		t.Fatalf("expected c1, got %s", bySession.ID)
	}
}

func TestPutSummaryDuplicateSession(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	start := time.Date(2026, 8, 2, 9, 0, 0, 0, time.UTC)
	if err := store.PutSummary(ctx, testSummary("c1", "s1", start)); err != nil {
		t.Fatalf("put summary: %v", err)
	}

	err := store.PutSummary(ctx, testSummary("c2", "s1", start.Add(time.Hour)))
	if err != storage.ErrSessionCompacted {
		t.Fatalf("expected ErrSessionCompacted, got %v", err)
	}
}

func TestListSummariesFilters(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	start := time.Date(2026, 8, 2, 9, 0, 0, 0, time.UTC)
	first := testSummary("c1", "s1", start)
	second := testSummary("c2", "s2", start.Add(time.Hour))
	second.IntentCategory = summary.IntentTesting

	if err := store.PutSummary(ctx, first); err != nil {
		t.Fatalf("put first: %v", err)
	}
	if err := store.PutSummary(ctx, second); err != nil {
		t.Fatalf("put second: %v", err)
	}

	all, err := store.ListSummaries(ctx, storage.SummaryQuery{})
	if err != nil {
		t.Fatalf("list summaries: %v", err)
	}
	if len(all) != 2 || all[0].ID != "c2" {
		t.Fatalf("expected newest-first listing, got %+v", all)
	}

	byCategory, err := store.ListSummaries(ctx, storage.SummaryQuery{Category: summary.IntentTesting})
	if err != nil {
		t.Fatalf("list by category: %v", err)
	}
	if len(byCategory) != 1 || byCategory[0].ID != "c2" {
		t.Fatalf("expected category filter to return c2, got %+v", byCategory)
	}
}

func TestDeleteSummariesBefore(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	start := time.Date(2026, 8, 2, 9, 0, 0, 0, time.UTC)
	if err := store.PutSummary(ctx, testSummary("c1", "s1", start)); err != nil {
		t.Fatalf("put old: %v", err)
	}
	if err := store.PutSummary(ctx, testSummary("c2", "s2", start.Add(24*time.Hour))); err != nil {
		t.Fatalf("put new: %v", err)
	}

	deleted, err := store.DeleteSummariesBefore(ctx, start.Add(time.Hour))
	if err != nil {
		t.Fatalf("delete summaries: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("expected 1 deleted summary, got %d", deleted)
	}
	if _, err := store.GetSummary(ctx, "c1"); err != storage.ErrNotFound {
		t.Fatalf("expected c1 gone, got %v", err)
	}
}
