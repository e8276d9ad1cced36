package compaction

import (
	"testing"
	"time"

	"github.com/codetrail/codetrail/internal/ledger/domain/entry"
	"github.com/codetrail/codetrail/internal/ledger/domain/summary"
)

var reconstructBase = time.Date(2026, 8, 25, 9, 0, 0, 0, time.UTC)

func entryAt(id string, offset time.Duration, mutate ...func(*entry.Entry)) entry.Entry {
	e := entry.Entry{
		ID:        id,
		Type:      "index:file:modified",
		Source:    entry.SourceIndexer,
		Timestamp: reconstructBase.Add(offset),
	}
	for _, m := range mutate {
		m(&e)
	}
	return e
}

func TestReconstructSplitsOnIdleGap(t *testing.T) {
	r := NewReconstructor(30 * time.Minute)
	entries := []entry.Entry{
		entryAt("a1", 0),
		entryAt("a2", 5*time.Minute),
		entryAt("b1", 50*time.Minute),
		entryAt("b2", 55*time.Minute),
		entryAt("c1", 2*time.Hour),
	}

	groups := r.Reconstruct(entries)
	if len(groups) != 3 {
		t.Fatalf("Reconstruct() = %d groups, want 3", len(groups))
	}
	// Newest session first; entries within each group oldest first.
	if groups[0].Entries[0].ID != "c1" {
		t.Errorf("first group head = %s, want c1", groups[0].Entries[0].ID)
	}
	if len(groups[1].Entries) != 2 || groups[1].Entries[0].ID != "b1" {
		t.Errorf("second group = %+v, want b1,b2 in order", groups[1].EntryIDs())
	}
	if len(groups[2].Entries) != 2 || groups[2].Entries[0].ID != "a1" {
		t.Errorf("third group = %+v, want a1,a2 in order", groups[2].EntryIDs())
	}
	if !groups[2].StartTime.Equal(reconstructBase) {
		t.Errorf("oldest group StartTime = %s, want %s", groups[2].StartTime, reconstructBase)
	}
	if !groups[2].EndTime.Equal(reconstructBase.Add(5 * time.Minute)) {
		t.Errorf("oldest group EndTime = %s", groups[2].EndTime)
	}
}

func TestReconstructSplitsOnSessionIDChange(t *testing.T) {
	r := NewReconstructor(30 * time.Minute)
	withSession := func(sid string) func(*entry.Entry) {
		return func(e *entry.Entry) { e.SessionID = sid }
	}
	entries := []entry.Entry{
		entryAt("a1", 0, withSession("s1")),
		entryAt("b1", time.Minute, withSession("s2")),
		entryAt("a2", 2*time.Minute, withSession("s1")),
	}

	groups := r.Reconstruct(entries)
	if len(groups) != 3 {
		t.Fatalf("Reconstruct() = %d groups, want 3 (alternating ids split)", len(groups))
	}
	if groups[0].SessionID != "s1" || groups[1].SessionID != "s2" || groups[2].SessionID != "s1" {
		t.Fatalf("session ids = %s,%s,%s", groups[0].SessionID, groups[1].SessionID, groups[2].SessionID)
	}
}

func TestReconstructHonorsSharedSessionAcrossGap(t *testing.T) {
	r := NewReconstructor(30 * time.Minute)
	withSession := func(e *entry.Entry) { e.SessionID = "s1" }
	entries := []entry.Entry{
		entryAt("a1", 0, withSession),
		entryAt("a2", 2*time.Hour, withSession),
	}

	groups := r.Reconstruct(entries)
	if len(groups) != 1 {
		t.Fatalf("Reconstruct() = %d groups, want 1 (explicit id overrides gap)", len(groups))
	}
}

func TestReconstructSplitsOnLifecycleMarkers(t *testing.T) {
	r := NewReconstructor(30 * time.Minute)
	entries := []entry.Entry{
		entryAt("a1", 0),
		entryAt("down", time.Minute, func(e *entry.Entry) { e.Type = entry.TypeSystemShutdown }),
		entryAt("up", 2*time.Minute, func(e *entry.Entry) { e.Type = entry.TypeSystemStartup }),
		entryAt("b1", 3*time.Minute),
	}

	groups := r.Reconstruct(entries)
	if len(groups) != 2 {
		t.Fatalf("Reconstruct() = %d groups, want 2", len(groups))
	}
	if got := groups[1].EntryIDs(); len(got) != 2 || got[1] != "down" {
		t.Errorf("older group = %v, want a1,down (shutdown ends it)", got)
	}
	if got := groups[0].EntryIDs(); len(got) != 2 || got[0] != "up" {
		t.Errorf("newer group = %v, want up,b1 (startup begins it)", got)
	}
}

func TestDetectBoundary(t *testing.T) {
	r := NewReconstructor(30 * time.Minute)
	older := entryAt("older", 0)
	newer := entryAt("newer", 10*time.Minute)

	if r.DetectBoundary(older, newer) {
		t.Error("DetectBoundary() = true for a 10m gap under a 30m timeout")
	}
	distant := entryAt("distant", 90*time.Minute)
	if !r.DetectBoundary(older, distant) {
		t.Error("DetectBoundary() = false for a 90m gap")
	}
}

func TestInferSource(t *testing.T) {
	tests := []struct {
		name    string
		entries []entry.Entry
		want    summary.SessionSource
	}{
		{
			name: "mcp context wins",
			entries: []entry.Entry{
				entryAt("a", 0),
				entryAt("b", time.Minute, func(e *entry.Entry) {
					e.Type = "mcp:query:completed"
					e.Source = entry.SourceMCP
					e.MCPContext = &entry.MCPContext{Tool: "search"}
				}),
			},
			want: summary.SessionSourceAgent,
		},
		{
			name:    "index activity",
			entries: []entry.Entry{entryAt("a", 0)},
			want:    summary.SessionSourceFilesystem,
		},
		{
			name: "nothing distinctive",
			entries: []entry.Entry{
				entryAt("a", 0, func(e *entry.Entry) {
					e.Type = "user:feedback:submitted"
					e.Source = "user"
				}),
			},
			want: summary.SessionSourceManual,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := inferSource(tt.entries); got != tt.want {
				t.Fatalf("inferSource() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestReconstructEmptyBatch(t *testing.T) {
	r := NewReconstructor(0)
	if got := r.Reconstruct(nil); got != nil {
		t.Fatalf("Reconstruct(nil) = %+v, want nil", got)
	}
}
