package ledger

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/codetrail/codetrail/internal/ledger/domain/entry"
	"github.com/codetrail/codetrail/internal/ledger/storage"
	apperrors "github.com/codetrail/codetrail/internal/platform/errors"
)

func TestExportImportRoundTrip(t *testing.T) {
	source := newTestLedger(t, nil, Config{})
	ctx := context.Background()

	seeds := []entry.Entry{
		{Type: "index:file:added", Source: entry.SourceIndexer,
			ImpactedFiles: []string{"a.ts"}, SessionID: "s1"},
		{Type: "mcp:query:completed", Source: entry.SourceMCP,
			MCPContext: &entry.MCPContext{Tool: "search", Query: "auth flow", ResultCount: 3}},
		{Type: "classify:entity:updated", Source: entry.SourceClassifier,
			ClassificationChanges: []entry.ClassificationChange{
				{EntityID: "fn:auth", Field: "layer", Previous: "infra", Current: "domain"},
			}},
	}
	for _, seed := range seeds {
		if _, err := source.Append(ctx, seed); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	var buf bytes.Buffer
	exported, err := source.Export(ctx, &buf, storage.ListQuery{})
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if exported != len(seeds) {
		t.Fatalf("Export() = %d entries, want %d", exported, len(seeds))
	}

	target := newTestLedger(t, &memEntryStore{}, Config{MaxBatchSize: 50})
	imported, err := target.Import(ctx, &buf)
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if imported != len(seeds) {
		t.Fatalf("Import() = %d entries, want %d", imported, len(seeds))
	}

	restored, err := target.Query(ctx, storage.ListQuery{Ascending: true})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	original, err := source.Query(ctx, storage.ListQuery{Ascending: true})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(restored) != len(original) {
		t.Fatalf("restored %d entries, want %d", len(restored), len(original))
	}
	for i := range original {
		if restored[i].ID != original[i].ID {
			t.Errorf("entry %d: ID = %q, want %q", i, restored[i].ID, original[i].ID)
		}
		if restored[i].Sequence != original[i].Sequence {
			t.Errorf("entry %d: Sequence = %d, want %d", i, restored[i].Sequence, original[i].Sequence)
		}
		if !restored[i].Timestamp.Equal(original[i].Timestamp) {
			t.Errorf("entry %d: Timestamp = %s, want %s", i, restored[i].Timestamp, original[i].Timestamp)
		}
	}
	if restored[2].ClassificationChanges[0].Previous != "infra" {
		t.Errorf("classification diff lost in round trip: %+v", restored[2].ClassificationChanges)
	}
	if restored[1].MCPContext == nil || restored[1].MCPContext.Query != "auth flow" {
		t.Errorf("mcp context lost in round trip: %+v", restored[1].MCPContext)
	}

	// Later appends continue past the imported sequences.
	next, err := target.Append(ctx, entry.Entry{Type: "index:file:modified"})
	if err != nil {
		t.Fatalf("Append() after import error = %v", err)
	}
	if next.Sequence != uint64(len(seeds))+1 {
		t.Fatalf("sequence after import = %d, want %d", next.Sequence, len(seeds)+1)
	}
}

func TestImportRejectsMalformedBundle(t *testing.T) {
	l := newTestLedger(t, nil, Config{})
	ctx := context.Background()

	assertImportInvalid := func(t *testing.T, err error) {
		t.Helper()
		if err == nil {
			t.Fatal("Import() error = nil, want rejection")
		}
		var appErr *apperrors.Error
		if !errors.As(err, &appErr) || appErr.Code != apperrors.CodeImportInvalid {
			t.Fatalf("Import() error = %v, want code %s", err, apperrors.CodeImportInvalid)
		}
	}

	_, err := l.Import(ctx, strings.NewReader("{not json"))
	assertImportInvalid(t, err)

	_, err = l.Import(ctx, strings.NewReader(`{"version":99,"entries":[]}`))
	assertImportInvalid(t, err)

	_, err = l.Import(ctx, strings.NewReader(`{"version":1,"entries":[{"id":"x","eventType":""}]}`))
	assertImportInvalid(t, err)

	if count, _ := l.Aggregate(ctx, storage.ListQuery{}); count.ScannedEntries != 0 {
		t.Fatalf("entries appended despite rejected import: %d", count.ScannedEntries)
	}
}
