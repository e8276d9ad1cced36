package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/codetrail/codetrail/internal/ledger/domain/entry"
	"github.com/codetrail/codetrail/internal/ledger/storage"
)

func TestAggregate(t *testing.T) {
	l := newTestLedger(t, nil, Config{})
	ctx := context.Background()

	seeds := []entry.Entry{
		{Type: "index:file:modified", Source: entry.SourceIndexer,
			ImpactedFiles: []string{"a.ts"}, ImpactedEntities: []string{"fn:parse"}},
		{Type: "index:file:modified", Source: entry.SourceIndexer,
			ImpactedFiles: []string{"a.ts", "b.ts"}},
		{Type: "classify:entity:updated", Source: entry.SourceClassifier,
			ImpactedEntities: []string{"fn:parse"},
			ClassificationChanges: []entry.ClassificationChange{
				{EntityID: "fn:parse", Field: "layer", Current: "domain"},
			}},
		{Type: "system:error", Source: entry.SourceSystem, ErrorMessage: "watch failed"},
		{Type: "system:error", Source: entry.SourceSystem, ErrorMessage: "index failed"},
		{Type: "mcp:query:completed", Source: entry.SourceMCP,
			MCPContext: &entry.MCPContext{Tool: "search", ResponseTime: 100 * time.Millisecond}},
		{Type: "mcp:query:completed", Source: entry.SourceMCP,
			MCPContext: &entry.MCPContext{Tool: "search", ResponseTime: 300 * time.Millisecond}},
	}
	for _, seed := range seeds {
		if _, err := l.Append(ctx, seed); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	agg, err := l.Aggregate(ctx, storage.ListQuery{})
	if err != nil {
		t.Fatalf("Aggregate() error = %v", err)
	}

	if agg.ByEventType["index:file:modified"] != 2 {
		t.Errorf("ByEventType[index:file:modified] = %d, want 2", agg.ByEventType["index:file:modified"])
	}
	if agg.ByEventType["system:error"] != 2 {
		t.Errorf("ByEventType[system:error] = %d, want 2", agg.ByEventType["system:error"])
	}
	if agg.BySource[string(entry.SourceIndexer)] != 2 {
		t.Errorf("BySource[indexer] = %d, want 2", agg.BySource[string(entry.SourceIndexer)])
	}
	if len(agg.TopFiles) == 0 || agg.TopFiles[0].Value != "a.ts" || agg.TopFiles[0].Count != 2 {
		t.Errorf("TopFiles = %+v, want a.ts with count 2 first", agg.TopFiles)
	}
	if len(agg.TopEntities) == 0 || agg.TopEntities[0].Value != "fn:parse" || agg.TopEntities[0].Count != 2 {
		t.Errorf("TopEntities = %+v, want fn:parse with count 2 first", agg.TopEntities)
	}
	if agg.ClassificationChanges != 1 {
		t.Errorf("ClassificationChanges = %d, want 1", agg.ClassificationChanges)
	}
	if agg.ErrorCount != 2 {
		t.Errorf("ErrorCount = %d, want 2", agg.ErrorCount)
	}
	if agg.MeanMCPResponseTime != 200*time.Millisecond {
		t.Errorf("MeanMCPResponseTime = %s, want 200ms", agg.MeanMCPResponseTime)
	}
	if agg.ScannedEntries != len(seeds) {
		t.Errorf("ScannedEntries = %d, want %d", agg.ScannedEntries, len(seeds))
	}
	if agg.Truncated {
		t.Error("Truncated = true for a small scan")
	}
}

func TestAggregateTieBreakByValue(t *testing.T) {
	counts := map[string]int{"b.ts": 3, "a.ts": 3, "c.ts": 1}
	ranked := rankTop(counts, 2)
	if len(ranked) != 2 {
		t.Fatalf("rankTop() = %d items, want 2", len(ranked))
	}
	if ranked[0].Value != "a.ts" || ranked[1].Value != "b.ts" {
		t.Fatalf("rankTop() = %+v, want a.ts before b.ts on equal counts", ranked)
	}
}

func TestAggregateEmptyLedger(t *testing.T) {
	l := newTestLedger(t, nil, Config{})
	agg, err := l.Aggregate(context.Background(), storage.ListQuery{})
	if err != nil {
		t.Fatalf("Aggregate() error = %v", err)
	}
	if agg.ScannedEntries != 0 || agg.ErrorCount != 0 || agg.MeanMCPResponseTime != 0 {
		t.Fatalf("Aggregate() on empty ledger = %+v, want zero counts", agg)
	}
}
