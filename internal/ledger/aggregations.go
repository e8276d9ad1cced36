package ledger

import (
	"context"
	"sort"
	"time"

	"github.com/codetrail/codetrail/internal/ledger/storage"
)

const topRankSize = 10

// RankedItem is one value with its occurrence count.
type RankedItem struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// Aggregation summarizes a scanned slice of the ledger.
type Aggregation struct {
	ByEventType           map[string]int `json:"byEventType"`
	BySource              map[string]int `json:"bySource"`
	TopFiles              []RankedItem   `json:"topFiles"`
	TopEntities           []RankedItem   `json:"topEntities"`
	ClassificationChanges int            `json:"classificationChanges"`
	ErrorCount            int            `json:"errorCount"`
	MeanMCPResponseTime   time.Duration  `json:"meanMcpResponseTime"`
	ScannedEntries        int            `json:"scannedEntries"`
	// Truncated reports that the scan hit its cap; counts above the cap are
	// intentionally approximate.
	Truncated bool `json:"truncated"`
}

// Aggregate computes counts over entries matching q using a bounded scan.
func (l *Ledger) Aggregate(ctx context.Context, q storage.ListQuery) (Aggregation, error) {
	scanQuery := q
	scanQuery.Limit = aggregationScanCap
	scanQuery.Offset = 0

	entries, err := l.Query(ctx, scanQuery)
	if err != nil {
		return Aggregation{}, err
	}

	agg := Aggregation{
		ByEventType:    make(map[string]int),
		BySource:       make(map[string]int),
		ScannedEntries: len(entries),
		Truncated:      len(entries) >= aggregationScanCap,
	}

	fileCounts := make(map[string]int)
	entityCounts := make(map[string]int)
	var mcpTotal time.Duration
	var mcpSamples int

	for _, e := range entries {
		agg.ByEventType[string(e.Type)]++
		if e.Source != "" {
			agg.BySource[string(e.Source)]++
		}
		for _, file := range e.ImpactedFiles {
			fileCounts[file]++
		}
		for _, entity := range e.ImpactedEntities {
			entityCounts[entity]++
		}
		agg.ClassificationChanges += len(e.ClassificationChanges)
		if e.Type.IsError() || e.ErrorMessage != "" {
			agg.ErrorCount++
		}
		if e.MCPContext != nil && e.MCPContext.ResponseTime > 0 {
			mcpTotal += e.MCPContext.ResponseTime
			mcpSamples++
		}
	}

	if mcpSamples > 0 {
		agg.MeanMCPResponseTime = mcpTotal / time.Duration(mcpSamples)
	}
	agg.TopFiles = rankTop(fileCounts, topRankSize)
	agg.TopEntities = rankTop(entityCounts, topRankSize)
	return agg, nil
}

func rankTop(counts map[string]int, limit int) []RankedItem {
	ranked := make([]RankedItem, 0, len(counts))
	for value, count := range counts {
		ranked = append(ranked, RankedItem{Value: value, Count: count})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Count != ranked[j].Count {
			return ranked[i].Count > ranked[j].Count
		}
		return ranked[i].Value < ranked[j].Value
	})
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}
