package ledger

import (
	"context"
	"time"

	"github.com/codetrail/codetrail/internal/ledger/domain/entry"
	"github.com/codetrail/codetrail/internal/ledger/storage"
)

// ImpactLevel grades how much surface one entry touched.
type ImpactLevel string

const (
	// ImpactLow marks entries with little surface.
	ImpactLow ImpactLevel = "low"
	// ImpactMedium marks entries above the medium threshold.
	ImpactMedium ImpactLevel = "medium"
	// ImpactHigh marks entries above the high threshold.
	ImpactHigh ImpactLevel = "high"
)

// Classification changes weigh heaviest: they rewrite meaning, not just text.
const (
	impactFileWeight           = 2
	impactEntityWeight         = 1
	impactClassificationWeight = 3

	impactHighThreshold   = 20
	impactMediumThreshold = 5
)

// TimelineItem is a display-oriented projection of one entry.
type TimelineItem struct {
	ID                      string       `json:"id"`
	Timestamp               time.Time    `json:"timestamp"`
	Type                    entry.Type   `json:"eventType"`
	Source                  entry.Source `json:"source"`
	Summary                 string       `json:"summary,omitempty"`
	ImpactLevel             ImpactLevel  `json:"impactLevel"`
	HasClassificationChange bool         `json:"hasClassificationChange"`
	HasUserInteraction      bool         `json:"hasUserInteraction"`
	HasError                bool         `json:"hasError"`
}

// Timeline projects matching entries into timeline items.
func (l *Ledger) Timeline(ctx context.Context, q storage.ListQuery) ([]TimelineItem, error) {
	entries, err := l.Query(ctx, q)
	if err != nil {
		return nil, err
	}

	items := make([]TimelineItem, 0, len(entries))
	for _, e := range entries {
		items = append(items, TimelineItem{
			ID:                      e.ID,
			Timestamp:               e.Timestamp,
			Type:                    e.Type,
			Source:                  e.Source,
			Summary:                 e.Summary,
			ImpactLevel:             impactLevel(e),
			HasClassificationChange: e.HasClassificationChange(),
			HasUserInteraction:      e.HasUserInteraction(),
			HasError:                e.Type.IsError() || e.ErrorMessage != "",
		})
	}
	return items, nil
}

func impactLevel(e entry.Entry) ImpactLevel {
	score := impactFileWeight*len(e.ImpactedFiles) +
		impactEntityWeight*len(e.ImpactedEntities) +
		impactClassificationWeight*len(e.ClassificationChanges)
	switch {
	case score > impactHighThreshold:
		return ImpactHigh
	case score > impactMediumThreshold:
		return ImpactMedium
	default:
		return ImpactLow
	}
}
