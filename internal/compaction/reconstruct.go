package compaction

import (
	"sort"
	"time"

	"github.com/codetrail/codetrail/internal/ledger/domain/entry"
	"github.com/codetrail/codetrail/internal/ledger/domain/summary"
)

// Reconstructor rebuilds session groups from a flat batch of raw entries.
//
// Sessions were never recorded as first-class rows; boundaries are
// re-derived on every pass from session ids, idle gaps, and lifecycle
// markers.
type Reconstructor struct {
	timeout time.Duration
}

// NewReconstructor returns a reconstructor splitting on the given idle gap.
func NewReconstructor(timeout time.Duration) *Reconstructor {
	if timeout <= 0 {
		timeout = defaultSessionTimeout
	}
	return &Reconstructor{timeout: timeout}
}

// Reconstruct sorts the batch newest-first and walks it, opening a new group
// at every detected boundary. Within each returned group entries are ordered
// oldest-first; groups are returned newest session first.
func (r *Reconstructor) Reconstruct(entries []entry.Entry) []summary.Group {
	if len(entries) == 0 {
		return nil
	}

	sorted := make([]entry.Entry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool {
		if !sorted[i].Timestamp.Equal(sorted[j].Timestamp) {
			return sorted[i].Timestamp.After(sorted[j].Timestamp)
		}
		return sorted[i].Sequence > sorted[j].Sequence
	})

	var groups []summary.Group
	var current []entry.Entry
	for i, e := range sorted {
		if i > 0 && r.DetectBoundary(e, sorted[i-1]) {
			groups = append(groups, r.buildGroup(current))
			current = nil
		}
		current = append(current, e)
	}
	groups = append(groups, r.buildGroup(current))
	return groups
}

// DetectBoundary reports whether e and prev belong to different sessions.
// The walk is newest-first, so prev is the more recent entry.
func (r *Reconstructor) DetectBoundary(e, prev entry.Entry) bool {
	if e.SessionID != "" && prev.SessionID != "" && e.SessionID != prev.SessionID {
		return true
	}
	if e.SessionID != "" && prev.SessionID != "" && e.SessionID == prev.SessionID {
		return false
	}
	// Lifecycle markers always cut: a startup begins the more recent
	// session, a shutdown ends the older one.
	if prev.Type == entry.TypeSystemStartup || e.Type == entry.TypeSystemShutdown {
		return true
	}
	return prev.Timestamp.Sub(e.Timestamp) > r.timeout
}

// buildGroup folds a newest-first run of entries into one group.
func (r *Reconstructor) buildGroup(run []entry.Entry) summary.Group {
	// Flip to chronological order.
	ordered := make([]entry.Entry, len(run))
	for i, e := range run {
		ordered[len(run)-1-i] = e
	}

	group := summary.Group{Entries: ordered}
	if len(ordered) > 0 {
		group.StartTime = ordered[0].Timestamp
		group.EndTime = ordered[len(ordered)-1].Timestamp
	}
	for _, e := range ordered {
		if e.SessionID != "" {
			group.SessionID = e.SessionID
			break
		}
	}
	if group.SessionID == "" && len(ordered) > 0 {
		// Synthetic id: stable for the same run of entries.
		group.SessionID = "reconstructed-" + ordered[0].ID
	}
	group.Source = inferSource(ordered)
	return group
}

// inferSource classifies how the session originated: any tool query makes it
// agent-driven, else any index/watcher activity makes it filesystem-driven.
func inferSource(entries []entry.Entry) summary.SessionSource {
	filesystem := false
	for _, e := range entries {
		if e.MCPContext != nil || e.Source == entry.SourceMCP {
			return summary.SessionSourceAgent
		}
		if e.FilesystemOrigin() {
			filesystem = true
		}
	}
	if filesystem {
		return summary.SessionSourceFilesystem
	}
	return summary.SessionSourceManual
}
