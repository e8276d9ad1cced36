// Package summary defines the compacted session record produced by the
// compaction service.
//
// A Summary is the durable, immutable fold of one session's raw ledger
// entries: intent, impacted code, semantic reach, and provenance. Raw entries
// folded into a summary can later be pruned without losing history.
package summary

import (
	"time"

	"github.com/codetrail/codetrail/internal/ledger/domain/entry"
)

// IntentCategory is the coarse classification of what a session was about.
type IntentCategory string

const (
	// IntentDebugging indicates the session chased a failure.
	IntentDebugging IntentCategory = "debugging"
	// IntentTesting indicates the session worked on tests.
	IntentTesting IntentCategory = "testing"
	// IntentConfiguration indicates the session edited configuration.
	IntentConfiguration IntentCategory = "configuration"
	// IntentExploration indicates the session browsed or classified code.
	IntentExploration IntentCategory = "exploration"
	// IntentFeatureDevelopment indicates the session built new code.
	IntentFeatureDevelopment IntentCategory = "feature-development"
	// IntentUnknown indicates no rule matched.
	IntentUnknown IntentCategory = "unknown"
)

// SessionSource identifies how a session originated.
type SessionSource string

const (
	// SessionSourceAgent marks sessions driven by AI-tool queries.
	SessionSourceAgent SessionSource = "agent"
	// SessionSourceFilesystem marks sessions driven by index/watcher events.
	SessionSourceFilesystem SessionSource = "filesystem"
	// SessionSourceManual marks everything else.
	SessionSourceManual SessionSource = "manual"
)

// QueryTrace records one AI-tool query made during a session.
type QueryTrace struct {
	Tool         string        `json:"tool"`
	Query        string        `json:"query,omitempty"`
	ResultCount  int           `json:"resultCount"`
	ResponseTime time.Duration `json:"responseTime"`
	Timestamp    time.Time     `json:"timestamp"`
}

// CodeAccessed aggregates the code surface a session read or touched.
type CodeAccessed struct {
	Files    []string `json:"files,omitempty"`
	Entities []string `json:"entities,omitempty"`
}

// CodeChanges buckets changed files by change kind, deduplicated.
type CodeChanges struct {
	Modified []string `json:"modified,omitempty"`
	Created  []string `json:"created,omitempty"`
	Deleted  []string `json:"deleted,omitempty"`
}

// SemanticImpact aggregates the domain reach of a session.
type SemanticImpact struct {
	Verticals   []string `json:"verticals,omitempty"`
	Horizontals []string `json:"horizontals,omitempty"`
}

// IndexUpdates sums index and graph mutations across a session.
type IndexUpdates struct {
	FilesIndexed int `json:"filesIndexed"`
	NodesAdded   int `json:"nodesAdded"`
	NodesRemoved int `json:"nodesRemoved"`
	EdgesAdded   int `json:"edgesAdded"`
	EdgesRemoved int `json:"edgesRemoved"`
}

// Summary is one compacted session record.
//
// Immutable once created; deleted only by its own retention policy. The
// RawEventIDs sets of all summaries are disjoint: each raw entry folds into
// at most one summary.
type Summary struct {
	ID             string         `json:"id"`
	SessionID      string         `json:"sessionId"`
	StartTime      time.Time      `json:"startTime"`
	EndTime        time.Time      `json:"endTime"`
	Source         SessionSource  `json:"source"`
	IntentSummary  string         `json:"intentSummary"`
	IntentCategory IntentCategory `json:"intentCategory"`
	// UserPrompts are the distinct non-empty query strings of the session.
	UserPrompts []string     `json:"userPrompts,omitempty"`
	QueryTraces []QueryTrace `json:"queryTraces,omitempty"`
	// ToolsUsed lists the unique tools invoked.
	ToolsUsed      []string       `json:"toolsUsed,omitempty"`
	CodeAccessed   CodeAccessed   `json:"codeAccessed"`
	CodeChanges    CodeChanges    `json:"codeChanges"`
	SemanticImpact SemanticImpact `json:"semanticImpact"`
	IndexUpdates   IndexUpdates   `json:"indexUpdates"`
	// RawEventIDs is the provenance of the summary.
	RawEventIDs     []string `json:"rawEventIds"`
	ConfidenceScore float64  `json:"confidenceScore"`
	// Completeness estimates how much evidence the session carried, 0..1.
	Completeness       float64  `json:"completeness"`
	CorrelatedSessions []string `json:"correlatedSessions,omitempty"`
	GitCommit          string   `json:"gitCommit,omitempty"`
	GitBranch          string   `json:"gitBranch,omitempty"`
	// ContentHash is the tamper-evidence digest over a canonical field subset.
	// Empty on records compacted before hashing existed; those verify as
	// valid by convention.
	ContentHash string `json:"contentHash,omitempty"`
}

// Group is a transient cluster of raw entries judged to be one session.
// Rebuilt fresh on every compaction pass, never persisted.
type Group struct {
	SessionID string
	Entries   []entry.Entry
	StartTime time.Time
	EndTime   time.Time
	Source    SessionSource
}

// EntryIDs returns the ids of the group's entries in order.
func (g Group) EntryIDs() []string {
	ids := make([]string, 0, len(g.Entries))
	for _, e := range g.Entries {
		ids = append(ids, e.ID)
	}
	return ids
}
