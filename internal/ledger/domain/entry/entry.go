package entry

import (
	"strings"
	"time"
)

// Type identifies the kind of a ledger entry.
//
// Types are namespaced with colons (e.g. "index:file:modified"). Producers
// are expected to follow the recommended namespaces below, but the ledger
// never rejects an unknown namespace: the event vocabulary grows faster than
// any closed enum could.
type Type string

// Recommended namespaces for producing subsystems.
const (
	// NamespaceMCP covers AI-tool query events.
	NamespaceMCP = "mcp"
	// NamespaceIndex covers file-index lifecycle events.
	NamespaceIndex = "index"
	// NamespaceClassify covers classification updates.
	NamespaceClassify = "classify"
	// NamespaceJustify covers justification updates.
	NamespaceJustify = "justify"
	// NamespaceAdaptive covers adaptive-learning events.
	NamespaceAdaptive = "adaptive"
	// NamespaceGraph covers graph writes.
	NamespaceGraph = "graph"
	// NamespaceUser covers user feedback and interactions.
	NamespaceUser = "user"
	// NamespaceSystem covers process lifecycle and errors.
	NamespaceSystem = "system"
)

// Well-known entry types the ledger itself interprets.
const (
	// TypeSystemStartup marks a process start; it always begins a new session.
	TypeSystemStartup Type = "system:startup"
	// TypeSystemShutdown marks a process stop; it always ends a session.
	TypeSystemShutdown Type = "system:shutdown"
	// TypeSystemError records a system-level failure.
	TypeSystemError Type = "system:error"
)

// IsValid reports whether the entry type is usable.
func (t Type) IsValid() bool {
	return strings.TrimSpace(string(t)) != ""
}

// Namespace returns the namespace prefix of the entry type (e.g. "index").
func (t Type) Namespace() string {
	for i, c := range t {
		if c == ':' {
			return string(t[:i])
		}
	}
	return string(t)
}

// IsError reports whether the type records a failure.
func (t Type) IsError() bool {
	return t == TypeSystemError || strings.HasSuffix(string(t), ":error") ||
		strings.HasSuffix(string(t), ":failed")
}

// IsSessionMarker reports whether the type is a session boundary marker.
func (t Type) IsSessionMarker() bool {
	return t == TypeSystemStartup || t == TypeSystemShutdown
}

// Source identifies the subsystem that produced an entry.
type Source string

const (
	// SourceMCP indicates an entry produced by the MCP tool layer.
	SourceMCP Source = "mcp-server"
	// SourceIndexer indicates an entry produced by the file indexer.
	SourceIndexer Source = "indexer"
	// SourceWatcher indicates an entry produced by the filesystem watcher.
	SourceWatcher Source = "file-watcher"
	// SourceClassifier indicates an entry produced by the classifier.
	SourceClassifier Source = "classifier"
	// SourceSystem indicates an entry produced by the runtime itself.
	SourceSystem Source = "system"
)

// ClassificationChange records one field-level classification diff.
type ClassificationChange struct {
	EntityID string `json:"entityId"`
	Field    string `json:"field"`
	Previous string `json:"previous,omitempty"`
	Current  string `json:"current"`
}

// GraphDiff counts graph mutations caused by an entry.
type GraphDiff struct {
	NodesAdded   int `json:"nodesAdded"`
	NodesRemoved int `json:"nodesRemoved"`
	EdgesAdded   int `json:"edgesAdded"`
	EdgesRemoved int `json:"edgesRemoved"`
}

// Empty reports whether the diff carries no counts.
func (d GraphDiff) Empty() bool {
	return d.NodesAdded == 0 && d.NodesRemoved == 0 && d.EdgesAdded == 0 && d.EdgesRemoved == 0
}

// MCPContext captures the AI-tool invocation that produced an entry.
type MCPContext struct {
	Tool         string            `json:"tool"`
	Query        string            `json:"query,omitempty"`
	Parameters   map[string]string `json:"parameters,omitempty"`
	ResultCount  int               `json:"resultCount"`
	ResponseTime time.Duration     `json:"responseTime"`
}

// Entry represents one immutable record in the change ledger.
//
// Entries are never mutated after append; they are removed only by bulk
// retention pruning.
type Entry struct {
	// ID uniquely identifies the entry.
	ID string `json:"id"`
	// Timestamp is when the recorded action occurred (UTC, ms precision).
	Timestamp time.Time `json:"timestamp"`
	// Sequence is the monotonic append order, assigned by the ledger.
	// Never reused, never mutated, survives restarts.
	Sequence uint64 `json:"sequence"`
	// Type is the namespaced event type.
	Type Type `json:"eventType"`
	// Source names the producing subsystem.
	Source Source `json:"source"`
	// ImpactedFiles lists file paths touched by the action.
	ImpactedFiles []string `json:"impactedFiles,omitempty"`
	// ImpactedEntities lists code entities (functions, types) touched.
	ImpactedEntities []string `json:"impactedEntities,omitempty"`
	// DomainTags carries business-domain labels.
	DomainTags []string `json:"domainTags,omitempty"`
	// InfraTags carries infrastructure labels.
	InfraTags []string `json:"infraTags,omitempty"`
	// ClassificationChanges records field-level classification diffs.
	ClassificationChanges []ClassificationChange `json:"classificationChanges,omitempty"`
	// GraphDiff counts graph mutations, when the action wrote to the graph.
	GraphDiff *GraphDiff `json:"graphDiff,omitempty"`
	// MCPContext captures the tool invocation, when agent-originated.
	MCPContext *MCPContext `json:"mcpContext,omitempty"`
	// Metadata carries free-form producer annotations.
	Metadata map[string]string `json:"metadata,omitempty"`
	// Summary is a human-readable one-liner.
	Summary string `json:"summary,omitempty"`
	// ErrorMessage and ErrorKind are set on failure entries.
	ErrorMessage string `json:"errorMessage,omitempty"`
	ErrorKind    string `json:"errorKind,omitempty"`
	// CorrelationID links related entries across producers.
	CorrelationID string `json:"correlationId,omitempty"`
	// ParentID points at a causing entry.
	ParentID string `json:"parentId,omitempty"`
	// SessionID groups entries into a work session, when the producer knows it.
	SessionID string `json:"sessionId,omitempty"`
}

// HasUserInteraction reports whether the entry records a user action.
func (e Entry) HasUserInteraction() bool {
	return e.Type.Namespace() == NamespaceUser
}

// HasClassificationChange reports whether the entry carries classification diffs.
func (e Entry) HasClassificationChange() bool {
	return len(e.ClassificationChanges) > 0
}

// FilesystemOrigin reports whether the entry came from the index/watcher path.
func (e Entry) FilesystemOrigin() bool {
	if e.Source == SourceIndexer || e.Source == SourceWatcher {
		return true
	}
	return e.Type.Namespace() == NamespaceIndex
}
