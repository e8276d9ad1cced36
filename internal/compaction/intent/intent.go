// Package intent infers what a work session was about from its raw entries.
//
// The default analyzer is rule-based and deliberately conservative: it only
// claims a category when the session's event mix points one way, and reports
// its confidence so callers can discount weak inferences. Analyzer is a
// capability seam for richer (model-backed) implementations.
package intent

import (
	"fmt"
	"strings"

	"github.com/codetrail/codetrail/internal/ledger/domain/entry"
	"github.com/codetrail/codetrail/internal/ledger/domain/summary"
)

// Result is one intent inference over a session group.
type Result struct {
	// Summary is a one-line human-readable account of the session.
	Summary string
	// Category is the inferred coarse intent.
	Category summary.IntentCategory
	// Confidence grades the inference, 0..1.
	Confidence float64
	// Prompts are the distinct non-empty tool queries, in first-seen order.
	Prompts []string
}

// Analyzer infers session intent. Implementations must be pure over the
// group's entries: same entries, same result.
type Analyzer interface {
	Analyze(group summary.Group) (Result, error)
}

// RuleBased is the default heuristic analyzer.
type RuleBased struct{}

// NewRuleBased returns the default rule-based analyzer.
func NewRuleBased() *RuleBased {
	return &RuleBased{}
}

// Analyze applies the classification rules in priority order: failures first,
// then path-shape rules, then event-namespace rules.
func (a *RuleBased) Analyze(group summary.Group) (Result, error) {
	if len(group.Entries) == 0 {
		return Result{Category: summary.IntentUnknown, Confidence: 0.5, Summary: "empty session"}, nil
	}

	var (
		errorEvents    int
		classifyEvents int
		indexEvents    int
		files          = make(map[string]struct{})
	)
	for _, e := range group.Entries {
		if e.Type.IsError() || e.ErrorMessage != "" {
			errorEvents++
		}
		switch e.Type.Namespace() {
		case entry.NamespaceClassify, entry.NamespaceJustify:
			classifyEvents++
		case entry.NamespaceIndex:
			indexEvents++
		}
		for _, f := range e.ImpactedFiles {
			files[f] = struct{}{}
		}
	}

	category := summary.IntentUnknown
	confidence := 0.5
	switch {
	case errorEvents > 0:
		category, confidence = summary.IntentDebugging, 0.7
	case len(files) > 0 && allFiles(files, isTestPath):
		category, confidence = summary.IntentTesting, 0.7
	case len(files) > 0 && allFiles(files, isConfigPath):
		category, confidence = summary.IntentConfiguration, 0.6
	case classifyEvents > 0:
		category, confidence = summary.IntentExploration, 0.6
	case indexEvents > 0 && len(files) > 0:
		category, confidence = summary.IntentFeatureDevelopment, 0.5
	}

	return Result{
		Summary:    summarize(group, category, len(files)),
		Category:   category,
		Confidence: confidence,
		Prompts:    ExtractPrompts(group.Entries),
	}, nil
}

// ExtractPrompts returns the distinct non-empty tool queries in first-seen
// order.
func ExtractPrompts(entries []entry.Entry) []string {
	seen := make(map[string]struct{})
	var prompts []string
	for _, e := range entries {
		if e.MCPContext == nil {
			continue
		}
		q := strings.TrimSpace(e.MCPContext.Query)
		if q == "" {
			continue
		}
		if _, dup := seen[q]; dup {
			continue
		}
		seen[q] = struct{}{}
		prompts = append(prompts, q)
	}
	return prompts
}

func summarize(group summary.Group, category summary.IntentCategory, fileCount int) string {
	var noun string
	switch fileCount {
	case 0:
		noun = "no files"
	case 1:
		noun = "1 file"
	default:
		noun = fmt.Sprintf("%d files", fileCount)
	}
	return fmt.Sprintf("%s session over %s (%d events)", category, noun, len(group.Entries))
}

func allFiles(files map[string]struct{}, match func(string) bool) bool {
	for f := range files {
		if !match(f) {
			return false
		}
	}
	return true
}

func isTestPath(path string) bool {
	lower := strings.ToLower(path)
	return strings.Contains(lower, "_test.") ||
		strings.Contains(lower, ".test.") ||
		strings.Contains(lower, ".spec.") ||
		strings.Contains(lower, "/test/") ||
		strings.Contains(lower, "/tests/") ||
		strings.Contains(lower, "/__tests__/")
}

func isConfigPath(path string) bool {
	lower := strings.ToLower(path)
	for _, ext := range []string{".json", ".yaml", ".yml", ".toml", ".ini", ".env"} {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	base := lower
	if i := strings.LastIndexByte(lower, '/'); i >= 0 {
		base = lower[i+1:]
	}
	return strings.Contains(base, "config") || strings.HasPrefix(base, ".")
}

// Similarity returns the token Jaccard overlap of two summaries, 0..1.
// Symmetric: Similarity(a, b) == Similarity(b, a).
func Similarity(a, b string) float64 {
	ta := tokens(a)
	tb := tokens(b)
	if len(ta) == 0 && len(tb) == 0 {
		return 1
	}
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	intersection := 0
	for tok := range ta {
		if _, ok := tb[tok]; ok {
			intersection++
		}
	}
	union := len(ta) + len(tb) - intersection
	return float64(intersection) / float64(union)
}

func tokens(s string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, tok := range strings.Fields(strings.ToLower(s)) {
		tok = strings.Trim(tok, "().,:;")
		if tok != "" {
			out[tok] = struct{}{}
		}
	}
	return out
}

// Cluster groups sessions judged to share an intent.
type Cluster struct {
	Category summary.IntentCategory
	// Representative is the summary line the cluster is matched against.
	Representative string
	SessionIDs     []string
	Summaries      []string
}

// ClusterByIntent analyzes each group and buckets them by inferred category.
func ClusterByIntent(groups []summary.Group, analyzer Analyzer) ([]Cluster, error) {
	if analyzer == nil {
		analyzer = NewRuleBased()
	}
	byCategory := make(map[summary.IntentCategory]*Cluster)
	var order []summary.IntentCategory
	for _, group := range groups {
		result, err := analyzer.Analyze(group)
		if err != nil {
			return nil, fmt.Errorf("analyze session %s: %w", group.SessionID, err)
		}
		cluster, ok := byCategory[result.Category]
		if !ok {
			cluster = &Cluster{Category: result.Category, Representative: result.Summary}
			byCategory[result.Category] = cluster
			order = append(order, result.Category)
		}
		cluster.SessionIDs = append(cluster.SessionIDs, group.SessionID)
		cluster.Summaries = append(cluster.Summaries, result.Summary)
	}
	clusters := make([]Cluster, 0, len(order))
	for _, category := range order {
		clusters = append(clusters, *byCategory[category])
	}
	return clusters, nil
}

// MergeSimilarClusters folds clusters whose representatives overlap at or
// above threshold into one. Idempotent: the survivors are pairwise below
// threshold, so a second pass changes nothing.
func MergeSimilarClusters(clusters []Cluster, threshold float64) []Cluster {
	if threshold <= 0 || threshold > 1 {
		return clusters
	}
	var merged []Cluster
	for _, candidate := range clusters {
		absorbed := false
		for i := range merged {
			if Similarity(merged[i].Representative, candidate.Representative) >= threshold {
				merged[i].SessionIDs = append(merged[i].SessionIDs, candidate.SessionIDs...)
				merged[i].Summaries = append(merged[i].Summaries, candidate.Summaries...)
				absorbed = true
				break
			}
		}
		if !absorbed {
			merged = append(merged, candidate)
		}
	}
	return merged
}
