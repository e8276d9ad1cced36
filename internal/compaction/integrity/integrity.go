// Package integrity computes the tamper-evidence digest for compacted
// session summaries.
//
// The digest covers a fixed canonical subset of summary fields; adding new
// summary fields never invalidates existing hashes.
package integrity

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/codetrail/codetrail/internal/ledger/domain/summary"
)

// hashedFields is the canonical subset a content hash commits to. Field
// order is fixed by the struct; slices are hashed in stored order.
type hashedFields struct {
	SessionID     string               `json:"sessionId"`
	IntentSummary string               `json:"intentSummary"`
	CodeAccessed  summary.CodeAccessed `json:"codeAccessed"`
	CodeChanges   summary.CodeChanges  `json:"codeChanges"`
	RawEventIDs   []string             `json:"rawEventIds"`
}

// ContentHash returns the hex SHA-256 digest of the summary's canonical
// field subset.
func ContentHash(s summary.Summary) (string, error) {
	canonical, err := json.Marshal(hashedFields{
		SessionID:     s.SessionID,
		IntentSummary: s.IntentSummary,
		CodeAccessed:  s.CodeAccessed,
		CodeChanges:   s.CodeChanges,
		RawEventIDs:   s.RawEventIDs,
	})
	if err != nil {
		return "", fmt.Errorf("marshal hashed fields: %w", err)
	}
	digest := sha256.Sum256(canonical)
	return hex.EncodeToString(digest[:]), nil
}

// Verify reports whether the summary's stored hash matches a recompute.
// An empty stored hash is valid: records predate hashing.
func Verify(s summary.Summary) (bool, error) {
	if s.ContentHash == "" {
		return true, nil
	}
	computed, err := ContentHash(s)
	if err != nil {
		return false, err
	}
	return computed == s.ContentHash, nil
}
