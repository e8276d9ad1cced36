package compaction

import "time"

// Config controls session reconstruction and compaction pacing.
type Config struct {
	// SessionTimeout is the idle gap that splits two entries into separate
	// sessions when no explicit session id says otherwise.
	SessionTimeout time.Duration
	// MinEventsForCompaction is the batch floor: a Compact pass over fewer
	// recent entries is a successful no-op.
	MinEventsForCompaction int
	// BatchSize caps how many recent entries one Compact pass fetches.
	BatchSize int
	// MaxRawEvents caps how many raw entries one pass fetches. Summaries
	// always record every folded entry id; this bounds pass volume, not
	// provenance.
	MaxRawEvents int
	// SimilarityThreshold is the intent-summary overlap at which session
	// clusters are merged.
	SimilarityThreshold float64
	// AutoInterval is the auto-compaction cadence. Zero or negative leaves
	// the scheduler off.
	AutoInterval time.Duration
}

const (
	defaultSessionTimeout      = 30 * time.Minute
	defaultMinEvents           = 10
	defaultBatchSize           = 500
	defaultMaxRawEvents        = 1000
	defaultSimilarityThreshold = 0.7
	defaultAutoInterval        = time.Hour

	// activeSessionScan bounds how many recent entries ActiveSessions
	// reconstructs over.
	activeSessionScan = 1000
)

// normalized returns a copy with defaults applied to unset fields.
func (c Config) normalized() Config {
	if c.SessionTimeout <= 0 {
		c.SessionTimeout = defaultSessionTimeout
	}
	if c.MinEventsForCompaction <= 0 {
		c.MinEventsForCompaction = defaultMinEvents
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaultBatchSize
	}
	if c.MaxRawEvents <= 0 {
		c.MaxRawEvents = defaultMaxRawEvents
	}
	if c.SimilarityThreshold <= 0 || c.SimilarityThreshold > 1 {
		c.SimilarityThreshold = defaultSimilarityThreshold
	}
	return c
}
