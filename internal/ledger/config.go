package ledger

import "time"

// Config controls ledger buffering, durability, and retention behavior.
type Config struct {
	// FlushInterval is how often the buffer is flushed to storage. Zero or
	// negative disables the timer; flushes then happen only on batch-size
	// pressure, explicit Flush calls, and queries.
	FlushInterval time.Duration
	// MaxBatchSize triggers an inline flush once the pending buffer reaches
	// this many entries.
	MaxBatchSize int
	// RetentionDays bounds how long persisted raw entries are kept.
	// PruneExpired deletes anything older.
	RetentionDays int
}

const (
	defaultFlushInterval = 5 * time.Second
	defaultMaxBatchSize  = 100
	defaultRetentionDays = 30

	// boundedFetchLimit caps how many recent entries per-entity and per-file
	// lookups scan before filtering in memory.
	boundedFetchLimit = 1000

	// aggregationScanCap bounds the aggregation scan. Above the cap the
	// aggregation is intentionally approximate.
	aggregationScanCap = 10000
)

// normalized returns a copy with defaults applied to unset fields.
func (c Config) normalized() Config {
	if c.FlushInterval == 0 {
		c.FlushInterval = defaultFlushInterval
	}
	if c.MaxBatchSize <= 0 {
		c.MaxBatchSize = defaultMaxBatchSize
	}
	if c.RetentionDays <= 0 {
		c.RetentionDays = defaultRetentionDays
	}
	return c
}
