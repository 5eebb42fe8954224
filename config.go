package spatio

import (
	"time"

	"go.uber.org/zap"

	"github.com/pkvartsianyi/spatio/internal/coldstate"
)

// Config holds the options an Option mutates before Open/Memory construct
// the engine, per spec §6's configuration table.
type Config struct {
	path string

	bufferSize    int
	syncMode      coldstate.SyncMode
	syncBatchSize int
	defaultTTL    time.Duration
	timeIndex     bool

	logger *zap.Logger

	// clock is an unexported test seam (never part of the public Option
	// surface) letting tests make TTL expiry and recovery timestamps
	// deterministic. Defaults to time.Now.
	clock func() time.Time
}

func defaultConfig() Config {
	return Config{
		bufferSize:    512,
		syncMode:      coldstate.SyncAll,
		syncBatchSize: 1,
		logger:        zap.NewNop(),
		clock:         time.Now,
	}
}

// Option configures an Engine at Open or Memory time.
type Option func(*Config)

// WithBufferSize sets the write-buffer record count before auto-flush.
func WithBufferSize(n int) Option {
	return func(c *Config) { c.bufferSize = n }
}

// WithSyncMode selects the fsync policy applied after a flush.
func WithSyncMode(mode coldstate.SyncMode) Option {
	return func(c *Config) { c.syncMode = mode }
}

// WithSyncBatchSize delays sync to cover N flushes.
func WithSyncBatchSize(n int) Option {
	return func(c *Config) { c.syncBatchSize = n }
}

// WithDefaultTTL applies ttl to any upsert that does not specify its own.
func WithDefaultTTL(ttl time.Duration) Option {
	return func(c *Config) { c.defaultTTL = ttl }
}

// WithTimeIndex records whether an auxiliary in-memory (ns, id) -> offsets
// index is wanted for query_trajectory. The flag is only stored in Config:
// no such index is built, and query_trajectory always scans the write
// buffer and the whole log.
func WithTimeIndex(enabled bool) Option {
	return func(c *Config) { c.timeIndex = enabled }
}

// WithLogger supplies a *zap.Logger. The only message logged is the Cold
// State warning when a trailing partial frame is truncated at Open; flush
// and sync errors are returned to the caller and cleanup counts are not
// logged. Defaults to zap.NewNop().
func WithLogger(logger *zap.Logger) Option {
	return func(c *Config) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// withClock is an unexported test-only option; see Config.clock.
func withClock(clock func() time.Time) Option {
	return func(c *Config) { c.clock = clock }
}
