// Package spatio is an embedded spatio-temporal engine: it tracks the
// current location of many moving objects (Hot State) while durably
// recording their movement history (Cold State), and answers spatial
// queries — radius, bounding box, cylinder, sphere, k-nearest-neighbor, and
// polygon containment — against the current set.
package spatio

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pkvartsianyi/spatio/internal/coldstate"
	"github.com/pkvartsianyi/spatio/internal/hotstate"
	"github.com/pkvartsianyi/spatio/internal/recovery"
)

// Engine is one database instance: a Hot State registry, a Cold State
// trajectory log, and the configuration that produced them. An Engine is
// safe for concurrent use by many goroutines, per spec §6's "thread-safe to
// call from many threads concurrently" requirement.
type Engine struct {
	cfg Config
	log *zap.Logger

	hot  *hotstate.Store
	cold *coldstate.Log

	statsMu   sync.Mutex
	lastFlush time.Time
}

// Open opens (creating if absent) the engine backed by the trajectory log
// at path, replaying it into Hot State before returning, per spec §4.4.
func Open(path string, opts ...Option) (*Engine, error) {
	cfg := defaultConfig()
	cfg.path = path
	for _, opt := range opts {
		opt(&cfg)
	}

	log, err := coldstate.Open(path, coldstate.Config{
		BufferSize:    cfg.bufferSize,
		SyncMode:      cfg.syncMode,
		SyncBatchSize: cfg.syncBatchSize,
		Logger:        cfg.logger,
	})
	if err != nil {
		return nil, wrapColdStateErr("Open", err)
	}

	hot := hotstate.New()
	if err := recovery.Run(log, hot); err != nil {
		log.Close()
		return nil, newError(IoError, "Open", fmt.Errorf("replay trajectory log: %w", err))
	}

	return &Engine{cfg: cfg, log: cfg.logger.Named("spatio"), hot: hot, cold: log}, nil
}

// Memory opens a purely in-memory engine: nothing is persisted, and Close
// discards everything. Useful for tests and ephemeral workloads, per spec
// §6's memory() lifecycle entry point.
func Memory(opts ...Option) *Engine {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	log := coldstate.Memory(coldstate.Config{
		BufferSize:    cfg.bufferSize,
		SyncMode:      cfg.syncMode,
		SyncBatchSize: cfg.syncBatchSize,
		Logger:        cfg.logger,
	})
	return &Engine{cfg: cfg, log: cfg.logger.Named("spatio"), hot: hotstate.New(), cold: log}
}

func wrapColdStateErr(op string, err error) *Error {
	switch {
	case errors.Is(err, coldstate.ErrAlreadyOpen):
		return newError(AlreadyOpen, op, err)
	case errors.Is(err, coldstate.ErrCorruptLog):
		return newError(CorruptLog, op, err)
	default:
		return newError(IoError, op, err)
	}
}

func (e *Engine) now() time.Time { return e.cfg.clock() }

// Close flushes any buffered trajectory records and releases the log file.
// On a Memory engine there is no file: Close only moves buffered records
// into the in-memory log.
func (e *Engine) Close() error {
	if err := e.cold.Close(); err != nil {
		return newError(IoError, "Close", err)
	}
	return nil
}

// Flush drains the Cold State write buffer to disk and applies the
// configured sync policy, per spec §6's flush() lifecycle operation.
func (e *Engine) Flush() error {
	if err := e.cold.Flush(); err != nil {
		return newError(IoError, "Flush", err)
	}
	e.statsMu.Lock()
	e.lastFlush = e.now()
	e.statsMu.Unlock()
	return nil
}

// CleanupExpired physically removes every TTL-expired entry across every
// namespace, returning the total removed.
func (e *Engine) CleanupExpired() int {
	now := e.now()
	total := 0
	for _, ns := range e.hot.Namespaces() {
		total += e.hot.CleanupExpired(ns, now)
	}
	return total
}

// CountExpired returns the number of expired-but-not-yet-removed entries
// across every namespace.
func (e *Engine) CountExpired() int {
	now := e.now()
	total := 0
	for _, ns := range e.hot.Namespaces() {
		total += e.hot.CountExpired(ns, now)
	}
	return total
}

// Namespaces returns the set of namespaces that have ever held an object.
func (e *Engine) Namespaces() []string { return e.hot.Namespaces() }

// Stats returns a point-in-time snapshot of the engine, per the §9 design
// note this spec supplements: assembled under each namespace's read lock
// plus the Cold State mutex, mirroring the teacher's Store.Keys() pattern.
func (e *Engine) Stats() (EngineStats, error) {
	hotStats := e.hot.Stats()
	logBytes, err := e.cold.LogBytes()
	if err != nil {
		return EngineStats{}, newError(IoError, "Stats", err)
	}

	var objectCount, indexEntries int
	for _, ns := range hotStats {
		objectCount += ns.ObjectCount
		indexEntries += ns.IndexSize
	}

	e.statsMu.Lock()
	lastFlush := e.lastFlush
	e.statsMu.Unlock()

	return EngineStats{
		Namespaces:      len(hotStats),
		ObjectCount:     objectCount,
		IndexEntries:    indexEntries,
		BufferedRecords: e.cold.BufferedCount(),
		LogBytes:        logBytes,
		LastFlush:       lastFlush,
	}, nil
}
