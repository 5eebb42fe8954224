// Package coldstate is the durable trajectory log plus its in-memory write
// buffer — the engine's Cold State, per spec §4.2. Every upsert appends one
// TrajectoryRecord here; the log is never rewritten, only appended to and,
// on recovery, tail-truncated past its last valid frame.
package coldstate

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"sync"

	"github.com/gofrs/flock"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// SyncMode selects what Sync does after a flush, per spec §4.2.
type SyncMode int

const (
	// SyncAll fsyncs both file data and metadata — the default.
	SyncAll SyncMode = iota
	// SyncData selects a data-only sync. syncFile performs the same full
	// os.File.Sync for it as for SyncAll; no data-only sync is issued.
	SyncData
)

const defaultBufferSize = 512

// ErrAlreadyOpen is returned by Open when another process holds the log's
// exclusive lock.
var ErrAlreadyOpen = fmt.Errorf("coldstate: log already open by another process")

// ErrCorruptLog is returned by Open when a frame in the middle of the log
// fails its CRC check — an unrecoverable condition the core does not
// attempt to repair, per spec §4.2/§7.
var ErrCorruptLog = fmt.Errorf("coldstate: corrupt log")

// Log is the append-only trajectory log for one database: a write buffer
// guarded by its own mutex, and the underlying file. Buffering and flushing
// are decoupled so concurrent upserts can keep buffering while a flush's
// file I/O and fsync happen outside the buffer's critical section, per
// spec §9's concurrency note.
type Log struct {
	log *zap.Logger

	path       string
	bufferSize int
	syncMode   SyncMode
	syncEvery  int
	inMemory   bool

	file     *os.File
	fileLock *flock.Flock

	mu            sync.Mutex
	buffer        []Record
	flushesToSync int
	memRecords    []Record // accumulated flushed records when inMemory

	flushGroup singleflight.Group
}

// Config configures a Log at Open.
type Config struct {
	BufferSize    int
	SyncMode      SyncMode
	SyncBatchSize int
	Logger        *zap.Logger
}

func (c *Config) setDefaults() {
	if c.BufferSize <= 0 {
		c.BufferSize = defaultBufferSize
	}
	if c.SyncBatchSize <= 0 {
		c.SyncBatchSize = 1
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
}

// Open opens (creating if absent) the trajectory log at path, taking an
// exclusive advisory lock on "<path>.lock" for the lifetime of the Log, per
// spec §7's AlreadyOpen error kind.
func Open(path string, cfg Config) (*Log, error) {
	cfg.setDefaults()

	fl := flock.New(path + ".lock")
	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("coldstate: acquire lock: %w", err)
	}
	if !locked {
		return nil, ErrAlreadyOpen
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		fl.Unlock()
		return nil, fmt.Errorf("coldstate: open log: %w", err)
	}

	l := &Log{
		log:        cfg.Logger.Named("coldstate"),
		path:       path,
		bufferSize: cfg.BufferSize,
		syncMode:   cfg.SyncMode,
		syncEvery:  cfg.SyncBatchSize,
		file:       f,
		fileLock:   fl,
	}

	if err := l.truncateCorruptTail(); err != nil {
		f.Close()
		fl.Unlock()
		return nil, err
	}
	return l, nil
}

// Memory opens an in-memory-only Cold State: there is no backing file, but
// records still accumulate durably for the lifetime of the process — Flush
// moves them from the write buffer into an in-memory log slice instead of
// writing to disk, so query_trajectory and recovery keep working the same
// way they would against a real file. Used by spec §5's memory() lifecycle
// entry point for ephemeral/testing engines.
func Memory(cfg Config) *Log {
	cfg.setDefaults()
	return &Log{
		log:        cfg.Logger.Named("coldstate"),
		bufferSize: cfg.BufferSize,
		syncMode:   cfg.SyncMode,
		syncEvery:  cfg.SyncBatchSize,
		inMemory:   true,
	}
}

// Append buffers one record, auto-flushing once the buffer reaches its
// configured capacity, per spec §4.2's auto-flush trigger.
func (l *Log) Append(r Record) error {
	l.mu.Lock()
	l.buffer = append(l.buffer, r)
	full := len(l.buffer) >= l.bufferSize
	l.mu.Unlock()

	if full {
		return l.Flush()
	}
	return nil
}

// Flush drains the write buffer to the log file and applies the sync
// policy. Concurrent Flush calls are coalesced via singleflight so a burst
// of explicit flush() callers triggers one buffer-swap-and-fsync instead of
// N redundant ones.
func (l *Log) Flush() error {
	_, err, _ := l.flushGroup.Do("flush", func() (interface{}, error) {
		return nil, l.doFlush()
	})
	return err
}

func (l *Log) doFlush() error {
	l.mu.Lock()
	pending := l.buffer
	l.buffer = nil
	l.mu.Unlock()

	if len(pending) == 0 {
		return nil
	}
	if l.inMemory {
		l.mu.Lock()
		l.memRecords = append(l.memRecords, pending...)
		l.mu.Unlock()
		return nil
	}

	w := bufio.NewWriter(l.file)
	for _, r := range pending {
		if _, err := w.Write(frame(r.encode())); err != nil {
			return fmt.Errorf("coldstate: write record: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("coldstate: flush writer: %w", err)
	}

	l.flushesToSync++
	if l.flushesToSync >= l.syncEvery {
		if err := l.syncFile(); err != nil {
			return fmt.Errorf("coldstate: sync: %w", err)
		}
		l.flushesToSync = 0
	}
	return nil
}

// syncFile applies the configured sync policy. os.File.Sync always syncs
// both data and metadata; Go's standard library has no portable
// data-only-sync (the OS-level fdatasync distinction SyncData is meant to
// request), so SyncData currently degrades to the same full sync as
// SyncAll. The two modes are kept distinct in config so a platform-specific
// fast path can be added later without an API change.
func (l *Log) syncFile() error {
	return l.file.Sync()
}

// Close flushes any buffered records, closes the underlying file, and
// releases the exclusive lock.
func (l *Log) Close() error {
	if err := l.Flush(); err != nil {
		return err
	}
	if l.inMemory {
		return nil
	}
	if err := l.file.Close(); err != nil {
		return err
	}
	return l.fileLock.Unlock()
}

// BufferedCount returns the number of records currently buffered but not
// yet flushed, for Stats().
func (l *Log) BufferedCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buffer)
}

// BufferedSnapshot returns a copy of the records currently buffered, for
// QueryTrajectory's "scan the write buffer first" step.
func (l *Log) BufferedSnapshot() []Record {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Record, len(l.buffer))
	copy(out, l.buffer)
	return out
}

// LogBytes returns the current on-disk log size, for Stats().
func (l *Log) LogBytes() (int64, error) {
	if l.inMemory {
		return 0, nil
	}
	info, err := l.file.Stat()
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// ReadAll scans the log file from the beginning and returns every valid
// record. Used by the recovery package and by query_trajectory's
// "then the log file on disk" step.
func (l *Log) ReadAll() ([]Record, error) {
	if l.inMemory {
		l.mu.Lock()
		out := make([]Record, len(l.memRecords))
		copy(out, l.memRecords)
		l.mu.Unlock()
		return out, nil
	}
	if _, err := l.file.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	defer l.file.Seek(0, io.SeekEnd)

	var out []Record
	err := scanFrames(l.file, func(payload []byte) error {
		r, err := decodeRecord(payload)
		if err != nil {
			return err
		}
		out = append(out, r)
		return nil
	})
	return out, err
}

// truncateCorruptTail scans the log on Open, stopping at the first invalid
// frame and truncating the file there, per spec §4.4 invariant 3 and the
// "partial-tail CRC failure is recovered silently" rule in §7. A failure
// partway through a well-formed frame sequence but not at the very end is
// mid-log corruption and returns ErrCorruptLog instead.
func (l *Log) truncateCorruptTail() error {
	if _, err := l.file.Seek(0, io.SeekStart); err != nil {
		return err
	}
	info, err := l.file.Stat()
	if err != nil {
		return err
	}
	size := info.Size()

	validEnd, corruptMidLog, err := scanValidPrefix(l.file, size)
	if err != nil {
		return err
	}
	if corruptMidLog {
		return ErrCorruptLog
	}
	if validEnd < size {
		l.log.Warn("truncating trailing partial/invalid frame",
			zap.Int64("valid_end", validEnd), zap.Int64("file_size", size))
		if err := l.file.Truncate(validEnd); err != nil {
			return err
		}
	}
	if _, err := l.file.Seek(0, io.SeekEnd); err != nil {
		return err
	}
	return nil
}

// scanValidPrefix walks every frame in f and returns the byte offset just
// past the last one whose length header fits within the file and whose crc
// matches. A short/invalid frame ending exactly at size (the last record in
// the file) is a normal partial-write tail. A frame whose crc fails with any
// bytes after it means the log was corrupted somewhere other than its tail;
// the core treats that as fatal.
func scanValidPrefix(f *os.File, size int64) (validEnd int64, corruptMidLog bool, err error) {
	r := bufio.NewReader(f)
	var offset int64

	for offset < size {
		header := make([]byte, 4)
		n, readErr := io.ReadFull(r, header)
		if n < 4 {
			break // partial length header: tail truncation
		}
		recordLen := int64(binary.LittleEndian.Uint32(header))
		if offset+4+recordLen+4 > size {
			break // frame claims to extend past EOF: tail truncation
		}

		payload := make([]byte, recordLen)
		if _, readErr = io.ReadFull(r, payload); readErr != nil {
			break
		}
		crcBuf := make([]byte, 4)
		if _, readErr = io.ReadFull(r, crcBuf); readErr != nil {
			break
		}
		want := binary.LittleEndian.Uint32(crcBuf)
		got := crc32.ChecksumIEEE(payload)
		if want != got {
			remaining := size - (offset + 4 + recordLen + 4)
			if remaining > 0 {
				// Bad CRC with more log after it: this is not a trailing
				// partial write, it's corruption in the middle of the log.
				return validEnd, true, nil
			}
			break
		}

		offset += 4 + recordLen + 4
		validEnd = offset
	}
	return validEnd, false, nil
}

// scanFrames walks every well-formed frame in f from its current position,
// calling visit with each payload, and stops at the first invalid frame
// (truncateCorruptTail has already made the file end at a clean boundary by
// the time ReadAll runs).
func scanFrames(f *os.File, visit func(payload []byte) error) error {
	r := bufio.NewReader(f)
	for {
		header := make([]byte, 4)
		if _, err := io.ReadFull(r, header); err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		recordLen := binary.LittleEndian.Uint32(header)
		payload := make([]byte, recordLen)
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil
		}
		crcBuf := make([]byte, 4)
		if _, err := io.ReadFull(r, crcBuf); err != nil {
			return nil
		}
		if binary.LittleEndian.Uint32(crcBuf) != crc32.ChecksumIEEE(payload) {
			return nil
		}
		if err := visit(payload); err != nil {
			return err
		}
	}
}
