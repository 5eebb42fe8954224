package coldstate

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tempLogPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "trajectory.log")
}

func rec(ns, id string, x, y, z float64, ts int64) Record {
	return Record{Namespace: ns, ObjectID: id, X: x, Y: y, Z: z, Timestamp: ts}
}

func TestAppendAndFlushPersistsRecords(t *testing.T) {
	path := tempLogPath(t)
	l, err := Open(path, Config{BufferSize: 512})
	require.NoError(t, err)

	require.NoError(t, l.Append(rec("fleet", "a", 1, 2, 3, 100)))
	require.NoError(t, l.Append(rec("fleet", "b", 4, 5, 6, 200)))
	require.NoError(t, l.Flush())
	require.NoError(t, l.Close())

	l2, err := Open(path, Config{BufferSize: 512})
	require.NoError(t, err)
	defer l2.Close()

	got, err := l2.ReadAll()
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ObjectID)
	assert.Equal(t, "b", got[1].ObjectID)
}

func TestAutoFlushOnBufferCapacity(t *testing.T) {
	path := tempLogPath(t)
	l, err := Open(path, Config{BufferSize: 2})
	require.NoError(t, err)
	defer l.Close()

	require.NoError(t, l.Append(rec("fleet", "a", 0, 0, 0, 1)))
	assert.Equal(t, 1, l.BufferedCount())

	require.NoError(t, l.Append(rec("fleet", "b", 0, 0, 0, 2)))
	assert.Equal(t, 0, l.BufferedCount()) // auto-flushed at capacity

	got, err := l.ReadAll()
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestOpenTwiceFailsWithAlreadyOpen(t *testing.T) {
	path := tempLogPath(t)
	l, err := Open(path, Config{})
	require.NoError(t, err)
	defer l.Close()

	_, err = Open(path, Config{})
	assert.ErrorIs(t, err, ErrAlreadyOpen)
}

func TestRecoveryTruncatesPartialTailFrame(t *testing.T) {
	path := tempLogPath(t)
	l, err := Open(path, Config{})
	require.NoError(t, err)
	require.NoError(t, l.Append(rec("fleet", "a", 0, 0, 0, 1)))
	require.NoError(t, l.Flush())
	require.NoError(t, l.Close())

	info, err := os.Stat(path)
	require.NoError(t, err)
	fullSize := info.Size()

	// Append a second, well-framed record, then chop off its last 3 bytes
	// to simulate a crash mid-write of the trailing frame.
	f, err := os.OpenFile(path, os.O_RDWR, 0644)
	require.NoError(t, err)
	payload := rec("fleet", "b", 1, 1, 1, 2).encode()
	framed := frame(payload)
	_, err = f.WriteAt(framed, fullSize)
	require.NoError(t, err)
	require.NoError(t, f.Truncate(fullSize + int64(len(framed)) - 3))
	require.NoError(t, f.Close())

	l2, err := Open(path, Config{})
	require.NoError(t, err)
	defer l2.Close()

	got, err := l2.ReadAll()
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].ObjectID)

	info, err = os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, fullSize, info.Size())
}

func TestOpenFailsOnMidLogCorruption(t *testing.T) {
	path := tempLogPath(t)
	l, err := Open(path, Config{})
	require.NoError(t, err)
	require.NoError(t, l.Append(rec("fleet", "a", 0, 0, 0, 1)))
	require.NoError(t, l.Append(rec("fleet", "b", 0, 0, 0, 2)))
	require.NoError(t, l.Flush())
	require.NoError(t, l.Close())

	// Corrupt the CRC of the first frame, leaving a second valid frame
	// after it: this is not a trailing partial write, so it must be fatal.
	f, err := os.OpenFile(path, os.O_RDWR, 0644)
	require.NoError(t, err)
	var lenBuf [4]byte
	_, err = f.ReadAt(lenBuf[:], 0)
	require.NoError(t, err)
	recordLen := binary.LittleEndian.Uint32(lenBuf[:])
	crcOffset := int64(4 + recordLen)
	_, err = f.WriteAt([]byte{0xFF, 0xFF, 0xFF, 0xFF}, crcOffset)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = Open(path, Config{})
	assert.ErrorIs(t, err, ErrCorruptLog)
}

func TestQueryTrajectoryScansBufferThenLog(t *testing.T) {
	path := tempLogPath(t)
	l, err := Open(path, Config{})
	require.NoError(t, err)
	defer l.Close()

	require.NoError(t, l.Append(rec("fleet", "a", 0, 0, 0, 100)))
	require.NoError(t, l.Flush())
	require.NoError(t, l.Append(rec("fleet", "a", 1, 1, 0, 200))) // stays buffered

	got, err := l.QueryTrajectory("fleet", "a", 0, 1000, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(100), got[0].Timestamp)
	assert.Equal(t, int64(200), got[1].Timestamp)
}

func TestQueryTrajectoryWithZeroLimitReturnsEmptyWithoutError(t *testing.T) {
	path := tempLogPath(t)
	l, err := Open(path, Config{})
	require.NoError(t, err)
	defer l.Close()

	require.NoError(t, l.Append(rec("fleet", "a", 0, 0, 0, 100)))
	require.NoError(t, l.Flush())

	got, err := l.QueryTrajectory("fleet", "a", 0, 1000, 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestQueryTrajectoryFiltersByNamespaceAndID(t *testing.T) {
	path := tempLogPath(t)
	l, err := Open(path, Config{})
	require.NoError(t, err)
	defer l.Close()

	require.NoError(t, l.Append(rec("fleet", "a", 0, 0, 0, 100)))
	require.NoError(t, l.Append(rec("fleet", "b", 0, 0, 0, 100)))
	require.NoError(t, l.Append(rec("other", "a", 0, 0, 0, 100)))
	require.NoError(t, l.Flush())

	got, err := l.QueryTrajectory("fleet", "a", 0, 1000, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "fleet", got[0].Namespace)
	assert.Equal(t, "a", got[0].ObjectID)
}

func TestMemoryLogRetainsRecordsWithoutTouchingDisk(t *testing.T) {
	l := Memory(Config{})
	require.NoError(t, l.Append(rec("fleet", "a", 0, 0, 0, 1)))
	require.NoError(t, l.Flush())

	got, err := l.ReadAll()
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].ObjectID)

	n, err := l.LogBytes()
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, l.Close())
}

func TestMemoryLogQueryTrajectorySeesFlushedRecords(t *testing.T) {
	l := Memory(Config{})
	require.NoError(t, l.Append(rec("fleet", "a", 0, 0, 0, 100)))
	require.NoError(t, l.Flush())
	require.NoError(t, l.Append(rec("fleet", "a", 1, 1, 0, 200))) // stays buffered

	got, err := l.QueryTrajectory("fleet", "a", 0, 1000, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(100), got[0].Timestamp)
	assert.Equal(t, int64(200), got[1].Timestamp)
}
