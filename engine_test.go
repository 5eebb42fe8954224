package spatio

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tempDBPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "spatio.db")
}

func TestMemoryEngineOpensEmpty(t *testing.T) {
	e := Memory()
	defer e.Close()

	assert.Empty(t, e.Namespaces())
}

func TestOpenCreatesFileAndRecoversEmpty(t *testing.T) {
	path := tempDBPath(t)
	e, err := Open(path)
	require.NoError(t, err)
	defer e.Close()

	assert.Empty(t, e.Namespaces())
}

func TestOpenTwiceFailsWithAlreadyOpen(t *testing.T) {
	path := tempDBPath(t)
	e, err := Open(path)
	require.NoError(t, err)
	defer e.Close()

	_, err = Open(path)
	require.Error(t, err)
	var spatioErr *Error
	require.ErrorAs(t, err, &spatioErr)
	assert.Equal(t, AlreadyOpen, spatioErr.Kind)
}

func TestRecoveryRebuildsHotStateAcrossReopen(t *testing.T) {
	path := tempDBPath(t)
	e, err := Open(path)
	require.NoError(t, err)

	_, err = e.Upsert("fleet", "truck-1", Point{X: 1, Y: 2, Z: 0}, nil, 0)
	require.NoError(t, err)
	_, err = e.Upsert("fleet", "truck-1", Point{X: 3, Y: 4, Z: 0}, nil, 0)
	require.NoError(t, err)
	require.NoError(t, e.Flush())
	require.NoError(t, e.Close())

	e2, err := Open(path)
	require.NoError(t, err)
	defer e2.Close()

	loc, ok := e2.Get("fleet", "truck-1")
	require.True(t, ok)
	assert.Equal(t, Point{X: 3, Y: 4, Z: 0}, loc.Point)
}

func TestRecoveryWithManyDistinctObjects(t *testing.T) {
	path := tempDBPath(t)
	e, err := Open(path)
	require.NoError(t, err)

	const n = 1000
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("obj-%d", i)
		_, err := e.Upsert("fleet", id, Point{X: 1, Y: 1, Z: 0}, nil, 0)
		require.NoError(t, err)
	}
	require.NoError(t, e.Flush())
	require.NoError(t, e.Close())

	e2, err := Open(path)
	require.NoError(t, err)
	defer e2.Close()

	stats, err := e2.Stats()
	require.NoError(t, err)
	assert.Equal(t, n, stats.ObjectCount)
}

func TestStatsReflectsBufferedAndFlushedState(t *testing.T) {
	e := Memory(WithBufferSize(512))
	defer e.Close()

	_, err := e.Upsert("fleet", "a", Point{X: 0, Y: 0, Z: 0}, nil, 0)
	require.NoError(t, err)

	stats, err := e.Stats()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.ObjectCount)
	assert.Equal(t, 1, stats.BufferedRecords)

	require.NoError(t, e.Flush())
	stats, err = e.Stats()
	require.NoError(t, err)
	assert.Equal(t, 0, stats.BufferedRecords)
	assert.False(t, stats.LastFlush.IsZero())
}

func TestCleanupExpiredRemovesOnlyExpiredEntries(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := &fakeClock{t: now}
	e := Memory(withClock(clock.Now))
	defer e.Close()

	_, err := e.Upsert("fleet", "short-lived", Point{X: 0, Y: 0, Z: 0}, nil, time.Second)
	require.NoError(t, err)
	_, err = e.Upsert("fleet", "long-lived", Point{X: 1, Y: 1, Z: 0}, nil, 0)
	require.NoError(t, err)

	clock.t = now.Add(2 * time.Second)
	assert.Equal(t, 1, e.CountExpired())
	assert.Equal(t, 1, e.CleanupExpired())
	assert.Equal(t, 0, e.CleanupExpired())

	_, ok := e.Get("fleet", "long-lived")
	assert.True(t, ok)
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time { return c.t }
