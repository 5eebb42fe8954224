package hotstate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpsertThenGetRoundTrips(t *testing.T) {
	s := New()
	now := time.Now()
	s.Upsert("fleet", "truck-1", Point{X: 1, Y: 2, Z: 3}, []byte("meta"), 0, now)

	loc, ok := s.Get("fleet", "truck-1", now)
	require.True(t, ok)
	assert.Equal(t, Point{X: 1, Y: 2, Z: 3}, loc.Point)
	assert.Equal(t, []byte("meta"), loc.Metadata)
	assert.Equal(t, now, loc.CreatedAt)
	assert.Equal(t, now, loc.UpdatedAt)
}

func TestUpsertReplacePreservesCreatedAt(t *testing.T) {
	s := New()
	t0 := time.Now()
	t1 := t0.Add(time.Minute)

	s.Upsert("fleet", "truck-1", Point{X: 1, Y: 1, Z: 0}, nil, 0, t0)
	s.Upsert("fleet", "truck-1", Point{X: 2, Y: 2, Z: 0}, nil, 0, t1)

	loc, ok := s.Get("fleet", "truck-1", t1)
	require.True(t, ok)
	assert.Equal(t, t0, loc.CreatedAt)
	assert.Equal(t, t1, loc.UpdatedAt)
	assert.Equal(t, Point{X: 2, Y: 2, Z: 0}, loc.Point)
}

func TestGetMissingReturnsFalse(t *testing.T) {
	s := New()
	_, ok := s.Get("fleet", "ghost", time.Now())
	assert.False(t, ok)
}

func TestGetExpiredReturnsFalse(t *testing.T) {
	s := New()
	now := time.Now()
	s.Upsert("fleet", "truck-1", Point{X: 1, Y: 1, Z: 0}, nil, time.Second, now)

	_, ok := s.Get("fleet", "truck-1", now.Add(2*time.Second))
	assert.False(t, ok)
}

func TestDeleteRemovesFromMapAndIndex(t *testing.T) {
	s := New()
	now := time.Now()
	s.Upsert("fleet", "truck-1", Point{X: 1, Y: 1, Z: 0}, nil, 0, now)

	require.True(t, s.Delete("fleet", "truck-1"))
	_, ok := s.Get("fleet", "truck-1", now)
	assert.False(t, ok)

	hits := s.QueryRadius("fleet", Point{X: 1, Y: 1, Z: 0}, 100000, 10, now)
	assert.Empty(t, hits)
}

func TestDeleteMissingReturnsFalse(t *testing.T) {
	s := New()
	assert.False(t, s.Delete("fleet", "ghost"))
}

func TestCountAndCleanupExpired(t *testing.T) {
	s := New()
	now := time.Now()
	s.Upsert("fleet", "a", Point{X: 0, Y: 0, Z: 0}, nil, time.Second, now)
	s.Upsert("fleet", "b", Point{X: 1, Y: 1, Z: 0}, nil, 0, now)

	later := now.Add(2 * time.Second)
	assert.Equal(t, 1, s.CountExpired("fleet", later))

	removed := s.CleanupExpired("fleet", later)
	assert.Equal(t, 1, removed)
	assert.Equal(t, 0, s.CleanupExpired("fleet", later)) // idempotent

	_, ok := s.Get("fleet", "b", later)
	assert.True(t, ok) // unaffected
}

func TestNamespacesAreIsolated(t *testing.T) {
	s := New()
	now := time.Now()
	s.Upsert("a", "x", Point{X: 0, Y: 0, Z: 0}, nil, 0, now)
	s.Upsert("b", "x", Point{X: 0, Y: 0, Z: 0}, nil, 0, now)

	assert.ElementsMatch(t, []string{"a", "b"}, s.Namespaces())

	require.True(t, s.Delete("a", "x"))
	_, ok := s.Get("b", "x", now)
	assert.True(t, ok)
}

func TestStatsReflectsObjectAndIndexCounts(t *testing.T) {
	s := New()
	now := time.Now()
	s.Upsert("fleet", "a", Point{X: 0, Y: 0, Z: 0}, nil, 0, now)
	s.Upsert("fleet", "b", Point{X: 1, Y: 1, Z: 0}, nil, 0, now)

	stats := s.Stats()
	require.Contains(t, stats, "fleet")
	assert.Equal(t, 2, stats["fleet"].ObjectCount)
	assert.Equal(t, 2, stats["fleet"].IndexSize)
}

func TestRecoverReplacesNamespaceState(t *testing.T) {
	s := New()
	now := time.Now()
	s.Upsert("fleet", "stale", Point{X: 9, Y: 9, Z: 0}, nil, 0, now)

	s.Recover("fleet", []Location{
		{Namespace: "fleet", ObjectID: "a", Point: Point{X: 1, Y: 1, Z: 0}, CreatedAt: now, UpdatedAt: now},
		{Namespace: "fleet", ObjectID: "b", Point: Point{X: 2, Y: 2, Z: 0}, CreatedAt: now, UpdatedAt: now},
	})

	_, ok := s.Get("fleet", "stale", now)
	assert.False(t, ok)

	a, ok := s.Get("fleet", "a", now)
	require.True(t, ok)
	assert.Equal(t, Point{X: 1, Y: 1, Z: 0}, a.Point)
}
