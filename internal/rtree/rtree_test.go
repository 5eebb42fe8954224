package rtree

import (
	"math"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEntry(objectID string, x, y, z float64) Entry {
	return Entry{ID: uuid.New(), ObjectID: objectID, Point: Point{X: x, Y: y, Z: z}}
}

func TestInsertAndLen(t *testing.T) {
	tr := New()
	for i := 0; i < 50; i++ {
		tr.Insert(newEntry("obj", float64(i), float64(i), 0))
	}
	assert.Equal(t, 50, tr.Len())
}

func TestQueryEnvelopeFindsContainedPoints(t *testing.T) {
	tr := New()
	for i := 0; i < 20; i++ {
		tr.Insert(newEntry("obj", float64(i), float64(i), 0))
	}
	box := Box{MinX: 5, MinY: 5, MinZ: math.Inf(-1), MaxX: 10, MaxY: 10, MaxZ: math.Inf(1)}
	got := tr.QueryEnvelope(box, 0)
	assert.Len(t, got, 6) // i = 5..10 inclusive
}

func TestQueryEnvelopeRespectsLimit(t *testing.T) {
	tr := New()
	for i := 0; i < 20; i++ {
		tr.Insert(newEntry("obj", float64(i), float64(i), 0))
	}
	box := Box{MinX: 0, MinY: 0, MinZ: math.Inf(-1), MaxX: 19, MaxY: 19, MaxZ: math.Inf(1)}
	got := tr.QueryEnvelope(box, 3)
	assert.Len(t, got, 3)
}

func TestRemoveDeletesExactEntry(t *testing.T) {
	tr := New()
	e := newEntry("target", 1, 1, 0)
	tr.Insert(e)
	tr.Insert(newEntry("other", 2, 2, 0))

	require.True(t, tr.Remove(e.ID, e.Point))
	assert.Equal(t, 1, tr.Len())

	box := Box{MinX: -10, MinY: -10, MinZ: -10, MaxX: 10, MaxY: 10, MaxZ: 10}
	got := tr.QueryEnvelope(box, 0)
	require.Len(t, got, 1)
	assert.Equal(t, "other", got[0].ObjectID)
}

func TestRemoveMissingEntryReturnsFalse(t *testing.T) {
	tr := New()
	tr.Insert(newEntry("obj", 0, 0, 0))
	assert.False(t, tr.Remove(uuid.New(), Point{X: 99, Y: 99, Z: 99}))
}

func TestDuplicateCoordinatesCoexist(t *testing.T) {
	tr := New()
	a := newEntry("a", 5, 5, 5)
	b := newEntry("b", 5, 5, 5)
	tr.Insert(a)
	tr.Insert(b)
	assert.Equal(t, 2, tr.Len())

	require.True(t, tr.Remove(a.ID, a.Point))
	assert.Equal(t, 1, tr.Len())

	box := Box{MinX: 4, MinY: 4, MinZ: 4, MaxX: 6, MaxY: 6, MaxZ: 6}
	got := tr.QueryEnvelope(box, 0)
	require.Len(t, got, 1)
	assert.Equal(t, "b", got[0].ObjectID)
}

func TestVisitNearestReturnsAscendingOrder(t *testing.T) {
	tr := New()
	tr.Insert(newEntry("far", 100, 100, 0))
	tr.Insert(newEntry("near", 1, 1, 0))
	tr.Insert(newEntry("mid", 10, 10, 0))

	var order []string
	var lastDist2 float64
	first := true
	tr.VisitNearest(Point{X: 0, Y: 0, Z: 0}, func(e Entry, dist2 float64) bool {
		if !first {
			assert.GreaterOrEqual(t, dist2, lastDist2)
		}
		first = false
		lastDist2 = dist2
		order = append(order, e.ObjectID)
		return true
	})
	assert.Equal(t, []string{"near", "mid", "far"}, order)
}

func TestVisitNearestStopsEarlyWhenVisitReturnsFalse(t *testing.T) {
	tr := New()
	for i := 0; i < 10; i++ {
		tr.Insert(newEntry("obj", float64(i), float64(i), 0))
	}
	count := 0
	tr.VisitNearest(Point{X: 0, Y: 0, Z: 0}, func(e Entry, dist2 float64) bool {
		count++
		return count < 3
	})
	assert.Equal(t, 3, count)
}

func TestBulkLoadOnEmptyEntriesReturnsEmptyTree(t *testing.T) {
	tr := BulkLoad(nil)
	assert.Equal(t, 0, tr.Len())

	box := Box{MinX: math.Inf(-1), MinY: math.Inf(-1), MinZ: math.Inf(-1), MaxX: math.Inf(1), MaxY: math.Inf(1), MaxZ: math.Inf(1)}
	assert.Empty(t, tr.QueryEnvelope(box, 0))
}

func TestBulkLoadIndexesAllEntriesAndStaysQueryable(t *testing.T) {
	const n = 500
	entries := make([]Entry, n)
	for i := 0; i < n; i++ {
		entries[i] = newEntry("obj", float64(i%50), float64(i/50), 0)
	}

	tr := BulkLoad(entries)
	require.Equal(t, n, tr.Len())

	box := Box{MinX: math.Inf(-1), MinY: math.Inf(-1), MinZ: math.Inf(-1), MaxX: math.Inf(1), MaxY: math.Inf(1), MaxZ: math.Inf(1)}
	got := tr.QueryEnvelope(box, 0)
	assert.Len(t, got, n)
}

func TestBulkLoadMatchesOneAtATimeInsertForNearestNeighbor(t *testing.T) {
	entries := []Entry{
		newEntry("far", 100, 100, 0),
		newEntry("near", 1, 1, 0),
		newEntry("mid", 10, 10, 0),
	}

	tr := BulkLoad(entries)
	var order []string
	tr.VisitNearest(Point{X: 0, Y: 0, Z: 0}, func(e Entry, dist2 float64) bool {
		order = append(order, e.ObjectID)
		return true
	})
	assert.Equal(t, []string{"near", "mid", "far"}, order)
}

func TestBulkLoadEntriesRemainRemovable(t *testing.T) {
	e := newEntry("target", 1, 1, 0)
	entries := []Entry{e, newEntry("other", 2, 2, 0)}

	tr := BulkLoad(entries)
	require.True(t, tr.Remove(e.ID, e.Point))
	assert.Equal(t, 1, tr.Len())
}

func TestForcedReinsertionAndSplitKeepAllEntriesQueryable(t *testing.T) {
	tr := New()
	const n = 500
	entries := make([]Entry, n)
	for i := 0; i < n; i++ {
		e := newEntry("obj", float64(i%50), float64(i/50), 0)
		entries[i] = e
		tr.Insert(e)
	}
	require.Equal(t, n, tr.Len())

	box := Box{MinX: math.Inf(-1), MinY: math.Inf(-1), MinZ: math.Inf(-1), MaxX: math.Inf(1), MaxY: math.Inf(1), MaxZ: math.Inf(1)}
	got := tr.QueryEnvelope(box, 0)
	assert.Len(t, got, n)
}
