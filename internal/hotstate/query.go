package hotstate

import (
	"container/heap"
	"errors"
	"math"
	"sort"
	"time"

	"github.com/pkvartsianyi/spatio/internal/geo"
	"github.com/pkvartsianyi/spatio/internal/rtree"
)

// ErrAnchorNotFound is returned by the relative query variants when the
// anchor object is absent or expired, per spec §4.1.
var ErrAnchorNotFound = errors.New("anchor object not found or expired")

// PointHit is a distance-ordered query result: radius, sphere, and KNN
// queries all share this shape, per spec §4.1's query contract table.
type PointHit struct {
	ObjectID string
	Point    Point
	Metadata []byte
	Distance float64
}

// AreaHit is an unordered-but-stable query result: bbox and polygon
// queries, per spec §4.1.
type AreaHit struct {
	ObjectID string
	Point    Point
	Metadata []byte
}

// CylinderHit is a cylinder query result, ordered by horizontal distance.
type CylinderHit struct {
	ObjectID           string
	Point              Point
	Metadata           []byte
	HorizontalDistance float64
}

func boxFull(minX, minY, maxX, maxY, minZ, maxZ float64) rtree.Box {
	return rtree.Box{MinX: minX, MinY: minY, MinZ: minZ, MaxX: maxX, MaxY: maxY, MaxZ: maxZ}
}

// QueryRadius returns entries within radiusMeters of center (horizontal
// haversine distance), ascending by distance, per spec §4.1/§9: the index
// is used only as a conservative bbox pre-filter, then haversine-filtered.
func (s *Store) QueryRadius(ns string, center Point, radiusMeters float64, limit int, now time.Time) []PointHit {
	if limit == 0 {
		return nil
	}
	return withNamespace(s, ns, func(n *Namespace) []PointHit {
		return n.queryRadius(center, radiusMeters, limit, now)
	})
}

func (n *Namespace) queryRadius(center Point, radiusMeters float64, limit int, now time.Time) []PointHit {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.queryRadiusLocked(center, radiusMeters, limit, now)
}

func (n *Namespace) queryRadiusLocked(center Point, radiusMeters float64, limit int, now time.Time) []PointHit {
	minLon, minLat, maxLon, maxLat := geo.BoundingWindowForRadius(center.X, center.Y, radiusMeters)
	box := boxFull(minLon, minLat, maxLon, maxLat, math.Inf(-1), math.Inf(1))

	var out []PointHit
	for _, e := range n.index.QueryEnvelope(box, 0) {
		loc, ok := n.objects[e.ObjectID]
		if !ok || loc.Expired(now) {
			continue
		}
		d := geo.Haversine(center.X, center.Y, loc.Point.X, loc.Point.Y)
		if d <= radiusMeters {
			out = append(out, PointHit{ObjectID: e.ObjectID, Point: loc.Point, Metadata: cloneMetadata(loc.Metadata), Distance: d})
		}
	}
	sortPointHits(out)
	return truncatePointHits(out, limit)
}

// QuerySphere3D returns entries within radiusMeters of center using 3D
// (haversine + altitude) distance, ascending by distance.
func (s *Store) QuerySphere3D(ns string, center Point, radiusMeters float64, limit int, now time.Time) []PointHit {
	if limit == 0 {
		return nil
	}
	return withNamespace(s, ns, func(n *Namespace) []PointHit {
		return n.querySphere(center, radiusMeters, limit, now)
	})
}

func (n *Namespace) querySphere(center Point, radiusMeters float64, limit int, now time.Time) []PointHit {
	n.mu.RLock()
	defer n.mu.RUnlock()

	minLon, minLat, maxLon, maxLat := geo.BoundingWindowForRadius(center.X, center.Y, radiusMeters)
	box := boxFull(minLon, minLat, maxLon, maxLat, center.Z-radiusMeters, center.Z+radiusMeters)

	var out []PointHit
	for _, e := range n.index.QueryEnvelope(box, 0) {
		loc, ok := n.objects[e.ObjectID]
		if !ok || loc.Expired(now) {
			continue
		}
		d := geo.Haversine3D(center.X, center.Y, center.Z, loc.Point.X, loc.Point.Y, loc.Point.Z)
		if d <= radiusMeters {
			out = append(out, PointHit{ObjectID: e.ObjectID, Point: loc.Point, Metadata: cloneMetadata(loc.Metadata), Distance: d})
		}
	}
	sortPointHits(out)
	return truncatePointHits(out, limit)
}

// QueryBBox2D returns entries whose (x, y) falls within the box, ignoring
// altitude entirely (z spans the full range).
func (s *Store) QueryBBox2D(ns string, minX, minY, maxX, maxY float64, limit int, now time.Time) []AreaHit {
	if limit == 0 {
		return nil
	}
	return withNamespace(s, ns, func(n *Namespace) []AreaHit {
		box := boxFull(minX, minY, maxX, maxY, math.Inf(-1), math.Inf(1))
		return n.queryBox(box, limit, now)
	})
}

// QueryBBox3D returns entries within the 3D axis-aligned box (inclusive).
func (s *Store) QueryBBox3D(ns string, min, max Point, limit int, now time.Time) []AreaHit {
	if limit == 0 {
		return nil
	}
	return withNamespace(s, ns, func(n *Namespace) []AreaHit {
		box := boxFull(min.X, min.Y, max.X, max.Y, min.Z, max.Z)
		return n.queryBox(box, limit, now)
	})
}

func (n *Namespace) queryBox(box rtree.Box, limit int, now time.Time) []AreaHit {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.queryBoxLocked(box, limit, now)
}

func (n *Namespace) queryBoxLocked(box rtree.Box, limit int, now time.Time) []AreaHit {
	var out []AreaHit
	for _, e := range n.index.QueryEnvelope(box, 0) {
		loc, ok := n.objects[e.ObjectID]
		if !ok || loc.Expired(now) {
			continue
		}
		out = append(out, AreaHit{ObjectID: e.ObjectID, Point: loc.Point, Metadata: cloneMetadata(loc.Metadata)})
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

// QueryWithinCylinder returns entries within horizontalRadius (haversine) of
// center and with altitude in [minZ, maxZ], ascending by horizontal
// distance.
func (s *Store) QueryWithinCylinder(ns string, center Point, minZ, maxZ, horizontalRadius float64, limit int, now time.Time) []CylinderHit {
	if limit == 0 {
		return nil
	}
	return withNamespace(s, ns, func(n *Namespace) []CylinderHit {
		return n.queryCylinder(center, minZ, maxZ, horizontalRadius, limit, now)
	})
}

func (n *Namespace) queryCylinder(center Point, minZ, maxZ, horizontalRadius float64, limit int, now time.Time) []CylinderHit {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.queryCylinderLocked(center, minZ, maxZ, horizontalRadius, limit, now)
}

func (n *Namespace) queryCylinderLocked(center Point, minZ, maxZ, horizontalRadius float64, limit int, now time.Time) []CylinderHit {
	minLon, minLat, maxLon, maxLat := geo.BoundingWindowForRadius(center.X, center.Y, horizontalRadius)
	box := boxFull(minLon, minLat, maxLon, maxLat, minZ, maxZ)

	var out []CylinderHit
	for _, e := range n.index.QueryEnvelope(box, 0) {
		loc, ok := n.objects[e.ObjectID]
		if !ok || loc.Expired(now) {
			continue
		}
		d := geo.Haversine(center.X, center.Y, loc.Point.X, loc.Point.Y)
		if d <= horizontalRadius {
			out = append(out, CylinderHit{ObjectID: e.ObjectID, Point: loc.Point, Metadata: cloneMetadata(loc.Metadata), HorizontalDistance: d})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].HorizontalDistance != out[j].HorizontalDistance {
			return out[i].HorizontalDistance < out[j].HorizontalDistance
		}
		return out[i].ObjectID < out[j].ObjectID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// QueryWithinPolygon returns entries whose (x, y) lies inside polygon
// (even-odd ray-casting rule), using a bounding-box index pre-filter before
// the exact containment test, per spec §4.1.
func (s *Store) QueryWithinPolygon(ns string, polygon []Point, limit int, now time.Time) []AreaHit {
	if limit == 0 {
		return nil
	}
	return withNamespace(s, ns, func(n *Namespace) []AreaHit {
		return n.queryPolygon(polygon, limit, now)
	})
}

func (n *Namespace) queryPolygon(polygon []Point, limit int, now time.Time) []AreaHit {
	n.mu.RLock()
	defer n.mu.RUnlock()

	minX, minY, maxX, maxY := polygonBounds(polygon)
	box := boxFull(minX, minY, maxX, maxY, math.Inf(-1), math.Inf(1))

	var out []AreaHit
	for _, e := range n.index.QueryEnvelope(box, 0) {
		loc, ok := n.objects[e.ObjectID]
		if !ok || loc.Expired(now) {
			continue
		}
		if pointInPolygon(loc.Point, polygon) {
			out = append(out, AreaHit{ObjectID: e.ObjectID, Point: loc.Point, Metadata: cloneMetadata(loc.Metadata)})
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out
}

func polygonBounds(polygon []Point) (minX, minY, maxX, maxY float64) {
	minX, minY = math.Inf(1), math.Inf(1)
	maxX, maxY = math.Inf(-1), math.Inf(-1)
	for _, p := range polygon {
		minX, maxX = math.Min(minX, p.X), math.Max(maxX, p.X)
		minY, maxY = math.Min(minY, p.Y), math.Max(maxY, p.Y)
	}
	return
}

// pointInPolygon implements the standard even-odd ray-casting containment
// test over the polygon's vertices in (x, y).
func pointInPolygon(p Point, polygon []Point) bool {
	inside := false
	j := len(polygon) - 1
	for i := range polygon {
		pi, pj := polygon[i], polygon[j]
		if (pi.Y > p.Y) != (pj.Y > p.Y) {
			xIntersect := (pj.X-pi.X)*(p.Y-pi.Y)/(pj.Y-pi.Y) + pi.X
			if p.X < xIntersect {
				inside = !inside
			}
		}
		j = i
	}
	return inside
}

// DistanceMetric selects which distance function KNN uses.
type DistanceMetric int

const (
	Horizontal DistanceMetric = iota
	ThreeD
)

// KNN returns the k nearest entries to center, ascending by distance, using
// the requested metric. Per spec §4.1, a bounded max-heap of size k is kept
// while candidates are visited in the R*-tree's best-first (planar MINDIST)
// order; the heap only ever holds the current best k by true distance.
//
// Planar MINDIST (in raw coordinate-degree units) does not lower-bound
// haversine distance (in meters) the way it would for a planar metric, so
// unlike the bbox-based queries above this cannot safely cut the traversal
// short once the heap fills — doing so could silently drop a true nearest
// neighbor near the poles or the antimeridian. The traversal instead visits
// every live candidate; the heap keeps memory at O(k) regardless, matching
// the "O(n log k) worst case" complexity spec §4.1 allows.
func (s *Store) KNN(ns string, center Point, k int, metric DistanceMetric, now time.Time) []PointHit {
	return withNamespace(s, ns, func(n *Namespace) []PointHit {
		return n.knn(center, k, metric, now)
	})
}

func (n *Namespace) knn(center Point, k int, metric DistanceMetric, now time.Time) []PointHit {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.knnLocked(center, k, metric, now)
}

func (n *Namespace) knnLocked(center Point, k int, metric DistanceMetric, now time.Time) []PointHit {
	h := &maxDistHeap{}
	heap.Init(h)

	n.index.VisitNearest(center.toRtree(), func(e rtree.Entry, _ float64) bool {
		loc, ok := n.objects[e.ObjectID]
		if !ok || loc.Expired(now) {
			return true
		}
		var d float64
		if metric == ThreeD {
			d = geo.Haversine3D(center.X, center.Y, center.Z, loc.Point.X, loc.Point.Y, loc.Point.Z)
		} else {
			d = geo.Haversine(center.X, center.Y, loc.Point.X, loc.Point.Y)
		}
		cand := knnCandidate{hit: PointHit{ObjectID: e.ObjectID, Point: loc.Point, Metadata: cloneMetadata(loc.Metadata), Distance: d}}
		if h.Len() < k {
			heap.Push(h, cand)
		} else if h.Len() > 0 && less(cand, (*h)[0]) {
			heap.Pop(h)
			heap.Push(h, cand)
		}
		return true
	})

	out := make([]PointHit, h.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(h).(knnCandidate).hit
	}
	return out
}

// knnCandidate pairs a hit with the comparison key used by the bounded heap.
type knnCandidate struct{ hit PointHit }

// less reports whether a is strictly closer than b, tie-broken by object id
// for deterministic, reproducible ordering among equidistant entries.
func less(a, b knnCandidate) bool {
	if a.hit.Distance != b.hit.Distance {
		return a.hit.Distance < b.hit.Distance
	}
	return a.hit.ObjectID < b.hit.ObjectID
}

// maxDistHeap is a container/heap max-heap keyed by distance (farthest on
// top), so popping the top evicts the current worst candidate once the
// heap holds k entries.
type maxDistHeap []knnCandidate

func (h maxDistHeap) Len() int { return len(h) }
func (h maxDistHeap) Less(i, j int) bool {
	// Max-heap: i should sit above j when i is farther (worse).
	return less(h[j], h[i])
}
func (h maxDistHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *maxDistHeap) Push(x interface{}) {
	*h = append(*h, x.(knnCandidate))
}
func (h *maxDistHeap) Pop() interface{} {
	old := *h
	n := len(old)
	it := old[n-1]
	*h = old[:n-1]
	return it
}

func sortPointHits(hits []PointHit) {
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Distance != hits[j].Distance {
			return hits[i].Distance < hits[j].Distance
		}
		return hits[i].ObjectID < hits[j].ObjectID
	})
}

func truncatePointHits(hits []PointHit, limit int) []PointHit {
	if limit > 0 && len(hits) > limit {
		return hits[:limit]
	}
	return hits
}

// withNamespace runs fn against an existing namespace, or returns the zero
// value of T if the namespace has never been created (equivalent to it
// being empty).
func withNamespace[T any](s *Store, ns string, fn func(n *Namespace) T) T {
	n, ok := s.lookupNamespace(ns)
	if !ok {
		var zero T
		return zero
	}
	return fn(n)
}


// The *Near variants resolve an anchor object's current location and run
// the corresponding absolute query against it, both under the namespace's
// single read lock (spec §9): looking the anchor up and querying the index
// as two separately-locked steps would let an Upsert or Delete land on the
// anchor in between, so the anchor's position could silently drift out from
// under the query it's supposedly describing. The anchor itself is excluded
// from its own result set.

// QueryNear resolves anchorID and returns entries within radiusMeters of
// its current location.
func (s *Store) QueryNear(ns, anchorID string, radiusMeters float64, limit int, now time.Time) ([]PointHit, error) {
	if limit == 0 {
		return nil, nil
	}
	n, ok := s.lookupNamespace(ns)
	if !ok {
		return nil, ErrAnchorNotFound
	}
	n.mu.RLock()
	defer n.mu.RUnlock()

	anchor, ok := n.objects[anchorID]
	if !ok || anchor.Expired(now) {
		return nil, ErrAnchorNotFound
	}
	hits := n.queryRadiusLocked(anchor.Point, radiusMeters, 0, now)
	return excludeSelfPoint(hits, anchorID, limit), nil
}

// QueryCylinderNear resolves anchorID and returns entries within
// horizontalRadius and [minZ, maxZ] of its current location.
func (s *Store) QueryCylinderNear(ns, anchorID string, minZ, maxZ, horizontalRadius float64, limit int, now time.Time) ([]CylinderHit, error) {
	if limit == 0 {
		return nil, nil
	}
	n, ok := s.lookupNamespace(ns)
	if !ok {
		return nil, ErrAnchorNotFound
	}
	n.mu.RLock()
	defer n.mu.RUnlock()

	anchor, ok := n.objects[anchorID]
	if !ok || anchor.Expired(now) {
		return nil, ErrAnchorNotFound
	}
	hits := n.queryCylinderLocked(anchor.Point, minZ, maxZ, horizontalRadius, 0, now)
	return excludeSelfCylinder(hits, anchorID, limit), nil
}

// QueryBBoxNear resolves anchorID and returns entries within a box of the
// given full width/height/depth centered on its current location.
func (s *Store) QueryBBoxNear(ns, anchorID string, width, height, depth float64, limit int, now time.Time) ([]AreaHit, error) {
	if limit == 0 {
		return nil, nil
	}
	n, ok := s.lookupNamespace(ns)
	if !ok {
		return nil, ErrAnchorNotFound
	}
	n.mu.RLock()
	defer n.mu.RUnlock()

	anchor, ok := n.objects[anchorID]
	if !ok || anchor.Expired(now) {
		return nil, ErrAnchorNotFound
	}
	p := anchor.Point
	box := boxFull(p.X-width/2, p.Y-height/2, p.X+width/2, p.Y+height/2, p.Z-depth/2, p.Z+depth/2)
	hits := n.queryBoxLocked(box, 0, now)
	return excludeSelfArea(hits, anchorID, limit), nil
}

// KNNNear resolves anchorID and returns the k entries nearest to its
// current location.
func (s *Store) KNNNear(ns, anchorID string, k int, metric DistanceMetric, now time.Time) ([]PointHit, error) {
	n, ok := s.lookupNamespace(ns)
	if !ok {
		return nil, ErrAnchorNotFound
	}
	n.mu.RLock()
	defer n.mu.RUnlock()

	anchor, ok := n.objects[anchorID]
	if !ok || anchor.Expired(now) {
		return nil, ErrAnchorNotFound
	}
	hits := n.knnLocked(anchor.Point, k+1, metric, now)
	return excludeSelfPoint(hits, anchorID, k), nil
}

func excludeSelfPoint(hits []PointHit, selfID string, limit int) []PointHit {
	out := hits[:0:0]
	for _, h := range hits {
		if h.ObjectID == selfID {
			continue
		}
		out = append(out, h)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

func excludeSelfArea(hits []AreaHit, selfID string, limit int) []AreaHit {
	out := hits[:0:0]
	for _, h := range hits {
		if h.ObjectID == selfID {
			continue
		}
		out = append(out, h)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

func excludeSelfCylinder(hits []CylinderHit, selfID string, limit int) []CylinderHit {
	out := hits[:0:0]
	for _, h := range hits {
		if h.ObjectID == selfID {
			continue
		}
		out = append(out, h)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}
