// Package rtree implements an R*-tree over 3D axis-aligned bounding boxes,
// each wrapping a single point. It follows the R* variant described in
// Beckmann/Kriegel/Schneider/Seeger: forced reinsertion on leaf overflow,
// minimum-overlap split selection, and an envelope-area split objective.
//
// The tree stores only coordinates and identity — (uuid, object id, point).
// It never stores metadata or TTL; callers join back to their own object map
// through ObjectID while holding whatever lock guards that map, per the
// "reference ownership" design note in the engine's top-level spec.
package rtree

import (
	"math"
	"sort"

	"github.com/google/uuid"
)

const (
	maxEntries     = 8
	minEntries     = 3 // ~40% fill factor, the R* default
	reinsertCount = 3 // p = 30% of maxEntries, reinserted farthest-first
)

// Point is a 3D coordinate. The tree is coordinate-system agnostic; the
// engine uses lon/lat/alt but the tree only ever compares floats.
type Point struct {
	X, Y, Z float64
}

// Box is an axis-aligned bounding box/rectangle in 3D.
type Box struct {
	MinX, MinY, MinZ float64
	MaxX, MaxY, MaxZ float64
}

// BoxOf returns the degenerate (zero-volume) box wrapping a single point.
func BoxOf(p Point) Box {
	return Box{p.X, p.Y, p.Z, p.X, p.Y, p.Z}
}

func (b Box) area() float64 {
	return (b.MaxX - b.MinX) * (b.MaxY - b.MinY) * (b.MaxZ - b.MinZ)
}

func (b Box) margin() float64 {
	return (b.MaxX - b.MinX) + (b.MaxY - b.MinY) + (b.MaxZ - b.MinZ)
}

func (b Box) union(o Box) Box {
	return Box{
		math.Min(b.MinX, o.MinX), math.Min(b.MinY, o.MinY), math.Min(b.MinZ, o.MinZ),
		math.Max(b.MaxX, o.MaxX), math.Max(b.MaxY, o.MaxY), math.Max(b.MaxZ, o.MaxZ),
	}
}

func (b Box) intersects(o Box) bool {
	return b.MinX <= o.MaxX && b.MaxX >= o.MinX &&
		b.MinY <= o.MaxY && b.MaxY >= o.MinY &&
		b.MinZ <= o.MaxZ && b.MaxZ >= o.MinZ
}

func (b Box) containsPoint(p Point) bool {
	return p.X >= b.MinX && p.X <= b.MaxX &&
		p.Y >= b.MinY && p.Y <= b.MaxY &&
		p.Z >= b.MinZ && p.Z <= b.MaxZ
}

func (b Box) overlap(o Box) float64 {
	dx := math.Min(b.MaxX, o.MaxX) - math.Max(b.MinX, o.MinX)
	if dx < 0 {
		return 0
	}
	dy := math.Min(b.MaxY, o.MaxY) - math.Max(b.MinY, o.MinY)
	if dy < 0 {
		return 0
	}
	dz := math.Min(b.MaxZ, o.MaxZ) - math.Max(b.MinZ, o.MinZ)
	if dz < 0 {
		return 0
	}
	return dx * dy * dz
}

// mindist2 is the minimum squared distance from p to the box's surface
// (0 if p is inside), used as the best-first search key.
func (b Box) mindist2(p Point) float64 {
	d := 0.0
	if p.X < b.MinX {
		d += (b.MinX - p.X) * (b.MinX - p.X)
	} else if p.X > b.MaxX {
		d += (p.X - b.MaxX) * (p.X - b.MaxX)
	}
	if p.Y < b.MinY {
		d += (b.MinY - p.Y) * (b.MinY - p.Y)
	} else if p.Y > b.MaxY {
		d += (p.Y - b.MaxY) * (p.Y - b.MaxY)
	}
	if p.Z < b.MinZ {
		d += (b.MinZ - p.Z) * (b.MinZ - p.Z)
	} else if p.Z > b.MaxZ {
		d += (p.Z - b.MaxZ) * (p.Z - b.MaxZ)
	}
	return d
}

func (b Box) center() Point {
	return Point{(b.MinX + b.MaxX) / 2, (b.MinY + b.MaxY) / 2, (b.MinZ + b.MaxZ) / 2}
}

func centerDist2(a, c Point) float64 {
	dx, dy, dz := a.X-c.X, a.Y-c.Y, a.Z-c.Z
	return dx*dx + dy*dy + dz*dz
}

// Entry is one tracked object's presence in the index: its own identity
// plus the object id needed to join back to the caller's object map.
type Entry struct {
	ID       uuid.UUID
	ObjectID string
	Point    Point
}

type item struct {
	mbr      Box
	child    *node // nil for a leaf item
	entry Entry
}

type node struct {
	leaf  bool
	items []item
}

func (n *node) mbr() Box {
	b := n.items[0].mbr
	for _, it := range n.items[1:] {
		b = b.union(it.mbr)
	}
	return b
}

// Tree is an R*-tree over 3D points. It is not safe for concurrent use by
// itself; the engine's Hot State namespace lock serializes all access.
type Tree struct {
	root  *node
	count int
}

// New returns an empty tree.
func New() *Tree {
	return &Tree{root: &node{leaf: true}}
}

// Len returns the number of entries currently stored.
func (t *Tree) Len() int { return t.count }

// Insert adds an entry to the tree. O(log n) expected.
func (t *Tree) Insert(e Entry) {
	it := item{mbr: BoxOf(e.Point), entry: e}
	t.insertItem(it)
	t.count++
}

func (t *Tree) insertItem(it item) {
	leaf, path := t.chooseSubtree(it.mbr)
	leaf.items = append(leaf.items, it)
	t.adjustAndSplit(leaf, path, true)
}

// chooseSubtree descends from the root to a leaf, minimizing overlap
// enlargement at the level just above the leaves (the R* refinement over
// plain area-minimization) and plain area enlargement elsewhere, tie-broken
// by resulting area.
func (t *Tree) chooseSubtree(mbr Box) (*node, []*node) {
	n := t.root
	path := []*node{n}
	for !n.leaf {
		// Use overlap-minimization only when children are leaves.
		childrenAreLeaves := n.items[0].child.leaf
		bestIdx := 0
		if childrenAreLeaves && len(n.items) > 1 {
			bestOverlap := math.Inf(1)
			bestArea := math.Inf(1)
			for i, it := range n.items {
				enlarged := it.mbr.union(mbr)
				overlapDelta := 0.0
				for j, other := range n.items {
					if j == i {
						continue
					}
					overlapDelta += enlarged.overlap(other.mbr) - it.mbr.overlap(other.mbr)
				}
				areaDelta := enlarged.area() - it.mbr.area()
				if overlapDelta < bestOverlap ||
					(overlapDelta == bestOverlap && areaDelta < bestArea) {
					bestOverlap, bestArea, bestIdx = overlapDelta, areaDelta, i
				}
			}
		} else {
			bestArea := math.Inf(1)
			bestEnlarge := math.Inf(1)
			for i, it := range n.items {
				enlarged := it.mbr.union(mbr)
				enlarge := enlarged.area() - it.mbr.area()
				if enlarge < bestEnlarge || (enlarge == bestEnlarge && enlarged.area() < bestArea) {
					bestEnlarge, bestArea, bestIdx = enlarge, enlarged.area(), i
				}
			}
		}
		n.items[bestIdx].mbr = n.items[bestIdx].mbr.union(mbr)
		n = n.items[bestIdx].child
		path = append(path, n)
	}
	return n, path
}

// adjustAndSplit walks back up path, splitting or forced-reinserting any
// node that overflowed, and keeps ancestor MBRs tight.
func (t *Tree) adjustAndSplit(leaf *node, path []*node, allowReinsert bool) {
	for i := len(path) - 1; i >= 0; i-- {
		n := path[i]
		if len(n.items) <= maxEntries {
			break
		}
		if allowReinsert && n.leaf {
			// Forced reinsertion (the R* refinement over plain splitting):
			// pull the entries farthest from the node's center back out and
			// reinsert them from the root, once per insertion. This is only
			// applied at leaf overflow, where it matters most for query
			// performance; internal-node overflow always splits.
			t.forcedReinsert(n)
			allowReinsert = false
			continue
		}
		a, b := t.split(n)
		if i == 0 {
			t.root = &node{leaf: false, items: []item{
				{mbr: a.mbr(), child: a},
				{mbr: b.mbr(), child: b},
			}}
			return
		}
		parent := path[i-1]
		for pi := range parent.items {
			if parent.items[pi].child == n {
				parent.items[pi] = item{mbr: a.mbr(), child: a}
				parent.items = append(parent.items, item{mbr: b.mbr(), child: b})
				break
			}
		}
	}
}

func (t *Tree) forcedReinsert(n *node) {
	center := n.mbr().center()
	sort.Slice(n.items, func(i, j int) bool {
		return centerDist2(n.items[i].mbr.center(), center) < centerDist2(n.items[j].mbr.center(), center)
	})
	k := reinsertCount
	if k > len(n.items) {
		k = len(n.items)
	}
	removed := append([]item(nil), n.items[len(n.items)-k:]...)
	n.items = n.items[:len(n.items)-k]
	for _, it := range removed {
		// Reinserted items may overflow a leaf again; that overflow splits
		// instead of reinserting, so reinsertion happens once per insertion.
		leaf, path := t.chooseSubtree(it.mbr)
		leaf.items = append(leaf.items, it)
		t.adjustAndSplit(leaf, path, false)
	}
}

// split partitions an overflowing node's items into two using the R*
// minimum-overlap objective: choose the split axis with the smallest sum of
// margins across all distributions, then the split index minimizing overlap
// (ties broken by area).
func (t *Tree) split(n *node) (*node, *node) {
	items := n.items
	bestAxisMargin := math.Inf(1)
	var bestAxisKey func(it item) float64

	axisKeys := []func(it item) float64{
		func(it item) float64 { return it.mbr.MinX },
		func(it item) float64 { return it.mbr.MinY },
		func(it item) float64 { return it.mbr.MinZ },
	}

	for _, key := range axisKeys {
		cp := append([]item(nil), items...)
		sort.Slice(cp, func(i, j int) bool { return key(cp[i]) < key(cp[j]) })
		margin := marginSum(cp)
		if margin < bestAxisMargin {
			bestAxisMargin = margin
			bestAxisKey = key
		}
	}

	sorted := append([]item(nil), items...)
	sort.Slice(sorted, func(i, j int) bool { return bestAxisKey(sorted[i]) < bestAxisKey(sorted[j]) })

	bestOverlap := math.Inf(1)
	bestArea := math.Inf(1)
	bestSplit := minEntries
	for k := minEntries; k <= len(sorted)-minEntries; k++ {
		left := boxUnionAll(sorted[:k])
		right := boxUnionAll(sorted[k:])
		ov := left.overlap(right)
		ar := left.area() + right.area()
		if ov < bestOverlap || (ov == bestOverlap && ar < bestArea) {
			bestOverlap, bestArea, bestSplit = ov, ar, k
		}
	}

	a := &node{leaf: n.leaf, items: append([]item(nil), sorted[:bestSplit]...)}
	b := &node{leaf: n.leaf, items: append([]item(nil), sorted[bestSplit:]...)}
	return a, b
}

func marginSum(sorted []item) float64 {
	sum := 0.0
	for k := minEntries; k <= len(sorted)-minEntries; k++ {
		left := boxUnionAll(sorted[:k])
		right := boxUnionAll(sorted[k:])
		sum += left.margin() + right.margin()
	}
	return sum
}

func boxUnionAll(items []item) Box {
	b := items[0].mbr
	for _, it := range items[1:] {
		b = b.union(it.mbr)
	}
	return b
}

// Remove deletes the entry with the given id located at point. Returns
// false if no matching entry was found. O(log n) expected.
func (t *Tree) Remove(id uuid.UUID, point Point) bool {
	leaf, idx, path := t.findLeaf(t.root, BoxOf(point), id, []*node{t.root})
	if leaf == nil {
		return false
	}
	leaf.items = append(leaf.items[:idx], leaf.items[idx+1:]...)
	t.count--
	t.condense(path)
	return true
}

func (t *Tree) findLeaf(n *node, box Box, id uuid.UUID, path []*node) (*node, int, []*node) {
	if n.leaf {
		for i, it := range n.items {
			if it.entry.ID == id {
				return n, i, path
			}
		}
		return nil, -1, nil
	}
	for _, it := range n.items {
		if !it.mbr.intersects(box) {
			continue
		}
		childPath := append(append([]*node(nil), path...), it.child)
		if leaf, idx, p := t.findLeaf(it.child, box, id, childPath); leaf != nil {
			return leaf, idx, p
		}
	}
	return nil, -1, nil
}

// condense removes now-empty nodes and reinserts entries orphaned by
// underfull nodes, then tightens ancestor MBRs, mirroring the classic
// R-tree CondenseTree procedure.
func (t *Tree) condense(path []*node) {
	var orphans []item
	for i := len(path) - 1; i > 0; i-- {
		n := path[i]
		parent := path[i-1]
		if len(n.items) < minEntries && len(n.items) > 0 {
			orphans = append(orphans, collectLeafItems(n)...)
			removeChild(parent, n)
		} else if len(n.items) == 0 {
			removeChild(parent, n)
		} else {
			updateChildMBR(parent, n)
		}
	}
	if len(t.root.items) == 1 && !t.root.leaf {
		t.root = t.root.items[0].child
	}
	for _, it := range orphans {
		t.insertItem(it)
	}
}

func collectLeafItems(n *node) []item {
	if n.leaf {
		return append([]item(nil), n.items...)
	}
	var out []item
	for _, it := range n.items {
		out = append(out, collectLeafItems(it.child)...)
	}
	return out
}

func removeChild(parent *node, child *node) {
	for i, it := range parent.items {
		if it.child == child {
			parent.items = append(parent.items[:i], parent.items[i+1:]...)
			return
		}
	}
}

func updateChildMBR(parent *node, child *node) {
	for i, it := range parent.items {
		if it.child == child {
			parent.items[i].mbr = child.mbr()
			return
		}
	}
}

// BulkLoad builds a tree from entries in one pass using sort-tile-recursive
// (STR) packing, instead of inserting one at a time: entries are tiled into
// vertical slabs by X, sorted within each slab by Y, and cut into leaves;
// the same packing is then applied to the resulting nodes, level by level,
// until a single root remains. This yields a well-packed tree (near-minimal
// overlap, high fill factor) in O(n log n), which forced-reinsertion
// one-at-a-time Insert cannot guarantee.
func BulkLoad(entries []Entry) *Tree {
	if len(entries) == 0 {
		return New()
	}
	items := make([]item, len(entries))
	for i, e := range entries {
		items[i] = item{mbr: BoxOf(e.Point), entry: e}
	}

	level := packLeaves(items)
	for len(level) > 1 {
		level = packParents(level)
	}
	return &Tree{root: level[0], count: len(entries)}
}

func packLeaves(items []item) []*node {
	groups := strPack(items, maxEntries)
	leaves := make([]*node, len(groups))
	for i, g := range groups {
		leaves[i] = &node{leaf: true, items: g}
	}
	return leaves
}

func packParents(level []*node) []*node {
	items := make([]item, len(level))
	for i, n := range level {
		items[i] = item{mbr: n.mbr(), child: n}
	}
	groups := strPack(items, maxEntries)
	parents := make([]*node, len(groups))
	for i, g := range groups {
		parents[i] = &node{leaf: false, items: g}
	}
	return parents
}

// strPack tiles items into ceil(sqrt(leafCount)) vertical slabs ordered by
// X-center, sorts each slab by Y-center, then slices every slab into groups
// of at most groupSize — the standard STR tiling step.
func strPack(items []item, groupSize int) [][]item {
	n := len(items)
	leafCount := (n + groupSize - 1) / groupSize
	if leafCount < 1 {
		leafCount = 1
	}
	slabCount := int(math.Ceil(math.Sqrt(float64(leafCount))))
	if slabCount < 1 {
		slabCount = 1
	}
	slabSize := slabCount * groupSize

	sorted := append([]item(nil), items...)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].mbr.center().X < sorted[j].mbr.center().X
	})

	var groups [][]item
	for i := 0; i < n; i += slabSize {
		end := i + slabSize
		if end > n {
			end = n
		}
		slab := sorted[i:end]
		sort.Slice(slab, func(a, b int) bool {
			return slab[a].mbr.center().Y < slab[b].mbr.center().Y
		})
		for j := 0; j < len(slab); j += groupSize {
			k := j + groupSize
			if k > len(slab) {
				k = len(slab)
			}
			groups = append(groups, append([]item(nil), slab[j:k]...))
		}
	}
	return groups
}

// QueryEnvelope returns every entry whose point lies within box (inclusive),
// using AABB descent pruning.
func (t *Tree) QueryEnvelope(box Box, limit int) []Entry {
	var out []Entry
	t.queryEnvelope(t.root, box, limit, &out)
	return out
}

func (t *Tree) queryEnvelope(n *node, box Box, limit int, out *[]Entry) {
	if limit > 0 && len(*out) >= limit {
		return
	}
	for _, it := range n.items {
		if !it.mbr.intersects(box) {
			continue
		}
		if n.leaf {
			if box.containsPoint(it.entry.Point) {
				*out = append(*out, it.entry)
				if limit > 0 && len(*out) >= limit {
					return
				}
			}
		} else {
			t.queryEnvelope(it.child, box, limit, out)
		}
	}
}

// heapCandidate is a node or leaf entry queued during best-first traversal.
type heapCandidate struct {
	dist2 float64
	n     *node  // non-nil for an internal/leaf node to expand
	entry *Entry // non-nil for a concrete entry ready to be visited
}

// candidateHeap is a hand-rolled binary min-heap keyed by dist2, operating
// directly on the concrete slice rather than through container/heap's
// boxed interface{} traffic.
type candidateHeap []heapCandidate

func (h *candidateHeap) Len() int { return len(*h) }

// VisitNearest performs a best-first traversal of entries in ascending
// MINDIST order from center (a standard R-tree nearest-neighbor search).
// visit is called for each candidate entry with its squared planar
// distance; it returns false to stop the traversal early. Hot State's KNN
// always returns true and so visits every entry.
func (t *Tree) VisitNearest(center Point, visit func(e Entry, planarDist2 float64) bool) {
	h := &candidateHeap{}
	pushNode(h, t.root, center)
	for h.Len() > 0 {
		top := popHeap(h)
		if top.entry != nil {
			if !visit(*top.entry, top.dist2) {
				return
			}
			continue
		}
		for _, it := range top.n.items {
			if top.n.leaf {
				e := it.entry
				pushHeap(h, heapCandidate{dist2: centerDist2(center, it.point()), entry: &e})
			} else {
				pushHeap(h, heapCandidate{dist2: it.mbr.mindist2(center), n: it.child})
			}
		}
	}
}

func (it item) point() Point { return it.entry.Point }

func pushNode(h *candidateHeap, n *node, center Point) {
	pushHeap(h, heapCandidate{dist2: n.mbr().mindist2(center), n: n})
}

func pushHeap(h *candidateHeap, c heapCandidate) {
	*h = append(*h, c)
	heapUp(h, len(*h)-1)
}

func popHeap(h *candidateHeap) heapCandidate {
	old := *h
	top := old[0]
	last := len(old) - 1
	old[0] = old[last]
	*h = old[:last]
	if last > 0 {
		heapDown(h, 0)
	}
	return top
}

func heapUp(h *candidateHeap, i int) {
	for i > 0 {
		parent := (i - 1) / 2
		if (*h)[parent].dist2 <= (*h)[i].dist2 {
			break
		}
		(*h)[parent], (*h)[i] = (*h)[i], (*h)[parent]
		i = parent
	}
}

func heapDown(h *candidateHeap, i int) {
	n := len(*h)
	for {
		left, right := 2*i+1, 2*i+2
		smallest := i
		if left < n && (*h)[left].dist2 < (*h)[smallest].dist2 {
			smallest = left
		}
		if right < n && (*h)[right].dist2 < (*h)[smallest].dist2 {
			smallest = right
		}
		if smallest == i {
			return
		}
		(*h)[i], (*h)[smallest] = (*h)[smallest], (*h)[i]
		i = smallest
	}
}
