// Package hotstate is the authoritative current-location map plus the
// per-namespace spatial index — the engine's Hot State, per spec §4.1.
//
// Each namespace owns a single sync.RWMutex guarding both its object map and
// its R*-tree together, so the two are always observed mutually consistent
// (spec §5): a reader never sees an index entry whose object record is
// missing, or vice versa.
package hotstate

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pkvartsianyi/spatio/internal/rtree"
)

// Store is the registry of per-namespace Hot State instances.
type Store struct {
	mu         sync.RWMutex
	namespaces map[string]*Namespace
}

// New returns an empty Hot State store.
func New() *Store {
	return &Store{namespaces: make(map[string]*Namespace)}
}

// namespace returns the namespace's Hot State, creating it on first use.
func (s *Store) namespace(ns string) *Namespace {
	s.mu.RLock()
	n, ok := s.namespaces[ns]
	s.mu.RUnlock()
	if ok {
		return n
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if n, ok := s.namespaces[ns]; ok {
		return n
	}
	n = &Namespace{
		objects: make(map[string]*Location),
		index:   rtree.New(),
	}
	s.namespaces[ns] = n
	return n
}

// lookupNamespace returns the namespace's Hot State without creating it.
func (s *Store) lookupNamespace(ns string) (*Namespace, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.namespaces[ns]
	return n, ok
}

// Namespaces returns the set of namespaces that have ever held an object,
// in no particular order.
func (s *Store) Namespaces() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.namespaces))
	for ns := range s.namespaces {
		out = append(out, ns)
	}
	return out
}

// Namespace is one namespace's Hot State: the object map and its R*-tree,
// both guarded by mu.
type Namespace struct {
	mu      sync.RWMutex
	objects map[string]*Location
	index   *rtree.Tree
}

// Upsert inserts or replaces the location for id. On replace, created_at is
// preserved and updated_at/ttl are refreshed, per spec §4.1. now is supplied
// by the caller so the engine's clock seam stays in one place.
func (s *Store) Upsert(ns, id string, p Point, metadata []byte, ttl time.Duration, now time.Time) Location {
	n := s.namespace(ns)
	n.mu.Lock()
	defer n.mu.Unlock()

	entryID := uuid.New()
	createdAt := now
	if existing, ok := n.objects[id]; ok {
		createdAt = existing.CreatedAt
		n.index.Remove(existing.indexID, existing.Point.toRtree())
	}

	loc := &Location{
		Namespace: ns,
		ObjectID:  id,
		Point:     p,
		Metadata:  cloneMetadata(metadata),
		CreatedAt: createdAt,
		UpdatedAt: now,
		TTL:       ttl,
		indexID:   entryID,
	}
	n.objects[id] = loc
	n.index.Insert(rtree.Entry{ID: entryID, ObjectID: id, Point: p.toRtree()})

	out := *loc
	return out
}

// Get returns the current location for id, or false if absent or expired.
func (s *Store) Get(ns, id string, now time.Time) (Location, bool) {
	n, ok := s.lookupNamespace(ns)
	if !ok {
		return Location{}, false
	}
	n.mu.RLock()
	defer n.mu.RUnlock()
	loc, ok := n.objects[id]
	if !ok || loc.Expired(now) {
		return Location{}, false
	}
	return *loc, true
}

// Delete removes id from the map and the index, returning whether it was
// present (expired entries still count as present, per spec: delete does
// not consult TTL — it simply removes what is there).
func (s *Store) Delete(ns, id string) bool {
	n, ok := s.lookupNamespace(ns)
	if !ok {
		return false
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	loc, ok := n.objects[id]
	if !ok {
		return false
	}
	n.index.Remove(loc.indexID, loc.Point.toRtree())
	delete(n.objects, id)
	return true
}

// CountExpired returns the number of expired-but-not-yet-removed entries in
// the namespace.
func (s *Store) CountExpired(ns string, now time.Time) int {
	n, ok := s.lookupNamespace(ns)
	if !ok {
		return 0
	}
	n.mu.RLock()
	defer n.mu.RUnlock()
	count := 0
	for _, loc := range n.objects {
		if loc.Expired(now) {
			count++
		}
	}
	return count
}

// CleanupExpired removes every expired entry from the namespace's map and
// index, returning how many were removed. Idempotent: a second call with no
// intervening upsert finds nothing left to remove.
func (s *Store) CleanupExpired(ns string, now time.Time) int {
	n, ok := s.lookupNamespace(ns)
	if !ok {
		return 0
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	var stale []string
	for id, loc := range n.objects {
		if loc.Expired(now) {
			stale = append(stale, id)
		}
	}
	for _, id := range stale {
		loc := n.objects[id]
		n.index.Remove(loc.indexID, loc.Point.toRtree())
		delete(n.objects, id)
	}
	return len(stale)
}

// NamespaceStats is a point-in-time snapshot of one namespace, assembled
// under its read lock.
type NamespaceStats struct {
	ObjectCount int
	IndexSize   int
}

// Stats returns a snapshot per namespace, mirroring how the teacher's
// Store.Keys() takes a consistent read-locked snapshot of its map.
func (s *Store) Stats() map[string]NamespaceStats {
	s.mu.RLock()
	names := make([]string, 0, len(s.namespaces))
	nss := make([]*Namespace, 0, len(s.namespaces))
	for name, n := range s.namespaces {
		names = append(names, name)
		nss = append(nss, n)
	}
	s.mu.RUnlock()

	out := make(map[string]NamespaceStats, len(names))
	for i, n := range nss {
		n.mu.RLock()
		out[names[i]] = NamespaceStats{ObjectCount: len(n.objects), IndexSize: n.index.Len()}
		n.mu.RUnlock()
	}
	return out
}

// Recover replaces a namespace's entire Hot State with the given set of
// locations, bulk-loading the index via rtree.BulkLoad rather than inserting
// one at a time, per spec §4.4 ("MAY bulk-load the tree from the final set
// of points").
func (s *Store) Recover(ns string, locations []Location) {
	n := s.namespace(ns)
	n.mu.Lock()
	defer n.mu.Unlock()

	n.objects = make(map[string]*Location, len(locations))
	entries := make([]rtree.Entry, len(locations))
	for i := range locations {
		loc := locations[i]
		loc.indexID = uuid.New()
		n.objects[loc.ObjectID] = &loc
		entries[i] = rtree.Entry{ID: loc.indexID, ObjectID: loc.ObjectID, Point: loc.Point.toRtree()}
	}
	n.index = rtree.BulkLoad(entries)
}
