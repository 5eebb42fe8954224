package spatio

import (
	"fmt"
	"time"

	"github.com/pkvartsianyi/spatio/internal/coldstate"
	"github.com/pkvartsianyi/spatio/internal/hotstate"
)

// Upsert inserts or replaces the current location of (ns, id), per spec
// §4.1. If ttl is zero, the engine's default_ttl (if configured) applies.
// After the in-memory mutation succeeds, one TrajectoryRecord is buffered
// to Cold State; a failure to buffer is surfaced as a write error with the
// in-memory mutation left in place (documented choice, see DESIGN.md).
func (e *Engine) Upsert(ns, id string, p Point, metadata []byte, ttl time.Duration) (CurrentLocation, error) {
	const op = "Upsert"
	if err := validateID(op, "namespace", ns); err != nil {
		return CurrentLocation{}, err
	}
	if err := validateID(op, "object id", id); err != nil {
		return CurrentLocation{}, err
	}
	if err := validatePoint(op, p); err != nil {
		return CurrentLocation{}, err
	}

	if ttl == 0 {
		ttl = e.cfg.defaultTTL
	}
	now := e.now()

	loc := e.hot.Upsert(ns, id, hotstate.Point{X: p.X, Y: p.Y, Z: p.Z}, metadata, ttl, now)

	record := coldstate.Record{
		Namespace: ns,
		ObjectID:  id,
		X:         p.X, Y: p.Y, Z: p.Z,
		Metadata:  metadata,
		Timestamp: now.UnixNano(),
	}
	if err := e.cold.Append(record); err != nil {
		return CurrentLocation{}, newError(IoError, op, fmt.Errorf("buffer trajectory record: %w", err))
	}

	return toCurrentLocation(loc), nil
}

// Get returns the current location for (ns, id), or ok=false if absent or
// expired.
func (e *Engine) Get(ns, id string) (CurrentLocation, bool) {
	loc, ok := e.hot.Get(ns, id, e.now())
	if !ok {
		return CurrentLocation{}, false
	}
	return toCurrentLocation(loc), true
}

// Delete removes (ns, id) from the object map and spatial index, returning
// whether it was present. The trajectory log is not rewritten, per spec §3
// invariant 6.
func (e *Engine) Delete(ns, id string) bool {
	return e.hot.Delete(ns, id)
}

func toCurrentLocation(loc hotstate.Location) CurrentLocation {
	return CurrentLocation{
		Namespace: loc.Namespace,
		ObjectID:  loc.ObjectID,
		Point:     Point{X: loc.Point.X, Y: loc.Point.Y, Z: loc.Point.Z},
		Metadata:  loc.Metadata,
		CreatedAt: loc.CreatedAt,
		UpdatedAt: loc.UpdatedAt,
		TTL:       loc.TTL,
	}
}
