package hotstate

import (
	"time"

	"github.com/google/uuid"

	"github.com/pkvartsianyi/spatio/internal/rtree"
)

// Point mirrors the engine's public Point: (x=longitude, y=latitude,
// z=altitude). Hot State keeps its own copy so this package has no
// dependency on the root package (which depends on hotstate, not the
// reverse).
type Point struct {
	X, Y, Z float64
}

func (p Point) toRtree() rtree.Point { return rtree.Point{X: p.X, Y: p.Y, Z: p.Z} }

// Location is the current-location record held per live object, per spec
// §3 CurrentLocation. Metadata is stored verbatim — the engine never
// inspects it.
type Location struct {
	Namespace string
	ObjectID  string
	Point     Point
	Metadata  []byte
	CreatedAt time.Time
	UpdatedAt time.Time
	TTL       time.Duration // zero means no expiry

	indexID uuid.UUID // the R*-tree entry identifier backing this location
}

// Expired reports whether the location's TTL has lapsed as of now, per spec
// §3 invariant 5: "expired when now > updated_at + ttl".
func (l *Location) Expired(now time.Time) bool {
	return l.TTL > 0 && now.After(l.UpdatedAt.Add(l.TTL))
}

func cloneMetadata(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
