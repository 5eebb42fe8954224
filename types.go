package spatio

import "time"

// Point is a geographic coordinate: x is longitude in degrees [-180, 180],
// y is latitude in degrees [-90, 90], z is altitude in meters (finite, may
// be negative). 2D callers pass Z: 0.
type Point struct {
	X, Y, Z float64
}

// BoundingBox2D is an axis-aligned box in (x, y), ignoring altitude.
type BoundingBox2D struct {
	MinX, MinY, MaxX, MaxY float64
}

// BoundingBox3D is an axis-aligned box in (x, y, z).
type BoundingBox3D struct {
	Min, Max Point
}

// CurrentLocation is the Hot State record for a live object, per spec §3.
type CurrentLocation struct {
	Namespace string
	ObjectID  string
	Point     Point
	Metadata  []byte
	CreatedAt time.Time
	UpdatedAt time.Time
	TTL       time.Duration
}

// TrajectoryRecord is one immutable Cold State entry, per spec §3.
type TrajectoryRecord struct {
	Namespace string
	ObjectID  string
	Point     Point
	Metadata  []byte
	Timestamp time.Time
}

// Metric selects a distance formula for the public Distance helper.
type Metric int

const (
	// MetricHaversine is great-circle distance on a mean-radius sphere,
	// ignoring altitude.
	MetricHaversine Metric = iota
	// MetricHaversine3D adds altitude difference to MetricHaversine.
	MetricHaversine3D
	// MetricPlanar treats (x, y) as a flat Euclidean plane.
	MetricPlanar
	// MetricRhumb is the constant-bearing (loxodromic) distance.
	MetricRhumb
	// MetricGeodesic is the WGS-84 ellipsoidal distance (Vincenty).
	MetricGeodesic
)

// PointHit is a distance-ordered query result: radius, sphere, and KNN
// queries, per spec §4.1's query contract table.
type PointHit struct {
	ObjectID string
	Point    Point
	Metadata []byte
	Distance float64
}

// AreaHit is an unordered-but-stable query result: bbox and polygon.
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

// EngineStats is a point-in-time snapshot returned by Engine.Stats,
// assembled under each namespace's read lock plus the Cold State mutex.
type EngineStats struct {
	Namespaces      int
	ObjectCount     int
	IndexEntries    int
	BufferedRecords int
	LogBytes        int64
	LastFlush       time.Time
}
