package spatio

import "github.com/pkvartsianyi/spatio/internal/geo"

// Distance computes the distance between a and b using the requested
// metric, per spec §4.1's "additional metrics ... exposed for explicit
// distance calls" note. Index traversal never calls this directly — it
// always uses the spherical haversine model internally for consistency.
func Distance(a, b Point, metric Metric) float64 {
	switch metric {
	case MetricHaversine3D:
		return geo.Haversine3D(a.X, a.Y, a.Z, b.X, b.Y, b.Z)
	case MetricPlanar:
		return geo.Planar(a.X, a.Y, b.X, b.Y)
	case MetricRhumb:
		return geo.Rhumb(a.X, a.Y, b.X, b.Y)
	case MetricGeodesic:
		return geo.Geodesic(a.X, a.Y, b.X, b.Y)
	default:
		return geo.Haversine(a.X, a.Y, b.X, b.Y)
	}
}
