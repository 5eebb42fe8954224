package spatio

import (
	"errors"

	"github.com/pkvartsianyi/spatio/internal/hotstate"
)

func toHotPoint(p Point) hotstate.Point { return hotstate.Point{X: p.X, Y: p.Y, Z: p.Z} }

func fromPointHits(hits []hotstate.PointHit) []PointHit {
	out := make([]PointHit, len(hits))
	for i, h := range hits {
		out[i] = PointHit{ObjectID: h.ObjectID, Point: Point{X: h.Point.X, Y: h.Point.Y, Z: h.Point.Z}, Metadata: h.Metadata, Distance: h.Distance}
	}
	return out
}

func fromAreaHits(hits []hotstate.AreaHit) []AreaHit {
	out := make([]AreaHit, len(hits))
	for i, h := range hits {
		out[i] = AreaHit{ObjectID: h.ObjectID, Point: Point{X: h.Point.X, Y: h.Point.Y, Z: h.Point.Z}, Metadata: h.Metadata}
	}
	return out
}

func fromCylinderHits(hits []hotstate.CylinderHit) []CylinderHit {
	out := make([]CylinderHit, len(hits))
	for i, h := range hits {
		out[i] = CylinderHit{ObjectID: h.ObjectID, Point: Point{X: h.Point.X, Y: h.Point.Y, Z: h.Point.Z}, Metadata: h.Metadata, HorizontalDistance: h.HorizontalDistance}
	}
	return out
}

func hotMetric(horizontal bool) hotstate.DistanceMetric {
	if horizontal {
		return hotstate.Horizontal
	}
	return hotstate.ThreeD
}

func wrapAnchorErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, hotstate.ErrAnchorNotFound) {
		return newError(ObjectNotFound, op, err)
	}
	return newError(IoError, op, err)
}

// QueryRadius returns entries within radiusMeters of center, ascending by
// horizontal (haversine) distance.
func (e *Engine) QueryRadius(ns string, center Point, radiusMeters float64, limit int) ([]PointHit, error) {
	const op = "QueryRadius"
	if err := validatePoint(op, center); err != nil {
		return nil, err
	}
	if err := validateRadius(op, radiusMeters); err != nil {
		return nil, err
	}
	if err := validateLimit(op, limit); err != nil {
		return nil, err
	}
	hits := e.hot.QueryRadius(ns, toHotPoint(center), radiusMeters, limit, e.now())
	return fromPointHits(hits), nil
}

// QuerySphere3D returns entries within radiusMeters of center using 3D
// (haversine + altitude) distance, ascending by distance.
func (e *Engine) QuerySphere3D(ns string, center Point, radiusMeters float64, limit int) ([]PointHit, error) {
	const op = "QuerySphere3D"
	if err := validatePoint(op, center); err != nil {
		return nil, err
	}
	if err := validateRadius(op, radiusMeters); err != nil {
		return nil, err
	}
	if err := validateLimit(op, limit); err != nil {
		return nil, err
	}
	hits := e.hot.QuerySphere3D(ns, toHotPoint(center), radiusMeters, limit, e.now())
	return fromPointHits(hits), nil
}

// QueryBBox2D returns entries whose (x, y) falls within box, ignoring
// altitude.
func (e *Engine) QueryBBox2D(ns string, box BoundingBox2D, limit int) ([]AreaHit, error) {
	const op = "QueryBBox2D"
	if err := validateBBox2D(op, box); err != nil {
		return nil, err
	}
	if err := validateLimit(op, limit); err != nil {
		return nil, err
	}
	hits := e.hot.QueryBBox2D(ns, box.MinX, box.MinY, box.MaxX, box.MaxY, limit, e.now())
	return fromAreaHits(hits), nil
}

// QueryBBox3D returns entries within the 3D axis-aligned box (inclusive).
func (e *Engine) QueryBBox3D(ns string, box BoundingBox3D, limit int) ([]AreaHit, error) {
	const op = "QueryBBox3D"
	if err := validateBBox3D(op, box); err != nil {
		return nil, err
	}
	if err := validateLimit(op, limit); err != nil {
		return nil, err
	}
	hits := e.hot.QueryBBox3D(ns, toHotPoint(box.Min), toHotPoint(box.Max), limit, e.now())
	return fromAreaHits(hits), nil
}

// QueryWithinCylinder returns entries within horizontalRadius of center and
// altitude in [minZ, maxZ], ascending by horizontal distance.
func (e *Engine) QueryWithinCylinder(ns string, center Point, minZ, maxZ, horizontalRadius float64, limit int) ([]CylinderHit, error) {
	const op = "QueryWithinCylinder"
	if err := validatePoint(op, center); err != nil {
		return nil, err
	}
	if minZ > maxZ {
		return nil, invalidArgument(op, "min_z must not exceed max_z")
	}
	if err := validateRadius(op, horizontalRadius); err != nil {
		return nil, err
	}
	if err := validateLimit(op, limit); err != nil {
		return nil, err
	}
	hits := e.hot.QueryWithinCylinder(ns, toHotPoint(center), minZ, maxZ, horizontalRadius, limit, e.now())
	return fromCylinderHits(hits), nil
}

// QueryWithinPolygon returns entries whose (x, y) lies inside polygon.
func (e *Engine) QueryWithinPolygon(ns string, polygon []Point, limit int) ([]AreaHit, error) {
	const op = "QueryWithinPolygon"
	if err := validatePolygon(op, polygon); err != nil {
		return nil, err
	}
	if err := validateLimit(op, limit); err != nil {
		return nil, err
	}
	pts := make([]hotstate.Point, len(polygon))
	for i, p := range polygon {
		pts[i] = toHotPoint(p)
	}
	hits := e.hot.QueryWithinPolygon(ns, pts, limit, e.now())
	return fromAreaHits(hits), nil
}

// KNN returns the k entries nearest to center using horizontal (haversine)
// distance, ascending.
func (e *Engine) KNN(ns string, center Point, k int) ([]PointHit, error) {
	return e.knn(ns, center, k, true)
}

// KNN3D returns the k entries nearest to center using 3D (haversine +
// altitude) distance, ascending.
func (e *Engine) KNN3D(ns string, center Point, k int) ([]PointHit, error) {
	return e.knn(ns, center, k, false)
}

func (e *Engine) knn(ns string, center Point, k int, horizontal bool) ([]PointHit, error) {
	const op = "KNN"
	if err := validatePoint(op, center); err != nil {
		return nil, err
	}
	if err := validateK(op, k); err != nil {
		return nil, err
	}
	hits := e.hot.KNN(ns, toHotPoint(center), k, hotMetric(horizontal), e.now())
	return fromPointHits(hits), nil
}

// QueryNear resolves anchorID's current location and returns entries
// within radiusMeters of it, excluding the anchor itself. Fails with
// ObjectNotFound if the anchor is absent or expired.
func (e *Engine) QueryNear(ns, anchorID string, radiusMeters float64, limit int) ([]PointHit, error) {
	const op = "QueryNear"
	if err := validateRadius(op, radiusMeters); err != nil {
		return nil, err
	}
	if err := validateLimit(op, limit); err != nil {
		return nil, err
	}
	hits, err := e.hot.QueryNear(ns, anchorID, radiusMeters, limit, e.now())
	if err != nil {
		return nil, wrapAnchorErr(op, err)
	}
	return fromPointHits(hits), nil
}

// QueryBBoxNear resolves anchorID's current location and returns entries
// within a box of the given full width/height/depth centered on it.
func (e *Engine) QueryBBoxNear(ns, anchorID string, width, height, depth float64, limit int) ([]AreaHit, error) {
	const op = "QueryBBoxNear"
	if width < 0 || height < 0 || depth < 0 {
		return nil, invalidArgument(op, "width/height/depth must be non-negative")
	}
	if err := validateLimit(op, limit); err != nil {
		return nil, err
	}
	hits, err := e.hot.QueryBBoxNear(ns, anchorID, width, height, depth, limit, e.now())
	if err != nil {
		return nil, wrapAnchorErr(op, err)
	}
	return fromAreaHits(hits), nil
}

// QueryCylinderNear resolves anchorID's current location and returns
// entries within horizontalRadius and [minZ, maxZ] of it.
func (e *Engine) QueryCylinderNear(ns, anchorID string, minZ, maxZ, horizontalRadius float64, limit int) ([]CylinderHit, error) {
	const op = "QueryCylinderNear"
	if minZ > maxZ {
		return nil, invalidArgument(op, "min_z must not exceed max_z")
	}
	if err := validateRadius(op, horizontalRadius); err != nil {
		return nil, err
	}
	if err := validateLimit(op, limit); err != nil {
		return nil, err
	}
	hits, err := e.hot.QueryCylinderNear(ns, anchorID, minZ, maxZ, horizontalRadius, limit, e.now())
	if err != nil {
		return nil, wrapAnchorErr(op, err)
	}
	return fromCylinderHits(hits), nil
}

// KNNNear resolves anchorID's current location and returns the k entries
// nearest to it, excluding the anchor itself.
func (e *Engine) KNNNear(ns, anchorID string, k int) ([]PointHit, error) {
	const op = "KNNNear"
	if err := validateK(op, k); err != nil {
		return nil, err
	}
	hits, err := e.hot.KNNNear(ns, anchorID, k, hotstate.Horizontal, e.now())
	if err != nil {
		return nil, wrapAnchorErr(op, err)
	}
	return fromPointHits(hits), nil
}
