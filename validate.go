package spatio

import "math"

// validatePoint enforces spec §3 invariant 3: x in [-180, 180], y in
// [-90, 90], z finite.
func validatePoint(op string, p Point) error {
	if math.IsNaN(p.X) || math.IsInf(p.X, 0) || p.X < -180 || p.X > 180 {
		return invalidArgument(op, "x out of range [-180, 180]: %v", p.X)
	}
	if math.IsNaN(p.Y) || math.IsInf(p.Y, 0) || p.Y < -90 || p.Y > 90 {
		return invalidArgument(op, "y out of range [-90, 90]: %v", p.Y)
	}
	if math.IsNaN(p.Z) || math.IsInf(p.Z, 0) {
		return invalidArgument(op, "z must be finite: %v", p.Z)
	}
	return nil
}

func validateID(op, field, id string) error {
	if id == "" {
		return invalidArgument(op, "%s must not be empty", field)
	}
	return nil
}

func validateRadius(op string, radius float64) error {
	if math.IsNaN(radius) || math.IsInf(radius, 0) || radius < 0 {
		return invalidArgument(op, "radius must be a non-negative finite number: %v", radius)
	}
	return nil
}

func validateLimit(op string, limit int) error {
	if limit < 0 {
		return invalidArgument(op, "limit must be >= 0: %d", limit)
	}
	return nil
}

func validateK(op string, k int) error {
	if k <= 0 {
		return invalidArgument(op, "k must be > 0: %d", k)
	}
	return nil
}

func validateBBox2D(op string, box BoundingBox2D) error {
	if box.MinX > box.MaxX || box.MinY > box.MaxY {
		return invalidArgument(op, "bounding box min must not exceed max")
	}
	if err := validatePoint(op, Point{X: box.MinX, Y: box.MinY}); err != nil {
		return err
	}
	return validatePoint(op, Point{X: box.MaxX, Y: box.MaxY})
}

func validateBBox3D(op string, box BoundingBox3D) error {
	if box.Min.X > box.Max.X || box.Min.Y > box.Max.Y || box.Min.Z > box.Max.Z {
		return invalidArgument(op, "bounding box min must not exceed max")
	}
	if err := validatePoint(op, box.Min); err != nil {
		return err
	}
	return validatePoint(op, box.Max)
}

func validatePolygon(op string, polygon []Point) error {
	if len(polygon) < 3 {
		return invalidArgument(op, "polygon must have at least 3 vertices: %d", len(polygon))
	}
	for _, p := range polygon {
		if err := validatePoint(op, p); err != nil {
			return err
		}
	}
	return nil
}
