package spatio

import (
	"fmt"
	"time"

	"github.com/pkvartsianyi/spatio/internal/coldstate"
)

// InsertTrajectory appends a batch of historical points to (ns, id)'s Cold
// State trajectory without touching Hot State, per the SUPPLEMENTED
// FEATURES note: this is backfill of history, distinct from Upsert, which
// both updates Hot State and appends one record. Every point is validated
// before any of them are buffered — the whole batch fails together on the
// first invalid point, per spec §4.2-adjacent batch semantics.
func (e *Engine) InsertTrajectory(ns, id string, points []Point, metadata []byte, timestamps []time.Time) error {
	const op = "InsertTrajectory"
	if err := validateID(op, "namespace", ns); err != nil {
		return err
	}
	if err := validateID(op, "object id", id); err != nil {
		return err
	}
	if len(timestamps) != len(points) {
		return invalidArgument(op, "timestamps must have the same length as points: %d != %d", len(timestamps), len(points))
	}
	for i, p := range points {
		if err := validatePoint(op, p); err != nil {
			return fmt.Errorf("point %d: %w", i, err)
		}
	}

	records := make([]coldstate.Record, len(points))
	for i, p := range points {
		records[i] = coldstate.Record{
			Namespace: ns,
			ObjectID:  id,
			X:         p.X, Y: p.Y, Z: p.Z,
			Metadata:  metadata,
			Timestamp: timestamps[i].UnixNano(),
		}
	}

	for _, r := range records {
		if err := e.cold.Append(r); err != nil {
			return newError(IoError, op, fmt.Errorf("buffer trajectory record: %w", err))
		}
	}
	return nil
}

// QueryTrajectory returns records for (ns, id) with timestamp in
// [start, end], ascending by timestamp, scanning the write buffer first and
// then the on-disk log, per spec §4.2.
func (e *Engine) QueryTrajectory(ns, id string, start, end time.Time, limit int) ([]TrajectoryRecord, error) {
	const op = "QueryTrajectory"
	if err := validateLimit(op, limit); err != nil {
		return nil, err
	}
	if end.Before(start) {
		return nil, invalidArgument(op, "end must not be before start")
	}

	records, err := e.cold.QueryTrajectory(ns, id, start.UnixNano(), end.UnixNano(), limit)
	if err != nil {
		return nil, newError(IoError, op, err)
	}

	out := make([]TrajectoryRecord, len(records))
	for i, r := range records {
		out[i] = TrajectoryRecord{
			Namespace: r.Namespace,
			ObjectID:  r.ObjectID,
			Point:     Point{X: r.X, Y: r.Y, Z: r.Z},
			Metadata:  r.Metadata,
			Timestamp: time.Unix(0, r.Timestamp),
		}
	}
	return out, nil
}
