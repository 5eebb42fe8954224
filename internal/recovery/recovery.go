// Package recovery rebuilds Hot State from the Cold State trajectory log on
// open, per spec §4.4: scan the log from the beginning, keep the last
// record per (namespace, object_id), bulk-load the result into the
// spatial index rather than inserting one point at a time.
package recovery

import (
	"time"

	"github.com/pkvartsianyi/spatio/internal/coldstate"
	"github.com/pkvartsianyi/spatio/internal/hotstate"
)

// Run replays every well-framed record in log and bulk-loads the resulting
// per-object latest-position set into store. It must be called before any
// other access to store — the caller is responsible for the "single
// threaded, no concurrent R*-tree construction" requirement of spec §4.4.
func Run(log *coldstate.Log, store *hotstate.Store) error {
	records, err := log.ReadAll()
	if err != nil {
		return err
	}

	// Later records overwrite earlier ones for the same (ns, id): a plain
	// map walk in file order gives last-write-wins for free.
	type key struct{ ns, id string }
	latest := make(map[key]coldstate.Record, len(records))
	order := make([]key, 0, len(records))
	for _, r := range records {
		k := key{r.Namespace, r.ObjectID}
		if _, seen := latest[k]; !seen {
			order = append(order, k)
		}
		latest[k] = r
	}

	byNamespace := make(map[string][]hotstate.Location)
	for _, k := range order {
		r := latest[k]
		byNamespace[k.ns] = append(byNamespace[k.ns], hotstate.Location{
			Namespace: r.Namespace,
			ObjectID:  r.ObjectID,
			Point:     hotstate.Point{X: r.X, Y: r.Y, Z: r.Z},
			Metadata:  r.Metadata,
			CreatedAt: time.Unix(0, r.Timestamp),
			UpdatedAt: time.Unix(0, r.Timestamp),
		})
	}

	for ns, locations := range byNamespace {
		store.Recover(ns, locations)
	}
	return nil
}
