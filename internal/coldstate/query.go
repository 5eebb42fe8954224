package coldstate

import "sort"

// QueryTrajectory returns records for (ns, id) with timestamp in
// [start, end] (nanoseconds since epoch), ascending by timestamp, per spec
// §4.2: "scan the write buffer first ... then the log file on disk."
func (l *Log) QueryTrajectory(ns, id string, start, end int64, limit int) ([]Record, error) {
	if limit == 0 {
		return nil, nil
	}

	var out []Record

	for _, r := range l.BufferedSnapshot() {
		if matches(r, ns, id, start, end) {
			out = append(out, r)
		}
	}
	logRecords, err := l.ReadAll()
	if err != nil {
		return nil, err
	}
	for _, r := range logRecords {
		if matches(r, ns, id, start, end) {
			out = append(out, r)
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func matches(r Record, ns, id string, start, end int64) bool {
	return r.Namespace == ns && r.ObjectID == id && r.Timestamp >= start && r.Timestamp <= end
}
