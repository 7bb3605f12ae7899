package orchestrator

import (
	"sort"

	"github.com/maastricht-university/audioscore/metrics"
)

// Summary averages each metric over the records that scored it. Metrics no
// record scored are left out.
func Summary(records []ScoreRecord, dp int) map[string]metrics.Value {
	byMetric := map[string][]metrics.Value{}
	for _, r := range records {
		for id, v := range r.Scores {
			byMetric[id] = append(byMetric[id], v)
		}
	}
	out := make(map[string]metrics.Value, len(byMetric))
	for id, vals := range byMetric {
		m, ok := metrics.Mean(vals)
		if !ok {
			continue
		}
		if dp >= 0 {
			m = m.Round(dp)
		}
		out[id] = m
	}
	return out
}

// Columns lists the flattened column names of records, metric by metric in
// the given order, axes sorted within a metric.
func Columns(records []ScoreRecord, metricIDs []string) []string {
	var cols []string
	for _, id := range metricIDs {
		seen := map[string]bool{}
		for _, r := range records {
			v, ok := r.Scores[id]
			if !ok {
				continue
			}
			for name := range v.Flatten(id) {
				seen[name] = true
			}
		}
		names := make([]string, 0, len(seen))
		for n := range seen {
			names = append(names, n)
		}
		sort.Strings(names)
		cols = append(cols, names...)
	}
	return cols
}

// Flatten returns the record's scores keyed by column name.
func (r ScoreRecord) Flatten() map[string]float64 {
	out := map[string]float64{}
	for id, v := range r.Scores {
		for k, f := range v.Flatten(id) {
			out[k] = f
		}
	}
	return out
}
