package orchestrator

import (
	"github.com/maastricht-university/audioscore/metrics"
)

// MetricResult pairs a metric's plan with the engine outcomes for it.
type MetricResult struct {
	Plan     *Plan
	Outcomes []Outcome
	// Err, when set, failed the whole metric (for instance its backend
	// could not be loaded). Every request gets a marker built from it.
	Err *RequestError
}

// Aggregate merges per-metric results into one record per request, in
// request order. Windowed scores are averaged per request; a request is
// marked only if none of its windows scored. Values are rounded to dp
// decimal places unless dp is negative.
func Aggregate(requests []*Request, results []MetricResult, dp int) []ScoreRecord {
	records := make([]ScoreRecord, len(requests))
	for i, req := range requests {
		records[i] = ScoreRecord{Index: req.Index, ID: req.ID, Scores: map[string]metrics.Value{}}
	}
	for _, res := range results {
		id := res.Plan.Metric.ID
		bySlot := map[int][]int{}
		for si, s := range res.Plan.Slots {
			bySlot[s.Request] = append(bySlot[s.Request], si)
		}
		for i, req := range requests {
			if res.Err != nil {
				e := *res.Err
				e.ID = req.ID
				records[i].mark(id, &e)
				continue
			}
			if f, ok := res.Plan.Failures[req.Index]; ok {
				records[i].mark(id, f)
				continue
			}
			v, err := merge(req, id, bySlot[req.Index], res.Outcomes)
			if err != nil {
				records[i].mark(id, err)
				continue
			}
			if dp >= 0 {
				v = v.Round(dp)
			}
			records[i].Scores[id] = v
		}
	}
	return records
}

func merge(req *Request, metric string, slots []int, outcomes []Outcome) (metrics.Value, *RequestError) {
	var (
		vals  []metrics.Value
		first *RequestError
	)
	for _, si := range slots {
		o := outcomes[si]
		if o.Err != nil {
			if first == nil {
				first = o.Err
			}
			continue
		}
		vals = append(vals, o.Value)
	}
	if len(vals) == 0 {
		if first != nil {
			return metrics.Value{}, first
		}
		return metrics.Value{}, &RequestError{ID: req.ID, Metric: metric, Reason: "no result produced", Err: ErrScoring}
	}
	v, ok := metrics.Mean(vals)
	if !ok {
		return metrics.Value{}, &RequestError{ID: req.ID, Metric: metric, Reason: "inconsistent result shapes across windows", Err: ErrScoring}
	}
	return v, nil
}

func (r *ScoreRecord) mark(metric string, err *RequestError) {
	if r.Errors == nil {
		r.Errors = map[string]*RequestError{}
	}
	r.Errors[metric] = err
}
