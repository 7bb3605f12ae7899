package clients

import (
	"fmt"

	"github.com/maastricht-university/audioscore/metrics"
)

// --- wire types shared by the model services ---

type ScoreItem struct {
	ID        string    `json:"id" msgpack:"id"`
	Samples   []float32 `json:"samples" msgpack:"samples"`
	Reference []float32 `json:"reference,omitempty" msgpack:"reference,omitempty"`
}

type ScoreReq struct {
	Checkpoint string      `json:"checkpoint,omitempty" msgpack:"checkpoint,omitempty"`
	Metric     string      `json:"metric,omitempty" msgpack:"metric,omitempty"`
	SampleRate int         `json:"sample_rate" msgpack:"sample_rate"`
	Items      []ScoreItem `json:"items" msgpack:"items"`
}

type ScoreResult struct {
	Value *float64           `json:"value,omitempty" msgpack:"value,omitempty"`
	Axes  map[string]float64 `json:"axes,omitempty" msgpack:"axes,omitempty"`
	Error string             `json:"error,omitempty" msgpack:"error,omitempty"`
}

type ScoreResp struct {
	Scores []ScoreResult `json:"scores" msgpack:"scores"`
}

type LoadReq struct {
	Checkpoint string `json:"checkpoint,omitempty" msgpack:"checkpoint,omitempty"`
	Metric     string `json:"metric,omitempty" msgpack:"metric,omitempty"`
}

func newScoreReq(metric, checkpoint string, items []metrics.Item) ScoreReq {
	req := ScoreReq{Checkpoint: checkpoint, Metric: metric, Items: make([]ScoreItem, len(items))}
	for i, it := range items {
		req.Items[i] = ScoreItem{ID: it.ID, Samples: it.Audio.Float32()}
		if it.Reference != nil {
			req.Items[i].Reference = it.Reference.Float32()
		}
	}
	if len(items) > 0 {
		req.SampleRate = items[0].Audio.SampleRate
	}
	return req
}

// values converts a response to one Value per item. Any per-item error
// fails the whole batch; the caller decides how to isolate it.
func (r *ScoreResp) values(name string, n int, axis func(string) string) ([]metrics.Value, error) {
	if len(r.Scores) != n {
		return nil, fmt.Errorf("%s: got %d scores for %d items", name, len(r.Scores), n)
	}
	out := make([]metrics.Value, n)
	for i, s := range r.Scores {
		switch {
		case s.Error != "":
			return nil, fmt.Errorf("%s: item %d: %s", name, i, s.Error)
		case len(s.Axes) > 0:
			axes := make(map[string]float64, len(s.Axes))
			for k, v := range s.Axes {
				axes[axis(k)] = v
			}
			out[i] = metrics.Vector(axes)
		case s.Value != nil:
			out[i] = metrics.Scalar(*s.Value)
		default:
			return nil, fmt.Errorf("%s: item %d: empty score", name, i)
		}
	}
	return out, nil
}

func identity(s string) string { return s }
