package clients

import (
	"context"
	"strings"

	"github.com/maastricht-university/audioscore/metrics"
)

// --- Speech score (/score/{metric}) ---

func (h *HTTP) SpeechScore(ctx context.Context, url, metric string, items []metrics.Item) ([]metrics.Value, error) {
	name := "speechscore " + metric
	var out ScoreResp
	if err := h.post(ctx, name, url+"/score/"+strings.ToLower(metric), newScoreReq(metric, "", items), &out); err != nil {
		return nil, err
	}
	return out.values(name, len(items), identity)
}

type speechBackend struct {
	h      *HTTP
	url    string
	metric string
}

func (b *speechBackend) Score(ctx context.Context, items []metrics.Item) ([]metrics.Value, error) {
	return b.h.SpeechScore(ctx, b.url, b.metric, items)
}

// SpeechLoaders returns a per-metric loader factory for the speech-score
// service at url, in the shape metrics.RegisterBuiltins expects.
func SpeechLoaders(h *HTTP, url string) func(id string) metrics.Loader {
	return func(id string) metrics.Loader {
		return func(ctx context.Context, _ string) (metrics.Backend, error) {
			if err := h.LoadModel(ctx, url, id, ""); err != nil {
				return nil, err
			}
			return &speechBackend{h: h, url: url, metric: id}, nil
		}
	}
}
