package clients

import (
	"context"
	"strings"

	"github.com/maastricht-university/audioscore/metrics"
)

// --- Aesthetics (/load, /predict) ---

// aestheticAxis maps the service's short axis codes to report names.
var aestheticAxis = map[string]string{
	"CE": metrics.ContentEnjoyment,
	"CU": metrics.ContentUsefulness,
	"PC": metrics.ProductionComplexity,
	"PQ": metrics.ProductionQuality,
}

func aestheticAxisName(code string) string {
	if name, ok := aestheticAxis[strings.ToUpper(code)]; ok {
		return name
	}
	return strings.ToLower(code)
}

func (h *HTTP) Aesthetics(ctx context.Context, url, checkpoint string, items []metrics.Item) ([]metrics.Value, error) {
	var out ScoreResp
	if err := h.post(ctx, "aesthetics", url+"/predict", newScoreReq(metrics.AestheticsID, checkpoint, items), &out); err != nil {
		return nil, err
	}
	return out.values("aesthetics", len(items), aestheticAxisName)
}

// LoadModel asks the service at url to load checkpoint for metric ahead of
// scoring.
func (h *HTTP) LoadModel(ctx context.Context, url, metric, checkpoint string) error {
	return h.post(ctx, "load", url+"/load", LoadReq{Checkpoint: checkpoint, Metric: metric}, nil)
}

type aestheticsBackend struct {
	h          *HTTP
	url        string
	checkpoint string
}

func (b *aestheticsBackend) Score(ctx context.Context, items []metrics.Item) ([]metrics.Value, error) {
	return b.h.Aesthetics(ctx, b.url, b.checkpoint, items)
}

// AestheticsLoader returns a metrics.Loader that loads the checkpoint on
// the aesthetics service and scores through it.
func AestheticsLoader(h *HTTP, url string) metrics.Loader {
	return func(ctx context.Context, checkpoint string) (metrics.Backend, error) {
		if err := h.LoadModel(ctx, url, metrics.AestheticsID, checkpoint); err != nil {
			return nil, err
		}
		return &aestheticsBackend{h: h, url: url, checkpoint: checkpoint}, nil
	}
}
