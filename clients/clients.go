package clients

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// HTTP talks to the model services. Safe for concurrent use.
type HTTP struct {
	c       *http.Client
	limiter *rate.Limiter
	codec   Codec
}

// Option configures an HTTP client.
type Option func(*HTTP)

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(h *HTTP) { h.c.Timeout = d }
}

// WithRateLimit caps outgoing requests at rps with the given burst. A
// non-positive rps disables limiting.
func WithRateLimit(rps float64, burst int) Option {
	return func(h *HTTP) {
		if rps <= 0 {
			h.limiter = nil
			return
		}
		h.limiter = rate.NewLimiter(rate.Limit(rps), max(burst, 1))
	}
}

// WithCodec sets the request/response body codec.
func WithCodec(c Codec) Option {
	return func(h *HTTP) { h.codec = c }
}

func NewHTTP(opts ...Option) *HTTP {
	h := &HTTP{c: &http.Client{Timeout: 60 * time.Second}, codec: JSON}
	for _, o := range opts {
		o(h)
	}
	return h
}

// post encodes in, POSTs it to url and decodes the response into out. out
// may be nil when the body is not needed.
func (h *HTTP) post(ctx context.Context, name, url string, in, out any) error {
	if h.limiter != nil {
		if err := h.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	body, err := h.codec.Marshal(in)
	if err != nil {
		return fmt.Errorf("%s encode: %w", name, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", h.codec.ContentType())
	req.Header.Set("Accept", h.codec.ContentType())

	resp, err := h.c.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%s %s: %s", name, resp.Status, string(b))
	}
	if out == nil {
		return nil
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s read: %w", name, err)
	}
	if err := h.codec.Unmarshal(b, out); err != nil {
		return fmt.Errorf("%s decode: %w", name, err)
	}
	return nil
}
