package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/maastricht-university/audioscore/metrics"
)

// Report is the persisted form of one scoring call.
type Report struct {
	RunID       string                   `json:"run_id" yaml:"run_id"`
	Kind        string                   `json:"kind" yaml:"kind"`
	Input       string                   `json:"input" yaml:"input"`
	Reference   string                   `json:"reference,omitempty" yaml:"reference,omitempty"`
	Checkpoint  string                   `json:"checkpoint,omitempty" yaml:"checkpoint,omitempty"`
	Metrics     []string                 `json:"metrics" yaml:"metrics"`
	GeneratedAt time.Time                `json:"generated_at" yaml:"generated_at"`
	Records     []ScoreRecord            `json:"records" yaml:"records"`
	Average     map[string]metrics.Value `json:"average,omitempty" yaml:"average,omitempty"`
}

func newReport(kind, input string, ids []string, records []ScoreRecord) *Report {
	return &Report{
		RunID:       uuid.NewString(),
		Kind:        kind,
		Input:       input,
		Metrics:     ids,
		GeneratedAt: time.Now().UTC(),
		Records:     records,
	}
}

// Failed counts records with at least one error marker.
func (r *Report) Failed() int {
	n := 0
	for _, rec := range r.Records {
		if !rec.OK() {
			n++
		}
	}
	return n
}

// Encode renders the report as "json" (the default) or "yaml" and returns
// the file extension to use.
func (r *Report) Encode(format string) ([]byte, string, error) {
	switch strings.ToLower(format) {
	case "", "json":
		b, err := json.MarshalIndent(r, "", "  ")
		return append(b, '\n'), "json", err
	case "yaml", "yml":
		b, err := yaml.Marshal(r)
		return b, "yaml", err
	}
	return nil, "", fmt.Errorf("unknown report format %q", format)
}

// Sink stores encoded reports under a relative name.
type Sink interface {
	Put(ctx context.Context, name string, data []byte) (location string, err error)
}

// Save encodes the report and writes it to sink under
// session_<timestamp>/<kind>_results.<ext>.
func (r *Report) Save(ctx context.Context, sink Sink, format string) (string, error) {
	data, ext, err := r.Encode(format)
	if err != nil {
		return "", err
	}
	name := path.Join(sessionID(r.GeneratedAt), r.Kind+"_results."+ext)
	return sink.Put(ctx, name, data)
}

func sessionID(t time.Time) string {
	return "session_" + t.Format("20060102-150405")
}

// DirSink writes reports below a local directory.
type DirSink string

func (d DirSink) Put(_ context.Context, name string, data []byte) (string, error) {
	p := filepath.Join(string(d), filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return "", err
	}
	return p, nil
}
