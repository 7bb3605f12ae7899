package orchestrator

import (
	"fmt"
	"os"
	"sync"

	"github.com/maastricht-university/audioscore/audio"
	"github.com/maastricht-university/audioscore/metrics"
)

// Request is one input to score: a file and, for reference-based metrics,
// its clean reference. Audio is decoded lazily and at most once, so a bad
// file only fails when (and where) it is used.
type Request struct {
	Index   int
	ID      string
	Path    string
	RefPath string
	// Err marks a request that cannot be scored by any metric.
	Err error
	// RefErr explains why RefPath cannot be used.
	RefErr error

	load  func(string) (*audio.Waveform, error)
	audio lazyWave
	ref   lazyWave
}

type lazyWave struct {
	once sync.Once
	w    *audio.Waveform
	err  error
}

func (l *lazyWave) get(load func(string) (*audio.Waveform, error), path string) (*audio.Waveform, error) {
	l.once.Do(func() {
		l.w, l.err = load(path)
		if l.err != nil && os.IsNotExist(l.err) {
			l.err = fmt.Errorf("%w: %v", ErrInputNotFound, l.err)
		}
	})
	return l.w, l.err
}

func (r *Request) loader() func(string) (*audio.Waveform, error) {
	if r.load == nil {
		return audio.Load
	}
	return r.load
}

// Audio returns the decoded primary audio.
func (r *Request) Audio() (*audio.Waveform, error) {
	if r.Err != nil {
		return nil, r.Err
	}
	return r.audio.get(r.loader(), r.Path)
}

// Reference returns the decoded reference, or nil when the request has
// none.
func (r *Request) Reference() (*audio.Waveform, error) {
	if r.RefPath == "" {
		return nil, nil
	}
	if r.RefErr != nil {
		return nil, r.RefErr
	}
	return r.ref.get(r.loader(), r.RefPath)
}

// ScoreRecord is the merged result for one request. Scores and Errors are
// keyed by metric id; a metric appears in exactly one of them.
type ScoreRecord struct {
	Index  int                      `json:"index" yaml:"index"`
	ID     string                   `json:"id" yaml:"id"`
	Scores map[string]metrics.Value `json:"scores" yaml:"scores"`
	Errors map[string]*RequestError `json:"errors,omitempty" yaml:"errors,omitempty"`
}

// OK reports whether every metric scored.
func (r ScoreRecord) OK() bool { return len(r.Errors) == 0 }

// Outcome is the engine's result for one slot.
type Outcome struct {
	Value metrics.Value
	Err   *RequestError
}
