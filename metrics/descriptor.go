package metrics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/maastricht-university/audioscore/audio"
)

// Item is one unit of work handed to a Backend.
type Item struct {
	ID        string
	Audio     *audio.Waveform
	Reference *audio.Waveform
}

// Backend scores a batch of items. On success it returns exactly one Value
// per item, in item order. Any error fails the batch as a whole.
type Backend interface {
	Score(ctx context.Context, items []Item) ([]Value, error)
}

// BackendFunc adapts a function to Backend.
type BackendFunc func(ctx context.Context, items []Item) ([]Value, error)

func (f BackendFunc) Score(ctx context.Context, items []Item) ([]Value, error) {
	return f(ctx, items)
}

// Loader opens the backend for a checkpoint. Checkpoints are opaque to the
// pipeline; metrics without one receive "".
type Loader func(ctx context.Context, checkpoint string) (Backend, error)

// Static returns a Loader that ignores the checkpoint and always yields b.
func Static(b Backend) Loader {
	return func(context.Context, string) (Backend, error) { return b, nil }
}

// Descriptor describes what a metric needs from its input and how to reach
// its backend.
type Descriptor struct {
	ID                string
	Description       string
	RequiresReference bool
	// SampleRate is the rate the backend expects; 0 accepts any.
	SampleRate int
	// Mono asks for channels to be mixed down before scoring.
	Mono bool
	// MinDuration rejects shorter audio; MaxDuration trims longer audio.
	// Zero disables either bound.
	MinDuration time.Duration
	MaxDuration time.Duration
	// Axes names the components of vector-shaped results; empty for scalars.
	Axes   []string
	Loader Loader
}

// Vector reports whether the metric produces named vectors.
func (d Descriptor) Vector() bool { return len(d.Axes) > 0 }

// Validate checks a descriptor before registration.
func (d Descriptor) Validate() error {
	switch {
	case d.ID == "":
		return errors.New("metrics: descriptor without id")
	case d.Loader == nil:
		return fmt.Errorf("metrics: %s: no backend loader", d.ID)
	case d.SampleRate < 0:
		return fmt.Errorf("metrics: %s: negative sample rate", d.ID)
	case d.MaxDuration > 0 && d.MinDuration > d.MaxDuration:
		return fmt.Errorf("metrics: %s: min duration %v exceeds max %v", d.ID, d.MinDuration, d.MaxDuration)
	}
	return nil
}

// Override adjusts the constraints of a built-in metric.
type Override struct {
	SampleRate  int
	MaxDuration time.Duration
}

// Apply returns d with the non-zero fields of o applied.
func (o Override) Apply(d Descriptor) Descriptor {
	if o.SampleRate > 0 {
		d.SampleRate = o.SampleRate
	}
	if o.MaxDuration > 0 {
		d.MaxDuration = o.MaxDuration
	}
	return d
}
