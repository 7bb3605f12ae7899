// Package audio holds decoded audio and the sample-level transforms the
// scoring pipeline applies before a batch is sent to a metric backend.
package audio

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrEmpty is returned for audio that decodes to zero frames.
var ErrEmpty = errors.New("audio: empty waveform")

// Waveform is decoded audio. Samples are interleaved and normalised to
// [-1, 1].
type Waveform struct {
	Samples    []float64
	SampleRate int
	Channels   int
	// Digest is the hex sha256 of the source bytes. Transforms carry it over.
	Digest string
}

// Validate checks the waveform invariants.
func (w *Waveform) Validate() error {
	switch {
	case w == nil:
		return ErrEmpty
	case w.SampleRate <= 0:
		return fmt.Errorf("audio: invalid sample rate %d", w.SampleRate)
	case w.Channels < 1:
		return fmt.Errorf("audio: invalid channel count %d", w.Channels)
	case len(w.Samples) < w.Channels:
		return ErrEmpty
	case len(w.Samples)%w.Channels != 0:
		return fmt.Errorf("audio: %d samples do not divide into %d channels", len(w.Samples), w.Channels)
	}
	return nil
}

// Frames returns the number of sample frames (samples per channel).
func (w *Waveform) Frames() int {
	if w.Channels < 1 {
		return 0
	}
	return len(w.Samples) / w.Channels
}

// Seconds returns the duration in seconds.
func (w *Waveform) Seconds() float64 {
	if w.SampleRate <= 0 {
		return 0
	}
	return float64(w.Frames()) / float64(w.SampleRate)
}

// Duration returns the duration of the waveform.
func (w *Waveform) Duration() time.Duration {
	return time.Duration(w.Seconds() * float64(time.Second))
}

// FramesIn returns how many frames d spans at the waveform's rate.
func (w *Waveform) FramesIn(d time.Duration) int {
	return int(math.Round(d.Seconds() * float64(w.SampleRate)))
}

// Mono averages all channels into one. A mono waveform is returned as is.
func (w *Waveform) Mono() *Waveform {
	if w.Channels == 1 {
		return w
	}
	frames := w.Frames()
	out := make([]float64, frames)
	for i := 0; i < frames; i++ {
		var sum float64
		for c := 0; c < w.Channels; c++ {
			sum += w.Samples[i*w.Channels+c]
		}
		out[i] = sum / float64(w.Channels)
	}
	return &Waveform{Samples: out, SampleRate: w.SampleRate, Channels: 1, Digest: w.Digest}
}

// Head returns the first n frames. The samples are shared with w.
func (w *Waveform) Head(n int) *Waveform {
	if n >= w.Frames() {
		return w
	}
	if n < 0 {
		n = 0
	}
	return &Waveform{
		Samples:    w.Samples[:n*w.Channels],
		SampleRate: w.SampleRate,
		Channels:   w.Channels,
		Digest:     w.Digest,
	}
}

// Trim cuts the waveform to at most d.
func (w *Waveform) Trim(d time.Duration) *Waveform {
	if d <= 0 {
		return w
	}
	return w.Head(w.FramesIn(d))
}

// Windows splits the waveform into consecutive windows of length d. The
// trailing remainder becomes its own, shorter window. A non-positive d
// yields the whole waveform as a single window.
func (w *Waveform) Windows(d time.Duration) []*Waveform {
	size := w.FramesIn(d)
	frames := w.Frames()
	if d <= 0 || size <= 0 || size >= frames {
		return []*Waveform{w}
	}
	var out []*Waveform
	for start := 0; start < frames; start += size {
		end := min(start+size, frames)
		out = append(out, &Waveform{
			Samples:    w.Samples[start*w.Channels : end*w.Channels],
			SampleRate: w.SampleRate,
			Channels:   w.Channels,
		})
	}
	return out
}

// Float32 returns the samples converted to float32, the element type model
// services expect on the wire.
func (w *Waveform) Float32() []float32 {
	out := make([]float32, len(w.Samples))
	for i, s := range w.Samples {
		out[i] = float32(s)
	}
	return out
}

// Align cuts a and b to the shorter of the two. Both must share a rate.
func Align(a, b *Waveform) (*Waveform, *Waveform) {
	n := min(a.Frames(), b.Frames())
	return a.Head(n), b.Head(n)
}
