package audio

import (
	"fmt"
	"math"

	resampling "github.com/tphakala/go-audio-resampling"
)

// Resample converts w to rate. Audio already at rate is returned as is.
//
// The resampler is driven in one shot without a flush, so its output can
// come up a little short of the exact target length; the tail is padded
// with silence (or trimmed) to round(frames * rate / w.SampleRate).
func Resample(w *Waveform, rate int) (*Waveform, error) {
	if rate <= 0 {
		return nil, fmt.Errorf("audio: invalid target rate %d", rate)
	}
	if w.SampleRate == rate {
		return w, nil
	}
	r, err := resampling.New(&resampling.Config{
		InputRate:  float64(w.SampleRate),
		OutputRate: float64(rate),
		Channels:   w.Channels,
		Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create resampler: %w", err)
	}
	out, err := r.Process(w.Samples)
	if err != nil {
		return nil, fmt.Errorf("resample error: %w", err)
	}

	want := int(math.Round(float64(w.Frames())*float64(rate)/float64(w.SampleRate))) * w.Channels
	switch {
	case len(out) > want:
		out = out[:want]
	case len(out) < want:
		out = append(out, make([]float64, want-len(out))...)
	}
	for i, s := range out {
		out[i] = math.Max(-1, math.Min(1, s))
	}
	return &Waveform{Samples: out, SampleRate: rate, Channels: w.Channels, Digest: w.Digest}, nil
}
