// Package audiotest writes synthetic audio files for tests.
package audiotest

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// Tone configures the synthetic audio to generate.
type Tone struct {
	Seconds    float64 // default 1
	SampleRate int     // default 16000
	Channels   int     // default 1
	Freq       float64 // sine frequency in Hz, 0 = silence
	Level      float64 // linear amplitude, default 0.5
}

func (o *Tone) defaults() {
	if o.Seconds == 0 {
		o.Seconds = 1
	}
	if o.SampleRate == 0 {
		o.SampleRate = 16000
	}
	if o.Channels == 0 {
		o.Channels = 1
	}
	if o.Level == 0 {
		o.Level = 0.5
	}
}

// WAV writes a 16-bit PCM WAV file named name under dir and returns its
// path.
func WAV(t testing.TB, dir, name string, opts Tone) string {
	t.Helper()
	opts.defaults()

	frames := int(opts.Seconds * float64(opts.SampleRate))
	data := make([]int, 0, frames*opts.Channels)
	for i := 0; i < frames; i++ {
		var v float64
		if opts.Freq > 0 {
			v = opts.Level * math.Sin(2*math.Pi*opts.Freq*float64(i)/float64(opts.SampleRate))
		}
		for c := 0; c < opts.Channels; c++ {
			data = append(data, int(v*math.MaxInt16))
		}
	}

	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create wav: %v", err)
	}
	defer f.Close()
	enc := wav.NewEncoder(f, opts.SampleRate, 16, opts.Channels, 1)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: opts.Channels, SampleRate: opts.SampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		t.Fatalf("encode wav: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("close wav: %v", err)
	}
	return path
}

// Empty writes a zero-byte file named name under dir.
func Empty(t testing.TB, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatalf("write empty: %v", err)
	}
	return path
}
