package audio_test

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/maastricht-university/audioscore/audio"
	"github.com/maastricht-university/audioscore/audio/audiotest"
)

func TestLoadWAV(t *testing.T) {
	dir := t.TempDir()
	path := audiotest.WAV(t, dir, "tone.wav", audiotest.Tone{Seconds: 0.5, SampleRate: 16000, Channels: 2, Freq: 440})

	w, err := audio.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if w.SampleRate != 16000 || w.Channels != 2 {
		t.Fatalf("format = %d Hz / %d ch, want 16000 / 2", w.SampleRate, w.Channels)
	}
	if w.Frames() != 8000 {
		t.Fatalf("Frames = %d, want 8000", w.Frames())
	}
	if got := w.Duration(); got != 500*time.Millisecond {
		t.Fatalf("Duration = %v", got)
	}
	if w.Digest == "" {
		t.Fatal("Digest not set")
	}
	for _, s := range w.Samples {
		if math.Abs(s) > 0.51 {
			t.Fatalf("sample %f outside tone level", s)
		}
	}
}

func TestLoadEmptyFile(t *testing.T) {
	path := audiotest.Empty(t, t.TempDir(), "b.wav")
	_, err := audio.Load(path)
	if !errors.Is(err, audio.ErrUnsupportedFormat) {
		t.Fatalf("err = %v, want ErrUnsupportedFormat", err)
	}
}

func TestLoadUnknownExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.txt")
	if err := os.WriteFile(path, []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := audio.Load(path)
	if !errors.Is(err, audio.ErrUnsupportedFormat) {
		t.Fatalf("err = %v, want ErrUnsupportedFormat", err)
	}
}

func TestLoadMissing(t *testing.T) {
	_, err := audio.Load(filepath.Join(t.TempDir(), "nope.wav"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("err = %v, want os.ErrNotExist", err)
	}
}

func TestIsAudioFile(t *testing.T) {
	for name, want := range map[string]bool{
		"a.wav": true, "b.WAV": true, "c.flac": true, "d.mp3": false, "e": false,
	} {
		if got := audio.IsAudioFile(name); got != want {
			t.Errorf("IsAudioFile(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestMono(t *testing.T) {
	w := &audio.Waveform{Samples: []float64{1, 0, 0.5, 0.5, -1, 1}, SampleRate: 8000, Channels: 2}
	m := w.Mono()
	want := []float64{0.5, 0.5, 0}
	if m.Channels != 1 || len(m.Samples) != len(want) {
		t.Fatalf("Mono = %+v", m)
	}
	for i := range want {
		if m.Samples[i] != want[i] {
			t.Fatalf("Mono[%d] = %f, want %f", i, m.Samples[i], want[i])
		}
	}
	if m.Mono() != m {
		t.Fatal("Mono of mono audio should be identity")
	}
}

func TestTrimAndWindows(t *testing.T) {
	w := &audio.Waveform{Samples: make([]float64, 2500), SampleRate: 1000, Channels: 1}

	if got := w.Trim(time.Second).Frames(); got != 1000 {
		t.Fatalf("Trim frames = %d, want 1000", got)
	}
	if got := w.Trim(0).Frames(); got != 2500 {
		t.Fatalf("Trim(0) frames = %d, want 2500", got)
	}

	wins := w.Windows(time.Second)
	if len(wins) != 3 {
		t.Fatalf("windows = %d, want 3", len(wins))
	}
	if wins[2].Frames() != 500 {
		t.Fatalf("last window frames = %d, want 500", wins[2].Frames())
	}
	if got := w.Windows(0); len(got) != 1 || got[0] != w {
		t.Fatal("Windows(0) should return the waveform itself")
	}
}

func TestAlign(t *testing.T) {
	a := &audio.Waveform{Samples: make([]float64, 300), SampleRate: 100, Channels: 1}
	b := &audio.Waveform{Samples: make([]float64, 200), SampleRate: 100, Channels: 1}
	a2, b2 := audio.Align(a, b)
	if a2.Frames() != 200 || b2.Frames() != 200 {
		t.Fatalf("Align = %d/%d, want 200/200", a2.Frames(), b2.Frames())
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name string
		w    *audio.Waveform
		ok   bool
	}{
		{"ok", &audio.Waveform{Samples: []float64{0}, SampleRate: 1, Channels: 1}, true},
		{"nil", nil, false},
		{"rate", &audio.Waveform{Samples: []float64{0}, Channels: 1}, false},
		{"channels", &audio.Waveform{Samples: []float64{0}, SampleRate: 1}, false},
		{"empty", &audio.Waveform{SampleRate: 1, Channels: 1}, false},
		{"ragged", &audio.Waveform{Samples: []float64{0, 0, 0}, SampleRate: 1, Channels: 2}, false},
	}
	for _, tc := range cases {
		if err := tc.w.Validate(); (err == nil) != tc.ok {
			t.Errorf("%s: Validate() = %v", tc.name, err)
		}
	}
}

func TestResample(t *testing.T) {
	dir := t.TempDir()
	w, err := audio.Load(audiotest.WAV(t, dir, "a.wav", audiotest.Tone{Seconds: 1, SampleRate: 16000, Freq: 220}))
	if err != nil {
		t.Fatal(err)
	}
	same, err := audio.Resample(w, 16000)
	if err != nil || same != w {
		t.Fatalf("Resample to same rate = %v, %v", same, err)
	}
	down, err := audio.Resample(w, 8000)
	if err != nil {
		t.Fatalf("Resample: %v", err)
	}
	if down.SampleRate != 8000 || down.Frames() != 8000 {
		t.Fatalf("resampled = %d Hz, %d frames", down.SampleRate, down.Frames())
	}
	if _, err := audio.Resample(w, 0); err == nil {
		t.Fatal("Resample(0) should fail")
	}
}
