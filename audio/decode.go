package audio

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-audio/wav"
	"github.com/mewkiz/flac"
)

// ErrUnsupportedFormat is returned when a file cannot be decoded.
var ErrUnsupportedFormat = errors.New("unsupported audio format")

// wave format tags accepted by decodeWAV.
const (
	wavFormatPCM        = 1
	wavFormatExtensible = 0xFFFE
)

// Extensions lists the file extensions Load can decode.
var Extensions = []string{".wav", ".wave", ".flac"}

// IsAudioFile reports whether path has a decodable extension.
func IsAudioFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range Extensions {
		if ext == e {
			return true
		}
	}
	return false
}

// Load reads and decodes an audio file. Any decode problem, including an
// empty file, is reported as ErrUnsupportedFormat.
func Load(path string) (*Waveform, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var w *Waveform
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".wav", ".wave":
		w, err = decodeWAV(bytes.NewReader(data))
	case ".flac":
		w, err = decodeFLAC(bytes.NewReader(data))
	default:
		err = fmt.Errorf("%w: extension %q", ErrUnsupportedFormat, ext)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if err := w.Validate(); err != nil {
		return nil, fmt.Errorf("decode %s: %w: %v", path, ErrUnsupportedFormat, err)
	}
	sum := sha256.Sum256(data)
	w.Digest = hex.EncodeToString(sum[:])
	return w, nil
}

func decodeWAV(r io.ReadSeeker) (*Waveform, error) {
	d := wav.NewDecoder(r)
	if !d.IsValidFile() {
		return nil, fmt.Errorf("%w: invalid wav: %v", ErrUnsupportedFormat, d.Err())
	}
	if d.WavAudioFormat != wavFormatPCM && d.WavAudioFormat != wavFormatExtensible {
		return nil, fmt.Errorf("%w: wav format tag %d", ErrUnsupportedFormat, d.WavAudioFormat)
	}
	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}
	depth := buf.SourceBitDepth
	scale := float64(int64(1) << (depth - 1))
	samples := make([]float64, len(buf.Data))
	for i, v := range buf.Data {
		if depth == 8 {
			// 8-bit wav is unsigned
			v -= 128
		}
		samples[i] = float64(v) / scale
	}
	return &Waveform{
		Samples:    samples,
		SampleRate: int(d.SampleRate),
		Channels:   int(d.NumChans),
	}, nil
}

func decodeFLAC(r io.Reader) (*Waveform, error) {
	stream, err := flac.New(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}
	defer stream.Close()

	channels := int(stream.Info.NChannels)
	scale := float64(int64(1) << (stream.Info.BitsPerSample - 1))
	samples := make([]float64, 0, int(stream.Info.NSamples)*channels)
	for {
		f, err := stream.ParseNext()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
		}
		if len(f.Subframes) != channels {
			return nil, fmt.Errorf("%w: frame has %d channels, stream %d", ErrUnsupportedFormat, len(f.Subframes), channels)
		}
		n := len(f.Subframes[0].Samples)
		for i := 0; i < n; i++ {
			for _, sub := range f.Subframes {
				samples = append(samples, float64(sub.Samples[i])/scale)
			}
		}
	}
	return &Waveform{
		Samples:    samples,
		SampleRate: int(stream.Info.SampleRate),
		Channels:   channels,
	}, nil
}
