package orchestrator

import (
	"fmt"
	"time"

	"github.com/maastricht-university/audioscore/audio"
	"github.com/maastricht-university/audioscore/metrics"
)

// BatchOptions control how requests are grouped for one metric.
type BatchOptions struct {
	// Size caps the items per batch; values below 1 mean 1.
	Size int
	// Window splits long audio into windows of this length, each scored on
	// its own and averaged per request. Zero scores whole files.
	Window time.Duration
}

// Slot is one scoreable unit: a request, or one window of it.
type Slot struct {
	Request int
	Window  int
	// Key identifies the prepared input for the score cache; empty when the
	// source has no digest.
	Key  string
	Item metrics.Item
}

// Batch is a group of slots sent to the backend in one call.
type Batch struct {
	Slots []int
}

// Plan is the batched work for one metric. Requests that cannot be scored
// by the metric appear in Failures and in no batch.
type Plan struct {
	Metric   metrics.Descriptor
	Slots    []Slot
	Batches  []Batch
	Failures map[int]*RequestError
}

// SlotsFor returns the slot indices belonging to request index i.
func (p *Plan) SlotsFor(i int) []int {
	var out []int
	for j, s := range p.Slots {
		if s.Request == i {
			out = append(out, j)
		}
	}
	return out
}

// MakeBatches prepares every request for metric d and groups the results in
// request order. Preparation decodes lazily, mixes down, resamples, aligns
// the reference, enforces duration bounds and splits windows.
func MakeBatches(requests []*Request, d metrics.Descriptor, opts BatchOptions) *Plan {
	size := max(opts.Size, 1)
	plan := &Plan{Metric: d, Failures: map[int]*RequestError{}}
	for _, req := range requests {
		a, ref, err := prepare(req, d)
		if err != nil {
			plan.Failures[req.Index] = err
			continue
		}
		aw, rw, window := windows(a, ref, d.MinDuration, opts.Window)
		for wi, w := range aw {
			item := metrics.Item{ID: req.ID, Audio: w}
			if rw != nil {
				item.Reference = rw[wi]
			}
			plan.Slots = append(plan.Slots, Slot{
				Request: req.Index,
				Window:  wi,
				Key:     slotKey(d, a, ref, wi, window),
				Item:    item,
			})
		}
	}
	for start := 0; start < len(plan.Slots); start += size {
		end := min(start+size, len(plan.Slots))
		b := Batch{Slots: make([]int, 0, end-start)}
		for i := start; i < end; i++ {
			b.Slots = append(b.Slots, i)
		}
		plan.Batches = append(plan.Batches, b)
	}
	return plan
}

func prepare(req *Request, d metrics.Descriptor) (*audio.Waveform, *audio.Waveform, *RequestError) {
	a, err := req.Audio()
	if err != nil {
		return nil, nil, failure(req, d.ID, ErrUnsupportedFormat, err)
	}
	var ref *audio.Waveform
	if d.RequiresReference {
		if req.RefPath == "" {
			return nil, nil, constraint(req, d, "metric requires a reference")
		}
		ref, err = req.Reference()
		if err != nil {
			return nil, nil, constraint(req, d, fmt.Sprintf("reference unusable: %v", err))
		}
	}
	if d.Mono {
		a = a.Mono()
		if ref != nil {
			ref = ref.Mono()
		}
	}
	if d.SampleRate > 0 {
		if a, err = audio.Resample(a, d.SampleRate); err != nil {
			return nil, nil, constraint(req, d, err.Error())
		}
		if ref != nil {
			if ref, err = audio.Resample(ref, d.SampleRate); err != nil {
				return nil, nil, constraint(req, d, "reference: "+err.Error())
			}
		}
	}
	if ref != nil {
		if ref.SampleRate != a.SampleRate {
			return nil, nil, constraint(req, d, fmt.Sprintf("reference rate %d differs from %d", ref.SampleRate, a.SampleRate))
		}
		if ref.Channels != a.Channels {
			return nil, nil, constraint(req, d, fmt.Sprintf("reference has %d channels, audio %d", ref.Channels, a.Channels))
		}
		a, ref = audio.Align(a, ref)
	}
	if d.MinDuration > 0 && a.Duration() < d.MinDuration {
		return nil, nil, constraint(req, d, fmt.Sprintf("duration %v below minimum %v", a.Duration(), d.MinDuration))
	}
	a = a.Trim(d.MaxDuration)
	if ref != nil {
		ref = ref.Trim(d.MaxDuration)
	}
	return a, ref, nil
}

// windows splits a and ref into windows of size, leaving out windows
// shorter than minDur. When no window is long enough the whole input is
// scored as one and the returned size is zero.
func windows(a, ref *audio.Waveform, minDur, size time.Duration) ([]*audio.Waveform, []*audio.Waveform, time.Duration) {
	aw := a.Windows(size)
	var rw []*audio.Waveform
	if ref != nil {
		rw = ref.Windows(size)
	}
	if minDur <= 0 || len(aw) == 1 {
		return aw, rw, size
	}
	var keep, keepRef []*audio.Waveform
	for i, w := range aw {
		if w.Duration() < minDur {
			continue
		}
		keep = append(keep, w)
		if rw != nil {
			keepRef = append(keepRef, rw[i])
		}
	}
	if len(keep) == 0 {
		if ref != nil {
			return []*audio.Waveform{a}, []*audio.Waveform{ref}, 0
		}
		return []*audio.Waveform{a}, nil, 0
	}
	return keep, keepRef, size
}

func constraint(req *Request, d metrics.Descriptor, reason string) *RequestError {
	return &RequestError{ID: req.ID, Metric: d.ID, Reason: reason, Err: ErrConstraintViolation}
}

func slotKey(d metrics.Descriptor, a, ref *audio.Waveform, window int, size time.Duration) string {
	if a.Digest == "" {
		return ""
	}
	refDigest := "-"
	if ref != nil {
		if ref.Digest == "" {
			return ""
		}
		refDigest = ref.Digest
	}
	return fmt.Sprintf("%s/%s/%s/sr%d/mono%t/max%s/w%s#%d",
		d.ID, a.Digest, refDigest, d.SampleRate, d.Mono, d.MaxDuration, size, window)
}
