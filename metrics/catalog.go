package metrics

import "time"

// AestheticsID is the id of the multi-axis aesthetics metric.
const AestheticsID = "AES"

// Aesthetic axes.
const (
	ContentEnjoyment     = "content_enjoyment"
	ContentUsefulness    = "content_usefulness"
	ProductionComplexity = "production_complexity"
	ProductionQuality    = "production_quality"
)

// DefaultScoreRate is the rate most built-in metrics score at.
const DefaultScoreRate = 16000

const (
	nisqaScoreRate  = 48000
	pesqMinDuration = 250 * time.Millisecond
)

// AestheticAxes lists the aesthetics axes in report order.
var AestheticAxes = []string{ContentEnjoyment, ContentUsefulness, ProductionComplexity, ProductionQuality}

// Aesthetics returns the aesthetics descriptor backed by loader.
func Aesthetics(loader Loader) Descriptor {
	return Descriptor{
		ID:          AestheticsID,
		Description: "learned aesthetic predictor (enjoyment, usefulness, complexity, quality)",
		SampleRate:  DefaultScoreRate,
		Mono:        true,
		Axes:        AestheticAxes,
		Loader:      loader,
	}
}

// speechCatalog holds the speech-quality metrics without their loaders.
var speechCatalog = []Descriptor{
	{ID: "SRMR", Description: "speech-to-reverberation modulation energy ratio"},
	{ID: "DNSMOS", Description: "DNN noise suppression MOS", Axes: []string{"OVRL", "SIG", "BAK", "P808_MOS"}},
	{ID: "NISQA", Description: "non-intrusive speech quality assessment", SampleRate: nisqaScoreRate},
	{ID: "DISTILL_MOS", Description: "distilled MOS predictor"},
	{ID: "PESQ", Description: "wide-band perceptual evaluation of speech quality", RequiresReference: true, MinDuration: pesqMinDuration},
	{ID: "NB_PESQ", Description: "narrow-band PESQ", RequiresReference: true, MinDuration: pesqMinDuration},
	{ID: "STOI", Description: "short-time objective intelligibility", RequiresReference: true},
	{ID: "SISDR", Description: "scale-invariant signal-to-distortion ratio", RequiresReference: true},
	{ID: "FWSEGSNR", Description: "frequency-weighted segmental SNR", RequiresReference: true},
	{ID: "LSD", Description: "log-spectral distance", RequiresReference: true},
	{ID: "BSSEVAL", Description: "blind source separation evaluation", RequiresReference: true, Axes: []string{"SDR", "ISR", "SAR"}},
	{ID: "SNR", Description: "signal-to-noise ratio", RequiresReference: true},
	{ID: "SSNR", Description: "segmental SNR", RequiresReference: true},
	{ID: "LLR", Description: "log-likelihood ratio", RequiresReference: true},
	{ID: "CSIG", Description: "composite signal distortion", RequiresReference: true, MinDuration: pesqMinDuration},
	{ID: "CBAK", Description: "composite background intrusiveness", RequiresReference: true, MinDuration: pesqMinDuration},
	{ID: "COVL", Description: "composite overall quality", RequiresReference: true, MinDuration: pesqMinDuration},
	{ID: "MCD", Description: "mel cepstral distortion", RequiresReference: true},
}

// SpeechMetrics returns the speech-quality descriptors, each wired to the
// loader open returns for it. Sample rates default to 16 kHz.
func SpeechMetrics(open func(id string) Loader) []Descriptor {
	out := make([]Descriptor, 0, len(speechCatalog))
	for _, d := range speechCatalog {
		if d.SampleRate == 0 {
			d.SampleRate = DefaultScoreRate
		}
		d.Mono = true
		d.Loader = open(d.ID)
		out = append(out, d)
	}
	return out
}

// IsSpeech reports whether id names one of the speech-quality metrics.
func IsSpeech(id string) bool {
	id = Normalize(id)
	for _, d := range speechCatalog {
		if d.ID == id {
			return true
		}
	}
	return false
}

// RegisterBuiltins registers the aesthetics metric and every speech metric
// in r, applying per-metric overrides keyed by (case-insensitive) id.
func RegisterBuiltins(r *Registry, aesthetics Loader, speech func(id string) Loader, overrides map[string]Override) error {
	byID := make(map[string]Override, len(overrides))
	for id, o := range overrides {
		byID[Normalize(id)] = o
	}
	all := append([]Descriptor{Aesthetics(aesthetics)}, SpeechMetrics(speech)...)
	for _, d := range all {
		if o, ok := byID[d.ID]; ok {
			d = o.Apply(d)
		}
		if err := r.Register(d); err != nil {
			return err
		}
	}
	return nil
}
