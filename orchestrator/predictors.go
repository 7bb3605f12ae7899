package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/maastricht-university/audioscore/metrics"
)

// Decimal places kept in facade results.
const (
	AestheticsPrecision = 3
	SpeechPrecision     = 4
)

// ReportOptions control what a facade does with a finished run.
type ReportOptions struct {
	// Mean adds per-metric averages to the report.
	Mean bool
	// Sink, when set, receives the encoded report.
	Sink Sink
	// Format is "json" or "yaml".
	Format string
}

func (o ReportOptions) finish(ctx context.Context, log logrus.FieldLogger, rep *Report, dp int) error {
	if o.Mean {
		rep.Average = Summary(rep.Records, dp)
	}
	if o.Sink == nil {
		return nil
	}
	loc, err := rep.Save(context.WithoutCancel(ctx), o.Sink, o.Format)
	if err != nil {
		return fmt.Errorf("save report: %w", err)
	}
	log.WithFields(logrus.Fields{"run_id": rep.RunID, "location": loc}).Info("report saved")
	return nil
}

// AestheticsPredictor scores audio on the four aesthetic axes.
type AestheticsPredictor struct {
	pipe     *Pipeline
	resolver *Resolver
	desc     metrics.Descriptor
	opts     ReportOptions
}

// NewAestheticsPredictor fails with *UnknownMetricError when the registry
// has no aesthetics metric. A nil r resolves local inputs only.
func NewAestheticsPredictor(p *Pipeline, r *Resolver, opts ReportOptions) (*AestheticsPredictor, error) {
	d, err := p.reg.Resolve(metrics.AestheticsID)
	if err != nil {
		return nil, err
	}
	if r == nil {
		r = &Resolver{}
	}
	return &AestheticsPredictor{pipe: p, resolver: r, desc: d, opts: opts}, nil
}

// Predict scores input (file, directory, manifest or s3:// prefix) with the
// given checkpoint. It returns one record per resolved input, in order.
func (a *AestheticsPredictor) Predict(ctx context.Context, input, checkpoint string, batchSize int) ([]ScoreRecord, error) {
	rep, err := a.Run(ctx, input, checkpoint, batchSize)
	if rep == nil {
		return nil, err
	}
	return rep.Records, err
}

// Run is Predict returning the full report.
func (a *AestheticsPredictor) Run(ctx context.Context, input, checkpoint string, batchSize int) (*Report, error) {
	reqs, err := a.resolver.Resolve(ctx, input)
	if err != nil {
		return nil, err
	}
	records, runErr := a.pipe.Run(ctx, Job{
		Requests:   reqs,
		Metrics:    []metrics.Descriptor{a.desc},
		Checkpoint: checkpoint,
		Batch:      BatchOptions{Size: batchSize},
		Precision:  AestheticsPrecision,
	})
	rep := newReport("aesthetics", input, []string{a.desc.ID}, records)
	rep.Checkpoint = checkpoint
	if err := a.opts.finish(ctx, a.pipe.log, rep, AestheticsPrecision); err != nil && runErr == nil {
		runErr = err
	}
	return rep, runErr
}

// SpeechOptions configure a SpeechScorePredictor.
type SpeechOptions struct {
	BatchSize int
	// Window scores long audio in windows and averages them.
	Window time.Duration
	// ScoreRate replaces the default scoring rate of the selected metrics.
	// Metrics pinned to another rate keep theirs.
	ScoreRate int
	ReportOptions
}

// SpeechScorePredictor scores test audio, and optionally reference audio,
// with a fixed set of speech metrics chosen at construction.
type SpeechScorePredictor struct {
	pipe     *Pipeline
	resolver *Resolver
	metrics  []metrics.Descriptor
	opts     SpeechOptions
}

// NewSpeechScorePredictor validates ids against the registry before any
// input is touched. An empty ids selects every registered speech metric.
func NewSpeechScorePredictor(p *Pipeline, r *Resolver, ids []string, opts SpeechOptions) (*SpeechScorePredictor, error) {
	var ds []metrics.Descriptor
	if len(ids) == 0 {
		ds = p.reg.Select(func(d metrics.Descriptor) bool { return metrics.IsSpeech(d.ID) })
		if len(ds) == 0 {
			return nil, fmt.Errorf("no speech metrics registered")
		}
	} else {
		var err error
		if ds, err = p.reg.ResolveAll(ids); err != nil {
			return nil, err
		}
	}
	if opts.ScoreRate > 0 {
		for i := range ds {
			if ds[i].SampleRate == metrics.DefaultScoreRate {
				ds[i].SampleRate = opts.ScoreRate
			}
		}
	}
	if r == nil {
		r = &Resolver{}
	}
	return &SpeechScorePredictor{pipe: p, resolver: r, metrics: ds, opts: opts}, nil
}

// Metrics returns the selected metric ids in scoring order.
func (s *SpeechScorePredictor) Metrics() []string {
	ids := make([]string, len(s.metrics))
	for i, d := range s.metrics {
		ids[i] = d.ID
	}
	return ids
}

// Predict scores testPath against referencePath, which may be empty.
// Reference-based metrics record a constraint violation for requests
// without a reference; the rest still score.
func (s *SpeechScorePredictor) Predict(ctx context.Context, testPath, referencePath string) ([]ScoreRecord, error) {
	rep, err := s.Run(ctx, testPath, referencePath)
	if rep == nil {
		return nil, err
	}
	return rep.Records, err
}

// Run is Predict returning the full report.
func (s *SpeechScorePredictor) Run(ctx context.Context, testPath, referencePath string) (*Report, error) {
	reqs, err := s.resolver.ResolvePair(ctx, testPath, referencePath)
	if err != nil {
		return nil, err
	}
	records, runErr := s.pipe.Run(ctx, Job{
		Requests:  reqs,
		Metrics:   s.metrics,
		Batch:     BatchOptions{Size: s.opts.BatchSize, Window: s.opts.Window},
		Precision: SpeechPrecision,
	})
	rep := newReport("speechscore", testPath, s.Metrics(), records)
	rep.Reference = referencePath
	if err := s.opts.finish(ctx, s.pipe.log, rep, SpeechPrecision); err != nil && runErr == nil {
		runErr = err
	}
	return rep, runErr
}
