package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/maastricht-university/audioscore/metrics"
)

// Options configure a Pipeline.
type Options struct {
	Log logrus.FieldLogger
	// Retries is passed to the engine.
	Retries int
	// MaxParallel bounds how many metrics are scored at once; values
	// below 1 mean 1.
	MaxParallel int
	Cache       Cache
}

// Pipeline scores resolved requests with a set of metrics.
type Pipeline struct {
	reg      *metrics.Registry
	models   *metrics.Models
	engine   *Engine
	log      logrus.FieldLogger
	parallel int
}

func NewPipeline(reg *metrics.Registry, models *metrics.Models, opts Options) *Pipeline {
	log := opts.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Pipeline{
		reg:      reg,
		models:   models,
		engine:   &Engine{Retries: opts.Retries, Cache: opts.Cache, Log: log},
		log:      log,
		parallel: max(opts.MaxParallel, 1),
	}
}

// Registry returns the metric registry the pipeline resolves against.
func (p *Pipeline) Registry() *metrics.Registry { return p.reg }

// Job is one scoring call.
type Job struct {
	Requests   []*Request
	Metrics    []metrics.Descriptor
	Checkpoint string
	Batch      BatchOptions
	// Precision is the number of decimal places kept; negative keeps all.
	Precision int
}

// Run scores every request with every metric and returns one record per
// request, in request order. Per-pair failures are recorded in the records.
// If ctx is done before all work started the records are still complete,
// with unscored pairs marked canceled, and ctx.Err() is returned alongside.
func (p *Pipeline) Run(ctx context.Context, job Job) ([]ScoreRecord, error) {
	start := time.Now()
	results := make([]MetricResult, len(job.Metrics))
	sem := make(chan struct{}, p.parallel)
	var wg sync.WaitGroup
	for i, d := range job.Metrics {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			results[i] = p.runMetric(ctx, job, d)
		}()
	}
	wg.Wait()

	records := Aggregate(job.Requests, results, job.Precision)
	failed := 0
	for _, r := range records {
		if !r.OK() {
			failed++
		}
	}
	p.log.WithFields(logrus.Fields{
		"requests": len(records),
		"metrics":  len(job.Metrics),
		"failed":   failed,
		"took":     time.Since(start).Round(time.Millisecond),
	}).Info("scoring finished")
	return records, ctx.Err()
}

func (p *Pipeline) runMetric(ctx context.Context, job Job, d metrics.Descriptor) MetricResult {
	log := p.log.WithField("metric", d.ID)
	if ctx.Err() != nil {
		return MetricResult{
			Plan: &Plan{Metric: d},
			Err:  &RequestError{Metric: d.ID, Reason: "canceled before scoring", Err: ErrCanceled},
		}
	}
	backend, err := p.models.Get(ctx, d, job.Checkpoint)
	if err != nil {
		log.WithError(err).Error("backend unavailable")
		kind := ErrScoring
		if ctx.Err() != nil {
			kind = ErrCanceled
		}
		return MetricResult{
			Plan: &Plan{Metric: d},
			Err:  &RequestError{Metric: d.ID, Reason: "backend unavailable: " + err.Error(), Err: kind},
		}
	}
	plan := MakeBatches(job.Requests, d, job.Batch)
	log.WithFields(logrus.Fields{"slots": len(plan.Slots), "batches": len(plan.Batches), "rejected": len(plan.Failures)}).Debug("planned")
	return MetricResult{Plan: plan, Outcomes: p.engine.Run(ctx, plan, backend, job.Checkpoint)}
}
