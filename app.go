package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/maastricht-university/audioscore/clients"
	cfg "github.com/maastricht-university/audioscore/config"
	"github.com/maastricht-university/audioscore/metrics"
	"github.com/maastricht-university/audioscore/orchestrator"
	"github.com/maastricht-university/audioscore/store"
)

// app wires configuration into a pipeline and owns what must be closed.
type app struct {
	conf     *cfg.Root
	log      *logrus.Logger
	pipe     *orchestrator.Pipeline
	resolver *orchestrator.Resolver
	history  *store.History
	report   orchestrator.ReportOptions
	closers  []io.Closer
}

func httpFor(svc cfg.Service) (*clients.HTTP, error) {
	codec, err := clients.CodecByName(svc.Codec)
	if err != nil {
		return nil, err
	}
	return clients.NewHTTP(
		clients.WithTimeout(svc.Timeout),
		clients.WithRateLimit(svc.RateLimit, svc.Burst),
		clients.WithCodec(codec),
	), nil
}

// newRegistry registers the built-in metrics against the configured
// services and seals the registry.
func newRegistry(conf *cfg.Root) (*metrics.Registry, error) {
	aes, err := httpFor(conf.Services.Aesthetics)
	if err != nil {
		return nil, fmt.Errorf("services.aesthetics: %w", err)
	}
	speech, err := httpFor(conf.Services.SpeechScore)
	if err != nil {
		return nil, fmt.Errorf("services.speechscore: %w", err)
	}
	reg := metrics.NewRegistry()
	err = metrics.RegisterBuiltins(reg,
		clients.AestheticsLoader(aes, conf.Services.Aesthetics.URL),
		clients.SpeechLoaders(speech, conf.Services.SpeechScore.URL),
		conf.Overrides(),
	)
	if err != nil {
		return nil, err
	}
	reg.Seal()
	return reg, nil
}

func newApp(conf *cfg.Root, log *logrus.Logger) (*app, error) {
	reg, err := newRegistry(conf)
	if err != nil {
		return nil, err
	}
	a := &app{conf: conf, log: log}
	models := metrics.NewModels()
	a.closers = append(a.closers, models)

	opts := orchestrator.Options{
		Log:         log,
		Retries:     conf.Scoring.Retries,
		MaxParallel: conf.Scoring.MaxParallel,
	}
	if conf.Cache.Enabled {
		cache, err := store.OpenCache(store.CacheOptions{Dir: conf.Paths.Cache, TTL: conf.Cache.TTL, Log: log})
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("open score cache: %w", err)
		}
		a.closers = append(a.closers, cache)
		opts.Cache = cache
	}
	if conf.History.Enabled {
		h, err := store.OpenHistory(conf.Paths.History)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("open history: %w", err)
		}
		a.closers = append(a.closers, h)
		a.history = h
	}

	s3c := store.NewS3Client(store.S3Config{
		Region:    conf.S3.Region,
		Endpoint:  conf.S3.Endpoint,
		PathStyle: conf.S3.PathStyle,
		AccessKey: conf.S3.AccessKey,
		SecretKey: conf.S3.SecretKey,
	})
	fetcher := store.NewS3Fetcher(s3c, conf.Paths.Downloads)
	a.closers = append(a.closers, fetcher)
	a.resolver = &orchestrator.Resolver{
		Recursive: conf.Scoring.Recursive,
		Fetcher:   fetcher,
	}
	a.report = orchestrator.ReportOptions{Mean: conf.Output.Mean, Format: conf.Output.Format}
	switch conf.Output.Sink {
	case "s3":
		a.report.Sink = store.NewS3Sink(s3c, conf.S3.Bucket, conf.S3.Prefix)
	default:
		if conf.Paths.Outputs != "" {
			a.report.Sink = orchestrator.DirSink(conf.Paths.Outputs)
		}
	}
	a.pipe = orchestrator.NewPipeline(reg, models, opts)
	return a, nil
}

// finish records rep in the history database when one is configured.
func (a *app) finish(ctx context.Context, rep *orchestrator.Report) {
	if a.history == nil || rep == nil {
		return
	}
	if err := a.history.Record(context.WithoutCancel(ctx), rep); err != nil {
		a.log.WithError(err).Warn("history not recorded")
	}
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i].Close())
	}
	a.closers = nil
	return errors.Join(errs...)
}
