package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Scoring.BatchSize != 8 || cfg.Scoring.Retries != 1 || cfg.Scoring.MaxParallel != 4 {
		t.Fatalf("scoring = %+v", cfg.Scoring)
	}
	if cfg.Services.Aesthetics.Timeout != time.Minute || cfg.Services.SpeechScore.Codec != "json" {
		t.Fatalf("services = %+v", cfg.Services)
	}
	if cfg.Output.Sink != "local" || cfg.Paths.Outputs != "outputs" {
		t.Fatalf("output = %+v, paths = %+v", cfg.Output, cfg.Paths)
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	if err := os.MkdirAll(filepath.Join("config", "test"), 0o755); err != nil {
		t.Fatal(err)
	}
	body := `
pipeline:
  log_level: debug
services:
  speechscore:
    url: http://scorer:9000
    codec: msgpack
    timeout: 2m
scoring:
  batch_size: 16
  window: 10s
  metrics: [PESQ, srmr]
metrics:
  NISQA:
    sample_rate: 44100
    max_duration: 30s
`
	if err := os.WriteFile(filepath.Join("config", "test", "config.yaml"), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CONFIG_ENV", "test")
	t.Setenv("AUDIOSCORE_SCORING_RETRIES", "3")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Pipeline.LogLvl != "debug" || cfg.Services.SpeechScore.URL != "http://scorer:9000" {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.Services.SpeechScore.Timeout != 2*time.Minute || cfg.Services.SpeechScore.Codec != "msgpack" {
		t.Fatalf("speechscore = %+v", cfg.Services.SpeechScore)
	}
	if cfg.Scoring.BatchSize != 16 || cfg.Scoring.Window != 10*time.Second || cfg.Scoring.Retries != 3 {
		t.Fatalf("scoring = %+v", cfg.Scoring)
	}
	if len(cfg.Scoring.Metrics) != 2 {
		t.Fatalf("metrics = %v", cfg.Scoring.Metrics)
	}
	o := cfg.Overrides()["nisqa"]
	if o.SampleRate != 44100 || o.MaxDuration != 30*time.Second {
		t.Fatalf("overrides = %+v", cfg.Overrides())
	}
}

func TestLoadExplicitPath(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("missing explicit config accepted")
	}

	p := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(p, []byte("scoring:\n  batch_size: 0\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(p); err == nil {
		t.Fatal("zero batch size accepted")
	}

	p = filepath.Join(t.TempDir(), "s3.yaml")
	if err := os.WriteFile(p, []byte("output:\n  sink: s3\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(p); err == nil {
		t.Fatal("s3 sink without bucket accepted")
	}
}
