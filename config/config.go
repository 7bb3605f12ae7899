package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/maastricht-university/audioscore/metrics"
)

type Service struct {
	URL       string        `mapstructure:"url"`
	Codec     string        `mapstructure:"codec"`
	Timeout   time.Duration `mapstructure:"timeout"`
	RateLimit float64       `mapstructure:"rate_limit"`
	Burst     int           `mapstructure:"burst"`
}
type Services struct {
	Aesthetics  Service `mapstructure:"aesthetics"`
	SpeechScore Service `mapstructure:"speechscore"`
}
type Scoring struct {
	BatchSize   int           `mapstructure:"batch_size"`
	Retries     int           `mapstructure:"retries"`
	MaxParallel int           `mapstructure:"max_parallel"`
	Window      time.Duration `mapstructure:"window"`
	ScoreRate   int           `mapstructure:"score_rate"`
	Checkpoint  string        `mapstructure:"checkpoint"`
	Metrics     []string      `mapstructure:"metrics"`
	Recursive   bool          `mapstructure:"recursive"`
}
type MetricOverride struct {
	SampleRate  int           `mapstructure:"sample_rate"`
	MaxDuration time.Duration `mapstructure:"max_duration"`
}
type Cache struct {
	Enabled bool          `mapstructure:"enabled"`
	TTL     time.Duration `mapstructure:"ttl"`
}
type S3 struct {
	Region    string `mapstructure:"region"`
	Endpoint  string `mapstructure:"endpoint"`
	PathStyle bool   `mapstructure:"path_style"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	// Bucket and Prefix locate reports when output.sink is "s3".
	Bucket string `mapstructure:"bucket"`
	Prefix string `mapstructure:"prefix"`
}
type Root struct {
	Pipeline struct {
		Name    string `mapstructure:"name"`
		Version string `mapstructure:"version"`
		LogLvl  string `mapstructure:"log_level"`
	} `mapstructure:"pipeline"`
	Services Services                  `mapstructure:"services"`
	Scoring  Scoring                   `mapstructure:"scoring"`
	Metrics  map[string]MetricOverride `mapstructure:"metrics"`
	Cache    Cache                     `mapstructure:"cache"`
	History  struct {
		Enabled bool `mapstructure:"enabled"`
	} `mapstructure:"history"`
	Output struct {
		Format string `mapstructure:"format"`
		Sink   string `mapstructure:"sink"`
		Mean   bool   `mapstructure:"mean"`
	} `mapstructure:"output"`
	S3    S3 `mapstructure:"s3"`
	Paths struct {
		Outputs   string `mapstructure:"outputs"`
		Cache     string `mapstructure:"cache"`
		History   string `mapstructure:"history"`
		Downloads string `mapstructure:"downloads"`
	} `mapstructure:"paths"`
}

// EnvPrefix prefixes environment overrides, e.g. AUDIOSCORE_SCORING_BATCH_SIZE.
const EnvPrefix = "AUDIOSCORE"

func setDefaults(v *viper.Viper) {
	v.SetDefault("pipeline.name", "audioscore")
	v.SetDefault("pipeline.version", "dev")
	v.SetDefault("pipeline.log_level", "info")

	for _, svc := range []string{"aesthetics", "speechscore"} {
		v.SetDefault("services."+svc+".codec", "json")
		v.SetDefault("services."+svc+".timeout", 60*time.Second)
		v.SetDefault("services."+svc+".rate_limit", 0.0)
		v.SetDefault("services."+svc+".burst", 1)
	}
	v.SetDefault("services.aesthetics.url", "http://localhost:8010")
	v.SetDefault("services.speechscore.url", "http://localhost:8011")

	v.SetDefault("scoring.batch_size", 8)
	v.SetDefault("scoring.retries", 1)
	v.SetDefault("scoring.max_parallel", 4)
	v.SetDefault("scoring.window", time.Duration(0))
	v.SetDefault("scoring.score_rate", 0)
	v.SetDefault("scoring.checkpoint", "")
	v.SetDefault("scoring.metrics", []string{})
	v.SetDefault("scoring.recursive", false)

	v.SetDefault("cache.enabled", false)
	v.SetDefault("cache.ttl", time.Duration(0))
	v.SetDefault("history.enabled", false)

	v.SetDefault("output.format", "json")
	v.SetDefault("output.sink", "local")
	v.SetDefault("output.mean", false)

	v.SetDefault("s3.region", "us-east-1")
	v.SetDefault("s3.endpoint", "")
	v.SetDefault("s3.path_style", false)
	v.SetDefault("s3.access_key", "")
	v.SetDefault("s3.secret_key", "")
	v.SetDefault("s3.bucket", "")
	v.SetDefault("s3.prefix", "audioscore")

	v.SetDefault("paths.outputs", "outputs")
	v.SetDefault("paths.cache", filepath.Join(".cache", "scores"))
	v.SetDefault("paths.history", filepath.Join(".cache", "history.db"))
	v.SetDefault("paths.downloads", "")
}

// Load reads the configuration. An explicit path must exist; otherwise the
// CONFIG_ENV guesses are tried and built-in defaults apply when none is
// found. Environment variables override both.
func Load(path string) (*Root, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		path = guess()
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config %s: %w", path, err)
		}
	}

	var cfg Root
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &cfg, cfg.validate()
}

func guess() string {
	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	for _, p := range []string{
		filepath.Join("config", env, "config.yaml"),
		filepath.Join("src", "shared", "config.yaml"),
	} {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

func (r *Root) validate() error {
	switch {
	case r.Scoring.BatchSize < 1:
		return fmt.Errorf("config: scoring.batch_size must be positive, got %d", r.Scoring.BatchSize)
	case r.Scoring.Retries < 0:
		return fmt.Errorf("config: scoring.retries must not be negative")
	case r.Output.Sink != "local" && r.Output.Sink != "s3":
		return fmt.Errorf("config: output.sink must be local or s3, got %q", r.Output.Sink)
	case r.Output.Sink == "s3" && r.S3.Bucket == "":
		return fmt.Errorf("config: output.sink is s3 but s3.bucket is empty")
	}
	return nil
}

// Overrides converts the metrics section for metrics.RegisterBuiltins.
func (r *Root) Overrides() map[string]metrics.Override {
	out := make(map[string]metrics.Override, len(r.Metrics))
	for id, m := range r.Metrics {
		out[id] = metrics.Override{SampleRate: m.SampleRate, MaxDuration: m.MaxDuration}
	}
	return out
}
