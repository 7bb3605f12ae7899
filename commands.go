package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	cfg "github.com/maastricht-university/audioscore/config"
	"github.com/maastricht-university/audioscore/metrics"
	"github.com/maastricht-university/audioscore/orchestrator"
	"github.com/maastricht-university/audioscore/store"
)

var (
	configPath string
	logLevel   string
	outputDir  string
	format     string
	mean       bool
	noSave     bool
	jsonOut    bool

	conf   *cfg.Root
	logger = logrus.New()
)

var rootCmd = &cobra.Command{
	Use:   "audioscore",
	Short: "Score audio aesthetics and speech quality",
	Long: `audioscore runs audio files through aesthetic and speech-quality metrics
served by remote model services and reports per-file scores.

Configuration is read from --config, config/$CONFIG_ENV/config.yaml or
src/shared/config.yaml, with AUDIOSCORE_* environment overrides. A .env
file in the working directory is loaded first.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load .env: %w", err)
		}
		c, err := cfg.Load(configPath)
		if err != nil {
			return err
		}
		flags := cmd.Flags()
		if flags.Changed("log-level") {
			c.Pipeline.LogLvl = logLevel
		}
		if flags.Changed("output-dir") {
			c.Paths.Outputs = outputDir
			c.Output.Sink = "local"
		}
		if flags.Changed("format") {
			c.Output.Format = format
		}
		if flags.Changed("mean") {
			c.Output.Mean = mean
		}
		if noSave {
			c.Paths.Outputs = ""
			c.Output.Sink = "local"
		}
		lvl, err := logrus.ParseLevel(c.Pipeline.LogLvl)
		if err != nil {
			return err
		}
		logger.SetLevel(lvl)
		logger.SetOutput(os.Stderr)
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
		conf = c
		return nil
	},
}

// Execute runs the root command, canceling on SIGINT or SIGTERM.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

var aestheticsCmd = &cobra.Command{
	Use:   "aesthetics <input>",
	Short: "Score content enjoyment, usefulness, production complexity and quality",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(conf, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		ckpt, _ := cmd.Flags().GetString("ckpt")
		if ckpt == "" {
			ckpt = conf.Scoring.Checkpoint
		}
		batch, _ := cmd.Flags().GetInt("batch-size")
		if batch <= 0 {
			batch = conf.Scoring.BatchSize
		}

		pred, err := orchestrator.NewAestheticsPredictor(a.pipe, a.resolver, a.report)
		if err != nil {
			return err
		}
		rep, err := pred.Run(cmd.Context(), args[0], ckpt, batch)
		a.finish(cmd.Context(), rep)
		if rep != nil {
			if perr := printReport(rep); perr != nil {
				return perr
			}
		}
		return err
	},
}

var speechCmd = &cobra.Command{
	Use:   "speech <test> [reference]",
	Short: "Score speech quality, optionally against reference audio",
	Long: `Score speech quality with reference-free and reference-based metrics.

test and reference may both be files or directories; directory pairs are
matched by file name. Reference-based metrics are reported as constraint
violations for inputs without a reference.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		ids, _ := flags.GetStringSlice("metrics")
		if len(ids) == 0 {
			ids = conf.Scoring.Metrics
		}
		opts := orchestrator.SpeechOptions{
			BatchSize: conf.Scoring.BatchSize,
			Window:    conf.Scoring.Window,
			ScoreRate: conf.Scoring.ScoreRate,
		}
		if flags.Changed("batch-size") {
			opts.BatchSize, _ = flags.GetInt("batch-size")
		}
		if flags.Changed("window") {
			opts.Window, _ = flags.GetDuration("window")
		}
		if flags.Changed("score-rate") {
			opts.ScoreRate, _ = flags.GetInt("score-rate")
		}

		a, err := newApp(conf, logger)
		if err != nil {
			return err
		}
		defer a.Close()
		opts.ReportOptions = a.report

		pred, err := orchestrator.NewSpeechScorePredictor(a.pipe, a.resolver, ids, opts)
		if err != nil {
			return err
		}
		var reference string
		if len(args) == 2 {
			reference = args[1]
		}
		rep, err := pred.Run(cmd.Context(), args[0], reference)
		a.finish(cmd.Context(), rep)
		if rep != nil {
			if perr := printReport(rep); perr != nil {
				return perr
			}
		}
		return err
	},
}

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "List the registered metrics and their input constraints",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		reg, err := newRegistry(conf)
		if err != nil {
			return err
		}
		all := reg.Select(func(metrics.Descriptor) bool { return true })
		fmt.Fprintln(cmd.OutOrStdout(), metricsTable(all))
		return nil
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent scoring runs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		h, err := store.OpenHistory(conf.Paths.History)
		if err != nil {
			return err
		}
		defer h.Close()
		runs, err := h.Runs(cmd.Context(), limit)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), historyTable(runs))
		return nil
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configPath, "config", "", "config file (default: config/$CONFIG_ENV/config.yaml)")
	pf.StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	pf.StringVarP(&outputDir, "output-dir", "o", "", "write the report below this directory")
	pf.StringVar(&format, "format", "json", "report format (json or yaml)")
	pf.BoolVar(&mean, "mean", false, "include per-metric averages in the report")
	pf.BoolVar(&noSave, "no-save", false, "do not write a report file")
	pf.BoolVar(&jsonOut, "json", false, "print the report as JSON instead of a table")

	aestheticsCmd.Flags().String("ckpt", "", "checkpoint identifier (default: scoring.checkpoint)")
	aestheticsCmd.Flags().Int("batch-size", 0, "items per backend call (default: scoring.batch_size)")

	speechCmd.Flags().StringSlice("metrics", nil, "metrics to compute, e.g. PESQ,STOI,DNSMOS (default: all)")
	speechCmd.Flags().Int("batch-size", 0, "items per backend call (default: scoring.batch_size)")
	speechCmd.Flags().Duration("window", 0, "score in windows of this length and average (e.g. 10s)")
	speechCmd.Flags().Int("score-rate", 0, "sample rate for metrics scored at the default rate")

	historyCmd.Flags().Int("limit", 20, "number of runs to show")

	rootCmd.AddCommand(aestheticsCmd, speechCmd, metricsCmd, historyCmd)
}

func printReport(rep *orchestrator.Report) error {
	if jsonOut {
		b, _, err := rep.Encode("json")
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(b)
		return err
	}
	fmt.Println(titleStyle.Render(strings.ToUpper(rep.Kind) + " " + rep.RunID))
	fmt.Println(recordsTable(rep))
	fmt.Printf("%s %d  %s %d  %s %s\n",
		keyStyle.Render("requests"), len(rep.Records),
		keyStyle.Render("with errors"), rep.Failed(),
		keyStyle.Render("generated"), rep.GeneratedAt.Format(time.RFC3339))
	return nil
}
