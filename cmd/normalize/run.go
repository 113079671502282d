package main

import (
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"normalize/internal/logger"
	"normalize/internal/metrics"
	"normalize/internal/metrics/datadog"
	"normalize/internal/metrics/prompush"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a normalize pipeline",
	Long: `Loads the pipeline config, reads the existing dimension tables, streams
the source through the normalizer and writes the fact and dimension tables.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		p, err := loadPipeline(flags.config, cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		log, err := logger.New(logger.Config{Level: flags.logLevel, Format: flags.logFormat})
		if err != nil {
			return err
		}
		defer func() { _ = log.Sync() }()

		flush := setupMetrics(flags, p.Job, log)
		defer flush()

		log.Info("pipeline",
			zap.String("config", flags.config),
			zap.String("source", p.Source.Kind),
			zap.String("parser", p.Parser.Kind),
			zap.String("storage", p.Storage.Kind),
			zap.String("table", p.Storage.DB.Table),
			zap.Int("groups", len(p.Normalize.Groups)),
		)
		_, err = runPipeline(cmd.Context(), *p, log)
		return err
	},
}

func init() {
	RootCmd.AddCommand(runCmd)
}

// setupMetrics installs the metrics backend chosen by flag, then env, and
// returns the function that flushes it at the end of the run. Backend
// failures only disable metrics.
func setupMetrics(f rootFlags, job string, log *zap.Logger) func() {
	name := pick(f.metricsBackend, os.Getenv("METRICS_BACKEND"), "none")

	var b metrics.Backend
	switch name {
	case "pushgateway":
		url := pick(f.pushgatewayURL, os.Getenv("PUSHGATEWAY_URL"), "http://localhost:9091")
		pb, err := prompush.NewBackend(job, url)
		if err != nil {
			log.Warn("metrics: prom push backend failed; using nop", zap.Error(err))
			return func() {}
		}
		log.Info("metrics", zap.String("backend", name), zap.String("url", url))
		b = pb
	case "datadog":
		addr := pick(f.statsdAddr, os.Getenv("STATSD_ADDR"), "127.0.0.1:8125")
		db, err := datadog.NewBackend(datadog.Config{
			Addr:       addr,
			Namespace:  "normalize.",
			GlobalTags: []string{"service:normalize"},
		})
		if err != nil {
			log.Warn("metrics: datadog backend failed; using nop", zap.Error(err))
			return func() {}
		}
		log.Info("metrics", zap.String("backend", name), zap.String("addr", addr))
		b = db
	case "none":
		log.Debug("metrics: disabled")
		return func() {}
	default:
		log.Warn("metrics: unknown backend; metrics disabled", zap.String("backend", name))
		return func() {}
	}

	metrics.SetBackend(b)
	return func() {
		if err := metrics.Flush(); err != nil {
			log.Warn("metrics: flush error", zap.Error(err))
		}
	}
}

func pick(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
