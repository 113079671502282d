package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"normalize/internal/logger"

	// register all backends with the storage factory.
	// the pipeline selects which one to use.
	_ "normalize/internal/storage/all"
)

// global flags shared by every subcommand
type rootFlags struct {
	config         string
	logLevel       string
	logFormat      string
	metricsBackend string
	pushgatewayURL string
	statsdAddr     string
}

var flags rootFlags

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "normalize",
	Short: "Normalize a flat resource into fact and dimension tables",
	Long: `normalize streams a CSV or JSON resource, extracts groups of repeated
fields into dimension tables keyed by stable integer ids, and writes the
rewritten fact table and every dimension table to the configured database.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() {
	if err := RootCmd.Execute(); err != nil {
		l, logErr := logger.New(logger.Config{Level: "debug", Format: "console"})
		if logErr == nil {
			l.Error("command failed", zap.Error(err))
			_ = l.Sync()
		} else {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

func init() {
	pf := RootCmd.PersistentFlags()
	pf.StringVarP(&flags.config, "config", "c", "configs/pipelines/sales.yaml", "pipeline config path (JSON or YAML)")
	pf.StringVar(&flags.logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	pf.StringVar(&flags.logFormat, "log-format", "console", "log format (console, json)")
	pf.StringVar(&flags.metricsBackend, "metrics-backend", "", "metrics backend (pushgateway, datadog, none); env METRICS_BACKEND")
	pf.StringVar(&flags.pushgatewayURL, "pushgateway-url", "", "Pushgateway base URL; env PUSHGATEWAY_URL")
	pf.StringVar(&flags.statsdAddr, "statsd-addr", "", "DogStatsD address; env STATSD_ADDR")
}
