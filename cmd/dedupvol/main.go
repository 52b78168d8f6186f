// Command dedupvol creates, inspects and copies deduplicating volumes.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"

	"github.com/INLOpen/dedupstore/config"
	"github.com/INLOpen/dedupstore/sys"
	"github.com/INLOpen/dedupstore/volume"
	"github.com/olekukonko/tablewriter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

var (
	configPath  string
	logLevel    string
	showMetrics bool
)

// env is what every subcommand runs with; it is built before the command
// runs and torn down after.
type env struct {
	cfg      *config.Config
	logger   *slog.Logger
	closer   io.Closer
	registry *prometheus.Registry
	metrics  *volume.Metrics
}

var app env

var rootCmd = &cobra.Command{
	Use:               "dedupvol [command] (flags)",
	Short:             "dedup volume introspection tool",
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return teardown(cmd.OutOrStderr())
	},
}

func main() {
	cobra.EnableCommandSorting = false
	rootCmd.AddCommand(
		createCmd,
		configCmd,
		statsCmd,
		verifyCmd,
		dumpCmd,
		loadCmd,
	)
	rootCmd.PersistentFlags().StringVar(
		&configPath, "config", "dedupvol.yaml", "path to the YAML configuration")
	rootCmd.PersistentFlags().StringVar(
		&logLevel, "log-level", "", "override the configured log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(
		&showMetrics, "metrics", false, "print volume metrics when the command finishes")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setup(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	logger, closer, err := config.NewLogger(cfg.Logging)
	if err != nil {
		return err
	}

	sys.SetDebugMode(cfg.Volume.DebugFiles)
	if cfg.Volume.DebugFiles {
		sys.SetDebugLogger(logger)
	}
	sys.SetDefaultLockStaleTTL(config.ParseDuration(cfg.Volume.LockStaleTTL, sys.DefaultLockStaleTTL, logger))

	app = env{cfg: cfg, logger: logger, closer: closer}
	if cfg.Metrics.Enabled || showMetrics {
		app.registry = prometheus.NewRegistry()
		app.metrics = volume.NewMetrics(cfg.Metrics.Namespace)
		if err := app.metrics.Register(app.registry); err != nil {
			return err
		}
	}
	return nil
}

func teardown(out io.Writer) error {
	if app.cfg != nil && app.cfg.Volume.DebugFiles {
		sys.PrintMapFiles(out)
	}
	if app.registry != nil {
		if err := printMetrics(out, app.registry); err != nil {
			return err
		}
	}
	if app.closer != nil {
		return app.closer.Close()
	}
	return nil
}

// volumeOptions returns the configured volume options with the logger and
// metrics of this run.
func (e *env) volumeOptions() (volume.Options, error) {
	opts, err := e.cfg.Volume.VolumeOptions()
	if err != nil {
		return volume.Options{}, err
	}
	opts.Logger = e.logger
	opts.Metrics = e.metrics
	return opts, nil
}

func printMetrics(out io.Writer, reg prometheus.Gatherer) error {
	families, err := reg.Gather()
	if err != nil {
		return err
	}
	sort.Slice(families, func(i, j int) bool { return families[i].GetName() < families[j].GetName() })

	tw := tablewriter.NewWriter(out)
	tw.SetHeader([]string{"metric", "value"})
	tw.SetAlignment(tablewriter.ALIGN_RIGHT)
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			var value string
			switch {
			case m.GetCounter() != nil:
				value = fmt.Sprintf("%.0f", m.GetCounter().GetValue())
			case m.GetHistogram() != nil:
				h := m.GetHistogram()
				value = fmt.Sprintf("n=%d sum=%.6fs", h.GetSampleCount(), h.GetSampleSum())
			default:
				continue
			}
			tw.Append([]string{mf.GetName(), value})
		}
	}
	tw.Render()
	return nil
}
