package main

import (
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	rhythm "github.com/ieee0824/rhythm-go"
	"github.com/ieee0824/rhythm-go/config"
	"github.com/ieee0824/rhythm-go/internal/logger"
	"github.com/ieee0824/rhythm-go/internal/metrics"
	"github.com/ieee0824/rhythm-go/store"
)

// app holds what every subcommand shares once the config is loaded.
type app struct {
	configPath  string
	logLevel    string
	dumpMetrics bool

	cfg     *config.Config
	logger  *zap.Logger
	reg     *prometheus.Registry
	metrics *metrics.Collector
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "rhythm",
		Short:         "Fit speaker rhythm profiles and convert segment durations",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return a.setup()
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			return a.teardown(cmd.ErrOrStderr())
		},
	}
	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "path to YAML config file")
	pf.StringVar(&a.logLevel, "log-level", "", "log level override (debug, info, warn, error)")
	pf.BoolVar(&a.dumpMetrics, "metrics", false, "print metrics in Prometheus text format to stderr on exit")

	root.AddCommand(
		newFitCmd(a),
		newConvertCmd(a),
		newRatioCmd(a),
		newExportCmd(a),
		newProfilesCmd(a),
		newInspectCmd(a),
	)
	return root
}

func (a *app) setup() error {
	cfg, err := config.NewLoader().WithConfigPath(a.configPath).Load()
	if err != nil {
		return err
	}
	lc := cfg.Logger()
	if a.logLevel != "" {
		lc.Level = a.logLevel
	}
	l, err := logger.New(lc)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = l
	a.reg = prometheus.NewRegistry()
	a.metrics = metrics.NewCollector(cfg.Metrics.Namespace, a.reg)
	return nil
}

func (a *app) teardown(w io.Writer) error {
	_ = a.logger.Sync()
	if !a.dumpMetrics {
		return nil
	}
	families, err := a.reg.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("write metrics: %w", err)
		}
	}
	return nil
}

func (a *app) converterOptions() []rhythm.Option {
	return []rhythm.Option{
		rhythm.WithVocabulary(a.cfg.Vocab()),
		rhythm.WithDegeneratePolicy(a.cfg.DegeneratePolicy()),
		rhythm.WithLogger(a.logger),
		rhythm.WithMetrics(a.metrics),
	}
}

func (a *app) openStore() (*store.Store, error) {
	return store.Open(a.cfg.Store.Path, a.logger)
}
