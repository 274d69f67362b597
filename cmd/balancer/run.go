package main

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"label-balancer/internal/balance"
	"label-balancer/internal/config"
	"label-balancer/internal/manifest"
	"label-balancer/internal/metrics"
	"label-balancer/internal/transform"
)

var runFlags balanceFlags

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Balance the dataset",
	Long: `Copy every label into the output tree, then augment the smaller category
until both categories hold the same number of images.

A dataset that cannot be balanced with the configured multiplier is reported
and left untouched; this is not an error.

Example:
  balancer run --in-dir flow_600_200 --out-dir /data
  balancer run --config balancer.yaml --engine native --seed 42`,
	RunE: runBalance,
}

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Print counts, the feasibility check and a sampled allocation without writing",
	RunE:  runPlan,
}

func init() {
	runFlags.register(runCmd.Flags())
	runFlags.register(planCmd.Flags())
}

// setup loads and validates config and opens the engine.
func setup(cmd *cobra.Command) (config.Config, *logrus.Logger, transform.Engine, error) {
	cfg, err := loadConfig(cmd.Flags(), &runFlags)
	if err != nil {
		return cfg, nil, nil, err
	}
	logger := newLogger(cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, logger, nil, err
	}
	if err := requireEngine(cfg.Engine, transform.Names()); err != nil {
		return cfg, logger, nil, err
	}
	engine, err := transform.Open(cfg.Engine, logger)
	if err != nil {
		return cfg, logger, nil, err
	}
	return cfg, logger, engine, nil
}

func runBalance(cmd *cobra.Command, args []string) error {
	cfg, logger, engine, err := setup(cmd)
	if err != nil {
		return err
	}
	defer engine.Close()

	ctx, stop := signalContext()
	defer stop()

	opts := balance.Options{Progress: os.Stderr}
	if cfg.Manifest != "" {
		store, err := manifest.Open(cfg.Manifest)
		if err != nil {
			return err
		}
		defer store.Close()
		logger.WithField("manifest", store.Path()).Info("Recording run manifest")
		opts.Ledger = store
	}
	if cfg.MetricsFile != "" {
		opts.Metrics = metrics.New()
	}

	report, err := balance.New(cfg, engine, logger, opts).Run(ctx)
	if report != nil {
		if werr := report.WriteSummary(cmd.OutOrStdout()); werr != nil {
			logger.WithError(werr).Warn("Failed to print summary")
		}
		logOutcomes(logger, report)
	}
	if opts.Metrics != nil {
		if merr := opts.Metrics.WriteTextfile(cfg.MetricsFile); merr != nil {
			logger.WithError(merr).Warn("Failed to write metrics")
		}
	}
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("interrupted: %w", context.Cause(ctx))
		}
		return err
	}
	return nil
}

func runPlan(cmd *cobra.Command, args []string) error {
	cfg, logger, engine, err := setup(cmd)
	if err != nil {
		return err
	}
	defer engine.Close()

	ctx, stop := signalContext()
	defer stop()

	report, err := balance.New(cfg, engine, logger, balance.Options{}).Plan(ctx)
	if err != nil {
		return err
	}
	return report.WriteSummary(cmd.OutOrStdout())
}

func logOutcomes(logger logrus.FieldLogger, report *balance.Report) {
	for _, p := range report.Plan {
		logger.WithFields(logrus.Fields{
			"label":    p.Label,
			"expected": p.Expected,
		}).Info("Expected final count")
	}
	for _, failed := range report.Failed() {
		logger.WithFields(logrus.Fields{
			"label":   failed.Label,
			"written": failed.Written,
		}).WithError(failed.Err).Warn("Label completed partially")
	}
}
