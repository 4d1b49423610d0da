package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/vegplot-etl/internal/config"
	"github.com/couchcryptid/vegplot-etl/internal/observability"
	"github.com/couchcryptid/vegplot-etl/internal/recipe"
)

const (
	metricsJob     = "vegetl"
	pushTimeout    = 10 * time.Second
	defaultDataset = "none"
)

// app carries what every command shares once the root pre-run has
// loaded configuration.
type app struct {
	recipePath string
	strict     bool
	reportPath string
	outPath    string

	cfg     *config.Config
	logger  *slog.Logger
	metrics *observability.Metrics
	dataset string
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "vegetl",
		Short: "Process vegetation plot datasets into AKVEG ingestion tables",
		Long: `vegetl reads a dataset's field exports, reshapes them to the AKVEG
ingestion templates and runs quality control over the result.

Dataset specifics live in a YAML recipe (--recipe). Database, sinks and
geocoding are configured with environment variables.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&a.recipePath, "recipe", "r", "", "dataset recipe (YAML)")
	flags.BoolVar(&a.strict, "strict", false, "fail before writing when QC finds errors")
	flags.StringVar(&a.reportPath, "report", "", "write QC findings to this CSV file")
	flags.StringVarP(&a.outPath, "out", "o", "", "override the output path")

	root.AddCommand(tableCommands(a)...)
	root.AddCommand(
		newRunCmd(a),
		newCorrectCmd(a),
		newRedactCmd(a),
		newQueryCmd(a),
		newRefsCmd(a),
	)
	return root
}

func (a *app) init() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	a.cfg = cfg
	a.logger = observability.NewLogger(cfg)
	a.metrics = observability.NewMetrics()
	a.dataset = defaultDataset
	slog.SetDefault(a.logger)
	return nil
}

// loadRecipe reads the --recipe file.
func (a *app) loadRecipe() (*recipe.Recipe, error) {
	if a.recipePath == "" {
		return nil, errors.New("--recipe is required")
	}
	r, err := recipe.Load(a.recipePath)
	if err != nil {
		return nil, err
	}
	a.dataset = r.Dataset
	a.logger = a.logger.With("dataset", r.Dataset)
	return r, nil
}

// runE adapts fn to cobra and pushes the run's metrics whether or not fn
// succeeded.
func (a *app) runE(fn func(ctx context.Context, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		err := fn(cmd.Context(), args)
		a.pushMetrics(cmd.Context())
		return err
	}
}

func (a *app) pushMetrics(ctx context.Context) {
	if a.cfg == nil || a.cfg.PushgatewayURL == "" {
		return
	}
	// The run context may already be cancelled; metrics are still worth sending.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), pushTimeout)
	defer cancel()
	if err := a.metrics.Push(ctx, a.cfg.PushgatewayURL, metricsJob, a.dataset); err != nil {
		a.logger.Warn("metrics push failed", "url", a.cfg.PushgatewayURL, "error", err)
		return
	}
	a.logger.Debug("metrics pushed", "url", a.cfg.PushgatewayURL)
}
