package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/vegplot-etl/internal/domain"
	"github.com/couchcryptid/vegplot-etl/internal/pipeline"
	"github.com/couchcryptid/vegplot-etl/internal/recipe"
)

// tableCommand binds a command name to the recipe section it processes.
type tableCommand struct {
	use   string
	kind  string
	short string
}

var tableCmds = []tableCommand{
	{"project", recipe.KindProject, "Build the project table"},
	{"site", recipe.KindSite, "Build the site table"},
	{"visit", recipe.KindSiteVisit, "Build the site visit table"},
	{"environment", recipe.KindEnvironment, "Build the environment table"},
	{"vegcover", recipe.KindVegetation, "Build the vegetation cover table"},
	{"abiotic", recipe.KindAbiotic, "Build the abiotic top cover table"},
	{"tussock", recipe.KindTussock, "Build the whole tussock cover table"},
	{"taxonomy", recipe.KindTaxonomy, "Build the taxonomy code table"},
}

func tableCommands(a *app) []*cobra.Command {
	cmds := make([]*cobra.Command, 0, len(tableCmds))
	for _, tc := range tableCmds {
		cmds = append(cmds, &cobra.Command{
			Use:   tc.use,
			Short: tc.short,
			Long:  fmt.Sprintf("%s from the recipe's %s section.", tc.short, tc.kind),
			Args:  cobra.NoArgs,
			RunE: a.runE(func(ctx context.Context, _ []string) error {
				r, err := a.loadRecipe()
				if err != nil {
					return err
				}
				return a.runTables(ctx, r, []string{tc.kind})
			}),
		})
	}
	return cmds
}

func newRunCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Build every table the recipe describes, in dependency order",
		Args:  cobra.NoArgs,
		RunE: a.runE(func(ctx context.Context, _ []string) error {
			r, err := a.loadRecipe()
			if err != nil {
				return err
			}
			if a.outPath != "" {
				return errors.New("--out applies to single-table commands only")
			}
			var kinds []string
			for _, k := range recipe.Kinds {
				if _, ok := r.Table(k); ok {
					kinds = append(kinds, k)
				}
			}
			return a.runTables(ctx, r, kinds)
		}),
	}
}

// runTables builds each kind in order. Reference data, boundary, geocoder
// and sinks are set up once for the whole run.
func (a *app) runTables(ctx context.Context, r *recipe.Recipe, kinds []string) error {
	for _, kind := range kinds {
		if _, ok := r.Table(kind); !ok {
			return fmt.Errorf("recipe %s has no %s section", r.Dataset, kind)
		}
	}

	refs, err := a.references(ctx)
	if err != nil {
		return err
	}
	boundary, err := a.boundary()
	if err != nil {
		return err
	}
	geocoder, err := a.geocoder()
	if err != nil {
		return err
	}
	s, err := a.openSinks(ctx)
	if err != nil {
		return err
	}
	defer s.close(a)

	deps := pipeline.Deps{
		Logger:   a.logger,
		Metrics:  a.metrics,
		Boundary: boundary,
		Geocoder: geocoder,
	}

	for _, kind := range kinds {
		spec, _ := r.Table(kind)
		output := spec.Output
		if a.outPath != "" {
			output = a.outPath
		}

		transformer, err := pipeline.NewTransformer(kind, r, deps)
		if err != nil {
			return err
		}
		loaders := append([]pipeline.Loader{pipeline.NewCSVLoader(output)}, s.loaders...)
		p := pipeline.New(
			pipeline.NewFileExtractor(kind, spec, refs),
			transformer,
			loaders,
			a.logger,
			a.metrics,
			pipeline.Options{
				Strict:      a.strict,
				ReportPath:  reportPath(a.reportPath, kind, len(kinds) > 1),
				MaxAttempts: a.cfg.LoadMaxAttempts,
			},
		)

		report, err := p.Run(ctx)
		if err != nil {
			return err
		}
		a.logger.Info("table written",
			"table", kind,
			"path", output,
			"errors", report.Count(domain.SeverityError),
			"warnings", report.Count(domain.SeverityWarn),
		)
	}
	return nil
}

// reportPath returns the QC report file for kind. When several tables are
// built in one run, each gets its own file named after the table.
func reportPath(base, kind string, multi bool) string {
	if base == "" || !multi {
		return base
	}
	ext := filepath.Ext(base)
	return strings.TrimSuffix(base, ext) + "_" + kind + ext
}
