package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/vegplot-etl/internal/correct"
	"github.com/couchcryptid/vegplot-etl/internal/domain"
	"github.com/couchcryptid/vegplot-etl/internal/pipeline"
)

func newCorrectCmd(a *app) *cobra.Command {
	var issuesDir string

	cmd := &cobra.Command{
		Use:   "correct DIR",
		Short: "Cross-check a processed export and drop incomplete sites and visits",
		Long: `correct reads every processed table in DIR, applies the cross-table
corrections and writes the corrected tables to --out (default DIR/corrected).
Sites and visits that were dropped are listed in issues_YYYYMMDD.csv.`,
		Args: cobra.ExactArgs(1),
		RunE: a.runE(func(ctx context.Context, args []string) error {
			refs, err := a.references(ctx)
			if err != nil {
				return err
			}
			boundary, err := a.boundary()
			if err != nil {
				return err
			}

			c := correct.New(correct.Options{
				Dir:       args[0],
				OutDir:    a.outPath,
				IssuesDir: issuesDir,
				Elements:  refs.AbioticElements(),
				Boundary:  boundary,
			}, a.logger)

			res, issuesPath, err := c.Run(ctx)
			if err != nil {
				return err
			}
			a.metrics.Findings.WithLabelValues("correct", string(domain.SeverityError)).Add(float64(res.Report.Count(domain.SeverityError)))
			a.metrics.Findings.WithLabelValues("correct", string(domain.SeverityWarn)).Add(float64(res.Report.Count(domain.SeverityWarn)))

			if a.reportPath != "" {
				if err := pipeline.WriteReport(a.reportPath, res.Report); err != nil {
					return err
				}
			}
			a.logger.Info("correction complete", "issues", len(res.Issues), "issues_file", issuesPath)

			if a.strict && res.Report.HasErrors() {
				return fmt.Errorf("%w: corrections have %d error findings", pipeline.ErrStrictQC, res.Report.Count(domain.SeverityError))
			}
			return nil
		}),
	}
	cmd.Flags().StringVar(&issuesDir, "issues", "", "directory for the issues file (default DIR/quality_check_issues)")
	return cmd
}
