package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/vegplot-etl/internal/reference"
	"github.com/couchcryptid/vegplot-etl/internal/table"
)

var errConfirm = errors.New("redact deletes data permanently; pass --yes to confirm")

func newRedactCmd(a *app) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "redact",
		Short: "Delete private projects from a database build",
		Long: `redact removes every project flagged private along with its sites,
site visits and visit-level tables, in one transaction. Run it against the
public replica only.`,
		Args: cobra.NoArgs,
		RunE: a.runE(func(ctx context.Context, _ []string) error {
			if !yes {
				return errConfirm
			}
			pg, err := a.openPostgres(ctx)
			if err != nil {
				return err
			}
			defer pg.Close()

			sites, visits, err := pg.PrivateCodes(ctx)
			if err != nil {
				return err
			}
			a.logger.Info("private data found", "sites", len(sites), "site_visits", len(visits))

			result, err := pg.Redact(ctx)
			if err != nil {
				return err
			}
			names := make([]string, 0, len(result))
			for name := range result {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				a.logger.Info("rows deleted", "table", name, "rows", result[name])
			}
			return nil
		}),
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm deletion")
	return cmd
}

// tableQuerier runs read-only SQL against a reference store.
type tableQuerier interface {
	Query(ctx context.Context, query string) (*table.Table, error)
	io.Closer
}

func newQueryCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "query FILE.sql",
		Short: "Run a read-only SQL file and write the result as CSV",
		Long: `query runs the statement in FILE.sql against the reference database
(or the local reference cache when no database is configured) and writes the
rows as CSV to --out, or to stdout.`,
		Args: cobra.ExactArgs(1),
		RunE: a.runE(func(ctx context.Context, args []string) error {
			sql, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read query: %w", err)
			}

			q, err := a.openQuerier(ctx)
			if err != nil {
				return err
			}
			defer q.Close()

			ctx, cancel := context.WithTimeout(ctx, a.cfg.DatabaseTimeout)
			defer cancel()
			t, err := q.Query(ctx, string(sql))
			if err != nil {
				return err
			}
			a.logger.Info("query complete", "file", args[0], "rows", t.Len(), "columns", len(t.Columns))

			if a.outPath != "" {
				return table.WriteFile(a.outPath, t)
			}
			return table.WriteCSV(os.Stdout, t)
		}),
	}
}

func (a *app) openQuerier(ctx context.Context) (tableQuerier, error) {
	if a.cfg.HasDatabase() {
		return a.openPostgres(ctx)
	}
	if a.cfg.ReferenceCache != "" {
		return reference.OpenSQLiteReadOnly(ctx, a.cfg.ReferenceCache)
	}
	return nil, errNoDatabase
}

func newRefsCmd(a *app) *cobra.Command {
	refs := &cobra.Command{
		Use:   "refs",
		Short: "Manage the local reference cache",
	}

	var cachePath string
	pull := &cobra.Command{
		Use:   "pull",
		Short: "Copy the reference tables from the database into a local SQLite cache",
		Args:  cobra.NoArgs,
		RunE: a.runE(func(ctx context.Context, _ []string) error {
			if cachePath == "" {
				cachePath = a.cfg.ReferenceCache
			}
			if cachePath == "" {
				return errors.New("no cache path: set REFERENCE_CACHE or pass --cache")
			}

			pg, err := a.openPostgres(ctx)
			if err != nil {
				return err
			}
			defer pg.Close()

			fetchCtx, cancel := context.WithTimeout(ctx, a.cfg.DatabaseTimeout)
			defer cancel()
			snap, err := reference.Fetch(fetchCtx, pg)
			if err != nil {
				return fmt.Errorf("fetch reference tables: %w", err)
			}

			cache, err := reference.OpenSQLite(cachePath)
			if err != nil {
				return err
			}
			defer cache.Close()
			if err := cache.Store(ctx, snap); err != nil {
				return err
			}
			counts := snap.Counts()
			for name, n := range counts {
				a.metrics.ReferenceRows.WithLabelValues(name).Set(float64(n))
			}
			a.logger.Info("reference cache written", "path", cachePath, "taxa", counts["taxon_all"])
			return nil
		}),
	}
	pull.Flags().StringVar(&cachePath, "cache", "", "cache file (default $REFERENCE_CACHE)")

	refs.AddCommand(pull)
	return refs
}
