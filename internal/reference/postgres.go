package reference

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver

	"github.com/couchcryptid/vegplot-etl/internal/domain"
	"github.com/couchcryptid/vegplot-etl/internal/table"
)

const postgresDriver = "pgx"

var sqlOpen = sql.Open

// redactVisitTables hold rows keyed by site_visit_code, dependents first.
var redactVisitTables = []string{
	"soil_horizons",
	"soil_metrics",
	"environment",
	"shrub_structure",
	"tree_structure",
	"ground_cover",
	"abiotic_top_cover",
	"vegetation_cover",
	"whole_tussock_cover",
	"site_visit",
}

// Compile-time contract assertion.
var _ Source = (*Postgres)(nil)

// Postgres reads reference tables from the AKVEG database.
type Postgres struct {
	db     *sql.DB
	logger *slog.Logger
}

// OpenPostgres connects to dsn, retrying the initial ping with exponential
// backoff for up to retry.
func OpenPostgres(ctx context.Context, dsn string, retry time.Duration, logger *slog.Logger) (*Postgres, error) {
	db, err := sqlOpen(postgresDriver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = retry
	attempt := 0
	err = backoff.Retry(func() error {
		attempt++
		if err := db.PingContext(ctx); err != nil {
			logger.Warn("reference database not reachable",
				"attempt", attempt,
				"error", err,
			)
			return err
		}
		return nil
	}, backoff.WithContext(bo, ctx))
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	logger.Info("connected to reference database", "attempts", attempt)
	return &Postgres{db: db, logger: logger}, nil
}

// Close releases the connection pool.
func (p *Postgres) Close() error {
	return p.db.Close()
}

// Taxa returns the full checklist including synonyms.
func (p *Postgres) Taxa(ctx context.Context) ([]domain.Taxon, error) {
	return queryTaxa(ctx, p.db)
}

// GroundElements returns the ground element vocabulary.
func (p *Postgres) GroundElements(ctx context.Context) ([]GroundElement, error) {
	return queryGroundElements(ctx, p.db)
}

// Personnel returns the known observer names.
func (p *Postgres) Personnel(ctx context.Context) ([]string, error) {
	out, err := queryStrings(ctx, p.db, personnelQuery)
	if err != nil {
		return nil, fmt.Errorf("select personnel: %w", err)
	}
	return out, nil
}

// StructuralClasses returns the structural class vocabulary.
func (p *Postgres) StructuralClasses(ctx context.Context) ([]string, error) {
	out, err := queryStrings(ctx, p.db, structuralClassQuery)
	if err != nil {
		return nil, fmt.Errorf("select structural classes: %w", err)
	}
	return out, nil
}

// Dictionary returns allowed values of constrained fields.
func (p *Postgres) Dictionary(ctx context.Context) ([]DictionaryEntry, error) {
	return queryDictionary(ctx, p.db)
}

// Query runs query inside a read-only transaction.
func (p *Postgres) Query(ctx context.Context, query string) (*table.Table, error) {
	tx, err := p.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("begin read-only transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	return queryTable(ctx, tx, query)
}

// PrivateCodes returns the site and site visit codes owned by private projects.
func (p *Postgres) PrivateCodes(ctx context.Context) (sites, visits []string, err error) {
	sites, err = queryStrings(ctx, p.db, privateSitesQuery)
	if err != nil {
		return nil, nil, fmt.Errorf("select private sites: %w", err)
	}
	visits, err = queryStrings(ctx, p.db, privateSiteVisitsQuery)
	if err != nil {
		return nil, nil, fmt.Errorf("select private site visits: %w", err)
	}
	return sites, visits, nil
}

// RedactResult counts deleted rows per table.
type RedactResult map[string]int64

// Redact deletes all data of private projects in one transaction: visit
// level tables, then sites, then the projects themselves.
func (p *Postgres) Redact(ctx context.Context) (RedactResult, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	result, err := redact(ctx, tx)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit redaction: %w", err)
	}
	return result, nil
}

func redact(ctx context.Context, tx *sql.Tx) (RedactResult, error) {
	visits, err := queryStrings(ctx, tx, privateSiteVisitsQuery)
	if err != nil {
		return nil, fmt.Errorf("select private site visits: %w", err)
	}
	sites, err := queryStrings(ctx, tx, privateSitesQuery)
	if err != nil {
		return nil, fmt.Errorf("select private sites: %w", err)
	}

	result := make(RedactResult)
	for _, t := range redactVisitTables {
		n, err := exec(ctx, tx, `DELETE FROM `+t+` WHERE site_visit_code = ANY($1)`, visits)
		if err != nil {
			return nil, fmt.Errorf("delete from %s: %w", t, err)
		}
		result[t] = n
	}

	n, err := exec(ctx, tx, `DELETE FROM site WHERE site_code = ANY($1)`, sites)
	if err != nil {
		return nil, fmt.Errorf("delete from site: %w", err)
	}
	result["site"] = n

	n, err = exec(ctx, tx, `DELETE FROM project WHERE private IS TRUE`)
	if err != nil {
		return nil, fmt.Errorf("delete from project: %w", err)
	}
	result["project"] = n

	return result, nil
}

func exec(ctx context.Context, tx *sql.Tx, stmt string, args ...any) (int64, error) {
	res, err := tx.ExecContext(ctx, stmt, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
