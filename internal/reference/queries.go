package reference

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/couchcryptid/vegplot-etl/internal/domain"
	"github.com/couchcryptid/vegplot-etl/internal/table"
)

const (
	taxaQuery              = `SELECT taxon_code, taxon_name, taxon_accepted_code FROM taxon_all ORDER BY taxon_name`
	groundElementQuery     = `SELECT ground_element, ground_element_code, element_type FROM ground_element ORDER BY ground_element`
	personnelQuery         = `SELECT personnel FROM personnel ORDER BY personnel`
	structuralClassQuery   = `SELECT structural_class FROM structural_class ORDER BY structural_class`
	dictionaryQuery        = `SELECT field, data_attribute FROM dictionary ORDER BY field, data_attribute`
	privateSiteVisitsQuery = `SELECT site_visit.site_visit_code
		FROM site_visit
		JOIN project ON site_visit.project_code = project.project_code
		WHERE project.private IS TRUE`
	privateSitesQuery = `SELECT site.site_code
		FROM site
		JOIN project ON site.establishing_project_code = project.project_code
		WHERE project.private IS TRUE`
)

// querier is the subset of *sql.DB and *sql.Tx the readers need.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func queryTaxa(ctx context.Context, db querier) ([]domain.Taxon, error) {
	rows, err := db.QueryContext(ctx, taxaQuery)
	if err != nil {
		return nil, fmt.Errorf("select taxa: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []domain.Taxon
	for rows.Next() {
		var t domain.Taxon
		if err := rows.Scan(&t.Code, &t.Name, &t.AcceptedCode); err != nil {
			return nil, fmt.Errorf("scan taxon: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func queryGroundElements(ctx context.Context, db querier) ([]GroundElement, error) {
	rows, err := db.QueryContext(ctx, groundElementQuery)
	if err != nil {
		return nil, fmt.Errorf("select ground elements: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []GroundElement
	for rows.Next() {
		var e GroundElement
		var code sql.NullString
		if err := rows.Scan(&e.Name, &code, &e.Type); err != nil {
			return nil, fmt.Errorf("scan ground element: %w", err)
		}
		e.Code = code.String
		out = append(out, e)
	}
	return out, rows.Err()
}

func queryDictionary(ctx context.Context, db querier) ([]DictionaryEntry, error) {
	rows, err := db.QueryContext(ctx, dictionaryQuery)
	if err != nil {
		return nil, fmt.Errorf("select dictionary: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []DictionaryEntry
	for rows.Next() {
		var d DictionaryEntry
		if err := rows.Scan(&d.Field, &d.Attribute); err != nil {
			return nil, fmt.Errorf("scan dictionary: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// queryStrings reads a single text column.
func queryStrings(ctx context.Context, db querier, query string) ([]string, error) {
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []string
	for rows.Next() {
		var s sql.NullString
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		if s.Valid {
			out = append(out, s.String)
		}
	}
	return out, rows.Err()
}

// queryTable runs an arbitrary read query and returns the result as a table.
func queryTable(ctx context.Context, db querier, query string) (*table.Table, error) {
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("run query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read columns: %w", err)
	}

	out := table.New(cols...)
	values := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		row := make(table.Row, len(cols))
		for i, c := range cols {
			row[c] = stringify(values[i])
		}
		out.Append(row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return out, nil
}

// stringify renders a scanned driver value as a CSV cell.
func stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	case time.Time:
		if x.Hour() == 0 && x.Minute() == 0 && x.Second() == 0 && x.Nanosecond() == 0 {
			return x.Format("2006-01-02")
		}
		return x.Format(time.RFC3339)
	case bool:
		if x {
			return "TRUE"
		}
		return "FALSE"
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}
