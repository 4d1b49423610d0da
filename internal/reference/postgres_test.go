package reference

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// arrayConverter lets text arrays through the way pgx does.
type arrayConverter struct{}

func (arrayConverter) ConvertValue(v any) (driver.Value, error) {
	if ss, ok := v.([]string); ok {
		return ss, nil
	}
	return driver.DefaultParameterConverter.ConvertValue(v)
}

func mockPostgres(t *testing.T) (*Postgres, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(
		sqlmock.ValueConverterOption(arrayConverter{}),
		sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual),
	)
	require.NoError(t, err)

	orig := sqlOpen
	sqlOpen = func(_, _ string) (*sql.DB, error) { return db, nil }
	t.Cleanup(func() { sqlOpen = orig })

	pg, err := OpenPostgres(context.Background(), "postgres://mock/akveg", time.Second, discardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = pg.Close() })
	return pg, mock
}

func expectPrivateCodes(mock sqlmock.Sqlmock) {
	mock.ExpectQuery(privateSiteVisitsQuery).
		WillReturnRows(sqlmock.NewRows([]string{"site_visit_code"}).AddRow("SWAN01_20230716").AddRow("SWAN02_20230718"))
	mock.ExpectQuery(privateSitesQuery).
		WillReturnRows(sqlmock.NewRows([]string{"site_code"}).AddRow("SWAN01").AddRow("SWAN02"))
}

func TestPostgres_Redact(t *testing.T) {
	pg, mock := mockPostgres(t)
	visits := []string{"SWAN01_20230716", "SWAN02_20230718"}

	mock.ExpectBegin()
	expectPrivateCodes(mock)
	for i, table := range redactVisitTables {
		mock.ExpectExec(`DELETE FROM ` + table + ` WHERE site_visit_code = ANY($1)`).
			WithArgs(visits).
			WillReturnResult(sqlmock.NewResult(0, int64(i+1)))
	}
	mock.ExpectExec(`DELETE FROM site WHERE site_code = ANY($1)`).
		WithArgs([]string{"SWAN01", "SWAN02"}).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(`DELETE FROM project WHERE private IS TRUE`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	result, err := pg.Redact(context.Background())
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet(), "dependents, then sites, then projects")

	assert.Equal(t, int64(1), result["soil_horizons"])
	assert.Equal(t, int64(len(redactVisitTables)), result["site_visit"])
	assert.Equal(t, int64(2), result["site"])
	assert.Equal(t, int64(1), result["project"])
	assert.Len(t, result, len(redactVisitTables)+2)
}

func TestPostgres_RedactRollsBack(t *testing.T) {
	pg, mock := mockPostgres(t)

	mock.ExpectBegin()
	expectPrivateCodes(mock)
	mock.ExpectExec(`DELETE FROM soil_horizons WHERE site_visit_code = ANY($1)`).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(`DELETE FROM soil_metrics WHERE site_visit_code = ANY($1)`).
		WillReturnError(errors.New("permission denied for table soil_metrics"))
	mock.ExpectRollback()

	_, err := pg.Redact(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "delete from soil_metrics: permission denied")
	require.NoError(t, mock.ExpectationsWereMet(), "nothing after the failed delete runs and the transaction is rolled back")
}

func TestPostgres_RedactCommitFailure(t *testing.T) {
	pg, mock := mockPostgres(t)

	mock.ExpectBegin()
	expectPrivateCodes(mock)
	for _, table := range redactVisitTables {
		mock.ExpectExec(`DELETE FROM ` + table + ` WHERE site_visit_code = ANY($1)`).
			WillReturnResult(sqlmock.NewResult(0, 0))
	}
	mock.ExpectExec(`DELETE FROM site WHERE site_code = ANY($1)`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`DELETE FROM project WHERE private IS TRUE`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit().WillReturnError(errors.New("serialization failure"))

	_, err := pg.Redact(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "commit redaction")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_PrivateCodes(t *testing.T) {
	pg, mock := mockPostgres(t)
	mock.ExpectQuery(privateSitesQuery).
		WillReturnRows(sqlmock.NewRows([]string{"site_code"}).AddRow("SWAN01").AddRow(nil))
	mock.ExpectQuery(privateSiteVisitsQuery).
		WillReturnRows(sqlmock.NewRows([]string{"site_visit_code"}).AddRow("SWAN01_20230716"))

	sites, visits, err := pg.PrivateCodes(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"SWAN01"}, sites)
	assert.Equal(t, []string{"SWAN01_20230716"}, visits)
	require.NoError(t, mock.ExpectationsWereMet())
}
