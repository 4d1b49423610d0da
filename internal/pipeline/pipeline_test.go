package pipeline_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/vegplot-etl/internal/domain"
	"github.com/couchcryptid/vegplot-etl/internal/observability"
	"github.com/couchcryptid/vegplot-etl/internal/pipeline"
	"github.com/couchcryptid/vegplot-etl/internal/table"
)

// --- mocks ---

type mockExtractor struct {
	in  *pipeline.Input
	err error
}

func (m *mockExtractor) Extract(context.Context) (*pipeline.Input, error) {
	return m.in, m.err
}

type mockTransformer struct {
	out    *table.Table
	report *domain.Report
	err    error
}

func (m *mockTransformer) Name() string { return "site" }

func (m *mockTransformer) Transform(context.Context, *pipeline.Input) (*table.Table, *domain.Report, error) {
	if m.err != nil {
		return nil, nil, m.err
	}
	return m.out, m.report, nil
}

type mockLoader struct {
	failures int
	calls    int
	loaded   []*table.Table
}

func (m *mockLoader) Name() string { return "mock" }

func (m *mockLoader) Load(_ context.Context, _ string, t *table.Table) error {
	m.calls++
	if m.calls <= m.failures {
		return errors.New("broker unavailable")
	}
	m.loaded = append(m.loaded, t)
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func siteInput() *pipeline.Input {
	src := table.New("site_code", "latitude_dd", "extra")
	src.Append(table.Row{"site_code": "A1", "latitude_dd": "61.5", "extra": "x"})
	src.Append(table.Row{"site_code": "A2", "latitude_dd": "62.5", "extra": "y"})
	return &pipeline.Input{Source: src, Template: []string{"latitude_dd", "site_code"}}
}

func cleanReport() *domain.Report {
	r := domain.NewReport("site")
	r.Add(pipeline.CheckNulls, domain.SeverityInfo, "", "all good")
	return r
}

func errorReport() *domain.Report {
	r := domain.NewReport("site")
	r.Add(pipeline.CheckUnique, domain.SeverityError, "A1", "duplicate site_code A1")
	return r
}

// --- tests ---

func TestPipeline_Run_HappyPath(t *testing.T) {
	in := siteInput()
	ldr := &mockLoader{}
	metrics := observability.NewMetrics()

	p := pipeline.New(&mockExtractor{in: in}, &mockTransformer{out: in.Source, report: cleanReport()},
		[]pipeline.Loader{ldr}, discardLogger(), metrics, pipeline.Options{MaxAttempts: 1})

	report, err := p.Run(context.Background())
	require.NoError(t, err)
	require.NotNil(t, report)

	require.Len(t, ldr.loaded, 1)
	assert.Equal(t, []string{"latitude_dd", "site_code"}, ldr.loaded[0].Columns)
	assert.Equal(t, "61.5", ldr.loaded[0].Rows[0]["latitude_dd"])
	assert.NotContains(t, ldr.loaded[0].Rows[0], "extra")

	assert.InDelta(t, 2, testutil.ToFloat64(metrics.RowsRead.WithLabelValues("site")), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(metrics.RowsWritten.WithLabelValues("site", "mock")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.Findings.WithLabelValues("site", "info")), 0)
}

func TestPipeline_Run_StrictStopsBeforeLoad(t *testing.T) {
	in := siteInput()
	ldr := &mockLoader{}
	reportPath := filepath.Join(t.TempDir(), "qc", "site_report.csv")

	p := pipeline.New(&mockExtractor{in: in}, &mockTransformer{out: in.Source, report: errorReport()},
		[]pipeline.Loader{ldr}, discardLogger(), observability.NewMetrics(),
		pipeline.Options{Strict: true, ReportPath: reportPath})

	report, err := p.Run(context.Background())
	require.ErrorIs(t, err, pipeline.ErrStrictQC)
	assert.True(t, report.HasErrors())
	assert.Empty(t, ldr.loaded)

	written, err := table.Read(reportPath, table.ReadOptions{})
	require.NoError(t, err)
	assert.Equal(t, domain.ReportColumns, written.Columns)
	require.Equal(t, 1, written.Len())
	assert.Equal(t, "error", written.Rows[0]["severity"])
	assert.Equal(t, "A1", written.Rows[0]["key"])
}

func TestPipeline_Run_LenientLoadsDespiteErrors(t *testing.T) {
	in := siteInput()
	ldr := &mockLoader{}

	p := pipeline.New(&mockExtractor{in: in}, &mockTransformer{out: in.Source, report: errorReport()},
		[]pipeline.Loader{ldr}, discardLogger(), observability.NewMetrics(), pipeline.Options{})

	_, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, ldr.loaded, 1)
}

func TestPipeline_Run_TemplateMismatch(t *testing.T) {
	in := siteInput()
	in.Template = append(in.Template, "h_datum")

	p := pipeline.New(&mockExtractor{in: in}, &mockTransformer{out: in.Source, report: cleanReport()},
		[]pipeline.Loader{&mockLoader{}}, discardLogger(), observability.NewMetrics(), pipeline.Options{})

	_, err := p.Run(context.Background())
	require.ErrorIs(t, err, table.ErrMissingColumn)
	assert.Contains(t, err.Error(), "h_datum")
}

func TestPipeline_Run_RetriesLoad(t *testing.T) {
	in := siteInput()
	ldr := &mockLoader{failures: 1}
	metrics := observability.NewMetrics()

	p := pipeline.New(&mockExtractor{in: in}, &mockTransformer{out: in.Source, report: cleanReport()},
		[]pipeline.Loader{ldr}, discardLogger(), metrics, pipeline.Options{MaxAttempts: 3})

	_, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, ldr.calls)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.LoadErrors.WithLabelValues("site", "mock")), 0)
}

func TestPipeline_Run_LoadExhausted(t *testing.T) {
	in := siteInput()
	ldr := &mockLoader{failures: 5}

	p := pipeline.New(&mockExtractor{in: in}, &mockTransformer{out: in.Source, report: cleanReport()},
		[]pipeline.Loader{ldr}, discardLogger(), observability.NewMetrics(), pipeline.Options{MaxAttempts: 2})

	_, err := p.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load site to mock: broker unavailable")
	assert.Equal(t, 2, ldr.calls)
}

func TestPipeline_Run_CancelledDuringRetry(t *testing.T) {
	in := siteInput()
	ldr := &mockLoader{failures: 5}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := pipeline.New(&mockExtractor{in: in}, &mockTransformer{out: in.Source, report: cleanReport()},
		[]pipeline.Loader{ldr}, discardLogger(), observability.NewMetrics(), pipeline.Options{MaxAttempts: 5})

	_, err := p.Run(ctx)
	require.Error(t, err)
	assert.Equal(t, 1, ldr.calls)
}

func TestPipeline_Run_StageErrors(t *testing.T) {
	_, err := pipeline.New(&mockExtractor{err: os.ErrNotExist}, &mockTransformer{},
		nil, discardLogger(), observability.NewMetrics(), pipeline.Options{}).Run(context.Background())
	require.ErrorIs(t, err, os.ErrNotExist)
	assert.Contains(t, err.Error(), "extract site")

	_, err = pipeline.New(&mockExtractor{in: siteInput()}, &mockTransformer{err: table.ErrMissingColumn},
		nil, discardLogger(), observability.NewMetrics(), pipeline.Options{}).Run(context.Background())
	require.ErrorIs(t, err, table.ErrMissingColumn)
	assert.Contains(t, err.Error(), "transform site")
}

func TestCSVLoader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "processed", "site.csv")
	src := siteInput().Source

	l := pipeline.NewCSVLoader(path)
	require.NoError(t, l.Load(context.Background(), "site", src))

	got, err := table.Read(path, table.ReadOptions{})
	require.NoError(t, err)
	assert.Equal(t, src.Columns, got.Columns)
	assert.Equal(t, 2, got.Len())
}

func TestDefaultTemplate(t *testing.T) {
	cols, err := pipeline.DefaultTemplate("abiotic_top_cover")
	require.NoError(t, err)
	assert.Equal(t, []string{"site_visit_code", "abiotic_element", "abiotic_top_cover_percent"}, cols)

	_, err = pipeline.DefaultTemplate("soil_horizons")
	require.Error(t, err)
}
