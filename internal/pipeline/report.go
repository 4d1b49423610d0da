package pipeline

import (
	"fmt"

	"github.com/couchcryptid/vegplot-etl/internal/domain"
	"github.com/couchcryptid/vegplot-etl/internal/table"
)

// ReportTable renders findings, most severe first, as a table.
func ReportTable(report *domain.Report) *table.Table {
	t := table.New(domain.ReportColumns...)
	for _, f := range report.Sorted() {
		rec := f.Record()
		row := make(table.Row, len(rec))
		for i, c := range domain.ReportColumns {
			row[c] = rec[i]
		}
		t.Append(row)
	}
	return t
}

// WriteReport writes the findings of report as CSV to path.
func WriteReport(path string, report *domain.Report) error {
	if err := table.WriteFile(path, ReportTable(report)); err != nil {
		return fmt.Errorf("write qc report: %w", err)
	}
	return nil
}
