package pipeline

import (
	"context"
	"fmt"

	"github.com/couchcryptid/vegplot-etl/internal/table"
)

// CSVLoader writes the table to a CSV file, replacing any previous output.
type CSVLoader struct {
	path string
}

// NewCSVLoader returns a loader writing to path.
func NewCSVLoader(path string) *CSVLoader {
	return &CSVLoader{path: path}
}

// Name identifies the sink in logs and metrics.
func (l *CSVLoader) Name() string { return "csv" }

// Load writes t to the configured path.
func (l *CSVLoader) Load(_ context.Context, _ string, t *table.Table) error {
	if err := table.WriteFile(l.path, t); err != nil {
		return fmt.Errorf("write %s: %w", l.path, err)
	}
	return nil
}
