package pipeline

import (
	"context"
	"fmt"

	"github.com/couchcryptid/vegplot-etl/internal/domain"
	"github.com/couchcryptid/vegplot-etl/internal/recipe"
	"github.com/couchcryptid/vegplot-etl/internal/reference"
	"github.com/couchcryptid/vegplot-etl/internal/table"
)

// FileExtractor reads a recipe table's files from disk.
type FileExtractor struct {
	kind string
	spec *recipe.Table
	refs *reference.Snapshot
}

// NewFileExtractor returns an extractor for the kind section of a recipe.
// refs may be nil when no reference data is available.
func NewFileExtractor(kind string, spec *recipe.Table, refs *reference.Snapshot) *FileExtractor {
	return &FileExtractor{kind: kind, spec: spec, refs: refs}
}

// Extract reads the source, the template and any processed tables the
// section depends on.
func (e *FileExtractor) Extract(_ context.Context) (*Input, error) {
	src, err := table.Read(e.spec.Input.Path, e.spec.Input.Options())
	if err != nil {
		return nil, fmt.Errorf("read source: %w", err)
	}

	in := &Input{Source: src, Refs: e.refs}

	if e.spec.Template != "" {
		in.Template, err = table.LoadTemplate(e.spec.Template)
	} else {
		in.Template, err = DefaultTemplate(e.kind)
	}
	if err != nil {
		return nil, fmt.Errorf("load template: %w", err)
	}

	if e.spec.Visits != "" {
		if in.Visits, err = table.Read(e.spec.Visits, table.ReadOptions{}); err != nil {
			return nil, fmt.Errorf("read site visits: %w", err)
		}
	}
	if e.spec.Sites != "" {
		if in.Sites, err = table.Read(e.spec.Sites, table.ReadOptions{}); err != nil {
			return nil, fmt.Errorf("read sites: %w", err)
		}
	}
	if ct := e.spec.CodeTable; ct != nil {
		if in.Codes, err = readCodeTable(ct); err != nil {
			return nil, err
		}
	}
	return in, nil
}

func readCodeTable(ct *recipe.CodeTable) (map[string]string, error) {
	t, err := table.Read(ct.Path, ct.Options())
	if err != nil {
		return nil, fmt.Errorf("read code table: %w", err)
	}
	if err := t.Require(ct.Code, ct.Name); err != nil {
		return nil, fmt.Errorf("code table %s: %w", ct.Path, err)
	}
	codes := make(map[string]string, t.Len())
	for _, r := range t.Rows {
		code := domain.CleanWhitespace(r[ct.Code])
		if code == "" {
			continue
		}
		codes[code] = r[ct.Name]
	}
	return codes, nil
}
