package pipeline

import (
	"context"
	"fmt"
	"slices"

	"github.com/couchcryptid/vegplot-etl/internal/domain"
	"github.com/couchcryptid/vegplot-etl/internal/table"
)

// taxonomyColumns is the checklist layout. Source columns outside it are
// carried through after it.
var taxonomyColumns = []string{
	domain.ColTaxonCode, domain.ColCodeManual, domain.ColTaxonName,
	"taxon_author", "taxon_status", "taxon_accepted", "taxon_author_accepted",
	"taxon_family", "taxon_source", "taxon_link", "taxon_level",
	"taxon_category", "taxon_habit", "taxon_native", "taxon_non_native", "org",
}

// TaxonomyTransformer generates short codes for new taxon names.
type TaxonomyTransformer struct {
	base
}

// Transform implements Transformer. Duplicate names in the source are an
// error since they would receive two codes.
func (x *TaxonomyTransformer) Transform(_ context.Context, in *Input) (*table.Table, *domain.Report, error) {
	report := domain.NewReport(x.kind)

	t, _, err := prepare(in.Source, x.spec, nil, report)
	if err != nil {
		return nil, nil, err
	}
	nameCol := x.column(x.spec.NameColumn, domain.ColTaxonName)
	if err := t.Require(nameCol); err != nil {
		return nil, nil, err
	}
	if nameCol != domain.ColTaxonName {
		t.Rename(map[string]string{nameCol: domain.ColTaxonName})
	}

	checklist := in.Refs.Checklist()
	taxa := make([]domain.CodedTaxon, 0, t.Len())
	byName := make(map[string]table.Row, t.Len())
	for _, r := range t.Rows {
		name := domain.CleanWhitespace(r[domain.ColTaxonName])
		if name == "" {
			continue
		}
		if accepted, ok := checklist.Resolve(name); ok {
			report.Add(CheckTaxonomy, domain.SeverityInfo, name, "name %q is already in the checklist as %q", name, accepted)
		}
		taxa = append(taxa, domain.CodedTaxon{Name: name, Code: domain.GenerateTaxonCode(name)})
		byName[name] = r
	}

	coded, err := domain.FixDuplicateCodes(taxa)
	if err != nil {
		return nil, nil, fmt.Errorf("code taxa: %w", err)
	}

	cols := slices.Clone(taxonomyColumns)
	for _, c := range t.Columns {
		if !slices.Contains(cols, c) {
			cols = append(cols, c)
		}
	}
	out := table.New(cols...)
	for _, c := range coded {
		if c.Manual {
			report.Add(CheckTaxonomy, domain.SeverityWarn, c.Name, "code for %q needs manual review", c.Name)
		}
		row := make(table.Row, len(cols))
		for _, col := range cols {
			row[col] = domain.CleanWhitespace(byName[c.Name][col])
		}
		row[domain.ColTaxonName] = c.Name
		row[domain.ColTaxonCode] = c.Code
		row[domain.ColCodeManual] = boolText(c.Manual)
		out.Append(row)
	}
	setConstants(out, x.constants)

	var missing []string
	for _, c := range taxonomyColumns[2:] {
		if _, constant := x.constants[c]; !t.Has(c) && !constant {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		report.Add(CheckNulls, domain.SeverityWarn, "", "source has no %v columns; they are written empty", missing)
	}
	for _, code := range out.Duplicates(domain.ColTaxonCode) {
		if code == domain.ManualReviewCode {
			continue
		}
		report.Add(CheckUnique, domain.SeverityError, code, "taxon code %s is still shared after disambiguation", code)
	}
	return out, report, nil
}
