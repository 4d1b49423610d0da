package pipeline

import (
	"context"
	"fmt"

	"github.com/couchcryptid/vegplot-etl/internal/domain"
	"github.com/couchcryptid/vegplot-etl/internal/table"
)

var tussockColumns = []string{domain.ColSiteVisitCode, domain.ColCoverType, domain.ColTussockPercent}

// TussockTransformer builds the whole tussock cover table from recorded
// percentages.
type TussockTransformer struct {
	base
}

// Transform implements Transformer.
func (w *TussockTransformer) Transform(_ context.Context, in *Input) (*table.Table, *domain.Report, error) {
	report := domain.NewReport(w.kind)

	t, _, err := prepare(in.Source, w.spec, nil, report)
	if err != nil {
		return nil, nil, err
	}
	if err := assignVisitCodes(t, w.spec.VisitKey, in.Visits, report); err != nil {
		return nil, nil, err
	}
	coverCol := w.column(w.spec.CoverColumn, domain.ColTussockPercent)
	if err := t.Require(coverCol); err != nil {
		return nil, nil, err
	}

	out := table.New(tussockColumns...)
	for _, r := range t.Rows {
		visit := r[domain.ColSiteVisitCode]
		if visit == "" {
			continue
		}
		cover, err := domain.ParseNumber(r[coverCol])
		if err != nil {
			parseFinding(report, visit, fmt.Errorf("tussock cover: %w", err))
			continue
		}
		coverType := r[domain.ColCoverType]
		if coverType == "" {
			coverType = w.coverType()
		}
		value := domain.FormatNumber(domain.NullNumber)
		if cover != domain.NullNumber {
			value = formatPercent(cover)
		}
		out.Append(table.Row{
			domain.ColSiteVisitCode:  visit,
			domain.ColCoverType:      coverType,
			domain.ColTussockPercent: value,
		})
	}
	setConstants(out, w.constants)
	out.SortBy(domain.ColSiteVisitCode, domain.ColCoverType)

	checkNulls(report, out, tussockColumns...)
	checkUnique(report, out, domain.ColSiteVisitCode, domain.ColCoverType)
	checkRange(report, domain.SeverityError, out, domain.ColTussockPercent, domain.ColSiteVisitCode, 0, 100)
	checkReferences(report, out, in.Visits, domain.ColSiteVisitCode, "site_visit", domain.SeverityInfo)
	checkDictionary(report, out, in.Refs, domain.ColCoverType)

	return out, report, nil
}
