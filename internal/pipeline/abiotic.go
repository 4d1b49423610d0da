package pipeline

import (
	"context"
	"fmt"

	"github.com/couchcryptid/vegplot-etl/internal/domain"
	"github.com/couchcryptid/vegplot-etl/internal/recipe"
	"github.com/couchcryptid/vegplot-etl/internal/table"
)

var abioticColumns = []string{domain.ColSiteVisitCode, domain.ColAbioticElement, domain.ColAbioticPercent}

// AbioticTransformer builds the abiotic top cover table. Every visit gets
// a row for every abiotic element; elements not observed are padded with
// zero cover.
type AbioticTransformer struct {
	base
}

// Transform implements Transformer.
func (a *AbioticTransformer) Transform(_ context.Context, in *Input) (*table.Table, *domain.Report, error) {
	report := domain.NewReport(a.kind)

	t, _, err := prepare(in.Source, a.spec, nil, report)
	if err != nil {
		return nil, nil, err
	}
	if err := assignVisitCodes(t, a.spec.VisitKey, in.Visits, report); err != nil {
		return nil, nil, err
	}

	elements := a.spec.Elements
	if len(elements) == 0 {
		elements = in.Refs.AbioticElements()
	}

	var values []domain.CoverValue
	if a.spec.Mode == recipe.ModeLPI {
		values, err = a.fromLPI(t, report)
	} else {
		values, err = a.fromRows(t, report)
	}
	if err != nil {
		return nil, nil, err
	}

	if len(elements) == 0 {
		report.Add(CheckElements, domain.SeverityWarn, "", "no abiotic element list available; missing elements were not padded")
	} else {
		values = dropNonAbiotic(values, elements, report)
		visits := t.Unique(domain.ColSiteVisitCode)
		if in.Visits != nil {
			visits = in.Visits.Unique(domain.ColSiteVisitCode)
		}
		values = domain.PadElements(visits, elements, values)
	}

	out := coverTable(abioticColumns, values, func(v domain.CoverValue, r table.Row) {
		r[domain.ColAbioticElement] = v.Code
		r[domain.ColAbioticPercent] = formatPercent(v.Percent)
	})
	setConstants(out, a.constants)

	checkNulls(report, out, abioticColumns...)
	checkUnique(report, out, domain.ColSiteVisitCode, domain.ColAbioticElement)
	checkRange(report, domain.SeverityError, out, domain.ColAbioticPercent, domain.ColSiteVisitCode, 0, 100)
	checkVisitSums(report, out, domain.ColAbioticPercent, 100)
	checkReferences(report, out, in.Visits, domain.ColSiteVisitCode, "site_visit", domain.SeverityWarn)

	return out, report, nil
}

// fromLPI computes top cover from the uppermost hit at each point.
func (a *AbioticTransformer) fromLPI(t *table.Table, report *domain.Report) ([]domain.CoverValue, error) {
	reader := lpiReader{layout: a.spec.LPI, report: report}
	if err := reader.require(t); err != nil {
		return nil, err
	}
	classify := func(code string) (string, bool) {
		element, ok := a.spec.AbioticCodes[code]
		return element, ok
	}
	return domain.TopCover(reader.points(t), classify), nil
}

// fromRows reads one element and percentage per row. Element codes are
// translated through the recipe's element names.
func (a *AbioticTransformer) fromRows(t *table.Table, report *domain.Report) ([]domain.CoverValue, error) {
	elementCol := a.column(a.spec.ElementColumn, domain.ColAbioticElement)
	coverCol := a.column(a.spec.CoverColumn, domain.ColAbioticPercent)
	if err := t.Require(elementCol, coverCol); err != nil {
		return nil, err
	}

	var values []domain.CoverValue
	for _, r := range t.Rows {
		visit := r[domain.ColSiteVisitCode]
		if visit == "" {
			continue
		}
		element := domain.CleanWhitespace(r[elementCol])
		if name, ok := a.spec.ElementNames[element]; ok {
			element = name
		}
		if element == "" {
			report.Add(CheckNulls, domain.SeverityWarn, visit, "visit %s has a row without an element", visit)
			continue
		}
		cover, err := domain.ParseNumber(r[coverCol])
		if err != nil {
			parseFinding(report, visit, fmt.Errorf("%s: %w", element, err))
			continue
		}
		if cover == domain.NullNumber {
			cover = 0
		}
		values = append(values, domain.CoverValue{SiteVisitCode: visit, Code: element, Percent: cover})
	}
	domain.SortCover(values)
	return values, nil
}

// dropNonAbiotic removes elements outside the abiotic vocabulary, such as
// biotic ground cover recorded in the same sheet.
func dropNonAbiotic(values []domain.CoverValue, elements []string, report *domain.Report) []domain.CoverValue {
	allowed := stringSet(elements)
	dropped := make(map[string]bool)
	out := values[:0:0]
	for _, v := range values {
		if allowed[v.Code] {
			out = append(out, v)
			continue
		}
		if !dropped[v.Code] {
			report.Add(CheckElements, domain.SeverityWarn, v.Code, "element %q is not an abiotic element; rows dropped", v.Code)
			dropped[v.Code] = true
		}
	}
	return out
}
