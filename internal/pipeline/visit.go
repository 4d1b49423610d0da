package pipeline

import (
	"context"
	"fmt"

	"github.com/couchcryptid/vegplot-etl/internal/domain"
	"github.com/couchcryptid/vegplot-etl/internal/reference"
	"github.com/couchcryptid/vegplot-etl/internal/table"
)

// observerColumns hold personnel names.
var observerColumns = []string{"veg_observer", "veg_recorder", "env_observer", "soils_observer"}

// VisitTransformer builds the site visit table.
type VisitTransformer struct {
	base
}

// Transform implements Transformer.
func (v *VisitTransformer) Transform(_ context.Context, in *Input) (*table.Table, *domain.Report, error) {
	report := domain.NewReport(v.kind)

	t, _, err := prepare(in.Source, v.spec, v.constants, report)
	if err != nil {
		return nil, nil, err
	}
	dateCol := v.column(v.spec.DateColumn, domain.ColObserveDate)
	if err := t.Require(domain.ColSiteCode, dateCol); err != nil {
		return nil, nil, err
	}

	v.visitCodes(t, dateCol, report)

	if v.spec.StructuralSource != "" {
		if err := v.structuralClass(t); err != nil {
			return nil, nil, err
		}
	}

	for _, col := range v.spec.Booleans {
		if err := t.Require(col); err != nil {
			return nil, nil, fmt.Errorf("boolean recoding: %w", err)
		}
		t.Apply(col, func(r table.Row) string {
			b, err := domain.RecodeBool(r[col])
			if err != nil {
				parseFinding(report, r[domain.ColSiteVisitCode], fmt.Errorf("%s: %w", col, err))
				return ""
			}
			return b
		})
	}

	checkNulls(report, t, domain.ColSiteVisitCode, domain.ColProjectCode, domain.ColSiteCode, domain.ColObserveDate)
	checkUnique(report, t, domain.ColSiteVisitCode)
	for _, col := range observerColumns {
		checkVocabulary(report, domain.SeverityError, t, col, personnel(in.Refs))
	}
	checkVocabulary(report, domain.SeverityError, t, domain.ColStructuralClass, structuralClasses(in.Refs))
	checkDictionary(report, t, in.Refs, "data_tier", "scope_vascular", "scope_bryophyte", "scope_lichen")
	checkReferences(report, t, in.Sites, domain.ColSiteCode, "site", domain.SeverityWarn)

	t.SortBy(domain.ColSiteVisitCode)
	return t, report, nil
}

// visitCodes formats observe_date and derives site_visit_code. Visits
// outside the field season are flagged for review.
func (v *VisitTransformer) visitCodes(t *table.Table, dateCol string, report *domain.Report) {
	t.AddColumn(domain.ColSiteVisitCode)
	t.AddColumn(domain.ColObserveDate)
	for _, r := range t.Rows {
		site := r[domain.ColSiteCode]
		observed, err := domain.ParseDate(r[dateCol])
		if err != nil {
			parseFinding(report, site, err)
			r[domain.ColObserveDate], r[domain.ColSiteVisitCode] = "", ""
			continue
		}
		r[domain.ColObserveDate] = domain.FormatDate(observed)
		r[domain.ColSiteVisitCode] = domain.SiteVisitCode(site, observed)
		if !domain.SurveyMonth(observed) {
			report.Add(CheckSurveyMonth, domain.SeverityWarn, r[domain.ColSiteVisitCode],
				"visit %s observed in %s, outside the May to October field season",
				r[domain.ColSiteVisitCode], observed.Month())
		}
	}
}

func (v *VisitTransformer) structuralClass(t *table.Table) error {
	src := v.spec.StructuralSource
	if err := t.Require(src); err != nil {
		return fmt.Errorf("structural class: %w", err)
	}
	pairs := make([][2]string, 0, len(v.spec.StructuralRules))
	for _, r := range v.spec.StructuralRules {
		pairs = append(pairs, [2]string{r.Pattern, r.Class})
	}
	rules, err := domain.CompileStructuralRules(pairs)
	if err != nil {
		return err
	}
	fallback := v.column(v.spec.StructuralFallback, domain.NullText)
	t.Apply(domain.ColStructuralClass, func(r table.Row) string {
		return domain.ClassifyStructure(rules, r[src], fallback)
	})
	return nil
}

func personnel(refs *reference.Snapshot) []string {
	if refs == nil {
		return nil
	}
	return refs.Personnel
}

func structuralClasses(refs *reference.Snapshot) []string {
	if refs == nil {
		return nil
	}
	return refs.StructuralClasses
}
