package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/couchcryptid/vegplot-etl/internal/domain"
	"github.com/couchcryptid/vegplot-etl/internal/recipe"
	"github.com/couchcryptid/vegplot-etl/internal/table"
)

const checkDisturbance = "disturbance"

// environmentFields maps constrained environment columns to the dictionary
// field holding their vocabulary.
var environmentFields = map[string]string{
	"physiography":           "physiography",
	"geomorphology":          "geomorphology",
	"macrotopography":        "macrotopography",
	"microtopography":        "microtopography",
	"moisture_regime":        "moisture_regime",
	"drainage":               "drainage",
	"disturbance":            "disturbance",
	"disturbance_severity":   "disturbance_severity",
	"restrictive_type":       "restrictive_type",
	"soil_class":             "soil_class",
	"dominant_texture_40_cm": "soil_texture",
}

// environmentDepths are measured in centimeters below the surface.
var environmentDepths = []string{
	"depth_moss_duff_cm", "depth_restrictive_layer_cm",
	"depth_15_percent_coarse_fragments_cm", "microrelief_cm",
}

var environmentNumeric = append([]string{"disturbance_time_y", "depth_water_cm"}, environmentDepths...)

var environmentBooleans = []string{"surface_water", "cryoturbation"}

// Field protocols write 999 where a measurement was not taken.
const notMeasured = 999

const maxDepthCM = 1000

// EnvironmentTransformer builds the site visit environment table.
type EnvironmentTransformer struct {
	base
}

// Transform implements Transformer.
func (e *EnvironmentTransformer) Transform(_ context.Context, in *Input) (*table.Table, *domain.Report, error) {
	report := domain.NewReport(e.kind)

	t, _, err := prepare(in.Source, e.spec, e.constants, report)
	if err != nil {
		return nil, nil, err
	}
	if err := assignVisitCodes(t, e.spec.VisitKey, in.Visits, report); err != nil {
		return nil, nil, err
	}
	t = dropEmpty(t, domain.ColSiteVisitCode, report, "environment rows must belong to a site visit")
	for _, c := range defaultTemplates[recipe.KindEnvironment] {
		t.AddColumn(c)
	}

	for col := range environmentFields {
		t.Apply(col, func(r table.Row) string { return constrainedText(r[col]) })
	}
	for _, col := range environmentNumeric {
		t.Apply(col, func(r table.Row) string {
			v, err := domain.ParseNumber(r[col])
			if err != nil {
				parseFinding(report, r[domain.ColSiteVisitCode], fmt.Errorf("%s: %w", col, err))
				v = domain.NullNumber
			}
			if v == notMeasured {
				v = domain.NullNumber
			}
			return domain.FormatNumber(v)
		})
	}
	for _, col := range environmentBooleans {
		t.Apply(col, func(r table.Row) string {
			v := strings.TrimSpace(r[col])
			if v == "" || strings.EqualFold(v, domain.NullText) {
				return domain.NullText
			}
			b, err := domain.RecodeBool(v)
			if err != nil {
				parseFinding(report, r[domain.ColSiteVisitCode], fmt.Errorf("%s: %w", col, err))
				return domain.NullText
			}
			return b
		})
	}

	checkNulls(report, t, domain.ColSiteVisitCode)
	checkUnique(report, t, domain.ColSiteVisitCode)
	for col, field := range environmentFields {
		checkVocabulary(report, domain.SeverityError, t, col, in.Refs.Attributes(field))
	}
	for _, col := range environmentDepths {
		checkRange(report, domain.SeverityWarn, t, col, domain.ColSiteVisitCode, 0, maxDepthCM)
	}
	checkRange(report, domain.SeverityWarn, t, "depth_water_cm", domain.ColSiteVisitCode, -maxDepthCM, maxDepthCM)
	checkDisturbanceTime(report, t)
	checkReferences(report, t, in.Visits, domain.ColSiteVisitCode, "site_visit", domain.SeverityWarn)

	t.SortBy(domain.ColSiteVisitCode)
	return t, report, nil
}

// constrainedText lower-cases a vocabulary value. Blanks become NULL.
func constrainedText(v string) string {
	v = domain.CleanWhitespace(v)
	if v == "" || strings.EqualFold(v, domain.NullText) {
		return domain.NullText
	}
	return strings.ToLower(v)
}

// checkDisturbanceTime reports undisturbed visits that still carry a time
// since disturbance.
func checkDisturbanceTime(report *domain.Report, t *table.Table) {
	null := domain.FormatNumber(domain.NullNumber)
	for _, r := range t.Rows {
		if r["disturbance"] == "none" && r["disturbance_time_y"] != null {
			report.Add(checkDisturbance, domain.SeverityWarn, r[domain.ColSiteVisitCode],
				"visit %s has no disturbance but disturbance_time_y %s", r[domain.ColSiteVisitCode], r["disturbance_time_y"])
		}
	}
}
