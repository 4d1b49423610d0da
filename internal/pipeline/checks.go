package pipeline

import (
	"slices"
	"strings"

	"github.com/couchcryptid/vegplot-etl/internal/domain"
	"github.com/couchcryptid/vegplot-etl/internal/table"
)

// QC check names as they appear in reports.
const (
	CheckNulls       = "nulls"
	CheckUnique      = "unique"
	CheckRange       = "range"
	CheckReference   = "reference"
	CheckCoverage    = "coverage"
	CheckVocabulary  = "vocabulary"
	CheckSurveyMonth = "survey_month"
	CheckVisitSum    = "visit_sum"
	CheckElements    = "elements"
	CheckBoundary    = "boundary"
	CheckTaxonomy    = "taxonomy"
	CheckParse       = "parse"
)

// checkNulls reports required columns holding empty cells.
func checkNulls(r *domain.Report, t *table.Table, cols ...string) {
	counts := t.NullCounts(cols...)
	for _, c := range cols {
		if n := counts[c]; n > 0 {
			r.Add(CheckNulls, domain.SeverityError, c, "%d null values in required column %s", n, c)
		}
	}
}

// checkUnique reports keys built from cols that occur more than once.
func checkUnique(r *domain.Report, t *table.Table, cols ...string) {
	for _, k := range t.Duplicates(cols...) {
		r.Add(CheckUnique, domain.SeverityError, k, "duplicate %s %s", strings.Join(cols, "+"), k)
	}
}

// checkRange reports numeric values of col outside [lo, hi]. Nulls are
// skipped; keyCol names the column identifying a row in findings.
func checkRange(r *domain.Report, sev domain.Severity, t *table.Table, col, keyCol string, lo, hi float64) {
	for _, row := range t.Rows {
		v, err := domain.ParseNumber(row[col])
		if err != nil {
			r.Add(CheckParse, domain.SeverityError, row[keyCol], "%s is not a number: %q", col, row[col])
			continue
		}
		if v == domain.NullNumber {
			continue
		}
		if v < lo || v > hi {
			r.Add(CheckRange, sev, row[keyCol], "%s %s outside [%s, %s]",
				col, row[col], domain.FormatNumber(lo), domain.FormatNumber(hi))
		}
	}
}

// checkVocabulary reports values of col not in allowed. An empty allowed
// list means the vocabulary is unavailable and nothing is checked. The
// NULL marker is always accepted.
func checkVocabulary(r *domain.Report, sev domain.Severity, t *table.Table, col string, allowed []string) {
	if len(allowed) == 0 || !t.Has(col) {
		return
	}
	bad := table.Difference(t.Unique(col), append(slices.Clone(allowed), domain.NullText))
	for _, v := range bad {
		r.Add(CheckVocabulary, sev, v, "%s %q is not in the controlled vocabulary", col, v)
	}
}

// checkReferences reports child rows whose key does not exist in the parent
// table and, the other way, parent keys with no child rows.
func checkReferences(r *domain.Report, child, parent *table.Table, col, parentName string, orphanSev domain.Severity) {
	if parent == nil || !parent.Has(col) {
		return
	}
	keys := parent.Unique(col)
	for _, k := range child.AntiJoin(col, keys) {
		r.Add(CheckReference, domain.SeverityError, k, "%s %s does not exist in %s", col, k, parentName)
	}
	for _, k := range table.Difference(keys, child.Unique(col)) {
		r.Add(CheckCoverage, orphanSev, k, "%s %s in %s has no %s rows", col, k, parentName, r.Table)
	}
}

// checkVisitSums reports visits whose values of col sum to more than limit.
func checkVisitSums(r *domain.Report, t *table.Table, col string, limit float64) {
	values := make([]domain.CoverValue, 0, t.Len())
	for _, row := range t.Rows {
		v, err := domain.ParseNumber(row[col])
		if err != nil || v == domain.NullNumber {
			continue
		}
		values = append(values, domain.CoverValue{SiteVisitCode: row[domain.ColSiteVisitCode], Percent: v})
	}
	sums := domain.SumByVisit(values)
	visits := make([]string, 0, len(sums))
	for v := range sums {
		visits = append(visits, v)
	}
	slices.Sort(visits)
	for _, v := range visits {
		if sums[v] > limit {
			r.Add(CheckVisitSum, domain.SeverityError, v, "%s sums to %s for visit %s, above %s",
				col, domain.FormatNumber(sums[v]), v, domain.FormatNumber(limit))
		}
	}
}

// parseFinding records a value that could not be converted.
func parseFinding(r *domain.Report, key string, err error) {
	r.Add(CheckParse, domain.SeverityError, key, "%s", err.Error())
}
