package correct

import (
	"slices"
	"strings"

	"github.com/couchcryptid/vegplot-etl/internal/domain"
	"github.com/couchcryptid/vegplot-etl/internal/pipeline"
	"github.com/couchcryptid/vegplot-etl/internal/table"
)

const checkProject = "project"

// checkProjects reports finished projects without an end year and ongoing
// projects with one. Completion is read from completion_id or, in newer
// exports, the completion label.
func checkProjects(projects *table.Table, report *domain.Report) {
	if projects == nil || projects.Require(domain.ColProjectCode, "year_end") != nil {
		return
	}
	completion := "completion_id"
	if !projects.Has(completion) {
		completion = "completion"
	}
	if !projects.Has(completion) {
		return
	}
	for _, r := range projects.Rows {
		id := domain.CompletionID(r[completion])
		if msg, ok := domain.CheckProjectCompletion(r[domain.ColProjectCode], id, r["year_end"]); !ok {
			report.Add(checkProject, domain.SeverityWarn, r[domain.ColProjectCode], "%s", msg)
		}
	}
}

// correctAbiotic drops the abiotic rows of visits that list an element more
// than once, removes elements outside the abiotic vocabulary and pads each
// remaining visit with zero cover for elements it lacks.
func correctAbiotic(t *table.Table, elements []string, report *domain.Report) *table.Table {
	if err := t.Require(domain.ColSiteVisitCode, domain.ColAbioticElement, domain.ColAbioticPercent); err != nil {
		report.Add(pipeline.CheckElements, domain.SeverityError, TableAbiotic, "abiotic corrections skipped: %v", err)
		return t
	}

	dupVisits := make(map[string]bool)
	for _, k := range t.Duplicates(domain.ColSiteVisitCode, domain.ColAbioticElement) {
		visit, _, _ := strings.Cut(k, "|")
		if !dupVisits[visit] {
			dupVisits[visit] = true
			report.Add(pipeline.CheckUnique, domain.SeverityWarn, visit,
				"visit %s lists an abiotic element more than once; its abiotic rows were dropped", visit)
		}
	}
	if len(dupVisits) > 0 {
		t = t.Filter(func(r table.Row) bool { return !dupVisits[r[domain.ColSiteVisitCode]] })
	}

	if len(elements) == 0 {
		return t
	}

	unknown := make(map[string]bool)
	t = t.Filter(func(r table.Row) bool {
		e := r[domain.ColAbioticElement]
		if slices.Contains(elements, e) {
			return true
		}
		if !unknown[e] {
			unknown[e] = true
			report.Add(pipeline.CheckElements, domain.SeverityWarn, e, "element %q is not an abiotic element; rows dropped", e)
		}
		return false
	})

	have := make(map[string]bool, t.Len())
	for _, r := range t.Rows {
		have[r[domain.ColSiteVisitCode]+"|"+r[domain.ColAbioticElement]] = true
	}
	padded := 0
	for _, visit := range t.Unique(domain.ColSiteVisitCode) {
		for _, e := range elements {
			if have[visit+"|"+e] {
				continue
			}
			t.Append(table.Row{
				domain.ColSiteVisitCode:  visit,
				domain.ColAbioticElement: e,
				domain.ColAbioticPercent: "0",
			})
			padded++
		}
	}
	if padded > 0 {
		report.Add(pipeline.CheckElements, domain.SeverityInfo, TableAbiotic, "padded %d missing abiotic elements with zero cover", padded)
	}
	t.SortBy(domain.ColSiteVisitCode, domain.ColAbioticElement)
	return t
}

// checkBoundary reports sites whose coordinates fall outside boundary.
func checkBoundary(sites *table.Table, boundary *domain.Boundary, report *domain.Report) {
	if boundary == nil {
		return
	}
	for _, r := range sites.Rows {
		lat, errLat := domain.ParseNumber(r[domain.ColLatitude])
		lon, errLon := domain.ParseNumber(r[domain.ColLongitude])
		if errLat != nil || errLon != nil || lat == domain.NullNumber || lon == domain.NullNumber {
			continue
		}
		if !boundary.ContainsLatLon(domain.LatLon{Lat: lat, Lon: lon}) {
			report.Add(pipeline.CheckBoundary, domain.SeverityWarn, r[domain.ColSiteCode],
				"site %s at %s, %s lies outside the study boundary", r[domain.ColSiteCode], r[domain.ColLatitude], r[domain.ColLongitude])
		}
	}
}

// checkWinterVisits reports visits observed outside May through October.
func checkWinterVisits(visits *table.Table, report *domain.Report) {
	if !visits.Has(domain.ColObserveDate) {
		return
	}
	for _, r := range visits.Rows {
		observed, err := domain.ParseDate(r[domain.ColObserveDate])
		if err != nil {
			report.Add(pipeline.CheckParse, domain.SeverityError, r[domain.ColSiteVisitCode], "%v", err)
			continue
		}
		if !domain.SurveyMonth(observed) {
			report.Add(pipeline.CheckSurveyMonth, domain.SeverityWarn, r[domain.ColSiteVisitCode],
				"visit %s observed in %s", r[domain.ColSiteVisitCode], observed.Month())
		}
	}
}

// checkVisitSites reports visits whose site is missing from the site table.
func checkVisitSites(visits, sites *table.Table, report *domain.Report) {
	for _, code := range visits.AntiJoin(domain.ColSiteCode, sites.Unique(domain.ColSiteCode)) {
		report.Add(pipeline.CheckReference, domain.SeverityError, code, "site %s has site visits but is not in the site table", code)
	}
}
