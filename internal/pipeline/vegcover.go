package pipeline

import (
	"context"
	"fmt"
	"sort"

	"github.com/couchcryptid/vegplot-etl/internal/domain"
	"github.com/couchcryptid/vegplot-etl/internal/recipe"
	"github.com/couchcryptid/vegplot-etl/internal/table"
)

var vegetationColumns = []string{
	domain.ColSiteVisitCode, domain.ColNameOriginal, domain.ColNameAdjudicated,
	domain.ColCoverType, domain.ColDeadStatus, domain.ColCoverPercent,
}

// VegetationTransformer builds the vegetation cover table from recorded
// percentages, cover classes or line-point intercept hits.
type VegetationTransformer struct {
	base
}

type coverRow struct {
	visit   string
	name    domain.Resolution
	dead    bool
	percent float64
}

// Transform implements Transformer.
func (v *VegetationTransformer) Transform(_ context.Context, in *Input) (*table.Table, *domain.Report, error) {
	report := domain.NewReport(v.kind)

	t, _, err := prepare(in.Source, v.spec, nil, report)
	if err != nil {
		return nil, nil, err
	}
	if err := assignVisitCodes(t, v.spec.VisitKey, in.Visits, report); err != nil {
		return nil, nil, err
	}

	names := newNameResolver(v.base, in, report)
	var rows []coverRow
	if v.spec.Mode == recipe.ModeLPI {
		rows, err = v.fromLPI(t, names, report)
	} else {
		rows, err = v.fromRows(t, names, report)
	}
	if err != nil {
		return nil, nil, err
	}
	names.summarize()

	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.visit != b.visit {
			return a.visit < b.visit
		}
		if a.name.Original != b.name.Original {
			return a.name.Original < b.name.Original
		}
		return !a.dead && b.dead
	})

	out := table.New(vegetationColumns...)
	for _, r := range rows {
		out.Append(table.Row{
			domain.ColSiteVisitCode:   r.visit,
			domain.ColNameOriginal:    r.name.Original,
			domain.ColNameAdjudicated: r.name.Adjudicated,
			domain.ColCoverType:       v.coverType(),
			domain.ColDeadStatus:      boolText(r.dead),
			domain.ColCoverPercent:    formatPercent(r.percent),
		})
	}
	setConstants(out, v.constants)

	checkNulls(report, out, domain.ColSiteVisitCode, domain.ColNameOriginal, domain.ColNameAdjudicated, domain.ColCoverPercent)
	checkUnique(report, out, domain.ColSiteVisitCode, domain.ColNameOriginal, domain.ColDeadStatus)
	checkRange(report, domain.SeverityError, out, domain.ColCoverPercent, domain.ColSiteVisitCode, 0, 100)
	checkReferences(report, out, in.Visits, domain.ColSiteVisitCode, "site_visit", domain.SeverityWarn)
	checkDictionary(report, out, in.Refs, domain.ColCoverType)

	return out, report, nil
}

// fromLPI computes foliar cover. Codes are translated to names before
// counting so that two codes for one taxon count once per point.
func (v *VegetationTransformer) fromLPI(t *table.Table, names *nameResolver, report *domain.Report) ([]coverRow, error) {
	reader := lpiReader{layout: v.spec.LPI, dead: v.deadSet(), report: report}
	if err := reader.require(t); err != nil {
		return nil, err
	}
	exclude := stringSet(v.spec.Exclude)

	hits := reader.hits(t)
	byName := make(map[string]domain.Resolution)
	for i := range hits {
		code := hits[i].Code
		if code == "" || exclude[code] {
			hits[i].Code = ""
			continue
		}
		res := names.resolve(code)
		byName[res.Original] = res
		hits[i].Code = res.Original
	}

	values := domain.FoliarCover(hits, nil)
	rows := make([]coverRow, 0, len(values))
	for _, c := range values {
		rows = append(rows, coverRow{visit: c.SiteVisitCode, name: byName[c.Code], dead: c.Dead, percent: c.Percent})
	}
	return rows, nil
}

// fromRows reads one cover value per row, either a percentage or a cover
// class converted to its midpoint. Rows with zero cover are dropped.
func (v *VegetationTransformer) fromRows(t *table.Table, names *nameResolver, report *domain.Report) ([]coverRow, error) {
	nameCol := v.column(v.spec.NameColumn, domain.ColNameOriginal)
	coverCol := v.column(v.spec.CoverColumn, domain.ColCoverPercent)
	if err := t.Require(nameCol, coverCol); err != nil {
		return nil, err
	}
	if v.spec.DeadColumn != "" {
		if err := t.Require(v.spec.DeadColumn); err != nil {
			return nil, err
		}
	}

	var scale domain.CoverClassScale
	if v.spec.Mode == recipe.ModeCoverClass {
		scale = domain.BraunBlanquet
		if v.spec.CoverScale != recipe.ScaleBraunBlanquet {
			scale = domain.ScaleFromRanges(v.spec.CoverClasses)
		}
	}
	exclude := stringSet(v.spec.Exclude)
	dead := v.deadSet()

	var rows []coverRow
	var blankName, blankCover, zero, excluded int
	for _, r := range t.Rows {
		visit := r[domain.ColSiteVisitCode]
		if visit == "" {
			continue
		}
		recorded := domain.CleanWhitespace(r[nameCol])
		switch {
		case recorded == "":
			blankName++
			continue
		case exclude[recorded]:
			excluded++
			continue
		}

		if r[coverCol] == "" {
			blankCover++
			continue
		}
		var cover float64
		var err error
		if scale != nil {
			cover, err = scale.Midpoint(r[coverCol])
		} else {
			cover, err = domain.ParseNumber(r[coverCol])
		}
		if err != nil {
			parseFinding(report, visit, fmt.Errorf("%s: %w", recorded, err))
			continue
		}
		if cover == domain.NullNumber {
			blankCover++
			continue
		}
		if cover == 0 {
			zero++
			continue
		}

		isDeadRow := v.spec.DeadColumn != "" && isDead(r[v.spec.DeadColumn], dead)
		rows = append(rows, coverRow{visit: visit, name: names.resolve(recorded), dead: isDeadRow, percent: cover})
	}
	rows, summed := sumDuplicates(rows)

	if blankName > 0 {
		report.Add("dropped", domain.SeverityWarn, "", "dropped %d rows without a name", blankName)
	}
	if blankCover > 0 {
		report.Add("dropped", domain.SeverityWarn, "", "dropped %d rows without cover", blankCover)
	}
	if zero > 0 {
		report.Add("dropped", domain.SeverityInfo, "", "dropped %d rows with zero cover", zero)
	}
	if excluded > 0 {
		report.Add("dropped", domain.SeverityInfo, "", "dropped %d rows of excluded codes", excluded)
	}
	if summed > 0 {
		report.Add("summed", domain.SeverityInfo, "", "summed %d repeated name rows into their first occurrence", summed)
	}
	return rows, nil
}

// sumDuplicates merges rows that share visit, resolved name and dead status
// by adding their cover. Several recorded names can resolve to one name.
func sumDuplicates(rows []coverRow) ([]coverRow, int) {
	type key struct {
		visit, name string
		dead        bool
	}
	index := make(map[key]int, len(rows))
	out := rows[:0]
	merged := 0
	for _, r := range rows {
		k := key{r.visit, r.name.Original, r.dead}
		if i, ok := index[k]; ok {
			out[i].percent += r.percent
			merged++
			continue
		}
		index[k] = len(out)
		out = append(out, r)
	}
	return out, merged
}

func stringSet(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[v] = true
	}
	return set
}
