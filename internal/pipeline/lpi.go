package pipeline

import (
	"fmt"
	"strings"

	"github.com/couchcryptid/vegplot-etl/internal/domain"
	"github.com/couchcryptid/vegplot-etl/internal/recipe"
	"github.com/couchcryptid/vegplot-etl/internal/table"
)

// lpiReader turns LPI rows into hits or intercept points. Rows must already
// carry site_visit_code; rows without one are skipped.
type lpiReader struct {
	layout recipe.LPI
	dead   map[string]bool
	report *domain.Report
}

func (l lpiReader) require(t *table.Table) error {
	cols := []string{domain.ColSiteVisitCode, l.layout.Transect, l.layout.Point}
	switch l.layout.Layout {
	case recipe.LayoutWide:
		cols = append(cols, l.layout.Strata...)
		for _, flag := range l.layout.DeadFlags {
			cols = append(cols, flag)
		}
	case recipe.LayoutLong:
		cols = append(cols, l.layout.Code)
		if l.layout.Status != "" {
			cols = append(cols, l.layout.Status)
		}
	}
	if err := t.Require(cols...); err != nil {
		return fmt.Errorf("lpi layout: %w", err)
	}
	return nil
}

func (l lpiReader) point(r table.Row) (int, bool) {
	v, err := domain.ParseNumber(r[l.layout.Point])
	if err != nil || v == domain.NullNumber {
		l.report.Add(CheckParse, domain.SeverityError, r[domain.ColSiteVisitCode],
			"visit %s transect %s has an unusable point %q", r[domain.ColSiteVisitCode], r[l.layout.Transect], r[l.layout.Point])
		return 0, false
	}
	return int(v), true
}

// hits reads every recorded code. A wide row contributes one hit per
// stratum, empty strata included, so that every point counts as surveyed.
func (l lpiReader) hits(t *table.Table) []domain.PointHit {
	var out []domain.PointHit
	for _, r := range t.Rows {
		visit := r[domain.ColSiteVisitCode]
		if visit == "" {
			continue
		}
		point, ok := l.point(r)
		if !ok {
			continue
		}
		transect := r[l.layout.Transect]

		if l.layout.Layout == recipe.LayoutLong {
			dead := l.layout.Status != "" && isDead(r[l.layout.Status], l.dead)
			out = append(out, domain.PointHit{
				SiteVisitCode: visit,
				Transect:      transect,
				Point:         point,
				Code:          strings.TrimSpace(r[l.layout.Code]),
				Dead:          dead,
			})
			continue
		}

		for _, stratum := range l.layout.Strata {
			dead := false
			if flag, ok := l.layout.DeadFlags[stratum]; ok {
				dead = isDead(r[flag], l.dead)
			}
			out = append(out, domain.PointHit{
				SiteVisitCode: visit,
				Transect:      transect,
				Point:         point,
				Stratum:       stratum,
				Code:          strings.TrimSpace(r[stratum]),
				Dead:          dead,
			})
		}
	}
	return out
}

// points reads intercept points with their layers top-down. Long layouts
// list a point's hits top-down in consecutive or scattered rows; row order
// is kept.
func (l lpiReader) points(t *table.Table) []domain.InterceptPoint {
	type key struct {
		visit    string
		transect string
		point    int
	}
	index := make(map[key]int)
	var out []domain.InterceptPoint

	for _, r := range t.Rows {
		visit := r[domain.ColSiteVisitCode]
		if visit == "" {
			continue
		}
		point, ok := l.point(r)
		if !ok {
			continue
		}
		k := key{visit, r[l.layout.Transect], point}

		if l.layout.Layout == recipe.LayoutWide {
			layers := make([]string, 0, len(l.layout.Strata))
			for _, stratum := range l.layout.Strata {
				layers = append(layers, r[stratum])
			}
			out = append(out, domain.InterceptPoint{SiteVisitCode: visit, Transect: k.transect, Point: point, Layers: layers})
			continue
		}

		i, seen := index[k]
		if !seen {
			i = len(out)
			index[k] = i
			out = append(out, domain.InterceptPoint{SiteVisitCode: visit, Transect: k.transect, Point: point})
		}
		out[i].Layers = append(out[i].Layers, r[l.layout.Code])
	}
	return out
}
