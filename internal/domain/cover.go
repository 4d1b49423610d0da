package domain

import (
	"math"
	"sort"
	"strings"
)

// CoverPrecision is the number of decimals kept on cover percentages.
const CoverPrecision = 3

// noneCodes mark an LPI layer where nothing was recorded.
var noneCodes = map[string]bool{
	"":     true,
	"N":    true,
	"NONE": true,
}

// RoundTo rounds v half away from zero to the given number of decimals.
func RoundTo(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

func percentOf(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return RoundTo(float64(n)/float64(total)*100, CoverPrecision)
}

type pointKey struct {
	visit    string
	transect string
	point    int
}

// PointsSurveyed counts the distinct (transect, point) pairs per site visit.
func PointsSurveyed(hits []PointHit) map[string]int {
	seen := make(map[pointKey]struct{}, len(hits))
	counts := make(map[string]int)
	for _, h := range hits {
		k := pointKey{h.SiteVisitCode, h.Transect, h.Point}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		counts[h.SiteVisitCode]++
	}
	return counts
}

// FoliarCover aggregates LPI hits into percent foliar cover per visit, code
// and dead status. A code is counted at most once per point no matter how
// many strata it was hit in. Excluded codes and empty codes still count
// toward the points surveyed but produce no cover rows.
func FoliarCover(hits []PointHit, exclude map[string]bool) []CoverValue {
	points := PointsSurveyed(hits)

	type coverKey struct {
		visit string
		code  string
		dead  bool
	}
	type hitKey struct {
		coverKey
		transect string
		point    int
	}

	seen := make(map[hitKey]struct{})
	counts := make(map[coverKey]int)
	for _, h := range hits {
		code := strings.TrimSpace(h.Code)
		if code == "" || exclude[code] {
			continue
		}
		ck := coverKey{h.SiteVisitCode, code, h.Dead}
		hk := hitKey{ck, h.Transect, h.Point}
		if _, ok := seen[hk]; ok {
			continue
		}
		seen[hk] = struct{}{}
		counts[ck]++
	}

	out := make([]CoverValue, 0, len(counts))
	for k, n := range counts {
		total := points[k.visit]
		out = append(out, CoverValue{
			SiteVisitCode: k.visit,
			Code:          k.code,
			Dead:          k.dead,
			Hits:          n,
			Points:        total,
			Percent:       percentOf(n, total),
		})
	}
	SortCover(out)
	return out
}

// TopCover computes abiotic top cover. For each point the uppermost layer
// holding a code decides: if classify maps that code to an abiotic element
// the point counts toward the element, otherwise the point was covered by
// something alive and counts toward nothing. Every point counts toward the
// visit total.
func TopCover(points []InterceptPoint, classify func(code string) (string, bool)) []CoverValue {
	totals := make(map[string]int)
	seen := make(map[pointKey]struct{}, len(points))

	type elementKey struct {
		visit   string
		element string
	}
	counts := make(map[elementKey]int)

	for _, p := range points {
		k := pointKey{p.SiteVisitCode, p.Transect, p.Point}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		totals[p.SiteVisitCode]++

		top := topLayer(p.Layers)
		if top == "" {
			continue
		}
		element, ok := classify(top)
		if !ok {
			continue
		}
		counts[elementKey{p.SiteVisitCode, element}]++
	}

	out := make([]CoverValue, 0, len(counts))
	for k, n := range counts {
		total := totals[k.visit]
		out = append(out, CoverValue{
			SiteVisitCode: k.visit,
			Code:          k.element,
			Hits:          n,
			Points:        total,
			Percent:       percentOf(n, total),
		})
	}
	SortCover(out)
	return out
}

func topLayer(layers []string) string {
	for _, l := range layers {
		code := strings.TrimSpace(l)
		if noneCodes[strings.ToUpper(code)] {
			continue
		}
		return code
	}
	return ""
}

// PadElements adds a zero-cover row for every (visit, element) pair missing
// from values. Existing rows are kept unchanged.
func PadElements(visits, elements []string, values []CoverValue) []CoverValue {
	type key struct{ visit, element string }
	have := make(map[key]bool, len(values))
	for _, v := range values {
		have[key{v.SiteVisitCode, v.Code}] = true
	}

	out := append([]CoverValue(nil), values...)
	for _, visit := range visits {
		for _, element := range elements {
			if have[key{visit, element}] {
				continue
			}
			have[key{visit, element}] = true
			out = append(out, CoverValue{SiteVisitCode: visit, Code: element})
		}
	}
	SortCover(out)
	return out
}

// SumByVisit totals cover percent per site visit.
func SumByVisit(values []CoverValue) map[string]float64 {
	sums := make(map[string]float64)
	for _, v := range values {
		sums[v.SiteVisitCode] += v.Percent
	}
	for k, s := range sums {
		sums[k] = RoundTo(s, CoverPrecision)
	}
	return sums
}

// SortCover orders values by visit, code, then live before dead.
func SortCover(values []CoverValue) {
	sort.Slice(values, func(i, j int) bool {
		a, b := values[i], values[j]
		if a.SiteVisitCode != b.SiteVisitCode {
			return a.SiteVisitCode < b.SiteVisitCode
		}
		if a.Code != b.Code {
			return a.Code < b.Code
		}
		return !a.Dead && b.Dead
	})
}
