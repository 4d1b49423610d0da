package pipeline

import (
	"errors"
	"fmt"
	"maps"
	"regexp"
	"slices"
	"sort"
	"strings"

	"github.com/couchcryptid/vegplot-etl/internal/domain"
	"github.com/couchcryptid/vegplot-etl/internal/recipe"
	"github.com/couchcryptid/vegplot-etl/internal/table"
)

type rewriteRule struct {
	re      *regexp.Regexp
	replace string
}

// siteRewriter applies a recipe's ordered site code rewrites.
type siteRewriter []rewriteRule

func compileRewrites(rules []recipe.Rewrite) (siteRewriter, error) {
	out := make(siteRewriter, 0, len(rules))
	for _, r := range rules {
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("compile site code rewrite %q: %w", r.Pattern, err)
		}
		out = append(out, rewriteRule{re: re, replace: r.Replace})
	}
	return out, nil
}

func (s siteRewriter) apply(code string) string {
	code = domain.CleanWhitespace(code)
	for _, r := range s {
		code = r.re.ReplaceAllString(code, r.replace)
	}
	return code
}

// prepare runs the steps shared by every table: row filters, renames, site
// code rewrites, value maps, unit conversions, range recoding and
// constants. It works on a copy of src.
func prepare(src *table.Table, spec *recipe.Table, constants map[string]string, report *domain.Report) (*table.Table, siteRewriter, error) {
	t := src.Clone()

	if len(spec.Keep) > 0 {
		cols := make([]string, 0, len(spec.Keep))
		for c := range spec.Keep {
			cols = append(cols, c)
		}
		sort.Strings(cols)
		if err := t.Require(cols...); err != nil {
			return nil, nil, fmt.Errorf("keep filter: %w", err)
		}
		before := t.Len()
		t = t.Filter(func(r table.Row) bool {
			for _, c := range cols {
				if !slices.Contains(spec.Keep[c], r[c]) {
					return false
				}
			}
			return true
		})
		if dropped := before - t.Len(); dropped > 0 {
			report.Add("filter", domain.SeverityInfo, "", "dropped %d rows not matching the keep filter", dropped)
		}
	}

	t.Rename(spec.Rename)

	rewrite, err := compileRewrites(spec.SiteCode)
	if err != nil {
		return nil, nil, err
	}
	siteCol := domain.ColSiteCode
	if spec.VisitKey.SiteColumn != "" {
		siteCol = spec.VisitKey.SiteColumn
	}
	if t.Has(siteCol) && len(rewrite) > 0 {
		t.Apply(siteCol, func(r table.Row) string { return rewrite.apply(r[siteCol]) })
	}

	for _, col := range slices.Sorted(maps.Keys(spec.Values)) {
		if err := t.Require(col); err != nil {
			return nil, nil, fmt.Errorf("value map: %w", err)
		}
		mapping := spec.Values[col]
		t.Apply(col, func(r table.Row) string {
			if v, ok := mapping[strings.TrimSpace(r[col])]; ok {
				return v
			}
			return r[col]
		})
	}

	for _, u := range spec.Units {
		if err := t.Require(u.Column); err != nil {
			return nil, nil, fmt.Errorf("unit conversion: %w", err)
		}
		t.Apply(u.Column, func(r table.Row) string {
			v, err := domain.ParseNumber(r[u.Column])
			if err == nil {
				v, err = domain.ConvertLength(v, u.From, u.To)
			}
			if err != nil {
				parseFinding(report, r[u.Column], err)
				return domain.FormatNumber(domain.NullNumber)
			}
			if v != domain.NullNumber {
				places := u.Round
				if places == 0 {
					places = domain.CoverPrecision
				}
				v = domain.RoundTo(v, places)
			}
			return domain.FormatNumber(v)
		})
	}

	for _, col := range spec.Ranges {
		if err := t.Require(col); err != nil {
			return nil, nil, fmt.Errorf("range recoding: %w", err)
		}
		t.Apply(col, func(r table.Row) string {
			label := r[col]
			if label == "" || label == domain.NullText {
				return domain.FormatNumber(domain.NullNumber)
			}
			v, err := domain.RangeMidpoint(label)
			if err != nil {
				parseFinding(report, label, err)
				return domain.FormatNumber(domain.NullNumber)
			}
			return domain.FormatNumber(v)
		})
	}

	setConstants(t, constants)
	return t, rewrite, nil
}

// setConstants assigns every constant column in every row.
func setConstants(t *table.Table, constants map[string]string) {
	cols := make([]string, 0, len(constants))
	for c := range constants {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	for _, c := range cols {
		t.Set(c, constants[c])
	}
}

// assignVisitCodes fills site_visit_code according to the recipe's visit
// key. Rows that cannot be tied to a visit get an empty code and an error
// finding.
func assignVisitCodes(t *table.Table, key recipe.VisitKey, visits *table.Table, report *domain.Report) error {
	switch {
	case key.Column != "":
		if err := t.Require(key.Column); err != nil {
			return fmt.Errorf("visit key: %w", err)
		}
		t.Apply(domain.ColSiteVisitCode, func(r table.Row) string { return domain.CleanWhitespace(r[key.Column]) })
		return nil

	case key.SiteColumn != "":
		if err := t.Require(key.SiteColumn); err != nil {
			return fmt.Errorf("visit key: %w", err)
		}
		site, err := siteExtractor(key.SitePattern)
		if err != nil {
			return err
		}
		if key.DateColumn != "" {
			if err := t.Require(key.DateColumn); err != nil {
				return fmt.Errorf("visit key: %w", err)
			}
			t.Apply(domain.ColSiteVisitCode, func(r table.Row) string {
				observed, err := domain.ParseDate(r[key.DateColumn])
				if err != nil {
					parseFinding(report, site(r[key.SiteColumn]), err)
					return ""
				}
				return domain.SiteVisitCode(site(r[key.SiteColumn]), observed)
			})
			return nil
		}
		return lookupVisits(t, key.SiteColumn, site, visits, report)

	case t.Has(domain.ColSiteVisitCode):
		return nil
	}
	return fmt.Errorf("%w: site_visit_code (set visit_key in the recipe)", table.ErrMissingColumn)
}

// siteExtractor returns a function pulling the site code out of a compound
// field. With no pattern the whole value is the site code; otherwise the
// first capture group is.
func siteExtractor(pattern string) (func(string) string, error) {
	if pattern == "" {
		return domain.CleanWhitespace, nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("compile site pattern %q: %w", pattern, err)
	}
	if re.NumSubexp() < 1 {
		return nil, fmt.Errorf("site pattern %q has no capture group", pattern)
	}
	return func(v string) string {
		m := re.FindStringSubmatch(v)
		if m == nil {
			return domain.CleanWhitespace(v)
		}
		return m[1]
	}, nil
}

// lookupVisits ties rows to visits through the processed site visit table.
// A site with more than one visit is ambiguous and left unassigned.
func lookupVisits(t *table.Table, siteCol string, site func(string) string, visits *table.Table, report *domain.Report) error {
	if visits == nil {
		return errors.New("visit key by site needs the processed site visit table (set visits in the recipe)")
	}
	if err := visits.Require(domain.ColSiteCode, domain.ColSiteVisitCode); err != nil {
		return fmt.Errorf("site visit table: %w", err)
	}
	bySite := make(map[string][]string)
	for _, r := range visits.Rows {
		bySite[r[domain.ColSiteCode]] = append(bySite[r[domain.ColSiteCode]], r[domain.ColSiteVisitCode])
	}

	reported := make(map[string]bool)
	t.Apply(domain.ColSiteVisitCode, func(r table.Row) string {
		code := site(r[siteCol])
		candidates := bySite[code]
		switch len(candidates) {
		case 1:
			return candidates[0]
		case 0:
			if !reported[code] {
				report.Add(CheckReference, domain.SeverityError, code, "site %s has no site visit", code)
			}
		default:
			if !reported[code] {
				report.Add(CheckReference, domain.SeverityError, code,
					"site %s has %d site visits; add a date column to the visit key", code, len(candidates))
			}
		}
		reported[code] = true
		return ""
	})
	return nil
}

// dropEmpty removes rows with an empty col, reporting how many went.
func dropEmpty(t *table.Table, col string, report *domain.Report, why string) *table.Table {
	out := t.Filter(func(r table.Row) bool { return r[col] != "" })
	if n := t.Len() - out.Len(); n > 0 {
		report.Add("dropped", domain.SeverityWarn, "", "dropped %d rows without %s: %s", n, col, why)
	}
	return out
}
