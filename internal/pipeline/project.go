package pipeline

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/couchcryptid/vegplot-etl/internal/domain"
	"github.com/couchcryptid/vegplot-etl/internal/recipe"
	"github.com/couchcryptid/vegplot-etl/internal/table"
)

const checkCompletion = "completion"

// projectText are optional free-text columns written as NULL when blank.
var projectText = []string{"manager", "project_description"}

// ProjectTransformer builds the project table, usually one row per dataset.
type ProjectTransformer struct {
	base
}

// Transform implements Transformer.
func (p *ProjectTransformer) Transform(_ context.Context, in *Input) (*table.Table, *domain.Report, error) {
	report := domain.NewReport(p.kind)

	t, _, err := prepare(in.Source, p.spec, p.constants, report)
	if err != nil {
		return nil, nil, err
	}
	if err := t.Require(domain.ColProjectCode); err != nil {
		return nil, nil, err
	}
	for _, c := range defaultTemplates[recipe.KindProject] {
		t.AddColumn(c)
	}

	t.Apply(domain.ColProjectCode, func(r table.Row) string {
		raw := domain.CleanWhitespace(r[domain.ColProjectCode])
		code := domain.NormalizeProjectCode(raw)
		if code != raw {
			report.Add(CheckVocabulary, domain.SeverityInfo, code, "project code %q written as %q", raw, code)
		}
		return code
	})
	t.Apply("completion", func(r table.Row) string {
		return strings.ToLower(domain.CleanWhitespace(r["completion"]))
	})
	for _, col := range []string{"year_start", "year_end"} {
		t.Apply(col, func(r table.Row) string {
			return projectYear(r, col, report)
		})
	}
	t.Apply("private", func(r table.Row) string {
		if strings.TrimSpace(r["private"]) == "" {
			return "FALSE"
		}
		b, err := domain.RecodeBool(r["private"])
		if err != nil {
			parseFinding(report, r[domain.ColProjectCode], fmt.Errorf("private: %w", err))
			return ""
		}
		return b
	})
	for _, col := range projectText {
		t.Apply(col, func(r table.Row) string {
			if v := domain.CleanWhitespace(r[col]); v != "" {
				return v
			}
			return domain.NullText
		})
	}

	checkNulls(report, t, domain.ColProjectCode, "project_name", "originator", "funder", "completion", "private")
	checkUnique(report, t, domain.ColProjectCode)
	checkDictionary(report, t, in.Refs, "completion")
	checkVocabulary(report, domain.SeverityError, t, "originator", in.Refs.Attributes("organization"))
	checkVocabulary(report, domain.SeverityError, t, "funder", in.Refs.Attributes("organization"))
	checkProjectYears(report, t)

	t.SortBy(domain.ColProjectCode)
	return t, report, nil
}

// projectYear reads a year column as a whole number; blanks are the null
// sentinel.
func projectYear(r table.Row, col string, report *domain.Report) string {
	v, err := domain.ParseNumber(r[col])
	if err == nil && v != math.Trunc(v) {
		err = fmt.Errorf("%s %q is not a whole year", col, r[col])
	}
	if err != nil {
		parseFinding(report, r[domain.ColProjectCode], err)
		return domain.FormatNumber(domain.NullNumber)
	}
	return domain.FormatNumber(v)
}

// checkProjectYears reports end years before start years and completion
// states that disagree with the end year.
func checkProjectYears(report *domain.Report, t *table.Table) {
	for _, r := range t.Rows {
		code := r[domain.ColProjectCode]
		start, _ := domain.ParseNumber(r["year_start"])
		end, _ := domain.ParseNumber(r["year_end"])
		if start != domain.NullNumber && end != domain.NullNumber && end < start {
			report.Add(CheckRange, domain.SeverityError, code, "project %s ends in %s before it starts in %s",
				code, r["year_end"], r["year_start"])
		}
		if msg, ok := domain.CheckProjectCompletion(code, domain.CompletionID(r["completion"]), r["year_end"]); !ok {
			report.Add(checkCompletion, domain.SeverityError, code, "%s", msg)
		}
	}
}
