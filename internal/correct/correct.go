// Package correct runs the cross-table corrections applied to a directory of
// processed tables before they are inserted into the database. Problems that
// can be fixed mechanically are fixed; site visits that cannot be used are
// dropped together with every row that depends on them, and each drop is
// listed in an issues file for the data owner.
package correct

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/couchcryptid/vegplot-etl/internal/domain"
	"github.com/couchcryptid/vegplot-etl/internal/table"
)

// Issue descriptions written to the issues file.
const (
	IssueNoVisit = "not in site visit table"
	IssueNoCover = "no cover data"
)

// Table names in a processed directory. Each table is stored as <name>.csv.
const (
	TableProject    = "project"
	TableSite       = "site"
	TableSiteVisit  = "site_visit"
	TableVegetation = "vegetation_cover"
	TableAbiotic    = "abiotic_top_cover"
)

// tableAliases map the file names of older exports to table names.
var tableAliases = map[string]string{
	"projects":    TableProject,
	"sites":       TableSite,
	"site_visits": TableSiteVisit,
}

// Default subdirectories of the processed directory.
const (
	DefaultOutDir    = "corrected"
	DefaultIssuesDir = "quality_check_issues"
)

// IssueColumns is the header of the issues file.
var IssueColumns = []string{domain.ColEstablishing, domain.ColSiteCode, domain.ColSiteVisitCode, "issue"}

// ErrMissingTable is returned when a required table is absent from the
// processed directory.
var ErrMissingTable = errors.New("missing table")

// Issue is one site or site visit dropped from the export.
type Issue struct {
	ProjectCode   string
	SiteCode      string
	SiteVisitCode string
	Issue         string
}

// Set is a processed export. Dependents holds every table keyed by
// site_visit_code, by table name. Files records the file name, without
// extension, each table was read from when it differs from the table name.
type Set struct {
	Projects   *table.Table
	Sites      *table.Table
	Visits     *table.Table
	Dependents map[string]*table.Table
	Files      map[string]string
}

// Result is a corrected export with the issues that led to drops.
type Result struct {
	Set
	Issues []Issue
	Report *domain.Report
}

// Options configures a correction run.
type Options struct {
	// Dir is the processed directory.
	Dir string
	// OutDir receives the corrected tables. Defaults to Dir/corrected.
	OutDir string
	// IssuesDir receives issues_YYYYMMDD.csv. Defaults to
	// Dir/quality_check_issues.
	IssuesDir string
	// Elements is the abiotic element vocabulary. When empty, abiotic
	// elements are neither filtered nor padded.
	Elements []string
	// Boundary, when set, reports sites outside it.
	Boundary *domain.Boundary
}

// Corrector runs corrections over a processed directory.
type Corrector struct {
	opts   Options
	logger *slog.Logger
}

// New creates a Corrector.
func New(opts Options, logger *slog.Logger) *Corrector {
	if opts.OutDir == "" {
		opts.OutDir = filepath.Join(opts.Dir, DefaultOutDir)
	}
	if opts.IssuesDir == "" {
		opts.IssuesDir = filepath.Join(opts.Dir, DefaultIssuesDir)
	}
	return &Corrector{opts: opts, logger: logger}
}

// Run loads the processed directory, corrects it and writes the corrected
// tables and issues file. It returns the result and the issues file path.
func (c *Corrector) Run(ctx context.Context) (*Result, string, error) {
	set, err := Load(c.opts.Dir)
	if err != nil {
		return nil, "", err
	}
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}

	res := Correct(set, c.opts.Elements, c.opts.Boundary)
	res.Report.Log(ctx, c.logger)

	if err := ctx.Err(); err != nil {
		return nil, "", err
	}
	if err := Write(res, c.opts.OutDir); err != nil {
		return nil, "", err
	}
	issuesPath := filepath.Join(c.opts.IssuesDir, "issues_"+domain.RunDate()+".csv")
	if err := table.WriteFile(issuesPath, IssueTable(res.Issues)); err != nil {
		return nil, "", fmt.Errorf("write issues: %w", err)
	}

	c.logger.Info("corrections written",
		"out_dir", c.opts.OutDir,
		"issues", len(res.Issues),
		"issues_file", issuesPath,
		"sites", res.Sites.Len(),
		"site_visits", res.Visits.Len(),
	)
	return res, issuesPath, nil
}

// Load reads a processed directory. The site and site visit tables are
// required; every other CSV with a site_visit_code column is a dependent
// table. Exports that use projects.csv, sites.csv and site_visits.csv are
// read under the table names and written back under their own.
func Load(dir string) (*Set, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read processed directory: %w", err)
	}

	set := &Set{Dependents: make(map[string]*table.Table), Files: make(map[string]string)}
	seen := make(map[string]string)
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".csv") {
			continue
		}
		stem := strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))
		name := stem
		if canonical, ok := tableAliases[stem]; ok {
			name = canonical
		}
		if prev, ok := seen[name]; ok {
			return nil, fmt.Errorf("load %s: both %s.csv and %s.csv hold the %s table", dir, prev, stem, name)
		}
		seen[name] = stem
		t, err := table.Read(filepath.Join(dir, e.Name()), table.ReadOptions{})
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", stem, err)
		}
		if name != stem {
			set.Files[name] = stem
		}
		switch {
		case name == TableProject:
			set.Projects = t
		case name == TableSite:
			set.Sites = t
		case name == TableSiteVisit:
			set.Visits = t
		case t.Has(domain.ColSiteVisitCode):
			set.Dependents[name] = t
		}
	}

	if set.Sites == nil {
		return nil, fmt.Errorf("%w: %s.csv in %s", ErrMissingTable, TableSite, dir)
	}
	if set.Visits == nil {
		return nil, fmt.Errorf("%w: %s.csv in %s", ErrMissingTable, TableSiteVisit, dir)
	}
	if err := set.Sites.Require(domain.ColSiteCode); err != nil {
		return nil, fmt.Errorf("%s: %w", TableSite, err)
	}
	if err := set.Visits.Require(domain.ColSiteCode, domain.ColSiteVisitCode); err != nil {
		return nil, fmt.Errorf("%s: %w", TableSiteVisit, err)
	}
	return set, nil
}

// Write stores every table of res in dir as <name>.csv.
func Write(res *Result, dir string) error {
	tables := map[string]*table.Table{
		TableSite:      res.Sites,
		TableSiteVisit: res.Visits,
	}
	if res.Projects != nil {
		tables[TableProject] = res.Projects
	}
	for name, t := range res.Dependents {
		tables[name] = t
	}
	for name, t := range tables {
		file := name
		if stem, ok := res.Files[name]; ok {
			file = stem
		}
		if err := table.WriteFile(filepath.Join(dir, file+".csv"), t); err != nil {
			return fmt.Errorf("write corrected %s: %w", name, err)
		}
	}
	return nil
}

// IssueTable renders issues in IssueColumns order.
func IssueTable(issues []Issue) *table.Table {
	t := table.New(IssueColumns...)
	for _, i := range issues {
		t.Append(table.Row{
			domain.ColEstablishing:  i.ProjectCode,
			domain.ColSiteCode:      i.SiteCode,
			domain.ColSiteVisitCode: i.SiteVisitCode,
			"issue":                 i.Issue,
		})
	}
	return t
}

// Correct applies every correction to set and returns the corrected
// tables. set is not modified.
func Correct(set *Set, elements []string, boundary *domain.Boundary) *Result {
	report := domain.NewReport("correct")
	res := &Result{
		Set: Set{
			Projects:   cloneOrNil(set.Projects),
			Sites:      set.Sites.Clone(),
			Visits:     set.Visits.Clone(),
			Dependents: make(map[string]*table.Table, len(set.Dependents)),
			Files:      set.Files,
		},
		Report: report,
	}
	for name, t := range set.Dependents {
		res.Dependents[name] = t.Clone()
	}

	checkProjects(res.Projects, report)

	// Cover presence is judged on the abiotic table as delivered, before
	// visits with duplicate elements lose their abiotic rows.
	coverVisits := coverVisitCodes(res.Dependents)

	if abiotic, ok := res.Dependents[TableAbiotic]; ok {
		res.Dependents[TableAbiotic] = correctAbiotic(abiotic, elements, report)
	}

	checkBoundary(res.Sites, boundary, report)
	checkWinterVisits(res.Visits, report)
	checkVisitSites(res.Visits, res.Sites, report)

	idx := newLookup(res.Sites, res.Visits)

	for _, code := range res.Sites.AntiJoin(domain.ColSiteCode, res.Visits.Unique(domain.ColSiteCode)) {
		res.Issues = append(res.Issues, Issue{
			ProjectCode: idx.projectOfSite[code],
			SiteCode:    code,
			Issue:       IssueNoVisit,
		})
	}
	noCover := res.Visits.AntiJoin(domain.ColSiteVisitCode, coverVisits)
	for _, code := range noCover {
		site := idx.siteOfVisit[code]
		res.Issues = append(res.Issues, Issue{
			ProjectCode:   idx.projectOfSite[site],
			SiteCode:      site,
			SiteVisitCode: code,
			Issue:         IssueNoCover,
		})
	}
	sort.SliceStable(res.Issues, func(i, j int) bool {
		a, b := res.Issues[i], res.Issues[j]
		if a.ProjectCode != b.ProjectCode {
			return a.ProjectCode < b.ProjectCode
		}
		if a.SiteCode != b.SiteCode {
			return a.SiteCode < b.SiteCode
		}
		return a.SiteVisitCode < b.SiteVisitCode
	})

	cascade(res, noCover, report)
	return res
}

func cloneOrNil(t *table.Table) *table.Table {
	if t == nil {
		return nil
	}
	return t.Clone()
}

// cascade drops visits without cover, then sites left without a visit, then
// every dependent row whose visit is gone.
func cascade(res *Result, noCover []string, report *domain.Report) {
	drop := make(map[string]bool, len(noCover))
	for _, v := range noCover {
		drop[v] = true
	}
	before := res.Visits.Len()
	res.Visits = res.Visits.Filter(func(r table.Row) bool { return !drop[r[domain.ColSiteVisitCode]] })
	if n := before - res.Visits.Len(); n > 0 {
		report.Add("dropped", domain.SeverityWarn, TableSiteVisit, "dropped %d site visits without cover data", n)
	}

	keepSites := make(map[string]bool)
	keepVisits := make(map[string]bool, res.Visits.Len())
	for _, r := range res.Visits.Rows {
		keepSites[r[domain.ColSiteCode]] = true
		keepVisits[r[domain.ColSiteVisitCode]] = true
	}

	before = res.Sites.Len()
	res.Sites = res.Sites.Filter(func(r table.Row) bool { return keepSites[r[domain.ColSiteCode]] })
	if n := before - res.Sites.Len(); n > 0 {
		report.Add("dropped", domain.SeverityWarn, TableSite, "dropped %d sites without a usable site visit", n)
	}

	names := make([]string, 0, len(res.Dependents))
	for name := range res.Dependents {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		t := res.Dependents[name]
		kept := t.Filter(func(r table.Row) bool { return keepVisits[r[domain.ColSiteVisitCode]] })
		if n := t.Len() - kept.Len(); n > 0 {
			report.Add("dropped", domain.SeverityInfo, name, "dropped %d %s rows of removed site visits", n, name)
		}
		res.Dependents[name] = kept
	}
}

// coverVisitCodes returns the visits with vegetation or abiotic cover.
func coverVisitCodes(dependents map[string]*table.Table) []string {
	seen := make(map[string]bool)
	var out []string
	for _, name := range []string{TableVegetation, TableAbiotic} {
		t, ok := dependents[name]
		if !ok {
			continue
		}
		for _, v := range t.Unique(domain.ColSiteVisitCode) {
			if !seen[v] {
				seen[v] = true
				out = append(out, v)
			}
		}
	}
	return out
}

type lookup struct {
	projectOfSite map[string]string
	siteOfVisit   map[string]string
}

func newLookup(sites, visits *table.Table) lookup {
	l := lookup{
		projectOfSite: make(map[string]string, sites.Len()),
		siteOfVisit:   make(map[string]string, visits.Len()),
	}
	for _, r := range sites.Rows {
		l.projectOfSite[r[domain.ColSiteCode]] = r[domain.ColEstablishing]
	}
	for _, r := range visits.Rows {
		l.siteOfVisit[r[domain.ColSiteVisitCode]] = r[domain.ColSiteCode]
	}
	return l
}
