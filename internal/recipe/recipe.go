// Package recipe describes how one dataset's exports map onto the AKVEG
// ingestion templates. A recipe is a YAML file with one section per target
// table; relative paths resolve against the recipe's directory.
package recipe

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"github.com/couchcryptid/vegplot-etl/internal/table"
)

// Target table kinds.
const (
	KindProject     = "project"
	KindSite        = "site"
	KindSiteVisit   = "site_visit"
	KindEnvironment = "environment"
	KindVegetation  = "vegetation_cover"
	KindAbiotic    = "abiotic_top_cover"
	KindTussock    = "whole_tussock_cover"
	KindTaxonomy   = "taxonomy"
)

// Cover modes and LPI layouts.
const (
	ModeDirect     = "direct"
	ModeLPI        = "lpi"
	ModeCoverClass = "cover_class"
	LayoutWide     = "wide"
	LayoutLong     = "long"
)

// ScaleBraunBlanquet selects the built-in Braun-Blanquet cover scale.
const ScaleBraunBlanquet = "braun-blanquet"

// Supported input coordinate systems.
const (
	CRSGeographic   = "EPSG:4269"
	CRSAlaskaAlbers = "EPSG:3338"
)

const defaultOutputDir = "processed"

// Kinds lists every table kind in processing order.
var Kinds = []string{
	KindProject, KindSite, KindSiteVisit, KindEnvironment,
	KindVegetation, KindAbiotic, KindTussock, KindTaxonomy,
}

// ErrInvalid is returned for recipes that fail validation.
var ErrInvalid = errors.New("invalid recipe")

// Recipe is a dataset description.
type Recipe struct {
	Dataset     string            `yaml:"dataset"`
	ProjectCode string            `yaml:"project_code"`
	Constants   map[string]string `yaml:"constants"`
	Tables      map[string]*Table `yaml:"tables"`

	dir string
}

// Table describes how to build one target table.
type Table struct {
	Input     Input                        `yaml:"input"`
	Template  string                       `yaml:"template"`
	Output    string                       `yaml:"output"`
	Sites     string                       `yaml:"sites"`
	Visits    string                       `yaml:"visits"`
	Rename    map[string]string            `yaml:"rename"`
	Constants map[string]string            `yaml:"constants"`
	Keep      map[string][]string          `yaml:"keep"`
	SiteCode  []Rewrite                    `yaml:"site_code_rewrites"`
	VisitKey  VisitKey                     `yaml:"visit_key"`
	Units     []Unit                       `yaml:"units"`
	Ranges    []string                     `yaml:"range_columns"`
	Values    map[string]map[string]string `yaml:"value_maps"`

	// Site.
	Coordinates Coordinates `yaml:"coordinates"`
	KeepOutside bool        `yaml:"keep_outside"`

	// Site visit.
	DateColumn         string   `yaml:"date_column"`
	StructuralSource   string   `yaml:"structural_source"`
	StructuralRules    []Rule   `yaml:"structural_rules"`
	StructuralFallback string   `yaml:"structural_fallback"`
	Booleans           []string `yaml:"booleans"`

	// Cover tables.
	Mode                string                `yaml:"mode"`
	NameColumn          string                `yaml:"name_column"`
	CoverColumn         string                `yaml:"cover_column"`
	CoverType           string                `yaml:"cover_type"`
	CoverScale          string                `yaml:"cover_scale"`
	CoverClasses        map[string][2]float64 `yaml:"cover_classes"`
	DeadColumn          string                `yaml:"dead_column"`
	DeadValues          []string              `yaml:"dead_values"`
	Codes               map[string]string     `yaml:"codes"`
	CodeTable           *CodeTable            `yaml:"code_table"`
	NameCorrections     map[string]string     `yaml:"name_corrections"`
	Exclude             []string              `yaml:"exclude"`
	UnresolvedAsUnknown bool                  `yaml:"unresolved_as_unknown"`
	LPI                 LPI                   `yaml:"lpi"`

	// Abiotic top cover.
	ElementColumn string            `yaml:"element_column"`
	AbioticCodes  map[string]string `yaml:"abiotic_codes"`
	ElementNames  map[string]string `yaml:"element_names"`
	Elements      []string          `yaml:"elements"`
}

// Input is a source file.
type Input struct {
	Path      string `yaml:"path"`
	Sheet     string `yaml:"sheet"`
	Delimiter string `yaml:"delimiter"`
	Encoding  string `yaml:"encoding"`
}

// Options converts the input settings for table.Read.
func (in Input) Options() table.ReadOptions {
	opts := table.ReadOptions{Sheet: in.Sheet, Encoding: in.Encoding}
	switch in.Delimiter {
	case "":
	case `\t`, "tab":
		opts.Delimiter = '\t'
	default:
		opts.Delimiter, _ = utf8.DecodeRuneInString(in.Delimiter)
	}
	return opts
}

// Rewrite is a regular-expression replacement applied to site codes.
type Rewrite struct {
	Pattern string `yaml:"pattern"`
	Replace string `yaml:"replace"`
}

// VisitKey tells how rows are tied to site visits. With Column the source
// already carries visit codes. With SiteColumn and DateColumn the code is
// built from both. With SiteColumn alone the code is looked up in the
// processed site visit table.
type VisitKey struct {
	Column      string `yaml:"column"`
	SiteColumn  string `yaml:"site_column"`
	SitePattern string `yaml:"site_pattern"`
	DateColumn  string `yaml:"date_column"`
}

// Unit converts a length column between units. Round is the number of
// decimals kept; zero keeps three.
type Unit struct {
	Column string `yaml:"column"`
	From   string `yaml:"from"`
	To     string `yaml:"to"`
	Round  int    `yaml:"round"`
}

// Coordinates names the coordinate columns and their reference system.
type Coordinates struct {
	Latitude  string `yaml:"latitude"`
	Longitude string `yaml:"longitude"`
	X         string `yaml:"x"`
	Y         string `yaml:"y"`
	CRS       string `yaml:"crs"`
	Datum     string `yaml:"datum"`
	HError    string `yaml:"h_error"`
}

// Rule maps descriptive text to a structural class.
type Rule struct {
	Pattern string `yaml:"pattern"`
	Class   string `yaml:"class"`
}

// CodeTable is a lookup file translating dataset codes to taxon names.
type CodeTable struct {
	Input `yaml:",inline"`
	Code  string `yaml:"code"`
	Name  string `yaml:"name"`
}

// LPI describes the layout of line-point intercept data. Wide layouts hold
// one row per point with a column per stratum, top canopy first and soil
// surface last. Long layouts hold one row per hit.
type LPI struct {
	Layout    string            `yaml:"layout"`
	Transect  string            `yaml:"transect"`
	Point     string            `yaml:"point"`
	Strata    []string          `yaml:"strata"`
	DeadFlags map[string]string `yaml:"dead_flags"`
	Code      string            `yaml:"code"`
	Status    string            `yaml:"status"`
}

// Load reads and validates a recipe, resolving relative paths against the
// recipe file's directory.
func Load(path string) (*Recipe, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read recipe: %w", err)
	}
	r, err := Parse(data, filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("recipe %s: %w", path, err)
	}
	return r, nil
}

// Parse decodes a recipe document. Unknown keys are rejected so typos do
// not silently drop settings.
func Parse(data []byte, dir string) (*Recipe, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var r Recipe
	if err := dec.Decode(&r); err != nil {
		return nil, fmt.Errorf("parse recipe: %w", err)
	}
	r.dir = dir
	if err := r.validate(); err != nil {
		return nil, err
	}
	r.resolvePaths()
	return &r, nil
}

func (r *Recipe) validate() error {
	var problems []string
	if r.Dataset == "" {
		problems = append(problems, "dataset is required")
	}
	if len(r.Tables) == 0 {
		problems = append(problems, "at least one table is required")
	}
	for _, kind := range r.kinds() {
		t := r.Tables[kind]
		if !known(kind) {
			problems = append(problems, fmt.Sprintf("unknown table %q", kind))
			continue
		}
		if t == nil {
			problems = append(problems, fmt.Sprintf("%s: empty section", kind))
			continue
		}
		if t.Input.Path == "" {
			problems = append(problems, fmt.Sprintf("%s: input.path is required", kind))
		}
		problems = append(problems, t.validate(kind)...)
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}

func (t *Table) validate(kind string) []string {
	var problems []string
	switch kind {
	case KindVegetation:
		switch t.Mode {
		case "", ModeDirect, ModeCoverClass:
		case ModeLPI:
			problems = append(problems, t.LPI.validate(kind)...)
		default:
			problems = append(problems, fmt.Sprintf("%s: unknown mode %q", kind, t.Mode))
		}
		if t.Mode == ModeCoverClass && t.CoverScale != ScaleBraunBlanquet && len(t.CoverClasses) == 0 {
			problems = append(problems, fmt.Sprintf("%s: cover_class mode needs cover_scale or cover_classes", kind))
		}
	case KindAbiotic:
		switch t.Mode {
		case "", ModeDirect:
		case ModeLPI:
			problems = append(problems, t.LPI.validate(kind)...)
			if len(t.AbioticCodes) == 0 {
				problems = append(problems, fmt.Sprintf("%s: lpi mode needs abiotic_codes", kind))
			}
		default:
			problems = append(problems, fmt.Sprintf("%s: unknown mode %q", kind, t.Mode))
		}
	case KindSite:
		switch t.Coordinates.CRS {
		case "", CRSGeographic, CRSAlaskaAlbers:
		default:
			problems = append(problems, fmt.Sprintf("%s: unsupported crs %q", kind, t.Coordinates.CRS))
		}
	}
	return problems
}

func (l LPI) validate(kind string) []string {
	var problems []string
	switch l.Layout {
	case LayoutWide:
		if len(l.Strata) == 0 {
			problems = append(problems, fmt.Sprintf("%s: wide lpi layout needs strata", kind))
		}
	case LayoutLong:
		if l.Code == "" {
			problems = append(problems, fmt.Sprintf("%s: long lpi layout needs code", kind))
		}
	default:
		problems = append(problems, fmt.Sprintf("%s: lpi layout must be %q or %q", kind, LayoutWide, LayoutLong))
	}
	if l.Transect == "" || l.Point == "" {
		problems = append(problems, fmt.Sprintf("%s: lpi needs transect and point columns", kind))
	}
	return problems
}

func known(kind string) bool {
	for _, k := range Kinds {
		if k == kind {
			return true
		}
	}
	return false
}

func (r *Recipe) kinds() []string {
	out := make([]string, 0, len(r.Tables))
	for k := range r.Tables {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (r *Recipe) resolvePaths() {
	for kind, t := range r.Tables {
		t.Input.Path = r.resolve(t.Input.Path)
		t.Template = r.resolve(t.Template)
		t.Sites = r.resolve(t.Sites)
		t.Visits = r.resolve(t.Visits)
		if t.CodeTable != nil {
			t.CodeTable.Path = r.resolve(t.CodeTable.Path)
		}
		if t.Output == "" {
			t.Output = filepath.Join(defaultOutputDir, kind+".csv")
		}
		t.Output = r.resolve(t.Output)
	}
}

func (r *Recipe) resolve(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(r.dir, p)
}

// Table returns the section for kind.
func (r *Recipe) Table(kind string) (*Table, bool) {
	t, ok := r.Tables[kind]
	return t, ok && t != nil
}

// ConstantsFor merges recipe-wide constants with a table's own; the table
// wins. The project code, when set, fills project_code and
// establishing_project_code unless given explicitly.
func (r *Recipe) ConstantsFor(kind string) map[string]string {
	out := make(map[string]string)
	if r.ProjectCode != "" {
		switch kind {
		case KindProject:
			out["project_code"] = r.ProjectCode
		case KindSite:
			out["establishing_project_code"] = r.ProjectCode
		case KindSiteVisit:
			out["project_code"] = r.ProjectCode
		}
	}
	for k, v := range r.Constants {
		out[k] = v
	}
	if t, ok := r.Table(kind); ok {
		for k, v := range t.Constants {
			out[k] = v
		}
	}
	return out
}
