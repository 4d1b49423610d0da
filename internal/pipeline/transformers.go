package pipeline

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/couchcryptid/vegplot-etl/internal/domain"
	"github.com/couchcryptid/vegplot-etl/internal/observability"
	"github.com/couchcryptid/vegplot-etl/internal/recipe"
	"github.com/couchcryptid/vegplot-etl/internal/reference"
	"github.com/couchcryptid/vegplot-etl/internal/table"
)

// DefaultCoverType is written when a recipe does not name the cover type.
const DefaultCoverType = "absolute foliar cover"

// Deps are the collaborators transformers may use. Boundary and Geocoder
// are optional.
type Deps struct {
	Logger   *slog.Logger
	Metrics  *observability.Metrics
	Boundary *domain.Boundary
	Geocoder domain.Geocoder
}

// NewTransformer returns the transformer for one section of a recipe.
func NewTransformer(kind string, r *recipe.Recipe, deps Deps) (Transformer, error) {
	spec, ok := r.Table(kind)
	if !ok {
		return nil, fmt.Errorf("recipe %s has no %s section", r.Dataset, kind)
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	b := base{kind: kind, spec: spec, constants: r.ConstantsFor(kind), logger: deps.Logger, metrics: deps.Metrics}

	switch kind {
	case recipe.KindProject:
		return &ProjectTransformer{base: b}, nil
	case recipe.KindSite:
		return &SiteTransformer{base: b, boundary: deps.Boundary, geocoder: deps.Geocoder}, nil
	case recipe.KindSiteVisit:
		return &VisitTransformer{base: b}, nil
	case recipe.KindEnvironment:
		return &EnvironmentTransformer{base: b}, nil
	case recipe.KindVegetation:
		return &VegetationTransformer{base: b}, nil
	case recipe.KindAbiotic:
		return &AbioticTransformer{base: b}, nil
	case recipe.KindTussock:
		return &TussockTransformer{base: b}, nil
	case recipe.KindTaxonomy:
		return &TaxonomyTransformer{base: b}, nil
	}
	return nil, fmt.Errorf("unknown table kind %q", kind)
}

type base struct {
	kind      string
	spec      *recipe.Table
	constants map[string]string
	logger    *slog.Logger
	metrics   *observability.Metrics
}

// Name returns the target table.
func (b base) Name() string { return b.kind }

func (b base) countLookup(outcome string) {
	if b.metrics != nil {
		b.metrics.NameLookups.WithLabelValues(outcome).Inc()
	}
}

func (b base) coverType() string {
	if b.spec.CoverType != "" {
		return b.spec.CoverType
	}
	return DefaultCoverType
}

func (b base) column(configured, fallback string) string {
	if configured != "" {
		return configured
	}
	return fallback
}

func (b base) deadSet() map[string]bool {
	set := make(map[string]bool, len(b.spec.DeadValues))
	for _, v := range b.spec.DeadValues {
		set[strings.TrimSpace(v)] = true
	}
	return set
}

// isDead reads a dead flag: a configured dead value, or any true boolean.
func isDead(v string, dead map[string]bool) bool {
	v = strings.TrimSpace(v)
	if dead[v] {
		return true
	}
	b, err := domain.RecodeBool(v)
	return err == nil && b == "TRUE"
}

// checkDictionary validates constrained columns against the database
// dictionary when one is available.
func checkDictionary(r *domain.Report, t *table.Table, refs *reference.Snapshot, cols ...string) {
	for _, c := range cols {
		checkVocabulary(r, domain.SeverityError, t, c, refs.Attributes(c))
	}
}

// coverTable builds an output table from cover values; fill sets every
// column but the visit code.
func coverTable(cols []string, values []domain.CoverValue, fill func(domain.CoverValue, table.Row)) *table.Table {
	t := table.New(cols...)
	for _, v := range values {
		row := table.Row{domain.ColSiteVisitCode: v.SiteVisitCode}
		fill(v, row)
		t.Append(row)
	}
	return t
}

func formatPercent(v float64) string {
	return domain.FormatNumber(domain.RoundTo(v, domain.CoverPrecision))
}

func boolText(b bool) string {
	if b {
		return "TRUE"
	}
	return "FALSE"
}
