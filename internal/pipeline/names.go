package pipeline

import (
	"maps"

	"github.com/couchcryptid/vegplot-etl/internal/domain"
)

// Name lookup outcomes for metrics.
const (
	lookupMatched   = "matched"
	lookupUnmatched = "unmatched"
	lookupUnknown   = "unknown"
)

// nameResolver resolves recorded taxon names once per distinct value and
// reports each name that fails to resolve once.
type nameResolver struct {
	base
	resolver  domain.NameResolver
	report    *domain.Report
	checklist bool
	cache     map[string]domain.Resolution
	unmatched int
}

func newNameResolver(b base, in *Input, report *domain.Report) *nameResolver {
	codes := make(map[string]string, len(in.Codes)+len(b.spec.Codes))
	maps.Copy(codes, in.Codes)
	maps.Copy(codes, b.spec.Codes)

	checklist := in.Refs.Checklist()
	return &nameResolver{
		base: b,
		resolver: domain.NameResolver{
			Checklist:   checklist,
			Codes:       codes,
			Corrections: b.spec.NameCorrections,
		},
		report:    report,
		checklist: checklist.Len() > 0,
		cache:     make(map[string]domain.Resolution),
	}
}

// resolve returns the original and adjudicated names for a recorded value.
// Without a checklist the adjudicated name copies the original.
func (n *nameResolver) resolve(recorded string) domain.Resolution {
	if res, ok := n.cache[recorded]; ok {
		return res
	}

	res := n.resolver.Resolve(recorded)
	switch {
	case !n.checklist:
		res.Adjudicated = res.Original
	case res.Matched:
		n.countLookup(lookupMatched)
	case n.spec.UnresolvedAsUnknown:
		n.countLookup(lookupUnknown)
		res.Adjudicated = domain.UnknownName
		n.report.Add(CheckTaxonomy, domain.SeverityWarn, res.Original,
			"name %q is not in the checklist; adjudicated as %s", res.Original, domain.UnknownName)
	default:
		n.countLookup(lookupUnmatched)
		n.unmatched++
		n.report.Add(CheckTaxonomy, domain.SeverityError, res.Original,
			"name %q does not resolve to an accepted name; add a name correction", res.Original)
	}
	n.cache[recorded] = res
	return res
}

func (n *nameResolver) summarize() {
	if !n.checklist {
		n.report.Add(CheckTaxonomy, domain.SeverityWarn, "",
			"no checklist available; name_adjudicated copies name_original")
		return
	}
	if n.unmatched > 0 {
		n.logger.Warn("unresolved taxon names", "table", n.kind, "count", n.unmatched)
	}
}
