package domain

// NullNumber is the sentinel for an unmeasured numeric value.
const NullNumber = -999

// NullText is the explicit absence marker for constrained text columns.
const NullText = "NULL"

// Column names shared by the ingestion templates.
const (
	ColSiteCode        = "site_code"
	ColSiteVisitCode   = "site_visit_code"
	ColProjectCode     = "project_code"
	ColEstablishing    = "establishing_project_code"
	ColObserveDate     = "observe_date"
	ColLatitude        = "latitude_dd"
	ColLongitude       = "longitude_dd"
	ColDatum           = "h_datum"
	ColHError          = "h_error_m"
	ColAccuracy        = "positional_accuracy"
	ColStructuralClass = "structural_class"
	ColNameOriginal    = "name_original"
	ColNameAdjudicated = "name_adjudicated"
	ColCoverType       = "cover_type"
	ColDeadStatus      = "dead_status"
	ColCoverPercent    = "cover_percent"
	ColAbioticElement  = "abiotic_element"
	ColAbioticPercent  = "abiotic_top_cover_percent"
	ColTussockPercent  = "tussock_percent_cover"
	ColTaxonCode       = "taxon_code"
	ColTaxonName       = "taxon_name"
	ColCodeManual      = "code_manual"
)

// PointHit is one code recorded at a line-point intercept point.
// A point with nothing recorded still contributes a hit with an empty Code
// so that it counts toward the points surveyed.
type PointHit struct {
	SiteVisitCode string
	Transect      string
	Point         int
	Stratum       string
	Code          string
	Dead          bool
}

// InterceptPoint is a single LPI point with its layers ordered from the top
// canopy down to the soil surface.
type InterceptPoint struct {
	SiteVisitCode string
	Transect      string
	Point         int
	Layers        []string
}

// CoverValue is an aggregated percent cover for one code at one site visit.
type CoverValue struct {
	SiteVisitCode string
	Code          string
	Dead          bool
	Hits          int
	Points        int
	Percent       float64
}

// Taxon is a checklist entry. Accepted taxa have Code == AcceptedCode.
type Taxon struct {
	Code         string
	Name         string
	AcceptedCode string
}

// CodedTaxon is a taxon name with its generated short code.
type CodedTaxon struct {
	Name   string
	Code   string
	Manual bool
}
