package pipeline

import (
	"fmt"

	"github.com/couchcryptid/vegplot-etl/internal/recipe"
)

// defaultTemplates fix the output columns when a recipe names no template
// file. They follow the current AKVEG ingestion templates.
var defaultTemplates = map[string][]string{
	recipe.KindProject: {
		"project_code", "project_name", "originator", "funder", "manager",
		"completion", "year_start", "year_end", "project_description", "private",
	},
	recipe.KindSite: {
		"site_code", "establishing_project_code", "perspective", "cover_method",
		"h_datum", "latitude_dd", "longitude_dd", "h_error_m", "positional_accuracy",
		"plot_dimensions_m", "location_type",
	},
	recipe.KindSiteVisit: {
		"site_visit_code", "project_code", "site_code", "data_tier", "observe_date",
		"veg_observer", "veg_recorder", "env_observer", "soils_observer",
		"structural_class", "scope_vascular", "scope_bryophyte", "scope_lichen",
		"homogeneous",
	},
	recipe.KindEnvironment: {
		"site_visit_code", "physiography", "geomorphology", "macrotopography",
		"microtopography", "moisture_regime", "drainage", "disturbance",
		"disturbance_severity", "disturbance_time_y", "depth_water_cm",
		"depth_moss_duff_cm", "depth_restrictive_layer_cm", "restrictive_type",
		"microrelief_cm", "surface_water", "soil_class", "cryoturbation",
		"dominant_texture_40_cm", "depth_15_percent_coarse_fragments_cm",
	},
	recipe.KindVegetation: {
		"site_visit_code", "name_original", "name_adjudicated", "cover_type",
		"dead_status", "cover_percent",
	},
	recipe.KindAbiotic: {
		"site_visit_code", "abiotic_element", "abiotic_top_cover_percent",
	},
	recipe.KindTussock: {
		"site_visit_code", "cover_type", "tussock_percent_cover",
	},
	recipe.KindTaxonomy: {
		"taxon_code", "code_manual", "taxon_name", "taxon_author", "taxon_status",
		"taxon_accepted", "taxon_author_accepted", "taxon_family", "taxon_source",
		"taxon_link", "taxon_level", "taxon_category", "taxon_habit",
		"taxon_native", "taxon_non_native", "org",
	},
}

// DefaultTemplate returns the built-in column order for kind.
func DefaultTemplate(kind string) ([]string, error) {
	cols, ok := defaultTemplates[kind]
	if !ok {
		return nil, fmt.Errorf("no default template for %q", kind)
	}
	return append([]string(nil), cols...), nil
}
