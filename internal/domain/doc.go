// Package domain models vegetation plot survey data destined for the AKVEG
// Database ingestion templates.
//
// # Data Source
//
// Plot data arrive as spreadsheet or CSV exports from agency field programs
// (BLM AIM, NPS, FWS, ABR, ACCS, Yukon biophysical inventories). Each export
// is reshaped into one CSV per target table: Site, Site Visit, Vegetation
// Cover, Abiotic Top Cover and Whole Tussock Cover. Column names and order
// come from a template file per table.
//
// # Conventions
//
// Site visit codes:
//
//	"<site_code>_<YYYYMMDD>"  →  e.g. "GMT2-044_20230716"
//	The date is the observation date of the visit.
//
// Null values:
//
//	Empty strings are nulls in text columns. Numeric columns use -999 when
//	a measurement was not taken, and text columns use "NULL" for an
//	explicit absence. See [NullNumber].
//
// Line-point intercept (LPI):
//
//	Points are read along transects; each point records the species hit in
//	the top canopy, in successive lower layers and at the soil surface.
//	Foliar cover for a taxon is the number of points where the taxon was
//	hit at least once, divided by the number of points surveyed at the
//	visit, times 100. A taxon hit in several layers at one point counts
//	once. See [FoliarCover].
//
//	Abiotic top cover uses the uppermost non-empty layer at each point;
//	the point counts toward an abiotic element only when nothing alive was
//	hit above it. Every visit carries one row per abiotic element, padded
//	with zero cover. See [TopCover] and [PadElements].
//
// Cover classes:
//
//	Braun-Blanquet classes convert to the midpoint of their percent range:
//
//	  r 0.1 | + 0.5 | 1 2.5 | 2 15 | 3 37.5 | 4 62.5 | 5 87.5
//
// Coordinates:
//
//	Output coordinates are NAD83 decimal degrees rounded to five places.
//	Boundary tests run in Alaska Albers (EPSG:3338) on orb geometries. See [ToAlaskaAlbers].
//
// # Taxonomy
//
// Names are resolved against the AKVEG Comprehensive Checklist: a name maps
// to its accepted code, and the accepted code maps to the accepted name
// (name_adjudicated). See [Checklist].
package domain
