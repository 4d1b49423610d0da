package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/couchcryptid/vegplot-etl/internal/domain"
	"github.com/couchcryptid/vegplot-etl/internal/recipe"
	"github.com/couchcryptid/vegplot-etl/internal/table"
)

// SiteTransformer builds the site table: coordinates in NAD83 decimal
// degrees, datum, horizontal error and positional accuracy. Sites outside
// the configured boundary are reported and, unless the recipe keeps them,
// dropped.
type SiteTransformer struct {
	base
	boundary *domain.Boundary
	geocoder domain.Geocoder
}

// Transform implements Transformer.
func (s *SiteTransformer) Transform(ctx context.Context, in *Input) (*table.Table, *domain.Report, error) {
	report := domain.NewReport(s.kind)

	t, _, err := prepare(in.Source, s.spec, s.constants, report)
	if err != nil {
		return nil, nil, err
	}
	if err := t.Require(domain.ColSiteCode); err != nil {
		return nil, nil, err
	}

	coords, err := s.coordinates(t, report)
	if err != nil {
		return nil, nil, err
	}
	s.datum(t, report)
	s.horizontalError(t, report)

	if s.boundary != nil {
		t = s.filterInside(ctx, t, coords, report)
	}

	checkNulls(report, t, domain.ColSiteCode, domain.ColEstablishing, domain.ColLatitude, domain.ColLongitude, domain.ColDatum)
	checkUnique(report, t, domain.ColSiteCode)
	checkRange(report, domain.SeverityError, t, domain.ColLatitude, domain.ColSiteCode, -90, 90)
	checkRange(report, domain.SeverityError, t, domain.ColLongitude, domain.ColSiteCode, -180, 180)
	checkDictionary(report, t, in.Refs, "perspective", "cover_method", domain.ColDatum,
		domain.ColAccuracy, "plot_dimensions_m", "location_type")

	t.SortBy(domain.ColSiteCode)
	return t, report, nil
}

// coordinates fills latitude_dd and longitude_dd and returns each site's
// position. Unparsable or missing coordinates are reported and left empty.
func (s *SiteTransformer) coordinates(t *table.Table, report *domain.Report) (map[string]domain.LatLon, error) {
	c := s.spec.Coordinates
	out := make(map[string]domain.LatLon, t.Len())

	if c.CRS == recipe.CRSAlaskaAlbers {
		xCol, yCol := s.column(c.X, "x"), s.column(c.Y, "y")
		if err := t.Require(xCol, yCol); err != nil {
			return nil, fmt.Errorf("projected coordinates: %w", err)
		}
		for _, r := range t.Rows {
			x, errX := parseCoordinate(r[xCol])
			y, errY := parseCoordinate(r[yCol])
			if errX != nil || errY != nil {
				report.Add(CheckParse, domain.SeverityError, r[domain.ColSiteCode],
					"site %s has unusable coordinates x=%q y=%q", r[domain.ColSiteCode], r[xCol], r[yCol])
				r[domain.ColLatitude], r[domain.ColLongitude] = "", ""
				continue
			}
			ll := domain.FromAlaskaAlbers(domain.Point{x, y})
			setLatLon(r, ll)
			out[r[domain.ColSiteCode]] = ll
		}
		t.AddColumn(domain.ColLatitude)
		t.AddColumn(domain.ColLongitude)
		if !t.Has(domain.ColDatum) {
			t.Set(domain.ColDatum, domain.DatumNAD83)
		}
		return out, nil
	}

	latCol := s.column(c.Latitude, domain.ColLatitude)
	lonCol := s.column(c.Longitude, domain.ColLongitude)
	if err := t.Require(latCol, lonCol); err != nil {
		return nil, fmt.Errorf("geographic coordinates: %w", err)
	}
	for _, r := range t.Rows {
		lat, errLat := parseCoordinate(r[latCol])
		lon, errLon := parseCoordinate(r[lonCol])
		if errLat != nil || errLon != nil {
			report.Add(CheckParse, domain.SeverityError, r[domain.ColSiteCode],
				"site %s has unusable coordinates lat=%q lon=%q", r[domain.ColSiteCode], r[latCol], r[lonCol])
			r[domain.ColLatitude], r[domain.ColLongitude] = "", ""
			continue
		}
		ll := domain.LatLon{Lat: lat, Lon: lon}
		setLatLon(r, ll)
		out[r[domain.ColSiteCode]] = ll
	}
	t.AddColumn(domain.ColLatitude)
	t.AddColumn(domain.ColLongitude)
	return out, nil
}

var errMissingCoordinate = errors.New("missing coordinate")

func parseCoordinate(s string) (float64, error) {
	v, err := domain.ParseNumber(s)
	if err != nil {
		return 0, err
	}
	if v == domain.NullNumber {
		return 0, errMissingCoordinate
	}
	return v, nil
}

func setLatLon(r table.Row, ll domain.LatLon) {
	r[domain.ColLatitude] = domain.FormatNumber(domain.RoundTo(ll.Lat, domain.CoordinatePrecision))
	r[domain.ColLongitude] = domain.FormatNumber(domain.RoundTo(ll.Lon, domain.CoordinatePrecision))
}

// datum copies and normalizes the recorded datum. Datums that need a grid
// shift are reported as errors.
func (s *SiteTransformer) datum(t *table.Table, report *domain.Report) {
	col := s.spec.Coordinates.Datum
	if col == "" || !t.Has(col) {
		if !t.Has(domain.ColDatum) {
			t.Set(domain.ColDatum, domain.DatumNAD83)
		}
		return
	}
	t.Apply(domain.ColDatum, func(r table.Row) string {
		v := r[col]
		if err := domain.CheckDatum(v); err != nil {
			report.Add(CheckVocabulary, domain.SeverityError, r[domain.ColSiteCode],
				"site %s: %v", r[domain.ColSiteCode], err)
			return v
		}
		if strings.Contains(strings.ToUpper(v), "WGS") {
			return domain.DatumWGS84
		}
		return domain.DatumNAD83
	})
}

// horizontalError fills h_error_m and, unless given as a constant,
// positional_accuracy.
func (s *SiteTransformer) horizontalError(t *table.Table, report *domain.Report) {
	col := s.column(s.spec.Coordinates.HError, domain.ColHError)
	if !t.Has(col) {
		t.Set(domain.ColHError, domain.FormatNumber(domain.NullNumber))
	} else {
		t.Apply(domain.ColHError, func(r table.Row) string {
			v, err := domain.ParseNumber(r[col])
			if err != nil {
				parseFinding(report, r[domain.ColSiteCode], err)
				return domain.FormatNumber(domain.NullNumber)
			}
			if v != domain.NullNumber {
				v = domain.RoundTo(v, 2)
			}
			return domain.FormatNumber(v)
		})
	}

	if t.Has(domain.ColAccuracy) {
		return
	}
	t.Apply(domain.ColAccuracy, func(r table.Row) string {
		v, err := domain.ParseNumber(r[domain.ColHError])
		if err != nil {
			return domain.AccuracyConsumerGrade
		}
		return domain.PositionalAccuracy(v)
	})
}

// filterInside reports sites outside the boundary, annotated with a place
// name and map link for review, and drops them unless the recipe keeps them.
func (s *SiteTransformer) filterInside(ctx context.Context, t *table.Table, coords map[string]domain.LatLon, report *domain.Report) *table.Table {
	outside := make(map[string]bool)
	for _, r := range t.Rows {
		code := r[domain.ColSiteCode]
		ll, ok := coords[code]
		if !ok || s.boundary.ContainsLatLon(ll) {
			continue
		}
		outside[code] = true

		f := domain.Finding{
			Check:    CheckBoundary,
			Severity: domain.SeverityWarn,
			Table:    s.kind,
			Key:      code,
			Message:  fmt.Sprintf("site %s at %.5f, %.5f lies outside the study boundary", code, ll.Lat, ll.Lon),
		}
		report.Append(domain.AnnotateOutlier(ctx, f, ll, s.geocoder, s.logger))
	}

	if s.spec.KeepOutside || len(outside) == 0 {
		return t
	}
	s.logger.Warn("dropping sites outside boundary", "count", len(outside))
	return t.Filter(func(r table.Row) bool { return !outside[r[domain.ColSiteCode]] })
}
