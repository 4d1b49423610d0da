package domain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
	"github.com/wroge/wgs84"
)

// CoordinatePrecision is the number of decimals kept on output degrees.
const CoordinatePrecision = 5

// Datum names accepted on input.
const (
	DatumNAD83 = "NAD83"
	DatumWGS84 = "WGS84"
	DatumNAD27 = "NAD27"
)

var (
	// ErrUnsupportedDatum is returned for datums that need a grid shift.
	ErrUnsupportedDatum = errors.New("unsupported datum")
	// ErrInvalidBoundary is returned for GeoJSON without polygons.
	ErrInvalidBoundary = errors.New("invalid boundary")
)

// Point is an EPSG:3338 coordinate in meters, easting first.
type Point = orb.Point

// LatLon is a geographic coordinate in decimal degrees.
type LatLon struct {
	Lat float64
	Lon float64
}

// EPSG:3338 is NAD83 Alaska Albers: standard parallels 55 and 65, origin
// 50N 154W, no false easting or northing.
var (
	nad83        = wgs84.NAD83().LonLat()
	alaskaAlbers = wgs84.NAD83().AlbersEqualAreaConic(-154, 50, 55, 65, 0, 0)

	toAlbers   = nad83.To(alaskaAlbers)
	fromAlbers = alaskaAlbers.To(nad83)
)

// ToAlaskaAlbers projects NAD83 geographic coordinates to EPSG:3338 meters.
func ToAlaskaAlbers(ll LatLon) Point {
	x, y, _ := toAlbers(ll.Lon, ll.Lat, 0)
	return Point{x, y}
}

// FromAlaskaAlbers converts EPSG:3338 meters to NAD83 geographic coordinates.
func FromAlaskaAlbers(p Point) LatLon {
	lon, lat, _ := fromAlbers(p.X(), p.Y(), 0)
	return LatLon{Lat: lat, Lon: lon}
}

// CheckDatum accepts NAD83 and WGS84, which coincide at plot accuracy.
func CheckDatum(datum string) error {
	switch strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(datum), " ", "")) {
	case "", DatumNAD83, DatumWGS84, "WGS1984", "NAD1983":
		return nil
	}
	return fmt.Errorf("%w: %q", ErrUnsupportedDatum, datum)
}

// Boundary is a set of polygons in EPSG:3338 coordinates.
type Boundary struct {
	Polygons orb.MultiPolygon
}

// Contains reports whether p lies inside any polygon and outside its holes.
// Points on an edge count as inside. A nil boundary contains everything.
func (b *Boundary) Contains(p Point) bool {
	if b == nil {
		return true
	}
	for _, poly := range b.Polygons {
		if len(poly) == 0 || len(poly[0]) == 0 {
			continue
		}
		if planar.PolygonContains(poly, p) {
			return true
		}
	}
	return false
}

// ContainsLatLon projects ll to Alaska Albers and tests it.
func (b *Boundary) ContainsLatLon(ll LatLon) bool {
	return b.Contains(ToAlaskaAlbers(ll))
}

// ParseBoundary reads Polygon and MultiPolygon geometries from a GeoJSON
// document: a FeatureCollection, a Feature or a bare geometry.
func ParseBoundary(data []byte) (*Boundary, error) {
	var geoms []orb.Geometry
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err == nil {
		for _, f := range fc.Features {
			geoms = append(geoms, f.Geometry)
		}
	} else if f, ferr := geojson.UnmarshalFeature(data); ferr == nil {
		geoms = append(geoms, f.Geometry)
	} else if g, gerr := geojson.UnmarshalGeometry(data); gerr == nil {
		geoms = append(geoms, g.Geometry())
	} else {
		return nil, fmt.Errorf("decode boundary: %w", err)
	}

	b := &Boundary{}
	for _, g := range geoms {
		b.collect(g)
	}
	if len(b.Polygons) == 0 {
		return nil, fmt.Errorf("%w: no polygons", ErrInvalidBoundary)
	}
	return b, nil
}

func (b *Boundary) collect(g orb.Geometry) {
	switch g := g.(type) {
	case orb.Polygon:
		b.Polygons = append(b.Polygons, g)
	case orb.MultiPolygon:
		b.Polygons = append(b.Polygons, g...)
	case orb.Collection:
		for _, sub := range g {
			b.collect(sub)
		}
	}
}
