package domain

import (
	"context"
	"log/slog"
)

// AnnotateOutlier attaches the reverse geocoded place name and, when the
// geocoder can build one, a static map URL to a finding about a site at ll.
// Geocoding failures leave the finding as it was (graceful degradation).
func AnnotateOutlier(ctx context.Context, f Finding, ll LatLon, geocoder Geocoder, logger *slog.Logger) Finding {
	if geocoder == nil {
		return f
	}

	if linker, ok := geocoder.(MapLinker); ok {
		f.MapURL = linker.StaticMapURL(ll.Lat, ll.Lon)
	}

	result, err := geocoder.ReverseGeocode(ctx, ll.Lat, ll.Lon)
	if err != nil {
		logger.Warn("reverse geocoding failed",
			"key", f.Key,
			"lat", ll.Lat,
			"lon", ll.Lon,
			"error", err,
		)
		return f
	}
	if result.FormattedAddress != "" {
		f.Place = result.FormattedAddress
	} else if result.PlaceName != "" {
		f.Place = result.PlaceName
	}
	return f
}
