package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	kafkaadapter "github.com/couchcryptid/vegplot-etl/internal/adapter/kafka"
	"github.com/couchcryptid/vegplot-etl/internal/adapter/mapbox"
	s3adapter "github.com/couchcryptid/vegplot-etl/internal/adapter/s3"
	"github.com/couchcryptid/vegplot-etl/internal/domain"
	"github.com/couchcryptid/vegplot-etl/internal/pipeline"
	"github.com/couchcryptid/vegplot-etl/internal/reference"
)

var errNoDatabase = errors.New("no reference database configured (set AKVEG_DATABASE_URL or AKVEG_CREDENTIALS_FILE)")

// openPostgres connects to the configured AKVEG database.
func (a *app) openPostgres(ctx context.Context) (*reference.Postgres, error) {
	if !a.cfg.HasDatabase() {
		return nil, errNoDatabase
	}
	dsn := a.cfg.DatabaseURL
	if dsn == "" {
		var err error
		if dsn, err = reference.DSNFromCredentials(a.cfg.CredentialsFile); err != nil {
			return nil, err
		}
	}
	return reference.OpenPostgres(ctx, dsn, a.cfg.ConnectRetry, a.logger)
}

// references fetches the reference snapshot from the database, falling back
// to the local cache. A nil snapshot means no reference data is configured;
// checks against it are skipped.
func (a *app) references(ctx context.Context) (*reference.Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.DatabaseTimeout)
	defer cancel()

	var (
		src    reference.Source
		closer io.Closer
		origin string
	)
	switch {
	case a.cfg.HasDatabase():
		pg, err := a.openPostgres(ctx)
		if err != nil {
			return nil, err
		}
		src, closer, origin = pg, pg, "database"
	case a.cfg.ReferenceCache != "":
		cache, err := reference.OpenSQLiteReadOnly(ctx, a.cfg.ReferenceCache)
		if err != nil {
			return nil, fmt.Errorf("open reference cache: %w", err)
		}
		pulled, err := cache.PulledAt(ctx)
		if err != nil {
			_ = cache.Close()
			return nil, fmt.Errorf("open reference cache: %w", err)
		}
		a.logger.Info("using reference cache", "path", a.cfg.ReferenceCache, "pulled_at", pulled)
		src, closer, origin = cache, cache, "cache"
	default:
		a.logger.Warn("no reference data configured; taxonomy and vocabulary checks are skipped")
		return nil, nil
	}
	defer closer.Close()

	snap, err := reference.Fetch(ctx, src)
	if err != nil {
		return nil, fmt.Errorf("fetch reference tables: %w", err)
	}
	counts := snap.Counts()
	for name, n := range counts {
		a.metrics.ReferenceRows.WithLabelValues(name).Set(float64(n))
	}
	a.logger.Info("reference tables loaded", "source", origin, "taxa", counts["taxon_all"], "ground_elements", counts["ground_element"])
	return snap, nil
}

// boundary reads BOUNDARY_FILE when set.
func (a *app) boundary() (*domain.Boundary, error) {
	if a.cfg.BoundaryFile == "" {
		return nil, nil
	}
	data, err := os.ReadFile(a.cfg.BoundaryFile)
	if err != nil {
		return nil, fmt.Errorf("read boundary: %w", err)
	}
	b, err := domain.ParseBoundary(data)
	if err != nil {
		return nil, fmt.Errorf("parse boundary %s: %w", a.cfg.BoundaryFile, err)
	}
	return b, nil
}

// geocoder is feature-flagged via MAPBOX_ENABLED / MAPBOX_TOKEN.
func (a *app) geocoder() (domain.Geocoder, error) {
	if !a.cfg.MapboxEnabled {
		a.logger.Debug("mapbox geocoding disabled")
		return nil, nil
	}
	client := mapbox.NewClient(a.cfg.MapboxToken, a.cfg.MapboxTimeout, a.metrics, a.logger)
	cached, err := mapbox.NewCachedGeocoder(client, a.cfg.MapboxCacheSize, a.metrics)
	if err != nil {
		return nil, err
	}
	a.logger.Info("mapbox geocoding enabled", "cache_size", a.cfg.MapboxCacheSize, "timeout", a.cfg.MapboxTimeout)
	return cached, nil
}

// sinks are the optional loaders shared by every table of a run.
type sinks struct {
	loaders []pipeline.Loader
	closers []io.Closer
}

func (a *app) openSinks(ctx context.Context) (*sinks, error) {
	s := &sinks{}
	if a.cfg.KafkaEnabled {
		w := kafkaadapter.NewWriter(a.cfg, a.logger)
		s.loaders = append(s.loaders, w)
		s.closers = append(s.closers, w)
		a.logger.Info("kafka sink enabled", "topic", a.cfg.KafkaSinkTopic, "run_id", w.RunID())
	}
	if a.cfg.S3Enabled() {
		store, err := s3adapter.New(ctx, s3adapter.Config{
			Bucket:    a.cfg.S3Bucket,
			Region:    a.cfg.S3Region,
			Endpoint:  a.cfg.S3Endpoint,
			Prefix:    a.cfg.S3Prefix,
			PathStyle: a.cfg.S3PathStyle,
		}, a.dataset, a.logger)
		if err != nil {
			s.close(a)
			return nil, err
		}
		s.loaders = append(s.loaders, store)
		a.logger.Info("s3 archive enabled", "bucket", a.cfg.S3Bucket, "prefix", a.cfg.S3Prefix)
	}
	return s, nil
}

func (s *sinks) close(a *app) {
	for _, c := range s.closers {
		if err := c.Close(); err != nil {
			a.logger.Error("sink close error", "error", err)
		}
	}
}
