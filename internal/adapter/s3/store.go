// Package s3 archives processed tables to an S3-compatible bucket (AWS S3 or
// MinIO) so every run's output is kept next to the CSVs handed to the
// database build.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/couchcryptid/vegplot-etl/internal/domain"
	"github.com/couchcryptid/vegplot-etl/internal/table"
)

type putObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Config holds construction parameters.
type Config struct {
	Bucket    string
	Region    string
	Endpoint  string // optional; custom endpoint such as MinIO
	Prefix    string
	PathStyle bool
}

// Store uploads tables as CSV objects. It implements pipeline.Loader.
// Keys are <prefix>/<dataset>/<YYYYMMDD>/<table>.csv.
type Store struct {
	client  putObjectAPI
	bucket  string
	prefix  string
	dataset string
	logger  *slog.Logger
}

// New creates a Store using the default AWS credential chain.
func New(ctx context.Context, cfg Config, dataset string, logger *slog.Logger) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3 bucket required")
	}
	var loadOpts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(cfg.Region))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.PathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return newStore(client, cfg, dataset, logger), nil
}

func newStore(client putObjectAPI, cfg Config, dataset string, logger *slog.Logger) *Store {
	return &Store{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix, dataset: dataset, logger: logger}
}

// Name identifies the sink in logs and metrics.
func (s *Store) Name() string { return "s3" }

// Key returns the object key for a table written today.
func (s *Store) Key(name string) string {
	return path.Join(s.prefix, s.dataset, domain.RunDate(), name+".csv")
}

// Load uploads t as CSV, replacing an object written earlier the same day.
func (s *Store) Load(ctx context.Context, name string, t *table.Table) error {
	data, err := table.Bytes(t)
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	key := s.Key(name)
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("text/csv"),
		Metadata: map[string]string{
			"dataset": s.dataset,
			"table":   name,
			"rows":    fmt.Sprint(t.Len()),
		},
	})
	if err != nil {
		return fmt.Errorf("put s3://%s/%s: %w", s.bucket, key, err)
	}
	s.logger.Info("table archived", "bucket", s.bucket, "key", key, "rows", t.Len())
	return nil
}
