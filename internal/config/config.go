package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Config holds all run settings, populated from environment variables.
// Dataset-specific settings live in the recipe, not here.
type Config struct {
	LogLevel  string
	LogFormat string

	// Reference database. DatabaseURL wins over CredentialsFile.
	DatabaseURL     string
	CredentialsFile string
	ReferenceCache  string
	DatabaseTimeout time.Duration
	ConnectRetry    time.Duration

	// Site boundary used to flag outlying plots.
	BoundaryFile string

	// Optional Kafka sink for processed rows.
	KafkaEnabled   bool
	KafkaBrokers   []string
	KafkaSinkTopic string

	// Optional S3 archive of processed tables.
	S3Bucket    string
	S3Region    string
	S3Endpoint  string
	S3Prefix    string
	S3PathStyle bool

	LoadMaxAttempts int

	// Mapbox reverse geocoding for outlier review.
	MapboxToken     string
	MapboxEnabled   bool
	MapboxTimeout   time.Duration
	MapboxCacheSize int

	PushgatewayURL string
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	dbTimeout, err := parseDuration("DATABASE_TIMEOUT", "30s")
	if err != nil {
		return nil, err
	}
	connectRetry, err := parseDuration("DATABASE_CONNECT_RETRY", "15s")
	if err != nil {
		return nil, err
	}
	mapboxTimeout, err := parseDuration("MAPBOX_TIMEOUT", "5s")
	if err != nil {
		return nil, err
	}

	loadAttempts, err := parsePositiveInt("LOAD_MAX_ATTEMPTS", 3)
	if err != nil {
		return nil, err
	}
	mapboxCacheSize, err := parsePositiveInt("MAPBOX_CACHE_SIZE", 1000)
	if err != nil {
		return nil, err
	}

	mapboxToken := os.Getenv("MAPBOX_TOKEN")
	mapboxEnabled := mapboxToken != ""
	if v := os.Getenv("MAPBOX_ENABLED"); v != "" {
		mapboxEnabled = v == "true"
	}

	cfg := &Config{
		LogLevel:  sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat: sharedcfg.EnvOrDefault("LOG_FORMAT", "text"),

		DatabaseURL:     os.Getenv("AKVEG_DATABASE_URL"),
		CredentialsFile: os.Getenv("AKVEG_CREDENTIALS_FILE"),
		ReferenceCache:  os.Getenv("REFERENCE_CACHE"),
		DatabaseTimeout: dbTimeout,
		ConnectRetry:    connectRetry,

		BoundaryFile: os.Getenv("BOUNDARY_FILE"),

		KafkaEnabled:   os.Getenv("KAFKA_ENABLED") == "true",
		KafkaBrokers:   sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaSinkTopic: sharedcfg.EnvOrDefault("KAFKA_SINK_TOPIC", "akveg-processed-rows"),

		S3Bucket:    os.Getenv("S3_BUCKET"),
		S3Region:    sharedcfg.EnvOrDefault("S3_REGION", "us-west-2"),
		S3Endpoint:  os.Getenv("S3_ENDPOINT"),
		S3Prefix:    sharedcfg.EnvOrDefault("S3_PREFIX", "processed"),
		S3PathStyle: os.Getenv("S3_PATH_STYLE") == "true",

		LoadMaxAttempts: loadAttempts,

		MapboxToken:     mapboxToken,
		MapboxEnabled:   mapboxEnabled,
		MapboxTimeout:   mapboxTimeout,
		MapboxCacheSize: mapboxCacheSize,

		PushgatewayURL: os.Getenv("PUSHGATEWAY_URL"),
	}

	if cfg.KafkaEnabled && len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_BROKERS is required when KAFKA_ENABLED is true")
	}
	if cfg.KafkaEnabled && cfg.KafkaSinkTopic == "" {
		return nil, errors.New("KAFKA_SINK_TOPIC is required when KAFKA_ENABLED is true")
	}
	if cfg.MapboxEnabled && cfg.MapboxToken == "" {
		return nil, errors.New("MAPBOX_ENABLED is true but MAPBOX_TOKEN is not set")
	}
	switch cfg.LogFormat {
	case "json", "text":
	default:
		return nil, fmt.Errorf("invalid LOG_FORMAT %q", cfg.LogFormat)
	}

	return cfg, nil
}

// HasDatabase reports whether a reference database is configured.
func (c *Config) HasDatabase() bool {
	return c.DatabaseURL != "" || c.CredentialsFile != ""
}

// S3Enabled reports whether processed tables are archived to S3.
func (c *Config) S3Enabled() bool {
	return c.S3Bucket != ""
}

func parseDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parsePositiveInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return n, nil
}
