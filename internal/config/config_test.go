package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	defaultBroker   = "localhost:9092"
	testMapboxToken = "pk.test-token"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Empty(t, cfg.DatabaseURL)
	assert.False(t, cfg.HasDatabase())
	assert.Equal(t, 30*time.Second, cfg.DatabaseTimeout)
	assert.Equal(t, 15*time.Second, cfg.ConnectRetry)
	assert.False(t, cfg.KafkaEnabled)
	assert.Equal(t, []string{defaultBroker}, cfg.KafkaBrokers)
	assert.Equal(t, "akveg-processed-rows", cfg.KafkaSinkTopic)
	assert.False(t, cfg.S3Enabled())
	assert.Equal(t, "us-west-2", cfg.S3Region)
	assert.Equal(t, "processed", cfg.S3Prefix)
	assert.Equal(t, 3, cfg.LoadMaxAttempts)
	assert.False(t, cfg.MapboxEnabled)
	assert.Equal(t, 5*time.Second, cfg.MapboxTimeout)
	assert.Equal(t, 1000, cfg.MapboxCacheSize)
	assert.Empty(t, cfg.PushgatewayURL)
}

func TestLoad_CustomEnv(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "json")
	t.Setenv("AKVEG_DATABASE_URL", "postgres://reader@db.example.org:5432/akveg")
	t.Setenv("REFERENCE_CACHE", "/tmp/akveg.sqlite")
	t.Setenv("DATABASE_TIMEOUT", "1m")
	t.Setenv("BOUNDARY_FILE", "/data/region_boundary.geojson")
	t.Setenv("KAFKA_ENABLED", "true")
	t.Setenv("KAFKA_BROKERS", "broker1:9092,broker2:9092")
	t.Setenv("KAFKA_SINK_TOPIC", "custom-sink")
	t.Setenv("S3_BUCKET", "akveg-archive")
	t.Setenv("S3_ENDPOINT", "http://localhost:9000")
	t.Setenv("S3_PATH_STYLE", "true")
	t.Setenv("LOAD_MAX_ATTEMPTS", "5")
	t.Setenv("MAPBOX_TOKEN", testMapboxToken)
	t.Setenv("MAPBOX_TIMEOUT", "10s")
	t.Setenv("MAPBOX_CACHE_SIZE", "500")
	t.Setenv("PUSHGATEWAY_URL", "http://pushgateway:9091")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.True(t, cfg.HasDatabase())
	assert.Equal(t, "/tmp/akveg.sqlite", cfg.ReferenceCache)
	assert.Equal(t, time.Minute, cfg.DatabaseTimeout)
	assert.Equal(t, "/data/region_boundary.geojson", cfg.BoundaryFile)
	assert.True(t, cfg.KafkaEnabled)
	assert.Equal(t, []string{"broker1:9092", "broker2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "custom-sink", cfg.KafkaSinkTopic)
	assert.True(t, cfg.S3Enabled())
	assert.True(t, cfg.S3PathStyle)
	assert.Equal(t, "http://localhost:9000", cfg.S3Endpoint)
	assert.Equal(t, 5, cfg.LoadMaxAttempts)
	assert.True(t, cfg.MapboxEnabled)
	assert.Equal(t, testMapboxToken, cfg.MapboxToken)
	assert.Equal(t, 10*time.Second, cfg.MapboxTimeout)
	assert.Equal(t, 500, cfg.MapboxCacheSize)
	assert.Equal(t, "http://pushgateway:9091", cfg.PushgatewayURL)
}

func TestLoad_CredentialsFile(t *testing.T) {
	t.Setenv("AKVEG_CREDENTIALS_FILE", "/home/analyst/akveg_private_read.csv")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.HasDatabase())
}

func TestLoad_MapboxExplicitlyDisabled(t *testing.T) {
	t.Setenv("MAPBOX_TOKEN", testMapboxToken)
	t.Setenv("MAPBOX_ENABLED", "false")

	cfg, err := Load()
	require.NoError(t, err)
	assert.False(t, cfg.MapboxEnabled)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
		msg   string
	}{
		{"database timeout", "DATABASE_TIMEOUT", "soon", "invalid DATABASE_TIMEOUT"},
		{"connect retry", "DATABASE_CONNECT_RETRY", "-1s", "invalid DATABASE_CONNECT_RETRY"},
		{"mapbox timeout", "MAPBOX_TIMEOUT", "0s", "invalid MAPBOX_TIMEOUT"},
		{"load attempts", "LOAD_MAX_ATTEMPTS", "0", "invalid LOAD_MAX_ATTEMPTS"},
		{"cache size", "MAPBOX_CACHE_SIZE", "big", "invalid MAPBOX_CACHE_SIZE"},
		{"log format", "LOG_FORMAT", "xml", "invalid LOG_FORMAT"},
		{"mapbox without token", "MAPBOX_ENABLED", "true", "MAPBOX_TOKEN is not set"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)

			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}
