package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_AppliesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
postgres:
  dsn: "host=db"
kafka:
  brokers: ["k1:9092"]
relay:
  instance_id: relay-1
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 50, cfg.Feed.BatchSize)
	assert.Equal(t, 10*time.Second, cfg.Feed.Timeout)
	assert.Len(t, cfg.Feed.Endpoints, 3)
	assert.Equal(t, 100, cfg.Relay.BatchSize)
	assert.Equal(t, 5*time.Second, cfg.Relay.PublishTimeout)
	assert.Equal(t, "relay-1", cfg.Relay.InstanceID)
	assert.Equal(t, []string{"ingestor.event.created"}, cfg.Kafka.Topics)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestParse_DurationsAndEnvOverrides(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "a:1,b:2")
	t.Setenv("FEED_BASE_URL", "http://feed.local")

	cfg, err := Parse([]byte(`
postgres:
  dsn: "host=db"
kafka:
  brokers: ["ignored:9092"]
relay:
  interval: 250ms
  lock_ttl: 1m
`))
	require.NoError(t, err)

	assert.Equal(t, []string{"a:1", "b:2"}, cfg.Kafka.Brokers)
	assert.Equal(t, "http://feed.local", cfg.Feed.BaseURL)
	assert.Equal(t, 250*time.Millisecond, cfg.Relay.Interval)
	assert.Equal(t, time.Minute, cfg.Relay.LockTTL)
}

func TestParse_Invalid(t *testing.T) {
	_, err := Parse([]byte(`kafka: {brokers: ["k:9092"]}`))
	assert.ErrorContains(t, err, "postgres.dsn")

	_, err = Parse([]byte(`
postgres: {dsn: "x"}
kafka: {brokers: ["k:9092"]}
log: {level: verbose}
`))
	assert.ErrorContains(t, err, "log.level")
}
