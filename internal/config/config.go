package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config top-level struct
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Redis     RedisConfig     `yaml:"redis"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	RateLimit RateLimitConfig `yaml:"ratelimit"`
	Feed      FeedConfig      `yaml:"feed"`
	Relay     RelayConfig     `yaml:"relay"`
	Consumer  ConsumerConfig  `yaml:"consumer"`
	Log       LogConfig       `yaml:"log"`
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// KafkaConfig has no single topic: every fact is routed to the topic named
// after the fact. Topics lists the ones the consumer subscribes to.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	GroupID string   `yaml:"group_id"`
	Topics  []string `yaml:"topics"`
}

type RateLimitConfig struct {
	RPS   int `yaml:"rps"`
	Burst int `yaml:"burst"`
}

type FeedConfig struct {
	BaseURL   string        `yaml:"base_url"`
	Endpoints []string      `yaml:"endpoints"`
	BatchSize int           `yaml:"batch_size"`
	Timeout   time.Duration `yaml:"timeout"`
	Workers   int           `yaml:"workers"`
	FailFast  bool          `yaml:"fail_fast"`
}

type RelayConfig struct {
	BatchSize      int           `yaml:"batch_size"`
	Interval       time.Duration `yaml:"interval"`
	PublishTimeout time.Duration `yaml:"publish_timeout"`
	LockTTL        time.Duration `yaml:"lock_ttl"`
	InstanceID     string        `yaml:"instance_id"`
}

type ConsumerConfig struct {
	DedupeTTL time.Duration `yaml:"dedupe_ttl"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// Load reads yaml file, applies env overrides, defaults and validation.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse is Load without the file read.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	// override DSN password from env if present
	if pw := os.Getenv("POSTGRES_PASSWORD"); pw != "" {
		cfg.Postgres.DSN = cfg.Postgres.DSN + " password=" + pw
	}
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.Kafka.Brokers = strings.Split(brokers, ",")
	}
	if u := os.Getenv("FEED_BASE_URL"); u != "" {
		cfg.Feed.BaseURL = u
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) SetDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.RateLimit.RPS == 0 {
		c.RateLimit.RPS = 50
	}
	if c.RateLimit.Burst == 0 {
		c.RateLimit.Burst = 100
	}
	if len(c.Feed.Endpoints) == 0 {
		c.Feed.Endpoints = []string{
			"/external-provider/events/moment-1",
			"/external-provider/events/moment-2",
			"/external-provider/events/moment-3",
		}
	}
	if c.Feed.BatchSize == 0 {
		c.Feed.BatchSize = 50
	}
	if c.Feed.Timeout == 0 {
		c.Feed.Timeout = 10 * time.Second
	}
	if c.Feed.Workers == 0 {
		c.Feed.Workers = 1
	}
	if c.Relay.BatchSize == 0 {
		c.Relay.BatchSize = 100
	}
	if c.Relay.Interval == 0 {
		c.Relay.Interval = time.Second
	}
	if c.Relay.PublishTimeout == 0 {
		c.Relay.PublishTimeout = 5 * time.Second
	}
	if c.Relay.LockTTL == 0 {
		c.Relay.LockTTL = 30 * time.Second
	}
	if c.Relay.InstanceID == "" {
		host, _ := os.Hostname()
		c.Relay.InstanceID = fmt.Sprintf("%s-%d", host, os.Getpid())
	}
	if c.Kafka.GroupID == "" {
		c.Kafka.GroupID = "catalog-updater"
	}
	if len(c.Kafka.Topics) == 0 {
		c.Kafka.Topics = []string{"ingestor.event.created"}
	}
	if c.Consumer.DedupeTTL == 0 {
		c.Consumer.DedupeTTL = 7 * 24 * time.Hour
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

func (c *Config) Validate() error {
	if c.Postgres.DSN == "" {
		return errors.New("postgres.dsn is required")
	}
	if len(c.Kafka.Brokers) == 0 {
		return errors.New("kafka.brokers is required")
	}
	if c.Feed.BatchSize < 0 {
		return fmt.Errorf("feed.batch_size must be positive, got %d", c.Feed.BatchSize)
	}
	if c.Feed.Workers < 0 {
		return fmt.Errorf("feed.workers must be positive, got %d", c.Feed.Workers)
	}
	if c.Relay.BatchSize < 0 {
		return fmt.Errorf("relay.batch_size must be positive, got %d", c.Relay.BatchSize)
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log.level %q", c.Log.Level)
	}
	return nil
}
