package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds runtime configuration for the alerting service.
type Config struct {
	// Log level: debug, info, warn, error
	LogLevel string
	// Address the HTTP API listens on
	HTTPAddr string
	// Application name used in alert subjects
	AppName string
	// Path to the on-device SQLite database
	DatabasePath string

	Relay     RelayConfig
	Kafka     KafkaConfig
	Pipeline  PipelineConfig
	Retention RetentionConfig
}

// RelayConfig configures the email-relay collaborator.
type RelayConfig struct {
	// Base URL, the client posts to {BaseURL}/send-email
	BaseURL string
	// Zero keeps the transport default
	Timeout time.Duration
}

// KafkaConfig configures the broker used for push notifications and device readings.
type KafkaConfig struct {
	Enabled           bool
	Brokers           []string
	NotificationTopic string
	ReadingsTopic     string
	GroupID           string
	Producer          ProducerConfig
}

// ProducerConfig tunes the kafka writer pool.
type ProducerConfig struct {
	PoolSize     int
	BatchSize    int
	BatchTimeout time.Duration
	WriteTimeout time.Duration
	RequiredAcks int
	Compression  string
	MaxRetries   int
	RetryBackoff time.Duration
}

// PipelineConfig sizes the evaluation worker pool.
type PipelineConfig struct {
	Workers   int
	QueueSize int
	// JobTimeout bounds one reading's evaluation and dispatch
	JobTimeout time.Duration
}

// Default returns a sensible default config for local dev.
func Default() *Config {
	return &Config{
		LogLevel:     "info",
		HTTPAddr:     ":8080",
		AppName:      "Smart HealthMate",
		DatabasePath: "data/healthmate.db",
		Relay: RelayConfig{
			BaseURL: "http://localhost:3000",
			Timeout: 10 * time.Second,
		},
		Kafka: KafkaConfig{
			Enabled:           false,
			Brokers:           []string{"localhost:9092"},
			NotificationTopic: "healthmate.notifications",
			ReadingsTopic:     "healthmate.readings",
			GroupID:           "healthmate-alerts",
			Producer: ProducerConfig{
				PoolSize:     2,
				BatchSize:    1,
				BatchTimeout: 10 * time.Millisecond,
				WriteTimeout: 10 * time.Second,
				RequiredAcks: 1,
				Compression:  "snappy",
				MaxRetries:   3,
				RetryBackoff: 100 * time.Millisecond,
			},
		},
		Pipeline: PipelineConfig{
			Workers:    4,
			QueueSize:  256,
			JobTimeout: 30 * time.Second,
		},
		Retention: DefaultRetentionConfig(),
	}
}

// Load reads an optional .env file and overlays environment variables on Default.
func Load(envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load env file: %w", err)
	}

	cfg := Default()
	cfg.LogLevel = getString("LOG_LEVEL", cfg.LogLevel)
	cfg.HTTPAddr = getString("HTTP_ADDR", cfg.HTTPAddr)
	cfg.AppName = getString("APP_NAME", cfg.AppName)
	cfg.DatabasePath = getString("DATABASE_PATH", cfg.DatabasePath)

	cfg.Relay.BaseURL = getString("EMAIL_RELAY_URL", cfg.Relay.BaseURL)

	var err error
	if cfg.Relay.Timeout, err = getDuration("EMAIL_RELAY_TIMEOUT", cfg.Relay.Timeout); err != nil {
		return nil, err
	}

	if cfg.Kafka.Enabled, err = getBool("KAFKA_ENABLED", cfg.Kafka.Enabled); err != nil {
		return nil, err
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = splitCSV(v)
	}
	cfg.Kafka.NotificationTopic = getString("KAFKA_NOTIFICATION_TOPIC", cfg.Kafka.NotificationTopic)
	cfg.Kafka.ReadingsTopic = getString("KAFKA_READINGS_TOPIC", cfg.Kafka.ReadingsTopic)
	cfg.Kafka.GroupID = getString("KAFKA_GROUP_ID", cfg.Kafka.GroupID)
	cfg.Kafka.Producer.Compression = getString("KAFKA_COMPRESSION", cfg.Kafka.Producer.Compression)

	if cfg.Pipeline.Workers, err = getInt("PIPELINE_WORKERS", cfg.Pipeline.Workers); err != nil {
		return nil, err
	}
	if cfg.Pipeline.QueueSize, err = getInt("PIPELINE_QUEUE_SIZE", cfg.Pipeline.QueueSize); err != nil {
		return nil, err
	}
	if cfg.Pipeline.JobTimeout, err = getDuration("PIPELINE_JOB_TIMEOUT", cfg.Pipeline.JobTimeout); err != nil {
		return nil, err
	}

	if cfg.Retention.IntervalHours, err = getInt("RETENTION_INTERVAL_HOURS", cfg.Retention.IntervalHours); err != nil {
		return nil, err
	}
	if cfg.Retention.Enabled, err = getBool("RETENTION_ENABLED", cfg.Retention.Enabled); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks if the configuration has valid values
func (c *Config) Validate() error {
	if c.AppName == "" {
		return errors.New("app_name cannot be empty")
	}
	if c.DatabasePath == "" {
		return errors.New("database_path cannot be empty")
	}
	if c.Relay.BaseURL == "" {
		return errors.New("email relay URL cannot be empty")
	}
	if c.Relay.Timeout < 0 {
		return fmt.Errorf("email relay timeout cannot be negative (got %s)", c.Relay.Timeout)
	}
	if c.Pipeline.Workers < 1 || c.Pipeline.Workers > 64 {
		return fmt.Errorf("pipeline workers must be between 1 and 64 (got %d)", c.Pipeline.Workers)
	}
	if c.Pipeline.QueueSize < 1 {
		return fmt.Errorf("pipeline queue size must be positive (got %d)", c.Pipeline.QueueSize)
	}
	if c.Pipeline.JobTimeout <= 0 {
		return fmt.Errorf("pipeline job timeout must be positive (got %s)", c.Pipeline.JobTimeout)
	}
	if c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			return errors.New("kafka enabled but no brokers configured")
		}
		if c.Kafka.NotificationTopic == "" || c.Kafka.ReadingsTopic == "" {
			return errors.New("kafka enabled but topics are empty")
		}
	}
	return c.Retention.Validate()
}

func getString(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getBool(key string, fallback bool) (bool, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func splitCSV(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
