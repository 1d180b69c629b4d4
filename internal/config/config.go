package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/joho/godotenv"
)

// Storage backends.
const (
	StorageS3   = "s3"
	StorageFile = "file"
)

// Config holds all job settings, populated from environment variables.
type Config struct {
	CatalogPath string

	// NASA POWER API.
	PowerBaseURL   string
	PowerCommunity string
	LookbackDays   int
	RequestTimeout time.Duration
	RateLimitWait  time.Duration
	MaxRetries     int

	// Circuit breaker around the fetcher.
	BreakerThreshold int
	BreakerCooldown  time.Duration

	// Batch scheduling.
	BatchSize  int
	Workers    int
	BatchPause time.Duration
	RunTimeout time.Duration

	// Snapshot storage.
	StorageBackend  string
	S3Bucket        string
	S3Key           string
	S3Region        string
	S3Endpoint      string
	LocalStorageDir string
	MergeDedup      bool

	// Optional observation publishing.
	KafkaBrokers []string
	KafkaTopic   string

	PushgatewayURL  string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
}

// KafkaEnabled reports whether fresh observations are published to Kafka.
func (c *Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

// Load reads configuration from environment variables, applying defaults where unset.
// A .env file in the working directory is loaded first when present; variables
// already set in the environment take precedence.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		CatalogPath:     sharedcfg.EnvOrDefault("CATALOG_PATH", "data/african_regions_with_coordinates.csv"),
		PowerBaseURL:    sharedcfg.EnvOrDefault("POWER_BASE_URL", "https://power.larc.nasa.gov/api/temporal/daily/point"),
		PowerCommunity:  sharedcfg.EnvOrDefault("POWER_COMMUNITY", "SB"),
		StorageBackend:  strings.ToLower(sharedcfg.EnvOrDefault("STORAGE_BACKEND", StorageS3)),
		S3Bucket:        sharedcfg.EnvOrDefault("S3_BUCKET", "data-meteo-as"),
		S3Key:           sharedcfg.EnvOrDefault("S3_KEY", "climate_data.csv"),
		S3Region:        os.Getenv("S3_REGION"),
		S3Endpoint:      os.Getenv("S3_ENDPOINT"),
		LocalStorageDir: sharedcfg.EnvOrDefault("LOCAL_STORAGE_DIR", "data/store"),
		KafkaBrokers:    sharedcfg.ParseBrokers(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:      sharedcfg.EnvOrDefault("KAFKA_TOPIC", "climate-observations"),
		PushgatewayURL:  os.Getenv("PUSHGATEWAY_URL"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
	}

	var err error
	if cfg.LookbackDays, err = parseInt("LOOKBACK_DAYS", 30, 0, 3650); err != nil {
		return nil, err
	}
	if cfg.MaxRetries, err = parseInt("MAX_RETRIES", 5, 0, 100); err != nil {
		return nil, err
	}
	if cfg.BreakerThreshold, err = parseInt("BREAKER_THRESHOLD", 5, 1, 1000); err != nil {
		return nil, err
	}
	if cfg.BatchSize, err = parseInt("BATCH_SIZE", 10, 1, 1000); err != nil {
		return nil, err
	}
	if cfg.Workers, err = parseInt("WORKERS", 10, 1, 1000); err != nil {
		return nil, err
	}
	if cfg.RequestTimeout, err = parsePositiveDuration("REQUEST_TIMEOUT", "30s"); err != nil {
		return nil, err
	}
	if cfg.RateLimitWait, err = parseDuration("RATE_LIMIT_WAIT", "20s"); err != nil {
		return nil, err
	}
	if cfg.BreakerCooldown, err = parsePositiveDuration("BREAKER_COOLDOWN", "60s"); err != nil {
		return nil, err
	}
	if cfg.BatchPause, err = parseDuration("BATCH_PAUSE", "2s"); err != nil {
		return nil, err
	}
	if cfg.RunTimeout, err = parsePositiveDuration("RUN_TIMEOUT", "30m"); err != nil {
		return nil, err
	}
	if cfg.ShutdownTimeout, err = sharedcfg.ParseShutdownTimeout(); err != nil {
		return nil, err
	}
	if cfg.MergeDedup, err = parseBool("MERGE_DEDUP", false); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.CatalogPath == "" {
		return errors.New("CATALOG_PATH is required")
	}
	if c.Workers > c.BatchSize {
		return fmt.Errorf("WORKERS (%d) must not exceed BATCH_SIZE (%d)", c.Workers, c.BatchSize)
	}
	switch c.StorageBackend {
	case StorageS3:
		if c.S3Bucket == "" {
			return errors.New("S3_BUCKET is required for the s3 storage backend")
		}
	case StorageFile:
		if c.LocalStorageDir == "" {
			return errors.New("LOCAL_STORAGE_DIR is required for the file storage backend")
		}
	default:
		return fmt.Errorf("invalid STORAGE_BACKEND %q: want %q or %q", c.StorageBackend, StorageS3, StorageFile)
	}
	if c.S3Key == "" {
		return errors.New("S3_KEY is required")
	}
	if c.KafkaEnabled() && c.KafkaTopic == "" {
		return errors.New("KAFKA_TOPIC is required when KAFKA_BROKERS is set")
	}
	return nil
}

func parseInt(key string, fallback, minVal, maxVal int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < minVal || n > maxVal {
		return 0, fmt.Errorf("invalid %s: must be an integer in [%d, %d]", key, minVal, maxVal)
	}
	return n, nil
}

func parseDuration(key, fallback string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, fallback))
	if err != nil || d < 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parsePositiveDuration(key, fallback string) (time.Duration, error) {
	d, err := parseDuration(key, fallback)
	if err != nil || d == 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parseBool(key string, fallback bool) (bool, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("invalid %s", key)
	}
	return b, nil
}
