package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	// Artifact and input locations.
	HoursTablePath  string
	AggregatesPath  string
	CohortTablePath string
	ParksFile       string
	EntityDBPath    string
	ObservationsDir string
	HoursFeedPath   string
	ReportsDir      string

	// Batch job tuning.
	ImputeHorizonDays     int
	AggregateLookbackDays int
	EntityCacheSize       int

	KafkaBrokers      []string
	KafkaHoursTopic   string
	KafkaChangesTopic string
	KafkaGroupID      string
	KafkaEnabled      bool

	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	BatchSize          int
	BatchFlushInterval time.Duration
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	batchSize, err := sharedcfg.ParseBatchSize()
	if err != nil {
		return nil, err
	}

	flushInterval, err := sharedcfg.ParseBatchFlushInterval()
	if err != nil {
		return nil, err
	}

	horizon, err := parsePositiveInt("IMPUTE_HORIZON_DAYS", 365)
	if err != nil {
		return nil, err
	}
	lookback, err := parsePositiveInt("AGGREGATE_LOOKBACK_DAYS", 1095)
	if err != nil {
		return nil, err
	}
	cacheSize, err := parsePositiveInt("ENTITY_CACHE_SIZE", 1000)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		HoursTablePath:  sharedcfg.EnvOrDefault("HOURS_TABLE_PATH", "data/hours/park_hours_versioned.csv"),
		AggregatesPath:  sharedcfg.EnvOrDefault("AGGREGATES_PATH", "data/aggregates/posted_aggregates.csv"),
		CohortTablePath: sharedcfg.EnvOrDefault("COHORT_TABLE_PATH", "data/dimensions/dategroupid.csv"),
		ParksFile:       sharedcfg.EnvOrDefault("PARKS_FILE", "config/parks.yaml"),
		EntityDBPath:    sharedcfg.EnvOrDefault("ENTITY_DB_PATH", "data/dimensions/entities.db"),
		ObservationsDir: sharedcfg.EnvOrDefault("OBSERVATIONS_DIR", "data/facts"),
		HoursFeedPath:   sharedcfg.EnvOrDefault("HOURS_FEED_PATH", "data/feeds/park_hours.csv"),
		ReportsDir:      sharedcfg.EnvOrDefault("REPORTS_DIR", "reports"),

		ImputeHorizonDays:     horizon,
		AggregateLookbackDays: lookback,
		EntityCacheSize:       cacheSize,

		KafkaBrokers:      sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaHoursTopic:   sharedcfg.EnvOrDefault("KAFKA_HOURS_TOPIC", "park-hours-feed"),
		KafkaChangesTopic: sharedcfg.EnvOrDefault("KAFKA_CHANGES_TOPIC", "park-hours-changes"),
		KafkaGroupID:      sharedcfg.EnvOrDefault("KAFKA_GROUP_ID", "park-waits-etl"),
		KafkaEnabled:      os.Getenv("KAFKA_ENABLED") != "false",

		HTTPAddr:           sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:           sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:          sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout:    shutdownTimeout,
		BatchSize:          batchSize,
		BatchFlushInterval: flushInterval,
	}

	if cfg.KafkaEnabled {
		if len(cfg.KafkaBrokers) == 0 {
			return nil, errors.New("KAFKA_BROKERS is required")
		}
		if cfg.KafkaHoursTopic == "" {
			return nil, errors.New("KAFKA_HOURS_TOPIC is required")
		}
		if cfg.KafkaChangesTopic == "" {
			return nil, errors.New("KAFKA_CHANGES_TOPIC is required")
		}
	}

	return cfg, nil
}

func parsePositiveInt(key string, fallback int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s: must be a positive integer", key)
	}
	return n, nil
}
