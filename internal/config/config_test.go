package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const defaultBroker = "localhost:9092"

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "data/hours/park_hours_versioned.csv", cfg.HoursTablePath)
	assert.Equal(t, "data/aggregates/posted_aggregates.csv", cfg.AggregatesPath)
	assert.Equal(t, "data/dimensions/dategroupid.csv", cfg.CohortTablePath)
	assert.Equal(t, "config/parks.yaml", cfg.ParksFile)
	assert.Equal(t, "data/dimensions/entities.db", cfg.EntityDBPath)
	assert.Equal(t, "data/facts", cfg.ObservationsDir)
	assert.Equal(t, "data/feeds/park_hours.csv", cfg.HoursFeedPath)
	assert.Equal(t, "reports", cfg.ReportsDir)
	assert.Equal(t, 365, cfg.ImputeHorizonDays)
	assert.Equal(t, 1095, cfg.AggregateLookbackDays)
	assert.Equal(t, 1000, cfg.EntityCacheSize)

	assert.Equal(t, []string{defaultBroker}, cfg.KafkaBrokers)
	assert.Equal(t, "park-hours-feed", cfg.KafkaHoursTopic)
	assert.Equal(t, "park-hours-changes", cfg.KafkaChangesTopic)
	assert.Equal(t, "park-waits-etl", cfg.KafkaGroupID)
	assert.True(t, cfg.KafkaEnabled)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, 50, cfg.BatchSize)
	assert.Equal(t, 500*time.Millisecond, cfg.BatchFlushInterval)
}

func TestLoad_CustomEnv(t *testing.T) {
	t.Setenv("HOURS_TABLE_PATH", "/srv/hours.csv")
	t.Setenv("AGGREGATES_PATH", "/srv/agg.csv")
	t.Setenv("COHORT_TABLE_PATH", "/srv/cohort.csv")
	t.Setenv("PARKS_FILE", "/etc/parks.yaml")
	t.Setenv("ENTITY_DB_PATH", "/srv/entities.db")
	t.Setenv("OBSERVATIONS_DIR", "/srv/facts")
	t.Setenv("HOURS_FEED_PATH", "/srv/feed.csv")
	t.Setenv("REPORTS_DIR", "/srv/reports")
	t.Setenv("IMPUTE_HORIZON_DAYS", "90")
	t.Setenv("AGGREGATE_LOOKBACK_DAYS", "730")
	t.Setenv("ENTITY_CACHE_SIZE", "64")
	t.Setenv("KAFKA_BROKERS", "broker1:9092,broker2:9092")
	t.Setenv("KAFKA_HOURS_TOPIC", "hours-in")
	t.Setenv("KAFKA_CHANGES_TOPIC", "hours-out")
	t.Setenv("KAFKA_GROUP_ID", "custom-group")
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "text")
	t.Setenv("SHUTDOWN_TIMEOUT", "30s")
	t.Setenv("BATCH_SIZE", "100")
	t.Setenv("BATCH_FLUSH_INTERVAL", "1s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/srv/hours.csv", cfg.HoursTablePath)
	assert.Equal(t, "/srv/agg.csv", cfg.AggregatesPath)
	assert.Equal(t, "/srv/cohort.csv", cfg.CohortTablePath)
	assert.Equal(t, "/etc/parks.yaml", cfg.ParksFile)
	assert.Equal(t, "/srv/entities.db", cfg.EntityDBPath)
	assert.Equal(t, "/srv/facts", cfg.ObservationsDir)
	assert.Equal(t, "/srv/feed.csv", cfg.HoursFeedPath)
	assert.Equal(t, "/srv/reports", cfg.ReportsDir)
	assert.Equal(t, 90, cfg.ImputeHorizonDays)
	assert.Equal(t, 730, cfg.AggregateLookbackDays)
	assert.Equal(t, 64, cfg.EntityCacheSize)
	assert.Equal(t, []string{"broker1:9092", "broker2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "hours-in", cfg.KafkaHoursTopic)
	assert.Equal(t, "hours-out", cfg.KafkaChangesTopic)
	assert.Equal(t, "custom-group", cfg.KafkaGroupID)
	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, 100, cfg.BatchSize)
	assert.Equal(t, 1*time.Second, cfg.BatchFlushInterval)
}

func TestLoad_InvalidShutdownTimeout(t *testing.T) {
	t.Setenv("SHUTDOWN_TIMEOUT", "not-a-duration")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SHUTDOWN_TIMEOUT")
}

func TestLoad_NegativeShutdownTimeout(t *testing.T) {
	t.Setenv("SHUTDOWN_TIMEOUT", "-1s")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SHUTDOWN_TIMEOUT")
}

func TestLoad_InvalidBatchSize(t *testing.T) {
	t.Setenv("BATCH_SIZE", "0")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BATCH_SIZE")
}

func TestLoad_BatchSizeTooLarge(t *testing.T) {
	t.Setenv("BATCH_SIZE", "9999")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BATCH_SIZE")
}

func TestLoad_InvalidBatchFlushInterval(t *testing.T) {
	t.Setenv("BATCH_FLUSH_INTERVAL", "not-a-duration")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BATCH_FLUSH_INTERVAL")
}

func TestLoad_InvalidPositiveInts(t *testing.T) {
	for _, key := range []string{"IMPUTE_HORIZON_DAYS", "AGGREGATE_LOOKBACK_DAYS", "ENTITY_CACHE_SIZE"} {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, "-3")
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), key)
		})
	}
}

func TestLoad_EmptyBrokers(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", " , ")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "KAFKA_BROKERS")
}

func TestLoad_KafkaDisabledSkipsBrokerCheck(t *testing.T) {
	t.Setenv("KAFKA_ENABLED", "false")
	t.Setenv("KAFKA_BROKERS", ",")
	cfg, err := Load()
	require.NoError(t, err)
	assert.False(t, cfg.KafkaEnabled)
	assert.Empty(t, cfg.KafkaBrokers)
}
