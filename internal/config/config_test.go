package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("POSTGRES_DSN", "postgres://rg:rg@localhost:5432/rg?sslmode=disable")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("BILLING_WEBHOOK_SECRET", "")
}

func TestParse_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Parse()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.APIAddr)
	assert.Equal(t, 5*time.Minute, cfg.SchedulerInterval)
	assert.Equal(t, 25, cfg.SchedulerBatchSize)
	assert.Equal(t, 4, cfg.SchedulerConcurrency)
	assert.Equal(t, 10*time.Minute, cfg.SchedulerClaimTTL)
	assert.Equal(t, int64(10000), cfg.SearchDailyQuota)
	assert.True(t, cfg.AutoMigrate)
	assert.False(t, cfg.Dev())
	assert.Empty(t, cfg.KafkaBrokers)
	assert.Empty(t, cfg.BillingWebhookSecret, "the scheduler runs without billing settings")
}

func TestParse_Overrides(t *testing.T) {
	setRequired(t)
	t.Setenv("APP_ENV", "dev")
	t.Setenv("SCHEDULER_INTERVAL", "30s")
	t.Setenv("SCHEDULER_CONCURRENCY", "0")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg, err := Parse()
	require.NoError(t, err)

	assert.True(t, cfg.Dev())
	assert.Equal(t, 30*time.Second, cfg.SchedulerInterval)
	assert.Equal(t, 1, cfg.SchedulerConcurrency)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
}

func TestParse_MissingRequired(t *testing.T) {
	t.Setenv("POSTGRES_DSN", "")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("BILLING_WEBHOOK_SECRET", "whsec_test")

	_, err := Parse()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "POSTGRES_DSN")
}

func TestParse_NonPositiveIntervalFallsBack(t *testing.T) {
	setRequired(t)
	t.Setenv("SCHEDULER_INTERVAL", "0")

	cfg, err := Parse()
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, cfg.SchedulerInterval)

	t.Setenv("SCHEDULER_INTERVAL", "-1m")
	cfg, err = Parse()
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, cfg.SchedulerInterval)
}

func TestValidateAPI_RequiresWebhookSecret(t *testing.T) {
	setRequired(t)

	cfg, err := Parse()
	require.NoError(t, err)
	err = cfg.ValidateAPI()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BILLING_WEBHOOK_SECRET")

	t.Setenv("BILLING_WEBHOOK_SECRET", "whsec_test")
	cfg, err = Parse()
	require.NoError(t, err)
	assert.NoError(t, cfg.ValidateAPI())
}
