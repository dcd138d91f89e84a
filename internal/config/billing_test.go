package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultBillingConfigIsValid(t *testing.T) {
	require.NoError(t, validateBillingConfig(DefaultBillingConfig()))
}

func TestValidateBillingConfigRejectsBadValues(t *testing.T) {
	cases := map[string]func(*BillingConfig){
		"empty prefix":     func(c *BillingConfig) { c.ChargeLabelPrefix = "" },
		"charge day zero":  func(c *BillingConfig) { c.ChargeDay = 0 },
		"charge day 31":    func(c *BillingConfig) { c.ChargeDay = 31 },
		"unknown strategy": func(c *BillingConfig) { c.RunningBalanceStrategy = "magic" },
		"zero limit":       func(c *BillingConfig) { c.HistoryLimit = 0 },
		"zero lock ttl":    func(c *BillingConfig) { c.ChargeLockTTL = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultBillingConfig()
			mutate(&cfg)
			assert.Error(t, validateBillingConfig(cfg))
		})
	}
}

func TestDecodeBillingConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	body := []byte("billing:\n  chargeLabelPrefix: \" Rent \"\n  chargeDay: 5\n  runningBalanceStrategy: FOLD\n  schedulerInterval: 15m\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "billing.yml"), body, 0o600))

	v := viper.New()
	v.SetConfigFile(filepath.Join(dir, "billing.yml"))
	setBillingDefaults(v)
	require.NoError(t, v.ReadInConfig())

	cfg, err := decodeBillingConfig(v)
	require.NoError(t, err)
	assert.Equal(t, "Rent", cfg.ChargeLabelPrefix)
	assert.Equal(t, 5, cfg.ChargeDay)
	assert.Equal(t, RunningBalanceFold, cfg.RunningBalanceStrategy)
	assert.Equal(t, 15*time.Minute, cfg.SchedulerInterval)
	assert.Equal(t, DefaultBillingConfig().HistoryLimit, cfg.HistoryLimit)
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "k1:9092, ,k2:9092")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("SCHEDULER_ENABLED", "off")

	cfg := Load()
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.True(t, cfg.Redis.Enabled())
	assert.False(t, cfg.SchedulerEnabled)
}

func TestNilHolderFallsBackToDefaults(t *testing.T) {
	var holder *BillingConfigHolder
	assert.Equal(t, DefaultBillingConfig(), holder.Get())
}
