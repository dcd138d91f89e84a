package scheduler

import (
	"time"

	"github.com/smallbiznis/rentledger/internal/config"
)

// Config controls scheduler intervals and job timeouts.
type Config struct {
	RunInterval    time.Duration
	ChargeTimeout  time.Duration
	OverdueTimeout time.Duration
	EnabledJobs    []string
}

func DefaultConfig() Config {
	return Config{
		RunInterval:    time.Hour,
		ChargeTimeout:  5 * time.Minute,
		OverdueTimeout: 30 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.ChargeTimeout <= 0 {
		c.ChargeTimeout = defaults.ChargeTimeout
	}
	if c.OverdueTimeout <= 0 {
		c.OverdueTimeout = defaults.OverdueTimeout
	}
	return c
}

func ProvideConfig(cfg config.Config, billing *config.BillingConfigHolder) Config {
	return Config{
		RunInterval: billing.Get().SchedulerInterval,
		EnabledJobs: cfg.SchedulerJobs,
	}.withDefaults()
}
