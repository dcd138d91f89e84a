package config

import (
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	RunningBalanceWindow = "window"
	RunningBalanceFold   = "fold"
)

// BillingConfig carries the hot-reloadable knobs of the rent ledger.
type BillingConfig struct {
	ChargeLabelPrefix      string        `mapstructure:"chargeLabelPrefix"`
	ChargeDay              int           `mapstructure:"chargeDay"`
	ChargeLockTTL          time.Duration `mapstructure:"chargeLockTTL"`
	RunningBalanceStrategy string        `mapstructure:"runningBalanceStrategy"`
	HistoryLimit           int           `mapstructure:"historyLimit"`
	SchedulerInterval      time.Duration `mapstructure:"schedulerInterval"`
	NotifyTimeout          time.Duration `mapstructure:"notifyTimeout"`
}

func DefaultBillingConfig() BillingConfig {
	return BillingConfig{
		ChargeLabelPrefix:      "Monthly Rent",
		ChargeDay:              1,
		ChargeLockTTL:          10 * time.Minute,
		RunningBalanceStrategy: RunningBalanceWindow,
		HistoryLimit:           50,
		SchedulerInterval:      time.Hour,
		NotifyTimeout:          5 * time.Second,
	}
}

type BillingConfigHolder struct {
	current atomic.Value // holds BillingConfig
}

// NewStaticBillingConfigHolder pins a config without file watching.
func NewStaticBillingConfigHolder(cfg BillingConfig) *BillingConfigHolder {
	holder := &BillingConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewBillingConfigHolder() (*BillingConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("billing")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/rentledger/config")
	v.AddConfigPath("/etc/rentledger")
	v.AddConfigPath(".")

	v.SetEnvPrefix("RENTLEDGER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setBillingDefaults(v)

	watch := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		watch = false
	}

	cfg, err := decodeBillingConfig(v)
	if err != nil {
		return nil, err
	}

	holder := NewStaticBillingConfigHolder(cfg)
	if !watch {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := decodeBillingConfig(v)
		if err != nil {
			zap.L().Warn("billing config reload rejected", zap.String("file", e.Name), zap.Error(err))
			return
		}
		holder.current.Store(updated)
		zap.L().Info("billing config reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

func (h *BillingConfigHolder) Get() BillingConfig {
	if h == nil {
		return DefaultBillingConfig()
	}
	cfg, ok := h.current.Load().(BillingConfig)
	if !ok {
		return DefaultBillingConfig()
	}
	return cfg
}

func setBillingDefaults(v *viper.Viper) {
	defaults := DefaultBillingConfig()
	v.SetDefault("billing.chargeLabelPrefix", defaults.ChargeLabelPrefix)
	v.SetDefault("billing.chargeDay", defaults.ChargeDay)
	v.SetDefault("billing.chargeLockTTL", defaults.ChargeLockTTL)
	v.SetDefault("billing.runningBalanceStrategy", defaults.RunningBalanceStrategy)
	v.SetDefault("billing.historyLimit", defaults.HistoryLimit)
	v.SetDefault("billing.schedulerInterval", defaults.SchedulerInterval)
	v.SetDefault("billing.notifyTimeout", defaults.NotifyTimeout)
}

func decodeBillingConfig(v *viper.Viper) (BillingConfig, error) {
	// Unmarshal walks AllSettings, which merges nested defaults with the file.
	var doc struct {
		Billing BillingConfig `mapstructure:"billing"`
	}
	if err := v.Unmarshal(&doc); err != nil {
		return BillingConfig{}, err
	}
	cfg := doc.Billing
	cfg.ChargeLabelPrefix = strings.TrimSpace(cfg.ChargeLabelPrefix)
	cfg.RunningBalanceStrategy = strings.ToLower(strings.TrimSpace(cfg.RunningBalanceStrategy))
	if err := validateBillingConfig(cfg); err != nil {
		return BillingConfig{}, err
	}
	return cfg, nil
}

func validateBillingConfig(cfg BillingConfig) error {
	if cfg.ChargeLabelPrefix == "" {
		return errors.New("billing.chargeLabelPrefix cannot be empty")
	}
	// 28 keeps the run day valid in every month.
	if cfg.ChargeDay < 1 || cfg.ChargeDay > 28 {
		return errors.New("billing.chargeDay must be between 1 and 28")
	}
	switch cfg.RunningBalanceStrategy {
	case RunningBalanceWindow, RunningBalanceFold:
	default:
		return errors.New("billing.runningBalanceStrategy must be window or fold")
	}
	if cfg.HistoryLimit <= 0 {
		return errors.New("billing.historyLimit must be positive")
	}
	if cfg.ChargeLockTTL <= 0 || cfg.SchedulerInterval <= 0 || cfg.NotifyTimeout <= 0 {
		return errors.New("billing durations must be positive")
	}
	return nil
}
