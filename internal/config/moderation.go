package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// ModerationConfig holds moderation tunables that can change without a restart.
type ModerationConfig struct {
	// PostTTLDays is how long a non-terminal post may live before the
	// expiry sweeper moves it to expired.
	PostTTLDays int `mapstructure:"postTtlDays"`
	// ExpirySweepInterval is the sweeper wake-up period.
	ExpirySweepInterval time.Duration `mapstructure:"expirySweepInterval"`
	// ExpirySweepBatchSize bounds how many posts one sweep expires.
	ExpirySweepBatchSize int `mapstructure:"expirySweepBatchSize"`
}

func DefaultModerationConfig() ModerationConfig {
	return ModerationConfig{
		PostTTLDays:          30,
		ExpirySweepInterval:  time.Hour,
		ExpirySweepBatchSize: 500,
	}
}

// ModerationConfigHolder exposes the current moderation config and hot
// reloads it when the backing file changes.
type ModerationConfigHolder struct {
	current atomic.Value // holds ModerationConfig
}

func NewModerationConfigHolder() (*ModerationConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("moderation")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/pasar/config")
	v.AddConfigPath("/etc/pasar")
	v.AddConfigPath(".")

	v.SetEnvPrefix("PASAR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		defaults := DefaultModerationConfig()
		v.SetDefault("moderation.postTtlDays", defaults.PostTTLDays)
		v.SetDefault("moderation.expirySweepInterval", defaults.ExpirySweepInterval)
		v.SetDefault("moderation.expirySweepBatchSize", defaults.ExpirySweepBatchSize)
	}

	var cfg ModerationConfig
	if err := v.UnmarshalKey("moderation", &cfg); err != nil {
		return nil, err
	}
	if err := validateModerationConfig(cfg); err != nil {
		return nil, err
	}

	holder := &ModerationConfigHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated ModerationConfig
		if err := v.UnmarshalKey("moderation", &updated); err != nil {
			log.Printf("[moderation-config] reload failed: %v", err)
			return
		}
		if err := validateModerationConfig(updated); err != nil {
			log.Printf("[moderation-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[moderation-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

// NewStaticModerationConfigHolder wraps a fixed config with no file
// watching behind it.
func NewStaticModerationConfigHolder(cfg ModerationConfig) *ModerationConfigHolder {
	holder := &ModerationConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func (h *ModerationConfigHolder) Get() ModerationConfig {
	return h.current.Load().(ModerationConfig)
}

func validateModerationConfig(cfg ModerationConfig) error {
	if cfg.PostTTLDays <= 0 {
		return errors.New("moderation.postTtlDays must be positive")
	}
	if cfg.ExpirySweepInterval <= 0 {
		return errors.New("moderation.expirySweepInterval must be positive")
	}
	if cfg.ExpirySweepBatchSize <= 0 {
		return errors.New("moderation.expirySweepBatchSize must be positive")
	}
	return nil
}
