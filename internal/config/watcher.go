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

// WatcherConfig tunes the push-mode listener. It is loaded from watcher.yml
// and may be reloaded at runtime; a new ingestion run picks up the current
// values when it starts.
type WatcherConfig struct {
	MaxInFlight      int           `mapstructure:"maxInFlight"`
	ReconnectBackoff time.Duration `mapstructure:"reconnectBackoff"`
	WriteTimeout     time.Duration `mapstructure:"writeTimeout"`
}

func DefaultWatcherConfig() WatcherConfig {
	return WatcherConfig{
		MaxInFlight:      100,
		ReconnectBackoff: 5 * time.Second,
		WriteTimeout:     10 * time.Second,
	}
}

// WatcherConfigHolder keeps the current watcher config behind an atomic
// so a reload never races a reader.
type WatcherConfigHolder struct {
	current atomic.Value // holds WatcherConfig
}

// NewWatcherConfigHolder layers watcher.yml over the process configuration:
// a yaml value wins, an absent one falls back to cfg (so MAX_IN_FLIGHT from
// the environment takes effect without a config file).
func NewWatcherConfigHolder(cfg Config) (*WatcherConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("watcher")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/xrpwatch")
	v.AddConfigPath(".")

	v.SetEnvPrefix("XRPWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultWatcherConfig()
	if cfg.MaxInFlight > 0 {
		defaults.MaxInFlight = cfg.MaxInFlight
	}
	v.SetDefault("watcher.maxInFlight", defaults.MaxInFlight)
	v.SetDefault("watcher.reconnectBackoff", defaults.ReconnectBackoff)
	v.SetDefault("watcher.writeTimeout", defaults.WriteTimeout)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var wcfg WatcherConfig
	if err := v.UnmarshalKey("watcher", &wcfg); err != nil {
		return nil, err
	}
	if err := validateWatcherConfig(wcfg); err != nil {
		return nil, err
	}

	holder := &WatcherConfigHolder{}
	holder.current.Store(wcfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated WatcherConfig
		if err := v.UnmarshalKey("watcher", &updated); err != nil {
			log.Printf("[watcher-config] reload failed: %v", err)
			return
		}
		if err := validateWatcherConfig(updated); err != nil {
			log.Printf("[watcher-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[watcher-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

// NewStaticWatcherConfigHolder wraps a fixed config with no file watching.
func NewStaticWatcherConfigHolder(cfg WatcherConfig) *WatcherConfigHolder {
	holder := &WatcherConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func (h *WatcherConfigHolder) Get() WatcherConfig {
	return h.current.Load().(WatcherConfig)
}

func validateWatcherConfig(cfg WatcherConfig) error {
	if cfg.MaxInFlight <= 0 {
		return errors.New("watcher.maxInFlight must be positive")
	}
	if cfg.ReconnectBackoff < 0 {
		return errors.New("watcher.reconnectBackoff cannot be negative")
	}
	if cfg.WriteTimeout < 0 {
		return errors.New("watcher.writeTimeout cannot be negative")
	}
	return nil
}
