// Package config loads service configuration from a yaml file with
// environment overrides and validates it before anything starts.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/altonen7/dexstream/internal/registry"
)

// MarketEntry is the startup market list: the symbols the service will
// accept subscriptions for, with their on-chain account addresses.
type MarketEntry struct {
	Symbol     string `mapstructure:"symbol" validate:"required"`
	Address    string `mapstructure:"address"`
	ProgramID  string `mapstructure:"program_id"`
	Deprecated bool   `mapstructure:"deprecated"`
}

type HTTPConfig struct {
	Addr string `mapstructure:"addr" validate:"required"`
}

type RateLimitConfig struct {
	Limit    int           `mapstructure:"limit" validate:"min=1"`
	Interval time.Duration `mapstructure:"interval" validate:"min=1ms"`
}

type FeedConfig struct {
	Backend      string        `mapstructure:"backend" validate:"oneof=none redis kafka"`
	Buffer       int           `mapstructure:"buffer" validate:"min=1"`
	RedisAddr    string        `mapstructure:"redis_addr" validate:"required_if=Backend redis"`
	RedisChannel string        `mapstructure:"redis_channel"`
	KafkaBrokers []string      `mapstructure:"kafka_brokers" validate:"required_if=Backend kafka"`
	KafkaTopic   string        `mapstructure:"kafka_topic"`
	KafkaGroup   string        `mapstructure:"kafka_group"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
}

type MetadataConfig struct {
	URL     string        `mapstructure:"url" validate:"omitempty,url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type Config struct {
	LogLevel string `mapstructure:"log_level" validate:"oneof=debug info warn error"`

	HTTP      HTTPConfig      `mapstructure:"http"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Feed      FeedConfig      `mapstructure:"feed"`
	Metadata  MetadataConfig  `mapstructure:"metadata"`

	Workers       int           `mapstructure:"workers" validate:"min=1"`
	TradeCapacity int           `mapstructure:"trade_capacity" validate:"min=1"`
	MaxMarkets    int           `mapstructure:"max_markets" validate:"min=1"`
	SendBuffer    int           `mapstructure:"send_buffer" validate:"min=1"`
	IdleTimeout   time.Duration `mapstructure:"idle_timeout" validate:"min=1s"`

	Markets []MarketEntry `mapstructure:"markets" validate:"min=1,dive"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("http.addr", ":8000")
	v.SetDefault("rate_limit.limit", 50)
	v.SetDefault("rate_limit.interval", time.Second)
	v.SetDefault("feed.backend", "none")
	v.SetDefault("feed.buffer", 4096)
	v.SetDefault("feed.redis_channel", "dexstream.events")
	v.SetDefault("feed.kafka_topic", "dexstream.events")
	v.SetDefault("feed.kafka_group", "dexstream")
	v.SetDefault("feed.retry_backoff", 2*time.Second)
	v.SetDefault("metadata.timeout", 15*time.Second)
	v.SetDefault("workers", 1)
	v.SetDefault("trade_capacity", 100)
	v.SetDefault("max_markets", 40)
	v.SetDefault("send_buffer", 256)
	v.SetDefault("idle_timeout", 5*time.Minute)
}

// Load reads the config file at path (a yaml file; empty path means
// ./config.yaml), applies DEXSTREAM_* environment overrides, and validates
// the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	v.SetEnvPrefix("DEXSTREAM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// RegistryMarkets converts the configured market list into registry
// descriptors. Enrichment fields stay empty until the metadata loader runs.
func (c *Config) RegistryMarkets() []registry.Market {
	out := make([]registry.Market, len(c.Markets))
	for i, m := range c.Markets {
		out[i] = registry.Market{
			Symbol:     m.Symbol,
			Address:    m.Address,
			ProgramID:  m.ProgramID,
			Deprecated: m.Deprecated,
		}
	}
	return out
}
