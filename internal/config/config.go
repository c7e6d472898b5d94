package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/dkeye/Signage/internal/session"
)

const EnvPrefix = "SIGNAGE"

type Config struct {
	Relay  RelayConfig  `mapstructure:"relay"`
	Client ClientConfig `mapstructure:"client"`
}

type RelayConfig struct {
	Mode     string        `mapstructure:"mode"`
	Port     int           `mapstructure:"port"`
	Secret   string        `mapstructure:"secret"`
	Issuer   string        `mapstructure:"issuer"`
	TokenTTL time.Duration `mapstructure:"token_ttl"`

	RedisURL     string `mapstructure:"redis_url"`
	RedisChannel string `mapstructure:"redis_channel"`

	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	SendBuffer int           `mapstructure:"send_buffer"`
	FrameRate  float64       `mapstructure:"frame_rate"`
	FrameBurst int           `mapstructure:"frame_burst"`
	MaxDrops   int           `mapstructure:"max_drops"`

	EmbeddedStore bool `mapstructure:"embedded_store"`
	// StoreEvents makes the embedded store publish an event per write.
	StoreEvents bool `mapstructure:"store_events"`
}

type ClientConfig struct {
	RelayURL string `mapstructure:"relay_url"`
	StoreURL string `mapstructure:"store_url"`
	Token    string `mapstructure:"token"`

	Heartbeat         time.Duration `mapstructure:"heartbeat"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
	ReconnectBase     time.Duration `mapstructure:"reconnect_base"`
	ReconnectMax      time.Duration `mapstructure:"reconnect_max"`
	ReconnectAttempts int           `mapstructure:"reconnect_attempts"`
	OutboxSize        int           `mapstructure:"outbox_size"`
}

// SessionOptions maps the client section onto session.Options.
func (c ClientConfig) SessionOptions() session.Options {
	return session.Options{
		URL:               c.RelayURL,
		Token:             c.Token,
		HeartbeatInterval: c.Heartbeat,
		BaseDelay:         c.ReconnectBase,
		MaxDelay:          c.ReconnectMax,
		MaxAttempts:       c.ReconnectAttempts,
		Jitter:            0.2,
		OutboxSize:        c.OutboxSize,
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("relay.mode", "release")
	v.SetDefault("relay.port", 8080)
	v.SetDefault("relay.secret", "")
	v.SetDefault("relay.issuer", "signage")
	v.SetDefault("relay.token_ttl", "24h")
	v.SetDefault("relay.redis_url", "")
	v.SetDefault("relay.redis_channel", "signage:rooms")
	v.SetDefault("relay.read_limit", 32768)
	v.SetDefault("relay.ping_period", "54s")
	v.SetDefault("relay.send_buffer", 64)
	v.SetDefault("relay.frame_rate", 50)
	v.SetDefault("relay.frame_burst", 100)
	v.SetDefault("relay.max_drops", 8)
	v.SetDefault("relay.embedded_store", false)
	v.SetDefault("relay.store_events", false)

	v.SetDefault("client.relay_url", "ws://localhost:8080/api/ws")
	v.SetDefault("client.store_url", "http://localhost:8080")
	v.SetDefault("client.token", "")
	v.SetDefault("client.heartbeat", "25s")
	v.SetDefault("client.request_timeout", "10s")
	v.SetDefault("client.reconnect_base", "1s")
	v.SetDefault("client.reconnect_max", "30s")
	v.SetDefault("client.reconnect_attempts", 5)
	v.SetDefault("client.outbox_size", 256)
}

// Load reads config/config.<CONFIG_ENV>.yaml (dev when unset). SIGNAGE_*
// variables override file values, e.g. SIGNAGE_RELAY_PORT.
func Load() (*Config, error) {
	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	return LoadFile(fmt.Sprintf("config/config.%s.yaml", env))
}

// LoadFile is Load with an explicit path. A missing file falls back to
// defaults and environment.
func LoadFile(fileName string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(fileName)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Err(err).Msg("config file not loaded, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", v.ConfigFileUsed()).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	log.Info().Str("module", "config").Str("mode", cfg.Relay.Mode).Int("port", cfg.Relay.Port).Bool("embedded_store", cfg.Relay.EmbeddedStore).Msg("config ready")
	return &cfg, nil
}
