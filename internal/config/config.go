package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

const (
	ModeRelease = "release"

	// DefaultSecret is only acceptable outside release mode.
	DefaultSecret  = "change-me-in-production"
	MinSecretBytes = 32
)

const (
	DriverSQLite = "sqlite"
	DriverMongo  = "mongo"
	DriverMemory = "memory"
)

type Config struct {
	Mode            string          `mapstructure:"mode"`
	Port            int             `mapstructure:"port"`
	LogLevel        string          `mapstructure:"log_level"`
	ReadLimit       int64           `mapstructure:"read_limit"`
	PingPeriod      time.Duration   `mapstructure:"ping_period"`
	SendBuffer      int             `mapstructure:"send_buffer"`
	Secret          string          `mapstructure:"secret"`
	TokenTTL        time.Duration   `mapstructure:"token_ttl"`
	ShutdownTimeout time.Duration   `mapstructure:"shutdown_timeout"`
	Store           StoreConfig     `mapstructure:"store"`
	Mongo           MongoConfig     `mapstructure:"mongo"`
	Redis           RedisConfig     `mapstructure:"redis"`
	RateLimit       RateLimitConfig `mapstructure:"rate_limit"`
	History         HistoryConfig   `mapstructure:"history"`
}

type StoreConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

type MongoConfig struct {
	URI      string `mapstructure:"uri"`
	Database string `mapstructure:"database"`
}

// RedisConfig enables the room index when Addr is set.
type RedisConfig struct {
	Addr   string `mapstructure:"addr"`
	Prefix string `mapstructure:"prefix"`
}

type RateLimitConfig struct {
	Messages int           `mapstructure:"messages"`
	Interval time.Duration `mapstructure:"interval"`
}

type HistoryConfig struct {
	PerPage    int `mapstructure:"per_page"`
	MaxPerPage int `mapstructure:"max_per_page"`
}

// Load reads config/config.<CONFIG_ENV>.yaml, CHAT_* env overrides and defaults.
func Load() (*Config, error) {
	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	return LoadFile(fmt.Sprintf("config/config.%s.yaml", env))
}

func LoadFile(fileName string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(fileName)

	v.SetEnvPrefix("CHAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).Str("store", cfg.Store.Driver).Msg("config ready")
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", ModeRelease)
	v.SetDefault("port", 8080)
	v.SetDefault("log_level", "info")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("send_buffer", 32)
	v.SetDefault("secret", DefaultSecret)
	v.SetDefault("token_ttl", "24h")
	v.SetDefault("shutdown_timeout", "10s")
	v.SetDefault("store.driver", DriverSQLite)
	v.SetDefault("store.dsn", "chat.db")
	v.SetDefault("mongo.uri", "mongodb://localhost:27017")
	v.SetDefault("mongo.database", "chat_app")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.prefix", "chat:")
	v.SetDefault("rate_limit.messages", 20)
	v.SetDefault("rate_limit.interval", "10s")
	v.SetDefault("history.per_page", 50)
	v.SetDefault("history.max_per_page", 100)
}

func (c *Config) Validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	switch c.Store.Driver {
	case DriverSQLite, DriverMongo, DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown store driver %q", c.Store.Driver))
	}
	switch {
	case c.Secret == "":
		errs = append(errs, errors.New("secret must be set"))
	case c.Mode == ModeRelease && c.Secret == DefaultSecret:
		errs = append(errs, errors.New("secret must be changed from the default in release mode"))
	case c.Mode == ModeRelease && len(c.Secret) < MinSecretBytes:
		errs = append(errs, fmt.Errorf("secret must be at least %d bytes in release mode", MinSecretBytes))
	}
	if c.PingPeriod <= 0 {
		errs = append(errs, errors.New("ping_period must be positive"))
	}
	if c.SendBuffer <= 0 {
		errs = append(errs, errors.New("send_buffer must be positive"))
	}
	if c.TokenTTL <= 0 {
		errs = append(errs, errors.New("token_ttl must be positive"))
	}
	if c.History.PerPage <= 0 || c.History.MaxPerPage < c.History.PerPage {
		errs = append(errs, errors.New("history.per_page must be positive and not above history.max_per_page"))
	}
	if c.RateLimit.Messages > 0 && c.RateLimit.Interval <= 0 {
		errs = append(errs, errors.New("rate_limit.interval must be positive"))
	}
	return errors.Join(errs...)
}
