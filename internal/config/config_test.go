package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const releaseSecret = "0123456789abcdef0123456789abcdef"

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.test.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFile_DefaultsWithoutFile(t *testing.T) {
	t.Setenv("CHAT_SECRET", releaseSecret)
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "release", cfg.Mode)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 54*time.Second, cfg.PingPeriod)
	assert.Equal(t, 24*time.Hour, cfg.TokenTTL)
	assert.Equal(t, DriverSQLite, cfg.Store.Driver)
	assert.Equal(t, "chat.db", cfg.Store.DSN)
	assert.Equal(t, "chat:", cfg.Redis.Prefix)
	assert.Empty(t, cfg.Redis.Addr)
	assert.Equal(t, 20, cfg.RateLimit.Messages)
	assert.Equal(t, 10*time.Second, cfg.RateLimit.Interval)
	assert.Equal(t, HistoryConfig{PerPage: 50, MaxPerPage: 100}, cfg.History)
}

func TestLoadFile_ReleaseRejectsDefaultSecret(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "secret must be changed")

	path := writeConfig(t, "mode: debug\n")
	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultSecret, cfg.Secret)
}

func TestLoadFile_YAML(t *testing.T) {
	path := writeConfig(t, `
mode: debug
port: 9090
ping_period: 30s
store:
  driver: mongo
mongo:
  uri: mongodb://db:27017
  database: chat_test
redis:
  addr: redis:6379
history:
  per_page: 10
  max_per_page: 20
`)
	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Mode)
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, 30*time.Second, cfg.PingPeriod)
	assert.Equal(t, DriverMongo, cfg.Store.Driver)
	assert.Equal(t, MongoConfig{URI: "mongodb://db:27017", Database: "chat_test"}, cfg.Mongo)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
	assert.Equal(t, 10, cfg.History.PerPage)
	// untouched keys keep their defaults
	assert.Equal(t, 32, cfg.SendBuffer)
}

func TestLoadFile_EnvOverrides(t *testing.T) {
	path := writeConfig(t, "port: 9090\nstore:\n  driver: sqlite\n")
	t.Setenv("CHAT_SECRET", releaseSecret)
	t.Setenv("CHAT_PORT", "7070")
	t.Setenv("CHAT_STORE_DRIVER", "memory")
	t.Setenv("CHAT_RATE_LIMIT_MESSAGES", "5")

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Port)
	assert.Equal(t, DriverMemory, cfg.Store.Driver)
	assert.Equal(t, 5, cfg.RateLimit.Messages)
	assert.Equal(t, releaseSecret, cfg.Secret)
}

func TestLoadFile_Invalid(t *testing.T) {
	path := writeConfig(t, "port: 70000\nstore:\n  driver: postgres\n")
	_, err := LoadFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "port 70000 out of range")
	assert.Contains(t, err.Error(), `unknown store driver "postgres"`)
}

func TestLoad_UsesConfigEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "config"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config", "config.ci.yaml"), []byte("port: 6060\n"), 0o600))
	t.Chdir(dir)
	t.Setenv("CONFIG_ENV", "ci")
	t.Setenv("CHAT_SECRET", releaseSecret)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 6060, cfg.Port)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Mode:       "debug",
			Port:       8080,
			PingPeriod: time.Second,
			SendBuffer: 1,
			Secret:     "s",
			TokenTTL:   time.Hour,
			Store:      StoreConfig{Driver: DriverMemory},
			History:    HistoryConfig{PerPage: 10, MaxPerPage: 10},
		}
	}
	base := valid()
	require.NoError(t, base.Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty secret", func(c *Config) { c.Secret = "" }},
		{"zero ping", func(c *Config) { c.PingPeriod = 0 }},
		{"zero buffer", func(c *Config) { c.SendBuffer = 0 }},
		{"zero ttl", func(c *Config) { c.TokenTTL = 0 }},
		{"page above max", func(c *Config) { c.History.PerPage = 11 }},
		{"limit without interval", func(c *Config) { c.RateLimit.Messages = 3 }},
		{"release with default secret", func(c *Config) { c.Mode = ModeRelease; c.Secret = DefaultSecret }},
		{"release with short secret", func(c *Config) { c.Mode = ModeRelease; c.Secret = releaseSecret[:MinSecretBytes-1] }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
	release := valid()
	release.Mode = ModeRelease
	release.Secret = releaseSecret
	assert.NoError(t, release.Validate())
}
