package app

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	_ "github.com/hackportal/hackportal-backend/testing"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("CACHE_BACKEND", "memory")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, "memory", cfg.CacheBackend)
	require.Equal(t, 10, cfg.DBPoolSize)
	require.True(t, cfg.CacheEnabled)
	require.True(t, cfg.HackathonScopedDefault)
	require.False(t, cfg.IsProduction())
	require.Equal(t, 10000, cfg.CacheMemoryConfig().Capacity)
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("CACHE_BACKEND", "redis")
	t.Setenv("REDIS_ADDR", "cache:6379")
	t.Setenv("DB_POOL_SIZE", "4")
	t.Setenv("DB_IDLE_SIZE", "2")
	t.Setenv("HACKATHON_SCOPED_DEFAULT", "false")
	t.Setenv("CACHE_CAPACITY", "50")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, "redis", cfg.CacheBackend)
	require.Equal(t, "cache:6379", cfg.RedisAddr)
	require.Equal(t, 4, cfg.DBPoolSize)
	require.Equal(t, 2, cfg.DBIdleSize)
	require.False(t, cfg.HackathonScopedDefault)
	require.Equal(t, 50, cfg.CacheMemoryConfig().Capacity)
}

func TestLoadConfigRejectsInvalidValues(t *testing.T) {
	t.Setenv("CACHE_BACKEND", "memcached")
	_, err := LoadConfig()
	require.ErrorContains(t, err, "CacheBackend")

	t.Setenv("CACHE_BACKEND", "memory")
	t.Setenv("DB_POOL_SIZE", "2")
	t.Setenv("DB_IDLE_SIZE", "3")
	_, err = LoadConfig()
	require.ErrorContains(t, err, "DBIdleSize")

	t.Setenv("DB_POOL_SIZE", "many")
	_, err = LoadConfig()
	require.Error(t, err)
}

func TestNewLoggerFormats(t *testing.T) {
	var buf bytes.Buffer
	newLogger(&buf, &Config{LogFormat: "json", LogLevel: "warn"}).Info("hidden")
	require.Empty(t, buf.String())

	newLogger(&buf, &Config{LogFormat: "json", LogLevel: "debug"}).Debug("shown", slog.String("table", "HACKATHON"))
	require.True(t, strings.HasPrefix(buf.String(), "{"))
	require.Contains(t, buf.String(), `"table":"HACKATHON"`)
}

func TestInTestMode(t *testing.T) {
	RefreshTestMode()
	require.True(t, InTestMode())
}
