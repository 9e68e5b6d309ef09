package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PAIRCHAT_TEST_STR", "hello")
	assert.Equal(t, "hello", envStr("PAIRCHAT_TEST_STR", "fallback"))
	assert.Equal(t, "fallback", envStr("PAIRCHAT_TEST_STR_MISSING", "fallback"))

	t.Setenv("PAIRCHAT_TEST_INT", "42")
	assert.Equal(t, 42, envInt("PAIRCHAT_TEST_INT", 7))
	assert.Equal(t, 7, envInt("PAIRCHAT_TEST_INT_MISSING", 7))

	t.Setenv("PAIRCHAT_TEST_INT_BAD", "forty")
	assert.Equal(t, 7, envInt("PAIRCHAT_TEST_INT_BAD", 7))
}

func TestLoadDefaultsWithoutFiles(t *testing.T) {
	t.Setenv("APP_ENV", "production") // skip .env walking
	t.Setenv("CONFIG_PATH", "/nonexistent/api.yaml")
	t.Setenv("DATABASE_CONFIG_PATH", "/nonexistent/database.yaml")
	t.Setenv("CACHE_CONFIG_PATH", "/nonexistent/cache.yaml")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://app.example.com")
	t.Setenv("DATABASE_URL", "postgres://u:p@db.internal:5432/pairchat")

	cfg := Load()
	assert.Equal(t, ":8080", cfg.ServerAddr)
	assert.Equal(t, 10, cfg.Cache.TTLMinutes)
	assert.Equal(t, 20, cfg.DBMaxConnections())
	assert.Equal(t, "postgres://u:p@db.internal:5432/pairchat", cfg.DatabaseURL())
	assert.NotEmpty(t, cfg.CallICEServers, "a default STUN server is always present")
}
