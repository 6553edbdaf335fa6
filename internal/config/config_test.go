package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	cfg := Default("Test Biz", "sole_proprietor")
	cfg.Events.KafkaBrokers = []string{"kafka-1:9092", "kafka-2:9092"}
	cfg.HTTP.AllowedOrigins = []string{"https://books.example.com"}
	cfg.Cache.TTL = 90 * time.Second

	path := filepath.Join(t.TempDir(), FileName)
	err := Save(path, cfg)
	require.NoError(t, err)

	got, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, cfg.Business, got.Business)
	assert.Equal(t, cfg.Database, got.Database)
	assert.Equal(t, cfg.Posting.MaxAttempts, got.Posting.MaxAttempts)
	assert.Equal(t, 90*time.Second, got.Cache.TTL)
	assert.Equal(t, cfg.Events.KafkaBrokers, got.Events.KafkaBrokers)
	assert.Equal(t, cfg.HTTP, got.HTTP)
	assert.Equal(t, cfg.Log, got.Log)
}

func TestDefaults(t *testing.T) {
	cfg := Default("My Company", "sole_proprietor")

	assert.Equal(t, "My Company", cfg.Business.Name)
	assert.Equal(t, DriverPostgres, cfg.Database.Driver)
	assert.Equal(t, 5, cfg.Posting.MaxAttempts)
	assert.False(t, cfg.Cache.Enabled)
	assert.Equal(t, "ledger.transactions", cfg.Events.KafkaTopic)
	assert.Empty(t, cfg.Events.KafkaBrokers)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.NoError(t, cfg.Validate())
}

func TestLoadNotFound(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nonexistent.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, os.WriteFile(path, []byte("business:\n  name: Acme\ndatabase:\n  driver: memory\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "Acme", cfg.Business.Name)
	assert.Equal(t, DriverMemory, cfg.Database.Driver)
	assert.Equal(t, 5, cfg.Posting.MaxAttempts)
	assert.Equal(t, 30*time.Second, cfg.HTTP.RequestTimeout)
}

func TestLoad_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, os.WriteFile(path, []byte("database:\n  driver: sqlite\n"), 0o644))

	_, err := Load(path)
	assert.ErrorContains(t, err, "unknown database.driver")
}

func TestYAMLFormat(t *testing.T) {
	cfg := Default("Test Biz", "sole_proprietor")
	path := filepath.Join(t.TempDir(), FileName)
	err := Save(path, cfg)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	contents := string(data)

	assert.Contains(t, contents, "name: Test Biz")
	assert.Contains(t, contents, "driver: postgres")
	assert.Contains(t, contents, "max_attempts: 5")
	assert.Contains(t, contents, "ttl: 10m0s")
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"LEDGER_DATABASE_URL":  "postgres://u:p@db:5432/books",
		"LEDGER_REDIS_ADDR":    "redis:6379",
		"LEDGER_KAFKA_BROKERS": "k1:9092, k2:9092,",
		"LEDGER_LOG_LEVEL":     "debug",
		"LEDGER_HTTP_ADDR":     "",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := Default("x", "")
	require.NoError(t, applyEnv(cfg, lookup))
	assert.Equal(t, "postgres://u:p@db:5432/books", cfg.Database.URL)
	assert.Equal(t, "redis:6379", cfg.Cache.Addr)
	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Events.KafkaBrokers)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, ":8080", cfg.HTTP.Addr, "empty values do not override")
}

func TestApplyEnv_Errors(t *testing.T) {
	cfg := Default("x", "")
	err := applyEnv(cfg, func(k string) (string, bool) {
		if k == "LEDGER_CACHE_ENABLED" {
			return "maybe", true
		}
		return "", false
	})
	assert.ErrorContains(t, err, "LEDGER_CACHE_ENABLED")

	cfg = Default("x", "")
	err = applyEnv(cfg, func(k string) (string, bool) {
		if k == "LEDGER_DATABASE_DRIVER" {
			return "oracle", true
		}
		return "", false
	})
	assert.ErrorContains(t, err, "unknown database.driver")
}
