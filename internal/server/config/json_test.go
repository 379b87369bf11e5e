package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempJSON(t *testing.T, dir, name string, data map[string]any) string {
	t.Helper()
	path := filepath.Join(dir, name)
	b, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0o600))
	return path
}

func Test_parseJson(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	dir := t.TempDir()
	full := writeTempJSON(t, dir, "full.json", map[string]any{
		"http_addr":             ":9090",
		"grpc_addr":             ":9091",
		"database_dsn":          "postgres://db",
		"secret_key":            "my_secret_key",
		"s3_root_user":          "user",
		"s3_root_password":      "password",
		"s3_bucket":             "bucket",
		"s3_region":             "region",
		"s3_base_endpoint":      "base_endpoint",
		"download_base_url":     "https://shop.example/download",
		"default_file_key":      "fallback.png",
		"token_ttl":             "72h",
		"max_downloads":         5,
		"request_timeout":       "30s",
		"sweep_interval":        "15m",
		"redis_addr":            "redis:6379",
		"rate_limit_per_minute": 60,
		"log_level":             "debug",
	})

	t.Run("loads every field", func(t *testing.T) {
		os.Args = []string{"testbin", "-config", full}

		cfg := &Config{}
		parseJson(cfg)

		assert.Equal(t, ":9090", cfg.HTTPAddr)
		assert.Equal(t, ":9091", cfg.GRPCAddr)
		assert.Equal(t, "postgres://db", cfg.DatabaseDSN)
		assert.Equal(t, "my_secret_key", cfg.SecretKey)
		assert.Equal(t, "user", cfg.S3RootUser)
		assert.Equal(t, "password", cfg.S3RootPassword)
		assert.Equal(t, "bucket", cfg.S3Bucket)
		assert.Equal(t, "region", cfg.S3Region)
		assert.Equal(t, "base_endpoint", cfg.S3BaseEndpoint)
		assert.Equal(t, "https://shop.example/download", cfg.DownloadBaseURL)
		assert.Equal(t, "fallback.png", cfg.DefaultFileKey)
		assert.Equal(t, 72*time.Hour, cfg.TokenTTL)
		assert.Equal(t, 5, cfg.MaxDownloads)
		assert.Equal(t, 30*time.Second, cfg.RequestTimeout)
		assert.Equal(t, 15*time.Minute, cfg.SweepInterval)
		assert.Equal(t, "redis:6379", cfg.RedisAddr)
		assert.Equal(t, 60, cfg.RateLimitPerMinute)
		assert.Equal(t, "debug", cfg.LogLevel)
	})

	t.Run("partial file keeps other values", func(t *testing.T) {
		partial := writeTempJSON(t, dir, "partial.json", map[string]any{"s3_bucket": "only-bucket"})
		os.Args = []string{"testbin", "-c", partial}

		cfg := &Config{}
		cfg.LoadDefaults()
		parseJson(cfg)

		assert.Equal(t, "only-bucket", cfg.S3Bucket)
		assert.Equal(t, ":8080", cfg.HTTPAddr)
		assert.Equal(t, 10, cfg.MaxDownloads)
	})

	t.Run("no config flag, no changes", func(t *testing.T) {
		os.Args = []string{"testbin"}

		cfg := &Config{HTTPAddr: "defaults:1234"}
		parseJson(cfg)

		assert.Equal(t, "defaults:1234", cfg.HTTPAddr)
	})

	t.Run("invalid JSON panics", func(t *testing.T) {
		bad := filepath.Join(dir, "bad.json")
		require.NoError(t, os.WriteFile(bad, []byte(`{ this is not valid json`), 0o600))
		os.Args = []string{"testbin", "-config", bad}

		require.Panics(t, func() { parseJson(&Config{}) })
	})

	t.Run("missing file panics", func(t *testing.T) {
		os.Args = []string{"testbin", "-c", filepath.Join(dir, "absent.json")}

		require.Panics(t, func() { parseJson(&Config{}) })
	})
}
