package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testJSON = `{
	"server_address": ":3000",
	"log_level": "warning",
	"file_storage_path": "json_storage.json",
	"database_dsn": "json-dsn",
	"trusted_subnet": "10.0.0.0/8"
}`

func writeTempJSON(t *testing.T, content string) string {
	t.Helper()
	file, err := os.CreateTemp("", "config*.json")
	require.NoError(t, err)
	_, err = file.WriteString(content)
	require.NoError(t, err)
	require.NoError(t, file.Close())
	t.Cleanup(func() {
		err := os.Remove(file.Name())
		require.NoError(t, err)
	})
	return file.Name()
}

func TestApplyDefaults(t *testing.T) {
	values := Config{}

	applyDefaults(&values, defaultConfig)

	assert.Equal(t, ":8080", values.RunAddr)
	assert.Equal(t, "info", values.LogLevel)
	assert.Equal(t, 10*time.Second, values.DBConnectionTimeout)
	assert.Equal(t, "auth", values.AuthCookieName)
}

func TestConfigPriorityJSONOnly(t *testing.T) {
	jsonPath := writeTempJSON(t, testJSON)
	t.Setenv("CONFIG", jsonPath)

	cfg, err := New(WithDisableFlagsParsing(true))
	require.NoError(t, err)

	assert.Equal(t, ":3000", cfg.RunAddr)
	assert.Equal(t, "warning", cfg.LogLevel)
	assert.Equal(t, "json_storage.json", cfg.DBFileName)
	assert.Equal(t, "json-dsn", cfg.DatabaseDSN)
	assert.Equal(t, "10.0.0.0/8", cfg.TrustedSubnet)
}

func TestConfigPriorityJSONPlusEnv(t *testing.T) {
	jsonPath := writeTempJSON(t, testJSON)
	t.Setenv("CONFIG", jsonPath)
	t.Setenv("SERVER_ADDRESS", ":4000")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := New(WithDisableFlagsParsing(true))
	require.NoError(t, err)

	assert.Equal(t, ":4000", cfg.RunAddr) // env overrides json
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "json-dsn", cfg.DatabaseDSN) // from JSON
}

func TestConfigPriorityAllSources(t *testing.T) {
	jsonPath := writeTempJSON(t, testJSON)
	t.Setenv("CONFIG", jsonPath)
	t.Setenv("SERVER_ADDRESS", ":4000")

	oldArgs := os.Args
	t.Cleanup(func() { os.Args = oldArgs })
	os.Args = []string{
		"testbin",
		"-a", ":6000",
	}

	cfg, err := New()
	require.NoError(t, err)

	assert.Equal(t, ":6000", cfg.RunAddr)        // CLI > ENV > JSON
	assert.Equal(t, "json-dsn", cfg.DatabaseDSN) // from JSON
}

func TestConfigEnvOnly(t *testing.T) {
	t.Setenv("SERVER_ADDRESS", ":7000")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("MIGRATIONS_DIR", "some_migrations")

	cfg, err := New(WithDisableFlagsParsing(true))
	require.NoError(t, err)

	assert.Equal(t, ":7000", cfg.RunAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "some_migrations", cfg.MigrationsDir)
}

func TestConfigInvalidLogLevel(t *testing.T) {
	t.Setenv("LOG_LEVEL", "loud")

	_, err := New(WithDisableFlagsParsing(true))
	assert.Error(t, err)
}

func TestConfigInvalidTrustedSubnet(t *testing.T) {
	t.Setenv("TRUSTED_SUBNET", "not-a-cidr")

	_, err := New(WithDisableFlagsParsing(true))
	assert.Error(t, err)
}
