package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testKey is 64 hex chars = 32 bytes.
const testKey = "0102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f20"

// allConfigKeys lists every ECOVAULT_ env var that Load() reads.
var allConfigKeys = []string{
	"ECOVAULT_ENV_FILE",
	"ECOVAULT_SECRET_KEY",
	"ECOVAULT_LISTEN_ADDR",
	"ECOVAULT_DB_PATH",
	"ECOVAULT_GETLATE_API_KEY",
	"ECOVAULT_GETLATE_API_URL",
	"ECOVAULT_IMPORT_ERROR_LIMIT",
}

// isolateConfigEnv saves and unsets all ECOVAULT_ env vars so tests don't
// inherit values from the host environment (e.g. a running dev server).
// t.Cleanup restores original values after the test.
func isolateConfigEnv(t *testing.T) {
	t.Helper()
	for _, key := range allConfigKeys {
		if orig, ok := os.LookupEnv(key); ok {
			t.Cleanup(func() { os.Setenv(key, orig) })
		} else {
			t.Cleanup(func() { os.Unsetenv(key) })
		}
		os.Unsetenv(key)
	}
}

func TestLoad_Success(t *testing.T) {
	isolateConfigEnv(t)
	t.Setenv("ECOVAULT_SECRET_KEY", testKey)
	t.Setenv("ECOVAULT_LISTEN_ADDR", "0.0.0.0:9090")
	t.Setenv("ECOVAULT_DB_PATH", "/tmp/test.db")
	t.Setenv("ECOVAULT_GETLATE_API_KEY", "sk_live")
	t.Setenv("ECOVAULT_GETLATE_API_URL", "https://example.test/api")
	t.Setenv("ECOVAULT_IMPORT_ERROR_LIMIT", "25")

	cfg, err := Load()

	require.NoError(t, err)
	assert.Len(t, cfg.SecretKey, 32)
	assert.Equal(t, byte(0x01), cfg.SecretKey[0])
	assert.Equal(t, "0.0.0.0:9090", cfg.ListenAddr)
	assert.Equal(t, "/tmp/test.db", cfg.DBPath)
	assert.Equal(t, "sk_live", cfg.GetlateAPIKey)
	assert.Equal(t, "https://example.test/api", cfg.GetlateAPIURL)
	assert.Equal(t, 25, cfg.ImportErrorLimit)
	assert.True(t, cfg.HasProfileSource())
}

func TestLoad_Defaults(t *testing.T) {
	isolateConfigEnv(t)
	t.Setenv("ECOVAULT_SECRET_KEY", testKey)

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:8080", cfg.ListenAddr)
	assert.Equal(t, "ecovault.db", cfg.DBPath)
	assert.Equal(t, "https://getlate.dev/api", cfg.GetlateAPIURL)
	assert.Equal(t, 10, cfg.ImportErrorLimit)
	assert.False(t, cfg.HasProfileSource())
}

func TestLoad_SecretKey(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		wantErr error
	}{
		{name: "absent", value: "", wantErr: ErrMissingSecretKey},
		{name: "too short", value: "deadbeef"},
		{name: "not hex", value: "zzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzz"},
		{name: "too long", value: testKey + "21"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolateConfigEnv(t)
			if tt.value != "" {
				t.Setenv("ECOVAULT_SECRET_KEY", tt.value)
			}

			cfg, err := Load()

			assert.Nil(t, cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "ECOVAULT_SECRET_KEY")
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
			}
			if tt.value != "" {
				assert.NotContains(t, err.Error(), tt.value)
			}
		})
	}
}

func TestLoad_InvalidImportErrorLimit(t *testing.T) {
	for _, v := range []string{"ten", "-1"} {
		t.Run(v, func(t *testing.T) {
			isolateConfigEnv(t)
			t.Setenv("ECOVAULT_SECRET_KEY", testKey)
			t.Setenv("ECOVAULT_IMPORT_ERROR_LIMIT", v)

			cfg, err := Load()

			assert.Nil(t, cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "ECOVAULT_IMPORT_ERROR_LIMIT")
		})
	}
}

func TestLoad_EnvFile(t *testing.T) {
	isolateConfigEnv(t)

	path := filepath.Join(t.TempDir(), "ecovault.env")
	content := "ECOVAULT_SECRET_KEY=" + testKey + "\n" +
		"ECOVAULT_DB_PATH=/var/lib/ecovault/vault.db\n" +
		"ECOVAULT_LISTEN_ADDR=0.0.0.0:1\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	t.Setenv("ECOVAULT_ENV_FILE", path)
	t.Setenv("ECOVAULT_LISTEN_ADDR", "127.0.0.1:9999")

	cfg, err := Load()

	require.NoError(t, err)
	assert.Len(t, cfg.SecretKey, 32)
	assert.Equal(t, "/var/lib/ecovault/vault.db", cfg.DBPath)
	assert.Equal(t, "127.0.0.1:9999", cfg.ListenAddr, "environment wins over the file")
}

func TestLoad_EnvFileMissing(t *testing.T) {
	isolateConfigEnv(t)
	t.Setenv("ECOVAULT_ENV_FILE", filepath.Join(t.TempDir(), "absent.env"))

	cfg, err := Load()

	assert.Nil(t, cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ECOVAULT_ENV_FILE")
}

func TestConfig_LogValueRedactsKey(t *testing.T) {
	isolateConfigEnv(t)
	t.Setenv("ECOVAULT_SECRET_KEY", testKey)
	t.Setenv("ECOVAULT_GETLATE_API_KEY", "sk_live_secret")

	cfg, err := Load()
	require.NoError(t, err)

	var buf bytes.Buffer
	slog.New(slog.NewTextHandler(&buf, nil)).Info("starting", "config", cfg)

	out := buf.String()
	assert.Contains(t, out, "[redacted]")
	assert.Contains(t, out, "config.db_path=ecovault.db")
	assert.NotContains(t, out, testKey)
	assert.NotContains(t, out, "sk_live_secret")
}
