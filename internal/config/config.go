// Package config loads application configuration from environment variables.
package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// ErrMissingSecretKey is returned when ECOVAULT_SECRET_KEY is unset or empty.
var ErrMissingSecretKey = errors.New("ECOVAULT_SECRET_KEY is required")

// Config holds the application configuration loaded from environment variables.
type Config struct {
	SecretKey        []byte
	ListenAddr       string
	DBPath           string
	GetlateAPIKey    string
	GetlateAPIURL    string
	ImportErrorLimit int
}

// HasProfileSource returns true when a Getlate API key is configured. Used by
// the composition root to decide whether profile sync is available.
func (c *Config) HasProfileSource() bool {
	return c.GetlateAPIKey != ""
}

// LogValue implements slog.LogValuer. Secrets are redacted.
func (c *Config) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("secret_key", "[redacted]"),
		slog.String("listen_addr", c.ListenAddr),
		slog.String("db_path", c.DBPath),
		slog.Bool("profile_source", c.HasProfileSource()),
		slog.String("getlate_api_url", c.GetlateAPIURL),
		slog.Int("import_error_limit", c.ImportErrorLimit),
	)
}

// Load reads configuration from environment variables and returns a validated Config.
// When ECOVAULT_ENV_FILE names a dotenv file it is loaded first; variables
// already present in the environment win over the file.
// ECOVAULT_SECRET_KEY is required: 64 hex characters encoding a 32-byte key.
// Optional variables with defaults: ECOVAULT_LISTEN_ADDR (127.0.0.1:8080),
// ECOVAULT_DB_PATH (ecovault.db), ECOVAULT_GETLATE_API_KEY (sync disabled),
// ECOVAULT_GETLATE_API_URL (https://getlate.dev/api),
// ECOVAULT_IMPORT_ERROR_LIMIT (10).
func Load() (*Config, error) {
	if path, ok := os.LookupEnv("ECOVAULT_ENV_FILE"); ok && path != "" {
		if err := godotenv.Load(path); err != nil {
			return nil, fmt.Errorf("load ECOVAULT_ENV_FILE %q: %w", path, err)
		}
	}

	secretHex := os.Getenv("ECOVAULT_SECRET_KEY")
	if secretHex == "" {
		return nil, ErrMissingSecretKey
	}
	secretKey, err := hex.DecodeString(secretHex)
	if err != nil || len(secretKey) != 32 {
		// The value itself is never echoed.
		return nil, errors.New("ECOVAULT_SECRET_KEY must be 64 hex characters (32 bytes)")
	}

	listenAddr := "127.0.0.1:8080"
	if v, ok := os.LookupEnv("ECOVAULT_LISTEN_ADDR"); ok {
		listenAddr = v
	}

	dbPath := "ecovault.db"
	if v, ok := os.LookupEnv("ECOVAULT_DB_PATH"); ok {
		dbPath = v
	}

	apiURL := "https://getlate.dev/api"
	if v, ok := os.LookupEnv("ECOVAULT_GETLATE_API_URL"); ok && v != "" {
		apiURL = v
	}

	errorLimit := 10
	if v, ok := os.LookupEnv("ECOVAULT_IMPORT_ERROR_LIMIT"); ok {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 0 {
			return nil, fmt.Errorf("ECOVAULT_IMPORT_ERROR_LIMIT has invalid value %q", v)
		}
		errorLimit = parsed
	}

	return &Config{
		SecretKey:        secretKey,
		ListenAddr:       listenAddr,
		DBPath:           dbPath,
		GetlateAPIKey:    os.Getenv("ECOVAULT_GETLATE_API_KEY"),
		GetlateAPIURL:    apiURL,
		ImportErrorLimit: errorLimit,
	}, nil
}
