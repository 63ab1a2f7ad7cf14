// Package config loads ecgdrive settings from the environment. Command line
// flags override individual fields after Load.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/teemow/ecgdrive/internal/drive"
	"github.com/teemow/ecgdrive/internal/google"
	"github.com/teemow/ecgdrive/internal/redisstore"
	"github.com/teemow/ecgdrive/internal/reports"
)

// Storage backends for credentials and pending authorizations.
const (
	StorageFile  = "file"
	StorageRedis = "redis"
)

const (
	DefaultCredentialsFile = "credentials.json"
	DefaultRedirectURI     = "http://localhost:8080/google_drive/callback"
	DefaultHTTPAddr        = ":8080"
	DefaultMetricsAddr     = ":9090"
	DefaultRefreshMargin   = 60 * time.Second
)

// Config holds the runtime configuration.
type Config struct {
	// CredentialsFile is the Google console client secrets JSON.
	// Ignored when ClientID and ClientSecret are set.
	CredentialsFile string
	ClientID        string
	ClientSecret    string

	// RedirectURI must match the console registration exactly
	RedirectURI string

	// TokenFile is where the file store keeps the token record
	TokenFile string

	// TokenEncryptionKey is a base64 encoded 32 byte key. Empty stores
	// tokens in plaintext.
	TokenEncryptionKey string

	// Storage is "file" or "redis"
	Storage     string
	RedisURL    string
	RedisPrefix string

	RefreshMargin      time.Duration
	UploadMaxAttempts  int
	ResumableThreshold int64

	FolderLayout string
	RootFolder   string

	HTTPAddr       string
	MetricsEnabled bool
	MetricsAddr    string
}

// Load reads the configuration from environment variables, applying
// defaults for anything unset. Call Validate before use.
func Load() Config {
	return Config{
		CredentialsFile:    getEnvOrDefault("ECGDRIVE_CREDENTIALS_FILE", DefaultCredentialsFile),
		ClientID:           os.Getenv("GOOGLE_CLIENT_ID"),
		ClientSecret:       os.Getenv("GOOGLE_CLIENT_SECRET"),
		RedirectURI:        getEnvOrDefault("ECGDRIVE_REDIRECT_URI", DefaultRedirectURI),
		TokenFile:          getEnvOrDefault("ECGDRIVE_TOKEN_FILE", DefaultTokenFile()),
		TokenEncryptionKey: os.Getenv("ECGDRIVE_TOKEN_ENCRYPTION_KEY"),
		Storage:            getEnvOrDefault("ECGDRIVE_STORAGE", StorageFile),
		RedisURL:           os.Getenv("ECGDRIVE_REDIS_URL"),
		RedisPrefix:        getEnvOrDefault("ECGDRIVE_REDIS_PREFIX", redisstore.DefaultPrefix),
		RefreshMargin:      getEnvDurationOrDefault("ECGDRIVE_REFRESH_MARGIN", DefaultRefreshMargin),
		UploadMaxAttempts:  getEnvIntOrDefault("ECGDRIVE_UPLOAD_MAX_ATTEMPTS", int(drive.DefaultRetryPolicy().MaxAttempts)),
		ResumableThreshold: int64(getEnvIntOrDefault("ECGDRIVE_RESUMABLE_THRESHOLD", drive.DefaultResumableThreshold)),
		FolderLayout:       getEnvOrDefault("ECGDRIVE_FOLDER_LAYOUT", string(reports.LayoutNone)),
		RootFolder:         os.Getenv("ECGDRIVE_ROOT_FOLDER"),
		HTTPAddr:           getEnvOrDefault("ECGDRIVE_HTTP_ADDR", DefaultHTTPAddr),
		MetricsEnabled:     getEnvBoolOrDefault("METRICS_ENABLED", true),
		MetricsAddr:        getEnvOrDefault("METRICS_ADDR", DefaultMetricsAddr),
	}
}

// DefaultTokenFile returns <user config dir>/ecgdrive/token.json, or
// token.json in the working directory when there is no config dir.
func DefaultTokenFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "token.json"
	}
	return filepath.Join(dir, "ecgdrive", "token.json")
}

// Validate checks the configuration for values that cannot work.
func (c *Config) Validate() error {
	switch c.Storage {
	case StorageFile:
		if c.TokenFile == "" {
			return fmt.Errorf("token file is required for %s storage", StorageFile)
		}
	case StorageRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("redis URL is required for %s storage", StorageRedis)
		}
	default:
		return fmt.Errorf("invalid storage %q, must be one of: file, redis", c.Storage)
	}

	if _, err := reports.ParseFolderLayout(c.FolderLayout); err != nil {
		return err
	}

	if c.UploadMaxAttempts <= 0 {
		return fmt.Errorf("upload max attempts must be positive, got %d", c.UploadMaxAttempts)
	}
	if c.ResumableThreshold <= 0 {
		return fmt.Errorf("resumable threshold must be positive, got %d", c.ResumableThreshold)
	}
	if c.RefreshMargin < 0 {
		return fmt.Errorf("refresh margin must not be negative, got %s", c.RefreshMargin)
	}

	if c.ClientID == "" && c.ClientSecret == "" && c.CredentialsFile == "" {
		return fmt.Errorf("either a credentials file or GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET are required")
	}
	if (c.ClientID == "") != (c.ClientSecret == "") {
		return fmt.Errorf("GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET must be set together")
	}

	// An empty redirect URI defers to the credentials file
	if c.RedirectURI != "" {
		if err := google.ValidateRedirectURI(c.RedirectURI); err != nil {
			return err
		}
	}

	return nil
}

// ClientOptions returns the options for google.LoadClientConfig. Explicit
// client credentials take precedence over the credentials file.
func (c *Config) ClientOptions() google.ClientOptions {
	opts := google.ClientOptions{RedirectURI: c.RedirectURI}
	if c.ClientID != "" && c.ClientSecret != "" {
		opts.ClientID = c.ClientID
		opts.ClientSecret = c.ClientSecret
	} else {
		opts.CredentialsFile = c.CredentialsFile
	}
	return opts
}

// RetryPolicy returns the Drive retry policy with the configured attempts.
func (c *Config) RetryPolicy() drive.RetryPolicy {
	p := drive.DefaultRetryPolicy()
	p.MaxAttempts = uint(c.UploadMaxAttempts)
	return p
}

// Layout returns the parsed folder layout. Validate reports parse errors.
func (c *Config) Layout() reports.FolderLayout {
	l, err := reports.ParseFolderLayout(c.FolderLayout)
	if err != nil {
		return reports.LayoutNone
	}
	return l
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			return defaultValue
		}
		return parsed
	}
	return defaultValue
}

// getEnvIntOrDefault returns the integer value of an environment variable.
// Negative values are kept so that Validate can reject them.
func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return defaultValue
		}
		return parsed
	}
	return defaultValue
}

// getEnvDurationOrDefault accepts Go durations ("90s") or whole seconds ("90").
func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
