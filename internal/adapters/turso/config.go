package turso

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/emiliopalmerini/splango/internal/util"
)

// Config holds the database connection settings.
type Config struct {
	// URL is either a local "file:" DSN or a remote libsql/http(s) URL.
	URL       string
	AuthToken string
}

// LoadConfig loads database configuration from environment variables. When
// SPLANGO_DATABASE_URL is unset the database is a local file in the XDG data dir.
func LoadConfig() (Config, error) {
	cfg := Config{
		URL:       os.Getenv("SPLANGO_DATABASE_URL"),
		AuthToken: os.Getenv("SPLANGO_AUTH_TOKEN"),
	}
	if cfg.URL != "" {
		if cfg.IsRemote() && cfg.AuthToken == "" {
			return Config{}, fmt.Errorf("SPLANGO_AUTH_TOKEN environment variable is required for remote databases")
		}
		return cfg, nil
	}

	dataDir, err := util.GetXDGDataDir()
	if err != nil {
		return Config{}, err
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return Config{}, fmt.Errorf("failed to create data directory: %w", err)
	}
	cfg.URL = "file:" + filepath.Join(dataDir, "splango.db")
	return cfg, nil
}

// IsRemote reports whether the URL points at a libsql server rather than a local file.
func (c Config) IsRemote() bool {
	for _, prefix := range []string{"libsql://", "http://", "https://", "wss://", "ws://"} {
		if strings.HasPrefix(c.URL, prefix) {
			return true
		}
	}
	return false
}

// DSN returns the driver connection string.
func (c Config) DSN() string {
	if c.IsRemote() && c.AuthToken != "" {
		return c.URL + "?authToken=" + c.AuthToken
	}
	return c.URL
}
