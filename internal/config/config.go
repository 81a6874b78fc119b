// Package config loads the server configuration from the environment and
// an optional config.yml.
package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// MinSecretLength is the shortest SESSION_SECRET accepted.
const MinSecretLength = 16

// Config holds application configuration values loaded from file or environment variables.
type Config struct {
	Port                 int           `mapstructure:"PORT"`
	DBPath               string        `mapstructure:"DB_PATH"`
	UploadDir            string        `mapstructure:"UPLOAD_DIR"`
	SessionSecret        string        `mapstructure:"SESSION_SECRET"`
	SessionTTL           time.Duration `mapstructure:"SESSION_TTL"`
	SessionSweepInterval time.Duration `mapstructure:"SESSION_SWEEP_INTERVAL"`
	MaxUploadMB          int64         `mapstructure:"MAX_UPLOAD_MB"`
	SecureCookies        bool          `mapstructure:"SECURE_COOKIES"`
	LogLevel             string        `mapstructure:"LOG_LEVEL"`
}

// defaults double as the list of keys viper should look up in the environment.
var defaults = map[string]any{
	"PORT":                   8080,
	"DB_PATH":                "data/hubimg.db",
	"UPLOAD_DIR":             "data/uploads",
	"SESSION_SECRET":         "",
	"SESSION_TTL":            "24h",
	"SESSION_SWEEP_INTERVAL": "10m",
	"MAX_UPLOAD_MB":          16,
	"SECURE_COOKIES":         false,
	"LOG_LEVEL":              "info",
}

// Load reads config.yml from the given directories (the working directory
// if none are given), then lets environment variables override it.
// A missing config file is fine; a malformed one is not.
func Load(dirs ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yml")
	if len(dirs) == 0 {
		dirs = []string{"."}
	}
	for _, d := range dirs {
		v.AddConfigPath(d)
	}
	v.AutomaticEnv()

	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decoding: %w", err)
	}
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &cfg, nil
}

// Validate checks that every value is usable. An empty SESSION_SECRET is
// allowed here; see EnsureSecret.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535, got %d", c.Port)
	}
	if c.DBPath == "" {
		return errors.New("DB_PATH is required")
	}
	if c.UploadDir == "" {
		return errors.New("UPLOAD_DIR is required")
	}
	if c.SessionSecret != "" && len(c.SessionSecret) < MinSecretLength {
		return fmt.Errorf("SESSION_SECRET must be at least %d characters", MinSecretLength)
	}
	if c.SessionTTL <= 0 {
		return errors.New("SESSION_TTL must be positive")
	}
	if c.SessionSweepInterval <= 0 {
		return errors.New("SESSION_SWEEP_INTERVAL must be positive")
	}
	if c.MaxUploadMB <= 0 {
		return errors.New("MAX_UPLOAD_MB must be positive")
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// EnsureSecret fills in a random SESSION_SECRET when none is configured
// and reports whether it did. Sessions signed with a generated secret do
// not survive a restart.
func (c *Config) EnsureSecret() (bool, error) {
	if c.SessionSecret != "" {
		return false, nil
	}
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return false, fmt.Errorf("config: generating session secret: %w", err)
	}
	c.SessionSecret = hex.EncodeToString(buf)
	return true, nil
}

// SlogLevel returns LOG_LEVEL as a slog.Level. Validate has already
// rejected unknown names.
func (c *Config) SlogLevel() slog.Level {
	l, _ := parseLevel(c.LogLevel)
	return l
}

func parseLevel(s string) (slog.Level, error) {
	switch s {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("LOG_LEVEL %q is not one of debug, info, warn, error", s)
}
