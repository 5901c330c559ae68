// Package config provides layered configuration for the scraper, the change
// watcher and the web server.
//
// Values are resolved in order, later layers winning:
//
//  1. struct tag defaults
//  2. an optional json5 file, merged with its <name>.local.<ext> sibling
//  3. a .env file in the working directory
//  4. environment variables
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Database DatabaseConfig `json:"database"`
	Server   ServerConfig   `json:"server"`
	Logging  LoggingConfig  `json:"logging"`
	Scraper  ScraperConfig  `json:"scraper"`
	Watch    WatchConfig    `json:"watch"`
}

// DatabaseConfig selects the store backend by URL scheme.
type DatabaseConfig struct {
	// URL is a postgres://, libsql:// or sqlite:// connection string
	URL string `json:"url" env:"DATABASE_URL" default:"sqlite://visawatch.db"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `json:"port" env:"PORT" default:"8080"`
}

// LoggingConfig holds slog settings.
type LoggingConfig struct {
	Level  string `json:"level" env:"LOG_LEVEL" default:"info"`
	Format string `json:"format" env:"LOG_FORMAT" default:"text"`
}

// ScraperConfig holds settings for the listing site client.
type ScraperConfig struct {
	BaseURL         string   `json:"base_url" env:"VISAWATCH_BASE_URL" default:"https://www.checkee.info"`
	Timeout         Duration `json:"timeout" env:"VISAWATCH_TIMEOUT" default:"30s"`
	RequestInterval Duration `json:"request_interval" env:"VISAWATCH_REQUEST_INTERVAL" default:"1s"`
	MaxRetries      int      `json:"max_retries" env:"VISAWATCH_MAX_RETRIES" default:"3"`
}

// WatchConfig holds settings for periodic import runs.
type WatchConfig struct {
	Interval Duration `json:"interval" env:"VISAWATCH_INTERVAL" default:"6h"`
	// Months is how many of the newest periods each run imports
	Months         int  `json:"months" env:"VISAWATCH_MONTHS" default:"1"`
	IncludeDetails bool `json:"include_details" env:"VISAWATCH_INCLUDE_DETAILS"`
}

// Duration is a time.Duration written as "90s" or "6h" in files and env.
type Duration time.Duration

// UnmarshalText parses a Go duration string
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration: %w", err)
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std returns d as a time.Duration
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Validate checks that the configuration is usable.
// Returns an error describing all validation failures.
func (c *Config) Validate() error {
	var errs []string

	if c.Database.URL == "" {
		errs = append(errs, "DATABASE_URL is required")
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("PORT (%d) must be 1-65535", c.Server.Port))
	}

	if c.Scraper.BaseURL == "" {
		errs = append(errs, "VISAWATCH_BASE_URL is required")
	}
	if c.Scraper.Timeout <= 0 {
		errs = append(errs, "VISAWATCH_TIMEOUT must be positive")
	}
	if c.Scraper.RequestInterval < 0 {
		errs = append(errs, "VISAWATCH_REQUEST_INTERVAL must be non-negative")
	}
	if c.Scraper.MaxRetries <= 0 {
		errs = append(errs, "VISAWATCH_MAX_RETRIES must be positive")
	}

	if c.Watch.Interval <= 0 {
		errs = append(errs, "VISAWATCH_INTERVAL must be positive")
	}
	if c.Watch.Months < 0 {
		errs = append(errs, "VISAWATCH_MONTHS must be non-negative")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, fmt.Sprintf("LOG_LEVEL (%q) must be one of: debug, info, warn, error", c.Logging.Level))
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		errs = append(errs, fmt.Sprintf("LOG_FORMAT (%q) must be one of: text, json", c.Logging.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// String returns a representation safe for logs; the database URL is masked.
func (c *Config) String() string {
	var b strings.Builder
	b.WriteString("Config{")
	b.WriteString("Database: {URL: [MASKED]}, ")
	b.WriteString(fmt.Sprintf("Server: {Port: %d}, ", c.Server.Port))
	b.WriteString(fmt.Sprintf("Scraper: {BaseURL: %q, Timeout: %s, RequestInterval: %s, MaxRetries: %d}, ",
		c.Scraper.BaseURL, c.Scraper.Timeout.Std(), c.Scraper.RequestInterval.Std(), c.Scraper.MaxRetries))
	b.WriteString(fmt.Sprintf("Watch: {Interval: %s, Months: %d, IncludeDetails: %v}, ",
		c.Watch.Interval.Std(), c.Watch.Months, c.Watch.IncludeDetails))
	b.WriteString(fmt.Sprintf("Logging: {Level: %q, Format: %q}",
		c.Logging.Level, c.Logging.Format))
	b.WriteString("}")
	return b.String()
}
