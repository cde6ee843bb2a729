// Package config loads application configuration and sets up logging.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration values.
type Config struct {
	// External service endpoints
	ResolverURL string
	ScraperURL  string
	HistoryURL  string
	AnalyzeURL  string

	// Orchestration
	ScrapeTimeout time.Duration

	// Identity (single hardcoded user upstream; device id override optional)
	UserID   string
	DeviceID string
	Mock     bool

	// Local durable state
	StorePath string

	// Daemon
	ServerPort string

	// Logging
	LogFile  string
	LogLevel slog.Level
}

// fileConfig mirrors Config for the optional YAML file. All fields are
// optional; environment variables take precedence over file values.
type fileConfig struct {
	ResolverURL   string `yaml:"resolver_url"`
	ScraperURL    string `yaml:"scraper_url"`
	HistoryURL    string `yaml:"history_url"`
	AnalyzeURL    string `yaml:"analyze_url"`
	ScrapeTimeout string `yaml:"scrape_timeout"`
	UserID        string `yaml:"user_id"`
	DeviceID      string `yaml:"device_id"`
	Mock          *bool  `yaml:"mock"`
	StorePath     string `yaml:"store_path"`
	ServerPort    string `yaml:"server_port"`
	LogFile       string `yaml:"log_file"`
	LogLevel      string `yaml:"log_level"`
}

// Load reads configuration from the optional YAML file pointed to by
// IDENTIFY_CONFIG (default ~/.config/identify/config.yaml), then applies
// environment variable overrides.
func Load() Config {
	fc := loadFile(getEnv("IDENTIFY_CONFIG", defaultConfigPath()))

	mock := false
	if fc.Mock != nil {
		mock = *fc.Mock
	}
	if v := os.Getenv("IDENTIFY_MOCK"); v != "" {
		mock = v == "true" || v == "1"
	}

	return Config{
		ResolverURL: getEnv("IDENTIFY_RESOLVER_URL", orDefault(fc.ResolverURL, "http://localhost:8000/api")),
		ScraperURL:  getEnv("IDENTIFY_SCRAPER_URL", orDefault(fc.ScraperURL, "http://localhost:8001")),
		HistoryURL:  getEnv("IDENTIFY_HISTORY_URL", orDefault(fc.HistoryURL, "http://localhost:8002")),
		AnalyzeURL:  getEnv("IDENTIFY_ANALYZE_URL", orDefault(fc.AnalyzeURL, "http://localhost:8003")),

		ScrapeTimeout: parseDuration(getEnv("IDENTIFY_SCRAPE_TIMEOUT", orDefault(fc.ScrapeTimeout, "45s")), 45*time.Second),

		UserID:   getEnv("IDENTIFY_USER_ID", orDefault(fc.UserID, "demo-user")),
		DeviceID: getEnv("IDENTIFY_DEVICE_ID", fc.DeviceID),
		Mock:     mock,

		StorePath: getEnv("IDENTIFY_STORE_PATH", orDefault(fc.StorePath, defaultStorePath())),

		ServerPort: getEnv("IDENTIFY_SERVER_PORT", orDefault(fc.ServerPort, "8787")),

		LogFile:  getEnv("IDENTIFY_LOG_FILE", orDefault(fc.LogFile, "/tmp/identify.log")),
		LogLevel: parseLogLevel(getEnv("IDENTIFY_LOG_LEVEL", orDefault(fc.LogLevel, "INFO"))),
	}
}

// loadFile parses the YAML config file at path. A missing or unreadable file
// yields an empty fileConfig; a malformed one is reported on stderr and
// otherwise ignored so a bad config file never prevents startup.
func loadFile(path string) fileConfig {
	var fc fileConfig
	if path == "" {
		return fc
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fc
	}
	if err := yaml.Unmarshal(data, &fc); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: ignoring malformed config file %s: %v\n", path, err)
		return fileConfig{}
	}
	return fc
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "identify", "config.yaml")
}

func defaultStorePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "identify.db"
	}
	return filepath.Join(home, ".local", "share", "identify", "identify.db")
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func orDefault(val, defaultVal string) string {
	if val != "" {
		return val
	}
	return defaultVal
}

func parseDuration(s string, defaultVal time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return defaultVal
	}
	return d
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
