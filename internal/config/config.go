package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Database   DatabaseConfig   `yaml:"database"`
	Search     SearchConfig     `yaml:"search"`
	Scraping   ScrapingConfig   `yaml:"scraping"`
	ETL        ETLConfig        `yaml:"etl"`
	Analysis   AnalysisConfig   `yaml:"analysis"`
	Scheduling SchedulingConfig `yaml:"scheduling"`
	Cleanup    CleanupConfig    `yaml:"cleanup"`
	Server     ServerConfig     `yaml:"server"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// DatabaseConfig contains database settings
type DatabaseConfig struct {
	Type     string         `yaml:"type"` // sqlite, mysql or postgres
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	MySQL    MySQLConfig    `yaml:"mysql"`
	Postgres PostgresConfig `yaml:"postgres"`
}

// SQLiteConfig contains the local database file location
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// MySQLConfig contains MySQL connection settings
type MySQLConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

// PostgresConfig contains PostgreSQL connection settings
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"sslmode"`
}

// SearchConfig contains search engine settings
type SearchConfig struct {
	Meilisearch MeilisearchConfig `yaml:"meilisearch"`
}

// MeilisearchConfig contains Meilisearch connection settings.
// An empty host disables indexing.
type MeilisearchConfig struct {
	Host   string `yaml:"host"`
	APIKey string `yaml:"api_key"`
	Index  string `yaml:"index"`
}

// ScrapingConfig describes which scopes to scrape and how to talk to the sources
type ScrapingConfig struct {
	Cities           []string       `yaml:"cities"`
	ListingTypes     []string       `yaml:"listing_types"`
	Sources          []string       `yaml:"sources"` // tried in order: api, html
	APIBaseURL       string         `yaml:"api_base_url"`
	HTMLBaseURL      string         `yaml:"html_base_url"`
	UseBrowser       bool           `yaml:"use_browser"`
	ChromePath       string         `yaml:"chrome_path"`
	UserAgent        string         `yaml:"user_agent"`
	RateLimitSeconds float64        `yaml:"rate_limit_seconds"`
	JitterRatio      float64        `yaml:"jitter_ratio"`
	TimeoutSeconds   int            `yaml:"timeout_seconds"`
	MaxResults       int            `yaml:"max_results"`
	Retry            RetryConfig    `yaml:"retry"`
	CircuitBreaker   BreakerConfig  `yaml:"circuit_breaker"`
	PriceRange       PriceRangeConf `yaml:"price_range"`
}

// RetryConfig controls exponential backoff around each source call
type RetryConfig struct {
	MaxAttempts      int     `yaml:"max_attempts"`
	BaseDelaySeconds float64 `yaml:"base_delay_seconds"`
	MaxDelaySeconds  float64 `yaml:"max_delay_seconds"`
	Jitter           float64 `yaml:"jitter"`
}

// BreakerConfig controls the per-source circuit breaker
type BreakerConfig struct {
	FailureThreshold int `yaml:"failure_threshold"`
	ResetMinutes     int `yaml:"reset_minutes"`
}

// PriceRangeConf optionally narrows every search
type PriceRangeConf struct {
	Min int `yaml:"min"`
	Max int `yaml:"max"`
}

// ETLConfig contains load-stage settings
type ETLConfig struct {
	BatchSize int `yaml:"batch_size"`
}

// AnalysisConfig contains scoring settings
type AnalysisConfig struct {
	MaxYearDiff         int `yaml:"max_year_diff"`
	PriceDropWindowDays int `yaml:"price_drop_window_days"`
	Concurrency         int `yaml:"concurrency"`
	DefaultLimit        int `yaml:"default_limit"`
}

// SchedulingConfig contains cron settings
type SchedulingConfig struct {
	Enabled      bool   `yaml:"enabled"`
	Cron         string `yaml:"cron"`
	DailyRunTime string `yaml:"daily_run_time"` // HH:MM, used when cron is empty
	Timezone     string `yaml:"timezone"`
}

// CleanupConfig contains housekeeping settings
type CleanupConfig struct {
	StaleRunMinutes  int `yaml:"stale_run_minutes"`
	RetentionDays    int `yaml:"retention_days"`
	MaxDeletionCount int `yaml:"max_deletion_count"`
}

// ServerConfig contains HTTP listener settings
type ServerConfig struct {
	Host         string   `yaml:"host"`
	Port         int      `yaml:"port"`
	AllowOrigins []string `yaml:"allow_origins"`
}

// RateLimitConfig contains API rate limiting settings
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute"`
	RequestsPerHour   int  `yaml:"requests_per_hour"`
	RequestsPerDay    int  `yaml:"requests_per_day"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level string `yaml:"level"` // silent, error, warn, info
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Type:   "sqlite",
			SQLite: SQLiteConfig{Path: "data/funda.db"},
			MySQL:  MySQLConfig{Host: "localhost", Port: 3306, User: "funda", Database: "funda"},
			Postgres: PostgresConfig{
				Host:     "localhost",
				Port:     5432,
				User:     "funda",
				Database: "funda",
				SSLMode:  "disable",
			},
		},
		Search: SearchConfig{
			Meilisearch: MeilisearchConfig{Index: "properties"},
		},
		Scraping: ScrapingConfig{
			Cities:           []string{"amsterdam", "rotterdam", "den-haag", "utrecht"},
			ListingTypes:     []string{"buy"},
			Sources:          []string{"api", "html"},
			APIBaseURL:       "https://listing-api.funda.io/api/v1",
			HTMLBaseURL:      "https://www.funda.nl",
			UserAgent:        "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36",
			RateLimitSeconds: 3.0,
			JitterRatio:      0.2,
			TimeoutSeconds:   30,
			MaxResults:       500,
			Retry: RetryConfig{
				MaxAttempts:      3,
				BaseDelaySeconds: 2,
				MaxDelaySeconds:  10,
				Jitter:           0.2,
			},
			CircuitBreaker: BreakerConfig{
				FailureThreshold: 3,
				ResetMinutes:     30,
			},
		},
		ETL: ETLConfig{BatchSize: 100},
		Analysis: AnalysisConfig{
			MaxYearDiff:         20,
			PriceDropWindowDays: 90,
			Concurrency:         4,
			DefaultLimit:        20,
		},
		Scheduling: SchedulingConfig{
			Enabled:  false,
			Cron:     "0 6 * * *",
			Timezone: "Europe/Amsterdam",
		},
		Cleanup: CleanupConfig{
			StaleRunMinutes:  120,
			RetentionDays:    180,
			MaxDeletionCount: 10000,
		},
		Server: ServerConfig{
			Host:         "127.0.0.1",
			Port:         8000,
			AllowOrigins: []string{"http://localhost:5173"},
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerMinute: 6,
			RequestsPerHour:   60,
			RequestsPerDay:    200,
		},
		Logging: LoggingConfig{Level: "warn"},
	}
}

// LoadConfig loads configuration from a YAML file, then applies a .env file
// and FUNDA_* environment overrides on top
func LoadConfig(filepath string) (*Config, error) {
	config := DefaultConfig()

	data, err := os.ReadFile(filepath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		// defaults
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("Config: failed to read .env file: %v", err)
	}

	if err := config.ApplyEnv(); err != nil {
		return nil, err
	}
	return config, nil
}

// ApplyEnv overrides file values with FUNDA_* environment variables
func (c *Config) ApplyEnv() error {
	if v, ok := lookupEnv("FUNDA_DB_TYPE"); ok {
		c.Database.Type = v
	}
	if v, ok := lookupEnv("FUNDA_DB_PATH"); ok {
		c.Database.SQLite.Path = v
	}
	if v, ok := lookupEnv("FUNDA_DB_HOST"); ok {
		c.Database.MySQL.Host = v
		c.Database.Postgres.Host = v
	}
	if v, ok := lookupEnv("FUNDA_DB_USER"); ok {
		c.Database.MySQL.User = v
		c.Database.Postgres.User = v
	}
	if v, ok := lookupEnv("FUNDA_DB_PASSWORD"); ok {
		c.Database.MySQL.Password = v
		c.Database.Postgres.Password = v
	}
	if v, ok := lookupEnv("FUNDA_DB_NAME"); ok {
		c.Database.MySQL.Database = v
		c.Database.Postgres.Database = v
	}
	if v, ok := lookupEnv("FUNDA_RATE_LIMIT"); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid FUNDA_RATE_LIMIT %q: %w", v, err)
		}
		c.Scraping.RateLimitSeconds = f
	}
	if v, ok := lookupEnv("FUNDA_DEFAULT_CITIES"); ok {
		c.Scraping.Cities = splitList(v)
	}
	if v, ok := lookupEnv("FUNDA_HOST"); ok {
		c.Server.Host = v
	}
	if v, ok := lookupEnv("FUNDA_PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid FUNDA_PORT %q: %w", v, err)
		}
		c.Server.Port = port
	}
	if v, ok := lookupEnv("FUNDA_MEILI_HOST"); ok {
		c.Search.Meilisearch.Host = v
	}
	if v, ok := lookupEnv("FUNDA_MEILI_KEY"); ok {
		c.Search.Meilisearch.APIKey = v
	}
	if v, ok := lookupEnv("FUNDA_LOG_LEVEL"); ok {
		c.Logging.Level = v
	}
	return nil
}

func lookupEnv(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return strings.TrimSpace(v), true
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Addr returns host:port for the HTTP listener
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// GetRequestInterval returns the minimum spacing between source requests
func (c *ScrapingConfig) GetRequestInterval() time.Duration {
	return time.Duration(c.RateLimitSeconds * float64(time.Second))
}

// GetTimeout returns the HTTP timeout as a duration
func (c *ScrapingConfig) GetTimeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// GetBaseDelay returns the first retry delay as a duration
func (c *RetryConfig) GetBaseDelay() time.Duration {
	return time.Duration(c.BaseDelaySeconds * float64(time.Second))
}

// GetMaxDelay returns the retry delay cap as a duration
func (c *RetryConfig) GetMaxDelay() time.Duration {
	return time.Duration(c.MaxDelaySeconds * float64(time.Second))
}

// GetResetTimeout returns how long an open breaker stays open
func (c *BreakerConfig) GetResetTimeout() time.Duration {
	return time.Duration(c.ResetMinutes) * time.Minute
}

// GetStaleRunAge returns the age after which an unfinished run is considered abandoned
func (c *CleanupConfig) GetStaleRunAge() time.Duration {
	return time.Duration(c.StaleRunMinutes) * time.Minute
}
