package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Search    SearchConfig    `yaml:"search"`
	Scraper   ScraperConfig   `yaml:"scraper"`
	Cache     CacheConfig     `yaml:"cache"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Port        string   `yaml:"port"`
	Mode        string   `yaml:"mode"`
	CORSOrigins []string `yaml:"cors_origins"`
	Pprof       bool     `yaml:"pprof"`
}

// DatabaseConfig contains database settings
type DatabaseConfig struct {
	Type       string         `yaml:"type"`
	LogQueries bool           `yaml:"log_queries"`
	SQLite     SQLiteConfig   `yaml:"sqlite"`
	MySQL      MySQLConfig    `yaml:"mysql"`
	Postgres   PostgresConfig `yaml:"postgres"`
}

// SQLiteConfig contains SQLite settings
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

// DSN builds the go-sql-driver DSN
func (c MySQLConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		c.User, c.Password, c.Host, c.Port, c.Database)
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

// DSN builds a libpq style connection string
func (c PostgresConfig) DSN() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, sslMode)
}

// SearchConfig contains nearby-search settings
type SearchConfig struct {
	DefaultRadiusKm float64           `yaml:"default_radius_km"`
	MinRadiusKm     float64           `yaml:"min_radius_km"`
	MaxRadiusKm     float64           `yaml:"max_radius_km"`
	Meilisearch     MeilisearchConfig `yaml:"meilisearch"`
}

// MeilisearchConfig contains Meilisearch connection settings.
// An empty host disables the name index.
type MeilisearchConfig struct {
	Host   string `yaml:"host"`
	APIKey string `yaml:"api_key"`
	Index  string `yaml:"index"`
}

// ScraperConfig contains scraper-specific settings
type ScraperConfig struct {
	BaseURL              string   `yaml:"base_url"`
	Countries            []string `yaml:"countries"`
	ResortLimit          int      `yaml:"resort_limit"`
	UserAgents           []string `yaml:"user_agents"`
	FetchMode            string   `yaml:"fetch_mode"`
	ChromePath           string   `yaml:"chrome_path"`
	RequestDelaySeconds  float64  `yaml:"request_delay_seconds"`
	TimeoutSeconds       int      `yaml:"timeout_seconds"`
	MaxRetries           int      `yaml:"max_retries"`
	RetryDelaySeconds    float64  `yaml:"retry_delay_seconds"`
	MaxRetryDelaySeconds int      `yaml:"max_retry_delay_seconds"`
	JitterMillis         int      `yaml:"jitter_ms"`
	BreakerThreshold     int      `yaml:"breaker_threshold"`
	BreakerResetMinutes  int      `yaml:"breaker_reset_minutes"`
	ForecastFallback     bool     `yaml:"forecast_fallback"`
	OpenMeteoURL         string   `yaml:"open_meteo_url"`
	DailyRunEnabled      bool     `yaml:"daily_run_enabled"`
	DailyRunTime         string   `yaml:"daily_run_time"`
	Cron                 string   `yaml:"cron"`
}

// CacheConfig contains page cache settings
type CacheConfig struct {
	Backend  string         `yaml:"backend"`
	Dir      string         `yaml:"dir"`
	TTLHours int            `yaml:"ttl_hours"`
	SQL      CacheSQLConfig `yaml:"sql"`
}

// CacheSQLConfig selects the database/sql driver backing the page cache
type CacheSQLConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
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
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// DefaultUserAgents is the identity rotation used when none is configured
var DefaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        "5000",
			Mode:        "release",
			CORSOrigins: []string{"*"},
		},
		Database: DatabaseConfig{
			Type:   "sqlite",
			SQLite: SQLiteConfig{Path: "skimeister.db"},
			MySQL:  MySQLConfig{Host: "localhost", Port: 3306},
			Postgres: PostgresConfig{
				Host:    "localhost",
				Port:    5432,
				SSLMode: "disable",
			},
		},
		Search: SearchConfig{
			DefaultRadiusKm: 200,
			MinRadiusKm:     10,
			MaxRadiusKm:     500,
			Meilisearch:     MeilisearchConfig{Index: "resorts"},
		},
		Scraper: ScraperConfig{
			BaseURL:              "https://www.bergfex.com",
			Countries:            []string{"schweiz"},
			UserAgents:           append([]string(nil), DefaultUserAgents...),
			FetchMode:            "http",
			RequestDelaySeconds:  2,
			TimeoutSeconds:       30,
			MaxRetries:           3,
			RetryDelaySeconds:    1,
			MaxRetryDelaySeconds: 60,
			JitterMillis:         500,
			BreakerThreshold:     5,
			BreakerResetMinutes:  30,
			ForecastFallback:     true,
			OpenMeteoURL:         "https://api.open-meteo.com/v1/forecast",
			DailyRunEnabled:      false,
			DailyRunTime:         "02:00",
		},
		Cache: CacheConfig{
			Backend:  "file",
			Dir:      "cache",
			TTLHours: 24,
			SQL:      CacheSQLConfig{Driver: "sqlite3", DSN: "cache.db"},
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerMinute: 10,
			RequestsPerHour:   60,
			RequestsPerDay:    200,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			MaxSizeMB:  50,
			MaxBackups: 5,
			MaxAgeDays: 14,
		},
	}
}

// LoadConfig loads configuration from a YAML file, then applies .env and
// environment overrides
func LoadConfig(filepath string) (*Config, error) {
	// Start with default config
	config := DefaultConfig()

	// A .env file is optional
	_ = godotenv.Load()

	if _, err := os.Stat(filepath); err == nil {
		data, err := os.ReadFile(filepath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}

	config.applyEnv()

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// applyEnv overrides file values with SKIMEISTER_* environment variables
func (c *Config) applyEnv() {
	c.Server.Port = getEnvOrConfig(c.Server.Port, "SKIMEISTER_PORT")
	c.Server.Mode = getEnvOrConfig(c.Server.Mode, "SKIMEISTER_GIN_MODE")
	c.Database.Type = getEnvOrConfig(c.Database.Type, "SKIMEISTER_DB_TYPE")
	c.Database.SQLite.Path = getEnvOrConfig(c.Database.SQLite.Path, "SKIMEISTER_SQLITE_PATH")
	c.Database.MySQL.Host = getEnvOrConfig(c.Database.MySQL.Host, "SKIMEISTER_MYSQL_HOST")
	c.Database.MySQL.User = getEnvOrConfig(c.Database.MySQL.User, "SKIMEISTER_MYSQL_USER")
	c.Database.MySQL.Password = getEnvOrConfig(c.Database.MySQL.Password, "SKIMEISTER_MYSQL_PASSWORD")
	c.Database.MySQL.Database = getEnvOrConfig(c.Database.MySQL.Database, "SKIMEISTER_MYSQL_DATABASE")
	c.Database.Postgres.Host = getEnvOrConfig(c.Database.Postgres.Host, "SKIMEISTER_PG_HOST")
	c.Database.Postgres.User = getEnvOrConfig(c.Database.Postgres.User, "SKIMEISTER_PG_USER")
	c.Database.Postgres.Password = getEnvOrConfig(c.Database.Postgres.Password, "SKIMEISTER_PG_PASSWORD")
	c.Database.Postgres.Database = getEnvOrConfig(c.Database.Postgres.Database, "SKIMEISTER_PG_DATABASE")
	c.Search.Meilisearch.Host = getEnvOrConfig(c.Search.Meilisearch.Host, "SKIMEISTER_MEILISEARCH_HOST")
	c.Search.Meilisearch.APIKey = getEnvOrConfig(c.Search.Meilisearch.APIKey, "SKIMEISTER_MEILISEARCH_KEY")
	c.Cache.Backend = getEnvOrConfig(c.Cache.Backend, "SKIMEISTER_CACHE_BACKEND")
	c.Cache.Dir = getEnvOrConfig(c.Cache.Dir, "SKIMEISTER_CACHE_DIR")
	c.Cache.SQL.Driver = getEnvOrConfig(c.Cache.SQL.Driver, "SKIMEISTER_CACHE_SQL_DRIVER")
	c.Cache.SQL.DSN = getEnvOrConfig(c.Cache.SQL.DSN, "SKIMEISTER_CACHE_SQL_DSN")
	c.Logging.Level = getEnvOrConfig(c.Logging.Level, "SKIMEISTER_LOG_LEVEL")
	c.Logging.File = getEnvOrConfig(c.Logging.File, "SKIMEISTER_LOG_FILE")

	if v := os.Getenv("SKIMEISTER_MYSQL_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Database.MySQL.Port = port
		}
	}
	if v := os.Getenv("SKIMEISTER_PG_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Database.Postgres.Port = port
		}
	}
	if v := os.Getenv("SKIMEISTER_DAILY_RUN_ENABLED"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			c.Scraper.DailyRunEnabled = enabled
		}
	}
}

// Validate rejects settings the services cannot start with
func (c *Config) Validate() error {
	switch c.Database.Type {
	case "sqlite", "mysql", "postgres":
	default:
		return fmt.Errorf("unsupported database type %q", c.Database.Type)
	}
	switch c.Cache.Backend {
	case "file", "sql":
	default:
		return fmt.Errorf("unsupported cache backend %q", c.Cache.Backend)
	}
	switch c.Scraper.FetchMode {
	case "http", "browser":
	default:
		return fmt.Errorf("unsupported fetch mode %q", c.Scraper.FetchMode)
	}
	if c.Scraper.MaxRetries < 1 {
		return fmt.Errorf("scraper.max_retries must be at least 1, got %d", c.Scraper.MaxRetries)
	}
	if c.Search.MinRadiusKm > c.Search.MaxRadiusKm {
		return fmt.Errorf("search.min_radius_km (%v) exceeds search.max_radius_km (%v)",
			c.Search.MinRadiusKm, c.Search.MaxRadiusKm)
	}
	return nil
}

// GetRequestDelay returns the per-host request delay as a duration
func (c *ScraperConfig) GetRequestDelay() time.Duration {
	return time.Duration(c.RequestDelaySeconds * float64(time.Second))
}

// GetTimeout returns the HTTP client timeout as a duration
func (c *ScraperConfig) GetTimeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// GetRetryDelay returns the base backoff delay as a duration
func (c *ScraperConfig) GetRetryDelay() time.Duration {
	return time.Duration(c.RetryDelaySeconds * float64(time.Second))
}

// GetMaxRetryDelay returns the backoff cap as a duration
func (c *ScraperConfig) GetMaxRetryDelay() time.Duration {
	return time.Duration(c.MaxRetryDelaySeconds) * time.Second
}

// GetJitter returns the maximum backoff jitter as a duration
func (c *ScraperConfig) GetJitter() time.Duration {
	return time.Duration(c.JitterMillis) * time.Millisecond
}

// GetBreakerReset returns the circuit breaker cool-down as a duration
func (c *ScraperConfig) GetBreakerReset() time.Duration {
	return time.Duration(c.BreakerResetMinutes) * time.Minute
}

// GetTTL returns the cache TTL as a duration
func (c *CacheConfig) GetTTL() time.Duration {
	return time.Duration(c.TTLHours) * time.Hour
}

// getEnvOrConfig returns the environment value if set, otherwise the config value
func getEnvOrConfig(configValue, envKey string) string {
	if value := os.Getenv(envKey); value != "" {
		return value
	}
	return configValue
}
