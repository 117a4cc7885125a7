package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Store     StoreConfig     `yaml:"store"`
	Redis     RedisConfig     `yaml:"redis"`
	JWT       JWTConfig       `yaml:"jwt"`
	CORS      CORSConfig      `yaml:"cors"`
	Log       LogConfig       `yaml:"log"`
	Billing   BillingConfig   `yaml:"billing"`
	Aging     AgingConfig     `yaml:"aging"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// DatabaseConfig contains PostgreSQL connection settings
type DatabaseConfig struct {
	Driver       string `yaml:"driver"` // "postgres" (lib/pq) or "pgx"
	URL          string `yaml:"url"`    // takes precedence over the discrete fields
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	User         string `yaml:"user"`
	Password     string `yaml:"password"`
	Database     string `yaml:"database"`
	SSLMode      string `yaml:"ssl_mode"`
	MaxOpenConns int    `yaml:"max_open_conns"`
}

// StoreConfig selects the schedule and ledger backend
type StoreConfig struct {
	Type string `yaml:"type"` // "postgres" or "memory"
}

// RedisConfig contains report cache settings. An empty Addr disables the cache.
type RedisConfig struct {
	Addr             string `yaml:"addr"`
	Password         string `yaml:"password"`
	DB               int    `yaml:"db"`
	ReportTTLSeconds int    `yaml:"report_ttl_seconds"`
}

// JWTConfig contains bearer token settings. An empty Secret disables auth.
type JWTConfig struct {
	Secret string `yaml:"secret"`
}

// CORSConfig contains the browser origin allow-list
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json" or "text"
}

// BillingConfig contains business calendar settings
type BillingConfig struct {
	Timezone string `yaml:"timezone"`
	Currency string `yaml:"currency"`
}

// AgingConfig bounds the concurrent ledger lookups of one report
type AgingConfig struct {
	Workers         int  `yaml:"workers"`
	LookupTimeoutMS int  `yaml:"lookup_timeout_ms"`
	BatchTimeoutMS  int  `yaml:"batch_timeout_ms"`
	Strict          bool `yaml:"strict"`
}

// SchedulerConfig contains cron schedule settings
type SchedulerConfig struct {
	ChaseList string `yaml:"chase_list"`
}

// Load reads .env (if present), the YAML file, then environment overrides.
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.overrideWithEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func envInt(key string, dst *int) {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			*dst = n
		}
	}
}

func envString(key string, dst *string) {
	if val := os.Getenv(key); val != "" {
		*dst = val
	}
}

// overrideWithEnv overrides config values with environment variables
func (c *Config) overrideWithEnv() {
	// Server
	envString("SERVER_HOST", &c.Server.Host)
	envInt("SERVER_PORT", &c.Server.Port)

	// Database
	envString("DATABASE_URL", &c.Database.URL)
	envString("DB_DRIVER", &c.Database.Driver)
	envString("DB_HOST", &c.Database.Host)
	envInt("DB_PORT", &c.Database.Port)
	envString("DB_USER", &c.Database.User)
	envString("DB_PASSWORD", &c.Database.Password)
	envString("DB_NAME", &c.Database.Database)
	envString("DB_SSL_MODE", &c.Database.SSLMode)
	envString("STORE_TYPE", &c.Store.Type)

	// Redis
	envString("REDIS_ADDR", &c.Redis.Addr)
	envString("REDIS_PASSWORD", &c.Redis.Password)
	envInt("REDIS_DB", &c.Redis.DB)

	// JWT
	envString("JWT_SECRET", &c.JWT.Secret)

	// CORS
	if val := os.Getenv("CORS_ORIGIN"); val != "" {
		c.CORS.AllowedOrigins = splitList(val)
	}

	// Log
	envString("LOG_LEVEL", &c.Log.Level)
	envString("LOG_FORMAT", &c.Log.Format)

	// Billing
	envString("BUSINESS_TZ", &c.Billing.Timezone)

	// Aging
	envInt("AGING_WORKERS", &c.Aging.Workers)
	envInt("AGING_LOOKUP_TIMEOUT_MS", &c.Aging.LookupTimeoutMS)
	envInt("AGING_BATCH_TIMEOUT_MS", &c.Aging.BatchTimeoutMS)
	if val := os.Getenv("AGING_STRICT"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			c.Aging.Strict = b
		}
	}

	// Set defaults for log if not configured
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

func splitList(val string) []string {
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate checks if the configuration is valid and fills defaults
func (c *Config) Validate() error {
	// Server validation
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	// Store validation
	if c.Store.Type == "" {
		c.Store.Type = "postgres"
	}
	switch c.Store.Type {
	case "memory":
	case "postgres":
		if c.Database.Driver == "" {
			c.Database.Driver = "postgres"
		}
		if c.Database.Driver != "postgres" && c.Database.Driver != "pgx" {
			return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
		}
		if c.Database.URL == "" {
			if c.Database.Host == "" {
				return fmt.Errorf("database host is required")
			}
			if c.Database.User == "" {
				return fmt.Errorf("database user is required")
			}
			if c.Database.Database == "" {
				return fmt.Errorf("database name is required")
			}
		}
		if c.Database.Port == 0 {
			c.Database.Port = 5432
		}
		if c.Database.SSLMode == "" {
			c.Database.SSLMode = "disable"
		}
		if c.Database.MaxOpenConns == 0 {
			c.Database.MaxOpenConns = 20
		}
	default:
		return fmt.Errorf("unsupported store type: %s", c.Store.Type)
	}

	// JWT validation
	if c.JWT.Secret != "" && len(c.JWT.Secret) < 32 {
		return fmt.Errorf("JWT secret must be at least 32 characters")
	}

	// Billing defaults
	if c.Billing.Timezone == "" {
		c.Billing.Timezone = "Asia/Kuala_Lumpur"
	}
	if _, err := time.LoadLocation(c.Billing.Timezone); err != nil {
		return fmt.Errorf("invalid billing timezone %q: %w", c.Billing.Timezone, err)
	}
	if c.Billing.Currency == "" {
		c.Billing.Currency = "MYR"
	}

	// Aging defaults
	if c.Aging.Workers == 0 {
		c.Aging.Workers = 8
	}
	if c.Aging.Workers < 0 {
		return fmt.Errorf("invalid aging workers: %d", c.Aging.Workers)
	}
	if c.Aging.LookupTimeoutMS == 0 {
		c.Aging.LookupTimeoutMS = 2000
	}
	if c.Aging.BatchTimeoutMS == 0 {
		c.Aging.BatchTimeoutMS = 20000
	}
	if c.Aging.LookupTimeoutMS < 0 || c.Aging.BatchTimeoutMS < 0 {
		return fmt.Errorf("aging timeouts must not be negative")
	}
	// Each report holds one leader connection plus up to Workers followers.
	if c.Store.Type == "postgres" && c.Aging.Workers >= c.Database.MaxOpenConns {
		return fmt.Errorf("aging workers (%d) must be below database max_open_conns (%d)",
			c.Aging.Workers, c.Database.MaxOpenConns)
	}

	// Redis defaults
	if c.Redis.ReportTTLSeconds == 0 {
		c.Redis.ReportTTLSeconds = 30
	}

	// Scheduler defaults
	if c.Scheduler.ChaseList == "" {
		c.Scheduler.ChaseList = "0 0 1 * * *" // 1 AM UTC
	}

	return nil
}

// GetDatabaseConnectionString returns a PostgreSQL connection string
func (c *Config) GetDatabaseConnectionString() string {
	if c.Database.URL != "" {
		return c.Database.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Database,
		c.Database.SSLMode,
	)
}

// GetServerAddress returns the HTTP server address
func (c *Config) GetServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// Location returns the business timezone. Validate has already checked it.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Billing.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (c *Config) LookupTimeout() time.Duration {
	return time.Duration(c.Aging.LookupTimeoutMS) * time.Millisecond
}

func (c *Config) BatchTimeout() time.Duration {
	return time.Duration(c.Aging.BatchTimeoutMS) * time.Millisecond
}

func (c *Config) ReportTTL() time.Duration {
	return time.Duration(c.Redis.ReportTTLSeconds) * time.Second
}
