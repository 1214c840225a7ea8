// Package config loads server settings from an optional YAML file and SIGMO_*
// environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/soaringjerry/Sigmo/internal/questionnaire"
	"github.com/soaringjerry/Sigmo/internal/utils"
)

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Cache   CacheConfig   `yaml:"cache"`
	Auth    AuthConfig    `yaml:"auth"`
	Rewrite RewriteConfig `yaml:"rewrite"`
	Engine  EngineConfig  `yaml:"engine"`
	Logging LoggingConfig `yaml:"logging"`
}

type ServerConfig struct {
	Addr           string   `yaml:"addr"`
	StaticDir      string   `yaml:"static_dir"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type StorageConfig struct {
	Driver        string `yaml:"driver"` // sqlite, postgres, memory
	SQLitePath    string `yaml:"sqlite_path"`
	DatabaseURL   string `yaml:"database_url"`
	MigrationsDir string `yaml:"migrations_dir"`
}

// CacheConfig enables the Redis snapshot cache when RedisURL is set.
type CacheConfig struct {
	RedisURL string `yaml:"redis_url"`
	TTL      string `yaml:"ttl"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
	TokenTTL  string `yaml:"token_ttl"`
}

type RewriteConfig struct {
	Provider    string `yaml:"provider"` // none, openai, gemini
	APIKey      string `yaml:"api_key"`
	BaseURL     string `yaml:"base_url"`
	Model       string `yaml:"model"`
	Timeout     string `yaml:"timeout"`
	MaxAttempts int    `yaml:"max_attempts"`
}

type EngineConfig struct {
	TemplatesPath     string                   `yaml:"templates_path"`
	DefaultPeriodDays int                      `yaml:"default_period_days"`
	Thresholds        questionnaire.Thresholds `yaml:"thresholds"`
}

type LoggingConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

var (
	ValidDrivers   = []string{DriverSQLite, DriverPostgres, DriverMemory}
	ValidProviders = []string{"none", "openai", "gemini"}
)

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:      ":8080",
			StaticDir: "./web",
		},
		Storage: StorageConfig{
			Driver:     DriverSQLite,
			SQLitePath: "./data/sigmo.db",
		},
		Cache: CacheConfig{TTL: "36h"},
		Auth: AuthConfig{
			JWTSecret: "sigmo-dev-secret",
			TokenTTL:  "720h",
		},
		Rewrite: RewriteConfig{
			Provider:    "none",
			Timeout:     "20s",
			MaxAttempts: 3,
		},
		Engine: EngineConfig{
			DefaultPeriodDays: 21,
			Thresholds:        questionnaire.DefaultThresholds(),
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load reads path over the defaults. An empty path or a missing file leaves
// the defaults; environment overrides are applied either way.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		case !os.IsNotExist(err):
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}
	cfg.applyEnvOverrides()
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	c.Server.Addr = utils.SafeEnv("SIGMO_ADDR", c.Server.Addr)
	c.Server.StaticDir = utils.SafeEnv("SIGMO_STATIC_DIR", c.Server.StaticDir)
	if v := os.Getenv("SIGMO_ALLOWED_ORIGINS"); v != "" {
		c.Server.AllowedOrigins = splitList(v)
	}

	c.Storage.Driver = utils.SafeEnv("SIGMO_STORAGE_DRIVER", c.Storage.Driver)
	c.Storage.SQLitePath = utils.SafeEnv("SIGMO_DB_PATH", c.Storage.SQLitePath)
	c.Storage.DatabaseURL = utils.SafeEnv("SIGMO_DATABASE_URL", c.Storage.DatabaseURL)
	c.Storage.MigrationsDir = utils.SafeEnv("SIGMO_MIGRATIONS_DIR", c.Storage.MigrationsDir)

	c.Cache.RedisURL = utils.SafeEnv("SIGMO_REDIS_URL", c.Cache.RedisURL)
	c.Cache.TTL = utils.SafeEnv("SIGMO_CACHE_TTL", c.Cache.TTL)

	c.Auth.JWTSecret = utils.SafeEnv("SIGMO_JWT_SECRET", c.Auth.JWTSecret)
	c.Auth.TokenTTL = utils.SafeEnv("SIGMO_TOKEN_TTL", c.Auth.TokenTTL)

	// Provider keys fill in the provider only when none was chosen.
	if key := os.Getenv("OPENAI_API_KEY"); key != "" && c.rewriteUnset() {
		c.Rewrite.Provider, c.Rewrite.APIKey = "openai", key
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" && c.rewriteUnset() {
		c.Rewrite.Provider, c.Rewrite.APIKey = "gemini", key
	}
	c.Rewrite.Provider = utils.SafeEnv("SIGMO_REWRITE_PROVIDER", c.Rewrite.Provider)
	c.Rewrite.APIKey = utils.SafeEnv("SIGMO_REWRITE_API_KEY", c.Rewrite.APIKey)
	c.Rewrite.BaseURL = utils.SafeEnv("SIGMO_REWRITE_BASE_URL", c.Rewrite.BaseURL)
	c.Rewrite.Model = utils.SafeEnv("SIGMO_REWRITE_MODEL", c.Rewrite.Model)
	c.Rewrite.Timeout = utils.SafeEnv("SIGMO_REWRITE_TIMEOUT", c.Rewrite.Timeout)

	c.Engine.TemplatesPath = utils.SafeEnv("SIGMO_TEMPLATES", c.Engine.TemplatesPath)
	if n, err := strconv.Atoi(os.Getenv("SIGMO_PERIOD_DAYS")); err == nil && n > 0 {
		c.Engine.DefaultPeriodDays = n
	}

	c.Logging.Level = utils.SafeEnv("SIGMO_LOG_LEVEL", c.Logging.Level)
	if b, err := strconv.ParseBool(os.Getenv("SIGMO_LOG_DEV")); err == nil {
		c.Logging.Development = b
	}
}

func (c *Config) rewriteUnset() bool {
	p := strings.TrimSpace(c.Rewrite.Provider)
	return (p == "" || p == "none") && c.Rewrite.APIKey == ""
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func (c *Config) CacheTTL() time.Duration { return parseDuration(c.Cache.TTL, 36*time.Hour) }

func (c *Config) TokenTTL() time.Duration { return parseDuration(c.Auth.TokenTTL, 30*24*time.Hour) }

func (c *Config) RewriteTimeout() time.Duration {
	return parseDuration(c.Rewrite.Timeout, 20*time.Second)
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// Validate rejects settings the server cannot start with.
func (c *Config) Validate() error {
	if !contains(ValidDrivers, c.Storage.Driver) {
		return fmt.Errorf("invalid storage driver: %s (valid: %v)", c.Storage.Driver, ValidDrivers)
	}
	if c.Storage.Driver == DriverPostgres && c.Storage.DatabaseURL == "" {
		return fmt.Errorf("storage.database_url is required for the postgres driver")
	}
	if c.Storage.Driver == DriverSQLite && c.Storage.SQLitePath == "" {
		return fmt.Errorf("storage.sqlite_path is required for the sqlite driver")
	}
	provider := strings.ToLower(c.Rewrite.Provider)
	if provider == "" {
		provider = "none"
	}
	if !contains(ValidProviders, provider) {
		return fmt.Errorf("invalid rewrite provider: %s (valid: %v)", c.Rewrite.Provider, ValidProviders)
	}
	if provider != "none" && c.Rewrite.APIKey == "" {
		return fmt.Errorf("rewrite provider %s needs an api key", provider)
	}
	if c.Rewrite.MaxAttempts < 0 {
		return fmt.Errorf("rewrite.max_attempts must not be negative")
	}
	if c.Engine.DefaultPeriodDays < 1 {
		return fmt.Errorf("engine.default_period_days must be positive")
	}
	if err := c.Engine.Thresholds.Validate(); err != nil {
		return fmt.Errorf("engine.thresholds: %w", err)
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret must not be empty")
	}
	return nil
}
