package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// Config holds runtime settings read from the environment and an optional .env file.
type Config struct {
	Port          int    `mapstructure:"PORT"`
	Env           string `mapstructure:"APP_ENV"`
	LogLevel      string `mapstructure:"LOG_LEVEL"`
	AllowedOrigin string `mapstructure:"ALLOWED_ORIGIN"`

	StoreBackend string `mapstructure:"STORE_BACKEND"`
	DatabaseURL  string `mapstructure:"DATABASE_URL"`
	SeedDemoData bool   `mapstructure:"SEED_DEMO_DATA"`

	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`
	RedisPrefix   string `mapstructure:"REDIS_PREFIX"`

	AuthSecret            string `mapstructure:"AUTH_SECRET"`
	AccessTokenTTLMinutes int    `mapstructure:"ACCESS_TOKEN_TTL_MINUTES"`
	DefaultOperator       string `mapstructure:"DEFAULT_OPERATOR"`
	AdminPassword         string `mapstructure:"ADMIN_PASSWORD"`

	CreditGraceDays      int `mapstructure:"CREDIT_GRACE_DAYS"`
	ExpiryWarningDays    int `mapstructure:"EXPIRY_WARNING_DAYS"`
	StatsCacheTTLSeconds int `mapstructure:"STATS_CACHE_TTL_SECONDS"`
}

var defaults = map[string]any{
	"PORT":                     8080,
	"APP_ENV":                  "development",
	"LOG_LEVEL":                "info",
	"ALLOWED_ORIGIN":           "http://127.0.0.1:3000",
	"STORE_BACKEND":            "",
	"DATABASE_URL":             "",
	"SEED_DEMO_DATA":           true,
	"REDIS_ADDR":               "",
	"REDIS_PASSWORD":           "",
	"REDIS_DB":                 0,
	"REDIS_PREFIX":             "dukkan",
	"AUTH_SECRET":              "",
	"ACCESS_TOKEN_TTL_MINUTES": 480,
	"DEFAULT_OPERATOR":         "admin",
	"ADMIN_PASSWORD":           "",
	"CREDIT_GRACE_DAYS":        30,
	"EXPIRY_WARNING_DAYS":      30,
	"STATS_CACHE_TTL_SECONDS":  60,
}

// Load reads configuration from environment variables (and optional .env file).
// Every key carries a default so AutomaticEnv overrides reach Unmarshal.
func Load() (Config, error) {
	v := viper.New()
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.AutomaticEnv()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	// a missing .env is fine
	_ = v.ReadInConfig()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.normalize()
	return cfg, nil
}

func (c *Config) normalize() {
	c.AuthSecret = strings.TrimSpace(c.AuthSecret)
	c.AdminPassword = strings.TrimSpace(c.AdminPassword)
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	c.StoreBackend = strings.ToLower(strings.TrimSpace(c.StoreBackend))
	if c.StoreBackend == "" {
		c.StoreBackend = BackendMemory
		if c.DatabaseURL != "" {
			c.StoreBackend = BackendPostgres
		}
	}
	if c.Port < 1 {
		c.Port = 8080
	}
	if c.AccessTokenTTLMinutes < 1 {
		c.AccessTokenTTLMinutes = 480
	}
	if c.CreditGraceDays < 1 {
		c.CreditGraceDays = 30
	}
	if c.ExpiryWarningDays < 1 {
		c.ExpiryWarningDays = 30
	}
	if c.StatsCacheTTLSeconds < 1 {
		c.StatsCacheTTLSeconds = 60
	}
}

func (c Config) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c Config) Development() bool {
	return c.Env == "development"
}

// Validate checks combinations that only make sense together.
func (c Config) Validate() error {
	switch c.StoreBackend {
	case BackendMemory:
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("STORE_BACKEND=postgres requires DATABASE_URL")
		}
	case BackendRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("STORE_BACKEND=redis requires REDIS_ADDR")
		}
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend)
	}
	return nil
}
