package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Cache drivers accepted in CACHE_DRIVER.
const (
	CacheDriverRedis    = "redis"
	CacheDriverPostgres = "postgres"
	CacheDriverMemory   = "memory"
)

// Config holds all application configuration loaded from environment variables.
// It is the single source of truth for runtime parameters.
type Config struct {
	Port      string
	Env       string
	JWTSecret string

	CacheDriver string
	HTTPTimeout time.Duration
	// CleanupInterval is how often expired rows are purged when CACHE_DRIVER=postgres.
	CleanupInterval time.Duration

	DB        DatabaseConfig
	Redis     RedisConfig
	Component ComponentConfig
	Pay       PayConfig
}

// DatabaseConfig contains PostgreSQL connection parameters.
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

// RedisConfig contains Redis connection parameters.
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// ComponentConfig identifies the open-platform component (third-party platform) app.
type ComponentConfig struct {
	AppID             string
	AppSecret         string
	BaseURL           string
	StrictPreAuthCode bool
	// TicketWebhookSecret signs the internal verify-ticket push.
	TicketWebhookSecret string
}

// Enabled reports whether the component broker can be built.
func (c ComponentConfig) Enabled() bool {
	return c.AppID != "" && c.AppSecret != ""
}

// PayConfig contains merchant credentials for the payment gateway.
type PayConfig struct {
	AppID       string
	MchID       string
	APIKey      string
	SubMchID    string
	SubAppID    string
	CertFile    string
	KeyFile     string
	P12File     string
	P12Password string
	NotifyURL   string
	BaseURL     string
	// Location formats time_expire. Nil keeps the gateway default (UTC+8).
	Location *time.Location
}

// Enabled reports whether the payment gateway can be built.
func (p PayConfig) Enabled() bool {
	return p.AppID != "" && p.MchID != "" && p.APIKey != ""
}

// Load reads configuration from environment variables. If a .env file exists
// in the working directory, it will be loaded first. It returns a populated
// Config or an error with a human-friendly message.
func Load() (*Config, error) {
	// Load .env if present; ignore error if file is missing so that production
	// environments relying solely on real environment variables keep working.
	_ = godotenv.Load()

	cfg := &Config{}

	// Server
	cfg.Port = getEnv("PORT", "8080")
	cfg.Env = getEnv("ENV", "development")
	cfg.JWTSecret = getEnv("JWT_SECRET", "")
	cfg.CacheDriver = strings.ToLower(getEnv("CACHE_DRIVER", CacheDriverRedis))

	// Database
	cfg.DB = DatabaseConfig{
		Host:     getEnv("DB_HOST", ""),
		Port:     getEnv("DB_PORT", "5432"),
		User:     getEnv("DB_USER", ""),
		Password: getEnv("DB_PASSWORD", ""),
		Name:     getEnv("DB_NAME", ""),
		SSLMode:  getEnv("DB_SSLMODE", "disable"),
	}

	// Redis
	cfg.Redis = RedisConfig{
		Host:     getEnv("REDIS_HOST", "redis"),
		Port:     getEnv("REDIS_PORT", "6379"),
		Password: getEnv("REDIS_PASSWORD", ""),
		DB:       getEnvInt("REDIS_DB", 0),
	}

	// Open platform component
	cfg.Component = ComponentConfig{
		AppID:               getEnv("WECHAT_COMPONENT_APPID", ""),
		AppSecret:           getEnv("WECHAT_COMPONENT_APPSECRET", ""),
		BaseURL:             getEnv("WECHAT_API_BASE_URL", ""),
		StrictPreAuthCode:   getEnvBool("WECHAT_COMPONENT_STRICT_PREAUTH", false),
		TicketWebhookSecret: getEnv("TICKET_WEBHOOK_SECRET", ""),
	}

	// Payment
	cfg.Pay = PayConfig{
		AppID:       getEnv("WECHAT_PAY_APPID", ""),
		MchID:       getEnv("WECHAT_PAY_MCH_ID", ""),
		APIKey:      getEnv("WECHAT_PAY_API_KEY", ""),
		SubMchID:    getEnv("WECHAT_PAY_SUB_MCH_ID", ""),
		SubAppID:    getEnv("WECHAT_PAY_SUB_APPID", ""),
		CertFile:    getEnv("WECHAT_PAY_CERT_FILE", ""),
		KeyFile:     getEnv("WECHAT_PAY_KEY_FILE", ""),
		P12File:     getEnv("WECHAT_PAY_P12_FILE", ""),
		P12Password: getEnv("WECHAT_PAY_P12_PASSWORD", ""),
		NotifyURL:   getEnv("WECHAT_PAY_NOTIFY_URL", ""),
		BaseURL:     getEnv("WECHAT_PAY_BASE_URL", ""),
	}

	var err error
	if cfg.HTTPTimeout, err = parseDurationEnv("HTTP_TIMEOUT", "30s"); err != nil {
		return nil, fmt.Errorf("invalid HTTP_TIMEOUT: %w", err)
	}
	if cfg.CleanupInterval, err = parseDurationEnv("CREDENTIAL_CLEANUP_INTERVAL", "1h"); err != nil {
		return nil, fmt.Errorf("invalid CREDENTIAL_CLEANUP_INTERVAL: %w", err)
	}
	if tz := getEnv("WECHAT_PAY_TIMEZONE", ""); tz != "" {
		if cfg.Pay.Location, err = time.LoadLocation(tz); err != nil {
			return nil, fmt.Errorf("invalid WECHAT_PAY_TIMEZONE: %w", err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	// Validate JWT_SECRET
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET must be set for authentication")
	}

	switch c.CacheDriver {
	case CacheDriverRedis, CacheDriverMemory:
	case CacheDriverPostgres:
		if c.DB.Host == "" || c.DB.User == "" || c.DB.Name == "" {
			return errors.New("database configuration incomplete: ensure DB_HOST, DB_USER, and DB_NAME are set")
		}
	default:
		return fmt.Errorf("unknown CACHE_DRIVER %q: use redis, postgres or memory", c.CacheDriver)
	}

	// Merchant credentials only make sense as a set.
	p := c.Pay
	if (p.AppID != "" || p.MchID != "" || p.APIKey != "") && !p.Enabled() {
		return errors.New("payment configuration incomplete: ensure WECHAT_PAY_APPID, WECHAT_PAY_MCH_ID, and WECHAT_PAY_API_KEY are set")
	}
	if (c.Component.AppID == "") != (c.Component.AppSecret == "") {
		return errors.New("component configuration incomplete: set both WECHAT_COMPONENT_APPID and WECHAT_COMPONENT_APPSECRET")
	}
	// Without the secret every verify-ticket push is rejected and no component token can be issued.
	if c.Component.Enabled() && c.Component.TicketWebhookSecret == "" {
		return errors.New("TICKET_WEBHOOK_SECRET must be set when the component app is configured")
	}
	return nil
}

// getEnv returns the value of an environment variable or a default if empty.
func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// getEnvInt returns the value of an environment variable as an integer or a default if empty/invalid.
func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

// getEnvBool returns the value of an environment variable as a bool or a default if empty/invalid.
func getEnvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

// parseDurationEnv reads an environment variable and parses it as time.Duration.
// If the variable is empty, it falls back to the provided default value.
func parseDurationEnv(key, def string) (time.Duration, error) {
	raw := getEnv(key, def)
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("duration must be >= 0")
	}
	return d, nil
}
