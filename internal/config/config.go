package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/ini.v1"
)

// Config holds all configuration
type Config struct {
	MySQL    MySQLConfig
	Redis    RedisConfig
	JWT      JWTConfig
	Indexing IndexingConfig
	Migrate  bool
	HTTPAddr string
}

// MySQLConfig holds MySQL configuration; an empty DSN disables reindex-all
type MySQLConfig struct {
	DSN string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// JWTConfig holds operator token configuration
type JWTConfig struct {
	Secret        string
	ExpireMinutes int
	Issuer        string
}

// IndexingConfig holds search engine indexing configuration
type IndexingConfig struct {
	PlatformDomain    string
	GoogleKeys        string // JSON array of service accounts
	GoogleDailyQuota  int
	GoogleEndpoint    string
	GoogleTokenURL    string
	IndexNowKey       string
	IndexNowEndpoints []string
	PingEndpoint      string
	HTTPTimeoutSec    int
	CallDelayMs       int
	BatchChunkSize    int
	BatchDelayMs      int
	CooldownSec       int
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if exists (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{
		MySQL: MySQLConfig{
			DSN: getEnv("MYSQL_DSN", ""),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASS", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			Secret:        os.Getenv("JWT_SECRET"),
			ExpireMinutes: getEnvInt("JWT_EXPIRE_MINUTES", 1440),
			Issuer:        getEnv("JWT_ISSUER", "go_seoindex"),
		},
		Indexing: IndexingConfig{
			PlatformDomain:    getEnv("PLATFORM_DOMAIN", ""),
			GoogleKeys:        getEnv("GOOGLE_INDEXING_KEYS", ""),
			GoogleDailyQuota:  getEnvInt("GOOGLE_INDEXING_DAILY_QUOTA", 200),
			GoogleEndpoint:    getEnv("GOOGLE_INDEXING_ENDPOINT", ""),
			GoogleTokenURL:    getEnv("GOOGLE_TOKEN_URL", ""),
			IndexNowKey:       getEnv("INDEXNOW_KEY", ""),
			IndexNowEndpoints: splitList(getEnv("INDEXNOW_ENDPOINTS", "")),
			PingEndpoint:      getEnv("SITEMAP_PING_ENDPOINT", ""),
			HTTPTimeoutSec:    getEnvInt("INDEXING_HTTP_TIMEOUT_SEC", 15),
			CallDelayMs:       getEnvInt("INDEXING_CALL_DELAY_MS", 100),
			BatchChunkSize:    getEnvInt("INDEXING_BATCH_CHUNK", 10),
			BatchDelayMs:      getEnvInt("INDEXING_BATCH_DELAY_MS", 2000),
			CooldownSec:       getEnvInt("INDEXING_COOLDOWN_SEC", 300),
		},
		Migrate:  getEnv("MIGRATE", "0") == "1",
		HTTPAddr: getEnv("HTTP_ADDR", ":8080"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromINI loads configuration from INI file with environment variable override
func LoadFromINI(iniPath string) (*Config, error) {
	cfgFile, err := ini.Load(iniPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load INI file: %w", err)
	}

	// Priority: ENV > INI > default
	getValue := func(envKey, iniSection, iniKey, defaultValue string) string {
		if value := os.Getenv(envKey); value != "" {
			return value
		}
		if value := cfgFile.Section(iniSection).Key(iniKey).String(); value != "" {
			return value
		}
		return defaultValue
	}

	getValueInt := func(envKey, iniSection, iniKey string, defaultValue int) int {
		if value := os.Getenv(envKey); value != "" {
			if intValue, err := strconv.Atoi(value); err == nil {
				return intValue
			}
		}
		if cfgFile.Section(iniSection).HasKey(iniKey) {
			if value, err := cfgFile.Section(iniSection).Key(iniKey).Int(); err == nil {
				return value
			}
		}
		return defaultValue
	}

	getValueBool := func(envKey, iniSection, iniKey string, defaultValue bool) bool {
		if value := os.Getenv(envKey); value != "" {
			return value == "1" || value == "true"
		}
		if value, err := cfgFile.Section(iniSection).Key(iniKey).Bool(); err == nil {
			return value
		}
		return defaultValue
	}

	cfg := &Config{
		MySQL: MySQLConfig{
			DSN: getValue("MYSQL_DSN", "mysql", "dsn", ""),
		},
		Redis: RedisConfig{
			Addr:     getValue("REDIS_ADDR", "redis", "addr", "localhost:6379"),
			Password: getValue("REDIS_PASS", "redis", "pass", ""),
			DB:       getValueInt("REDIS_DB", "redis", "db", 0),
		},
		JWT: JWTConfig{
			Secret:        getValue("JWT_SECRET", "jwt", "secret", ""),
			ExpireMinutes: getValueInt("JWT_EXPIRE_MINUTES", "jwt", "expire_seconds", 86400) / 60,
			Issuer:        getValue("JWT_ISSUER", "jwt", "issuer", "go_seoindex"),
		},
		Indexing: IndexingConfig{
			PlatformDomain:    getValue("PLATFORM_DOMAIN", "indexing", "platform_domain", ""),
			GoogleKeys:        getValue("GOOGLE_INDEXING_KEYS", "google", "keys", ""),
			GoogleDailyQuota:  getValueInt("GOOGLE_INDEXING_DAILY_QUOTA", "google", "daily_quota", 200),
			GoogleEndpoint:    getValue("GOOGLE_INDEXING_ENDPOINT", "google", "endpoint", ""),
			GoogleTokenURL:    getValue("GOOGLE_TOKEN_URL", "google", "token_url", ""),
			IndexNowKey:       getValue("INDEXNOW_KEY", "indexnow", "key", ""),
			IndexNowEndpoints: splitList(getValue("INDEXNOW_ENDPOINTS", "indexnow", "endpoints", "")),
			PingEndpoint:      getValue("SITEMAP_PING_ENDPOINT", "sitemap", "ping_endpoint", ""),
			HTTPTimeoutSec:    getValueInt("INDEXING_HTTP_TIMEOUT_SEC", "indexing", "http_timeout_sec", 15),
			CallDelayMs:       getValueInt("INDEXING_CALL_DELAY_MS", "indexing", "call_delay_ms", 100),
			BatchChunkSize:    getValueInt("INDEXING_BATCH_CHUNK", "indexing", "batch_chunk", 10),
			BatchDelayMs:      getValueInt("INDEXING_BATCH_DELAY_MS", "indexing", "batch_delay_ms", 2000),
			CooldownSec:       getValueInt("INDEXING_COOLDOWN_SEC", "indexing", "cooldown_sec", 300),
		},
		Migrate:  getValueBool("MIGRATE", "app", "migrate", false),
		HTTPAddr: getValue("HTTP_ADDR", "http", "addr", ":8080"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.Indexing.PlatformDomain == "" {
		return fmt.Errorf("PLATFORM_DOMAIN is required")
	}
	if strings.Contains(c.Indexing.PlatformDomain, "/") {
		return fmt.Errorf("PLATFORM_DOMAIN must be a bare host, got %q", c.Indexing.PlatformDomain)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
