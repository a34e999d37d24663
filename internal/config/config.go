package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Telegram
	BotToken       string
	UpdateTimeout  int // long-poll timeout, seconds

	// Database
	SQLiteDBPath string

	// AMQP (optional: empty URL disables the event stream)
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Entry cache
	UserCacheTTL          time.Duration
	UserCacheCapacity     int
	CategoryCacheTTL      time.Duration
	CategoryCacheCapacity int
	CacheCleanupInterval  time.Duration

	// Queries
	HistoryLimit int
}

func Load() *Config {
	return &Config{
		BotToken:      getEnv("BOT_TOKEN", ""),
		UpdateTimeout: getEnvInt("BOT_UPDATE_TIMEOUT", 60),

		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/kharcha.db"),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "kharcha"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "txn_events"),

		UserCacheTTL:          getEnvDuration("USER_CACHE_TTL", 5*time.Minute),
		UserCacheCapacity:     getEnvInt("USER_CACHE_CAPACITY", 100),
		CategoryCacheTTL:      getEnvDuration("CATEGORY_CACHE_TTL", 30*time.Minute),
		CategoryCacheCapacity: getEnvInt("CATEGORY_CACHE_CAPACITY", 500),
		CacheCleanupInterval:  getEnvDuration("CACHE_CLEANUP_INTERVAL", 10*time.Minute),

		HistoryLimit: getEnvInt("HISTORY_LIMIT", 50),
	}
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	var errs []string

	if c.BotToken == "" {
		errs = append(errs, "BOT_TOKEN is required")
	}

	if c.UpdateTimeout < 1 || c.UpdateTimeout > 300 {
		errs = append(errs, fmt.Sprintf("invalid update timeout %d: must be between 1 and 300 seconds", c.UpdateTimeout))
	}

	if c.SQLiteDBPath == "" {
		errs = append(errs, "SQLite database path cannot be empty")
	} else {
		dir := filepath.Dir(c.SQLiteDBPath)
		if dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0755); err != nil {
					errs = append(errs, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
				}
			}
		}
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errs = append(errs, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errs = append(errs, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errs = append(errs, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errs = append(errs, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if c.UserCacheTTL < time.Second {
		errs = append(errs, fmt.Sprintf("invalid user cache TTL %v: must be at least 1 second", c.UserCacheTTL))
	}
	if c.CategoryCacheTTL < time.Second {
		errs = append(errs, fmt.Sprintf("invalid category cache TTL %v: must be at least 1 second", c.CategoryCacheTTL))
	}
	if c.UserCacheCapacity < 1 {
		errs = append(errs, fmt.Sprintf("invalid user cache capacity %d: must be at least 1", c.UserCacheCapacity))
	}
	if c.CategoryCacheCapacity < 1 {
		errs = append(errs, fmt.Sprintf("invalid category cache capacity %d: must be at least 1", c.CategoryCacheCapacity))
	}
	if c.CacheCleanupInterval < time.Second {
		errs = append(errs, fmt.Sprintf("invalid cache cleanup interval %v: must be at least 1 second", c.CacheCleanupInterval))
	}

	if c.HistoryLimit < 1 || c.HistoryLimit > 100 {
		errs = append(errs, fmt.Sprintf("invalid history limit %d: must be between 1 and 100", c.HistoryLimit))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errs, "\n- "))
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
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
