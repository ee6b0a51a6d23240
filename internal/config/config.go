package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config chứa toàn bộ application configuration
// Struct này được populate từ environment variables
type Config struct {
	App        AppConfig
	Store      StoreConfig
	Mongo      MongoConfig
	HTTPStore  HTTPStoreConfig
	LocalCache LocalCacheConfig
	Redis      RedisConfig
	Sync       SyncConfig
	Job        JobConfig
}

type AppConfig struct {
	Name        string
	Environment string // development, staging, production
	Port        string
	Version     string
	LogLevel    string
}

// Store drivers
const (
	StorePostgres = "postgres"
	StoreMongo    = "mongo"
	StoreHTTP     = "http"
	StoreMemory   = "memory"
)

// Local cache drivers
const (
	CacheBadger = "badger"
	CacheRedis  = "redis"
	CacheMemory = "memory"
)

// Recalculation dispatch modes
const (
	DispatchInline = "inline"
	DispatchQueue  = "queue"
)

// StoreConfig chọn backing store đang active. Mỗi deployment chỉ có một.
type StoreConfig struct {
	Driver string
}

type MongoConfig struct {
	URI      string
	Database string
	Timeout  time.Duration
}

// HTTPStoreConfig là relational store được truy cập qua REST API (cmd/api).
type HTTPStoreConfig struct {
	BaseURL  string
	Timeout  time.Duration
	PageSize int
}

type LocalCacheConfig struct {
	Driver string
	Dir    string
	Prefix string
}

type RedisConfig struct {
	Host     string
	Password string
	DB       int
}

// =====================================================
// RECONCILIATION
// =====================================================

type SyncConfig struct {
	FallbackCategory   string
	ReservedCategory   string
	IDMinLength        int
	RecalcConcurrency  int
	UseServerStats     bool
	PendingWrites      bool
	PendingMaxAttempts int
	Dispatch           string
}

type JobConfig struct {
	ReconcileCron    string
	ReconcileTimeout time.Duration
	RecalcMaxRetry   int
}

// Load đọc config từ environment variables
func Load() (*Config, error) {
	cfg := &Config{
		App: AppConfig{
			Name:        getEnv("APP_NAME", "Household Catalog"),
			Environment: getEnv("APP_ENV", "development"),
			Port:        getEnv("APP_PORT", "8080"),
			Version:     getEnv("APP_VERSION", "1.0.0"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
		},
		Store: StoreConfig{
			Driver: strings.ToLower(getEnv("STORE_DRIVER", StorePostgres)),
		},
		Mongo: MongoConfig{
			URI:      getEnv("MONGO_URI", "mongodb://localhost:27017"),
			Database: getEnv("MONGO_DATABASE", "household_catalog"),
			Timeout:  getEnvDuration("MONGO_TIMEOUT", 10*time.Second),
		},
		HTTPStore: HTTPStoreConfig{
			BaseURL:  strings.TrimRight(getEnv("CATALOG_API_URL", ""), "/"),
			Timeout:  getEnvDuration("CATALOG_API_TIMEOUT", 10*time.Second),
			PageSize: getEnvInt("CATALOG_API_PAGE_SIZE", 100),
		},
		LocalCache: LocalCacheConfig{
			Driver: strings.ToLower(getEnv("LOCAL_CACHE_DRIVER", CacheBadger)),
			Dir:    getEnv("LOCAL_CACHE_DIR", "./data/cache"),
			Prefix: getEnv("LOCAL_CACHE_PREFIX", "household"),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Sync: SyncConfig{
			FallbackCategory:   getEnv("SYNC_FALLBACK_CATEGORY", "Other"),
			ReservedCategory:   getEnv("SYNC_RESERVED_CATEGORY", "Uncategorized"),
			IDMinLength:        getEnvInt("SYNC_ID_MIN_LENGTH", 8),
			RecalcConcurrency:  getEnvInt("SYNC_RECALC_CONCURRENCY", 4),
			UseServerStats:     getEnvBool("SYNC_USE_SERVER_STATS", false),
			PendingWrites:      getEnvBool("SYNC_PENDING_WRITES", true),
			PendingMaxAttempts: getEnvInt("SYNC_PENDING_MAX_ATTEMPTS", 5),
			Dispatch:           strings.ToLower(getEnv("SYNC_DISPATCH", DispatchInline)),
		},
		Job: JobConfig{
			ReconcileCron:    getEnv("JOB_RECONCILE_CRON", "*/30 * * * *"),
			ReconcileTimeout: getEnvDuration("JOB_RECONCILE_TIMEOUT", 5*time.Minute),
			RecalcMaxRetry:   getEnvInt("JOB_RECALC_MAX_RETRY", 3),
		},
	}

	// Validate critical config
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate kiểm tra config có hợp lệ không
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case StorePostgres, StoreMongo, StoreMemory:
	case StoreHTTP:
		if c.HTTPStore.BaseURL == "" {
			return fmt.Errorf("CATALOG_API_URL must be set when STORE_DRIVER=http")
		}
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.Store.Driver)
	}

	switch c.LocalCache.Driver {
	case CacheBadger, CacheRedis, CacheMemory:
	default:
		return fmt.Errorf("unknown LOCAL_CACHE_DRIVER %q", c.LocalCache.Driver)
	}

	switch c.Sync.Dispatch {
	case DispatchInline:
	case DispatchQueue:
		// worker phải đọc được cùng working copy với process enqueue
		if c.LocalCache.Driver != CacheRedis {
			return fmt.Errorf("SYNC_DISPATCH=queue requires LOCAL_CACHE_DRIVER=redis")
		}
	default:
		return fmt.Errorf("unknown SYNC_DISPATCH %q", c.Sync.Dispatch)
	}

	if strings.TrimSpace(c.Sync.FallbackCategory) == "" {
		return fmt.Errorf("SYNC_FALLBACK_CATEGORY must not be empty")
	}
	if c.Sync.PendingMaxAttempts < 1 {
		return fmt.Errorf("SYNC_PENDING_MAX_ATTEMPTS must be >= 1")
	}
	if c.Sync.RecalcConcurrency < 1 {
		c.Sync.RecalcConcurrency = 1
	}

	// Production environment phải có DB password
	if c.App.Environment == "production" && c.Store.Driver == StorePostgres {
		if os.Getenv("DB_PASSWORD") == "" {
			return fmt.Errorf("DB_PASSWORD must be set in production")
		}
	}

	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
