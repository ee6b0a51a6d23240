package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("STORE_DRIVER", "")
	t.Setenv("LOCAL_CACHE_DRIVER", "")
	t.Setenv("SYNC_DISPATCH", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, StorePostgres, cfg.Store.Driver)
	assert.Equal(t, CacheBadger, cfg.LocalCache.Driver)
	assert.Equal(t, DispatchInline, cfg.Sync.Dispatch)
	assert.Equal(t, "Other", cfg.Sync.FallbackCategory)
	assert.Equal(t, "Uncategorized", cfg.Sync.ReservedCategory)
	assert.Equal(t, 8, cfg.Sync.IDMinLength)
	assert.True(t, cfg.Sync.PendingWrites)
	assert.Equal(t, 5, cfg.Sync.PendingMaxAttempts)
	assert.Equal(t, 5*time.Minute, cfg.Job.ReconcileTimeout)
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("STORE_DRIVER", "HTTP")
	t.Setenv("CATALOG_API_URL", "http://catalog.local/api/v1/")
	t.Setenv("CATALOG_API_TIMEOUT", "3s")
	t.Setenv("LOCAL_CACHE_DRIVER", "redis")
	t.Setenv("SYNC_DISPATCH", "queue")
	t.Setenv("SYNC_PENDING_WRITES", "false")
	t.Setenv("SYNC_RECALC_CONCURRENCY", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, StoreHTTP, cfg.Store.Driver)
	assert.Equal(t, "http://catalog.local/api/v1", cfg.HTTPStore.BaseURL)
	assert.Equal(t, 3*time.Second, cfg.HTTPStore.Timeout)
	assert.Equal(t, DispatchQueue, cfg.Sync.Dispatch)
	assert.False(t, cfg.Sync.PendingWrites)
	assert.Equal(t, 4, cfg.Sync.RecalcConcurrency, "invalid number falls back to default")
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			App:        AppConfig{Environment: "development"},
			Store:      StoreConfig{Driver: StoreMemory},
			LocalCache: LocalCacheConfig{Driver: CacheMemory},
			Sync: SyncConfig{
				FallbackCategory:   "Other",
				PendingMaxAttempts: 5,
				RecalcConcurrency:  1,
				Dispatch:           DispatchInline,
			},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"unknown store", func(c *Config) { c.Store.Driver = "sqlite" }, "unknown STORE_DRIVER"},
		{"http store needs url", func(c *Config) { c.Store.Driver = StoreHTTP }, "CATALOG_API_URL"},
		{"unknown cache", func(c *Config) { c.LocalCache.Driver = "file" }, "unknown LOCAL_CACHE_DRIVER"},
		{"queue dispatch needs shared cache", func(c *Config) { c.Sync.Dispatch = DispatchQueue }, "requires LOCAL_CACHE_DRIVER=redis"},
		{"unknown dispatch", func(c *Config) { c.Sync.Dispatch = "kafka" }, "unknown SYNC_DISPATCH"},
		{"blank fallback", func(c *Config) { c.Sync.FallbackCategory = "  " }, "SYNC_FALLBACK_CATEGORY"},
		{"no attempts", func(c *Config) { c.Sync.PendingMaxAttempts = 0 }, "SYNC_PENDING_MAX_ATTEMPTS"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestConfig_ValidateClampsConcurrency(t *testing.T) {
	cfg := &Config{
		Store:      StoreConfig{Driver: StoreMemory},
		LocalCache: LocalCacheConfig{Driver: CacheMemory},
		Sync:       SyncConfig{FallbackCategory: "Other", PendingMaxAttempts: 1, Dispatch: DispatchInline},
	}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 1, cfg.Sync.RecalcConcurrency)
}

func TestLoadDatabaseConfig(t *testing.T) {
	t.Setenv("DB_PORT", "6543")
	t.Setenv("DB_CONNECT_TIMEOUT", "2s")

	cfg, err := LoadDatabaseConfig()
	require.NoError(t, err)
	assert.Equal(t, 6543, cfg.Port)
	assert.Equal(t, 2*time.Second, cfg.ConnectTimeout)

	t.Setenv("DB_PORT", "abc")
	_, err = LoadDatabaseConfig()
	assert.ErrorContains(t, err, "invalid DB_PORT")
}
