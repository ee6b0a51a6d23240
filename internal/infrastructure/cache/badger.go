package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/dgraph-io/badger/v4"

	"household-catalog/pkg/cache"
)

// BadgerCache là local persisted cache nhúng trong process.
// Dùng làm mặc định cho CLI và worker chạy trên máy của household.
type BadgerCache struct {
	db *badger.DB
}

var _ cache.Cache = (*BadgerCache)(nil)

// OpenBadgerCache mở (hoặc tạo) database tại path.
// path rỗng → in-memory, dùng cho test.
func OpenBadgerCache(path string) (*BadgerCache, error) {
	opts := badger.DefaultOptions(path)
	if path == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts.SyncWrites = true
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}

	if path != "" {
		log.Printf("[CACHE] Badger opened at %s", path)
	}
	return &BadgerCache{db: db}, nil
}

func (c *BadgerCache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	raw, found, err := c.GetRaw(ctx, key)
	if err != nil || !found {
		return found, err
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return false, fmt.Errorf("badger cache: unmarshal %s: %w", key, err)
	}
	return true, nil
}

func (c *BadgerCache) GetRaw(ctx context.Context, key string) ([]byte, bool, error) {
	var raw []byte
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if errors.Is(err, badger.ErrDBClosed) {
		return nil, false, cache.ErrCacheClosed
	}
	if err != nil {
		return nil, false, fmt.Errorf("badger cache: get %s: %w", key, err)
	}
	return raw, true, nil
}

func (c *BadgerCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("badger cache: marshal %s: %w", key, err)
	}

	err = c.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(key), data)
		if ttl > 0 {
			entry = entry.WithTTL(ttl)
		}
		return txn.SetEntry(entry)
	})
	if errors.Is(err, badger.ErrDBClosed) {
		return cache.ErrCacheClosed
	}
	if err != nil {
		return fmt.Errorf("badger cache: set %s: %w", key, err)
	}
	return nil
}

func (c *BadgerCache) Delete(ctx context.Context, keys ...string) error {
	return c.db.Update(func(txn *badger.Txn) error {
		for _, k := range keys {
			if err := txn.Delete([]byte(k)); err != nil {
				return err
			}
		}
		return nil
	})
}

func (c *BadgerCache) Exists(ctx context.Context, key string) (bool, error) {
	_, found, err := c.GetRaw(ctx, key)
	return found, err
}

func (c *BadgerCache) Ping(ctx context.Context) error {
	if c.db.IsClosed() {
		return cache.ErrCacheClosed
	}
	return nil
}

func (c *BadgerCache) Close() error {
	if c.db.IsClosed() {
		return nil
	}
	log.Println("[CACHE] Closing badger...")
	return c.db.Close()
}
