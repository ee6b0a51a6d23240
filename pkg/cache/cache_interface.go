package cache

import (
	"context"
	"errors"
	"time"
)

// ErrCacheClosed được trả về khi thao tác trên cache đã Close.
var ErrCacheClosed = errors.New("cache is closed")

// Cache interface định nghĩa contract cho local persisted cache
// Cho phép swap implementation (Badger, Redis, In-memory)
type Cache interface {
	// Get lấy data từ cache và unmarshal vào dest
	// Returns: (found bool, error)
	// - found = true: cache hit, data đã unmarshal vào dest
	// - found = false: cache miss, dest không bị thay đổi
	Get(ctx context.Context, key string, dest interface{}) (bool, error)

	// Set lưu data vào cache với TTL (0 = không hết hạn)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error

	// GetRaw trả về bytes đã lưu, dùng để so sánh snapshot
	GetRaw(ctx context.Context, key string) ([]byte, bool, error)

	// Delete xóa các keys khỏi cache
	Delete(ctx context.Context, keys ...string) error

	Exists(ctx context.Context, key string) (bool, error)

	// Ping kiểm tra connection
	Ping(ctx context.Context) error

	Close() error
}
