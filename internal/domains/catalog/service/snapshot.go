package service

import (
	"context"
	"fmt"

	"household-catalog/internal/domains/catalog/identity"
	"household-catalog/internal/domains/catalog/localcache"
)

// Snapshot gom mọi state persist trong local cache của engine.
// Load được gọi lúc khởi động, và trước mỗi task khi nhiều process
// dùng chung một cache (redis).
type Snapshot struct {
	Cache   *localcache.Store
	IDs     *identity.Mapper
	Pending *PendingWriteQueue
}

func (s Snapshot) Load(ctx context.Context) error {
	if err := s.IDs.Load(ctx); err != nil {
		return fmt.Errorf("load identity map: %w", err)
	}
	if err := s.Cache.Load(ctx); err != nil {
		return err
	}
	if s.Pending != nil {
		if err := s.Pending.Load(ctx); err != nil {
			return err
		}
	}
	return nil
}
