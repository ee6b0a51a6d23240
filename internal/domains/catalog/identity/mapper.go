package identity

import (
	"context"
	"sort"
	"sync"

	"household-catalog/internal/domains/catalog/model"
	"household-catalog/pkg/cache"
	"household-catalog/pkg/logger"
)

// CacheKey là key duy nhất giữ toàn bộ identity map trong local cache
const CacheKey = "catalog:identity_map"

// Mapper giữ mapping legacy id → canonical id của store đang active.
// Resolve/Record không bao giờ trả lỗi: id lạ đi qua nguyên vẹn,
// quyết định NotFound để Repository Facade xử lý.
type Mapper struct {
	mu       sync.RWMutex
	forward  map[string]string // legacy → canonical
	store    cache.Cache
	cacheKey string
}

func NewMapper(store cache.Cache) *Mapper {
	return &Mapper{
		forward:  make(map[string]string),
		store:    store,
		cacheKey: CacheKey,
	}
}

// Load đọc map đã persist. Cache miss → map rỗng.
func (m *Mapper) Load(ctx context.Context) error {
	var entries []model.IdentityMapEntry
	found, err := m.store.Get(ctx, m.cacheKey, &entries)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.forward = make(map[string]string, len(entries))
	if !found {
		return nil
	}
	for _, e := range entries {
		if e.LegacyID == "" || e.CanonicalID == "" {
			continue
		}
		m.forward[e.LegacyID] = e.CanonicalID
	}
	return nil
}

// Resolve trả về canonical id, hoặc chính id nếu chưa có mapping
func (m *Mapper) Resolve(id string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if canonical, ok := m.forward[id]; ok {
		return canonical
	}
	return id
}

// LegacyFor tra ngược canonical → legacy
func (m *Mapper) LegacyFor(canonicalID string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for legacy, canonical := range m.forward {
		if canonical == canonicalID {
			return legacy, true
		}
	}
	return "", false
}

// Record upsert (legacyID → canonicalID) rồi persist.
// Entry đang trỏ tới legacyID được trỏ lại sang canonicalID để Resolve luôn một bước.
func (m *Mapper) Record(ctx context.Context, legacyID, canonicalID string) {
	if legacyID == "" || canonicalID == "" || legacyID == canonicalID {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// canonicalID bản thân đã được migrate tiếp → đi thẳng tới đích
	if next, ok := m.forward[canonicalID]; ok {
		canonicalID = next
	}
	if canonicalID == legacyID {
		return
	}

	if current, ok := m.forward[legacyID]; ok {
		if current == canonicalID {
			return
		}
		logger.Warn("identity: remapping legacy id", map[string]interface{}{
			"legacy_id":    legacyID,
			"previous_id":  current,
			"canonical_id": canonicalID,
		})
	}

	m.forward[legacyID] = canonicalID
	for legacy, canonical := range m.forward {
		if canonical == legacyID {
			m.forward[legacy] = canonicalID
		}
	}
	if err := m.store.Set(ctx, m.cacheKey, m.entriesLocked(), 0); err != nil {
		logger.ErrorWithFields("identity: failed to persist map", err, map[string]interface{}{
			"legacy_id":    legacyID,
			"canonical_id": canonicalID,
		})
	}
}

// Entries trả về snapshot đã sort theo legacy id
func (m *Mapper) Entries() []model.IdentityMapEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.entriesLocked()
}

func (m *Mapper) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.forward)
}

func (m *Mapper) entriesLocked() []model.IdentityMapEntry {
	out := make([]model.IdentityMapEntry, 0, len(m.forward))
	for legacy, canonical := range m.forward {
		out = append(out, model.IdentityMapEntry{LegacyID: legacy, CanonicalID: canonical})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LegacyID < out[j].LegacyID })
	return out
}
