package service

import (
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
)

// CacheService простой in-memory кэш с TTL для горячих read путей:
// рейтинги и репутация перечитываются часто, а меняются батчами.
type CacheService struct {
	mu    sync.RWMutex
	cache map[string]*cacheEntry
}

type cacheEntry struct {
	data      interface{}
	expiresAt time.Time
}

// NewCacheService создаёт кэш и запускает фоновую очистку.
func NewCacheService() *CacheService {
	cs := &CacheService{
		cache: make(map[string]*cacheEntry),
	}

	go cs.cleanup()

	return cs
}

// Get возвращает значение, если оно есть и не протухло.
func (cs *CacheService) Get(key string) (interface{}, bool) {
	cs.mu.RLock()
	defer cs.mu.RUnlock()

	entry, exists := cs.cache[key]
	if !exists {
		return nil, false
	}

	if time.Now().After(entry.expiresAt) {
		// Удалением занимается cleanup.
		return nil, false
	}

	return entry.data, true
}

// Set сохраняет значение с TTL.
func (cs *CacheService) Set(key string, value interface{}, ttl time.Duration) {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	cs.cache[key] = &cacheEntry{
		data:      value,
		expiresAt: time.Now().Add(ttl),
	}
}

// Delete удаляет ключ.
func (cs *CacheService) Delete(key string) {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	delete(cs.cache, key)
}

// InvalidateByPrefix удаляет все ключи с данным префиксом.
func (cs *CacheService) InvalidateByPrefix(prefix string) {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	for key := range cs.cache {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			delete(cs.cache, key)
		}
	}
}

// InvalidateReputation сбрасывает кэш репутации после пересчёта.
func (cs *CacheService) InvalidateReputation() {
	cs.InvalidateByPrefix("reputation:")
	cs.InvalidateByPrefix("top_sellers:")
}

// InvalidateLeaderboards сбрасывает кэш рейтингов после снапшота.
func (cs *CacheService) InvalidateLeaderboards() {
	cs.InvalidateByPrefix("leaderboard:")
}

// cleanup периодически выбрасывает протухшие записи.
func (cs *CacheService) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		cs.mu.Lock()
		now := time.Now()
		for key, entry := range cs.cache {
			if now.After(entry.expiresAt) {
				delete(cs.cache, key)
			}
		}
		cs.mu.Unlock()
	}
}

// Генераторы ключей кэша
func LeaderboardCacheKey(limit int) string {
	return "leaderboard:points:" + strconv.Itoa(limit)
}

func SnapshotCacheKey(period, leaderboardType string) string {
	return "leaderboard:snapshot:" + period + ":" + leaderboardType
}

func ReputationCacheKey(userID uuid.UUID) string {
	return "reputation:" + userID.String()
}

func TopSellersCacheKey(limit int) string {
	return "top_sellers:" + strconv.Itoa(limit)
}

// GetOrSet возвращает значение из кэша или вычисляет и кладёт его.
func (cs *CacheService) GetOrSet(key string, ttl time.Duration, fn func() (interface{}, error)) (interface{}, error) {
	if value, found := cs.Get(key); found {
		return value, nil
	}

	value, err := fn()
	if err != nil {
		return nil, err
	}

	cs.Set(key, value, ttl)

	return value, nil
}
