package cache

import (
	"strconv"
	"time"

	"kharcha/internal/core"
)

// Defaults tuned for a single chat bot process: users churn fast and their
// balances change often, categories are few and effectively immutable.
const (
	DefaultUserTTL          = 5 * time.Minute
	DefaultUserCapacity     = 100
	DefaultCategoryTTL      = 30 * time.Minute
	DefaultCategoryCapacity = 500
)

// EntryCacheConfig sizes the two caches behind an EntryCache.
type EntryCacheConfig struct {
	UserTTL          time.Duration
	UserCapacity     int
	CategoryTTL      time.Duration
	CategoryCapacity int

	// Clock overrides time.Now for expiry checks. Tests use this to step
	// past TTLs without sleeping.
	Clock func() time.Time
}

// DefaultEntryCacheConfig returns the production cache sizing.
func DefaultEntryCacheConfig() EntryCacheConfig {
	return EntryCacheConfig{
		UserTTL:          DefaultUserTTL,
		UserCapacity:     DefaultUserCapacity,
		CategoryTTL:      DefaultCategoryTTL,
		CategoryCapacity: DefaultCategoryCapacity,
	}
}

// EntryCache holds read-through snapshots of users and categories. It is
// never the source of truth: entries are written only after a confirmed
// store write, and balance decisions are always made against the store.
type EntryCache struct {
	users      *LRUCache[core.User]
	categories *LRUCache[core.Category]
}

// NewEntryCache creates the user and category caches from cfg.
func NewEntryCache(cfg EntryCacheConfig) *EntryCache {
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &EntryCache{
		users:      NewLRUCacheWithClock[core.User](cfg.UserCapacity, cfg.UserTTL, clock),
		categories: NewLRUCacheWithClock[core.Category](cfg.CategoryCapacity, cfg.CategoryTTL, clock),
	}
}

// Register adds both caches to a cleanup manager.
func (e *EntryCache) Register(m *Manager) {
	m.Register(e.users)
	m.Register(e.categories)
}

// GetUser returns a cached user snapshot, if fresh.
func (e *EntryCache) GetUser(id int64) (core.User, bool) {
	return e.users.Get(userKey(id))
}

// SetUser stores a user snapshot after a confirmed store write.
func (e *EntryCache) SetUser(u core.User) {
	e.users.Set(userKey(u.ID), u)
}

// UpdateUser merges a store result into the cached snapshot, inserting a
// fresh entry on miss. An empty name keeps the cached one, so partial
// updates (balance-only store results) don't erase it.
func (e *EntryCache) UpdateUser(u core.User) {
	if cached, ok := e.users.Get(userKey(u.ID)); ok && u.Name == "" {
		u.Name = cached.Name
	}
	e.users.Set(userKey(u.ID), u)
}

// DeleteUser drops a user snapshot.
func (e *EntryCache) DeleteUser(id int64) {
	e.users.Delete(userKey(id))
}

// GetCategory returns a cached category by raw name; lookup is normalized.
func (e *EntryCache) GetCategory(name string) (core.Category, bool) {
	return e.categories.Get(core.NormalizeCategory(name))
}

// SetCategory stores a category snapshot under its normalized name.
func (e *EntryCache) SetCategory(c core.Category) {
	e.categories.Set(core.NormalizeCategory(c.Name), c)
}

// Sizes returns the current user and category entry counts.
func (e *EntryCache) Sizes() (users, categories int) {
	return e.users.Size(), e.categories.Size()
}

func userKey(id int64) string {
	return strconv.FormatInt(id, 10)
}
