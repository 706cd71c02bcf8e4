package user

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

type cacheItem struct {
	user     *User
	expireAt time.Time
}

type cache struct {
	mu    sync.Mutex
	items map[uuid.UUID]cacheItem
	ttl   time.Duration
}

func newCache(ttl time.Duration) *cache {
	return &cache{
		items: make(map[uuid.UUID]cacheItem),
		ttl:   ttl,
	}
}

func (c *cache) set(u *User) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items[u.ID] = cacheItem{
		user:     u,
		expireAt: time.Now().Add(c.ttl),
	}
}

func (c *cache) get(key uuid.UUID) (*User, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	item, ok := c.items[key]
	if !ok {
		return nil, false
	}

	if item.expireAt.Before(time.Now()) {
		delete(c.items, key)

		return nil, false
	}

	return item.user, true
}
