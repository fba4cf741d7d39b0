package resolver

import (
	"container/list"
	"sync"
	"time"

	"sprintboard/internal/models"
)

// Cache is a thread-safe LRU cache of fetched users with a per-entry TTL.
type Cache struct {
	mu      sync.Mutex
	items   map[string]*list.Element
	lru     *list.List
	maxSize int
	ttl     time.Duration
	now     func() time.Time
}

type cacheItem struct {
	key       string
	user      models.User
	expiresAt time.Time
}

// NewCache creates a cache holding at most maxSize users for ttl each.
// A zero ttl keeps entries until they are evicted.
func NewCache(maxSize int, ttl time.Duration) *Cache {
	if maxSize <= 0 {
		maxSize = 256
	}
	return &Cache{
		items:   make(map[string]*list.Element),
		lru:     list.New(),
		maxSize: maxSize,
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get returns the cached user for key; expired entries are dropped.
func (c *Cache) Get(key string) (models.User, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		return models.User{}, false
	}
	item := elem.Value.(*cacheItem)
	if c.ttl > 0 && c.now().After(item.expiresAt) {
		c.remove(elem)
		return models.User{}, false
	}
	c.lru.MoveToFront(elem)
	return item.user, true
}

// Peek returns the cached user for key without touching the recency order.
// Expired entries read as misses and stay until Get or Set drops them.
func (c *Cache) Peek(key string) (models.User, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		return models.User{}, false
	}
	item := elem.Value.(*cacheItem)
	if c.ttl > 0 && c.now().After(item.expiresAt) {
		return models.User{}, false
	}
	return item.user, true
}

// Set stores user under key, evicting the least recently used entry when full.
func (c *Cache) Set(key string, user models.User) {
	c.mu.Lock()
	defer c.mu.Unlock()

	expires := c.now().Add(c.ttl)
	if elem, ok := c.items[key]; ok {
		item := elem.Value.(*cacheItem)
		item.user = user
		item.expiresAt = expires
		c.lru.MoveToFront(elem)
		return
	}

	c.items[key] = c.lru.PushFront(&cacheItem{key: key, user: user, expiresAt: expires})
	for c.lru.Len() > c.maxSize {
		c.remove(c.lru.Back())
	}
}

// Len returns the number of cached entries, expired ones included.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

func (c *Cache) remove(elem *list.Element) {
	c.lru.Remove(elem)
	delete(c.items, elem.Value.(*cacheItem).key)
}
