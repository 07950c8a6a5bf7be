// Package cache provides a small in-process TTL cache used by the store for
// hot read paths (agent configs, brand settings, users).
package cache

import (
	"container/list"
	"sync"
	"time"
)

// Config holds the cache settings.
type Config struct {
	DefaultTTL      time.Duration
	CleanupInterval time.Duration
	MaxItems        int
	// OnEviction, if set, is called after an item is evicted or expired.
	OnEviction func(key string, value any)
}

type item struct {
	key       string
	value     any
	expiresAt time.Time
	elem      *list.Element
}

// Cache is a TTL cache with LRU eviction when MaxItems is exceeded.
// Safe for concurrent use.
type Cache struct {
	mu     sync.Mutex
	config Config
	items  map[string]*item
	order  *list.List // front = most recently used

	stopChan chan struct{}
	stopOnce sync.Once
}

// New creates a new cache and starts its cleanup goroutine.
func New(config Config) *Cache {
	if config.DefaultTTL <= 0 {
		config.DefaultTTL = 10 * time.Minute
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = 5 * time.Minute
	}
	if config.MaxItems <= 0 {
		config.MaxItems = 1000
	}
	c := &Cache{
		config:   config,
		items:    make(map[string]*item),
		order:    list.New(),
		stopChan: make(chan struct{}),
	}
	go c.cleanupLoop()
	return c
}

// Get returns the cached value for key, if present and not expired.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	it, ok := c.items[key]
	if !ok {
		return nil, false
	}
	if time.Now().After(it.expiresAt) {
		c.removeLocked(it)
		return nil, false
	}
	c.order.MoveToFront(it.elem)
	return it.value, true
}

// Set stores a value with the default TTL.
func (c *Cache) Set(key string, value any) {
	c.SetWithTTL(key, value, c.config.DefaultTTL)
}

// SetWithTTL stores a value with an explicit TTL.
func (c *Cache) SetWithTTL(key string, value any, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if it, ok := c.items[key]; ok {
		it.value = value
		it.expiresAt = time.Now().Add(ttl)
		c.order.MoveToFront(it.elem)
		return
	}

	it := &item{key: key, value: value, expiresAt: time.Now().Add(ttl)}
	it.elem = c.order.PushFront(it)
	c.items[key] = it

	for len(c.items) > c.config.MaxItems {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		c.removeLocked(oldest.Value.(*item))
	}
}

// Delete removes a key from the cache.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if it, ok := c.items[key]; ok {
		c.removeLocked(it)
	}
}

// Len returns the number of cached items.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Close stops the cleanup goroutine.
func (c *Cache) Close() {
	c.stopOnce.Do(func() { close(c.stopChan) })
}

func (c *Cache) removeLocked(it *item) {
	delete(c.items, it.key)
	c.order.Remove(it.elem)
	if c.config.OnEviction != nil {
		c.config.OnEviction(it.key, it.value)
	}
}

func (c *Cache) cleanupLoop() {
	ticker := time.NewTicker(c.config.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stopChan:
			return
		case <-ticker.C:
			c.mu.Lock()
			now := time.Now()
			for _, it := range c.items {
				if now.After(it.expiresAt) {
					c.removeLocked(it)
				}
			}
			c.mu.Unlock()
		}
	}
}
