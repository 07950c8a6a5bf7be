package memory

import (
	"sync"
	"time"
)

// ShortTermMemory is an in-process scratchpad with per-entry TTL.
// Thread-safe for concurrent access. Entries never survive a restart.
type ShortTermMemory struct {
	mu      sync.RWMutex
	entries map[string]*entry
	ttl     time.Duration

	stopChan chan struct{}
	wg       sync.WaitGroup
}

type entry struct {
	value     any
	expiresAt time.Time
}

// NewShortTermMemory creates a scratchpad whose entries expire after ttl
// (default 15 minutes).
func NewShortTermMemory(ttl time.Duration) *ShortTermMemory {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	stm := &ShortTermMemory{
		entries:  make(map[string]*entry),
		ttl:      ttl,
		stopChan: make(chan struct{}),
	}
	stm.wg.Add(1)
	go stm.cleanupLoop()
	return stm
}

// Close stops the cleanup goroutine and releases resources.
func (s *ShortTermMemory) Close() {
	close(s.stopChan)
	s.wg.Wait()
}

// Set stores a value under key with the default TTL.
func (s *ShortTermMemory) Set(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = &entry{value: value, expiresAt: time.Now().Add(s.ttl)}
}

// Get retrieves a value if present and unexpired.
func (s *ShortTermMemory) Get(key string) (any, bool) {
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if time.Now().After(e.expiresAt) {
		s.mu.Lock()
		delete(s.entries, key)
		s.mu.Unlock()
		return nil, false
	}
	return e.value, true
}

// Delete removes a key.
func (s *ShortTermMemory) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
}

// Len returns the number of stored entries, expired ones included.
func (s *ShortTermMemory) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// cleanupLoop periodically removes expired entries.
func (s *ShortTermMemory) cleanupLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			now := time.Now()
			s.mu.Lock()
			for key, e := range s.entries {
				if now.After(e.expiresAt) {
					delete(s.entries, key)
				}
			}
			s.mu.Unlock()
		}
	}
}
