package memory

import (
	"context"
	"sync"
	"time"

	"github.com/subpilot/subpilot/store"
)

// MockService is an in-memory MemoryService for tests. It records every
// stored memory and serves reads from the same slice.
type MockService struct {
	mu       sync.Mutex
	memories []*store.SubscriberMemory
	scratch  map[string]any
	nextID   int64

	// SummaryOverride, when non-empty, is returned verbatim by
	// SummarizeMemories.
	SummaryOverride string
}

// NewMockService creates an empty mock.
func NewMockService() *MockService {
	return &MockService{scratch: make(map[string]any)}
}

func (m *MockService) add(userID int32, subscriberID string, memoryType store.MemoryType, key, content string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	now := time.Now().Unix()
	m.memories = append(m.memories, &store.SubscriberMemory{
		ID:           m.nextID,
		UserID:       userID,
		SubscriberID: subscriberID,
		MemoryType:   memoryType,
		Key:          key,
		Content:      content,
		CreatedTs:    now,
		UpdatedTs:    now,
	})
}

func (m *MockService) StoreFact(_ context.Context, userID int32, subscriberID, content string) error {
	m.add(userID, subscriberID, store.MemoryTypeFact, "", content)
	return nil
}

func (m *MockService) StoreInteraction(_ context.Context, userID int32, subscriberID, content string) error {
	m.add(userID, subscriberID, store.MemoryTypeInteraction, "", content)
	return nil
}

func (m *MockService) StorePreference(_ context.Context, userID int32, subscriberID, key, content string) error {
	m.mu.Lock()
	for _, mem := range m.memories {
		if mem.UserID == userID && mem.SubscriberID == subscriberID &&
			mem.MemoryType == store.MemoryTypePreference && mem.Key == key {
			mem.Content = content
			mem.UpdatedTs = time.Now().Unix()
			m.mu.Unlock()
			return nil
		}
	}
	m.mu.Unlock()
	m.add(userID, subscriberID, store.MemoryTypePreference, key, content)
	return nil
}

func (m *MockService) StorePattern(_ context.Context, userID int32, content string) error {
	m.add(userID, "", store.MemoryTypePattern, "", content)
	return nil
}

func (m *MockService) GetSubscriberMemories(_ context.Context, userID int32, subscriberID string, limit int) ([]*store.SubscriberMemory, error) {
	return m.filter(userID, subscriberID, nil, limit), nil
}

func (m *MockService) GetMemoriesByType(_ context.Context, userID int32, subscriberID string, memoryType store.MemoryType, limit int) ([]*store.SubscriberMemory, error) {
	return m.filter(userID, subscriberID, &memoryType, limit), nil
}

func (m *MockService) SummarizeMemories(ctx context.Context, userID int32, subscriberID string, maxLen int) (string, error) {
	if m.SummaryOverride != "" {
		return m.SummaryOverride, nil
	}
	memories, _ := m.GetSubscriberMemories(ctx, userID, subscriberID, 50)
	return summarize(memories, maxLen), nil
}

func (m *MockService) SetShortTerm(key string, value any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scratch[key] = value
}

func (m *MockService) GetShortTerm(key string) (any, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.scratch[key]
	return v, ok
}

func (m *MockService) filter(userID int32, subscriberID string, memoryType *store.MemoryType, limit int) []*store.SubscriberMemory {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]*store.SubscriberMemory, 0)
	// Newest first.
	for i := len(m.memories) - 1; i >= 0; i-- {
		mem := m.memories[i]
		if mem.UserID != userID || mem.SubscriberID != subscriberID {
			continue
		}
		if memoryType != nil && mem.MemoryType != *memoryType {
			continue
		}
		result = append(result, mem)
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result
}

// Ensure MockService implements MemoryService interface.
var _ MemoryService = (*MockService)(nil)
