package memory

import (
	"context"
	"time"

	"github.com/subpilot/subpilot/plugin/engine/timeout"
	"github.com/subpilot/subpilot/store"
)

// Service implements MemoryService with two layers:
// - Short-term: in-process TTL scratchpad for mid-decision state
// - Long-term: typed memory rows in the store
type Service struct {
	shortTerm *ShortTermMemory
	longTerm  *LongTermMemory
}

// NewService creates a memory service. scratchpadTTL <= 0 uses the default.
func NewService(s *store.Store, scratchpadTTL time.Duration) *Service {
	return &Service{
		shortTerm: NewShortTermMemory(scratchpadTTL),
		longTerm:  NewLongTermMemory(s),
	}
}

// Close releases resources held by the service.
func (s *Service) Close() {
	s.shortTerm.Close()
}

// ========== Durable memory ==========

func (s *Service) StoreFact(ctx context.Context, userID int32, subscriberID, content string) error {
	return s.longTerm.StoreFact(ctx, userID, subscriberID, content)
}

func (s *Service) StoreInteraction(ctx context.Context, userID int32, subscriberID, content string) error {
	return s.longTerm.StoreInteraction(ctx, userID, subscriberID, content)
}

func (s *Service) StorePreference(ctx context.Context, userID int32, subscriberID, key, content string) error {
	return s.longTerm.StorePreference(ctx, userID, subscriberID, key, content)
}

func (s *Service) StorePattern(ctx context.Context, userID int32, content string) error {
	return s.longTerm.StorePattern(ctx, userID, content)
}

func (s *Service) GetSubscriberMemories(ctx context.Context, userID int32, subscriberID string, limit int) ([]*store.SubscriberMemory, error) {
	return s.longTerm.GetSubscriberMemories(ctx, userID, subscriberID, limit)
}

func (s *Service) GetMemoriesByType(ctx context.Context, userID int32, subscriberID string, memoryType store.MemoryType, limit int) ([]*store.SubscriberMemory, error) {
	return s.longTerm.GetMemoriesByType(ctx, userID, subscriberID, memoryType, limit)
}

// SummarizeMemories renders a bounded digest of a subscriber's memories.
func (s *Service) SummarizeMemories(ctx context.Context, userID int32, subscriberID string, maxLen int) (string, error) {
	if maxLen <= 0 {
		maxLen = timeout.MaxSummaryLength
	}
	memories, err := s.longTerm.GetSubscriberMemories(ctx, userID, subscriberID, 50)
	if err != nil {
		return "", err
	}
	return summarize(memories, maxLen), nil
}

// ========== Ephemeral scratchpad ==========

func (s *Service) SetShortTerm(key string, value any) {
	s.shortTerm.Set(key, value)
}

func (s *Service) GetShortTerm(key string) (any, bool) {
	return s.shortTerm.Get(key)
}

// Ensure Service implements MemoryService interface.
var _ MemoryService = (*Service)(nil)
