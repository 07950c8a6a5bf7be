package memory

import (
	"context"

	"github.com/pkg/errors"

	"github.com/subpilot/subpilot/store"
)

// LongTermMemory persists typed subscriber memory rows through the store.
type LongTermMemory struct {
	store *store.Store
}

// NewLongTermMemory creates durable memory backed by the store.
func NewLongTermMemory(s *store.Store) *LongTermMemory {
	return &LongTermMemory{store: s}
}

// StoreFact appends an immutable subscriber fact.
func (m *LongTermMemory) StoreFact(ctx context.Context, userID int32, subscriberID, content string) error {
	_, err := m.store.CreateSubscriberMemory(ctx, &store.SubscriberMemory{
		UserID:       userID,
		SubscriberID: subscriberID,
		MemoryType:   store.MemoryTypeFact,
		Content:      content,
	})
	return errors.Wrap(err, "failed to store fact")
}

// StoreInteraction appends an interaction record.
func (m *LongTermMemory) StoreInteraction(ctx context.Context, userID int32, subscriberID, content string) error {
	_, err := m.store.CreateSubscriberMemory(ctx, &store.SubscriberMemory{
		UserID:       userID,
		SubscriberID: subscriberID,
		MemoryType:   store.MemoryTypeInteraction,
		Content:      content,
	})
	return errors.Wrap(err, "failed to store interaction")
}

// StorePreference upserts a keyed preference, replacing any previous value.
func (m *LongTermMemory) StorePreference(ctx context.Context, userID int32, subscriberID, key, content string) error {
	if key == "" {
		return errors.New("preference key is required")
	}
	_, err := m.store.UpsertSubscriberPreference(ctx, &store.SubscriberMemory{
		UserID:       userID,
		SubscriberID: subscriberID,
		MemoryType:   store.MemoryTypePreference,
		Key:          key,
		Content:      content,
	})
	return errors.Wrap(err, "failed to store preference")
}

// StorePattern appends a global observation. Pattern memories carry an empty
// subscriber ID.
func (m *LongTermMemory) StorePattern(ctx context.Context, userID int32, content string) error {
	_, err := m.store.CreateSubscriberMemory(ctx, &store.SubscriberMemory{
		UserID:     userID,
		MemoryType: store.MemoryTypePattern,
		Content:    content,
	})
	return errors.Wrap(err, "failed to store pattern")
}

// GetSubscriberMemories returns the most recent memories for a subscriber.
func (m *LongTermMemory) GetSubscriberMemories(ctx context.Context, userID int32, subscriberID string, limit int) ([]*store.SubscriberMemory, error) {
	return m.store.ListSubscriberMemories(ctx, &store.FindSubscriberMemory{
		UserID:       &userID,
		SubscriberID: &subscriberID,
		Limit:        limit,
	})
}

// GetMemoriesByType returns the most recent memories of one type.
func (m *LongTermMemory) GetMemoriesByType(ctx context.Context, userID int32, subscriberID string, memoryType store.MemoryType, limit int) ([]*store.SubscriberMemory, error) {
	return m.store.ListSubscriberMemories(ctx, &store.FindSubscriberMemory{
		UserID:       &userID,
		SubscriberID: &subscriberID,
		MemoryType:   &memoryType,
		Limit:        limit,
	})
}
