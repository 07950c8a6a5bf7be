// Package memory provides the subscriber memory service for decision agents.
// It layers an ephemeral per-process scratchpad over durable typed memory rows.
package memory

import (
	"context"

	"github.com/subpilot/subpilot/store"
)

// MemoryService defines the memory surface consumed by reasoning and learning.
type MemoryService interface {
	// ========== Durable memory (cross-process) ==========

	// StoreFact appends an immutable subscriber fact ("on Pro plan since March").
	StoreFact(ctx context.Context, userID int32, subscriberID, content string) error

	// StoreInteraction appends an interaction record.
	StoreInteraction(ctx context.Context, userID int32, subscriberID, content string) error

	// StorePreference upserts a keyed subscriber preference.
	StorePreference(ctx context.Context, userID int32, subscriberID, key, content string) error

	// StorePattern appends a global observation not tied to one subscriber.
	StorePattern(ctx context.Context, userID int32, content string) error

	// GetSubscriberMemories returns the most recent memories for a subscriber,
	// all types mixed, newest first.
	GetSubscriberMemories(ctx context.Context, userID int32, subscriberID string, limit int) ([]*store.SubscriberMemory, error)

	// GetMemoriesByType returns the most recent memories of one type.
	GetMemoriesByType(ctx context.Context, userID int32, subscriberID string, memoryType store.MemoryType, limit int) ([]*store.SubscriberMemory, error)

	// SummarizeMemories renders a bounded text digest of a subscriber's
	// memories for prompt context. Never exceeds maxLen characters.
	SummarizeMemories(ctx context.Context, userID int32, subscriberID string, maxLen int) (string, error)

	// ========== Ephemeral scratchpad (per process) ==========

	// SetShortTerm stores a scratchpad value with the default TTL.
	SetShortTerm(key string, value any)

	// GetShortTerm retrieves a scratchpad value if present and unexpired.
	GetShortTerm(key string) (any, bool)
}
