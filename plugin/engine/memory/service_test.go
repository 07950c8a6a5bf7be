package memory

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/subpilot/subpilot/store"
)

func TestShortTermMemory(t *testing.T) {
	t.Run("set and get", func(t *testing.T) {
		stm := NewShortTermMemory(time.Minute)
		defer stm.Close()

		stm.Set("sub-1:last_offer", "discount_offer")
		v, ok := stm.Get("sub-1:last_offer")
		require.True(t, ok)
		assert.Equal(t, "discount_offer", v)
	})

	t.Run("missing key", func(t *testing.T) {
		stm := NewShortTermMemory(time.Minute)
		defer stm.Close()

		_, ok := stm.Get("absent")
		assert.False(t, ok)
	})

	t.Run("expired entry is gone", func(t *testing.T) {
		stm := NewShortTermMemory(10 * time.Millisecond)
		defer stm.Close()

		stm.Set("k", 1)
		time.Sleep(30 * time.Millisecond)
		_, ok := stm.Get("k")
		assert.False(t, ok)
	})

	t.Run("delete", func(t *testing.T) {
		stm := NewShortTermMemory(time.Minute)
		defer stm.Close()

		stm.Set("k", 1)
		stm.Delete("k")
		_, ok := stm.Get("k")
		assert.False(t, ok)
	})
}

func TestSummarize(t *testing.T) {
	memories := []*store.SubscriberMemory{
		{MemoryType: store.MemoryTypeFact, Content: "on Pro plan since March"},
		{MemoryType: store.MemoryTypePreference, Key: "contact_channel", Content: "email"},
		{MemoryType: store.MemoryTypeInteraction, Content: "opened renewal reminder"},
	}

	t.Run("groups by type with preferences first", func(t *testing.T) {
		digest := summarize(memories, 2000)
		assert.Contains(t, digest, "Preferences:")
		assert.Contains(t, digest, "contact_channel: email")
		assert.Contains(t, digest, "on Pro plan since March")
		assert.Less(t, strings.Index(digest, "Preferences:"), strings.Index(digest, "Facts:"))
	})

	t.Run("respects the length budget", func(t *testing.T) {
		digest := summarize(memories, 40)
		assert.LessOrEqual(t, len(digest), 40)
	})

	t.Run("truncates on line boundaries", func(t *testing.T) {
		digest := summarize(memories, 60)
		for _, line := range strings.Split(digest, "\n") {
			assert.NotEmpty(t, line)
		}
	})

	t.Run("empty input", func(t *testing.T) {
		assert.Empty(t, summarize(nil, 100))
	})
}

func TestMockService(t *testing.T) {
	ctx := context.Background()
	svc := NewMockService()

	t.Run("preference upsert replaces by key", func(t *testing.T) {
		require.NoError(t, svc.StorePreference(ctx, 1, "sub-1", "tone", "formal"))
		require.NoError(t, svc.StorePreference(ctx, 1, "sub-1", "tone", "casual"))

		prefs, err := svc.GetMemoriesByType(ctx, 1, "sub-1", store.MemoryTypePreference, 10)
		require.NoError(t, err)
		require.Len(t, prefs, 1)
		assert.Equal(t, "casual", prefs[0].Content)
	})

	t.Run("facts append", func(t *testing.T) {
		require.NoError(t, svc.StoreFact(ctx, 1, "sub-1", "fact one"))
		require.NoError(t, svc.StoreFact(ctx, 1, "sub-1", "fact two"))

		facts, err := svc.GetMemoriesByType(ctx, 1, "sub-1", store.MemoryTypeFact, 10)
		require.NoError(t, err)
		assert.Len(t, facts, 2)
		// Newest first.
		assert.Equal(t, "fact two", facts[0].Content)
	})

	t.Run("memories scoped per subscriber", func(t *testing.T) {
		require.NoError(t, svc.StoreFact(ctx, 1, "sub-2", "other subscriber"))

		all, err := svc.GetSubscriberMemories(ctx, 1, "sub-1", 10)
		require.NoError(t, err)
		for _, m := range all {
			assert.Equal(t, "sub-1", m.SubscriberID)
		}
	})
}
