package observability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestContext(t *testing.T) {
	t.Run("minted ids are unique", func(t *testing.T) {
		first := NewRequestContext(1, "payment_failed")
		second := NewRequestContext(1, "payment_failed")
		require.NotEmpty(t, first.RequestID)
		assert.NotEqual(t, first.RequestID, second.RequestID)
	})

	t.Run("round trip through context", func(t *testing.T) {
		reqCtx := NewRequestContext(7, "cancel_pending")
		ctx := WithRequestContext(context.Background(), reqCtx)

		got, ok := FromContext(ctx)
		require.True(t, ok)
		assert.Equal(t, reqCtx.RequestID, got.RequestID)
		assert.Equal(t, int32(7), got.UserID)
		assert.Equal(t, reqCtx.RequestID, RequestID(ctx))
	})

	t.Run("absent context yields empty id", func(t *testing.T) {
		_, ok := FromContext(context.Background())
		assert.False(t, ok)
		assert.Empty(t, RequestID(context.Background()))
	})
}
