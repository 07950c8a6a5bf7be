package timezone

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimezone(t *testing.T) {
	t.Run("empty defaults to UTC", func(t *testing.T) {
		loc, err := ParseTimezone("")
		require.NoError(t, err)
		assert.Equal(t, UTC, loc)
	})

	t.Run("valid IANA name", func(t *testing.T) {
		loc, err := ParseTimezone("America/New_York")
		require.NoError(t, err)
		assert.Equal(t, "America/New_York", loc.String())
	})

	t.Run("invalid falls back to UTC with error", func(t *testing.T) {
		loc, err := ParseTimezone("Not/AZone")
		assert.Error(t, err)
		assert.Equal(t, UTC, loc)
	})
}

func TestWindowStarts(t *testing.T) {
	// Wednesday 2026-03-04 15:30 UTC.
	now := time.Date(2026, 3, 4, 15, 30, 0, 0, time.UTC)

	t.Run("start of day", func(t *testing.T) {
		got := StartOfDay(now, time.UTC)
		assert.Equal(t, time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC), got)
	})

	t.Run("start of week is Monday", func(t *testing.T) {
		got := StartOfWeek(now, time.UTC)
		assert.Equal(t, time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), got)
		assert.Equal(t, time.Monday, got.Weekday())
	})

	t.Run("sunday belongs to the preceding week", func(t *testing.T) {
		sunday := time.Date(2026, 3, 8, 10, 0, 0, 0, time.UTC)
		got := StartOfWeek(sunday, time.UTC)
		assert.Equal(t, time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), got)
	})

	t.Run("start of year", func(t *testing.T) {
		got := StartOfYear(now, time.UTC)
		assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), got)
	})

	t.Run("day boundary follows the configured zone", func(t *testing.T) {
		tokyo, err := ParseTimezone("Asia/Tokyo")
		require.NoError(t, err)
		// 15:30 UTC is 00:30 next day in Tokyo.
		got := StartOfDay(now, tokyo)
		assert.Equal(t, time.Date(2026, 3, 5, 0, 0, 0, 0, tokyo), got)
	})
}

func TestInSendWindow(t *testing.T) {
	tz := time.UTC

	t.Run("inside window", func(t *testing.T) {
		wednesday := time.Date(2026, 3, 4, 10, 0, 0, 0, tz)
		assert.True(t, InSendWindow(wednesday, tz, 9, 18, true))
	})

	t.Run("end hour is exclusive", func(t *testing.T) {
		wednesday := time.Date(2026, 3, 4, 18, 0, 0, 0, tz)
		assert.False(t, InSendWindow(wednesday, tz, 9, 18, true))
	})

	t.Run("start hour is inclusive", func(t *testing.T) {
		wednesday := time.Date(2026, 3, 4, 9, 0, 0, 0, tz)
		assert.True(t, InSendWindow(wednesday, tz, 9, 18, true))
	})

	t.Run("weekend excluded", func(t *testing.T) {
		saturday := time.Date(2026, 3, 7, 10, 0, 0, 0, tz)
		assert.False(t, InSendWindow(saturday, tz, 9, 18, true))
		assert.True(t, InSendWindow(saturday, tz, 9, 18, false))
	})

	t.Run("window evaluated in configured zone", func(t *testing.T) {
		tokyo, err := ParseTimezone("Asia/Tokyo")
		require.NoError(t, err)
		// 01:00 UTC Wednesday is 10:00 Tokyo.
		wednesday := time.Date(2026, 3, 4, 1, 0, 0, 0, time.UTC)
		assert.True(t, InSendWindow(wednesday, tokyo, 9, 18, true))
		assert.False(t, InSendWindow(wednesday, time.UTC, 9, 18, true))
	})
}
