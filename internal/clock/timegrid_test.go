package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Freeeeeet/tutor_scheduler/internal/model"
)

func TestSlotToUTC(t *testing.T) {
	tests := []struct {
		name string
		date string
		slot int
		tz   string
		want time.Time
	}{
		{"utc midnight", "2026-03-02", 0, "UTC", time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)},
		{"utc last slot", "2026-03-02", 47, "UTC", time.Date(2026, 3, 2, 23, 30, 0, 0, time.UTC)},
		{"tokyo morning", "2026-03-02", 18, "Asia/Tokyo", time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)},
		{"new york winter", "2026-01-15", 19, "America/New_York", time.Date(2026, 1, 15, 14, 30, 0, 0, time.UTC)},
		{"new york summer", "2026-07-15", 19, "America/New_York", time.Date(2026, 7, 15, 13, 30, 0, 0, time.UTC)},
		{"kathmandu offset", "2026-03-02", 20, "Asia/Kathmandu", time.Date(2026, 3, 2, 4, 15, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SlotToUTC(tt.date, tt.slot, tt.tz)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "want %s got %s", tt.want, got)
		})
	}
}

func TestSlotToUTCErrors(t *testing.T) {
	_, err := SlotToUTC("2026-03-02", 10, "Mars/Olympus")
	assert.ErrorIs(t, err, model.ErrInvalidTimezone)

	_, err = SlotToUTC("2026-03-02", 48, "UTC")
	assert.ErrorIs(t, err, model.ErrInvalidSlot)

	_, err = SlotToUTC("2026-03-02", -1, "UTC")
	assert.ErrorIs(t, err, model.ErrInvalidSlot)

	_, err = SlotToUTC("02.03.2026", 1, "UTC")
	assert.ErrorIs(t, err, model.ErrInvalidDate)
}

func TestUTCToSlotRoundTrip(t *testing.T) {
	for _, tz := range []string{"UTC", "Europe/Moscow", "America/Los_Angeles", "Asia/Kolkata"} {
		for slot := 0; slot < model.SlotsPerDay; slot++ {
			instant, err := SlotToUTC("2026-05-20", slot, tz)
			require.NoError(t, err)

			date, got, err := UTCToSlot(instant, tz)
			require.NoError(t, err)
			assert.Equal(t, "2026-05-20", date, tz)
			assert.Equal(t, slot, got, tz)
		}
	}
}

func TestUTCToSlotInsideSlot(t *testing.T) {
	date, slot, err := UTCToSlot(time.Date(2026, 5, 20, 9, 17, 0, 0, time.UTC), "UTC")
	require.NoError(t, err)
	assert.Equal(t, "2026-05-20", date)
	assert.Equal(t, 18, slot)
}

func TestValidateBookingTime(t *testing.T) {
	now := time.Date(2026, 5, 20, 12, 0, 0, 0, time.UTC)

	start, err := ValidateBookingTime(now, "2026-05-21T09:00:00+03:00", 60, "")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 5, 21, 6, 0, 0, 0, time.UTC), start)

	_, err = ValidateBookingTime(now, "tomorrow", 30, "")
	assert.ErrorIs(t, err, model.ErrInvalidStartTime)

	_, err = ValidateBookingTime(now, "2026-05-20T11:54:00Z", 30, "")
	assert.ErrorIs(t, err, model.ErrPastStartTime)

	_, err = ValidateBookingTime(now, "2026-05-20T11:56:00Z", 30, "")
	assert.NoError(t, err, "inside the grace buffer")

	for _, d := range []int{0, 15, 45, 270} {
		_, err = ValidateBookingTime(now, "2026-05-21T09:00:00Z", d, "")
		assert.ErrorIs(t, err, model.ErrInvalidDuration, "duration %d", d)
	}
	for _, d := range []int{30, 90, 240} {
		_, err = ValidateBookingTime(now, "2026-05-21T09:00:00Z", d, "")
		assert.NoError(t, err, "duration %d", d)
	}
}

func TestParseClock(t *testing.T) {
	idx, err := ParseClock("09:30")
	require.NoError(t, err)
	assert.Equal(t, 19, idx)

	idx, err = ParseClock("24:00")
	require.NoError(t, err)
	assert.Equal(t, 48, idx)

	_, err = ParseClock("09:15")
	assert.ErrorIs(t, err, model.ErrInvalidSlot)
}

func TestSlotStarts(t *testing.T) {
	start := time.Date(2026, 5, 20, 9, 0, 0, 0, time.UTC)
	starts := SlotStarts(start, start.Add(90*time.Minute))
	require.Len(t, starts, 3)
	assert.Equal(t, start.Add(time.Hour), starts[2])
}

func TestManualClock(t *testing.T) {
	c := NewManual(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	c.Advance(90 * time.Minute)
	assert.Equal(t, time.Date(2026, 1, 1, 1, 30, 0, 0, time.UTC), c.Now())
}

func TestParseStartTimeNaive(t *testing.T) {
	got, err := ParseStartTime("2026-05-21T09:00", "Europe/Moscow")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 5, 21, 6, 0, 0, 0, time.UTC), got)

	_, err = ParseStartTime("2026-05-21T09:00", "Nowhere/City")
	assert.ErrorIs(t, err, model.ErrInvalidTimezone)
}

func TestParseStartTimeChecksZoneWithOffset(t *testing.T) {
	_, err := ParseStartTime("2026-05-21T09:00:00Z", "Nowhere/City")
	assert.ErrorIs(t, err, model.ErrInvalidTimezone)

	got, err := ParseStartTime("2026-05-21T09:00:00+03:00", "Asia/Tokyo")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 5, 21, 6, 0, 0, 0, time.UTC), got, "an explicit offset wins over the zone")
}

func TestSlotExistsAcrossDST(t *testing.T) {
	// 2026-03-08 02:00-03:00 does not occur in New York.
	ok, err := SlotExists("2026-03-08", 4, "America/New_York")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = SlotExists("2026-03-08", 6, "America/New_York")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestGridInstantEndOfDay(t *testing.T) {
	got, err := GridInstant("2026-05-20", 48, "UTC")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 5, 21, 0, 0, 0, 0, time.UTC), got)
}
