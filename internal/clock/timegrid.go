package clock

import (
	"fmt"
	"strings"
	"time"

	"github.com/Freeeeeet/tutor_scheduler/internal/model"
)

// PastGrace is how far in the past a booking start may lie and still be accepted.
const PastGrace = 5 * time.Minute

// LoadLocation resolves an IANA zone name.
func LoadLocation(tz string) (*time.Location, error) {
	if strings.TrimSpace(tz) == "" {
		return nil, fmt.Errorf("empty zone: %w", model.ErrInvalidTimezone)
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("load zone %q: %w", tz, model.ErrInvalidTimezone)
	}
	return loc, nil
}

// ParseDate parses YYYY-MM-DD as a calendar date in loc.
func ParseDate(date string, loc *time.Location) (time.Time, error) {
	d, err := time.ParseInLocation(model.DateLayout, date, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", date, model.ErrInvalidDate)
	}
	return d, nil
}

// SlotToUTC interprets slot slotIndex of date as wall-clock time in tz.
func SlotToUTC(date string, slotIndex int, tz string) (time.Time, error) {
	if !model.ValidSlotIndex(slotIndex) {
		return time.Time{}, model.ErrInvalidSlot
	}
	return GridInstant(date, slotIndex, tz)
}

// GridInstant is SlotToUTC that also accepts index 48, the end of the day.
func GridInstant(date string, index int, tz string) (time.Time, error) {
	if index < 0 || index > model.SlotsPerDay {
		return time.Time{}, model.ErrInvalidSlot
	}
	loc, err := LoadLocation(tz)
	if err != nil {
		return time.Time{}, err
	}
	d, err := ParseDate(date, loc)
	if err != nil {
		return time.Time{}, err
	}
	hour, minute := SlotClock(index)
	local := time.Date(d.Year(), d.Month(), d.Day(), hour, minute, 0, 0, loc)
	return local.UTC(), nil
}

// SlotExists reports whether the slot's wall-clock start really occurs in tz,
// i.e. it is not skipped by a daylight-saving jump.
func SlotExists(date string, slotIndex int, tz string) (bool, error) {
	instant, err := SlotToUTC(date, slotIndex, tz)
	if err != nil {
		return false, err
	}
	gotDate, gotSlot, err := UTCToSlot(instant, tz)
	if err != nil {
		return false, err
	}
	return gotDate == date && gotSlot == slotIndex, nil
}

// UTCToSlot returns the local date and slot index containing instant in tz.
func UTCToSlot(instant time.Time, tz string) (string, int, error) {
	loc, err := LoadLocation(tz)
	if err != nil {
		return "", 0, err
	}
	local := instant.In(loc)
	slot := local.Hour()*2 + local.Minute()/30
	return local.Format(model.DateLayout), slot, nil
}

// SlotClock maps a slot index to its local hour and minute.
func SlotClock(slotIndex int) (int, int) {
	return slotIndex / 2, (slotIndex % 2) * 30
}

// ParseClock parses "HH:MM" on the half-hour grid into a slot index.
// "24:00" is accepted as the end of day and yields 48.
func ParseClock(s string) (int, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("parse clock %q: %w", s, model.ErrInvalidSlot)
	}
	if m != 0 && m != 30 {
		return 0, fmt.Errorf("clock %q is off the half-hour grid: %w", s, model.ErrInvalidSlot)
	}
	idx := h*2 + m/30
	if idx < 0 || idx > model.SlotsPerDay {
		return 0, fmt.Errorf("clock %q: %w", s, model.ErrInvalidSlot)
	}
	return idx, nil
}

// naiveLayouts are accepted when the start carries no offset; they are read in the caller's zone.
var naiveLayouts = []string{"2006-01-02T15:04:05", "2006-01-02T15:04", "2006-01-02 15:04"}

// ParseStartTime parses an ISO-8601 instant. Without an offset the value is
// interpreted as wall-clock time in tz; an empty tz then means UTC. A non-empty
// tz must be a known zone either way.
func ParseStartTime(startsAt, tz string) (time.Time, error) {
	loc := time.UTC
	if tz != "" {
		l, err := LoadLocation(tz)
		if err != nil {
			return time.Time{}, err
		}
		loc = l
	}

	if t, err := time.Parse(time.RFC3339, startsAt); err == nil {
		return t.UTC(), nil
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, startsAt, loc); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("parse %q: %w", startsAt, model.ErrInvalidStartTime)
}

// ValidateBookingTime parses the start and checks it against now and the
// duration rules.
func ValidateBookingTime(now time.Time, startsAt string, durationMinutes int, tz string) (time.Time, error) {
	start, err := ParseStartTime(startsAt, tz)
	if err != nil {
		return time.Time{}, err
	}
	if start.Before(now.Add(-PastGrace)) {
		return time.Time{}, model.ErrPastStartTime
	}
	if err := ValidateDuration(durationMinutes); err != nil {
		return time.Time{}, err
	}
	return start, nil
}

// ValidateDuration enforces multiples of 30 within [30, 240].
func ValidateDuration(durationMinutes int) error {
	if durationMinutes%30 != 0 ||
		durationMinutes < model.MinDurationMinutes ||
		durationMinutes > model.MaxDurationMinutes {
		return model.ErrInvalidDuration
	}
	return nil
}

// SlotStarts lists the 30-minute sub-interval starts covering [start, end).
func SlotStarts(start, end time.Time) []time.Time {
	var out []time.Time
	for t := start; t.Before(end); t = t.Add(model.SlotDuration) {
		out = append(out, t)
	}
	return out
}

// HoursUntil is the fractional number of hours from now to t.
func HoursUntil(now, t time.Time) float64 {
	return t.Sub(now).Hours()
}
