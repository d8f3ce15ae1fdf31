// Package calendar answers one question two ways: is this time range free,
// and which ranges of a day are. All engines are fail-closed: when busy data
// cannot be fetched the caller gets ErrCalendarUnavailable, never a guess.
package calendar

import (
	"context"
	"errors"
	"sort"
	"time"
)

// ErrCalendarUnavailable means busy data could not be determined. Callers
// must treat the range as unknown, not free.
var ErrCalendarUnavailable = errors.New("calendar unavailable")

// fetchBuffer widens busy fetches so events adjacent to the probed range
// are visible to callers that want context. The overlap test itself is
// unbuffered.
const fetchBuffer = 15 * time.Minute

// Interval is a half-open time range [Start, End).
type Interval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Overlaps reports whether the two half-open ranges intersect.
// Touching endpoints do not overlap.
func (i Interval) Overlaps(other Interval) bool {
	return i.Start.Before(other.End) && other.Start.Before(i.End)
}

// BusySource fetches busy intervals within [from, to). Implementations
// return ErrCalendarUnavailable (possibly wrapped) when they cannot answer.
type BusySource interface {
	BusyIntervals(ctx context.Context, from, to time.Time) ([]Interval, error)
}

// IsFree reports whether [start, end) collides with no busy interval.
func IsFree(ctx context.Context, src BusySource, start, end time.Time) (bool, error) {
	busy, err := src.BusyIntervals(ctx, start.Add(-fetchBuffer), end.Add(fetchBuffer))
	if err != nil {
		return false, err
	}
	want := Interval{Start: start, End: end}
	for _, b := range busy {
		if want.Overlaps(b) {
			return false, nil
		}
	}
	return true, nil
}

// AvailableSlots returns the maximal free sub-intervals of one business day,
// in loc wall-clock, that are at least minSlotMinutes long. Busy intervals
// are clamped to the day window before the gap walk, so out-of-hours events
// never shrink the result.
func AvailableSlots(ctx context.Context, src BusySource, day time.Time, startHour, endHour, minSlotMinutes int, loc *time.Location) ([]Interval, error) {
	y, m, d := day.In(loc).Date()
	windowStart := time.Date(y, m, d, startHour, 0, 0, 0, loc)
	windowEnd := time.Date(y, m, d, endHour, 0, 0, 0, loc)
	if !windowEnd.After(windowStart) {
		return nil, nil
	}

	busy, err := src.BusyIntervals(ctx, windowStart, windowEnd)
	if err != nil {
		return nil, err
	}

	clamped := make([]Interval, 0, len(busy))
	for _, b := range busy {
		s, e := b.Start, b.End
		if s.Before(windowStart) {
			s = windowStart
		}
		if e.After(windowEnd) {
			e = windowEnd
		}
		if e.After(s) {
			clamped = append(clamped, Interval{Start: s.In(loc), End: e.In(loc)})
		}
	}
	sort.Slice(clamped, func(i, j int) bool {
		return clamped[i].Start.Before(clamped[j].Start)
	})

	minLen := time.Duration(minSlotMinutes) * time.Minute
	var out []Interval
	cursor := windowStart
	for _, b := range clamped {
		if b.Start.Sub(cursor) >= minLen {
			out = append(out, Interval{Start: cursor, End: b.Start})
		}
		if b.End.After(cursor) {
			cursor = b.End
		}
	}
	if windowEnd.Sub(cursor) >= minLen {
		out = append(out, Interval{Start: cursor, End: windowEnd})
	}
	return out, nil
}
