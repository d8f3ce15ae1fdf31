package tools

import (
	"fmt"
	"time"
)

// naiveLayouts are accepted timestamp shapes without zone information.
// Receptionists dictate wall-clock times, so naive values are interpreted in
// the campaign's timezone.
var naiveLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// parseWhen parses an ISO-ish timestamp. Zoned values keep their offset;
// naive values are localized to loc.
func parseWhen(raw string, loc *time.Location) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", raw)
}

// rollForwardYear corrects the common speech-model slip of emitting a past
// year: anything before the current year moves to the current year.
func rollForwardYear(t, now time.Time) time.Time {
	if t.Year() < now.Year() {
		return t.AddDate(now.Year()-t.Year(), 0, 0)
	}
	return t
}

// parseDay parses the leading YYYY-MM-DD of raw in loc. Days already in the
// past roll forward one year.
func parseDay(raw string, loc *time.Location, now time.Time) (time.Time, error) {
	if len(raw) < 10 {
		return time.Time{}, fmt.Errorf("unparseable date %q", raw)
	}
	day, err := time.ParseInLocation("2006-01-02", raw[:10], loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("unparseable date %q", raw)
	}
	today := startOfDay(now.In(loc))
	if day.Before(today) {
		day = day.AddDate(1, 0, 0)
	}
	return day, nil
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
