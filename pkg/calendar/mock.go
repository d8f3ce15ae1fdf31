package calendar

import (
	"context"
	"crypto/sha256"
	"math/big"
	"time"
)

// extraBlockStarts are the candidate start times (minutes after midnight)
// for the mock's daily pseudo-random busy hour.
var extraBlockStarts = []int{8 * 60, 9*60 + 30, 10 * 60, 14 * 60, 15*60 + 30, 16 * 60}

// MockBusySource fabricates a deterministic schedule: every day has a
// 12:00-13:00 lunch block plus one extra busy hour whose start is picked by
// hashing the date. The same date always yields the same schedule.
type MockBusySource struct {
	loc *time.Location
}

// NewMock builds a mock calendar whose wall-clock lives in loc.
func NewMock(loc *time.Location) *MockBusySource {
	if loc == nil {
		loc = time.UTC
	}
	return &MockBusySource{loc: loc}
}

func (m *MockBusySource) BusyIntervals(_ context.Context, from, to time.Time) ([]Interval, error) {
	day := startOfDay(from.In(m.loc))
	last := to.In(m.loc)

	var out []Interval
	for !day.After(last) {
		y, mo, d := day.Date()
		lunch := time.Date(y, mo, d, 12, 0, 0, 0, m.loc)
		out = append(out, Interval{Start: lunch, End: lunch.Add(time.Hour)})

		idx := hashMod(day.Format("2006-01-02"), int64(len(extraBlockStarts)))
		startMin := extraBlockStarts[idx]
		extra := time.Date(y, mo, d, startMin/60, startMin%60, 0, 0, m.loc)
		out = append(out, Interval{Start: extra, End: extra.Add(time.Hour)})

		day = day.AddDate(0, 0, 1)
	}
	return out, nil
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// hashMod maps s to [0, mod) via the SHA-256 digest taken as an integer.
func hashMod(s string, mod int64) int64 {
	sum := sha256.Sum256([]byte(s))
	n := new(big.Int).SetBytes(sum[:])
	return new(big.Int).Mod(n, big.NewInt(mod)).Int64()
}
