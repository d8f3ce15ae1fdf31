package calendar

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/callpilot/callpilot/pkg/config"
)

// fakeBusySource records the requested window and returns canned data.
type fakeBusySource struct {
	busy     []Interval
	err      error
	lastFrom time.Time
	lastTo   time.Time
}

func (f *fakeBusySource) BusyIntervals(_ context.Context, from, to time.Time) ([]Interval, error) {
	f.lastFrom, f.lastTo = from, to
	if f.err != nil {
		return nil, f.err
	}
	return f.busy, nil
}

func at(h, m int) time.Time {
	return time.Date(2025, 3, 17, h, m, 0, 0, time.UTC)
}

func TestIntervalOverlaps(t *testing.T) {
	a := Interval{Start: at(10, 0), End: at(11, 0)}

	assert.True(t, a.Overlaps(Interval{Start: at(10, 30), End: at(11, 30)}))
	assert.True(t, a.Overlaps(Interval{Start: at(9, 0), End: at(12, 0)}))
	// Touching endpoints are free: ranges are half-open.
	assert.False(t, a.Overlaps(Interval{Start: at(11, 0), End: at(12, 0)}))
	assert.False(t, a.Overlaps(Interval{Start: at(9, 0), End: at(10, 0)}))
}

func TestIsFree(t *testing.T) {
	t.Run("fetch window is buffered", func(t *testing.T) {
		src := &fakeBusySource{}
		free, err := IsFree(context.Background(), src, at(10, 0), at(10, 30))
		require.NoError(t, err)
		assert.True(t, free)
		assert.Equal(t, at(9, 45), src.lastFrom)
		assert.Equal(t, at(10, 45), src.lastTo)
	})

	t.Run("conflict detected", func(t *testing.T) {
		src := &fakeBusySource{busy: []Interval{{Start: at(10, 15), End: at(11, 0)}}}
		free, err := IsFree(context.Background(), src, at(10, 0), at(10, 30))
		require.NoError(t, err)
		assert.False(t, free)
	})

	t.Run("adjacent busy block does not conflict", func(t *testing.T) {
		src := &fakeBusySource{busy: []Interval{{Start: at(10, 30), End: at(11, 0)}}}
		free, err := IsFree(context.Background(), src, at(10, 0), at(10, 30))
		require.NoError(t, err)
		assert.True(t, free)
	})

	t.Run("unavailable propagates", func(t *testing.T) {
		src := &fakeBusySource{err: ErrCalendarUnavailable}
		_, err := IsFree(context.Background(), src, at(10, 0), at(10, 30))
		assert.ErrorIs(t, err, ErrCalendarUnavailable)
	})
}

func TestAvailableSlots(t *testing.T) {
	day := time.Date(2025, 3, 17, 0, 0, 0, 0, time.UTC)

	t.Run("gaps between busy blocks", func(t *testing.T) {
		src := &fakeBusySource{busy: []Interval{
			{Start: at(12, 0), End: at(13, 0)},
			{Start: at(9, 30), End: at(10, 30)},
		}}
		slots, err := AvailableSlots(context.Background(), src, day, 9, 17, 30, time.UTC)
		require.NoError(t, err)
		require.Len(t, slots, 3)
		assert.Equal(t, Interval{Start: at(9, 0), End: at(9, 30)}, slots[0])
		assert.Equal(t, Interval{Start: at(10, 30), End: at(12, 0)}, slots[1])
		assert.Equal(t, Interval{Start: at(13, 0), End: at(17, 0)}, slots[2])
	})

	t.Run("min length filters short gaps", func(t *testing.T) {
		src := &fakeBusySource{busy: []Interval{
			{Start: at(12, 0), End: at(13, 0)},
			{Start: at(9, 30), End: at(10, 30)},
		}}
		slots, err := AvailableSlots(context.Background(), src, day, 9, 17, 60, time.UTC)
		require.NoError(t, err)
		require.Len(t, slots, 2)
		assert.Equal(t, at(10, 30), slots[0].Start)
		assert.Equal(t, at(13, 0), slots[1].Start)
	})

	t.Run("busy outside hours is clamped away", func(t *testing.T) {
		src := &fakeBusySource{busy: []Interval{
			{Start: at(6, 0), End: at(8, 0)},
			{Start: at(18, 0), End: at(20, 0)},
		}}
		slots, err := AvailableSlots(context.Background(), src, day, 9, 17, 30, time.UTC)
		require.NoError(t, err)
		require.Len(t, slots, 1)
		assert.Equal(t, Interval{Start: at(9, 0), End: at(17, 0)}, slots[0])
	})

	t.Run("overlapping busy blocks collapse", func(t *testing.T) {
		src := &fakeBusySource{busy: []Interval{
			{Start: at(10, 0), End: at(12, 0)},
			{Start: at(11, 0), End: at(13, 0)},
		}}
		slots, err := AvailableSlots(context.Background(), src, day, 9, 17, 30, time.UTC)
		require.NoError(t, err)
		require.Len(t, slots, 2)
		assert.Equal(t, Interval{Start: at(9, 0), End: at(10, 0)}, slots[0])
		assert.Equal(t, Interval{Start: at(13, 0), End: at(17, 0)}, slots[1])
	})

	t.Run("fully booked day", func(t *testing.T) {
		src := &fakeBusySource{busy: []Interval{{Start: at(8, 0), End: at(18, 0)}}}
		slots, err := AvailableSlots(context.Background(), src, day, 9, 17, 30, time.UTC)
		require.NoError(t, err)
		assert.Empty(t, slots)
	})

	t.Run("unavailable propagates", func(t *testing.T) {
		src := &fakeBusySource{err: ErrCalendarUnavailable}
		_, err := AvailableSlots(context.Background(), src, day, 9, 17, 30, time.UTC)
		assert.ErrorIs(t, err, ErrCalendarUnavailable)
	})

	t.Run("slots never overlap busy", func(t *testing.T) {
		src := &fakeBusySource{busy: []Interval{
			{Start: at(9, 15), End: at(9, 45)},
			{Start: at(11, 0), End: at(11, 30)},
			{Start: at(14, 0), End: at(16, 0)},
		}}
		slots, err := AvailableSlots(context.Background(), src, day, 9, 17, 15, time.UTC)
		require.NoError(t, err)
		require.NotEmpty(t, slots)
		for _, s := range slots {
			for _, b := range src.busy {
				assert.False(t, s.Overlaps(b), "slot %v overlaps busy %v", s, b)
			}
		}
	})
}

func TestMockBusySource(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	mock := NewMock(loc)

	from := time.Date(2025, 3, 17, 0, 0, 0, 0, loc)
	to := from.AddDate(0, 0, 1).Add(18 * time.Hour)

	busy, err := mock.BusyIntervals(context.Background(), from, to)
	require.NoError(t, err)
	// Two days in range, two blocks each.
	require.Len(t, busy, 4)

	lunches := 0
	for _, b := range busy {
		local := b.Start.In(loc)
		assert.Equal(t, time.Hour, b.End.Sub(b.Start))
		if local.Hour() == 12 && local.Minute() == 0 {
			lunches++
			continue
		}
		minutes := local.Hour()*60 + local.Minute()
		assert.Contains(t, extraBlockStarts, minutes)
	}
	assert.Equal(t, 2, lunches)

	again, err := mock.BusyIntervals(context.Background(), from, to)
	require.NoError(t, err)
	assert.Equal(t, busy, again)
}

func TestFactorySourceSelection(t *testing.T) {
	settings := config.Default()

	t.Run("mock when nothing configured", func(t *testing.T) {
		f := NewFactory(settings, nil, nil)
		src := f.SourceFor("", time.UTC)
		_, ok := src.(*MockBusySource)
		assert.True(t, ok)
	})

	t.Run("linked user wins", func(t *testing.T) {
		f := NewFactory(settings, stubUserTokens{linked: "alice"}, nil)
		src := f.SourceFor("alice", time.UTC)
		_, ok := src.(*UserBusySource)
		assert.True(t, ok)
	})

	t.Run("unknown user falls back to mock", func(t *testing.T) {
		f := NewFactory(settings, stubUserTokens{linked: "alice"}, nil)
		src := f.SourceFor("mallory", time.UTC)
		_, ok := src.(*MockBusySource)
		assert.True(t, ok)
	})

	t.Run("empty user borrows first linked calendar", func(t *testing.T) {
		f := NewFactory(settings, stubUserTokens{linked: "alice"}, nil)
		src := f.SourceFor("", time.UTC)
		_, ok := src.(*UserBusySource)
		assert.True(t, ok)
	})

	t.Run("require identity disables borrowing", func(t *testing.T) {
		strict := config.Default()
		strict.RequireUserIdentity = true
		f := NewFactory(strict, stubUserTokens{linked: "alice"}, nil)
		src := f.SourceFor("", time.UTC)
		_, ok := src.(*MockBusySource)
		assert.True(t, ok)
	})
}

type stubUserTokens struct {
	linked string
}

func (s stubUserTokens) TokenSourceFor(userID string) (TokenSource, bool) {
	if userID == s.linked && s.linked != "" {
		return stubTokenSource{}, true
	}
	return nil, false
}

func (s stubUserTokens) AnyLinkedUser() (string, bool) {
	return s.linked, s.linked != ""
}

type stubTokenSource struct{}

func (stubTokenSource) AccessToken(context.Context) (string, error) {
	return "token", nil
}

func (stubTokenSource) RefreshAccessToken(context.Context) (string, error) {
	return "token", nil
}
