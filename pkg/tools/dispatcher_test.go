package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/callpilot/callpilot/pkg/calendar"
	"github.com/callpilot/callpilot/pkg/directory"
	"github.com/callpilot/callpilot/pkg/distance"
	"github.com/callpilot/callpilot/pkg/models"
	"github.com/callpilot/callpilot/pkg/store"
)

// fakeBusySource returns canned busy data or an error.
type fakeBusySource struct {
	busy []calendar.Interval
	err  error
}

func (f *fakeBusySource) BusyIntervals(context.Context, time.Time, time.Time) ([]calendar.Interval, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.busy, nil
}

type fakeResolver struct {
	src calendar.BusySource
}

func (f fakeResolver) SourceFor(string, *time.Location) calendar.BusySource {
	return f.src
}

// panickingDirectory stands in for search paths that must never be hit, and
// for exercising panic recovery when they are.
type panickingDirectory struct{}

func (panickingDirectory) Search(context.Context, string, string, *float64, *float64) ([]models.Provider, error) {
	panic("unexpected search")
}

type fixture struct {
	dispatcher *Dispatcher
	store      *store.Store
	campaign   *models.Campaign
	busy       *fakeBusySource
	loc        *time.Location
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	st := store.NewMemory()
	start := time.Now().In(loc).AddDate(0, 0, 2)
	start = time.Date(start.Year(), start.Month(), start.Day(), 8, 0, 0, 0, loc)
	req := models.AppointmentRequest{
		Service:        "dentist",
		Location:       "San Francisco",
		DateRangeStart: start,
		DateRangeEnd:   start.AddDate(0, 0, 5).Add(10 * time.Hour),
		TZ:             "America/New_York",
	}
	req.Normalize()
	campaign := st.CreateCampaign(req)
	campaign, err = st.UpdateCampaign(campaign.CampaignID, func(c *models.Campaign) {
		c.Providers = []models.Provider{
			{ID: "prov-a", Name: "Dr. A", Rating: 4.5, Phone: "+15550001", Address: "1 A St"},
			{ID: "prov-b", Name: "Dr. B", Rating: 3.9, Phone: "+15550002", Address: "2 B St"},
		}
	})
	require.NoError(t, err)

	busy := &fakeBusySource{}
	registry := directory.NewRegistry()
	d := NewDispatcher(st, fakeResolver{src: busy}, distance.MockEstimator{}, directory.NewDemoDirectory(registry))
	return &fixture{dispatcher: d, store: st, campaign: campaign, busy: busy, loc: loc}
}

func (f *fixture) dispatch(t *testing.T, name string, params map[string]any) (map[string]any, bool) {
	t.Helper()
	raw, isErr := f.dispatcher.Dispatch(context.Background(), name, params, Context{
		CampaignID: f.campaign.CampaignID,
		ProviderID: "prov-a",
	})
	var out map[string]any
	require.NoError(t, json.Unmarshal(raw, &out))
	return out, isErr
}

func (f *fixture) slotInWindow(offsetHours int) time.Time {
	return f.campaign.Request.DateRangeStart.Add(time.Duration(offsetHours) * time.Hour)
}

const naiveLayout = "2006-01-02T15:04:05"

func TestDispatchUnknownTool(t *testing.T) {
	f := newFixture(t)
	out, isErr := f.dispatch(t, "time_travel", nil)
	assert.True(t, isErr)
	assert.Equal(t, "unknown tool: time_travel", out["error"])
}

func TestCalendarCheck(t *testing.T) {
	t.Run("free slot", func(t *testing.T) {
		f := newFixture(t)
		start := f.slotInWindow(26)
		out, isErr := f.dispatch(t, "calendar_check", map[string]any{
			"start": start.Format(time.RFC3339),
			"end":   start.Add(30 * time.Minute).Format(time.RFC3339),
		})
		require.False(t, isErr)
		assert.Equal(t, true, out["free"])
		assert.Equal(t, "America/New_York", out["timezone"])
	})

	t.Run("busy slot", func(t *testing.T) {
		f := newFixture(t)
		start := f.slotInWindow(26)
		f.busy.busy = []calendar.Interval{{Start: start, End: start.Add(time.Hour)}}
		out, isErr := f.dispatch(t, "calendar_check", map[string]any{
			"start": start.Format(time.RFC3339),
		})
		require.False(t, isErr)
		assert.Equal(t, false, out["free"])
	})

	t.Run("naive timestamp is localized", func(t *testing.T) {
		f := newFixture(t)
		start := f.slotInWindow(26).In(f.loc)
		out, isErr := f.dispatch(t, "calendar_check", map[string]any{
			"start": start.Format(naiveLayout),
		})
		require.False(t, isErr)
		checked, err := time.Parse(time.RFC3339, out["checked_start"].(string))
		require.NoError(t, err)
		assert.True(t, checked.Equal(start), "got %v want %v", checked, start)
	})

	t.Run("past year rolls forward", func(t *testing.T) {
		f := newFixture(t)
		out, isErr := f.dispatch(t, "calendar_check", map[string]any{
			"start": "2000-06-01T10:00:00",
		})
		require.False(t, isErr)
		checked, err := time.Parse(time.RFC3339, out["checked_start"].(string))
		require.NoError(t, err)
		assert.Equal(t, time.Now().Year(), checked.Year())
	})

	t.Run("unavailable calendar fails closed without protocol error", func(t *testing.T) {
		f := newFixture(t)
		f.busy.err = calendar.ErrCalendarUnavailable
		out, isErr := f.dispatch(t, "calendar_check", map[string]any{
			"start": f.slotInWindow(26).Format(time.RFC3339),
		})
		require.False(t, isErr)
		assert.Equal(t, false, out["free"])
		assert.NotEmpty(t, out["error"])
	})

	t.Run("missing start is a tool error", func(t *testing.T) {
		f := newFixture(t)
		out, isErr := f.dispatch(t, "calendar_check", map[string]any{})
		assert.True(t, isErr)
		assert.Contains(t, out["error"], "calendar_check")
	})
}

func TestAvailableSlots(t *testing.T) {
	t.Run("returns day gaps around busy blocks", func(t *testing.T) {
		f := newFixture(t)
		day := f.slotInWindow(25).In(f.loc)
		y, m, dd := day.Date()
		f.busy.busy = []calendar.Interval{{
			Start: time.Date(y, m, dd, 12, 0, 0, 0, f.loc),
			End:   time.Date(y, m, dd, 13, 0, 0, 0, f.loc),
		}}

		out, isErr := f.dispatch(t, "available_slots", map[string]any{
			"date": day.Format("2006-01-02"),
		})
		require.False(t, isErr)
		slots := out["slots"].([]any)
		require.Len(t, slots, 2)

		first := slots[0].(map[string]any)
		assert.Equal(t, "09:00", first["start_local"])
		assert.Equal(t, "12:00", first["end_local"])
		assert.Equal(t, day.Format("2006-01-02"), first["date"])
		second := slots[1].(map[string]any)
		assert.Equal(t, "13:00", second["start_local"])
		assert.Equal(t, "17:00", second["end_local"])
	})

	t.Run("custom business hours", func(t *testing.T) {
		f := newFixture(t)
		day := f.slotInWindow(25).In(f.loc)
		out, isErr := f.dispatch(t, "available_slots", map[string]any{
			"date":                day.Format("2006-01-02"),
			"business_start_hour": float64(10),
			"business_end_hour":   float64(12),
		})
		require.False(t, isErr)
		slots := out["slots"].([]any)
		require.Len(t, slots, 1)
		assert.Equal(t, "10:00", slots[0].(map[string]any)["start_local"])
	})

	t.Run("past date rolls forward a year", func(t *testing.T) {
		f := newFixture(t)
		past := time.Now().In(f.loc).AddDate(0, -2, 0)
		out, isErr := f.dispatch(t, "available_slots", map[string]any{
			"date": past.Format("2006-01-02"),
		})
		require.False(t, isErr)
		slots := out["slots"].([]any)
		require.NotEmpty(t, slots)
		wantDate := past.AddDate(1, 0, 0).Format("2006-01-02")
		assert.Equal(t, wantDate, slots[0].(map[string]any)["date"])
	})

	t.Run("unavailable yields empty slots", func(t *testing.T) {
		f := newFixture(t)
		f.busy.err = calendar.ErrCalendarUnavailable
		out, isErr := f.dispatch(t, "available_slots", map[string]any{
			"date": f.slotInWindow(25).Format("2006-01-02"),
		})
		require.False(t, isErr)
		assert.Empty(t, out["slots"])
		assert.NotEmpty(t, out["error"])
	})
}

func TestValidateSlot(t *testing.T) {
	t.Run("inside window and free", func(t *testing.T) {
		f := newFixture(t)
		start := f.slotInWindow(26)
		out, isErr := f.dispatch(t, "validate_slot", map[string]any{
			"start": start.Format(time.RFC3339),
			"end":   start.Add(30 * time.Minute).Format(time.RFC3339),
		})
		require.False(t, isErr)
		assert.Equal(t, true, out["ok"])
	})

	t.Run("outside requested range", func(t *testing.T) {
		f := newFixture(t)
		start := f.campaign.Request.DateRangeEnd.Add(24 * time.Hour)
		out, isErr := f.dispatch(t, "validate_slot", map[string]any{
			"start": start.Format(time.RFC3339),
		})
		require.False(t, isErr)
		assert.Equal(t, false, out["ok"])
		assert.Equal(t, "Slot is outside the requested date range", out["reason"])
	})

	t.Run("conflicts with client calendar", func(t *testing.T) {
		f := newFixture(t)
		start := f.slotInWindow(26)
		f.busy.busy = []calendar.Interval{{Start: start, End: start.Add(time.Hour)}}
		out, isErr := f.dispatch(t, "validate_slot", map[string]any{
			"start": start.Format(time.RFC3339),
		})
		require.False(t, isErr)
		assert.Equal(t, false, out["ok"])
		assert.Equal(t, "Conflicts with client calendar", out["reason"])
	})

	t.Run("calendar unavailable fails closed", func(t *testing.T) {
		f := newFixture(t)
		f.busy.err = calendar.ErrCalendarUnavailable
		out, isErr := f.dispatch(t, "validate_slot", map[string]any{
			"start": f.slotInWindow(26).Format(time.RFC3339),
		})
		require.False(t, isErr)
		assert.Equal(t, false, out["ok"])
		assert.Equal(t, "Calendar unavailable", out["reason"])
	})
}

func TestDistanceCheck(t *testing.T) {
	f := newFixture(t)

	t.Run("known provider", func(t *testing.T) {
		out, isErr := f.dispatch(t, "distance_check", map[string]any{"provider_id": "prov-b"})
		require.False(t, isErr)
		want, _ := distance.MockEstimator{}.EstimateTravelMinutes(context.Background(), "", models.Provider{ID: "prov-b"})
		assert.Equal(t, float64(want), out["minutes"])
	})

	t.Run("defaults to the current call's provider", func(t *testing.T) {
		out, isErr := f.dispatch(t, "distance_check", map[string]any{})
		require.False(t, isErr)
		assert.NotEqual(t, float64(-1), out["minutes"])
	})

	t.Run("unknown provider", func(t *testing.T) {
		out, isErr := f.dispatch(t, "distance_check", map[string]any{"provider_id": "ghost"})
		require.False(t, isErr)
		assert.Equal(t, float64(-1), out["minutes"])
		assert.NotEmpty(t, out["error"])
	})
}

func TestProviderLookup(t *testing.T) {
	f := newFixture(t)

	out, isErr := f.dispatch(t, "provider_lookup", map[string]any{
		"exclude_ids": []any{"demo-dent-001"},
	})
	require.False(t, isErr)
	providers := out["providers"].([]any)
	require.NotEmpty(t, providers)
	assert.LessOrEqual(t, len(providers), 5)
	for _, entry := range providers {
		p := entry.(map[string]any)
		assert.NotEqual(t, "demo-dent-001", p["id"])
		assert.NotEmpty(t, p["name"])
	}
}

func TestProposeAlternatives(t *testing.T) {
	f := newFixture(t)

	out, isErr := f.dispatch(t, "propose_alternatives", map[string]any{
		"constraints": map[string]any{
			"exclude_providers": []any{"demo-dent-002"},
		},
	})
	require.False(t, isErr)
	suggestions := out["suggestions"].([]any)
	require.NotEmpty(t, suggestions)
	assert.LessOrEqual(t, len(suggestions), 3)
	for _, entry := range suggestions {
		s := entry.(map[string]any)
		assert.NotEqual(t, "demo-dent-002", s["provider_id"])
		assert.Equal(t, "Call to check", s["estimated_availability"])
	}
}

func TestLogEvent(t *testing.T) {
	f := newFixture(t)

	t.Run("object data", func(t *testing.T) {
		out, isErr := f.dispatch(t, "log_event", map[string]any{
			"message": "collected two offers",
			"data":    map[string]any{"offers": []any{}},
		})
		require.False(t, isErr)
		assert.Equal(t, true, out["ok"])
	})

	t.Run("json string data", func(t *testing.T) {
		out, isErr := f.dispatch(t, "log_event", map[string]any{
			"message": "outcome",
			"data":    `{"outcome": "NO_SLOTS"}`,
		})
		require.False(t, isErr)
		assert.Equal(t, true, out["ok"])
	})
}

func TestDispatchRecoversFromPanic(t *testing.T) {
	f := newFixture(t)
	f.dispatcher.directory = panickingDirectory{}

	out, isErr := f.dispatch(t, "provider_lookup", map[string]any{})
	assert.True(t, isErr)
	assert.Equal(t, "tool provider_lookup encountered an error", out["error"])
}

func TestDispatchUnknownCampaign(t *testing.T) {
	f := newFixture(t)
	raw, isErr := f.dispatcher.Dispatch(context.Background(), "calendar_check",
		map[string]any{"start": "2031-01-01T10:00:00"}, Context{CampaignID: "missing"})
	assert.True(t, isErr)
	var out map[string]any
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.Equal(t, fmt.Sprintf("tool %s encountered an error", "calendar_check"), out["error"])
}
