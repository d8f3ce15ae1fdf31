package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/callpilot/callpilot/pkg/calendar"
	"github.com/callpilot/callpilot/pkg/models"
)

const (
	defaultBusinessStartHour = 9
	defaultBusinessEndHour   = 17

	maxLookupResults     = 5
	maxAlternatives      = 3
	maxLoggedEventLength = 500
)

func (d *Dispatcher) calendarCheck(ctx context.Context, params map[string]any, tcx Context) (map[string]any, error) {
	campaign, err := d.store.Campaign(tcx.CampaignID)
	if err != nil {
		return nil, fmt.Errorf("campaign lookup: %w", err)
	}
	loc := campaign.Request.TimeLocation()
	now := time.Now().In(loc)

	start, end, err := parseRange(params, loc, now, campaign.Request.DurationMin)
	if err != nil {
		return nil, err
	}

	src := d.calendars.SourceFor(campaign.Request.UserID, loc)
	free, err := calendar.IsFree(ctx, src, start, end)
	if err != nil {
		// Fail closed: unknown is never free, but it is a valid answer for
		// the agent, not a protocol error.
		return map[string]any{
			"free":          false,
			"error":         "calendar unavailable",
			"checked_start": start.Format(time.RFC3339),
			"checked_end":   end.Format(time.RFC3339),
			"timezone":      campaign.Request.TZ,
		}, nil
	}
	return map[string]any{
		"free":          free,
		"checked_start": start.Format(time.RFC3339),
		"checked_end":   end.Format(time.RFC3339),
		"timezone":      campaign.Request.TZ,
	}, nil
}

func (d *Dispatcher) availableSlots(ctx context.Context, params map[string]any, tcx Context) (map[string]any, error) {
	campaign, err := d.store.Campaign(tcx.CampaignID)
	if err != nil {
		return nil, fmt.Errorf("campaign lookup: %w", err)
	}
	loc := campaign.Request.TimeLocation()
	now := time.Now().In(loc)

	rawDate, ok := stringParam(params, "date")
	if !ok {
		return nil, fmt.Errorf("missing date")
	}
	day, err := parseDay(rawDate, loc, now)
	if err != nil {
		return nil, err
	}

	startHour := defaultBusinessStartHour
	if h, ok := intParam(params, "business_start_hour"); ok {
		startHour = h
	}
	endHour := defaultBusinessEndHour
	if h, ok := intParam(params, "business_end_hour"); ok {
		endHour = h
	}
	minSlot := campaign.Request.DurationMin
	if minSlot <= 0 {
		minSlot = 30
	}

	src := d.calendars.SourceFor(campaign.Request.UserID, loc)
	slots, err := calendar.AvailableSlots(ctx, src, day, startHour, endHour, minSlot, loc)
	if err != nil {
		return map[string]any{
			"slots":    []any{},
			"error":    "calendar unavailable",
			"timezone": campaign.Request.TZ,
		}, nil
	}

	out := make([]map[string]any, 0, len(slots))
	for _, s := range slots {
		out = append(out, map[string]any{
			"start":       s.Start.Format(time.RFC3339),
			"end":         s.End.Format(time.RFC3339),
			"start_local": s.Start.In(loc).Format("15:04"),
			"end_local":   s.End.In(loc).Format("15:04"),
			"date":        s.Start.In(loc).Format("2006-01-02"),
		})
	}
	return map[string]any{"slots": out, "timezone": campaign.Request.TZ}, nil
}

func (d *Dispatcher) validateSlot(ctx context.Context, params map[string]any, tcx Context) (map[string]any, error) {
	campaign, err := d.store.Campaign(tcx.CampaignID)
	if err != nil {
		return nil, fmt.Errorf("campaign lookup: %w", err)
	}
	loc := campaign.Request.TimeLocation()
	now := time.Now().In(loc)

	start, end, err := parseRange(params, loc, now, campaign.Request.DurationMin)
	if err != nil {
		return nil, err
	}

	if start.Before(campaign.Request.DateRangeStart) || end.After(campaign.Request.DateRangeEnd) {
		return map[string]any{"ok": false, "reason": "Slot is outside the requested date range"}, nil
	}

	src := d.calendars.SourceFor(campaign.Request.UserID, loc)
	free, err := calendar.IsFree(ctx, src, start, end)
	if err != nil {
		return map[string]any{"ok": false, "reason": "Calendar unavailable"}, nil
	}
	if !free {
		return map[string]any{"ok": false, "reason": "Conflicts with client calendar"}, nil
	}
	return map[string]any{"ok": true}, nil
}

func (d *Dispatcher) distanceCheck(ctx context.Context, params map[string]any, tcx Context) (map[string]any, error) {
	campaign, err := d.store.Campaign(tcx.CampaignID)
	if err != nil {
		return nil, fmt.Errorf("campaign lookup: %w", err)
	}

	providerID, ok := stringParam(params, "provider_id")
	if !ok {
		providerID = tcx.ProviderID
	}

	var provider *models.Provider
	for i := range campaign.Providers {
		if campaign.Providers[i].ID == providerID {
			provider = &campaign.Providers[i]
			break
		}
	}
	if provider == nil {
		return map[string]any{"minutes": -1, "error": "provider not found in campaign"}, nil
	}

	minutes, err := d.distance.EstimateTravelMinutes(ctx, campaign.Request.Origin(), *provider)
	if err != nil {
		return map[string]any{"minutes": -1, "error": "distance estimate failed"}, nil
	}
	return map[string]any{"minutes": minutes}, nil
}

func (d *Dispatcher) providerLookup(ctx context.Context, params map[string]any, tcx Context) (map[string]any, error) {
	campaign, err := d.store.Campaign(tcx.CampaignID)
	if err != nil {
		return nil, fmt.Errorf("campaign lookup: %w", err)
	}

	service, ok := stringParam(params, "service")
	if !ok {
		service = campaign.Request.Service
	}
	location, ok := stringParam(params, "location")
	if !ok {
		location = campaign.Request.Location
	}
	excluded := stringSet(params["exclude_ids"])

	found, err := d.directory.Search(ctx, service, location, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("provider search: %w", err)
	}

	providers := make([]map[string]any, 0, maxLookupResults)
	for _, p := range found {
		if excluded[p.ID] {
			continue
		}
		providers = append(providers, map[string]any{
			"id":      p.ID,
			"name":    p.Name,
			"rating":  p.Rating,
			"phone":   p.Phone,
			"address": p.Address,
		})
		if len(providers) == maxLookupResults {
			break
		}
	}
	return map[string]any{"providers": providers}, nil
}

func (d *Dispatcher) proposeAlternatives(ctx context.Context, params map[string]any, tcx Context) (map[string]any, error) {
	campaign, err := d.store.Campaign(tcx.CampaignID)
	if err != nil {
		return nil, fmt.Errorf("campaign lookup: %w", err)
	}

	constraints, _ := params["constraints"].(map[string]any)
	service := campaign.Request.Service
	if s, ok := stringParam(constraints, "service"); ok {
		service = s
	}
	location := campaign.Request.Location
	if l, ok := stringParam(constraints, "location"); ok {
		location = l
	}
	excluded := stringSet(constraints["exclude_providers"])

	found, err := d.directory.Search(ctx, service, location, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("provider search: %w", err)
	}

	suggestions := make([]map[string]any, 0, maxAlternatives)
	for _, p := range found {
		if excluded[p.ID] {
			continue
		}
		suggestions = append(suggestions, map[string]any{
			"provider_name":          p.Name,
			"provider_id":            p.ID,
			"rating":                 p.Rating,
			"estimated_availability": "Call to check",
		})
		if len(suggestions) == maxAlternatives {
			break
		}
	}
	return map[string]any{"suggestions": suggestions}, nil
}

func (d *Dispatcher) logEvent(_ context.Context, params map[string]any, tcx Context) (map[string]any, error) {
	message, _ := stringParam(params, "message")

	data := params["data"]
	if s, ok := data.(string); ok {
		var parsed map[string]any
		if err := json.Unmarshal([]byte(s), &parsed); err == nil {
			data = parsed
		}
	}
	detail := ""
	if data != nil {
		if raw, err := json.Marshal(data); err == nil {
			detail = truncate(string(raw), maxLoggedEventLength)
		}
	}

	slog.Info("agent event",
		"campaign_id", tcx.CampaignID,
		"provider_id", tcx.ProviderID,
		"message", truncate(message, maxLoggedEventLength),
		"detail", detail)
	return map[string]any{"ok": true}, nil
}

// parseRange reads start/end params, localizing naive values and rolling
// past years forward. A missing end defaults to start plus the appointment
// duration.
func parseRange(params map[string]any, loc *time.Location, now time.Time, durationMin int) (time.Time, time.Time, error) {
	rawStart, ok := stringParam(params, "start")
	if !ok {
		return time.Time{}, time.Time{}, fmt.Errorf("missing start")
	}
	start, err := parseWhen(rawStart, loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	start = rollForwardYear(start, now)

	var end time.Time
	if rawEnd, ok := stringParam(params, "end"); ok {
		end, err = parseWhen(rawEnd, loc)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		end = rollForwardYear(end, now)
	} else {
		if durationMin <= 0 {
			durationMin = 30
		}
		end = start.Add(time.Duration(durationMin) * time.Minute)
	}
	return start, end, nil
}

func stringSet(v any) map[string]bool {
	out := map[string]bool{}
	items, ok := v.([]any)
	if !ok {
		return out
	}
	for _, item := range items {
		if s, ok := item.(string); ok {
			out[s] = true
		}
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
