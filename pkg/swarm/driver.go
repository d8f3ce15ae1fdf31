package swarm

import (
	"context"
	"fmt"
	"time"

	"github.com/callpilot/callpilot/pkg/calendar"
	"github.com/callpilot/callpilot/pkg/config"
	"github.com/callpilot/callpilot/pkg/models"
	"github.com/callpilot/callpilot/pkg/store"
	"github.com/callpilot/callpilot/pkg/telephony"
)

// CalendarResolver picks the busy source for a campaign's user and timezone.
// Satisfied by calendar.Factory.
type CalendarResolver interface {
	SourceFor(userID string, loc *time.Location) calendar.BusySource
}

// Deps carries everything a call driver needs. The manager builds one per
// campaign run.
type Deps struct {
	Store     *store.Store
	Calendars CalendarResolver
	Caller    telephony.Caller
	Settings  *config.Settings
}

// CallFunc executes one provider call and returns its terminal result.
// Implementations must not panic past their own boundary and should honor
// ctx cancellation.
type CallFunc func(ctx context.Context, provider models.Provider, campaign *models.Campaign, deps *Deps) models.CallResult

const (
	simCandidateTries = 3
	simMaxOffers      = 2
	simDayStartHour   = 9
)

// SimulatedCall is the deterministic driver: the provider id seeds the
// call's fate, its offered slots and its pacing. Each candidate slot is
// checked against the user's calendar before it is offered; an unavailable
// calendar drops the candidate rather than guessing.
func SimulatedCall(ctx context.Context, provider models.Provider, campaign *models.Campaign, deps *Deps) models.CallResult {
	seed := seedOf(provider.ID)
	scale := deps.Settings.SimTimeScale
	req := campaign.Request

	switch seedMod(seed, 0, 10) {
	case 0:
		if err := sleepScaled(ctx, seedDuration(seed, 16, 8*time.Second, 13*time.Second), scale); err != nil {
			return timedOutResult(provider.ID)
		}
		return models.CallResult{
			ProviderID: provider.ID,
			Outcome:    models.OutcomeNoAnswer,
			Notes:      "Simulated: no answer",
		}
	case 1:
		if err := sleepScaled(ctx, seedDuration(seed, 16, 6*time.Second, 9*time.Second), scale); err != nil {
			return timedOutResult(provider.ID)
		}
		return models.CallResult{
			ProviderID: provider.ID,
			Outcome:    models.OutcomeNoSlots,
			Notes:      "Simulated: receptionist said no availability",
		}
	}

	loc := req.TimeLocation()
	src := deps.Calendars.SourceFor(req.UserID, loc)
	duration := time.Duration(req.DurationMin) * time.Minute

	rangeStart := req.DateRangeStart.In(loc)
	base := time.Date(rangeStart.Year(), rangeStart.Month(), rangeStart.Day(),
		simDayStartHour, 0, 0, 0, loc)

	var offers []models.SlotOffer
	for i := 0; i < simCandidateTries && len(offers) < simMaxOffers; i++ {
		offsetHours := seedMod(seed, uint(i*4), 8)
		start := base.AddDate(0, 0, i).Add(time.Duration(offsetHours) * time.Hour)

		offer, ok := trySimCandidate(ctx, src, start, duration, req)
		if !ok {
			continue
		}
		offer.ProviderID = provider.ID
		offer.Confidence = 0.9 - 0.1*float64(i)
		offer.Notes = "Simulated offer from " + provider.Name
		offers = append(offers, offer)
	}

	if err := sleepScaled(ctx, seedDuration(seed, 20, 6*time.Second, 14*time.Second), scale); err != nil {
		return timedOutResult(provider.ID)
	}

	if len(offers) == 0 {
		return models.CallResult{
			ProviderID: provider.ID,
			Outcome:    models.OutcomeCompletedNoMatch,
			Notes:      "Simulated: no workable slots found",
		}
	}
	return models.CallResult{
		ProviderID:        provider.ID,
		Outcome:           models.OutcomeSuccess,
		Offers:            offers,
		TranscriptSnippet: fmt.Sprintf("Receptionist offered %d possible time(s).", len(offers)),
		Notes:             "Simulated call",
	}
}

// trySimCandidate bound-checks and calendar-checks one candidate slot,
// shifting it one hour on a calendar conflict and retrying once. An
// unavailable calendar skips the candidate entirely (fail closed).
func trySimCandidate(ctx context.Context, src calendar.BusySource, start time.Time, duration time.Duration, req models.AppointmentRequest) (models.SlotOffer, bool) {
	for attempt := 0; attempt < 2; attempt++ {
		end := start.Add(duration)
		if start.Before(req.DateRangeStart) || end.After(req.DateRangeEnd) {
			return models.SlotOffer{}, false
		}
		free, err := calendar.IsFree(ctx, src, start, end)
		if err != nil {
			return models.SlotOffer{}, false
		}
		if free {
			return models.SlotOffer{Start: start, End: end}, true
		}
		start = start.Add(time.Hour)
	}
	return models.SlotOffer{}, false
}

// RealCall places a phone call and waits for the media bridge to deposit
// the result. A ctx deadline synthesizes a FAILED result immediately; the
// live session is left to finish on its own.
func RealCall(ctx context.Context, provider models.Provider, campaign *models.Campaign, deps *Deps) models.CallResult {
	if deps.Caller == nil {
		return models.CallResult{
			ProviderID: provider.ID,
			Outcome:    models.OutcomeFailed,
			Notes:      "Real calls are not configured",
		}
	}

	callID, err := deps.Caller.PlaceCall(ctx, provider.Phone, campaign.CampaignID, provider.ID, telephony.CallKindDiscovery)
	if err != nil {
		return models.CallResult{
			ProviderID: provider.ID,
			Outcome:    models.OutcomeFailed,
			Notes:      "Failed to place call: " + err.Error(),
		}
	}

	mapping, ok := deps.Store.CallByID(callID)
	if !ok {
		// The caller contract requires registration before returning.
		return models.CallResult{
			ProviderID: provider.ID,
			CallID:     callID,
			Outcome:    models.OutcomeFailed,
			Notes:      "Call was not registered",
		}
	}

	select {
	case <-mapping.Done():
		result := mapping.Result()
		if result == nil {
			return models.CallResult{
				ProviderID: provider.ID,
				CallID:     callID,
				Outcome:    models.OutcomeFailed,
				Notes:      "Call completed but no result data",
			}
		}
		out := *result
		out.ProviderID = provider.ID
		out.CallID = callID
		return out
	case <-ctx.Done():
		return models.CallResult{
			ProviderID: provider.ID,
			CallID:     callID,
			Outcome:    models.OutcomeFailed,
			Notes:      "Call timed out",
		}
	}
}

func timedOutResult(providerID string) models.CallResult {
	return models.CallResult{
		ProviderID: providerID,
		Outcome:    models.OutcomeFailed,
		Notes:      "Call timed out",
	}
}
