package swarm

import (
	"context"
	"encoding/hex"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/callpilot/callpilot/pkg/models"
	"github.com/callpilot/callpilot/pkg/telephony"
)

// BookingFunc places one phase-two callback asking the provider to hold a
// specific offer. The returned outcome decides whether the campaign books or
// moves to the next candidate.
type BookingFunc func(ctx context.Context, offer models.SlotOffer, provider models.Provider, campaign *models.Campaign, deps *Deps) models.CallResult

// NewConfirmationRef issues a fresh booking reference: "CONF-" followed by
// eight uppercase hex characters.
func NewConfirmationRef() string {
	u := uuid.New()
	return "CONF-" + strings.ToUpper(hex.EncodeToString(u[:4]))
}

// SimulatedBooking confirms after a short seed-derived delay, so auto-book
// campaigns reach "booked" deterministically.
func SimulatedBooking(ctx context.Context, offer models.SlotOffer, provider models.Provider, campaign *models.Campaign, deps *Deps) models.CallResult {
	seed := seedOf(provider.ID)
	if err := sleepScaled(ctx, seedDuration(seed, 24, 2*time.Second, 5*time.Second), deps.Settings.SimTimeScale); err != nil {
		return models.CallResult{
			ProviderID: provider.ID,
			Outcome:    models.OutcomeBookingRejected,
			Notes:      "Booking call timed out",
		}
	}
	return models.CallResult{
		ProviderID: provider.ID,
		Outcome:    models.OutcomeBookingConfirmed,
		Notes:      "Simulated: receptionist confirmed the slot",
	}
}

// RealBooking places a booking callback through telephony and waits for the
// bridge's verdict. Anything other than an explicit confirmation counts as
// rejected.
func RealBooking(ctx context.Context, offer models.SlotOffer, provider models.Provider, campaign *models.Campaign, deps *Deps) models.CallResult {
	if deps.Caller == nil {
		return models.CallResult{
			ProviderID: provider.ID,
			Outcome:    models.OutcomeBookingRejected,
			Notes:      "Real calls are not configured",
		}
	}

	callID, err := deps.Caller.PlaceCall(ctx, provider.Phone, campaign.CampaignID, provider.ID, telephony.CallKindBooking)
	if err != nil {
		return models.CallResult{
			ProviderID: provider.ID,
			Outcome:    models.OutcomeBookingRejected,
			Notes:      "Failed to place booking call: " + err.Error(),
		}
	}

	mapping, ok := deps.Store.CallByID(callID)
	if !ok {
		return models.CallResult{
			ProviderID: provider.ID,
			CallID:     callID,
			Outcome:    models.OutcomeBookingRejected,
			Notes:      "Booking call was not registered",
		}
	}

	select {
	case <-mapping.Done():
		result := mapping.Result()
		if result == nil || result.Outcome != models.OutcomeBookingConfirmed {
			out := models.CallResult{
				ProviderID: provider.ID,
				CallID:     callID,
				Outcome:    models.OutcomeBookingRejected,
				Notes:      "Provider did not confirm the slot",
			}
			if result != nil && result.Notes != "" {
				out.Notes = result.Notes
			}
			return out
		}
		out := *result
		out.ProviderID = provider.ID
		out.CallID = callID
		return out
	case <-ctx.Done():
		return models.CallResult{
			ProviderID: provider.ID,
			CallID:     callID,
			Outcome:    models.OutcomeBookingRejected,
			Notes:      "Booking call timed out",
		}
	}
}
