package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validRequest() AppointmentRequest {
	return AppointmentRequest{
		Service:        "dentist",
		Location:       "Springfield",
		DateRangeStart: time.Date(2025, 3, 15, 8, 0, 0, 0, time.UTC),
		DateRangeEnd:   time.Date(2025, 3, 20, 18, 0, 0, 0, time.UTC),
	}
}

func TestAppointmentRequestNormalize(t *testing.T) {
	r := validRequest()
	r.Normalize()

	assert.Equal(t, 30, r.DurationMin)
	assert.Equal(t, 15, r.MaxProviders)
	assert.Equal(t, 5, r.MaxParallel)
	assert.Equal(t, "UTC", r.TZ)
	assert.Equal(t, CallModeAuto, r.CallMode)
}

func TestAppointmentRequestValidate(t *testing.T) {
	t.Run("valid after normalize", func(t *testing.T) {
		r := validRequest()
		r.Normalize()
		require.NoError(t, r.Validate())
	})

	t.Run("empty service", func(t *testing.T) {
		r := validRequest()
		r.Normalize()
		r.Service = ""
		err := r.Validate()
		require.Error(t, err)
		assert.True(t, IsValidationError(err))
	})

	t.Run("inverted date range", func(t *testing.T) {
		r := validRequest()
		r.Normalize()
		r.DateRangeEnd = r.DateRangeStart.Add(-time.Hour)
		assert.Error(t, r.Validate())
	})

	t.Run("bad call mode", func(t *testing.T) {
		r := validRequest()
		r.Normalize()
		r.CallMode = CallMode("carrier-pigeon")
		assert.Error(t, r.Validate())
	})

	t.Run("bad timezone", func(t *testing.T) {
		r := validRequest()
		r.Normalize()
		r.TZ = "Mars/Olympus_Mons"
		assert.Error(t, r.Validate())
	})

	t.Run("negative travel limit", func(t *testing.T) {
		r := validRequest()
		r.Normalize()
		r.MaxTravelMinutes = -1
		assert.Error(t, r.Validate())
	})
}

func TestRequestOrigin(t *testing.T) {
	r := validRequest()
	assert.Equal(t, "Springfield", r.Origin())

	lat, lng := 37.7749, -122.4194
	r.OriginLat, r.OriginLng = &lat, &lng
	assert.Equal(t, "37.7749,-122.4194", r.Origin())
}

func TestRequestTimeLocation(t *testing.T) {
	r := validRequest()
	r.TZ = "America/Chicago"
	loc := r.TimeLocation()
	require.NotNil(t, loc)
	assert.Equal(t, "America/Chicago", loc.String())
	// The free-text place is untouched by timezone resolution.
	assert.Equal(t, "Springfield", r.Location)

	r.TZ = "not-a-zone"
	assert.Equal(t, time.UTC, r.TimeLocation())
}

func TestCampaignCloneIsolation(t *testing.T) {
	score := 0.9
	c := &Campaign{
		CampaignID: "abc123def456",
		Request:    validRequest(),
		Status:     CampaignStatusRunning,
		Providers:  []Provider{{ID: "p1", Name: "A", Services: []string{"dentist"}}},
		CallResults: []CallResult{{
			ProviderID: "p1",
			Outcome:    OutcomeSuccess,
			Offers:     []SlotOffer{{ProviderID: "p1", Confidence: 0.9, Score: &score}},
		}},
		Ranked: []SlotOffer{{ProviderID: "p1", Score: &score}},
		Debug:  map[string]any{"scoring": map[string]any{"p1": []any{1.0}}},
	}

	clone := c.Clone()
	clone.Providers[0].Name = "mutated"
	clone.Providers[0].Services[0] = "mutated"
	*clone.Ranked[0].Score = 0.1
	clone.Debug["scoring"].(map[string]any)["p1"] = "mutated"
	clone.CallResults[0].Offers[0].Notes = "mutated"

	assert.Equal(t, "A", c.Providers[0].Name)
	assert.Equal(t, "dentist", c.Providers[0].Services[0])
	assert.Equal(t, 0.9, *c.Ranked[0].Score)
	assert.Equal(t, []any{1.0}, c.Debug["scoring"].(map[string]any)["p1"])
	assert.Empty(t, c.CallResults[0].Offers[0].Notes)
}

func TestStatusTerminal(t *testing.T) {
	assert.False(t, CampaignStatusRunning.Terminal())
	assert.False(t, CampaignStatusBooking.Terminal())
	assert.True(t, CampaignStatusBooked.Terminal())
	assert.True(t, CampaignStatusCompleted.Terminal())
	assert.True(t, CampaignStatusFailed.Terminal())
}

func TestOutcomeHelpers(t *testing.T) {
	assert.True(t, OutcomeNoAnswer.CountsAsFailed())
	assert.True(t, OutcomeBusy.CountsAsFailed())
	assert.True(t, OutcomeFailed.CountsAsFailed())
	assert.False(t, OutcomeSuccess.CountsAsFailed())
	assert.False(t, OutcomeNoSlots.CountsAsFailed())

	assert.True(t, KnownOutcome("BOOKING_CONFIRMED"))
	assert.False(t, KnownOutcome("SHRUG"))

	withOffers := CallResult{Outcome: OutcomeFailed, Offers: []SlotOffer{{ProviderID: "p1"}}}
	assert.Nil(t, withOffers.UsableOffers())
	withOffers.Outcome = OutcomeSuccess
	assert.Len(t, withOffers.UsableOffers(), 1)
}
