package bridge

import (
	"time"

	"github.com/callpilot/callpilot/pkg/models"
)

// defaultOfferConfidence applies when the agent reports an offer without one.
const defaultOfferConfidence = 0.8

var offerTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
}

// extractOffers pulls slot offers from a log_event data payload. Entries
// missing a parseable start or end are skipped; a later confirmation step
// re-validates everything anyway.
func extractOffers(data map[string]any, providerID string, loc *time.Location) []models.SlotOffer {
	rawList, ok := data["offers"].([]any)
	if !ok {
		return nil
	}

	var out []models.SlotOffer
	for _, raw := range rawList {
		entry, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		start, ok := parseOfferTime(entry["start"], loc)
		if !ok {
			continue
		}
		end, ok := parseOfferTime(entry["end"], loc)
		if !ok || !end.After(start) {
			continue
		}

		offer := models.SlotOffer{
			ProviderID: providerID,
			Start:      start,
			End:        end,
			Confidence: defaultOfferConfidence,
		}
		if notes, ok := entry["notes"].(string); ok {
			offer.Notes = notes
		}
		if c, ok := entry["confidence"].(float64); ok && c >= 0 && c <= 1 {
			offer.Confidence = c
		}
		out = append(out, offer)
	}
	return out
}

// extractOutcome reads an explicit outcome hint from a log_event payload.
// Booking calls use it to report BOOKING_CONFIRMED / BOOKING_REJECTED.
func extractOutcome(data map[string]any) (models.CallOutcome, bool) {
	s, ok := data["outcome"].(string)
	if !ok || !models.KnownOutcome(s) {
		return "", false
	}
	return models.CallOutcome(s), true
}

func parseOfferTime(v any, loc *time.Location) (time.Time, bool) {
	s, ok := v.(string)
	if !ok || s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	// Naive timestamps are wall-clock in the campaign timezone.
	for _, layout := range offerTimeLayouts[1:] {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
