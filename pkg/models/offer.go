package models

import "time"

// SlotOffer is one appointment slot a provider offered during a call.
type SlotOffer struct {
	ProviderID string    `json:"provider_id"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	Notes      string    `json:"notes,omitempty"`
	// Confidence is the agent's certainty the slot is actually bookable, 0..1.
	Confidence float64 `json:"confidence"`
	// Score is set by ranking; nil means unscored.
	Score *float64 `json:"score,omitempty"`
}

// Clone returns a deep copy of the offer, nil-safe.
func (o *SlotOffer) Clone() *SlotOffer {
	if o == nil {
		return nil
	}
	out := *o
	if o.Score != nil {
		s := *o.Score
		out.Score = &s
	}
	return &out
}

func cloneOffers(offers []SlotOffer) []SlotOffer {
	if offers == nil {
		return nil
	}
	out := make([]SlotOffer, len(offers))
	for i := range offers {
		out[i] = *offers[i].Clone()
	}
	return out
}
