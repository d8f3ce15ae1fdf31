package models

// CallOutcome classifies how a provider call ended.
type CallOutcome string

const (
	// OutcomeSuccess means at least one slot offer was collected.
	OutcomeSuccess          CallOutcome = "SUCCESS"
	OutcomeNoAnswer         CallOutcome = "NO_ANSWER"
	OutcomeBusy             CallOutcome = "BUSY"
	OutcomeFailed           CallOutcome = "FAILED"
	OutcomeNoSlots          CallOutcome = "NO_SLOTS"
	OutcomeCompletedNoMatch CallOutcome = "COMPLETED_NO_MATCH"
	OutcomeBookingConfirmed CallOutcome = "BOOKING_CONFIRMED"
	OutcomeBookingRejected  CallOutcome = "BOOKING_REJECTED"
)

// KnownOutcome reports whether s names a defined outcome.
func KnownOutcome(s string) bool {
	switch CallOutcome(s) {
	case OutcomeSuccess, OutcomeNoAnswer, OutcomeBusy, OutcomeFailed,
		OutcomeNoSlots, OutcomeCompletedNoMatch,
		OutcomeBookingConfirmed, OutcomeBookingRejected:
		return true
	}
	return false
}

// CountsAsFailed reports whether the outcome counts toward failed_calls.
func (o CallOutcome) CountsAsFailed() bool {
	switch o {
	case OutcomeFailed, OutcomeNoAnswer, OutcomeBusy:
		return true
	}
	return false
}

// CallResult is the terminal record of one provider call.
type CallResult struct {
	ProviderID        string      `json:"provider_id"`
	CallID            string      `json:"call_id,omitempty"`
	Outcome           CallOutcome `json:"outcome"`
	Offers            []SlotOffer `json:"offers,omitempty"`
	TranscriptSnippet string      `json:"transcript_snippet,omitempty"`
	Notes             string      `json:"notes,omitempty"`
}

// UsableOffers returns the offers when the outcome is SUCCESS, else nil.
// Ranking must never see offers attached to a failed call.
func (r CallResult) UsableOffers() []SlotOffer {
	if r.Outcome != OutcomeSuccess {
		return nil
	}
	return r.Offers
}

func (r CallResult) clone() CallResult {
	out := r
	out.Offers = cloneOffers(r.Offers)
	return out
}

func cloneCallResults(rs []CallResult) []CallResult {
	if rs == nil {
		return nil
	}
	out := make([]CallResult, len(rs))
	for i := range rs {
		out[i] = rs[i].clone()
	}
	return out
}
