package voice

import (
	"fmt"
	"strings"
	"time"

	"github.com/callpilot/callpilot/pkg/models"
)

// DiscoveryPrompt builds the agent system prompt for a phase-one call: learn
// which slots the provider has open inside the campaign window.
func DiscoveryPrompt(c *models.Campaign, p models.Provider) string {
	req := c.Request
	loc := req.TimeLocation()
	var b strings.Builder

	fmt.Fprintf(&b, "You are a polite scheduling assistant calling %s to find an open %s appointment", p.Name, req.Service)
	if req.ClientName != "" {
		fmt.Fprintf(&b, " for %s", req.ClientName)
	}
	b.WriteString(".\n\n")

	fmt.Fprintf(&b, "The appointment must be %d minutes long and fall between %s and %s (%s).\n",
		req.DurationMin,
		req.DateRangeStart.In(loc).Format("Monday, January 2 at 15:04"),
		req.DateRangeEnd.In(loc).Format("Monday, January 2 at 15:04"),
		req.TZ)

	b.WriteString(`
Rules:
- Ask the receptionist which times are available in that window.
- Before accepting any time, verify it with the validate_slot tool; only
  propose times the tool approves. If the calendar cannot be checked, say you
  need to call back and do not commit to the time.
- Use available_slots if the receptionist asks when the client is free.
- Collect up to three workable times, then politely end the call. Do not book
  anything on this call.
- Just before hanging up, call log_event with message "call_summary" and
  data containing an "offers" array of {start, end, notes, confidence}
  entries using ISO 8601 times.
- If the office has nothing available, call log_event with message
  "call_summary" and data {"outcome": "NO_SLOTS"}.`)
	b.WriteString("\n")
	return b.String()
}

// BookingPrompt builds the agent system prompt for a phase-two callback that
// confirms one specific offer.
func BookingPrompt(c *models.Campaign, p models.Provider, offer models.SlotOffer) string {
	req := c.Request
	loc := req.TimeLocation()
	var b strings.Builder

	fmt.Fprintf(&b, "You are a polite scheduling assistant calling %s back to confirm a %s appointment", p.Name, req.Service)
	if req.ClientName != "" {
		fmt.Fprintf(&b, " for %s", req.ClientName)
	}
	b.WriteString(".\n\n")

	fmt.Fprintf(&b, "Confirm the slot from %s to %s (%s).\n",
		offer.Start.In(loc).Format("Monday, January 2 at 15:04"),
		offer.End.In(loc).Format("15:04"),
		req.TZ)
	if req.ClientPhone != "" {
		fmt.Fprintf(&b, "The client's callback number is %s.\n", req.ClientPhone)
	}

	b.WriteString(`
Rules:
- Ask the receptionist to hold exactly that time. Do not negotiate other
  times on this call.
- If they confirm it, call log_event with message "booking_result" and data
  {"outcome": "BOOKING_CONFIRMED"}.
- If they cannot hold it, call log_event with message "booking_result" and
  data {"outcome": "BOOKING_REJECTED"}, then end the call politely.`)
	b.WriteString("\n")
	return b.String()
}

// FirstMessage is what the agent opens with once connected.
func FirstMessage(c *models.Campaign, p models.Provider) string {
	return fmt.Sprintf("Hi, I'm calling to ask about %s appointment availability. Do you have a moment?",
		c.Request.Service)
}

// SessionFor assembles the full session configuration for one call.
func SessionFor(c *models.Campaign, p models.Provider, kind string, offer *models.SlotOffer) SessionConfig {
	var prompt string
	if kind == "booking" && offer != nil {
		prompt = BookingPrompt(c, p, *offer)
	} else {
		prompt = DiscoveryPrompt(c, p)
	}
	return SessionConfig{
		Prompt:       prompt,
		FirstMessage: FirstMessage(c, p),
		DynamicVariables: map[string]string{
			"provider_name": p.Name,
			"service":       c.Request.Service,
			"today":         time.Now().In(c.Request.TimeLocation()).Format("2006-01-02"),
		},
	}
}
