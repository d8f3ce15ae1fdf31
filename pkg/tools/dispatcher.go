// Package tools executes the named tools the in-call voice agent can invoke:
// calendar probes, travel checks, provider lookups and event logging.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/callpilot/callpilot/pkg/calendar"
	"github.com/callpilot/callpilot/pkg/directory"
	"github.com/callpilot/callpilot/pkg/distance"
	"github.com/callpilot/callpilot/pkg/store"
)

// Context identifies the call a tool invocation belongs to.
type Context struct {
	CampaignID string
	ProviderID string
}

// CalendarResolver picks the busy source for a campaign's user and timezone.
// Satisfied by calendar.Factory.
type CalendarResolver interface {
	SourceFor(userID string, loc *time.Location) calendar.BusySource
}

// Dispatcher routes tool calls to handlers. Handler failures and panics are
// converted to error payloads; the agent session must never crash because a
// tool misbehaved.
type Dispatcher struct {
	store     *store.Store
	calendars CalendarResolver
	distance  distance.Estimator
	directory directory.Directory
}

// NewDispatcher wires the tool handlers.
func NewDispatcher(st *store.Store, calendars CalendarResolver, dist distance.Estimator, dir directory.Directory) *Dispatcher {
	if st == nil {
		panic("tools.NewDispatcher: store is required")
	}
	if calendars == nil {
		panic("tools.NewDispatcher: calendar factory is required")
	}
	if dist == nil {
		panic("tools.NewDispatcher: distance estimator is required")
	}
	if dir == nil {
		panic("tools.NewDispatcher: directory is required")
	}
	return &Dispatcher{store: st, calendars: calendars, distance: dist, directory: dir}
}

type handlerFunc func(ctx context.Context, params map[string]any, tcx Context) (map[string]any, error)

// Dispatch runs one named tool and returns the JSON result plus an is_error
// flag for the agent protocol.
func (d *Dispatcher) Dispatch(ctx context.Context, name string, params map[string]any, tcx Context) (json.RawMessage, bool) {
	slog.Info("tool call",
		"tool", name,
		"campaign_id", tcx.CampaignID,
		"provider_id", tcx.ProviderID)

	var handler handlerFunc
	switch name {
	case "calendar_check":
		handler = d.calendarCheck
	case "available_slots":
		handler = d.availableSlots
	case "validate_slot":
		handler = d.validateSlot
	case "distance_check":
		handler = d.distanceCheck
	case "provider_lookup":
		handler = d.providerLookup
	case "propose_alternatives":
		handler = d.proposeAlternatives
	case "log_event":
		handler = d.logEvent
	default:
		return errPayload(fmt.Sprintf("unknown tool: %s", name)), true
	}

	result, err := d.invoke(ctx, name, handler, params, tcx)
	if err != nil {
		slog.Error("tool failed",
			"tool", name,
			"campaign_id", tcx.CampaignID,
			"error", err)
		return errPayload(fmt.Sprintf("tool %s encountered an error", name)), true
	}

	raw, err := json.Marshal(result)
	if err != nil {
		slog.Error("tool result not serializable", "tool", name, "error", err)
		return errPayload(fmt.Sprintf("tool %s encountered an error", name)), true
	}
	return raw, false
}

func (d *Dispatcher) invoke(ctx context.Context, name string, handler handlerFunc, params map[string]any, tcx Context) (result map[string]any, err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("tool handler panicked", "tool", name, "panic", r)
			err = fmt.Errorf("tool %s panicked: %v", name, r)
		}
	}()
	return handler(ctx, params, tcx)
}

func errPayload(msg string) json.RawMessage {
	raw, _ := json.Marshal(map[string]string{"error": msg})
	return raw
}

func stringParam(params map[string]any, key string) (string, bool) {
	v, ok := params[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

func intParam(params map[string]any, key string) (int, bool) {
	v, ok := params[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	}
	return 0, false
}
