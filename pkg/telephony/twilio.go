// Package telephony places outbound calls through Twilio and renders the
// TwiML that routes their audio into the media-stream bridge.
package telephony

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/twilio/twilio-go"
	twilioapi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/callpilot/callpilot/pkg/config"
	"github.com/callpilot/callpilot/pkg/store"
)

// CallKind distinguishes a discovery call from a phase-two booking callback.
// The voice webhook uses it to pick the agent prompt.
type CallKind string

const (
	CallKindDiscovery CallKind = "discovery"
	CallKindBooking   CallKind = "booking"
)

// Caller originates phone calls. Implementations must register the returned
// call id in the store before returning, so the webhook and media-stream
// handlers can resolve it immediately.
type Caller interface {
	PlaceCall(ctx context.Context, toPhone, campaignID, providerID string, kind CallKind) (string, error)
}

// TwilioCaller places calls with the Twilio REST API.
type TwilioCaller struct {
	client   *twilio.RestClient
	store    *store.Store
	callerID string
	baseURL  string
}

// callTimeoutSeconds is how long Twilio lets the phone ring.
const callTimeoutSeconds = 60

// NewTwilioCaller builds the production caller. Settings must pass
// TwilioConfigured.
func NewTwilioCaller(settings *config.Settings, st *store.Store) *TwilioCaller {
	if st == nil {
		panic("telephony.NewTwilioCaller: store is required")
	}
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: settings.TwilioAccountSID,
		Password: settings.TwilioAuthToken,
	})
	return &TwilioCaller{
		client:   client,
		store:    st,
		callerID: settings.TwilioCallerID,
		baseURL:  settings.PublicBaseURL,
	}
}

// PlaceCall creates the outbound call and registers its mapping.
func (c *TwilioCaller) PlaceCall(ctx context.Context, toPhone, campaignID, providerID string, kind CallKind) (string, error) {
	voiceURL := fmt.Sprintf("%s/twilio/voice?%s", c.baseURL, url.Values{
		"campaign_id": {campaignID},
		"provider_id": {providerID},
		"kind":        {string(kind)},
	}.Encode())
	statusURL := c.baseURL + "/twilio/voice/status"

	params := &twilioapi.CreateCallParams{}
	params.SetTo(toPhone)
	params.SetFrom(c.callerID)
	params.SetUrl(voiceURL)
	params.SetStatusCallback(statusURL)
	params.SetStatusCallbackEvent([]string{"completed", "busy", "no-answer", "failed", "canceled"})
	params.SetTimeout(callTimeoutSeconds)

	resp, err := c.client.Api.CreateCall(params)
	if err != nil {
		return "", fmt.Errorf("twilio create call: %w", err)
	}
	if resp.Sid == nil || *resp.Sid == "" {
		return "", fmt.Errorf("twilio create call: response carried no call sid")
	}
	callID := *resp.Sid

	c.store.RegisterCall(callID, campaignID, providerID)
	slog.Info("outbound call placed",
		"call_id", callID,
		"campaign_id", campaignID,
		"provider_id", providerID,
		"kind", kind)
	return callID, nil
}
