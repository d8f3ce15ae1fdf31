package api

import (
	"bufio"
	"errors"
	"log/slog"
	"net"
	"net/http"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"

	"github.com/callpilot/callpilot/pkg/bridge"
	"github.com/callpilot/callpilot/pkg/models"
	"github.com/callpilot/callpilot/pkg/telephony"
)

// twilioVoice handles POST /twilio/voice: Twilio fetches call instructions
// here once the callee answers. The response speaks the disclosure and
// connects the audio to the media-stream endpoint.
func (s *Server) twilioVoice(c *gin.Context) {
	callID := c.PostForm("CallSid")
	if callID == "" {
		errorJSON(c, http.StatusBadRequest, "CallSid is required")
		return
	}

	campaignID := c.Query("campaign_id")
	providerID := c.Query("provider_id")
	if campaignID == "" || providerID == "" {
		if mapping, ok := s.store.CallByID(callID); ok {
			campaignID, providerID = mapping.CampaignID, mapping.ProviderID
		}
	}

	twiml, err := telephony.StreamTwiML(s.settings.PublicBaseURL, callID, campaignID, providerID)
	if err != nil {
		errorJSON(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.Data(http.StatusOK, "application/xml", []byte(twiml))
}

// twilioStatusOutcomes maps Twilio terminal call statuses to call outcomes.
// "completed" is absent on purpose: the bridge already deposited a richer
// result and CompleteCall keeps the first one.
var twilioStatusOutcomes = map[string]models.CallOutcome{
	"busy":      models.OutcomeBusy,
	"no-answer": models.OutcomeNoAnswer,
	"failed":    models.OutcomeFailed,
	"canceled":  models.OutcomeFailed,
}

// twilioStatus handles POST /twilio/voice/status.
func (s *Server) twilioStatus(c *gin.Context) {
	callID := c.PostForm("CallSid")
	status := c.PostForm("CallStatus")

	if outcome, ok := twilioStatusOutcomes[status]; ok && callID != "" {
		if mapping, found := s.store.CallByID(callID); found {
			s.store.CompleteCall(callID, models.CallResult{
				ProviderID: mapping.ProviderID,
				CallID:     callID,
				Outcome:    outcome,
				Notes:      "Twilio status: " + status,
			})
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "received"})
}

// hijackWriter narrows gin's response writer to what the WebSocket upgrade
// needs. The websocket library calls WriteHeaderNow when it sees gin's writer,
// which marks the response written and makes gin refuse the hijack; hiding
// that method keeps the handshake on the hijacked connection.
type hijackWriter struct {
	http.ResponseWriter
}

func (w hijackWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer cannot be hijacked")
	}
	return hj.Hijack()
}

// twilioStream handles GET /twilio/stream/:call_id: upgrades to a WebSocket
// and hands the connection to the media bridge.
func (s *Server) twilioStream(c *gin.Context) {
	if s.bridge == nil {
		errorJSON(c, http.StatusServiceUnavailable, "media bridge is not configured")
		return
	}
	callID := c.Param("call_id")

	campaignID := c.Query("campaign_id")
	providerID := c.Query("provider_id")
	mapping, found := s.store.CallByID(callID)
	if campaignID == "" || providerID == "" {
		if !found {
			errorJSON(c, http.StatusNotFound, "unknown call")
			return
		}
		campaignID, providerID = mapping.CampaignID, mapping.ProviderID
	}

	kind := c.Query("kind")
	if kind == "" {
		kind = string(telephony.CallKindDiscovery)
		if campaign, err := s.store.Campaign(campaignID); err == nil &&
			campaign.Status == models.CampaignStatusBooking {
			kind = string(telephony.CallKindBooking)
		}
	}

	conn, err := websocket.Accept(hijackWriter{c.Writer}, c.Request, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("media stream upgrade failed", "call_id", callID, "error", err)
		return
	}

	slog.Info("media stream connected",
		"call_id", callID,
		"campaign_id", campaignID,
		"provider_id", providerID,
		"kind", kind)
	s.bridge.Run(c.Request.Context(), bridge.WSPhoneConn{Conn: conn}, callID, campaignID, providerID, kind)
}
