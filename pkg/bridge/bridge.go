// Package bridge supervises one live call: it relays audio and events
// between the Twilio media stream and the conversational agent session,
// forwards the agent's tool calls, and deposits the call result exactly once
// when the session ends.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/callpilot/callpilot/pkg/audio"
	"github.com/callpilot/callpilot/pkg/models"
	"github.com/callpilot/callpilot/pkg/store"
	"github.com/callpilot/callpilot/pkg/tools"
	"github.com/callpilot/callpilot/pkg/voice"
)

const (
	// transcriptKeepLines bounds the snippet stored on the call result.
	transcriptKeepLines = 10
	transcriptMaxChars  = 500

	phoneWriteTimeout = 10 * time.Second
)

// PhoneConn is the phone leg of the bridge: one accepted Twilio
// media-stream WebSocket. Tests substitute a scripted connection.
type PhoneConn interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, data []byte) error
	Close() error
}

// ToolDispatcher runs one named tool. Satisfied by tools.Dispatcher.
type ToolDispatcher interface {
	Dispatch(ctx context.Context, name string, params map[string]any, tcx tools.Context) (json.RawMessage, bool)
}

// Bridge wires phone legs to agent sessions. One Bridge serves all calls;
// per-call state lives in the session struct Run creates.
type Bridge struct {
	store  *store.Store
	tools  ToolDispatcher
	dialer voice.Dialer
}

// New builds the bridge supervisor.
func New(st *store.Store, dispatcher ToolDispatcher, dialer voice.Dialer) *Bridge {
	if st == nil {
		panic("bridge.New: store is required")
	}
	if dispatcher == nil {
		panic("bridge.New: tool dispatcher is required")
	}
	if dialer == nil {
		panic("bridge.New: session dialer is required")
	}
	return &Bridge{store: st, tools: dispatcher, dialer: dialer}
}

// Run drives one call to completion. It blocks until both pumps stop and
// always completes the call in the store, even on a failed handshake.
// kind is "discovery" or "booking".
func (b *Bridge) Run(ctx context.Context, phone PhoneConn, callID, campaignID, providerID, kind string) {
	logger := slog.With("call_id", callID, "campaign_id", campaignID, "provider_id", providerID)

	campaign, err := b.store.Campaign(campaignID)
	if err != nil {
		logger.Error("bridge cannot resolve campaign", "error", err)
		b.complete(callID, failedResult(providerID, callID, "campaign not found"))
		return
	}
	provider, ok := providerFromSnapshot(campaign, providerID)
	if !ok {
		logger.Error("bridge cannot resolve provider from campaign snapshot")
		b.complete(callID, failedResult(providerID, callID, "provider not in campaign snapshot"))
		return
	}

	var bookingOffer *models.SlotOffer
	if kind == "booking" {
		bookingOffer = firstRankedOffer(campaign, providerID)
	}

	session, err := b.dialer.Dial(ctx, voice.SessionFor(campaign, provider, kind, bookingOffer))
	if err != nil {
		logger.Error("agent session dial failed", "error", err)
		b.complete(callID, failedResult(providerID, callID, "agent session unavailable"))
		return
	}
	defer session.Close()

	cs := &callSession{
		bridge:     b,
		phone:      phone,
		agent:      session,
		callID:     callID,
		campaignID: campaignID,
		providerID: providerID,
		loc:        campaign.Request.TimeLocation(),
		logger:     logger,
	}

	pumpCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		defer cancel()
		if err := cs.pumpPhoneToAgent(pumpCtx); err != nil && pumpCtx.Err() == nil {
			cs.noteTransportError(fmt.Errorf("phone leg: %w", err))
		}
	}()
	go func() {
		defer wg.Done()
		defer cancel()
		err := cs.pumpAgentToPhone(pumpCtx)
		if err != nil && pumpCtx.Err() == nil &&
			websocket.CloseStatus(err) != websocket.StatusNormalClosure {
			cs.noteTransportError(fmt.Errorf("agent leg: %w", err))
		}
	}()
	wg.Wait()

	result := cs.result()
	logger.Info("bridge session ended",
		"outcome", result.Outcome,
		"offers", len(result.Offers))
	b.complete(callID, result)
}

func (b *Bridge) complete(callID string, result models.CallResult) {
	if !b.store.CompleteCall(callID, result) {
		slog.Debug("call already completed, dropping duplicate result", "call_id", callID)
	}
}

// callSession is the mutable per-call state shared by the two pumps.
type callSession struct {
	bridge     *Bridge
	phone      PhoneConn
	agent      voice.Session
	callID     string
	campaignID string
	providerID string
	loc        *time.Location
	logger     *slog.Logger

	mu           sync.Mutex
	streamSid    string
	transcript   []string
	offers       []models.SlotOffer
	outcomeHint  models.CallOutcome
	transportErr error
}

// pumpPhoneToAgent reads Twilio frames and forwards caller audio. Returns
// nil on a clean "stop" frame.
func (cs *callSession) pumpPhoneToAgent(ctx context.Context) error {
	for {
		data, err := cs.phone.Read(ctx)
		if err != nil {
			return err
		}
		var msg phoneMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			cs.logger.Warn("undecodable phone frame dropped", "error", err)
			continue
		}

		switch msg.Event {
		case "connected", "mark":
			// No action needed.
		case "start":
			if msg.Start != nil {
				cs.setStreamSid(msg.Start.StreamSid)
				cs.bridge.store.SetStreamSid(cs.callID, msg.Start.StreamSid)
			}
		case "media":
			if msg.Media == nil {
				continue
			}
			chunk, err := audio.MulawToAgentPCM(msg.Media.Payload)
			if err != nil {
				cs.logger.Warn("bad media payload dropped", "error", err)
				continue
			}
			if err := cs.agent.SendAudioChunk(ctx, chunk); err != nil {
				return fmt.Errorf("forward caller audio: %w", err)
			}
		case "stop":
			cs.logger.Debug("phone stream stopped")
			return nil
		default:
			cs.logger.Debug("unhandled phone event", "event", msg.Event)
		}
	}
}

// pumpAgentToPhone reads agent events, relays speech, answers pings and
// runs tool calls.
func (cs *callSession) pumpAgentToPhone(ctx context.Context) error {
	for {
		ev, err := cs.agent.ReadEvent(ctx)
		if err != nil {
			return err
		}

		switch ev.Type {
		case "audio":
			if ev.Audio == nil {
				continue
			}
			payload, err := audio.AgentPCMToMulaw(ev.Audio.AudioBase64)
			if err != nil {
				cs.logger.Warn("bad agent audio dropped", "error", err)
				continue
			}
			if err := cs.writePhoneJSON(ctx, newMediaMessage(cs.currentStreamSid(), payload)); err != nil {
				return fmt.Errorf("forward agent audio: %w", err)
			}
		case "ping":
			if ev.Ping != nil {
				if err := cs.agent.SendPong(ctx, ev.Ping.EventID); err != nil {
					return fmt.Errorf("answer ping: %w", err)
				}
			}
		case "user_transcript":
			if ev.UserTranscript != nil {
				cs.appendTranscript("Receptionist: " + ev.UserTranscript.UserTranscript)
			}
		case "agent_response":
			if ev.AgentResponse != nil {
				cs.appendTranscript("Agent: " + ev.AgentResponse.AgentResponse)
			}
		case "client_tool_call":
			if ev.ToolCall != nil {
				if err := cs.handleToolCall(ctx, ev.ToolCall); err != nil {
					return err
				}
			}
		case "interruption":
			if err := cs.writePhoneJSON(ctx, newClearMessage(cs.currentStreamSid())); err != nil {
				return fmt.Errorf("clear phone buffer: %w", err)
			}
		case "conversation_initiation_metadata":
			cs.logger.Debug("agent session initiated")
		default:
			cs.logger.Debug("unhandled agent event", "type", ev.Type)
		}
	}
}

// handleToolCall dispatches one tool invocation and replies with its result.
// log_event payloads are additionally mined for offers and an outcome hint.
func (cs *callSession) handleToolCall(ctx context.Context, call *voice.ClientToolCall) error {
	params := call.Parameters
	if params == nil {
		params = map[string]any{}
	}

	if call.ToolName == "log_event" {
		cs.recordLogEvent(params)
	}

	result, isError := cs.bridge.tools.Dispatch(ctx, call.ToolName, params, tools.Context{
		CampaignID: cs.campaignID,
		ProviderID: cs.providerID,
	})
	if err := cs.agent.SendToolResult(ctx, call.ToolCallID, result, isError); err != nil {
		return fmt.Errorf("send tool result: %w", err)
	}
	return nil
}

// recordLogEvent mines a log_event payload for offers and outcome hints.
// data may arrive as an object or a JSON string.
func (cs *callSession) recordLogEvent(params map[string]any) {
	data, ok := params["data"].(map[string]any)
	if !ok {
		if s, isStr := params["data"].(string); isStr {
			var parsed map[string]any
			if err := json.Unmarshal([]byte(s), &parsed); err == nil {
				data = parsed
				ok = true
			}
		}
	}
	if !ok {
		return
	}

	offers := extractOffers(data, cs.providerID, cs.loc)
	outcome, hasOutcome := extractOutcome(data)

	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.offers = append(cs.offers, offers...)
	if hasOutcome {
		cs.outcomeHint = outcome
	}
}

// result derives the CallResult once both pumps have stopped.
func (cs *callSession) result() models.CallResult {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	r := models.CallResult{
		ProviderID:        cs.providerID,
		CallID:            cs.callID,
		TranscriptSnippet: snippet(cs.transcript),
		Notes:             "Call completed at " + time.Now().UTC().Format(time.RFC3339),
	}

	// A SUCCESS hint without offers would break the "success implies
	// offers" invariant, so it falls through to the derived outcome.
	hint := cs.outcomeHint
	if hint == models.OutcomeSuccess && len(cs.offers) == 0 {
		hint = ""
	}

	switch {
	case hint != "":
		r.Outcome = hint
		if hint == models.OutcomeSuccess {
			r.Offers = cs.offers
		}
	case len(cs.offers) > 0:
		r.Outcome = models.OutcomeSuccess
		r.Offers = cs.offers
	case cs.transportErr != nil:
		r.Outcome = models.OutcomeFailed
		r.Notes = "Transport error: " + cs.transportErr.Error()
	default:
		r.Outcome = models.OutcomeCompletedNoMatch
	}
	return r
}

func (cs *callSession) noteTransportError(err error) {
	cs.logger.Warn("bridge transport error", "error", err)
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if cs.transportErr == nil {
		cs.transportErr = err
	}
}

func (cs *callSession) setStreamSid(sid string) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.streamSid = sid
}

func (cs *callSession) currentStreamSid() string {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.streamSid
}

func (cs *callSession) appendTranscript(line string) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.transcript = append(cs.transcript, line)
}

func (cs *callSession) writePhoneJSON(ctx context.Context, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, phoneWriteTimeout)
	defer cancel()
	return cs.phone.Write(writeCtx, data)
}

func snippet(lines []string) string {
	if len(lines) > transcriptKeepLines {
		lines = lines[len(lines)-transcriptKeepLines:]
	}
	s := strings.Join(lines, "\n")
	if len(s) > transcriptMaxChars {
		s = s[:transcriptMaxChars]
	}
	return s
}

func failedResult(providerID, callID, note string) models.CallResult {
	return models.CallResult{
		ProviderID: providerID,
		CallID:     callID,
		Outcome:    models.OutcomeFailed,
		Notes:      note,
	}
}

func providerFromSnapshot(c *models.Campaign, providerID string) (models.Provider, bool) {
	for _, p := range c.Providers {
		if p.ID == providerID {
			return p, true
		}
	}
	return models.Provider{}, false
}

func firstRankedOffer(c *models.Campaign, providerID string) *models.SlotOffer {
	for i := range c.Ranked {
		if c.Ranked[i].ProviderID == providerID {
			return c.Ranked[i].Clone()
		}
	}
	return nil
}

// WSPhoneConn adapts an accepted coder/websocket connection to PhoneConn.
type WSPhoneConn struct {
	Conn *websocket.Conn
}

func (w WSPhoneConn) Read(ctx context.Context) ([]byte, error) {
	_, data, err := w.Conn.Read(ctx)
	return data, err
}

func (w WSPhoneConn) Write(ctx context.Context, data []byte) error {
	return w.Conn.Write(ctx, websocket.MessageText, data)
}

func (w WSPhoneConn) Close() error {
	return w.Conn.Close(websocket.StatusNormalClosure, "")
}
