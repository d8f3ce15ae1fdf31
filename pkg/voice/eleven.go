// Package voice opens and speaks the conversational-agent session protocol.
// The production implementation is the ElevenLabs Convai WebSocket API; the
// bridge only depends on the Dialer/Session interfaces so tests can script
// agent behaviour.
package voice

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/coder/websocket"
)

const (
	signedURLEndpoint = "https://api.elevenlabs.io/v1/convai/conversation/get-signed-url"
	unsignedWSURL     = "wss://api.elevenlabs.io/v1/convai/conversation"

	// initTimeout bounds the wait for conversation_initiation_metadata.
	initTimeout = 15 * time.Second
	// writeTimeout bounds one WebSocket send, same discipline as the event
	// stream connections.
	writeTimeout = 10 * time.Second
)

// SessionConfig is the per-call agent configuration sent in the
// conversation initiation message.
type SessionConfig struct {
	Prompt       string
	FirstMessage string
	// DynamicVariables are exposed to the agent's prompt templates.
	DynamicVariables map[string]string
}

// ServerEvent is one decoded message from the agent.
type ServerEvent struct {
	Type string `json:"type"`

	Audio          *AudioEvent          `json:"audio_event,omitempty"`
	Ping           *PingEvent           `json:"ping_event,omitempty"`
	UserTranscript *UserTranscriptEvent `json:"user_transcription_event,omitempty"`
	AgentResponse  *AgentResponseEvent  `json:"agent_response_event,omitempty"`
	ToolCall       *ClientToolCall      `json:"client_tool_call,omitempty"`
}

// AudioEvent carries one chunk of agent speech (PCM16 16 kHz, base64).
type AudioEvent struct {
	AudioBase64 string `json:"audio_base_64"`
	EventID     int    `json:"event_id"`
}

// PingEvent must be answered with a pong carrying the same event id.
type PingEvent struct {
	EventID int `json:"event_id"`
}

// UserTranscriptEvent is the agent's transcription of the receptionist.
type UserTranscriptEvent struct {
	UserTranscript string `json:"user_transcript"`
}

// AgentResponseEvent is what the agent said.
type AgentResponseEvent struct {
	AgentResponse string `json:"agent_response"`
}

// ClientToolCall asks us to run a named tool and reply with its result.
type ClientToolCall struct {
	ToolName   string         `json:"tool_name"`
	ToolCallID string         `json:"tool_call_id"`
	Parameters map[string]any `json:"parameters"`
}

// Session is one live agent conversation.
type Session interface {
	// ReadEvent blocks for the next agent event. A transport close surfaces
	// as an error.
	ReadEvent(ctx context.Context) (*ServerEvent, error)
	// SendAudioChunk forwards one base64 PCM16 16 kHz chunk of caller audio.
	SendAudioChunk(ctx context.Context, payload string) error
	// SendPong answers a ping.
	SendPong(ctx context.Context, eventID int) error
	// SendToolResult answers a client_tool_call.
	SendToolResult(ctx context.Context, toolCallID string, result json.RawMessage, isError bool) error
	Close() error
}

// Dialer opens agent sessions.
type Dialer interface {
	Dial(ctx context.Context, cfg SessionConfig) (Session, error)
}

// ElevenDialer dials the ElevenLabs Convai WebSocket.
type ElevenDialer struct {
	apiKey     string
	agentID    string
	httpClient *http.Client
}

// NewElevenDialer builds the production dialer.
func NewElevenDialer(apiKey, agentID string) *ElevenDialer {
	if agentID == "" {
		panic("voice.NewElevenDialer: agent id is required")
	}
	return &ElevenDialer{
		apiKey:     apiKey,
		agentID:    agentID,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Dial connects, sends the initiation message, and waits for the agent's
// initiation metadata before returning the live session.
func (d *ElevenDialer) Dial(ctx context.Context, cfg SessionConfig) (Session, error) {
	wsURL := d.resolveURL(ctx)

	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial agent session: %w", err)
	}
	s := &elevenSession{conn: conn}

	init := map[string]any{
		"type": "conversation_initiation_client_data",
		"conversation_config_override": map[string]any{
			"agent": map[string]any{
				"prompt":        map[string]any{"prompt": cfg.Prompt},
				"first_message": cfg.FirstMessage,
			},
		},
	}
	if len(cfg.DynamicVariables) > 0 {
		init["dynamic_variables"] = cfg.DynamicVariables
	}
	if err := s.sendJSON(ctx, init); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("send session init: %w", err)
	}

	// The agent acknowledges with initiation metadata; anything else first
	// means the handshake is broken.
	initCtx, cancel := context.WithTimeout(ctx, initTimeout)
	defer cancel()
	for {
		ev, err := s.ReadEvent(initCtx)
		if err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("await session init: %w", err)
		}
		if ev.Type == "conversation_initiation_metadata" {
			return s, nil
		}
		slog.Debug("pre-init agent event ignored", "type", ev.Type)
	}
}

// resolveURL asks for a signed URL when an API key is configured, falling
// back to the unsigned agent URL (public agents).
func (d *ElevenDialer) resolveURL(ctx context.Context) string {
	unsigned := unsignedWSURL + "?agent_id=" + url.QueryEscape(d.agentID)
	if d.apiKey == "" {
		return unsigned
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		signedURLEndpoint+"?agent_id="+url.QueryEscape(d.agentID), nil)
	if err != nil {
		return unsigned
	}
	req.Header.Set("xi-api-key", d.apiKey)

	res, err := d.httpClient.Do(req)
	if err != nil {
		slog.Warn("signed url request failed, using unsigned agent url", "error", err)
		return unsigned
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		slog.Warn("signed url request rejected, using unsigned agent url", "status", res.StatusCode)
		return unsigned
	}

	var payload struct {
		SignedURL string `json:"signed_url"`
	}
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil || payload.SignedURL == "" {
		slog.Warn("signed url response unusable, using unsigned agent url", "error", err)
		return unsigned
	}
	return payload.SignedURL
}

type elevenSession struct {
	conn *websocket.Conn
}

func (s *elevenSession) ReadEvent(ctx context.Context) (*ServerEvent, error) {
	_, data, err := s.conn.Read(ctx)
	if err != nil {
		return nil, err
	}
	var ev ServerEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("decode agent event: %w", err)
	}
	return &ev, nil
}

func (s *elevenSession) SendAudioChunk(ctx context.Context, payload string) error {
	return s.sendJSON(ctx, map[string]string{"user_audio_chunk": payload})
}

func (s *elevenSession) SendPong(ctx context.Context, eventID int) error {
	return s.sendJSON(ctx, map[string]any{"type": "pong", "event_id": eventID})
}

func (s *elevenSession) SendToolResult(ctx context.Context, toolCallID string, result json.RawMessage, isError bool) error {
	return s.sendJSON(ctx, map[string]any{
		"type":         "client_tool_result",
		"tool_call_id": toolCallID,
		"result":       string(result),
		"is_error":     isError,
	})
}

func (s *elevenSession) Close() error {
	return s.conn.Close(websocket.StatusNormalClosure, "")
}

func (s *elevenSession) sendJSON(ctx context.Context, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return s.conn.Write(writeCtx, websocket.MessageText, data)
}
