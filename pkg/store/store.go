// Package store keeps all campaign, call and token state behind a single
// write lock, with write-through persistence and snapshot reads.
package store

import (
	"encoding/hex"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/callpilot/callpilot/pkg/models"
)

// CallMapping links a telephony call id to its campaign and provider and
// carries the single-shot completion signal the call driver waits on.
type CallMapping struct {
	CallID     string
	CampaignID string
	ProviderID string
	StreamSid  string
	StartedAt  time.Time

	done      chan struct{}
	result    *models.CallResult
	completed bool
}

// Done is closed exactly once, after the result is deposited.
func (m *CallMapping) Done() <-chan struct{} {
	return m.done
}

// Result is valid only after Done is closed.
func (m *CallMapping) Result() *models.CallResult {
	return m.result
}

// Store is the single source of truth for campaigns, in-flight calls and
// OAuth tokens. Every mutation happens under one mutex and is written
// through to the sink before the lock is released; reads return deep copies.
type Store struct {
	mu        sync.Mutex
	campaigns map[string]*models.Campaign
	calls     map[string]*CallMapping
	tokens    map[string]*models.OAuthToken
	sink      Sink
}

// New builds a store on the given sink without loading prior state.
func New(sink Sink) *Store {
	if sink == nil {
		panic("store.New: sink is required")
	}
	return &Store{
		campaigns: make(map[string]*models.Campaign),
		calls:     make(map[string]*CallMapping),
		tokens:    make(map[string]*models.OAuthToken),
		sink:      sink,
	}
}

// NewMemory builds a store with no durable persistence.
func NewMemory() *Store {
	return New(&memorySink{})
}

// Open loads persisted state from dir. Campaigns that were mid-flight when
// the process died (running or booking) are downgraded to failed because
// their goroutines are gone.
func Open(dir string) (*Store, error) {
	sink, err := NewFileSink(dir)
	if err != nil {
		return nil, err
	}
	s := New(sink)

	campaigns, err := sink.ReadCampaigns()
	if err != nil {
		return nil, err
	}
	downgraded := 0
	for id, c := range campaigns {
		if c.Status == models.CampaignStatusRunning || c.Status == models.CampaignStatusBooking {
			c.Status = models.CampaignStatusFailed
			c.Progress.InProgress = 0
			c.UpdatedAt = time.Now().UTC()
			downgraded++
		}
		s.campaigns[id] = c
	}
	if downgraded > 0 {
		slog.Warn("downgraded interrupted campaigns to failed", "count", downgraded)
		if err := sink.WriteCampaigns(s.campaigns); err != nil {
			slog.Error("failed to persist downgraded campaigns", "error", err)
		}
	}

	tokens, err := sink.ReadTokens()
	if err != nil {
		return nil, err
	}
	for id, t := range tokens {
		s.tokens[id] = t
	}

	slog.Info("store opened", "campaigns", len(s.campaigns), "oauth_tokens", len(s.tokens))
	return s, nil
}

// CreateCampaign registers a new campaign in status running and returns a
// snapshot of it.
func (s *Store) CreateCampaign(req models.AppointmentRequest) *models.Campaign {
	now := time.Now().UTC()
	c := &models.Campaign{
		CampaignID: newCampaignID(),
		Request:    req,
		Status:     models.CampaignStatusRunning,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.campaigns[c.CampaignID] = c
	s.persistCampaignsLocked()
	return c.Clone()
}

// Campaign returns a snapshot of the campaign or ErrNotFound.
func (s *Store) Campaign(id string) (*models.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.campaigns[id]
	if !ok {
		return nil, ErrNotFound
	}
	return c.Clone(), nil
}

// UpdateCampaign applies mutate to the live campaign under the write lock,
// bumps updated_at, persists, and returns a fresh snapshot. The mutate
// function must not retain references past its return.
func (s *Store) UpdateCampaign(id string, mutate func(*models.Campaign)) (*models.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.campaigns[id]
	if !ok {
		return nil, ErrNotFound
	}
	mutate(c)
	c.UpdatedAt = time.Now().UTC()
	s.persistCampaignsLocked()
	return c.Clone(), nil
}

// RegisterCall records an in-flight call before the telephony request
// returns, so webhook and media-stream handlers can resolve it immediately.
func (s *Store) RegisterCall(callID, campaignID, providerID string) *CallMapping {
	m := &CallMapping{
		CallID:     callID,
		CampaignID: campaignID,
		ProviderID: providerID,
		StartedAt:  time.Now().UTC(),
		done:       make(chan struct{}),
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[callID] = m
	return m
}

// CallByID returns the live mapping for an in-flight call.
func (s *Store) CallByID(callID string) (*CallMapping, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.calls[callID]
	return m, ok
}

// SetStreamSid records the Twilio media stream id on the mapping.
func (s *Store) SetStreamSid(callID, streamSid string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.calls[callID]; ok {
		m.StreamSid = streamSid
	}
}

// CompleteCall deposits the call result and closes the completion channel.
// The first completion wins; later calls are no-ops returning false.
func (s *Store) CompleteCall(callID string, result models.CallResult) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.calls[callID]
	if !ok || m.completed {
		return false
	}
	r := result
	m.result = &r
	m.completed = true
	close(m.done)
	return true
}

// SaveToken upserts a user's OAuth token.
func (s *Store) SaveToken(tok *models.OAuthToken) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[tok.UserID] = tok.Clone()
	s.persistTokensLocked()
}

// Token returns a snapshot of the user's token or ErrNotFound.
func (s *Store) Token(userID string) (*models.OAuthToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tokens[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return t.Clone(), nil
}

// DeleteToken removes a user's token, reporting whether it existed.
func (s *Store) DeleteToken(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tokens[userID]; !ok {
		return false
	}
	delete(s.tokens, userID)
	s.persistTokensLocked()
	return true
}

// FirstUserID returns any linked user id, for the single-tenant fallback
// when a campaign carries no user identity.
func (s *Store) FirstUserID() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id := range s.tokens {
		return id, true
	}
	return "", false
}

// TokenCount returns the number of linked users.
func (s *Store) TokenCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tokens)
}

func (s *Store) persistCampaignsLocked() {
	if err := s.sink.WriteCampaigns(s.campaigns); err != nil {
		slog.Error("failed to persist campaigns", "error", err)
	}
}

func (s *Store) persistTokensLocked() {
	if err := s.sink.WriteTokens(s.tokens); err != nil {
		slog.Error("failed to persist oauth tokens", "error", err)
	}
}

func newCampaignID() string {
	u := uuid.New()
	return hex.EncodeToString(u[:])[:12]
}
