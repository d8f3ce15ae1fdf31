// Package auth implements the Google OAuth link flow for user calendars:
// authorize URL, code exchange, token storage, serialized refresh, a live
// connectivity probe and unlink with best-effort revocation.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/callpilot/callpilot/pkg/calendar"
	"github.com/callpilot/callpilot/pkg/config"
	"github.com/callpilot/callpilot/pkg/models"
	"github.com/callpilot/callpilot/pkg/store"
)

// ErrNotConfigured means the Google OAuth client credentials are absent.
var ErrNotConfigured = errors.New("google oauth is not configured")

const googleRevokeURL = "https://oauth2.googleapis.com/revoke"

// probeFunc fetches busy intervals for the verify endpoint; swapped in tests.
type probeFunc func(ctx context.Context, ts calendar.TokenSource, from, to time.Time) ([]calendar.Interval, error)

// Service owns linked user calendars. It implements calendar.UserTokens so
// the calendar factory can resolve a campaign's user to a busy source.
type Service struct {
	settings   *config.Settings
	store      *store.Store
	oauth      *oauth2.Config
	httpClient *http.Client
	revokeURL  string
	probe      probeFunc

	// mu guards userMu; each per-user mutex serializes token refreshes so
	// concurrent calls do not race Google with the same refresh token.
	mu     sync.Mutex
	userMu map[string]*sync.Mutex
}

// NewService wires the OAuth flow. The service still constructs when OAuth is
// not configured; link operations then return ErrNotConfigured.
func NewService(settings *config.Settings, st *store.Store) *Service {
	if settings == nil || st == nil {
		panic("auth.NewService: settings and store are required")
	}
	s := &Service{
		settings: settings,
		store:    st,
		oauth: &oauth2.Config{
			ClientID:     settings.GoogleOAuthClientID,
			ClientSecret: settings.GoogleOAuthClientSecret,
			RedirectURL:  settings.GoogleOAuthRedirectURI,
			Scopes:       []string{models.CalendarReadonlyScope},
			Endpoint:     google.Endpoint,
		},
		httpClient: &http.Client{Timeout: 15 * time.Second},
		revokeURL:  googleRevokeURL,
		userMu:     map[string]*sync.Mutex{},
	}
	s.probe = func(ctx context.Context, ts calendar.TokenSource, from, to time.Time) ([]calendar.Interval, error) {
		return calendar.NewUserBusySource(ts).BusyIntervals(ctx, from, to)
	}
	return s
}

// AuthorizeURL builds the consent URL for one user. The user id rides along
// as the OAuth state so the callback knows whose token it received.
func (s *Service) AuthorizeURL(userID string) (string, error) {
	if !s.settings.OAuthConfigured() {
		return "", ErrNotConfigured
	}
	return s.oauth.AuthCodeURL(userID,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent")), nil
}

// HandleCallback exchanges the authorization code and stores the credentials
// under the user id carried in state.
func (s *Service) HandleCallback(ctx context.Context, code, state string) error {
	if !s.settings.OAuthConfigured() {
		return ErrNotConfigured
	}
	tok, err := s.oauth.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("oauth code exchange failed: %w", err)
	}

	stored := models.NewOAuthToken(state, tok.AccessToken, tok.RefreshToken)
	if tok.RefreshToken == "" {
		// Google omits the refresh token on repeat consent; keep the one we
		// already have so the link survives.
		if prev, err := s.store.Token(state); err == nil {
			stored.RefreshToken = prev.RefreshToken
			stored.LinkedAt = prev.LinkedAt
		}
	}
	if !tok.Expiry.IsZero() {
		e := tok.Expiry.UTC()
		stored.Expiry = &e
	}
	s.store.SaveToken(stored)
	slog.Info("google calendar linked", "user_id", state)
	return nil
}

// Status returns the stored token for the user, or store.ErrNotFound.
func (s *Service) Status(userID string) (*models.OAuthToken, error) {
	return s.store.Token(userID)
}

// Unlink revokes the credentials at Google (best effort) and deletes them
// locally. Returns store.ErrNotFound when the user was never linked.
func (s *Service) Unlink(ctx context.Context, userID string) error {
	tok, err := s.store.Token(userID)
	if err != nil {
		return err
	}

	revoke := tok.RefreshToken
	if revoke == "" {
		revoke = tok.AccessToken
	}
	if revoke != "" {
		if err := s.revokeToken(ctx, revoke); err != nil {
			slog.Warn("token revocation failed, deleting locally anyway",
				"user_id", userID, "error", err)
		}
	}
	s.store.DeleteToken(userID)
	slog.Info("google calendar unlinked", "user_id", userID)
	return nil
}

func (s *Service) revokeToken(ctx context.Context, token string) error {
	form := url.Values{"token": {token}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.revokeURL,
		strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	res, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	io.Copy(io.Discard, res.Body)
	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("revoke endpoint returned status %d", res.StatusCode)
	}
	return nil
}

// VerifyResult is the outcome of a live calendar connectivity probe.
type VerifyResult struct {
	Connected        bool       `json:"connected"`
	Reason           string     `json:"reason,omitempty"`
	Message          string     `json:"message"`
	LinkedAt         *time.Time `json:"linked_at,omitempty"`
	BusyBlocksNext24 *int       `json:"upcoming_busy_blocks_24h,omitempty"`
}

// Verify performs a real FreeBusy query over the next 24 hours, exercising
// the stored token (including the single-refresh-on-401 path).
func (s *Service) Verify(ctx context.Context, userID string) VerifyResult {
	tok, err := s.store.Token(userID)
	if err != nil {
		return VerifyResult{
			Reason:  "not_linked",
			Message: "No Google Calendar is linked for this user.",
		}
	}
	linkedAt := tok.LinkedAt

	now := time.Now().UTC()
	busy, err := s.probe(ctx, s.tokenSource(userID), now, now.Add(24*time.Hour))
	if err != nil {
		return VerifyResult{
			Reason:   "probe_failed",
			Message:  "The linked calendar could not be queried: " + err.Error(),
			LinkedAt: &linkedAt,
		}
	}
	n := len(busy)
	return VerifyResult{
		Connected:        true,
		Message:          "Google Calendar is connected and responding.",
		LinkedAt:         &linkedAt,
		BusyBlocksNext24: &n,
	}
}

// TokenSourceFor implements calendar.UserTokens.
func (s *Service) TokenSourceFor(userID string) (calendar.TokenSource, bool) {
	if _, err := s.store.Token(userID); err != nil {
		return nil, false
	}
	return s.tokenSource(userID), true
}

// AnyLinkedUser implements calendar.UserTokens.
func (s *Service) AnyLinkedUser() (string, bool) {
	return s.store.FirstUserID()
}

func (s *Service) tokenSource(userID string) calendar.TokenSource {
	return &userTokenSource{svc: s, userID: userID}
}

// userTokenSource adapts one user's stored credentials to the calendar
// package's TokenSource contract.
type userTokenSource struct {
	svc    *Service
	userID string
}

func (u *userTokenSource) AccessToken(_ context.Context) (string, error) {
	tok, err := u.svc.store.Token(u.userID)
	if err != nil {
		return "", fmt.Errorf("user %s has no linked calendar", u.userID)
	}
	return tok.AccessToken, nil
}

func (u *userTokenSource) RefreshAccessToken(ctx context.Context) (string, error) {
	return u.svc.refreshAccessToken(ctx, u.userID)
}

// refreshAccessToken exchanges the user's refresh token for a new access
// token and saves it in place. Refreshes for the same user are serialized.
func (s *Service) refreshAccessToken(ctx context.Context, userID string) (string, error) {
	lock := s.lockFor(userID)
	lock.Lock()
	defer lock.Unlock()

	tok, err := s.store.Token(userID)
	if err != nil {
		return "", fmt.Errorf("user %s has no linked calendar", userID)
	}
	if tok.RefreshToken == "" {
		return "", errors.New("stored credentials have no refresh token")
	}

	form := url.Values{
		"client_id":     {s.settings.GoogleOAuthClientID},
		"client_secret": {s.settings.GoogleOAuthClientSecret},
		"refresh_token": {tok.RefreshToken},
		"grant_type":    {"refresh_token"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tok.TokenURI,
		strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	res, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("token refresh request failed: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		io.Copy(io.Discard, res.Body)
		return "", fmt.Errorf("token refresh returned status %d", res.StatusCode)
	}

	var payload struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int    `json:"expires_in"`
	}
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("parse token refresh response: %w", err)
	}
	if payload.AccessToken == "" {
		return "", errors.New("token refresh response had no access_token")
	}

	tok.AccessToken = payload.AccessToken
	if payload.RefreshToken != "" {
		tok.RefreshToken = payload.RefreshToken
	}
	if payload.ExpiresIn > 0 {
		e := time.Now().UTC().Add(time.Duration(payload.ExpiresIn) * time.Second)
		tok.Expiry = &e
	}
	s.store.SaveToken(tok)
	slog.Debug("access token refreshed", "user_id", userID)
	return payload.AccessToken, nil
}

func (s *Service) lockFor(userID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.userMu[userID]
	if !ok {
		lock = &sync.Mutex{}
		s.userMu[userID] = lock
	}
	return lock
}
