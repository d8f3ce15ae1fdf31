package models

import "time"

// GoogleTokenURI is the default OAuth token endpoint for stored credentials.
const GoogleTokenURI = "https://oauth2.googleapis.com/token"

// CalendarReadonlyScope is the default scope stored with linked tokens.
const CalendarReadonlyScope = "https://www.googleapis.com/auth/calendar.readonly"

// OAuthToken holds a user's Google credentials for calendar access.
// Refreshes replace AccessToken (and sometimes RefreshToken) in place.
type OAuthToken struct {
	UserID       string     `json:"user_id"`
	AccessToken  string     `json:"access_token"`
	RefreshToken string     `json:"refresh_token,omitempty"`
	TokenURI     string     `json:"token_uri"`
	Scopes       []string   `json:"scopes"`
	Expiry       *time.Time `json:"expiry,omitempty"`
	LinkedAt     time.Time  `json:"linked_at"`
}

// NewOAuthToken builds a token with endpoint and scope defaults applied.
func NewOAuthToken(userID, accessToken, refreshToken string) *OAuthToken {
	return &OAuthToken{
		UserID:       userID,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenURI:     GoogleTokenURI,
		Scopes:       []string{CalendarReadonlyScope},
		LinkedAt:     time.Now().UTC(),
	}
}

// Clone returns a deep copy, nil-safe.
func (t *OAuthToken) Clone() *OAuthToken {
	if t == nil {
		return nil
	}
	out := *t
	if t.Scopes != nil {
		out.Scopes = append([]string(nil), t.Scopes...)
	}
	if t.Expiry != nil {
		e := *t.Expiry
		out.Expiry = &e
	}
	return &out
}
