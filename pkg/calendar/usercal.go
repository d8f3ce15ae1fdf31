package calendar

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const userFreeBusyURL = "https://www.googleapis.com/calendar/v3/freeBusy"

// TokenSource supplies a user's current access token and can refresh it.
// Refreshes are expected to be serialized per user by the implementation.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
	// RefreshAccessToken exchanges the refresh token and returns the new
	// access token.
	RefreshAccessToken(ctx context.Context) (string, error)
}

// UserBusySource queries the primary calendar of a linked user over REST.
// A 401 triggers exactly one token refresh and one retry; any further
// failure is ErrCalendarUnavailable.
type UserBusySource struct {
	tokens     TokenSource
	httpClient *http.Client
	url        string
}

// NewUserBusySource builds the user-token variant.
func NewUserBusySource(tokens TokenSource) *UserBusySource {
	if tokens == nil {
		panic("calendar.NewUserBusySource: tokens is required")
	}
	return &UserBusySource{
		tokens:     tokens,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		url:        userFreeBusyURL,
	}
}

func (u *UserBusySource) BusyIntervals(ctx context.Context, from, to time.Time) ([]Interval, error) {
	token, err := u.tokens.AccessToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: no access token: %v", ErrCalendarUnavailable, err)
	}

	intervals, status, err := u.query(ctx, token, from, to)
	if err != nil {
		return nil, err
	}
	if status == http.StatusUnauthorized {
		token, err = u.tokens.RefreshAccessToken(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: token refresh failed: %v", ErrCalendarUnavailable, err)
		}
		intervals, status, err = u.query(ctx, token, from, to)
		if err != nil {
			return nil, err
		}
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("%w: freebusy returned status %d", ErrCalendarUnavailable, status)
	}
	return intervals, nil
}

func (u *UserBusySource) query(ctx context.Context, token string, from, to time.Time) ([]Interval, int, error) {
	body, err := json.Marshal(map[string]any{
		"timeMin": from.Format(time.RFC3339),
		"timeMax": to.Format(time.RFC3339),
		"items":   []map[string]string{{"id": "primary"}},
	})
	if err != nil {
		return nil, 0, fmt.Errorf("%w: marshal freebusy request: %v", ErrCalendarUnavailable, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.url, bytes.NewReader(body))
	if err != nil {
		return nil, 0, fmt.Errorf("%w: build freebusy request: %v", ErrCalendarUnavailable, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	res, err := u.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: freebusy request: %v", ErrCalendarUnavailable, err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		io.Copy(io.Discard, res.Body)
		return nil, res.StatusCode, nil
	}

	var payload struct {
		Calendars map[string]struct {
			Busy []struct {
				Start string `json:"start"`
				End   string `json:"end"`
			} `json:"busy"`
		} `json:"calendars"`
	}
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		return nil, res.StatusCode, fmt.Errorf("%w: parse freebusy response: %v", ErrCalendarUnavailable, err)
	}
	primary, ok := payload.Calendars["primary"]
	if !ok {
		return nil, res.StatusCode, fmt.Errorf("%w: primary calendar missing from response", ErrCalendarUnavailable)
	}

	out := make([]Interval, 0, len(primary.Busy))
	for _, b := range primary.Busy {
		start, err := time.Parse(time.RFC3339, b.Start)
		if err != nil {
			return nil, res.StatusCode, fmt.Errorf("%w: bad busy start %q", ErrCalendarUnavailable, b.Start)
		}
		end, err := time.Parse(time.RFC3339, b.End)
		if err != nil {
			return nil, res.StatusCode, fmt.Errorf("%w: bad busy end %q", ErrCalendarUnavailable, b.End)
		}
		out = append(out, Interval{Start: start, End: end})
	}
	return out, res.StatusCode, nil
}
