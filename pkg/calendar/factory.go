package calendar

import (
	"log/slog"
	"time"

	"github.com/callpilot/callpilot/pkg/config"
)

// UserTokens resolves linked users to token sources. Implemented by the
// auth service; nil when OAuth is not configured.
type UserTokens interface {
	TokenSourceFor(userID string) (TokenSource, bool)
	AnyLinkedUser() (string, bool)
}

// Factory picks the busy source for a campaign: the user's linked calendar
// when one applies, else the service-account calendar when configured, else
// the deterministic mock.
type Factory struct {
	settings *config.Settings
	users    UserTokens
	google   *GoogleBusySource
}

// NewFactory wires the variant selection. users and google may be nil.
func NewFactory(settings *config.Settings, users UserTokens, google *GoogleBusySource) *Factory {
	if settings == nil {
		panic("calendar.NewFactory: settings is required")
	}
	return &Factory{settings: settings, users: users, google: google}
}

// SourceFor resolves the busy source for one campaign. userID may be empty;
// unless RequireUserIdentity is set, an empty id falls back to the first
// linked user's calendar (single-tenant convenience).
func (f *Factory) SourceFor(userID string, loc *time.Location) BusySource {
	if f.users != nil {
		if userID != "" {
			if ts, ok := f.users.TokenSourceFor(userID); ok {
				return NewUserBusySource(ts)
			}
			slog.Debug("campaign user has no linked calendar, using default source", "user_id", userID)
		} else if !f.settings.RequireUserIdentity {
			if id, ok := f.users.AnyLinkedUser(); ok {
				if ts, ok := f.users.TokenSourceFor(id); ok {
					slog.Debug("no user identity on campaign, borrowing first linked calendar", "user_id", id)
					return NewUserBusySource(ts)
				}
			}
		}
	}
	if f.google != nil {
		return f.google
	}
	return NewMock(loc)
}
