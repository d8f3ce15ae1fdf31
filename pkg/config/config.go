// Package config holds runtime settings loaded from the environment.
package config

import (
	"os"
	"strconv"
	"time"
)

// Settings is the full server configuration. Defaults suit local
// development with simulated calls and the mock calendar.
type Settings struct {
	// ListenAddr is the HTTP bind address.
	ListenAddr string

	// PublicBaseURL is the externally reachable base URL, used to build
	// Twilio webhook and media-stream URLs.
	PublicBaseURL string

	// DataDir holds the persisted JSON state (campaigns, OAuth tokens).
	DataDir string

	// LogLevel is one of debug, info, warn, error.
	LogLevel string
	// LogFormat is "json" or "text".
	LogFormat string

	// AllowAllCORS opens the API to any origin (development default).
	AllowAllCORS bool

	// SimulatedCalls is the boot value of the runtime call-mode toggle:
	// campaigns in auto mode simulate calls when true.
	SimulatedCalls bool

	// SimTimeScale multiplies every simulated delay. 1.0 keeps realistic
	// call pacing; tests shrink it to run in milliseconds.
	SimTimeScale float64

	// SimulatedCallTimeout bounds one simulated discovery call.
	SimulatedCallTimeout time.Duration
	// RealCallTimeout bounds one real discovery call end to end.
	RealCallTimeout time.Duration
	// BookingAttemptTimeout bounds one booking attempt in phase two.
	BookingAttemptTimeout time.Duration

	// Twilio credentials for real outbound calls.
	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioCallerID   string

	// ElevenLabs conversational agent credentials.
	ElevenLabsAPIKey  string
	ElevenLabsAgentID string

	// UseRealCalendar switches the service-account Google calendar on when
	// no user token applies.
	UseRealCalendar       bool
	GoogleCredentialsJSON string
	GoogleCalendarID      string

	// Google OAuth client for linking user calendars.
	GoogleOAuthClientID     string
	GoogleOAuthClientSecret string
	GoogleOAuthRedirectURI  string

	// FrontendURL receives the OAuth callback redirect.
	FrontendURL string

	// RequireUserIdentity disables the single-tenant convenience of falling
	// back to the first stored token when a campaign has no user_id.
	RequireUserIdentity bool

	// UsePlaces switches provider search to the Google Places API.
	UsePlaces      bool
	PlacesAPIKey   string
	// UseDistanceMatrix switches travel estimates to the Distance Matrix API.
	UseDistanceMatrix bool
	MapsAPIKey        string
}

// Default returns development defaults.
func Default() *Settings {
	return &Settings{
		ListenAddr:            ":8000",
		PublicBaseURL:         "http://localhost:8000",
		DataDir:               "data",
		LogLevel:              "info",
		LogFormat:             "json",
		AllowAllCORS:          true,
		SimulatedCalls:        true,
		SimTimeScale:          1.0,
		SimulatedCallTimeout:  30 * time.Second,
		RealCallTimeout:       300 * time.Second,
		BookingAttemptTimeout: 30 * time.Second,
		GoogleCalendarID:      "primary",
		FrontendURL:           "http://localhost:3000",
	}
}

// LoadFromEnv returns defaults overridden by environment variables.
// Call godotenv.Load beforehand to pick up a .env file.
func LoadFromEnv() *Settings {
	s := Default()

	s.ListenAddr = getEnv("LISTEN_ADDR", s.ListenAddr)
	s.PublicBaseURL = getEnv("PUBLIC_BASE_URL", s.PublicBaseURL)
	s.DataDir = getEnv("DATA_DIR", s.DataDir)
	s.LogLevel = getEnv("LOG_LEVEL", s.LogLevel)
	s.LogFormat = getEnv("LOG_FORMAT", s.LogFormat)
	s.AllowAllCORS = getBool("ALLOW_ALL_CORS", s.AllowAllCORS)
	s.SimulatedCalls = getBool("SIMULATED_CALLS", s.SimulatedCalls)
	s.SimTimeScale = getFloat("SIM_TIME_SCALE", s.SimTimeScale)
	s.SimulatedCallTimeout = getDuration("SIMULATED_CALL_TIMEOUT", s.SimulatedCallTimeout)
	s.RealCallTimeout = getDuration("REAL_CALL_TIMEOUT", s.RealCallTimeout)
	s.BookingAttemptTimeout = getDuration("BOOKING_ATTEMPT_TIMEOUT", s.BookingAttemptTimeout)

	s.TwilioAccountSID = getEnv("TWILIO_ACCOUNT_SID", s.TwilioAccountSID)
	s.TwilioAuthToken = getEnv("TWILIO_AUTH_TOKEN", s.TwilioAuthToken)
	s.TwilioCallerID = getEnv("TWILIO_CALLER_ID", s.TwilioCallerID)

	s.ElevenLabsAPIKey = getEnv("ELEVENLABS_API_KEY", s.ElevenLabsAPIKey)
	s.ElevenLabsAgentID = getEnv("ELEVENLABS_AGENT_ID", s.ElevenLabsAgentID)

	s.UseRealCalendar = getBool("USE_REAL_CALENDAR", s.UseRealCalendar)
	s.GoogleCredentialsJSON = getEnv("GOOGLE_CREDENTIALS_JSON", s.GoogleCredentialsJSON)
	s.GoogleCalendarID = getEnv("GOOGLE_CALENDAR_ID", s.GoogleCalendarID)

	s.GoogleOAuthClientID = getEnv("GOOGLE_OAUTH_CLIENT_ID", s.GoogleOAuthClientID)
	s.GoogleOAuthClientSecret = getEnv("GOOGLE_OAUTH_CLIENT_SECRET", s.GoogleOAuthClientSecret)
	s.GoogleOAuthRedirectURI = getEnv("GOOGLE_OAUTH_REDIRECT_URI", s.GoogleOAuthRedirectURI)
	s.FrontendURL = getEnv("FRONTEND_URL", s.FrontendURL)
	s.RequireUserIdentity = getBool("REQUIRE_USER_IDENTITY", s.RequireUserIdentity)

	s.UsePlaces = getBool("USE_GOOGLE_PLACES", s.UsePlaces)
	s.PlacesAPIKey = getEnv("GOOGLE_PLACES_API_KEY", s.PlacesAPIKey)
	s.UseDistanceMatrix = getBool("USE_GOOGLE_DISTANCE", s.UseDistanceMatrix)
	s.MapsAPIKey = getEnv("GOOGLE_MAPS_API_KEY", s.MapsAPIKey)

	return s
}

// OAuthConfigured reports whether the Google OAuth client is usable.
func (s *Settings) OAuthConfigured() bool {
	return s.GoogleOAuthClientID != "" && s.GoogleOAuthClientSecret != "" && s.GoogleOAuthRedirectURI != ""
}

// TwilioConfigured reports whether real calls can be placed.
func (s *Settings) TwilioConfigured() bool {
	return s.TwilioAccountSID != "" && s.TwilioAuthToken != "" && s.TwilioCallerID != ""
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func getFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
