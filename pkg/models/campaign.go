// Package models contains the shared domain types for scheduling campaigns.
package models

import (
	"time"
)

// CampaignStatus represents the lifecycle state of a campaign.
type CampaignStatus string

const (
	CampaignStatusRunning   CampaignStatus = "running"
	CampaignStatusBooking   CampaignStatus = "booking"
	CampaignStatusBooked    CampaignStatus = "booked"
	CampaignStatusCompleted CampaignStatus = "completed"
	CampaignStatusFailed    CampaignStatus = "failed"
)

// Terminal reports whether no further transitions are allowed from s.
func (s CampaignStatus) Terminal() bool {
	switch s {
	case CampaignStatusBooked, CampaignStatusCompleted, CampaignStatusFailed:
		return true
	}
	return false
}

// CallMode selects how outbound calls are placed for a campaign.
type CallMode string

const (
	// CallModeAuto resolves to real or simulated from the server setting.
	CallModeAuto      CallMode = "auto"
	CallModeReal      CallMode = "real"
	CallModeSimulated CallMode = "simulated"
	// CallModeHybrid places a real call to the first provider and simulates the rest.
	CallModeHybrid CallMode = "hybrid"
)

// ValidCallMode reports whether m is one of the accepted modes.
func ValidCallMode(m CallMode) bool {
	switch m {
	case CallModeAuto, CallModeReal, CallModeSimulated, CallModeHybrid:
		return true
	}
	return false
}

// AppointmentRequest describes what the user wants booked. It is immutable
// once a campaign starts.
type AppointmentRequest struct {
	Service        string   `json:"service"`
	Location       string   `json:"location"`
	OriginLat      *float64 `json:"origin_lat,omitempty"`
	OriginLng      *float64 `json:"origin_lng,omitempty"`
	DateRangeStart time.Time `json:"date_range_start"`
	DateRangeEnd   time.Time `json:"date_range_end"` // exclusive
	DurationMin    int       `json:"duration_min"`

	// Preferences overrides scoring weights; keys: earliest_weight,
	// rating_weight, distance_weight, preference_weight.
	Preferences map[string]float64 `json:"preferences,omitempty"`

	MaxProviders      int      `json:"max_providers"`
	MaxParallel       int      `json:"max_parallel"`
	MaxTravelMinutes  int      `json:"max_travel_minutes"` // 0 = no limit
	ProviderIDs       []string `json:"provider_ids,omitempty"`
	UserID            string   `json:"user_id,omitempty"`
	TZ                string   `json:"tz"`
	CallMode          CallMode `json:"call_mode"`
	AutoBook          bool     `json:"auto_book"`
	ClientName        string   `json:"client_name,omitempty"`
	ClientPhone       string   `json:"client_phone,omitempty"`
}

// Normalize fills zero-valued optional fields with their defaults.
func (r *AppointmentRequest) Normalize() {
	if r.DurationMin == 0 {
		r.DurationMin = 30
	}
	if r.MaxProviders == 0 {
		r.MaxProviders = 15
	}
	if r.MaxParallel == 0 {
		r.MaxParallel = 5
	}
	if r.TZ == "" {
		r.TZ = "UTC"
	}
	if r.CallMode == "" {
		r.CallMode = CallModeAuto
	}
}

// Validate checks field constraints. Call Normalize first.
func (r *AppointmentRequest) Validate() error {
	if r.Service == "" {
		return NewValidationError("service", "must not be empty")
	}
	if !r.DateRangeEnd.After(r.DateRangeStart) {
		return NewValidationError("date_range_end", "must be after date_range_start")
	}
	if r.DurationMin <= 0 {
		return NewValidationError("duration_min", "must be positive")
	}
	if r.MaxProviders <= 0 {
		return NewValidationError("max_providers", "must be positive")
	}
	if r.MaxParallel <= 0 {
		return NewValidationError("max_parallel", "must be positive")
	}
	if r.MaxTravelMinutes < 0 {
		return NewValidationError("max_travel_minutes", "must not be negative")
	}
	if !ValidCallMode(r.CallMode) {
		return NewValidationError("call_mode", "must be one of auto, real, simulated, hybrid")
	}
	if _, err := time.LoadLocation(r.TZ); err != nil {
		return NewValidationError("tz", "unknown IANA timezone")
	}
	return nil
}

// TimeLocation resolves the request timezone, falling back to UTC.
func (r *AppointmentRequest) TimeLocation() *time.Location {
	loc, err := time.LoadLocation(r.TZ)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Origin returns the distance-matrix origin: "lat,lng" when coordinates are
// present, otherwise the free-text location.
func (r *AppointmentRequest) Origin() string {
	if r.OriginLat != nil && r.OriginLng != nil {
		return formatLatLng(*r.OriginLat, *r.OriginLng)
	}
	return r.Location
}

// Progress tracks call counts for a running campaign.
type Progress struct {
	TotalProviders  int `json:"total_providers"`
	InProgress      int `json:"in_progress"`
	CompletedCalls  int `json:"completed_calls"`
	SuccessfulCalls int `json:"successful_calls"`
	FailedCalls     int `json:"failed_calls"`
}

// BookingConfirmation records a confirmed appointment.
type BookingConfirmation struct {
	ProviderID      string    `json:"provider_id"`
	Start           time.Time `json:"start"`
	End             time.Time `json:"end"`
	ConfirmationRef string    `json:"confirmation_ref"`
	ConfirmedAt     time.Time `json:"confirmed_at"`
	Notes           string    `json:"notes,omitempty"`
	ClientName      string    `json:"client_name,omitempty"`
	ClientPhone     string    `json:"client_phone,omitempty"`
}

// Campaign is the aggregate state of one scheduling run.
type Campaign struct {
	CampaignID  string               `json:"campaign_id"`
	Request     AppointmentRequest   `json:"request"`
	Status      CampaignStatus       `json:"status"`
	Progress    Progress             `json:"progress"`
	Providers   []Provider           `json:"providers"`
	CallResults []CallResult         `json:"call_results"`
	Ranked      []SlotOffer          `json:"ranked"`
	Best        *SlotOffer           `json:"best,omitempty"`
	Booking     *BookingConfirmation `json:"booking,omitempty"`
	Debug       map[string]any       `json:"debug,omitempty"`
	CreatedAt   time.Time            `json:"created_at"`
	UpdatedAt   time.Time            `json:"updated_at"`
}

// Clone returns a deep copy. Store reads hand out clones so callers can
// never mutate shared state.
func (c *Campaign) Clone() *Campaign {
	if c == nil {
		return nil
	}
	out := *c
	out.Request = c.Request.clone()
	out.Providers = cloneProviders(c.Providers)
	out.CallResults = cloneCallResults(c.CallResults)
	out.Ranked = cloneOffers(c.Ranked)
	out.Best = c.Best.Clone()
	if c.Booking != nil {
		b := *c.Booking
		out.Booking = &b
	}
	out.Debug = deepCopyMap(c.Debug)
	return &out
}

func (r AppointmentRequest) clone() AppointmentRequest {
	out := r
	if r.OriginLat != nil {
		v := *r.OriginLat
		out.OriginLat = &v
	}
	if r.OriginLng != nil {
		v := *r.OriginLng
		out.OriginLng = &v
	}
	if r.Preferences != nil {
		out.Preferences = make(map[string]float64, len(r.Preferences))
		for k, v := range r.Preferences {
			out.Preferences[k] = v
		}
	}
	if r.ProviderIDs != nil {
		out.ProviderIDs = append([]string(nil), r.ProviderIDs...)
	}
	return out
}

func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return deepCopyMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = deepCopyValue(e)
		}
		return out
	default:
		return v
	}
}
