// Package swarm drives scheduling campaigns: it resolves providers, fans
// provider calls out under a concurrency bound, ranks the collected offers
// and, when asked, calls the best providers back to book one.
package swarm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/callpilot/callpilot/pkg/calendar"
	"github.com/callpilot/callpilot/pkg/config"
	"github.com/callpilot/callpilot/pkg/directory"
	"github.com/callpilot/callpilot/pkg/distance"
	"github.com/callpilot/callpilot/pkg/models"
	"github.com/callpilot/callpilot/pkg/scoring"
	"github.com/callpilot/callpilot/pkg/store"
	"github.com/callpilot/callpilot/pkg/telephony"
)

var (
	// ErrProviderSearchFailed aborts discovery; the campaign is marked failed.
	ErrProviderSearchFailed = errors.New("provider search failed")
	// ErrSlotNotInRanked rejects a confirm request for a slot the campaign
	// never ranked.
	ErrSlotNotInRanked = errors.New("slot not in ranked offers")
	// ErrSlotConflict rejects a confirm request for a slot that is no longer
	// free on the user's calendar.
	ErrSlotConflict = errors.New("slot conflicts with calendar")
)

// bookingAttemptLimit caps how many ranked offers phase two tries.
const bookingAttemptLimit = 3

// ManagerConfig wires a Manager. Caller may be nil in simulated-only
// deployments.
type ManagerConfig struct {
	Store     *store.Store
	Directory directory.Directory
	Registry  *directory.Registry
	Distance  distance.Estimator
	Calendars CalendarResolver
	Caller    telephony.Caller
	Settings  *config.Settings
	Toggle    *config.CallModeToggle
}

// Manager runs the two-phase campaign state machine. Status transitions are
// single-writer: only the goroutine inside Run advances them.
type Manager struct {
	store     *store.Store
	directory directory.Directory
	registry  *directory.Registry
	distance  distance.Estimator
	calendars CalendarResolver
	caller    telephony.Caller
	settings  *config.Settings
	toggle    *config.CallModeToggle

	// Drivers are fields so tests can script call behaviour.
	simulatedCall    CallFunc
	realCall         CallFunc
	simulatedBooking BookingFunc
	realBooking      BookingFunc
}

// NewManager builds the campaign manager.
func NewManager(cfg ManagerConfig) *Manager {
	if cfg.Store == nil {
		panic("swarm.NewManager: store is required")
	}
	if cfg.Directory == nil || cfg.Registry == nil {
		panic("swarm.NewManager: directory and registry are required")
	}
	if cfg.Distance == nil {
		panic("swarm.NewManager: distance estimator is required")
	}
	if cfg.Calendars == nil {
		panic("swarm.NewManager: calendar resolver is required")
	}
	if cfg.Settings == nil || cfg.Toggle == nil {
		panic("swarm.NewManager: settings and toggle are required")
	}
	return &Manager{
		store:            cfg.Store,
		directory:        cfg.Directory,
		registry:         cfg.Registry,
		distance:         cfg.Distance,
		calendars:        cfg.Calendars,
		caller:           cfg.Caller,
		settings:         cfg.Settings,
		toggle:           cfg.Toggle,
		simulatedCall:    SimulatedCall,
		realCall:         RealCall,
		simulatedBooking: SimulatedBooking,
		realBooking:      RealBooking,
	}
}

// ResolveCallMode maps "auto" to the server's runtime default; explicit
// modes pass through.
func ResolveCallMode(mode models.CallMode, toggle *config.CallModeToggle) models.CallMode {
	if mode != models.CallModeAuto {
		return mode
	}
	if toggle.Simulated() {
		return models.CallModeSimulated
	}
	return models.CallModeReal
}

// Run drives one campaign from running to a terminal state. It returns an
// error only when the campaign does not exist; every per-call failure is
// absorbed into the campaign record.
func (m *Manager) Run(ctx context.Context, campaignID string) error {
	campaign, err := m.store.Campaign(campaignID)
	if err != nil {
		return err
	}
	logger := slog.With("campaign_id", campaignID)
	mode := ResolveCallMode(campaign.Request.CallMode, m.toggle)
	logger.Info("campaign discovery started",
		"service", campaign.Request.Service,
		"location", campaign.Request.Location,
		"mode", mode)

	providers, usedCache, err := m.resolveProviders(ctx, campaign)
	if err != nil {
		logger.Error("provider resolution failed", "error", err)
		m.finish(campaignID, models.CampaignStatusFailed, map[string]any{"error": err.Error()})
		return nil
	}
	providers = m.applyTravelFilter(ctx, campaign, providers)

	tracker := newProgressTracker(len(providers))
	campaign, err = m.store.UpdateCampaign(campaignID, func(c *models.Campaign) {
		c.Providers = providers
		c.Progress = tracker.snapshot()
		if c.Debug == nil {
			c.Debug = map[string]any{}
		}
		c.Debug["provider_source"] = map[bool]string{true: "id_cache", false: "search"}[usedCache]
		c.Debug["effective_call_mode"] = string(mode)
	})
	if err != nil {
		return err
	}

	if len(providers) == 0 {
		logger.Warn("no providers matched the request")
		m.finish(campaignID, models.CampaignStatusCompleted, map[string]any{"note": "no providers matched the request"})
		return nil
	}

	offers := m.fanOut(ctx, campaign, providers, mode, tracker)

	ranked := m.rankAndPublish(ctx, campaignID, campaign, providers, offers)

	if campaign.Request.AutoBook && len(ranked) > 0 {
		m.runBookingPhase(ctx, campaign, mode, ranked)
		return nil
	}

	final := models.CampaignStatusCompleted
	if len(ranked) == 0 {
		if snapshot, err := m.store.Campaign(campaignID); err == nil && discoveryFruitless(snapshot.CallResults) {
			final = models.CampaignStatusFailed
		}
	}
	m.setStatus(campaignID, final)
	logger.Info("campaign finished", "status", final, "ranked_offers", len(ranked))
	return nil
}

// discoveryFruitless reports whether every call ended without even a
// completed conversation that could have matched: refusals and failures
// only. A COMPLETED_NO_MATCH means the provider was reachable and the
// campaign merely found no workable slot, which is a completed run.
func discoveryFruitless(results []models.CallResult) bool {
	if len(results) == 0 {
		return false
	}
	for _, r := range results {
		switch r.Outcome {
		case models.OutcomeFailed, models.OutcomeNoAnswer, models.OutcomeBusy, models.OutcomeNoSlots:
		default:
			return false
		}
	}
	return true
}

// resolveProviders returns the campaign's provider snapshot. An allow-list
// fully present in the by-id cache skips the directory search, so repeat
// campaigns see the exact providers they saw before.
func (m *Manager) resolveProviders(ctx context.Context, campaign *models.Campaign) ([]models.Provider, bool, error) {
	req := campaign.Request

	if len(req.ProviderIDs) > 0 {
		if cached, ok := m.registry.GetAll(req.ProviderIDs); ok {
			return capProviders(cached, req.MaxProviders), true, nil
		}
	}

	found, err := m.directory.Search(ctx, req.Service, req.Location, req.OriginLat, req.OriginLng)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrProviderSearchFailed, err)
	}

	if len(req.ProviderIDs) > 0 {
		allowed := make(map[string]bool, len(req.ProviderIDs))
		for _, id := range req.ProviderIDs {
			allowed[id] = true
		}
		filtered := found[:0]
		for _, p := range found {
			if allowed[p.ID] {
				filtered = append(filtered, p)
			}
		}
		found = filtered
	}
	return capProviders(found, req.MaxProviders), false, nil
}

// applyTravelFilter drops providers beyond the travel budget. Estimate
// errors keep the provider; travel is a soft input.
func (m *Manager) applyTravelFilter(ctx context.Context, campaign *models.Campaign, providers []models.Provider) []models.Provider {
	max := campaign.Request.MaxTravelMinutes
	if max <= 0 {
		return providers
	}
	origin := campaign.Request.Origin()
	kept := providers[:0]
	for _, p := range providers {
		minutes, err := m.distance.EstimateTravelMinutes(ctx, origin, p)
		if err == nil && minutes > max {
			continue
		}
		kept = append(kept, p)
	}
	return kept
}

// fanOut runs one call per provider behind a counting semaphore and returns
// the offers collected from successful calls. Results are appended to the
// campaign in completion order.
func (m *Manager) fanOut(ctx context.Context, campaign *models.Campaign, providers []models.Provider, mode models.CallMode, tracker *progressTracker) []models.SlotOffer {
	campaignID := campaign.CampaignID
	deps := m.deps()

	sem := make(chan struct{}, campaign.Request.MaxParallel)
	var wg sync.WaitGroup

	var mu sync.Mutex
	var offers []models.SlotOffer

	for i, p := range providers {
		wg.Add(1)
		go func(idx int, provider models.Provider) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			useReal := mode == models.CallModeReal ||
				(mode == models.CallModeHybrid && idx == 0)
			fn, timeout := m.simulatedCall, m.scaled(m.settings.SimulatedCallTimeout)
			if useReal {
				fn, timeout = m.realCall, m.settings.RealCallTimeout
			}

			m.publishProgress(campaignID, tracker.callStarted())
			result := m.executeCall(ctx, fn, timeout, provider, campaign, deps)
			snap := tracker.callFinished(result.Outcome)

			if _, err := m.store.UpdateCampaign(campaignID, func(c *models.Campaign) {
				c.CallResults = append(c.CallResults, result)
				c.Progress = snap
			}); err != nil {
				slog.Error("failed to record call result", "campaign_id", campaignID, "error", err)
			}

			if usable := result.UsableOffers(); len(usable) > 0 {
				mu.Lock()
				offers = append(offers, usable...)
				mu.Unlock()
			}
		}(i, p)
	}
	wg.Wait()
	return offers
}

// executeCall wraps one driver invocation with its timeout and a panic
// guard. A timeout abandons the in-flight session and synthesizes a FAILED
// result so the campaign keeps moving.
func (m *Manager) executeCall(ctx context.Context, fn CallFunc, timeout time.Duration, provider models.Provider, campaign *models.Campaign, deps *Deps) models.CallResult {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resultCh := make(chan models.CallResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("call driver panicked",
					"campaign_id", campaign.CampaignID,
					"provider_id", provider.ID,
					"panic", r)
				resultCh <- models.CallResult{
					ProviderID: provider.ID,
					Outcome:    models.OutcomeFailed,
					Notes:      fmt.Sprintf("Call driver panicked: %v", r),
				}
			}
		}()
		resultCh <- fn(callCtx, provider, campaign, deps)
	}()

	select {
	case result := <-resultCh:
		return result
	case <-callCtx.Done():
		return models.CallResult{
			ProviderID: provider.ID,
			Outcome:    models.OutcomeFailed,
			Notes:      fmt.Sprintf("Call timed out after %s", timeout),
		}
	}
}

// rankAndPublish computes travel once per provider, ranks the offers and
// stores the outcome summary.
func (m *Manager) rankAndPublish(ctx context.Context, campaignID string, campaign *models.Campaign, providers []models.Provider, offers []models.SlotOffer) []models.SlotOffer {
	providersByID := make(map[string]models.Provider, len(providers))
	travel := make(map[string]int, len(providers))
	origin := campaign.Request.Origin()
	for _, p := range providers {
		providersByID[p.ID] = p
		if minutes, err := m.distance.EstimateTravelMinutes(ctx, origin, p); err == nil {
			travel[p.ID] = minutes
		}
	}

	ranked, breakdown := scoring.Rank(offers, providersByID, travel,
		campaign.Request.Preferences,
		campaign.Request.DateRangeStart, campaign.Request.DateRangeEnd)

	var best *models.SlotOffer
	if len(ranked) > 0 {
		best = ranked[0].Clone()
	}

	if _, err := m.store.UpdateCampaign(campaignID, func(c *models.Campaign) {
		c.Ranked = ranked
		c.Best = best
		if c.Debug == nil {
			c.Debug = map[string]any{}
		}
		c.Debug["scoring"] = breakdown
		c.Debug["provider_outcomes"] = outcomeSummary(c.CallResults)
		c.Debug["travel_minutes"] = travel
	}); err != nil {
		slog.Error("failed to publish ranking", "campaign_id", campaignID, "error", err)
	}
	return ranked
}

// runBookingPhase calls the top-ranked providers back, best first, until one
// confirms. All attempts exhausted leaves the campaign completed with the
// ranked list still usable for manual confirmation.
func (m *Manager) runBookingPhase(ctx context.Context, campaign *models.Campaign, mode models.CallMode, ranked []models.SlotOffer) {
	campaignID := campaign.CampaignID
	logger := slog.With("campaign_id", campaignID)
	m.setStatus(campaignID, models.CampaignStatusBooking)

	deps := m.deps()
	bookFn, timeout := m.simulatedBooking, m.scaled(m.settings.BookingAttemptTimeout)
	if (mode == models.CallModeReal || mode == models.CallModeHybrid) && m.caller != nil {
		bookFn, timeout = m.realBooking, m.settings.BookingAttemptTimeout
	}

	providersByID := make(map[string]models.Provider, len(campaign.Providers))
	for _, p := range campaign.Providers {
		providersByID[p.ID] = p
	}

	attempts := ranked
	if len(attempts) > bookingAttemptLimit {
		attempts = attempts[:bookingAttemptLimit]
	}

	for i, offer := range attempts {
		provider, ok := providersByID[offer.ProviderID]
		if !ok {
			continue
		}
		logger.Info("booking attempt",
			"attempt", i+1,
			"provider_id", provider.ID,
			"slot_start", offer.Start)

		result := m.executeBooking(ctx, bookFn, timeout, offer, provider, campaign, deps)
		if _, err := m.store.UpdateCampaign(campaignID, func(c *models.Campaign) {
			c.CallResults = append(c.CallResults, result)
		}); err != nil {
			logger.Error("failed to record booking attempt", "error", err)
		}

		if result.Outcome != models.OutcomeBookingConfirmed {
			logger.Info("booking attempt did not confirm", "outcome", result.Outcome)
			continue
		}

		confirmation := models.BookingConfirmation{
			ProviderID:      provider.ID,
			Start:           offer.Start,
			End:             offer.End,
			ConfirmationRef: NewConfirmationRef(),
			ConfirmedAt:     time.Now().UTC(),
			Notes:           result.Notes,
			ClientName:      campaign.Request.ClientName,
			ClientPhone:     campaign.Request.ClientPhone,
		}
		if _, err := m.store.UpdateCampaign(campaignID, func(c *models.Campaign) {
			c.Booking = &confirmation
			c.Status = models.CampaignStatusBooked
		}); err != nil {
			logger.Error("failed to store booking", "error", err)
		}
		logger.Info("campaign booked",
			"provider_id", provider.ID,
			"confirmation_ref", confirmation.ConfirmationRef)
		return
	}

	logger.Info("all booking attempts exhausted")
	m.setStatus(campaignID, models.CampaignStatusCompleted)
}

func (m *Manager) executeBooking(ctx context.Context, fn BookingFunc, timeout time.Duration, offer models.SlotOffer, provider models.Provider, campaign *models.Campaign, deps *Deps) models.CallResult {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resultCh := make(chan models.CallResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("booking driver panicked",
					"campaign_id", campaign.CampaignID,
					"provider_id", provider.ID,
					"panic", r)
				resultCh <- models.CallResult{
					ProviderID: provider.ID,
					Outcome:    models.OutcomeBookingRejected,
					Notes:      fmt.Sprintf("Booking driver panicked: %v", r),
				}
			}
		}()
		resultCh <- fn(attemptCtx, offer, provider, campaign, deps)
	}()

	select {
	case result := <-resultCh:
		return result
	case <-attemptCtx.Done():
		return models.CallResult{
			ProviderID: provider.ID,
			Outcome:    models.OutcomeBookingRejected,
			Notes:      fmt.Sprintf("Booking attempt timed out after %s", timeout),
		}
	}
}

// ConfirmSlot re-validates a ranked slot at the moment of confirmation and
// issues a fresh reference. It never mutates campaign state. Errors:
// store.ErrNotFound, ErrSlotNotInRanked, ErrSlotConflict, and
// calendar.ErrCalendarUnavailable (wrapped).
func (m *Manager) ConfirmSlot(ctx context.Context, campaignID, providerID string, start, end time.Time) (string, error) {
	campaign, err := m.store.Campaign(campaignID)
	if err != nil {
		return "", err
	}

	found := false
	for _, o := range campaign.Ranked {
		if o.ProviderID == providerID && o.Start.Equal(start) && o.End.Equal(end) {
			found = true
			break
		}
	}
	if !found {
		return "", ErrSlotNotInRanked
	}

	src := m.calendars.SourceFor(campaign.Request.UserID, campaign.Request.TimeLocation())
	free, err := calendar.IsFree(ctx, src, start, end)
	if err != nil {
		return "", err
	}
	if !free {
		return "", ErrSlotConflict
	}
	return NewConfirmationRef(), nil
}

func (m *Manager) deps() *Deps {
	return &Deps{
		Store:     m.store,
		Calendars: m.calendars,
		Caller:    m.caller,
		Settings:  m.settings,
	}
}

// scaled applies the simulation time scale to a simulated-path timeout.
func (m *Manager) scaled(d time.Duration) time.Duration {
	scale := m.settings.SimTimeScale
	if scale <= 0 || scale == 1 {
		return d
	}
	return time.Duration(float64(d) * scale)
}

func (m *Manager) publishProgress(campaignID string, snap models.Progress) {
	if _, err := m.store.UpdateCampaign(campaignID, func(c *models.Campaign) {
		c.Progress = snap
	}); err != nil {
		slog.Error("failed to publish progress", "campaign_id", campaignID, "error", err)
	}
}

func (m *Manager) setStatus(campaignID string, status models.CampaignStatus) {
	if _, err := m.store.UpdateCampaign(campaignID, func(c *models.Campaign) {
		c.Status = status
		if status.Terminal() {
			c.Progress.InProgress = 0
		}
	}); err != nil {
		slog.Error("failed to update campaign status", "campaign_id", campaignID, "status", status, "error", err)
	}
}

func (m *Manager) finish(campaignID string, status models.CampaignStatus, debug map[string]any) {
	if _, err := m.store.UpdateCampaign(campaignID, func(c *models.Campaign) {
		c.Status = status
		c.Progress.InProgress = 0
		if c.Debug == nil {
			c.Debug = map[string]any{}
		}
		for k, v := range debug {
			c.Debug[k] = v
		}
	}); err != nil {
		slog.Error("failed to finish campaign", "campaign_id", campaignID, "error", err)
	}
}

func capProviders(providers []models.Provider, max int) []models.Provider {
	if max > 0 && len(providers) > max {
		return providers[:max]
	}
	return providers
}

func outcomeSummary(results []models.CallResult) map[string]string {
	out := make(map[string]string, len(results))
	for _, r := range results {
		out[r.ProviderID] = string(r.Outcome)
	}
	return out
}
