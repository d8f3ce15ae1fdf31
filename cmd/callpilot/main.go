// CallPilot server — runs scheduling campaigns with parallel outbound voice
// calls, checks offers against the user's calendar and exposes the HTTP API.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/callpilot/callpilot/pkg/api"
	"github.com/callpilot/callpilot/pkg/auth"
	"github.com/callpilot/callpilot/pkg/bridge"
	"github.com/callpilot/callpilot/pkg/calendar"
	"github.com/callpilot/callpilot/pkg/config"
	"github.com/callpilot/callpilot/pkg/directory"
	"github.com/callpilot/callpilot/pkg/distance"
	"github.com/callpilot/callpilot/pkg/logging"
	"github.com/callpilot/callpilot/pkg/store"
	"github.com/callpilot/callpilot/pkg/swarm"
	"github.com/callpilot/callpilot/pkg/telephony"
	"github.com/callpilot/callpilot/pkg/tools"
	"github.com/callpilot/callpilot/pkg/version"
	"github.com/callpilot/callpilot/pkg/voice"
)

func main() {
	// 1. Environment and configuration
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file, continuing with existing environment")
	}
	settings := config.LoadFromEnv()
	logging.Setup(settings.LogLevel, settings.LogFormat)

	slog.Info("starting callpilot",
		"version", version.Full(),
		"listen_addr", settings.ListenAddr,
		"simulated_calls", settings.SimulatedCalls)

	ctx := context.Background()

	// 2. Persistent store
	st, err := store.Open(settings.DataDir)
	if err != nil {
		slog.Error("failed to open data store", "dir", settings.DataDir, "error", err)
		os.Exit(1)
	}

	// 3. Provider directory and travel estimator
	registry := directory.NewRegistry()
	dir := directory.New(settings, registry)
	dist := distance.NewEstimator(settings)

	// 4. Calendar sources: linked user calendars, the optional
	// service-account calendar, and the deterministic mock as fallback
	var authSvc *auth.Service
	var users calendar.UserTokens
	if settings.OAuthConfigured() {
		authSvc = auth.NewService(settings, st)
		users = authSvc
		slog.Info("google oauth configured, user calendars enabled")
	}

	var googleCal *calendar.GoogleBusySource
	if settings.UseRealCalendar && settings.GoogleCredentialsJSON != "" {
		googleCal, err = calendar.NewGoogleBusySource(ctx, settings.GoogleCredentialsJSON, settings.GoogleCalendarID)
		if err != nil {
			slog.Error("failed to initialize google calendar", "error", err)
			os.Exit(1)
		}
		slog.Info("service-account google calendar enabled", "calendar_id", settings.GoogleCalendarID)
	}
	calendars := calendar.NewFactory(settings, users, googleCal)

	// 5. Telephony and the voice agent bridge (real calls need both)
	var caller telephony.Caller
	if settings.TwilioConfigured() {
		caller = telephony.NewTwilioCaller(settings, st)
		slog.Info("twilio caller configured", "caller_id", settings.TwilioCallerID)
	}

	dispatcher := tools.NewDispatcher(st, calendars, dist, dir)

	var mediaBridge api.StreamBridge
	if settings.ElevenLabsAPIKey != "" && settings.ElevenLabsAgentID != "" {
		dialer := voice.NewElevenDialer(settings.ElevenLabsAPIKey, settings.ElevenLabsAgentID)
		mediaBridge = bridge.New(st, dispatcher, dialer)
		slog.Info("voice agent bridge configured", "agent_id", settings.ElevenLabsAgentID)
	}

	// 6. Campaign manager
	toggle := config.NewCallModeToggle(settings.SimulatedCalls)
	manager := swarm.NewManager(swarm.ManagerConfig{
		Store:     st,
		Directory: dir,
		Registry:  registry,
		Distance:  dist,
		Calendars: calendars,
		Caller:    caller,
		Settings:  settings,
		Toggle:    toggle,
	})

	// 7. HTTP server
	server := api.NewServer(api.Config{
		Store:     st,
		Runner:    manager,
		Directory: dir,
		Distance:  dist,
		Settings:  settings,
		Toggle:    toggle,
		Bridge:    mediaBridge,
		Auth:      authSvc,
	})

	httpServer := &http.Server{
		Addr:    settings.ListenAddr,
		Handler: server.Router(),
	}

	// 8. Start HTTP server (non-blocking)
	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", settings.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// 9. Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("shutdown signal received", "signal", sig.String())
	case err := <-errCh:
		slog.Error("http server error triggered shutdown", "error", err)
	}

	// 10. Graceful shutdown; running campaigns are downgraded to failed on
	// the next boot by store.Open
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	}
	slog.Info("shutdown complete")
}
