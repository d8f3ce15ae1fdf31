// Package api exposes the HTTP surface: campaign lifecycle, provider search
// previews, the runtime call-mode toggle, Twilio webhooks with the
// media-stream upgrade, and the Google OAuth link flow.
package api

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/callpilot/callpilot/pkg/auth"
	"github.com/callpilot/callpilot/pkg/bridge"
	"github.com/callpilot/callpilot/pkg/config"
	"github.com/callpilot/callpilot/pkg/directory"
	"github.com/callpilot/callpilot/pkg/distance"
	"github.com/callpilot/callpilot/pkg/store"
)

// CampaignRunner drives campaigns and validates manual confirmations.
// Satisfied by *swarm.Manager.
type CampaignRunner interface {
	Run(ctx context.Context, campaignID string) error
	ConfirmSlot(ctx context.Context, campaignID, providerID string, start, end time.Time) (string, error)
}

// StreamBridge supervises one accepted media-stream connection. Satisfied by
// *bridge.Bridge.
type StreamBridge interface {
	Run(ctx context.Context, phone bridge.PhoneConn, callID, campaignID, providerID, kind string)
}

// Config wires a Server. Bridge and Auth may be nil when real calls or OAuth
// are not configured; their endpoints then answer 503.
type Config struct {
	Store     *store.Store
	Runner    CampaignRunner
	Directory directory.Directory
	Distance  distance.Estimator
	Settings  *config.Settings
	Toggle    *config.CallModeToggle
	Bridge    StreamBridge
	Auth      *auth.Service
}

// Server holds the handler dependencies.
type Server struct {
	store     *store.Store
	runner    CampaignRunner
	directory directory.Directory
	distance  distance.Estimator
	settings  *config.Settings
	toggle    *config.CallModeToggle
	bridge    StreamBridge
	auth      *auth.Service
}

// NewServer builds the API server.
func NewServer(cfg Config) *Server {
	if cfg.Store == nil || cfg.Runner == nil {
		panic("api.NewServer: store and runner are required")
	}
	if cfg.Directory == nil || cfg.Distance == nil {
		panic("api.NewServer: directory and distance estimator are required")
	}
	if cfg.Settings == nil || cfg.Toggle == nil {
		panic("api.NewServer: settings and toggle are required")
	}
	return &Server{
		store:     cfg.Store,
		runner:    cfg.Runner,
		directory: cfg.Directory,
		distance:  cfg.Distance,
		settings:  cfg.Settings,
		toggle:    cfg.Toggle,
		bridge:    cfg.Bridge,
		auth:      cfg.Auth,
	}
}

// Router builds the gin engine with all routes and middleware attached.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(), corsMiddleware(s.settings))

	r.GET("/health", s.health)

	r.GET("/settings/call-mode", s.getCallMode)
	r.PUT("/settings/call-mode", s.putCallMode)

	r.POST("/providers/search", s.searchProviders)

	r.POST("/campaigns", s.createCampaign)
	r.GET("/campaigns/:id", s.getCampaign)
	r.POST("/campaigns/:id/confirm", s.confirmSlot)

	r.POST("/twilio/voice", s.twilioVoice)
	r.POST("/twilio/voice/status", s.twilioStatus)
	r.GET("/twilio/stream/:call_id", s.twilioStream)

	r.GET("/auth/google/authorize", s.authAuthorize)
	r.GET("/auth/google/callback", s.authCallback)
	r.GET("/auth/google/status", s.authStatus)
	r.GET("/auth/google/verify", s.authVerify)
	r.DELETE("/auth/google/unlink", s.authUnlink)

	return r
}
