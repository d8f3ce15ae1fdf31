package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/callpilot/callpilot/pkg/models"
	"github.com/callpilot/callpilot/pkg/version"
)

// CampaignCreatedResponse is returned by POST /campaigns.
type CampaignCreatedResponse struct {
	CampaignID string `json:"campaign_id"`
	Status     string `json:"status"`
	CallMode   string `json:"call_mode"`
}

// ConfirmResponse is returned by POST /campaigns/:id/confirm.
type ConfirmResponse struct {
	CampaignID      string `json:"campaign_id"`
	Confirmed       bool   `json:"confirmed"`
	ConfirmationRef string `json:"confirmation_ref"`
}

// ProviderPreview is one entry of the POST /providers/search response.
type ProviderPreview struct {
	models.Provider
	TravelMinutes *int `json:"travel_minutes,omitempty"`
}

// CallModeResponse describes the runtime call-mode toggle.
type CallModeResponse struct {
	ServerDefault  string            `json:"server_default"`
	AvailableModes []string          `json:"available_modes"`
	Descriptions   map[string]string `json:"descriptions"`
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true, "version": version.Full()})
}

func errorJSON(c *gin.Context, status int, msg string) {
	c.JSON(status, gin.H{"error": msg})
}
