package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/callpilot/callpilot/pkg/calendar"
	"github.com/callpilot/callpilot/pkg/models"
	"github.com/callpilot/callpilot/pkg/store"
	"github.com/callpilot/callpilot/pkg/swarm"
)

// createCampaign handles POST /campaigns: validates the request, persists
// the campaign in status running, spawns the manager and answers 202.
func (s *Server) createCampaign(c *gin.Context) {
	var req models.AppointmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorJSON(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		errorJSON(c, http.StatusBadRequest, err.Error())
		return
	}

	campaign := s.store.CreateCampaign(req)
	effective := swarm.ResolveCallMode(req.CallMode, s.toggle)

	// The campaign outlives this request.
	go func() {
		if err := s.runner.Run(context.Background(), campaign.CampaignID); err != nil {
			slog.Error("campaign run aborted", "campaign_id", campaign.CampaignID, "error", err)
		}
	}()

	c.JSON(http.StatusAccepted, CampaignCreatedResponse{
		CampaignID: campaign.CampaignID,
		Status:     string(models.CampaignStatusRunning),
		CallMode:   string(effective),
	})
}

// getCampaign handles GET /campaigns/:id.
func (s *Server) getCampaign(c *gin.Context) {
	campaign, err := s.store.Campaign(c.Param("id"))
	if err != nil {
		errorJSON(c, http.StatusNotFound, "campaign not found")
		return
	}
	enrichDebug(campaign)
	c.JSON(http.StatusOK, campaign)
}

// enrichDebug annotates the debug block with provider metadata so outcome
// maps keyed by provider id are readable without a second lookup.
func enrichDebug(campaign *models.Campaign) {
	if len(campaign.Providers) == 0 {
		return
	}
	if campaign.Debug == nil {
		campaign.Debug = map[string]any{}
	}
	meta := make(map[string]any, len(campaign.Providers))
	for _, p := range campaign.Providers {
		meta[p.ID] = map[string]any{
			"name":   p.Name,
			"phone":  p.Phone,
			"rating": p.Rating,
		}
	}
	campaign.Debug["provider_directory"] = meta
}

type confirmRequest struct {
	ProviderID string    `json:"provider_id" binding:"required"`
	Start      time.Time `json:"start" binding:"required"`
	End        time.Time `json:"end" binding:"required"`
}

// confirmSlot handles POST /campaigns/:id/confirm: re-validates a ranked
// slot against the live calendar and issues a confirmation reference.
func (s *Server) confirmSlot(c *gin.Context) {
	var req confirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorJSON(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	campaignID := c.Param("id")
	ref, err := s.runner.ConfirmSlot(c.Request.Context(), campaignID, req.ProviderID, req.Start, req.End)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, ConfirmResponse{
			CampaignID:      campaignID,
			Confirmed:       true,
			ConfirmationRef: ref,
		})
	case errors.Is(err, store.ErrNotFound):
		errorJSON(c, http.StatusNotFound, "campaign not found")
	case errors.Is(err, swarm.ErrSlotNotInRanked):
		errorJSON(c, http.StatusBadRequest, "slot is not among the ranked offers")
	case errors.Is(err, swarm.ErrSlotConflict):
		errorJSON(c, http.StatusConflict, "slot conflicts with the user's calendar")
	case errors.Is(err, calendar.ErrCalendarUnavailable):
		errorJSON(c, http.StatusServiceUnavailable, "calendar is unavailable, try again later")
	default:
		errorJSON(c, http.StatusInternalServerError, err.Error())
	}
}
