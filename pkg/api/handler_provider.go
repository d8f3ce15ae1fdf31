package api

import (
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"

	"github.com/callpilot/callpilot/pkg/models"
)

type providerSearchRequest struct {
	Service          string   `json:"service" binding:"required"`
	Location         string   `json:"location"`
	Lat              *float64 `json:"lat"`
	Lng              *float64 `json:"lng"`
	MaxProviders     int      `json:"max_providers"`
	MaxTravelMinutes int      `json:"max_travel_minutes"`
}

// searchProviders handles POST /providers/search: a preview of what a
// campaign with the same parameters would call, annotated with travel
// estimates and sorted nearest first.
func (s *Server) searchProviders(c *gin.Context) {
	var req providerSearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorJSON(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	found, err := s.directory.Search(c.Request.Context(), req.Service, req.Location, req.Lat, req.Lng)
	if err != nil {
		errorJSON(c, http.StatusBadGateway, "provider search failed: "+err.Error())
		return
	}

	origin := originOf(req)
	previews := make([]ProviderPreview, 0, len(found))
	for _, p := range found {
		preview := ProviderPreview{Provider: p}
		if minutes, err := s.distance.EstimateTravelMinutes(c.Request.Context(), origin, p); err == nil {
			if req.MaxTravelMinutes > 0 && minutes > req.MaxTravelMinutes {
				continue
			}
			m := minutes
			preview.TravelMinutes = &m
		}
		previews = append(previews, preview)
	}

	// Nearest first; unknown travel sorts last.
	sort.SliceStable(previews, func(i, j int) bool {
		a, b := previews[i].TravelMinutes, previews[j].TravelMinutes
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return *a < *b
		}
	})

	if req.MaxProviders > 0 && len(previews) > req.MaxProviders {
		previews = previews[:req.MaxProviders]
	}
	c.JSON(http.StatusOK, gin.H{"providers": previews, "count": len(previews)})
}

func originOf(req providerSearchRequest) string {
	r := models.AppointmentRequest{
		Location:  req.Location,
		OriginLat: req.Lat,
		OriginLng: req.Lng,
	}
	return r.Origin()
}
