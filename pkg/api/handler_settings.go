package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

var callModeDescriptions = map[string]string{
	"simulated": "Calls are simulated deterministically; no phone calls are placed.",
	"real":      "Outbound phone calls are placed through Twilio with a live voice agent.",
}

// getCallMode handles GET /settings/call-mode.
func (s *Server) getCallMode(c *gin.Context) {
	c.JSON(http.StatusOK, CallModeResponse{
		ServerDefault:  s.toggle.Mode(),
		AvailableModes: []string{"simulated", "real"},
		Descriptions:   callModeDescriptions,
	})
}

// putCallMode handles PUT /settings/call-mode?mode=real|simulated. It
// mutates the runtime default used by campaigns in auto mode.
func (s *Server) putCallMode(c *gin.Context) {
	mode := c.Query("mode")
	if err := s.toggle.SetMode(mode); err != nil {
		errorJSON(c, http.StatusBadRequest, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"server_default": s.toggle.Mode()})
}
