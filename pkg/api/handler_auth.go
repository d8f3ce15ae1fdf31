package api

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"

	"github.com/callpilot/callpilot/pkg/auth"
	"github.com/callpilot/callpilot/pkg/store"
)

// authAuthorize handles GET /auth/google/authorize?user_id=.
func (s *Server) authAuthorize(c *gin.Context) {
	if s.auth == nil {
		errorJSON(c, http.StatusServiceUnavailable, "google oauth is not configured")
		return
	}
	userID := c.Query("user_id")
	if userID == "" {
		errorJSON(c, http.StatusBadRequest, "user_id is required")
		return
	}
	u, err := s.auth.AuthorizeURL(userID)
	if err != nil {
		if errors.Is(err, auth.ErrNotConfigured) {
			errorJSON(c, http.StatusServiceUnavailable, err.Error())
			return
		}
		errorJSON(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"authorize_url": u})
}

// authCallback handles GET /auth/google/callback. Google redirects the user
// here; we exchange the code and send them back to the frontend, or render a
// fallback page when no frontend is configured.
func (s *Server) authCallback(c *gin.Context) {
	if s.auth == nil {
		errorJSON(c, http.StatusServiceUnavailable, "google oauth is not configured")
		return
	}
	state := c.Query("state")
	if state == "" {
		errorJSON(c, http.StatusBadRequest, "state is required")
		return
	}
	if denied := c.Query("error"); denied != "" {
		s.finishCallback(c, false, "authorization was denied: "+denied)
		return
	}
	code := c.Query("code")
	if code == "" {
		errorJSON(c, http.StatusBadRequest, "code is required")
		return
	}

	if err := s.auth.HandleCallback(c.Request.Context(), code, state); err != nil {
		s.finishCallback(c, false, err.Error())
		return
	}
	s.finishCallback(c, true, state)
}

// finishCallback redirects to the frontend with the flow outcome, or renders
// the fallback HTML page when no frontend URL is configured.
func (s *Server) finishCallback(c *gin.Context, ok bool, detail string) {
	if s.settings.FrontendURL != "" {
		q := url.Values{}
		if ok {
			q.Set("oauth", "success")
		} else {
			q.Set("oauth", "error")
			q.Set("detail", detail)
		}
		c.Redirect(http.StatusFound, s.settings.FrontendURL+"?"+q.Encode())
		return
	}
	if ok {
		c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(auth.SuccessPageHTML(detail)))
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(auth.ErrorPageHTML(detail)))
}

// authStatus handles GET /auth/google/status?user_id=.
func (s *Server) authStatus(c *gin.Context) {
	if s.auth == nil {
		errorJSON(c, http.StatusServiceUnavailable, "google oauth is not configured")
		return
	}
	userID := c.Query("user_id")
	if userID == "" {
		errorJSON(c, http.StatusBadRequest, "user_id is required")
		return
	}
	tok, err := s.auth.Status(userID)
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"linked": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"linked":    true,
		"linked_at": tok.LinkedAt,
		"scopes":    tok.Scopes,
	})
}

// authVerify handles GET /auth/google/verify?user_id=: a live FreeBusy probe
// proving the stored token actually works.
func (s *Server) authVerify(c *gin.Context) {
	if s.auth == nil {
		errorJSON(c, http.StatusServiceUnavailable, "google oauth is not configured")
		return
	}
	userID := c.Query("user_id")
	if userID == "" {
		errorJSON(c, http.StatusBadRequest, "user_id is required")
		return
	}
	c.JSON(http.StatusOK, s.auth.Verify(c.Request.Context(), userID))
}

// authUnlink handles DELETE /auth/google/unlink?user_id=.
func (s *Server) authUnlink(c *gin.Context) {
	if s.auth == nil {
		errorJSON(c, http.StatusServiceUnavailable, "google oauth is not configured")
		return
	}
	userID := c.Query("user_id")
	if userID == "" {
		errorJSON(c, http.StatusBadRequest, "user_id is required")
		return
	}
	if err := s.auth.Unlink(c.Request.Context(), userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			errorJSON(c, http.StatusNotFound, "no calendar is linked for this user")
			return
		}
		errorJSON(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"unlinked": true})
}
