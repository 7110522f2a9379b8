package server

import (
	"bytes"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/harrisonrobin/larkalarm/pkg/auth"
	"github.com/harrisonrobin/larkalarm/pkg/config"
	"github.com/harrisonrobin/larkalarm/pkg/surface"
)

func fail(c *gin.Context, status int, err error) {
	c.JSON(status, gin.H{
		"success": false,
		"error":   err.Error(),
	})
}

func (s *Server) handleAlarmPage(c *gin.Context) {
	f := surface.ParseFallback(c.Request.URL.Query())
	var buf bytes.Buffer
	if err := surface.RenderAlarmPage(&buf, f, s.now(), s.picker); err != nil {
		c.String(http.StatusInternalServerError, err.Error())
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", buf.Bytes())
}

func (s *Server) handleCallback(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", surface.CallbackPage())
}

func (s *Server) handleContentScript(c *gin.Context) {
	c.Data(http.StatusOK, "application/javascript; charset=utf-8", surface.ContentScript())
}

func (s *Server) handleRegister(c *gin.Context) {
	var req struct {
		OAuthProof string `json:"oauth_proof"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.OAuthProof == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "oauth_proof is required",
		})
		return
	}
	if err := s.svc.RegisterDevice(c.Request.Context(), req.OAuthProof); err != nil {
		fail(c, http.StatusBadGateway, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) handleToken(c *gin.Context) {
	token, err := s.svc.Token(c.Request.Context())
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, auth.ErrNotAuthorized) {
			status = http.StatusUnauthorized
		}
		fail(c, status, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"access_token": token,
	})
}

func (s *Server) handleSync(c *gin.Context) {
	if err := s.svc.ForceSync(c.Request.Context()); err != nil {
		fail(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) handleSnooze(c *gin.Context) {
	until, err := s.svc.Snooze(c.Request.Context(), c.Param("guid"))
	if err != nil {
		fail(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"until":   until,
	})
}

func (s *Server) handleClosed(c *gin.Context) {
	s.svc.AlarmClosed(c.Request.Context(), c.Param("guid"))
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) handleDismiss(c *gin.Context) {
	if err := s.svc.Dismiss(c.Request.Context(), c.Param("guid")); err != nil {
		fail(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) handleGetSettings(c *gin.Context) {
	c.JSON(http.StatusOK, s.svc.Settings())
}

func (s *Server) handlePutSettings(c *gin.Context) {
	var settings config.Settings
	if err := c.ShouldBindJSON(&settings); err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}
	if err := settings.Validate(); err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}
	if err := s.svc.UpdateSettings(c.Request.Context(), settings); err != nil {
		fail(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.svc.Status())
}

func (s *Server) handleLogout(c *gin.Context) {
	if err := s.svc.Logout(); err != nil {
		fail(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
