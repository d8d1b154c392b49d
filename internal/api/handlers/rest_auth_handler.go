package handlers

import (
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"realty/site/internal/auth"
	"realty/site/internal/config"
)

// RestAuthHandler issues admin dashboard tokens.
type RestAuthHandler struct {
	cfg           *config.Config
	authenticator *auth.AdminAuthenticator
}

// NewRestAuthHandler creates a new RestAuthHandler.
func NewRestAuthHandler(cfg *config.Config, authenticator *auth.AdminAuthenticator) *RestAuthHandler {
	return &RestAuthHandler{cfg: cfg, authenticator: authenticator}
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login handles POST /v1/admin/login
func (h *RestAuthHandler) Login(c *gin.Context) {
	if !h.authenticator.Enabled() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Admin login is not configured"})
		return
	}
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email and password are required"})
		return
	}

	email, err := h.authenticator.Authenticate(req.Email, req.Password)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		log.Printf("Failed admin login from %s", c.ClientIP())
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		respondError(c, err, "")
		return
	}

	token, err := auth.GenerateJWT(email, true, h.cfg.JwtSecret, h.cfg.JwtTTL)
	if err != nil {
		log.Printf("ERROR: Failed to sign admin token: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"token":     token,
		"expiresAt": time.Now().Add(h.cfg.JwtTTL).UTC(),
	})
}
