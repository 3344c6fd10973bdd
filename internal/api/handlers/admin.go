package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/irfndi/celebrum-arbwatch/internal/middleware"
	"github.com/sirupsen/logrus"
)

// AdminHandler issues admin session tokens.
type AdminHandler struct {
	auth   *middleware.AuthMiddleware
	logger *logrus.Logger
}

// TokenRequest names the holder of the token; it defaults to "admin".
type TokenRequest struct {
	Subject string `json:"subject"`
}

// TokenResponse carries a signed admin token.
type TokenResponse struct {
	Token     string `json:"token"`
	TokenType string `json:"token_type"`
	ExpiresAt string `json:"expires_at"`
}

// NewAdminHandler creates a new AdminHandler
func NewAdminHandler(auth *middleware.AuthMiddleware, logger *logrus.Logger) *AdminHandler {
	return &AdminHandler{auth: auth, logger: logger}
}

// IssueToken exchanges an authenticated admin request for a bearer token.
// POST /api/v1/admin/token
func (h *AdminHandler) IssueToken(c *gin.Context) {
	var req TokenRequest
	_ = c.ShouldBindJSON(&req)

	subject := strings.TrimSpace(req.Subject)
	if subject == "" {
		subject = "admin"
	}

	token, expiresAt, err := h.auth.GenerateToken(subject, middleware.RoleAdmin)
	if err != nil {
		if errors.Is(err, middleware.ErrAuthDisabled) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "token issuing is not configured"})
			return
		}
		h.logger.WithError(err).Error("Failed to issue admin token")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	h.logger.WithFields(logrus.Fields{
		"subject":    subject,
		"issued_by":  c.GetString("admin_subject"),
		"expires_at": expiresAt,
	}).Info("Issued admin token")

	c.JSON(http.StatusOK, TokenResponse{
		Token:     token,
		TokenType: "Bearer",
		ExpiresAt: expiresAt.UTC().Format(time.RFC3339),
	})
}
