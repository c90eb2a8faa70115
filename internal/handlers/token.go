package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mossy-p/signal-relay/internal/models"
	"github.com/mossy-p/signal-relay/internal/token"
)

// TokenRequest holds the query parameters of a token request
type TokenRequest struct {
	Room     string `form:"room" binding:"required"`
	Identity string `form:"identity" binding:"required"`
}

// GetToken issues a media server token for a room and identity
func GetToken(issuer *token.Issuer, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !issuer.Configured() {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Token issuance is not configured"})
			return
		}

		var req TokenRequest
		if err := c.ShouldBindQuery(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "room and identity are required"})
			return
		}

		tok, err := issuer.Issue(req.Room, req.Identity)
		if err != nil {
			logger.Error("token.issue_failed", "room", req.Room, "err", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
			return
		}

		logger.Info("token.issued", "room", req.Room, "identity", req.Identity)
		c.JSON(http.StatusOK, models.TokenResponse{Token: tok})
	}
}
