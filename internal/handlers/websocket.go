package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/mossy-p/signal-relay/internal/signaling"
)

// HandleSignaling hands WebSocket connections to the relay service. The
// request blocks until the peer disconnects.
func HandleSignaling(svc *signaling.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		svc.ServeHTTP(c.Writer, c.Request)
	}
}
