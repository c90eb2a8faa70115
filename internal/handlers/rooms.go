package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mossy-p/signal-relay/internal/models"
	"github.com/mossy-p/signal-relay/internal/signaling"
)

// PresenceCounter reports cluster-wide membership for a room
type PresenceCounter interface {
	Count(ctx context.Context, roomID string) (int64, error)
}

// ListRooms lists the rooms live on this instance
func ListRooms(reg *signaling.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, models.RoomListResponse{Rooms: reg.Snapshot()})
	}
}

// GetRoom gets room information by ID (public)
func GetRoom(reg *signaling.Registry, presence PresenceCounter, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		roomID := c.Param("roomId")

		room, ok := reg.Lookup(roomID)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "Room not found"})
			return
		}

		info := models.RoomInfo{RoomID: room.ID, Members: room.Len()}
		if presence != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if n, err := presence.Count(ctx, roomID); err != nil {
				logger.Warn("presence.count_failed", "room", roomID, "err", err)
			} else {
				info.Presence = &n
			}
		}

		c.JSON(http.StatusOK, info)
	}
}
