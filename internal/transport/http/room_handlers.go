package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/campuslms/chatcore/internal/core"
	"github.com/campuslms/chatcore/internal/proto"
	"github.com/campuslms/chatcore/internal/store"
)

// RoomHandlers serves room presence over REST.
type RoomHandlers struct {
	hub   *core.Hub
	store store.RoomStore
	log   *zerolog.Logger
}

// NewRoomHandlers creates a new room handlers instance.
func NewRoomHandlers(hub *core.Hub, st store.RoomStore, logger *zerolog.Logger) *RoomHandlers {
	return &RoomHandlers{
		hub:   hub,
		store: st,
		log:   logger,
	}
}

// OnlineResponse lists the users currently present in a room.
type OnlineResponse struct {
	RoomID      int64        `json:"roomId"`
	OnlineCount int          `json:"onlineCount"`
	Users       []proto.User `json:"users"`
}

// Online returns the room's presence snapshot.
// GET /api/rooms/:id/online
func (h *RoomHandlers) Online(c *gin.Context) {
	uid := c.GetInt64(ContextKeyUserID)
	if uid == 0 {
		h.log.Error().Msg("user_id not found in context")
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	roomID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || roomID <= 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid room id"})
		return
	}

	membership, err := h.store.GetMembership(c.Request.Context(), uid, roomID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusForbidden, ErrorResponse{Error: "not a member of this room"})
			return
		}
		h.log.Error().Err(err).Int64("room_id", roomID).Int64("user_id", uid).Msg("failed to load membership")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}
	if !membership.Active {
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "membership is inactive"})
		return
	}

	online := h.hub.Online(roomID)
	users := make([]proto.User, 0, len(online))
	for _, u := range online {
		users = append(users, userToProto(u))
	}

	c.JSON(http.StatusOK, OnlineResponse{
		RoomID:      roomID,
		OnlineCount: len(users),
		Users:       users,
	})
}
