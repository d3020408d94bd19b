package handlers

import (
	"net/http"

	"github.com/damain/planning-poker/internal/services"

	"github.com/gin-gonic/gin"
)

type PresenceHandler struct {
	presence *services.PresenceService
	rooms    *services.RoomService
}

func NewPresenceHandler(presence *services.PresenceService, rooms *services.RoomService) *PresenceHandler {
	return &PresenceHandler{presence: presence, rooms: rooms}
}

type PresenceRequest struct {
	UserName string `json:"user_name" binding:"required" example:"alice"`
}

type ActiveUsersResponse struct {
	Users   []string             `json:"users"`
	Seating services.SeatingPlan `json:"seating"`
}

// Join marks the user present. Repeated joins only refresh last_seen.
func (h *PresenceHandler) Join(c *gin.Context) {
	var req PresenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	room, err := h.rooms.GetRoomByCode(c.Param("code"))
	if err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error()})
		return
	}

	record, err := h.presence.Join(room.Code, req.UserName)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusCreated, record)
}

func (h *PresenceHandler) Heartbeat(c *gin.Context) {
	var req PresenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	if err := h.presence.Heartbeat(c.Param("code"), req.UserName); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, MessageResponse{Message: "heartbeat recorded"})
}

// ActiveUsers lists users seen within the presence window, with their seat
// distribution around the table.
func (h *PresenceHandler) ActiveUsers(c *gin.Context) {
	users, err := h.presence.ActiveUsers(c.Param("code"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, ActiveUsersResponse{
		Users:   users,
		Seating: services.DistributeSeats(users),
	})
}
