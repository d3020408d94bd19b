package handlers

import (
	"errors"
	"net/http"

	"github.com/damain/planning-poker/internal/roomstate"
	"github.com/damain/planning-poker/internal/services"

	"github.com/gin-gonic/gin"
)

type RoomHandler struct {
	rooms   *services.RoomService
	manager *roomstate.Manager
}

func NewRoomHandler(rooms *services.RoomService, manager *roomstate.Manager) *RoomHandler {
	return &RoomHandler{rooms: rooms, manager: manager}
}

type CreateRoomRequest struct {
	Name string `json:"name" binding:"required" example:"Sprint 42"`
}

type JoinRoomRequest struct {
	Code     string `json:"code" binding:"required" example:"ABCDEF"`
	UserName string `json:"user_name" binding:"required" example:"alice"`
}

type SelectStoryRequest struct {
	StoryID *uint `json:"story_id"`
}

type ShowVotesRequest struct {
	Show *bool `json:"show" binding:"required"`
}

type VotingScaleRequest struct {
	Scale string `json:"scale" binding:"required" example:"fibonacci"`
}

// RoomStateResponse is the reconciled view of a room. Vote values are blanked
// while the room has show_votes off; statistics appear only once revealed.
type RoomStateResponse struct {
	roomstate.Snapshot
	Statistics  *services.VoteStatistics `json:"statistics,omitempty"`
	Seating     services.SeatingPlan     `json:"seating"`
	ScaleValues []int                    `json:"scale_values"`
}

// CreateRoom godoc
// @Summary      Create a room
// @Tags         rooms
// @Accept       json
// @Produce      json
// @Param        request body CreateRoomRequest true "Room data"
// @Success      201 {object} Room
// @Failure      400 {object} ErrorResponse
// @Router       /api/v1/rooms [post]
func (h *RoomHandler) CreateRoom(c *gin.Context) {
	var req CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	room, err := h.rooms.CreateRoom(req.Name)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusCreated, room)
}

// JoinRoom godoc
// @Summary      Join a room by code
// @Tags         rooms
// @Accept       json
// @Produce      json
// @Param        request body JoinRoomRequest true "Join data"
// @Success      200 {object} Room
// @Failure      404 {object} ErrorResponse
// @Failure      409 {object} ErrorResponse
// @Router       /api/v1/rooms/join [post]
func (h *RoomHandler) JoinRoom(c *gin.Context) {
	var req JoinRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	room, err := h.rooms.JoinRoom(req.Code, req.UserName)
	if err != nil {
		status := http.StatusConflict
		if errors.Is(err, services.ErrRoomNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, room)
}

func (h *RoomHandler) GetRoom(c *gin.Context) {
	room, err := h.rooms.GetRoomByCode(c.Param("code"))
	if err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, room)
}

// GetRoomState godoc
// @Summary      Reconciled room state
// @Description  Room row, stories, votes for the current story, active users, seating and (when revealed) statistics
// @Tags         rooms
// @Produce      json
// @Param        code path string true "Room code"
// @Success      200 {object} RoomStateResponse
// @Failure      404 {object} ErrorResponse
// @Router       /api/v1/rooms/{code}/state [get]
func (h *RoomHandler) GetRoomState(c *gin.Context) {
	code := services.NormalizeCode(c.Param("code"))

	snap, err := h.manager.Snapshot(code)
	if err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error()})
		return
	}

	resp := RoomStateResponse{
		Snapshot:    snap,
		Seating:     services.DistributeSeats(snap.Users),
		ScaleValues: services.ScaleValues(snap.Room.VotingScale),
	}
	if snap.Room.ShowVotes {
		stats := services.CalculateStatistics(snap.Votes)
		resp.Statistics = &stats
	} else {
		for i := range resp.Votes {
			resp.Votes[i].VoteValue = nil
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (h *RoomHandler) SelectStory(c *gin.Context) {
	var req SelectStoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	room, err := h.rooms.SelectStory(c.Param("code"), req.StoryID)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, services.ErrRoomNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, room)
}

func (h *RoomHandler) ToggleShowVotes(c *gin.Context) {
	var req ShowVotesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	room, err := h.rooms.ToggleShowVotes(c.Param("code"), *req.Show)
	if err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, room)
}

func (h *RoomHandler) SetVotingScale(c *gin.Context) {
	var req VotingScaleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	room, err := h.rooms.SetVotingScale(c.Param("code"), req.Scale)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, services.ErrRoomNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, room)
}
