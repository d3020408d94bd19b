package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/damain/planning-poker/internal/services"

	"github.com/gin-gonic/gin"
)

type VoteHandler struct {
	votes *services.VoteService
	rooms *services.RoomService
}

func NewVoteHandler(votes *services.VoteService, rooms *services.RoomService) *VoteHandler {
	return &VoteHandler{votes: votes, rooms: rooms}
}

type CastVoteRequest struct {
	StoryID  uint   `json:"story_id" binding:"required" example:"1"`
	UserName string `json:"user_name" binding:"required" example:"alice"`
	Value    int    `json:"value" binding:"required" example:"5"`
}

// CastVote godoc
// @Summary      Cast or change a vote
// @Description  Upsert keyed on (story, user): voting again overwrites the previous value.
// @Tags         votes
// @Accept       json
// @Produce      json
// @Param        code path string true "Room code"
// @Param        request body CastVoteRequest true "Vote data"
// @Success      200 {object} Vote
// @Failure      400 {object} ErrorResponse
// @Router       /api/v1/rooms/{code}/votes [post]
func (h *VoteHandler) CastVote(c *gin.Context) {
	var req CastVoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	vote, err := h.votes.CastVote(c.Param("code"), req.StoryID, req.UserName, req.Value)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, services.ErrRoomNotFound) || errors.Is(err, services.ErrStoryNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, vote)
}

// ListVotes returns the votes for one story. While the room has show_votes
// off, every value except the caller's own is blanked; the count still shows
// who has voted.
func (h *VoteHandler) ListVotes(c *gin.Context) {
	room, err := h.rooms.GetRoomByCode(c.Param("code"))
	if err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error()})
		return
	}

	storyID, err := strconv.ParseUint(c.Query("story_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid story_id"})
		return
	}

	votes, err := h.votes.ListVotes(room.Code, uint(storyID))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	if !room.ShowVotes {
		caller := c.Query("user")
		for i := range votes {
			if votes[i].UserName != caller {
				votes[i].VoteValue = nil
			}
		}
	}
	c.JSON(http.StatusOK, votes)
}

// GetStatistics aggregates the current story's votes once they are revealed.
func (h *VoteHandler) GetStatistics(c *gin.Context) {
	room, err := h.rooms.GetRoomByCode(c.Param("code"))
	if err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error()})
		return
	}
	if room.CurrentStory == nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "no current story selected"})
		return
	}
	if !room.ShowVotes {
		c.JSON(http.StatusConflict, ErrorResponse{Error: "votes are hidden"})
		return
	}

	votes, err := h.votes.ListVotes(room.Code, *room.CurrentStory)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, services.CalculateStatistics(votes))
}
