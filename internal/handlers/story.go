package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/damain/planning-poker/internal/services"

	"github.com/gin-gonic/gin"
)

type StoryHandler struct {
	stories *services.StoryService
}

func NewStoryHandler(stories *services.StoryService) *StoryHandler {
	return &StoryHandler{stories: stories}
}

type AddStoryRequest struct {
	Title       string  `json:"title" example:"As a user I can vote"`
	Description *string `json:"description,omitempty"`
}

type EditStoryRequest struct {
	Title       string  `json:"title"`
	Description *string `json:"description,omitempty"`
}

type FinalEstimateRequest struct {
	Estimate *int `json:"estimate" binding:"required"`
}

// AddStory godoc
// @Summary      Add a story to a room
// @Description  Title is required. The first story of a room becomes the current story.
// @Tags         stories
// @Accept       json
// @Produce      json
// @Param        code path string true "Room code"
// @Param        request body AddStoryRequest true "Story data"
// @Success      201 {object} Story
// @Failure      400 {object} ErrorResponse
// @Router       /api/v1/rooms/{code}/stories [post]
func (h *StoryHandler) AddStory(c *gin.Context) {
	var req AddStoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	story, err := h.stories.AddStory(c.Param("code"), req.Title, req.Description)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, services.ErrRoomNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusCreated, story)
}

func (h *StoryHandler) ListStories(c *gin.Context) {
	stories, err := h.stories.ListStories(c.Param("code"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, stories)
}

func (h *StoryHandler) EditStory(c *gin.Context) {
	storyID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid story id"})
		return
	}

	var req EditStoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	story, err := h.stories.EditStory(uint(storyID), req.Title, req.Description)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, services.ErrStoryNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, story)
}

func (h *StoryHandler) SetFinalEstimate(c *gin.Context) {
	storyID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid story id"})
		return
	}

	var req FinalEstimateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	story, err := h.stories.SetFinalEstimate(uint(storyID), *req.Estimate)
	if err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, story)
}

// AnonymizeStory godoc
// @Summary      Anonymize one story
// @Description  Irreversibly overwrites title and description with a placeholder. Votes and final estimate are untouched.
// @Tags         stories
// @Produce      json
// @Param        id path int true "Story ID"
// @Success      200 {object} Story
// @Failure      404 {object} ErrorResponse
// @Router       /api/v1/stories/{id}/anonymize [post]
func (h *StoryHandler) AnonymizeStory(c *gin.Context) {
	storyID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid story id"})
		return
	}

	story, err := h.stories.AnonymizeStory(uint(storyID))
	if err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, story)
}

func (h *StoryHandler) AnonymizeAllStories(c *gin.Context) {
	stories, err := h.stories.AnonymizeAllStories(c.Param("code"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, stories)
}
