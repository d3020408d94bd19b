package handlers

import "github.com/damain/planning-poker/internal/models"

// Type aliases so swag can resolve models in annotations.
type Room = models.Room
type Story = models.Story
type Vote = models.Vote

type ErrorResponse struct {
	Error string `json:"error" example:"something went wrong"`
}

type MessageResponse struct {
	Message string `json:"message" example:"operation successful"`
}
