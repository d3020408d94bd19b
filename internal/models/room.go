package models

import "time"

type Room struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Code         string    `gorm:"size:6;uniqueIndex;not null" json:"code"`
	Name         string    `gorm:"size:100;not null" json:"name"`
	Active       bool      `gorm:"not null;default:true" json:"active"`
	CurrentStory *uint     `json:"current_story"`
	ShowVotes    bool      `gorm:"not null;default:false" json:"show_votes"`
	VotingScale  string    `gorm:"size:20;not null;default:'fibonacci'" json:"voting_scale"`
	Stories      []Story   `gorm:"foreignKey:RoomCode;references:Code" json:"stories,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

const (
	ScaleFibonacci = "fibonacci"
	ScaleLinear    = "linear"
)
