package models

import "time"

type Story struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	RoomCode      string    `gorm:"size:6;not null;index" json:"room_code"`
	Title         string    `gorm:"size:200;not null" json:"title"`
	Description   *string   `json:"description,omitempty"`
	FinalEstimate *int      `json:"final_estimate,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// AnonymizedPlaceholder irreversibly replaces title and description of
// anonymized stories.
const AnonymizedPlaceholder = "anonymized"
