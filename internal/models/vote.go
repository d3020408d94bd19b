package models

import "time"

type Vote struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	RoomCode  string    `gorm:"size:6;not null;index" json:"room_code"`
	StoryID   uint      `gorm:"not null;uniqueIndex:idx_vote_unique" json:"story_id"`
	UserName  string    `gorm:"size:100;not null;uniqueIndex:idx_vote_unique" json:"user_name"`
	VoteValue *int      `json:"vote_value"`
	CreatedAt time.Time `json:"created_at"`
}
