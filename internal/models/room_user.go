package models

import "time"

// RoomUser is a presence record. "Active" is derived from LastSeen, never
// stored.
type RoomUser struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	RoomCode  string    `gorm:"size:6;not null;uniqueIndex:idx_room_user_unique" json:"room_code"`
	UserName  string    `gorm:"size:100;not null;uniqueIndex:idx_room_user_unique" json:"user_name"`
	LastSeen  time.Time `gorm:"not null;index" json:"last_seen"`
	CreatedAt time.Time `json:"created_at"`
}
