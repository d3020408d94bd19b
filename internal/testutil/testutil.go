// Package testutil spins up an in-memory database with the full schema for
// package-level tests.
package testutil

import (
	"fmt"
	"testing"

	"github.com/damain/planning-poker/internal/models"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SetupTestDB opens a fresh shared in-memory database and migrates the full
// schema. The shared cache keeps every pooled connection on the same store,
// which matters for tests that touch the database from multiple goroutines.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	err = db.AutoMigrate(
		&models.Room{},
		&models.Story{},
		&models.Vote{},
		&models.RoomUser{},
	)
	if err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	return db
}

// CreateTestRoom inserts an active room with the given code.
func CreateTestRoom(t *testing.T, db *gorm.DB, code string) *models.Room {
	t.Helper()

	room := models.Room{
		Code:        code,
		Name:        "Test Room",
		Active:      true,
		VotingScale: models.ScaleFibonacci,
	}
	if err := db.Create(&room).Error; err != nil {
		t.Fatalf("failed to create test room: %v", err)
	}
	return &room
}

// CreateTestStory inserts a story into the given room.
func CreateTestStory(t *testing.T, db *gorm.DB, roomCode, title string) *models.Story {
	t.Helper()

	story := models.Story{RoomCode: roomCode, Title: title}
	if err := db.Create(&story).Error; err != nil {
		t.Fatalf("failed to create test story: %v", err)
	}
	return &story
}
