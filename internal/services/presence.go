package services

import (
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/damain/planning-poker/internal/feed"
	"github.com/damain/planning-poker/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PresenceService struct {
	db     *gorm.DB
	bus    *feed.Bus
	window time.Duration
}

func NewPresenceService(db *gorm.DB, bus *feed.Bus, window time.Duration) *PresenceService {
	return &PresenceService{db: db, bus: bus, window: window}
}

func (s *PresenceService) Window() time.Duration { return s.window }

// Join marks a user present in a room. Insert with fallback to updating
// last_seen on the (room_code, user_name) unique index, so concurrent joins
// of the same name cannot produce duplicate rows.
func (s *PresenceService) Join(roomCode, userName string) (*models.RoomUser, error) {
	if strings.TrimSpace(userName) == "" {
		return nil, errors.New("user name is required")
	}
	return s.touch(NormalizeCode(roomCode), userName)
}

// Heartbeat refreshes last_seen. Same upsert as Join: a record that expired
// out of the store is simply recreated.
func (s *PresenceService) Heartbeat(roomCode, userName string) error {
	_, err := s.touch(NormalizeCode(roomCode), userName)
	return err
}

// ActiveUsers returns the sorted names seen within the presence window.
func (s *PresenceService) ActiveUsers(roomCode string) ([]string, error) {
	cutoff := time.Now().Add(-s.window)

	var records []models.RoomUser
	if err := s.db.Where("room_code = ? AND last_seen >= ?", NormalizeCode(roomCode), cutoff).
		Find(&records).Error; err != nil {
		return nil, err
	}

	users := make([]string, 0, len(records))
	for i := range records {
		users = append(users, records[i].UserName)
	}
	sort.Strings(users)
	return users, nil
}

func (s *PresenceService) touch(roomCode, userName string) (*models.RoomUser, error) {
	now := time.Now()

	var prior models.RoomUser
	existed := s.db.Where("room_code = ? AND user_name = ?", roomCode, userName).
		First(&prior).Error == nil

	record := models.RoomUser{
		RoomCode: roomCode,
		UserName: userName,
		LastSeen: now,
	}
	err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "room_code"}, {Name: "user_name"}},
		DoUpdates: clause.Assignments(map[string]interface{}{"last_seen": now}),
	}).Create(&record).Error
	if err != nil {
		return nil, err
	}

	var saved models.RoomUser
	if err := s.db.Where("room_code = ? AND user_name = ?", roomCode, userName).
		First(&saved).Error; err != nil {
		return nil, err
	}

	ev := feed.Event{
		Type:     feed.EventInsert,
		Table:    feed.TableRoomUsers,
		RoomCode: saved.RoomCode,
		New:      saved,
	}
	if existed {
		ev.Type = feed.EventUpdate
		ev.Old = prior
	}
	s.bus.Publish(ev)
	return &saved, nil
}
