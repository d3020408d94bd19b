package services

import (
	"errors"
	"math/rand"
	"strings"

	"github.com/damain/planning-poker/internal/feed"
	"github.com/damain/planning-poker/internal/models"

	"gorm.io/gorm"
)

// ErrRoomNotFound deliberately collapses "does not exist" and "exists but
// inactive" into one message.
var ErrRoomNotFound = errors.New("room not found or inactive")

type RoomService struct {
	db  *gorm.DB
	bus *feed.Bus
}

func NewRoomService(db *gorm.DB, bus *feed.Bus) *RoomService {
	return &RoomService{db: db, bus: bus}
}

func (s *RoomService) CreateRoom(name string) (*models.Room, error) {
	if strings.TrimSpace(name) == "" {
		return nil, errors.New("room name is required")
	}

	room := models.Room{
		Code:        s.generateUniqueCode(),
		Name:        name,
		Active:      true,
		ShowVotes:   false,
		VotingScale: models.ScaleFibonacci,
	}
	if err := s.db.Create(&room).Error; err != nil {
		return nil, err
	}

	s.bus.Publish(feed.Event{
		Type:     feed.EventInsert,
		Table:    feed.TableRooms,
		RoomCode: room.Code,
		New:      room,
	})
	return &room, nil
}

func (s *RoomService) GetRoomByCode(code string) (*models.Room, error) {
	var room models.Room
	if err := s.db.Where("code = ? AND active = ?", NormalizeCode(code), true).
		First(&room).Error; err != nil {
		return nil, ErrRoomNotFound
	}
	return &room, nil
}

// JoinRoom validates the room and checks that the display name is not already
// present. The check is read-before-write and therefore racy under concurrent
// joins; presence rows themselves are written with an atomic upsert.
func (s *RoomService) JoinRoom(code, userName string) (*models.Room, error) {
	if strings.TrimSpace(userName) == "" {
		return nil, errors.New("user name is required")
	}

	room, err := s.GetRoomByCode(code)
	if err != nil {
		return nil, err
	}

	var count int64
	s.db.Model(&models.RoomUser{}).
		Where("room_code = ? AND user_name = ?", room.Code, userName).
		Count(&count)
	if count > 0 {
		return nil, errors.New("username is already taken in this room")
	}

	return room, nil
}

// SelectStory points the room at a new current story. Hiding votes is the
// default state for a newly selected story, so show_votes resets in the same
// update.
func (s *RoomService) SelectStory(code string, storyID *uint) (*models.Room, error) {
	room, err := s.GetRoomByCode(code)
	if err != nil {
		return nil, err
	}

	if storyID != nil {
		var count int64
		s.db.Model(&models.Story{}).
			Where("id = ? AND room_code = ?", *storyID, room.Code).
			Count(&count)
		if count == 0 {
			return nil, errors.New("story not found in room")
		}
	}

	return s.updateRoom(room, map[string]interface{}{
		"current_story": storyID,
		"show_votes":    false,
	})
}

func (s *RoomService) ToggleShowVotes(code string, show bool) (*models.Room, error) {
	room, err := s.GetRoomByCode(code)
	if err != nil {
		return nil, err
	}
	return s.updateRoom(room, map[string]interface{}{"show_votes": show})
}

func (s *RoomService) SetVotingScale(code, scale string) (*models.Room, error) {
	if scale != models.ScaleFibonacci && scale != models.ScaleLinear {
		return nil, errors.New("voting scale must be fibonacci or linear")
	}
	room, err := s.GetRoomByCode(code)
	if err != nil {
		return nil, err
	}
	return s.updateRoom(room, map[string]interface{}{"voting_scale": scale})
}

func (s *RoomService) updateRoom(room *models.Room, updates map[string]interface{}) (*models.Room, error) {
	old := *room
	if err := s.db.Model(room).Updates(updates).Error; err != nil {
		return nil, err
	}

	var updated models.Room
	if err := s.db.First(&updated, room.ID).Error; err != nil {
		return nil, err
	}

	s.bus.Publish(feed.Event{
		Type:     feed.EventUpdate,
		Table:    feed.TableRooms,
		RoomCode: updated.Code,
		Old:      old,
		New:      updated,
	})
	return &updated, nil
}

const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

func (s *RoomService) generateUniqueCode() string {
	for {
		b := make([]byte, 6)
		for i := range b {
			b[i] = codeAlphabet[rand.Intn(len(codeAlphabet))]
		}
		code := string(b)

		var count int64
		s.db.Model(&models.Room{}).Where("code = ?", code).Count(&count)
		if count == 0 {
			return code
		}
	}
}

// NormalizeCode uppercases a human-entered room code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
