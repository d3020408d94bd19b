package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/damain/planning-poker/internal/feed"
	"github.com/damain/planning-poker/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var fibonacciValues = []int{1, 2, 3, 5, 8, 13, 21}
var linearValues = []int{1, 2, 3, 4, 5, 10, 15, 20, 25}

// ScaleValues returns the fixed card set for a voting scale. Unknown scales
// fall back to fibonacci, mirroring the default.
func ScaleValues(scale string) []int {
	if scale == models.ScaleLinear {
		return append([]int(nil), linearValues...)
	}
	return append([]int(nil), fibonacciValues...)
}

type VoteService struct {
	db    *gorm.DB
	bus   *feed.Bus
	rooms *RoomService
}

func NewVoteService(db *gorm.DB, bus *feed.Bus, rooms *RoomService) *VoteService {
	return &VoteService{db: db, bus: bus, rooms: rooms}
}

// CastVote records a vote for one (story, user) pair. Repeated votes by the
// same user overwrite in place: the write is an atomic upsert keyed on the
// unique (story_id, user_name) index, so two rows can never exist.
func (s *VoteService) CastVote(roomCode string, storyID uint, userName string, value int) (*models.Vote, error) {
	if strings.TrimSpace(userName) == "" {
		return nil, errors.New("user name is required")
	}

	room, err := s.rooms.GetRoomByCode(roomCode)
	if err != nil {
		return nil, err
	}

	var count int64
	s.db.Model(&models.Story{}).
		Where("id = ? AND room_code = ?", storyID, room.Code).
		Count(&count)
	if count == 0 {
		return nil, ErrStoryNotFound
	}

	if !onScale(value, room.VotingScale) {
		return nil, fmt.Errorf("value %d is not on the %s scale", value, room.VotingScale)
	}

	// Prior row only informs the event type; the write itself does not
	// depend on it.
	var prior models.Vote
	existed := s.db.Where("story_id = ? AND user_name = ?", storyID, userName).
		First(&prior).Error == nil

	vote := models.Vote{
		RoomCode:  room.Code,
		StoryID:   storyID,
		UserName:  userName,
		VoteValue: &value,
	}
	err = s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "story_id"}, {Name: "user_name"}},
		DoUpdates: clause.Assignments(map[string]interface{}{"vote_value": value}),
	}).Create(&vote).Error
	if err != nil {
		return nil, err
	}

	var saved models.Vote
	if err := s.db.Where("story_id = ? AND user_name = ?", storyID, userName).
		First(&saved).Error; err != nil {
		return nil, err
	}

	ev := feed.Event{
		Type:     feed.EventInsert,
		Table:    feed.TableVotes,
		RoomCode: saved.RoomCode,
		StoryID:  saved.StoryID,
		New:      saved,
	}
	if existed {
		ev.Type = feed.EventUpdate
		ev.Old = prior
	}
	s.bus.Publish(ev)
	return &saved, nil
}

func (s *VoteService) ListVotes(roomCode string, storyID uint) ([]models.Vote, error) {
	var votes []models.Vote
	if err := s.db.Where("room_code = ? AND story_id = ?", NormalizeCode(roomCode), storyID).
		Order("id ASC").
		Find(&votes).Error; err != nil {
		return nil, err
	}
	return votes, nil
}

func onScale(value int, scale string) bool {
	for _, v := range ScaleValues(scale) {
		if v == value {
			return true
		}
	}
	return false
}
