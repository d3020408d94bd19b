package services

import (
	"errors"
	"strings"

	"github.com/damain/planning-poker/internal/feed"
	"github.com/damain/planning-poker/internal/models"

	"gorm.io/gorm"
)

var ErrStoryNotFound = errors.New("story not found")

type StoryService struct {
	db    *gorm.DB
	bus   *feed.Bus
	rooms *RoomService
}

func NewStoryService(db *gorm.DB, bus *feed.Bus, rooms *RoomService) *StoryService {
	return &StoryService{db: db, bus: bus, rooms: rooms}
}

// AddStory creates a story in the room. The first story of a room becomes the
// current story automatically.
func (s *StoryService) AddStory(roomCode, title string, description *string) (*models.Story, error) {
	if strings.TrimSpace(title) == "" {
		return nil, errors.New("story title is required")
	}

	room, err := s.rooms.GetRoomByCode(roomCode)
	if err != nil {
		return nil, err
	}

	story := models.Story{
		RoomCode:    room.Code,
		Title:       title,
		Description: description,
	}
	if err := s.db.Create(&story).Error; err != nil {
		return nil, err
	}

	s.bus.Publish(feed.Event{
		Type:     feed.EventInsert,
		Table:    feed.TableStories,
		RoomCode: story.RoomCode,
		StoryID:  story.ID,
		New:      story,
	})

	if room.CurrentStory == nil {
		if _, err := s.rooms.SelectStory(room.Code, &story.ID); err != nil {
			return nil, err
		}
	}
	return &story, nil
}

func (s *StoryService) ListStories(roomCode string) ([]models.Story, error) {
	var stories []models.Story
	if err := s.db.Where("room_code = ?", NormalizeCode(roomCode)).
		Order("created_at DESC").
		Find(&stories).Error; err != nil {
		return nil, err
	}
	return stories, nil
}

func (s *StoryService) EditStory(storyID uint, title string, description *string) (*models.Story, error) {
	if strings.TrimSpace(title) == "" {
		return nil, errors.New("story title is required")
	}
	return s.updateStory(storyID, map[string]interface{}{
		"title":       title,
		"description": description,
	})
}

func (s *StoryService) SetFinalEstimate(storyID uint, estimate int) (*models.Story, error) {
	return s.updateStory(storyID, map[string]interface{}{"final_estimate": estimate})
}

// AnonymizeStory overwrites title and description with the placeholder.
// Irreversible; votes and final_estimate are untouched.
func (s *StoryService) AnonymizeStory(storyID uint) (*models.Story, error) {
	return s.updateStory(storyID, map[string]interface{}{
		"title":       models.AnonymizedPlaceholder,
		"description": models.AnonymizedPlaceholder,
	})
}

// AnonymizeAllStories applies the placeholder overwrite to every story in the
// room in one statement.
func (s *StoryService) AnonymizeAllStories(roomCode string) ([]models.Story, error) {
	code := NormalizeCode(roomCode)

	var before []models.Story
	if err := s.db.Where("room_code = ?", code).Find(&before).Error; err != nil {
		return nil, err
	}

	if err := s.db.Model(&models.Story{}).
		Where("room_code = ?", code).
		Updates(map[string]interface{}{
			"title":       models.AnonymizedPlaceholder,
			"description": models.AnonymizedPlaceholder,
		}).Error; err != nil {
		return nil, err
	}

	after, err := s.ListStories(code)
	if err != nil {
		return nil, err
	}

	for i := range after {
		s.bus.Publish(feed.Event{
			Type:     feed.EventUpdate,
			Table:    feed.TableStories,
			RoomCode: code,
			StoryID:  after[i].ID,
			Old:      oldByID(before, after[i].ID),
			New:      after[i],
		})
	}
	return after, nil
}

func (s *StoryService) updateStory(storyID uint, updates map[string]interface{}) (*models.Story, error) {
	var story models.Story
	if err := s.db.First(&story, storyID).Error; err != nil {
		return nil, ErrStoryNotFound
	}
	old := story

	if err := s.db.Model(&story).Updates(updates).Error; err != nil {
		return nil, err
	}
	if err := s.db.First(&story, storyID).Error; err != nil {
		return nil, err
	}

	s.bus.Publish(feed.Event{
		Type:     feed.EventUpdate,
		Table:    feed.TableStories,
		RoomCode: story.RoomCode,
		StoryID:  story.ID,
		Old:      old,
		New:      story,
	})
	return &story, nil
}

func oldByID(stories []models.Story, id uint) interface{} {
	for i := range stories {
		if stories[i].ID == id {
			return stories[i]
		}
	}
	return nil
}
