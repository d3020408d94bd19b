package feed

import (
	"log"
	"sync"

	"github.com/google/uuid"
)

type EventType string

const (
	EventInsert EventType = "INSERT"
	EventUpdate EventType = "UPDATE"
	EventDelete EventType = "DELETE"
)

const (
	TableRooms     = "rooms"
	TableStories   = "stories"
	TableVotes     = "votes"
	TableRoomUsers = "room_users"
)

// Event describes one committed row change. Old carries the prior row on
// UPDATE/DELETE, New the resulting row on INSERT/UPDATE.
type Event struct {
	Type     EventType   `json:"type"`
	Table    string      `json:"table"`
	RoomCode string      `json:"room_code"`
	StoryID  uint        `json:"story_id,omitempty"`
	Old      interface{} `json:"old,omitempty"`
	New      interface{} `json:"new,omitempty"`
}

// Filter is a conjunction of equality predicates. Zero values match anything.
type Filter struct {
	Table    string
	RoomCode string
	StoryID  uint
}

func (f Filter) Matches(ev Event) bool {
	if f.Table != "" && f.Table != ev.Table {
		return false
	}
	if f.RoomCode != "" && f.RoomCode != ev.RoomCode {
		return false
	}
	if f.StoryID != 0 && f.StoryID != ev.StoryID {
		return false
	}
	return true
}

// Subscription is a handle on one filtered event stream. Unsubscribe is
// idempotent and closes the event channel.
type Subscription struct {
	ID     string
	filter Filter
	events chan Event
	bus    *Bus
	once   sync.Once
}

func (s *Subscription) Events() <-chan Event { return s.events }

func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.bus.drop(s.ID)
	})
}

// Bus fans committed row changes out to filtered subscribers in process.
type Bus struct {
	mu   sync.RWMutex
	subs map[string]*Subscription
}

func NewBus() *Bus {
	return &Bus{subs: make(map[string]*Subscription)}
}

func (b *Bus) Subscribe(f Filter) *Subscription {
	sub := &Subscription{
		ID:     uuid.NewString(),
		filter: f,
		events: make(chan Event, 16),
		bus:    b,
	}

	b.mu.Lock()
	b.subs[sub.ID] = sub
	b.mu.Unlock()
	return sub
}

// Publish delivers ev to every matching subscriber. Slow subscribers have
// events dropped rather than blocking the publisher.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subs {
		if !sub.filter.Matches(ev) {
			continue
		}
		select {
		case sub.events <- ev:
		default:
			log.Printf("feed: dropping %s %s event for slow subscriber %s", ev.Type, ev.Table, sub.ID)
		}
	}
}

func (b *Bus) drop(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if sub, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(sub.events)
	}
}
