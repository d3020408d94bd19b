// Package roomstate keeps a live local snapshot of one room (the room row,
// its stories, the votes for the current story, and the active users)
// consistent with the store under asynchronous change notifications.
package roomstate

import (
	"log"
	"sync"

	"github.com/damain/planning-poker/internal/feed"
	"github.com/damain/planning-poker/internal/models"
)

// Store is the persistence surface the reconciler reads from. Writes go
// through command handlers, never through the reconciler.
type Store interface {
	GetRoomByCode(code string) (*models.Room, error)
	ListStories(roomCode string) ([]models.Story, error)
	ListVotes(roomCode string, storyID uint) ([]models.Vote, error)
	ActiveUsers(roomCode string) ([]string, error)
}

// Snapshot is a consistent copy of the reconciled room state.
type Snapshot struct {
	Room    models.Room    `json:"room"`
	Stories []models.Story `json:"stories"`
	Votes   []models.Vote  `json:"votes"`
	Users   []string       `json:"users"`
}

// Reconciler owns the local state for one room. It bulk-loads once, then
// merges pushed change events: stories and votes incrementally by id,
// presence by full re-derivation. Merges are idempotent, so duplicate or
// replayed events converge to the same state.
type Reconciler struct {
	store Store
	bus   *feed.Bus
	code  string

	mu      sync.RWMutex
	room    models.Room
	stories []models.Story
	votes   []models.Vote
	users   []string
	voteSub *feed.Subscription
	closed  bool

	roomSub   *feed.Subscription
	storySub  *feed.Subscription
	userSub   *feed.Subscription
	done      chan struct{}
	closeOnce sync.Once
}

// New loads the room and goes live. Subscriptions are established before the
// bulk fetch; anything pushed during the fetch is merged idempotently once
// the event loop starts.
func New(store Store, bus *feed.Bus, code string) (*Reconciler, error) {
	r := &Reconciler{
		store: store,
		bus:   bus,
		code:  code,
		done:  make(chan struct{}),
	}

	r.roomSub = bus.Subscribe(feed.Filter{Table: feed.TableRooms, RoomCode: code})
	r.storySub = bus.Subscribe(feed.Filter{Table: feed.TableStories, RoomCode: code})
	r.userSub = bus.Subscribe(feed.Filter{Table: feed.TableRoomUsers, RoomCode: code})

	room, err := store.GetRoomByCode(code)
	if err != nil {
		r.roomSub.Unsubscribe()
		r.storySub.Unsubscribe()
		r.userSub.Unsubscribe()
		return nil, err
	}
	r.room = *room

	stories, err := store.ListStories(code)
	if err != nil {
		r.Close()
		return nil, err
	}
	r.stories = stories

	if room.CurrentStory != nil {
		r.voteSub = bus.Subscribe(feed.Filter{
			Table:    feed.TableVotes,
			RoomCode: code,
			StoryID:  *room.CurrentStory,
		})
		votes, err := store.ListVotes(code, *room.CurrentStory)
		if err != nil {
			r.Close()
			return nil, err
		}
		r.votes = votes
	}

	if users, err := store.ActiveUsers(code); err == nil {
		r.users = users
	}

	go r.run()
	return r, nil
}

// Snapshot returns a copy of the current reconciled state.
func (r *Reconciler) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Snapshot{
		Room:    r.room,
		Stories: append([]models.Story(nil), r.stories...),
		Votes:   append([]models.Vote(nil), r.votes...),
		Users:   append([]string(nil), r.users...),
	}
}

// Close tears down every subscription and stops the event loop. Events or
// fetch results arriving afterwards are no-ops.
func (r *Reconciler) Close() {
	r.closeOnce.Do(func() {
		r.mu.Lock()
		r.closed = true
		voteSub := r.voteSub
		r.voteSub = nil
		r.mu.Unlock()

		close(r.done)
		r.roomSub.Unsubscribe()
		r.storySub.Unsubscribe()
		r.userSub.Unsubscribe()
		if voteSub != nil {
			voteSub.Unsubscribe()
		}
	})
}

func (r *Reconciler) run() {
	for {
		r.mu.RLock()
		voteSub := r.voteSub
		r.mu.RUnlock()

		var voteCh <-chan feed.Event
		if voteSub != nil {
			voteCh = voteSub.Events()
		}

		select {
		case <-r.done:
			return
		case ev, ok := <-r.roomSub.Events():
			if !ok {
				return
			}
			r.applyRoom(ev)
		case ev, ok := <-r.storySub.Events():
			if !ok {
				return
			}
			r.applyStory(ev)
		case ev, ok := <-voteCh:
			// A closed channel means the subscription was rescoped;
			// the next iteration picks up the replacement.
			if ok {
				r.applyVote(ev)
			}
		case _, ok := <-r.userSub.Events():
			if !ok {
				return
			}
			r.refreshUsers()
		}
	}
}

func (r *Reconciler) applyRoom(ev feed.Event) {
	next, ok := ev.New.(models.Room)
	if !ok {
		return
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	prev := r.room.CurrentStory
	r.room = next
	changed := !sameStory(prev, next.CurrentStory)
	r.mu.Unlock()

	if changed {
		r.rescopeVotes(next.CurrentStory)
	}
}

// rescopeVotes swaps the vote subscription to the new current story. The old
// handle is closed and the replacement installed under one lock, so no event
// for the wrong story can be observed in between.
func (r *Reconciler) rescopeVotes(storyID *uint) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	if r.voteSub != nil {
		r.voteSub.Unsubscribe()
		r.voteSub = nil
	}
	r.votes = nil
	if storyID != nil {
		r.voteSub = r.bus.Subscribe(feed.Filter{
			Table:    feed.TableVotes,
			RoomCode: r.code,
			StoryID:  *storyID,
		})
	}
	r.mu.Unlock()

	if storyID == nil {
		return
	}

	votes, err := r.store.ListVotes(r.code, *storyID)
	if err != nil {
		log.Printf("roomstate: vote fetch failed for %s story %d: %v", r.code, *storyID, err)
		return
	}

	r.mu.Lock()
	// The current story may have moved again, or the reconciler may have
	// closed, while the fetch was in flight.
	if !r.closed && r.room.CurrentStory != nil && *r.room.CurrentStory == *storyID {
		r.votes = votes
	}
	r.mu.Unlock()
}

func (r *Reconciler) applyStory(ev feed.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}

	switch ev.Type {
	case feed.EventDelete:
		if old, ok := ev.Old.(models.Story); ok {
			r.stories = removeStory(r.stories, old.ID)
		}
	case feed.EventInsert:
		st, ok := ev.New.(models.Story)
		if !ok {
			return
		}
		for i := range r.stories {
			if r.stories[i].ID == st.ID {
				return
			}
		}
		// Story lists are newest-first.
		r.stories = append([]models.Story{st}, r.stories...)
	case feed.EventUpdate:
		st, ok := ev.New.(models.Story)
		if !ok {
			return
		}
		for i := range r.stories {
			if r.stories[i].ID == st.ID {
				r.stories[i] = st
				return
			}
		}
		// Unmatched update: tolerated as a no-op.
	}
}

func (r *Reconciler) applyVote(ev feed.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	// A stale event for a previous story can slip in around a rescope.
	if r.room.CurrentStory == nil || ev.StoryID != *r.room.CurrentStory {
		return
	}

	switch ev.Type {
	case feed.EventDelete:
		if old, ok := ev.Old.(models.Vote); ok {
			r.votes = removeVote(r.votes, old.ID)
		}
	case feed.EventInsert:
		v, ok := ev.New.(models.Vote)
		if !ok {
			return
		}
		for i := range r.votes {
			if r.votes[i].ID == v.ID {
				return
			}
		}
		r.votes = append(r.votes, v)
	case feed.EventUpdate:
		v, ok := ev.New.(models.Vote)
		if !ok {
			return
		}
		for i := range r.votes {
			if r.votes[i].ID == v.ID {
				r.votes[i] = v
				return
			}
		}
	}
}

func (r *Reconciler) refreshUsers() {
	users, err := r.store.ActiveUsers(r.code)
	if err != nil {
		log.Printf("roomstate: active user fetch failed for %s: %v", r.code, err)
		return
	}

	r.mu.Lock()
	if !r.closed {
		r.users = users
	}
	r.mu.Unlock()
}

func sameStory(a, b *uint) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func removeStory(stories []models.Story, id uint) []models.Story {
	out := stories[:0]
	for i := range stories {
		if stories[i].ID != id {
			out = append(out, stories[i])
		}
	}
	return out
}

func removeVote(votes []models.Vote, id uint) []models.Vote {
	out := votes[:0]
	for i := range votes {
		if votes[i].ID != id {
			out = append(out, votes[i])
		}
	}
	return out
}
