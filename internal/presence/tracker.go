// Package presence keeps one participant's liveness in a room: it joins on
// start, heartbeats on a fixed interval while the view is open, and rederives
// the active-user set whenever the room's presence records change.
package presence

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/damain/planning-poker/internal/feed"
	"github.com/damain/planning-poker/internal/models"
)

type Store interface {
	Join(roomCode, userName string) (*models.RoomUser, error)
	Heartbeat(roomCode, userName string) error
	ActiveUsers(roomCode string) ([]string, error)
}

type Tracker struct {
	store    Store
	sub      *feed.Subscription
	room     string
	user     string
	interval time.Duration

	mu     sync.RWMutex
	active []string
}

func NewTracker(store Store, bus *feed.Bus, room, user string, interval time.Duration) *Tracker {
	return &Tracker{
		store:    store,
		sub:      bus.Subscribe(feed.Filter{Table: feed.TableRoomUsers, RoomCode: room}),
		room:     room,
		user:     user,
		interval: interval,
	}
}

// Run joins the room and keeps last_seen fresh until ctx is cancelled. The
// subscription is released on return; no heartbeats or updates escape the
// tracker's lifetime.
func (t *Tracker) Run(ctx context.Context) {
	defer t.sub.Unsubscribe()

	if _, err := t.store.Join(t.room, t.user); err != nil {
		log.Printf("presence: join failed for %s in %s: %v", t.user, t.room, err)
	}
	t.refresh()

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := t.store.Heartbeat(t.room, t.user); err != nil {
				log.Printf("presence: heartbeat failed for %s in %s: %v", t.user, t.room, err)
			}
		case _, ok := <-t.sub.Events():
			if !ok {
				return
			}
			// Any insert/update/delete on the room's presence set
			// triggers a full re-derivation; the store is
			// authoritative, so incremental patching is never
			// attempted. Replayed events converge to the same set.
			t.refresh()
		}
	}
}

// ActiveUsers returns the last derived active set, sorted.
func (t *Tracker) ActiveUsers() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]string(nil), t.active...)
}

func (t *Tracker) refresh() {
	users, err := t.store.ActiveUsers(t.room)
	if err != nil {
		// Keep the previous set; a later event or tick will retry.
		log.Printf("presence: active user fetch failed for %s: %v", t.room, err)
		return
	}
	t.mu.Lock()
	t.active = users
	t.mu.Unlock()
}
