package roomstate

import (
	"sync"

	"github.com/damain/planning-poker/internal/feed"
)

// Manager keeps at most one live reconciler per room and hands out consistent
// snapshots. Reconcilers are created on first use and run until Stop.
type Manager struct {
	store Store
	bus   *feed.Bus

	mu    sync.Mutex
	rooms map[string]*Reconciler
}

func NewManager(store Store, bus *feed.Bus) *Manager {
	return &Manager{
		store: store,
		bus:   bus,
		rooms: make(map[string]*Reconciler),
	}
}

// Snapshot returns the reconciled state of the room, starting a reconciler if
// none is live yet.
func (m *Manager) Snapshot(code string) (Snapshot, error) {
	m.mu.Lock()
	rec, ok := m.rooms[code]
	if !ok {
		var err error
		rec, err = New(m.store, m.bus, code)
		if err != nil {
			m.mu.Unlock()
			return Snapshot{}, err
		}
		m.rooms[code] = rec
	}
	m.mu.Unlock()

	return rec.Snapshot(), nil
}

// Stop closes every live reconciler.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for code, rec := range m.rooms {
		rec.Close()
		delete(m.rooms, code)
	}
}
