package services

// Store aggregates the services behind one value for consumers that need the
// whole persistence surface, such as the room state reconciler.
type Store struct {
	*RoomService
	*StoryService
	*VoteService
	*PresenceService
}

func NewStore(rooms *RoomService, stories *StoryService, votes *VoteService, presence *PresenceService) *Store {
	return &Store{
		RoomService:     rooms,
		StoryService:    stories,
		VoteService:     votes,
		PresenceService: presence,
	}
}
