package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/damain/planning-poker/internal/feed"
	"github.com/damain/planning-poker/internal/models"
	"github.com/damain/planning-poker/internal/roomstate"
	"github.com/damain/planning-poker/internal/services"
	"github.com/damain/planning-poker/internal/testutil"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.SetupTestDB(t)
	bus := feed.NewBus()

	roomService := services.NewRoomService(db, bus)
	storyService := services.NewStoryService(db, bus, roomService)
	voteService := services.NewVoteService(db, bus, roomService)
	presenceService := services.NewPresenceService(db, bus, time.Minute)
	store := services.NewStore(roomService, storyService, voteService, presenceService)

	manager := roomstate.NewManager(store, bus)
	t.Cleanup(manager.Stop)

	roomHandler := NewRoomHandler(roomService, manager)
	storyHandler := NewStoryHandler(storyService)
	voteHandler := NewVoteHandler(voteService, roomService)
	presenceHandler := NewPresenceHandler(presenceService, roomService)

	r := gin.New()
	api := r.Group("/api/v1")
	rooms := api.Group("/rooms")
	rooms.POST("", roomHandler.CreateRoom)
	rooms.POST("/join", roomHandler.JoinRoom)
	rooms.GET("/:code", roomHandler.GetRoom)
	rooms.GET("/:code/state", roomHandler.GetRoomState)
	rooms.PUT("/:code/current-story", roomHandler.SelectStory)
	rooms.PUT("/:code/show-votes", roomHandler.ToggleShowVotes)
	rooms.PUT("/:code/voting-scale", roomHandler.SetVotingScale)
	rooms.POST("/:code/stories", storyHandler.AddStory)
	rooms.GET("/:code/stories", storyHandler.ListStories)
	rooms.POST("/:code/stories/anonymize", storyHandler.AnonymizeAllStories)
	rooms.POST("/:code/votes", voteHandler.CastVote)
	rooms.GET("/:code/votes", voteHandler.ListVotes)
	rooms.GET("/:code/votes/statistics", voteHandler.GetStatistics)
	rooms.POST("/:code/presence", presenceHandler.Join)
	rooms.PUT("/:code/presence", presenceHandler.Heartbeat)
	rooms.GET("/:code/users", presenceHandler.ActiveUsers)
	storiesGroup := api.Group("/stories")
	storiesGroup.PUT("/:id", storyHandler.EditStory)
	storiesGroup.PUT("/:id/estimate", storyHandler.SetFinalEstimate)
	storiesGroup.POST("/:id/anonymize", storyHandler.AnonymizeStory)
	return r
}

func do(t *testing.T, r *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), out))
}

func createRoom(t *testing.T, r *gin.Engine, name string) models.Room {
	t.Helper()
	w := do(t, r, http.MethodPost, "/api/v1/rooms", gin.H{"name": name})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var room models.Room
	decode(t, w, &room)
	return room
}

func addStory(t *testing.T, r *gin.Engine, code, title string) models.Story {
	t.Helper()
	w := do(t, r, http.MethodPost, "/api/v1/rooms/"+code+"/stories", gin.H{"title": title})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var story models.Story
	decode(t, w, &story)
	return story
}

func castVote(t *testing.T, r *gin.Engine, code string, storyID uint, user string, value int) {
	t.Helper()
	w := do(t, r, http.MethodPost, "/api/v1/rooms/"+code+"/votes",
		gin.H{"story_id": storyID, "user_name": user, "value": value})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestCreateAndJoinRoom(t *testing.T) {
	r := newTestRouter(t)
	room := createRoom(t, r, "Sprint 42")
	assert.Len(t, room.Code, 6)

	w := do(t, r, http.MethodPost, "/api/v1/rooms/join",
		gin.H{"code": room.Code, "user_name": "alice"})
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(t, r, http.MethodPost, "/api/v1/rooms/join",
		gin.H{"code": "NOPE00", "user_name": "alice"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	// Claim the name, then a second join under it conflicts.
	w = do(t, r, http.MethodPost, "/api/v1/rooms/"+room.Code+"/presence",
		gin.H{"user_name": "alice"})
	require.Equal(t, http.StatusCreated, w.Code)
	w = do(t, r, http.MethodPost, "/api/v1/rooms/join",
		gin.H{"code": room.Code, "user_name": "alice"})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestHiddenVotesAreMaskedAndStatsGated(t *testing.T) {
	r := newTestRouter(t)
	room := createRoom(t, r, "Sprint 42")
	story := addStory(t, r, room.Code, "login flow")

	castVote(t, r, room.Code, story.ID, "alice", 5)
	castVote(t, r, room.Code, story.ID, "bob", 8)

	// Hidden: the list shows who voted, not what.
	w := do(t, r, http.MethodGet,
		fmt.Sprintf("/api/v1/rooms/%s/votes?story_id=%d&user=alice", room.Code, story.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var votes []models.Vote
	decode(t, w, &votes)
	require.Len(t, votes, 2)
	for _, v := range votes {
		if v.UserName == "alice" {
			require.NotNil(t, v.VoteValue)
			assert.Equal(t, 5, *v.VoteValue)
		} else {
			assert.Nil(t, v.VoteValue)
		}
	}

	w = do(t, r, http.MethodGet, "/api/v1/rooms/"+room.Code+"/votes/statistics", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	// Reveal, then statistics open up.
	w = do(t, r, http.MethodPut, "/api/v1/rooms/"+room.Code+"/show-votes", gin.H{"show": true})
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, r, http.MethodGet, "/api/v1/rooms/"+room.Code+"/votes/statistics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var stats services.VoteStatistics
	decode(t, w, &stats)
	assert.Equal(t, 5, stats.Optimistic)
	assert.Equal(t, 7, stats.Likely)
	assert.Equal(t, 8, stats.Pessimistic)
}

func TestRoomStateEndpoint(t *testing.T) {
	r := newTestRouter(t)
	room := createRoom(t, r, "Sprint 42")
	story := addStory(t, r, room.Code, "login flow")

	castVote(t, r, room.Code, story.ID, "alice", 5)
	castVote(t, r, room.Code, story.ID, "bob", 8)

	w := do(t, r, http.MethodPost, "/api/v1/rooms/"+room.Code+"/presence", gin.H{"user_name": "alice"})
	require.Equal(t, http.StatusCreated, w.Code)

	state := func() RoomStateResponse {
		w := do(t, r, http.MethodGet, "/api/v1/rooms/"+room.Code+"/state", nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var resp RoomStateResponse
		decode(t, w, &resp)
		return resp
	}

	// The reconciler behind the endpoint merges changes asynchronously.
	require.Eventually(t, func() bool {
		s := state()
		return len(s.Votes) == 2 && len(s.Users) == 1
	}, 2*time.Second, 20*time.Millisecond)

	hidden := state()
	assert.False(t, hidden.Room.ShowVotes)
	assert.Nil(t, hidden.Statistics)
	for _, v := range hidden.Votes {
		assert.Nil(t, v.VoteValue)
	}
	assert.Equal(t, []int{1, 2, 3, 5, 8, 13, 21}, hidden.ScaleValues)
	assert.Equal(t, []string{"alice"}, hidden.Seating.Bottom)

	w = do(t, r, http.MethodPut, "/api/v1/rooms/"+room.Code+"/show-votes", gin.H{"show": true})
	require.Equal(t, http.StatusOK, w.Code)

	require.Eventually(t, func() bool {
		s := state()
		return s.Room.ShowVotes && s.Statistics != nil
	}, 2*time.Second, 20*time.Millisecond)

	revealed := state()
	require.NotNil(t, revealed.Statistics)
	assert.Equal(t, services.VoteStatistics{Optimistic: 5, Likely: 7, Pessimistic: 8}, *revealed.Statistics)
}

func TestSwitchingStoryClearsVotesInState(t *testing.T) {
	r := newTestRouter(t)
	room := createRoom(t, r, "Sprint 42")
	first := addStory(t, r, room.Code, "first")
	second := addStory(t, r, room.Code, "second")

	castVote(t, r, room.Code, first.ID, "alice", 5)

	w := do(t, r, http.MethodPut, "/api/v1/rooms/"+room.Code+"/show-votes", gin.H{"show": true})
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, r, http.MethodPut, "/api/v1/rooms/"+room.Code+"/current-story",
		gin.H{"story_id": second.ID})
	require.Equal(t, http.StatusOK, w.Code)

	require.Eventually(t, func() bool {
		w := do(t, r, http.MethodGet, "/api/v1/rooms/"+room.Code+"/state", nil)
		if w.Code != http.StatusOK {
			return false
		}
		var resp RoomStateResponse
		decode(t, w, &resp)
		return resp.Room.CurrentStory != nil &&
			*resp.Room.CurrentStory == second.ID &&
			len(resp.Votes) == 0 &&
			!resp.Room.ShowVotes
	}, 2*time.Second, 20*time.Millisecond)
}

func TestVotingScaleEndpoint(t *testing.T) {
	r := newTestRouter(t)
	room := createRoom(t, r, "Sprint 42")

	w := do(t, r, http.MethodPut, "/api/v1/rooms/"+room.Code+"/voting-scale", gin.H{"scale": "linear"})
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, r, http.MethodPut, "/api/v1/rooms/"+room.Code+"/voting-scale", gin.H{"scale": "tshirt"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	story := addStory(t, r, room.Code, "login flow")
	w = do(t, r, http.MethodPost, "/api/v1/rooms/"+room.Code+"/votes",
		gin.H{"story_id": story.ID, "user_name": "alice", "value": 21})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	castVote(t, r, room.Code, story.ID, "alice", 25)
}

func TestStoryLifecycleEndpoints(t *testing.T) {
	r := newTestRouter(t)
	room := createRoom(t, r, "Sprint 42")
	story := addStory(t, r, room.Code, "draft")

	w := do(t, r, http.MethodPut, fmt.Sprintf("/api/v1/stories/%d", story.ID),
		gin.H{"title": "login flow", "description": "as a user I can log in"})
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, r, http.MethodPut, fmt.Sprintf("/api/v1/stories/%d/estimate", story.ID),
		gin.H{"estimate": 8})
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, r, http.MethodPost, fmt.Sprintf("/api/v1/stories/%d/anonymize", story.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var anon models.Story
	decode(t, w, &anon)
	assert.Equal(t, models.AnonymizedPlaceholder, anon.Title)
	require.NotNil(t, anon.FinalEstimate)
	assert.Equal(t, 8, *anon.FinalEstimate)

	addStory(t, r, room.Code, "another")
	w = do(t, r, http.MethodPost, "/api/v1/rooms/"+room.Code+"/stories/anonymize", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var all []models.Story
	decode(t, w, &all)
	require.Len(t, all, 2)
	for _, s := range all {
		assert.Equal(t, models.AnonymizedPlaceholder, s.Title)
	}
}

func TestPresenceEndpoints(t *testing.T) {
	r := newTestRouter(t)
	room := createRoom(t, r, "Sprint 42")

	for _, user := range []string{"carol", "alice", "bob"} {
		w := do(t, r, http.MethodPost, "/api/v1/rooms/"+room.Code+"/presence", gin.H{"user_name": user})
		require.Equal(t, http.StatusCreated, w.Code)
	}

	w := do(t, r, http.MethodPut, "/api/v1/rooms/"+room.Code+"/presence", gin.H{"user_name": "alice"})
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, r, http.MethodGet, "/api/v1/rooms/"+room.Code+"/users", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp ActiveUsersResponse
	decode(t, w, &resp)
	assert.Equal(t, []string{"alice", "bob", "carol"}, resp.Users)
	assert.Len(t, resp.Seating.Bottom, 1)
	assert.Len(t, resp.Seating.Top, 1)
	assert.Len(t, resp.Seating.Left, 1)
	assert.Empty(t, resp.Seating.Right)
}
