package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/damain/planning-poker/internal/feed"
	"github.com/damain/planning-poker/internal/roomstate"
	"github.com/damain/planning-poker/internal/services"
	"github.com/damain/planning-poker/internal/testutil"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newWSServer(t *testing.T) (*httptest.Server, *services.Store) {
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

	testutil.CreateTestRoom(t, db, "ABCDEF")

	wsHandler := NewWSHandler(roomService, store, bus, manager, time.Hour)
	r := gin.New()
	r.GET("/ws/room/:code", wsHandler.HandleRoomWebSocket)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, store
}

func readMessage(t *testing.T, conn *websocket.Conn) WSMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg WSMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestWebSocketSendsSnapshotThenChanges(t *testing.T) {
	srv, store := newWSServer(t)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/room/abcdef?user=alice"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	defer resp.Body.Close()

	// The join triggered by connecting can race the snapshot onto the wire,
	// so only the pair is asserted, not the order.
	var sawSnapshot, sawJoin bool
	for i := 0; i < 2; i++ {
		msg := readMessage(t, conn)
		switch msg.Type {
		case "snapshot":
			sawSnapshot = true
		case "change":
			raw, err := json.Marshal(msg.Data)
			require.NoError(t, err)
			var ev feed.Event
			require.NoError(t, json.Unmarshal(raw, &ev))
			assert.Equal(t, feed.TableRoomUsers, ev.Table)
			assert.Equal(t, "ABCDEF", ev.RoomCode)
			sawJoin = true
		}
	}
	assert.True(t, sawSnapshot, "no snapshot message")
	assert.True(t, sawJoin, "no presence change message")

	// A story added elsewhere reaches the open connection.
	_, err = store.AddStory("ABCDEF", "login flow", nil)
	require.NoError(t, err)

	sawStory := false
	deadline := time.Now().Add(2 * time.Second)
	for !sawStory && time.Now().Before(deadline) {
		msg := readMessage(t, conn)
		if msg.Type != "change" {
			continue
		}
		raw, err := json.Marshal(msg.Data)
		require.NoError(t, err)
		var ev feed.Event
		require.NoError(t, json.Unmarshal(raw, &ev))
		if ev.Table == feed.TableStories {
			sawStory = true
		}
	}
	assert.True(t, sawStory, "story change never arrived")
}

func TestWebSocketRejectsUnknownRoom(t *testing.T) {
	srv, _ := newWSServer(t)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/room/NOPE00"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	if resp != nil {
		defer resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	}
}

func TestWebSocketVoteScoping(t *testing.T) {
	srv, store := newWSServer(t)

	story, err := store.AddStory("ABCDEF", "first", nil)
	require.NoError(t, err)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/room/ABCDEF"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	defer resp.Body.Close()

	msg := readMessage(t, conn)
	require.Equal(t, "snapshot", msg.Type)

	// The room's current story was set before connecting, so its votes are
	// already scoped in.
	_, err = store.CastVote("ABCDEF", story.ID, "alice", 5)
	require.NoError(t, err)

	sawVote := false
	deadline := time.Now().Add(2 * time.Second)
	for !sawVote && time.Now().Before(deadline) {
		msg := readMessage(t, conn)
		if msg.Type != "change" {
			continue
		}
		raw, err := json.Marshal(msg.Data)
		require.NoError(t, err)
		var ev feed.Event
		require.NoError(t, json.Unmarshal(raw, &ev))
		if ev.Table == feed.TableVotes && ev.StoryID == story.ID {
			sawVote = true
		}
	}
	assert.True(t, sawVote, "vote change never arrived")
}
