package handlers

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/damain/planning-poker/internal/feed"
	"github.com/damain/planning-poker/internal/presence"
	"github.com/damain/planning-poker/internal/roomstate"
	"github.com/damain/planning-poker/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// WSMessage is the envelope for everything pushed to a client: one initial
// "snapshot", then "change" messages carrying feed events.
type WSMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// clientMessage re-scopes the connection's vote stream. The vote subscription
// for the old story is torn down and replaced in one step.
type clientMessage struct {
	Action  string `json:"action"`
	StoryID uint   `json:"story_id"`
}

type WSHandler struct {
	rooms     *services.RoomService
	store     *services.Store
	bus       *feed.Bus
	manager   *roomstate.Manager
	heartbeat time.Duration
}

func NewWSHandler(rooms *services.RoomService, store *services.Store, bus *feed.Bus, manager *roomstate.Manager, heartbeat time.Duration) *WSHandler {
	return &WSHandler{rooms: rooms, store: store, bus: bus, manager: manager, heartbeat: heartbeat}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// HandleRoomWebSocket godoc
// @Summary      Live change feed for a room
// @Description  Streams room, story, vote and presence change events; the user named in the query is kept present while connected
// @Tags         websocket
// @Param        code path string true "Room code"
// @Param        user query string false "Display name"
// @Router       /ws/room/{code} [get]
func (h *WSHandler) HandleRoomWebSocket(c *gin.Context) {
	code := services.NormalizeCode(c.Param("code"))
	user := c.Query("user")

	room, err := h.rooms.GetRoomByCode(code)
	if err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error()})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("websocket upgrade error: %v", err)
		return
	}

	out := make(chan WSMessage, 32)
	var wg sync.WaitGroup

	// Three streams per connection, plus a vote stream scoped to the
	// current story. Mirrors the per-view subscriptions of the web client.
	roomSub := h.bus.Subscribe(feed.Filter{Table: feed.TableRooms, RoomCode: code})
	storySub := h.bus.Subscribe(feed.Filter{Table: feed.TableStories, RoomCode: code})
	userSub := h.bus.Subscribe(feed.Filter{Table: feed.TableRoomUsers, RoomCode: code})
	h.forward(&wg, roomSub, out)
	h.forward(&wg, storySub, out)
	h.forward(&wg, userSub, out)

	var voteSub *feed.Subscription
	if room.CurrentStory != nil {
		voteSub = h.bus.Subscribe(feed.Filter{Table: feed.TableVotes, RoomCode: code, StoryID: *room.CurrentStory})
		h.forward(&wg, voteSub, out)
	}

	// The tab-open lifetime of the original maps to the socket's lifetime:
	// join on connect, heartbeat while connected, expire after disconnect.
	ctx, cancel := context.WithCancel(context.Background())
	if user != "" {
		tracker := presence.NewTracker(h.store, h.bus, code, user, h.heartbeat)
		wg.Add(1)
		go func() {
			defer wg.Done()
			tracker.Run(ctx)
		}()
	}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for msg := range out {
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("ws: write error for room %s: %v", code, err)
				return
			}
		}
	}()

	if snap, err := h.manager.Snapshot(code); err == nil {
		out <- WSMessage{Type: "snapshot", Data: snap}
	}

	for {
		var msg clientMessage
		if err := conn.ReadJSON(&msg); err != nil {
			break
		}
		switch msg.Action {
		case "scope_votes":
			if voteSub != nil {
				voteSub.Unsubscribe()
			}
			voteSub = h.bus.Subscribe(feed.Filter{Table: feed.TableVotes, RoomCode: code, StoryID: msg.StoryID})
			h.forward(&wg, voteSub, out)
		case "unscope_votes":
			if voteSub != nil {
				voteSub.Unsubscribe()
				voteSub = nil
			}
		}
	}

	cancel()
	roomSub.Unsubscribe()
	storySub.Unsubscribe()
	userSub.Unsubscribe()
	if voteSub != nil {
		voteSub.Unsubscribe()
	}
	wg.Wait()
	close(out)
	<-writerDone
	conn.Close()
}

func (h *WSHandler) forward(wg *sync.WaitGroup, sub *feed.Subscription, out chan<- WSMessage) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		for ev := range sub.Events() {
			select {
			case out <- WSMessage{Type: "change", Data: ev}:
			default:
				log.Printf("ws: dropping %s %s event for slow client", ev.Type, ev.Table)
			}
		}
	}()
}
