// Package realtime implements the Realtime Bus (RB): a room-based
// websocket pub/sub hub delivering at-least-once, no-replay sync events
// to subscribed clients (§4.8), grounded on the reference game-session
// backend's Hub/client pump design.
package realtime

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBufferSize = 256
)

// Envelope is the shape of every outbound message (§4.8).
type Envelope struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	ID        uint64      `json:"id,omitempty"`
}

// Event type names from the §4.8 catalogue.
const (
	EventConnectionEstablished = "connection_established"
	EventPong                  = "pong"
	EventSyncStarted           = "sync_started"
	EventSyncProgress          = "sync_progress"
	EventSyncCompleted         = "sync_completed"
	EventSyncFailed            = "sync_failed"
	EventSyncRateLimited       = "sync_rate_limited"
	EventGameAdded             = "game_added"
	EventGameUpdated           = "game_updated"
	EventAchievementUnlocked   = "achievement_unlocked"
	EventSystemNotification    = "system_notification"
	EventRateLimitWarning      = "rate_limit_warning"
	EventConnectionError       = "connection_error"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// inbound is a join/leave/broadcast request routed through the Hub's
// single run loop, keeping room-membership mutation single-threaded.
type inbound struct {
	kind     string // "join", "leave", "broadcast"
	client   *Client
	room     string
	envelope Envelope
}

// Hub owns room membership and per-room sequence numbers; exactly one
// goroutine (run) ever touches its maps, so no mutex guards them.
type Hub struct {
	rooms    map[string]map[*Client]struct{}
	sequence map[string]uint64

	register   chan *Client
	unregister chan *Client
	requests   chan inbound
}

// NewHub constructs a Hub. Callers must start it with go hub.Run().
func NewHub() *Hub {
	return &Hub{
		rooms:      make(map[string]map[*Client]struct{}),
		sequence:   make(map[string]uint64),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		requests:   make(chan inbound, 64),
	}
}

// Run is the Hub's single goroutine loop. It never returns; callers run
// it for the process lifetime.
func (h *Hub) Run() {
	for {
		select {
		case c := <-h.register:
			h.joinRoom(c, c.defaultRoom)

		case c := <-h.unregister:
			h.removeClient(c)

		case req := <-h.requests:
			switch req.kind {
			case "join":
				h.joinRoom(req.client, req.room)
			case "leave":
				h.leaveRoom(req.client, req.room)
			case "broadcast":
				h.broadcastToRoom(req.room, req.envelope)
			}
		}
	}
}

func (h *Hub) joinRoom(c *Client, room string) {
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*Client]struct{})
		h.rooms[room] = members
	}
	members[c] = struct{}{}
	c.rooms[room] = struct{}{}
}

func (h *Hub) leaveRoom(c *Client, room string) {
	if members, ok := h.rooms[room]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	delete(c.rooms, room)
}

func (h *Hub) removeClient(c *Client) {
	for room := range c.rooms {
		h.leaveRoom(c, room)
	}
	close(c.send)
}

// broadcastToRoom mints the next monotonic sequence number for room and
// delivers env to every member. Minting inside the Hub's single goroutine
// (rather than at the publisher) is what keeps ordering correct across
// concurrent PT.Update calls from the same sync job (§4.8).
func (h *Hub) broadcastToRoom(room string, env Envelope) {
	h.sequence[room]++
	env.ID = h.sequence[room]

	members := h.rooms[room]
	for c := range members {
		select {
		case c.send <- env:
		default:
			log.Printf("realtime: dropping slow client in room %s", room)
			h.leaveRoom(c, room)
			close(c.send)
		}
	}
}

// Publish delivers an event to every client that has joined room (e.g.
// "library:{libraryId}"), minting the room's next sequence number.
// Delivery is at-least-once and best-effort: a client whose send buffer
// is full is dropped rather than blocking the whole Hub (§4.8: "no replay
// on reconnect — the client is expected to reconcile").
func (h *Hub) Publish(room, eventType string, data interface{}) {
	h.requests <- inbound{
		kind: "broadcast",
		room: room,
		envelope: Envelope{
			Type:      eventType,
			Data:      data,
			Timestamp: time.Now().UTC(),
		},
	}
}

// Client is one websocket connection registered with a Hub.
type Client struct {
	hub         *Hub
	conn        *websocket.Conn
	send        chan Envelope
	defaultRoom string
	rooms       map[string]struct{}
}

// subscribeRequest is what a client sends to join/leave rooms.
type subscribeRequest struct {
	Action string `json:"action"` // "join_library" | "leave_library" | "ping"
	RoomID string `json:"roomId,omitempty"`
}

// ServeWS upgrades an HTTP request to a websocket connection and
// registers a new Client with hub, subscribed to defaultRoom (typically
// "library:{libraryId}", or "" for a connection that only joins rooms
// explicitly via subscribe messages).
func ServeWS(hub *Hub, defaultRoom string, w http.ResponseWriter, r *http.Request) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	c := &Client{
		hub:         hub,
		conn:        conn,
		send:        make(chan Envelope, sendBufferSize),
		defaultRoom: defaultRoom,
		rooms:       make(map[string]struct{}),
	}

	hub.register <- c
	c.sendJSON(Envelope{Type: EventConnectionEstablished, Timestamp: time.Now().UTC()})

	go c.writePump()
	go c.readPump()
	return nil
}

func (c *Client) sendJSON(env Envelope) {
	select {
	case c.send <- env:
	default:
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var req subscribeRequest
		if err := c.conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("realtime: unexpected close: %v", err)
			}
			return
		}

		switch req.Action {
		case "join_library":
			c.hub.requests <- inbound{kind: "join", client: c, room: req.RoomID}
		case "leave_library":
			c.hub.requests <- inbound{kind: "leave", client: c, room: req.RoomID}
		case "ping":
			c.sendJSON(Envelope{Type: EventPong, Timestamp: time.Now().UTC()})
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case env, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			data, err := json.Marshal(env)
			if err != nil {
				continue
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// LibraryRoom returns the room id for a library's sync events.
func LibraryRoom(libraryID string) string {
	return "library:" + libraryID
}
