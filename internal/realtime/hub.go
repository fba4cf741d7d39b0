// Package realtime pushes board notices to websocket clients grouped by
// sprint and team rooms.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"sprintboard/internal/board"
	"sprintboard/internal/logger"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period
	pingPeriod = (pongWait * 9) / 10

	// Clients only answer pings; anything bigger is dropped
	maxMessageSize = 512

	sendBuffer = 64
)

// ErrHubStopped is returned when a client connects after Run has returned.
var ErrHubStopped = errors.New("realtime hub stopped")

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// SprintRoom names the room of one sprint board.
func SprintRoom(id int64) string { return fmt.Sprintf("sprint:%d", id) }

// TeamRoom names the room of one team.
func TeamRoom(id int64) string { return fmt.Sprintf("team:%d", id) }

type message struct {
	rooms []string
	data  []byte
}

// Hub maintains the set of active clients and routes notices to rooms.
type Hub struct {
	log *logger.Logger

	register   chan *Client
	unregister chan *Client
	broadcast  chan message
	done       chan struct{}

	mu    sync.RWMutex
	rooms map[string]map[*Client]struct{}
}

// Client is one websocket connection subscribed to a set of rooms.
type Client struct {
	ID    string
	hub   *Hub
	conn  *websocket.Conn
	send  chan []byte
	rooms []string
}

func NewHub(log *logger.Logger) *Hub {
	if log == nil {
		log = logger.Nop()
	}
	return &Hub{
		log:        log,
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan message, sendBuffer),
		done:       make(chan struct{}),
		rooms:      make(map[string]map[*Client]struct{}),
	}
}

// Run routes registrations and notices until ctx is cancelled, then
// disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clientsLocked() {
				h.dropLocked(c)
			}
			h.mu.Unlock()
			return

		case c := <-h.register:
			h.mu.Lock()
			for _, room := range c.rooms {
				if h.rooms[room] == nil {
					h.rooms[room] = make(map[*Client]struct{})
				}
				h.rooms[room][c] = struct{}{}
			}
			h.mu.Unlock()
			h.log.Debugw("client connected", "client_id", c.ID, "rooms", c.rooms)

		case c := <-h.unregister:
			h.mu.Lock()
			h.dropLocked(c)
			h.mu.Unlock()

		case m := <-h.broadcast:
			h.mu.Lock()
			seen := make(map[*Client]struct{})
			for _, room := range m.rooms {
				for c := range h.rooms[room] {
					if _, dup := seen[c]; dup {
						continue
					}
					seen[c] = struct{}{}
					select {
					case c.send <- m.data:
					default:
						h.log.Warnw("dropping slow client", "client_id", c.ID)
						h.dropLocked(c)
					}
				}
			}
			h.mu.Unlock()
		}
	}
}

// Notify implements board.Notifier. Sprint notices go to the sprint room,
// team notices to the team room.
func (h *Hub) Notify(ctx context.Context, n board.Notice) {
	var rooms []string
	if n.SprintID > 0 {
		rooms = append(rooms, SprintRoom(n.SprintID))
	}
	if n.TeamID > 0 {
		rooms = append(rooms, TeamRoom(n.TeamID))
	}
	if len(rooms) == 0 {
		return
	}

	data, err := json.Marshal(n)
	if err != nil {
		h.log.Errorw("encode notice", "error", err)
		return
	}

	select {
	case h.broadcast <- message{rooms: rooms, data: data}:
	case <-h.done:
	case <-ctx.Done():
	}
}

// Clients counts the clients subscribed to room.
func (h *Hub) Clients(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// Serve upgrades the request to a websocket subscribed to rooms.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, rooms ...string) error {
	if len(rooms) == 0 {
		return errors.New("websocket client needs at least one room")
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("upgrade websocket: %w", err)
	}

	c := &Client{
		ID:    uuid.NewString(),
		hub:   h,
		conn:  conn,
		send:  make(chan []byte, sendBuffer),
		rooms: rooms,
	}

	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return ErrHubStopped
	}

	go c.writePump()
	go c.readPump()
	return nil
}

func (h *Hub) clientsLocked() map[*Client]struct{} {
	all := make(map[*Client]struct{})
	for _, members := range h.rooms {
		for c := range members {
			all[c] = struct{}{}
		}
	}
	return all
}

// dropLocked removes c from its rooms and closes its send channel once.
func (h *Hub) dropLocked(c *Client) {
	registered := false
	for _, room := range c.rooms {
		members, ok := h.rooms[room]
		if !ok {
			continue
		}
		if _, ok := members[c]; ok {
			registered = true
			delete(members, c)
		}
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	if registered {
		close(c.send)
		h.log.Debugw("client disconnected", "client_id", c.ID)
	}
}

func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Debugw("websocket closed", "client_id", c.ID, "error", err)
			}
			return
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
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
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
