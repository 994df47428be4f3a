package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"lifeline/pkg/logger"
)

// Room naming. A client's own rooms are joined at register time; every
// other membership goes through an authorized join request.
const AdminsRoom = "admins"

func UserRoom(username string) string {
	return "user_" + username
}

func UserIDRoom(hexID string) string {
	return "uid_" + hexID
}

func AdminRoom(hexID string) string {
	return "admin_" + hexID
}

// JoinKind mirrors the client-side join request vocabulary.
type JoinKind string

const (
	JoinSelfIdentity      JoinKind = "self-identity"
	JoinSelfID            JoinKind = "self-id"
	JoinOperatorBroadcast JoinKind = "operator-broadcast"
	JoinOperatorPersonal  JoinKind = "operator-personal"
)

type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	rooms      map[string]map[*Client]bool
	mutex      sync.RWMutex
	log        *logger.Logger
}

// Event is the wire envelope pushed to room members. Data carries a
// minimal projection of the mutated entity, never the full document.
type Event struct {
	Event     string      `json:"event"`
	Room      string      `json:"room,omitempty"`
	Timestamp int64       `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
}

func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		rooms:      make(map[string]map[*Client]bool),
		log:        log,
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)
		}
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	h.clients[client] = true

	// Every connection starts in its own identity rooms.
	h.joinRoom(client, UserRoom(client.Username))
	h.joinRoom(client, UserIDRoom(client.UserID.Hex()))

	if client.IsAdmin() {
		h.joinRoom(client, AdminsRoom)
		h.joinRoom(client, AdminRoom(client.UserID.Hex()))
	}

	h.log.WithUsername(client.Username).Debug("websocket client registered")
}

func (h *Hub) unregisterClient(client *Client) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)

		for roomID, room := range h.rooms {
			if _, exists := room[client]; exists {
				delete(room, client)
				if len(room) == 0 {
					delete(h.rooms, roomID)
				}
			}
		}

		h.log.WithUsername(client.Username).Debug("websocket client unregistered")
	}
}

// HandleJoin evaluates a join request against the caller's authenticated
// identity. Requests that fail the checks are logged and dropped; this
// is a security boundary, the client gets no error back.
func (h *Hub) HandleJoin(client *Client, kind JoinKind, target string) {
	room, ok := h.authorizeJoin(client, kind, target)
	if !ok {
		h.log.WithFields(map[string]interface{}{
			"username": client.Username,
			"kind":     string(kind),
			"target":   target,
		}).Warn("rejected websocket room join")
		return
	}

	h.mutex.Lock()
	h.joinRoom(client, room)
	h.mutex.Unlock()
}

func (h *Hub) authorizeJoin(client *Client, kind JoinKind, target string) (string, bool) {
	switch kind {
	case JoinSelfIdentity:
		// Owners may only watch themselves; operators may watch anyone.
		if target == client.Username || client.IsAdmin() {
			return UserRoom(target), true
		}
	case JoinSelfID:
		if target == client.UserID.Hex() || client.IsAdmin() {
			return UserIDRoom(target), true
		}
	case JoinOperatorBroadcast:
		if client.IsAdmin() {
			return AdminsRoom, true
		}
	case JoinOperatorPersonal:
		// An operator's personal room is theirs alone.
		if client.IsAdmin() && target == client.UserID.Hex() {
			return AdminRoom(target), true
		}
	}
	return "", false
}

// Publish fans an event out to the members of a room. Fire and forget:
// an empty room is a no-op, a client with a full send buffer is dropped.
// The room lock is only held for channel handoff, never for socket I/O.
func (h *Hub) Publish(room, event string, data interface{}) {
	payload, err := json.Marshal(Event{
		Event:     event,
		Room:      room,
		Timestamp: time.Now().Unix(),
		Data:      data,
	})
	if err != nil {
		h.log.WithError(err).Error("failed to marshal websocket event")
		return
	}

	h.mutex.RLock()
	defer h.mutex.RUnlock()

	members, exists := h.rooms[room]
	if !exists {
		return
	}

	for client := range members {
		select {
		case client.send <- payload:
		default:
			// Slow consumer; readPump's deferred unregister cleans up.
			h.log.WithUsername(client.Username).Warn("dropping websocket event, send buffer full")
		}
	}
}

func (h *Hub) joinRoom(client *Client, roomID string) {
	if h.rooms[roomID] == nil {
		h.rooms[roomID] = make(map[*Client]bool)
	}
	h.rooms[roomID][client] = true
	client.rooms[roomID] = true
}

func (h *Hub) LeaveRoom(client *Client, roomID string) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if room, exists := h.rooms[roomID]; exists {
		delete(room, client)
		delete(client.rooms, roomID)

		if len(room) == 0 {
			delete(h.rooms, roomID)
		}
	}
}

// RoomSize reports current membership, mainly for tests and diagnostics.
func (h *Hub) RoomSize(roomID string) int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.rooms[roomID])
}
