package ws

import (
	"log"
	"sync"
)

// Session is one connected client as the hub and message router see it.
// *Client is the production implementation; tests substitute their own.
type Session interface {
	// ID is the opaque per-connection handle.
	ID() string

	// Bind attaches the session to a room under a participant identity.
	// Binding stays zero-valued until a join has happened.
	Bind(roomID, participantID string)
	RoomID() string
	ParticipantID() string

	// Send queues data without blocking and reports false when the
	// session's buffer is full. A session that cannot keep up gets dropped.
	Send(data []byte) bool

	// CloseSend tells the session no further data is coming.
	CloseSend()
}

// Hub tracks the live sessions of every room and fans messages out to them.
// A slow or disconnected peer never blocks a sender's path: its buffer
// overflows and it is dropped.
type Hub struct {
	// live sessions by room
	rooms map[string]map[Session]bool

	register   chan Session
	unregister chan Session
	broadcast  chan *message

	mu sync.RWMutex
}

type message struct {
	roomID string
	data   []byte
	sender Session
}

func NewHub() *Hub {
	return &Hub{
		rooms:      make(map[string]map[Session]bool),
		register:   make(chan Session),
		unregister: make(chan Session),
		broadcast:  make(chan *message),
	}
}

// Register adds a session to its bound room. Call only after Bind.
func (h *Hub) Register(s Session) {
	h.register <- s
}

// Unregister drops a session from its room.
func (h *Hub) Unregister(s Session) {
	h.unregister <- s
}

// Broadcast queues data for every session in the room except the sender.
func (h *Hub) Broadcast(roomID string, sender Session, data []byte) {
	h.broadcast <- &message{roomID: roomID, data: data, sender: sender}
}

// Unicast delivers data to the single session bound to the given
// participant and reports whether one was found. This is point-to-point:
// at most one session ever receives the data.
func (h *Hub) Unicast(roomID, participantID string, data []byte) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for s := range h.rooms[roomID] {
		if s.ParticipantID() == participantID {
			s.Send(data)
			return true
		}
	}
	return false
}

func (h *Hub) Run() {
	for {
		select {
		case s := <-h.register:
			h.mu.Lock()
			roomID := s.RoomID()
			if _, ok := h.rooms[roomID]; !ok {
				h.rooms[roomID] = make(map[Session]bool)
			}
			h.rooms[roomID][s] = true
			count := len(h.rooms[roomID])
			h.mu.Unlock()

			log.Printf("Session joined room %s (total: %d)", roomID, count)

		case s := <-h.unregister:
			h.mu.Lock()
			roomID := s.RoomID()
			if sessions, ok := h.rooms[roomID]; ok {
				if _, ok := sessions[s]; ok {
					delete(sessions, s)
					s.CloseSend()

					if len(sessions) == 0 {
						delete(h.rooms, roomID)
						log.Printf("Room %s has no live sessions", roomID)
					} else {
						log.Printf("Session left room %s (remaining: %d)", roomID, len(sessions))
					}
				}
			}
			h.mu.Unlock()

		case m := <-h.broadcast:
			h.mu.Lock()
			if sessions, ok := h.rooms[m.roomID]; ok {
				for s := range sessions {
					if s == m.sender {
						continue
					}
					if !s.Send(m.data) {
						s.CloseSend()
						delete(sessions, s)
					}
				}
			}
			h.mu.Unlock()
		}
	}
}

// GetRoomCount returns the number of rooms with at least one live session.
func (h *Hub) GetRoomCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}

// GetClientCount returns the total number of live sessions.
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	count := 0
	for _, sessions := range h.rooms {
		count += len(sessions)
	}
	return count
}

// GetActiveRooms maps room IDs to their live session counts.
func (h *Hub) GetActiveRooms() map[string]int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	active := make(map[string]int, len(h.rooms))
	for roomID, sessions := range h.rooms {
		active[roomID] = len(sessions)
	}
	return active
}
