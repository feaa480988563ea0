package devserver

import (
	"sort"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/roomsync-dev/roomsync/pkg/protocol"
)

// room is the server-side state of one room. Fields are guarded by the
// server mutex; the Locked suffix marks methods that expect it held.
type room struct {
	name       string
	maxPlayers int
	creatorID  string
	bufLimit   int

	members    map[string]*member
	entities   map[int]protocol.EntityState
	buffered   [][]byte
	nextEntity int
}

func newRoom(name string, maxPlayers int, creatorID string, bufLimit int) *room {
	return &room{
		name:       name,
		maxPlayers: maxPlayers,
		creatorID:  creatorID,
		bufLimit:   bufLimit,
		members:    make(map[string]*member),
		entities:   make(map[int]protocol.EntityState),
	}
}

func (r *room) snapshotLocked() protocol.Room {
	return protocol.Room{
		Name:           r.name,
		MaxPlayers:     r.maxPlayers,
		CurrentPlayers: len(r.members),
		CreatorID:      r.creatorID,
	}
}

func (r *room) entitiesLocked() []protocol.EntityState {
	out := make([]protocol.EntityState, 0, len(r.entities))
	for _, state := range r.entities {
		out = append(out, state)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *room) othersLocked(except string) []*member {
	out := make([]*member, 0, len(r.members))
	for id, m := range r.members {
		if id == except {
			continue
		}
		out = append(out, m)
	}
	return out
}

func (r *room) dropEntitiesOfLocked(playerID string) {
	for id, state := range r.entities {
		if state.CreatorID == playerID {
			delete(r.entities, id)
		}
	}
}

// member is one participant's room link. Writes are serialized; the read
// side lives in the server's readLoop.
type member struct {
	playerID string
	ws       *websocket.Conn

	mu     sync.Mutex
	closed bool
}

func (m *member) send(raw []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.ws.WriteMessage(websocket.TextMessage, raw)
}

func (m *member) sendEncoded(typ string, payload any) {
	msg, err := protocol.Encode(typ, payload)
	if err != nil {
		return
	}
	m.send(msg)
}

func (m *member) close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	m.ws.Close()
}
