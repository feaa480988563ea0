// Package devserver is a loopback coordination server: enough of the room
// protocol to run clients against locally, in tests and in the demo command.
// It keeps everything in memory and makes no persistence or scaling promises.
package devserver

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/roomsync-dev/roomsync/pkg/protocol"
)

// Config holds configuration for a Server.
type Config struct {
	// Logger receives structured logs. Default: slog.Default().
	Logger *slog.Logger

	// BufferedEventLimit caps how many buffered events a room retains for
	// replay to later joiners. Default: 256.
	BufferedEventLimit int

	// Registerer receives the server's Prometheus metrics.
	// Default: a private registry.
	Registerer prometheus.Registerer
}

// Server implements the coordination protocol over chi and
// gorilla/websocket.
type Server struct {
	logger   *slog.Logger
	upgrader websocket.Upgrader
	bufLimit int
	metrics  *serverMetrics

	mu         sync.Mutex
	nextPlayer int
	players    map[string]string // participant id -> display name
	rooms      map[string]*room
}

type serverMetrics struct {
	rooms    prometheus.Gauge
	members  prometheus.Gauge
	messages prometheus.Counter
}

// New returns a server ready to serve its Handler.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	bufLimit := cfg.BufferedEventLimit
	if bufLimit <= 0 {
		bufLimit = 256
	}
	reg := cfg.Registerer
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Server{
		logger:   logger,
		bufLimit: bufLimit,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		metrics: &serverMetrics{
			rooms: factory.NewGauge(prometheus.GaugeOpts{
				Namespace: "roomsync", Subsystem: "devserver",
				Name: "rooms", Help: "Open rooms.",
			}),
			members: factory.NewGauge(prometheus.GaugeOpts{
				Namespace: "roomsync", Subsystem: "devserver",
				Name: "members", Help: "Participants currently in a room.",
			}),
			messages: factory.NewCounter(prometheus.CounterOpts{
				Namespace: "roomsync", Subsystem: "devserver",
				Name: "messages_relayed_total", Help: "Messages handled on room links.",
			}),
		},
		players: make(map[string]string),
		rooms:   make(map[string]*room),
	}
}

// Handler returns the server's HTTP routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Post(protocol.RouteConnect, s.handleConnect)
	r.Post(protocol.RouteCreateRoom, s.handleCreateRoom)
	r.Get(protocol.RouteGetRoomList, s.handleRoomList)
	r.Get(protocol.RouteJoinRoom, s.handleJoinRoom)
	return r
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	name := r.PostFormValue(protocol.FieldName)
	if name == "" {
		http.Error(w, "name required", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.nextPlayer++
	id := fmt.Sprintf("p-%d", s.nextPlayer)
	s.players[id] = name
	s.mu.Unlock()

	s.logger.Info("participant connected", "player_id", id, "name", name)
	writeJSON(w, protocol.ConnectAck{PlayerID: id})
}

func (s *Server) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	name := r.PostFormValue(protocol.FieldRoomName)
	playerID := r.PostFormValue(protocol.FieldPlayerID)
	maxPlayers, err := strconv.Atoi(r.PostFormValue(protocol.FieldMaxPlayers))
	if name == "" || playerID == "" || err != nil || maxPlayers < 1 {
		http.Error(w, "roomName, playerId and maxPlayers required", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.players[playerID]; !ok {
		http.Error(w, "unknown participant", http.StatusForbidden)
		return
	}
	if _, ok := s.rooms[name]; ok {
		http.Error(w, "room exists", http.StatusConflict)
		return
	}
	rm := newRoom(name, maxPlayers, playerID, s.bufLimit)
	s.rooms[name] = rm
	s.metrics.rooms.Inc()

	s.logger.Info("room created", "room", name, "creator", playerID, "max_players", maxPlayers)
	writeJSON(w, rm.snapshotLocked())
}

func (s *Server) handleRoomList(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	list := make([]protocol.Room, 0, len(s.rooms))
	for _, rm := range s.rooms {
		list = append(list, rm.snapshotLocked())
	}
	s.mu.Unlock()

	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	writeJSON(w, list)
}

func (s *Server) handleJoinRoom(w http.ResponseWriter, r *http.Request) {
	playerID := r.URL.Query().Get(protocol.FieldPlayerID)
	roomName := r.URL.Query().Get(protocol.FieldRoomName)

	s.mu.Lock()
	_, knownPlayer := s.players[playerID]
	rm := s.rooms[roomName]
	full := rm != nil && len(rm.members) >= rm.maxPlayers
	s.mu.Unlock()

	switch {
	case !knownPlayer:
		http.Error(w, "unknown participant", http.StatusForbidden)
		return
	case rm == nil:
		http.Error(w, "no such room", http.StatusNotFound)
		return
	case full:
		http.Error(w, "room full", http.StatusConflict)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade", "error", err)
		return
	}

	m := &member{playerID: playerID, ws: ws}
	s.admit(rm, m)
	s.readLoop(rm, m)
}

// admit adds the member to the room and brings it up to date: the join
// confirmation, the current entity set, and the room's buffered events. The
// other members get the new membership count.
func (s *Server) admit(rm *room, m *member) {
	s.mu.Lock()
	rm.members[m.playerID] = m
	snapshot := rm.snapshotLocked()
	entities := rm.entitiesLocked()
	buffered := append([][]byte(nil), rm.buffered...)
	others := rm.othersLocked(m.playerID)
	s.mu.Unlock()
	s.metrics.members.Inc()

	s.logger.Info("participant joined room", "room", rm.name, "player_id", m.playerID)
	m.sendEncoded(protocol.TypeJoinedRoom, snapshot)
	m.sendEncoded(protocol.TypeSyncObjects, entities)
	for _, raw := range buffered {
		m.send(raw)
	}
	for _, other := range others {
		other.sendEncoded(protocol.TypeUpdateRoom, snapshot)
	}
}

// readLoop consumes the member's frames until the link dies, then evicts it.
func (s *Server) readLoop(rm *room, m *member) {
	defer s.evict(rm, m)
	for {
		_, frame, err := m.ws.ReadMessage()
		if err != nil {
			return
		}
		for _, line := range protocol.SplitFrame(frame) {
			env, err := protocol.DecodeMessage(line)
			if err != nil {
				s.logger.Warn("dropping undecodable message", "player_id", m.playerID, "error", err)
				continue
			}
			s.metrics.messages.Inc()
			s.handleMessage(rm, m, env, line)
		}
	}
}

func (s *Server) evict(rm *room, m *member) {
	m.close()

	s.mu.Lock()
	if rm.members[m.playerID] != m {
		s.mu.Unlock()
		return
	}
	delete(rm.members, m.playerID)
	rm.dropEntitiesOfLocked(m.playerID)
	empty := len(rm.members) == 0
	if empty {
		delete(s.rooms, rm.name)
	}
	snapshot := rm.snapshotLocked()
	others := rm.othersLocked(m.playerID)
	s.mu.Unlock()

	s.metrics.members.Dec()
	s.logger.Info("participant left room", "room", rm.name, "player_id", m.playerID, "room_closed", empty)
	if empty {
		s.metrics.rooms.Dec()
		return
	}
	for _, other := range others {
		other.sendEncoded(protocol.TypeLeftRoom, protocol.LeftRoom{PlayerID: m.playerID})
		other.sendEncoded(protocol.TypeUpdateRoom, snapshot)
	}
}

func (s *Server) handleMessage(rm *room, m *member, env *protocol.Envelope, raw []byte) {
	switch env.Type {
	case protocol.TypeInstantiate:
		s.handleInstantiate(rm, m, env.Data)
	case protocol.TypeDestroy:
		s.handleDestroy(rm, env.Data, raw)
	case protocol.TypeSyncObjects:
		s.handleSyncObjects(rm, m, env.Data)
	case protocol.TypeStream:
		s.handleStream(rm, m, env.Data)
	case protocol.TypePing:
		s.handlePing(m, env.Data)
	case protocol.TypeEventImmediate:
		s.relay(rm, raw, m.playerID)
	case protocol.TypeEventRelayed:
		s.relay(rm, raw, "")
	case protocol.TypeEventBuffered:
		s.bufferEvent(rm, raw)
		s.relay(rm, raw, m.playerID)
	default:
		s.logger.Debug("unknown message type", "type", env.Type, "player_id", m.playerID)
	}
}

// handleInstantiate assigns the authoritative entity id and echoes the
// confirmation to every member, the requester included.
func (s *Server) handleInstantiate(rm *room, m *member, data json.RawMessage) {
	var state protocol.EntityState
	if err := json.Unmarshal(data, &state); err != nil {
		s.logger.Warn("malformed instantiate", "player_id", m.playerID, "error", err)
		return
	}

	s.mu.Lock()
	rm.nextEntity++
	state.ID = rm.nextEntity
	rm.entities[state.ID] = state
	s.mu.Unlock()

	msg, err := protocol.Encode(protocol.TypeInstantiate, state)
	if err != nil {
		s.logger.Error("encode instantiate", "error", err)
		return
	}
	s.relay(rm, msg, "")
}

func (s *Server) handleDestroy(rm *room, data json.RawMessage, raw []byte) {
	var destroy protocol.Destroy
	if err := json.Unmarshal(data, &destroy); err != nil {
		s.logger.Warn("malformed destroy", "error", err)
		return
	}

	s.mu.Lock()
	delete(rm.entities, destroy.ID)
	s.mu.Unlock()

	s.relay(rm, raw, "")
}

// handleSyncObjects reconciles the authority's announced entity set: its
// entities not in the list are gone, listed ids unknown to the server are
// registered bare.
func (s *Server) handleSyncObjects(rm *room, m *member, data json.RawMessage) {
	var refs []protocol.EntityRef
	if err := json.Unmarshal(data, &refs); err != nil {
		s.logger.Warn("malformed entity sync", "player_id", m.playerID, "error", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	alive := make(map[int]bool, len(refs))
	for _, ref := range refs {
		alive[ref.ID] = true
		if _, ok := rm.entities[ref.ID]; !ok {
			rm.entities[ref.ID] = protocol.EntityState{ID: ref.ID, CreatorID: ref.CreatorID}
		}
		if ref.ID > rm.nextEntity {
			rm.nextEntity = ref.ID
		}
	}
	for id, state := range rm.entities {
		if state.CreatorID == m.playerID && !alive[id] {
			delete(rm.entities, id)
		}
	}
}

// handleStream replaces the client's time marker with the server send time
// and relays the frame to the other members.
func (s *Server) handleStream(rm *room, m *member, data json.RawMessage) {
	var frame protocol.StreamFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		s.logger.Warn("malformed stream frame", "player_id", m.playerID, "error", err)
		return
	}
	frame.ServerSentTime = nowMillis()
	frame.TimeMarker = ""

	msg, err := protocol.Encode(protocol.TypeStream, &frame)
	if err != nil {
		s.logger.Error("encode stream frame", "error", err)
		return
	}
	s.relay(rm, msg, m.playerID)
}

// handlePing answers the sender with a pong stamped with the server ack
// time, echoing the other clocks untouched.
func (s *Server) handlePing(m *member, data json.RawMessage) {
	var ping protocol.Latency
	if err := json.Unmarshal(data, &ping); err != nil {
		s.logger.Warn("malformed ping", "player_id", m.playerID, "error", err)
		return
	}
	ping.ServerAckTime = nowMillis()
	m.sendEncoded(protocol.TypePong, ping)
}

// relay forwards a raw message to every member except the one named; an
// empty exclusion broadcasts to everyone.
func (s *Server) relay(rm *room, raw []byte, except string) {
	s.mu.Lock()
	members := rm.othersLocked(except)
	s.mu.Unlock()
	for _, m := range members {
		m.send(raw)
	}
}

func (s *Server) bufferEvent(rm *room, raw []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(rm.buffered) >= rm.bufLimit {
		rm.buffered = rm.buffered[1:]
	}
	rm.buffered = append(rm.buffered, append([]byte(nil), raw...))
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func nowMillis() float64 {
	return float64(time.Now().UnixNano()) / float64(time.Millisecond)
}
