package client

import "github.com/roomsync-dev/roomsync/pkg/protocol"

// Callbacks bundles the session notifications an application can observe.
// All callbacks run on the dispatch goroutine, so they may touch session
// state directly. Nil callbacks are skipped.
type Callbacks struct {
	// OnConnected fires when the connect handshake succeeds and a
	// participant identifier has been assigned.
	OnConnected func()

	// OnDisconnected fires every time the room link closes, including
	// before each automatic reconnect attempt.
	OnDisconnected func()

	// OnRoomCreated fires when a room created by this participant is
	// confirmed by the server.
	OnRoomCreated func(room protocol.Room)

	// OnRoomJoined fires on the room-joined confirmation.
	OnRoomJoined func(room protocol.Room)

	// OnRoomUpdated fires when the server pushes new room membership state.
	OnRoomUpdated func(room protocol.Room)

	// OnError fires when an asynchronous operation fails. The operation
	// itself is dropped; the session stays usable.
	OnError func(op string, err error)
}

func (cb *Callbacks) connected() {
	if cb.OnConnected != nil {
		cb.OnConnected()
	}
}

func (cb *Callbacks) disconnected() {
	if cb.OnDisconnected != nil {
		cb.OnDisconnected()
	}
}

func (cb *Callbacks) roomCreated(room protocol.Room) {
	if cb.OnRoomCreated != nil {
		cb.OnRoomCreated(room)
	}
}

func (cb *Callbacks) roomJoined(room protocol.Room) {
	if cb.OnRoomJoined != nil {
		cb.OnRoomJoined(room)
	}
}

func (cb *Callbacks) roomUpdated(room protocol.Room) {
	if cb.OnRoomUpdated != nil {
		cb.OnRoomUpdated(room)
	}
}

func (cb *Callbacks) failed(op string, err error) {
	if cb.OnError != nil {
		cb.OnError(op, err)
	}
}
