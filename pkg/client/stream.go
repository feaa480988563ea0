package client

import "github.com/roomsync-dev/roomsync/pkg/protocol"

// StreamWriter receives one entity's outgoing values for a tick.
type StreamWriter interface {
	Send(v any)
}

// StreamReader hands back one entity's incoming values for a tick.
type StreamReader interface {
	// Receive pops the oldest unread value, nil once exhausted.
	Receive() any

	// ServerSentTime is the server-stamped send time of the snapshot
	// being read, in milliseconds.
	ServerSentTime() float64
}

// Streamer is the capability interface for entities that take part in the
// periodic state stream. Any entity body implementing it is visited once per
// stream tick: owned entities produce values, foreign entities consume them.
type Streamer interface {
	// OnStreamSend appends this tick's outgoing values in a caller-defined
	// order. The same order is observed by OnStreamRead on the far side.
	OnStreamSend(w StreamWriter)

	// OnStreamRead pops this tick's incoming values, oldest first.
	OnStreamRead(r StreamReader)
}

// Stream is one snapshot's per-entity value queue. During a send tick the
// synchronizer points it at each owned entity in turn and the entity appends
// values; during a receive tick it points at each foreign entity present in
// the snapshot and the entity pops them back in FIFO order.
type Stream struct {
	data           map[int][]any
	serverSentTime float64
	current        int
}

func newSendStream() *Stream {
	return &Stream{data: make(map[int][]any)}
}

func newReceiveStream(frame *protocol.StreamFrame) *Stream {
	return &Stream{data: frame.Data, serverSentTime: frame.ServerSentTime}
}

// Send appends a value to the current entity's queue.
func (s *Stream) Send(v any) {
	s.data[s.current] = append(s.data[s.current], v)
}

// Receive pops the oldest unread value for the current entity. It returns
// nil once the queue for this snapshot is exhausted.
func (s *Stream) Receive() any {
	queue := s.data[s.current]
	if len(queue) == 0 {
		return nil
	}
	v := queue[0]
	s.data[s.current] = queue[1:]
	return v
}

// ServerSentTime returns the server-stamped send time of the snapshot being
// read, in milliseconds. Zero on the send path.
func (s *Stream) ServerSentTime() float64 {
	return s.serverSentTime
}

// setCurrent scopes subsequent Send/Receive calls to one entity's queue.
func (s *Stream) setCurrent(id int) {
	s.current = id
}

// frame converts an assembled send stream into its wire form.
func (s *Stream) frame() *protocol.StreamFrame {
	f := protocol.NewStreamFrame()
	f.Data = s.data
	return f
}

// empty reports whether no entity contributed any value.
func (s *Stream) empty() bool {
	for _, queue := range s.data {
		if len(queue) > 0 {
			return false
		}
	}
	return true
}
