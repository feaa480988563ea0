package client

import (
	"testing"

	"github.com/roomsync-dev/roomsync/pkg/protocol"
)

func TestStreamReceiveFIFO(t *testing.T) {
	frame := &protocol.StreamFrame{
		Data:           map[int][]any{7: {1.0, 2.0, 3.0}},
		ServerSentTime: 1234.5,
	}
	s := newReceiveStream(frame)
	s.setCurrent(7)

	for _, want := range []any{1.0, 2.0, 3.0} {
		if got := s.Receive(); got != want {
			t.Fatalf("Receive = %v, want %v", got, want)
		}
	}
	if got := s.Receive(); got != nil {
		t.Fatalf("Receive after exhaustion = %v, want nil", got)
	}
	if got := s.ServerSentTime(); got != 1234.5 {
		t.Fatalf("ServerSentTime = %v, want 1234.5", got)
	}
}

func TestStreamSendScopesToCurrentEntity(t *testing.T) {
	s := newSendStream()

	s.setCurrent(1)
	s.Send("a")
	s.Send("b")
	s.setCurrent(2)
	s.Send("c")

	frame := s.frame()
	if frame.TimeMarker != protocol.ServerTimeMarker {
		t.Fatalf("TimeMarker = %q, want the server marker", frame.TimeMarker)
	}
	if got := frame.Data[1]; len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("entity 1 queue = %v, want [a b]", got)
	}
	if got := frame.Data[2]; len(got) != 1 || got[0] != "c" {
		t.Fatalf("entity 2 queue = %v, want [c]", got)
	}
}

func TestStreamEmpty(t *testing.T) {
	s := newSendStream()
	if !s.empty() {
		t.Fatal("fresh stream not empty")
	}
	s.setCurrent(1)
	s.Send(0.0)
	if s.empty() {
		t.Fatal("stream with one value reported empty")
	}
}
