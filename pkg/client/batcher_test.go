package client

import (
	"bytes"
	"testing"
)

func TestBatcherHoldsBelowLimit(t *testing.T) {
	b := NewBatcher(512)

	if flush := b.Add([]byte(`{"type":"ping"}`)); flush != nil {
		t.Fatalf("Add below limit flushed %d messages", len(flush))
	}
	if got := b.Len(); got != 1 {
		t.Fatalf("Len = %d, want 1", got)
	}
}

func TestBatcherFlushesWhenLimitCrossed(t *testing.T) {
	b := NewBatcher(10)

	first := []byte("01234")
	if flush := b.Add(first); flush != nil {
		t.Fatalf("first Add flushed early")
	}

	second := []byte("56789a") // 5+6 bytes crosses the limit
	flush := b.Add(second)
	if len(flush) != 2 || !bytes.Equal(flush[0], first) || !bytes.Equal(flush[1], second) {
		t.Fatalf("flush = %q, want both messages in order", flush)
	}

	if b.Len() != 0 || b.Size() != 0 {
		t.Fatalf("batcher not reset after flush: len=%d size=%d", b.Len(), b.Size())
	}
}

func TestBatcherRequeueRestoresFlush(t *testing.T) {
	b := NewBatcher(10)

	first := []byte("01234")
	second := []byte("56789a")
	b.Add(first)
	flush := b.Add(second)
	if len(flush) != 2 {
		t.Fatalf("Add over limit returned %d messages, want 2", len(flush))
	}

	b.Requeue(flush)
	if b.Len() != 2 || b.Size() != len(first)+len(second) {
		t.Fatalf("after Requeue: len=%d size=%d", b.Len(), b.Size())
	}

	got := b.Drain()
	if !bytes.Equal(got[0], first) || !bytes.Equal(got[1], second) {
		t.Fatalf("Drain after Requeue = %q, order lost", got)
	}
}

func TestBatcherDrainPreservesOrder(t *testing.T) {
	b := NewBatcher(512)
	msgs := [][]byte{[]byte("a"), []byte("b"), []byte("c")}
	for _, m := range msgs {
		b.Add(m)
	}

	got := b.Drain()
	if len(got) != len(msgs) {
		t.Fatalf("Drain returned %d messages, want %d", len(got), len(msgs))
	}
	for i := range msgs {
		if !bytes.Equal(got[i], msgs[i]) {
			t.Errorf("message %d = %q, want %q", i, got[i], msgs[i])
		}
	}
	if b.Len() != 0 || b.Size() != 0 {
		t.Fatalf("batcher not reset after Drain: len=%d size=%d", b.Len(), b.Size())
	}
}
