package client

import "sync"

// Batcher accumulates encoded reliable messages until either the flush timer
// fires or the accumulated byte size crosses the configured limit. Messages
// are queued in send order and leave as one newline-joined frame.
//
// The batcher is the only session state touched from more than one
// goroutine: event senders append from wherever they run while the dispatch
// loop drains on its timer. Queue and size counter are mutated together
// under one lock so a flush can never observe a half-applied add.
type Batcher struct {
	mu      sync.Mutex
	pending [][]byte
	size    int
	limit   int
}

// NewBatcher returns a batcher flushing beyond limit bytes.
func NewBatcher(limit int) *Batcher {
	return &Batcher{limit: limit}
}

// Add queues a message. If the accumulated size crosses the limit, the whole
// batch, the new message included, is returned for immediate sending and the
// batcher resets. Otherwise Add returns nil and the message waits for the
// timer.
func (b *Batcher) Add(msg []byte) [][]byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.pending = append(b.pending, msg)
	b.size += len(msg)
	if b.size <= b.limit {
		return nil
	}
	flush := b.pending
	b.pending = nil
	b.size = 0
	return flush
}

// Requeue puts messages back at the head of the queue in their original
// order, used when a flush cannot be sent yet.
func (b *Batcher) Requeue(msgs [][]byte) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.pending = append(append([][]byte(nil), msgs...), b.pending...)
	for _, msg := range msgs {
		b.size += len(msg)
	}
}

// Drain returns the queued messages in send order and resets the batcher.
// Returns nil when nothing is pending.
func (b *Batcher) Drain() [][]byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	pending := b.pending
	b.pending = nil
	b.size = 0
	return pending
}

// Size returns the accumulated encoded size of the pending batch.
func (b *Batcher) Size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

// Len returns the number of pending messages.
func (b *Batcher) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}
