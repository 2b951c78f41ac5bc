package mqtt

import (
	"sync"

	"github.com/nerrad567/gray-logic-aio/internal/session"
)

// inbox is a bounded FIFO of received messages.
//
// paho delivers messages on its own goroutine; the inbox hands them to the
// session goroutine on the next Loop. When full, the oldest message is
// dropped.
type inbox struct {
	mu      sync.Mutex
	buf     []session.Message
	head    int
	size    int
	dropped uint64
}

func newInbox(capacity int) *inbox {
	if capacity <= 0 {
		capacity = defaultInboxSize
	}
	return &inbox{buf: make([]session.Message, capacity)}
}

// push appends msg. It reports whether an older message was dropped.
func (q *inbox) push(msg session.Message) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	dropped := false
	if q.size == len(q.buf) {
		q.buf[q.head] = session.Message{}
		q.head = (q.head + 1) % len(q.buf)
		q.size--
		q.dropped++
		dropped = true
	}

	q.buf[(q.head+q.size)%len(q.buf)] = msg
	q.size++
	return dropped
}

// take removes and returns every queued message in arrival order.
func (q *inbox) take() []session.Message {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.size == 0 {
		return nil
	}

	out := make([]session.Message, q.size)
	for i := range out {
		idx := (q.head + i) % len(q.buf)
		out[i] = q.buf[idx]
		q.buf[idx] = session.Message{}
	}
	q.head = 0
	q.size = 0
	return out
}

// len returns the number of queued messages.
func (q *inbox) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

// droppedCount returns the number of messages dropped since creation.
func (q *inbox) droppedCount() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}
