package engine

import "sync"

// Queue is an unbounded FIFO of shell lines with many producers and a
// single consumer. Push never blocks.
type Queue struct {
	mu     sync.Mutex
	items  []string
	signal chan struct{}
	closed bool
}

func NewQueue() *Queue {
	return &Queue{signal: make(chan struct{}, 1)}
}

// Push appends cmd. It reports false once the queue is closed.
func (q *Queue) Push(cmd string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	q.items = append(q.items, cmd)
	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// Pop blocks until a command is available or the queue is closed.
// Commands still queued at Close are dropped.
func (q *Queue) Pop() (string, bool) {
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return "", false
		}
		if len(q.items) > 0 {
			cmd := q.items[0]
			q.items[0] = ""
			q.items = q.items[1:]
			q.mu.Unlock()
			return cmd, true
		}
		q.mu.Unlock()
		<-q.signal
	}
}

// Len returns the number of undelivered commands.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close wakes the consumer and rejects further pushes.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	q.items = nil
	close(q.signal)
}
