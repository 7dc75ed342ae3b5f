package realtime

import "sync"

// queue is an unbounded FIFO between producers and the engine consumer.
// Push never blocks; a pump goroutine moves events from the backlog to out.
type queue struct {
	in  chan Event
	out chan Event

	mu      sync.Mutex
	depth   int
	onDepth func(int)

	inMu   sync.RWMutex
	closed bool
}

func newQueue(onDepth func(int)) *queue {
	q := &queue{
		in:      make(chan Event),
		out:     make(chan Event),
		onDepth: onDepth,
	}
	go q.pump()
	return q
}

// push enqueues ev. It reports false after close.
func (q *queue) push(ev Event) bool {
	q.inMu.RLock()
	defer q.inMu.RUnlock()
	if q.closed {
		return false
	}
	q.in <- ev
	return true
}

func (q *queue) close() {
	q.inMu.Lock()
	defer q.inMu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.in)
	}
}

func (q *queue) pump() {
	defer close(q.out)

	var backlog []Event
	in := q.in
	for in != nil || len(backlog) > 0 {
		var out chan Event
		var next Event
		if len(backlog) > 0 {
			out = q.out
			next = backlog[0]
		}

		select {
		case ev, ok := <-in:
			if !ok {
				in = nil
				continue
			}
			backlog = append(backlog, ev)
		case out <- next:
			backlog[0] = nil
			backlog = backlog[1:]
		}
		q.setDepth(len(backlog))
	}
}

func (q *queue) setDepth(n int) {
	q.mu.Lock()
	q.depth = n
	q.mu.Unlock()
	if q.onDepth != nil {
		q.onDepth(n)
	}
}

// len returns the number of events waiting in the backlog.
func (q *queue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.depth
}
