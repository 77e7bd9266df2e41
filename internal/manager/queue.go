package manager

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrQueueClosed is returned for operations enqueued after Close.
var ErrQueueClosed = errors.New("supervisor queue closed")

type request struct {
	op    func(context.Context) error
	reply chan error
}

// Queue runs lifecycle operations one at a time in FIFO order on a single
// goroutine. A failing operation does not affect the ones behind it.
// Enqueue never blocks.
type Queue struct {
	mu      sync.Mutex
	pending []request
	closed  bool
	wake    chan struct{}
	done    chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
}

// NewQueue starts the queue goroutine. Operations receive a context that is
// cancelled once the queue has shut down.
func NewQueue() *Queue {
	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
		ctx:    ctx,
		cancel: cancel,
	}
	go q.run()
	return q
}

// Enqueue schedules op after every previously enqueued operation and returns
// a channel that receives op's result exactly once.
func (q *Queue) Enqueue(op func(context.Context) error) <-chan error {
	reply := make(chan error, 1)
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		reply <- ErrQueueClosed
		return reply
	}
	q.pending = append(q.pending, request{op: op, reply: reply})
	q.mu.Unlock()
	q.signal()
	return reply
}

// Pending returns the number of operations waiting to run.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Close stops accepting operations, runs the ones already queued and waits
// for the queue goroutine to exit. It must not be called from inside an
// operation.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.signal()
	<-q.done
}

func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *Queue) run() {
	defer close(q.done)
	defer q.cancel()
	for {
		q.mu.Lock()
		if len(q.pending) == 0 {
			closed := q.closed
			q.mu.Unlock()
			if closed {
				return
			}
			<-q.wake
			continue
		}
		r := q.pending[0]
		q.pending[0] = request{}
		q.pending = q.pending[1:]
		q.mu.Unlock()

		r.reply <- q.exec(r.op)
	}
}

func (q *Queue) exec(op func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("supervisor operation panicked: %v", r)
		}
	}()
	return op(q.ctx)
}
