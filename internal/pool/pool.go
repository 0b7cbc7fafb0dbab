package pool

import (
	"errors"
	"fmt"
	"sync"
)

// ErrClosed is returned by Run after Close has been called.
var ErrClosed = errors.New("pool: closed")

// initMu serializes handler factory invocations across all pools, so a
// factory with expensive shared setup (model loading, native library init)
// is only ever paying that cost on one goroutine at a time.
var initMu sync.Mutex

// work is one queued request paired with the slot its result goes to.
// A nil slot is the stop sentinel.
type work[T, U any] struct {
	req  T
	slot chan result[U]
}

type result[U any] struct {
	resp U
	err  error
}

// Manager is a fixed-size worker pool with call-and-wait semantics.
// Construction spawns num long-lived workers; Run borrows one of num
// single-use response slots, queues the request, and blocks for the
// result. The bounded request channel (capacity num) plus slot borrowing
// mean at most num calls are ever in flight.
type Manager[T, U any] struct {
	requests chan work[T, U]
	slots    chan chan result[U]
	num      int

	mu     sync.Mutex
	closed bool
}

// New starts num workers, each obtaining its handler from factory.
// It blocks until every worker has reported its factory outcome and fails
// with the first error observed; the remaining reports are drained so no
// worker is left blocked. On success exactly num response slots are
// deposited into the slot pool.
func New[T, U any](factory func() (func(T) (U, error), error), num int) (*Manager[T, U], error) {
	if num < 1 {
		return nil, fmt.Errorf("pool: worker count must be at least 1, got %d", num)
	}

	m := &Manager[T, U]{
		requests: make(chan work[T, U], num),
		slots:    make(chan chan result[U], num),
		num:      num,
	}

	startup := make(chan error, num)
	for i := 0; i < num; i++ {
		go m.runWorker(factory, startup)
	}

	var firstErr error
	for i := 0; i < num; i++ {
		if err := <-startup; err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if firstErr != nil {
		// Workers whose factory succeeded are already looping; flood
		// sentinels so they exit.
		m.Close()
		return nil, firstErr
	}

	for i := 0; i < num; i++ {
		m.slots <- make(chan result[U], 1)
	}
	return m, nil
}

// Run submits one request and blocks for its result. Borrowing a slot
// blocks while all workers are busy, which is the pool's back-pressure.
// The slot is returned to the pool whether the handler succeeded or not.
func (m *Manager[T, U]) Run(req T) (U, error) {
	var zero U

	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return zero, ErrClosed
	}

	slot := <-m.slots
	m.requests <- work[T, U]{req: req, slot: slot}
	res := <-slot
	m.slots <- slot

	if res.err != nil {
		return zero, res.err
	}
	return res.resp, nil
}

// Close enqueues one stop sentinel per worker. Each worker finishes its
// current request, if any, before observing the sentinel and exiting.
// Close does not wait for workers to exit; in-flight Run calls still
// receive their results, later Run calls fail with ErrClosed.
func (m *Manager[T, U]) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.mu.Unlock()

	for i := 0; i < m.num; i++ {
		m.requests <- work[T, U]{}
	}
}

// Workers returns the configured worker count.
func (m *Manager[T, U]) Workers() int {
	return m.num
}

func (m *Manager[T, U]) runWorker(factory func() (func(T) (U, error), error), startup chan<- error) {
	initMu.Lock()
	handler, err := factory()
	initMu.Unlock()

	startup <- err
	if err != nil {
		return
	}

	for w := range m.requests {
		if w.slot == nil {
			return
		}
		resp, err := invoke(handler, w.req)
		w.slot <- result[U]{resp: resp, err: err}
	}
}

// invoke calls the handler, converting a panic into an error so a bad
// request cannot take its worker down.
func invoke[T, U any](handler func(T) (U, error), req T) (resp U, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pool: handler panic: %v", r)
		}
	}()
	return handler(req)
}
