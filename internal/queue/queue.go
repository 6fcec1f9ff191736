// Package queue runs asynchronous work with a fixed concurrency limit.
package queue

import (
	"context"
	"fmt"
	"sync"
)

// DefaultLimit is used when a non-positive limit is given to New.
const DefaultLimit = 5

// Queue admits at most limit concurrently running tasks and starts queued
// tasks in submission order as slots free up.
type Queue struct {
	mu      sync.Mutex
	limit   int
	running int
	pending []func()
	idle    chan struct{} // closed while nothing is queued or running
}

// New creates a queue with the given concurrency limit.
func New(limit int) *Queue {
	if limit <= 0 {
		limit = DefaultLimit
	}
	idle := make(chan struct{})
	close(idle)
	return &Queue{limit: limit, idle: idle}
}

// Running returns the number of tasks currently executing.
func (q *Queue) Running() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.running
}

// Queued returns the number of tasks waiting for a slot.
func (q *Queue) Queued() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// WaitAll blocks until no task is queued or running, or ctx is done.
func (q *Queue) WaitAll(ctx context.Context) error {
	q.mu.Lock()
	idle := q.idle
	q.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *Queue) enqueue(run func()) {
	q.mu.Lock()
	if q.running == 0 && len(q.pending) == 0 {
		q.idle = make(chan struct{})
	}
	if q.running < q.limit {
		q.running++
		q.mu.Unlock()
		go q.work(run)
		return
	}
	q.pending = append(q.pending, run)
	q.mu.Unlock()
}

// work executes run and then keeps draining the pending list on the same
// slot until it is empty.
func (q *Queue) work(run func()) {
	for run != nil {
		run()

		q.mu.Lock()
		if len(q.pending) > 0 {
			run = q.pending[0]
			q.pending[0] = nil
			q.pending = q.pending[1:]
		} else {
			run = nil
			q.running--
			if q.running == 0 {
				close(q.idle)
			}
		}
		q.mu.Unlock()
	}
}

// Future holds the eventual result of a submitted task.
type Future[T any] struct {
	done  chan struct{}
	value T
	err   error
}

// Resolved returns a future that is already complete.
func Resolved[T any](v T) *Future[T] {
	f := &Future[T]{done: make(chan struct{}), value: v}
	close(f.done)
	return f
}

// Done is closed once the result is available.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the task finished or ctx is done.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Submit enqueues fn on q. A panic inside fn is reported as the future's
// error and does not leak the slot.
func Submit[T any](q *Queue, fn func() (T, error)) *Future[T] {
	f := &Future[T]{done: make(chan struct{})}
	q.enqueue(func() {
		defer close(f.done)
		defer func() {
			if r := recover(); r != nil {
				f.err = fmt.Errorf("queue: task panicked: %v", r)
			}
		}()
		f.value, f.err = fn()
	})
	return f
}
