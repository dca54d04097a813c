// Package eventloop runs posted functions one at a time on a single goroutine.
package eventloop

import (
	"context"
	"errors"
	"sync"
)

var ErrClosed = errors.New("event loop is closed")

// Loop is a serial executor. Functions run in the order they were posted.
type Loop struct {
	queue chan func()
	done  chan struct{}
	once  sync.Once
}

func New(size int) *Loop {
	if size < 1 {
		size = 1
	}

	return &Loop{
		queue: make(chan func(), size),
		done:  make(chan struct{}),
	}
}

// Post enqueues fn. It blocks while the queue is full.
func (that *Loop) Post(fn func()) error {
	select {
	case <-that.done:
		return ErrClosed
	default:
	}

	select {
	case that.queue <- fn:
		return nil
	case <-that.done:
		return ErrClosed
	}
}

// Do posts fn and waits until it has run.
func (that *Loop) Do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})

	if err := that.Post(func() {
		defer close(finished)
		fn()
	}); err != nil {
		return err
	}

	select {
	case <-finished:
		return nil
	case <-that.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run processes posted functions until ctx is canceled. Functions still queued are dropped.
func (that *Loop) Run(ctx context.Context) error {
	defer that.once.Do(func() { close(that.done) })

	for {
		select {
		case <-ctx.Done():
			return nil
		case fn := <-that.queue:
			fn()
		}
	}
}

// Done is closed once Run has returned.
func (that *Loop) Done() <-chan struct{} {
	return that.done
}
