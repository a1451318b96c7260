package world

import (
	"context"
	"sync"
	"time"
)

// Runner owns a single goroutine that dispatches frames and executes the
// commands submitted with Do. Everything run by a Runner is serialized, which
// makes it the only writer of the state it guards.
type Runner struct {
	frameDuration time.Duration
	onFrame       func(elapsed time.Duration)

	commands chan func()
	closed   chan struct{}
	stopped  chan struct{}

	startOnce sync.Once
	closeOnce sync.Once
}

// NewRunner creates a runner calling onFrame every frameDuration with the time
// elapsed since the previous frame.
func NewRunner(frameDuration time.Duration, onFrame func(elapsed time.Duration)) *Runner {
	if frameDuration <= 0 {
		frameDuration = DefaultFrameDuration
	}
	if onFrame == nil {
		onFrame = func(time.Duration) {}
	}

	return &Runner{
		frameDuration: frameDuration,
		onFrame:       onFrame,
		commands:      make(chan func()),
		closed:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}
}

// Run dispatches frames and commands until the runner is closed. Calls after
// the first one return immediately.
func (r *Runner) Run() {
	r.startOnce.Do(func() {
		defer close(r.stopped)

		ticker := time.NewTicker(r.frameDuration)
		defer ticker.Stop()
		last := time.Now()

		for {
			select {
			case <-r.closed:
				return

			case now := <-ticker.C:
				r.onFrame(now.Sub(last))
				last = now

			case cmd := <-r.commands:
				cmd()
			}
		}
	})
}

// Do runs fn on the runner goroutine and waits for it to return. It fails when
// the runner is closed or when the context ends before fn is picked up.
func (r *Runner) Do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	cmd := func() {
		defer close(done)
		fn()
	}

	select {
	case r.commands <- cmd:
	case <-r.closed:
		return errMapClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	<-done
	return nil
}

// Close stops the runner and waits for the running frame or command to end
// when the runner was started.
func (r *Runner) Close() {
	r.closeOnce.Do(func() {
		close(r.closed)
	})

	started := true
	r.startOnce.Do(func() {
		started = false
		close(r.stopped)
	})
	if started {
		<-r.stopped
	}
}

// Closed returns a channel closed once the runner is closed.
func (r *Runner) Closed() <-chan struct{} {
	return r.closed
}
