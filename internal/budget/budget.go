// Package budget enforces the wall-clock budget of a single invocation.
//
// A Scheduler never preempts work; it only declines to start new work once
// the safety margin is crossed. Call bounds an individual call with its own
// timeout and substitutes a fallback value instead of returning an error.
package budget

import (
	"context"
	"sync"
	"time"
)

const (
	DefaultDeadline = 85 * time.Second
	DefaultMargin   = 75 * time.Second
)

// Clock returns the current time. Tests inject a fake.
type Clock func() time.Time

// Scheduler tracks elapsed time since the invocation started.
type Scheduler struct {
	start    time.Time
	deadline time.Duration
	margin   time.Duration
	now      Clock

	mu       sync.Mutex
	started  int
	declined int
}

// Options configures a Scheduler. Zero values take defaults.
type Options struct {
	Deadline time.Duration
	Margin   time.Duration
	Clock    Clock
}

// New starts a scheduler at the current clock time.
func New(opts Options) *Scheduler {
	if opts.Deadline <= 0 {
		opts.Deadline = DefaultDeadline
	}
	if opts.Margin <= 0 || opts.Margin > opts.Deadline {
		opts.Margin = min(DefaultMargin, opts.Deadline)
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Scheduler{
		start:    opts.Clock(),
		deadline: opts.Deadline,
		margin:   opts.Margin,
		now:      opts.Clock,
	}
}

// Elapsed returns time since the scheduler started.
func (s *Scheduler) Elapsed() time.Duration {
	return s.now().Sub(s.start)
}

// Remaining returns time left before the hard deadline, never negative.
func (s *Scheduler) Remaining() time.Duration {
	return max(s.deadline-s.Elapsed(), 0)
}

// CanStart reports whether new work may begin and counts the decision.
func (s *Scheduler) CanStart() bool {
	ok := s.Elapsed() < s.margin
	s.mu.Lock()
	defer s.mu.Unlock()
	if ok {
		s.started++
	} else {
		s.declined++
	}
	return ok
}

// Started returns how many starts were allowed.
func (s *Scheduler) Started() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// Declined returns how many starts were refused.
func (s *Scheduler) Declined() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.declined
}

// Context returns a context cancelled at the hard deadline.
func (s *Scheduler) Context(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, s.Remaining())
}

// Call runs fn under its own timeout. If fn fails or the timeout fires first,
// Call returns fallback. Errors are passed to onErr when it is non-nil and
// never propagate. fn keeps running in the background after a timeout only
// until it observes its context.
func Call[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error), fallback T, onErr func(error)) T {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn(ctx)
		done <- result{v, err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			if onErr != nil {
				onErr(r.err)
			}
			return fallback
		}
		return r.v
	case <-ctx.Done():
		if onErr != nil {
			onErr(ctx.Err())
		}
		return fallback
	}
}
