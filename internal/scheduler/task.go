package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"
)

// ErrInvalidInterval is returned for non-positive intervals
var ErrInvalidInterval = errors.New("interval must be positive")

// Ticker delivers ticks on a channel until stopped
type Ticker interface {
	C() <-chan time.Time
	Reset(d time.Duration)
	Stop()
}

// Clock creates tickers
type Clock interface {
	NewTicker(d time.Duration) Ticker
}

type realClock struct{}

func (realClock) NewTicker(d time.Duration) Ticker {
	return realTicker{time.NewTicker(d)}
}

type realTicker struct {
	*time.Ticker
}

func (t realTicker) C() <-chan time.Time {
	return t.Ticker.C
}

// WithLogger sets the logger for the task
func WithLogger(logger *slog.Logger) func(t *Task) {
	return func(t *Task) {
		t.logger = logger
	}
}

// WithClock replaces the wall clock, used by tests to drive ticks by hand
func WithClock(clock Clock) func(t *Task) {
	return func(t *Task) {
		t.clock = clock
	}
}

// Task runs a function periodically on its own goroutine. Calls of the
// function never overlap.
type Task struct {
	fn    func(ctx context.Context)
	clock Clock

	mu       sync.Mutex
	interval time.Duration
	running  bool
	cancel   context.CancelFunc
	done     chan struct{}
	reset    chan struct{}

	logger *slog.Logger
}

// NewTask creates a stopped Task with a discard logger
func NewTask(interval time.Duration, fn func(ctx context.Context), options ...func(t *Task)) (*Task, error) {
	if interval <= 0 {
		return nil, ErrInvalidInterval
	}

	t := Task{
		fn:       fn,
		clock:    realClock{},
		interval: interval,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&t)
	}

	return &t, nil
}

// Start begins periodic execution. It returns false if the task is already running.
func (t *Task) Start(ctx context.Context) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.running {
		return false
	}

	ctx, t.cancel = context.WithCancel(ctx)
	t.done = make(chan struct{})
	t.reset = make(chan struct{}, 1)
	t.running = true

	go t.loop(ctx, t.clock.NewTicker(t.interval), t.reset, t.done)

	t.logger.Debug("task started", slog.Duration("interval", t.interval))
	return true
}

func (t *Task) loop(ctx context.Context, ticker Ticker, reset <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-reset:
			ticker.Reset(t.Interval())

		case <-ticker.C():
			if ctx.Err() != nil {
				return
			}
			t.fn(ctx)
		}
	}
}

// Stop cancels periodic execution and waits for an in-flight call to return.
// It returns false if the task was not running. Stop must not be called from
// the task function.
func (t *Task) Stop() bool {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return false
	}

	t.running = false
	cancel, done := t.cancel, t.done
	t.mu.Unlock()

	cancel()
	<-done

	t.logger.Debug("task stopped")
	return true
}

// SetInterval changes the period. A running task re-arms its ticker.
func (t *Task) SetInterval(d time.Duration) error {
	if d <= 0 {
		return ErrInvalidInterval
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.interval = d
	if t.running {
		select {
		case t.reset <- struct{}{}:
		default: // a reset is already pending and will pick up the new interval
		}
	}

	return nil
}

// Interval returns the current period
func (t *Task) Interval() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.interval
}

// Running reports whether the task is started
func (t *Task) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.running
}
