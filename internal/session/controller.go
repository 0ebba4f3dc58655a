package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/roman-kulish/ismscope/internal/plot"
	"github.com/roman-kulish/ismscope/internal/scheduler"
	"github.com/roman-kulish/ismscope/internal/selection"
	"github.com/roman-kulish/ismscope/internal/sensor"
)

// State of the update loop
type State string

const (
	StateStopped State = "stopped"
	StateRunning State = "running"
)

const (
	MinRate     = 10
	MaxRate     = 5000
	MinInterval = 100 * time.Millisecond
	MaxInterval = 5 * time.Second

	DefaultRate     = 75
	DefaultInterval = time.Second
)

var (
	// ErrInvalidConfig is returned when rate or interval is out of bounds
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrUnknownView is returned for a selection on a view that does not exist
	ErrUnknownView = errors.New("unknown view")

	// ErrNotRunning is returned by Tick when the loop is stopped
	ErrNotRunning = errors.New("update loop is not running")

	// ErrTickFailed wraps whatever made a tick fail
	ErrTickFailed = errors.New("tick failed")
)

// Source produces sample batches
type Source interface {
	Generate(count int) []sensor.Sample
}

// Recorder persists generated batches
type Recorder interface {
	CreateSession(ctx context.Context, label string, config any) (int64, error)
	StoreBatch(ctx context.Context, sessionID, batch int64, samples []sensor.Sample) error
}

// Observer is notified about update loop activity
type Observer interface {
	TickCompleted(d time.Duration, generated, buffered int)
	TickFailed()
	SelectionChanged(view plot.View, size int)
	BufferCleared()
	RecordingFailed()
}

type nopObserver struct{}

func (nopObserver) TickCompleted(time.Duration, int, int) {}
func (nopObserver) TickFailed()                           {}
func (nopObserver) SelectionChanged(plot.View, int)       {}
func (nopObserver) BufferCleared()                        {}
func (nopObserver) RecordingFailed()                      {}

// ValidateConfig checks generation rate and tick interval bounds
func ValidateConfig(rate int, interval time.Duration) error {
	if rate < MinRate || rate > MaxRate {
		return fmt.Errorf("%w: rate %d outside [%d, %d]", ErrInvalidConfig, rate, MinRate, MaxRate)
	}
	if interval < MinInterval || interval > MaxInterval {
		return fmt.Errorf("%w: interval %s outside [%s, %s]", ErrInvalidConfig, interval, MinInterval, MaxInterval)
	}
	return nil
}

// WithLogger sets the logger for the controller
func WithLogger(logger *slog.Logger) func(c *Controller) {
	return func(c *Controller) {
		c.logger = logger
	}
}

// WithSource replaces the sample generator
func WithSource(source Source) func(c *Controller) {
	return func(c *Controller) {
		c.source = source
	}
}

// WithRecorder enables recording of generated batches
func WithRecorder(recorder Recorder) func(c *Controller) {
	return func(c *Controller) {
		c.recorder = recorder
	}
}

// WithObserver sets the activity observer, usually a metrics collector
func WithObserver(observer Observer) func(c *Controller) {
	return func(c *Controller) {
		c.observer = observer
	}
}

// WithSelectionMode sets how selections follow data refreshes
func WithSelectionMode(mode selection.Mode) func(c *Controller) {
	return func(c *Controller) {
		c.mode = mode
	}
}

// WithProjector replaces the chart projector
func WithProjector(projector *plot.Projector) func(c *Controller) {
	return func(c *Controller) {
		c.projector = projector
	}
}

// WithRate sets the initial number of samples per tick
func WithRate(rate int) func(c *Controller) {
	return func(c *Controller) {
		c.rate = rate
	}
}

// WithInterval sets the initial tick interval
func WithInterval(interval time.Duration) func(c *Controller) {
	return func(c *Controller) {
		c.interval = interval
	}
}

// WithClock sets the clock driving the periodic tick
func WithClock(clock scheduler.Clock) func(c *Controller) {
	return func(c *Controller) {
		c.clock = clock
	}
}

// Controller owns the update loop: the rolling buffer, both chart projections,
// the per-view selections and the generation settings. All state is guarded by
// one mutex, so ticks and user commands never interleave.
type Controller struct {
	runMu sync.Mutex // serialises Start and Stop
	mu    sync.Mutex

	source     Source
	buffer     *sensor.RollingBuffer
	projector  *plot.Projector
	selections *selection.Set
	mode       selection.Mode
	charts     map[plot.View]plot.Chart

	rate     int
	interval time.Duration
	state    State
	ticks    uint64
	failures uint64

	task  *scheduler.Task
	clock scheduler.Clock

	recorder    Recorder
	recordingID int64
	batch       int64

	subMu       sync.Mutex
	subscribers map[uint64]chan Snapshot
	nextSub     uint64

	observer Observer
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// NewController creates a stopped controller with a buffer of the given capacity
func NewController(capacity int, options ...func(c *Controller)) (*Controller, error) {
	buffer, err := sensor.NewRollingBuffer(capacity)
	if err != nil {
		return nil, fmt.Errorf("creating buffer: %w", err)
	}

	c := Controller{
		buffer:      buffer,
		selections:  selection.NewSet(),
		mode:        selection.ModeIndex,
		rate:        DefaultRate,
		interval:    DefaultInterval,
		state:       StateStopped,
		subscribers: make(map[uint64]chan Snapshot),
		observer:    nopObserver{},
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)), // nil logger
	}

	for _, option := range options {
		option(&c)
	}

	if err = ValidateConfig(c.rate, c.interval); err != nil {
		return nil, err
	}
	if c.source == nil {
		c.source = sensor.NewGenerator()
	}
	if c.projector == nil {
		c.projector = plot.NewProjector()
	}

	c.charts = emptyCharts()

	taskOptions := []func(*scheduler.Task){scheduler.WithLogger(c.logger)}
	if c.clock != nil {
		taskOptions = append(taskOptions, scheduler.WithClock(c.clock))
	}

	c.task, err = scheduler.NewTask(c.interval, func(context.Context) { _ = c.Tick() }, taskOptions...)
	if err != nil {
		return nil, fmt.Errorf("creating update task: %w", err)
	}

	c.ctx, c.cancel = context.WithCancel(context.Background())

	return &c, nil
}

func emptyCharts() map[plot.View]plot.Chart {
	charts := make(map[plot.View]plot.Chart, len(plot.Views))
	for _, view := range plot.Views {
		charts[view] = plot.Empty(view)
	}
	return charts
}

// Start begins periodic generation. It returns false if already running.
func (c *Controller) Start() bool {
	c.runMu.Lock()
	defer c.runMu.Unlock()

	c.mu.Lock()
	if c.state == StateRunning {
		c.mu.Unlock()
		return false
	}
	rate, interval := c.rate, c.interval
	c.mu.Unlock()

	// the recording is open before the first tick can run
	recordingID := c.openRecording(rate, interval)

	c.mu.Lock()
	c.state = StateRunning
	c.recordingID = recordingID
	c.batch = 0
	c.task.Start(c.ctx)
	c.mu.Unlock()

	c.logger.Info("generation started",
		slog.String("rate", humanize.Comma(int64(rate))+" samples/tick"),
		slog.Duration("interval", interval),
	)

	c.broadcast(c.Snapshot())

	return true
}

// Stop cancels periodic generation, waiting for an in-flight tick. It
// returns false if already stopped.
func (c *Controller) Stop() bool {
	c.runMu.Lock()
	defer c.runMu.Unlock()

	c.mu.Lock()
	if c.state != StateRunning {
		c.mu.Unlock()
		return false
	}

	c.state = StateStopped
	c.mu.Unlock()

	// the in-flight tick needs the lock to finish
	c.task.Stop()

	c.logger.Info("generation stopped")
	c.broadcast(c.Snapshot())

	return true
}

// Tick runs one update: generate a batch, replace the buffer, reproject both
// views and reapply the selections. A failing tick changes nothing and the
// loop carries on with the next one.
func (c *Controller) Tick() error {
	started := time.Now()

	c.mu.Lock()
	if c.state != StateRunning {
		c.mu.Unlock()
		return ErrNotRunning
	}

	batch, err := c.tick()
	if err != nil {
		c.failures++
		c.mu.Unlock()

		c.logger.Error("tick skipped", slog.String("error", err.Error()))
		c.observer.TickFailed()
		return err
	}

	c.ticks++
	c.batch++
	buffered := c.buffer.Size()
	recordingID, seq := c.recordingID, c.batch
	snap := c.snapshot()
	c.mu.Unlock()

	c.observer.TickCompleted(time.Since(started), len(batch), buffered)
	for view, chart := range snap.Charts {
		if snap.Selections[view] != nil {
			c.observer.SelectionChanged(view, len(chart.SelectedIndices))
		}
	}

	c.record(recordingID, seq, batch)
	c.broadcast(snap)

	return nil
}

// tick computes the new state aside and commits it only when every step
// succeeded. Must be called with the lock held.
func (c *Controller) tick() (batch []sensor.Sample, err error) {
	defer func() {
		if r := recover(); r != nil {
			batch, err = nil, fmt.Errorf("%w: %v", ErrTickFailed, r)
		}
	}()

	batch = c.source.Generate(c.rate)
	if err = sensor.Validate(batch); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTickFailed, err)
	}

	// Replace keeps the tail of an oversized batch
	contents := batch
	if n := c.buffer.Capacity(); len(contents) > n {
		contents = contents[len(contents)-n:]
	}

	charts := c.projector.Project(contents)
	for view, chart := range charts {
		selection.Apply(&chart, c.selections.Get(view), c.mode)
		charts[view] = chart
	}

	c.buffer.Replace(contents)
	c.charts = charts

	return batch, nil
}

// Select replaces the selection of a view from a view layer event. An empty
// event clears it. The selection is applied to the current chart at once.
func (c *Controller) Select(view plot.View, e selection.Event) error {
	if _, err := plot.ParseView(string(view)); err != nil {
		return fmt.Errorf("%w: %w", ErrUnknownView, err)
	}

	state, err := selection.FromEvent(e)
	if err != nil {
		return err
	}

	c.mu.Lock()
	chart := c.charts[view]
	state = state.Seed(&chart)
	c.selections.Put(view, state)
	selection.Apply(&chart, state, c.mode)
	c.charts[view] = chart
	snap := c.snapshot()
	c.mu.Unlock()

	c.logger.Debug("selection changed",
		slog.String("view", string(view)),
		slog.Int("points", len(chart.SelectedIndices)),
	)
	c.observer.SelectionChanged(view, len(chart.SelectedIndices))
	c.broadcast(snap)

	return nil
}

// Clear wipes the buffer, both selections and both projections. It is valid
// in either state.
func (c *Controller) Clear() {
	c.mu.Lock()
	c.buffer.Clear()
	c.selections.Clear()
	c.projector.Reset()
	c.charts = emptyCharts()
	snap := c.snapshot()
	c.mu.Unlock()

	c.logger.Info("buffer cleared")
	c.observer.BufferCleared()
	for _, view := range plot.Views {
		c.observer.SelectionChanged(view, 0)
	}
	c.broadcast(snap)
}

// Configure changes the generation rate and the tick interval. A running
// loop picks up the new interval immediately.
func (c *Controller) Configure(rate int, interval time.Duration) error {
	if err := ValidateConfig(rate, interval); err != nil {
		return err
	}

	c.mu.Lock()
	c.rate = rate
	c.interval = interval
	if err := c.task.SetInterval(interval); err != nil {
		c.mu.Unlock()
		return fmt.Errorf("setting interval: %w", err)
	}
	snap := c.snapshot()
	c.mu.Unlock()

	c.logger.Info("configuration changed", slog.Int("rate", rate), slog.Duration("interval", interval))
	c.broadcast(snap)

	return nil
}

// openRecording creates a recording session for the next run and returns its
// id, or 0 when recording is off or the session could not be created.
func (c *Controller) openRecording(rate int, interval time.Duration) int64 {
	if c.recorder == nil {
		return 0
	}

	config := struct {
		Rate     int     `json:"rate"`
		Interval float64 `json:"interval"`
		Capacity int     `json:"capacity"`
	}{rate, interval.Seconds(), c.buffer.Capacity()}

	id, err := c.recorder.CreateSession(c.ctx, uuid.NewString(), config)
	if err != nil {
		c.logger.Warn("recording disabled for this run", slog.String("error", err.Error()))
		c.observer.RecordingFailed()
		return 0
	}

	c.logger.Info("recording session opened", slog.Int64("sessionID", id))
	return id
}

func (c *Controller) record(recordingID, seq int64, batch []sensor.Sample) {
	if c.recorder == nil || recordingID == 0 {
		return
	}

	if err := c.recorder.StoreBatch(c.ctx, recordingID, seq, batch); err != nil {
		c.logger.Warn("recording batch failed",
			slog.Int64("sessionID", recordingID),
			slog.Int64("batch", seq),
			slog.String("error", err.Error()),
		)
		c.observer.RecordingFailed()
	}
}

// Close stops the loop and releases subscribers. The controller cannot be
// restarted after Close.
func (c *Controller) Close() error {
	c.Stop()
	c.cancel()

	c.subMu.Lock()
	defer c.subMu.Unlock()

	for id, ch := range c.subscribers {
		close(ch)
		delete(c.subscribers, id)
	}

	return nil
}
