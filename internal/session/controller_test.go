package session

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/roman-kulish/ismscope/internal/plot"
	"github.com/roman-kulish/ismscope/internal/scheduler"
	"github.com/roman-kulish/ismscope/internal/selection"
	"github.com/roman-kulish/ismscope/internal/sensor"
)

// idleClock never ticks, tests drive the loop by calling Tick.
type idleClock struct{}

func (idleClock) NewTicker(time.Duration) scheduler.Ticker { return idleTicker{} }

type idleTicker struct{}

func (idleTicker) C() <-chan time.Time  { return nil }
func (idleTicker) Reset(time.Duration) {}
func (idleTicker) Stop()               {}

type sourceFunc func(count int) []sensor.Sample

func (f sourceFunc) Generate(count int) []sensor.Sample { return f(count) }

type fakeRecorder struct {
	mu       sync.Mutex
	sessions []string
	batches  []int64
	sizes    []int
	storeErr error
}

func (r *fakeRecorder) CreateSession(_ context.Context, label string, _ any) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions = append(r.sessions, label)
	return int64(len(r.sessions)), nil
}

func (r *fakeRecorder) StoreBatch(_ context.Context, _, batch int64, samples []sensor.Sample) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.storeErr != nil {
		return r.storeErr
	}
	r.batches = append(r.batches, batch)
	r.sizes = append(r.sizes, len(samples))
	return nil
}

type countingObserver struct {
	mu        sync.Mutex
	completed int
	failed    int
	recFailed int
	cleared   int
}

func (o *countingObserver) TickCompleted(time.Duration, int, int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.completed++
}

func (o *countingObserver) TickFailed() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failed++
}

func (o *countingObserver) SelectionChanged(plot.View, int) {}

func (o *countingObserver) BufferCleared() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.cleared++
}

func (o *countingObserver) RecordingFailed() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.recFailed++
}

func newTestController(t *testing.T, capacity int, options ...func(*Controller)) *Controller {
	t.Helper()

	options = append([]func(*Controller){
		WithClock(idleClock{}),
		WithSource(sensor.NewGenerator(sensor.WithSeed(1))),
		WithRate(MinRate),
	}, options...)

	c, err := NewController(capacity, options...)
	if err != nil {
		t.Fatalf("Failed to create controller: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })

	return c
}

func mustTick(t *testing.T, c *Controller) {
	t.Helper()
	if err := c.Tick(); err != nil {
		t.Fatalf("Tick failed: %v", err)
	}
}

func TestController_StartStop(t *testing.T) {
	c := newTestController(t, 300)

	if c.Running() {
		t.Fatal("New controller should be stopped")
	}
	if c.Stop() {
		t.Error("Stop on a stopped controller should be a no-op")
	}
	if !c.Start() {
		t.Fatal("Start should succeed")
	}
	if c.Start() {
		t.Error("Second Start should be a no-op")
	}
	if snap := c.Snapshot(); snap.State != StateRunning {
		t.Errorf("Expected running state, got %q", snap.State)
	}
	if !c.Stop() {
		t.Fatal("Stop should succeed")
	}
	if err := c.Tick(); !errors.Is(err, ErrNotRunning) {
		t.Errorf("Tick while stopped should return ErrNotRunning, got %v", err)
	}
}

func TestController_Tick(t *testing.T) {
	c := newTestController(t, 300, WithRate(75))
	c.Start()
	mustTick(t, c)

	snap := c.Snapshot()
	if snap.BufferSize != 75 || snap.Ticks != 1 {
		t.Errorf("Expected 75 buffered samples after 1 tick, got %d after %d", snap.BufferSize, snap.Ticks)
	}
	for _, view := range plot.Views {
		if n := snap.Chart(view).Len(); n != 75 {
			t.Errorf("%s: expected 75 points, got %d", view, n)
		}
	}

	// the buffer is replaced, not appended to
	mustTick(t, c)
	if snap = c.Snapshot(); snap.BufferSize != 75 {
		t.Errorf("Expected buffer replaced by the new batch, got %d samples", snap.BufferSize)
	}
}

func TestController_SelectionRoundTrip(t *testing.T) {
	c := newTestController(t, 300)
	c.Start()
	mustTick(t, c)

	err := c.Select(plot.ViewFrequencyBandwidth, selection.Event{Points: []selection.Point{
		{X: 2412, Y: 20, PointIndex: 0},
		{X: 2417, Y: 40, PointIndex: 1},
	}})
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}

	snap := c.Snapshot()
	state := snap.Selections[plot.ViewFrequencyBandwidth]
	if state == nil {
		t.Fatal("Expected a selection")
	}
	if want := (plot.Rect{X0: 2412, X1: 2417, Y0: 20, Y1: 40}); state.Rect != want {
		t.Errorf("Expected rect %+v, got %+v", want, state.Rect)
	}
	if !slices.Equal(state.Indices, []int{0, 1}) {
		t.Errorf("Expected indices [0 1], got %v", state.Indices)
	}
	if snap.Selections[plot.ViewScanner] != nil {
		t.Error("Scanner selection should be independent")
	}
}

func TestController_SelectionSurvivesTick(t *testing.T) {
	c := newTestController(t, 300)
	c.Start()
	mustTick(t, c)

	err := c.Select(plot.ViewScanner, selection.Event{Points: []selection.Point{
		{X: 2412, Y: -50, PointIndex: 0},
		{X: 2417, Y: -60, PointIndex: 1},
	}})
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}

	mustTick(t, c)

	chart := c.Snapshot().Chart(plot.ViewScanner)
	if chart.Len() < 2 {
		t.Fatalf("Expected at least 2 points, got %d", chart.Len())
	}
	if !slices.Equal(chart.SelectedIndices, []int{0, 1}) {
		t.Errorf("Expected selection [0 1] after tick, got %v", chart.SelectedIndices)
	}
	if chart.Overlay == nil || chart.Overlay.X0 != 2412 || chart.Overlay.X1 != 2417 {
		t.Errorf("Expected overlay to be re-rendered, got %+v", chart.Overlay)
	}
}

func TestController_SelectionClampedToLength(t *testing.T) {
	// capacity below the minimum rate keeps the buffer shorter than the batch
	c := newTestController(t, 5)
	c.Start()
	mustTick(t, c)

	err := c.Select(plot.ViewFrequencyBandwidth, selection.Event{Points: []selection.Point{
		{X: 2412, Y: 20, PointIndex: 3},
		{X: 2417, Y: 40, PointIndex: 7},
	}})
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}

	mustTick(t, c)

	snap := c.Snapshot()
	if got := snap.Chart(plot.ViewFrequencyBandwidth).SelectedIndices; !slices.Equal(got, []int{3}) {
		t.Errorf("Expected out of range index dropped, got %v", got)
	}
	if got := snap.Selections[plot.ViewFrequencyBandwidth].Indices; !slices.Equal(got, []int{3, 7}) {
		t.Errorf("Selection state should keep its initial indices, got %v", got)
	}
}

func TestController_RectMode(t *testing.T) {
	c := newTestController(t, 300, WithSelectionMode(selection.ModeRect), WithRate(500))
	c.Start()
	mustTick(t, c)

	// whole band, strong half of the power range
	err := c.Select(plot.ViewScanner, selection.Event{Range: &selection.Range{
		X: []float64{sensor.FreqMin, sensor.FreqMax},
		Y: []float64{-65, sensor.PowerMax},
	}})
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}

	mustTick(t, c)

	chart := c.Snapshot().Chart(plot.ViewScanner)
	if len(chart.SelectedIndices) == 0 {
		t.Fatal("Expected some points inside the rectangle")
	}
	for _, i := range chart.SelectedIndices {
		if chart.Y[i] < -65 {
			t.Errorf("point %d with power %v is outside the selection", i, chart.Y[i])
		}
	}
}

func TestController_SelectErrors(t *testing.T) {
	c := newTestController(t, 300)
	c.Start()
	mustTick(t, c)

	if err := c.Select("waterfall", selection.Event{}); !errors.Is(err, ErrUnknownView) {
		t.Errorf("Expected ErrUnknownView, got %v", err)
	}

	valid := selection.Event{Points: []selection.Point{{X: 2412, Y: 20, PointIndex: 0}}}
	if err := c.Select(plot.ViewFrequencyBandwidth, valid); err != nil {
		t.Fatalf("Select failed: %v", err)
	}

	malformed := selection.Event{Range: &selection.Range{X: []float64{1}}}
	if err := c.Select(plot.ViewFrequencyBandwidth, malformed); !errors.Is(err, selection.ErrMalformedEvent) {
		t.Errorf("Expected ErrMalformedEvent, got %v", err)
	}
	if c.Snapshot().Selections[plot.ViewFrequencyBandwidth] == nil {
		t.Error("Malformed event must not clear the existing selection")
	}

	// empty event clears
	if err := c.Select(plot.ViewFrequencyBandwidth, selection.Event{}); err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	snap := c.Snapshot()
	if snap.Selections[plot.ViewFrequencyBandwidth] != nil {
		t.Error("Empty event should clear the selection")
	}
	if chart := snap.Chart(plot.ViewFrequencyBandwidth); chart.Overlay != nil || chart.SelectedIndices != nil {
		t.Error("Cleared selection should remove the overlay")
	}
}

func TestController_Clear(t *testing.T) {
	obs := &countingObserver{}
	c := newTestController(t, 300, WithObserver(obs))
	c.Start()
	mustTick(t, c)

	for _, view := range plot.Views {
		err := c.Select(view, selection.Event{Points: []selection.Point{{X: 2412, Y: 20, PointIndex: 0}}})
		if err != nil {
			t.Fatalf("Select failed: %v", err)
		}
	}

	c.Clear()

	snap := c.Snapshot()
	if snap.BufferSize != 0 {
		t.Errorf("Expected empty buffer, got %d", snap.BufferSize)
	}
	for _, view := range plot.Views {
		if snap.Selections[view] != nil {
			t.Errorf("%s: expected selection cleared", view)
		}
		chart := snap.Chart(view)
		if !chart.IsEmpty() || chart.X == nil || chart.Overlay != nil {
			t.Errorf("%s: expected empty chart form, got %d points, overlay %v", view, chart.Len(), chart.Overlay)
		}
	}
	if snap.State != StateRunning {
		t.Error("Clear should not stop the loop")
	}
	if obs.cleared != 1 {
		t.Errorf("Expected one clear notification, got %d", obs.cleared)
	}

	// clear is valid while stopped too
	c.Stop()
	c.Clear()
}

func TestController_FailingTick(t *testing.T) {
	testCases := []struct {
		name   string
		source func(count int) []sensor.Sample
	}{
		{"panic", func(int) []sensor.Sample { panic("sensor exploded") }},
		{"invalid batch", func(count int) []sensor.Sample {
			return []sensor.Sample{{Timestamp: time.Now(), Frequency: 100, Bandwidth: 20, Power: -50}}
		}},
		{"empty batch", func(int) []sensor.Sample { return nil }},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			gen := sensor.NewGenerator(sensor.WithSeed(5))
			fail := false
			src := sourceFunc(func(count int) []sensor.Sample {
				if fail {
					return tc.source(count)
				}
				return gen.Generate(count)
			})

			obs := &countingObserver{}
			c := newTestController(t, 300, WithSource(src), WithObserver(obs))
			c.Start()
			mustTick(t, c)
			before := c.Snapshot()

			fail = true
			if err := c.Tick(); !errors.Is(err, ErrTickFailed) {
				t.Fatalf("Expected ErrTickFailed, got %v", err)
			}

			after := c.Snapshot()
			if after.Ticks != before.Ticks || after.Failures != 1 {
				t.Errorf("Expected ticks %d and 1 failure, got %d and %d", before.Ticks, after.Ticks, after.Failures)
			}
			if after.BufferSize != before.BufferSize {
				t.Error("Failed tick must leave the buffer unchanged")
			}
			if !slices.Equal(after.Chart(plot.ViewScanner).X, before.Chart(plot.ViewScanner).X) {
				t.Error("Failed tick must leave the charts unchanged")
			}
			if after.State != StateRunning {
				t.Error("Failed tick must not stop the loop")
			}

			// the next tick runs normally
			fail = false
			mustTick(t, c)

			if obs.failed != 1 || obs.completed != 2 {
				t.Errorf("Expected 2 completed and 1 failed tick, got %d and %d", obs.completed, obs.failed)
			}
		})
	}
}

func TestController_Configure(t *testing.T) {
	testCases := []struct {
		name     string
		rate     int
		interval time.Duration
		wantErr  bool
	}{
		{"lower bounds", MinRate, MinInterval, false},
		{"upper bounds", MaxRate, MaxInterval, false},
		{"rate too low", MinRate - 1, time.Second, true},
		{"rate too high", MaxRate + 1, time.Second, true},
		{"interval too short", 100, 99 * time.Millisecond, true},
		{"interval too long", 100, 5*time.Second + time.Millisecond, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestController(t, 300)
			before := c.Snapshot()

			err := c.Configure(tc.rate, tc.interval)
			if tc.wantErr {
				if !errors.Is(err, ErrInvalidConfig) {
					t.Fatalf("Expected ErrInvalidConfig, got %v", err)
				}
				if snap := c.Snapshot(); snap.Rate != before.Rate || snap.Interval != before.Interval {
					t.Error("Rejected configuration must not change settings")
				}
				return
			}

			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			snap := c.Snapshot()
			if snap.Rate != tc.rate || snap.Interval != tc.interval.Seconds() {
				t.Errorf("Expected rate %d interval %v, got %d %v", tc.rate, tc.interval.Seconds(), snap.Rate, snap.Interval)
			}
		})
	}
}

func TestController_ConfigureRate(t *testing.T) {
	c := newTestController(t, 300)
	c.Start()

	if err := c.Configure(120, 200*time.Millisecond); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}
	mustTick(t, c)

	if n := c.Snapshot().BufferSize; n != 120 {
		t.Errorf("Expected the new rate to apply on the next tick, got %d samples", n)
	}
}

func TestNewController_Errors(t *testing.T) {
	if _, err := NewController(0); err == nil {
		t.Error("Expected error for zero capacity")
	}
	if _, err := NewController(10, WithRate(1)); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("Expected ErrInvalidConfig, got %v", err)
	}
}

func TestController_Recording(t *testing.T) {
	rec := &fakeRecorder{}
	obs := &countingObserver{}
	c := newTestController(t, 300, WithRecorder(rec), WithObserver(obs))

	c.Start()
	mustTick(t, c)
	mustTick(t, c)
	c.Stop()

	if len(rec.sessions) != 1 {
		t.Fatalf("Expected one recording session, got %d", len(rec.sessions))
	}
	if !slices.Equal(rec.batches, []int64{1, 2}) {
		t.Errorf("Expected batches [1 2], got %v", rec.batches)
	}
	if !slices.Equal(rec.sizes, []int{MinRate, MinRate}) {
		t.Errorf("Expected batches of %d samples, got %v", MinRate, rec.sizes)
	}

	// a new run opens a new session and restarts batch numbering
	c.Start()
	mustTick(t, c)
	if len(rec.sessions) != 2 || rec.batches[len(rec.batches)-1] != 1 {
		t.Errorf("Expected second session starting at batch 1, got sessions=%d batches=%v", len(rec.sessions), rec.batches)
	}

	// storage failures never stop the loop
	rec.storeErr = errors.New("disk full")
	mustTick(t, c)
	if obs.recFailed != 1 {
		t.Errorf("Expected one recording failure, got %d", obs.recFailed)
	}
	if !c.Running() {
		t.Error("Recording failure must not stop the loop")
	}
}

// tickingRecorder runs a tick while the recording session is being created.
type tickingRecorder struct {
	fakeRecorder
	onCreate func()
}

func (r *tickingRecorder) CreateSession(ctx context.Context, label string, config any) (int64, error) {
	r.onCreate()
	return r.fakeRecorder.CreateSession(ctx, label, config)
}

func TestController_RecordingOpensBeforeFirstTick(t *testing.T) {
	rec := &tickingRecorder{}
	c := newTestController(t, 300, WithRecorder(rec))

	var early error
	rec.onCreate = func() { early = c.Tick() }

	c.Start()
	if !errors.Is(early, ErrNotRunning) {
		t.Errorf("Expected no tick before the recording is open, got %v", early)
	}
	if snap := c.Snapshot(); snap.Ticks != 0 {
		t.Errorf("Expected no ticks yet, got %d", snap.Ticks)
	}

	mustTick(t, c)
	c.Stop()

	if !slices.Equal(rec.batches, []int64{1}) {
		t.Errorf("Expected the first stored batch to be 1, got %v", rec.batches)
	}
}

func TestController_Subscribe(t *testing.T) {
	c := newTestController(t, 300)
	updates, unsubscribe := c.Subscribe()

	c.Start()
	mustTick(t, c)

	// only the latest snapshot is kept for a slow subscriber
	select {
	case snap := <-updates:
		if snap.Ticks != 1 {
			t.Errorf("Expected latest snapshot after 1 tick, got %d ticks", snap.Ticks)
		}
	case <-time.After(time.Second):
		t.Fatal("Expected a snapshot")
	}

	unsubscribe()
	if _, ok := <-updates; ok {
		t.Error("Channel should be closed after unsubscribe")
	}
	unsubscribe() // second call is a no-op
}

func TestController_Loop(t *testing.T) {
	c, err := NewController(300,
		WithSource(sensor.NewGenerator(sensor.WithSeed(9))),
		WithInterval(MinInterval),
	)
	if err != nil {
		t.Fatalf("Failed to create controller: %v", err)
	}
	defer c.Close()

	updates, unsubscribe := c.Subscribe()
	defer unsubscribe()

	c.Start()

	deadline := time.After(3 * time.Second)
	for {
		select {
		case snap := <-updates:
			if snap.Ticks >= 2 {
				c.Stop()
				if c.Running() {
					t.Error("Expected stopped loop")
				}
				return
			}
		case <-deadline:
			t.Fatal("Timed out waiting for periodic ticks")
		}
	}
}
