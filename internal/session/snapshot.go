package session

import (
	"maps"
	"time"

	"github.com/roman-kulish/ismscope/internal/plot"
	"github.com/roman-kulish/ismscope/internal/selection"
)

// Snapshot is a consistent view of the controller. Chart arrays are shared
// with the controller and must not be modified.
type Snapshot struct {
	State          State          `json:"state"`
	Rate           int            `json:"rate"`
	Interval       float64        `json:"interval"` // seconds
	SelectionMode  selection.Mode `json:"selectionMode"`
	BufferSize     int            `json:"bufferSize"`
	BufferCapacity int            `json:"bufferCapacity"`
	Ticks          uint64         `json:"ticks"`
	Failures       uint64         `json:"failures"`
	RecordingID    int64          `json:"recordingId,omitempty"`

	Charts     map[plot.View]plot.Chart        `json:"charts"`
	Selections map[plot.View]*selection.State `json:"selections"`

	UpdatedAt time.Time `json:"updatedAt"`
}

// Chart returns the chart of a view
func (s Snapshot) Chart(view plot.View) plot.Chart {
	return s.Charts[view]
}

// snapshot must be called with the lock held
func (c *Controller) snapshot() Snapshot {
	selections := make(map[plot.View]*selection.State, len(plot.Views))
	for _, view := range plot.Views {
		selections[view] = c.selections.Get(view)
	}

	return Snapshot{
		State:          c.state,
		Rate:           c.rate,
		Interval:       c.interval.Seconds(),
		SelectionMode:  c.mode,
		BufferSize:     c.buffer.Size(),
		BufferCapacity: c.buffer.Capacity(),
		Ticks:          c.ticks,
		Failures:       c.failures,
		RecordingID:    c.recordingID,
		Charts:         maps.Clone(c.charts),
		Selections:     selections,
		UpdatedAt:      time.Now(),
	}
}

// Snapshot returns the current state of the controller
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.snapshot()
}

// Running reports whether the update loop is started
func (c *Controller) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.state == StateRunning
}

// Subscribe returns a channel receiving a snapshot after every tick and
// command, and a function to unsubscribe. A subscriber that falls behind
// only gets the latest snapshot.
func (c *Controller) Subscribe() (<-chan Snapshot, func()) {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	id := c.nextSub
	c.nextSub++

	ch := make(chan Snapshot, 1)
	c.subscribers[id] = ch

	return ch, func() {
		c.subMu.Lock()
		defer c.subMu.Unlock()

		if _, ok := c.subscribers[id]; ok {
			delete(c.subscribers, id)
			close(ch)
		}
	}
}

func (c *Controller) broadcast(snap Snapshot) {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	for _, ch := range c.subscribers {
		select {
		case ch <- snap:
			continue
		default:
		}

		// replace the stale snapshot
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
}
