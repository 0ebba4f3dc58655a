package selection

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/roman-kulish/ismscope/internal/plot"
)

// Mode controls how a selection is carried over to freshly generated data.
type Mode string

const (
	// ModeIndex keeps the selected index positions. After a data refresh the
	// same positions hold unrelated points.
	ModeIndex Mode = "index"
	// ModeRect keeps the rectangle and selects the new points inside it.
	ModeRect Mode = "rect"
)

// ParseMode validates a mode name, an empty name means ModeIndex.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case "":
		return ModeIndex, nil
	case ModeIndex, ModeRect:
		return m, nil
	default:
		return "", fmt.Errorf("unknown selection mode '%s'", s)
	}
}

var ErrMalformedEvent = errors.New("malformed selection event")

// Range is the explicit rectangle of a box selection, one [min, max] pair per axis.
type Range struct {
	X []float64 `json:"x"`
	Y []float64 `json:"y"`
}

// Point is a single selected point as reported by the chart.
type Point struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	PointIndex int     `json:"pointIndex"`
}

// Event is a selection-changed payload from the view layer.
type Event struct {
	Range  *Range  `json:"range,omitempty"`
	Points []Point `json:"points,omitempty"`
}

// IsEmpty reports whether the event clears the selection.
func (e Event) IsEmpty() bool {
	return e.Range == nil && len(e.Points) == 0
}

// State is a selection rectangle and the point indices it covered when it was
// made. A State is never modified once created.
type State struct {
	Rect    plot.Rect `json:"rect"`
	Indices []int     `json:"indices"`
}

// FromEvent builds the selection described by an event. An explicit range
// wins over the bounding box of the points. An empty event yields nil.
func FromEvent(e Event) (*State, error) {
	if e.IsEmpty() {
		return nil, nil
	}

	indices := make([]int, 0, len(e.Points))
	for _, p := range e.Points {
		if !finite(p.X) || !finite(p.Y) {
			return nil, fmt.Errorf("%w: point %d has invalid coordinates", ErrMalformedEvent, p.PointIndex)
		}
		if p.PointIndex < 0 {
			return nil, fmt.Errorf("%w: negative point index %d", ErrMalformedEvent, p.PointIndex)
		}
		indices = append(indices, p.PointIndex)
	}

	slices.Sort(indices)
	indices = slices.Compact(indices)

	var rect plot.Rect
	if e.Range != nil {
		r, err := rangeRect(e.Range)
		if err != nil {
			return nil, err
		}
		rect = r
	} else {
		rect = boundingRect(e.Points)
	}

	return &State{Rect: rect, Indices: indices}, nil
}

func rangeRect(r *Range) (plot.Rect, error) {
	if len(r.X) != 2 || len(r.Y) != 2 {
		return plot.Rect{}, fmt.Errorf("%w: range needs two values per axis, got x=%d y=%d", ErrMalformedEvent, len(r.X), len(r.Y))
	}
	for _, v := range [...]float64{r.X[0], r.X[1], r.Y[0], r.Y[1]} {
		if !finite(v) {
			return plot.Rect{}, fmt.Errorf("%w: range has invalid value %v", ErrMalformedEvent, v)
		}
	}

	return plot.Rect{
		X0: math.Min(r.X[0], r.X[1]),
		X1: math.Max(r.X[0], r.X[1]),
		Y0: math.Min(r.Y[0], r.Y[1]),
		Y1: math.Max(r.Y[0], r.Y[1]),
	}, nil
}

func boundingRect(points []Point) plot.Rect {
	rect := plot.Rect{X0: points[0].X, X1: points[0].X, Y0: points[0].Y, Y1: points[0].Y}
	for _, p := range points[1:] {
		rect.X0 = math.Min(rect.X0, p.X)
		rect.X1 = math.Max(rect.X1, p.X)
		rect.Y0 = math.Min(rect.Y0, p.Y)
		rect.Y1 = math.Max(rect.Y1, p.Y)
	}
	return rect
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Seed fills a range-only selection with the chart points inside its rectangle.
// States that already carry indices are returned unchanged.
func (s *State) Seed(c *plot.Chart) *State {
	if s == nil || len(s.Indices) > 0 {
		return s
	}
	return &State{Rect: s.Rect, Indices: inside(s.Rect, c)}
}

// Resolve returns the indices the selection covers on the given chart.
// The result is a fresh slice and is never nil.
func (s *State) Resolve(c *plot.Chart, mode Mode) []int {
	if s == nil {
		return []int{}
	}

	if mode == ModeRect {
		return inside(s.Rect, c)
	}

	n := c.Len()
	out := make([]int, 0, len(s.Indices))
	for _, i := range s.Indices {
		if i < n {
			out = append(out, i)
		}
	}
	return out
}

func inside(r plot.Rect, c *plot.Chart) []int {
	out := make([]int, 0)
	for i := range c.X {
		if i < len(c.Y) && r.Contains(c.X[i], c.Y[i]) {
			out = append(out, i)
		}
	}
	return out
}

// Apply sets the chart's overlay and selected indices from the selection.
// A nil selection removes both.
func Apply(c *plot.Chart, s *State, mode Mode) {
	if s == nil {
		c.Overlay = nil
		c.SelectedIndices = nil
		return
	}

	rect := s.Rect
	c.Overlay = &rect
	c.SelectedIndices = s.Resolve(c, mode)
}

// Set holds one independent selection per view. A Set is not safe for
// concurrent use.
type Set struct {
	states map[plot.View]*State
}

// NewSet returns a set with no selections.
func NewSet() *Set {
	return &Set{states: make(map[plot.View]*State)}
}

// Get returns the selection of a view, nil when there is none.
func (s *Set) Get(view plot.View) *State {
	return s.states[view]
}

// Put replaces the selection of a view, nil clears it.
func (s *Set) Put(view plot.View, state *State) {
	if state == nil {
		delete(s.states, view)
		return
	}
	s.states[view] = state
}

// Clear removes every selection.
func (s *Set) Clear() {
	clear(s.states)
}

// Len returns the number of views with a selection.
func (s *Set) Len() int {
	return len(s.states)
}
