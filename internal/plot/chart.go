package plot

import (
	"fmt"
	"math"

	"github.com/roman-kulish/ismscope/internal/sensor"
)

// View identifies one of the two chart projections of the sample buffer.
type View string

const (
	ViewFrequencyBandwidth View = "frequency-bandwidth"
	ViewScanner            View = "scanner"
)

// Views lists every view in display order.
var Views = []View{ViewFrequencyBandwidth, ViewScanner}

// ParseView validates a view name.
func ParseView(s string) (View, error) {
	for _, v := range Views {
		if string(v) == s {
			return v, nil
		}
	}
	return "", fmt.Errorf("unknown view '%s'", s)
}

const (
	minMarkerSize = 4.0
	maxMarkerSize = 15.0

	// PointSize is the marker size used when a chart carries no size array.
	PointSize = 6.0
	// Opacity is the marker opacity of both charts.
	Opacity = 0.7
)

// scannerChannels are the channels drawn as reference lines on the scanner view.
var scannerChannels = sensor.WiFiChannels[:11]

// Rect is an axis-aligned rectangle in data coordinates.
type Rect struct {
	X0 float64 `json:"x0"`
	X1 float64 `json:"x1"`
	Y0 float64 `json:"y0"`
	Y1 float64 `json:"y1"`
}

// Contains reports whether the point lies inside the rectangle, bounds included.
func (r Rect) Contains(x, y float64) bool {
	return x >= r.X0 && x <= r.X1 && y >= r.Y0 && y <= r.Y1
}

// Axis describes a chart axis with a fixed range.
type Axis struct {
	Title string     `json:"title"`
	Range [2]float64 `json:"range"`
}

// Marker is a vertical reference line.
type Marker struct {
	X     float64 `json:"x"`
	Label string  `json:"label,omitempty"`
}

// Layout holds presentation settings of a chart.
type Layout struct {
	Title           string   `json:"title"`
	XAxis           Axis     `json:"xaxis"`
	YAxis           Axis     `json:"yaxis"`
	DragMode        string   `json:"dragmode"`
	SelectDirection string   `json:"selectdirection"`
	ColorScale      string   `json:"colorscale"`
	ColorBarTitle   string   `json:"colorbarTitle"`
	Markers         []Marker `json:"markers,omitempty"`
}

// Chart is the chart-ready form of a projection. The data arrays are never
// modified after the chart is built, so charts may be shared between readers.
type Chart struct {
	View   View      `json:"view"`
	X      []float64 `json:"x"`
	Y      []float64 `json:"y"`
	Color  []float64 `json:"color"`
	Size   []float64 `json:"size,omitempty"`
	Colors []string  `json:"colors,omitempty"` // CSS colours for Color, filled by a ColorMapper

	Overlay         *Rect `json:"overlay,omitempty"`
	SelectedIndices []int `json:"selectedIndices,omitempty"`

	Layout Layout `json:"layout"`
}

// Len returns the number of points in the chart.
func (c Chart) Len() int {
	return len(c.X)
}

// IsEmpty reports whether the chart has no points.
func (c Chart) IsEmpty() bool {
	return len(c.X) == 0
}

// FrequencyBandwidth projects samples to x=frequency, y=bandwidth, color=power.
func FrequencyBandwidth(samples []sensor.Sample) Chart {
	c := Chart{
		View:   ViewFrequencyBandwidth,
		X:      make([]float64, len(samples)),
		Y:      make([]float64, len(samples)),
		Color:  make([]float64, len(samples)),
		Layout: frequencyBandwidthLayout(),
	}

	for i, s := range samples {
		c.X[i] = s.Frequency
		c.Y[i] = s.Bandwidth
		c.Color[i] = s.Power
	}

	return c
}

// Scanner projects samples to x=frequency, y=power, color=bandwidth, with a
// marker size derived from the bandwidth.
func Scanner(samples []sensor.Sample) Chart {
	c := Chart{
		View:   ViewScanner,
		X:      make([]float64, len(samples)),
		Y:      make([]float64, len(samples)),
		Color:  make([]float64, len(samples)),
		Size:   make([]float64, len(samples)),
		Layout: scannerLayout(),
	}

	for i, s := range samples {
		c.X[i] = s.Frequency
		c.Y[i] = s.Power
		c.Color[i] = s.Bandwidth
		c.Size[i] = MarkerSize(s.Bandwidth)
	}

	return c
}

// Project builds the chart for the given view.
func Project(view View, samples []sensor.Sample) Chart {
	if view == ViewScanner {
		return Scanner(samples)
	}
	return FrequencyBandwidth(samples)
}

// Empty returns the blank form of a view: valid layout, empty arrays.
func Empty(view View) Chart {
	return Project(view, nil)
}

// MarkerSize maps a bandwidth in MHz to a scanner marker size.
func MarkerSize(bandwidth float64) float64 {
	return math.Max(minMarkerSize, math.Min(maxMarkerSize, bandwidth/4))
}

func frequencyBandwidthLayout() Layout {
	return Layout{
		Title:           "Frequency vs. Bandwidth Distribution",
		XAxis:           Axis{Title: "Frequency (MHz)", Range: [2]float64{2390, 2510}},
		YAxis:           Axis{Title: "Bandwidth (MHz)", Range: [2]float64{0, 85}},
		DragMode:        "select",
		SelectDirection: "d",
		ColorScale:      "Viridis",
		ColorBarTitle:   "Power (dBm)",
	}
}

func scannerLayout() Layout {
	markers := make([]Marker, len(scannerChannels))
	for i, ch := range scannerChannels {
		markers[i] = Marker{X: ch}
		if i%2 == 0 { // every other label, the rest would overlap
			markers[i].Label = fmt.Sprintf("Ch%d", i+1)
		}
	}

	return Layout{
		Title:           "Spectrum Scanner - Frequency vs. Signal Strength",
		XAxis:           Axis{Title: "Frequency (MHz)", Range: [2]float64{2390, 2510}},
		YAxis:           Axis{Title: "Received Power (dBm)", Range: [2]float64{-105, -25}},
		DragMode:        "select",
		SelectDirection: "d",
		ColorScale:      "Plasma",
		ColorBarTitle:   "Bandwidth (MHz)",
		Markers:         markers,
	}
}
