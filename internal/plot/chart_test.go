package plot

import (
	"testing"
	"time"

	"github.com/roman-kulish/ismscope/internal/sensor"
)

func testSamples() []sensor.Sample {
	now := time.Now()
	return []sensor.Sample{
		{Timestamp: now, Frequency: 2412, Bandwidth: 20, Power: -50},
		{Timestamp: now, Frequency: 2417, Bandwidth: 40, Power: -60},
		{Timestamp: now, Frequency: 2480, Bandwidth: 1, Power: -90},
		{Timestamp: now, Frequency: 2450, Bandwidth: 80, Power: -35},
	}
}

func TestFrequencyBandwidth(t *testing.T) {
	samples := testSamples()
	c := FrequencyBandwidth(samples)

	if c.View != ViewFrequencyBandwidth {
		t.Errorf("Expected view %q, got %q", ViewFrequencyBandwidth, c.View)
	}
	if c.Len() != len(samples) || len(c.Y) != len(samples) || len(c.Color) != len(samples) {
		t.Fatalf("Expected %d points in every array, got x=%d y=%d color=%d", len(samples), len(c.X), len(c.Y), len(c.Color))
	}

	for i, s := range samples {
		if c.X[i] != s.Frequency || c.Y[i] != s.Bandwidth || c.Color[i] != s.Power {
			t.Errorf("point %d: got (%v, %v, %v), expected (%v, %v, %v)", i, c.X[i], c.Y[i], c.Color[i], s.Frequency, s.Bandwidth, s.Power)
		}
	}

	if c.Size != nil {
		t.Error("Frequency/bandwidth chart should not carry marker sizes")
	}
	if c.Layout.YAxis.Range != [2]float64{0, 85} {
		t.Errorf("Unexpected y range %v", c.Layout.YAxis.Range)
	}
	if c.Layout.ColorScale != "Viridis" {
		t.Errorf("Unexpected colour scale %q", c.Layout.ColorScale)
	}
}

func TestScanner(t *testing.T) {
	samples := testSamples()
	c := Scanner(samples)

	wantSizes := []float64{5, 10, 4, 15}
	for i, s := range samples {
		if c.X[i] != s.Frequency || c.Y[i] != s.Power || c.Color[i] != s.Bandwidth {
			t.Errorf("point %d: got (%v, %v, %v), expected (%v, %v, %v)", i, c.X[i], c.Y[i], c.Color[i], s.Frequency, s.Power, s.Bandwidth)
		}
		if c.Size[i] != wantSizes[i] {
			t.Errorf("point %d: expected size %v, got %v", i, wantSizes[i], c.Size[i])
		}
	}

	if c.Layout.YAxis.Range != [2]float64{-105, -25} {
		t.Errorf("Unexpected y range %v", c.Layout.YAxis.Range)
	}
	if len(c.Layout.Markers) != 11 {
		t.Fatalf("Expected 11 channel markers, got %d", len(c.Layout.Markers))
	}
	if c.Layout.Markers[0].X != 2412 || c.Layout.Markers[0].Label != "Ch1" {
		t.Errorf("Unexpected first marker %+v", c.Layout.Markers[0])
	}
	if c.Layout.Markers[1].Label != "" {
		t.Errorf("Expected unlabelled second marker, got %q", c.Layout.Markers[1].Label)
	}
	if c.Layout.Markers[10].X != 2462 || c.Layout.Markers[10].Label != "Ch11" {
		t.Errorf("Unexpected last marker %+v", c.Layout.Markers[10])
	}
}

func TestEmptyProjection(t *testing.T) {
	for _, view := range Views {
		t.Run(string(view), func(t *testing.T) {
			c := Empty(view)
			if !c.IsEmpty() {
				t.Errorf("Expected empty chart, got %d points", c.Len())
			}
			if c.X == nil || c.Y == nil || c.Color == nil {
				t.Error("Empty chart arrays should be non-nil")
			}
			if c.Layout.Title == "" || c.Layout.DragMode != "select" {
				t.Errorf("Empty chart should keep its layout, got %+v", c.Layout)
			}
		})
	}
}

func TestChart_LenOnReturnedValue(t *testing.T) {
	samples := testSamples()
	charts := map[View]Chart{
		ViewFrequencyBandwidth: FrequencyBandwidth(samples),
		ViewScanner:            Scanner(samples),
	}

	for _, view := range Views {
		if n := charts[view].Len(); n != len(samples) {
			t.Errorf("%s: expected %d points, got %d", view, len(samples), n)
		}
		if charts[view].IsEmpty() {
			t.Errorf("%s: expected a non-empty chart", view)
		}
	}

	if n := Empty(ViewScanner).Len(); n != 0 {
		t.Errorf("Expected empty chart, got %d points", n)
	}
	if !Empty(ViewFrequencyBandwidth).IsEmpty() {
		t.Error("Expected Empty to report no points")
	}
}

func TestMarkerSize(t *testing.T) {
	testCases := []struct {
		bandwidth float64
		want      float64
	}{
		{1, 4},
		{16, 4},
		{20, 5},
		{40, 10},
		{60, 15},
		{80, 15},
	}

	for _, tc := range testCases {
		if got := MarkerSize(tc.bandwidth); got != tc.want {
			t.Errorf("MarkerSize(%v) = %v, expected %v", tc.bandwidth, got, tc.want)
		}
	}
}

func TestParseView(t *testing.T) {
	for _, view := range Views {
		if got, err := ParseView(string(view)); err != nil || got != view {
			t.Errorf("ParseView(%q) = %q, %v", view, got, err)
		}
	}
	if _, err := ParseView("waterfall"); err == nil {
		t.Error("Expected error for unknown view")
	}
}

func TestRect_Contains(t *testing.T) {
	r := Rect{X0: 2412, X1: 2417, Y0: 20, Y1: 40}

	testCases := []struct {
		x, y float64
		want bool
	}{
		{2412, 20, true},
		{2417, 40, true},
		{2414, 30, true},
		{2411.9, 30, false},
		{2414, 40.1, false},
	}

	for _, tc := range testCases {
		if got := r.Contains(tc.x, tc.y); got != tc.want {
			t.Errorf("Contains(%v, %v) = %v, expected %v", tc.x, tc.y, got, tc.want)
		}
	}
}
