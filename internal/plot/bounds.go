package plot

import (
	"math"

	"github.com/roman-kulish/ismscope/internal/sensor"
)

const (
	// For 20 samples:
	// - 5% percentile  = 1 sample
	// - 95% percentile = 19th sample
	minimumSampleCount = 20

	minimumPowerRange = 30 // dB

	// SmoothBounds halves its histogram whenever it would grow past this
	// many readings, so older batches fade out.
	boundsWindow = 5000
)

// Bounds is a value range used to normalise a colour scale.
type Bounds struct {
	Min  float64
	Max  float64
	Mean float64
}

// DefaultPowerBounds spans the whole sensor power range.
func DefaultPowerBounds() Bounds {
	return Bounds{
		Min:  sensor.PowerMin,
		Max:  sensor.PowerMax,
		Mean: (sensor.PowerMin + sensor.PowerMax) / 2,
	}
}

// BandwidthBounds spans the whole sensor bandwidth range.
func BandwidthBounds() Bounds {
	return Bounds{
		Min:  sensor.BandwidthMin,
		Max:  sensor.BandwidthMax,
		Mean: (sensor.BandwidthMin + sensor.BandwidthMax) / 2,
	}
}

// PowerHistogram maintains a histogram of power values with 1 dB bins
type PowerHistogram struct {
	bins       map[int]uint32 // Map of bin index to count
	totalCount uint64         // Total number of samples
	minBin     int            // Cache for min bin
	maxBin     int            // Cache for max bin
}

// NewPowerHistogram creates a new histogram
func NewPowerHistogram() *PowerHistogram {
	return &PowerHistogram{
		bins:   make(map[int]uint32),
		minBin: math.MaxInt32,
		maxBin: math.MinInt32,
	}
}

func binIndex(power float64) int {
	return int(math.Floor(power))
}

// Update adds a power reading to the histogram
func (h *PowerHistogram) Update(power float64) {
	if math.IsNaN(power) {
		return
	}

	bin := binIndex(power)
	if h.bins[bin] == math.MaxUint32 {
		h.scaleDown()
	}

	h.bins[bin]++
	h.totalCount++

	h.minBin = min(h.minBin, bin)
	h.maxBin = max(h.maxBin, bin)
}

// scaleDown halves all bin counts, dropping bins that reach zero
func (h *PowerHistogram) scaleDown() {
	h.minBin = math.MaxInt32
	h.maxBin = math.MinInt32
	h.totalCount = 0

	for bin := range h.bins {
		h.bins[bin] /= 2
		if h.bins[bin] == 0 {
			delete(h.bins, bin)
			continue
		}
		h.totalCount += uint64(h.bins[bin])
		h.minBin = min(h.minBin, bin)
		h.maxBin = max(h.maxBin, bin)
	}
}

// Clear resets the histogram
func (h *PowerHistogram) Clear() {
	h.bins = make(map[int]uint32)
	h.totalCount = 0
	h.minBin = math.MaxInt32
	h.maxBin = math.MinInt32
}

// Count returns the number of readings in the histogram
func (h *PowerHistogram) Count() uint64 {
	return h.totalCount
}

// PercentileBounds returns the 5th-95th percentile range with a 10% margin
// and a minimum span of 30 dB. Too few readings yield DefaultPowerBounds.
func (h *PowerHistogram) PercentileBounds() Bounds {
	if h.totalCount < minimumSampleCount {
		return DefaultPowerBounds()
	}

	target := h.totalCount * 5 / 100

	var count uint64
	var low, high int

	for bin := h.minBin; bin <= h.maxBin; bin++ {
		count += uint64(h.bins[bin])
		if count >= target {
			low = bin
			break
		}
	}

	count = 0
	for bin := h.maxBin; bin >= h.minBin; bin-- {
		count += uint64(h.bins[bin])
		if count >= target {
			high = bin
			break
		}
	}

	var sum float64
	for bin, n := range h.bins {
		sum += float64(bin) * float64(n)
	}
	mean := sum / float64(h.totalCount)

	if high-low < minimumPowerRange {
		center := (high + low) / 2
		low = center - minimumPowerRange/2
		high = center + minimumPowerRange/2
	}

	margin := (high - low) / 10

	return Bounds{
		Min:  float64(low - margin),
		Max:  float64(high + margin + 1), // upper edge of the top bin
		Mean: mean,
	}
}

// SmoothBounds exponentially smooths histogram bounds so the colour scale
// does not jump between ticks. The histogram holds at most boundsWindow
// readings, older ones decay as new batches arrive.
type SmoothBounds struct {
	hist    *PowerHistogram
	alpha   float64 // Smoothing factor (0-1)
	window  uint64
	current Bounds
}

// NewSmoothBounds creates a new bounds smoother
func NewSmoothBounds(alpha float64) *SmoothBounds {
	return &SmoothBounds{
		hist:    NewPowerHistogram(),
		alpha:   alpha,
		window:  boundsWindow,
		current: DefaultPowerBounds(),
	}
}

// Update feeds a batch of readings and returns the smoothed bounds
func (s *SmoothBounds) Update(values []float64) Bounds {
	if len(values) == 0 {
		return s.current
	}

	for s.hist.Count() > 0 && s.hist.Count()+uint64(len(values)) > s.window {
		s.hist.scaleDown()
	}

	for _, v := range values {
		s.hist.Update(v)
	}

	next := s.hist.PercentileBounds()
	s.current.Min = s.current.Min*(1-s.alpha) + next.Min*s.alpha
	s.current.Max = s.current.Max*(1-s.alpha) + next.Max*s.alpha
	s.current.Mean = next.Mean

	return s.current
}

// Current returns the current smoothed bounds
func (s *SmoothBounds) Current() Bounds {
	return s.current
}

// Clear resets the histogram and bounds
func (s *SmoothBounds) Clear() {
	s.hist.Clear()
	s.current = DefaultPowerBounds()
}
