package sensor

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Band and measurement limits of the simulated 2.4 GHz ISM sensor.
const (
	FreqMin      = 2400.0 // MHz
	FreqMax      = 2500.0 // MHz
	PowerMin     = -100.0 // dBm
	PowerMax     = -30.0  // dBm
	BandwidthMin = 1.0    // MHz
	BandwidthMax = 80.0   // MHz

	BluetoothBase     = 2402.0 // MHz, 1 MHz channel spacing
	BluetoothChannels = 79
)

// WiFiChannels holds the centre frequencies (MHz) of 2.4 GHz WiFi channels 1 to 13.
var WiFiChannels = []float64{2412, 2417, 2422, 2427, 2432, 2437, 2442, 2447, 2452, 2457, 2462, 2467, 2472}

var (
	// ErrEmptyBatch is returned when a batch holds no samples.
	ErrEmptyBatch = errors.New("empty batch")

	// ErrOutOfRange is returned when a sample field falls outside the sensor limits.
	ErrOutOfRange = errors.New("sample out of range")
)

// Sample is a single packet detection. Samples are values and are never
// modified after the generator returns them.
type Sample struct {
	Timestamp time.Time `json:"timestamp"` // Packet arrival time
	Frequency float64   `json:"frequency"` // Centre frequency in MHz
	Bandwidth float64   `json:"bandwidth"` // Occupied bandwidth in MHz
	Power     float64   `json:"power"`     // Received power in dBm
}

// Limits describes the sensor's value ranges.
type Limits struct {
	FreqMin       float64   `json:"freqMin"`
	FreqMax       float64   `json:"freqMax"`
	PowerMin      float64   `json:"powerMin"`
	PowerMax      float64   `json:"powerMax"`
	BandwidthMin  float64   `json:"bandwidthMin"`
	BandwidthMax  float64   `json:"bandwidthMax"`
	WiFiChannels  []float64 `json:"wifiChannels"`
	BluetoothBase float64   `json:"bluetoothBase"`
}

// DefaultLimits returns the limits every generated sample satisfies.
func DefaultLimits() Limits {
	return Limits{
		FreqMin:       FreqMin,
		FreqMax:       FreqMax,
		PowerMin:      PowerMin,
		PowerMax:      PowerMax,
		BandwidthMin:  BandwidthMin,
		BandwidthMax:  BandwidthMax,
		WiFiChannels:  append([]float64(nil), WiFiChannels...),
		BluetoothBase: BluetoothBase,
	}
}

// Validate checks a batch against the sensor limits and reports the first offending sample.
func Validate(samples []Sample) error {
	if len(samples) == 0 {
		return ErrEmptyBatch
	}

	for i, s := range samples {
		switch {
		case s.Timestamp.IsZero():
			return fmt.Errorf("%w: sample %d: missing timestamp", ErrOutOfRange, i)
		case !within(s.Frequency, FreqMin, FreqMax):
			return fmt.Errorf("%w: sample %d: frequency %.2f MHz", ErrOutOfRange, i, s.Frequency)
		case !within(s.Bandwidth, BandwidthMin, BandwidthMax):
			return fmt.Errorf("%w: sample %d: bandwidth %.2f MHz", ErrOutOfRange, i, s.Bandwidth)
		case !within(s.Power, PowerMin, PowerMax):
			return fmt.Errorf("%w: sample %d: power %.2f dBm", ErrOutOfRange, i, s.Power)
		}
	}

	return nil
}

func within(v, lo, hi float64) bool {
	return !math.IsNaN(v) && v >= lo && v <= hi
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
