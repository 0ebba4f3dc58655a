package sensor

import (
	"math"
	"math/rand/v2"
	"time"
)

const (
	wifiShare      = 0.6  // share of packets on a WiFi channel
	bluetoothShare = 0.3  // share of packets on a Bluetooth hop
	wifiJitter     = 11.0 // MHz, half of a 22 MHz channel

	basePowerMin    = -85.0
	basePowerMax    = -45.0
	powerNoiseSigma = 3.0
	strongChance    = 0.05
	weakChance      = 0.1

	arrivalJitter = 100 * time.Millisecond
)

var (
	wifiCommonWidths = []float64{20, 40}
	wifiRareWidths   = []float64{5, 10, 80}
	bluetoothWidths  = []float64{1, 1, 1, 2} // classic 1 MHz favoured over BLE 2 MHz
)

// emitter is the kind of transmitter a synthetic packet is attributed to.
type emitter int

const (
	emitterWiFi emitter = iota
	emitterBluetooth
	emitterOther
)

// WithSeed makes the generator deterministic.
func WithSeed(seed uint64) func(*Generator) {
	return func(g *Generator) {
		g.rnd = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	}
}

// WithRand sets the random source used by the generator.
func WithRand(r *rand.Rand) func(*Generator) {
	return func(g *Generator) {
		g.rnd = r
	}
}

// WithClock sets the function used to stamp generated batches.
func WithClock(now func() time.Time) func(*Generator) {
	return func(g *Generator) {
		g.now = now
	}
}

// Generator synthesises packet detections in the 2.4 GHz ISM band, biased
// towards WiFi channels and Bluetooth hops. A Generator is not safe for
// concurrent use.
type Generator struct {
	rnd *rand.Rand
	now func() time.Time
}

// NewGenerator creates a new Generator seeded from the runtime random source.
func NewGenerator(options ...func(*Generator)) *Generator {
	g := Generator{
		rnd: rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		now: time.Now,
	}

	for _, option := range options {
		option(&g)
	}

	return &g
}

// Generate returns exactly count samples, or an empty batch for count <= 0.
func (g *Generator) Generate(count int) []Sample {
	if count <= 0 {
		return []Sample{}
	}

	now := g.now()
	samples := make([]Sample, count)
	for i := range samples {
		jitter := time.Duration(g.uniform(-1, 1) * float64(arrivalJitter))
		frequency, kind := g.frequency()

		samples[i] = Sample{
			Timestamp: now.Add(jitter),
			Frequency: frequency,
			Bandwidth: g.bandwidth(kind),
			Power:     g.power(),
		}
	}

	return samples
}

func (g *Generator) frequency() (float64, emitter) {
	r := g.rnd.Float64()

	switch {
	case r < wifiShare:
		channel := WiFiChannels[g.rnd.IntN(len(WiFiChannels))]
		return clamp(channel+g.uniform(-wifiJitter, wifiJitter), FreqMin, FreqMax), emitterWiFi

	case r < wifiShare+bluetoothShare:
		hop := float64(g.rnd.IntN(BluetoothChannels))
		return math.Min(FreqMax, BluetoothBase+hop), emitterBluetooth

	default: // microwave ovens, industrial devices and other ISM users
		return g.uniform(FreqMin, FreqMax), emitterOther
	}
}

// bandwidth follows the emitter the frequency was drawn for. Bluetooth hops
// sit within a WiFi channel's skirt, so the frequency alone cannot tell them apart.
func (g *Generator) bandwidth(kind emitter) float64 {
	switch kind {
	case emitterWiFi:
		if g.rnd.Float64() < 0.8 {
			return g.pick(wifiCommonWidths)
		}
		return g.pick(wifiRareWidths)

	case emitterBluetooth:
		return g.pick(bluetoothWidths)

	default:
		return g.uniform(BandwidthMin, 20)
	}
}

func (g *Generator) power() float64 {
	base := g.uniform(basePowerMin, basePowerMax)
	noise := g.rnd.NormFloat64() * powerNoiseSigma

	if g.rnd.Float64() < strongChance {
		base = g.uniform(-40, -30)
	}
	if g.rnd.Float64() < weakChance {
		base = g.uniform(-95, -85)
	}

	return clamp(base+noise, PowerMin, PowerMax)
}

func (g *Generator) uniform(lo, hi float64) float64 {
	return lo + g.rnd.Float64()*(hi-lo)
}

func (g *Generator) pick(values []float64) float64 {
	return values[g.rnd.IntN(len(values))]
}
