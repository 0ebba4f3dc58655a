package plot

import (
	"fmt"
	"image/color"
	"math"

	"github.com/lucasb-eyer/go-colorful"
)

// ColorTheme represents a predefined color scheme for marker colouring.
type ColorTheme string

const (
	ViridisTheme   ColorTheme = "viridis"   // Dark purple to teal to yellow
	PlasmaTheme    ColorTheme = "plasma"    // Dark blue to magenta to yellow
	ClassicTheme   ColorTheme = "classic"   // Blue to red transition
	GrayscaleTheme ColorTheme = "grayscale" // Black to white transition
	ThermalTheme   ColorTheme = "thermal"   // Black to red to yellow to white
	MarineTheme    ColorTheme = "marine"    // Deep blue to cyan to white

	DefaultColorMapSize = 256 // Default number of colors in the map
)

// ParseColorTheme validates a theme name. An empty name is accepted and means
// each view keeps its own colour scale.
func ParseColorTheme(s string) (ColorTheme, error) {
	switch t := ColorTheme(s); t {
	case "", ViridisTheme, PlasmaTheme, ClassicTheme, GrayscaleTheme, ThermalTheme, MarineTheme:
		return t, nil
	default:
		return "", fmt.Errorf("unknown color theme '%s'", s)
	}
}

// Key colours of the perceptual scales, sampled at equal steps.
var (
	viridisStops = []string{"#440154", "#482878", "#3e4989", "#31688e", "#26828e", "#1f9e89", "#35b779", "#6ece58", "#b5de2b", "#fde725"}
	plasmaStops  = []string{"#0d0887", "#46039f", "#7201a8", "#9c179e", "#bd3786", "#d8576b", "#ed7953", "#fb9f3a", "#fdca26", "#f0f921"}
)

// ColorMapper provides value-to-color mapping with a pre-computed palette and
// an adjustable value range.
type ColorMapper struct {
	colorMap      []colorful.Color // Pre-computed colors
	hex           []string         // Pre-computed CSS form of colorMap
	themeName     ColorTheme
	size          int
	valuePerIndex float64 // Value range per index step
	boundsMin     float64 // Cached bounds.Min
}

// NewColorMapper creates a new color mapper with specified theme and bounds.
func NewColorMapper(theme ColorTheme, bounds Bounds) *ColorMapper {
	return NewColorMapperWithSize(theme, bounds, DefaultColorMapSize)
}

// NewColorMapperWithSize creates a new color mapper with specified palette size.
func NewColorMapperWithSize(theme ColorTheme, bounds Bounds, size int) *ColorMapper {
	if size <= 1 {
		size = DefaultColorMapSize
	}

	cm := &ColorMapper{
		colorMap:  make([]colorful.Color, size),
		hex:       make([]string, size),
		themeName: theme,
		size:      size,
	}

	palette := colorTheme(theme)
	for i := range cm.colorMap {
		c := palette(float64(i) / float64(size-1))
		cm.colorMap[i] = c.Clamped()
		cm.hex[i] = cm.colorMap[i].Hex()
	}

	cm.UpdateBounds(bounds)
	return cm
}

// UpdateBounds changes the value range mapped onto the palette.
func (cm *ColorMapper) UpdateBounds(bounds Bounds) {
	span := bounds.Max - bounds.Min
	if span <= 0 || math.IsNaN(span) {
		span = 1
	}
	cm.boundsMin = bounds.Min
	cm.valuePerIndex = span / float64(cm.size-1)
}

func (cm *ColorMapper) index(v float64) int {
	if math.IsNaN(v) {
		return 0
	}

	index := int((v - cm.boundsMin) / cm.valuePerIndex)
	return max(0, min(cm.size-1, index))
}

// Color returns the color for the given value.
func (cm *ColorMapper) Color(v float64) color.Color {
	return cm.colorMap[cm.index(v)]
}

// Hex returns the CSS hex color for the given value.
func (cm *ColorMapper) Hex(v float64) string {
	return cm.hex[cm.index(v)]
}

// ThemeName returns the current color theme name
func (cm *ColorMapper) ThemeName() ColorTheme {
	return cm.themeName
}

func colorTheme(theme ColorTheme) func(float64) colorful.Color {
	switch theme {
	case PlasmaTheme:
		return gradient(plasmaStops)

	case ClassicTheme:
		return func(v float64) colorful.Color {
			return colorful.Hsv(240-(v*240), 0.9+(v*0.1), 0.2+math.Pow(v, 0.7)*0.8)
		}

	case GrayscaleTheme:
		return func(v float64) colorful.Color {
			g := math.Pow(v, 0.7)
			return colorful.Color{R: g, G: g, B: g}
		}

	case ThermalTheme:
		return func(v float64) colorful.Color {
			switch {
			case v < 0.33:
				return colorful.Color{R: v * 3}
			case v < 0.66:
				return colorful.Color{R: 1, G: (v - 0.33) * 3}
			default:
				return colorful.Color{R: 1, G: 1, B: (v - 0.66) * 3}
			}
		}

	case MarineTheme:
		return func(v float64) colorful.Color {
			return colorful.Hsv(240-(v*60), 1.0-(v*0.8), 0.3+(math.Pow(v, 0.6)*0.7))
		}

	default:
		return gradient(viridisStops)
	}
}

// gradient interpolates evenly spaced key colours in the Lab space.
func gradient(stops []string) func(float64) colorful.Color {
	keys := make([]colorful.Color, len(stops))
	for i, s := range stops {
		keys[i], _ = colorful.Hex(s)
	}

	return func(v float64) colorful.Color {
		v = math.Max(0, math.Min(1, v))
		pos := v * float64(len(keys)-1)
		i := int(pos)
		if i >= len(keys)-1 {
			return keys[len(keys)-1]
		}
		return keys[i].BlendLab(keys[i+1], pos-float64(i))
	}
}
