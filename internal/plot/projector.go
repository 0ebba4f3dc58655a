package plot

import (
	"github.com/roman-kulish/ismscope/internal/sensor"
)

const boundsSmoothing = 0.3

// WithTheme overrides the colour scale of every view.
func WithTheme(theme ColorTheme) func(*Projector) {
	return func(p *Projector) {
		p.theme = theme
	}
}

// Projector turns the sample buffer into painted charts. Power colours follow
// a smoothed percentile range of recent readings (see SmoothBounds),
// bandwidth colours use the fixed sensor range. A Projector is not safe for concurrent use.
type Projector struct {
	theme   ColorTheme
	power   *SmoothBounds
	mappers map[View]*ColorMapper
}

// NewProjector creates a projector with per-view colour scales.
func NewProjector(options ...func(*Projector)) *Projector {
	p := Projector{
		power: NewSmoothBounds(boundsSmoothing),
	}

	for _, option := range options {
		option(&p)
	}

	p.mappers = map[View]*ColorMapper{
		ViewFrequencyBandwidth: NewColorMapper(p.themeFor(ViewFrequencyBandwidth), p.power.Current()),
		ViewScanner:            NewColorMapper(p.themeFor(ViewScanner), BandwidthBounds()),
	}

	return &p
}

func (p *Projector) themeFor(view View) ColorTheme {
	if p.theme != "" {
		return p.theme
	}
	if view == ViewScanner {
		return PlasmaTheme
	}
	return ViridisTheme
}

// Project builds both views from the buffer contents and paints their markers.
func (p *Projector) Project(samples []sensor.Sample) map[View]Chart {
	powers := make([]float64, len(samples))
	for i, s := range samples {
		powers[i] = s.Power
	}
	p.mappers[ViewFrequencyBandwidth].UpdateBounds(p.power.Update(powers))

	charts := make(map[View]Chart, len(Views))
	for _, view := range Views {
		c := Project(view, samples)
		p.Paint(&c)
		charts[view] = c
	}

	return charts
}

// Paint fills the chart's CSS colours from its colour values. With a theme
// override the named colour scale no longer matches and is dropped, so the
// browser falls back to the CSS colours.
func (p *Projector) Paint(c *Chart) {
	mapper := p.Mapper(c.View)
	if p.theme != "" {
		c.Layout.ColorScale = ""
	}

	c.Colors = make([]string, len(c.Color))
	for i, v := range c.Color {
		c.Colors[i] = mapper.Hex(v)
	}
}

// Mapper returns the colour mapper used for a view.
func (p *Projector) Mapper(view View) *ColorMapper {
	if m, ok := p.mappers[view]; ok {
		return m
	}
	return p.mappers[ViewFrequencyBandwidth]
}

// PowerBounds returns the current power colour range.
func (p *Projector) PowerBounds() Bounds {
	return p.power.Current()
}

// Reset forgets the power history.
func (p *Projector) Reset() {
	p.power.Clear()
	p.mappers[ViewFrequencyBandwidth].UpdateBounds(p.power.Current())
}
