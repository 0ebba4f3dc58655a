package plot

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"math"

	"github.com/dustin/go-humanize"
	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"github.com/lucasb-eyer/go-colorful"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
)

const (
	dpi            = 96.0
	fontSize       = 10.0
	tickMarkHeight = 5
	pixelsPerLabel = 90.0

	defaultWidth  = 900
	defaultHeight = 500

	// Default border sizes in pixels
	defaultTopBorder    = 40
	defaultLeftBorder   = 70
	defaultBottomBorder = 50
	defaultRightBorder  = 30
)

var (
	gridColor      = color.RGBA{R: 0xe5, G: 0xe5, B: 0xe5, A: 0xff}
	channelColor   = color.RGBA{R: 0x99, G: 0x99, B: 0x99, A: 0xff}
	selectionColor = color.RGBA{R: 0xd6, G: 0x27, B: 0x28, A: 0xff}
)

// BorderConfig defines the sizes of white space around the plot area
type BorderConfig struct {
	Top    int // Space for title
	Left   int // Space for y scale
	Bottom int // Space for x scale and axis title
	Right  int // Right padding
}

// RenderConfig holds the options of chart rasterisation
type RenderConfig struct {
	Width        int     // Plot area width in pixels
	Height       int     // Plot area height in pixels
	FontSize     float64 // Font size in points
	BorderConfig BorderConfig
}

// Renderer draws charts as raster images.
type Renderer struct {
	config RenderConfig
	font   *truetype.Font
}

// NewRenderer creates a renderer, filling zero config values with defaults.
func NewRenderer(config RenderConfig) (*Renderer, error) {
	if config.Width <= 0 {
		config.Width = defaultWidth
	}
	if config.Height <= 0 {
		config.Height = defaultHeight
	}
	if config.FontSize == 0 {
		config.FontSize = fontSize
	}
	if config.BorderConfig.Top == 0 {
		config.BorderConfig.Top = defaultTopBorder
	}
	if config.BorderConfig.Left == 0 {
		config.BorderConfig.Left = defaultLeftBorder
	}
	if config.BorderConfig.Bottom == 0 {
		config.BorderConfig.Bottom = defaultBottomBorder
	}
	if config.BorderConfig.Right == 0 {
		config.BorderConfig.Right = defaultRightBorder
	}

	parsedFont, err := freetype.ParseFont(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("parsing font: %w", err)
	}

	return &Renderer{config: config, font: parsedFont}, nil
}

// Render rasterises the chart. Markers use the chart's CSS colours when
// present, otherwise mapper colours.
func (r *Renderer) Render(c *Chart, mapper *ColorMapper) (*image.RGBA, error) {
	b := r.config.BorderConfig
	img := image.NewRGBA(image.Rect(0, 0, r.config.Width+b.Left+b.Right, r.config.Height+b.Top+b.Bottom))
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)

	area := image.Rect(b.Left, b.Top, b.Left+r.config.Width, b.Top+r.config.Height)
	pr := projection{area: area, x: c.Layout.XAxis.Range, y: c.Layout.YAxis.Range}

	ann := r.newAnnotator()
	defer ann.Close()

	ann.context.SetClip(img.Bounds())
	ann.context.SetDst(img)

	ops := []struct {
		msg string
		fn  func(*image.RGBA, *Chart, projection) error
	}{
		{"drawing x scale", ann.drawXScale},
		{"drawing y scale", ann.drawYScale},
		{"drawing channel markers", ann.drawMarkers},
		{"drawing title", ann.drawTitle},
	}
	for _, op := range ops {
		if err := op.fn(img, c, pr); err != nil {
			return nil, fmt.Errorf("%s: %w", op.msg, err)
		}
	}

	r.renderPoints(img, c, mapper, pr)
	drawFrame(img, area, color.Black)

	if c.Overlay != nil {
		overlay := image.Rectangle{
			Min: image.Pt(pr.px(c.Overlay.X0), pr.py(c.Overlay.Y1)),
			Max: image.Pt(pr.px(c.Overlay.X1), pr.py(c.Overlay.Y0)),
		}
		drawFrame(img, overlay.Intersect(area), selectionColor)
	}

	return img, nil
}

// WritePNG renders the chart and encodes it as PNG.
func (r *Renderer) WritePNG(w io.Writer, c *Chart, mapper *ColorMapper) error {
	img, err := r.Render(c, mapper)
	if err != nil {
		return err
	}

	if err = png.Encode(w, img); err != nil {
		return fmt.Errorf("encoding png: %w", err)
	}

	return nil
}

func (r *Renderer) renderPoints(img *image.RGBA, c *Chart, mapper *ColorMapper, pr projection) {
	selected := make(map[int]struct{}, len(c.SelectedIndices))
	for _, i := range c.SelectedIndices {
		selected[i] = struct{}{}
	}

	for i := range c.X {
		var fill color.Color = color.Black
		switch {
		case i < len(c.Colors):
			if cf, err := colorful.Hex(c.Colors[i]); err == nil {
				fill = cf
			}
		case mapper != nil && i < len(c.Color):
			fill = mapper.Color(c.Color[i])
		}

		radius := PointSize / 2
		if i < len(c.Size) {
			radius = c.Size[i] / 2
		}

		x, y := pr.px(c.X[i]), pr.py(c.Y[i])
		alpha := Opacity
		if len(selected) > 0 {
			if _, ok := selected[i]; !ok {
				alpha = Opacity / 3 // dim unselected points
			}
		}
		fillCircle(img, pr.area, x, y, radius, fill, alpha)

		if _, ok := selected[i]; ok {
			strokeCircle(img, pr.area, x, y, radius+1, color.Black)
		}
	}
}

// projection maps data coordinates to image pixels inside the plot area.
type projection struct {
	area image.Rectangle
	x, y [2]float64
}

func (p projection) px(v float64) int {
	ratio := (v - p.x[0]) / (p.x[1] - p.x[0])
	return p.area.Min.X + int(math.Round(ratio*float64(p.area.Dx())))
}

func (p projection) py(v float64) int {
	ratio := (v - p.y[0]) / (p.y[1] - p.y[0])
	return p.area.Max.Y - int(math.Round(ratio*float64(p.area.Dy())))
}

type annotator struct {
	context  *freetype.Context
	fontFace font.Face
	fontSize float64
}

func (r *Renderer) newAnnotator() *annotator {
	ctx := freetype.NewContext()
	ctx.SetDPI(dpi)
	ctx.SetFont(r.font)
	ctx.SetFontSize(r.config.FontSize)
	ctx.SetHinting(font.HintingNone)
	ctx.SetSrc(image.Black)

	return &annotator{
		context:  ctx,
		fontSize: r.config.FontSize,
		fontFace: truetype.NewFace(r.font, &truetype.Options{
			Size:    r.config.FontSize,
			DPI:     dpi,
			Hinting: font.HintingNone,
		}),
	}
}

func (a *annotator) Close() error {
	if a.fontFace != nil {
		return a.fontFace.Close()
	}
	return nil
}

func (a *annotator) fontHeight() int {
	metrics := a.fontFace.Metrics()
	return (metrics.Ascent + metrics.Descent).Round()
}

func (a *annotator) drawString(s string, x, y int) error {
	_, err := a.context.DrawString(s, freetype.Pt(x, y))
	return err
}

func (a *annotator) drawXScale(img *image.RGBA, c *Chart, pr projection) error {
	lo, hi := pr.x[0], pr.x[1]
	step := niceStep(hi-lo, float64(pr.area.Dx())/pixelsPerLabel)

	for v := math.Ceil(lo/step) * step; v <= hi; v += step {
		x := pr.px(v)
		for y := pr.area.Min.Y; y < pr.area.Max.Y; y++ {
			img.Set(x, y, gridColor)
		}
		for y := pr.area.Max.Y; y < pr.area.Max.Y+tickMarkHeight; y++ {
			img.Set(x, y, color.Black)
		}

		label := formatFrequency(v)
		width := font.MeasureString(a.fontFace, label).Round()
		if err := a.drawString(label, x-width/2, pr.area.Max.Y+tickMarkHeight+a.fontHeight()); err != nil {
			return fmt.Errorf("drawing frequency label: %w", err)
		}
	}

	title := c.Layout.XAxis.Title
	width := font.MeasureString(a.fontFace, title).Round()
	return a.drawString(title, pr.area.Min.X+(pr.area.Dx()-width)/2, img.Bounds().Max.Y-a.fontHeight()/2)
}

func (a *annotator) drawYScale(img *image.RGBA, c *Chart, pr projection) error {
	lo, hi := pr.y[0], pr.y[1]
	step := niceStep(hi-lo, float64(pr.area.Dy())/(pixelsPerLabel/2))

	for v := math.Ceil(lo/step) * step; v <= hi; v += step {
		y := pr.py(v)
		for x := pr.area.Min.X; x < pr.area.Max.X; x++ {
			img.Set(x, y, gridColor)
		}
		for x := pr.area.Min.X - tickMarkHeight; x < pr.area.Min.X; x++ {
			img.Set(x, y, color.Black)
		}

		label := fmt.Sprintf("%g", v)
		width := font.MeasureString(a.fontFace, label).Round()
		if err := a.drawString(label, pr.area.Min.X-tickMarkHeight-width-3, y+a.fontHeight()/3); err != nil {
			return fmt.Errorf("drawing %s label: %w", c.Layout.YAxis.Title, err)
		}
	}

	return a.drawString(c.Layout.YAxis.Title, 3, pr.area.Min.Y-a.fontHeight()/2)
}

func (a *annotator) drawMarkers(img *image.RGBA, c *Chart, pr projection) error {
	for _, m := range c.Layout.Markers {
		x := pr.px(m.X)
		for y := pr.area.Min.Y; y < pr.area.Max.Y; y++ {
			if (y/4)%2 == 0 { // dashed
				img.Set(x, y, channelColor)
			}
		}

		if m.Label == "" {
			continue
		}
		width := font.MeasureString(a.fontFace, m.Label).Round()
		if err := a.drawString(m.Label, x-width/2, pr.area.Min.Y+a.fontHeight()); err != nil {
			return fmt.Errorf("drawing marker label: %w", err)
		}
	}

	return nil
}

func (a *annotator) drawTitle(img *image.RGBA, c *Chart, pr projection) error {
	title := fmt.Sprintf("%s (%d points)", c.Layout.Title, c.Len())
	width := font.MeasureString(a.fontFace, title).Round()
	return a.drawString(title, (img.Bounds().Dx()-width)/2, pr.area.Min.Y-a.fontHeight())
}

// niceStep picks a 1, 2 or 5 times power of ten step that yields about
// the requested number of ticks.
func niceStep(span, ticks float64) float64 {
	if span <= 0 || ticks < 1 {
		return math.Max(span, 1)
	}

	rough := span / ticks
	magnitude := math.Pow(10, math.Floor(math.Log10(rough)))
	for _, m := range []float64{1, 2, 5, 10} {
		if step := m * magnitude; step >= rough {
			return step
		}
	}
	return 10 * magnitude
}

// formatFrequency renders a frequency given in MHz with an SI prefix.
func formatFrequency(mhz float64) string {
	value, suffix := humanize.ComputeSI(mhz * 1e6)
	return fmt.Sprintf("%g %sHz", math.Round(value*1000)/1000, suffix)
}

func fillCircle(img *image.RGBA, clip image.Rectangle, cx, cy int, radius float64, c color.Color, alpha float64) {
	r := int(math.Ceil(radius))
	src := color.RGBAModel.Convert(c).(color.RGBA)

	for y := cy - r; y <= cy+r; y++ {
		for x := cx - r; x <= cx+r; x++ {
			if !image.Pt(x, y).In(clip) {
				continue
			}
			dx, dy := float64(x-cx), float64(y-cy)
			if dx*dx+dy*dy > radius*radius {
				continue
			}
			img.SetRGBA(x, y, blend(img.RGBAAt(x, y), src, alpha))
		}
	}
}

func strokeCircle(img *image.RGBA, clip image.Rectangle, cx, cy int, radius float64, c color.Color) {
	steps := int(math.Max(16, 2*math.Pi*radius))
	for i := 0; i < steps; i++ {
		angle := 2 * math.Pi * float64(i) / float64(steps)
		x := cx + int(math.Round(radius*math.Cos(angle)))
		y := cy + int(math.Round(radius*math.Sin(angle)))
		if image.Pt(x, y).In(clip) {
			img.Set(x, y, c)
		}
	}
}

func drawFrame(img *image.RGBA, r image.Rectangle, c color.Color) {
	if r.Empty() {
		return
	}
	for x := r.Min.X; x < r.Max.X; x++ {
		img.Set(x, r.Min.Y, c)
		img.Set(x, r.Max.Y-1, c)
	}
	for y := r.Min.Y; y < r.Max.Y; y++ {
		img.Set(r.Min.X, y, c)
		img.Set(r.Max.X-1, y, c)
	}
}

func blend(dst, src color.RGBA, alpha float64) color.RGBA {
	mix := func(d, s uint8) uint8 {
		return uint8(math.Round(float64(d)*(1-alpha) + float64(s)*alpha))
	}
	return color.RGBA{R: mix(dst.R, src.R), G: mix(dst.G, src.G), B: mix(dst.B, src.B), A: 0xff}
}
