package app

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/roman-kulish/ismscope/internal/plot"
)

const (
	ImagePNG  ImageFormat = "png"
	ImageJPEG ImageFormat = "jpeg"
)

type ImageFormat string

var validImageFormats = map[ImageFormat]struct{}{
	ImagePNG:  {},
	ImageJPEG: {},
}

// Config holds the command line of the snapshot tool
type Config struct {
	DBPath    string   `name:"db" required:"" type:"path" help:"Path to the database file."`
	SessionID int64    `name:"session" short:"s" default:"1" help:"Recording session ID."`
	Batch     int64    `short:"b" help:"Batch to render, the last one when omitted."`
	View      string   `short:"v" default:"scanner" enum:"scanner,frequency-bandwidth" help:"Chart to render (${enum})."`
	Output    string   `short:"o" required:"" type:"path" help:"Path to the output file, the extension follows the format."`
	Format    string   `short:"f" default:"png" enum:"png,jpeg" help:"Output image format (${enum})."`
	Theme     string   `short:"t" help:"Colour theme overriding the view's own scale."`
	MinFreq   *float64 `name:"min-freq" help:"Lowest frequency to include, MHz."`
	MaxFreq   *float64 `name:"max-freq" help:"Highest frequency to include, MHz."`
	Width     int      `default:"900" help:"Plot area width in pixels."`
	Height    int      `default:"500" help:"Plot area height in pixels."`
}

// Validate is called by kong after parsing
func (c *Config) Validate() error {
	if c.SessionID <= 0 {
		return errors.New("session id must be positive")
	}
	if c.Batch < 0 {
		return errors.New("batch must not be negative")
	}
	if _, err := plot.ParseView(c.View); err != nil {
		return err
	}
	if _, ok := validImageFormats[ImageFormat(strings.ToLower(c.Format))]; !ok {
		return fmt.Errorf("invalid image format: %s", c.Format)
	}
	if _, err := plot.ParseColorTheme(c.Theme); err != nil {
		return err
	}
	if c.MinFreq != nil && c.MaxFreq != nil && *c.MinFreq > *c.MaxFreq {
		return fmt.Errorf("min frequency %.1f is above max frequency %.1f", *c.MinFreq, *c.MaxFreq)
	}
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("invalid image size %dx%d", c.Width, c.Height)
	}
	return nil
}

// OutputFile returns the output path with the format's extension
func (c *Config) OutputFile() string {
	ext := "." + strings.ToLower(c.Format)
	if strings.EqualFold(filepath.Ext(c.Output), ext) {
		return c.Output
	}
	return c.Output + ext
}
