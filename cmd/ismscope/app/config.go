package app

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"time"

	"github.com/roman-kulish/ismscope/internal/plot"
	"github.com/roman-kulish/ismscope/internal/selection"
	"github.com/roman-kulish/ismscope/internal/session"
	"github.com/roman-kulish/ismscope/internal/web"
	"gopkg.in/yaml.v3"
)

const (
	defaultListen         = "127.0.0.1:8000"
	defaultBufferCapacity = 300
	defaultDataDirectory  = "data"
	defaultDatabaseFile   = "ismscope.sqlite"
)

// Config represents the main application configuration
type Config struct {
	Settings  Settings        `yaml:"settings"`
	Server    ServerConfig    `yaml:"server"`
	Generator GeneratorConfig `yaml:"generator"`
	Buffer    BufferConfig    `yaml:"buffer"`
	Selection SelectionConfig `yaml:"selection"`
	Plot      PlotConfig      `yaml:"plot"`
	Storage   StorageConfig   `yaml:"storage"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// Settings represents global application settings
type Settings struct {
	LogLevel string `yaml:"logLevel"`
}

// ServerConfig represents the HTTP listener settings
type ServerConfig struct {
	Listen   string `yaml:"listen"`
	PortScan int    `yaml:"portScan"` // ports tried after a busy one
}

// GeneratorConfig represents the update loop settings
type GeneratorConfig struct {
	Rate      int     `yaml:"rate"`     // samples per tick
	Interval  float64 `yaml:"interval"` // seconds
	Seed      *uint64 `yaml:"seed"`
	AutoStart bool    `yaml:"autoStart"`
}

// BufferConfig represents the rolling buffer settings
type BufferConfig struct {
	Capacity int `yaml:"capacity"`
}

// SelectionConfig represents how selections follow refreshed data
type SelectionConfig struct {
	Mode string `yaml:"mode"`
}

// PlotConfig represents chart presentation settings
type PlotConfig struct {
	Theme string `yaml:"theme"`
}

// StorageConfig represents recording settings
type StorageConfig struct {
	Enabled       bool   `yaml:"enabled"`
	DataDirectory string `yaml:"dataDirectory"`
	File          string `yaml:"file"`
}

// MetricsConfig represents the Prometheus endpoint settings
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// NewConfig returns the configuration used when no file is given
func NewConfig() *Config {
	return &Config{
		Settings: Settings{LogLevel: slog.LevelInfo.String()},
		Server: ServerConfig{
			Listen:   defaultListen,
			PortScan: web.DefaultPortScan,
		},
		Generator: GeneratorConfig{
			Rate:     session.DefaultRate,
			Interval: session.DefaultInterval.Seconds(),
		},
		Buffer:    BufferConfig{Capacity: defaultBufferCapacity},
		Selection: SelectionConfig{Mode: string(selection.ModeIndex)},
		Storage: StorageConfig{
			DataDirectory: defaultDataDirectory,
			File:          defaultDatabaseFile,
		},
		Metrics: MetricsConfig{Enabled: true},
	}
}

// LoadConfig reads a YAML configuration file on top of the defaults. An
// empty path yields the defaults. The result is not validated, so command
// line overrides can be applied first.
func LoadConfig(path string) (*Config, error) {
	config := NewConfig()
	if path == "" {
		return config, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err = yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	return config, nil
}

// Validate checks every section and reports all problems at once
func (c *Config) Validate() error {
	var errs []error

	if _, err := c.Settings.Level(); err != nil {
		errs = append(errs, err)
	}

	if _, _, err := net.SplitHostPort(c.Server.Listen); err != nil {
		errs = append(errs, fmt.Errorf("server.listen: %w", err))
	}
	if c.Server.PortScan < 0 {
		errs = append(errs, fmt.Errorf("server.portScan: must not be negative, got %d", c.Server.PortScan))
	}

	if err := session.ValidateConfig(c.Generator.Rate, c.Generator.IntervalDuration()); err != nil {
		errs = append(errs, fmt.Errorf("generator: %w", err))
	}

	if c.Buffer.Capacity <= 0 {
		errs = append(errs, fmt.Errorf("buffer.capacity: must be positive, got %d", c.Buffer.Capacity))
	}

	if _, err := selection.ParseMode(c.Selection.Mode); err != nil {
		errs = append(errs, fmt.Errorf("selection.mode: %w", err))
	}

	if _, err := plot.ParseColorTheme(c.Plot.Theme); err != nil {
		errs = append(errs, fmt.Errorf("plot.theme: %w", err))
	}

	if c.Storage.Enabled && (c.Storage.DataDirectory == "" || c.Storage.File == "") {
		errs = append(errs, errors.New("storage: dataDirectory and file are required when recording is enabled"))
	}

	return errors.Join(errs...)
}

// Level parses the configured log level
func (s Settings) Level() (slog.Level, error) {
	var level slog.Level
	if s.LogLevel == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(s.LogLevel)); err != nil {
		return 0, fmt.Errorf("settings.logLevel: %w", err)
	}
	return level, nil
}

// IntervalDuration returns the tick interval as a duration
func (g GeneratorConfig) IntervalDuration() time.Duration {
	return time.Duration(g.Interval * float64(time.Second))
}
