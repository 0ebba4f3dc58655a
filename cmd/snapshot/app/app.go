package app

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/roman-kulish/ismscope/internal/plot"
	"github.com/roman-kulish/ismscope/internal/sensor"
	"github.com/roman-kulish/ismscope/internal/storage"
)

// ErrNoSamples is returned when the query matched nothing to render
var ErrNoSamples = errors.New("no samples to render")

// Run renders one recorded batch of a session to an image file
func Run(ctx context.Context, config *Config, logger *slog.Logger) (err error) {
	if _, err = os.Stat(config.DBPath); err != nil && os.IsNotExist(err) {
		return fmt.Errorf("database file '%s' does not exist: %w", config.DBPath, err)
	}

	store := storage.NewSqliteStore(config.DBPath)
	defer store.Close()

	samples, err := readBatch(ctx, store, config, logger)
	if err != nil {
		return err
	}

	out, err := os.Create(config.OutputFile())
	if err != nil {
		return fmt.Errorf("creating output file: %w", err)
	}
	defer func() {
		if closeErr := out.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	return render(out, samples, config, logger)
}

func readBatch(ctx context.Context, store storage.Store, config *Config, logger *slog.Logger) ([]sensor.Sample, error) {
	session, err := store.Session(ctx, config.SessionID)
	if err != nil {
		return nil, fmt.Errorf("loading session %d: %w", config.SessionID, err)
	}

	var opts []storage.ReadOption
	filters := []any{slog.Int64("sessionID", session.ID), slog.String("label", session.Label)}

	if config.Batch > 0 {
		opts = append(opts, storage.WithBatch(config.Batch))
		filters = append(filters, slog.Int64("batch", config.Batch))
	} else {
		opts = append(opts, storage.WithLastBatch())
		filters = append(filters, slog.String("batch", "last"))
	}

	if config.MinFreq != nil || config.MaxFreq != nil {
		minFreq, maxFreq := sensor.FreqMin, sensor.FreqMax
		if config.MinFreq != nil {
			minFreq = *config.MinFreq
		}
		if config.MaxFreq != nil {
			maxFreq = *config.MaxFreq
		}
		opts = append(opts, storage.WithFreqRange(minFreq, maxFreq))

		filters = append(filters,
			slog.String("minFreq", fmt.Sprintf("%0.1fMHz", minFreq)),
			slog.String("maxFreq", fmt.Sprintf("%0.1fMHz", maxFreq)))
	}

	logger.Info("reading samples", filters...)

	samples, err := store.ReadSamples(ctx, session.ID, opts...)
	if err != nil {
		return nil, fmt.Errorf("reading samples: %w", err)
	}
	if len(samples) == 0 {
		return nil, ErrNoSamples
	}

	logger.Info("finished reading samples",
		slog.String("samples", humanize.Comma(int64(len(samples)))),
		slog.String("recorded", humanize.Time(session.StartedAt)),
	)

	return samples, nil
}

func render(w io.Writer, samples []sensor.Sample, config *Config, logger *slog.Logger) error {
	view, err := plot.ParseView(config.View)
	if err != nil {
		return err
	}
	theme, err := plot.ParseColorTheme(config.Theme)
	if err != nil {
		return err
	}

	projector := plot.NewProjector(plot.WithTheme(theme))
	chart := projector.Project(samples)[view]

	renderer, err := plot.NewRenderer(plot.RenderConfig{
		Width:  config.Width,
		Height: config.Height,
	})
	if err != nil {
		return fmt.Errorf("creating renderer: %w", err)
	}

	bounds := projector.PowerBounds()
	logger.Info("rendering chart",
		slog.Group("image",
			slog.String("destination", config.OutputFile()),
			slog.String("format", config.Format),
			slog.String("view", string(view)),
			slog.String("theme", string(projector.Mapper(view).ThemeName())),
			slog.String("minPower", fmt.Sprintf("%0.1fdBm", bounds.Min)),
			slog.String("maxPower", fmt.Sprintf("%0.1fdBm", bounds.Max)),
		))

	img, err := renderer.Render(&chart, projector.Mapper(view))
	if err != nil {
		return fmt.Errorf("rendering chart: %w", err)
	}

	return encode(w, img, ImageFormat(strings.ToLower(config.Format)))
}

func encode(w io.Writer, img image.Image, format ImageFormat) error {
	var err error
	switch format {
	case ImageJPEG:
		err = jpeg.Encode(w, img, &jpeg.Options{Quality: 98})
	default:
		err = png.Encode(w, img)
	}
	if err != nil {
		return fmt.Errorf("encoding %s: %w", format, err)
	}
	return nil
}
