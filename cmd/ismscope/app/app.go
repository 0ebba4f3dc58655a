package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/roman-kulish/ismscope/internal/metrics"
	"github.com/roman-kulish/ismscope/internal/plot"
	"github.com/roman-kulish/ismscope/internal/selection"
	"github.com/roman-kulish/ismscope/internal/sensor"
	"github.com/roman-kulish/ismscope/internal/session"
	"github.com/roman-kulish/ismscope/internal/storage"
	"github.com/roman-kulish/ismscope/internal/web"
)

// Run serves the live view until the context is cancelled
func Run(ctx context.Context, config *Config, logger *slog.Logger) error {
	controllerOptions := []func(*session.Controller){
		session.WithLogger(logger),
		session.WithRate(config.Generator.Rate),
		session.WithInterval(config.Generator.IntervalDuration()),
	}
	serverOptions := []func(*web.Server){
		web.WithLogger(logger),
	}

	var generatorOptions []func(*sensor.Generator)
	if config.Generator.Seed != nil {
		generatorOptions = append(generatorOptions, sensor.WithSeed(*config.Generator.Seed))
	}
	controllerOptions = append(controllerOptions, session.WithSource(sensor.NewGenerator(generatorOptions...)))

	mode, err := selection.ParseMode(config.Selection.Mode)
	if err != nil {
		return err
	}
	controllerOptions = append(controllerOptions, session.WithSelectionMode(mode))

	theme, err := plot.ParseColorTheme(config.Plot.Theme)
	if err != nil {
		return err
	}
	controllerOptions = append(controllerOptions, session.WithProjector(plot.NewProjector(plot.WithTheme(theme))))

	if config.Metrics.Enabled {
		collector := metrics.New()
		controllerOptions = append(controllerOptions, session.WithObserver(collector))
		serverOptions = append(serverOptions, web.WithMetrics(collector))
	}

	if config.Storage.Enabled {
		store, err := createStorage(&config.Storage)
		if err != nil {
			return fmt.Errorf("failed to create storage: %w", err)
		}
		defer store.Close()

		controllerOptions = append(controllerOptions, session.WithRecorder(store))
		serverOptions = append(serverOptions, web.WithArchive(store))
	}

	controller, err := session.NewController(config.Buffer.Capacity, controllerOptions...)
	if err != nil {
		return fmt.Errorf("creating controller: %w", err)
	}
	defer controller.Close()

	server, err := web.NewServer(controller, serverOptions...)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	ln, err := web.Listen(config.Server.Listen, config.Server.PortScan)
	if err != nil {
		return fmt.Errorf("opening listener: %w", err)
	}

	if config.Generator.AutoStart {
		controller.Start()
	}

	return server.Serve(ctx, ln)
}

func createStorage(config *StorageConfig) (*storage.SqliteStore, error) {
	dir := config.DataDirectory
	if !filepath.IsAbs(dir) {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current working directory: %w", err)
		}
		dir = filepath.Join(wd, dir)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating storage directory '%s': %w", dir, err)
	}

	return storage.NewSqliteStore(filepath.Join(dir, config.File)), nil
}
