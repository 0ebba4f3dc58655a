package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/roman-kulish/ismscope/cmd/snapshot/app"
)

func main() {
	var config app.Config
	kong.Parse(&config,
		kong.Name("snapshot"),
		kong.Description("Render a recorded ismscope batch to an image."),
		kong.UsageOnError(),
	)

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := app.Run(ctx, &config, logger); err != nil {
		logger.Error(err.Error())

		cancel()
		os.Exit(1)
	}
}
