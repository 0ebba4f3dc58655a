package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/roman-kulish/ismscope/cmd/ismscope/app"
)

var cli struct {
	Config    string `short:"c" type:"path" help:"Path to the configuration file."`
	Listen    string `short:"l" help:"Listen address, overrides server.listen."`
	AutoStart bool   `help:"Start generating as soon as the server is up."`
	Record    bool   `help:"Record generated batches, overrides storage.enabled."`
}

func main() {
	kong.Parse(&cli,
		kong.Name("ismscope"),
		kong.Description("Live 2.4 GHz ISM band packet visualiser."),
		kong.UsageOnError(),
	)

	var logLevel slog.LevelVar
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: &logLevel}))

	config, err := app.LoadConfig(cli.Config)
	if err != nil {
		logger.Error(fmt.Sprintf("failed to load configuration file: %s", err.Error()), slog.String("path", cli.Config))
		os.Exit(1)
	}

	if cli.Listen != "" {
		config.Server.Listen = cli.Listen
	}
	if cli.AutoStart {
		config.Generator.AutoStart = true
	}
	if cli.Record {
		config.Storage.Enabled = true
	}

	if err = config.Validate(); err != nil {
		logger.Error(fmt.Sprintf("invalid configuration: %s", err.Error()))
		os.Exit(1)
	}

	level, _ := config.Settings.Level()
	logLevel.Set(level)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err = app.Run(ctx, config, logger); err != nil {
		logger.Error(err.Error())

		cancel()
		os.Exit(1)
	}
}
