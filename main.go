package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	app "github.com/qin-andy/ultimate-santorini-sub000/internal"
	"github.com/qin-andy/ultimate-santorini-sub000/internal/config"
)

func main() {
	cmd := &cli.Command{
		Name:  "santorini-server",
		Usage: "multiplayer tic-tac-toe and santorini game server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   "config.yml",
				Usage:   "path to the YAML config file",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "override the configured log level (debug, info, warn, error)",
			},
		},
		Action: run,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "app run failed: %v\n", err)
		os.Exit(1)
	}
}

func run(_ context.Context, cmd *cli.Command) error {
	conf, err := config.Load(cmd.String("config"))
	if err != nil {
		return err
	}

	if level := cmd.String("log-level"); level != "" {
		conf.LogLevel = level
	}

	return app.RunApp(initLogger(conf), conf)
}

// initialize logger.
func initLogger(conf *config.Config) *slog.Logger {
	var level slog.Level

	switch conf.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}
