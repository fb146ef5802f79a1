// Package main is the entry point for the contract builder. The default
// command runs the HTTP API; other commands manage the database and compile
// templates from the command line.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"contractbuilder/internal/config"
)

var version = "dev"

func main() {
	app := &cli.App{
		Name:    "contractbuilder",
		Usage:   "Browse contract templates and compile them to PDF with Typst",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Load configuration from `FILE` (TOML)",
				EnvVars: []string{"CONTRACTBUILDER_CONFIG"},
			},
		},
		// Variable values may legitimately contain commas.
		DisableSliceFlagSeparator: true,
		Action:                    serveAction,
		Commands: []*cli.Command{
			serveCommand(),
			migrateCommand(),
			seedCommand(),
			compileCommand(),
			tokenCommand(),
			versionsCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

// loadConfig reads the configuration and installs the structured logger.
// The logger outputs JSON in production and text in development.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}

	opts := &slog.HandlerOptions{Level: parseLevel(cfg.App.LogLevel)}
	var handler slog.Handler
	if cfg.IsDev() {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
	return cfg, nil
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}
