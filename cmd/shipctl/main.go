package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli/v2"
)

// Version information (set by build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	app := &cli.App{
		Name:    "shipctl",
		Usage:   "Work with Shipyard app artifacts from the command line",
		Version: fmt.Sprintf("%s (built %s)", Version, BuildTime),
		Description: `Render, validate, and run Shipyard artifacts without a server.

This tool provides commands for:
  - Rendering an image spec into a Dockerfile
  - Linting an app's image, compose, and pipeline documents together
  - Bringing a compose stack up or down against the local Docker daemon`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				EnvVars: []string{"SHIPCTL_LOG_LEVEL"},
			},
		},
		Commands: []*cli.Command{
			renderCommand(),
			lintCommand(),
			upCommand(),
			downCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "shipctl: %v\n", err)
		os.Exit(1)
	}
}

// loggerFromContext builds a text logger honoring the global log-level flag.
func loggerFromContext(c *cli.Context) *slog.Logger {
	var level slog.Level
	switch c.String("log-level") {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// readArtifact loads one artifact file, mapping the error to something a CLI
// user can act on.
func readArtifact(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return string(data), nil
}
