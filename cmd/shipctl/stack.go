package main

import (
	"fmt"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/samaanhq/shipyard/internal/core/compose"
	"github.com/samaanhq/shipyard/internal/shell/docker"
)

func upCommand() *cli.Command {
	return &cli.Command{
		Name:      "up",
		Usage:     "Bring a compose stack up on the local Docker daemon",
		ArgsUsage: "COMPOSE_FILE",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "app",
				Aliases:  []string{"a"},
				Usage:    "App identifier used to label and name stack resources",
				Required: true,
			},
			&cli.StringSliceFlag{
				Name:    "var",
				Aliases: []string{"e"},
				Usage:   "Variable substitution in KEY=VALUE form (can be specified multiple times)",
			},
			&cli.StringFlag{
				Name:    "env-dir",
				Usage:   "Base directory for resolving env_file paths",
				Value:   ".",
				EnvVars: []string{"SHIPCTL_ENV_DIR"},
			},
			&cli.StringFlag{
				Name:    "docker-host",
				Usage:   "Docker daemon address (defaults to the environment)",
				EnvVars: []string{"DOCKER_HOST"},
			},
		},
		Action: upAction,
	}
}

func downCommand() *cli.Command {
	return &cli.Command{
		Name:      "down",
		Usage:     "Tear down a compose stack on the local Docker daemon",
		ArgsUsage: "COMPOSE_FILE",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "app",
				Aliases:  []string{"a"},
				Usage:    "App identifier the stack was brought up with",
				Required: true,
			},
			&cli.BoolFlag{
				Name:  "remove-volumes",
				Usage: "Also remove the stack's named volumes",
			},
			&cli.StringFlag{
				Name:    "docker-host",
				Usage:   "Docker daemon address (defaults to the environment)",
				EnvVars: []string{"DOCKER_HOST"},
			},
		},
		Action: downAction,
	}
}

func upAction(c *cli.Context) error {
	spec, err := loadStackSpec(c)
	if err != nil {
		return err
	}

	variables, err := parseVariables(c.StringSlice("var"))
	if err != nil {
		return err
	}

	logger := loggerFromContext(c)
	d, err := docker.NewDockerClient(c.String("docker-host"))
	if err != nil {
		return fmt.Errorf("failed to connect to Docker: %w", err)
	}
	defer d.Close()

	orch := docker.NewOrchestrator(d, logger, c.String("env-dir"))
	services, err := orch.UpStack(c.Context, c.String("app"), spec, variables)
	if err != nil {
		return fmt.Errorf("stack up failed: %w", err)
	}

	for _, svc := range services {
		fmt.Fprintf(c.App.Writer, "%s\t%s\t%s\n", svc.ServiceName, svc.State, svc.ContainerID)
	}
	return nil
}

func downAction(c *cli.Context) error {
	spec, err := loadStackSpec(c)
	if err != nil {
		return err
	}

	logger := loggerFromContext(c)
	d, err := docker.NewDockerClient(c.String("docker-host"))
	if err != nil {
		return fmt.Errorf("failed to connect to Docker: %w", err)
	}
	defer d.Close()

	orch := docker.NewOrchestrator(d, logger, ".")
	if err := orch.DownStack(c.Context, c.String("app"), spec, c.Bool("remove-volumes")); err != nil {
		return fmt.Errorf("stack down failed: %w", err)
	}

	fmt.Fprintln(c.App.Writer, "stack removed")
	return nil
}

func loadStackSpec(c *cli.Context) (*compose.StackSpec, error) {
	if c.NArg() != 1 {
		return nil, fmt.Errorf("expected exactly one compose file path, got %d", c.NArg())
	}
	content, err := readArtifact(c.Args().First())
	if err != nil {
		return nil, err
	}
	spec, err := compose.ParseStackSpec(content)
	if err != nil {
		return nil, fmt.Errorf("invalid compose file: %w", err)
	}
	return spec, nil
}

func parseVariables(pairs []string) (map[string]string, error) {
	variables := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, found := strings.Cut(pair, "=")
		if !found || key == "" {
			return nil, fmt.Errorf("invalid variable %q (expected KEY=VALUE)", pair)
		}
		variables[key] = value
	}
	return variables, nil
}
