package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/samaanhq/shipyard/internal/core/lint"
)

func lintCommand() *cli.Command {
	return &cli.Command{
		Name:  "lint",
		Usage: "Validate an app's artifacts against each other",
		Description: `Check the image spec, compose file, and pipeline as a set.

Cross-document checks catch problems a single-file validator cannot,
such as a pipeline step referencing a secret that was never created or
a compose port that does not match the image's exposed port.

Exits non-zero when any error-severity finding is reported. Warnings
are printed but do not fail the command.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "image",
				Aliases: []string{"i"},
				Usage:   "Path to the image spec YAML",
			},
			&cli.StringFlag{
				Name:    "compose",
				Aliases: []string{"c"},
				Usage:   "Path to the compose YAML",
			},
			&cli.StringFlag{
				Name:    "pipeline",
				Aliases: []string{"p"},
				Usage:   "Path to the pipeline YAML",
			},
			&cli.StringSliceFlag{
				Name:    "secret",
				Aliases: []string{"s"},
				Usage:   "Secret name to treat as existing (can be specified multiple times)",
			},
			&cli.StringFlag{
				Name:  "image-repo",
				Usage: "Repository runs tag into (registry/project/slug); enables the image reference check",
			},
		},
		Action: lintAction,
	}
}

func lintAction(c *cli.Context) error {
	in := lint.Input{
		KnownSecrets: c.StringSlice("secret"),
		ImageRepo:    c.String("image-repo"),
	}

	var err error
	if path := c.String("image"); path != "" {
		if in.ImageSpecYAML, err = readArtifact(path); err != nil {
			return err
		}
	}
	if path := c.String("compose"); path != "" {
		if in.ComposeYAML, err = readArtifact(path); err != nil {
			return err
		}
	}
	if path := c.String("pipeline"); path != "" {
		if in.PipelineYAML, err = readArtifact(path); err != nil {
			return err
		}
	}

	report := lint.Lint(in)

	for _, f := range report.Findings {
		fmt.Fprintf(c.App.Writer, "%s [%s/%s] %s\n", f.Severity, f.Artifact, f.Code, f.Message)
	}

	if !report.OK() {
		return fmt.Errorf("lint failed with %d finding(s)", len(report.Findings))
	}

	fmt.Fprintln(c.App.Writer, "ok")
	return nil
}
