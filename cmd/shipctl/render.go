package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/samaanhq/shipyard/internal/core/imagespec"
)

func renderCommand() *cli.Command {
	return &cli.Command{
		Name:      "render",
		Usage:     "Render an image spec into a Dockerfile",
		ArgsUsage: "IMAGE_SPEC",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Write the Dockerfile to a file instead of stdout",
			},
		},
		Action: renderAction,
	}
}

func renderAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("expected exactly one image spec path, got %d", c.NArg())
	}

	content, err := readArtifact(c.Args().First())
	if err != nil {
		return err
	}

	spec, err := imagespec.ParseImageSpec(content)
	if err != nil {
		return fmt.Errorf("invalid image spec: %w", err)
	}

	dockerfile := imagespec.RenderDockerfile(spec)

	if out := c.String("output"); out != "" {
		if err := os.WriteFile(out, []byte(dockerfile), 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", out, err)
		}
		return nil
	}

	fmt.Fprint(c.App.Writer, dockerfile)
	return nil
}
