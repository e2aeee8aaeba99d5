/*
Copyright © 2023 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"

	"synthsite/starfield"
)

func starfieldCmd() *cli.Command {
	return &cli.Command{
		Name:  "starfield",
		Usage: "Render a starfield snapshot as SVG",
		Description: `Runs the background animation for a number of frames against an
SVG surface and writes the last frame. The same seed always gives the same image,
which makes the output usable as a static poster for browsers without scripting.`,
		Flags: []cli.Flag{
			&cli.Float64Flag{Name: "width", Value: 1280, Usage: "Viewport width in CSS px"},
			&cli.Float64Flag{Name: "height", Value: 720, Usage: "Viewport height in CSS px"},
			&cli.Float64Flag{Name: "dpr", Value: 1, Usage: "Device pixel ratio"},
			&cli.Uint64Flag{Name: "seed", Value: 1, Usage: "Random seed"},
			&cli.IntFlag{Name: "frames", Value: 1, Usage: "Frames to simulate"},
			&cli.BoolFlag{Name: "reduced", Usage: "Simulate prefers-reduced-motion"},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "File to write, stdout when empty",
			},
		},
		Action: func(ctx *cli.Context) error {
			if ctx.Float64("width") <= 0 || ctx.Float64("height") <= 0 {
				return fmt.Errorf("width and height must be positive")
			}

			svg := starfield.Snapshot(starfield.SnapshotOptions{
				Width:   ctx.Float64("width"),
				Height:  ctx.Float64("height"),
				DPR:     ctx.Float64("dpr"),
				Seed:    ctx.Uint64("seed"),
				Frames:  max(ctx.Int("frames"), 1),
				Reduced: ctx.Bool("reduced"),
			})

			var w io.Writer = os.Stdout
			if path := ctx.String("output"); path != "" {
				f, err := os.Create(path)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			_, err := svg.WriteTo(w)
			return err
		},
	}
}
