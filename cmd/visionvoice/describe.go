package main

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"

	"github.com/spf13/cobra"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

func describeCmd(flags *globalFlags) *cobra.Command {
	var audio bool

	cmd := &cobra.Command{
		Use:   "describe <image>",
		Short: "Describe one image file and print the result as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := flags.load(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if !audio {
				disabled := false
				cfg.Narration.Enabled = &disabled
			}
			// One-shot runs never record or publish
			cfg.Journal.Path = ""
			cfg.Events.URL = ""

			app, err := NewApp(cfg, logger, os.Getenv)
			if err != nil {
				return err
			}
			defer app.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Server.RequestTimeout)
			defer cancel()

			return describeFile(ctx, app, args[0], cmd.OutOrStdout())
		},
	}

	cmd.Flags().BoolVar(&audio, "audio", false, "Also synthesize narration into the audio directory")
	return cmd
}

func describeFile(ctx context.Context, app *App, path string, out io.Writer) error {
	img, err := decodeFile(path)
	if err != nil {
		return err
	}

	res, err := app.pipeline.Describe(ctx, img)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

func decodeFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return img, nil
}
