package main

import (
	"fmt"
	"image/png"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	svgoverlay "github.com/e7canasta/orion-care-sensor/modules/svg-overlay"
	"github.com/e7canasta/orion-care-sensor/modules/svg-overlay/internal/render"
)

type renderOptions struct {
	width    int
	height   int
	out      string
	maxBytes int
}

func newRenderCmd() *cobra.Command {
	opts := renderOptions{}

	cmd := &cobra.Command{
		Use:     "render [file.svg|-]",
		Short:   "Render one SVG document to a PNG through the overlay source",
		Example: "  svgoverlaysrc render --width 640 --height 480 --out frame.png caption.svg",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}
			return renderPNG(content, opts, slog.Default())
		},
	}

	cmd.Flags().IntVar(&opts.width, "width", svgoverlay.DefaultWidth, "Frame width in pixels")
	cmd.Flags().IntVar(&opts.height, "height", svgoverlay.DefaultHeight, "Frame height in pixels")
	cmd.Flags().StringVarP(&opts.out, "out", "o", "frame.png", "Output PNG path")
	cmd.Flags().IntVar(&opts.maxBytes, "max-bytes", 0, "Reject documents larger than this (0 = unlimited)")
	return cmd
}

func readInput(cmd *cobra.Command, name string) (string, error) {
	if name == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", fmt.Errorf("failed to read stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(name)
	if err != nil {
		return "", fmt.Errorf("failed to read document: %w", err)
	}
	return string(data), nil
}

// renderPNG pushes content through a backlog-mode source and encodes the
// single delivered frame.
func renderPNG(content string, opts renderOptions, logger *slog.Logger) error {
	src, err := svgoverlay.New(
		svgoverlay.Config{Width: opts.width, Height: opts.height},
		svgoverlay.WithRenderer(render.NewSVGRenderer(opts.maxBytes)),
		svgoverlay.WithLogger(logger),
	)
	if err != nil {
		return fmt.Errorf("failed to create overlay source: %w", err)
	}
	if err := src.Start(); err != nil {
		return err
	}
	defer src.Stop()

	src.Submit(content, 0)
	src.RequestEndOfStream()

	geo := src.Geometry()
	buf := make([]byte, geo.FrameSize())
	res, err := src.Fill(svgoverlay.FrameBuffer{Data: buf, Width: geo.Width, Height: geo.Height, Stride: geo.MinStride})
	if err != nil {
		return fmt.Errorf("fill failed: %w", err)
	}
	if res.Status != svgoverlay.StatusOK {
		return fmt.Errorf("no frame delivered (status %s)", res.Status)
	}
	if src.Stats().ContentErrors > 0 {
		logger.Warn("document could not be rendered, writing a transparent frame")
	}

	f, err := os.Create(opts.out)
	if err != nil {
		return fmt.Errorf("failed to create output: %w", err)
	}
	defer f.Close()

	if err := png.Encode(f, render.ToRGBA(buf, geo.Width, geo.Height, geo.MinStride)); err != nil {
		return fmt.Errorf("failed to encode png: %w", err)
	}
	logger.Info("frame written", "path", opts.out, "width", geo.Width, "height", geo.Height, "trace_id", res.TraceID)
	return f.Close()
}
