// Command svgoverlaysrc renders SVG overlays into a live BGRA video stream.
//
//	svgoverlaysrc run --config overlay.yaml
//	svgoverlaysrc render --width 640 --height 480 --out frame.png caption.svg
//	svgoverlaysrc send --socket /tmp/overlay.sock caption.svg
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

const version = "v0.1.0"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
