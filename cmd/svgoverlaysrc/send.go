package main

import (
	"fmt"
	"net"
	"time"

	"github.com/spf13/cobra"

	"github.com/e7canasta/orion-care-sensor/modules/svg-overlay/internal/feed"
)

func newSendCmd() *cobra.Command {
	var (
		socket string
		pts    uint64
		eos    bool
	)

	cmd := &cobra.Command{
		Use:   "send [file.svg|-]",
		Short: "Send a document (and optionally end-of-stream) to a running source",
		Example: "  svgoverlaysrc send --socket /tmp/overlay.sock caption.svg\n" +
			"  svgoverlaysrc send --socket /tmp/overlay.sock --eos",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var msgs []feed.Message
			if len(args) == 1 {
				content, err := readInput(cmd, args[0])
				if err != nil {
					return err
				}
				msgs = append(msgs, feed.Message{Type: feed.TypeSVG, SVG: content, PTS: pts})
			}
			if eos {
				msgs = append(msgs, feed.Message{Type: feed.TypeEOS})
			}
			if len(msgs) == 0 {
				return fmt.Errorf("nothing to send: pass a document or --eos")
			}
			return sendMessages(socket, msgs)
		},
	}

	cmd.Flags().StringVarP(&socket, "socket", "s", "/tmp/svgoverlay.sock", "Feed socket path")
	cmd.Flags().Uint64Var(&pts, "pts", 0, "Presentation timestamp (ns)")
	cmd.Flags().BoolVar(&eos, "eos", false, "Request end-of-stream after the document")
	return cmd
}

func sendMessages(socket string, msgs []feed.Message) error {
	conn, err := net.DialTimeout("unix", socket, 5*time.Second)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", socket, err)
	}
	defer conn.Close()

	for _, msg := range msgs {
		frame, err := feed.EncodeFrame(msg)
		if err != nil {
			return err
		}
		if _, err := conn.Write(frame); err != nil {
			return fmt.Errorf("failed to write frame: %w", err)
		}
	}
	return nil
}
