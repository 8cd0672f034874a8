package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
)

// Sink is the producer side of the overlay source.
type Sink interface {
	Submit(content string, pts uint64)
	RequestEndOfStream()
	SetFlushing(active bool)
}

// Run decodes messages from r and applies them to sink until EOF, a fatal
// frame error or ctx cancellation. Undecodable messages are skipped.
//
// A blocked read is not interrupted by ctx; close r to unblock it.
func Run(ctx context.Context, r io.Reader, sink Sink, logger *slog.Logger) error {
	dec := NewDecoder(r)
	var applied, skipped int

	for {
		if ctx.Err() != nil {
			return nil
		}

		msg, err := dec.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				logger.Info("feed: stream closed", "applied", applied, "skipped", skipped)
				return nil
			}
			if IsFatalFrameError(err) {
				return fmt.Errorf("feed: %w", err)
			}
			skipped++
			logger.Warn("feed: skipping undecodable message", "error", err)
			continue
		}

		apply(msg, sink)
		applied++
		logger.Debug("feed: message applied", "type", msg.Type, "pts", msg.PTS)
	}
}

func apply(msg Message, sink Sink) {
	switch msg.Type {
	case TypeSVG:
		sink.Submit(msg.SVG, msg.PTS)
	case TypeEOS:
		sink.RequestEndOfStream()
	case TypeFlush:
		sink.SetFlushing(msg.Active)
	}
}

// ListenUnix accepts producer connections on a unix socket and runs each one
// through Run. Blocks until ctx is cancelled.
func ListenUnix(ctx context.Context, path string, sink Sink, logger *slog.Logger) error {
	// Stale socket from a previous run.
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("feed: remove stale socket: %w", err)
	}

	ln, err := net.Listen("unix", path)
	if err != nil {
		return fmt.Errorf("feed: listen %s: %w", path, err)
	}
	return Serve(ctx, ln, sink, logger)
}

// Serve accepts connections on ln until ctx is cancelled. Open connections
// are closed on return.
func Serve(ctx context.Context, ln net.Listener, sink Sink, logger *slog.Logger) error {
	logger.Info("feed: listening", "addr", ln.Addr().String())

	var (
		mu    sync.Mutex
		conns = make(map[net.Conn]struct{})
		wg    sync.WaitGroup
	)

	go func() {
		<-ctx.Done()
		ln.Close()
		mu.Lock()
		for c := range conns {
			c.Close()
		}
		mu.Unlock()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			wg.Wait()
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("feed: accept: %w", err)
		}

		mu.Lock()
		if ctx.Err() != nil {
			mu.Unlock()
			conn.Close()
			continue
		}
		conns[conn] = struct{}{}
		mu.Unlock()

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				mu.Lock()
				delete(conns, conn)
				mu.Unlock()
				conn.Close()
			}()

			if err := Run(ctx, conn, sink, logger); err != nil && ctx.Err() == nil {
				logger.Error("feed: producer connection failed", "error", err)
			}
		}()
	}
}
