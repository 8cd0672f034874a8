package main

import (
	"bytes"
	"image/png"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/e7canasta/orion-care-sensor/modules/svg-overlay/internal/feed"
)

const redSquare = `<svg xmlns="http://www.w3.org/2000/svg" width="16" height="16" viewBox="0 0 16 16">
<rect x="0" y="0" width="16" height="16" fill="#ff0000"/>
</svg>`

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := newLogger("warn", "json", &buf)
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("shown", "k", 1)
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)

	_, err = newLogger("trace", "text", io.Discard)
	assert.Error(t, err)
	_, err = newLogger("info", "xml", io.Discard)
	assert.Error(t, err)
}

func TestRenderCommandWritesPNG(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "caption.svg")
	out := filepath.Join(dir, "frame.png")
	require.NoError(t, os.WriteFile(in, []byte(redSquare), 0o644))

	root := newRootCmd()
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	root.SetArgs([]string{"render", "--width", "16", "--height", "16", "--out", out, in})
	require.NoError(t, root.Execute())

	f, err := os.Open(out)
	require.NoError(t, err)
	defer f.Close()
	img, err := png.Decode(f)
	require.NoError(t, err)

	assert.Equal(t, 16, img.Bounds().Dx())
	assert.Equal(t, 16, img.Bounds().Dy())
	r, g, b, a := img.At(8, 8).RGBA()
	assert.Equal(t, uint32(0xffff), r)
	assert.Zero(t, g)
	assert.Zero(t, b)
	assert.Equal(t, uint32(0xffff), a)
}

func TestRenderInvalidDocumentIsTransparent(t *testing.T) {
	out := filepath.Join(t.TempDir(), "frame.png")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	err := renderPNG("<svg", renderOptions{width: 4, height: 4, out: out}, logger)
	require.NoError(t, err)

	f, err := os.Open(out)
	require.NoError(t, err)
	defer f.Close()
	img, err := png.Decode(f)
	require.NoError(t, err)
	_, _, _, a := img.At(1, 1).RGBA()
	assert.Zero(t, a)
}

func TestRenderRejectsBadGeometry(t *testing.T) {
	err := renderPNG(redSquare, renderOptions{width: -1, height: 4, out: filepath.Join(t.TempDir(), "x.png")}, slog.Default())
	assert.Error(t, err)
}

func TestSendWritesFrames(t *testing.T) {
	dir, err := os.MkdirTemp("", "svgo")
	require.NoError(t, err)
	defer os.RemoveAll(dir)
	socket := filepath.Join(dir, "feed.sock")

	ln, err := net.Listen("unix", socket)
	require.NoError(t, err)
	defer ln.Close()

	got := make(chan []feed.Message, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			got <- nil
			return
		}
		defer conn.Close()
		dec := feed.NewDecoder(conn)
		var msgs []feed.Message
		for {
			msg, err := dec.Next()
			if err != nil {
				break
			}
			msgs = append(msgs, msg)
		}
		got <- msgs
	}()

	root := newRootCmd()
	root.SetIn(bytes.NewBufferString(redSquare))
	root.SetArgs([]string{"send", "--socket", socket, "--pts", "7", "--eos", "-"})
	require.NoError(t, root.Execute())

	msgs := <-got
	require.Len(t, msgs, 2)
	assert.Equal(t, feed.TypeSVG, msgs[0].Type)
	assert.Equal(t, redSquare, msgs[0].SVG)
	assert.Equal(t, uint64(7), msgs[0].PTS)
	assert.Equal(t, feed.TypeEOS, msgs[1].Type)
}

func TestSendRequiresPayload(t *testing.T) {
	root := newRootCmd()
	root.SetArgs([]string{"send", "--socket", "/nonexistent.sock"})
	assert.ErrorContains(t, root.Execute(), "nothing to send")
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("PRINT_FPS", "2")
	cfg, err := loadConfig("")
	require.NoError(t, err)
	assert.Equal(t, 480, cfg.Width)
	assert.Equal(t, 2, cfg.PrintFPS)
}
