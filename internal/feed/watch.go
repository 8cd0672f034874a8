package feed

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// FileWatcher submits the content of one SVG file whenever it changes.
//
// The parent directory is watched so editors that replace the file (write to
// a temp file, then rename) are followed. PTS is nanoseconds since the watcher
// started.
type FileWatcher struct {
	Path   string
	Sink   Sink
	Logger *slog.Logger

	// now is replaceable for tests.
	now func() time.Time
}

// NewFileWatcher creates a watcher for path.
func NewFileWatcher(path string, sink Sink, logger *slog.Logger) *FileWatcher {
	return &FileWatcher{Path: path, Sink: sink, Logger: logger, now: time.Now}
}

// Run submits the current content, then every change, until ctx is done.
func (w *FileWatcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("feed: create watcher: %w", err)
	}
	defer watcher.Close()

	abs, err := filepath.Abs(w.Path)
	if err != nil {
		return fmt.Errorf("feed: resolve %s: %w", w.Path, err)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("feed: watch %s: %w", filepath.Dir(abs), err)
	}

	start := w.now()
	w.Logger.Info("feed: watching file", "path", abs)

	// Initial content; a missing file is fine until it is created.
	if _, err := os.Stat(abs); err == nil {
		w.submit(abs, start)
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs {
				continue
			}
			if event.Op&fsnotify.Write == fsnotify.Write ||
				event.Op&fsnotify.Create == fsnotify.Create {
				w.submit(abs, start)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.Logger.Warn("feed: watcher error", "error", err)
		}
	}
}

func (w *FileWatcher) submit(path string, start time.Time) {
	content, err := os.ReadFile(path)
	if err != nil {
		w.Logger.Warn("feed: read watched file", "path", path, "error", err)
		return
	}
	pts := uint64(w.now().Sub(start))
	w.Sink.Submit(string(content), pts)
	w.Logger.Debug("feed: file submitted", "path", path, "bytes", len(content), "pts", pts)
}
