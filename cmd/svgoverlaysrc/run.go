package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	svgoverlay "github.com/e7canasta/orion-care-sensor/modules/svg-overlay"
	"github.com/e7canasta/orion-care-sensor/modules/svg-overlay/internal/config"
	"github.com/e7canasta/orion-care-sensor/modules/svg-overlay/internal/control"
	"github.com/e7canasta/orion-care-sensor/modules/svg-overlay/internal/feed"
	"github.com/e7canasta/orion-care-sensor/modules/svg-overlay/internal/gstsrc"
	"github.com/e7canasta/orion-care-sensor/modules/svg-overlay/internal/metrics"
	"github.com/e7canasta/orion-care-sensor/modules/svg-overlay/internal/render"
)

func newRunCmd(flags *globalFlags) *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the overlay source inside a GStreamer pipeline",
		Example: "  svgoverlaysrc run --config overlay.yaml\n" +
			"  PRINT_FPS=5 svgoverlaysrc run",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}

			// Flags win over the config file when given explicitly.
			pf := cmd.Flags()
			if pf.Changed("log-level") {
				cfg.LogLevel = flags.logLevel
			}
			if pf.Changed("log-format") {
				cfg.LogFormat = flags.logFormat
			}
			logger, err := newLogger(cfg.LogLevel, cfg.LogFormat, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			slog.SetDefault(logger)

			printBanner(cmd, cfg)
			return runOverlay(cmd.Context(), cfg, logger)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Config file (.yaml, .yml, .json, .toml)")
	return cmd
}

// loadConfig reads path, or falls back to defaults plus environment when
// path is empty.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}
	cfg := config.Default()
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := config.Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func runOverlay(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// 1. Metrics registry shared by the element, the pipeline and /metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	obs, err := metrics.NewPromObserver(reg)
	if err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}

	// 2. Overlay source
	src, err := svgoverlay.New(
		svgoverlay.Config{
			Width:          cfg.Width,
			Height:         cfg.Height,
			IsLive:         cfg.Live(),
			ReportInterval: cfg.ReportInterval(),
		},
		svgoverlay.WithRenderer(render.NewSVGRenderer(cfg.MaxContentBytes)),
		svgoverlay.WithObserver(obs),
		svgoverlay.WithLogger(logger.With("component", "element")),
	)
	if err != nil {
		return fmt.Errorf("failed to create overlay source: %w", err)
	}

	// 3. Pipeline
	stream, err := gstsrc.NewStream(
		gstsrc.Config{
			Width:      cfg.Width,
			Height:     cfg.Height,
			IsLive:     cfg.Live(),
			MaxBuffers: cfg.MaxBuffers,
			GL:         cfg.GL,
			Sink:       cfg.Sink,
			Restart: gstsrc.RestartConfig{
				MaxRetries:   cfg.Restart.MaxRetries,
				InitialDelay: cfg.Restart.InitialDelay(),
				MaxDelay:     cfg.Restart.MaxDelay(),
			},
		},
		src,
		gstsrc.WithObserver(obs),
		gstsrc.WithLogger(logger.With("component", "pipeline")),
	)
	if err != nil {
		return fmt.Errorf("failed to create pipeline: %w", err)
	}

	var (
		wg      sync.WaitGroup
		errMu   sync.Mutex
		runErrs []error
	)
	spawn := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := fn(ctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("component failed", "component", name, "error", err)
				errMu.Lock()
				runErrs = append(runErrs, fmt.Errorf("%s: %w", name, err))
				errMu.Unlock()
				cancel()
			}
		}()
	}

	// 4. Producers
	if cfg.Feed.Socket != "" {
		spawn("feed-socket", func(ctx context.Context) error {
			return feed.ListenUnix(ctx, cfg.Feed.Socket, src, logger.With("component", "feed"))
		})
	}
	if cfg.Feed.WatchFile != "" {
		watcher := feed.NewFileWatcher(cfg.Feed.WatchFile, src, logger.With("component", "watch"))
		spawn("feed-watch", watcher.Run)
	}

	// 5. Control plane
	if cfg.ControlAddr != "" {
		srv := control.NewServer(src,
			control.WithLogger(newRequestLogger(cfg.LogLevel, os.Stderr)),
			control.WithGatherer(reg),
			control.WithMaxBodyBytes(int64(cfg.MaxContentBytes)),
		)
		spawn("control", func(ctx context.Context) error {
			return srv.ListenAndServe(ctx, cfg.ControlAddr)
		})
	}

	// 6. Pipeline runs until end-of-stream, a fatal error or cancellation
	spawn("pipeline", func(ctx context.Context) error {
		defer cancel()
		return stream.Run(ctx)
	})

	wg.Wait()

	st := src.Stats()
	logger.Info("overlay source finished",
		"submitted", st.Submitted,
		"delivered", st.Delivered,
		"dropped", st.Dropped,
		"content_errors", st.ContentErrors,
		"end_of_streams", st.EndOfStreams,
		"restarts", stream.Restarts(),
	)

	return errors.Join(runErrs...)
}

func printBanner(cmd *cobra.Command, cfg *config.Config) {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "╔═══════════════════════════════════════════════════════════════╗")
	fmt.Fprintln(out, "║    SVG Overlay Source                                        ║")
	fmt.Fprintf(out, "║                    Version %-30s ║\n", version)
	fmt.Fprintln(out, "╚═══════════════════════════════════════════════════════════════╝")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Configuration:")
	fmt.Fprintf(out, "  Geometry:        %dx%d %s\n", cfg.Width, cfg.Height, render.PixelFormat)
	fmt.Fprintf(out, "  Live:            %v\n", cfg.Live())
	fmt.Fprintf(out, "  Sink:            %s (gl=%v)\n", cfg.Sink, cfg.GL)
	if cfg.Feed.Socket != "" {
		fmt.Fprintf(out, "  Feed socket:     %s\n", cfg.Feed.Socket)
	}
	if cfg.Feed.WatchFile != "" {
		fmt.Fprintf(out, "  Watch file:      %s\n", cfg.Feed.WatchFile)
	}
	if cfg.ControlAddr != "" {
		fmt.Fprintf(out, "  Control:         http://%s\n", cfg.ControlAddr)
	}
	if cfg.PrintFPS > 0 {
		fmt.Fprintf(out, "  FPS report:      every %ds\n", cfg.PrintFPS)
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Press Ctrl+C to stop gracefully")
	fmt.Fprintln(out, "═══════════════════════════════════════════════════════════════")
	fmt.Fprintln(out)
}
