// Command matrixvoice runs a spoken study session against the Gemini Live
// API: microphone audio streams to the model and its spoken replies play
// back through the speakers. A terminal screen and a local HTTP API toggle
// the session.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/alakbarr/Interview-Matrix/internal/api"
	"github.com/alakbarr/Interview-Matrix/internal/config"
	"github.com/alakbarr/Interview-Matrix/internal/observe"
	"github.com/alakbarr/Interview-Matrix/internal/ui"
	"github.com/alakbarr/Interview-Matrix/internal/voice"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "matrixvoice.yaml", "path to the YAML configuration file")
	noTUI := flag.Bool("no-tui", false, "disable the terminal screen and log to stderr")
	logFile := flag.String("log-file", "matrixvoice.log", "log file used while the terminal screen is active")
	seedImport := flag.String("seed-import", "", "import a matrix document into PostgreSQL under seed.topic_id and exit")
	flag.Parse()

	// A missing .env is normal; variables may come from the real environment.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "matrixvoice: .env: %v\n", err)
	}

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "matrixvoice: config file %q not found, copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "matrixvoice: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	level := new(slog.LevelVar)
	level.Set(slogLevel(cfg.Server.LogLevel))
	var logOut io.Writer = os.Stderr
	if !*noTUI && *seedImport == "" {
		f, err := os.OpenFile(*logFile, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "matrixvoice: open log file: %v\n", err)
			return 1
		}
		defer f.Close()
		logOut = f
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(logOut, &slog.HandlerOptions{Level: level})))

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *seedImport != "" {
		if err := importSeed(ctx, cfg, *seedImport); err != nil {
			fmt.Fprintf(os.Stderr, "matrixvoice: %v\n", err)
			return 1
		}
		return 0
	}

	slog.Info("matrixvoice starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Telemetry ─────────────────────────────────────────────────────────────
	tel, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version, Global: true})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	metrics, err := tel.Metrics()
	if err != nil {
		slog.Error("failed to create metric instruments", "err", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(sctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Devices and seed ──────────────────────────────────────────────────────
	devices, err := openDevices(cfg.Audio.OutputBackend)
	if err != nil {
		slog.Error("failed to open audio backends", "err", err)
		fmt.Fprintf(os.Stderr, "matrixvoice: %v\n", err)
		return 1
	}

	seeds, err := newSeedHolder(ctx, cfg)
	if err != nil {
		slog.Error("failed to open seed source", "err", err, "source", cfg.Seed.Source)
		fmt.Fprintf(os.Stderr, "matrixvoice: %v\n", err)
		return 1
	}
	defer seeds.Close()

	// ── Session controller ────────────────────────────────────────────────────
	sessionCfg, err := cfg.SessionConfig()
	if err != nil {
		slog.Error("invalid session configuration", "err", err)
		return 1
	}

	var screen *ui.Program
	observer := func(s voice.Status) {
		slog.Info("session status", "status", s.Kind, "session_id", s.SessionID, "err", s.Err)
		if screen != nil {
			screen.Observe(s)
		}
	}
	ctrl := voice.New(devices, voice.WebSocketDialer{}, sessionCfg, voice.WithObserver(observer), voice.WithMetrics(metrics))

	toggle := newToggle(ctx, ctrl, seeds, cfg.Seed.MaxKeyPoints)
	if !*noTUI {
		screen = ui.New(seeds.Preview(ctx).Normalize(cfg.Seed.MaxKeyPoints), toggle)
	}

	// ── Config hot reload ─────────────────────────────────────────────────────
	watcher, err := config.NewWatcher(*configPath, func(r config.Reload) {
		applyReload(ctx, r, level, ctrl, seeds)
	})
	if err != nil {
		slog.Warn("config watcher disabled", "err", err)
	}

	printStartupSummary(cfg, *noTUI)

	// ── Run ───────────────────────────────────────────────────────────────────
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return ctrl.Run(gctx) })
	if watcher != nil {
		g.Go(func() error { return watcher.Run(gctx) })
	}

	if cfg.Server.ListenAddr != "" {
		srv := &http.Server{
			Addr: cfg.Server.ListenAddr,
			Handler: api.New(ctrl, seeds,
				api.WithCheckers(api.Checker{
					Name:  "seed",
					Check: func(ctx context.Context) error { _, err := seeds.Load(ctx); return err },
				}),
				api.WithMetrics(metrics),
				api.WithMetricsHandler(tel.MetricsHandler()),
			),
			ReadHeaderTimeout: 5 * time.Second,
			BaseContext:       func(net.Listener) context.Context { return gctx },
		}
		g.Go(func() error {
			slog.Info("control api listening", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("control api: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(sctx)
		})
	}

	if screen != nil {
		g.Go(func() error {
			// Quitting the screen ends the process.
			defer cancel()
			return screen.Run(gctx)
		})
	} else {
		slog.Info("ready, press Ctrl+C to shut down")
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		fmt.Fprintf(os.Stderr, "matrixvoice: %v\n", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// applyReload applies the parts of a changed config that take effect without
// restart.
func applyReload(ctx context.Context, r config.Reload, level *slog.LevelVar, ctrl *voice.Controller, seeds *seedHolder) {
	d, old, new := r.Diff, r.Old, r.New
	if d.LogLevelChanged {
		level.Set(slogLevel(d.NewLogLevel))
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.SessionChanged() {
		vc, err := new.SessionConfig()
		if err != nil {
			slog.Warn("reload: session config rejected", "err", err)
		} else {
			ctrl.Reconfigure(vc)
			slog.Info("reload: session settings apply from the next session")
		}
	}
	if d.SeedChanged {
		if err := seeds.Reload(ctx, new); err != nil {
			slog.Warn("reload: seed source unchanged", "err", err)
		}
	}
	if old.Audio.OutputBackend != new.Audio.OutputBackend || old.Server.ListenAddr != new.Server.ListenAddr {
		slog.Warn("reload: output backend and listen address changes need a restart")
	}
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config, toStdout bool) {
	if !toStdout {
		return
	}
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║      matrixvoice startup summary      ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printRow("Model", cfg.Live.Model)
	printRow("Voice", cfg.Live.Voice)
	printRow("Sample rate", fmt.Sprintf("%d Hz", cfg.Audio.SampleRate))
	printRow("Output", string(cfg.Audio.OutputBackend))
	printRow("Seed source", string(cfg.Seed.Source))
	if cfg.Seed.Source == config.SeedStatic {
		printRow("Topic", cfg.Seed.Topic)
	}
	if cfg.Server.ListenAddr != "" {
		printRow("Listen addr", cfg.Server.ListenAddr)
	} else {
		printRow("Listen addr", "(disabled)")
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printRow(label, value string) {
	if value == "" {
		value = "(not set)"
	}
	if r := []rune(value); len(r) > 22 {
		value = string(r[:21]) + "…"
	}
	fmt.Printf("║  %-12s: %-22s ║\n", label, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
