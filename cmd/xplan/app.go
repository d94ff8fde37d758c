package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/ashita-ai/xplan"
	"github.com/ashita-ai/xplan/internal/analysis"
	"github.com/ashita-ai/xplan/internal/config"
	"github.com/ashita-ai/xplan/internal/storage"
	"github.com/ashita-ai/xplan/internal/telemetry"
	"github.com/ashita-ai/xplan/internal/xmdp"
)

// app carries the state shared by every subcommand invocation.
type app struct {
	out    io.Writer
	cfg    config.Config
	logger *slog.Logger

	domainName string
	configPath string

	store        storage.Store
	otelShutdown telemetry.Shutdown
}

func newApp(out io.Writer) *app {
	return &app{out: out}
}

// setup loads .env and configuration, then builds the logger and telemetry.
func (a *app) setup(ctx context.Context) error {
	// Load .env file if present (non-fatal).
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	a.cfg = cfg
	a.logger = newLogger(cfg)

	shutdown, err := telemetry.Init(ctx, cfg.OTELEndpoint, cfg.ServiceName, version)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	a.otelShutdown = shutdown
	a.logger.Debug("xplan starting", "version", version, "domain", a.domainName)
	return nil
}

func newLogger(cfg config.Config) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.LogFormat, "text") {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}

func (a *app) close(ctx context.Context) {
	if a.store != nil {
		a.store.Close(ctx)
		a.store = nil
	}
	if a.otelShutdown != nil {
		if err := a.otelShutdown(ctx); err != nil {
			a.getLogger().Warn("telemetry: shutdown", "error", err)
		}
		a.otelShutdown = nil
	}
}

// openStore connects to the configured store on first use.
func (a *app) openStore(ctx context.Context) (storage.Store, error) {
	if a.store != nil {
		return a.store, nil
	}
	s, err := storage.Open(ctx, a.cfg.StoreDriver, a.cfg.DatabaseURL, a.logger)
	if err != nil {
		return nil, err
	}
	a.store = s
	return s, nil
}

// planner builds a Planner over the configured evaluation options. The
// store is attached only when withStore is set so file-only runs never
// touch the database.
func (a *app) planner(ctx context.Context, withStore bool) (*xplan.Planner, error) {
	opts := []xplan.Option{
		xplan.WithLogger(a.logger),
		xplan.WithEvaluationOptions(analysis.Options{
			Tolerance:     a.cfg.EvalTolerance,
			MaxIterations: a.cfg.EvalMaxIterations,
			Discount:      a.cfg.Discount,
			Workers:       a.cfg.Workers,
		}),
	}
	if withStore {
		s, err := a.openStore(ctx)
		if err != nil {
			return nil, err
		}
		opts = append(opts, xplan.WithStore(s))
	}
	return xplan.New(opts...)
}

// loadDomain builds the selected domain from its YAML parameter file, or
// from defaults when no file was given.
func (a *app) loadDomain() (*xmdp.XMDP, error) {
	build, ok := domains[a.domainName]
	if !ok {
		return nil, fmt.Errorf("unknown domain %q (known: %s)", a.domainName, strings.Join(domainNames(), ", "))
	}
	var data []byte
	if a.configPath != "" {
		var err error
		if data, err = os.ReadFile(a.configPath); err != nil {
			return nil, fmt.Errorf("read domain config: %w", err)
		}
	}
	x, err := build(data)
	if err != nil {
		return nil, fmt.Errorf("build %s: %w", a.domainName, err)
	}
	return x, nil
}
