// Command xplan induces, evaluates and explains policies for the bundled
// planning domains.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run0())
}

func run0() int {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a := newApp(os.Stdout)
	defer a.close(context.Background())

	root := newRootCmd(a)
	if err := root.ExecuteContext(ctx); err != nil {
		a.getLogger().Error("fatal error", "error", err)
		return 1
	}
	return 0
}

// getLogger falls back to a default JSON logger when the command failed
// before configuration was loaded.
func (a *app) getLogger() *slog.Logger {
	if a.logger != nil {
		return a.logger
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, nil))
}
