package app

import (
	"context"
	"fmt"
	"io"

	"seren/internal/capture"
	"seren/internal/config"
	"seren/internal/demo"
)

// ServeDemo runs the demo Remote Access Service on addr until ctx is
// cancelled. An empty addr uses cfg.Demo.Addr.
func ServeDemo(ctx context.Context, cfg *config.Config, addr string, console io.Writer) error {
	if addr == "" {
		addr = cfg.Demo.Addr
	}
	if addr == "" {
		return fmt.Errorf("demo.addr must be set")
	}

	sl, logFile, err := newLogger(cfg.LogDir, "demo", console)
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	defer logFile.Close()

	srv := demo.NewServer(cfg.Demo, demo.DefaultAccounts, &slogAdapter{l: sl}, capture.RealClock{}, capture.UUIDGenerator{})
	return srv.ListenAndServe(ctx, addr)
}
