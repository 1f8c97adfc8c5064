package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/twistedxcom/statusdeck/internal/config"
	"github.com/twistedxcom/statusdeck/internal/daemon"
	"github.com/twistedxcom/statusdeck/internal/logging"
)

// handleServe runs the aggregation daemon until interrupted.
func handleServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	socket := fs.String("socket", "", "Ingest socket path (overrides config)")
	addr := fs.String("addr", "", "Snapshot server address (overrides config)")

	fs.Usage = func() {
		fmt.Println("Usage: statusdeck serve [options]")
		fmt.Println()
		fmt.Println("Run the event ingest and snapshot daemon.")
		fmt.Println()
		fmt.Println("Options:")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *socket != "" {
		cfg.SocketPath = *socket
	}
	if *addr != "" {
		cfg.QueryAddr = *addr
	}

	logging.Init(logging.Config{
		LogDir: cfg.BaseDir,
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		Debug:  os.Getenv("STATUSDECK_DEBUG") != "",
	})
	defer logging.Shutdown()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := daemon.New(cfg).Run(ctx); err != nil && ctx.Err() == nil {
		fmt.Fprintf(os.Stderr, "statusdeck serve: %v\n", err)
		os.Exit(1)
	}
}
