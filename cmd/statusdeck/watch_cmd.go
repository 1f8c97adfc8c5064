package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/muesli/termenv"
	"golang.org/x/term"

	"github.com/twistedxcom/statusdeck/internal/client"
	"github.com/twistedxcom/statusdeck/internal/config"
	"github.com/twistedxcom/statusdeck/internal/logging"
	"github.com/twistedxcom/statusdeck/internal/memprobe"
	"github.com/twistedxcom/statusdeck/internal/names"
	"github.com/twistedxcom/statusdeck/internal/recon"
	"github.com/twistedxcom/statusdeck/internal/termtab"
	"github.com/twistedxcom/statusdeck/internal/ui"
)

// handleWatch opens the live TUI backed by a reconciliation engine.
func handleWatch(args []string) {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	addr := fs.String("addr", "", "Snapshot server address (overrides config)")

	fs.Usage = func() {
		fmt.Println("Usage: statusdeck watch [options]")
		fmt.Println()
		fmt.Println("Open the live session view.")
		fmt.Println()
		fmt.Println("Options:")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	if !term.IsTerminal(int(os.Stdout.Fd())) {
		fmt.Fprintln(os.Stderr, "Error: watch needs a terminal; use `statusdeck state` for scripting")
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.QueryAddr = *addr
	}
	if err := cfg.EnsureBaseDir(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	logging.Init(logging.Config{
		LogDir: cfg.BaseDir,
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		Debug:  os.Getenv("STATUSDECK_DEBUG") != "",
	})
	defer logging.Shutdown()

	if termenv.HasDarkBackground() {
		ui.InitTheme("dark")
	} else {
		ui.InitTheme("light")
	}

	sessionNames, err := names.Open(cfg.SessionNamesPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: session name store: %v\n", err)
		os.Exit(1)
	}
	windowNames, err := names.Open(cfg.WindowNamesPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: window name store: %v\n", err)
		os.Exit(1)
	}

	var program *tea.Program
	engine := recon.NewEngine(
		client.New(cfg.QueryAddr),
		sessionNames,
		windowNames,
		termtab.NewTmuxProvider(),
		memprobe.NewProcProber(),
		recon.Options{
			Interval:       cfg.PollInterval(),
			StaleThreshold: cfg.StaleThreshold,
			OnUpdate: func() {
				if program != nil {
					program.Send(ui.RefreshMsg{})
				}
			},
		},
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	program = tea.NewProgram(ui.NewWatch(engine), tea.WithAltScreen())

	// Pick up edits made to the name files outside this process.
	if watcher := startNameWatcher(func() { engine.RunOnce(ctx) }, sessionNames, windowNames); watcher != nil {
		defer watcher.Stop()
	}

	go engine.Start(ctx)

	if _, err := program.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "statusdeck watch: %v\n", err)
		os.Exit(1)
	}
}

// startNameWatcher begins live reload of the name files. Setup failure is
// not fatal (the next reconciliation pass still reads the stores), but it
// must leave a trace.
func startNameWatcher(onChange func(), stores ...*names.Store) *names.Watcher {
	watcher, err := names.NewWatcher(onChange, stores...)
	if err != nil {
		logging.ForComponent(logging.CompCLI).Warn("name_watcher_unavailable",
			slog.String("error", err.Error()))
		return nil
	}
	go watcher.Start()
	return watcher
}
