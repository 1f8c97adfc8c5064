package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-runewidth"

	"github.com/twistedxcom/statusdeck/internal/client"
	"github.com/twistedxcom/statusdeck/internal/config"
	"github.com/twistedxcom/statusdeck/internal/names"
)

// handleState prints the current snapshot, as a table or as JSON.
func handleState(args []string) {
	fs := flag.NewFlagSet("state", flag.ExitOnError)
	jsonOutput := fs.Bool("json", false, "Output as JSON")
	addr := fs.String("addr", "", "Snapshot server address (overrides config)")

	fs.Usage = func() {
		fmt.Println("Usage: statusdeck state [options]")
		fmt.Println()
		fmt.Println("Print the current session snapshot.")
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
	if *addr != "" {
		cfg.QueryAddr = *addr
	}

	st, err := client.New(cfg.QueryAddr).FetchState()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: daemon unreachable at %s: %v\n", cfg.QueryAddr, err)
		fmt.Fprintln(os.Stderr, "Start it with: statusdeck serve")
		os.Exit(1)
	}

	if *jsonOutput {
		out, err := json.MarshalIndent(st, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to format JSON output: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(string(out))
		return
	}

	if len(st.Sessions) == 0 {
		fmt.Println("No active sessions.")
		return
	}

	// Custom names come straight from the store; the daemon serves raw
	// registry records.
	overrides := map[string]string{}
	if store, err := names.Open(cfg.SessionNamesPath()); err == nil {
		overrides = store.GetAllNames()
	}

	fmt.Printf("%-*s %-*s %-*s %-*s %s\n",
		tableColName, "NAME", tableColState, "STATE",
		tableColProject, "PROJECT", tableColTTY, "TTY", "UPDATED")
	fmt.Println(strings.Repeat("-", tableColName+tableColState+tableColProject+tableColTTY+12))

	serverNow := time.Unix(st.ServerTime, 0)
	for _, s := range st.Sessions {
		name := overrides[s.SessionID]
		if name == "" {
			name = s.SessionID
		}
		tty := strings.TrimPrefix(s.TTY, "/dev/")
		fmt.Printf("%-*s %-*s %-*s %-*s %s\n",
			tableColName, runewidth.Truncate(name, tableColName, "…"),
			tableColState, s.State,
			tableColProject, runewidth.Truncate(s.Project, tableColProject, "…"),
			tableColTTY, runewidth.Truncate(tty, tableColTTY, "…"),
			formatAge(serverNow.Sub(s.LastUpdate)))
	}
	fmt.Printf("\nTotal: %d sessions\n", len(st.Sessions))
}

// handleDelete removes a session from the daemon registry.
func handleDelete(args []string) {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	addr := fs.String("addr", "", "Snapshot server address (overrides config)")

	fs.Usage = func() {
		fmt.Println("Usage: statusdeck delete <session-id>")
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() != 1 {
		fs.Usage()
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

	id := fs.Arg(0)
	if err := client.New(cfg.QueryAddr).DeleteSession(id); err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to delete %s: %v\n", id, err)
		os.Exit(1)
	}
	fmt.Printf("Deleted session %s\n", id)
}

// handleRename sets or clears a custom session or window name. Running
// clients pick the change up from the store file.
func handleRename(args []string) {
	fs := flag.NewFlagSet("rename", flag.ExitOnError)
	window := fs.Bool("window", false, "Rename a window group instead of a session")

	fs.Usage = func() {
		fmt.Println("Usage: statusdeck rename [--window] <id> <name>")
		fmt.Println()
		fmt.Println("Set a custom display name. An empty or blank name clears it.")
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() < 1 {
		fs.Usage()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.EnsureBaseDir(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	path := cfg.SessionNamesPath()
	if *window {
		path = cfg.WindowNamesPath()
	}
	store, err := names.Open(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: name store: %v\n", err)
		os.Exit(1)
	}

	id := fs.Arg(0)
	name := strings.Join(fs.Args()[1:], " ")
	if err := store.SetName(id, name); err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to save name: %v\n", err)
		os.Exit(1)
	}
	if strings.TrimSpace(name) == "" {
		fmt.Printf("Cleared name for %s\n", id)
	} else {
		fmt.Printf("Renamed %s to %q\n", id, name)
	}
}

// formatAge renders a duration the way the table needs it: seconds under a
// minute, then minutes, then hours.
func formatAge(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds ago", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	default:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	}
}
