package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

const Version = "0.3.0"

// Table column widths for state command output.
const (
	tableColName    = 24
	tableColState   = 10
	tableColProject = 20
	tableColTTY     = 14
)

// init sets the color profile so lipgloss renders consistently across
// terminals and CI.
func init() {
	initColorProfile()
}

// initColorProfile prefers TrueColor, honoring STATUSDECK_COLOR as an
// override (truecolor, 256, 16, none).
func initColorProfile() {
	if colorEnv := os.Getenv("STATUSDECK_COLOR"); colorEnv != "" {
		switch strings.ToLower(colorEnv) {
		case "truecolor", "true", "24bit":
			lipgloss.SetColorProfile(termenv.TrueColor)
		case "256", "ansi256":
			lipgloss.SetColorProfile(termenv.ANSI256)
		case "16", "ansi", "basic":
			lipgloss.SetColorProfile(termenv.ANSI)
		case "none", "off", "ascii":
			lipgloss.SetColorProfile(termenv.Ascii)
		}
		return
	}

	if colorTerm := os.Getenv("COLORTERM"); colorTerm == "truecolor" || colorTerm == "24bit" {
		lipgloss.SetColorProfile(termenv.TrueColor)
	}
}

func main() {
	args := os.Args[1:]

	if len(args) > 0 {
		switch args[0] {
		case "version", "--version", "-v":
			fmt.Printf("statusdeck v%s\n", Version)
			return
		case "help", "--help", "-h":
			printHelp()
			return
		case "serve", "daemon":
			handleServe(args[1:])
			return
		case "watch":
			handleWatch(args[1:])
			return
		case "state", "list", "ls":
			handleState(args[1:])
			return
		case "delete", "rm":
			handleDelete(args[1:])
			return
		case "rename":
			handleRename(args[1:])
			return
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", args[0])
			printHelp()
			os.Exit(1)
		}
	}

	// Bare invocation opens the live view.
	handleWatch(nil)
}

func printHelp() {
	fmt.Println("statusdeck - live status deck for terminal sessions")
	fmt.Println()
	fmt.Println("Usage: statusdeck [command]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve              Run the aggregation daemon")
	fmt.Println("  watch              Open the live view (default)")
	fmt.Println("  state              Print the current snapshot")
	fmt.Println("  delete <id>        Remove a session from the registry")
	fmt.Println("  rename <id> <name> Set a custom session name")
	fmt.Println("  version            Print version")
	fmt.Println()
	fmt.Println("Environment:")
	fmt.Println("  STATUSDECK_DIR     State directory (default ~/.statusdeck)")
	fmt.Println("  STATUSDECK_COLOR   Color profile: truecolor, 256, 16, none")
	fmt.Println("  STATUSDECK_DEBUG   Enable debug logging")
}
