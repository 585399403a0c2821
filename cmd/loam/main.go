package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/evergreen-lab/loam/internal/config"
	"github.com/evergreen-lab/loam/internal/db"
	"github.com/evergreen-lab/loam/internal/mcp"
	"github.com/evergreen-lab/loam/internal/metrics"
	"github.com/evergreen-lab/loam/internal/store"
)

// Version is set via -ldflags at build time.
var Version = "dev"

// cliCommands contains known CLI subcommands.
var cliCommands = map[string]bool{
	"profile": true, "record": true, "history": true, "estimate": true,
	"remember": true, "recall": true,
	"habit": true, "streak": true,
	"compact": true, "context": true,
	"impact": true, "web": true,
	"help": true,
}

// isCLIMode determines if we should run CLI vs MCP server.
func isCLIMode() bool {
	if len(os.Args) < 2 {
		return false // No args → MCP server
	}
	arg := os.Args[1]
	// Known subcommand → CLI
	if cliCommands[arg] {
		return true
	}
	// --help or --version → CLI
	if arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v" {
		return true
	}
	return false // Default → MCP server
}

// isHelpOrVersion returns true if the user is requesting help or version info.
func isHelpOrVersion() bool {
	if len(os.Args) < 2 {
		return false
	}
	arg := os.Args[1]
	return arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v" || arg == "help"
}

// isTerminal returns true if stdin is a terminal (not piped).
func isTerminal() bool {
	stat, _ := os.Stdin.Stat()
	return (stat.Mode() & os.ModeCharDevice) != 0
}

// printBanner displays a friendly banner when run interactively without args.
func printBanner() {
	fmt.Println(`
   _
  | |___  __ _ _ __
  | / _ \/ _' | '  \
  |_\___/\__,_|_|_|_|

  Memory and context store for conversational assistants

  Usage: loam <command> [options]
         loam --help

  MCP server mode requires piped input.`)
}

// metricsPath resolves the tracker's persistence file against baseDir.
func metricsPath(baseDir string, cfg *config.Config) string {
	p := cfg.MetricsPath
	if p == "" {
		p = "metrics.json"
	}
	if !filepath.IsAbs(p) {
		p = filepath.Join(baseDir, p)
	}
	return p
}

func main() {
	// No args + interactive terminal → show banner and exit
	if len(os.Args) < 2 && isTerminal() {
		printBanner()
		return
	}

	// Handle --help/--version before DB init (no DB needed)
	if isHelpOrVersion() {
		app := newCLIApp(nil, nil, nil)
		if err := app.Run(os.Args); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: could not determine home directory: %v\n", err)
		os.Exit(1)
	}

	baseDir := filepath.Join(homeDir, ".loam")

	database, err := db.Init(baseDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to initialize database: %v\n", err)
		os.Exit(1)
	}
	defer database.Close()

	cfg, err := config.Load(baseDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to load config: %v\n", err)
		os.Exit(1)
	}
	db.ConfigurePool(database, cfg)

	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()
	tracker := metrics.NewTracker(metricsPath(baseDir, cfg), logger)
	st := store.New(database, cfg)

	// CLI mode: known subcommand
	if isCLIMode() {
		app := newCLIApp(st, cfg, tracker)
		if err := app.Run(os.Args); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	// Unknown argument + terminal → show error (don't start MCP server)
	if len(os.Args) >= 2 && isTerminal() {
		fmt.Fprintf(os.Stderr, "error: unknown command %q\n", os.Args[1])
		fmt.Fprintf(os.Stderr, "Run 'loam --help' for usage.\n")
		os.Exit(1)
	}

	// MCP server mode (default)
	if err := mcp.Run(st, cfg, tracker, Version); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
