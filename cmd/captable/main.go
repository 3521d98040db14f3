package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/pflag"

	"github.com/five82/captable/internal/app"
)

func main() {
	os.Exit(run())
}

func run() int {
	flags := pflag.NewFlagSet("captable", pflag.ContinueOnError)
	configPath := flags.StringP("config", "c", "", "config file (default ~/.config/captable/config.toml)")
	prefsPath := flags.String("prefs", "", "preferences file (default ~/.config/captable/prefs.toml)")
	pollSeconds := flags.Int("poll", 0, "refresh interval in seconds (default from config)")
	backend := flags.String("backend", "", "backend to use: sqlite or http")
	serve := flags.Bool("serve", false, "serve the sqlite table over HTTP instead of starting the UI")
	logPath := flags.String("log", "", "log file for the UI (default from config)")
	if err := flags.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return 0
		}
		fmt.Fprintf(os.Stderr, "captable: %v\n", err)
		return 2
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	opts := app.Options{
		ConfigPath: *configPath,
		PrefsPath:  *prefsPath,
		PollEvery:  *pollSeconds,
		Backend:    *backend,
		Serve:      *serve,
	}
	cfg, err := app.LoadConfig(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "captable: %v\n", err)
		return 1
	}
	if *logPath != "" {
		cfg.LogPath = *logPath
	}

	// The UI owns the terminal, so log lines go to a file.
	if !opts.Serve && cfg.LogPath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.LogPath), 0o755); err != nil {
			fmt.Fprintf(os.Stderr, "captable: create log dir: %v\n", err)
			return 1
		}
		f, err := tea.LogToFile(cfg.LogPath, "captable")
		if err != nil {
			fmt.Fprintf(os.Stderr, "captable: open log: %v\n", err)
			return 1
		}
		defer f.Close()
	}

	if err := app.Run(ctx, cfg, opts); err != nil {
		fmt.Fprintf(os.Stderr, "captable: %v\n", err)
		return 1
	}
	return 0
}
