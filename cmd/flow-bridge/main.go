// ABOUTME: Entry point for the flow-bridge server
// ABOUTME: Wires the store, registry, router, sessions, and Slack frontend together

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fatih/color"
	"golang.org/x/sync/errgroup"

	"github.com/2389/flow-bridge/internal/bridge"
	"github.com/2389/flow-bridge/internal/command"
	"github.com/2389/flow-bridge/internal/config"
	"github.com/2389/flow-bridge/internal/dedupe"
	"github.com/2389/flow-bridge/internal/flow"
	"github.com/2389/flow-bridge/internal/metrics"
	"github.com/2389/flow-bridge/internal/registry"
	"github.com/2389/flow-bridge/internal/router"
	"github.com/2389/flow-bridge/internal/session"
	"github.com/2389/flow-bridge/internal/slackbridge"
	"github.com/2389/flow-bridge/internal/store"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
  __ _                     _          _     _
 / _| | _____      __     | |__  _ __(_) __| | __ _  ___
| |_| |/ _ \ \ /\ / /_____| '_ \| '__| |/ _' |/ _' |/ _ \
|  _| | (_) \ V  V /______| |_) | |  | | (_| | (_| |  __/
|_| |_|\___/ \_/\_/       |_.__/|_|  |_|\__,_|\__, |\___|
                                              |___/
`

// getConfigPath returns the path to the config file.
// Priority: FLOWBRIDGE_CONFIG env var > XDG_CONFIG_HOME/flow-bridge/config.yaml > ~/.config/flow-bridge/config.yaml
func getConfigPath() string {
	if envPath := os.Getenv("FLOWBRIDGE_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "config.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "flow-bridge", "config.yaml")
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil && ctx.Err() == nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	configPath := getConfigPath()

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)
	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging)
	slog.SetDefault(logger)

	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("Database:  %s\n", cfg.Database.Path)
	if cfg.Metrics.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Metrics:   %s%s\n", cfg.Metrics.Addr, cfg.Metrics.Path)
	}
	fmt.Println()

	logger.Info("starting flow-bridge",
		"config", configPath,
		"database", cfg.Database.Path,
		"session_ttl", cfg.Sessions.TTL,
	)

	st, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	reg := registry.New(st, cfg.Admin.UserIDs)
	rt := router.New(st, reg)
	sessions := session.New(st, cfg.Sessions.TTL)
	agent := flow.NewClient(cfg.Agent.RequestTimeout,
		flow.WithResponsePaths(cfg.Agent.ResponsePaths))
	tracker := dedupe.NewTracker(cfg.Sessions.TTL, 10000)
	defer tracker.Close()
	m := metrics.New()

	commands := command.NewHandler(reg, rt, st, m)
	engine := bridge.NewEngine(rt, sessions, agent, commands, st, tracker, m)

	bot, err := slackbridge.New(slackbridge.Config{
		BotToken: cfg.Slack.BotToken,
		AppToken: cfg.Slack.AppToken,
	}, engine, st)
	if err != nil {
		return fmt.Errorf("creating slack bot: %w", err)
	}

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error { return bot.Run(ctx) })
	group.Go(func() error { return sessions.RunSweeper(ctx, cfg.Sessions.SweepInterval) })
	if cfg.Metrics.Enabled {
		group.Go(func() error { return m.Serve(ctx, cfg.Metrics.Addr, cfg.Metrics.Path) })
	}

	return group.Wait()
}
