package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"loom/internal/config"
	"loom/internal/prompt"
	"loom/internal/scheduler"
	"loom/internal/server"
)

// NewServeCmd creates the serve command.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the loom API server",
		Long: `Start the HTTP API server.

The server exposes REST endpoints for sessions, branches, messages,
compression and statistics, plus a websocket event stream. Background
jobs (autosave, stale session cleanup) run on the configured schedule.`,
		Example: `  # Start with the configured host and port
  loom serve

  # Start on a custom port
  loom serve --port 9090`,
		RunE: runServe,
	}

	cmd.Flags().IntP("port", "p", 0, "port to listen on (overrides config)")
	cmd.Flags().String("host", "", "host to bind to (overrides config)")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	cliCtx := GetCLIContext(cmd)
	if cliCtx == nil {
		return fmt.Errorf("CLI context not initialized")
	}

	cfg := cliCtx.Config
	log := cliCtx.Log()

	if port, _ := cmd.Flags().GetInt("port"); port > 0 {
		cfg.Server.Port = port
	}
	if host, _ := cmd.Flags().GetString("host"); host != "" {
		cfg.Server.Host = host
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "127.0.0.1"
	}

	manager, err := cliCtx.GetManager()
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}

	promptsDir := cfg.Prompts.Dir
	if promptsDir == "" {
		promptsDir, err = config.DefaultPromptsDir()
		if err != nil {
			return err
		}
	}
	prompts, err := prompt.NewStore(promptsDir)
	if err != nil {
		return fmt.Errorf("failed to load prompts: %w", err)
	}

	srv := server.NewServer(cfg, manager, prompts)
	if cfg.Prompts.HotReload {
		if err := srv.EnablePromptReload(); err != nil {
			log.Warn().Err(err).Msg("prompt hot reload unavailable")
		}
	}

	var sched *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		db, err := cliCtx.GetStorage()
		if err != nil {
			return err
		}
		sched = scheduler.New(manager, db, cfg.Scheduler)
		if err := sched.Start(); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		log.Info().Msg("Shutting down...")
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	if sched != nil {
		sched.Stop()
	}
	return srv.Shutdown(context.Background())
}
