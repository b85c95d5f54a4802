package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/energizer-project/slingshot/internal/config"
	"github.com/energizer-project/slingshot/internal/session"
	"github.com/energizer-project/slingshot/internal/util"
)

const shutdownTimeout = 30 * time.Second

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the supervised client with its REST API",
		Long: `Starts the game server process when supervisor.game_command is set,
connects and configures the team, then serves the REST API, the live event
stream and MQTT telemetry until interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(false)
			if err != nil {
				return err
			}
			return runAgent(cfg)
		},
	}
}

func runAgent(cfg *config.Config) error {
	printBanner()
	info := util.GetSystemInfo()
	log.Info().
		Str("version", version).
		Str("os", info.OS).
		Str("hostname", info.Hostname).
		Int("cpus", info.CPUCores).
		Str("server", cfg.GetServer().Addr()).
		Msg("starting slingshot")

	a, err := newApp(cfg, true)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a.start(ctx)

	if err := a.connect(ctx); err != nil {
		if errors.Is(err, session.ErrConfigurationRejected) {
			cancel()
			a.shutdown(shutdownTimeout)
			return err
		}
		// The API stays up so an operator can trigger a recover.
		log.Error().Err(err).Msg("initial connect failed")
	}

	log.Info().Msg("slingshot is running. Press Ctrl+C to stop.")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("received shutdown signal")
	case runErr = <-a.errCh:
		log.Error().Err(runErr).Msg("fatal component error")
	}

	log.Info().Msg("shutting down...")
	cancel()
	a.shutdown(shutdownTimeout)
	log.Info().Msg("slingshot stopped")
	return runErr
}

func printBanner() {
	log.Info().Msg("==============================================")
	log.Info().Msgf("  slingshot %s", version)
	log.Info().Msg("  AIBird game automation client")
	log.Info().Msg("==============================================")
}
