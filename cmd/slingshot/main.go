// Command slingshot drives the AIBird game automation server: an operator
// console, a long-running agent with REST control, and a local simulator.
package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/energizer-project/slingshot/internal/config"
	"github.com/energizer-project/slingshot/internal/util"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	flagConfigDir string
	flagEnvFile   string
	flagLogLevel  string
	flagHost      string
	flagPort      int
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "slingshot",
		Short: "Client for the AIBird game automation server",
		Long: `slingshot speaks the AIBird binary protocol: it configures a team,
loads levels, fires shots and turns score changes into rewards.

Use 'slingshot console' for an interactive session, 'slingshot run' for the
supervised agent with its REST API, and 'slingshot simulate' for a local
stand-in server.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&flagConfigDir, "config-dir", config.DefaultConfigDir, "directory holding config.json")
	rootCmd.PersistentFlags().StringVar(&flagEnvFile, "env-file", ".env", "dotenv file loaded before SLINGSHOT_* overrides")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "override logging.level")
	rootCmd.PersistentFlags().StringVar(&flagHost, "host", "", "override server.host")
	rootCmd.PersistentFlags().IntVar(&flagPort, "port", 0, "override server.port")

	rootCmd.AddCommand(
		runCmd(),
		consoleCmd(),
		simulateCmd(),
		scoresCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

// loadConfig reads config.json, applies the env file, SLINGSHOT_* variables
// and command-line overrides, validates the result and sets up logging.
// Interactive commands keep log lines off the terminal.
func loadConfig(interactive bool) (*config.Config, error) {
	config.LoadDotEnv(flagEnvFile)

	cfg, err := config.Load(flagConfigDir)
	if err != nil {
		return nil, err
	}
	if _, err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}

	srv := cfg.GetServer()
	if flagHost != "" {
		srv.Host = flagHost
	}
	if flagPort != 0 {
		srv.Port = flagPort
	}
	cfg.SetServer(srv)

	logCfg := cfg.GetLogging()
	if flagLogLevel != "" {
		logCfg.Level = flagLogLevel
	}
	if _, err := util.InitLogger(util.LogConfig{
		Level:      logCfg.Level,
		Directory:  logCfg.Directory,
		Console:    logCfg.Console && !interactive,
		MaxAgeDays: logCfg.MaxAgeDays,
	}); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	validation := config.Validate(cfg)
	for _, w := range validation.Warnings {
		log.Warn().Str("field", w.Field).Msg(w.Message)
	}
	if !validation.IsValid() {
		for _, e := range validation.Errors {
			log.Error().Str("field", e.Field).Msg(e.Message)
		}
		return nil, fmt.Errorf("configuration validation failed (%d errors)", len(validation.Errors))
	}
	log.Debug().Str("path", cfg.Path()).Str("server", cfg.GetServer().Addr()).Msg("configuration ready")
	return cfg, nil
}
