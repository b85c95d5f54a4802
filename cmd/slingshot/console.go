package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/energizer-project/slingshot/internal/cli"
	"github.com/energizer-project/slingshot/internal/protocol"
)

func consoleCmd() *cobra.Command {
	var mode string

	cmd := &cobra.Command{
		Use:     "console",
		Aliases: []string{"play"},
		Short:   "Play the game interactively",
		Long: `Connects to the game server and reads commands from standard input:
shots, zooms, level loads and score queries. Type 'help' at the prompt for
the command list.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(true)
			if err != nil {
				return err
			}
			if mode == "" {
				mode = cfg.GetSession().DefaultMode
			}
			shotMode, err := protocol.ParseShotMode(mode)
			if err != nil {
				return err
			}

			a, err := newApp(cfg, false)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			a.start(ctx)
			defer func() {
				stop()
				a.shutdown(shutdownTimeout)
			}()

			fmt.Fprintf(os.Stdout, "Connecting to %s as team %d...\n", cfg.GetServer().Addr(), cfg.GetServer().TeamID)
			if err := a.connect(ctx); err != nil {
				return err
			}
			hs := a.sess.Handshake()
			fmt.Fprintf(os.Stdout, "Connected: %d levels, time limit %d\n", hs.LevelCount, hs.TimeLimit)

			// Unblock the prompt on Ctrl+C.
			go func() {
				<-ctx.Done()
				os.Stdin.Close()
			}()
			if err := cli.NewCLI(a.sess, os.Stdout, shotMode).Run(ctx, os.Stdin); err != nil && ctx.Err() == nil {
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&mode, "mode", "m", "", "default shot mode (safe or fast)")
	return cmd
}
