package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/energizer-project/slingshot/internal/simulator"
	"github.com/energizer-project/slingshot/internal/util"
)

func simulateCmd() *cobra.Command {
	var (
		listen      string
		levels      int
		timeLimit   int
		gains       []int
		winAfter    int
		fragments   int
		rejectShots bool
		zoomFails   int
	)

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Serve a local stand-in for the game server",
		Long: `Listens for clients and plays a scripted game over the same binary
protocol as the real server. Useful for trying the console or the REST API
without the game running.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			level := flagLogLevel
			if level == "" {
				level = "info"
			}
			if _, err := util.InitLogger(util.LogConfig{Level: level, Console: true}); err != nil {
				return err
			}

			opts := simulator.DefaultOptions()
			opts.Handshake.LevelCount = levels
			opts.Handshake.TimeLimit = timeLimit
			opts.ShotGains = gains
			opts.WinAfterShots = winAfter
			opts.Fragments = fragments
			opts.RejectShots = rejectShots
			opts.ZoomOutFailures = zoomFails

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			srv := simulator.New(opts)
			if err := srv.Start(ctx, listen); err != nil {
				return err
			}
			log.Info().Str("addr", srv.Addr()).Msg("simulator listening. Press Ctrl+C to stop.")

			<-ctx.Done()
			log.Info().Msg("simulator stopping")
			return srv.Close()
		},
	}

	cmd.Flags().StringVarP(&listen, "listen", "l", "127.0.0.1:2004", "address to listen on")
	cmd.Flags().IntVar(&levels, "levels", 21, "level count reported by the handshake")
	cmd.Flags().IntVar(&timeLimit, "time-limit", 30, "time limit reported by the handshake")
	cmd.Flags().IntSliceVar(&gains, "gains", []int{3000, 5000, 12000}, "score gained by successive shots, cycling")
	cmd.Flags().IntVar(&winAfter, "win-after", 3, "shots before the level is won (0 never wins)")
	cmd.Flags().IntVar(&fragments, "fragments", 1, "writes a screenshot payload is split into")
	cmd.Flags().BoolVar(&rejectShots, "reject-shots", false, "refuse every shot")
	cmd.Flags().IntVar(&zoomFails, "zoom-failures", 0, "fail the first N zoom-out requests")
	return cmd
}
