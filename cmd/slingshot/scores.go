package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/energizer-project/slingshot/internal/cli"
	"github.com/energizer-project/slingshot/internal/db"
)

func scoresCmd() *cobra.Command {
	var (
		dbPath string
		level  int
		shots  int
	)

	cmd := &cobra.Command{
		Use:   "scores",
		Short: "Show recorded best scores and recent shots",
		Long: `Reads the shot history written by 'run' and 'console' and prints the
best score of every level. With --shots the most recent shots are listed
too, optionally filtered by --level.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if dbPath == "" {
				cfg, err := loadConfig(true)
				if err != nil {
					return err
				}
				dbPath = cfg.GetStorage().Path
			}
			if _, err := os.Stat(dbPath); err != nil {
				return fmt.Errorf("no history at %s: %w", dbPath, err)
			}

			h, err := db.OpenHistory(dbPath)
			if err != nil {
				return err
			}
			defer h.Close()

			scores, err := h.LevelScores()
			if err != nil {
				return err
			}
			total, err := h.TotalBest()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(scores) == 0 {
				fmt.Fprintln(out, "No scores recorded yet.")
			} else {
				cli.RenderHistory(out, scores, total)
			}

			if shots > 0 {
				recent, err := h.RecentShots(level, shots)
				if err != nil {
					return err
				}
				fmt.Fprintln(out)
				cli.RenderShots(out, recent)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "", "history database (default: storage.path from config)")
	cmd.Flags().IntVar(&level, "level", 0, "only list shots of this level")
	cmd.Flags().IntVarP(&shots, "shots", "n", 0, "number of recent shots to list")
	return cmd
}
