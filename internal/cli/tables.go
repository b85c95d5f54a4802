package cli

import (
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"

	"github.com/energizer-project/slingshot/internal/db"
	"github.com/energizer-project/slingshot/internal/game"
)

func newTable(out io.Writer, header ...string) *tablewriter.Table {
	tw := tablewriter.NewWriter(out)
	tw.SetHeader(header)
	tw.SetBorder(true)
	tw.SetAutoWrapText(false)
	tw.SetAlignment(tablewriter.ALIGN_RIGHT)
	return tw
}

// RenderBoard prints the local per-level board.
func RenderBoard(out io.Writer, levels []game.LevelStat, total int) {
	tw := newTable(out, "Level", "Score", "Shots", "Meaningful")
	for _, l := range levels {
		meaningful := "-"
		if l.Meaningful {
			meaningful = "yes"
		}
		tw.Append([]string{strconv.Itoa(l.Level), strconv.Itoa(l.Score), strconv.Itoa(l.Shots), meaningful})
	}
	tw.SetFooter([]string{"", "Total", strconv.Itoa(total), ""})
	tw.Render()
}

// RenderBestScores prints the server's best-score table.
func RenderBestScores(out io.Writer, scores []int) {
	tw := newTable(out, "Level", "Best")
	total := 0
	for i, s := range scores {
		tw.Append([]string{strconv.Itoa(i + game.MinLevel), strconv.Itoa(s)})
		total += s
	}
	tw.SetFooter([]string{"Total", strconv.Itoa(total)})
	tw.Render()
}

// RenderHistory prints the persisted best score and shot count per level.
func RenderHistory(out io.Writer, scores []db.LevelScore, total int) {
	tw := newTable(out, "Level", "Best", "Shots", "Updated")
	for _, s := range scores {
		tw.Append([]string{
			strconv.Itoa(s.Level),
			strconv.Itoa(s.BestScore),
			strconv.Itoa(s.Shots),
			s.UpdatedAt.Format("2006-01-02 15:04"),
		})
	}
	tw.SetFooter([]string{"Total", strconv.Itoa(total), "", ""})
	tw.Render()
}

// RenderShots prints recent shots, newest first.
func RenderShots(out io.Writer, shots []db.ShotRecord) {
	tw := newTable(out, "ID", "Level", "Kind", "Mode", "Params", "Reward", "Fired")
	for _, s := range shots {
		tw.Append([]string{
			strconv.FormatInt(s.ID, 10),
			strconv.Itoa(s.Level),
			s.Kind,
			s.Mode,
			fmt.Sprint(s.Params),
			strconv.Itoa(s.Reward),
			s.FiredAt.Format("15:04:05"),
		})
	}
	tw.Render()
}
