// Package cli implements the interactive operator console for a session.
// Commands mirror the single-letter shortcuts of the classic test client.
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/energizer-project/slingshot/internal/game"
	"github.com/energizer-project/slingshot/internal/protocol"
	"github.com/energizer-project/slingshot/internal/session"
)

// Controller is the session surface the console drives.
type Controller interface {
	Connected() bool
	Screenshot() (session.Screenshot, error)
	Status() (game.Status, error)
	CurrentScore() (int, error)
	BestScores() ([]int, error)
	ServerLevel() (int, error)
	IsLevelOver() (bool, error)
	CurrentLevel() int
	TotalScore() int
	Levels() []game.LevelStat
	LoadLevel(n int) (bool, error)
	NextLevel() (bool, error)
	RestartLevel() (bool, error)
	ZoomIn() (bool, error)
	ZoomOut() (bool, error)
	ClickCenter() (bool, error)
	Fire(shot protocol.Shot, mode protocol.ShotMode) (session.ShotResult, error)
}

// ErrQuit is returned by Execute for the quit command.
var ErrQuit = errors.New("quit")

const prompt = "slingshot> "

// CLI reads commands from an input stream and writes results to out.
type CLI struct {
	ctrl Controller
	out  io.Writer
	mode protocol.ShotMode
}

// NewCLI creates a console over ctrl writing to out. Shots use mode unless
// the command names one.
func NewCLI(ctrl Controller, out io.Writer, mode protocol.ShotMode) *CLI {
	return &CLI{ctrl: ctrl, out: out, mode: mode}
}

// Run reads lines from in until EOF, quit or ctx is cancelled.
func (c *CLI) Run(ctx context.Context, in io.Reader) error {
	fmt.Fprintln(c.out, "slingshot console ready. Type 'help' for available commands.")

	scanner := bufio.NewScanner(in)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		fmt.Fprint(c.out, prompt)
		if !scanner.Scan() {
			fmt.Fprintln(c.out)
			return scanner.Err()
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		err := c.Execute(line)
		if errors.Is(err, ErrQuit) {
			return nil
		}
		if err != nil {
			log.Debug().Err(err).Str("command", line).Msg("console command failed")
			fmt.Fprintf(c.out, "Error: %v\n", err)
		}
	}
}

// Execute runs a single command line.
func (c *CLI) Execute(line string) error {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return nil
	}
	cmd, args := strings.ToLower(parts[0]), parts[1:]

	switch cmd {
	case "help", "h", "?":
		c.printHelp()
	case "score", "s":
		score, err := c.ctrl.CurrentScore()
		if err != nil {
			return err
		}
		fmt.Fprintf(c.out, "level %d score %d\n", c.ctrl.CurrentLevel(), score)
	case "status", "st":
		status, err := c.ctrl.Status()
		if err != nil {
			return err
		}
		fmt.Fprintln(c.out, status)
	case "cshoot", "c":
		return c.cmdShoot(args, false)
	case "pshoot", "p":
		return c.cmdShoot(args, true)
	case "zoomin", "i":
		return c.printOK(c.ctrl.ZoomIn())
	case "zoomout", "o":
		return c.printOK(c.ctrl.ZoomOut())
	case "click":
		return c.printOK(c.ctrl.ClickCenter())
	case "load", "l":
		return c.cmdLoad(args)
	case "next", "n":
		ok, err := c.ctrl.NextLevel()
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(c.out, "already on the last level")
			return nil
		}
		fmt.Fprintf(c.out, "level %d\n", c.ctrl.CurrentLevel())
	case "restart", "r":
		return c.printOK(c.ctrl.RestartLevel())
	case "over", "e":
		return c.printOK(c.ctrl.IsLevelOver())
	case "level":
		level, err := c.ctrl.ServerLevel()
		if err != nil {
			return err
		}
		fmt.Fprintf(c.out, "server level %d, tracked level %d\n", level, c.ctrl.CurrentLevel())
	case "best":
		scores, err := c.ctrl.BestScores()
		if err != nil {
			return err
		}
		RenderBestScores(c.out, scores)
	case "board", "b":
		RenderBoard(c.out, c.ctrl.Levels(), c.ctrl.TotalScore())
	case "screenshot", "ss":
		shot, err := c.ctrl.Screenshot()
		if err != nil {
			return err
		}
		fmt.Fprintf(c.out, "frame %dx%d (%d bytes)\n", shot.Width, shot.Height, len(shot.Pixels))
	case "quit", "exit", "q":
		return ErrQuit
	default:
		fmt.Fprintf(c.out, "Unknown command: '%s'. Type 'help' for available commands.\n", cmd)
	}
	return nil
}

func (c *CLI) printHelp() {
	fmt.Fprint(c.out, `
  s  | score                     Query the current level score
  st | status                    Query the game status
  c  | cshoot dx dy [t1 t2] [m]  Cartesian shot (t1 release ms, t2 tap ms, m safe|fast)
  p  | pshoot r theta [t1 t2] [m] Polar shot (theta in degrees)
  i  | zoomin                    Zoom in
  o  | zoomout                   Zoom out
       click                     Click the screen centre
  l  | load <level>              Load a level (1-21)
  n  | next                      Load the next level
  r  | restart                   Restart the level
  e  | over                      Is the level over?
       level                     Level reported by the server
       best                      Best score of every level
  b  | board                     Local per-level board
  ss | screenshot                Capture a frame
  q  | quit                      Leave the console
`)
}

func (c *CLI) printOK(ok bool, err error) error {
	if err != nil {
		return err
	}
	fmt.Fprintln(c.out, ok)
	return nil
}

func (c *CLI) cmdLoad(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: load <level>")
	}
	level, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid level: %s", args[0])
	}
	return c.printOK(c.ctrl.LoadLevel(level))
}

// cmdShoot parses "a b [t1 t2] [mode]" and fires from the level's focus.
func (c *CLI) cmdShoot(args []string, polar bool) error {
	usage := "usage: cshoot dx dy [t1 t2] [safe|fast]"
	if polar {
		usage = "usage: pshoot r theta [t1 t2] [safe|fast]"
	}

	mode := c.mode
	if n := len(args); n > 0 {
		if m, err := protocol.ParseShotMode(args[n-1]); err == nil {
			mode = m
			args = args[:n-1]
		}
	}
	if len(args) != 2 && len(args) != 4 {
		return errors.New(usage)
	}

	nums := make([]float64, len(args))
	for i, a := range args {
		v, err := strconv.ParseFloat(a, 64)
		if err != nil {
			return fmt.Errorf("invalid number %q: %s", a, usage)
		}
		nums[i] = v
	}
	var release, tap time.Duration
	if len(nums) == 4 {
		release = time.Duration(nums[2]) * time.Millisecond
		tap = time.Duration(nums[3]) * time.Millisecond
	}

	fx, fy, err := game.Focus(c.ctrl.CurrentLevel())
	if err != nil {
		return err
	}

	var shot protocol.Shot
	if polar {
		shot = protocol.PolarShot{FX: fx, FY: fy, Radius: nums[0], Angle: nums[1], Release: release, TapGap: tap}
	} else {
		shot = protocol.CartesianShot{FX: fx, FY: fy, DX: int(nums[0]), DY: int(nums[1]), Release: release, TapGap: tap}
	}

	res, err := c.ctrl.Fire(shot, mode)
	if err != nil {
		return err
	}
	if !res.Accepted {
		fmt.Fprintf(c.out, "shot rejected (reward %d)\n", res.Reward)
		return nil
	}
	fmt.Fprintf(c.out, "reward %d (score %d -> %d)\n", res.Reward, res.PreScore, res.PostScore)
	return nil
}
