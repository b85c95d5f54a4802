package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/energizer-project/slingshot/internal/game"
	"github.com/energizer-project/slingshot/internal/protocol"
	"github.com/energizer-project/slingshot/internal/session"
)

// ShotRequest is the body of POST /api/shot. Type selects the form:
// "cartesian" uses DX/DY, "polar" uses Radius/Angle.
type ShotRequest struct {
	Type      string  `json:"type" binding:"required"`
	Mode      string  `json:"mode"`
	FX        int     `json:"fx"`
	FY        int     `json:"fy"`
	DX        int     `json:"dx"`
	DY        int     `json:"dy"`
	Radius    float64 `json:"radius"`
	Angle     float64 `json:"angle"`
	ReleaseMS int     `json:"release_ms"`
	TapMS     int     `json:"tap_ms"`
}

// withFocus fills a missing focus point from the level's known sling position.
func (r ShotRequest) withFocus(level int) ShotRequest {
	if r.FX == 0 && r.FY == 0 {
		if x, y, err := game.Focus(level); err == nil {
			r.FX, r.FY = x, y
		}
	}
	return r
}

// Shot converts the request into a protocol shot and mode.
func (r ShotRequest) Shot() (protocol.Shot, protocol.ShotMode, error) {
	mode, err := protocol.ParseShotMode(r.Mode)
	if err != nil {
		return nil, mode, err
	}
	release := time.Duration(r.ReleaseMS) * time.Millisecond
	tap := time.Duration(r.TapMS) * time.Millisecond

	switch strings.ToLower(r.Type) {
	case "cartesian", "cart":
		return protocol.CartesianShot{FX: r.FX, FY: r.FY, DX: r.DX, DY: r.DY, Release: release, TapGap: tap}, mode, nil
	case "polar":
		return protocol.PolarShot{FX: r.FX, FY: r.FY, Radius: r.Radius, Angle: r.Angle, Release: release, TapGap: tap}, mode, nil
	}
	return nil, mode, fmt.Errorf("unknown shot type %q", r.Type)
}

func (s *Server) handleLoadLevel(c *gin.Context) {
	level, err := strconv.Atoi(c.Param("level"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid level %q", c.Param("level"))})
		return
	}

	var ok bool
	s.locked(func() { ok, err = s.ctrl.LoadLevel(level) })
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": ok, "level": level})
}

func (s *Server) handleNextLevel(c *gin.Context) {
	var (
		ok    bool
		level int
		err   error
	)
	s.locked(func() {
		ok, err = s.ctrl.NextLevel()
		level = s.ctrl.CurrentLevel()
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": ok, "level": level, "last": !ok && level == game.MaxLevel})
}

func (s *Server) handleRestartLevel(c *gin.Context) {
	s.handleSimple("restart_level", s.ctrl.RestartLevel)(c)
}

func (s *Server) handleSimple(name string, op func() (bool, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		var (
			ok  bool
			err error
		)
		s.locked(func() { ok, err = op() })
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"op": name, "ok": ok})
	}
}

func (s *Server) handleShot(c *gin.Context) {
	var req ShotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if _, _, err := req.Shot(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var (
		res session.ShotResult
		err error
	)
	s.locked(func() {
		shot, mode, _ := req.withFocus(s.ctrl.CurrentLevel()).Shot()
		res, err = s.ctrl.Fire(shot, mode)
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) handleRecover(c *gin.Context) {
	if s.deps.Lifecycle == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "no supervisor configured"})
		return
	}
	restart := c.Query("restart") == "true"

	var err error
	s.locked(func() { err = s.deps.Lifecycle.Recover(c.Request.Context(), restart) })
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "restart_process": restart})
}

func (s *Server) handleEndEpisode(c *gin.Context) {
	if s.deps.Lifecycle == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "no supervisor configured"})
		return
	}

	var (
		restarted bool
		err       error
	)
	s.locked(func() { restarted, err = s.deps.Lifecycle.EndEpisode(c.Request.Context()) })
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"episode": s.deps.Lifecycle.Episodes(), "process_restarted": restarted})
}
