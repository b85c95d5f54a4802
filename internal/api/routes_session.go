package api

import (
	"bytes"
	"image"
	"image/png"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/energizer-project/slingshot/internal/game"
	"github.com/energizer-project/slingshot/internal/protocol"
	"github.com/energizer-project/slingshot/internal/session"
)

func (s *Server) handlePing(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "version": s.deps.Version})
}

func (s *Server) handleSession(c *gin.Context) {
	var body gin.H
	s.locked(func() {
		body = gin.H{
			"connected":   s.ctrl.Connected(),
			"handshake":   s.ctrl.Handshake(),
			"level":       s.ctrl.CurrentLevel(),
			"total_score": s.ctrl.TotalScore(),
		}
	})
	if s.deps.Lifecycle != nil {
		body["episodes"] = s.deps.Lifecycle.Episodes()
	}
	c.JSON(http.StatusOK, body)
}

func (s *Server) handleStatus(c *gin.Context) {
	var (
		status game.Status
		err    error
	)
	s.locked(func() { status, err = s.ctrl.Status() })
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": status, "terminal": status.IsTerminal()})
}

func (s *Server) handleScore(c *gin.Context) {
	var (
		score, level int
		err          error
	)
	s.locked(func() {
		level = s.ctrl.CurrentLevel()
		score, err = s.ctrl.CurrentScore()
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"level": level, "score": score})
}

func (s *Server) handleBestScores(c *gin.Context) {
	var (
		scores []int
		err    error
	)
	s.locked(func() { scores, err = s.ctrl.BestScores() })
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"scores": scores})
}

func (s *Server) handleLevels(c *gin.Context) {
	var (
		levels []game.LevelStat
		total  int
	)
	s.locked(func() {
		levels = s.ctrl.Levels()
		total = s.ctrl.TotalScore()
	})
	c.JSON(http.StatusOK, gin.H{"levels": levels, "total_score": total})
}

func (s *Server) handleServerLevel(c *gin.Context) {
	var (
		level int
		err   error
	)
	s.locked(func() { level, err = s.ctrl.ServerLevel() })
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"level": level})
}

func (s *Server) handleLevelOver(c *gin.Context) {
	var (
		over bool
		err  error
	)
	s.locked(func() { over, err = s.ctrl.IsLevelOver() })
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"over": over})
}

// handleScreenshot returns the frame as PNG, or the raw RGB bytes with
// ?format=raw.
func (s *Server) handleScreenshot(c *gin.Context) {
	var (
		shot session.Screenshot
		err  error
	)
	s.locked(func() { shot, err = s.ctrl.Screenshot() })
	if err != nil {
		fail(c, err)
		return
	}

	c.Header("X-Frame-Width", strconv.Itoa(shot.Width))
	c.Header("X-Frame-Height", strconv.Itoa(shot.Height))
	if c.Query("format") == "raw" {
		c.Data(http.StatusOK, "application/octet-stream", shot.Pixels)
		return
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, rgbImage(shot)); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "image/png", buf.Bytes())
}

// rgbImage converts packed RGB rows into an RGBA image.
func rgbImage(shot session.Screenshot) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, shot.Width, shot.Height))
	for i, j := 0, 0; i+protocol.BytesPerPixel <= len(shot.Pixels) && j+4 <= len(img.Pix); i, j = i+protocol.BytesPerPixel, j+4 {
		img.Pix[j] = shot.Pixels[i]
		img.Pix[j+1] = shot.Pixels[i+1]
		img.Pix[j+2] = shot.Pixels[i+2]
		img.Pix[j+3] = 0xff
	}
	return img
}
