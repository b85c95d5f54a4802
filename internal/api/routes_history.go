package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

func queryInt(c *gin.Context, key string, def int) int {
	if v, err := strconv.Atoi(c.Query(key)); err == nil {
		return v
	}
	return def
}

func (s *Server) handleHistoryShots(c *gin.Context) {
	shots, err := s.deps.History.RecentShots(queryInt(c, "level", 0), queryInt(c, "limit", 50))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"shots": shots, "count": len(shots)})
}

func (s *Server) handleHistoryScores(c *gin.Context) {
	scores, err := s.deps.History.LevelScores()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	total, err := s.deps.History.TotalBest()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"levels": scores, "total_best": total})
}

func (s *Server) handleHistoryLifecycle(c *gin.Context) {
	entries, err := s.deps.History.Lifecycle(queryInt(c, "limit", 50))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}
