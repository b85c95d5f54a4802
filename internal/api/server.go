// Package api exposes a session over HTTP: queries, level control, shots,
// shot history, a live event stream and Prometheus metrics.
package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/energizer-project/slingshot/dashboard"
	"github.com/energizer-project/slingshot/internal/config"
	"github.com/energizer-project/slingshot/internal/db"
	"github.com/energizer-project/slingshot/internal/events"
	"github.com/energizer-project/slingshot/internal/game"
	"github.com/energizer-project/slingshot/internal/network"
	"github.com/energizer-project/slingshot/internal/protocol"
	"github.com/energizer-project/slingshot/internal/session"
)

// Controller is the session surface the API drives. *session.Session
// implements it.
type Controller interface {
	Connected() bool
	Handshake() protocol.Handshake
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

// Lifecycle is the supervisor surface. *supervisor.Supervisor implements it.
type Lifecycle interface {
	Start(ctx context.Context) error
	Recover(ctx context.Context, restartProcess bool) error
	EndEpisode(ctx context.Context) (bool, error)
	Episodes() int
}

// Deps are the optional collaborators of the API.
type Deps struct {
	Lifecycle Lifecycle
	History   *db.History
	Bus       *events.Bus
	Gatherer  prometheus.Gatherer
	Version   string
}

// Server is the REST API server.
type Server struct {
	cfg  config.APIConfig
	deps Deps

	// mu serializes session calls; a Session is single-owner.
	mu   sync.Mutex
	ctrl Controller

	stream     *EventStream
	router     *gin.Engine
	httpServer *http.Server
	logger     zerolog.Logger
}

// NewServer creates the API server and builds its router.
func NewServer(cfg config.APIConfig, ctrl Controller, deps Deps) *Server {
	if zerolog.GlobalLevel() <= zerolog.DebugLevel {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		cfg:    cfg,
		deps:   deps,
		ctrl:   ctrl,
		logger: log.With().Str("component", "api").Logger(),
	}
	if deps.Bus != nil {
		s.stream = NewEventStream(cfg.AllowedOrigins)
		s.stream.Attach(deps.Bus)
	}
	s.router = s.buildRouter()
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on the configured address and serves until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	ln, err := network.Listen(ctx, s.cfg.Listen)
	if err != nil {
		return fmt.Errorf("API server error: %w", err)
	}

	s.httpServer = &http.Server{
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	s.logger.Info().Str("addr", ln.Addr().String()).Msg("REST API server starting")
	if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("API server error: %w", err)
	}
	return nil
}

// Stop gracefully stops the API server.
func (s *Server) Stop() error {
	if s.stream != nil {
		s.stream.Close()
	}
	if s.httpServer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) buildRouter() *gin.Engine {
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(RequestLogger())
	router.Use(SecurityHeaders())

	allowedOrigins := s.cfg.AllowedOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:  allowedOrigins,
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type"},
		ExposeHeaders: []string{"Content-Length", "X-Frame-Width", "X-Frame-Height"},
		MaxAge:        12 * time.Hour,
	}))
	router.Use(NewRateLimiter(s.cfg.RateLimitRPS).Middleware())

	public := router.Group("/api/public")
	{
		public.GET("/ping", s.handlePing)
	}

	q := router.Group("/api")
	{
		q.GET("/session", s.handleSession)
		q.GET("/status", s.handleStatus)
		q.GET("/score", s.handleScore)
		q.GET("/scores/best", s.handleBestScores)
		q.GET("/levels", s.handleLevels)
		q.GET("/level", s.handleServerLevel)
		q.GET("/level/over", s.handleLevelOver)
		q.GET("/screenshot", s.handleScreenshot)
	}

	ctl := router.Group("/api")
	{
		ctl.POST("/level/load/:level", s.handleLoadLevel)
		ctl.POST("/level/next", s.handleNextLevel)
		ctl.POST("/level/restart", s.handleRestartLevel)
		ctl.POST("/zoom/in", s.handleSimple("zoom_in", s.ctrl.ZoomIn))
		ctl.POST("/zoom/out", s.handleSimple("zoom_out", s.ctrl.ZoomOut))
		ctl.POST("/click", s.handleSimple("click_center", s.ctrl.ClickCenter))
		ctl.POST("/shot", s.handleShot)
		ctl.POST("/recover", s.handleRecover)
		ctl.POST("/episode/end", s.handleEndEpisode)
	}

	if s.deps.History != nil {
		h := router.Group("/api/history")
		h.GET("/shots", s.handleHistoryShots)
		h.GET("/scores", s.handleHistoryScores)
		h.GET("/lifecycle", s.handleHistoryLifecycle)
	}

	if s.stream != nil {
		router.GET("/api/events", gin.WrapF(s.stream.HandleWebSocket))
	}

	if s.cfg.EnableMetrics {
		gatherer := s.deps.Gatherer
		if gatherer == nil {
			gatherer = prometheus.DefaultGatherer
		}
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	// The operator page is served at the root; everything else that is not
	// an API route falls back to it.
	ui := http.FileServer(http.FS(dashboard.FS()))
	router.NoRoute(func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, "/api/") {
			c.JSON(http.StatusNotFound, gin.H{"error": "endpoint not found"})
			return
		}
		if c.Request.Method != http.MethodGet {
			c.JSON(http.StatusMethodNotAllowed, gin.H{"error": "method not allowed"})
			return
		}
		c.Request.URL.Path = "/"
		ui.ServeHTTP(c.Writer, c.Request)
	})

	return router
}

// StartLifecycle performs the supervisor's initial start (process launch and
// connect) under the session lock, so routes served meanwhile wait for it.
func (s *Server) StartLifecycle(ctx context.Context) error {
	if s.deps.Lifecycle == nil {
		return fmt.Errorf("no supervisor configured")
	}
	var err error
	s.locked(func() { err = s.deps.Lifecycle.Start(ctx) })
	return err
}

// locked runs fn while holding the session lock.
func (s *Server) locked(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn()
}
