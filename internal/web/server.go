package web

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Orlik-B/NVR-surveillance/internal/config"
	"github.com/Orlik-B/NVR-surveillance/internal/health"
	"github.com/Orlik-B/NVR-surveillance/internal/logger"
	"github.com/Orlik-B/NVR-surveillance/internal/pipeline"
	"github.com/Orlik-B/NVR-surveillance/internal/service"
	"github.com/Orlik-B/NVR-surveillance/internal/state"
	"github.com/Orlik-B/NVR-surveillance/internal/video"
)

// ServiceName is the name the web server registers under
const ServiceName = "web-server"

// Overwatch is the read-only view of a running overwatch
type Overwatch interface {
	Statuses() []pipeline.Status
	SourceStats() []video.SourceStats
	Remaining() time.Duration
	Deadline() time.Time
	LiveView(cameraID string) ([]byte, uint64, error)
}

// HealthReporter produces the aggregated health report
type HealthReporter interface {
	Check(ctx context.Context) health.HealthReport
}

// History gives access to persisted alerts and failure notices
type History interface {
	ListAlerts(ctx context.Context, cameraID string, limit int) ([]state.AlertRecord, error)
	CountAlerts(ctx context.Context, cameraID string) (int, error)
	ListCameraFailures(ctx context.Context, cameraID string, limit int) ([]state.CameraFailure, error)
	ListRuns(ctx context.Context, limit int) ([]state.Run, error)
	GetRun(ctx context.Context, id string) (*state.Run, error)
}

// Server represents the web server service
type Server struct {
	*service.ServiceBase
	config     *config.WebConfig
	logger     *logger.Logger
	httpServer *http.Server
	router     *gin.Engine
	overwatch  Overwatch      // optional
	health     HealthReporter // optional
	history    History        // optional
	version    string
	startTime  time.Time

	// streamInterval is how often an MJPEG stream polls for a new frame
	streamInterval time.Duration
	routesOnce     sync.Once
	closing        chan struct{}
	closeOnce      sync.Once
}

// NewServer creates a new web server service
func NewServer(cfg *config.WebConfig, log *logger.Logger) *Server {
	// Debug mode can be enabled via the GIN_MODE environment variable
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(ginLogger(log))
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	return &Server{
		ServiceBase:    service.NewServiceBase(ServiceName, log),
		config:         cfg,
		logger:         log,
		router:         router,
		version:        "dev",
		startTime:      time.Now(),
		streamInterval: 100 * time.Millisecond,
		closing:        make(chan struct{}),
	}
}

// SetVersion sets the application version
func (s *Server) SetVersion(version string) {
	s.version = version
}

// SetDependencies sets the optional collaborators. Endpoints whose
// collaborator is missing answer 503.
func (s *Server) SetDependencies(overwatch Overwatch, health HealthReporter, history History) {
	s.overwatch = overwatch
	s.health = health
	s.history = history
}

// Handler returns the HTTP handler with every route registered
func (s *Server) Handler() http.Handler {
	s.routesOnce.Do(s.setupRoutes)
	return s.router
}

// Start starts the web server
func (s *Server) Start(ctx context.Context) error {
	if !s.config.Enabled {
		s.LogInfo("Web server is disabled")
		return nil
	}

	// WriteTimeout stays disabled so MJPEG streams are not cut off.
	// Streams end on client disconnect or Stop.
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 15 * time.Second,
	}

	go func() {
		s.LogInfo("Starting web server", "address", addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.LogError("Web server error", err, "address", addr)
			s.GetStatus().SetStatus(service.StatusError)
			s.GetStatus().SetError(err)
		}
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(100 * time.Millisecond):
		s.GetStatus().SetStatus(service.StatusRunning)
		s.LogInfo("Web server started", "address", addr)
		return nil
	}
}

// Stop stops the web server
func (s *Server) Stop(ctx context.Context) error {
	s.closeOnce.Do(func() { close(s.closing) })

	if s.httpServer == nil {
		return nil
	}

	s.LogInfo("Stopping web server")
	err := s.httpServer.Shutdown(ctx)
	s.GetStatus().SetStatus(service.StatusStopped)
	return err
}

// setupRoutes sets up all API routes
func (s *Server) setupRoutes() {
	api := s.router.Group("/api")
	{
		api.GET("/health", s.handleHealth)
		api.GET("/status", s.handleStatus)

		cameras := api.Group("/cameras")
		{
			cameras.GET("", s.handleListCameras)
			cameras.GET("/:id", s.handleGetCamera)
			cameras.GET("/:id/frame", s.handleSingleFrame)
			cameras.GET("/:id/stream", s.handleMJPEGStream)
		}

		api.GET("/alerts", s.handleListAlerts)
		api.GET("/failures", s.handleListFailures)
		api.GET("/runs", s.handleListRuns)
		api.GET("/runs/:id", s.handleGetRun)
	}

	s.router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
	})
}

// ginLogger creates a Gin middleware for logging
func ginLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		if raw != "" {
			path = path + "?" + raw
		}

		log.Debug("HTTP request",
			"method", c.Request.Method,
			"path", path,
			"status", c.Writer.Status(),
			"latency", time.Since(start),
			"client_ip", c.ClientIP(),
		)
	}
}

// corsMiddleware creates a CORS middleware for local network access
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
