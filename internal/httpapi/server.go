// Package httpapi is the HTTP adapter: it translates webhook deliveries
// and API calls into engine operations.
package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/guardhq/renewal-workflow/internal/engine"
	"github.com/guardhq/renewal-workflow/internal/repository"
)

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Server is the HTTP server adapter
type Server struct {
	config     ServerConfig
	httpServer *http.Server
	router     *gin.Engine
	logger     *zap.Logger
}

// NewServer creates a new HTTP server wired to the engine and read repos
func NewServer(
	config ServerConfig,
	eng *engine.Engine,
	instances *repository.InstanceRepository,
	events *repository.EventRepository,
	logger *zap.Logger,
) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	server := &Server{
		config: config,
		router: router,
		logger: logger,
	}

	router.Use(gin.Recovery())
	router.Use(server.loggingMiddleware())

	handlers := NewHandlers(eng, instances, events, logger)

	router.GET("/health", handlers.HealthCheck)
	router.POST("/webhook/sms", handlers.InboundSMS)

	api := router.Group("/api/v1")
	{
		api.POST("/instances", handlers.StartInstance)
		api.GET("/instances", handlers.ListInstances)
		api.GET("/instances/:uid", handlers.GetInstance)
		api.GET("/instances/:uid/events", handlers.GetInstanceEvents)
		api.GET("/instances/:uid/triggers", handlers.GetInstanceTriggers)
		api.POST("/instances/:uid/escalate", handlers.Escalate)
		api.POST("/instances/:uid/resume", handlers.Resume)
		api.POST("/instances/:uid/submission", handlers.RecordSubmission)
		api.POST("/instances/:uid/approval", handlers.RecordApproval)
	}

	return server
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		s.logger.Info("HTTP request",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()))
	}
}

// Start runs the server until the context is cancelled
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.logger.Info("Starting HTTP server", zap.String("address", addr))

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		return s.Stop()
	case err := <-errCh:
		s.logger.Error("HTTP server error", zap.Error(err))
		return err
	}
}

// Stop gracefully shuts the server down
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("HTTP server shutdown error", zap.Error(err))
		return err
	}

	s.logger.Info("HTTP server stopped")
	return nil
}

// Router returns the underlying gin router (for testing)
func (s *Server) Router() *gin.Engine {
	return s.router
}
