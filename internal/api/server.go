// Package api exposes lineage reduction and trend fitting over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"cellfate/domain/core"
	"cellfate/internal"
	"cellfate/internal/batch"
	"cellfate/internal/config"
	apperrors "cellfate/internal/errors"
	"cellfate/ports"
)

var logger = internal.DefaultLogger.With("api")

// RunStore keeps the history of trend runs.
type RunStore interface {
	batch.Recorder
	GetRun(ctx context.Context, id core.RunID) (*batch.Run, error)
	ListRuns(ctx context.Context, limit int) ([]batch.Summary, error)
}

// Server routes HTTP requests to the lineage and trend operations
type Server struct {
	router *gin.Engine
	cfg    *config.Config
	runs   RunStore
	rt     ports.RRuntime
}

// Option configures optional collaborators of a Server.
type Option func(*Server)

// WithRunStore records every trend run and enables the /v1/runs routes.
func WithRunStore(store RunStore) Option {
	return func(s *Server) { s.runs = store }
}

// WithRRuntime enables the mgcv trend model.
func WithRRuntime(rt ports.RRuntime) Option {
	return func(s *Server) { s.rt = rt }
}

// NewServer creates a server. The gin mode must be set by the caller.
func NewServer(cfg *config.Config, opts ...Option) *Server {
	s := &Server{router: gin.New(), cfg: cfg}
	for _, opt := range opts {
		opt(s)
	}
	s.router.Use(gin.Recovery(), requestLogger())
	s.setupRoutes()
	return s
}

// Handler returns the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) setupRoutes() {
	s.router.GET("/healthz", s.health)

	v1 := s.router.Group("/v1")
	{
		v1.GET("/measures", s.listMeasures)
		v1.POST("/lineage/reduce", s.reduceLineage)
		v1.POST("/lineage/mix", s.mixLineage)
		v1.POST("/trends", s.fitTrends)
		v1.GET("/runs", s.listRuns)
		v1.GET("/runs/:id", s.getRun)
	}
}

// Run listens on the configured port until ctx is done, then drains
// in-flight requests for at most the shutdown timeout.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              ":" + s.cfg.Server.Port,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return apperrors.Wrap(err, "server failed")
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()
	logger.Info("shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return apperrors.Wrap(err, "server shutdown failed")
	}
	return nil
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("%s %s -> %d in %s", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"run_store": s.runs != nil,
		"mgcv":      s.rt != nil,
	})
}
