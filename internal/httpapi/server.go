// Package httpapi is the HTTP surface: upload, status, download, health,
// metrics, and the MCP endpoint.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/apresai/newsletter-podcaster/internal/jobs"
)

// KeyHeader carries a caller-supplied Gemini key.
const KeyHeader = "X-Gemini-Api-Key"

// Service is the job API the handlers call.
type Service interface {
	Submit(ctx context.Context, req jobs.SubmitRequest) (*jobs.Job, error)
	Status(ctx context.Context, id string) (*jobs.Job, error)
	Download(ctx context.Context, id string) (*jobs.Job, string, error)
}

type Options struct {
	Service        Service
	MaxUploadBytes int64
	// Metrics and MCP are mounted when non-nil.
	Metrics http.Handler
	MCP     http.Handler
	Logger  *slog.Logger
}

// Server owns the gin engine and its listener.
type Server struct {
	engine *gin.Engine
	http   *http.Server
	log    *slog.Logger
}

func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 10 << 20
	}
	gin.SetMode(gin.ReleaseMode)

	engine := gin.New()
	engine.Use(gin.CustomRecovery(func(c *gin.Context, rec any) {
		opts.Logger.ErrorContext(c.Request.Context(), "handler panicked", "path", c.Request.URL.Path, "panic", fmt.Sprint(rec))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"detail": "internal server error"})
	}))
	engine.Use(requestLogger(opts.Logger))
	_ = engine.SetTrustedProxies(nil)

	h := &handlers{svc: opts.Service, maxUpload: opts.MaxUploadBytes, log: opts.Logger}
	api := engine.Group("/api")
	api.POST("/generate-podcast", h.generate)
	api.GET("/podcast-status/:job_id", h.status)
	api.GET("/download-podcast/:job_id", h.download)

	engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if opts.Metrics != nil {
		engine.GET("/metrics", gin.WrapH(opts.Metrics))
	}
	if opts.MCP != nil {
		engine.Any("/mcp", gin.WrapH(opts.MCP))
	}
	return &Server{engine: engine, log: opts.Logger}
}

// Handler returns the router for tests and embedding.
func (s *Server) Handler() http.Handler { return s.engine }

// ListenAndServe blocks until Shutdown. It returns nil on a clean shutdown.
func (s *Server) ListenAndServe(addr string) error {
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.log.Info("http server listening", "addr", addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

// Addr joins bind and port.
func Addr(bind string, port int) string {
	return net.JoinHostPort(bind, strconv.Itoa(port))
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if c.Request.URL.Path == "/health" || c.Request.URL.Path == "/metrics" {
			return
		}
		logger.InfoContext(c.Request.Context(), "http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds())
	}
}
