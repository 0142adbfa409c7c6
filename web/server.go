package web

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/yanayukhimuk/Logging/core"
	"github.com/yanayukhimuk/Logging/pkg/auth"
	"github.com/yanayukhimuk/Logging/store"
)

// LoggerSource hands out loggers by name; *core.Logging implements it
type LoggerSource interface {
	Logger(name string) *core.Logger
}

// Options wires the router to its collaborators
type Options struct {
	Mode       string // gin mode, default release
	Loggers    LoggerSource
	Repository store.SessionRepository
	Health     *core.HealthMonitor              // nil serves a static ok
	Stats      func() map[string]core.SinkStats // nil disables /admin/sinks
	Metrics    http.Handler                     // nil disables /metrics
	Keyring    *auth.Keyring
}

// NewRouter builds the gin engine with every route registered
func NewRouter(opts Options) (*gin.Engine, error) {
	if opts.Loggers == nil {
		return nil, errors.New("web: a logger source is required")
	}
	if opts.Repository == nil {
		return nil, errors.New("web: a session repository is required")
	}
	if opts.Mode == "" {
		opts.Mode = gin.ReleaseMode
	}
	gin.SetMode(opts.Mode)

	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger(opts.Loggers.Logger("Web")))

	NewHomeController(opts.Repository, opts.Loggers.Logger("Home")).MountRoutes(engine)
	NewSessionController(opts.Repository, opts.Loggers.Logger("Session")).MountRoutes(engine)
	NewIdeasController(opts.Repository, opts.Loggers.Logger("Ideas")).MountRoutes(engine)
	newSystemController(opts).MountRoutes(engine)

	return engine, nil
}

// requestLogger logs each request after it completes; 5xx responses are
// logged at Error
func requestLogger(logger *core.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		fields := []core.Field{
			core.F("method", c.Request.Method),
			core.F("path", c.Request.URL.Path),
			core.F("status", status),
			core.F("latency", time.Since(start).String()),
			core.F("client_ip", c.ClientIP()),
		}
		message := fmt.Sprintf("%s %s -> %d", c.Request.Method, c.Request.URL.Path, status)

		if status >= http.StatusInternalServerError {
			l := c.Errors.Last()
			var err error
			if l != nil {
				err = l.Err
			}
			logger.Error(message, err, fields...)
			return
		}
		logger.Debug(message, fields...)
	}
}

// Server runs the HTTP server
type Server struct {
	server   *http.Server
	listener net.Listener
}

// Listen binds addr so startup errors surface before Serve
func Listen(addr string, handler http.Handler) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("web: failed to listen on %s: %w", addr, err)
	}
	return &Server{
		listener: ln,
		server: &http.Server{
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

// Addr returns the bound address
func (s *Server) Addr() net.Addr { return s.listener.Addr() }

// Serve blocks until Shutdown is called or the server fails
func (s *Server) Serve() error {
	if err := s.server.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
