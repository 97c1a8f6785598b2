// Package admin serves the processor's local health, readiness, metrics and
// handler listing over HTTP.
package admin

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/danmuck/txprocessor/internal/auth"
	"github.com/danmuck/txprocessor/internal/handler"
	"github.com/danmuck/txprocessor/internal/observability"
	"github.com/danmuck/txprocessor/internal/processor"
)

// Source is the processor view the admin routes read. *processor.Processor
// satisfies it.
type Source interface {
	State() processor.State
	Stats() processor.Stats
	Registrations() []handler.Registration
}

type Server struct {
	src      Source
	router   *gin.Engine
	http     *http.Server
	appeared time.Time
	log      zerolog.Logger
	tokens   auth.Validator
}

type Option func(*Server)

// WithAuth requires a bearer token on /status and /handlers.
func WithAuth(v auth.Validator) Option {
	return func(s *Server) { s.tokens = v }
}

func New(addr string, src Source, opts ...Option) *Server {
	observability.RegisterMetrics()
	log := observability.Component("admin")
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(log))
	r.Use(observability.RequestMetricsMiddleware())
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	s := &Server{
		src:      src,
		router:   r,
		appeared: time.Now(),
		log:      log,
		http: &http.Server{
			Addr:              addr,
			Handler:           r,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerRoutes()
	return s
}

func (s *Server) requireToken(c *gin.Context) {
	if s.tokens == nil {
		c.Next()
		return
	}
	if err := auth.CheckHeader(s.tokens, c.GetHeader("Authorization")); err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Next()
}

func (s *Server) Router() *gin.Engine {
	return s.router
}

func (s *Server) registerRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"uptime": time.Since(s.appeared).String(),
			"state":  s.src.State().String(),
		})
	})

	s.router.GET("/ready", func(c *gin.Context) {
		state := s.src.State()
		code := http.StatusOK
		if state != processor.StateServing {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{
			"ready": code == http.StatusOK,
			"state": state.String(),
		})
	})

	private := s.router.Group("/", s.requireToken)
	private.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, s.src.Stats())
	})

	private.GET("/handlers", func(c *gin.Context) {
		regs := s.src.Registrations()
		out := make([]gin.H, 0, len(regs))
		for _, reg := range regs {
			out = append(out, gin.H{
				"family":     reg.FamilyName,
				"versions":   reg.FamilyVersions,
				"namespaces": reg.Namespaces,
				"encodings":  reg.Encodings,
			})
		}
		c.JSON(http.StatusOK, gin.H{"handlers": out})
	})

	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

// Run serves on the configured address until ctx ends.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx ends, then shuts down within five seconds.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		err := s.http.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()
	s.log.Info().Str("addr", ln.Addr().String()).Msg("admin listening")

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.http.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return <-errCh
	case err := <-errCh:
		return err
	}
}
