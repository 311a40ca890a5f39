// Package server exposes the question pipeline and its sessions over HTTP.
package server

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/smartsearch/corporate-agent/internal/agent"
	logx "github.com/smartsearch/corporate-agent/pkg/logger"
)

type Server struct {
	app      *fiber.App
	agent    *agent.Service
	validate *validator.Validate
	port     int

	// requestTimeout bounds one pipeline run; zero leaves it unbounded.
	requestTimeout time.Duration
	// baseCtx is cancelled on shutdown and ends every run still in flight.
	baseCtx context.Context
	stop    context.CancelFunc
}

type Option func(*Server)

// WithRequestTimeout bounds how long one question may run.
func WithRequestTimeout(d time.Duration) Option {
	return func(s *Server) {
		s.requestTimeout = d
	}
}

func New(svc *agent.Service, port int, opts ...Option) *Server {
	app := fiber.New(fiber.Config{
		AppName:               "corporate-agent",
		BodyLimit:             1 * 1024 * 1024,
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler,
	})
	s := &Server{
		app:      app,
		agent:    svc,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		port:     port,
	}
	s.baseCtx, s.stop = context.WithCancel(context.Background())
	for _, opt := range opts {
		opt(s)
	}

	app.Use(recover.New())
	app.Use(requestID())
	// OpenTelemetry tracing middleware (traces all HTTP requests)
	app.Use(otelfiber.Middleware(otelfiber.WithNext(func(c *fiber.Ctx) bool {
		return c.Path() == "/healthz" || c.Path() == "/metrics"
	})))
	app.Use(observe())

	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.app.Get("/healthz", s.healthz)
	s.app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	sessions := s.app.Group("/apps/:app/users/:user/sessions")
	sessions.Post("/:session", s.createSession)
	sessions.Get("/:session", s.getSession)
	sessions.Delete("/:session", s.deleteSession)

	s.app.Post("/run", s.run)
}

func (s *Server) App() *fiber.App {
	return s.app
}

func (s *Server) Run() error {
	logx.Info().Int("port", s.port).Msg("Server is running")
	return s.app.Listen(fmt.Sprintf(":%d", s.port))
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.stop()
	return s.app.ShutdownWithContext(ctx)
}

// runContext derives the context of one pipeline run from the request. It
// ends at the request timeout or when the server shuts down, whichever comes
// first.
func (s *Server) runContext(c *fiber.Ctx) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(c.UserContext())
	release := context.AfterFunc(s.baseCtx, cancel)
	if s.requestTimeout <= 0 {
		return ctx, func() {
			release()
			cancel()
		}
	}
	ctx, cancelTimeout := context.WithTimeout(ctx, s.requestTimeout)
	return ctx, func() {
		cancelTimeout()
		release()
		cancel()
	}
}
