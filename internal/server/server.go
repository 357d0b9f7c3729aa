// Package server exposes ingest, processing, sanitization and reporting
// over HTTP.
package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/fieldmedia/internal/common"
	"github.com/joseph-ayodele/fieldmedia/internal/events"
	"github.com/joseph-ayodele/fieldmedia/internal/objstore"
	"github.com/joseph-ayodele/fieldmedia/internal/processor"
	"github.com/joseph-ayodele/fieldmedia/internal/repository"
	"github.com/joseph-ayodele/fieldmedia/internal/sanitize"
)

type Processor interface {
	Process(ctx context.Context, req processor.Request) (processor.Result, error)
}

type Sanitizer interface {
	Sanitize(ctx context.Context, mediaID, audience string) (sanitize.Result, error)
	Invalidate(ctx context.Context, mediaID string) error
}

type Reporter interface {
	JobMediaXLSX(ctx context.Context, businessID, jobID string) ([]byte, error)
}

// Deps are the collaborators the handlers call.
type Deps struct {
	Media     repository.MediaRepository
	Store     objstore.Store
	Bucket    string
	Publisher events.Publisher
	Processor Processor
	Sanitizer Sanitizer
	Reports   Reporter
	// Health reports whether backing services answer.
	Health func(ctx context.Context) error
}

type Server struct {
	app       *fiber.App
	deps      Deps
	logger    *slog.Logger
	maxUpload int64
	now       func() time.Time
}

func New(deps Deps, cfg common.ServerConfig, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	maxUpload := cfg.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = 100 << 20
	}
	s := &Server{deps: deps, logger: logger, maxUpload: maxUpload, now: time.Now}
	s.app = fiber.New(fiber.Config{
		ErrorHandler:          ErrorHandler,
		BodyLimit:             int(maxUpload) + 1<<20,
		DisableStartupMessage: true,
	})
	s.app.Use(recover.New())
	s.app.Use(s.requestContext)
	s.routes()
	return s
}

func (s *Server) routes() {
	s.app.Get("/health", s.health)

	v1 := s.app.Group("/v1")
	v1.Post("/uploads", s.upload)
	v1.Post("/media/process", s.process)
	v1.Post("/media/sanitize", s.sanitize)
	v1.Delete("/media/:mediaId/variants", s.invalidate)
	v1.Get("/jobs/:jobId/media/report.xlsx", s.report)
}

// requestContext attaches a request id and a request-scoped logger to the
// user context every handler reads from.
func (s *Server) requestContext(c *fiber.Ctx) error {
	id := c.Get("X-Request-ID")
	if id == "" {
		id = uuid.New().String()
	}
	c.Set("X-Request-ID", id)

	ctx := common.WithRequestID(c.UserContext(), id)
	ctx = common.WithLogger(ctx, s.logger.With("request_id", id))
	c.SetUserContext(ctx)

	start := s.now()
	err := c.Next()
	if c.Path() != "/health" {
		s.logger.Debug("request", "request_id", id, "method", c.Method(), "path", c.Path(),
			"elapsed_ms", s.now().Sub(start).Milliseconds())
	}
	return err
}

func (s *Server) health(c *fiber.Ctx) error {
	if s.deps.Health != nil {
		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()
		if err := s.deps.Health(ctx); err != nil {
			s.logger.Warn("health check failed", "error", err)
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "unavailable"})
		}
	}
	return c.JSON(fiber.Map{"status": "ok"})
}

// App exposes the fiber app, mainly for app.Test.
func (s *Server) App() *fiber.App { return s.app }

func (s *Server) Listen(addr string) error {
	s.logger.Info("http server listening", "addr", addr)
	return s.app.Listen(addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}
