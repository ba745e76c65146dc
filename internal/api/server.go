// Package api serves the booking flow and its admin surface over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/utils"
	"github.com/rs/zerolog"

	"github.com/p-blackswan/therapy-booking/internal/booking"
	"github.com/p-blackswan/therapy-booking/internal/health"
	"github.com/p-blackswan/therapy-booking/internal/metrics"
	"github.com/p-blackswan/therapy-booking/internal/partneraccess"
	"github.com/p-blackswan/therapy-booking/internal/requestid"
)

// ServerConfig holds configuration for the HTTP server.
type ServerConfig struct {
	ListenAddr  string
	AdminAPIKey string
	RateLimit   RateLimitConfig
	CORSOrigins string
}

// Deps are the collaborators the handlers call.
type Deps struct {
	Store    Store
	Booking  *booking.Service
	Selector *partneraccess.Selector
	Sessions *Sessions // nil disables user routes
	Checker  *health.Checker
	Metrics  *metrics.Metrics
}

// Server is the booking API Fiber application.
type Server struct {
	app    *fiber.App
	logger zerolog.Logger
	config ServerConfig
}

// NewServer creates and configures the server.
func NewServer(cfg ServerConfig, deps Deps, logger zerolog.Logger) *Server {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          customErrorHandler(deps.Metrics, logger),
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
		ReadBufferSize:        8192,
		WriteBufferSize:       8192,
	})

	s := &Server{
		app:    app,
		logger: logger.With().Str("component", "api_server").Logger(),
		config: cfg,
	}

	h := NewHandlers(deps, logger)
	s.setupMiddleware(cfg, deps.Metrics)
	s.setupRoutes(cfg, h, deps)

	return s
}

func (s *Server) setupMiddleware(cfg ServerConfig, m *metrics.Metrics) {
	s.app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))

	s.app.Use(func(c *fiber.Ctx) error {
		ctx, reqID := requestid.New(c.UserContext(), c.Get(requestid.Header))
		c.SetUserContext(ctx)
		c.Set(requestid.Header, reqID)
		c.Locals("request_id", reqID)
		return c.Next()
	})

	if cfg.CORSOrigins != "" {
		s.app.Use(cors.New(cors.Config{
			AllowOrigins: cfg.CORSOrigins,
			AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Request-ID",
			AllowMethods: "GET, POST, PUT, OPTIONS",
		}))
	}

	if cfg.RateLimit.RPS > 0 {
		s.app.Use(newRateLimiter(cfg.RateLimit).middleware())
	}

	s.app.Use(func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			var fe *fiber.Error
			if errors.As(err, &fe) {
				status = fe.Code
			} else {
				status = fiber.StatusInternalServerError
			}
		}

		route := c.Route().Path
		if m != nil {
			m.RecordRequest(route, strconv.Itoa(status), time.Since(start).Seconds())
		}

		if !isProbe(c.Path()) {
			s.logger.Info().
				Str("method", c.Method()).
				Str("path", c.Path()).
				Str("route", route).
				Int("status", status).
				Dur("duration", time.Since(start)).
				Str("ip", c.IP()).
				Interface("request_id", c.Locals("request_id")).
				Msg("api request")
		}
		return err
	})
}

func (s *Server) setupRoutes(cfg ServerConfig, h *Handlers, deps Deps) {
	s.app.Get("/healthz", h.Liveness)
	s.app.Get("/readyz", h.Readiness)

	if deps.Metrics != nil {
		s.app.Get("/metrics", adaptor.HTTPHandler(deps.Metrics.Handler()))
	}

	v1 := s.app.Group("/api/v1")
	v1.Post("/partner-access/resolve", h.ResolvePartnerAccess)

	therapy := v1.Group("/therapy", requireUser(deps.Sessions, s.logger))
	therapy.Get("/book-session", h.BookSession)
	therapy.Post("/book-session/widget", h.OpenWidget)
	therapy.Delete("/book-session/widget", h.CloseWidget)

	admin := v1.Group("/admin", requireAdmin(cfg.AdminAPIKey, s.logger))
	admin.Put("/users/:id", h.UpsertUser)
	admin.Put("/users/:id/partner-accesses", h.ReplacePartnerAccesses)
	admin.Get("/users/:id/partner-accesses", h.ListPartnerAccesses)
	admin.Post("/users/:id/session-token", h.IssueSessionToken)
}

// Start starts the server. Blocks until stopped.
func (s *Server) Start() error {
	addr := s.config.ListenAddr
	if addr == "" {
		addr = ":8080"
	}

	s.logger.Info().Str("addr", addr).Msg("api server starting")
	return s.app.Listen(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown() error {
	s.logger.Info().Msg("api server shutting down")
	return s.app.Shutdown()
}

// App returns the underlying Fiber app (useful for testing).
func (s *Server) App() *fiber.App {
	return s.app
}

func customErrorHandler(m *metrics.Metrics, logger zerolog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		var fe *fiber.Error
		if errors.As(err, &fe) {
			code = fe.Code
		}

		detail := err.Error()
		if code >= fiber.StatusInternalServerError {
			logger.Error().
				Err(err).
				Int("status", code).
				Str("path", c.Path()).
				Str("method", c.Method()).
				Msg("unhandled error")
			if m != nil {
				m.RecordError("api", "internal")
			}
			// Don't leak internal details.
			detail = "An internal error occurred"
		}

		return c.Status(code).JSON(ProblemDetail{
			Type:     problemType(code),
			Title:    httpStatusTitle(code),
			Status:   code,
			Detail:   detail,
			Instance: c.Path(),
		})
	}
}

func problemType(code int) string {
	switch code {
	case fiber.StatusNotFound:
		return "not_found"
	case fiber.StatusMethodNotAllowed:
		return "method_not_allowed"
	case fiber.StatusBadRequest:
		return "bad_request"
	default:
		return "internal_error"
	}
}

func httpStatusTitle(code int) string {
	if msg := utils.StatusMessage(code); msg != "" {
		return msg
	}
	return "Error"
}
