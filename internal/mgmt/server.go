// Package mgmt is the operator HTTP API: session administration, manual
// sweeps, a chat test hook and the audit trail.
package mgmt

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog"

	"github.com/p-blackswan/shinoa-bot/internal/health"
	"github.com/p-blackswan/shinoa-bot/internal/metrics"
	"github.com/p-blackswan/shinoa-bot/internal/requestid"
)

const localRequestID = "request_id"

// ServerConfig holds configuration for the management API server.
type ServerConfig struct {
	ListenAddr  string
	AuthConfig  AuthConfig
	RateLimit   RateLimitConfig
	CORSOrigins []string
}

// Deps are the services behind the routes. Only Admin and Checker are
// required.
type Deps struct {
	Admin     AdminService
	Responder Responder
	Sweeper   Sweeper
	Audit     AuditReader
	Checker   *health.Checker
	Metrics   *metrics.Metrics
	Info      Info
}

// Server is the management API Fiber application.
type Server struct {
	app      *fiber.App
	handlers *Handlers
	logger   zerolog.Logger
	config   ServerConfig
}

// NewServer creates and configures a new management API server.
func NewServer(cfg ServerConfig, deps Deps, logger zerolog.Logger) *Server {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          customErrorHandler(logger),
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
		ReadBufferSize:        8192,
		WriteBufferSize:       8192,
	})

	if deps.Info.AuthMode == "" {
		deps.Info.AuthMode = cfg.AuthConfig.Mode
	}
	handlers := NewHandlers(deps, logger)

	s := &Server{
		app:      app,
		handlers: handlers,
		logger:   logger.With().Str("component", "mgmt_server").Logger(),
		config:   cfg,
	}

	s.setupMiddleware(cfg, logger)
	s.setupRoutes(handlers, deps.Metrics)

	return s
}

func (s *Server) setupMiddleware(cfg ServerConfig, logger zerolog.Logger) {
	s.app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))

	// Request ID: honour the caller's, otherwise mint one.
	s.app.Use(func(c *fiber.Ctx) error {
		ctx := c.UserContext()
		reqID := strings.TrimSpace(c.Get(requestid.Header))
		if reqID != "" {
			ctx = requestid.WithRequestID(ctx, reqID)
		} else {
			ctx, reqID = requestid.New(ctx)
		}
		c.SetUserContext(ctx)
		c.Set(requestid.Header, reqID)
		c.Locals(localRequestID, reqID)
		return c.Next()
	})

	if len(cfg.CORSOrigins) > 0 {
		s.app.Use(cors.New(cors.Config{
			AllowOrigins: strings.Join(cfg.CORSOrigins, ","),
			AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Request-ID",
			AllowMethods: "GET, POST, DELETE, OPTIONS",
		}))
	}

	if cfg.RateLimit.RPS > 0 {
		s.app.Use(NewRateLimitMiddleware(cfg.RateLimit))
	}

	s.app.Use(NewAuthMiddleware(cfg.AuthConfig, logger))

	s.app.Use(func(c *fiber.Ctx) error {
		path := c.Path()
		if isProbe(path) {
			return c.Next()
		}

		logger.Info().
			Str("method", c.Method()).
			Str("path", path).
			Str("ip", c.IP()).
			Str("request_id", fmt.Sprintf("%v", c.Locals(localRequestID))).
			Msg("mgmt api request")

		return c.Next()
	})
}

func (s *Server) setupRoutes(h *Handlers, m *metrics.Metrics) {
	s.app.Get("/healthz", h.Liveness)
	s.app.Get("/readyz", h.Readiness)
	if m != nil {
		s.app.Get("/metrics", adaptor.HTTPHandler(m.Handler()))
	}

	v1 := s.app.Group("/api/v1")

	v1.Get("/stats", h.Stats)
	v1.Get("/leaderboard", h.Leaderboard)
	v1.Get("/sessions", h.ListSessions)
	v1.Delete("/sessions/:user", requireRole(RoleOperator), h.ResetSession)
	v1.Post("/sweep", requireRole(RoleOperator), h.Sweep)
	v1.Post("/chat", requireRole(RoleOperator), h.Chat)
	v1.Get("/audit", requireRole(RoleAdmin), h.Audit)
	v1.Get("/info", h.GetInfo)
	v1.Get("/health", h.HealthDetail)
}

// Start starts the server. Blocks until stopped.
func (s *Server) Start() error {
	addr := s.config.ListenAddr
	if addr == "" {
		addr = ":8090"
	}

	s.logger.Info().Str("addr", addr).Msg("management API server starting")
	return s.app.Listen(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown() error {
	s.logger.Info().Msg("management API server shutting down")
	return s.app.Shutdown()
}

// App returns the underlying Fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

func customErrorHandler(logger zerolog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		title := "Internal Server Error"
		errType := "internal_error"
		detail := "An internal error occurred"

		var fe *fiber.Error
		if errors.As(err, &fe) {
			code = fe.Code
			if code != fiber.StatusInternalServerError {
				errType = "http_error"
				title = fe.Message
				detail = fe.Message
			}
		}

		logger.Error().
			Err(err).
			Int("status", code).
			Str("path", c.Path()).
			Str("method", c.Method()).
			Msg("unhandled error")

		return problemResponse(c, code, errType, title, detail)
	}
}
