package mgmt

import (
	"context"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/p-blackswan/shinoa-bot/internal/admin"
	"github.com/p-blackswan/shinoa-bot/internal/health"
	"github.com/p-blackswan/shinoa-bot/internal/requestid"
	"github.com/p-blackswan/shinoa-bot/internal/session"
	"github.com/p-blackswan/shinoa-bot/internal/store"
)

const (
	defaultAuditLimit = 50
	maxAuditLimit     = 500
)

// AdminService is the session administration surface.
type AdminService interface {
	Reset(ctx context.Context, actor, userID string) bool
	Stats() session.UsageStats
	Leaderboard(n int) []session.UsageEntry
	Sessions() []session.SessionInfo
}

// Responder produces an in-character reply for one user message.
type Responder interface {
	Respond(ctx context.Context, userID, text string) string
}

// Sweeper runs inactivity sweeps on demand.
type Sweeper interface {
	SweepOnce(ctx context.Context) int
	LastRun() (time.Time, int)
}

// AuditReader lists recent audit entries.
type AuditReader interface {
	RecentAudit(ctx context.Context, action string, limit int) ([]store.AuditEntry, error)
}

// Info is the static part of GET /api/v1/info.
type Info struct {
	Persona         string
	Status          string
	Model           string
	Environment     string
	MaxHistoryTurns int
	RetentionWindow time.Duration
	SweepInterval   time.Duration
	AuthMode        string
	AuditSchema     string
}

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	admin     AdminService
	responder Responder
	sweeper   Sweeper
	audit     AuditReader
	checker   *health.Checker
	info      Info
	logger    zerolog.Logger
	startTime time.Time
}

// NewHandlers creates a new Handlers instance. responder, sweeper and audit
// may be nil; their routes then answer 503.
func NewHandlers(deps Deps, logger zerolog.Logger) *Handlers {
	return &Handlers{
		admin:     deps.Admin,
		responder: deps.Responder,
		sweeper:   deps.Sweeper,
		audit:     deps.Audit,
		checker:   deps.Checker,
		info:      deps.Info,
		logger:    logger.With().Str("component", "handlers").Logger(),
		startTime: time.Now(),
	}
}

// Stats handles GET /api/v1/stats.
func (h *Handlers) Stats(c *fiber.Ctx) error {
	return c.JSON(h.admin.Stats())
}

// Leaderboard handles GET /api/v1/leaderboard.
func (h *Handlers) Leaderboard(c *fiber.Ctx) error {
	n := c.QueryInt("n", 0)
	if n < 0 {
		return problemResponse(c, fiber.StatusBadRequest,
			"invalid_limit", "Bad Request",
			"n must be a positive integer")
	}
	entries := h.admin.Leaderboard(n)
	if entries == nil {
		entries = []session.UsageEntry{}
	}
	return c.JSON(LeaderboardResponse{Entries: entries, Limit: admin.ClampTopN(n)})
}

// ListSessions handles GET /api/v1/sessions.
func (h *Handlers) ListSessions(c *fiber.Ctx) error {
	sessions := h.admin.Sessions()
	if sessions == nil {
		sessions = []session.SessionInfo{}
	}
	return c.JSON(SessionListResponse{Sessions: sessions, Total: len(sessions)})
}

// ResetSession handles DELETE /api/v1/sessions/:user.
func (h *Handlers) ResetSession(c *fiber.Ctx) error {
	userID := strings.TrimSpace(c.Params("user"))
	if userID == "" {
		return problemResponse(c, fiber.StatusBadRequest,
			"missing_user", "Bad Request",
			"User ID is required")
	}

	if !h.admin.Reset(c.UserContext(), actor(c), userID) {
		return problemResponse(c, fiber.StatusNotFound,
			"session_not_found", "Not Found",
			"No session for user: "+userID)
	}
	return c.JSON(ResetResponse{UserID: userID, Reset: true})
}

// Sweep handles POST /api/v1/sweep.
func (h *Handlers) Sweep(c *fiber.Ctx) error {
	if h.sweeper == nil {
		return unavailable(c, "Sweeper is not configured")
	}
	return c.JSON(SweepResponse{Evicted: h.sweeper.SweepOnce(c.UserContext())})
}

// Chat handles POST /api/v1/chat.
func (h *Handlers) Chat(c *fiber.Ctx) error {
	if h.responder == nil {
		return unavailable(c, "Responder is not configured")
	}

	var req ChatRequest
	if err := c.BodyParser(&req); err != nil {
		return problemResponse(c, fiber.StatusBadRequest,
			"invalid_body", "Bad Request",
			"Invalid request body: "+err.Error())
	}
	req.UserID = strings.TrimSpace(req.UserID)
	if req.UserID == "" {
		return problemResponse(c, fiber.StatusBadRequest,
			"missing_user", "Bad Request",
			"user_id is required")
	}
	if strings.TrimSpace(req.Message) == "" {
		return problemResponse(c, fiber.StatusBadRequest,
			"missing_message", "Bad Request",
			"Message is required")
	}

	ctx := c.UserContext()
	reply := h.responder.Respond(ctx, req.UserID, req.Message)
	return c.JSON(ChatResponse{
		UserID:    req.UserID,
		Reply:     reply,
		RequestID: requestid.FromContext(ctx),
	})
}

// Audit handles GET /api/v1/audit.
func (h *Handlers) Audit(c *fiber.Ctx) error {
	if h.audit == nil {
		return unavailable(c, "Audit log is disabled")
	}

	limit := c.QueryInt("limit", defaultAuditLimit)
	if limit < 1 {
		limit = defaultAuditLimit
	}
	if limit > maxAuditLimit {
		limit = maxAuditLimit
	}

	entries, err := h.audit.RecentAudit(c.UserContext(), c.Query("action"), limit)
	if err != nil {
		return err
	}
	if entries == nil {
		entries = []store.AuditEntry{}
	}
	return c.JSON(AuditResponse{Entries: entries})
}

// GetInfo handles GET /api/v1/info.
func (h *Handlers) GetInfo(c *fiber.Ctx) error {
	resp := InfoResponse{
		Persona:         h.info.Persona,
		Status:          h.info.Status,
		Model:           h.info.Model,
		Environment:     h.info.Environment,
		MaxHistoryTurns: h.info.MaxHistoryTurns,
		RetentionWindow: h.info.RetentionWindow.String(),
		SweepInterval:   h.info.SweepInterval.String(),
		AuthMode:        h.info.AuthMode,
		AuditSchema:     h.info.AuditSchema,
		Uptime:          time.Since(h.startTime).Round(time.Second).String(),
	}
	if h.checker != nil {
		// Last known results; /api/v1/health re-runs them.
		cached := h.checker.Cached()
		resp.Checks = make(map[string]string, len(cached))
		for name, status := range cached {
			resp.Checks[name] = string(status)
		}
	}
	if h.sweeper != nil {
		at, n := h.sweeper.LastRun()
		if !at.IsZero() {
			resp.LastSweep = at.UTC().Format(time.RFC3339)
		}
		resp.LastEvicted = n
	}
	return c.JSON(resp)
}

// HealthDetail handles GET /api/v1/health.
func (h *Handlers) HealthDetail(c *fiber.Ctx) error {
	results := h.checker.RunAll(c.UserContext())

	checks := make(map[string]string, len(results))
	overall := "ok"
	for name, status := range results {
		checks[name] = string(status)
		if status == health.StatusDown {
			overall = "degraded"
		}
	}

	return c.JSON(HealthDetailResponse{
		Status: overall,
		Checks: checks,
		Uptime: time.Since(h.startTime).Round(time.Second).String(),
	})
}

// Liveness handles GET /healthz.
func (h *Handlers) Liveness(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

// Readiness handles GET /readyz.
func (h *Handlers) Readiness(c *fiber.Ctx) error {
	if !h.checker.IsReady(c.UserContext()) {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status": "not_ready",
		})
	}
	return c.JSON(fiber.Map{"status": "ready"})
}

func unavailable(c *fiber.Ctx, detail string) error {
	return problemResponse(c, fiber.StatusServiceUnavailable,
		"unavailable", "Service Unavailable", detail)
}
