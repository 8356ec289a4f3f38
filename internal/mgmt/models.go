package mgmt

import (
	"github.com/p-blackswan/shinoa-bot/internal/session"
	"github.com/p-blackswan/shinoa-bot/internal/store"
)

// ChatRequest is the body of POST /api/v1/chat.
type ChatRequest struct {
	UserID  string `json:"user_id"`
	Message string `json:"message"`
}

// ChatResponse is returned by POST /api/v1/chat.
type ChatResponse struct {
	UserID    string `json:"user_id"`
	Reply     string `json:"reply"`
	RequestID string `json:"request_id,omitempty"`
}

// LeaderboardResponse is returned by GET /api/v1/leaderboard.
type LeaderboardResponse struct {
	Entries []session.UsageEntry `json:"entries"`
	Limit   int                  `json:"limit"`
}

// SessionListResponse is returned by GET /api/v1/sessions.
type SessionListResponse struct {
	Sessions []session.SessionInfo `json:"sessions"`
	Total    int                   `json:"total"`
}

// ResetResponse is returned by DELETE /api/v1/sessions/:user.
type ResetResponse struct {
	UserID string `json:"user_id"`
	Reset  bool   `json:"reset"`
}

// SweepResponse is returned by POST /api/v1/sweep.
type SweepResponse struct {
	Evicted int `json:"evicted"`
}

// AuditResponse is returned by GET /api/v1/audit.
type AuditResponse struct {
	Entries []store.AuditEntry `json:"entries"`
}

// InfoResponse is returned by GET /api/v1/info.
type InfoResponse struct {
	Persona         string            `json:"persona"`
	Status          string            `json:"status"`
	Model           string            `json:"model"`
	Environment     string            `json:"environment"`
	MaxHistoryTurns int               `json:"max_history_turns"`
	RetentionWindow string            `json:"retention_window"`
	SweepInterval   string            `json:"sweep_interval"`
	LastSweep       string            `json:"last_sweep,omitempty"`
	LastEvicted     int               `json:"last_evicted"`
	AuthMode        string            `json:"auth_mode"`
	AuditSchema     string            `json:"audit_schema,omitempty"`
	Checks          map[string]string `json:"checks,omitempty"`
	Uptime          string            `json:"uptime"`
}

// HealthDetailResponse is returned by GET /api/v1/health.
type HealthDetailResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
	Uptime string            `json:"uptime"`
}

// ProblemDetail follows RFC 7807 for error responses.
type ProblemDetail struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
}
