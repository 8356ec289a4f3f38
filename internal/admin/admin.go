// Package admin implements the operator commands shared by the Slack slash
// commands and the management API: reset, stats, leaderboard and listing.
package admin

import (
	"context"
	"sort"

	"github.com/rs/zerolog"

	"github.com/p-blackswan/shinoa-bot/internal/metrics"
	"github.com/p-blackswan/shinoa-bot/internal/requestid"
	"github.com/p-blackswan/shinoa-bot/internal/session"
	"github.com/p-blackswan/shinoa-bot/internal/store"
)

const (
	// DefaultTopN is the leaderboard size when none is given.
	DefaultTopN = 5
	// MaxTopN caps leaderboard requests.
	MaxTopN = 25
)

// AuditLogger records admin actions. Optional.
type AuditLogger interface {
	LogAudit(ctx context.Context, e *store.AuditEntry) error
}

// Service runs admin operations against the session store.
type Service struct {
	store   *session.Store
	audit   AuditLogger
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// New creates a Service. audit and m may be nil.
func New(st *session.Store, audit AuditLogger, m *metrics.Metrics, logger zerolog.Logger) *Service {
	return &Service{
		store:   st,
		audit:   audit,
		metrics: m,
		logger:  logger.With().Str("component", "admin").Logger(),
	}
}

// Reset forgets userID's conversation and usage counters. It reports whether
// a session existed; resetting an unknown user is not an error.
func (s *Service) Reset(ctx context.Context, actor, userID string) bool {
	existed := s.store.Delete(userID)
	s.metrics.SetSessions(s.store.Count())

	result := store.ResultOK
	if existed {
		s.metrics.RecordEvictions("reset", 1)
	} else {
		result = store.ResultNotFound
	}

	log := requestid.Logger(ctx, s.logger)
	log.Info().
		Str("actor", actor).
		Str("user", userID).
		Bool("existed", existed).
		Msg("session reset")

	if s.audit != nil {
		entry := &store.AuditEntry{
			Actor:     actor,
			Action:    store.ActionReset,
			Target:    userID,
			Result:    result,
			RequestID: requestid.FromContext(ctx),
		}
		if err := s.audit.LogAudit(ctx, entry); err != nil {
			s.logger.Warn().Err(err).Msg("failed to write reset audit entry")
		}
	}
	return existed
}

// Stats returns aggregate usage.
func (s *Service) Stats() session.UsageStats {
	return s.store.Usage().Stats()
}

// Leaderboard returns the n most active users. n is clamped to
// [1, MaxTopN]; 0 means DefaultTopN.
func (s *Service) Leaderboard(n int) []session.UsageEntry {
	return s.store.Usage().TopN(ClampTopN(n))
}

// Sessions lists live sessions, most recently active first.
func (s *Service) Sessions() []session.SessionInfo {
	snap := s.store.Snapshot()
	out := make([]session.SessionInfo, 0, len(snap))
	for _, info := range snap {
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastActiveAt.Equal(out[j].LastActiveAt) {
			return out[i].LastActiveAt.After(out[j].LastActiveAt)
		}
		return out[i].UserID < out[j].UserID
	})
	return out
}

// ClampTopN normalizes a requested leaderboard size.
func ClampTopN(n int) int {
	switch {
	case n == 0:
		return DefaultTopN
	case n < 1:
		return 1
	case n > MaxTopN:
		return MaxTopN
	}
	return n
}
