package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Audited actions.
const (
	ActionReset = "session.reset"
	ActionSweep = "session.sweep"
)

// Results.
const (
	ResultOK       = "ok"
	ResultNotFound = "not_found"
	ResultDenied   = "denied"
)

// AuditEntry is one row of the audit trail.
type AuditEntry struct {
	ID        int64     `json:"id"`
	Actor     string    `json:"actor"`
	Action    string    `json:"action"`
	Target    string    `json:"target,omitempty"`
	Result    string    `json:"result"`
	Details   string    `json:"details,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// LogAudit appends an entry. A zero CreatedAt is stamped with the current time.
func (s *Store) LogAudit(ctx context.Context, e *AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now()
	}

	res, err := s.db.ExecContext(ctx, `
	INSERT INTO audit_log (actor, action, target, result, details, request_id, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		e.Actor, e.Action,
		sql.NullString{String: e.Target, Valid: e.Target != ""},
		e.Result,
		sql.NullString{String: e.Details, Valid: e.Details != ""},
		sql.NullString{String: e.RequestID, Valid: e.RequestID != ""},
		e.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to save audit entry: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		e.ID = id
	}
	return nil
}

// RecentAudit returns up to limit entries, newest first. An empty action
// matches every action.
func (s *Store) RecentAudit(ctx context.Context, action string, limit int) ([]AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
	SELECT id, actor, action, target, result, details, request_id, created_at
	FROM audit_log
	`
	var args []interface{}
	if action != "" {
		query += ` WHERE action = ?`
		args = append(args, action)
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	defer rows.Close()

	entries := []AuditEntry{}
	for rows.Next() {
		var (
			e                          AuditEntry
			target, details, requestID sql.NullString
			createdAt                  int64
		)
		if err := rows.Scan(&e.ID, &e.Actor, &e.Action, &target, &e.Result, &details, &requestID, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		e.Target = target.String
		e.Details = details.String
		e.RequestID = requestID.String
		e.CreatedAt = time.UnixMilli(createdAt).UTC()
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit entries: %w", err)
	}
	return entries, nil
}
