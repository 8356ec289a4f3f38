package cleanup

import (
	"context"
	"time"

	"github.com/p-blackswan/shinoa-bot/internal/store"
)

// Config holds configuration for the eviction sweeper.
type Config struct {
	Interval        time.Duration // default 1h
	RetentionWindow time.Duration // default 30 days
}

// DefaultConfig returns sane defaults.
func DefaultConfig() Config {
	return Config{
		Interval:        time.Hour,
		RetentionWindow: 30 * 24 * time.Hour,
	}
}

// Pruner trims auxiliary state at the end of every sweep cycle.
type Pruner interface {
	Prune(ctx context.Context) error
}

// PrunerFunc adapts a function to Pruner.
type PrunerFunc func(ctx context.Context) error

// Prune calls f.
func (f PrunerFunc) Prune(ctx context.Context) error { return f(ctx) }

// AuditLogger records sweeps that evicted something.
type AuditLogger interface {
	LogAudit(ctx context.Context, e *store.AuditEntry) error
}
