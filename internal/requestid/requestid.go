// Package requestid carries a per-message correlation ID through context so
// that every log line for one inbound message can be joined up.
package requestid

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Header is the HTTP header used to accept and echo request IDs.
const Header = "X-Request-ID"

type ctxKey struct{}

// WithRequestID returns a context carrying id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext returns the request ID stored in ctx, or "" if there is none.
func FromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

// New generates a fresh ID and returns the enriched context and the ID.
func New(ctx context.Context) (context.Context, string) {
	id := uuid.NewString()
	return WithRequestID(ctx, id), id
}

// Ensure returns ctx unchanged if it already carries an ID, otherwise it
// attaches a new one.
func Ensure(ctx context.Context) (context.Context, string) {
	if id := FromContext(ctx); id != "" {
		return ctx, id
	}
	return New(ctx)
}

// Logger returns logger with the request ID of ctx attached, if any.
func Logger(ctx context.Context, logger zerolog.Logger) zerolog.Logger {
	id := FromContext(ctx)
	if id == "" {
		return logger
	}
	return logger.With().Str("request_id", id).Logger()
}
