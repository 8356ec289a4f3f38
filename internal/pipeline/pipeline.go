// Package pipeline turns an inbound message into a reply: it serializes each
// user's session, calls the model under a deadline and absorbs every model
// failure into a fixed in-character fallback.
package pipeline

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	perrors "github.com/p-blackswan/shinoa-bot/internal/errors"
	"github.com/p-blackswan/shinoa-bot/internal/llm"
	"github.com/p-blackswan/shinoa-bot/internal/metrics"
	"github.com/p-blackswan/shinoa-bot/internal/requestid"
	"github.com/p-blackswan/shinoa-bot/internal/retry"
	"github.com/p-blackswan/shinoa-bot/internal/session"
)

const (
	outcomeOK       = "ok"
	outcomeFallback = "fallback"
)

// Config holds pipeline configuration.
type Config struct {
	// MaxHistoryTurns is the number of user+assistant exchanges kept; the
	// history holds at most twice as many entries.
	MaxHistoryTurns int

	// Timeout bounds a whole model call, retries included.
	Timeout time.Duration

	// Retry caps attempts for retryable failures. Defaults to one attempt.
	Retry retry.Config

	// FallbackReply is returned whenever the model call fails.
	FallbackReply string
}

// DefaultConfig returns sane defaults.
func DefaultConfig() Config {
	return Config{
		MaxHistoryTurns: 20,
		Timeout:         30 * time.Second,
		Retry:           retry.DefaultConfig(),
		FallbackReply:   "Tch, my brilliance was too much for the system, I guess.",
	}
}

// Responder runs the reply pipeline against a session store.
type Responder struct {
	store   *session.Store
	model   llm.Generator
	cfg     Config
	metrics *metrics.Metrics
	logger  zerolog.Logger

	// failStreak counts model failures since the last good reply.
	failStreak atomic.Int64
}

// New creates a Responder. m may be nil.
func New(store *session.Store, model llm.Generator, cfg Config, m *metrics.Metrics, logger zerolog.Logger) *Responder {
	d := DefaultConfig()
	if cfg.MaxHistoryTurns <= 0 {
		cfg.MaxHistoryTurns = d.MaxHistoryTurns
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = d.Timeout
	}
	if cfg.FallbackReply == "" {
		cfg.FallbackReply = d.FallbackReply
	}
	return &Responder{
		store:   store,
		model:   model,
		cfg:     cfg,
		metrics: m,
		logger:  logger.With().Str("component", "pipeline").Logger(),
	}
}

// MaxHistoryEntries is the bound on a session's history length.
func (r *Responder) MaxHistoryEntries() int {
	return 2 * r.cfg.MaxHistoryTurns
}

// FailureStreak returns the number of consecutive model failures.
func (r *Responder) FailureStreak() int {
	return int(r.failStreak.Load())
}

// Respond produces the reply for one inbound message from userID. It never
// fails: model errors of any kind yield the fallback reply and leave the
// user's history as it was before the call.
func (r *Responder) Respond(ctx context.Context, userID, text string) string {
	log := requestid.Logger(ctx, r.logger).With().Str("user", userID).Logger()

	unlock, err := r.store.Lock(ctx, userID)
	if err != nil {
		log.Warn().Err(err).Msg("gave up waiting for session, sending fallback")
		r.metrics.RecordReply(outcomeFallback)
		return r.cfg.FallbackReply
	}
	defer unlock()

	// Fetch: the user turn is appended now so the history order matches
	// processing order; it is rolled back if the model fails.
	r.store.GetOrCreate(userID)
	count := r.store.Usage().RecordMessage(userID)
	prior := r.store.History(userID)
	turn := session.Turn{Role: session.RoleUser, Text: text}
	r.store.Append(userID, turn)
	r.metrics.SetSessions(r.store.Count())

	reply, attempts, err := r.invoke(ctx, prior, turn)
	if err != nil {
		r.store.PopTurn(userID)
		kind := perrors.KindOf(err)
		log.Error().
			Err(err).
			Str("kind", string(kind)).
			Int("attempts", attempts).
			Str("model", r.model.ModelID()).
			Msg("model call failed, sending fallback")
		r.metrics.RecordModelError(string(kind))
		r.metrics.RecordReply(outcomeFallback)
		r.failStreak.Add(1)
		return r.cfg.FallbackReply
	}
	r.failStreak.Store(0)

	r.store.Append(userID, session.Turn{Role: session.RoleAssistant, Text: reply})
	dropped := r.store.Trim(userID, r.MaxHistoryEntries())

	log.Debug().
		Int("message_count", count).
		Int("history", len(prior)+2-dropped).
		Int("dropped", dropped).
		Int("attempts", attempts).
		Msg("reply generated")
	r.metrics.RecordReply(outcomeOK)
	return reply
}

func (r *Responder) invoke(ctx context.Context, prior []session.Turn, turn session.Turn) (string, int, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	req := llm.Request{
		Persona: r.store.Persona(),
		History: toMessages(prior),
		Turn:    llm.UserMessage(turn.Text),
	}

	start := time.Now()
	var reply string
	attempts, err := retry.Do(ctx, r.cfg.Retry, func(ctx context.Context) error {
		text, err := r.model.Generate(ctx, req)
		if err != nil {
			return err
		}
		text = strings.TrimSpace(text)
		if text == "" {
			return perrors.NewExternal(r.model.ModelID(), perrors.KindMalformed, 0, perrors.ErrInvalidInput)
		}
		reply = text
		return nil
	})
	r.metrics.ObserveModelCall(time.Since(start).Seconds())

	if err != nil && ctx.Err() == context.DeadlineExceeded && perrors.KindOf(err) != perrors.KindTimeout {
		err = perrors.NewExternal(r.model.ModelID(), perrors.KindTimeout, 0, err)
	}
	return reply, attempts, err
}

func toMessages(turns []session.Turn) []llm.Message {
	out := make([]llm.Message, len(turns))
	for i, t := range turns {
		if t.Role == session.RoleAssistant {
			out[i] = llm.AssistantMessage(t.Text)
			continue
		}
		out[i] = llm.UserMessage(t.Text)
	}
	return out
}
