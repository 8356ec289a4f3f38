// Package cleanup evicts conversation sessions that have been idle longer
// than the retention window.
package cleanup

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/p-blackswan/shinoa-bot/internal/metrics"
	"github.com/p-blackswan/shinoa-bot/internal/session"
	"github.com/p-blackswan/shinoa-bot/internal/store"
)

const (
	auditActor       = "sweeper"
	evictionReason   = "inactive"
	maxAuditedIDs    = 20
	defaultPrunerKey = "pruner"
)

type namedPruner struct {
	name string
	p    Pruner
}

// Option configures a Sweeper.
type Option func(*Sweeper)

// WithMetrics records sweep durations and eviction counts.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Sweeper) { s.metrics = m }
}

// WithAudit writes an audit entry for every cycle that evicted sessions.
func WithAudit(a AuditLogger) Option {
	return func(s *Sweeper) { s.audit = a }
}

// WithPruner adds a hook run at the end of every cycle.
func WithPruner(name string, p Pruner) Option {
	return func(s *Sweeper) {
		if name == "" {
			name = defaultPrunerKey
		}
		s.pruners = append(s.pruners, namedPruner{name: name, p: p})
	}
}

// Sweeper periodically evicts stale sessions from a session.Store.
type Sweeper struct {
	cfg     Config
	store   *session.Store
	metrics *metrics.Metrics
	audit   AuditLogger
	pruners []namedPruner
	logger  zerolog.Logger

	cycle sync.Mutex // held for the duration of one sweep

	mu       sync.Mutex
	cancel   context.CancelFunc
	done     chan struct{}
	running  bool
	lastRun  time.Time
	lastEvct int
}

// New creates a Sweeper. Zero config fields take their defaults.
func New(cfg Config, st *session.Store, logger zerolog.Logger, opts ...Option) *Sweeper {
	d := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = d.Interval
	}
	if cfg.RetentionWindow <= 0 {
		cfg.RetentionWindow = d.RetentionWindow
	}
	s := &Sweeper{
		cfg:    cfg,
		store:  st,
		logger: logger.With().Str("component", "cleanup").Logger(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Start launches the periodic loop. It sweeps once immediately, then on
// every interval until ctx is cancelled or Stop is called. Calling Start on
// a running sweeper does nothing.
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running = true

	go s.run(loopCtx, s.done)

	s.logger.Info().
		Dur("interval", s.cfg.Interval).
		Dur("retention", s.cfg.RetentionWindow).
		Msg("sweeper started")
}

// Stop cancels the loop and waits for it to exit.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	cancel()
	<-done
}

// IsRunning reports whether the loop is active.
func (s *Sweeper) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// LastRun returns when the last completed cycle started and how many
// sessions it evicted.
func (s *Sweeper) LastRun() (time.Time, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRun, s.lastEvct
}

func (s *Sweeper) run(ctx context.Context, done chan struct{}) {
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		close(done)
	}()

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.SweepOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("sweeper stopping")
			return
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce runs a single eviction cycle and returns how many sessions were
// evicted. If another cycle is in progress it returns 0 without sweeping.
func (s *Sweeper) SweepOnce(ctx context.Context) int {
	if !s.cycle.TryLock() {
		s.logger.Debug().Msg("sweep already in progress, skipping")
		return 0
	}
	defer s.cycle.Unlock()

	start := time.Now()
	now := s.store.Now()
	cutoff := now.Add(-s.cfg.RetentionWindow)

	evicted := s.store.EvictInactive(ctx, cutoff)
	elapsed := time.Since(start)

	s.metrics.ObserveSweep(elapsed.Seconds())
	s.metrics.RecordEvictions(evictionReason, len(evicted))
	s.metrics.SetSessions(s.store.Count())

	if len(evicted) > 0 {
		s.logger.Info().
			Int("evicted", len(evicted)).
			Int("remaining", s.store.Count()).
			Dur("duration", elapsed).
			Msg("evicted inactive sessions")
		s.recordAudit(ctx, now, evicted)
	} else {
		s.logger.Debug().Int("sessions", s.store.Count()).Msg("no inactive sessions")
	}

	for _, np := range s.pruners {
		if ctx.Err() != nil {
			break
		}
		if err := np.p.Prune(ctx); err != nil {
			s.logger.Warn().Err(err).Str("pruner", np.name).Msg("prune failed")
		}
	}

	s.mu.Lock()
	s.lastRun = now
	s.lastEvct = len(evicted)
	s.mu.Unlock()

	return len(evicted)
}

func (s *Sweeper) recordAudit(ctx context.Context, now time.Time, evicted []string) {
	if s.audit == nil {
		return
	}
	ids := evicted
	suffix := ""
	if len(ids) > maxAuditedIDs {
		suffix = fmt.Sprintf(" (+%d more)", len(ids)-maxAuditedIDs)
		ids = ids[:maxAuditedIDs]
	}
	entry := &store.AuditEntry{
		Actor:     auditActor,
		Action:    store.ActionSweep,
		Result:    store.ResultOK,
		Details:   fmt.Sprintf("evicted=%d users=%s%s", len(evicted), strings.Join(ids, ","), suffix),
		CreatedAt: now,
	}
	if err := s.audit.LogAudit(ctx, entry); err != nil {
		s.logger.Warn().Err(err).Msg("failed to write sweep audit entry")
	}
}
