package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/p-blackswan/shinoa-bot/internal/admin"
	"github.com/p-blackswan/shinoa-bot/internal/bridge"
	"github.com/p-blackswan/shinoa-bot/internal/cleanup"
	"github.com/p-blackswan/shinoa-bot/internal/config"
	"github.com/p-blackswan/shinoa-bot/internal/health"
	"github.com/p-blackswan/shinoa-bot/internal/llm"
	"github.com/p-blackswan/shinoa-bot/internal/metrics"
	"github.com/p-blackswan/shinoa-bot/internal/mgmt"
	"github.com/p-blackswan/shinoa-bot/internal/persona"
	"github.com/p-blackswan/shinoa-bot/internal/pipeline"
	"github.com/p-blackswan/shinoa-bot/internal/retry"
	"github.com/p-blackswan/shinoa-bot/internal/session"
	slackpkg "github.com/p-blackswan/shinoa-bot/internal/slack"
	"github.com/p-blackswan/shinoa-bot/internal/store"
)

func main() {
	// Setup structured logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	logger := zerolog.New(os.Stdout).With().Timestamp().Caller().Logger()

	if os.Getenv("ENVIRONMENT") == "development" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	log.Logger = logger

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err == nil {
		zerolog.SetGlobalLevel(level)
	}

	p, err := persona.Load(cfg.PersonaFile)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load persona")
	}

	logger.Info().
		Str("environment", cfg.Environment).
		Str("persona", p.Name).
		Str("status", p.Status).
		Str("model", cfg.GeminiModel).
		Int("http_port", cfg.HTTPPort).
		Str("mgmt_addr", cfg.MgmtListenAddr).
		Bool("slack_enabled", cfg.SlackEnabled()).
		Bool("audit_enabled", cfg.AuditEnabled()).
		Msg("starting shinoa")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	m := metrics.New()
	checker := health.NewChecker(logger)
	sessions := session.New(p.Instruction)
	checker.Register("sessions", health.SessionsCheck(sessions.Count, cfg.MaxSessions))

	model, err := llm.NewGeminiClient(ctx, cfg.GeminiAPIKey,
		llm.WithModel(cfg.GeminiModel),
		llm.WithMaxTokens(cfg.GeminiMaxOutputTokens),
		llm.WithLogger(logger),
	)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init Gemini client")
	}

	retryCfg := retry.DefaultConfig()
	retryCfg.MaxAttempts = cfg.ModelMaxAttempts
	responder := pipeline.New(sessions, model, pipeline.Config{
		MaxHistoryTurns: cfg.MaxHistoryTurns,
		Timeout:         cfg.ResponseTimeout,
		Retry:           retryCfg,
		FallbackReply:   p.FallbackReply,
	}, m, logger)
	checker.Register("model", health.ModelCheck(responder.FailureStreak, cfg.ModelFailureStreak))

	// Audit trail (optional)
	var auditStore *store.Store
	var adminAudit admin.AuditLogger
	var sweepAudit cleanup.AuditLogger
	var mgmtAudit mgmt.AuditReader
	var auditSchema string
	if cfg.AuditEnabled() {
		auditStore, err = store.New(cfg.AuditDBPath, logger)
		if err != nil {
			logger.Fatal().Err(err).Str("path", cfg.AuditDBPath).Msg("failed to open audit store")
		}
		auditSchema, err = auditStore.SchemaVersion()
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to read audit schema version")
		}
		logger.Info().Str("path", cfg.AuditDBPath).Str("schema", auditSchema).Msg("audit store ready")
		adminAudit, sweepAudit, mgmtAudit = auditStore, auditStore, auditStore
		checker.Register("audit", health.AuditCheck(auditStore))
	} else {
		logger.Info().Msg("AUDIT_DB_PATH not set, audit trail disabled")
	}

	adminSvc := admin.New(sessions, adminAudit, m, logger)

	sweepOpts := []cleanup.Option{cleanup.WithMetrics(m)}
	if sweepAudit != nil {
		sweepOpts = append(sweepOpts,
			cleanup.WithAudit(sweepAudit),
			cleanup.WithPruner("audit_retention", cleanup.PrunerFunc(func(ctx context.Context) error {
				_, err := auditStore.RunRetention(ctx, cfg.AuditRetention)
				return err
			})),
		)
	}

	// Slack Socket Mode (optional)
	var slackApp *slackpkg.App
	var slackBridge *bridge.Bridge
	var slackHandler *slackpkg.Handler
	if cfg.SlackEnabled() {
		slackMiddleware := slackpkg.NewMiddleware(logger, cfg.SlackRateLimit, cfg.SlackRateWindow, cfg.AdminUserList())
		slackHandler = slackpkg.NewHandler(logger, slackMiddleware, slackpkg.Replies{
			Reset:    p.ResetReply,
			NotFound: p.NotFoundReply,
			Denied:   p.DeniedReply,
		}, m)

		slackApp, err = slackpkg.NewApp(cfg.SlackBotToken, cfg.SlackAppToken, logger, slackHandler)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to init Slack app")
		}

		botUserID, err := slackApp.Identify()
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to resolve Slack bot identity")
		}

		bridgeCfg := bridge.DefaultConfig()
		bridgeCfg.BotUserID = botUserID
		bridgeCfg.MaxConcurrent = cfg.BridgeMaxConcurrent
		bridgeCfg.EmptyPrompt = p.EmptyPrompt
		bridgeCfg.ErrorReply = p.ErrorReply
		slackBridge = bridge.New(bridgeCfg, responder, bridge.NewSlackPoster(slackApp.API()), m, logger)
		slackBridge.SetRateLimiter(slackMiddleware)

		directory := slackpkg.NewDirectory(slackApp.API(), m, logger)

		slackHandler.SetForwarder(slackBridge)
		slackHandler.SetAdmin(adminSvc)
		slackHandler.SetNames(directory)

		sweepOpts = append(sweepOpts,
			cleanup.WithPruner("slack_rate_limits", cleanup.PrunerFunc(func(context.Context) error {
				slackMiddleware.Prune()
				return nil
			})),
			cleanup.WithPruner("slack_names", cleanup.PrunerFunc(func(context.Context) error {
				directory.Prune()
				return nil
			})),
		)
	} else {
		logger.Info().Msg("Slack not configured, running in API-only mode")
	}

	sweeper := cleanup.New(cleanup.Config{
		Interval:        cfg.SweepInterval,
		RetentionWindow: cfg.RetentionWindow,
	}, sessions, logger, sweepOpts...)
	sweeper.Start(ctx)
	checker.Register("sweeper", health.SweeperCheck(sweeper.IsRunning))

	// HTTP server for keep-alive, health and metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/", health.KeepAliveHandler(p.KeepAlive))
	mux.HandleFunc("/health", health.LivenessHandler())
	mux.HandleFunc("/ready", checker.ReadinessHandler())
	mux.Handle("/metrics", m.Handler())

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	mgmtServer := mgmt.NewServer(mgmt.ServerConfig{
		ListenAddr: cfg.MgmtListenAddr,
		AuthConfig: mgmt.AuthConfig{
			Mode:      cfg.MgmtAuthMode,
			APIKey:    cfg.MgmtAPIKey,
			JWTSecret: cfg.MgmtJWTSecret,
		},
		RateLimit: mgmt.RateLimitConfig{
			RPS:   cfg.MgmtRateLimitRPS,
			Burst: cfg.MgmtRateLimitBurst,
		},
		CORSOrigins: cfg.CORSOriginList(),
	}, mgmt.Deps{
		Admin:     adminSvc,
		Responder: responder,
		Sweeper:   sweeper,
		Audit:     mgmtAudit,
		Checker:   checker,
		Metrics:   m,
		Info: mgmt.Info{
			Persona:         p.Name,
			Status:          p.Status,
			Model:           model.ModelID(),
			Environment:     cfg.Environment,
			MaxHistoryTurns: cfg.MaxHistoryTurns,
			RetentionWindow: cfg.RetentionWindow,
			SweepInterval:   cfg.SweepInterval,
			AuditSchema:     auditSchema,
		},
	}, logger)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		logger.Info().Int("port", cfg.HTTPPort).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := mgmtServer.Start(); err != nil {
			logger.Error().Err(err).Msg("management API server error")
		}
	}()

	if slackApp != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := slackApp.Run(ctx); err != nil {
				logger.Error().Err(err).Msg("Slack Socket Mode error")
			}
		}()
	}

	sig := <-sigCh
	logger.Info().Str("signal", sig.String()).Msg("shutting down gracefully")

	// Stop taking new events; replies already in flight keep going.
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if slackBridge != nil {
		if err := slackBridge.Wait(shutdownCtx); err != nil {
			logger.Warn().Err(err).Int("in_flight", slackBridge.InFlight()).Msg("gave up waiting for in-flight replies")
		}
	}

	if slackHandler != nil {
		if err := slackHandler.Wait(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("gave up waiting for slash commands")
		}
	}

	sweeper.Stop()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown error")
	}
	if err := mgmtServer.Shutdown(); err != nil {
		logger.Error().Err(err).Msg("management API server shutdown error")
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info().Msg("all goroutines stopped")
	case <-shutdownCtx.Done():
		logger.Warn().Msg("forced shutdown after timeout")
	}

	if auditStore != nil {
		if err := auditStore.Close(); err != nil {
			logger.Error().Err(err).Msg("audit store close error")
		}
	}

	logger.Info().Msg("shinoa stopped")
}
