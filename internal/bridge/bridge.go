// Package bridge connects inbound Slack mentions to the reply pipeline and
// posts the persona's answer back into the thread.
package bridge

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/p-blackswan/shinoa-bot/internal/metrics"
	"github.com/p-blackswan/shinoa-bot/internal/requestid"
)

// SlackPoster abstracts posting messages to Slack.
type SlackPoster interface {
	PostMessage(channelID string, text string, threadTS string) (string, error)
	AddReaction(channelID string, messageTS string, emoji string) error
	RemoveReaction(channelID string, messageTS string, emoji string) error
}

// Responder produces the reply for one message. It must not fail.
type Responder interface {
	Respond(ctx context.Context, userID, text string) string
}

// RateLimiter decides whether a user may be answered right now.
type RateLimiter interface {
	Allow(key string) bool
}

// Message is one inbound Slack message addressed to the bot.
type Message struct {
	ChannelID string
	UserID    string
	Text      string
	ThreadTS  string // empty for top-level messages
	MessageTS string
}

// Config holds bridge configuration.
type Config struct {
	// BotUserID is the bot's own Slack user ID, used to skip its own
	// messages and to strip mentions. Usually set after auth.test.
	BotUserID string

	// MaxConcurrent bounds in-flight replies; extra messages are dropped.
	MaxConcurrent int

	// EmptyPrompt replaces a message that is nothing but a mention.
	EmptyPrompt string

	// ErrorReply is posted if producing a reply panics.
	ErrorReply string

	// ThinkingEmoji is the reaction shown while a reply is being produced.
	// Empty disables it.
	ThinkingEmoji string

	// MaxMessageLen splits long replies into several posts.
	MaxMessageLen int
}

// DefaultConfig returns sane defaults.
func DefaultConfig() Config {
	return Config{
		MaxConcurrent: 16,
		EmptyPrompt:   "Hey",
		ErrorReply:    "Ugh, my teasing plan backfired! Try again, human.",
		ThinkingEmoji: "hourglass_flowing_sand",
		MaxMessageLen: 3000,
	}
}

// Bridge forwards Slack mentions to a Responder and relays the replies.
type Bridge struct {
	cfg       Config
	responder Responder
	poster    SlackPoster
	limiter   RateLimiter
	metrics   *metrics.Metrics
	sem       chan struct{}
	wg        sync.WaitGroup
	logger    zerolog.Logger

	mu        sync.RWMutex
	botUserID string
	mentionRe *regexp.Regexp
}

// New creates a new Bridge. m may be nil.
func New(cfg Config, responder Responder, poster SlackPoster, m *metrics.Metrics, logger zerolog.Logger) *Bridge {
	d := DefaultConfig()
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = d.MaxConcurrent
	}
	if cfg.EmptyPrompt == "" {
		cfg.EmptyPrompt = d.EmptyPrompt
	}
	if cfg.ErrorReply == "" {
		cfg.ErrorReply = d.ErrorReply
	}
	if cfg.MaxMessageLen <= 0 {
		cfg.MaxMessageLen = d.MaxMessageLen
	}

	b := &Bridge{
		cfg:       cfg,
		responder: responder,
		poster:    poster,
		metrics:   m,
		sem:       make(chan struct{}, cfg.MaxConcurrent),
		logger:    logger.With().Str("component", "bridge").Logger(),
	}
	b.SetBotUserID(cfg.BotUserID)
	return b
}

// SetBotUserID records the bot's own user ID.
func (b *Bridge) SetBotUserID(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.botUserID = id
	b.mentionRe = nil
	if id != "" {
		// Slack may render a mention as <@U123> or <@U123|name>.
		b.mentionRe = regexp.MustCompile(`<@` + regexp.QuoteMeta(id) + `(\|[^>]*)?>`)
	}
}

// SetRateLimiter installs an optional per-user limiter.
func (b *Bridge) SetRateLimiter(l RateLimiter) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.limiter = l
}

// Prompt returns the text handed to the pipeline for raw: every mention of
// the bot is removed, and a message left empty becomes the empty prompt.
func (b *Bridge) Prompt(raw string) string {
	b.mu.RLock()
	re := b.mentionRe
	b.mu.RUnlock()

	text := raw
	if re != nil {
		text = re.ReplaceAllString(text, "")
	}
	text = strings.Join(strings.Fields(text), " ")
	if text == "" {
		return b.cfg.EmptyPrompt
	}
	return text
}

// HandleMention processes a message that mentions the bot. The reply is
// produced and posted asynchronously; the return value reports whether the
// message was accepted.
func (b *Bridge) HandleMention(ctx context.Context, msg Message) bool {
	b.mu.RLock()
	botID, limiter := b.botUserID, b.limiter
	b.mu.RUnlock()

	if msg.UserID == "" || msg.UserID == botID {
		return false
	}

	if limiter != nil && !limiter.Allow(msg.UserID) {
		b.metrics.RecordDropped()
		b.logger.Warn().Str("user", msg.UserID).Msg("rate limited, ignoring mention")
		return false
	}

	select {
	case b.sem <- struct{}{}:
	default:
		b.metrics.RecordDropped()
		b.logger.Warn().
			Str("channel", msg.ChannelID).
			Str("user", msg.UserID).
			Msg("bridge at capacity, dropping message")
		return false
	}

	prompt := b.Prompt(msg.Text)

	// Replies outlive the event loop's context so shutdown can drain them;
	// the pipeline's own deadline bounds each one.
	replyCtx, reqID := requestid.Ensure(context.WithoutCancel(ctx))

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer func() { <-b.sem }()
		b.reply(replyCtx, reqID, msg, prompt)
	}()
	return true
}

func (b *Bridge) reply(ctx context.Context, reqID string, msg Message, prompt string) {
	log := b.logger.With().
		Str("request_id", reqID).
		Str("channel", msg.ChannelID).
		Str("user", msg.UserID).
		Logger()

	// Always reply in a thread: the existing one, or a new one under the message.
	replyThread := msg.ThreadTS
	if replyThread == "" {
		replyThread = msg.MessageTS
	}

	if b.cfg.ThinkingEmoji != "" && msg.MessageTS != "" {
		if err := b.poster.AddReaction(msg.ChannelID, msg.MessageTS, b.cfg.ThinkingEmoji); err != nil {
			log.Debug().Err(err).Msg("failed to add thinking reaction")
		}
		defer func() {
			_ = b.poster.RemoveReaction(msg.ChannelID, msg.MessageTS, b.cfg.ThinkingEmoji)
		}()
	}

	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("reply panicked, sending error reply")
			b.post(log, msg.ChannelID, b.cfg.ErrorReply, replyThread)
		}
	}()

	log.Info().Str("text", truncate(prompt, 100)).Msg("mention received")

	start := time.Now()
	text := b.responder.Respond(ctx, msg.UserID, prompt)

	for _, chunk := range splitMessage(formatForSlack(text), b.cfg.MaxMessageLen) {
		if chunk == "" {
			continue
		}
		b.post(log, msg.ChannelID, chunk, replyThread)
	}

	log.Debug().Dur("elapsed", time.Since(start)).Msg("reply posted")
}

func (b *Bridge) post(log zerolog.Logger, channelID, text, threadTS string) {
	if _, err := b.poster.PostMessage(channelID, text, threadTS); err != nil {
		log.Error().Err(err).Msg("failed to post reply to Slack")
	}
}

// Wait blocks until every in-flight reply has been posted or ctx ends.
func (b *Bridge) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for in-flight replies: %w", ctx.Err())
	}
}

// InFlight returns the number of replies currently being produced.
func (b *Bridge) InFlight() int {
	return len(b.sem)
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "…"
}
