// Package slack is the bot's Slack front end: Socket Mode events, the admin
// slash commands and the helpers they need.
package slack

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"

	"github.com/p-blackswan/shinoa-bot/internal/bridge"
	"github.com/p-blackswan/shinoa-bot/internal/metrics"
	"github.com/p-blackswan/shinoa-bot/internal/session"
)

// MessageForwarder receives mentions of the bot.
type MessageForwarder interface {
	HandleMention(ctx context.Context, msg bridge.Message) bool
}

// AdminService runs the operator commands.
type AdminService interface {
	Reset(ctx context.Context, actor, userID string) bool
	Stats() session.UsageStats
	Leaderboard(n int) []session.UsageEntry
}

// NameResolver turns a user ID into a display name.
type NameResolver interface {
	DisplayName(userID string) string
	Forget(userID string)
}

// Acker acknowledges Socket Mode requests, optionally with a response body.
type Acker interface {
	Ack(req socketmode.Request, payload ...interface{})
}

// ResponseSender delivers a late slash-command answer to its response_url.
type ResponseSender interface {
	Send(ctx context.Context, responseURL string, msg *slack.WebhookMessage) error
}

type webhookSender struct{}

func (webhookSender) Send(ctx context.Context, responseURL string, msg *slack.WebhookMessage) error {
	return slack.PostWebhookContext(ctx, responseURL, msg)
}

// defaultAckWindow leaves headroom under Slack's 3s ack deadline.
const defaultAckWindow = 2 * time.Second

// Replies are the in-character answers to admin commands. Reset and
// NotFound take the target as their single %s verb.
type Replies struct {
	Reset    string
	NotFound string
	Denied   string
}

// Handler processes Slack events.
type Handler struct {
	socket     Acker
	logger     zerolog.Logger
	middleware *Middleware
	forwarder  MessageForwarder
	admin      AdminService
	names      NameResolver
	replies    Replies
	metrics    *metrics.Metrics
	responses  ResponseSender
	ackWindow  time.Duration
	commands   sync.WaitGroup
}

// NewHandler creates a new event handler.
func NewHandler(logger zerolog.Logger, middleware *Middleware, replies Replies, m *metrics.Metrics) *Handler {
	return &Handler{
		logger:     logger.With().Str("component", "slack.handler").Logger(),
		middleware: middleware,
		replies:    replies,
		metrics:    m,
		responses:  webhookSender{},
		ackWindow:  defaultAckWindow,
	}
}

// SetForwarder sets the mention forwarder (bridge).
func (h *Handler) SetForwarder(f MessageForwarder) {
	h.forwarder = f
}

// SetAdmin sets the service behind the slash commands.
func (h *Handler) SetAdmin(a AdminService) {
	h.admin = a
}

// SetNames sets the resolver used to render leaderboards.
func (h *Handler) SetNames(n NameResolver) {
	h.names = n
}

// SetSocket sets the Socket Mode client for acknowledging events.
func (h *Handler) SetSocket(s Acker) {
	h.socket = s
}

// HandleEvent routes Socket Mode events to the appropriate handler.
func (h *Handler) HandleEvent(ctx context.Context, evt socketmode.Event) {
	switch evt.Type {
	case socketmode.EventTypeEventsAPI:
		h.handleEventsAPI(ctx, evt)
	case socketmode.EventTypeSlashCommand:
		h.handleSlashCommand(ctx, evt)
	case socketmode.EventTypeConnected:
		h.logger.Info().Msg("socket mode connected")
	case socketmode.EventTypeConnectionError:
		h.logger.Warn().Msg("socket mode connection error, retrying")
	default:
		h.logger.Debug().Str("type", string(evt.Type)).Msg("unhandled event type")
	}
}

// handleEventsAPI processes Events API payloads.
func (h *Handler) handleEventsAPI(ctx context.Context, evt socketmode.Event) {
	// Slack requires an ack within 3 seconds.
	h.ack(evt)

	eventsAPIEvent, ok := evt.Data.(slackevents.EventsAPIEvent)
	if !ok {
		h.logger.Warn().Str("type", string(evt.Type)).Msg("failed to cast events_api data")
		return
	}

	if eventsAPIEvent.Type == slackevents.CallbackEvent {
		h.handleCallbackEvent(ctx, eventsAPIEvent.InnerEvent)
	}
}

func (h *Handler) handleCallbackEvent(ctx context.Context, innerEvent slackevents.EventsAPIInnerEvent) {
	switch ev := innerEvent.Data.(type) {
	case *slackevents.AppMentionEvent:
		h.logger.Debug().
			Str("user", ev.User).
			Str("channel", ev.Channel).
			Msg("app mention received")

		if h.forwarder != nil {
			h.forwarder.HandleMention(ctx, bridge.Message{
				ChannelID: ev.Channel,
				UserID:    ev.User,
				Text:      ev.Text,
				ThreadTS:  ev.ThreadTimeStamp,
				MessageTS: ev.TimeStamp,
			})
		}

	case *slackevents.MessageEvent:
		// Plain messages never reach the bot; only mentions do.

	default:
		h.logger.Debug().
			Str("inner_type", innerEvent.Type).
			Msg("unhandled callback event type")
	}
}

// handleSlashCommand runs the command off the event loop. A reset waits for
// the target's in-flight reply, so answers that miss the ack window are
// acked with a holding line and delivered through response_url instead.
func (h *Handler) handleSlashCommand(ctx context.Context, evt socketmode.Event) {
	cmd, ok := evt.Data.(slack.SlashCommand)
	if !ok {
		h.ack(evt)
		h.logger.Warn().Msg("failed to cast slash command data")
		return
	}

	ctx = context.WithoutCancel(ctx)
	h.commands.Add(1)
	go func() {
		defer h.commands.Done()

		done := make(chan commandResponse, 1)
		go func() {
			done <- h.runCommand(ctx, cmd)
		}()

		timer := time.NewTimer(h.ackWindow)
		defer timer.Stop()

		select {
		case resp := <-done:
			h.ackPayload(evt, resp.payload())
		case <-timer.C:
			h.ackPayload(evt, commandResponse{Text: pendingText}.payload())
			h.deliverLate(ctx, cmd, <-done)
		}
	}()
}

func (h *Handler) deliverLate(ctx context.Context, cmd slack.SlashCommand, resp commandResponse) {
	log := h.logger.With().Str("command", cmd.Command).Str("user", cmd.UserID).Logger()
	if cmd.ResponseURL == "" || h.responses == nil {
		log.Warn().Msg("slow command finished but has no response_url")
		return
	}

	msg := &slack.WebhookMessage{
		Text:            resp.Text,
		ResponseType:    "ephemeral",
		ReplaceOriginal: true,
	}
	if resp.InChannel {
		msg.ResponseType = "in_channel"
	}
	if len(resp.Blocks) > 0 {
		msg.Blocks = &slack.Blocks{BlockSet: resp.Blocks}
	}

	sendCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := h.responses.Send(sendCtx, cmd.ResponseURL, msg); err != nil {
		log.Error().Err(err).Msg("failed to deliver command response")
	}
}

// Wait blocks until every running slash command has answered or ctx ends.
func (h *Handler) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		h.commands.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for slash commands: %w", ctx.Err())
	}
}

func (h *Handler) ack(evt socketmode.Event) {
	if h.socket != nil && evt.Request != nil {
		h.socket.Ack(*evt.Request)
	}
}

func (h *Handler) ackPayload(evt socketmode.Event, payload map[string]interface{}) {
	if h.socket != nil && evt.Request != nil {
		h.socket.Ack(*evt.Request, payload)
	}
}
