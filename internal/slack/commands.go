package slack

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/slack-go/slack"
)

// Slash commands.
const (
	CommandReset     = "/reset"
	CommandStats     = "/stats"
	CommandTopTeased = "/topteased"
)

const pendingText = "Hold on, I'm busy teasing them right now. I'll get back to you."

var (
	mentionArg = regexp.MustCompile(`^<@([A-Z0-9]+)(\|[^>]*)?>$`)
	userIDArg  = regexp.MustCompile(`^[UW][A-Z0-9]+$`)
)

// commandResponse is the body acked back for a slash command.
type commandResponse struct {
	Text      string
	Blocks    []slack.Block
	InChannel bool
}

func (r commandResponse) payload() map[string]interface{} {
	p := map[string]interface{}{
		"response_type": "ephemeral",
		"text":          r.Text,
	}
	if r.InChannel {
		p["response_type"] = "in_channel"
	}
	if len(r.Blocks) > 0 {
		p["blocks"] = r.Blocks
	}
	return p
}

func (h *Handler) runCommand(ctx context.Context, cmd slack.SlashCommand) commandResponse {
	log := h.logger.With().
		Str("command", cmd.Command).
		Str("user", cmd.UserID).
		Str("channel", cmd.ChannelID).
		Logger()

	if h.admin == nil {
		return commandResponse{Text: "Commands are not available right now."}
	}

	if h.middleware == nil || !h.middleware.IsAdmin(cmd.UserID) {
		log.Warn().Msg("admin command denied")
		h.metrics.RecordCommand(cmd.Command, "denied")
		return commandResponse{Text: h.replies.Denied}
	}

	var resp commandResponse
	result := "ok"
	switch cmd.Command {
	case CommandReset:
		resp, result = h.reset(ctx, cmd)
	case CommandStats:
		stats := h.admin.Stats()
		resp = commandResponse{Text: StatsText(stats), Blocks: StatsBlocks(stats)}
	case CommandTopTeased:
		resp, result = h.topTeased(cmd)
	default:
		result = "unknown"
		resp = commandResponse{Text: fmt.Sprintf("I don't know %s.", cmd.Command)}
	}

	log.Info().Str("result", result).Msg("admin command handled")
	h.metrics.RecordCommand(cmd.Command, result)
	return resp
}

func (h *Handler) reset(ctx context.Context, cmd slack.SlashCommand) (commandResponse, string) {
	target, ok := parseUserArg(cmd.Text)
	if !ok {
		return commandResponse{Text: "Usage: /reset @user"}, "invalid"
	}

	if h.admin.Reset(ctx, cmd.UserID, target) {
		if h.names != nil {
			h.names.Forget(target)
		}
		return commandResponse{Text: fmt.Sprintf(h.replies.Reset, mention(target)), InChannel: true}, "ok"
	}
	return commandResponse{Text: fmt.Sprintf(h.replies.NotFound, mention(target))}, "not_found"
}

func (h *Handler) topTeased(cmd slack.SlashCommand) (commandResponse, string) {
	n := 0
	if arg := strings.TrimSpace(cmd.Text); arg != "" {
		v, err := strconv.Atoi(arg)
		if err != nil || v < 1 {
			return commandResponse{Text: "Usage: /topteased [count]"}, "invalid"
		}
		n = v
	}

	name := mention
	if h.names != nil {
		name = h.names.DisplayName
	}
	entries := h.admin.Leaderboard(n)
	return commandResponse{
		Text:   LeaderboardText(entries, name),
		Blocks: LeaderboardBlocks(entries, name),
	}, "ok"
}

// parseUserArg accepts "<@U123>", "<@U123|name>" or a bare user ID.
func parseUserArg(text string) (string, bool) {
	arg := strings.TrimSpace(text)
	if m := mentionArg.FindStringSubmatch(arg); m != nil {
		return m[1], true
	}
	if userIDArg.MatchString(arg) {
		return arg, true
	}
	return "", false
}
