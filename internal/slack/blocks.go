package slack

import (
	"fmt"
	"strings"

	"github.com/slack-go/slack"

	"github.com/p-blackswan/shinoa-bot/internal/session"
)

// StatsBlocks renders aggregate usage.
func StatsBlocks(stats session.UsageStats) []slack.Block {
	fields := []*slack.TextBlockObject{
		slack.NewTextBlockObject("mrkdwn", fmt.Sprintf("*Live sessions*\n%d", stats.Sessions), false, false),
		slack.NewTextBlockObject("mrkdwn", fmt.Sprintf("*Users*\n%d", stats.Users), false, false),
		slack.NewTextBlockObject("mrkdwn", fmt.Sprintf("*Messages*\n%d", stats.Total), false, false),
		slack.NewTextBlockObject("mrkdwn", fmt.Sprintf("*Avg per user*\n%d", stats.Average), false, false),
	}
	return []slack.Block{
		slack.NewHeaderBlock(slack.NewTextBlockObject("plain_text", "Teasing stats", false, false)),
		slack.NewSectionBlock(nil, fields, nil),
	}
}

// StatsText is the plain-text fallback for StatsBlocks.
func StatsText(stats session.UsageStats) string {
	return fmt.Sprintf("%d live sessions, %d users, %d messages (avg %d per user)",
		stats.Sessions, stats.Users, stats.Total, stats.Average)
}

// LeaderboardBlocks renders the most teased users. name resolves a user ID
// to something printable.
func LeaderboardBlocks(entries []session.UsageEntry, name func(string) string) []slack.Block {
	header := slack.NewHeaderBlock(slack.NewTextBlockObject("plain_text", "Most teased", false, false))
	if len(entries) == 0 {
		return []slack.Block{
			header,
			slack.NewSectionBlock(slack.NewTextBlockObject("mrkdwn", "_Nobody yet. Boring._", false, false), nil, nil),
		}
	}
	return []slack.Block{
		header,
		slack.NewSectionBlock(slack.NewTextBlockObject("mrkdwn", LeaderboardText(entries, name), false, false), nil, nil),
	}
}

// LeaderboardText renders one numbered line per entry.
func LeaderboardText(entries []session.UsageEntry, name func(string) string) string {
	var sb strings.Builder
	for i, e := range entries {
		if i > 0 {
			sb.WriteByte('\n')
		}
		noun := "messages"
		if e.Count == 1 {
			noun = "message"
		}
		fmt.Fprintf(&sb, "%d. %s · %d %s", i+1, name(e.UserID), e.Count, noun)
	}
	return sb.String()
}
