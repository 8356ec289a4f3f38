package bridge

import (
	"errors"

	"github.com/slack-go/slack"
)

// SlackAPI is the part of *slack.Client that replies go through.
type SlackAPI interface {
	PostMessage(channelID string, options ...slack.MsgOption) (string, string, error)
	AddReaction(name string, item slack.ItemRef) error
	RemoveReaction(name string, item slack.ItemRef) error
}

// threadPoster posts Shinoa's replies into threads and manages the
// thinking reaction on the message being answered.
type threadPoster struct {
	api SlackAPI
}

// NewSlackPoster returns a SlackPoster backed by api.
func NewSlackPoster(api SlackAPI) SlackPoster {
	return &threadPoster{api: api}
}

// PostMessage sends text as plain mrkdwn. Unfurls stay off so a pasted
// link does not bury the reply under a preview card.
func (p *threadPoster) PostMessage(channelID, text, threadTS string) (string, error) {
	opts := []slack.MsgOption{
		slack.MsgOptionText(text, false),
		slack.MsgOptionDisableLinkUnfurl(),
		slack.MsgOptionDisableMediaUnfurl(),
	}
	if threadTS != "" {
		opts = append(opts, slack.MsgOptionTS(threadTS))
	}
	_, ts, err := p.api.PostMessage(channelID, opts...)
	return ts, err
}

// AddReaction treats a reaction that is already there as success. Slack
// redelivers events after a reconnect, so the same message can be seen twice.
func (p *threadPoster) AddReaction(channelID, messageTS, emoji string) error {
	err := p.api.AddReaction(emoji, slack.ItemRef{Channel: channelID, Timestamp: messageTS})
	return ignoreSlackError(err, "already_reacted")
}

// RemoveReaction treats a missing reaction as success.
func (p *threadPoster) RemoveReaction(channelID, messageTS, emoji string) error {
	err := p.api.RemoveReaction(emoji, slack.ItemRef{Channel: channelID, Timestamp: messageTS})
	return ignoreSlackError(err, "no_reaction")
}

func ignoreSlackError(err error, code string) error {
	var resp slack.SlackErrorResponse
	if errors.As(err, &resp) && resp.Err == code {
		return nil
	}
	return err
}
