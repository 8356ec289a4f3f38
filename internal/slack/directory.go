package slack

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/slack-go/slack"

	"github.com/p-blackswan/shinoa-bot/internal/metrics"
	"github.com/p-blackswan/shinoa-bot/lru"
)

const (
	directoryCapacity = 512
	directoryTTL      = time.Hour
)

// UserInfoAPI looks up a Slack user.
type UserInfoAPI interface {
	GetUserInfo(user string) (*slack.User, error)
}

// Directory resolves user IDs to display names, caching results.
type Directory struct {
	api    UserInfoAPI
	cache   *lru.Cache[string, string]
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// NewDirectory creates a Directory backed by api. m may be nil.
func NewDirectory(api UserInfoAPI, m *metrics.Metrics, logger zerolog.Logger) *Directory {
	return &Directory{
		api:     api,
		cache:   lru.New[string, string](directoryCapacity, directoryTTL),
		metrics: m,
		logger:  logger.With().Str("component", "slack.directory").Logger(),
	}
}

// DisplayName returns the best human name for userID. Lookups that fail fall
// back to a mention so Slack renders the name itself.
func (d *Directory) DisplayName(userID string) string {
	if name, ok := d.cache.Get(userID); ok {
		return name
	}

	user, err := d.api.GetUserInfo(userID)
	if err != nil || user == nil {
		d.logger.Debug().Err(err).Str("user", userID).Msg("user lookup failed")
		return mention(userID)
	}

	name := user.Profile.DisplayName
	if name == "" {
		name = user.RealName
	}
	if name == "" {
		name = user.Name
	}
	if name == "" {
		name = mention(userID)
	}
	d.cache.Put(userID, name)
	return name
}

// Forget drops a cached name.
func (d *Directory) Forget(userID string) {
	d.cache.Delete(userID)
}

// Prune drops expired names and reports cache usage.
func (d *Directory) Prune() int {
	n := d.cache.Purge()
	d.metrics.SetNameCache(d.cache.Len(), d.cache.Stats().HitRate())
	return n
}

func mention(userID string) string {
	return fmt.Sprintf("<@%s>", userID)
}
