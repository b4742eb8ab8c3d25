// Package notify turns task lifecycle events into outbound workflow triggers,
// subject to the user's notification preferences.
package notify

import (
	"context"
	"strings"

	log "github.com/sirupsen/logrus"

	"pulseboard/domain"
)

// PreferenceFetcher retrieves the current preference snapshot for a user.
type PreferenceFetcher interface {
	FetchPreferences(ctx context.Context, distinctID string) (domain.PreferenceDocument, error)
}

// taskKeywords marks a preference subcategory as task-related when its
// category or name contains any of them. The platform's category taxonomy is
// free text, so this stays a substring heuristic rather than an exact match.
var taskKeywords = []string{
	"task",
	"update",
	"task-status",
	"task_status",
	"task-created",
	"task_created",
	"task-deleted",
	"task_deleted",
}

// Gate decides whether task lifecycle notifications may be sent for a user.
type Gate struct {
	fetcher PreferenceFetcher
	logger  *log.Logger
}

func NewGate(fetcher PreferenceFetcher, logger *log.Logger) *Gate {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Gate{fetcher: fetcher, logger: logger}
}

// Allow fetches the user's preference document and evaluates it. Any fetch
// failure allows the notification: a misconfigured user gets over-notified
// rather than silently losing real task activity.
func (g *Gate) Allow(ctx context.Context, distinctID string) bool {
	if g == nil || g.fetcher == nil {
		return true
	}
	doc, err := g.fetcher.FetchPreferences(ctx, distinctID)
	if err != nil {
		g.logger.WithError(err).WithField("user", distinctID).Debug("preference fetch failed, notifying anyway")
		return true
	}
	return ShouldNotify(doc)
}

// ShouldNotify scans the preference snapshot for a task-related subcategory.
// An explicit opt-out silences notifications, an explicit opt-in allows them,
// and a subcategory with every channel opted out counts as an opt-out. When
// the document holds no task-related entry at all the answer is yes.
func ShouldNotify(doc domain.PreferenceDocument) bool {
	for _, sec := range doc.Sections {
		for _, sub := range sec.Subcategories {
			if !taskRelated(sub) {
				continue
			}
			switch normalizeState(sub.Preference) {
			case domain.OptOut:
				return false
			case domain.OptIn:
				return true
			}
			if len(sub.Channels) > 0 && allChannelsOptOut(sub.Channels) {
				return false
			}
		}
	}
	return true
}

func taskRelated(sub domain.PreferenceSubcategory) bool {
	category := strings.ToLower(strings.TrimSpace(sub.Category))
	name := strings.ToLower(strings.TrimSpace(sub.Name))
	for _, kw := range taskKeywords {
		if category != "" && strings.Contains(category, kw) {
			return true
		}
		if name != "" && strings.Contains(name, kw) {
			return true
		}
	}
	return false
}

func allChannelsOptOut(channels []domain.ChannelPreference) bool {
	for _, ch := range channels {
		if normalizeState(ch.Preference) != domain.OptOut {
			return false
		}
	}
	return true
}

func normalizeState(s domain.PreferenceState) domain.PreferenceState {
	switch strings.ToLower(strings.TrimSpace(string(s))) {
	case string(domain.OptOut):
		return domain.OptOut
	case string(domain.OptIn):
		return domain.OptIn
	}
	return ""
}
