package channel

import (
	"context"
	"strings"
)

// Channel is a chat platform connection that delivers commands and
// approval clicks to the bot.
type Channel interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// BaseChannel provides common functionality
type BaseChannel struct {
	// AllowList holds guild (server) IDs the channel serves. Empty allows all.
	AllowList map[string]bool
}

// IsAllowed checks if events from guildID should be handled.
func (b *BaseChannel) IsAllowed(guildID string) bool {
	if len(b.AllowList) == 0 {
		return true
	}
	guildID = strings.TrimSpace(guildID)
	for allowed := range b.AllowList {
		if strings.TrimSpace(allowed) == guildID {
			return true
		}
	}
	return false
}

// NewAllowList builds an allow list from the non-empty ids.
func NewAllowList(ids ...string) map[string]bool {
	out := make(map[string]bool)
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			out[id] = true
		}
	}
	return out
}
