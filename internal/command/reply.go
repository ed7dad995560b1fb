package command

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/MEKXH/gatekeeper/internal/approval"
)

var (
	userMentionPattern = regexp.MustCompile(`<@!?(\d+)>`)
	roleMentionPattern = regexp.MustCompile(`^<@&([^>\s]+)>$`)
)

func successView(title, description string, fields ...approval.Field) approval.View {
	return approval.View{
		Title:       "✅ " + title,
		Description: description,
		Tone:        approval.ToneSuccess,
		Fields:      fields,
		Timestamp:   time.Now(),
	}
}

func errorView(description string) approval.View {
	return approval.View{
		Title:       "❌ Error",
		Description: description,
		Tone:        approval.ToneDanger,
		Timestamp:   time.Now(),
	}
}

func reply(ctx context.Context, inv approval.Invocation, view approval.View, ephemeral bool) error {
	msg := approval.Message{View: &view, Ephemeral: ephemeral}
	if inv.Responded() {
		return inv.FollowUp(ctx, msg)
	}
	return inv.Reply(ctx, msg)
}

// sendError reports a user-facing problem privately. Delivery failures are
// only logged.
func sendError(ctx context.Context, inv approval.Invocation, description string) {
	if inv == nil {
		return
	}
	if err := reply(ctx, inv, errorView(description), true); err != nil {
		slog.Warn("failed to send command error", "channel_id", inv.ChannelID(), "error", err)
	}
}

func channelMention(id string) string { return fmt.Sprintf("<#%s>", id) }

func roleMention(id string) string { return fmt.Sprintf("<@&%s>", id) }

func userMention(id string) string { return fmt.Sprintf("<@%s>", id) }

// parseUserMentions extracts unique user IDs from text like "<@1> <@!2>".
func parseUserMentions(text string) []string {
	seen := make(map[string]bool)
	var ids []string
	for _, m := range userMentionPattern.FindAllStringSubmatch(text, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			ids = append(ids, m[1])
		}
	}
	return ids
}
