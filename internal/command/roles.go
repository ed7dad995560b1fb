package command

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/MEKXH/gatekeeper/internal/approval"
)

const (
	membersPerField  = 50
	maxFieldValue    = 1024
	maxMemberFields  = 20
	visibilityPublic = "public"
)

var visibilityChoices = []Choice{
	{Name: "Only me", Value: "private"},
	{Name: "Everyone in the channel", Value: visibilityPublic},
}

// ShowRoleMembersCommand implements /show_role_members.
type ShowRoleMembersCommand struct{}

func (c *ShowRoleMembersCommand) Name() string { return "show_role_members" }
func (c *ShowRoleMembersCommand) Description() string {
	return "List the members of a role"
}
func (c *ShowRoleMembersCommand) Notes() string {
	return "Administrator and integration roles cannot be listed. Long lists are split into several fields."
}

func (c *ShowRoleMembersCommand) Options() []Option {
	return []Option{
		{Name: "role", Description: "Target role as @role", Required: true},
		{Name: "visibility", Description: "Who can see the list (default: only me)", Choices: visibilityChoices},
	}
}

func (c *ShowRoleMembersCommand) Examples() []string {
	return []string{
		"/show_role_members role:@1-hackathon",
		"/show_role_members role:@1-hackathon visibility:public",
	}
}

func (c *ShowRoleMembersCommand) Execute(ctx context.Context, args Args, env Env) error {
	guildID := env.Inv.GuildID()
	raw := args.Get("role")
	roles, err := env.Guild.Roles(ctx, guildID)
	if err != nil {
		return fmt.Errorf("list roles: %w", err)
	}
	role, ok := resolveRole(roles, raw)
	if !ok {
		sendError(ctx, env.Inv, fmt.Sprintf("Role `%s` was not found.", raw))
		return nil
	}
	if reason := unsafeRole(role, guildID); reason != "" {
		sendError(ctx, env.Inv, fmt.Sprintf("%s %s and cannot be listed with this command.", roleMention(role.ID), reason))
		return nil
	}

	members, err := env.Guild.RoleMembers(ctx, guildID, role.ID)
	if err != nil {
		return fmt.Errorf("list members of %s: %w", role.Name, err)
	}

	public := args.Get("visibility") == visibilityPublic
	slog.Info("role members listed",
		"role", role.Name,
		"members", len(members),
		"public", public,
		"channel_id", env.Inv.ChannelID(),
	)
	return reply(ctx, env.Inv, roleMembersView(role, members), !public)
}

func roleMembersView(role RoleInfo, members []MemberInfo) approval.View {
	fields := []approval.Field{{Name: "Member count", Value: strconv.Itoa(len(members))}}
	if len(members) == 0 {
		fields = append(fields, approval.Field{Name: "Members", Value: "This role has no members yet."})
	}

	lines := make([]string, len(members))
	for i, m := range members {
		lines[i] = fmt.Sprintf("• %s (%s)", userMention(m.ID), m.Name)
	}
	chunks := chunkLines(lines, membersPerField, maxFieldValue)
	for i, chunk := range chunks {
		if i == maxMemberFields {
			shown := 0
			for _, c := range chunks[:i] {
				shown += len(c)
			}
			fields = append(fields, approval.Field{Name: "Members (truncated)", Value: fmt.Sprintf("…and %d more", len(members)-shown)})
			break
		}
		name := "Members"
		if i > 0 {
			name = fmt.Sprintf("Members (cont. %d)", i+1)
		}
		fields = append(fields, approval.Field{Name: name, Value: strings.Join(chunk, "\n")})
	}

	return approval.View{
		Title:     "👥 Members of " + role.Name,
		Tone:      approval.ToneInfo,
		Fields:    fields,
		Timestamp: time.Now(),
	}
}

// chunkLines groups lines so each group has at most maxLines entries and
// joins to at most maxLen bytes.
func chunkLines(lines []string, maxLines, maxLen int) [][]string {
	var chunks [][]string
	var cur []string
	size := 0
	for _, line := range lines {
		extra := len(line)
		if len(cur) > 0 {
			extra++
		}
		if len(cur) > 0 && (len(cur) == maxLines || size+extra > maxLen) {
			chunks = append(chunks, cur)
			cur, size, extra = nil, 0, len(line)
		}
		cur = append(cur, line)
		size += extra
	}
	if len(cur) > 0 {
		chunks = append(chunks, cur)
	}
	return chunks
}
