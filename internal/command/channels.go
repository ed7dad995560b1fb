package command

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"

	"github.com/MEKXH/gatekeeper/internal/approval"
	"github.com/MEKXH/gatekeeper/internal/config"
)

var (
	createChoices = []Choice{
		{Name: "Club (club)", Value: "club"},
		{Name: "Event (event)", Value: "event"},
		{Name: "Project (project)", Value: "project"},
	}
	archiveChoices = []Choice{
		{Name: "Events (events)", Value: "events"},
		{Name: "Projects (projects)", Value: "projects"},
	}
)

// CreateChannelCommand implements /create_channel. It creates a text channel
// under the category's parent and a mentionable role of the same name, and
// needs approval.
type CreateChannelCommand struct{}

func (c *CreateChannelCommand) Name() string { return "create_channel" }
func (c *CreateChannelCommand) Description() string {
	return "Create a channel and role in the chosen category"
}
func (c *CreateChannelCommand) Notes() string {
	return "Only in the request channel of the chosen category. Needs approval."
}

func (c *CreateChannelCommand) Options() []Option {
	return []Option{
		{Name: "category", Description: "Channel category", Required: true, Choices: createChoices},
		{Name: "channel_name", Description: "Name of the channel to create", Required: true},
		{Name: "members", Description: "Members to add to the role, as mentions (@user1 @user2)"},
	}
}

func (c *CreateChannelCommand) Examples() []string {
	return []string{
		"/create_channel category:event channel_name:hackathon",
		"/create_channel category:club channel_name:chess members:@user1 @user2",
	}
}

func (c *CreateChannelCommand) Restriction(args Args) (Restriction, bool) {
	k, ok := kindFor(args.Get("category"))
	if !ok {
		return Restriction{}, false
	}
	return Restriction{Slot: k.request, MustBeIn: true}, true
}

func (c *CreateChannelCommand) Approval(args Args) Gate {
	category := args.Get("category")
	label := "new"
	if k, ok := kindFor(category); ok {
		label = "new " + strings.ToLower(k.label)
	}
	return Gate{
		Action:      fmt.Sprintf("create_channel (category=%s)", category),
		Description: fmt.Sprintf("Create a %s channel", label),
		ThreadName:  fmt.Sprintf("Approval: create_channel (%s)", category),
	}
}

func (c *CreateChannelCommand) Execute(ctx context.Context, args Args, env Env) error {
	k, ok := kindFor(args.Get("category"))
	if !ok {
		sendError(ctx, env.Inv, fmt.Sprintf("Invalid category: `%s`.", args.Get("category")))
		return nil
	}
	name := args.Get("channel_name")
	if name == "" {
		sendError(ctx, env.Inv, "A channel name is required.")
		return nil
	}

	guildID := env.Inv.GuildID()
	channels, err := env.Guild.Channels(ctx, guildID)
	if err != nil {
		return fmt.Errorf("list channels: %w", err)
	}
	category, ok := lookupCategory(ctx, env, channels, k.active)
	if !ok {
		return nil
	}

	var members []string
	if raw := args.Get("members"); raw != "" {
		members = parseUserMentions(raw)
		if len(members) == 0 {
			sendError(ctx, env.Inv, fmt.Sprintf("No member mentions found in `%s`.", raw))
			return nil
		}
	}

	channelName, roleName := name, name
	index := 0
	if k.indexed {
		parents := []string{category.ID}
		if archiveName := env.Config.Slot(k.archive); archiveName != "" {
			if archive, ok := findCategory(channels, archiveName); ok {
				parents = append(parents, archive.ID)
			}
		}
		index = nextIndex(channels, parents...)
		channelName = fmt.Sprintf("%d-%s", index, name)
		roleName = channelName
		if k == projectKind {
			roleName = projectRoleName(index)
		}
	} else {
		for _, ch := range textChannelsIn(channels, category.ID) {
			if ch.Name == channelName {
				sendError(ctx, env.Inv, fmt.Sprintf("Channel `%s` already exists in the `%s` category.\nChoose a different name.", channelName, category.Name))
				return nil
			}
		}
	}

	created, err := env.Guild.CreateTextChannel(ctx, guildID, category.ID, channelName)
	if err != nil {
		return fmt.Errorf("create channel %s: %w", channelName, err)
	}
	role, err := env.Guild.CreateRole(ctx, guildID, roleName)
	if err != nil {
		return fmt.Errorf("create role %s: %w", roleName, err)
	}
	for _, userID := range members {
		if err := env.Guild.AddMemberRole(ctx, guildID, userID, role.ID); err != nil {
			return fmt.Errorf("grant role %s to %s: %w", roleName, userID, err)
		}
	}

	description := fmt.Sprintf("Created %s and %s.", channelMention(created.ID), roleMention(role.ID))
	if len(members) > 0 {
		description += "\n\nGranted the role to:\n" + joinMentions(members)
	}
	fields := []approval.Field{{Name: "Channel name", Value: channelName, Inline: true}}
	if k.indexed {
		fields = append(fields, approval.Field{Name: "Index", Value: strconv.Itoa(index), Inline: true})
	}
	fields = append(fields, approval.Field{Name: "Members granted", Value: strconv.Itoa(len(members)), Inline: true})

	slog.Info("channel created",
		"kind", k.name,
		"channel", channelName,
		"role", roleName,
		"members", len(members),
		"guild_id", guildID,
	)
	return reply(ctx, env.Inv, successView(k.label+" channel created", description, fields...), false)
}

// ArchiveChannelCommand implements /archive_channel.
type ArchiveChannelCommand struct{}

func (c *ArchiveChannelCommand) Name() string { return "archive_channel" }
func (c *ArchiveChannelCommand) Description() string {
	return "Move a channel into the archive category"
}
func (c *ArchiveChannelCommand) Notes() string {
	return "Without a channel option it archives the current channel and cannot run in the request channel."
}

func (c *ArchiveChannelCommand) Options() []Option {
	return []Option{
		{Name: "category", Description: "Channel category", Required: true, Choices: archiveChoices},
		{Name: "channel", Description: "Channel to archive (defaults to the current channel)", Kind: OptionChannel},
	}
}

func (c *ArchiveChannelCommand) Examples() []string {
	return []string{
		"/archive_channel category:events",
		"/archive_channel category:projects channel:#3-robots",
	}
}

func (c *ArchiveChannelCommand) Restriction(args Args) (Restriction, bool) {
	if args.Get("channel") != "" {
		return Restriction{}, false
	}
	k, ok := kindFor(args.Get("category"))
	if !ok || !k.archived {
		return Restriction{}, false
	}
	return Restriction{Slot: k.request, MustBeIn: false}, true
}

func (c *ArchiveChannelCommand) Execute(ctx context.Context, args Args, env Env) error {
	return moveChannel(ctx, args, env, false)
}

// RestoreChannelCommand implements /restore_channel.
type RestoreChannelCommand struct{}

func (c *RestoreChannelCommand) Name() string { return "restore_channel" }
func (c *RestoreChannelCommand) Description() string {
	return "Move an archived channel back to its category"
}
func (c *RestoreChannelCommand) Notes() string {
	return "The channel must be in the archive category."
}

func (c *RestoreChannelCommand) Options() []Option {
	return []Option{
		{Name: "category", Description: "Channel category", Required: true, Choices: archiveChoices},
		{Name: "channel", Description: "Channel to restore (defaults to the current channel)", Kind: OptionChannel},
	}
}

func (c *RestoreChannelCommand) Examples() []string {
	return []string{
		"/restore_channel category:events",
		"/restore_channel category:events channel:#1-hackathon",
	}
}

func (c *RestoreChannelCommand) Execute(ctx context.Context, args Args, env Env) error {
	return moveChannel(ctx, args, env, true)
}

// moveChannel archives a channel, or restores it when restore is set.
func moveChannel(ctx context.Context, args Args, env Env, restore bool) error {
	k, ok := kindFor(args.Get("category"))
	if !ok || !k.archived {
		sendError(ctx, env.Inv, fmt.Sprintf("Invalid category: `%s`.", args.Get("category")))
		return nil
	}
	channels, err := env.Guild.Channels(ctx, env.Inv.GuildID())
	if err != nil {
		return fmt.Errorf("list channels: %w", err)
	}
	active, ok := lookupCategory(ctx, env, channels, k.active)
	if !ok {
		return nil
	}
	archive, ok := lookupCategory(ctx, env, channels, k.archive)
	if !ok {
		return nil
	}
	from, to := active, archive
	if restore {
		from, to = archive, active
	}

	targetID := args.Get("channel")
	if targetID == "" {
		targetID = env.Inv.ChannelID()
	}
	target, err := env.Guild.Channel(ctx, targetID)
	if err != nil {
		return fmt.Errorf("load channel %s: %w", targetID, err)
	}
	if target.ParentID != from.ID {
		sendError(ctx, env.Inv, fmt.Sprintf("Channel `%s` is not in the `%s` category.\nRun the command in a channel of that category or pass the channel option.", target.Name, from.Name))
		return nil
	}

	if err := env.Guild.MoveChannel(ctx, target.ID, to.ID); err != nil {
		return fmt.Errorf("move channel %s: %w", target.Name, err)
	}

	verb, title := "Archived", k.label+" channel archived"
	if restore {
		verb, title = "Restored", k.label+" channel restored"
	}
	slog.Info("channel moved",
		"kind", k.name,
		"channel", target.Name,
		"from", from.Name,
		"to", to.Name,
	)
	return reply(ctx, env.Inv, successView(title,
		fmt.Sprintf("%s %s to `%s`.", verb, channelMention(target.ID), to.Name),
		approval.Field{Name: "Channel name", Value: target.Name, Inline: true},
	), false)
}

// AddRoleMembersCommand implements /add_role_members.
type AddRoleMembersCommand struct{}

func (c *AddRoleMembersCommand) Name() string { return "add_role_members" }
func (c *AddRoleMembersCommand) Description() string {
	return "Add members to the role of a managed channel"
}
func (c *AddRoleMembersCommand) Notes() string {
	return "Without a role option it uses the role of the current channel. Administrator and integration roles are refused."
}

func (c *AddRoleMembersCommand) Options() []Option {
	return []Option{
		{Name: "category", Description: "Role category", Required: true, Choices: createChoices},
		{Name: "members", Description: "Members to add, as mentions (@user1 @user2)", Required: true},
		{Name: "role", Description: "Target role as @role (defaults to the current channel's role)"},
	}
}

func (c *AddRoleMembersCommand) Examples() []string {
	return []string{
		"/add_role_members category:event members:@user1 @user2",
		"/add_role_members category:project members:@user1 role:@p03",
	}
}

func (c *AddRoleMembersCommand) Execute(ctx context.Context, args Args, env Env) error {
	k, ok := kindFor(args.Get("category"))
	if !ok {
		sendError(ctx, env.Inv, fmt.Sprintf("Invalid category: `%s`.", args.Get("category")))
		return nil
	}
	guildID := env.Inv.GuildID()
	channels, err := env.Guild.Channels(ctx, guildID)
	if err != nil {
		return fmt.Errorf("list channels: %w", err)
	}
	active, ok := lookupCategory(ctx, env, channels, k.active)
	if !ok {
		return nil
	}
	roles, err := env.Guild.Roles(ctx, guildID)
	if err != nil {
		return fmt.Errorf("list roles: %w", err)
	}

	var role RoleInfo
	if raw := args.Get("role"); raw != "" {
		if role, ok = resolveRole(roles, raw); !ok {
			sendError(ctx, env.Inv, fmt.Sprintf("Role `%s` was not found.", raw))
			return nil
		}
	} else {
		current, err := env.Guild.Channel(ctx, env.Inv.ChannelID())
		if err != nil {
			return fmt.Errorf("load channel %s: %w", env.Inv.ChannelID(), err)
		}
		if current.ParentID != active.ID {
			sendError(ctx, env.Inv, fmt.Sprintf("Channel `%s` is not in the `%s` category.\nRun the command in a channel of that category or pass the role option.", current.Name, active.Name))
			return nil
		}
		name, ok := k.roleName(current.Name)
		if !ok {
			sendError(ctx, env.Inv, fmt.Sprintf("Channel `%s` has no index prefix, so its role cannot be derived.", current.Name))
			return nil
		}
		if role, ok = findRole(roles, func(r RoleInfo) bool { return r.Name == name }); !ok {
			sendError(ctx, env.Inv, fmt.Sprintf("Role `%s` was not found.", name))
			return nil
		}
	}

	if reason := unsafeRole(role, guildID); reason != "" {
		slog.Warn("refused to manage protected role", "role", role.Name, "reason", reason, "channel_id", env.Inv.ChannelID())
		sendError(ctx, env.Inv, fmt.Sprintf("%s %s and cannot be managed with this command.", roleMention(role.ID), reason))
		return nil
	}

	linked, ok := roleChannel(k, role.Name, textChannelsIn(channels, active.ID))
	if !ok {
		sendError(ctx, env.Inv, fmt.Sprintf("No %s channel matches %s.\nOnly roles of channels in the `%s` category can be managed.", strings.ToLower(k.label), roleMention(role.ID), active.Name))
		return nil
	}

	members := parseUserMentions(args.Get("members"))
	if len(members) == 0 {
		sendError(ctx, env.Inv, fmt.Sprintf("No member mentions found in `%s`.", args.Get("members")))
		return nil
	}

	var added, already []string
	for _, userID := range members {
		current, err := env.Guild.MemberRoles(ctx, guildID, userID)
		if err != nil {
			return fmt.Errorf("load member %s: %w", userID, err)
		}
		if slices.Contains(current, role.ID) {
			already = append(already, userID)
			continue
		}
		if err := env.Guild.AddMemberRole(ctx, guildID, userID, role.ID); err != nil {
			return fmt.Errorf("grant role %s to %s: %w", role.Name, userID, err)
		}
		added = append(added, userID)
	}

	var parts []string
	if len(added) > 0 {
		parts = append(parts, fmt.Sprintf("Added to %s:\n%s", roleMention(role.ID), joinMentions(added)))
	}
	if len(already) > 0 {
		parts = append(parts, fmt.Sprintf("Already in the role:\n%s", joinMentions(already)))
	}

	slog.Info("role members added",
		"kind", k.name,
		"role", role.Name,
		"added", len(added),
		"already", len(already),
	)
	return reply(ctx, env.Inv, successView(k.label+" role members added", strings.Join(parts, "\n\n"),
		approval.Field{Name: "Channel", Value: channelMention(linked.ID), Inline: true},
		approval.Field{Name: "Role", Value: role.Name, Inline: true},
		approval.Field{Name: "Added", Value: strconv.Itoa(len(added)), Inline: true},
	), false)
}

// lookupCategory resolves the category configured in slot. Problems are
// reported to the user.
func lookupCategory(ctx context.Context, env Env, channels []ChannelInfo, slot config.ChannelSlot) (ChannelInfo, bool) {
	name := env.Config.Slot(slot)
	if name == "" {
		sendError(ctx, env.Inv, fmt.Sprintf("The `%s` setting is missing. Ask an administrator to update the bot configuration.", slot))
		return ChannelInfo{}, false
	}
	category, ok := findCategory(channels, name)
	if !ok {
		slog.Warn("category not found", "category", name, "setting", slot.String(), "guild_id", env.Inv.GuildID())
		sendError(ctx, env.Inv, fmt.Sprintf("Category `%s` does not exist.\nAsk an administrator to update the server settings.", name))
		return ChannelInfo{}, false
	}
	return category, true
}

// resolveRole accepts a role mention or a role name with optional "@".
func resolveRole(roles []RoleInfo, raw string) (RoleInfo, bool) {
	if m := roleMentionPattern.FindStringSubmatch(raw); m != nil {
		return findRole(roles, func(r RoleInfo) bool { return r.ID == m[1] })
	}
	name := strings.TrimPrefix(raw, "@")
	return findRole(roles, func(r RoleInfo) bool { return r.Name == name })
}

// roleChannel finds the managed channel a role belongs to.
func roleChannel(k kind, roleName string, channels []ChannelInfo) (ChannelInfo, bool) {
	if k == projectKind {
		m := projectRolePattern.FindStringSubmatch(roleName)
		if m == nil {
			return ChannelInfo{}, false
		}
		want, err := strconv.Atoi(m[1])
		if err != nil {
			return ChannelInfo{}, false
		}
		for _, ch := range channels {
			if n, ok := channelIndex(ch.Name); ok && n == want {
				return ch, true
			}
		}
		return ChannelInfo{}, false
	}
	for _, ch := range channels {
		if ch.Name == roleName {
			return ch, true
		}
	}
	return ChannelInfo{}, false
}

func joinMentions(userIDs []string) string {
	mentions := make([]string, len(userIDs))
	for i, id := range userIDs {
		mentions[i] = userMention(id)
	}
	return strings.Join(mentions, ", ")
}
