package discord

import (
	"context"
	"fmt"
	"slices"

	"github.com/MEKXH/gatekeeper/internal/command"
	"github.com/bwmarrin/discordgo"
)

var _ command.Guild = (*Channel)(nil)

func channelInfo(ch *discordgo.Channel) command.ChannelInfo {
	return command.ChannelInfo{
		ID:       ch.ID,
		Name:     ch.Name,
		ParentID: ch.ParentID,
		Category: ch.Type == discordgo.ChannelTypeGuildCategory,
	}
}

func roleInfo(r *discordgo.Role) command.RoleInfo {
	return command.RoleInfo{
		ID:            r.ID,
		Name:          r.Name,
		Administrator: r.Permissions&discordgo.PermissionAdministrator != 0,
		Managed:       r.Managed,
	}
}

// Channels lists the guild's categories and text channels.
func (c *Channel) Channels(ctx context.Context, guildID string) ([]command.ChannelInfo, error) {
	client, err := c.client()
	if err != nil {
		return nil, err
	}
	channels, err := client.GuildChannels(guildID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, err
	}
	out := make([]command.ChannelInfo, 0, len(channels))
	for _, ch := range channels {
		if ch.Type != discordgo.ChannelTypeGuildCategory && ch.Type != discordgo.ChannelTypeGuildText {
			continue
		}
		out = append(out, channelInfo(ch))
	}
	return out, nil
}

func (c *Channel) Channel(ctx context.Context, channelID string) (command.ChannelInfo, error) {
	client, err := c.client()
	if err != nil {
		return command.ChannelInfo{}, err
	}
	ch, err := client.Channel(channelID, discordgo.WithContext(ctx))
	if err != nil {
		return command.ChannelInfo{}, err
	}
	return channelInfo(ch), nil
}

func (c *Channel) Roles(ctx context.Context, guildID string) ([]command.RoleInfo, error) {
	client, err := c.client()
	if err != nil {
		return nil, err
	}
	roles, err := client.GuildRoles(guildID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, err
	}
	out := make([]command.RoleInfo, 0, len(roles))
	for _, r := range roles {
		out = append(out, roleInfo(r))
	}
	return out, nil
}

func (c *Channel) CreateTextChannel(ctx context.Context, guildID, parentID, name string) (command.ChannelInfo, error) {
	client, err := c.client()
	if err != nil {
		return command.ChannelInfo{}, err
	}
	ch, err := client.GuildChannelCreateComplex(guildID, discordgo.GuildChannelCreateData{
		Name:     name,
		Type:     discordgo.ChannelTypeGuildText,
		ParentID: parentID,
	}, discordgo.WithContext(ctx))
	if err != nil {
		return command.ChannelInfo{}, err
	}
	return channelInfo(ch), nil
}

// CreateRole creates a mentionable role.
func (c *Channel) CreateRole(ctx context.Context, guildID, name string) (command.RoleInfo, error) {
	client, err := c.client()
	if err != nil {
		return command.RoleInfo{}, err
	}
	mentionable := true
	r, err := client.GuildRoleCreate(guildID, &discordgo.RoleParams{
		Name:        name,
		Mentionable: &mentionable,
	}, discordgo.WithContext(ctx))
	if err != nil {
		return command.RoleInfo{}, err
	}
	return roleInfo(r), nil
}

func (c *Channel) MoveChannel(ctx context.Context, channelID, parentID string) error {
	client, err := c.client()
	if err != nil {
		return err
	}
	_, err = client.ChannelEdit(channelID, &discordgo.ChannelEdit{ParentID: parentID}, discordgo.WithContext(ctx))
	return err
}

func (c *Channel) MemberRoles(ctx context.Context, guildID, userID string) ([]string, error) {
	client, err := c.client()
	if err != nil {
		return nil, err
	}
	m, err := client.GuildMember(guildID, userID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("member %s: %w", userID, err)
	}
	return m.Roles, nil
}

func (c *Channel) AddMemberRole(ctx context.Context, guildID, userID, roleID string) error {
	client, err := c.client()
	if err != nil {
		return err
	}
	return client.GuildMemberRoleAdd(guildID, userID, roleID, discordgo.WithContext(ctx))
}

// memberPageSize is the largest page the members endpoint returns.
const memberPageSize = 1000

// RoleMembers pages through the guild member list and keeps members holding
// roleID. It needs the server members intent.
func (c *Channel) RoleMembers(ctx context.Context, guildID, roleID string) ([]command.MemberInfo, error) {
	client, err := c.client()
	if err != nil {
		return nil, err
	}
	var out []command.MemberInfo
	after := ""
	for {
		prev := after
		page, err := client.GuildMembers(guildID, after, memberPageSize, discordgo.WithContext(ctx))
		if err != nil {
			return nil, fmt.Errorf("list members: %w", err)
		}
		for _, m := range page {
			if m.User == nil {
				continue
			}
			after = m.User.ID
			if slices.Contains(m.Roles, roleID) {
				out = append(out, command.MemberInfo{ID: m.User.ID, Name: m.User.Username})
			}
		}
		if len(page) < memberPageSize || after == prev {
			return out, nil
		}
	}
}
