package discord

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/MEKXH/gatekeeper/internal/approval"
	"github.com/bwmarrin/discordgo"
)

var (
	_ approval.Surface   = (*Channel)(nil)
	_ approval.Directory = (*Channel)(nil)
)

// Publish answers the invoking interaction with the approval request. For
// invocations not created by this channel the request is posted to the
// invoking channel instead.
func (c *Channel) Publish(ctx context.Context, inv approval.Invocation, callout string, view approval.View, controls approval.Controls) (approval.MessageRef, error) {
	client, err := c.client()
	if err != nil {
		return approval.MessageRef{}, err
	}
	if own, ok := inv.(*invocation); ok {
		return own.publish(ctx, callout, view, controls)
	}
	msg, err := client.ChannelMessageSendComplex(inv.ChannelID(), &discordgo.MessageSend{
		Content:         callout,
		Embeds:          []*discordgo.MessageEmbed{toEmbed(view)},
		Components:      components(controls),
		AllowedMentions: &discordgo.MessageAllowedMentions{Parse: []discordgo.AllowedMentionType{discordgo.AllowedMentionTypeRoles}},
	}, discordgo.WithContext(ctx))
	if err != nil {
		return approval.MessageRef{}, fmt.Errorf("send approval request: %w", err)
	}
	return approval.MessageRef{ChannelID: msg.ChannelID, MessageID: msg.ID}, nil
}

func (c *Channel) Edit(ctx context.Context, ref approval.MessageRef, view approval.View, controls approval.Controls) error {
	client, err := c.client()
	if err != nil {
		return err
	}
	edit := discordgo.NewMessageEdit(ref.ChannelID, ref.MessageID)
	embeds := []*discordgo.MessageEmbed{toEmbed(view)}
	comps := components(controls)
	edit.Embeds = &embeds
	edit.Components = &comps
	if _, err := client.ChannelMessageEditComplex(edit, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("edit message %s: %w", ref.MessageID, err)
	}
	return nil
}

// CreateThread opens a thread on the request message. The auto-archive tier
// is the smallest one that outlives the approval timeout.
func (c *Channel) CreateThread(ctx context.Context, ref approval.MessageRef, name string, timeout time.Duration) (approval.ThreadRef, error) {
	client, err := c.client()
	if err != nil {
		return approval.ThreadRef{}, err
	}
	th, err := client.MessageThreadStartComplex(ref.ChannelID, ref.MessageID, &discordgo.ThreadStart{
		Name:                clip(name, maxThreadName),
		AutoArchiveDuration: archiveMinutes(timeout),
	}, discordgo.WithContext(ctx))
	if err != nil {
		return approval.ThreadRef{}, fmt.Errorf("start thread: %w", err)
	}
	return approval.ThreadRef{ID: th.ID, Name: th.Name}, nil
}

func (c *Channel) PostToThread(ctx context.Context, thread approval.ThreadRef, msg approval.Message) error {
	client, err := c.client()
	if err != nil {
		return err
	}
	_, err = client.ChannelMessageSendComplex(thread.ID, &discordgo.MessageSend{
		Content: msg.Content,
		Embeds:  embeds(msg),
	}, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("post to thread %s: %w", thread.ID, err)
	}
	return nil
}

// NotifyActor follows up on an acknowledged interaction.
func (c *Channel) NotifyActor(ctx context.Context, interaction approval.InteractionRef, text string, private bool) error {
	client, err := c.client()
	if err != nil {
		return err
	}
	params := &discordgo.WebhookParams{Content: text}
	if private {
		params.Flags = discordgo.MessageFlagsEphemeral
	}
	if _, err := client.FollowupMessageCreate(interactionFromRef(interaction), false, params, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("notify actor: %w", err)
	}
	return nil
}

// ActorHasRole matches role names resolved when the actor was built.
func (c *Channel) ActorHasRole(actor approval.Actor, roleName string) bool {
	return approval.RoleDirectory{}.ActorHasRole(actor, roleName)
}

// RoleMentions returns mentions for every guild role named roleName.
func (c *Channel) RoleMentions(ctx context.Context, guildID, roleName string) []string {
	client, err := c.client()
	if err != nil {
		return nil
	}
	roles, err := client.GuildRoles(guildID, discordgo.WithContext(ctx))
	if err != nil {
		slog.Warn("failed to list guild roles", "guild_id", guildID, "error", err)
		return nil
	}
	var mentions []string
	for _, r := range roles {
		if r.Name == roleName {
			mentions = append(mentions, "<@&"+r.ID+">")
		}
	}
	return mentions
}
