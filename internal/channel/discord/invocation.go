package discord

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/MEKXH/gatekeeper/internal/approval"
	"github.com/bwmarrin/discordgo"
)

// invocation adapts one slash-command interaction to approval.Invocation.
type invocation struct {
	api         api
	interaction *discordgo.Interaction
	actor       approval.Actor
	hasActor    bool
	channelName string
	responded   atomic.Bool
}

var _ approval.Invocation = (*invocation)(nil)

func (v *invocation) GuildID() string     { return v.interaction.GuildID }
func (v *invocation) ChannelID() string   { return v.interaction.ChannelID }
func (v *invocation) ChannelName() string { return v.channelName }

func (v *invocation) Actor() (approval.Actor, bool) {
	return v.actor, v.hasActor
}

func (v *invocation) Interaction() approval.InteractionRef {
	return interactionRef(v.interaction)
}

func (v *invocation) Responded() bool {
	return v.responded.Load()
}

// Reply answers the interaction, or follows up when it was already answered.
func (v *invocation) Reply(ctx context.Context, msg approval.Message) error {
	if v.responded.Load() {
		return v.FollowUp(ctx, msg)
	}
	err := v.api.InteractionRespond(v.interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: msg.Content,
			Embeds:  embeds(msg),
			Flags:   flags(msg),
		},
	}, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("respond to interaction: %w", err)
	}
	v.responded.Store(true)
	return nil
}

func (v *invocation) FollowUp(ctx context.Context, msg approval.Message) error {
	_, err := v.api.FollowupMessageCreate(v.interaction, false, &discordgo.WebhookParams{
		Content: msg.Content,
		Embeds:  embeds(msg),
		Flags:   flags(msg),
	}, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("send follow-up: %w", err)
	}
	return nil
}

// Defer acknowledges the interaction so later output arrives as follow-ups.
func (v *invocation) Defer(ctx context.Context) error {
	if v.responded.Load() {
		return nil
	}
	err := v.api.InteractionRespond(v.interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	}, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("defer interaction: %w", err)
	}
	v.responded.Store(true)
	return nil
}

// publish sends the approval request as the interaction's answer and
// returns a reference to the posted message.
func (v *invocation) publish(ctx context.Context, callout string, view approval.View, controls approval.Controls) (approval.MessageRef, error) {
	mentions := &discordgo.MessageAllowedMentions{Parse: []discordgo.AllowedMentionType{discordgo.AllowedMentionTypeRoles}}
	if v.responded.Load() {
		msg, err := v.api.FollowupMessageCreate(v.interaction, true, &discordgo.WebhookParams{
			Content:         callout,
			Embeds:          []*discordgo.MessageEmbed{toEmbed(view)},
			Components:      components(controls),
			AllowedMentions: mentions,
		}, discordgo.WithContext(ctx))
		if err != nil {
			return approval.MessageRef{}, fmt.Errorf("send approval request: %w", err)
		}
		return approval.MessageRef{ChannelID: msg.ChannelID, MessageID: msg.ID}, nil
	}

	err := v.api.InteractionRespond(v.interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content:         callout,
			Embeds:          []*discordgo.MessageEmbed{toEmbed(view)},
			Components:      components(controls),
			AllowedMentions: mentions,
		},
	}, discordgo.WithContext(ctx))
	if err != nil {
		return approval.MessageRef{}, fmt.Errorf("send approval request: %w", err)
	}
	v.responded.Store(true)

	msg, err := v.api.InteractionResponse(v.interaction, discordgo.WithContext(ctx))
	if err != nil {
		return approval.MessageRef{}, fmt.Errorf("load approval request message: %w", err)
	}
	return approval.MessageRef{ChannelID: msg.ChannelID, MessageID: msg.ID}, nil
}

func interactionRef(i *discordgo.Interaction) approval.InteractionRef {
	return approval.InteractionRef{ID: i.ID, AppID: i.AppID, Token: i.Token}
}

func interactionFromRef(ref approval.InteractionRef) *discordgo.Interaction {
	return &discordgo.Interaction{ID: ref.ID, AppID: ref.AppID, Token: ref.Token}
}
