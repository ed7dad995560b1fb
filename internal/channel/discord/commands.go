package discord

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/MEKXH/gatekeeper/internal/approval"
	"github.com/MEKXH/gatekeeper/internal/command"
	"github.com/bwmarrin/discordgo"
)

// applicationCommands converts the registry into slash command definitions.
func applicationCommands(cmds []command.Command) []*discordgo.ApplicationCommand {
	dmAllowed := false
	out := make([]*discordgo.ApplicationCommand, 0, len(cmds))
	for _, cmd := range cmds {
		ac := &discordgo.ApplicationCommand{
			Name:         cmd.Name(),
			Description:  cmd.Description(),
			DMPermission: &dmAllowed,
		}
		for _, opt := range cmd.Options() {
			ao := &discordgo.ApplicationCommandOption{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        opt.Name,
				Description: opt.Description,
				Required:    opt.Required,
			}
			if opt.Kind == command.OptionChannel {
				ao.Type = discordgo.ApplicationCommandOptionChannel
				ao.ChannelTypes = []discordgo.ChannelType{discordgo.ChannelTypeGuildText}
			}
			for _, choice := range opt.Choices {
				ao.Choices = append(ao.Choices, &discordgo.ApplicationCommandOptionChoice{
					Name:  choice.Name,
					Value: choice.Value,
				})
			}
			ac.Options = append(ac.Options, ao)
		}
		out = append(out, ac)
	}
	return out
}

// syncCommands replaces the registered slash commands with the registry's.
// An empty guild ID registers them globally.
func (c *Channel) syncCommands(ctx context.Context) error {
	client, err := c.client()
	if err != nil {
		return err
	}
	c.mu.RLock()
	appID := c.appID
	c.mu.RUnlock()
	if appID == "" {
		return fmt.Errorf("application id unknown")
	}
	defs := applicationCommands(c.registry.List())
	created, err := client.ApplicationCommandBulkOverwrite(appID, c.cfg.GuildID, defs, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("overwrite slash commands: %w", err)
	}
	slog.Info("slash commands synced", "count", len(created), "guild_id", c.cfg.GuildID)
	return nil
}

func argsFromOptions(opts []*discordgo.ApplicationCommandInteractionDataOption) command.Args {
	args := make(command.Args, 0, len(opts))
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		value := ""
		switch v := opt.Value.(type) {
		case string:
			value = v
		case nil:
		default:
			value = fmt.Sprint(v)
		}
		args = append(args, approval.Arg{Name: opt.Name, Value: value})
	}
	return args
}
