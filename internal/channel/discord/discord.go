package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/MEKXH/gatekeeper/internal/approval"
	"github.com/MEKXH/gatekeeper/internal/bus"
	"github.com/MEKXH/gatekeeper/internal/channel"
	"github.com/MEKXH/gatekeeper/internal/command"
	"github.com/MEKXH/gatekeeper/internal/config"
	"github.com/bwmarrin/discordgo"
)

var errNotRunning = errors.New("discord channel not running")

// Channel implements the Discord bot: it routes slash commands to the
// command registry and button clicks to the approval workflow, and serves
// as the workflow's surface and role directory.
type Channel struct {
	channel.BaseChannel
	cfg      config.DiscordConfig
	registry *command.Registry
	env      command.Env
	workflow *approval.Workflow

	mu       sync.RWMutex
	session  *discordgo.Session
	api      api
	appID    string
	baseCtx  context.Context
	cancel   context.CancelFunc
	running  bool
	handlers sync.WaitGroup
}

// New creates a Discord channel. env supplies the guild config, metrics and
// workspace passed to every command.
func New(cfg config.DiscordConfig, registry *command.Registry, env command.Env) *Channel {
	return &Channel{
		BaseChannel: channel.BaseChannel{AllowList: channel.NewAllowList(cfg.GuildID)},
		cfg:         cfg,
		registry:    registry,
		env:         env,
	}
}

// SetWorkflow attaches the approval workflow. The workflow itself takes the
// channel as surface and directory, so it is wired after construction.
func (c *Channel) SetWorkflow(wf *approval.Workflow) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.workflow = wf
}

func (c *Channel) Name() string { return "discord" }

func (c *Channel) Start(ctx context.Context) error {
	token := strings.TrimSpace(c.cfg.Token)
	if token == "" {
		return fmt.Errorf("discord token is empty")
	}

	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return fmt.Errorf("create discord session: %w", err)
	}
	s.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMembers
	s.AddHandler(c.handleInteractionCreate)

	if err := s.Open(); err != nil {
		return fmt.Errorf("open discord session: %w", err)
	}

	appID := ""
	if s.State != nil && s.State.User != nil {
		appID = s.State.User.ID
		slog.Info("discord bot connected", "username", s.State.User.Username, "id", appID)
	}
	c.attach(s, s, appID)

	if c.cfg.SyncCommands {
		if err := c.syncCommands(ctx); err != nil {
			slog.Error("slash command sync failed", "guild_id", c.cfg.GuildID, "error", err)
		}
	}
	return nil
}

func (c *Channel) attach(session *discordgo.Session, client api, appID string) {
	base, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session = session
	c.api = client
	c.appID = appID
	c.baseCtx = base
	c.cancel = cancel
	c.running = true
}

func (c *Channel) Stop(ctx context.Context) error {
	c.mu.Lock()
	s := c.session
	cancel := c.cancel
	c.session = nil
	c.running = false
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	done := make(chan struct{})
	go func() {
		c.handlers.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		slog.Warn("discord handlers still running at shutdown", "error", ctx.Err())
	}
	if s != nil {
		return s.Close()
	}
	return nil
}

func (c *Channel) client() (api, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.running || c.api == nil {
		return nil, errNotRunning
	}
	return c.api, nil
}

func (c *Channel) handleInteractionCreate(_ *discordgo.Session, ic *discordgo.InteractionCreate) {
	if ic == nil || ic.Interaction == nil {
		return
	}
	c.mu.RLock()
	ctx := c.baseCtx
	c.mu.RUnlock()
	if ctx == nil {
		return
	}
	c.handlers.Add(1)
	defer c.handlers.Done()
	c.handle(ctx, ic.Interaction)
}

func (c *Channel) handle(ctx context.Context, i *discordgo.Interaction) {
	if i.GuildID != "" && !c.IsAllowed(i.GuildID) {
		slog.Debug("ignoring interaction from other guild", "guild_id", i.GuildID)
		return
	}
	ctx, _ = bus.EnsureRequestID(ctx)

	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		c.handleCommand(ctx, i)
	case discordgo.InteractionMessageComponent:
		c.handleComponent(ctx, i)
	}
}

func (c *Channel) handleCommand(ctx context.Context, i *discordgo.Interaction) {
	client, err := c.client()
	if err != nil {
		return
	}
	data := i.ApplicationCommandData()
	inv := c.newInvocation(ctx, client, i)

	c.mu.RLock()
	env := c.env
	env.Workflow = c.workflow
	c.mu.RUnlock()
	env.Inv = inv
	env.Guild = c

	requestID := bus.RequestIDFromContext(ctx)
	err = c.registry.Dispatch(ctx, data.Name, argsFromOptions(data.Options), env)
	switch {
	case err == nil:
		slog.Debug("command handled", "request_id", requestID, "command", data.Name, "user", inv.actor.Name)
	case errors.Is(err, command.ErrUnknownCommand),
		errors.Is(err, command.ErrRestricted),
		errors.Is(err, command.ErrNotConfigured),
		errors.Is(err, approval.ErrNoGuildScope):
		slog.Info("command refused", "request_id", requestID, "command", data.Name, "user", inv.actor.Name, "reason", err)
	default:
		slog.Error("command failed", "request_id", requestID, "command", data.Name, "user", inv.actor.Name, "error", err)
		notice := approval.Message{
			Content:   fmt.Sprintf("An error occurred while running the command: %v", err),
			Ephemeral: true,
		}
		if err := inv.Reply(ctx, notice); err != nil {
			slog.Warn("failed to report command error", "request_id", requestID, "error", err)
		}
	}
}

func (c *Channel) handleComponent(ctx context.Context, i *discordgo.Interaction) {
	client, err := c.client()
	if err != nil {
		return
	}
	approve, ticketID, ok := parseCustomID(i.MessageComponentData().CustomID)
	if !ok {
		return
	}
	requestID := bus.RequestIDFromContext(ctx)

	// Acknowledge first so the workflow can answer with follow-ups.
	err = client.InteractionRespond(i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredMessageUpdate,
	}, discordgo.WithContext(ctx))
	if err != nil {
		slog.Warn("failed to acknowledge approval click", "request_id", requestID, "ticket_id", ticketID, "error", err)
	}

	c.mu.RLock()
	wf := c.workflow
	c.mu.RUnlock()
	if wf == nil {
		slog.Error("approval click without workflow", "request_id", requestID, "ticket_id", ticketID)
		return
	}

	actor, _ := c.actorFor(ctx, client, i)
	err = wf.Decide(ctx, approval.Decision{
		TicketID:    ticketID,
		Approve:     approve,
		Actor:       actor,
		Interaction: interactionRef(i),
	})
	switch {
	case err == nil:
	case errors.Is(err, approval.ErrTicketNotFound),
		errors.Is(err, approval.ErrNotAuthorized),
		errors.Is(err, approval.ErrAlreadyDecided),
		errors.Is(err, approval.ErrNoGuildScope):
		slog.Info("approval click refused", "request_id", requestID, "ticket_id", ticketID, "actor", actor.Name, "reason", err)
	default:
		slog.Error("approval decision failed", "request_id", requestID, "ticket_id", ticketID, "error", err)
	}
}

func (c *Channel) newInvocation(ctx context.Context, client api, i *discordgo.Interaction) *invocation {
	inv := &invocation{api: client, interaction: i}
	inv.actor, inv.hasActor = c.actorFor(ctx, client, i)
	if ch, err := client.Channel(i.ChannelID, discordgo.WithContext(ctx)); err == nil {
		inv.channelName = ch.Name
	} else {
		slog.Warn("failed to resolve interaction channel", "channel_id", i.ChannelID, "error", err)
	}
	return inv
}

// actorFor builds the acting member with role names resolved. Direct
// messages carry no member and yield an actor without guild.
func (c *Channel) actorFor(ctx context.Context, client api, i *discordgo.Interaction) (approval.Actor, bool) {
	if i.Member == nil || i.Member.User == nil {
		if i.User != nil {
			return approval.Actor{ID: i.User.ID, Name: i.User.Username}, false
		}
		return approval.Actor{}, false
	}
	actor := approval.Actor{
		ID:      i.Member.User.ID,
		Name:    i.Member.User.Username,
		GuildID: i.GuildID,
	}
	if len(i.Member.Roles) == 0 {
		return actor, true
	}
	roles, err := client.GuildRoles(i.GuildID, discordgo.WithContext(ctx))
	if err != nil {
		slog.Warn("failed to resolve member roles", "guild_id", i.GuildID, "user", actor.Name, "error", err)
		return actor, true
	}
	names := make(map[string]string, len(roles))
	for _, r := range roles {
		names[r.ID] = r.Name
	}
	for _, id := range i.Member.Roles {
		if name, ok := names[id]; ok {
			actor.Roles = append(actor.Roles, name)
		}
	}
	return actor, true
}
