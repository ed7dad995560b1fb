package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/MEKXH/gatekeeper/internal/approval"
	"github.com/MEKXH/gatekeeper/internal/config"
	"github.com/MEKXH/gatekeeper/internal/metrics"
)

var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrRestricted     = errors.New("command not allowed in this channel")
	ErrNotConfigured  = errors.New("required guild setting is missing")
)

// Env carries per-invocation context for a slash command.
type Env struct {
	Inv           approval.Invocation
	Guild         Guild
	Config        config.GuildConfig
	Workflow      *approval.Workflow
	Metrics       *metrics.RuntimeMetrics
	WorkspacePath string
	ListCommands  func() []Command // for /help
}

// OptionKind is the value type of a command option.
type OptionKind int

const (
	OptionString OptionKind = iota
	OptionChannel
)

// Choice is one allowed value of an option.
type Choice struct {
	Name  string
	Value string
}

// Option describes one slash command parameter.
type Option struct {
	Name        string
	Description string
	Kind        OptionKind
	Required    bool
	Choices     []Choice
}

// Args are the option values of one invocation in declaration order.
// Channel options carry the channel ID.
type Args []approval.Arg

// Get returns the trimmed value of the named option, or "".
func (a Args) Get(name string) string {
	for _, arg := range a {
		if arg.Name == name {
			return strings.TrimSpace(arg.Value)
		}
	}
	return ""
}

// Summary lists the non-empty options for request details.
func (a Args) Summary() []approval.Arg {
	out := make([]approval.Arg, 0, len(a))
	for _, arg := range a {
		if strings.TrimSpace(arg.Value) != "" {
			out = append(out, arg)
		}
	}
	return out
}

// Command is the interface every slash command must implement.
type Command interface {
	// Name returns the command trigger without the leading slash.
	Name() string
	Description() string
	Options() []Option
	Execute(ctx context.Context, args Args, env Env) error
}

// Restriction ties a command to the channel configured in Slot. With
// MustBeIn the command runs only there, otherwise anywhere but there.
type Restriction struct {
	Slot     config.ChannelSlot
	MustBeIn bool
}

// Restricted is implemented by commands limited to certain channels.
type Restricted interface {
	Restriction(args Args) (Restriction, bool)
}

// Gate describes the approval request a gated command opens.
type Gate struct {
	Action      string
	Description string
	ThreadName  string
}

// Gated is implemented by commands that need approval unless the caller
// holds the approver role.
type Gated interface {
	Approval(args Args) Gate
}

// Noted is implemented by commands with usage notes for /help.
type Noted interface {
	Notes() string
}

// Registry holds registered slash commands and dispatches them.
type Registry struct {
	mu   sync.RWMutex
	cmds map[string]Command
}

// NewRegistry creates an empty command registry.
func NewRegistry() *Registry {
	return &Registry{cmds: make(map[string]Command)}
}

// NewDefaultRegistry registers every built-in command.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(&CreateChannelCommand{})
	r.Register(&ArchiveChannelCommand{})
	r.Register(&RestoreChannelCommand{})
	r.Register(&AddRoleMembersCommand{})
	r.Register(&ShowRoleMembersCommand{})
	r.Register(&HelpCommand{})
	r.Register(&StatusCommand{})
	r.Register(&VersionCommand{})
	r.Register(newDocsCommand(r.List()))
	return r
}

// Register adds a command. Panics on duplicate names.
func (r *Registry) Register(cmd Command) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := strings.ToLower(cmd.Name())
	if _, dup := r.cmds[name]; dup {
		panic("command already registered: " + name)
	}
	r.cmds[name] = cmd
}

// Lookup finds a command by name.
func (r *Registry) Lookup(name string) (Command, bool) {
	name = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "/")))
	if name == "" {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	cmd, ok := r.cmds[name]
	return cmd, ok
}

// List returns all registered commands sorted by name.
func (r *Registry) List() []Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Command, 0, len(r.cmds))
	for _, cmd := range r.cmds {
		out = append(out, cmd)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Dispatch runs a command: channel restriction first, then the approval
// gate, then the command itself.
func (r *Registry) Dispatch(ctx context.Context, name string, args Args, env Env) error {
	cmd, ok := r.Lookup(name)
	if !ok {
		sendError(ctx, env.Inv, fmt.Sprintf("Unknown command `/%s`.", name))
		return fmt.Errorf("%w: %s", ErrUnknownCommand, name)
	}
	if env.ListCommands == nil {
		env.ListCommands = r.List
	}

	if rc, ok := cmd.(Restricted); ok {
		if restriction, ok := rc.Restriction(args); ok {
			if err := checkRestriction(ctx, restriction, env); err != nil {
				return err
			}
		}
	}

	if gc, ok := cmd.(Gated); ok && env.Workflow != nil {
		gate := gc.Approval(args)
		action := approval.Bind(gate.Action, args, func(ctx context.Context, inv approval.Invocation, a Args) error {
			runEnv := env
			runEnv.Inv = inv
			return cmd.Execute(ctx, a, runEnv)
		}).WithDescription(gate.Description)
		action.ThreadName = gate.ThreadName
		_, err := env.Workflow.Submit(ctx, env.Inv, action)
		return err
	}

	return cmd.Execute(ctx, args, env)
}

func checkRestriction(ctx context.Context, restriction Restriction, env Env) error {
	channelName := env.Config.Slot(restriction.Slot)
	if channelName == "" {
		slog.Warn("command restriction not configured", "setting", restriction.Slot.String(), "env", restriction.Slot.EnvName())
		sendError(ctx, env.Inv, fmt.Sprintf("The `%s` setting is missing. Ask an administrator to update the bot configuration.", restriction.Slot))
		return fmt.Errorf("%w: %s", ErrNotConfigured, restriction.Slot)
	}
	inChannel := env.Inv.ChannelName() == channelName
	if inChannel == restriction.MustBeIn {
		return nil
	}
	if restriction.MustBeIn {
		sendError(ctx, env.Inv, fmt.Sprintf("This command can only be used in `%s`.", channelName))
	} else {
		sendError(ctx, env.Inv, fmt.Sprintf("This command cannot be used in `%s`.", channelName))
	}
	return ErrRestricted
}
