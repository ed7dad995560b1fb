package command

import (
	"context"
	"fmt"
	"strings"

	"github.com/MEKXH/gatekeeper/internal/approval"
)

// HelpCommand implements /help.
type HelpCommand struct{}

func (c *HelpCommand) Name() string        { return "help" }
func (c *HelpCommand) Description() string { return "List available slash commands" }
func (c *HelpCommand) Options() []Option   { return nil }

func (c *HelpCommand) Execute(ctx context.Context, _ Args, env Env) error {
	var cmds []Command
	if env.ListCommands != nil {
		cmds = env.ListCommands()
	}
	fields := make([]approval.Field, 0, len(cmds))
	for _, cmd := range cmds {
		var sb strings.Builder
		sb.WriteString(cmd.Description())
		for _, opt := range cmd.Options() {
			if opt.Required {
				sb.WriteString(fmt.Sprintf("\n`%s` (required)", opt.Name))
			} else {
				sb.WriteString(fmt.Sprintf("\n`%s`", opt.Name))
			}
		}
		if noted, ok := cmd.(Noted); ok {
			sb.WriteString("\n• " + noted.Notes())
		}
		fields = append(fields, approval.Field{Name: "/" + cmd.Name(), Value: sb.String()})
	}

	authority := approval.DefaultAuthorityName
	if env.Workflow != nil {
		authority = env.Workflow.Settings().AuthorityName
	}
	view := approval.View{
		Title:       "📖 Available commands",
		Description: fmt.Sprintf("Commands marked as needing approval run immediately for members with the %q role.", authority),
		Tone:        approval.ToneInfo,
		Fields:      fields,
	}
	return reply(ctx, env.Inv, view, true)
}
