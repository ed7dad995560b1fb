package command

import (
	"context"
	"fmt"
	"strings"

	"github.com/MEKXH/gatekeeper/internal/approval"
)

// Illustrated is implemented by commands with usage examples for /docs.
type Illustrated interface {
	Examples() []string
}

// DocsCommand implements /docs. Topics are the commands offered as choices.
type DocsCommand struct {
	Topics []string
}

// newDocsCommand offers every command of cmds except /help and /docs.
func newDocsCommand(cmds []Command) *DocsCommand {
	d := &DocsCommand{}
	for _, cmd := range cmds {
		switch cmd.Name() {
		case "help", "docs":
			continue
		}
		d.Topics = append(d.Topics, cmd.Name())
	}
	return d
}

func (c *DocsCommand) Name() string        { return "docs" }
func (c *DocsCommand) Description() string { return "Show detailed documentation for a command" }

func (c *DocsCommand) Options() []Option {
	choices := make([]Choice, len(c.Topics))
	for i, name := range c.Topics {
		choices[i] = Choice{Name: name, Value: name}
	}
	return []Option{{Name: "command", Description: "Command to describe (omit for the list)", Choices: choices}}
}

func (c *DocsCommand) Execute(ctx context.Context, args Args, env Env) error {
	name := strings.TrimPrefix(args.Get("command"), "/")
	if name == "" {
		return reply(ctx, env.Inv, approval.View{
			Title:       "📚 Command documentation",
			Description: "Pick a command to see its details.",
			Tone:        approval.ToneSuccess,
			Fields:      []approval.Field{{Name: "Available commands", Value: c.topicList("\n", "• `/docs command:%s`")}},
		}, true)
	}

	cmd, ok := c.lookup(name, env)
	if !ok {
		return reply(ctx, env.Inv, approval.View{
			Title:       "❌ Error",
			Description: fmt.Sprintf("No documentation for `%s`.", name),
			Tone:        approval.ToneDanger,
			Fields:      []approval.Field{{Name: "Available commands", Value: c.topicList(", ", "`%s`")}},
		}, true)
	}

	authority := approval.DefaultAuthorityName
	if env.Workflow != nil {
		authority = env.Workflow.Settings().AuthorityName
	}
	return reply(ctx, env.Inv, docView(cmd, authority), true)
}

func (c *DocsCommand) lookup(name string, env Env) (Command, bool) {
	found := false
	for _, topic := range c.Topics {
		if topic == name {
			found = true
		}
	}
	if !found || env.ListCommands == nil {
		return nil, false
	}
	for _, cmd := range env.ListCommands() {
		if cmd.Name() == name {
			return cmd, true
		}
	}
	return nil, false
}

func (c *DocsCommand) topicList(sep, format string) string {
	if len(c.Topics) == 0 {
		return "None"
	}
	items := make([]string, len(c.Topics))
	for i, name := range c.Topics {
		items[i] = fmt.Sprintf(format, name)
	}
	return strings.Join(items, sep)
}

func docView(cmd Command, authority string) approval.View {
	usage := []string{"/" + cmd.Name()}
	var params []string
	for _, opt := range cmd.Options() {
		if opt.Required {
			usage = append(usage, "<"+opt.Name+">")
		} else {
			usage = append(usage, "["+opt.Name+"]")
		}
		line := fmt.Sprintf("**%s**: %s", opt.Name, opt.Description)
		if len(opt.Choices) > 0 {
			values := make([]string, len(opt.Choices))
			for i, ch := range opt.Choices {
				values[i] = "`" + ch.Value + "`"
			}
			line += " (" + strings.Join(values, ", ") + ")"
		}
		params = append(params, line)
	}

	fields := []approval.Field{{Name: "📝 Usage", Value: "`" + strings.Join(usage, " ") + "`"}}
	if len(params) > 0 {
		fields = append(fields, approval.Field{Name: "⚙️ Parameters", Value: strings.Join(params, "\n")})
	}
	if noted, ok := cmd.(Noted); ok {
		fields = append(fields, approval.Field{Name: "🚫 Restrictions", Value: noted.Notes()})
	}
	if _, ok := cmd.(Gated); ok {
		fields = append(fields, approval.Field{
			Name:  "🔐 Approval",
			Value: fmt.Sprintf("Required unless you hold the %q role.", authority),
		})
	}
	if ill, ok := cmd.(Illustrated); ok {
		examples := make([]string, 0, len(ill.Examples()))
		for _, ex := range ill.Examples() {
			examples = append(examples, "`"+ex+"`")
		}
		fields = append(fields, approval.Field{Name: "💡 Examples", Value: strings.Join(examples, "\n")})
	}

	return approval.View{
		Title:       "📖 /" + cmd.Name(),
		Description: cmd.Description(),
		Tone:        approval.ToneSuccess,
		Fields:      fields,
	}
}
