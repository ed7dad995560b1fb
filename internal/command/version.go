package command

import (
	"context"

	"github.com/MEKXH/gatekeeper/internal/approval"
	"github.com/MEKXH/gatekeeper/internal/version"
)

// VersionCommand implements /version.
type VersionCommand struct{}

func (c *VersionCommand) Name() string        { return "version" }
func (c *VersionCommand) Description() string { return "Show version information" }
func (c *VersionCommand) Options() []Option   { return nil }

func (c *VersionCommand) Execute(ctx context.Context, _ Args, env Env) error {
	return reply(ctx, env.Inv, approval.View{
		Title:       "gatekeeper",
		Description: version.String(),
		Tone:        approval.ToneInfo,
	}, true)
}
