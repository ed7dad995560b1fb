package command

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/MEKXH/gatekeeper/internal/approval"
	"github.com/MEKXH/gatekeeper/internal/metrics"
)

const maxStatusTickets = 10

// StatusCommand implements /status.
type StatusCommand struct{}

func (c *StatusCommand) Name() string        { return "status" }
func (c *StatusCommand) Description() string { return "Show pending approvals and runtime metrics" }
func (c *StatusCommand) Options() []Option   { return nil }

func (c *StatusCommand) Execute(ctx context.Context, _ Args, env Env) error {
	var fields []approval.Field

	// Pending approvals
	if env.Workflow != nil {
		pending := env.Workflow.Pending()
		var sb strings.Builder
		if len(pending) == 0 {
			sb.WriteString("None")
		}
		for i, t := range pending {
			if i == maxStatusTickets {
				sb.WriteString(fmt.Sprintf("\n…and %d more", len(pending)-maxStatusTickets))
				break
			}
			if i > 0 {
				sb.WriteString("\n")
			}
			sb.WriteString(fmt.Sprintf("`%s` by %s, expires <t:%d:R>", t.ActionName, t.Requester.Mention(), t.Deadline.Unix()))
		}
		fields = append(fields, approval.Field{Name: fmt.Sprintf("Pending approvals (%d)", len(pending)), Value: sb.String()})
	}

	// Runtime metrics
	value := "Unavailable"
	if env.Metrics != nil {
		snap := env.Metrics.Snapshot()
		if !snap.HasData() && env.WorkspacePath != "" {
			snap, _ = metrics.ReadRuntimeSnapshot(env.WorkspacePath)
		}
		if snap.HasData() {
			value = formatSnapshot(snap)
		} else {
			value = "No data yet"
		}
	}
	fields = append(fields, approval.Field{Name: "Metrics", Value: value})

	return reply(ctx, env.Inv, approval.View{
		Title:     "📊 Status",
		Tone:      approval.ToneInfo,
		Fields:    fields,
		Timestamp: time.Now(),
	}, true)
}

func formatSnapshot(snap metrics.RuntimeSnapshot) string {
	a := snap.Approval
	lines := []string{
		fmt.Sprintf("Updated: `%s`", snap.UpdatedAt.Format(time.RFC3339)),
		fmt.Sprintf("Requests: %d (bypassed %d)", a.Requested, a.Bypassed),
		fmt.Sprintf("Approved %d, rejected %d, timed out %d", a.Approved, a.Rejected, a.TimedOut),
		fmt.Sprintf("Decision p95: %ds", a.P95ProxyDecisionSec),
		fmt.Sprintf("Actions: %d runs, err=%.1f%%", snap.Action.Total, snap.Action.ErrorRatio()*100),
		fmt.Sprintf("Discord calls: %d, fail=%.1f%%", snap.Surface.Calls, snap.Surface.FailureRatio()*100),
	}
	return strings.Join(lines, "\n")
}
