package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/MEKXH/gatekeeper/internal/approval"
	"github.com/MEKXH/gatekeeper/internal/config"
	"github.com/MEKXH/gatekeeper/internal/metrics"
	"github.com/spf13/cobra"
)

func NewStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show Gatekeeper configuration status",
		RunE:  runStatus,
	}
	cmd.Flags().Bool("json", false, "Print status as JSON")
	return cmd
}

type statusReport struct {
	GeneratedAt    time.Time               `json:"generated_at"`
	ConfigPath     string                  `json:"config_path"`
	ConfigFound    bool                    `json:"config_found"`
	Workspace      string                  `json:"workspace"`
	Discord        discordStatus           `json:"discord"`
	Approval       approval.Settings       `json:"approval"`
	MissingGuild   []string                `json:"missing_guild_settings"`
	PendingCount   int                     `json:"pending_approvals"`
	Gateway        config.GatewayConfig    `json:"-"`
	RuntimeMetrics metrics.RuntimeSnapshot `json:"runtime_metrics"`
}

type discordStatus struct {
	TokenConfigured bool   `json:"token_configured"`
	GuildID         string `json:"guild_id"`
	SyncCommands    bool   `json:"sync_commands"`
}

func collectStatus(cfg *config.Config, workspacePath string) statusReport {
	report := statusReport{
		GeneratedAt: time.Now().UTC(),
		ConfigPath:  config.ConfigPath(),
		Workspace:   workspacePath,
		Discord: discordStatus{
			TokenConfigured: strings.TrimSpace(cfg.Discord.Token) != "",
			GuildID:         cfg.Discord.GuildID,
			SyncCommands:    cfg.Discord.SyncCommands,
		},
		Approval:     cfg.ApprovalSettings(),
		MissingGuild: []string{},
		Gateway:      cfg.Gateway,
	}
	if _, err := os.Stat(report.ConfigPath); err == nil {
		report.ConfigFound = true
	}
	for _, slot := range cfg.Guild.Missing() {
		report.MissingGuild = append(report.MissingGuild, slot.String())
	}
	if pending, err := approval.NewJournal(workspacePath).List(approval.Query{Status: "pending"}); err == nil {
		report.PendingCount = len(pending)
	}
	if snap, err := metrics.ReadRuntimeSnapshot(workspacePath); err == nil {
		report.RuntimeMetrics = snap
	}
	return report
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	workspacePath, err := cfg.WorkspacePathChecked()
	if err != nil {
		return fmt.Errorf("invalid workspace: %w", err)
	}
	report := collectStatus(cfg, workspacePath)

	if cmd != nil {
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			data, err := json.MarshalIndent(report, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(data))
			return nil
		}
	}

	fmt.Println(titleStyle.Render("Gatekeeper Status"))

	printSection("Config")
	printRow("Path", report.ConfigPath)
	if report.ConfigFound {
		printRow("Status", okStyle.Render("OK"))
	} else {
		printRow("Status", warnStyle.Render("Not found (run 'gatekeeper init')"))
	}
	printRow("Workspace", report.Workspace)
	mode := strings.TrimSpace(cfg.Workspace.Mode)
	if mode == "" {
		mode = "default"
	}
	printRow("Mode", mode)

	printSection("Discord")
	if report.Discord.TokenConfigured {
		printRow("Token", okStyle.Render("configured"))
	} else {
		printRow("Token", warnStyle.Render("missing"))
	}
	guild := report.Discord.GuildID
	if guild == "" {
		guild = dimStyle.Render("all guilds (global commands)")
	}
	printRow("Guild", guild)
	printRow("Sync commands", fmt.Sprintf("%v", report.Discord.SyncCommands))

	printSection("Approval")
	printRow("Approver role", report.Approval.AuthorityName)
	printRow("Timeout", fmt.Sprintf("%dh", report.Approval.TimeoutHours))
	printRow("Threads", fmt.Sprintf("%v", report.Approval.OpenThreads))
	printRow("Notify failures", fmt.Sprintf("%v", report.Approval.NotifyRequesterOnFailure))
	printRow("Pending", fmt.Sprintf("%d", report.PendingCount))

	printSection("Guild")
	if len(report.MissingGuild) == 0 {
		printRow("Settings", okStyle.Render("all configured"))
	} else {
		printRow("Missing", warnStyle.Render(strings.Join(report.MissingGuild, ", ")))
	}

	printSection("Gateway")
	if report.Gateway.Enabled {
		printRow("Address", fmt.Sprintf("%s:%d", report.Gateway.Host, report.Gateway.Port))
		if report.Gateway.Token != "" {
			printRow("Auth", "token configured")
		} else {
			printRow("Auth", warnStyle.Render("no token (open)"))
		}
	} else {
		printRow("Status", dimStyle.Render("disabled"))
	}

	printSection("Runtime Metrics")
	snap := report.RuntimeMetrics
	if !snap.HasData() {
		printRow("Status", dimStyle.Render("no runtime data yet"))
		return nil
	}
	a := snap.Approval
	printRow("Updated", snap.UpdatedAt.Format(time.RFC3339))
	printRow("Approvals", fmt.Sprintf("requested=%d bypassed=%d approved=%d rejected=%d timed_out=%d interrupted=%d",
		a.Requested, a.Bypassed, a.Approved, a.Rejected, a.TimedOut, a.Interrupted))
	printRow("Decisions", fmt.Sprintf("approval_ratio=%.3f avg=%.1fs p95_proxy=%ds denied=%d",
		a.ApprovalRatio(), a.AvgDecisionSec(), a.P95ProxyDecisionSec, a.PermissionDenied))
	printRow("Actions", fmt.Sprintf("action_total=%d action_error_ratio=%.3f p95_proxy=%dms",
		snap.Action.Total, snap.Action.ErrorRatio(), snap.Action.P95ProxyLatencyMs))
	printRow("Discord", fmt.Sprintf("surface_calls=%d surface_failure_ratio=%.3f",
		snap.Surface.Calls, snap.Surface.FailureRatio()))
	return nil
}
