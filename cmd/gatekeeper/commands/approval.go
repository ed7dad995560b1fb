package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/MEKXH/gatekeeper/internal/approval"
	"github.com/MEKXH/gatekeeper/internal/config"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

func NewApprovalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "approval",
		Short: "Inspect approval requests",
	}

	cmd.AddCommand(
		newApprovalListCmd(),
		newApprovalShowCmd(),
	)

	return cmd
}

func newApprovalListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List journaled approval requests",
		RunE:  runApprovalList,
	}
	cmd.Flags().String("status", "", "Filter by status (pending|approved|rejected|timed_out|interrupted)")
	cmd.Flags().String("action", "", "Filter by action name")
	return cmd
}

func newApprovalShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one approval request",
		Args:  cobra.ExactArgs(1),
		RunE:  runApprovalShow,
	}
}

func runApprovalList(cmd *cobra.Command, args []string) error {
	journal, err := loadJournal()
	if err != nil {
		return err
	}

	var q approval.Query
	if cmd != nil {
		q.Status, _ = cmd.Flags().GetString("status")
		q.Action, _ = cmd.Flags().GetString("action")
	}
	records, err := journal.List(q)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		if strings.TrimSpace(q.Status) != "" {
			fmt.Printf("No %s approvals.\n", strings.ToLower(strings.TrimSpace(q.Status)))
		} else {
			fmt.Println("No approvals.")
		}
		return nil
	}

	var (
		wID        = 10
		wAction    = 26
		wRequester = 18
		wCreated   = 20
		wStatus    = 12

		colHeaderStyle = lipgloss.NewStyle().
				Foreground(purple).
				Bold(true).
				MarginRight(1)
		cell = func(width int) lipgloss.Style {
			return lipgloss.NewStyle().Width(width).MarginRight(1)
		}
	)

	fmt.Println(titleStyle.Render("Approval Requests"))

	headers := lipgloss.JoinHorizontal(lipgloss.Top,
		colHeaderStyle.Width(wID).Render("ID"),
		colHeaderStyle.Width(wAction).Render("ACTION"),
		colHeaderStyle.Width(wRequester).Render("REQUESTER"),
		colHeaderStyle.Width(wCreated).Render("CREATED"),
		colHeaderStyle.Width(wStatus).Render("STATUS"),
	)
	fmt.Printf("  %s\n", headers)

	sepStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("240")).MarginRight(1)
	separator := lipgloss.JoinHorizontal(lipgloss.Top,
		sepStyle.Render(strings.Repeat("─", wID)),
		sepStyle.Render(strings.Repeat("─", wAction)),
		sepStyle.Render(strings.Repeat("─", wRequester)),
		sepStyle.Render(strings.Repeat("─", wCreated)),
		sepStyle.Render(strings.Repeat("─", wStatus)),
	)
	fmt.Printf("  %s\n", separator)

	for _, rec := range records {
		requester := rec.RequesterName
		if requester == "" {
			requester = rec.RequesterID
		}
		row := lipgloss.JoinHorizontal(lipgloss.Top,
			cell(wID).Foreground(gray).Render(truncate(rec.ID, wID)),
			cell(wAction).Render(truncate(rec.Action, wAction)),
			cell(wRequester).Render(truncate(requester, wRequester)),
			cell(wCreated).Render(rec.CreatedAt.Local().Format("2006-01-02 15:04:05")),
			cell(wStatus).Foreground(statusColor(rec.Status)).Render(rec.Status),
		)
		fmt.Printf("  %s\n", row)
	}

	fmt.Println()
	return nil
}

func runApprovalShow(cmd *cobra.Command, args []string) error {
	journal, err := loadJournal()
	if err != nil {
		return err
	}
	rec, err := journal.Get(strings.TrimSpace(args[0]))
	if err != nil {
		return fmt.Errorf("approval %s: %w", args[0], err)
	}

	fmt.Println(titleStyle.Render("Approval " + rec.ID))
	printRow("Action", rec.Action)
	if rec.Description != "" {
		printRow("Description", rec.Description)
	}
	for _, arg := range rec.Args {
		printRow(arg.Name, arg.Value)
	}
	printRow("Status", lipgloss.NewStyle().Foreground(statusColor(rec.Status)).Render(rec.Status))
	printRow("Requester", fmt.Sprintf("%s (%s)", rec.RequesterName, rec.RequesterID))
	printRow("Guild", rec.GuildID)
	printRow("Created", rec.CreatedAt.Local().Format(time.RFC3339))
	printRow("Deadline", rec.Deadline.Local().Format(time.RFC3339))
	if !rec.DecidedAt.IsZero() {
		printRow("Decided", rec.DecidedAt.Local().Format(time.RFC3339))
	}
	if rec.DecidedByID != "" {
		printRow("Decided by", fmt.Sprintf("%s (%s)", rec.DecidedByName, rec.DecidedByID))
	}
	if rec.ActionError != "" {
		printRow("Action error", warnStyle.Render(rec.ActionError))
	}
	return nil
}

func loadJournal() (*approval.Journal, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	workspacePath, err := cfg.WorkspacePathChecked()
	if err != nil {
		return nil, fmt.Errorf("invalid workspace: %w", err)
	}
	return approval.NewJournal(workspacePath), nil
}
