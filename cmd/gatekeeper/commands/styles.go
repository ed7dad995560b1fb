package commands

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

var (
	purple = lipgloss.Color("#8E4EC6")
	green  = lipgloss.Color("#2E8B57")
	orange = lipgloss.Color("#E67E22")
	red    = lipgloss.Color("#E74C3C")
	gray   = lipgloss.Color("241")

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(purple).
			Padding(0, 1).
			MarginBottom(1)

	sectionStyle = lipgloss.NewStyle().
			Foreground(purple).
			Bold(true)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			Width(16)

	okStyle   = lipgloss.NewStyle().Foreground(green)
	warnStyle = lipgloss.NewStyle().Foreground(orange)
	dimStyle  = lipgloss.NewStyle().Foreground(gray)
)

func printSection(name string) {
	fmt.Println()
	fmt.Println(sectionStyle.Render(name))
}

func printRow(label, value string) {
	fmt.Printf("  %s %s\n", labelStyle.Render(label+":"), value)
}

// statusColor colours approval statuses in listings.
func statusColor(status string) lipgloss.Color {
	switch status {
	case "approved":
		return green
	case "pending":
		return orange
	case "rejected", "timed_out":
		return red
	default:
		return gray
	}
}

func truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	if limit <= 1 {
		return string(r[:limit])
	}
	return string(r[:limit-1]) + "…"
}
