package approval

import (
	"fmt"
	"strings"
	"time"
)

// Tone is the visual intent of a view; adapters map it to colours.
type Tone int

const (
	ToneInfo Tone = iota
	ToneSuccess
	ToneDanger
	ToneWarning
)

// Field is one labelled entry of a view.
type Field struct {
	Name   string
	Value  string
	Inline bool
}

// View is a platform-neutral display payload.
type View struct {
	Title       string
	Description string
	Tone        Tone
	Fields      []Field
	Footer      string
	Timestamp   time.Time
}

// Controls describes the approve/reject affordances attached to a view.
type Controls struct {
	TicketID string
	Disabled bool
}

// Message is an outbound message produced by an action or the workflow.
type Message struct {
	Content   string
	View      *View
	Ephemeral bool
}

const (
	maxArgDisplay   = 100
	argDisplayTrunc = 97
)

// Renderer builds the user-facing views. It holds no state beyond the
// authority name and never performs I/O.
type Renderer struct {
	AuthorityName string
}

func (r Renderer) PendingRequest(actionName string, requester Actor, timeoutHours int, description string, at time.Time) View {
	view := View{
		Title:       "📋 Approval request",
		Description: fmt.Sprintf("%s requests to run `%s`.", requester.Mention(), actionName),
		Tone:        ToneInfo,
		Timestamp:   at,
		Footer:      fmt.Sprintf("Members with the %q role can approve", r.AuthorityName),
	}
	if description != "" {
		view.Fields = append(view.Fields, Field{Name: "Action", Value: description})
	}
	view.Fields = append(view.Fields,
		Field{Name: "Requested by", Value: requester.Mention(), Inline: true},
		Field{Name: "Timeout", Value: formatHours(timeoutHours), Inline: true},
	)
	return view
}

// Outcome renders an approval or rejection. Any other status is rendered as
// a rejection.
func (r Renderer) Outcome(actionName string, decider, requester Actor, outcome Status, at time.Time) View {
	if outcome == StatusApproved {
		return View{
			Title:       "✅ Approved",
			Description: fmt.Sprintf("`%s` was approved.", actionName),
			Tone:        ToneSuccess,
			Timestamp:   at,
			Fields: []Field{
				{Name: "Requested by", Value: requester.Mention(), Inline: true},
				{Name: "Approved by", Value: decider.Mention(), Inline: true},
			},
		}
	}
	return View{
		Title:       "❌ Rejected",
		Description: fmt.Sprintf("`%s` was rejected.", actionName),
		Tone:        ToneDanger,
		Timestamp:   at,
		Fields: []Field{
			{Name: "Requested by", Value: requester.Mention(), Inline: true},
			{Name: "Rejected by", Value: decider.Mention(), Inline: true},
		},
	}
}

func (r Renderer) Timeout(actionName string, timeoutHours int, at time.Time) View {
	return View{
		Title: "⏱️ Timed out",
		Description: fmt.Sprintf("`%s` was not approved within %s and has been rejected automatically.",
			actionName, formatHours(timeoutHours)),
		Tone:      ToneWarning,
		Timestamp: at,
	}
}

// RequestDetails is posted into the discussion thread.
func (r Renderer) RequestDetails(actionName, description string, args []Arg, at time.Time) View {
	view := View{
		Title:       "📝 Request details",
		Description: fmt.Sprintf("Command: `%s`", actionName),
		Tone:        ToneInfo,
		Timestamp:   at,
	}
	if description != "" {
		view.Fields = append(view.Fields, Field{Name: "Description", Value: description})
	}
	if len(args) > 0 {
		lines := make([]string, 0, len(args))
		for _, arg := range args {
			lines = append(lines, fmt.Sprintf("• **%s**: %s", arg.Name, truncateValue(arg.Value)))
		}
		view.Fields = append(view.Fields, Field{Name: "Arguments", Value: strings.Join(lines, "\n")})
	}
	return view
}

// Interrupted replaces the anchor of a ticket lost to a restart.
func (r Renderer) Interrupted(actionName string, at time.Time) View {
	return View{
		Title:       "⚠️ Request interrupted",
		Description: fmt.Sprintf("The bot restarted while `%s` was awaiting approval. Please run the command again.", actionName),
		Tone:        ToneWarning,
		Timestamp:   at,
	}
}

// Callout is the message content that pings the authority group. Without a
// matching guild role the role name is shown instead.
func (r Renderer) Callout(mentions []string) string {
	if len(mentions) == 0 {
		return fmt.Sprintf("**Members with the %q role**", r.AuthorityName)
	}
	return strings.Join(mentions, " ")
}

func formatHours(hours int) string {
	if hours == 1 {
		return "1 hour"
	}
	return fmt.Sprintf("%d hours", hours)
}

func truncateValue(value string) string {
	runes := []rune(value)
	if len(runes) <= maxArgDisplay {
		return value
	}
	return string(runes[:argDisplayTrunc]) + "..."
}
