package discord

import (
	"strings"
	"time"

	"github.com/MEKXH/gatekeeper/internal/approval"
	"github.com/bwmarrin/discordgo"
)

const (
	colorInfo    = 0x3498db
	colorSuccess = 0x2ecc71
	colorDanger  = 0xe74c3c
	colorWarning = 0xe67e22

	customIDPrefix  = "approval"
	maxThreadName   = 100
	maxEmbedField   = 1024
	maxEmbedContent = 4096
)

func toneColor(t approval.Tone) int {
	switch t {
	case approval.ToneSuccess:
		return colorSuccess
	case approval.ToneDanger:
		return colorDanger
	case approval.ToneWarning:
		return colorWarning
	default:
		return colorInfo
	}
}

func toEmbed(v approval.View) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title:       v.Title,
		Description: clip(v.Description, maxEmbedContent),
		Color:       toneColor(v.Tone),
	}
	for _, f := range v.Fields {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:   f.Name,
			Value:  clip(f.Value, maxEmbedField),
			Inline: f.Inline,
		})
	}
	if v.Footer != "" {
		embed.Footer = &discordgo.MessageEmbedFooter{Text: v.Footer}
	}
	if !v.Timestamp.IsZero() {
		embed.Timestamp = v.Timestamp.UTC().Format(time.RFC3339)
	}
	return embed
}

func embeds(msg approval.Message) []*discordgo.MessageEmbed {
	if msg.View == nil {
		return nil
	}
	return []*discordgo.MessageEmbed{toEmbed(*msg.View)}
}

func flags(msg approval.Message) discordgo.MessageFlags {
	if msg.Ephemeral {
		return discordgo.MessageFlagsEphemeral
	}
	return 0
}

// components renders approve/reject buttons. Decided requests keep the
// buttons, disabled.
func components(c approval.Controls) []discordgo.MessageComponent {
	if c.TicketID == "" {
		return []discordgo.MessageComponent{}
	}
	return []discordgo.MessageComponent{
		discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.Button{
				Label:    "✅ Approve",
				Style:    discordgo.SuccessButton,
				CustomID: customID(true, c.TicketID),
				Disabled: c.Disabled,
			},
			discordgo.Button{
				Label:    "❌ Reject",
				Style:    discordgo.DangerButton,
				CustomID: customID(false, c.TicketID),
				Disabled: c.Disabled,
			},
		}},
	}
}

func customID(approve bool, ticketID string) string {
	verb := "reject"
	if approve {
		verb = "approve"
	}
	return customIDPrefix + ":" + verb + ":" + ticketID
}

func parseCustomID(id string) (approve bool, ticketID string, ok bool) {
	parts := strings.SplitN(id, ":", 3)
	if len(parts) != 3 || parts[0] != customIDPrefix || parts[2] == "" {
		return false, "", false
	}
	switch parts[1] {
	case "approve":
		return true, parts[2], true
	case "reject":
		return false, parts[2], true
	default:
		return false, "", false
	}
}

// archiveMinutes picks the smallest thread auto-archive tier covering timeout.
func archiveMinutes(timeout time.Duration) int {
	switch {
	case timeout <= time.Hour:
		return 60
	case timeout <= 24*time.Hour:
		return 1440
	case timeout <= 72*time.Hour:
		return 4320
	default:
		return 10080
	}
}

func clip(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit-3]) + "..."
}
