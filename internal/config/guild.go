package config

import "fmt"

// GuildConfig names the categories and request channels the bot manages.
type GuildConfig struct {
	EventCategory          string `mapstructure:"event_category" json:"event_category"`
	ArchiveEventCategory   string `mapstructure:"archive_event_category" json:"archive_event_category"`
	EventRequestChannel    string `mapstructure:"event_request_channel" json:"event_request_channel"`
	ProjectCategory        string `mapstructure:"project_category" json:"project_category"`
	ArchiveProjectCategory string `mapstructure:"archive_project_category" json:"archive_project_category"`
	ProjectRequestChannel  string `mapstructure:"project_request_channel" json:"project_request_channel"`
	ClubCategory           string `mapstructure:"club_category" json:"club_category"`
	ClubRequestChannel     string `mapstructure:"club_request_channel" json:"club_request_channel"`
}

// ChannelSlot identifies one named entry of GuildConfig.
type ChannelSlot int

const (
	SlotEventCategory ChannelSlot = iota
	SlotArchiveEventCategory
	SlotEventRequestChannel
	SlotProjectCategory
	SlotArchiveProjectCategory
	SlotProjectRequestChannel
	SlotClubCategory
	SlotClubRequestChannel
)

// AllSlots lists every slot in declaration order.
var AllSlots = []ChannelSlot{
	SlotEventCategory,
	SlotArchiveEventCategory,
	SlotEventRequestChannel,
	SlotProjectCategory,
	SlotArchiveProjectCategory,
	SlotProjectRequestChannel,
	SlotClubCategory,
	SlotClubRequestChannel,
}

// Key returns the config key of the slot.
func (s ChannelSlot) Key() string {
	switch s {
	case SlotEventCategory:
		return "guild.event_category"
	case SlotArchiveEventCategory:
		return "guild.archive_event_category"
	case SlotEventRequestChannel:
		return "guild.event_request_channel"
	case SlotProjectCategory:
		return "guild.project_category"
	case SlotArchiveProjectCategory:
		return "guild.archive_project_category"
	case SlotProjectRequestChannel:
		return "guild.project_request_channel"
	case SlotClubCategory:
		return "guild.club_category"
	case SlotClubRequestChannel:
		return "guild.club_request_channel"
	default:
		return fmt.Sprintf("guild.slot(%d)", int(s))
	}
}

// EnvName returns the legacy environment variable for the slot.
func (s ChannelSlot) EnvName() string {
	if aliases := envBindings[s.Key()]; len(aliases) > 0 {
		return aliases[0]
	}
	return ""
}

func (s ChannelSlot) String() string {
	return s.Key()
}

// Slot returns the configured name for s.
func (g GuildConfig) Slot(s ChannelSlot) string {
	switch s {
	case SlotEventCategory:
		return g.EventCategory
	case SlotArchiveEventCategory:
		return g.ArchiveEventCategory
	case SlotEventRequestChannel:
		return g.EventRequestChannel
	case SlotProjectCategory:
		return g.ProjectCategory
	case SlotArchiveProjectCategory:
		return g.ArchiveProjectCategory
	case SlotProjectRequestChannel:
		return g.ProjectRequestChannel
	case SlotClubCategory:
		return g.ClubCategory
	case SlotClubRequestChannel:
		return g.ClubRequestChannel
	default:
		return ""
	}
}

// Missing returns the slots that have no configured name.
func (g GuildConfig) Missing() []ChannelSlot {
	var missing []ChannelSlot
	for _, s := range AllSlots {
		if g.Slot(s) == "" {
			missing = append(missing, s)
		}
	}
	return missing
}
