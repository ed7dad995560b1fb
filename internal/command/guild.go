package command

import (
	"context"
	"regexp"
	"strconv"

	"github.com/MEKXH/gatekeeper/internal/config"
)

// ChannelInfo is the subset of a guild channel the commands work with.
type ChannelInfo struct {
	ID       string
	Name     string
	ParentID string
	Category bool
}

// RoleInfo is the subset of a guild role the commands work with.
type RoleInfo struct {
	ID            string
	Name          string
	Administrator bool
	Managed       bool // owned by a bot or integration
}

// MemberInfo is the subset of a guild member the commands work with.
type MemberInfo struct {
	ID   string
	Name string
}

// Guild performs server-side channel and role operations.
type Guild interface {
	Channels(ctx context.Context, guildID string) ([]ChannelInfo, error)
	Channel(ctx context.Context, channelID string) (ChannelInfo, error)
	Roles(ctx context.Context, guildID string) ([]RoleInfo, error)
	CreateTextChannel(ctx context.Context, guildID, parentID, name string) (ChannelInfo, error)
	CreateRole(ctx context.Context, guildID, name string) (RoleInfo, error)
	MoveChannel(ctx context.Context, channelID, parentID string) error
	MemberRoles(ctx context.Context, guildID, userID string) ([]string, error)
	AddMemberRole(ctx context.Context, guildID, userID, roleID string) error
	RoleMembers(ctx context.Context, guildID, roleID string) ([]MemberInfo, error)
}

// kind is a managed channel family.
type kind struct {
	name     string
	label    string
	active   config.ChannelSlot
	archive  config.ChannelSlot
	request  config.ChannelSlot
	indexed  bool
	archived bool
}

var (
	clubKind = kind{
		name:    "club",
		label:   "Club",
		active:  config.SlotClubCategory,
		request: config.SlotClubRequestChannel,
	}
	eventKind = kind{
		name:     "event",
		label:    "Event",
		active:   config.SlotEventCategory,
		archive:  config.SlotArchiveEventCategory,
		request:  config.SlotEventRequestChannel,
		indexed:  true,
		archived: true,
	}
	projectKind = kind{
		name:     "project",
		label:    "Project",
		active:   config.SlotProjectCategory,
		archive:  config.SlotArchiveProjectCategory,
		request:  config.SlotProjectRequestChannel,
		indexed:  true,
		archived: true,
	}
)

// kindFor accepts the singular create/add names and the plural
// archive/restore names.
func kindFor(value string) (kind, bool) {
	switch value {
	case "club", "clubs":
		return clubKind, true
	case "event", "events":
		return eventKind, true
	case "project", "projects":
		return projectKind, true
	default:
		return kind{}, false
	}
}

// roleName returns the role tied to a channel. Project roles use the
// zero-padded index ("p07"), others reuse the channel name.
func (k kind) roleName(channelName string) (string, bool) {
	if k != projectKind {
		return channelName, true
	}
	index, ok := channelIndex(channelName)
	if !ok {
		return "", false
	}
	return projectRoleName(index), true
}

func projectRoleName(index int) string {
	if index < 10 {
		return "p0" + strconv.Itoa(index)
	}
	return "p" + strconv.Itoa(index)
}

var (
	indexPattern       = regexp.MustCompile(`^(\d+)-`)
	projectRolePattern = regexp.MustCompile(`^p(\d+)$`)
)

func channelIndex(name string) (int, bool) {
	m := indexPattern.FindStringSubmatch(name)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

// nextIndex returns one more than the highest "<n>-" prefix among the text
// channels of the given categories, so archived channels keep their numbers.
func nextIndex(channels []ChannelInfo, parentIDs ...string) int {
	parents := make(map[string]bool, len(parentIDs))
	for _, id := range parentIDs {
		if id != "" {
			parents[id] = true
		}
	}
	highest := 0
	for _, ch := range channels {
		if ch.Category || !parents[ch.ParentID] {
			continue
		}
		if n, ok := channelIndex(ch.Name); ok && n > highest {
			highest = n
		}
	}
	return highest + 1
}

func findCategory(channels []ChannelInfo, name string) (ChannelInfo, bool) {
	for _, ch := range channels {
		if ch.Category && ch.Name == name {
			return ch, true
		}
	}
	return ChannelInfo{}, false
}

func textChannelsIn(channels []ChannelInfo, parentID string) []ChannelInfo {
	var out []ChannelInfo
	for _, ch := range channels {
		if !ch.Category && ch.ParentID == parentID {
			out = append(out, ch)
		}
	}
	return out
}

func findRole(roles []RoleInfo, match func(RoleInfo) bool) (RoleInfo, bool) {
	for _, r := range roles {
		if match(r) {
			return r, true
		}
	}
	return RoleInfo{}, false
}

// unsafeRole explains why a role must not be listed or managed by the bot,
// or returns "" for ordinary roles. The @everyone role shares the guild ID.
func unsafeRole(role RoleInfo, guildID string) string {
	switch {
	case role.ID == guildID:
		return "is the @everyone role"
	case role.Administrator:
		return "has administrator permission"
	case role.Managed:
		return "is managed by an integration"
	default:
		return ""
	}
}
