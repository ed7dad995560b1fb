package command

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/MEKXH/gatekeeper/internal/approval"
	"github.com/MEKXH/gatekeeper/internal/config"
)

const testGuildID = "g1"

var (
	member = approval.Actor{ID: "100", Name: "requester", GuildID: testGuildID}
	admin  = approval.Actor{ID: "200", Name: "approver", GuildID: testGuildID, Roles: []string{"Administrator"}}
)

func testGuildConfig() config.GuildConfig {
	return config.GuildConfig{
		EventCategory:          "Events",
		ArchiveEventCategory:   "Events Archive",
		EventRequestChannel:    "event-requests",
		ProjectCategory:        "Projects",
		ArchiveProjectCategory: "Projects Archive",
		ProjectRequestChannel:  "project-requests",
		ClubCategory:           "Clubs",
		ClubRequestChannel:     "club-requests",
	}
}

type fakeInvocation struct {
	actor       approval.Actor
	channelID   string
	channelName string

	mu        sync.Mutex
	replies   []approval.Message
	responded bool
}

func newInvocation(actor approval.Actor, channelID, channelName string) *fakeInvocation {
	return &fakeInvocation{actor: actor, channelID: channelID, channelName: channelName}
}

func (f *fakeInvocation) GuildID() string     { return f.actor.GuildID }
func (f *fakeInvocation) ChannelID() string   { return f.channelID }
func (f *fakeInvocation) ChannelName() string { return f.channelName }
func (f *fakeInvocation) Actor() (approval.Actor, bool) {
	return f.actor, f.actor.ID != ""
}
func (f *fakeInvocation) Interaction() approval.InteractionRef {
	return approval.InteractionRef{ID: "i-" + f.actor.ID, Token: "tok"}
}
func (f *fakeInvocation) Reply(_ context.Context, msg approval.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies = append(f.replies, msg)
	f.responded = true
	return nil
}
func (f *fakeInvocation) FollowUp(ctx context.Context, msg approval.Message) error {
	return f.Reply(ctx, msg)
}
func (f *fakeInvocation) Defer(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responded = true
	return nil
}
func (f *fakeInvocation) Responded() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.responded
}

func (f *fakeInvocation) lastReply() approval.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.replies) == 0 {
		return approval.Message{}
	}
	return f.replies[len(f.replies)-1]
}

func (f *fakeInvocation) replyCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.replies)
}

type fakeGuild struct {
	channels    []ChannelInfo
	roles       []RoleInfo
	memberRoles map[string][]string
	nextID      int
	moves       map[string]string
	grants      []string
	failCreate  error
}

func newFakeGuild() *fakeGuild {
	g := &fakeGuild{memberRoles: map[string][]string{}, moves: map[string]string{}}
	for _, name := range []string{"Events", "Events Archive", "Projects", "Projects Archive", "Clubs"} {
		g.addCategory(name)
	}
	g.addText("event-requests", "Events")
	g.addText("project-requests", "Projects")
	g.addText("club-requests", "Clubs")
	return g
}

func (g *fakeGuild) id() string {
	g.nextID++
	return fmt.Sprintf("c%d", g.nextID)
}

func (g *fakeGuild) categoryID(name string) string {
	for _, ch := range g.channels {
		if ch.Category && ch.Name == name {
			return ch.ID
		}
	}
	return ""
}

func (g *fakeGuild) addCategory(name string) ChannelInfo {
	ch := ChannelInfo{ID: g.id(), Name: name, Category: true}
	g.channels = append(g.channels, ch)
	return ch
}

func (g *fakeGuild) addText(name, category string) ChannelInfo {
	ch := ChannelInfo{ID: g.id(), Name: name, ParentID: g.categoryID(category)}
	g.channels = append(g.channels, ch)
	return ch
}

func (g *fakeGuild) addRole(name string, administrator bool) RoleInfo {
	r := RoleInfo{ID: "r-" + name, Name: name, Administrator: administrator}
	g.roles = append(g.roles, r)
	return r
}

func (g *fakeGuild) textNamed(name string) (ChannelInfo, bool) {
	for _, ch := range g.channels {
		if !ch.Category && ch.Name == name {
			return ch, true
		}
	}
	return ChannelInfo{}, false
}

func (g *fakeGuild) Channels(context.Context, string) ([]ChannelInfo, error) {
	return append([]ChannelInfo(nil), g.channels...), nil
}

func (g *fakeGuild) Channel(_ context.Context, channelID string) (ChannelInfo, error) {
	for _, ch := range g.channels {
		if ch.ID == channelID {
			return ch, nil
		}
	}
	return ChannelInfo{}, errors.New("unknown channel")
}

func (g *fakeGuild) Roles(context.Context, string) ([]RoleInfo, error) {
	return append([]RoleInfo(nil), g.roles...), nil
}

func (g *fakeGuild) CreateTextChannel(_ context.Context, _, parentID, name string) (ChannelInfo, error) {
	if g.failCreate != nil {
		return ChannelInfo{}, g.failCreate
	}
	ch := ChannelInfo{ID: g.id(), Name: name, ParentID: parentID}
	g.channels = append(g.channels, ch)
	return ch, nil
}

func (g *fakeGuild) CreateRole(_ context.Context, _, name string) (RoleInfo, error) {
	return g.addRole(name, false), nil
}

func (g *fakeGuild) MoveChannel(_ context.Context, channelID, parentID string) error {
	for i := range g.channels {
		if g.channels[i].ID == channelID {
			g.channels[i].ParentID = parentID
			g.moves[channelID] = parentID
			return nil
		}
	}
	return errors.New("unknown channel")
}

func (g *fakeGuild) MemberRoles(_ context.Context, _, userID string) ([]string, error) {
	return g.memberRoles[userID], nil
}

func (g *fakeGuild) RoleMembers(_ context.Context, _, roleID string) ([]MemberInfo, error) {
	var out []MemberInfo
	for userID, roles := range g.memberRoles {
		if slices.Contains(roles, roleID) {
			out = append(out, MemberInfo{ID: userID, Name: "user" + userID})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (g *fakeGuild) AddMemberRole(_ context.Context, _, userID, roleID string) error {
	g.memberRoles[userID] = append(g.memberRoles[userID], roleID)
	g.grants = append(g.grants, userID+":"+roleID)
	return nil
}

// recordingSurface is a minimal approval surface for gate tests.
type recordingSurface struct {
	mu        sync.Mutex
	published []approval.View
}

func (s *recordingSurface) Publish(_ context.Context, inv approval.Invocation, _ string, view approval.View, _ approval.Controls) (approval.MessageRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.published = append(s.published, view)
	return approval.MessageRef{ChannelID: inv.ChannelID(), MessageID: "m1"}, nil
}
func (s *recordingSurface) Edit(context.Context, approval.MessageRef, approval.View, approval.Controls) error {
	return nil
}
func (s *recordingSurface) CreateThread(context.Context, approval.MessageRef, string, time.Duration) (approval.ThreadRef, error) {
	return approval.ThreadRef{}, errors.New("threads disabled")
}
func (s *recordingSurface) PostToThread(context.Context, approval.ThreadRef, approval.Message) error {
	return nil
}
func (s *recordingSurface) NotifyActor(context.Context, approval.InteractionRef, string, bool) error {
	return nil
}

func newTestWorkflow(t interface{ Cleanup(func()) }) (*approval.Workflow, *recordingSurface) {
	surface := &recordingSurface{}
	settings := approval.DefaultSettings()
	settings.OpenThreads = false
	wf := approval.NewWorkflow(settings, approval.RoleDirectory{}, surface)
	t.Cleanup(wf.Close)
	return wf, surface
}

func testEnv(inv *fakeInvocation, guild *fakeGuild) Env {
	return Env{Inv: inv, Guild: guild, Config: testGuildConfig()}
}
