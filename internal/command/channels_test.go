package command

import (
	"context"
	"strings"
	"testing"
)

func TestCreateChannel_EventIndexSpansArchive(t *testing.T) {
	guild := newFakeGuild()
	guild.addText("2-picnic", "Events")
	guild.addText("7-hackday", "Events Archive")
	guild.addText("9-other", "Projects")
	inv := newInvocation(admin, "c6", "event-requests")

	args := Args{{Name: "category", Value: "event"}, {Name: "channel_name", Value: "oden"}, {Name: "members", Value: "<@300> <@!301> <@300>"}}
	if err := (&CreateChannelCommand{}).Execute(context.Background(), args, testEnv(inv, guild)); err != nil {
		t.Fatalf("Execute error: %v", err)
	}

	created, ok := guild.textNamed("8-oden")
	if !ok {
		t.Fatalf("expected channel 8-oden, got %+v", guild.channels)
	}
	if created.ParentID != guild.categoryID("Events") {
		t.Fatalf("channel created under wrong category %q", created.ParentID)
	}
	if len(guild.grants) != 2 || guild.grants[0] != "300:r-8-oden" || guild.grants[1] != "301:r-8-oden" {
		t.Fatalf("unexpected grants %v", guild.grants)
	}
	msg := inv.lastReply()
	if msg.Ephemeral || msg.View == nil || msg.View.Title != "✅ Event channel created" {
		t.Fatalf("unexpected success reply %+v", msg)
	}
	if msg.View.Fields[1].Name != "Index" || msg.View.Fields[1].Value != "8" {
		t.Fatalf("expected index field, got %+v", msg.View.Fields)
	}
}

func TestCreateChannel_ProjectRoleIsPadded(t *testing.T) {
	guild := newFakeGuild()
	guild.addText("3-robots", "Projects Archive")
	inv := newInvocation(admin, "c7", "project-requests")

	args := Args{{Name: "category", Value: "project"}, {Name: "channel_name", Value: "hackathon"}}
	if err := (&CreateChannelCommand{}).Execute(context.Background(), args, testEnv(inv, guild)); err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if _, ok := guild.textNamed("4-hackathon"); !ok {
		t.Fatal("expected channel 4-hackathon")
	}
	if len(guild.roles) != 1 || guild.roles[0].Name != "p04" {
		t.Fatalf("expected role p04, got %+v", guild.roles)
	}
}

func TestCreateChannel_ClubDuplicateRefused(t *testing.T) {
	guild := newFakeGuild()
	guild.addText("chess", "Clubs")
	inv := newInvocation(admin, "c8", "club-requests")

	args := Args{{Name: "category", Value: "club"}, {Name: "channel_name", Value: "chess"}}
	if err := (&CreateChannelCommand{}).Execute(context.Background(), args, testEnv(inv, guild)); err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if len(guild.roles) != 0 {
		t.Fatal("duplicate club must not create a role")
	}
	if msg := inv.lastReply(); !msg.Ephemeral || !strings.Contains(msg.View.Description, "already exists") {
		t.Fatalf("expected duplicate notice, got %+v", msg)
	}
}

func TestCreateChannel_MissingCategory(t *testing.T) {
	guild := newFakeGuild()
	inv := newInvocation(admin, "c8", "club-requests")
	env := testEnv(inv, guild)
	env.Config.ClubCategory = "Societies"

	args := Args{{Name: "category", Value: "club"}, {Name: "channel_name", Value: "chess"}}
	if err := (&CreateChannelCommand{}).Execute(context.Background(), args, env); err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if msg := inv.lastReply(); msg.View == nil || !strings.Contains(msg.View.Description, "`Societies` does not exist") {
		t.Fatalf("expected missing category notice, got %+v", msg)
	}
}

func TestCreateChannel_BadMembers(t *testing.T) {
	guild := newFakeGuild()
	inv := newInvocation(admin, "c8", "club-requests")
	args := Args{{Name: "category", Value: "club"}, {Name: "channel_name", Value: "chess"}, {Name: "members", Value: "alice bob"}}
	if err := (&CreateChannelCommand{}).Execute(context.Background(), args, testEnv(inv, guild)); err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if _, ok := guild.textNamed("chess"); ok {
		t.Fatal("invalid members must abort before creating anything")
	}
}

func TestArchiveChannel_RequestChannelRestriction(t *testing.T) {
	cmd := &ArchiveChannelCommand{}
	r, ok := cmd.Restriction(Args{{Name: "category", Value: "events"}})
	if !ok || r.MustBeIn || r.Slot.String() != "guild.event_request_channel" {
		t.Fatalf("unexpected restriction %+v %v", r, ok)
	}
	if _, ok := cmd.Restriction(Args{{Name: "category", Value: "events"}, {Name: "channel", Value: "c1"}}); ok {
		t.Fatal("explicit channel lifts the restriction")
	}
}

func TestArchiveAndRestoreChannel(t *testing.T) {
	guild := newFakeGuild()
	target := guild.addText("4-party", "Events")
	inv := newInvocation(member, target.ID, target.Name)
	env := testEnv(inv, guild)
	registry := NewDefaultRegistry()

	if err := registry.Dispatch(context.Background(), "archive_channel", Args{{Name: "category", Value: "events"}}, env); err != nil {
		t.Fatalf("archive error: %v", err)
	}
	if guild.moves[target.ID] != guild.categoryID("Events Archive") {
		t.Fatalf("expected move to archive, got %v", guild.moves)
	}
	if view := inv.lastReply().View; view == nil || view.Title != "✅ Event channel archived" {
		t.Fatalf("unexpected archive reply %+v", view)
	}

	other := newInvocation(member, "c2", "event-requests")
	env.Inv = other
	args := Args{{Name: "category", Value: "events"}, {Name: "channel", Value: target.ID}}
	if err := registry.Dispatch(context.Background(), "restore_channel", args, env); err != nil {
		t.Fatalf("restore error: %v", err)
	}
	if guild.moves[target.ID] != guild.categoryID("Events") {
		t.Fatalf("expected move back, got %v", guild.moves)
	}
}

func TestRestoreChannel_RequiresArchiveCategory(t *testing.T) {
	guild := newFakeGuild()
	target := guild.addText("5-live", "Projects")
	inv := newInvocation(member, target.ID, target.Name)

	if err := (&RestoreChannelCommand{}).Execute(context.Background(), Args{{Name: "category", Value: "projects"}}, testEnv(inv, guild)); err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if len(guild.moves) != 0 {
		t.Fatal("active channel must not move")
	}
	if msg := inv.lastReply(); !msg.Ephemeral || !strings.Contains(msg.View.Description, "Projects Archive") {
		t.Fatalf("expected category notice, got %+v", msg)
	}
}

func TestAddRoleMembers_DefaultRoleFromChannel(t *testing.T) {
	guild := newFakeGuild()
	target := guild.addText("3-robots", "Projects")
	role := guild.addRole("p03", false)
	guild.memberRoles["301"] = []string{role.ID}
	inv := newInvocation(member, target.ID, target.Name)

	args := Args{{Name: "category", Value: "project"}, {Name: "members", Value: "<@300> <@301>"}}
	if err := (&AddRoleMembersCommand{}).Execute(context.Background(), args, testEnv(inv, guild)); err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if len(guild.grants) != 1 || guild.grants[0] != "300:r-p03" {
		t.Fatalf("expected only the new member to be granted, got %v", guild.grants)
	}
	view := inv.lastReply().View
	if view == nil || !strings.Contains(view.Description, "Already in the role:\n<@301>") {
		t.Fatalf("unexpected reply %+v", view)
	}
	if view.Fields[0].Value != "<#"+target.ID+">" || view.Fields[2].Value != "1" {
		t.Fatalf("unexpected fields %+v", view.Fields)
	}
}

func TestAddRoleMembers_RefusesAdministratorRole(t *testing.T) {
	guild := newFakeGuild()
	guild.addText("staff", "Clubs")
	guild.addRole("staff", true)
	inv := newInvocation(member, "c1", "general")

	args := Args{{Name: "category", Value: "club"}, {Name: "members", Value: "<@300>"}, {Name: "role", Value: "<@&r-staff>"}}
	if err := (&AddRoleMembersCommand{}).Execute(context.Background(), args, testEnv(inv, guild)); err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if len(guild.grants) != 0 {
		t.Fatal("administrator role must never be granted")
	}
	if msg := inv.lastReply(); !strings.Contains(msg.View.Description, "administrator permission") {
		t.Fatalf("expected refusal, got %+v", msg.View)
	}
}

func TestAddRoleMembers_RoleWithoutChannel(t *testing.T) {
	guild := newFakeGuild()
	guild.addRole("Moderators", false)
	inv := newInvocation(member, "c1", "general")

	args := Args{{Name: "category", Value: "event"}, {Name: "members", Value: "<@300>"}, {Name: "role", Value: "@Moderators"}}
	if err := (&AddRoleMembersCommand{}).Execute(context.Background(), args, testEnv(inv, guild)); err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if len(guild.grants) != 0 {
		t.Fatal("unrelated role must not be granted")
	}
	if msg := inv.lastReply(); !strings.Contains(msg.View.Description, "No event channel matches") {
		t.Fatalf("unexpected reply %+v", msg.View)
	}
}

func TestNextIndexAndRoleNames(t *testing.T) {
	channels := []ChannelInfo{
		{ID: "a", Name: "Events", Category: true},
		{ID: "1", Name: "10-big", ParentID: "a"},
		{ID: "2", Name: "x-notnumbered", ParentID: "a"},
		{ID: "3", Name: "99-elsewhere", ParentID: "b"},
	}
	if got := nextIndex(channels, "a"); got != 11 {
		t.Fatalf("nextIndex = %d, want 11", got)
	}
	if got := nextIndex(nil, "a"); got != 1 {
		t.Fatalf("nextIndex on empty guild = %d, want 1", got)
	}
	if name, ok := projectKind.roleName("12-robots"); !ok || name != "p12" {
		t.Fatalf("unexpected project role %q", name)
	}
	if _, ok := projectKind.roleName("robots"); ok {
		t.Fatal("unnumbered project channel has no role")
	}
	if name, _ := eventKind.roleName("3-party"); name != "3-party" {
		t.Fatalf("event role should match channel, got %q", name)
	}
}
