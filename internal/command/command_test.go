package command

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/MEKXH/gatekeeper/internal/approval"
)

func TestRegistry_LookupAndList(t *testing.T) {
	r := NewDefaultRegistry()

	if _, ok := r.Lookup("/Create_Channel"); !ok {
		t.Fatal("expected lookup to ignore slash and case")
	}
	if _, ok := r.Lookup(""); ok {
		t.Fatal("empty name must not match")
	}

	var names []string
	for _, cmd := range r.List() {
		names = append(names, cmd.Name())
	}
	want := "add_role_members,archive_channel,create_channel,docs,help,restore_channel,show_role_members,status,version"
	if got := strings.Join(names, ","); got != want {
		t.Fatalf("List() = %s, want %s", got, want)
	}
}

func TestRegistry_DuplicatePanics(t *testing.T) {
	r := NewRegistry()
	r.Register(&HelpCommand{})
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on duplicate registration")
		}
	}()
	r.Register(&HelpCommand{})
}

func TestArgs(t *testing.T) {
	args := Args{{Name: "category", Value: " club "}, {Name: "members", Value: ""}}
	if args.Get("category") != "club" || args.Get("missing") != "" {
		t.Fatalf("unexpected Get results for %+v", args)
	}
	if summary := args.Summary(); len(summary) != 1 || summary[0].Name != "category" {
		t.Fatalf("summary must skip empty values, got %+v", summary)
	}
}

func TestDispatch_UnknownCommand(t *testing.T) {
	inv := newInvocation(member, "c1", "general")
	err := NewDefaultRegistry().Dispatch(context.Background(), "nope", nil, testEnv(inv, newFakeGuild()))
	if !errors.Is(err, ErrUnknownCommand) {
		t.Fatalf("expected ErrUnknownCommand, got %v", err)
	}
	if msg := inv.lastReply(); !msg.Ephemeral || msg.View == nil || !strings.Contains(msg.View.Description, "/nope") {
		t.Fatalf("expected private error reply, got %+v", msg)
	}
}

func TestDispatch_RestrictionBeforeGate(t *testing.T) {
	guild := newFakeGuild()
	wf, surface := newTestWorkflow(t)
	inv := newInvocation(member, "c9", "general")
	env := testEnv(inv, guild)
	env.Workflow = wf

	args := Args{{Name: "category", Value: "club"}, {Name: "channel_name", Value: "chess"}}
	err := NewDefaultRegistry().Dispatch(context.Background(), "create_channel", args, env)
	if !errors.Is(err, ErrRestricted) {
		t.Fatalf("expected ErrRestricted, got %v", err)
	}
	if len(surface.published) != 0 || len(wf.Pending()) != 0 {
		t.Fatal("restricted command must not open a ticket")
	}
	if msg := inv.lastReply(); msg.View == nil || !strings.Contains(msg.View.Description, "club-requests") {
		t.Fatalf("expected restriction notice naming the channel, got %+v", msg)
	}
}

func TestDispatch_RestrictionNotConfigured(t *testing.T) {
	inv := newInvocation(member, "c9", "club-requests")
	env := testEnv(inv, newFakeGuild())
	env.Config.ClubRequestChannel = ""

	args := Args{{Name: "category", Value: "club"}, {Name: "channel_name", Value: "chess"}}
	err := NewDefaultRegistry().Dispatch(context.Background(), "create_channel", args, env)
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestDispatch_GateOpensTicketForMembers(t *testing.T) {
	guild := newFakeGuild()
	wf, surface := newTestWorkflow(t)
	inv := newInvocation(member, "c9", "club-requests")
	env := testEnv(inv, guild)
	env.Workflow = wf

	args := Args{{Name: "category", Value: "club"}, {Name: "channel_name", Value: "chess"}}
	if err := NewDefaultRegistry().Dispatch(context.Background(), "create_channel", args, env); err != nil {
		t.Fatalf("Dispatch error: %v", err)
	}
	pending := wf.Pending()
	if len(pending) != 1 {
		t.Fatalf("expected one pending ticket, got %d", len(pending))
	}
	ticket := pending[0]
	if ticket.ActionName != "create_channel (category=club)" || ticket.Description != "Create a new club channel" {
		t.Fatalf("unexpected ticket %+v", ticket)
	}
	if len(ticket.Args) != 2 || ticket.Args[1].Value != "chess" {
		t.Fatalf("expected args in request details, got %+v", ticket.Args)
	}
	if len(surface.published) != 1 {
		t.Fatalf("expected published request, got %d", len(surface.published))
	}
	if _, ok := guild.textNamed("chess"); ok {
		t.Fatal("channel must not exist before approval")
	}

	decider := newInvocation(admin, "c9", "club-requests")
	err := wf.Decide(context.Background(), approval.Decision{
		TicketID:    ticket.ID,
		Approve:     true,
		Actor:       admin,
		Interaction: decider.Interaction(),
	})
	if err != nil {
		t.Fatalf("Decide error: %v", err)
	}
	if _, ok := guild.textNamed("chess"); !ok {
		t.Fatal("approved command must create the channel")
	}
}

func TestDispatch_BypassForApprovers(t *testing.T) {
	guild := newFakeGuild()
	wf, surface := newTestWorkflow(t)
	inv := newInvocation(admin, "c9", "club-requests")
	env := testEnv(inv, guild)
	env.Workflow = wf

	args := Args{{Name: "category", Value: "club"}, {Name: "channel_name", Value: "chess"}}
	if err := NewDefaultRegistry().Dispatch(context.Background(), "create_channel", args, env); err != nil {
		t.Fatalf("Dispatch error: %v", err)
	}
	if len(surface.published) != 0 {
		t.Fatal("bypass must not publish a request")
	}
	if _, ok := guild.textNamed("chess"); !ok {
		t.Fatal("expected channel created immediately")
	}
}

func TestDispatch_ActionErrorReturnedOnBypass(t *testing.T) {
	guild := newFakeGuild()
	guild.failCreate = errors.New("missing permissions")
	wf, _ := newTestWorkflow(t)
	inv := newInvocation(admin, "c9", "club-requests")
	env := testEnv(inv, guild)
	env.Workflow = wf

	args := Args{{Name: "category", Value: "club"}, {Name: "channel_name", Value: "chess"}}
	err := NewDefaultRegistry().Dispatch(context.Background(), "create_channel", args, env)
	if err == nil || !strings.Contains(err.Error(), "missing permissions") {
		t.Fatalf("expected wrapped guild error, got %v", err)
	}
}

func TestHelpListsCommands(t *testing.T) {
	inv := newInvocation(member, "c1", "general")
	if err := NewDefaultRegistry().Dispatch(context.Background(), "help", nil, testEnv(inv, newFakeGuild())); err != nil {
		t.Fatalf("Dispatch error: %v", err)
	}
	msg := inv.lastReply()
	if msg.View == nil || len(msg.View.Fields) != 9 {
		t.Fatalf("expected a field per command, got %+v", msg.View)
	}
	var create approval.Field
	for _, f := range msg.View.Fields {
		if f.Name == "/create_channel" {
			create = f
		}
	}
	if !strings.Contains(create.Value, "`channel_name` (required)") || !strings.Contains(create.Value, "Needs approval") {
		t.Fatalf("unexpected create_channel help %q", create.Value)
	}
	if !strings.Contains(msg.View.Description, `"Administrator"`) {
		t.Fatalf("expected default authority in help, got %q", msg.View.Description)
	}
}

func TestStatusShowsPendingTickets(t *testing.T) {
	guild := newFakeGuild()
	wf, _ := newTestWorkflow(t)
	requester := newInvocation(member, "c9", "club-requests")
	env := testEnv(requester, guild)
	env.Workflow = wf
	args := Args{{Name: "category", Value: "club"}, {Name: "channel_name", Value: "chess"}}
	if err := NewDefaultRegistry().Dispatch(context.Background(), "create_channel", args, env); err != nil {
		t.Fatalf("Dispatch error: %v", err)
	}

	inv := newInvocation(member, "c1", "general")
	env.Inv = inv
	if err := NewDefaultRegistry().Dispatch(context.Background(), "status", nil, env); err != nil {
		t.Fatalf("Dispatch error: %v", err)
	}
	view := inv.lastReply().View
	if view == nil || len(view.Fields) != 2 {
		t.Fatalf("unexpected status view %+v", view)
	}
	if view.Fields[0].Name != "Pending approvals (1)" || !strings.Contains(view.Fields[0].Value, "<@100>") {
		t.Fatalf("unexpected pending field %+v", view.Fields[0])
	}
	if view.Fields[1].Value != "Unavailable" {
		t.Fatalf("expected metrics unavailable, got %q", view.Fields[1].Value)
	}
}

func TestVersionCommand(t *testing.T) {
	inv := newInvocation(member, "c1", "general")
	if err := (&VersionCommand{}).Execute(context.Background(), nil, testEnv(inv, newFakeGuild())); err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if view := inv.lastReply().View; view == nil || !strings.HasPrefix(view.Description, "gatekeeper ") {
		t.Fatalf("unexpected version reply %+v", view)
	}
}
