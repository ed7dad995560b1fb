package approval

import (
	"context"
	"errors"
	"testing"
)

func TestThreadRedirector_RoutesOutputToThread(t *testing.T) {
	base := newFakeInvocation(requesterR)
	surface := &fakeSurface{}
	thread := ThreadRef{ID: "thread-1", Name: "Approval: create_channel"}
	r := NewThreadRedirector(base, thread, surface)

	ctx := context.Background()
	if err := r.Reply(ctx, Message{Content: "created", Ephemeral: true}); err != nil {
		t.Fatalf("Reply error: %v", err)
	}
	if err := r.FollowUp(ctx, Message{Content: "members added", Ephemeral: true}); err != nil {
		t.Fatalf("FollowUp error: %v", err)
	}

	posts := surface.snapshot().posts
	if len(posts) != 2 {
		t.Fatalf("expected 2 thread posts, got %d", len(posts))
	}
	for _, p := range posts {
		if p.thread.ID != "thread-1" {
			t.Fatalf("expected thread-1, got %q", p.thread.ID)
		}
		if p.msg.Ephemeral {
			t.Fatalf("ephemeral flag must be dropped, got %+v", p.msg)
		}
	}
	if len(base.Replies()) != 0 {
		t.Fatal("base reply path must not be used")
	}
	if r.Thread() != thread {
		t.Fatalf("unexpected thread %+v", r.Thread())
	}
}

func TestThreadRedirector_PassesThroughContext(t *testing.T) {
	base := newFakeInvocation(requesterR)
	r := NewThreadRedirector(base, ThreadRef{ID: "thread-1"}, &fakeSurface{})

	if r.GuildID() != testGuildID || r.ChannelID() != testChannelID || r.ChannelName() != "club-requests" {
		t.Fatalf("context properties must pass through, got %s/%s/%s", r.GuildID(), r.ChannelID(), r.ChannelName())
	}
	actor, ok := r.Actor()
	if !ok || actor.ID != requesterR.ID {
		t.Fatalf("expected requester actor, got %+v", actor)
	}
	if !r.Responded() {
		t.Fatal("redirected invocation always reports responded")
	}
}

func TestThreadRedirector_DeferIsBestEffort(t *testing.T) {
	base := newFakeInvocation(requesterR)
	base.deferErr = errors.New("interaction already acknowledged")
	r := NewThreadRedirector(base, ThreadRef{ID: "thread-1"}, &fakeSurface{})

	if err := r.Defer(context.Background()); err != nil {
		t.Fatalf("Defer must swallow base errors, got %v", err)
	}
	if base.deferred != 1 {
		t.Fatalf("expected base defer to be attempted once, got %d", base.deferred)
	}
}
