package approval

import (
	"context"
	"log/slog"
)

// Invocation is the context a command runs in.
type Invocation interface {
	GuildID() string
	ChannelID() string
	ChannelName() string
	Actor() (Actor, bool)
	Interaction() InteractionRef
	Reply(ctx context.Context, msg Message) error
	FollowUp(ctx context.Context, msg Message) error
	Defer(ctx context.Context) error
	Responded() bool
}

// ThreadPoster posts into a discussion thread.
type ThreadPoster interface {
	PostToThread(ctx context.Context, thread ThreadRef, msg Message) error
}

// ThreadRedirector routes an invocation's output into a thread. Everything
// not overridden passes through to the embedded invocation.
type ThreadRedirector struct {
	Invocation
	thread ThreadRef
	poster ThreadPoster
}

func NewThreadRedirector(base Invocation, thread ThreadRef, poster ThreadPoster) *ThreadRedirector {
	return &ThreadRedirector{Invocation: base, thread: thread, poster: poster}
}

// Thread returns the thread output is redirected to.
func (r *ThreadRedirector) Thread() ThreadRef {
	return r.thread
}

// Reply posts into the thread. Threads have no private mode so Ephemeral is dropped.
func (r *ThreadRedirector) Reply(ctx context.Context, msg Message) error {
	msg.Ephemeral = false
	return r.poster.PostToThread(ctx, r.thread, msg)
}

func (r *ThreadRedirector) FollowUp(ctx context.Context, msg Message) error {
	msg.Ephemeral = false
	return r.poster.PostToThread(ctx, r.thread, msg)
}

// Defer is best-effort: the base interaction has usually been answered already.
func (r *ThreadRedirector) Defer(ctx context.Context) error {
	if err := r.Invocation.Defer(ctx); err != nil {
		slog.Debug("thread redirector defer ignored", "thread", r.thread.ID, "error", err)
	}
	return nil
}

func (r *ThreadRedirector) Responded() bool {
	return true
}
