package approval

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

const (
	testGuildID   = "guild-1"
	testChannelID = "chan-1"
)

var (
	requesterR = Actor{ID: "100", Name: "R", GuildID: testGuildID, Roles: []string{"Member"}}
	approverA  = Actor{ID: "200", Name: "A", GuildID: testGuildID, Roles: []string{"Member", "Administrator"}}
	bystanderB = Actor{ID: "300", Name: "B", GuildID: testGuildID}
)

type fakeDirectory struct {
	RoleDirectory
	mentions map[string][]string
}

func (d fakeDirectory) RoleMentions(_ context.Context, _ string, roleName string) []string {
	return d.mentions[roleName]
}

type fakeInvocation struct {
	guildID     string
	channelID   string
	channelName string
	actor       Actor
	hasActor    bool

	mu        sync.Mutex
	replies   []Message
	followUps []Message
	deferErr  error
	deferred  int
	responded bool
}

func newFakeInvocation(actor Actor) *fakeInvocation {
	return &fakeInvocation{
		guildID:     actor.GuildID,
		channelID:   testChannelID,
		channelName: "club-requests",
		actor:       actor,
		hasActor:    true,
	}
}

func (f *fakeInvocation) GuildID() string     { return f.guildID }
func (f *fakeInvocation) ChannelID() string   { return f.channelID }
func (f *fakeInvocation) ChannelName() string { return f.channelName }
func (f *fakeInvocation) Actor() (Actor, bool) {
	return f.actor, f.hasActor
}
func (f *fakeInvocation) Interaction() InteractionRef {
	return InteractionRef{ID: "inv-" + f.actor.ID, Token: "token"}
}

func (f *fakeInvocation) Reply(_ context.Context, msg Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies = append(f.replies, msg)
	f.responded = true
	return nil
}

func (f *fakeInvocation) FollowUp(_ context.Context, msg Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.followUps = append(f.followUps, msg)
	return nil
}

func (f *fakeInvocation) Defer(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deferred++
	return f.deferErr
}

func (f *fakeInvocation) Responded() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.responded
}

func (f *fakeInvocation) Replies() []Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Message(nil), f.replies...)
}

type publishCall struct {
	callout  string
	view     View
	controls Controls
}

type editCall struct {
	ref      MessageRef
	view     View
	controls Controls
}

type threadPost struct {
	thread ThreadRef
	msg    Message
}

type notice struct {
	interaction InteractionRef
	text        string
	private     bool
}

type surfaceCalls struct {
	published   []publishCall
	edits       []editCall
	threadNames []string
	threadTTL   []time.Duration
	posts       []threadPost
	notices     []notice
}

type fakeSurface struct {
	publishErr error
	threadErr  error
	editErr    error

	mu sync.Mutex
	surfaceCalls
}

func (s *fakeSurface) Publish(_ context.Context, _ Invocation, callout string, view View, controls Controls) (MessageRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.publishErr != nil {
		return MessageRef{}, s.publishErr
	}
	s.published = append(s.published, publishCall{callout: callout, view: view, controls: controls})
	return MessageRef{ChannelID: testChannelID, MessageID: fmt.Sprintf("msg-%d", len(s.published))}, nil
}

func (s *fakeSurface) Edit(_ context.Context, ref MessageRef, view View, controls Controls) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.editErr != nil {
		return s.editErr
	}
	s.edits = append(s.edits, editCall{ref: ref, view: view, controls: controls})
	return nil
}

func (s *fakeSurface) CreateThread(_ context.Context, ref MessageRef, name string, timeout time.Duration) (ThreadRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.threadErr != nil {
		return ThreadRef{}, s.threadErr
	}
	s.threadNames = append(s.threadNames, name)
	s.threadTTL = append(s.threadTTL, timeout)
	return ThreadRef{ID: "thread-" + ref.MessageID, Name: name}, nil
}

func (s *fakeSurface) PostToThread(_ context.Context, thread ThreadRef, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.posts = append(s.posts, threadPost{thread: thread, msg: msg})
	return nil
}

func (s *fakeSurface) NotifyActor(_ context.Context, interaction InteractionRef, text string, private bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notices = append(s.notices, notice{interaction: interaction, text: text, private: private})
	return nil
}

func (s *fakeSurface) snapshot() surfaceCalls {
	s.mu.Lock()
	defer s.mu.Unlock()
	return surfaceCalls{
		published:   append([]publishCall(nil), s.published...),
		edits:       append([]editCall(nil), s.edits...),
		threadNames: append([]string(nil), s.threadNames...),
		threadTTL:   append([]time.Duration(nil), s.threadTTL...),
		posts:       append([]threadPost(nil), s.posts...),
		notices:     append([]notice(nil), s.notices...),
	}
}

type fakeTimer struct {
	after   time.Duration
	fire    func()
	stopped atomic.Bool
}

func (t *fakeTimer) Stop() bool {
	return !t.stopped.Swap(true)
}

type timerBox struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (b *timerBox) afterFunc(d time.Duration, f func()) stopper {
	b.mu.Lock()
	defer b.mu.Unlock()
	timer := &fakeTimer{after: d, fire: f}
	b.timers = append(b.timers, timer)
	return timer
}

func (b *timerBox) last(t *testing.T) *fakeTimer {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.timers) == 0 {
		t.Fatal("expected an armed timer")
	}
	return b.timers[len(b.timers)-1]
}

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type harness struct {
	workflow *Workflow
	surface  *fakeSurface
	timers   *timerBox
}

func newHarness(t *testing.T, settings Settings) *harness {
	t.Helper()
	surface := &fakeSurface{}
	directory := fakeDirectory{mentions: map[string][]string{"Administrator": {"<@&900>"}}}
	w := NewWorkflow(settings, directory, surface)
	timers := &timerBox{}
	w.afterFunc = timers.afterFunc
	w.now = func() time.Time { return fixedNow }
	var seq atomic.Int64
	w.newID = func() string { return fmt.Sprintf("ticket-%d", seq.Add(1)) }
	return &harness{workflow: w, surface: surface, timers: timers}
}

type countingAction struct {
	runs  atomic.Int32
	reply string
	err   error
	panic bool
}

func (c *countingAction) action(name string) Action {
	return Action{
		Name:        name,
		Description: "Create a new channel",
		Args:        []Arg{{Name: "channel_name", Value: "board-games"}},
		Run: func(ctx context.Context, inv Invocation) error {
			c.runs.Add(1)
			if c.panic {
				panic("boom")
			}
			if c.reply != "" {
				if err := inv.Reply(ctx, Message{Content: c.reply, Ephemeral: true}); err != nil {
					return err
				}
			}
			return c.err
		},
	}
}

var errChannelExists = errors.New("channel already exists")
