package approval

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Status is the lifecycle state of an approval ticket.
type Status int32

const (
	StatusPending Status = iota
	StatusApproved
	StatusRejected
	StatusTimedOut
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusApproved:
		return "approved"
	case StatusRejected:
		return "rejected"
	case StatusTimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusRejected || s == StatusTimedOut
}

// Actor identifies a guild member acting on the bot.
type Actor struct {
	ID      string
	Name    string
	GuildID string
	Roles   []string // role names currently held
}

// Mention returns the platform mention markup for the actor.
func (a Actor) Mention() string {
	if a.ID == "" {
		return a.Name
	}
	return "<@" + a.ID + ">"
}

// MessageRef points at a published message.
type MessageRef struct {
	ChannelID string
	MessageID string
}

// ThreadRef points at a discussion thread.
type ThreadRef struct {
	ID   string
	Name string
}

// InteractionRef identifies the interaction an actor is waiting on.
type InteractionRef struct {
	ID    string
	AppID string
	Token string
}

// Arg is one captured command argument, kept for display only.
type Arg struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Action is a deferred unit of work run at most once.
type Action struct {
	Name        string
	Description string
	Args        []Arg
	// ThreadName overrides the default discussion thread name.
	ThreadName string
	Run        func(ctx context.Context, inv Invocation) error
}

// Summarizer is implemented by parameter types that can describe themselves.
type Summarizer interface {
	Summary() []Arg
}

// Bind captures typed parameters for later execution. If params implements
// Summarizer its summary becomes the action's display args.
func Bind[T any](name string, params T, run func(ctx context.Context, inv Invocation, params T) error) Action {
	action := Action{
		Name: name,
		Run: func(ctx context.Context, inv Invocation) error {
			return run(ctx, inv, params)
		},
	}
	if s, ok := any(params).(Summarizer); ok {
		action.Args = s.Summary()
	}
	return action
}

// WithDescription returns a copy of the action carrying a human description.
func (a Action) WithDescription(description string) Action {
	a.Description = description
	return a
}

// Ticket is one in-flight approval request.
type Ticket struct {
	ID           string
	ActionName   string
	Description  string
	Args         []Arg
	Requester    Actor
	TimeoutHours int
	CreatedAt    time.Time
	Deadline     time.Time

	action     Action
	invocation Invocation

	status atomic.Int32

	mu        sync.Mutex
	decider   *Actor
	decidedAt time.Time
	anchor    MessageRef
	thread    *ThreadRef
	timer     stopper
	actionErr error

	ready chan struct{}
}

func newTicket(id string, action Action, inv Invocation, requester Actor, timeoutHours int, now time.Time) *Ticket {
	return &Ticket{
		ID:           id,
		ActionName:   action.Name,
		Description:  action.Description,
		Args:         action.Args,
		Requester:    requester,
		TimeoutHours: timeoutHours,
		CreatedAt:    now,
		Deadline:     now.Add(time.Duration(timeoutHours) * time.Hour),
		action:       action,
		invocation:   inv,
		ready:        make(chan struct{}),
	}
}

// Status returns the current status.
func (t *Ticket) Status() Status {
	return Status(t.status.Load())
}

// Decider returns the actor who approved or rejected the ticket.
func (t *Ticket) Decider() (Actor, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.decider == nil {
		return Actor{}, false
	}
	return *t.decider, true
}

// DecidedAt returns when the ticket left Pending.
func (t *Ticket) DecidedAt() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.decidedAt
}

// Anchor returns the published pending-request message.
func (t *Ticket) Anchor() MessageRef {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.anchor
}

// Thread returns the discussion thread, if one was opened.
func (t *Ticket) Thread() (ThreadRef, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.thread == nil {
		return ThreadRef{}, false
	}
	return *t.thread, true
}

// ActionErr returns the error produced by the approved action, if any.
func (t *Ticket) ActionErr() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.actionErr
}

// finish performs the single transition out of Pending. Only the first
// caller wins; decider is nil for timeouts.
func (t *Ticket) finish(to Status, decider *Actor, at time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.status.CompareAndSwap(int32(StatusPending), int32(to)) {
		return false
	}
	if decider != nil {
		d := *decider
		t.decider = &d
	}
	t.decidedAt = at
	if t.timer != nil {
		t.timer.Stop()
	}
	return true
}

func (t *Ticket) setAnchor(ref MessageRef) {
	t.mu.Lock()
	t.anchor = ref
	t.mu.Unlock()
}

func (t *Ticket) setThread(thread ThreadRef) {
	t.mu.Lock()
	t.thread = &thread
	t.mu.Unlock()
}

func (t *Ticket) setActionErr(err error) {
	t.mu.Lock()
	t.actionErr = err
	t.mu.Unlock()
}

// arm installs the deadline timer unless the ticket already finished.
func (t *Ticket) arm(timer stopper) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.Status().Terminal() {
		timer.Stop()
		return
	}
	t.timer = timer
}

func (t *Ticket) markReady() {
	close(t.ready)
}

func (t *Ticket) waitReady(ctx context.Context) error {
	select {
	case <-t.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
