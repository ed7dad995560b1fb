package approval

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/MEKXH/gatekeeper/internal/audit"
	"github.com/MEKXH/gatekeeper/internal/metrics"
	"github.com/google/uuid"
)

const expireEditTimeout = 30 * time.Second

// Surface is the messaging platform as seen by the workflow.
type Surface interface {
	Publish(ctx context.Context, inv Invocation, callout string, view View, controls Controls) (MessageRef, error)
	Edit(ctx context.Context, ref MessageRef, view View, controls Controls) error
	CreateThread(ctx context.Context, ref MessageRef, name string, timeout time.Duration) (ThreadRef, error)
	PostToThread(ctx context.Context, thread ThreadRef, msg Message) error
	NotifyActor(ctx context.Context, interaction InteractionRef, text string, private bool) error
}

// Decision is an approve or reject click on a ticket's controls.
type Decision struct {
	TicketID    string
	Approve     bool
	Actor       Actor
	Interaction InteractionRef
}

type stopper interface {
	Stop() bool
}

// Workflow intercepts privileged actions and drives each ticket to exactly
// one terminal state.
type Workflow struct {
	settings  Settings
	policy    Policy
	directory Directory
	surface   Surface
	renderer  Renderer

	now       func() time.Time
	afterFunc func(d time.Duration, f func()) stopper
	newID     func() string

	journal *Journal
	audit   *audit.Writer
	metrics *metrics.RuntimeMetrics

	mu      sync.Mutex
	tickets map[string]*Ticket
}

func NewWorkflow(settings Settings, directory Directory, surface Surface) *Workflow {
	settings = settings.normalized()
	return &Workflow{
		settings:  settings,
		policy:    NewPolicy(settings.AuthorityName, directory),
		directory: directory,
		surface:   surface,
		renderer:  Renderer{AuthorityName: settings.AuthorityName},
		now:       time.Now,
		afterFunc: func(d time.Duration, f func()) stopper {
			return time.AfterFunc(d, f)
		},
		newID:   uuid.NewString,
		tickets: make(map[string]*Ticket),
	}
}

// SetJournal enables ticket persistence.
func (w *Workflow) SetJournal(journal *Journal) {
	w.journal = journal
}

// SetAuditWriter enables audit events for every lifecycle step.
func (w *Workflow) SetAuditWriter(writer *audit.Writer) {
	w.audit = writer
}

// SetRuntimeMetrics enables runtime metrics recording.
func (w *Workflow) SetRuntimeMetrics(recorder *metrics.RuntimeMetrics) {
	w.metrics = recorder
}

// Settings returns the effective settings.
func (w *Workflow) Settings() Settings {
	return w.settings
}

// Policy returns the authority policy used for bypass and decisions.
func (w *Workflow) Policy() Policy {
	return w.policy
}

// Submit runs action immediately for authorised actors and otherwise opens a
// ticket. The returned ticket is nil on bypass.
func (w *Workflow) Submit(ctx context.Context, inv Invocation, action Action) (*Ticket, error) {
	requester, ok := inv.Actor()
	if !ok || inv.GuildID() == "" {
		if err := inv.Reply(ctx, Message{Content: "This command can only be used in a server.", Ephemeral: true}); err != nil {
			slog.Warn("failed to send guild-only notice", "action", action.Name, "error", err)
		}
		return nil, ErrNoGuildScope
	}

	if w.policy.IsAuthorized(requester) {
		slog.Info("approval bypassed",
			"action", action.Name,
			"requester", requester.Name,
			"authority", w.settings.AuthorityName,
		)
		w.appendAudit(audit.Event{
			Type:    audit.TypeApprovalBypassed,
			Action:  action.Name,
			Actor:   requester.Name,
			GuildID: inv.GuildID(),
		})
		w.recordApproval(metrics.OutcomeBypassed, 0)
		return nil, w.runAction(ctx, action, inv)
	}

	now := w.now()
	ticket := newTicket(w.newID(), action, inv, requester, w.settings.TimeoutHours, now)
	w.register(ticket)
	defer ticket.markReady()

	pending := w.renderer.PendingRequest(action.Name, requester, ticket.TimeoutHours, action.Description, now)
	callout := w.renderer.Callout(w.directory.RoleMentions(ctx, inv.GuildID(), w.settings.AuthorityName))
	ref, err := w.surface.Publish(ctx, inv, callout, pending, Controls{TicketID: ticket.ID})
	w.recordSurface(err)
	if err != nil {
		w.unregister(ticket.ID)
		return nil, fmt.Errorf("publish approval request: %w", err)
	}
	ticket.setAnchor(ref)

	if w.settings.OpenThreads {
		w.openThread(ctx, ticket, ref)
	}

	wait := ticket.Deadline.Sub(w.now())
	if wait < 0 {
		wait = 0
	}
	timer := w.afterFunc(wait, func() { w.expire(ticket) })
	ticket.arm(timer)

	slog.Info("approval requested",
		"ticket_id", ticket.ID,
		"action", action.Name,
		"requester", requester.Name,
		"timeout_hours", ticket.TimeoutHours,
	)
	w.persist(ticket)
	w.appendAudit(audit.Event{
		Type:     audit.TypeApprovalRequested,
		TicketID: ticket.ID,
		Action:   action.Name,
		Actor:    requester.Name,
		GuildID:  requester.GuildID,
		Result:   StatusPending.String(),
	})
	w.recordApproval(metrics.OutcomeRequested, 0)
	return ticket, nil
}

func (w *Workflow) openThread(ctx context.Context, ticket *Ticket, ref MessageRef) {
	name := ticket.action.ThreadName
	if name == "" {
		name = "Approval: " + ticket.ActionName
	}
	thread, err := w.surface.CreateThread(ctx, ref, name, time.Duration(ticket.TimeoutHours)*time.Hour)
	w.recordSurface(err)
	if err != nil {
		slog.Warn("failed to create approval thread", "ticket_id", ticket.ID, "action", ticket.ActionName, "error", err)
		return
	}
	ticket.setThread(thread)

	details := w.renderer.RequestDetails(ticket.ActionName, ticket.Description, ticket.Args, ticket.CreatedAt)
	err = w.surface.PostToThread(ctx, thread, Message{View: &details})
	w.recordSurface(err)
	if err != nil {
		slog.Warn("failed to post request details", "ticket_id", ticket.ID, "thread", thread.ID, "error", err)
	}
}

// Decide applies an approve or reject click. Only the first terminal
// transition of a ticket wins; later clicks get a private notice.
func (w *Workflow) Decide(ctx context.Context, d Decision) error {
	ticket, ok := w.Ticket(d.TicketID)
	if !ok {
		w.notify(ctx, d.Interaction, "This approval request is no longer active.", true)
		return ErrTicketNotFound
	}
	if d.Actor.GuildID == "" {
		w.notify(ctx, d.Interaction, "This command can only be used in a server.", true)
		return ErrNoGuildScope
	}
	if !w.policy.IsAuthorized(d.Actor) {
		verb := "reject"
		if d.Approve {
			verb = "approve"
		}
		w.notify(ctx, d.Interaction,
			fmt.Sprintf("You do not have permission to %s this request. The %q role is required.", verb, w.settings.AuthorityName),
			true)
		slog.Warn("unauthorized approval decision",
			"ticket_id", ticket.ID,
			"action", ticket.ActionName,
			"actor", d.Actor.Name,
			"approve", d.Approve,
		)
		w.appendAudit(audit.Event{
			Type:     audit.TypePermissionDenied,
			TicketID: ticket.ID,
			Action:   ticket.ActionName,
			Actor:    d.Actor.Name,
			GuildID:  d.Actor.GuildID,
			Result:   verb,
		})
		w.recordApproval(metrics.OutcomePermissionDenied, 0)
		return ErrNotAuthorized
	}

	if err := ticket.waitReady(ctx); err != nil {
		return err
	}

	to := StatusRejected
	if d.Approve {
		to = StatusApproved
	}
	at := w.now()
	if !ticket.finish(to, &d.Actor, at) {
		w.notify(ctx, d.Interaction, "This request has already been decided.", true)
		return ErrAlreadyDecided
	}
	w.unregister(ticket.ID)
	w.persist(ticket)

	slog.Info("approval decided",
		"ticket_id", ticket.ID,
		"action", ticket.ActionName,
		"status", to.String(),
		"decider", d.Actor.Name,
		"requester", ticket.Requester.Name,
	)

	outcome := w.renderer.Outcome(ticket.ActionName, d.Actor, ticket.Requester, to, at)
	err := w.surface.Edit(ctx, ticket.Anchor(), outcome, Controls{TicketID: ticket.ID, Disabled: true})
	w.recordSurface(err)
	if err != nil {
		slog.Error("failed to edit approval message", "ticket_id", ticket.ID, "error", err)
	}

	thread, hasThread := ticket.Thread()
	if hasThread {
		w.postToThread(ctx, ticket, thread, Message{View: &outcome})
	}

	if to == StatusApproved {
		var target Invocation = ticket.invocation
		if hasThread {
			target = NewThreadRedirector(ticket.invocation, thread, w.surface)
		}
		if runErr := w.runAction(ctx, ticket.action, target); runErr != nil {
			w.reportActionFailure(ctx, ticket, d, runErr)
		}
	} else if hasThread {
		w.postToThread(ctx, ticket, thread, Message{
			Content: fmt.Sprintf("%s the command `%s` was rejected.", ticket.Requester.Mention(), ticket.ActionName),
		})
	}

	if ticket.ActionErr() != nil {
		w.persist(ticket)
	}
	eventType, outcomeName := audit.TypeApprovalRejected, metrics.OutcomeRejected
	if to == StatusApproved {
		eventType, outcomeName = audit.TypeApprovalApproved, metrics.OutcomeApproved
	}
	w.appendAudit(audit.Event{
		Type:     eventType,
		TicketID: ticket.ID,
		Action:   ticket.ActionName,
		Actor:    d.Actor.Name,
		GuildID:  d.Actor.GuildID,
		Result:   to.String(),
	})
	w.recordApproval(outcomeName, at.Sub(ticket.CreatedAt))
	return nil
}

func (w *Workflow) reportActionFailure(ctx context.Context, ticket *Ticket, d Decision, runErr error) {
	ticket.setActionErr(runErr)
	slog.Error("approved action failed",
		"ticket_id", ticket.ID,
		"action", ticket.ActionName,
		"decider", d.Actor.Name,
		"error", runErr,
	)
	w.notify(ctx, d.Interaction, fmt.Sprintf("An error occurred while running the command: %v", runErr), false)

	if w.settings.NotifyRequesterOnFailure {
		text := fmt.Sprintf("%s the approved command `%s` failed: %v", ticket.Requester.Mention(), ticket.ActionName, runErr)
		if thread, ok := ticket.Thread(); ok {
			w.postToThread(ctx, ticket, thread, Message{Content: text})
		} else if err := ticket.invocation.FollowUp(ctx, Message{Content: text}); err != nil {
			slog.Warn("failed to notify requester of action failure", "ticket_id", ticket.ID, "error", err)
		}
	}

	w.appendAudit(audit.Event{
		Type:     audit.TypeActionFailed,
		TicketID: ticket.ID,
		Action:   ticket.ActionName,
		Actor:    d.Actor.Name,
		GuildID:  d.Actor.GuildID,
		Result:   runErr.Error(),
	})
}

func (w *Workflow) expire(ticket *Ticket) {
	at := w.now()
	if !ticket.finish(StatusTimedOut, nil, at) {
		return
	}
	w.unregister(ticket.ID)

	slog.Warn("approval request timed out",
		"ticket_id", ticket.ID,
		"action", ticket.ActionName,
		"requester", ticket.Requester.Name,
		"timeout_hours", ticket.TimeoutHours,
	)

	ctx, cancel := context.WithTimeout(context.Background(), expireEditTimeout)
	defer cancel()

	view := w.renderer.Timeout(ticket.ActionName, ticket.TimeoutHours, at)
	err := w.surface.Edit(ctx, ticket.Anchor(), view, Controls{TicketID: ticket.ID, Disabled: true})
	w.recordSurface(err)
	if err != nil {
		slog.Error("failed to edit timed out approval message", "ticket_id", ticket.ID, "error", err)
	}

	w.persist(ticket)
	w.appendAudit(audit.Event{
		Type:     audit.TypeApprovalTimedOut,
		TicketID: ticket.ID,
		Action:   ticket.ActionName,
		GuildID:  ticket.Requester.GuildID,
		Result:   StatusTimedOut.String(),
	})
	w.recordApproval(metrics.OutcomeTimedOut, 0)
}

// RecoverInterrupted marks journaled tickets left pending by a previous
// process as interrupted and tells their channels. Tickets still live in
// this process are skipped. It returns how many tickets were recovered.
func (w *Workflow) RecoverInterrupted(ctx context.Context) (int, error) {
	if w.journal == nil {
		return 0, nil
	}
	at := w.now()
	records, err := w.journal.MarkInterrupted(at, func(id string) bool {
		_, live := w.Ticket(id)
		return live
	})
	if err != nil {
		return 0, fmt.Errorf("recover interrupted approvals: %w", err)
	}
	for _, rec := range records {
		if rec.MessageID != "" {
			view := w.renderer.Interrupted(rec.Action, at)
			ref := MessageRef{ChannelID: rec.ChannelID, MessageID: rec.MessageID}
			err := w.surface.Edit(ctx, ref, view, Controls{TicketID: rec.ID, Disabled: true})
			w.recordSurface(err)
			if err != nil {
				slog.Warn("failed to edit interrupted approval message", "ticket_id", rec.ID, "error", err)
			}
		}
		w.appendAudit(audit.Event{
			Type:     audit.TypeApprovalInterrupted,
			TicketID: rec.ID,
			Action:   rec.Action,
			Actor:    rec.RequesterName,
			GuildID:  rec.GuildID,
			Result:   StatusInterrupted,
		})
		w.recordApproval(metrics.OutcomeInterrupted, 0)
	}
	if len(records) > 0 {
		slog.Info("recovered interrupted approvals", "count", len(records))
	}
	return len(records), nil
}

// Ticket returns a live ticket by ID.
func (w *Workflow) Ticket(id string) (*Ticket, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	t, ok := w.tickets[id]
	return t, ok
}

// Pending lists live tickets, oldest first.
func (w *Workflow) Pending() []*Ticket {
	w.mu.Lock()
	out := make([]*Ticket, 0, len(w.tickets))
	for _, t := range w.tickets {
		out = append(out, t)
	}
	w.mu.Unlock()

	sort.Slice(out, func(a, b int) bool {
		return out[a].CreatedAt.Before(out[b].CreatedAt)
	})
	return out
}

// Close stops every armed deadline timer. Pending tickets stay in the
// journal and are reported as interrupted on the next start.
func (w *Workflow) Close() {
	w.mu.Lock()
	tickets := make([]*Ticket, 0, len(w.tickets))
	for _, t := range w.tickets {
		tickets = append(tickets, t)
	}
	w.mu.Unlock()

	for _, t := range tickets {
		t.mu.Lock()
		if t.timer != nil {
			t.timer.Stop()
		}
		t.mu.Unlock()
	}
}

func (w *Workflow) runAction(ctx context.Context, action Action, inv Invocation) (err error) {
	if action.Run == nil {
		return fmt.Errorf("action %q has no body", action.Name)
	}
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("action %q panicked: %v", action.Name, r)
		}
		if _, metricErr := w.metrics.RecordActionRun(time.Since(start), err); metricErr != nil {
			slog.Warn("failed to persist action metrics", "error", metricErr)
		}
	}()
	return action.Run(ctx, inv)
}

func (w *Workflow) register(t *Ticket) {
	w.mu.Lock()
	w.tickets[t.ID] = t
	w.mu.Unlock()
}

func (w *Workflow) unregister(id string) {
	w.mu.Lock()
	delete(w.tickets, id)
	w.mu.Unlock()
}

func (w *Workflow) notify(ctx context.Context, interaction InteractionRef, text string, private bool) {
	err := w.surface.NotifyActor(ctx, interaction, text, private)
	w.recordSurface(err)
	if err != nil {
		slog.Warn("failed to notify actor", "interaction", interaction.ID, "error", err)
	}
}

func (w *Workflow) postToThread(ctx context.Context, ticket *Ticket, thread ThreadRef, msg Message) {
	err := w.surface.PostToThread(ctx, thread, msg)
	w.recordSurface(err)
	if err != nil {
		slog.Warn("failed to post to approval thread", "ticket_id", ticket.ID, "thread", thread.ID, "error", err)
	}
}

func (w *Workflow) persist(ticket *Ticket) {
	if w.journal == nil {
		return
	}
	if err := w.journal.Put(recordFromTicket(ticket)); err != nil {
		slog.Warn("failed to journal approval ticket", "ticket_id", ticket.ID, "error", err)
	}
}

func (w *Workflow) appendAudit(event audit.Event) {
	if w.audit == nil {
		return
	}
	if event.Time.IsZero() {
		event.Time = w.now().UTC()
	}
	if err := w.audit.Append(event); err != nil {
		slog.Warn("failed to append audit event", "type", event.Type, "error", err)
	}
}

func (w *Workflow) recordApproval(outcome string, waited time.Duration) {
	if _, err := w.metrics.RecordApproval(outcome, waited); err != nil {
		slog.Warn("failed to persist approval metrics", "outcome", outcome, "error", err)
	}
}

func (w *Workflow) recordSurface(err error) {
	if _, metricErr := w.metrics.RecordSurfaceCall(err == nil); metricErr != nil {
		slog.Warn("failed to persist surface metrics", "error", metricErr)
	}
}
