package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	auditFileMode = 0644
	auditDirMode  = 0755
)

// Event types written by the approval workflow.
const (
	TypeApprovalRequested   = "approval_requested"
	TypeApprovalBypassed    = "approval_bypassed"
	TypeApprovalApproved    = "approval_approved"
	TypeApprovalRejected    = "approval_rejected"
	TypeApprovalTimedOut    = "approval_timed_out"
	TypeApprovalInterrupted = "approval_interrupted"
	TypeActionFailed        = "action_failed"
	TypePermissionDenied    = "permission_denied"
)

// Event is one audit record written as a single JSON line.
type Event struct {
	Time     time.Time `json:"time"`
	Type     string    `json:"type"`
	TicketID string    `json:"ticket_id,omitempty"`
	Action   string    `json:"action,omitempty"`
	Actor    string    `json:"actor,omitempty"`
	GuildID  string    `json:"guild_id,omitempty"`
	Result   string    `json:"result,omitempty"`
}

// Writer appends audit events to <workspace>/state/audit.jsonl.
type Writer struct {
	path string
	mu   sync.Mutex
}

// NewWriter creates an append-only audit writer rooted at workspace state.
func NewWriter(workspace string) *Writer {
	return &Writer{
		path: filepath.Join(workspace, "state", "audit.jsonl"),
	}
}

// Path returns the JSONL file location.
func (w *Writer) Path() string {
	return w.path
}

// Append writes one event as one JSONL line.
func (w *Writer) Append(event Event) error {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(w.path), auditDirMode); err != nil {
		return fmt.Errorf("create audit dir: %w", err)
	}

	file, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, auditFileMode)
	if err != nil {
		return fmt.Errorf("open audit file: %w", err)
	}
	defer file.Close()

	encoded, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}
	encoded = append(encoded, '\n')

	if _, err := file.Write(encoded); err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	if err := file.Sync(); err != nil {
		return fmt.Errorf("sync audit file: %w", err)
	}
	return nil
}

// ReadEvents loads every event in the audit file, oldest first. A missing
// file yields no events.
func ReadEvents(workspace string) ([]Event, error) {
	path := filepath.Join(workspace, "state", "audit.jsonl")
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open audit file: %w", err)
	}
	defer file.Close()

	var events []Event
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var event Event
		if err := json.Unmarshal(line, &event); err != nil {
			return nil, fmt.Errorf("decode audit event: %w", err)
		}
		events = append(events, event)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan audit file: %w", err)
	}
	return events, nil
}
