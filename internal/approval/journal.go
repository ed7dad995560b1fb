package approval

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	journalVersion    = 1
	journalFileMode   = 0644
	journalDirMode    = 0755
	maxJournalRecords = 1000
)

// StatusInterrupted marks journal records whose ticket was lost to a restart.
// It never appears on a live Ticket.
const StatusInterrupted = "interrupted"

// Record is the persisted trace of one ticket. Actions are closures and are
// never persisted, so a record cannot be resumed, only reported.
type Record struct {
	ID            string    `json:"id"`
	Action        string    `json:"action"`
	Description   string    `json:"description,omitempty"`
	Args          []Arg     `json:"args,omitempty"`
	RequesterID   string    `json:"requester_id"`
	RequesterName string    `json:"requester_name,omitempty"`
	GuildID       string    `json:"guild_id"`
	ChannelID     string    `json:"channel_id"`
	MessageID     string    `json:"message_id,omitempty"`
	ThreadID      string    `json:"thread_id,omitempty"`
	Status        string    `json:"status"`
	TimeoutHours  int       `json:"timeout_hours"`
	CreatedAt     time.Time `json:"created_at"`
	Deadline      time.Time `json:"deadline"`
	DecidedAt     time.Time `json:"decided_at,omitzero"`
	DecidedByID   string    `json:"decided_by_id,omitempty"`
	DecidedByName string    `json:"decided_by_name,omitempty"`
	ActionError   string    `json:"action_error,omitempty"`
}

// Query filters journal listings. Empty fields match everything.
type Query struct {
	Status string
	Action string
}

type journalData struct {
	Version int      `json:"version"`
	Records []Record `json:"records"`
}

// Journal persists ticket records to disk.
type Journal struct {
	path string
	mu   sync.Mutex
}

// NewJournal creates a journal under <workspace>/state/approvals.json.
func NewJournal(workspace string) *Journal {
	return &Journal{path: filepath.Join(workspace, "state", "approvals.json")}
}

// Path returns the journal file location.
func (j *Journal) Path() string {
	return j.path
}

// Put inserts or replaces the record with the same ID.
func (j *Journal) Put(record Record) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	data, err := j.loadLocked()
	if err != nil {
		return err
	}
	replaced := false
	for i := range data.Records {
		if data.Records[i].ID == record.ID {
			data.Records[i] = record
			replaced = true
			break
		}
	}
	if !replaced {
		data.Records = append(data.Records, record)
	}
	return j.saveLocked(data)
}

// Get returns the record with the given ID.
func (j *Journal) Get(id string) (Record, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	data, err := j.loadLocked()
	if err != nil {
		return Record{}, err
	}
	for _, rec := range data.Records {
		if rec.ID == id {
			return rec, nil
		}
	}
	return Record{}, fmt.Errorf("%w: %s", ErrTicketNotFound, id)
}

// List returns matching records, newest first.
func (j *Journal) List(q Query) ([]Record, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	data, err := j.loadLocked()
	if err != nil {
		return nil, err
	}
	status := strings.ToLower(strings.TrimSpace(q.Status))
	action := strings.TrimSpace(q.Action)

	out := make([]Record, 0, len(data.Records))
	for _, rec := range data.Records {
		if status != "" && rec.Status != status {
			continue
		}
		if action != "" && rec.Action != action {
			continue
		}
		out = append(out, rec)
	}
	sort.SliceStable(out, func(a, b int) bool {
		return out[a].CreatedAt.After(out[b].CreatedAt)
	})
	return out, nil
}

// MarkInterrupted flips every pending record to interrupted and returns the
// changed records. Records for which live reports true are left alone.
func (j *Journal) MarkInterrupted(now time.Time, live func(id string) bool) ([]Record, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	data, err := j.loadLocked()
	if err != nil {
		return nil, err
	}
	var changed []Record
	for i := range data.Records {
		if data.Records[i].Status != StatusPending.String() {
			continue
		}
		if live != nil && live(data.Records[i].ID) {
			continue
		}
		data.Records[i].Status = StatusInterrupted
		data.Records[i].DecidedAt = now
		changed = append(changed, data.Records[i])
	}
	if len(changed) == 0 {
		return nil, nil
	}
	if err := j.saveLocked(data); err != nil {
		return nil, err
	}
	return changed, nil
}

func (j *Journal) loadLocked() (journalData, error) {
	raw, err := os.ReadFile(j.path)
	if err != nil {
		if os.IsNotExist(err) {
			return defaultJournalData(), nil
		}
		return journalData{}, fmt.Errorf("read approval journal: %w", err)
	}

	var parsed journalData
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return journalData{}, fmt.Errorf("parse approval journal: %w", err)
	}
	return normalizeJournalData(parsed), nil
}

func (j *Journal) saveLocked(data journalData) error {
	normalized := pruneJournal(normalizeJournalData(data))

	encoded, err := json.MarshalIndent(normalized, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal approval journal: %w", err)
	}

	dir := filepath.Dir(j.path)
	if err := os.MkdirAll(dir, journalDirMode); err != nil {
		return fmt.Errorf("create approval journal dir: %w", err)
	}

	tmpFile, err := os.CreateTemp(dir, "approvals-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp approval journal: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer os.Remove(tmpPath)

	if _, err := tmpFile.Write(encoded); err != nil {
		_ = tmpFile.Close()
		return fmt.Errorf("write temp approval journal: %w", err)
	}
	if err := tmpFile.Chmod(journalFileMode); err != nil {
		_ = tmpFile.Close()
		return fmt.Errorf("chmod temp approval journal: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close temp approval journal: %w", err)
	}

	if err := os.Rename(tmpPath, j.path); err != nil {
		if removeErr := os.Remove(j.path); removeErr != nil && !os.IsNotExist(removeErr) {
			return fmt.Errorf("replace approval journal: rename failed (%v), remove failed (%v)", err, removeErr)
		}
		if retryErr := os.Rename(tmpPath, j.path); retryErr != nil {
			return fmt.Errorf("replace approval journal after remove: %w", retryErr)
		}
	}
	return nil
}

func defaultJournalData() journalData {
	return journalData{
		Version: journalVersion,
		Records: []Record{},
	}
}

func normalizeJournalData(data journalData) journalData {
	if data.Version <= 0 {
		data.Version = journalVersion
	}
	if data.Records == nil {
		data.Records = []Record{}
	}
	return data
}

// pruneJournal drops the oldest finished records beyond the cap. Pending
// records are always kept so recovery can find them.
func pruneJournal(data journalData) journalData {
	excess := len(data.Records) - maxJournalRecords
	if excess <= 0 {
		return data
	}
	kept := make([]Record, 0, maxJournalRecords)
	for _, rec := range data.Records {
		if excess > 0 && rec.Status != StatusPending.String() {
			excess--
			continue
		}
		kept = append(kept, rec)
	}
	data.Records = kept
	return data
}

func recordFromTicket(t *Ticket) Record {
	rec := Record{
		ID:            t.ID,
		Action:        t.ActionName,
		Description:   t.Description,
		Args:          t.Args,
		RequesterID:   t.Requester.ID,
		RequesterName: t.Requester.Name,
		GuildID:       t.Requester.GuildID,
		Status:        t.Status().String(),
		TimeoutHours:  t.TimeoutHours,
		CreatedAt:     t.CreatedAt,
		Deadline:      t.Deadline,
		DecidedAt:     t.DecidedAt(),
	}
	anchor := t.Anchor()
	rec.ChannelID = anchor.ChannelID
	rec.MessageID = anchor.MessageID
	if thread, ok := t.Thread(); ok {
		rec.ThreadID = thread.ID
	}
	if decider, ok := t.Decider(); ok {
		rec.DecidedByID = decider.ID
		rec.DecidedByName = decider.Name
	}
	if err := t.ActionErr(); err != nil {
		rec.ActionError = err.Error()
	}
	return rec
}
