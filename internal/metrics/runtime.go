package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const runtimeMetricsFileName = "runtime_metrics.json"

var latencyBucketUpperBoundsMs = []int64{
	10, 25, 50, 100, 250, 500, 1000, 2000, 5000, 10000, 30000,
}

// Decisions take minutes to hours, so they get their own buckets in seconds.
var decisionBucketUpperBoundsSec = []int64{
	60, 300, 900, 1800, 3600, 3 * 3600, 6 * 3600, 12 * 3600, 24 * 3600, 72 * 3600,
}

// Approval outcomes recorded by RecordApproval.
const (
	OutcomeRequested        = "requested"
	OutcomeBypassed         = "bypassed"
	OutcomeApproved         = "approved"
	OutcomeRejected         = "rejected"
	OutcomeTimedOut         = "timed_out"
	OutcomeInterrupted      = "interrupted"
	OutcomePermissionDenied = "permission_denied"
)

// RuntimeSnapshot contains aggregated runtime metrics for approvals, approved
// action runs and messaging surface calls.
type RuntimeSnapshot struct {
	UpdatedAt time.Time     `json:"updated_at"`
	Approval  ApprovalStats `json:"approval"`
	Action    ActionStats   `json:"action"`
	Surface   SurfaceStats  `json:"surface"`
}

// ApprovalStats tracks ticket lifecycle counters.
type ApprovalStats struct {
	Requested           int64 `json:"requested"`
	Bypassed            int64 `json:"bypassed"`
	Approved            int64 `json:"approved"`
	Rejected            int64 `json:"rejected"`
	TimedOut            int64 `json:"timed_out"`
	Interrupted         int64 `json:"interrupted"`
	PermissionDenied    int64 `json:"permission_denied"`
	Decided             int64 `json:"decided"`
	TotalDecisionSec    int64 `json:"total_decision_sec"`
	MaxDecisionSec      int64 `json:"max_decision_sec"`
	P95ProxyDecisionSec int64 `json:"p95_proxy_decision_sec"`
}

// Pending returns requested tickets that have not reached a terminal state.
func (a ApprovalStats) Pending() int64 {
	pending := a.Requested - a.Approved - a.Rejected - a.TimedOut - a.Interrupted
	if pending < 0 {
		return 0
	}
	return pending
}

// ApprovalRatio returns approved/(approved+rejected+timed_out) in [0,1].
func (a ApprovalStats) ApprovalRatio() float64 {
	finished := a.Approved + a.Rejected + a.TimedOut
	if finished <= 0 {
		return 0
	}
	return float64(a.Approved) / float64(finished)
}

// AvgDecisionSec returns the average time from request to human decision.
func (a ApprovalStats) AvgDecisionSec() float64 {
	if a.Decided <= 0 {
		return 0
	}
	return float64(a.TotalDecisionSec) / float64(a.Decided)
}

// ActionStats tracks executions of approved or bypassed actions.
type ActionStats struct {
	Total             int64 `json:"total"`
	Errors            int64 `json:"errors"`
	Timeouts          int64 `json:"timeouts"`
	TotalLatencyMs    int64 `json:"total_latency_ms"`
	MaxLatencyMs      int64 `json:"max_latency_ms"`
	LastLatencyMs     int64 `json:"last_latency_ms"`
	P95ProxyLatencyMs int64 `json:"p95_proxy_latency_ms"`
}

// ErrorRatio returns errors/total in [0,1].
func (a ActionStats) ErrorRatio() float64 {
	if a.Total <= 0 {
		return 0
	}
	return float64(a.Errors) / float64(a.Total)
}

// AvgLatencyMs returns average latency in milliseconds.
func (a ActionStats) AvgLatencyMs() float64 {
	if a.Total <= 0 {
		return 0
	}
	return float64(a.TotalLatencyMs) / float64(a.Total)
}

// SurfaceStats tracks calls into the messaging surface.
type SurfaceStats struct {
	Calls    int64 `json:"calls"`
	Failures int64 `json:"failures"`
}

// FailureRatio returns failures/calls in [0,1].
func (s SurfaceStats) FailureRatio() float64 {
	if s.Calls <= 0 {
		return 0
	}
	return float64(s.Failures) / float64(s.Calls)
}

// HasData reports whether any runtime metrics were recorded.
func (s RuntimeSnapshot) HasData() bool {
	return s.Approval.Requested > 0 || s.Approval.Bypassed > 0 || s.Action.Total > 0 || s.Surface.Calls > 0
}

// RuntimeMetrics records and persists runtime metrics.
type RuntimeMetrics struct {
	path string
	now  func() time.Time

	mu              sync.Mutex
	snap            RuntimeSnapshot
	buckets         []int64
	decisionBuckets []int64
}

// NewRuntimeMetrics creates a metrics recorder rooted at <workspace>/state/runtime_metrics.json.
func NewRuntimeMetrics(workspacePath string) *RuntimeMetrics {
	return &RuntimeMetrics{
		path:            runtimeMetricsPath(workspacePath),
		now:             time.Now,
		buckets:         make([]int64, len(latencyBucketUpperBoundsMs)+1),
		decisionBuckets: make([]int64, len(decisionBucketUpperBoundsSec)+1),
	}
}

// Snapshot returns the latest in-memory snapshot.
func (m *RuntimeMetrics) Snapshot() RuntimeSnapshot {
	if m == nil {
		return RuntimeSnapshot{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snap
}

// RecordApproval counts one lifecycle outcome. waited is the time between the
// request and a human decision; it is only aggregated for approved and
// rejected outcomes.
func (m *RuntimeMetrics) RecordApproval(outcome string, waited time.Duration) (RuntimeSnapshot, error) {
	if m == nil {
		return RuntimeSnapshot{}, nil
	}

	m.mu.Lock()
	m.snap.UpdatedAt = m.now().UTC()
	switch outcome {
	case OutcomeRequested:
		m.snap.Approval.Requested++
	case OutcomeBypassed:
		m.snap.Approval.Bypassed++
	case OutcomeApproved, OutcomeRejected:
		if outcome == OutcomeApproved {
			m.snap.Approval.Approved++
		} else {
			m.snap.Approval.Rejected++
		}
		sec := int64(waited / time.Second)
		if sec < 0 {
			sec = 0
		}
		m.snap.Approval.Decided++
		m.snap.Approval.TotalDecisionSec += sec
		if sec > m.snap.Approval.MaxDecisionSec {
			m.snap.Approval.MaxDecisionSec = sec
		}
		m.decisionBuckets[bucketIndex(decisionBucketUpperBoundsSec, sec)]++
		m.snap.Approval.P95ProxyDecisionSec = p95ProxyFromBuckets(decisionBucketUpperBoundsSec, m.decisionBuckets, m.snap.Approval.Decided)
	case OutcomeTimedOut:
		m.snap.Approval.TimedOut++
	case OutcomeInterrupted:
		m.snap.Approval.Interrupted++
	case OutcomePermissionDenied:
		m.snap.Approval.PermissionDenied++
	default:
		m.mu.Unlock()
		return m.Snapshot(), fmt.Errorf("unknown approval outcome %q", outcome)
	}
	snapshot := m.snap
	m.mu.Unlock()

	return snapshot, persistRuntimeSnapshot(m.path, snapshot)
}

// RecordActionRun updates action execution metrics and persists the snapshot.
func (m *RuntimeMetrics) RecordActionRun(duration time.Duration, runErr error) (RuntimeSnapshot, error) {
	if m == nil {
		return RuntimeSnapshot{}, nil
	}

	latencyMs := duration.Milliseconds()
	if latencyMs < 0 {
		latencyMs = 0
	}

	m.mu.Lock()
	m.snap.UpdatedAt = m.now().UTC()
	m.snap.Action.Total++
	m.snap.Action.TotalLatencyMs += latencyMs
	m.snap.Action.LastLatencyMs = latencyMs
	if latencyMs > m.snap.Action.MaxLatencyMs {
		m.snap.Action.MaxLatencyMs = latencyMs
	}
	if runErr != nil {
		m.snap.Action.Errors++
		if isTimeoutError(runErr) {
			m.snap.Action.Timeouts++
		}
	}

	m.buckets[bucketIndex(latencyBucketUpperBoundsMs, latencyMs)]++
	m.snap.Action.P95ProxyLatencyMs = p95ProxyFromBuckets(latencyBucketUpperBoundsMs, m.buckets, m.snap.Action.Total)

	snapshot := m.snap
	m.mu.Unlock()

	return snapshot, persistRuntimeSnapshot(m.path, snapshot)
}

// RecordSurfaceCall updates messaging surface metrics and persists the snapshot.
func (m *RuntimeMetrics) RecordSurfaceCall(success bool) (RuntimeSnapshot, error) {
	if m == nil {
		return RuntimeSnapshot{}, nil
	}

	m.mu.Lock()
	m.snap.UpdatedAt = m.now().UTC()
	m.snap.Surface.Calls++
	if !success {
		m.snap.Surface.Failures++
	}
	snapshot := m.snap
	m.mu.Unlock()

	return snapshot, persistRuntimeSnapshot(m.path, snapshot)
}

// ReadRuntimeSnapshot reads the persisted snapshot from workspace state.
// If no file exists yet, it returns a zero-value snapshot and nil error.
func ReadRuntimeSnapshot(workspacePath string) (RuntimeSnapshot, error) {
	path := runtimeMetricsPath(workspacePath)
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return RuntimeSnapshot{}, nil
		}
		return RuntimeSnapshot{}, fmt.Errorf("read runtime metrics: %w", err)
	}

	var snap RuntimeSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return RuntimeSnapshot{}, fmt.Errorf("decode runtime metrics: %w", err)
	}
	return snap, nil
}

func runtimeMetricsPath(workspacePath string) string {
	if strings.TrimSpace(workspacePath) == "" {
		return ""
	}
	return filepath.Join(workspacePath, "state", runtimeMetricsFileName)
}

func persistRuntimeSnapshot(path string, snapshot RuntimeSnapshot) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create runtime metrics dir: %w", err)
	}

	payload, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("encode runtime metrics: %w", err)
	}

	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, payload, 0o644); err != nil {
		return fmt.Errorf("write runtime metrics temp file: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		return fmt.Errorf("rename runtime metrics file: %w", err)
	}
	return nil
}

func bucketIndex(bounds []int64, value int64) int {
	for i, upper := range bounds {
		if value <= upper {
			return i
		}
	}
	return len(bounds)
}

func p95ProxyFromBuckets(bounds, buckets []int64, total int64) int64 {
	if total <= 0 {
		return 0
	}
	target := int64(float64(total) * 0.95)
	if target <= 0 {
		target = 1
	}

	var cumulative int64
	for i, count := range buckets {
		cumulative += count
		if cumulative < target {
			continue
		}
		if i >= len(bounds) {
			return bounds[len(bounds)-1]
		}
		return bounds[i]
	}
	return bounds[len(bounds)-1]
}

func isTimeoutError(runErr error) bool {
	if runErr == nil {
		return false
	}
	if errors.Is(runErr, context.DeadlineExceeded) {
		return true
	}
	lowered := strings.ToLower(runErr.Error())
	return strings.Contains(lowered, "deadline exceeded") ||
		strings.Contains(lowered, "timeout") ||
		strings.Contains(lowered, "timed out")
}
