package commands

import (
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/MEKXH/gatekeeper/internal/config"
	"github.com/MEKXH/gatekeeper/internal/metrics"
)

var ansiRe = regexp.MustCompile(`\x1b\[[0-9;]*m`)

func stripANSI(s string) string {
	return ansiRe.ReplaceAllString(s, "")
}

func TestStatusCommand_PrintsConfig(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)
	t.Setenv("USERPROFILE", tmpDir)

	output := captureOutput(t, func() {
		if err := runStatus(nil, nil); err != nil {
			t.Fatalf("runStatus error: %v", err)
		}
	})

	cleanOutput := stripANSI(output)
	for _, want := range []string{
		"Gatekeeper Status",
		"Path:",
		"Not found (run 'gatekeeper init')",
		"Token:",
		"missing",
		"Approver role:",
		"Administrator",
		"24h",
		"guild.event_category",
		"Runtime Metrics",
		"no runtime data yet",
	} {
		if !strings.Contains(cleanOutput, want) {
			t.Fatalf("expected %q in status output, got: %s", want, cleanOutput)
		}
	}
}

func TestStatusCommand_InvalidWorkspaceModeReturnsError(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)
	t.Setenv("USERPROFILE", tmpDir)

	configPath := config.ConfigPath()
	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	raw := `{"workspace": {"mode": "path", "path": ""}}`
	if err := os.WriteFile(configPath, []byte(raw), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if err := runStatus(nil, nil); err == nil {
		t.Fatal("expected error")
	}
}

func TestStatusCommand_PrintsRuntimeMetricsSnapshot(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)
	t.Setenv("USERPROFILE", tmpDir)

	workspacePath := filepath.Join(tmpDir, ".gatekeeper", "workspace")
	recorder := metrics.NewRuntimeMetrics(workspacePath)
	_, _ = recorder.RecordApproval(metrics.OutcomeRequested, 0)
	_, _ = recorder.RecordApproval(metrics.OutcomeApproved, time.Minute)
	_, _ = recorder.RecordActionRun(120*time.Millisecond, nil)
	_, _ = recorder.RecordSurfaceCall(false)

	output := captureOutput(t, func() {
		if err := runStatus(nil, nil); err != nil {
			t.Fatalf("runStatus error: %v", err)
		}
	})

	cleanOutput := stripANSI(output)
	for _, want := range []string{"requested=1", "approved=1", "action_total=1", "surface_failure_ratio=1.000"} {
		if !strings.Contains(cleanOutput, want) {
			t.Fatalf("expected %q in runtime metrics output, got: %s", want, cleanOutput)
		}
	}
}

func TestStatusCommand_JSONOutput(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)
	t.Setenv("USERPROFILE", tmpDir)
	t.Setenv("DISCORD_BOT_TOKEN", "token")
	t.Setenv("CLUB_CATEGORY_NAME", "Clubs")

	workspacePath := filepath.Join(tmpDir, ".gatekeeper", "workspace")
	seedJournal(t, workspacePath)

	cmd := NewStatusCmd()
	if err := cmd.Flags().Set("json", "true"); err != nil {
		t.Fatalf("set --json: %v", err)
	}

	output := captureOutput(t, func() {
		if err := runStatus(cmd, nil); err != nil {
			t.Fatalf("runStatus error: %v", err)
		}
	})

	var payload map[string]any
	if err := json.Unmarshal([]byte(output), &payload); err != nil {
		t.Fatalf("invalid json output: %v, output=%s", err, output)
	}
	if s, _ := payload["generated_at"].(string); strings.TrimSpace(s) == "" {
		t.Fatalf("expected generated_at in json output, got: %v", payload)
	}
	discord, ok := payload["discord"].(map[string]any)
	if !ok || discord["token_configured"] != true {
		t.Fatalf("expected configured token, got: %#v", payload["discord"])
	}
	if payload["pending_approvals"] != float64(1) {
		t.Fatalf("expected one pending approval, got: %v", payload["pending_approvals"])
	}
	missing, _ := payload["missing_guild_settings"].([]any)
	if len(missing) != 7 {
		t.Fatalf("expected seven missing guild settings, got: %v", missing)
	}
	if _, ok := payload["runtime_metrics"].(map[string]any); !ok {
		t.Fatalf("expected runtime_metrics object, got: %#v", payload["runtime_metrics"])
	}
}
