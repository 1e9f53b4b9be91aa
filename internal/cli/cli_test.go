package cli

import (
	"bytes"
	"io"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/lazypower/resonance/internal/clock"
	"github.com/lazypower/resonance/internal/engine"
	"github.com/lazypower/resonance/internal/server"
	"github.com/lazypower/resonance/internal/store"
)

func testAPI(t *testing.T) string {
	t.Helper()
	db, err := store.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	sess := engine.New("ana", engine.WithClock(clock.NewManual(time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC))), engine.WithRecorder(db))
	t.Cleanup(sess.Stop)

	ts := httptest.NewServer(server.New(sess, db, "test", nil))
	t.Cleanup(ts.Close)
	return ts.URL
}

// run executes the root command against url and returns its stdout.
func run(t *testing.T, url string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("RESONANCE_URL", "")
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs(append([]string{"--config", filepath.Join(t.TempDir(), "config.yaml"), "--server", url}, args...))
	err := rootCmd.Execute()
	return out.String(), err
}

func mustRun(t *testing.T, url string, args ...string) string {
	t.Helper()
	out, err := run(t, url, args...)
	if err != nil {
		t.Fatalf("resonance %s: %v", strings.Join(args, " "), err)
	}
	return out
}

func expectContains(t *testing.T, out string, wants ...string) {
	t.Helper()
	for _, want := range wants {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestVersionCommand(t *testing.T) {
	out := mustRun(t, "", "version")
	expectContains(t, out, "resonance dev")
}

func TestConfigShow(t *testing.T) {
	out := mustRun(t, "", "config", "show")
	expectContains(t, out, "port: 37787", "sweep_interval: 5s")
}

func TestPresenceAndDecideCommands(t *testing.T) {
	url := testAPI(t)
	calm := []string{"--mode", "calm", "--tone", "calm", "--focus", "medium", "--social", "with_one"}

	out := mustRun(t, url, append([]string{"presence", "set"}, calm...)...)
	expectContains(t, out, `"user": "ana"`, `"mode": "calm"`)

	out = mustRun(t, url, "presence", "get")
	expectContains(t, out, `"social": "with_one"`)

	out = mustRun(t, url, "decide", "urgency")
	expectContains(t, out, `"glow": "subtle"`, `"animation": "rapid_pulse"`)

	if _, err := run(t, url, "presence", "get", "nobody"); err == nil || !strings.Contains(err.Error(), "404") {
		t.Errorf("unknown presence error = %v", err)
	}
}

func TestMessageAndContractCommands(t *testing.T) {
	url := testAPI(t)

	out := mustRun(t, url, "message", "send", "ana", "hello", "--when", "on_open")
	expectContains(t, out, `"body": "hello"`, `"delivered_at"`)

	out = mustRun(t, url, "contract", "create", "--party", "ana", "--party", "ben",
		"--mode", "calm", "--tone", "calm", "--focus", "medium", "--social", "with_one", "--terms", "tea")
	expectContains(t, out, `"status": "pending"`, `"terms": "tea"`)

	out = mustRun(t, url, "contract", "list", "--status", "pending")
	expectContains(t, out, `"initiator": "ana"`)

	if _, err := run(t, url, "contract", "show", "missing"); err == nil || !strings.Contains(err.Error(), "404") {
		t.Errorf("missing contract error = %v", err)
	}
}

func TestRitualAndAuditCommands(t *testing.T) {
	url := testAPI(t)

	out := mustRun(t, url, "ritual", "broadcast", "heartbeat", "--energy", "0.3")
	expectContains(t, out, `"mode": "pulse_broadcast"`, `"status": "running"`)

	out = mustRun(t, url, "ritual", "end")
	expectContains(t, out, `"status": "completed"`)

	out = mustRun(t, url, "audit", "rituals", "--limit", "5")
	expectContains(t, out, `"mode": "pulse_broadcast"`)

	out = mustRun(t, url, "audit", "pulses")
	expectContains(t, out, `"type": "heartbeat"`, `"direction": "out"`)

	if _, err := run(t, url, "audit", "everything"); err == nil {
		t.Error("audit accepted an unknown table")
	}

	out = mustRun(t, url, "sweep")
	expectContains(t, out, `"expired_pulses": 0`)
}
