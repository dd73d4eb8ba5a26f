package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/chr1sbest/tracedeps/internal/backend"
	"github.com/chr1sbest/tracedeps/internal/calendar"
	"github.com/chr1sbest/tracedeps/internal/config"
	"github.com/chr1sbest/tracedeps/internal/logger"
	"github.com/chr1sbest/tracedeps/internal/runner"
	"github.com/chr1sbest/tracedeps/internal/tracker"
)

func envOf(m map[string]string) config.LookupFunc {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

// testEnv returns a cassandra configuration with a real artifact file and state dir.
func testEnv(t *testing.T) map[string]string {
	t.Helper()
	dir := t.TempDir()
	bin := filepath.Join(dir, "tracedeps")
	if err := os.WriteFile(bin, []byte("binary"), 0755); err != nil {
		t.Fatal(err)
	}
	return map[string]string{
		"STORAGE":                "cassandra",
		"ARTIFACT_LOCATOR":       bin,
		"STATE_DIR":              filepath.Join(dir, "state"),
		"SCHEDULE_INITIAL_DELAY": "0s",
		"SCHEDULE_PERIOD":        "5ms",
		"SHUTDOWN_GRACE":         "2s",
		"LOG_LEVEL":              "error",
	}
}

func TestDispatch(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		wantCode int
		wantOut  string
		wantErr  string
	}{
		{"version", []string{"version"}, 0, "tracedeps version", ""},
		{"help", []string{"help"}, 0, "Usage:", ""},
		{"unknown command", []string{"frobnicate"}, 1, "", "Unknown command: frobnicate"},
		{"run without storage", []string{"run"}, 1, "", "STORAGE"},
		{"default command without storage", nil, 1, "", "STORAGE"},
		{"once with bad day", []string{"once", "-day", "15/03/2024"}, 2, "", "Invalid -day"},
		{"once with unknown flag", []string{"once", "-weekly"}, 2, "", "flag provided but not defined"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			code := dispatch(tt.args, envOf(nil), &stdout, &stderr)
			if code != tt.wantCode {
				t.Errorf("exit code = %d, want %d (stderr %q)", code, tt.wantCode, stderr.String())
			}
			if !strings.Contains(stdout.String(), tt.wantOut) {
				t.Errorf("stdout %q missing %q", stdout.String(), tt.wantOut)
			}
			if !strings.Contains(stderr.String(), tt.wantErr) {
				t.Errorf("stderr %q missing %q", stderr.String(), tt.wantErr)
			}
		})
	}
}

func TestUnsupportedStorageIsFatal(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := dispatch([]string{"run"}, envOf(map[string]string{"STORAGE": "mongodb"}), &stdout, &stderr)

	if code != 1 {
		t.Errorf("exit code = %d, want 1", code)
	}
	if !strings.Contains(stderr.String(), "unsupported storage") {
		t.Errorf("stderr %q should name the problem", stderr.String())
	}
	if stdout.Len() != 0 {
		t.Errorf("nothing should start before configuration is valid, got %q", stdout.String())
	}
}

func newTestApp(t *testing.T, env map[string]string) *app {
	t.Helper()
	cfg, err := config.ResolveFrom(envOf(env))
	if err != nil {
		t.Fatalf("ResolveFrom: %v", err)
	}
	a, err := newApp(cfg, &bytes.Buffer{})
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	t.Cleanup(a.close)
	return a
}

func TestOnce(t *testing.T) {
	env := testEnv(t)
	a := newTestApp(t, env)

	var gotDay calendar.Date
	var gotArtifact, gotTag string
	a.registry.Register(backend.Cassandra, func(artifact string, day calendar.Date) (backend.Job, error) {
		gotDay, gotArtifact = day, artifact
		return backend.JobFunc(func(_ context.Context, tag string) error {
			gotTag = tag
			return nil
		}), nil
	})

	day := calendar.Date{Year: 2024, Month: time.March, Day: 15}
	if code := a.once(context.Background(), day); code != 0 {
		t.Fatalf("once exit code = %d", code)
	}

	if gotDay != day || gotArtifact != env["ARTIFACT_LOCATOR"] || gotTag != "peer.service" {
		t.Errorf("job got day=%v artifact=%q tag=%q", gotDay, gotArtifact, gotTag)
	}

	s := a.tracker.Snapshot()
	if s.Totals.Runs != 1 || s.LastOutcome == nil || s.LastOutcome.Day != "2024-03-15" {
		t.Errorf("unexpected tracked state %+v", s)
	}
}

func TestOnceFailure(t *testing.T) {
	a := newTestApp(t, testEnv(t))
	a.registry.Register(backend.Cassandra, func(string, calendar.Date) (backend.Job, error) {
		return backend.JobFunc(func(context.Context, string) error { return errors.New("keyspace missing") }), nil
	})

	if code := a.once(context.Background(), calendar.Date{}); code != 1 {
		t.Errorf("once exit code = %d, want 1", code)
	}
	if s := a.tracker.Snapshot(); s.LastOutcome == nil || s.LastOutcome.Error != "keyspace missing" {
		t.Errorf("unexpected tracked state %+v", s.LastOutcome)
	}
}

func TestServeKeepsRunningAfterFailures(t *testing.T) {
	a := newTestApp(t, testEnv(t))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	calls := 0
	a.registry.Register(backend.Cassandra, func(string, calendar.Date) (backend.Job, error) {
		return backend.JobFunc(func(context.Context, string) error {
			mu.Lock()
			defer mu.Unlock()
			calls++
			if calls >= 4 {
				cancel()
			}
			if calls%2 == 1 {
				return errors.New("transient")
			}
			return nil
		}), nil
	})

	done := make(chan int)
	go func() { done <- a.serve(ctx) }()

	select {
	case code := <-done:
		if code != 0 {
			t.Errorf("serve exit code = %d", code)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not return after cancellation")
	}

	s, err := a.tracker.LoadState()
	if err != nil || s == nil {
		t.Fatalf("LoadState: %+v, %v", s, err)
	}
	if s.Status != tracker.StatusStopped {
		t.Errorf("status = %q, want stopped", s.Status)
	}
	if s.Totals.Runs < 4 || s.Totals.Failed < 2 || s.Totals.Succeeded < 2 {
		t.Errorf("unexpected totals %+v", s.Totals)
	}
}

func TestSecondProcessOnSameStateDir(t *testing.T) {
	env := testEnv(t)
	first := newTestApp(t, env)

	cfg, err := config.ResolveFrom(envOf(env))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := newApp(cfg, &bytes.Buffer{}); !errors.Is(err, tracker.ErrLockHeld) {
		t.Errorf("expected ErrLockHeld while the first app holds the lock, got %v", err)
	}

	// A killed process leaves its lock file behind, possibly with the pid
	// the restarted process gets again.
	leftover, err := os.ReadFile(first.tracker.LockPath)
	if err != nil {
		t.Fatal(err)
	}
	first.close()
	if err := os.WriteFile(first.tracker.LockPath, leftover, 0644); err != nil {
		t.Fatal(err)
	}

	restarted, err := newApp(cfg, &bytes.Buffer{})
	if err != nil {
		t.Fatalf("restart over a leftover lock file failed: %v", err)
	}
	restarted.close()
}

func TestServeAbandonsRunAfterGrace(t *testing.T) {
	env := testEnv(t)
	env["SHUTDOWN_GRACE"] = "20ms"
	env["SCHEDULE_PERIOD"] = "1h"
	a := newTestApp(t, env)

	started := make(chan struct{})
	unblock := make(chan struct{})
	a.registry.Register(backend.Cassandra, func(string, calendar.Date) (backend.Job, error) {
		return backend.JobFunc(func(context.Context, string) error {
			close(started)
			<-unblock
			return nil
		}), nil
	})
	reported := make(chan struct{})
	a.runner.AddReporter(runner.ReporterFunc(func(runner.Outcome) { close(reported) }))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan int)
	go func() { done <- a.serve(ctx) }()

	<-started
	cancel()
	select {
	case code := <-done:
		if code != 0 {
			t.Errorf("serve exit code = %d", code)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not give up after the grace period")
	}

	a.close()
	close(unblock)
	<-reported

	s, err := a.tracker.LoadState()
	if err != nil || s == nil {
		t.Fatalf("LoadState: %+v, %v", s, err)
	}
	if s.Status != tracker.StatusRunning || s.CurrentRunID == "" {
		t.Errorf("abandoned run should stay visible, got status=%q current=%q", s.Status, s.CurrentRunID)
	}
	if s.Totals.Runs != 0 {
		t.Errorf("run finishing after shutdown must not write state, totals %+v", s.Totals)
	}
}

func TestLogArtifactChanges(t *testing.T) {
	var buf bytes.Buffer
	a := &app{log: logger.NewWriterLogger(&buf, logger.LevelInfo)}

	changes := make(chan string, 1)
	changes <- "/opt/tracedeps/bin/tracedeps"
	close(changes)

	a.logArtifactChanges(context.Background(), changes)

	out := buf.String()
	if !strings.Contains(out, "Artifact replaced") || !strings.Contains(out, "path=/opt/tracedeps/bin/tracedeps") {
		t.Errorf("missing change line in %q", out)
	}
}
