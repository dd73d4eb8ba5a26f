// Package tracker persists the outcome of dependency runs to STATE_DIR so an
// operator (or a health check) can see what the process last did.
package tracker

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/chr1sbest/tracedeps/internal/logger"
	"github.com/chr1sbest/tracedeps/internal/runner"
)

const (
	StatusIdle    = "idle"
	StatusRunning = "running"
	StatusStopped = "stopped"
)

// Writer owns the files under a state directory and reports outcomes into them.
type Writer struct {
	Dir       string
	StatePath string
	LockPath  string

	mu       sync.Mutex
	state    State
	detached bool
	log      logger.Logger
	now      func() time.Time
}

func NewWriter(dir string) *Writer {
	return &Writer{
		Dir:       dir,
		StatePath: filepath.Join(dir, "state.json"),
		LockPath:  filepath.Join(dir, ".tracedeps_lock"),
		log:       logger.NewNoopLogger(),
		now:       time.Now,
	}
}

// SetLogger sets where write failures are reported.
func (w *Writer) SetLogger(log logger.Logger) {
	w.log = log
}

// Begin starts a new process record. Cumulative counters and the last
// outcome are carried over from an existing state file.
func (w *Writer) Begin(p Process) error {
	if err := os.MkdirAll(w.Dir, 0755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	prev, err := w.LoadState()
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	w.state = State{
		Process:   p,
		PID:       os.Getpid(),
		StartedAt: now,
		UpdatedAt: now,
		Status:    StatusIdle,
	}
	if prev != nil {
		if prev.Status == StatusRunning {
			w.log.Warn("Previous process exited during a run",
				logger.F("pid", prev.PID),
				logger.F("run_id", prev.CurrentRunID),
			)
		}
		w.state.Totals = prev.Totals
		w.state.ConsecutiveFailures = prev.ConsecutiveFailures
		w.state.LastSuccessAt = prev.LastSuccessAt
		w.state.LastOutcome = prev.LastOutcome
	}
	return w.WriteState(w.state)
}

// Started marks a run as in flight.
func (w *Writer) Started(req runner.Request) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.state.Status = StatusRunning
	w.state.CurrentRunID = req.ID
	w.state.UpdatedAt = w.now()
	w.flush()
}

// Report records o and rewrites the state file. Write failures are logged,
// never returned, so tracking cannot fail a run.
func (w *Writer) Report(o runner.Outcome) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.state.Status = StatusIdle
	w.state.CurrentRunID = ""
	w.state.UpdatedAt = w.now()
	w.state.Totals.Runs++
	if o.Succeeded {
		w.state.Totals.Succeeded++
		w.state.ConsecutiveFailures = 0
		finished := o.FinishedAt
		w.state.LastSuccessAt = &finished
	} else {
		w.state.Totals.Failed++
		w.state.ConsecutiveFailures++
	}
	rec := recordOf(o)
	w.state.LastOutcome = &rec
	w.flush()
}

// flush writes the in-memory state unless the lock has been released, in
// which case the directory may already belong to another process.
func (w *Writer) flush() {
	if w.detached {
		w.log.Debug("State directory released, skipping state write", logger.F("path", w.StatePath))
		return
	}
	if err := w.WriteState(w.state); err != nil {
		w.log.Warn("Failed to write run state", logger.F("path", w.StatePath), logger.F("error", err))
	}
}

// MarkStopped records that the process is shutting down.
func (w *Writer) MarkStopped() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.detached {
		return nil
	}
	w.state.Status = StatusStopped
	w.state.UpdatedAt = w.now()
	return w.WriteState(w.state)
}

// Snapshot returns a copy of the in-memory state.
func (w *Writer) Snapshot() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

func (w *Writer) WriteState(s State) error {
	return writeJSONAtomic(w.StatePath, s)
}

// LoadState reads the state file. A missing or corrupt file yields nil.
func (w *Writer) LoadState() (*State, error) {
	b, err := os.ReadFile(w.StatePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var s State
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, nil
	}
	return &s, nil
}

func writeJSONAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return err
	}

	tmp := fmt.Sprintf("%s.tmp.%d", path, time.Now().UnixNano())
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}
