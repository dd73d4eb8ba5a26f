package tracker

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// Lock is the content of the lock file. It is informational only; ownership
// is the advisory flock held on the open file.
type Lock struct {
	PID       int       `json:"pid"`
	StartedAt time.Time `json:"started_at"`
	RunID     string    `json:"run_id"`
}

var ErrLockHeld = errors.New("state directory is locked by another tracedeps process")

// AcquireLock takes an exclusive flock on the lock file for the life of the
// process. The kernel drops it when the holder exits, so a leftover file from
// a killed process never blocks a restart, even one that comes back with the
// same pid. The returned func removes the file, releases the lock and stops
// further state writes.
func (w *Writer) AcquireLock(runID string) (func() error, error) {
	if err := os.MkdirAll(w.Dir, 0755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}

	f, err := w.lockFile()
	if err != nil {
		return nil, err
	}

	data, err := json.MarshalIndent(Lock{PID: os.Getpid(), StartedAt: w.now(), RunID: runID}, "", "    ")
	if err == nil {
		err = f.Truncate(0)
	}
	if err == nil {
		_, err = f.WriteAt(data, 0)
	}
	if err == nil {
		err = f.Sync()
	}
	if err != nil {
		unlockAndClose(f)
		return nil, fmt.Errorf("write lock file: %w", err)
	}

	w.mu.Lock()
	w.detached = false
	w.mu.Unlock()

	var once sync.Once
	var releaseErr error
	return func() error {
		once.Do(func() {
			w.mu.Lock()
			w.detached = true
			w.mu.Unlock()

			if err := os.Remove(w.LockPath); err != nil && !os.IsNotExist(err) {
				releaseErr = err
			}
			unlockAndClose(f)
		})
		return releaseErr
	}, nil
}

// lockFile opens the lock file and flocks it. A holder that unlinks the file
// between our open and our flock leaves us locking a dead inode, so the lock
// only counts once the path still names the file we hold.
func (w *Writer) lockFile() (*os.File, error) {
	for attempt := 0; attempt < 3; attempt++ {
		f, err := os.OpenFile(w.LockPath, os.O_CREATE|os.O_RDWR, 0644)
		if err != nil {
			return nil, err
		}

		if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
			f.Close()
			if errors.Is(err, unix.EWOULDBLOCK) {
				return nil, w.heldError()
			}
			return nil, fmt.Errorf("lock %s: %w", w.LockPath, err)
		}

		held, err := f.Stat()
		if err != nil {
			unlockAndClose(f)
			return nil, err
		}
		current, err := os.Stat(w.LockPath)
		if err == nil && os.SameFile(held, current) {
			return f, nil
		}
		unlockAndClose(f)
	}
	return nil, fmt.Errorf("%w (lock file %s keeps changing)", ErrLockHeld, w.LockPath)
}

func (w *Writer) heldError() error {
	holder, err := w.readLock()
	if err != nil || holder.PID <= 0 {
		return fmt.Errorf("%w (lock file %s)", ErrLockHeld, w.LockPath)
	}
	return fmt.Errorf("%w: pid %d (run_id=%s)", ErrLockHeld, holder.PID, holder.RunID)
}

func (w *Writer) readLock() (Lock, error) {
	var l Lock
	b, err := os.ReadFile(w.LockPath)
	if err != nil {
		return l, err
	}
	err = json.Unmarshal(b, &l)
	return l, err
}

func unlockAndClose(f *os.File) {
	_ = unix.Flock(int(f.Fd()), unix.LOCK_UN)
	_ = f.Close()
}
