// Package lockfile provides the single-instance lock that serializes sync
// runs. The lock is an advisory exclusive flock on a well-known path; the
// file body carries holder metadata for diagnostics.
package lockfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"
)

// ErrLocked is returned when another process already holds the lock.
var ErrLocked = errors.New("lock already held by another process")

// LockInfo describes the current lock holder. Written as JSON into the lock
// file after acquisition; purely informational.
type LockInfo struct {
	PID       int       `json:"pid"`
	Hostname  string    `json:"hostname,omitempty"`
	StartedAt time.Time `json:"started_at"`
}

// Lock is a held single-instance lock.
type Lock struct {
	path string
	f    *os.File
}

// Acquire opens (creating if needed) the lock file at path and takes an
// exclusive non-blocking lock on it. Returns ErrLocked when another process
// holds it. The file is left in place on release; only the flock matters.
func Acquire(path string) (*Lock, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open lock file %s: %w", path, err)
	}

	if err := flockExclusiveNonBlock(f); err != nil {
		holder := readHolder(f)
		_ = f.Close()
		if errors.Is(err, ErrLocked) {
			if holder != nil {
				return nil, fmt.Errorf("%w (pid %d since %s)", ErrLocked, holder.PID, holder.StartedAt.Format(time.RFC3339))
			}
			return nil, ErrLocked
		}
		return nil, fmt.Errorf("lock %s: %w", path, err)
	}

	l := &Lock{path: path, f: f}
	l.writeInfo()
	return l, nil
}

// Release drops the flock and closes the file. Safe to call once; the
// orchestrator defers it so every exit path releases.
func (l *Lock) Release() error {
	if l == nil || l.f == nil {
		return nil
	}
	unlockErr := flockUnlock(l.f)
	closeErr := l.f.Close()
	l.f = nil
	if unlockErr != nil {
		return fmt.Errorf("unlock %s: %w", l.path, unlockErr)
	}
	return closeErr
}

// Path returns the lock file path.
func (l *Lock) Path() string { return l.path }

func (l *Lock) writeInfo() {
	host, _ := os.Hostname()
	info := LockInfo{PID: os.Getpid(), Hostname: host, StartedAt: time.Now().UTC()}
	data, err := json.Marshal(info)
	if err != nil {
		return
	}
	// Best effort: a stale or unwritable body never fails the acquisition.
	_ = l.f.Truncate(0)
	if _, err := l.f.WriteAt(data, 0); err == nil {
		_ = l.f.Sync()
	}
}

func readHolder(f *os.File) *LockInfo {
	buf := make([]byte, 512)
	n, err := f.ReadAt(buf, 0)
	if n == 0 && err != nil {
		return nil
	}
	var info LockInfo
	if json.Unmarshal(buf[:n], &info) != nil {
		return nil
	}
	return &info
}
