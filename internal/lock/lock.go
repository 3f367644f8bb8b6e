package lock

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gofrs/flock"
)

// ErrLocked is returned by Acquire when another process holds the lock.
var ErrLocked = errors.New("sync already running")

// RunLock is an advisory exclusive lock over one sync run. The lock file
// records the owning process id while held.
type RunLock struct {
	fl  *flock.Flock
	pid int
}

// acquireAttempts bounds how often Acquire retries after locking a file that
// a releasing holder had already unlinked.
const acquireAttempts = 3

// afterLock runs between taking the flock and checking that it still covers
// the file at path.
var afterLock = func(path string) {}

// Acquire takes a non-blocking exclusive lock on path and writes the current
// process id into it. Returns ErrLocked on contention.
func Acquire(path string) (*RunLock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating lock directory for %s: %w", path, err)
	}

	for attempt := 0; attempt < acquireAttempts; attempt++ {
		fl := flock.New(path)
		locked, err := fl.TryLock()
		if err != nil {
			return nil, fmt.Errorf("locking %s: %w", path, err)
		}
		if !locked {
			return nil, ErrLocked
		}
		afterLock(path)

		// Release unlinks before unlocking, so a lock taken on a file opened
		// just before that unlink covers an inode nobody else can reach.
		current, err := lockedAtPath(fl)
		if err != nil {
			_ = fl.Unlock()
			return nil, err
		}
		if !current {
			_ = fl.Unlock()
			continue
		}

		pid := os.Getpid()
		// Write through the path rather than the flock handle; both refer to
		// the same inode so the lock stays valid.
		if err := os.WriteFile(path, []byte(strconv.Itoa(pid)+"\n"), 0644); err != nil {
			_ = fl.Unlock()
			return nil, fmt.Errorf("writing pid to %s: %w", path, err)
		}
		return &RunLock{fl: fl, pid: pid}, nil
	}
	return nil, ErrLocked
}

// lockedAtPath reports whether the file fl holds locked is still the file
// named by its path.
func lockedAtPath(fl *flock.Flock) (bool, error) {
	held, err := fl.Stat()
	if err != nil {
		return false, fmt.Errorf("stat of locked %s: %w", fl.Path(), err)
	}
	cur, err := os.Stat(fl.Path())
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat of %s: %w", fl.Path(), err)
	}
	return os.SameFile(held, cur), nil
}

// Path returns the lock file path.
func (l *RunLock) Path() string {
	return l.fl.Path()
}

// PID returns the process id recorded in the lock file.
func (l *RunLock) PID() int {
	return l.pid
}

// Release removes the lock file and drops the lock. Safe to call more than once.
func (l *RunLock) Release() error {
	if l == nil || l.fl == nil || !l.fl.Locked() {
		return nil
	}

	var errs []error
	if err := os.Remove(l.fl.Path()); err != nil && !os.IsNotExist(err) {
		errs = append(errs, fmt.Errorf("removing lock file: %w", err))
	}
	if err := l.fl.Unlock(); err != nil {
		errs = append(errs, fmt.Errorf("unlocking: %w", err))
	}
	return errors.Join(errs...)
}

// Holder returns the pid recorded in the lock file at path and whether that
// lock is currently held by a live process.
func Holder(path string) (pid int, held bool, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, false, err
	}

	pid, err = strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, false, fmt.Errorf("parsing pid in %s: %w", path, err)
	}

	probe := flock.New(path)
	locked, err := probe.TryLock()
	if err != nil {
		return pid, false, fmt.Errorf("probing %s: %w", path, err)
	}
	if locked {
		// Nobody holds it; the file is left over from a process that died.
		_ = probe.Unlock()
		return pid, false, nil
	}
	return pid, true, nil
}
