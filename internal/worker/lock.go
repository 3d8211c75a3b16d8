package worker

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// ErrSessionLocked is returned when another process holds the automation session
var ErrSessionLocked = errors.New("automation session is held by another process")

// SessionLock keeps a second process from driving the shared automation
// session at the same time as this one.
type SessionLock struct {
	path   string
	lock   *flock.Flock
	logger *slog.Logger
}

// AcquireSessionLock takes the lock file at path without blocking
func AcquireSessionLock(path string, logger *slog.Logger) (*SessionLock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}

	lock := flock.New(path)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire session lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionLocked, path)
	}

	logger.Info("Session lock acquired",
		slog.String("lock", path),
	)

	return &SessionLock{
		path:   path,
		lock:   lock,
		logger: logger,
	}, nil
}

// Release unlocks the session
func (l *SessionLock) Release() error {
	if err := l.lock.Unlock(); err != nil {
		return fmt.Errorf("failed to release session lock: %w", err)
	}

	l.logger.Info("Session lock released",
		slog.String("lock", l.path),
	)
	return nil
}
