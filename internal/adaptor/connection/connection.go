// Package connection manages the connection file a background render
// session leaves behind so later commands can find and control it.
package connection

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"
	"github.com/gofrs/flock"
	"golang.org/x/sys/unix"
)

// Info is the connection file contents.
type Info struct {
	SocketPath string    `json:"socket_path"`
	PID        int       `json:"pid"`
	SessionID  string    `json:"session_id"`
	StartedAt  time.Time `json:"started_at"`
}

// ErrNotFound indicates the connection file does not exist, meaning no
// session is running for that path.
var ErrNotFound = errors.New("connection file not found")

// Write persists the connection info. An existing file whose recorded
// process is still alive is an error: it means another session claims this
// connection path. A file left behind by a killed session is reclaimed.
func Write(path string, info Info) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create connection dir: %w", err)
	}
	payload, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return fmt.Errorf("encode connection info: %w", err)
	}
	flags := os.O_WRONLY | os.O_CREATE | os.O_EXCL
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil && os.IsExist(err) && isStale(path) {
		if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
			return fmt.Errorf("reclaim stale connection file: %w", rmErr)
		}
		f, err = os.OpenFile(path, flags, 0o644)
	}
	if err != nil {
		if os.IsExist(err) {
			return fmt.Errorf("connection file %s already exists; a session may still be running", path)
		}
		return fmt.Errorf("create connection file: %w", err)
	}
	if _, err := f.Write(payload); err != nil {
		f.Close()
		return fmt.Errorf("write connection file: %w", err)
	}
	return f.Close()
}

// Read loads the connection info.
func Read(path string) (*Info, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("read connection file: %w", err)
	}
	var info Info
	if err := json.Unmarshal(raw, &info); err != nil {
		return nil, fmt.Errorf("parse connection file %s: %w", path, err)
	}
	if info.SocketPath == "" {
		return nil, fmt.Errorf("connection file %s has no socket path", path)
	}
	return &info, nil
}

// isStale reports whether an existing connection file belongs to a dead
// session. An unreadable or unparseable file counts as stale too.
func isStale(path string) bool {
	info, err := Read(path)
	if err != nil {
		return true
	}
	return info.PID <= 0 || !processAlive(info.PID)
}

// processAlive is stubbed in tests. EPERM means the process exists but
// belongs to another user.
var processAlive = func(pid int) bool {
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}

// Remove deletes the connection file. Missing files are not an error.
func Remove(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove connection file: %w", err)
	}
	return nil
}

// Lock guards a connection path against concurrent session starts. The lock
// file sits next to the connection file.
type Lock struct {
	fl *flock.Flock
}

// Acquire takes the session lock for a connection path without blocking.
func Acquire(connectionPath string) (*Lock, error) {
	lockPath := connectionPath + ".lock"
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}
	fl := flock.New(lockPath)
	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire session lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("another session is starting for %s", connectionPath)
	}
	return &Lock{fl: fl}, nil
}

// Release drops the session lock.
func (l *Lock) Release() error {
	if l == nil || l.fl == nil {
		return nil
	}
	return l.fl.Unlock()
}
