package connection

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWriteReadRemove(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session", "connection.json")
	info := Info{
		SocketPath: "/tmp/stagehand-1234.sock",
		PID:        os.Getpid(),
		SessionID:  "abc-def",
		StartedAt:  time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC),
	}

	if err := Write(path, info); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	got, err := Read(path)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if got.SocketPath != info.SocketPath || got.PID != info.PID || got.SessionID != info.SessionID {
		t.Errorf("round trip = %+v", got)
	}
	if !got.StartedAt.Equal(info.StartedAt) {
		t.Errorf("started at = %v", got.StartedAt)
	}

	if err := Write(path, info); err == nil {
		t.Error("second Write should fail while the file exists")
	}

	if err := Remove(path); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if err := Remove(path); err != nil {
		t.Errorf("Remove of missing file should be nil, got %v", err)
	}
	if _, err := Read(path); !errors.Is(err, ErrNotFound) {
		t.Errorf("Read after Remove = %v, want ErrNotFound", err)
	}
}

func TestReadRejectsEmptySocketPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "connection.json")
	if err := Write(path, Info{SocketPath: "/tmp/x.sock", PID: 1}); err != nil {
		t.Fatal(err)
	}
	if err := Remove(path); err != nil {
		t.Fatal(err)
	}
	if err := Write(path, Info{PID: 1}); err != nil {
		t.Fatal(err)
	}
	if _, err := Read(path); err == nil {
		t.Error("expected error for missing socket path")
	}
}

func stubProcessAlive(t *testing.T, alive bool) {
	t.Helper()
	prev := processAlive
	processAlive = func(int) bool { return alive }
	t.Cleanup(func() { processAlive = prev })
}

func TestWriteReclaimsStaleFile(t *testing.T) {
	stubProcessAlive(t, false)
	path := filepath.Join(t.TempDir(), "connection.json")

	if err := Write(path, Info{SocketPath: "/tmp/old.sock", PID: 4242, SessionID: "dead"}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := Write(path, Info{SocketPath: "/tmp/new.sock", PID: os.Getpid(), SessionID: "fresh"}); err != nil {
		t.Fatalf("Write over stale file failed: %v", err)
	}

	got, err := Read(path)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if got.SessionID != "fresh" || got.SocketPath != "/tmp/new.sock" {
		t.Errorf("reclaimed file = %+v", got)
	}
}

func TestWriteRefusesLiveSessionFile(t *testing.T) {
	stubProcessAlive(t, true)
	path := filepath.Join(t.TempDir(), "connection.json")

	if err := Write(path, Info{SocketPath: "/tmp/old.sock", PID: 4242, SessionID: "running"}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := Write(path, Info{SocketPath: "/tmp/new.sock", PID: 4243}); err == nil {
		t.Fatal("Write should refuse a file whose process is alive")
	}

	got, err := Read(path)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if got.SessionID != "running" {
		t.Errorf("live session file was replaced: %+v", got)
	}
}

func TestWriteReclaimsCorruptFile(t *testing.T) {
	stubProcessAlive(t, true)
	path := filepath.Join(t.TempDir(), "connection.json")

	if err := os.WriteFile(path, []byte("not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := Write(path, Info{SocketPath: "/tmp/new.sock", PID: os.Getpid()}); err != nil {
		t.Fatalf("Write over corrupt file failed: %v", err)
	}
}

func TestLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "connection.json")

	lock, err := Acquire(path)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if _, err := Acquire(path); err == nil {
		t.Error("second Acquire should fail while held")
	}
	if err := lock.Release(); err != nil {
		t.Fatalf("Release failed: %v", err)
	}

	again, err := Acquire(path)
	if err != nil {
		t.Fatalf("reacquire failed: %v", err)
	}
	_ = again.Release()
}
