package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"stagehand/internal/config"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestReadDataArg(t *testing.T) {
	path := filepath.Join(t.TempDir(), "init.yaml")
	if err := os.WriteFile(path, []byte("scene_file: /tmp/a.hip\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	for _, arg := range []string{path, "file://" + path} {
		data, err := readDataArg(arg)
		if err != nil {
			t.Fatalf("readDataArg(%q): %v", arg, err)
		}
		if !strings.Contains(string(data), "scene_file") {
			t.Fatalf("unexpected data for %q: %s", arg, data)
		}
	}

	if _, err := readDataArg("  "); err == nil {
		t.Fatal("expected error for empty argument")
	}
	if _, err := readDataArg(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestDaemonStartRejectsBadInitData(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	initPath := filepath.Join(t.TempDir(), "init.yaml")
	if err := os.WriteFile(initPath, []byte("scene_file: /tmp/a.hip\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	connPath := filepath.Join(t.TempDir(), "connection.json")

	// render_node is missing, so validation must fail before any fork.
	_, err := runCLI(t, "daemon", "start", "--connection-file", connPath, "--init-data", initPath)
	if err == nil {
		t.Fatal("expected init data validation error")
	}
	if !strings.Contains(err.Error(), "render_node") {
		t.Fatalf("error does not name the missing key: %v", err)
	}
}

func TestDaemonStopWithoutSession(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	connPath := filepath.Join(t.TempDir(), "connection.json")
	out, err := runCLI(t, "daemon", "stop", "--connection-file", connPath)
	if err != nil {
		t.Fatalf("stop without session: %v", err)
	}
	if !strings.Contains(out, "No session is running.") {
		t.Fatalf("unexpected output: %s", out)
	}
}

func TestStopPollOutlastsSessionShutdown(t *testing.T) {
	cfg := &config.Config{}
	cfg.Adaptor.ClientEndTimeout = 3

	// The session itself waits its full end timeout before terminating the
	// render process and then allows it a grace period to die. Stop must
	// keep polling through that whole sequence.
	sessionWorstCase := time.Duration(cfg.Adaptor.ClientEndTimeout)*time.Second + 5*time.Second
	if got := stopPollTimeout(cfg); got <= sessionWorstCase {
		t.Fatalf("stop poll window %s does not outlast session shutdown %s", got, sessionWorstCase)
	}
}

func TestDaemonRunWithoutSession(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	runPath := filepath.Join(t.TempDir(), "run.yaml")
	doc := "render_node: /out/mantra1\nframe_range:\n  start: 1\n  end: 1\n  step: 1\n"
	if err := os.WriteFile(runPath, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	connPath := filepath.Join(t.TempDir(), "connection.json")

	if _, err := runCLI(t, "daemon", "run", "--connection-file", connPath, "--run-data", runPath); err == nil {
		t.Fatal("expected error when no session is running")
	}
}
