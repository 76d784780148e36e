package adaptor

import (
	"bufio"
	"context"
	_ "embed"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync/atomic"
	"syscall"

	"log/slog"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"

	"stagehand/internal/logging"
)

//go:embed render_client.py
var renderClientScript string

// clientProcess is the hython process hosting the render client.
type clientProcess struct {
	cmd      *exec.Cmd
	logger   *slog.Logger
	done     chan struct{}
	exitCode atomic.Int64
	scripts  string
}

// startClientProcess launches hython running the render client. Output
// lines flow through the handler on top of being logged.
func startClientProcess(ctx context.Context, hython string, env []string, handler *OutputHandler, logger *slog.Logger) (*clientProcess, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	scriptsDir, err := os.MkdirTemp("", "stagehand-client-")
	if err != nil {
		return nil, fmt.Errorf("create client script dir: %w", err)
	}
	scriptPath := filepath.Join(scriptsDir, "render_client.py")
	if err := os.WriteFile(scriptPath, []byte(renderClientScript), 0o644); err != nil {
		os.RemoveAll(scriptsDir)
		return nil, fmt.Errorf("write client script: %w", err)
	}

	cmd := exec.CommandContext(ctx, hython, scriptPath) //nolint:gosec
	cmd.Env = append(os.Environ(), env...)
	// Own process group so cancellation can take down hython's children too.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		os.RemoveAll(scriptsDir)
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		os.RemoveAll(scriptsDir)
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		os.RemoveAll(scriptsDir)
		return nil, fmt.Errorf("start hython: %w", err)
	}

	p := &clientProcess{cmd: cmd, logger: logger, done: make(chan struct{}), scripts: scriptsDir}

	scan := func(r io.Reader, stream string) error {
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
		for scanner.Scan() {
			line := scanner.Text()
			logger.Info(line, slog.String("stream", stream))
			handler.HandleLine(line)
		}
		return scanner.Err()
	}

	var group errgroup.Group
	group.Go(func() error { return scan(stdout, "stdout") })
	group.Go(func() error { return scan(stderr, "stderr") })

	go func() {
		defer close(p.done)
		defer os.RemoveAll(scriptsDir)
		if err := group.Wait(); err != nil {
			logger.Error("scan client output", logging.Error(err))
		}
		if err := cmd.Wait(); err != nil {
			if exitErr, ok := err.(*exec.ExitError); ok {
				p.exitCode.Store(int64(exitErr.ExitCode()))
			} else {
				p.exitCode.Store(-1)
			}
			return
		}
		p.exitCode.Store(0)
	}()
	return p, nil
}

// Running reports whether the process is still alive.
func (p *clientProcess) Running() bool {
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

// Done exposes process completion.
func (p *clientProcess) Done() <-chan struct{} {
	return p.done
}

// ExitCode returns the exit code once the process has finished.
func (p *clientProcess) ExitCode() int {
	return int(p.exitCode.Load())
}

// Terminate asks the process group to shut down gracefully.
func (p *clientProcess) Terminate() {
	p.signalGroup(unix.SIGTERM)
}

// Kill forcibly stops the process group.
func (p *clientProcess) Kill() {
	p.signalGroup(unix.SIGKILL)
}

func (p *clientProcess) signalGroup(sig unix.Signal) {
	if p.cmd == nil || p.cmd.Process == nil || !p.Running() {
		return
	}
	pgid, err := unix.Getpgid(p.cmd.Process.Pid)
	if err != nil {
		_ = p.cmd.Process.Signal(sig)
		return
	}
	_ = unix.Kill(-pgid, sig)
}
