// Package adaptor keeps one Houdini session alive across render commands.
// It serves actions to a client running inside hython, scans the process
// output for progress and failures, and exposes the render lifecycle used
// by the worker-side daemon.
package adaptor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"log/slog"

	"stagehand/internal/config"
	"stagehand/internal/logging"
	"stagehand/internal/pathmap"
)

// PathmapEnv carries the path mapping dictionary into Houdini.
const PathmapEnv = "HOUDINI_PATHMAP"

// ErrNotRunning indicates a render was requested without a live session.
var ErrNotRunning = errors.New("houdini is not running")

// Adaptor drives a single persistent Houdini session.
type Adaptor struct {
	hython              string
	init                *InitData
	rules               []pathmap.Rule
	logger              *slog.Logger
	clientStartTimeout  time.Duration
	clientEndTimeout    time.Duration
	strictErrorChecking bool

	queue      *Queue
	server     *ActionServer
	proc       *clientProcess
	sessionDir string

	mu        sync.Mutex
	rendering bool
	failure   error
	version   string
	progress  int
}

// New builds an adaptor for the given init data. Configuration supplies the
// timeouts; strict error checking is on when either the config or the init
// data asks for it.
func New(cfg *config.Config, hython string, init *InitData, rules []pathmap.Rule, logger *slog.Logger) (*Adaptor, error) {
	if init == nil {
		return nil, errors.New("init data required")
	}
	if err := init.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Adaptor{
		hython:              hython,
		init:                init,
		rules:               rules,
		logger:              logger,
		clientStartTimeout:  time.Duration(cfg.Adaptor.ClientStartTimeout) * time.Second,
		clientEndTimeout:    time.Duration(cfg.Adaptor.ClientEndTimeout) * time.Second,
		strictErrorChecking: cfg.Adaptor.StrictErrorChecking || init.StrictErrorChecking,
		queue:               &Queue{},
	}, nil
}

// Start launches the session: action server, hython client, and the init
// action sequence. It returns once the client has worked through every
// bootstrap action.
func (a *Adaptor) Start(ctx context.Context) error {
	sessionDir, err := os.MkdirTemp("", "stagehand-session-")
	if err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	a.sessionDir = sessionDir

	server, err := NewActionServer(filepath.Join(sessionDir, "actions.sock"), a.queue, a.logger)
	if err != nil {
		os.RemoveAll(sessionDir)
		return err
	}
	a.server = server

	for _, action := range a.init.InitActions() {
		a.queue.Enqueue(action)
	}

	env := []string{ServerPathEnv + "=" + server.Path()}
	if mapped := pathmap.HoudiniValue(a.rules); mapped != "" {
		env = append(env, PathmapEnv+"="+mapped)
		a.logger.Info("path mapping enabled", slog.String("houdini_pathmap", mapped))
	}

	handler := NewOutputHandler(a.strictErrorChecking, OutputCallbacks{
		OnComplete: func() { a.setRendering(false) },
		OnProgress: a.setProgress,
		OnError:    a.setFailure,
		OnVersion:  a.setVersion,
	})

	proc, err := startClientProcess(ctx, a.hython, env, handler, a.logger)
	if err != nil {
		_ = server.Shutdown(context.Background())
		os.RemoveAll(sessionDir)
		return err
	}
	a.proc = proc

	deadline := time.Now().Add(a.clientStartTimeout)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		if err := a.sessionError(); err != nil {
			return err
		}
		if a.queue.Len() == 0 {
			a.logger.Info("houdini session initialized", slog.String("version", a.Version()))
			return nil
		}
		if !proc.Running() {
			return fmt.Errorf("houdini exited during initialization with code %d", proc.ExitCode())
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("houdini did not complete initialization within %s", a.clientStartTimeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Run renders one frame range and blocks until it finishes.
func (a *Adaptor) Run(ctx context.Context, run *RunData) error {
	if run == nil {
		return errors.New("run data required")
	}
	if err := run.Validate(); err != nil {
		return err
	}
	if a.proc == nil || !a.proc.Running() {
		return fmt.Errorf("%w: cannot render", ErrNotRunning)
	}

	a.setRendering(true)
	a.queue.Enqueue(run.RenderAction())

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		if err := a.sessionError(); err != nil {
			return err
		}
		if !a.isRendering() {
			return nil
		}
		if !a.proc.Running() {
			return fmt.Errorf("houdini exited early and did not render successfully, check render logs; exit code %d",
				a.proc.ExitCode())
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Stop asks the session to shut down gracefully, terminating the process if
// it outlives the end timeout.
func (a *Adaptor) Stop(ctx context.Context) error {
	if a.proc == nil {
		return nil
	}
	a.queue.EnqueueFront(Action{Name: ActionClose})

	select {
	case <-a.proc.Done():
		return nil
	case <-time.After(a.clientEndTimeout):
		a.logger.Error("houdini did not shut down gracefully, terminating")
		a.proc.Terminate()
	case <-ctx.Done():
		a.proc.Terminate()
		return ctx.Err()
	}

	select {
	case <-a.proc.Done():
	case <-time.After(5 * time.Second):
		a.proc.Kill()
	}
	return nil
}

// Cancel kills the render process group immediately.
func (a *Adaptor) Cancel() {
	a.logger.Info("cancel requested")
	if a.proc == nil || !a.proc.Running() {
		a.logger.Info("nothing to cancel, houdini is not running")
		return
	}
	a.proc.Kill()
}

// Cleanup releases the action server and the session scratch directory.
func (a *Adaptor) Cleanup(ctx context.Context) error {
	var err error
	if a.server != nil {
		err = a.server.Shutdown(ctx)
	}
	if a.sessionDir != "" {
		os.RemoveAll(a.sessionDir)
	}
	return err
}

// Version reports the Houdini version announced by the client.
func (a *Adaptor) Version() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.version
}

// Progress reports the latest render progress percentage.
func (a *Adaptor) Progress() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.progress
}

// Rendering reports whether a render is in flight.
func (a *Adaptor) Rendering() bool {
	return a.isRendering()
}

func (a *Adaptor) sessionError() error {
	a.mu.Lock()
	failure := a.failure
	a.mu.Unlock()
	if failure != nil {
		return failure
	}
	if a.server != nil {
		return a.server.ClientError()
	}
	return nil
}

func (a *Adaptor) setRendering(rendering bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rendering = rendering
	if !rendering {
		a.progress = 100
	}
}

func (a *Adaptor) isRendering() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.rendering
}

func (a *Adaptor) setProgress(percent int) {
	a.mu.Lock()
	a.progress = percent
	a.mu.Unlock()
	a.logger.Info("render progress", slog.Int("percent", percent))
}

func (a *Adaptor) setFailure(err error) {
	a.mu.Lock()
	if a.failure == nil {
		a.failure = err
	}
	a.mu.Unlock()
}

func (a *Adaptor) setVersion(version string) {
	a.mu.Lock()
	a.version = version
	a.mu.Unlock()
}
