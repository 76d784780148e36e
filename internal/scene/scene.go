// Package scene introspects a Houdini scene by running hython with a probe
// script and parsing the JSON document it prints.
package scene

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	_ "embed"

	"github.com/goccy/go-json"
)

//go:embed scene_probe.py
var probeScript string

const (
	probeBeginMarker = "STAGEHAND_SCENE_BEGIN"
	probeEndMarker   = "STAGEHAND_SCENE_END"
)

// Node describes one node of the scene as reported by the probe.
type Node struct {
	Path             string            `json:"path"`
	Type             string            `json:"type"`
	TypeWithCategory string            `json:"type_with_category"`
	Inputs           []string          `json:"inputs,omitempty"`
	InputAncestors   []string          `json:"input_ancestors,omitempty"`
	Locked           bool              `json:"locked,omitempty"`
	Parms            map[string]string `json:"parms,omitempty"`
	WedgeCount       int               `json:"wedge_count,omitempty"`
}

// FileRef is a file-referencing parameter found in the scene.
type FileRef struct {
	NodePath   string `json:"node_path"`
	ParmName   string `json:"parm_name"`
	Raw        string `json:"raw"`
	Evaluated  string `json:"evaluated"`
	IsFile     bool   `json:"is_file"`
	IsDir      bool   `json:"is_dir"`
}

// Scene is the probe output for a single hip file.
type Scene struct {
	HipFile        string          `json:"hip_file"`
	HoudiniVersion string          `json:"houdini_version"`
	RenderList     string          `json:"render_list"`
	Nodes          map[string]Node `json:"nodes"`
	FileRefs       []FileRef       `json:"file_refs"`
	UnsavedChanges bool            `json:"unsaved_changes"`
}

// NodeAt returns the node at path, if the probe saw it.
func (s *Scene) NodeAt(path string) (Node, bool) {
	node, ok := s.Nodes[path]
	return node, ok
}

// Parm returns a recorded parameter value for a node.
func (n Node) Parm(name string) (string, bool) {
	value, ok := n.Parms[name]
	return value, ok
}

// ParmIsTruthy reports whether a recorded parameter evaluates to a non-zero,
// non-empty toggle value.
func (n Node) ParmIsTruthy(name string) bool {
	value, ok := n.Parms[name]
	if !ok {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "0", "off", "false", "no":
		return false
	default:
		return true
	}
}

// Executor abstracts command execution for testability.
type Executor interface {
	Run(ctx context.Context, binary string, args []string, onStdout func(string)) error
}

// Prober runs the scene probe inside hython.
type Prober struct {
	hython string
	exec   Executor
}

// Option configures the prober.
type Option func(*Prober)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) Option {
	return func(p *Prober) {
		if exec != nil {
			p.exec = exec
		}
	}
}

// NewProber constructs a prober that launches the given hython binary.
func NewProber(hython string, opts ...Option) (*Prober, error) {
	hython = strings.TrimSpace(hython)
	if hython == "" {
		return nil, errors.New("hython binary required")
	}
	p := &Prober{hython: hython, exec: commandExecutor{}}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Probe loads the hip file in hython and returns the scene description.
func (p *Prober) Probe(ctx context.Context, hipFile, ropPath string) (*Scene, error) {
	if strings.TrimSpace(hipFile) == "" {
		return nil, errors.New("hip file required")
	}

	scriptPath, cleanup, err := materializeProbeScript()
	if err != nil {
		return nil, err
	}
	defer cleanup()

	args := []string{scriptPath, "--hip", hipFile}
	if strings.TrimSpace(ropPath) != "" {
		args = append(args, "--rop", ropPath)
	}

	var payload strings.Builder
	capturing := false
	if err := p.exec.Run(ctx, p.hython, args, func(line string) {
		switch {
		case strings.TrimSpace(line) == probeBeginMarker:
			capturing = true
		case strings.TrimSpace(line) == probeEndMarker:
			capturing = false
		case capturing:
			payload.WriteString(line)
			payload.WriteString("\n")
		}
	}); err != nil {
		return nil, fmt.Errorf("probe scene: %w", err)
	}

	if payload.Len() == 0 {
		return nil, errors.New("scene probe produced no output; check hython availability and the hip file path")
	}

	var result Scene
	if err := json.Unmarshal([]byte(payload.String()), &result); err != nil {
		return nil, fmt.Errorf("parse scene probe output: %w", err)
	}
	if result.Nodes == nil {
		result.Nodes = map[string]Node{}
	}
	return &result, nil
}

func materializeProbeScript() (string, func(), error) {
	dir, err := os.MkdirTemp("", "stagehand-probe-")
	if err != nil {
		return "", nil, fmt.Errorf("create probe dir: %w", err)
	}
	path := filepath.Join(dir, "scene_probe.py")
	if err := os.WriteFile(path, []byte(probeScript), 0o644); err != nil {
		os.RemoveAll(dir)
		return "", nil, fmt.Errorf("write probe script: %w", err)
	}
	return path, func() { os.RemoveAll(dir) }, nil
}

type commandExecutor struct{}

func (commandExecutor) Run(ctx context.Context, binary string, args []string, onStdout func(string)) error {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start command: %w", err)
	}

	var wg sync.WaitGroup
	var scanErr error
	var once sync.Once

	scan := func(r io.Reader, forward func(string)) {
		defer wg.Done()
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
		for scanner.Scan() {
			forward(scanner.Text())
		}
		if err := scanner.Err(); err != nil {
			once.Do(func() {
				scanErr = err
			})
		}
	}

	wg.Add(2)
	go scan(stdout, onStdout)
	go scan(stderr, func(line string) {
		fmt.Fprintln(os.Stderr, line)
	})

	wg.Wait()
	if scanErr != nil {
		_ = cmd.Process.Kill()
		return fmt.Errorf("scan output: %w", scanErr)
	}

	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("wait command: %w", err)
	}
	return nil
}
