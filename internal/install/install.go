// Package install performs the developer-mode submitter install: it resolves
// the Houdini version, rebuilds the local plugin tree, compiles the digital
// asset with hotl, writes the package pointer file, and unpacks the
// dependency bundle.
package install

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/goccy/go-json"

	"stagehand/internal/depsbundle"
	"stagehand/internal/fileutil"
	"stagehand/internal/houdini"
	"stagehand/internal/logging"
	"stagehand/internal/version"
)

// Placeholder is the literal token substituted with the install directory
// when the pointer file is rendered. No occurrence may survive rendering.
const Placeholder = "INSTALL_DIR_PLACEHOLDER"

// PointerFileName is the package pointer file written under the user's
// Houdini packages directory.
const PointerFileName = "stagehand_for_houdini.json"

// EnvVarName is the environment variable the pointer file sets so Houdini can
// locate the plugin tree.
const EnvVarName = "STAGEHAND_FOR_HOUDINI"

// pointerTemplate is the package file handed to Houdini. The hpath entry adds
// the plugin tree to the Houdini search path via the env var declared above.
const pointerTemplate = `{
    "env": [
        {"` + EnvVarName + `": "` + Placeholder + `/submitter"},
        {"PYTHONPATH": "` + Placeholder + `/submitter/python` + pathSep + Placeholder + `/deps"}
    ],
    "hpath": "$` + EnvVarName + `"
}
`

// pathSep is the PYTHONPATH separator baked into the pointer template.
const pathSep = string(os.PathListSeparator)

// RenderPointer substitutes the install directory into the pointer template.
// It fails if any placeholder survives or the result is not valid JSON.
func RenderPointer(installDir string) ([]byte, error) {
	if strings.TrimSpace(installDir) == "" {
		return nil, errors.New("install directory required")
	}
	rendered := strings.ReplaceAll(pointerTemplate, Placeholder, filepath.ToSlash(installDir))
	if strings.Contains(rendered, Placeholder) {
		return nil, fmt.Errorf("pointer file still contains %s after substitution", Placeholder)
	}
	var doc map[string]any
	if err := json.Unmarshal([]byte(rendered), &doc); err != nil {
		return nil, fmt.Errorf("rendered pointer file is not valid JSON: %w", err)
	}
	return []byte(rendered), nil
}

// WritePointer renders the pointer file for installDir and writes it into
// packagesDir, creating the directory if needed.
func WritePointer(packagesDir, installDir string) (string, error) {
	data, err := RenderPointer(installDir)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(packagesDir, 0o755); err != nil {
		return "", fmt.Errorf("create packages dir: %w", err)
	}
	target := filepath.Join(packagesDir, PointerFileName)
	if err := os.WriteFile(target, data, 0o644); err != nil {
		return "", fmt.Errorf("write pointer file: %w", err)
	}
	return target, nil
}

// Executor abstracts running external tools for testability.
type Executor interface {
	Run(ctx context.Context, name string, args ...string) error
}

type commandExecutor struct{}

func (commandExecutor) Run(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		excerpt := strings.TrimSpace(string(out))
		if len(excerpt) > 2048 {
			excerpt = excerpt[:2048]
		}
		if excerpt != "" {
			return fmt.Errorf("%s: %w: %s", name, err, excerpt)
		}
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// Options configures an install run.
type Options struct {
	// Version is the explicit Houdini version, if any. When empty the cached
	// version file is consulted, then the prompter.
	Version   string
	CachePath string
	Prompt    version.Prompter

	// SourceDir is the plugin source tree copied into the install tree.
	SourceDir string
	// InstallDir is the local install tree that the pointer file references.
	InstallDir string
	// AssetDir is the expanded digital asset directory compiled with hotl.
	// Optional; when empty no asset is compiled.
	AssetDir string
	// DepsArchive is the dependency bundle unpacked into the install tree.
	// Optional; when empty no bundle is unpacked.
	DepsArchive string

	// HoudiniInstallDir overrides install discovery for locating hotl.
	HoudiniInstallDir string
	// HotlPath overrides the hotl binary location.
	HotlPath string

	Executor Executor
	Logger   *slog.Logger
}

// Result reports what an install run produced.
type Result struct {
	Version     version.Houdini
	PointerPath string
	AssetPath   string
}

// Installer performs developer installs.
type Installer struct {
	opts Options
	log  *slog.Logger
}

// New validates options and returns an installer.
func New(opts Options) (*Installer, error) {
	if strings.TrimSpace(opts.SourceDir) == "" {
		return nil, errors.New("source directory required")
	}
	if strings.TrimSpace(opts.InstallDir) == "" {
		return nil, errors.New("install directory required")
	}
	if opts.Executor == nil {
		opts.Executor = commandExecutor{}
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}
	return &Installer{opts: opts, log: opts.Logger}, nil
}

// Run executes the install. The version source order is argument, cache file,
// prompt; a successful resolution refreshes the cache so the next run does
// not prompt.
func (i *Installer) Run(ctx context.Context) (Result, error) {
	v, err := version.ResolveHoudini(i.opts.Version, i.opts.CachePath, i.opts.Prompt)
	if err != nil {
		return Result{}, err
	}
	i.log.Info("installing submitter", logging.String("houdini_version", v.String()))

	if i.opts.AssetDir != "" {
		hotl, err := i.locateHotl(v)
		if err != nil {
			return Result{}, err
		}
		i.log.Debug("using hotl", logging.String("path", hotl))
		if err := i.regenerateTree(); err != nil {
			return Result{}, err
		}
		assetPath, err := i.compileAsset(ctx, hotl)
		if err != nil {
			return Result{}, err
		}
		return i.finish(v, assetPath)
	}

	if err := i.regenerateTree(); err != nil {
		return Result{}, err
	}
	return i.finish(v, "")
}

func (i *Installer) finish(v version.Houdini, assetPath string) (Result, error) {
	if i.opts.DepsArchive != "" {
		dest := filepath.Join(i.opts.InstallDir, "deps")
		if err := depsbundle.Unzip(i.opts.DepsArchive, dest); err != nil {
			return Result{}, fmt.Errorf("unpack dependency bundle: %w", err)
		}
		i.log.Debug("unpacked dependency bundle", logging.String("dest", dest))
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return Result{}, fmt.Errorf("resolve home directory: %w", err)
	}
	packagesDir, err := houdini.PackagesDir(runtime.GOOS, home, v)
	if err != nil {
		return Result{}, err
	}
	pointerPath, err := WritePointer(packagesDir, i.opts.InstallDir)
	if err != nil {
		return Result{}, err
	}
	i.log.Info("wrote package pointer", logging.String("path", pointerPath))

	return Result{Version: v, PointerPath: pointerPath, AssetPath: assetPath}, nil
}

// locateHotl finds the hotl binary. An install without hotl is fatal rather
// than a silent skip: the compiled asset is what Houdini loads.
func (i *Installer) locateHotl(v version.Houdini) (string, error) {
	inst, err := houdini.Discover(i.opts.HoudiniInstallDir, v)
	if err != nil {
		if i.opts.HotlPath != "" {
			return houdini.Install{}.Tool("hotl", i.opts.HotlPath)
		}
		return "", err
	}
	return inst.Tool("hotl", i.opts.HotlPath)
}

// regenerateTree wipes and rebuilds the submitter subtree of the install
// directory from the source tree. Only the managed subtree is removed so a
// deps directory unpacked earlier survives until its own refresh.
func (i *Installer) regenerateTree() error {
	dest := filepath.Join(i.opts.InstallDir, "submitter")
	if err := os.RemoveAll(dest); err != nil {
		return fmt.Errorf("clear install tree: %w", err)
	}
	if err := fileutil.CopyTree(i.opts.SourceDir, dest); err != nil {
		return fmt.Errorf("copy plugin tree: %w", err)
	}
	return nil
}

func (i *Installer) compileAsset(ctx context.Context, hotl string) (string, error) {
	otlsDir := filepath.Join(i.opts.InstallDir, "submitter", "otls")
	if err := os.MkdirAll(otlsDir, 0o755); err != nil {
		return "", fmt.Errorf("create otls dir: %w", err)
	}
	assetPath := filepath.Join(otlsDir, "stagehand_submitter.hda")
	if err := i.opts.Executor.Run(ctx, hotl, "-C", i.opts.AssetDir, assetPath); err != nil {
		return "", fmt.Errorf("compile asset: %w", err)
	}
	i.log.Info("compiled plugin asset", logging.String("path", assetPath))
	return assetPath, nil
}
