// Package houdini locates the host application: install roots, the hython and
// hotl tools, and per-platform user preference directories.
package houdini

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"stagehand/internal/version"
)

// ErrToolNotFound reports a required Houdini tool that could not be located.
var ErrToolNotFound = errors.New("houdini tool not found")

// Install describes a resolved Houdini installation.
type Install struct {
	Root    string
	Version version.Houdini
}

// InstallRoot returns the default install directory for a Houdini version on
// the given platform (a runtime.GOOS value).
func InstallRoot(goos string, v version.Houdini) (string, error) {
	switch goos {
	case "windows":
		return filepath.Join("C:\\", "Program Files", "Side Effects Software", "Houdini "+v.String()), nil
	case "darwin":
		return filepath.Join("/Applications", "Houdini", "Houdini"+v.String(),
			"Frameworks", "Houdini.framework", "Versions", "Current", "Resources"), nil
	case "linux":
		return filepath.Join("/opt", "hfs"+v.MajorMinor()), nil
	default:
		return "", fmt.Errorf("unsupported platform: %s", goos)
	}
}

// UserPrefsDir returns the per-user Houdini preference directory for the given
// platform. The host application reads package pointer files from the
// "packages" subdirectory of this location.
func UserPrefsDir(goos, home string, v version.Houdini) (string, error) {
	if strings.TrimSpace(home) == "" {
		return "", errors.New("home directory required")
	}
	majorMinor := v.MajorMinor()
	switch goos {
	case "windows":
		return filepath.Join(home, "Documents", "houdini"+majorMinor), nil
	case "darwin":
		return filepath.Join(home, "Library", "Preferences", "houdini", majorMinor), nil
	case "linux":
		return filepath.Join(home, "houdini"+majorMinor), nil
	default:
		return "", fmt.Errorf("unsupported platform: %s", goos)
	}
}

// PackagesDir returns the package pointer directory under the user prefs dir.
func PackagesDir(goos, home string, v version.Houdini) (string, error) {
	prefs, err := UserPrefsDir(goos, home, v)
	if err != nil {
		return "", err
	}
	return filepath.Join(prefs, "packages"), nil
}

// Discover resolves the Houdini install for a version, preferring an explicit
// override directory.
func Discover(installDirOverride string, v version.Houdini) (Install, error) {
	if strings.TrimSpace(installDirOverride) != "" {
		info, err := os.Stat(installDirOverride)
		if err != nil {
			return Install{}, fmt.Errorf("houdini install dir: %w", err)
		}
		if !info.IsDir() {
			return Install{}, fmt.Errorf("houdini install dir %q is not a directory", installDirOverride)
		}
		return Install{Root: installDirOverride, Version: v}, nil
	}

	root, err := InstallRoot(runtime.GOOS, v)
	if err != nil {
		return Install{}, err
	}
	if info, statErr := os.Stat(root); statErr != nil || !info.IsDir() {
		return Install{}, fmt.Errorf("houdini %s not found at %s", v.String(), root)
	}
	return Install{Root: root, Version: v}, nil
}

// Tool resolves a Houdini tool binary. An explicit override wins, then the
// install's bin directory, then PATH.
func (i Install) Tool(name, override string) (string, error) {
	if strings.TrimSpace(override) != "" {
		if _, err := os.Stat(override); err != nil {
			return "", fmt.Errorf("%w: %s (%v)", ErrToolNotFound, override, err)
		}
		return override, nil
	}

	candidate := filepath.Join(i.Root, "bin", name)
	if runtime.GOOS == "windows" {
		candidate += ".exe"
	}
	if _, err := os.Stat(candidate); err == nil {
		return candidate, nil
	}

	if path, err := exec.LookPath(name); err == nil {
		return path, nil
	}
	return "", fmt.Errorf("%w: %s (looked in %s and PATH)", ErrToolNotFound, name, filepath.Join(i.Root, "bin"))
}

// Requirement defines an external binary stagehand relies on.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status reports the availability of a requirement.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Detail      string
}

// CheckBinaries evaluates the provided requirements and reports availability.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		cmd := strings.TrimSpace(req.Command)
		status := Status{
			Name:        req.Name,
			Command:     cmd,
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		if cmd == "" {
			status.Detail = "command not configured"
			results = append(results, status)
			continue
		}
		if _, err := exec.LookPath(cmd); err != nil {
			status.Detail = fmt.Sprintf("binary %q not found", cmd)
			results = append(results, status)
			continue
		}
		status.Available = true
		results = append(results, status)
	}
	return results
}
