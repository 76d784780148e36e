// Package version carries the stagehand release stamp and Houdini version
// parsing, validation, and caching.
package version

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
)

// Version is the stagehand release stamp, overridden at build time via
// -ldflags "-X stagehand/internal/version.Version=...".
var Version = "dev"

// CacheFileName is the per-project Houdini version cache.
const CacheFileName = "houdini_version.txt"

// ErrInvalid reports a Houdini version string that is not Major.Minor.Patch.
var ErrInvalid = errors.New("invalid houdini version")

var versionPattern = regexp.MustCompile(`^([0-9]+)\.([0-9]+)\.([0-9]+)$`)

// Houdini is a parsed Major.Minor.Patch Houdini version.
type Houdini struct {
	Major int
	Minor int
	Patch int
}

// ParseHoudini validates and parses a Houdini version string. All three
// numeric components are required: "19.5" and "abc" are rejected.
func ParseHoudini(value string) (Houdini, error) {
	trimmed := strings.TrimSpace(value)
	match := versionPattern.FindStringSubmatch(trimmed)
	if match == nil {
		return Houdini{}, fmt.Errorf("%w: %q", ErrInvalid, value)
	}
	major, _ := strconv.Atoi(match[1])
	minor, _ := strconv.Atoi(match[2])
	patch, _ := strconv.Atoi(match[3])
	return Houdini{Major: major, Minor: minor, Patch: patch}, nil
}

// String renders the full Major.Minor.Patch form.
func (h Houdini) String() string {
	return fmt.Sprintf("%d.%d.%d", h.Major, h.Minor, h.Patch)
}

// MajorMinor renders the Major.Minor form used for install trees and
// preference directories.
func (h Houdini) MajorMinor() string {
	return fmt.Sprintf("%d.%d", h.Major, h.Minor)
}

// Prompter asks the user for a version string when no other source exists.
type Prompter func() (string, error)

// ResolveHoudini determines the Houdini version to use: an explicit argument
// wins, then the cached file, then the prompter. A successful resolution from
// argument or prompt refreshes the cache file. An invalid cached value removes
// the cache file before the error is returned so the next run prompts again.
func ResolveHoudini(arg, cachePath string, prompt Prompter) (Houdini, error) {
	if strings.TrimSpace(arg) != "" {
		parsed, err := ParseHoudini(arg)
		if err != nil {
			return Houdini{}, err
		}
		writeCache(cachePath, parsed)
		return parsed, nil
	}

	if data, err := os.ReadFile(cachePath); err == nil {
		parsed, parseErr := ParseHoudini(string(data))
		if parseErr != nil {
			_ = os.Remove(cachePath)
			return Houdini{}, fmt.Errorf("cached version in %s: %w", cachePath, parseErr)
		}
		return parsed, nil
	}

	if prompt == nil {
		return Houdini{}, fmt.Errorf("%w: no version supplied and no cache at %s", ErrInvalid, cachePath)
	}
	answer, err := prompt()
	if err != nil {
		return Houdini{}, fmt.Errorf("prompt for houdini version: %w", err)
	}
	parsed, err := ParseHoudini(answer)
	if err != nil {
		return Houdini{}, err
	}
	writeCache(cachePath, parsed)
	return parsed, nil
}

func writeCache(path string, h Houdini) {
	if strings.TrimSpace(path) == "" {
		return
	}
	// Cache refresh is best-effort; resolution already succeeded.
	_ = os.WriteFile(path, []byte(h.String()+"\n"), 0o644)
}
