package adaptor

import (
	"fmt"
	"regexp"
	"strconv"
)

var (
	completeRegex = regexp.MustCompile(`.*Finished Rendering.*`)
	progressRegex = regexp.MustCompile(`.*ALF_PROGRESS ([0-9]+)%.*`)
	errorRegex    = regexp.MustCompile(`(?i).*Error: .*|.*\[Error\].*`)
	licenseRegex  = regexp.MustCompile(`RuntimeError: Error encountered when initializing Houdini`)
	versionRegex  = regexp.MustCompile(`HoudiniClient: Houdini Version ([0-9]+\.[0-9]+)(\.[0-9]+)?`)
)

// OutputCallbacks receive the events extracted from the render process
// output. Nil callbacks are skipped.
type OutputCallbacks struct {
	OnComplete func()
	OnProgress func(percent int)
	OnError    func(err error)
	OnVersion  func(version string)
}

// OutputHandler scans process output lines for render lifecycle events.
type OutputHandler struct {
	strict    bool
	callbacks OutputCallbacks
}

// NewOutputHandler builds a handler. strict enables failing the session on
// generic error lines in the output.
func NewOutputHandler(strict bool, callbacks OutputCallbacks) *OutputHandler {
	return &OutputHandler{strict: strict, callbacks: callbacks}
}

// HandleLine inspects one output line. Matching order mirrors severity:
// completion and progress first, then fatal conditions.
func (h *OutputHandler) HandleLine(line string) {
	if completeRegex.MatchString(line) {
		if h.callbacks.OnComplete != nil {
			h.callbacks.OnComplete()
		}
		return
	}
	if m := progressRegex.FindStringSubmatch(line); m != nil {
		if h.callbacks.OnProgress != nil {
			if percent, err := strconv.Atoi(m[1]); err == nil {
				h.callbacks.OnProgress(percent)
			}
		}
		return
	}
	if m := versionRegex.FindStringSubmatch(line); m != nil {
		if h.callbacks.OnVersion != nil {
			h.callbacks.OnVersion(m[1] + m[2])
		}
		return
	}
	if licenseRegex.MatchString(line) {
		if h.callbacks.OnError != nil {
			h.callbacks.OnError(fmt.Errorf(
				"%s\nthis error is typically a licensing failure; check the licensing configuration", line))
		}
		return
	}
	if h.strict && errorRegex.MatchString(line) {
		if h.callbacks.OnError != nil {
			h.callbacks.OnError(fmt.Errorf("houdini reported an error: %s", line))
		}
	}
}
