// Package assets collects the file references a submission needs: input
// files, input directories, and the output directories render nodes write to.
package assets

import (
	"regexp"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// Set is a deduplicated collection of paths.
type Set map[string]struct{}

// NewSet builds a set from the given paths.
func NewSet(paths ...string) Set {
	s := make(Set, len(paths))
	for _, p := range paths {
		s.Add(p)
	}
	return s
}

// Add inserts a path, ignoring empty strings.
func (s Set) Add(path string) {
	if path == "" {
		return
	}
	s[path] = struct{}{}
}

// Contains reports set membership.
func (s Set) Contains(path string) bool {
	_, ok := s[path]
	return ok
}

// Update inserts every path of other.
func (s Set) Update(other Set) {
	for p := range other {
		s[p] = struct{}{}
	}
}

// DifferenceUpdate removes every path present in other.
func (s Set) DifferenceUpdate(other Set) {
	for p := range other {
		delete(s, p)
	}
}

// Sorted returns the set's paths in frame-sequence aware order, so that
// "shot.2.exr" sorts before "shot.10.exr".
func (s Set) Sorted() []string {
	paths := make([]string, 0, len(s))
	for p := range s {
		paths = append(paths, p)
	}
	SortPaths(paths)
	return paths
}

// SortPaths orders paths with embedded numbers compared numerically.
func SortPaths(paths []string) {
	collate.New(language.Und, collate.Numeric).SortStrings(paths)
}

// References groups the three path categories tracked for a submission.
type References struct {
	InputFilenames    Set
	InputDirectories  Set
	OutputDirectories Set
}

// NewReferences returns an empty reference collection.
func NewReferences() References {
	return References{
		InputFilenames:    Set{},
		InputDirectories:  Set{},
		OutputDirectories: Set{},
	}
}

// Lists is the ordered form of References, ready for display or
// serialization.
type Lists struct {
	InputFilenames    []string
	InputDirectories  []string
	OutputDirectories []string
}

// ToLists sorts each category.
func (r References) ToLists() Lists {
	return Lists{
		InputFilenames:    r.InputFilenames.Sorted(),
		InputDirectories:  r.InputDirectories.Sorted(),
		OutputDirectories: r.OutputDirectories.Sorted(),
	}
}

// timeVarPattern matches Houdini time-based variables and backtick
// expressions inside a path. See the Houdini render expression docs for the
// variable list.
var timeVarPattern = regexp.MustCompile(strings.Join([]string{
	"(`.*`)",
	`(\$FF)`,
	`(\$\{FF\})`,
	`(\$F\d*)`,
	`(\$\{F\d*\})`,
	`(\$T)`,
	`(\$\{T\})`,
	`(\$SF)`,
	`(\$\{SF\})`,
	`(\$ST)`,
	`(\$\{ST\})`,
}, "|"))

// TimeVarsToGlob replaces time-based variables with "*" so a single pattern
// captures a whole file sequence. Paths without time variables come back
// unchanged.
func TimeVarsToGlob(path string) string {
	return timeVarPattern.ReplaceAllString(path, "*")
}

// MergeScan reconciles the paths currently shown to the user with a fresh
// scene scan. Entries the user added by hand survive; everything that was
// auto-detected, now or previously, is replaced by the fresh detection.
// The first result is the new display state, the second the detected set to
// remember for the next merge.
func MergeScan(display, detected, previous References) (Lists, Lists) {
	manual := References{
		InputFilenames:    NewSet(),
		InputDirectories:  NewSet(),
		OutputDirectories: NewSet(),
	}
	manual.InputFilenames.Update(display.InputFilenames)
	manual.InputDirectories.Update(display.InputDirectories)
	manual.OutputDirectories.Update(display.OutputDirectories)

	manual.InputFilenames.DifferenceUpdate(detected.InputFilenames)
	manual.InputFilenames.DifferenceUpdate(previous.InputFilenames)
	manual.InputDirectories.DifferenceUpdate(detected.InputDirectories)
	manual.InputDirectories.DifferenceUpdate(previous.InputDirectories)
	manual.OutputDirectories.DifferenceUpdate(detected.OutputDirectories)
	manual.OutputDirectories.DifferenceUpdate(previous.OutputDirectories)

	manualLists := manual.ToLists()
	detectedLists := detected.ToLists()

	return Lists{
		InputFilenames:    append(manualLists.InputFilenames, detectedLists.InputFilenames...),
		InputDirectories:  append(manualLists.InputDirectories, detectedLists.InputDirectories...),
		OutputDirectories: append(manualLists.OutputDirectories, detectedLists.OutputDirectories...),
	}, detectedLists
}
