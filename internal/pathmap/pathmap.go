// Package pathmap translates file-system paths between the submission machine
// and render workers, and renders the HOUDINI_PATHMAP environment value that
// makes the host application do the same.
package pathmap

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/goccy/go-json"
)

// Rule maps a source path prefix on the submitting machine to a destination
// prefix on the worker.
type Rule struct {
	SourcePathFormat string `json:"source_path_format,omitempty"`
	SourcePath       string `json:"source_path"`
	DestinationPath  string `json:"destination_path"`
}

// rulesFile is the on-disk rules document handed to the adaptor.
type rulesFile struct {
	Version string `json:"version,omitempty"`
	Rules   []Rule `json:"path_mapping_rules"`
}

// LoadRules reads path mapping rules from a JSON rules file.
func LoadRules(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read path mapping rules: %w", err)
	}
	var doc rulesFile
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse path mapping rules: %w", err)
	}
	rules := make([]Rule, 0, len(doc.Rules))
	for _, rule := range doc.Rules {
		if strings.TrimSpace(rule.SourcePath) == "" {
			continue
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

// Apply rewrites a path using the longest matching source prefix. The input is
// returned unchanged when no rule matches. Comparison is done on
// forward-slash normalized paths.
func Apply(rules []Rule, path string) string {
	normalized := normalize(path)
	bestLen := -1
	result := path
	for _, rule := range rules {
		src := normalize(rule.SourcePath)
		if src == "" {
			continue
		}
		if !hasPathPrefix(normalized, src) {
			continue
		}
		if len(src) > bestLen {
			bestLen = len(src)
			result = normalize(rule.DestinationPath) + normalized[len(src):]
		}
	}
	return result
}

// HoudiniValue renders the HOUDINI_PATHMAP environment value: a dict literal
// of source to destination prefixes with forward slashes, keys sorted for
// deterministic output. Returns "" when there are no rules.
func HoudiniValue(rules []Rule) string {
	if len(rules) == 0 {
		return ""
	}
	mapping := make(map[string]string, len(rules))
	for _, rule := range rules {
		src := normalize(rule.SourcePath)
		if src == "" {
			continue
		}
		mapping[src] = normalize(rule.DestinationPath)
	}
	if len(mapping) == 0 {
		return ""
	}
	keys := make([]string, 0, len(mapping))
	for key := range mapping {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("{")
	for i, key := range keys {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%q: %q", key, mapping[key])
	}
	b.WriteString("}")
	return b.String()
}

func normalize(path string) string {
	return strings.ReplaceAll(path, "\\", "/")
}

func hasPathPrefix(path, prefix string) bool {
	if !strings.HasPrefix(path, prefix) {
		return false
	}
	if len(path) == len(prefix) {
		return true
	}
	// Prefix must end on a path component boundary.
	if strings.HasSuffix(prefix, "/") {
		return true
	}
	return path[len(prefix)] == '/'
}
