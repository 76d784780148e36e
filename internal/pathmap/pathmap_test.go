package pathmap

import (
	"os"
	"path/filepath"
	"testing"
)

func TestApplyLongestPrefixWins(t *testing.T) {
	rules := []Rule{
		{SourcePath: "/mnt/projects", DestinationPath: "/farm/projects"},
		{SourcePath: "/mnt/projects/shots", DestinationPath: "/fast/shots"},
	}
	got := Apply(rules, "/mnt/projects/shots/sh010/scene.hip")
	want := "/fast/shots/sh010/scene.hip"
	if got != want {
		t.Errorf("Apply = %q, want %q", got, want)
	}
}

func TestApplyRequiresComponentBoundary(t *testing.T) {
	rules := []Rule{{SourcePath: "/mnt/proj", DestinationPath: "/farm/proj"}}
	got := Apply(rules, "/mnt/projects/scene.hip")
	if got != "/mnt/projects/scene.hip" {
		t.Errorf("prefix matched mid-component: %q", got)
	}
}

func TestApplyNormalizesBackslashes(t *testing.T) {
	rules := []Rule{{SourcePath: `C:\projects`, DestinationPath: "/farm/projects"}}
	got := Apply(rules, `C:\projects\shot\scene.hip`)
	if got != "/farm/projects/shot/scene.hip" {
		t.Errorf("Apply = %q", got)
	}
}

func TestApplyNoMatchReturnsInput(t *testing.T) {
	rules := []Rule{{SourcePath: "/mnt/projects", DestinationPath: "/farm"}}
	if got := Apply(rules, "/other/scene.hip"); got != "/other/scene.hip" {
		t.Errorf("Apply = %q", got)
	}
}

func TestHoudiniValueDeterministicAndSlashNormalized(t *testing.T) {
	rules := []Rule{
		{SourcePath: `Z:\textures`, DestinationPath: `/farm/textures`},
		{SourcePath: "/mnt/projects", DestinationPath: "/farm/projects"},
	}
	got := HoudiniValue(rules)
	want := `{"/mnt/projects": "/farm/projects", "Z:/textures": "/farm/textures"}`
	if got != want {
		t.Errorf("HoudiniValue = %q, want %q", got, want)
	}
}

func TestHoudiniValueEmpty(t *testing.T) {
	if got := HoudiniValue(nil); got != "" {
		t.Errorf("HoudiniValue(nil) = %q", got)
	}
}

func TestLoadRules(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.json")
	doc := `{
  "version": "pathmapping-1.0",
  "path_mapping_rules": [
    {"source_path_format": "POSIX", "source_path": "/mnt/projects", "destination_path": "/farm/projects"},
    {"source_path": "", "destination_path": "/ignored"}
  ]
}`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	rules, err := LoadRules(path)
	if err != nil {
		t.Fatalf("LoadRules failed: %v", err)
	}
	if len(rules) != 1 {
		t.Fatalf("got %d rules, want 1", len(rules))
	}
	if rules[0].SourcePath != "/mnt/projects" {
		t.Errorf("rule = %+v", rules[0])
	}
}

func TestLoadRulesBadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.json")
	if err := os.WriteFile(path, []byte("{"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadRules(path); err == nil {
		t.Fatal("expected parse error")
	}
}
