package install

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goccy/go-json"

	"stagehand/internal/depsbundle"
	"stagehand/internal/version"
)

func TestRenderPointerSubstitutesPlaceholder(t *testing.T) {
	data, err := RenderPointer("/opt/stagehand")
	if err != nil {
		t.Fatalf("RenderPointer: %v", err)
	}
	if strings.Contains(string(data), Placeholder) {
		t.Fatalf("placeholder survived substitution: %s", data)
	}

	var doc struct {
		Env   []map[string]string `json:"env"`
		HPath string              `json:"hpath"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("pointer file is not valid JSON: %v", err)
	}
	if doc.HPath != "$"+EnvVarName {
		t.Fatalf("hpath = %q", doc.HPath)
	}
	if len(doc.Env) != 2 {
		t.Fatalf("env entries = %d", len(doc.Env))
	}
	if got := doc.Env[0][EnvVarName]; got != "/opt/stagehand/submitter" {
		t.Fatalf("%s = %q", EnvVarName, got)
	}
	if pp := doc.Env[1]["PYTHONPATH"]; !strings.Contains(pp, "/opt/stagehand/deps") {
		t.Fatalf("PYTHONPATH = %q", pp)
	}
}

func TestRenderPointerRequiresInstallDir(t *testing.T) {
	if _, err := RenderPointer("  "); err == nil {
		t.Fatal("expected error for empty install dir")
	}
}

func TestWritePointer(t *testing.T) {
	packagesDir := filepath.Join(t.TempDir(), "packages")
	path, err := WritePointer(packagesDir, "/opt/stagehand")
	if err != nil {
		t.Fatalf("WritePointer: %v", err)
	}
	if filepath.Base(path) != PointerFileName {
		t.Fatalf("pointer file name = %s", filepath.Base(path))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read pointer: %v", err)
	}
	if strings.Contains(string(data), Placeholder) {
		t.Fatal("written pointer still contains the placeholder")
	}
}

type recordingExecutor struct {
	name string
	args []string
}

func (r *recordingExecutor) Run(_ context.Context, name string, args ...string) error {
	r.name = name
	r.args = args
	return nil
}

func testSourceTree(t *testing.T) string {
	t.Helper()
	src := t.TempDir()
	if err := os.MkdirAll(filepath.Join(src, "python"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(src, "python", "plugin.py"), []byte("pass\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	return src
}

func TestInstallerRun(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	src := testSourceTree(t)
	installDir := t.TempDir()
	houdiniDir := t.TempDir()
	hotl := filepath.Join(houdiniDir, "hotl")
	if err := os.WriteFile(hotl, []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	assetDir := t.TempDir()

	exec := &recordingExecutor{}
	inst, err := New(Options{
		Version:           "19.5.716",
		CachePath:         filepath.Join(t.TempDir(), version.CacheFileName),
		SourceDir:         src,
		InstallDir:        installDir,
		AssetDir:          assetDir,
		HoudiniInstallDir: houdiniDir,
		HotlPath:          hotl,
		Executor:          exec,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	result, err := inst.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Version.String() != "19.5.716" {
		t.Fatalf("version = %s", result.Version)
	}

	if exec.name != hotl {
		t.Fatalf("executed %q, want hotl", exec.name)
	}
	if len(exec.args) != 3 || exec.args[0] != "-C" || exec.args[1] != assetDir {
		t.Fatalf("hotl args = %v", exec.args)
	}
	if result.AssetPath != exec.args[2] {
		t.Fatalf("asset path %q does not match hotl output arg %q", result.AssetPath, exec.args[2])
	}

	if _, err := os.Stat(filepath.Join(installDir, "submitter", "python", "plugin.py")); err != nil {
		t.Fatalf("plugin tree not copied: %v", err)
	}
	if _, err := os.Stat(result.PointerPath); err != nil {
		t.Fatalf("pointer file not written: %v", err)
	}
}

func TestInstallerReusesCachedVersion(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cachePath := filepath.Join(t.TempDir(), version.CacheFileName)
	if err := os.WriteFile(cachePath, []byte("20.0.625\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	prompted := false
	inst, err := New(Options{
		CachePath:  cachePath,
		SourceDir:  testSourceTree(t),
		InstallDir: t.TempDir(),
		Prompt: func() (string, error) {
			prompted = true
			return "", nil
		},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	result, err := inst.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if prompted {
		t.Fatal("prompted despite a cached version")
	}
	if result.Version.String() != "20.0.625" {
		t.Fatalf("version = %s", result.Version)
	}
}

func TestInstallerUnpacksDepsBundle(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	depsSrc := t.TempDir()
	if err := os.WriteFile(filepath.Join(depsSrc, "lib.py"), []byte("x = 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	archive := filepath.Join(t.TempDir(), "deps.zip")
	if err := depsbundle.Create(depsSrc, archive); err != nil {
		t.Fatalf("Create: %v", err)
	}

	installDir := t.TempDir()
	inst, err := New(Options{
		Version:     "19.5.716",
		CachePath:   filepath.Join(t.TempDir(), version.CacheFileName),
		SourceDir:   testSourceTree(t),
		InstallDir:  installDir,
		DepsArchive: archive,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := inst.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if _, err := os.Stat(filepath.Join(installDir, "deps", "lib.py")); err != nil {
		t.Fatalf("dependency bundle not unpacked: %v", err)
	}
}

func TestNewRequiresDirectories(t *testing.T) {
	if _, err := New(Options{InstallDir: "x"}); err == nil {
		t.Fatal("expected error without source dir")
	}
	if _, err := New(Options{SourceDir: "x"}); err == nil {
		t.Fatal("expected error without install dir")
	}
}
