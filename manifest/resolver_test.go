package manifest

import (
	"os"
	"path/filepath"
	"testing"
)

func writeManifest(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "dacite.toml"), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestResolvePathDependency(t *testing.T) {
	root := t.TempDir()
	appDir := filepath.Join(root, "app")
	libDir := filepath.Join(root, "lib")

	writeManifest(t, appDir, `
[package]
name = "app"

[dependencies]
lib = { path = "../lib" }
`)
	writeManifest(t, libDir, `
[package]
name = "lib"
`)

	m, err := Load(appDir)
	if err != nil {
		t.Fatal(err)
	}

	deps, err := NewResolver(m, false).Resolve()
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	if len(deps) != 1 {
		t.Fatalf("resolved %d deps, want 1", len(deps))
	}
	if deps[0].Name != "lib" {
		t.Errorf("dep name = %q, want lib", deps[0].Name)
	}
	want, _ := filepath.Abs(libDir)
	if deps[0].LocalPath != want {
		t.Errorf("dep path = %q, want %q", deps[0].LocalPath, want)
	}
	if deps[0].Manifest == nil || deps[0].Manifest.Package.Name != "lib" {
		t.Error("dependency manifest was not loaded")
	}

	// A lock file is written alongside resolution.
	lf, err := ReadLock(m.LockFilePath())
	if err != nil {
		t.Fatal(err)
	}
	if lf.FindLockedDep("lib") == nil {
		t.Error("lock file missing entry for lib")
	}
}

func TestResolveTransitiveOrder(t *testing.T) {
	root := t.TempDir()
	appDir := filepath.Join(root, "app")
	midDir := filepath.Join(root, "mid")
	leafDir := filepath.Join(root, "leaf")

	writeManifest(t, appDir, `
[package]
name = "app"

[dependencies]
mid = { path = "../mid" }
`)
	writeManifest(t, midDir, `
[package]
name = "mid"

[dependencies]
leaf = { path = "../leaf" }
`)
	writeManifest(t, leafDir, `
[package]
name = "leaf"
`)

	m, err := Load(appDir)
	if err != nil {
		t.Fatal(err)
	}

	deps, err := NewResolver(m, false).Resolve()
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	if len(deps) != 2 {
		t.Fatalf("resolved %d deps, want 2", len(deps))
	}
	// Dependencies come before dependents.
	if deps[0].Name != "leaf" || deps[1].Name != "mid" {
		t.Errorf("load order = [%s %s], want [leaf mid]", deps[0].Name, deps[1].Name)
	}
}

func TestResolvePathDependencyWithoutManifest(t *testing.T) {
	root := t.TempDir()
	appDir := filepath.Join(root, "app")
	srcDir := filepath.Join(root, "plain")

	writeManifest(t, appDir, `
[package]
name = "app"

[dependencies]
plain = { path = "../plain" }
`)
	if err := os.MkdirAll(srcDir, 0755); err != nil {
		t.Fatal(err)
	}

	m, err := Load(appDir)
	if err != nil {
		t.Fatal(err)
	}

	deps, err := NewResolver(m, false).Resolve()
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if len(deps) != 1 {
		t.Fatalf("resolved %d deps, want 1", len(deps))
	}
	if deps[0].Manifest != nil {
		t.Error("expected nil manifest for a bare directory dependency")
	}
}

func TestResolveMissingPath(t *testing.T) {
	appDir := filepath.Join(t.TempDir(), "app")
	writeManifest(t, appDir, `
[package]
name = "app"

[dependencies]
gone = { path = "../does-not-exist" }
`)

	m, err := Load(appDir)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := NewResolver(m, false).Resolve(); err == nil {
		t.Error("expected an error for a missing path dependency")
	}
}

func TestResolveUnspecifiedDependency(t *testing.T) {
	appDir := filepath.Join(t.TempDir(), "app")
	writeManifest(t, appDir, `
[package]
name = "app"

[dependencies]
empty = { }
`)

	m, err := Load(appDir)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := NewResolver(m, false).Resolve(); err == nil {
		t.Error("expected an error for a dependency with neither git nor path")
	}
}

func TestResolveNoDependencies(t *testing.T) {
	appDir := filepath.Join(t.TempDir(), "app")
	writeManifest(t, appDir, `
[package]
name = "app"
`)

	m, err := Load(appDir)
	if err != nil {
		t.Fatal(err)
	}

	deps, err := NewResolver(m, false).Resolve()
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if len(deps) != 0 {
		t.Errorf("resolved %d deps, want 0", len(deps))
	}
}
