package loadgen

import (
	"os"
	"path/filepath"
	"testing"

	"rg-bench/internal/config"
)

func scriptTree(t *testing.T, files ...string) string {
	t.Helper()
	root := t.TempDir()
	for _, rel := range files {
		path := filepath.Join(root, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(path, []byte("-- wrk script\n"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	return root
}

func TestResolveScriptExactName(t *testing.T) {
	root := scriptTree(t, "energy/json.lua", "energy/basic.lua")

	rel, err := ResolveScript(root, "json.lua", config.ModeEnergy)
	if err != nil {
		t.Fatalf("ResolveScript failed: %v", err)
	}
	if rel != filepath.Join("energy", "json.lua") {
		t.Fatalf("unexpected script %s", rel)
	}
}

func TestResolveScriptAppendsExtension(t *testing.T) {
	root := scriptTree(t, "energy/json.lua")

	rel, err := ResolveScript(root, "json", config.ModeEnergy)
	if err != nil {
		t.Fatalf("ResolveScript failed: %v", err)
	}
	if rel != filepath.Join("energy", "json.lua") {
		t.Fatalf("unexpected script %s", rel)
	}
}

func TestResolveScriptModeDefault(t *testing.T) {
	root := scriptTree(t, "energy/basic.lua")

	rel, err := ResolveScript(root, "missing.lua", config.ModeEnergy)
	if err != nil {
		t.Fatalf("ResolveScript failed: %v", err)
	}
	if rel != filepath.Join("energy", "basic.lua") {
		t.Fatalf("expected mode default, got %s", rel)
	}
}

func TestResolveScriptProfileFallback(t *testing.T) {
	root := scriptTree(t, "profile/basic.lua")

	rel, err := ResolveScript(root, "missing.lua", config.ModeEnergy)
	if err != nil {
		t.Fatalf("ResolveScript failed: %v", err)
	}
	if rel != filepath.Join("profile", "basic.lua") {
		t.Fatalf("expected profile fallback, got %s", rel)
	}
}

func TestResolveScriptNothingFound(t *testing.T) {
	root := scriptTree(t)

	if _, err := ResolveScript(root, "missing.lua", config.ModeEnergy); err == nil {
		t.Fatalf("expected error when no script exists")
	}
}

func TestResolveScriptQuickSharesProfileScripts(t *testing.T) {
	root := scriptTree(t, "profile/json.lua")

	rel, err := ResolveScript(root, "json", config.ModeQuick)
	if err != nil {
		t.Fatalf("ResolveScript failed: %v", err)
	}
	if rel != filepath.Join("profile", "json.lua") {
		t.Fatalf("quick mode should use profile scripts, got %s", rel)
	}
}
