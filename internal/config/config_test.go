package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"YubiAge/internal/batch"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "nope", "settings.toml"))

	got, err := store.Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if diff := cmp.Diff(Defaults(), got); diff != "" {
		t.Errorf("Load() mismatch (-want +got):\n%s", diff)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	keyA := filepath.Join(dir, "a.pub")
	keyB := filepath.Join(dir, "b.pub")
	for _, k := range []string{keyA, keyB} {
		os.WriteFile(k, []byte("age1..."), 0600)
	}

	store := NewStore(filepath.Join(dir, "cfg", "settings.toml"))
	s := Defaults()
	s.RememberKeys([]string{keyA, keyB})
	s.Tool.Path = "/opt/age/bin/age"
	s.Policy.Directories = "expand"
	s.Policy.StrictKeys = true

	if err := store.Save(s); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	got, err := store.Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if diff := cmp.Diff(s, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}

	entries, _ := os.ReadDir(filepath.Dir(store.Path))
	if len(entries) != 1 {
		t.Errorf("expected only settings.toml, got %d entries", len(entries))
	}
}

func TestLoadDropsMissingKeys(t *testing.T) {
	dir := t.TempDir()
	kept := filepath.Join(dir, "kept.pub")
	os.WriteFile(kept, []byte("x"), 0600)

	path := filepath.Join(dir, "settings.toml")
	content := "[keys]\nremember = true\npaths = \"" + filepath.ToSlash(kept) + ";" + filepath.ToSlash(filepath.Join(dir, "gone.pub")) + "\"\n"
	os.WriteFile(path, []byte(content), 0600)

	got, err := NewStore(path).Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if diff := cmp.Diff([]string{filepath.ToSlash(kept)}, got.KeyPaths()); diff != "" {
		t.Errorf("KeyPaths mismatch (-want +got):\n%s", diff)
	}

	// Unset sections keep their defaults.
	if !got.Policy.AvoidCollisions || got.Tool.Path != "age" {
		t.Errorf("defaults lost: %+v", got)
	}
}

func TestLoadAllKeysGoneTurnsRememberOff(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.toml")
	os.WriteFile(path, []byte("[keys]\nremember = true\npaths = \"/definitely/not/here.pub\"\n"), 0600)

	got, err := NewStore(path).Load()
	if err != nil {
		t.Fatal(err)
	}
	if got.Keys.Remember || got.KeyPaths() != nil {
		t.Errorf("keys = %+v; want remember off", got.Keys)
	}
}

func TestLoadInvalid(t *testing.T) {
	dir := t.TempDir()
	tests := map[string]string{
		"syntax":    "[keys\nremember = true",
		"directory": "[policy]\ndirectories = \"zip\"\n",
		"tool":      "[tool]\npath = \"\"\n",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name+".toml")
			os.WriteFile(path, []byte(content), 0600)
			if _, err := NewStore(path).Load(); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestKeyPaths(t *testing.T) {
	s := Defaults()
	s.Keys.Paths = "/a.pub; ;/b.pub;"
	if s.KeyPaths() != nil {
		t.Error("KeyPaths should be nil while remember is off")
	}

	s.Keys.Remember = true
	if diff := cmp.Diff([]string{"/a.pub", "/b.pub"}, s.KeyPaths()); diff != "" {
		t.Errorf("KeyPaths mismatch (-want +got):\n%s", diff)
	}

	s.ForgetKeys()
	if s.Keys.Remember || s.Keys.Paths != "" {
		t.Errorf("ForgetKeys left %+v", s.Keys)
	}

	s.RememberKeys(nil)
	if s.Keys.Remember {
		t.Error("remembering an empty list should turn remember off")
	}
}

func TestBatchPolicy(t *testing.T) {
	s := Defaults()
	p, err := s.BatchPolicy()
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(batch.Policy{SingleDecrypt: true, Directories: batch.DirectoriesArchive}, p); diff != "" {
		t.Errorf("BatchPolicy mismatch (-want +got):\n%s", diff)
	}
	if c := s.BatchConfig(); !c.AvoidCollisions || c.StrictKeys {
		t.Errorf("BatchConfig = %+v", c)
	}

	s.Policy.Directories = "sideways"
	if _, err := s.BatchPolicy(); err == nil || !strings.Contains(err.Error(), "policy.directories") {
		t.Errorf("expected policy.directories error, got %v", err)
	}
}

func TestDefaultPath(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	p, err := DefaultPath()
	if err != nil {
		t.Skipf("no user config dir: %v", err)
	}
	if filepath.Base(p) != "settings.toml" || filepath.Base(filepath.Dir(p)) != "yubiage" {
		t.Errorf("DefaultPath() = %s", p)
	}
}
