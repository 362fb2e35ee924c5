package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSaveAndLoad(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")

	cfg := Default()
	cfg.DefaultSession = "work"
	cfg.DefaultChannel = "general"
	cfg.Sync.NextResultSize = 10
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.DefaultSession != "work" {
		t.Errorf("DefaultSession = %q, want %q", loaded.DefaultSession, "work")
	}
	if loaded.DefaultChannel != "general" {
		t.Errorf("DefaultChannel = %q, want %q", loaded.DefaultChannel, "general")
	}
	if loaded.Sync.NextResultSize != 10 {
		t.Errorf("NextResultSize = %d, want 10", loaded.Sync.NextResultSize)
	}
}

func TestLoadKeepsDefaultsForMissingKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := "default_session = \"work\"\n\n[sync]\nprevious_result_size = 12\n"
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	sc := cfg.SyncConfig()
	if sc.PreviousResultSize != 12 {
		t.Errorf("PreviousResultSize = %d, want 12", sc.PreviousResultSize)
	}
	if sc.NextResultSize != 30 || sc.ChangelogPageSize != 100 || sc.MaxChangelogPages != 50 {
		t.Errorf("got %+v, want defaults for unset keys", sc)
	}
	if cfg.Sync.CacheSize != 100 {
		t.Errorf("CacheSize = %d, want 100", cfg.Sync.CacheSize)
	}
}

func TestLoadMissing(t *testing.T) {
	_, err := Load("/nonexistent/config.toml")
	if err == nil {
		t.Error("Load() expected error for missing file")
	}

	cfg, err := LoadOrDefault("/nonexistent/config.toml")
	if err != nil {
		t.Fatalf("LoadOrDefault() error = %v", err)
	}
	if cfg.Sync.PreviousResultSize != 30 {
		t.Errorf("PreviousResultSize = %d, want 30", cfg.Sync.PreviousResultSize)
	}
}

func TestSavePermissions(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")

	if err := Save(path, &Config{DefaultSession: "main"}); err != nil {
		t.Fatal(err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	perm := info.Mode().Perm()
	if perm != 0600 {
		t.Errorf("file permission = %o, want 0600", perm)
	}
}
