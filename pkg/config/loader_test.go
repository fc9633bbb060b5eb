package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfig_AppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("layout:\n  depth: 2\n"), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	if cfg.Layout.Depth != 2 {
		t.Errorf("Depth = %d, want 2", cfg.Layout.Depth)
	}
	if cfg.Layout.PreviewWidth != 0.5 {
		t.Errorf("PreviewWidth = %v, want 0.5", cfg.Layout.PreviewWidth)
	}
	if cfg.Layout.MaxParentWidth != 0.3 {
		t.Errorf("MaxParentWidth = %v, want 0.3", cfg.Layout.MaxParentWidth)
	}
	if cfg.Refresh.DebounceMS != 50 {
		t.Errorf("DebounceMS = %d, want 50", cfg.Refresh.DebounceMS)
	}
	if cfg.Decor.ModeLine != "full" {
		t.Errorf("ModeLine = %q, want \"full\"", cfg.Decor.ModeLine)
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("LoadConfig() expected error for missing file")
	}
}

func TestLoadConfig_RejectsOutOfRangeFractions(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "layout:\n  preview_width: 1.5\n  max_parent_width: -0.2\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	if cfg.Layout.PreviewWidth != 0.5 {
		t.Errorf("PreviewWidth = %v, want default 0.5", cfg.Layout.PreviewWidth)
	}
	if cfg.Layout.MaxParentWidth != 0.3 {
		t.Errorf("MaxParentWidth = %v, want default 0.3", cfg.Layout.MaxParentWidth)
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Layout.Depth != 1 {
		t.Errorf("Depth = %d, want 1", cfg.Layout.Depth)
	}
	if cfg.Listing.Order != "dirs-first" {
		t.Errorf("Order = %q, want \"dirs-first\"", cfg.Listing.Order)
	}
	if cfg.Layout.Minimal {
		t.Error("Minimal = true, want false (full layout by default)")
	}
}

func TestSaveConfig_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	cfg := Default()
	cfg.Layout.Depth = 3
	cfg.Listing.ShowHidden = true
	if err := SaveConfig(path, cfg); err != nil {
		t.Fatalf("SaveConfig() error: %v", err)
	}

	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	if loaded.Layout.Depth != 3 {
		t.Errorf("Depth = %d, want 3", loaded.Layout.Depth)
	}
	if !loaded.Listing.ShowHidden {
		t.Error("ShowHidden = false, want true")
	}
}
