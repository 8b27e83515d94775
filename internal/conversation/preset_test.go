package conversation

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestBuiltinPreset(t *testing.T) {
	tests := []struct {
		name      string
		ok        bool
		keepLastN int
	}{
		{"default", true, 10},
		{"conservative", true, 20},
		{"AGGRESSIVE", true, 6},
		{"nope", false, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, ok := BuiltinPreset(tt.name)
			if ok != tt.ok {
				t.Fatalf("BuiltinPreset(%q) ok = %v, want %v", tt.name, ok, tt.ok)
			}
			if ok && cfg.KeepLastN != tt.keepLastN {
				t.Errorf("KeepLastN = %d, want %d", cfg.KeepLastN, tt.keepLastN)
			}
		})
	}
}

func TestLoadPresetFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "focus.yaml")
	data := []byte("keep_last_n: 4\ncompression_block_size: 3\nmodel: gpt-4o-mini\n")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadPresetFile(path)
	if err != nil {
		t.Fatalf("LoadPresetFile: %v", err)
	}
	if cfg.KeepLastN != 4 {
		t.Errorf("KeepLastN = %d, want 4", cfg.KeepLastN)
	}
	if cfg.CompressionBlockSize != 3 {
		t.Errorf("CompressionBlockSize = %d, want 3", cfg.CompressionBlockSize)
	}
	if cfg.Model != "gpt-4o-mini" {
		t.Errorf("Model = %q, want gpt-4o-mini", cfg.Model)
	}
	// Unset fields pick up defaults.
	if cfg.MaxSummaryBlocks != DefaultConfig().MaxSummaryBlocks {
		t.Errorf("MaxSummaryBlocks = %d, want default %d", cfg.MaxSummaryBlocks, DefaultConfig().MaxSummaryBlocks)
	}
}

func TestResolvePreset(t *testing.T) {
	dir := t.TempDir()
	data := []byte("keep_last_n: 30\n")
	if err := os.WriteFile(filepath.Join(dir, "wide.yaml"), data, 0644); err != nil {
		t.Fatal(err)
	}

	if cfg, err := ResolvePreset(dir, "conservative"); err != nil || cfg.KeepLastN != 20 {
		t.Errorf("built-in lookup = (%d, %v), want (20, nil)", cfg.KeepLastN, err)
	}
	if cfg, err := ResolvePreset(dir, "wide"); err != nil || cfg.KeepLastN != 30 {
		t.Errorf("file lookup = (%d, %v), want (30, nil)", cfg.KeepLastN, err)
	}
	if _, err := ResolvePreset(dir, "missing"); !errors.Is(err, ErrUnknownPreset) {
		t.Errorf("missing preset err = %v, want ErrUnknownPreset", err)
	}
	if _, err := ResolvePreset("", "missing"); !errors.Is(err, ErrUnknownPreset) {
		t.Errorf("empty dir err = %v, want ErrUnknownPreset", err)
	}
}
