package conversation

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrUnknownPreset is returned when a preset name matches neither a
// built-in preset nor a yaml file in the preset directory.
var ErrUnknownPreset = errors.New("conversation: unknown preset")

// BuiltinPreset resolves one of the built-in strategy presets by name.
func BuiltinPreset(name string) (ContextConfig, bool) {
	switch strings.ToLower(name) {
	case "default":
		return DefaultConfig(), true
	case "conservative":
		return ConservativeConfig(), true
	case "aggressive":
		return AggressiveConfig(), true
	}
	return ContextConfig{}, false
}

// LoadPresetFile reads a ContextConfig from a yaml file. Unset fields
// fall back to defaults and out-of-range values are clamped.
func LoadPresetFile(path string) (ContextConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ContextConfig{}, fmt.Errorf("read preset file: %w", err)
	}
	var cfg ContextConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return ContextConfig{}, fmt.Errorf("parse preset file %s: %w", filepath.Base(path), err)
	}
	cfg.Normalize()
	return cfg, nil
}

// ResolvePreset returns the built-in preset named name, falling back to
// <dir>/<name>.yaml when no built-in matches. An empty dir skips the
// file lookup.
func ResolvePreset(dir, name string) (ContextConfig, error) {
	if cfg, ok := BuiltinPreset(name); ok {
		return cfg, nil
	}
	if dir != "" {
		path := filepath.Join(dir, name+".yaml")
		if _, err := os.Stat(path); err == nil {
			return LoadPresetFile(path)
		}
	}
	return ContextConfig{}, fmt.Errorf("%w: %s", ErrUnknownPreset, name)
}
