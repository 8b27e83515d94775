// Package prompt loads system prompt presets from markdown files and
// keeps them fresh through a file watcher.
package prompt

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrNotFound indicates the named preset does not exist.
var ErrNotFound = errors.New("prompt: preset not found")

// DefaultPreset is the preset name used when none is requested.
const DefaultPreset = "default"

// Preset is one system prompt loaded from a markdown file. The file name
// without extension is the preset name unless the frontmatter overrides it.
type Preset struct {
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Content     string    `json:"content"`
	FilePath    string    `json:"file_path"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type frontmatter struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`
}

// Store holds the presets of one directory.
type Store struct {
	mu      sync.RWMutex
	dir     string
	presets map[string]Preset
}

// NewStore creates a store over dir and loads every preset in it. A
// missing directory yields an empty store, not an error.
func NewStore(dir string) (*Store, error) {
	s := &Store{dir: dir, presets: make(map[string]Preset)}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Dir returns the preset directory.
func (s *Store) Dir() string { return s.dir }

// Reload re-reads every .md file in the directory.
func (s *Store) Reload() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("prompt: read dir: %w", err)
	}

	presets := make(map[string]Preset)
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
			continue
		}
		p, err := loadFile(filepath.Join(s.dir, e.Name()))
		if err != nil {
			continue
		}
		presets[p.Name] = p
	}

	s.mu.Lock()
	s.presets = presets
	s.mu.Unlock()
	return nil
}

// ReloadFile re-reads a single preset file. Deleted files drop their
// preset from the store.
func (s *Store) ReloadFile(path string) {
	if !strings.HasSuffix(path, ".md") {
		return
	}
	p, err := loadFile(path)
	if err != nil {
		s.mu.Lock()
		for name, existing := range s.presets {
			if existing.FilePath == path {
				delete(s.presets, name)
			}
		}
		s.mu.Unlock()
		return
	}

	s.mu.Lock()
	s.presets[p.Name] = p
	s.mu.Unlock()
}

// Get returns a preset by name.
func (s *Store) Get(name string) (Preset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.presets[name]
	if !ok {
		return Preset{}, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return p, nil
}

// Default returns the default preset's content, or empty when absent.
func (s *Store) Default() string {
	p, err := s.Get(DefaultPreset)
	if err != nil {
		return ""
	}
	return p.Content
}

// List returns every preset sorted by name.
func (s *Store) List() []Preset {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Preset, 0, len(s.presets))
	for _, p := range s.presets {
		out = append(out, p)
	}
	sortPresets(out)
	return out
}

// Save writes a preset file into the directory and installs it.
func (s *Store) Save(name, content string) (Preset, error) {
	if name == "" {
		return Preset{}, errors.New("prompt: empty preset name")
	}
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return Preset{}, err
	}
	path := filepath.Join(s.dir, name+".md")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return Preset{}, err
	}
	p, err := loadFile(path)
	if err != nil {
		return Preset{}, err
	}
	s.mu.Lock()
	s.presets[p.Name] = p
	s.mu.Unlock()
	return p, nil
}

func sortPresets(presets []Preset) {
	for i := 1; i < len(presets); i++ {
		for j := i; j > 0 && presets[j].Name < presets[j-1].Name; j-- {
			presets[j], presets[j-1] = presets[j-1], presets[j]
		}
	}
}

// loadFile parses one preset file with optional YAML frontmatter.
func loadFile(path string) (Preset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Preset{}, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return Preset{}, err
	}

	name := strings.TrimSuffix(filepath.Base(path), ".md")
	content := string(data)
	var fm frontmatter
	if head, body, ok := splitFrontmatter(content); ok {
		if err := yaml.Unmarshal([]byte(head), &fm); err == nil {
			content = body
		}
	}
	if fm.Name != "" {
		name = fm.Name
	}

	return Preset{
		Name:        name,
		Description: fm.Description,
		Content:     strings.TrimSpace(content),
		FilePath:    path,
		UpdatedAt:   info.ModTime(),
	}, nil
}

// splitFrontmatter splits a leading --- block from the body.
func splitFrontmatter(content string) (head, body string, ok bool) {
	if !strings.HasPrefix(content, "---\n") {
		return "", "", false
	}
	rest := content[4:]
	end := strings.Index(rest, "\n---")
	if end < 0 {
		return "", "", false
	}
	head = rest[:end]
	body = strings.TrimPrefix(rest[end+4:], "\n")
	return head, body, true
}
