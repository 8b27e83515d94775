// Package facts extracts and stores durable conversation facts grouped by
// category. A deterministic heuristic extractor always runs; an optional
// LLM extractor refines results and falls back to the heuristic on any
// failure.
package facts

import (
	"sort"
	"sync"
)

// Category order used for trimming and stable iteration.
var CategoryOrder = []string{
	CategoryIdentity,
	CategoryProject,
	CategoryRequirements,
	CategoryConstraints,
	CategoryPreferences,
	CategoryTechnical,
	CategoryBusiness,
	CategoryTimeline,
	CategoryOther,
}

// Known fact categories.
const (
	CategoryIdentity     = "identity"
	CategoryProject      = "project"
	CategoryRequirements = "requirements"
	CategoryConstraints  = "constraints"
	CategoryPreferences  = "preferences"
	CategoryTechnical    = "technical"
	CategoryBusiness     = "business"
	CategoryTimeline     = "timeline"
	CategoryOther        = "other"
)

// Fact is a single extracted category/key/value entry.
type Fact struct {
	Category string `json:"category"`
	Key      string `json:"key"`
	Value    string `json:"value"`
}

// entry keeps a key/value pair with its insertion sequence so the oldest
// entry of a category can be identified during trimming.
type entry struct {
	key   string
	value string
	seq   uint64
}

// Groups is a concurrency-safe category -> key -> value store that
// remembers insertion order within each category.
type Groups struct {
	mu      sync.RWMutex
	byCat   map[string][]entry
	nextSeq uint64
}

// NewGroups returns an empty fact store.
func NewGroups() *Groups {
	return &Groups{byCat: make(map[string][]entry)}
}

// Put inserts or overwrites a fact. Overwriting keeps the original
// insertion position of the key.
func (g *Groups) Put(category, key, value string) {
	if category == "" || key == "" || value == "" {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	entries := g.byCat[category]
	for i := range entries {
		if entries[i].key == key {
			entries[i].value = value
			return
		}
	}
	g.byCat[category] = append(entries, entry{key: key, value: value, seq: g.nextSeq})
	g.nextSeq++
}

// PutAll inserts a batch of facts in order.
func (g *Groups) PutAll(facts []Fact) {
	for _, f := range facts {
		g.Put(f.Category, f.Key, f.Value)
	}
}

// Get returns the value for a category/key pair.
func (g *Groups) Get(category, key string) (string, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, e := range g.byCat[category] {
		if e.key == key {
			return e.value, true
		}
	}
	return "", false
}

// Len returns the total number of stored facts.
func (g *Groups) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n := 0
	for _, entries := range g.byCat {
		n += len(entries)
	}
	return n
}

// Categories returns the non-empty category names in sorted order.
func (g *Groups) Categories() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	cats := make([]string, 0, len(g.byCat))
	for c, entries := range g.byCat {
		if len(entries) > 0 {
			cats = append(cats, c)
		}
	}
	sort.Strings(cats)
	return cats
}

// Snapshot returns a deep copy as plain nested maps.
func (g *Groups) Snapshot() map[string]map[string]string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make(map[string]map[string]string, len(g.byCat))
	for c, entries := range g.byCat {
		if len(entries) == 0 {
			continue
		}
		m := make(map[string]string, len(entries))
		for _, e := range entries {
			m[e.key] = e.value
		}
		out[c] = m
	}
	return out
}

// SortedEntries returns a category's key/value pairs with keys sorted,
// for deterministic rendering.
func (g *Groups) SortedEntries(category string) []Fact {
	g.mu.RLock()
	defer g.mu.RUnlock()
	entries := g.byCat[category]
	out := make([]Fact, 0, len(entries))
	for _, e := range entries {
		out = append(out, Fact{Category: category, Key: e.key, Value: e.value})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Trim removes facts until at most maxFacts remain. The oldest entry of
// the first non-empty category in catalogue order goes first; emptied
// categories are dropped.
func (g *Groups) Trim(maxFacts int) int {
	if maxFacts <= 0 {
		return 0
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	removed := 0
	for g.totalLocked() > maxFacts {
		cat := g.firstNonEmptyLocked()
		if cat == "" {
			break
		}
		entries := g.byCat[cat]
		oldest := 0
		for i := range entries {
			if entries[i].seq < entries[oldest].seq {
				oldest = i
			}
		}
		g.byCat[cat] = append(entries[:oldest], entries[oldest+1:]...)
		if len(g.byCat[cat]) == 0 {
			delete(g.byCat, cat)
		}
		removed++
	}
	return removed
}

// Clone returns an independent copy preserving insertion order.
func (g *Groups) Clone() *Groups {
	g.mu.RLock()
	defer g.mu.RUnlock()
	c := NewGroups()
	c.nextSeq = g.nextSeq
	for cat, entries := range g.byCat {
		c.byCat[cat] = append([]entry(nil), entries...)
	}
	return c
}

func (g *Groups) totalLocked() int {
	n := 0
	for _, entries := range g.byCat {
		n += len(entries)
	}
	return n
}

func (g *Groups) firstNonEmptyLocked() string {
	for _, c := range CategoryOrder {
		if len(g.byCat[c]) > 0 {
			return c
		}
	}
	// Unknown categories come after the catalogue.
	for c, entries := range g.byCat {
		if len(entries) > 0 {
			return c
		}
	}
	return ""
}
