// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/gamepak

package gamepak

import (
	"fmt"
	"slices"
	"strings"
	"sync"
)

// Ranking is the detection result for one plugin.
type Ranking struct {
	// Err is the scoring error or recovered fault, if any.
	Err error `json:"-" yaml:"-"`
	// Plugin is the scored plugin.
	Plugin Plugin `json:"-" yaml:"-"`
	// Info is the plugin descriptor.
	Info Info `json:"info" yaml:"info"`
	// Score is the clamped score; errors count as zero.
	Score int `json:"score" yaml:"score"`
	// ExtensionMatch reports whether the container extension is declared by the plugin.
	ExtensionMatch bool `json:"extension_match,omitempty" yaml:"extension_match,omitempty"`

	order int
}

// Registry holds format plugins in registration order.
// Registration takes a write lock; detection only reads.
type Registry struct {
	byID    map[string]int
	plugins []Plugin
	floor   int
	mu      sync.RWMutex
}

// NewRegistry returns an empty registry with the default acceptance floor.
func NewRegistry() *Registry {
	return &Registry{
		byID:  make(map[string]int),
		floor: DefaultAcceptanceFloor,
	}
}

// defaultRegistry is filled by format packages from init.
var defaultRegistry = NewRegistry()

// DefaultRegistry returns the process-wide registry.
func DefaultRegistry() *Registry {
	return defaultRegistry
}

// Register adds p to the default registry. It panics on duplicate ids,
// which is a programming error in init code.
func Register(p Plugin) {
	defaultRegistry.MustRegister(p)
}

// Register adds a plugin. Ids are case-insensitive.
func (g *Registry) Register(p Plugin) error {
	if p == nil {
		return fmt.Errorf("register: nil plugin")
	}

	id := strings.ToLower(strings.TrimSpace(p.Info().ID))
	if id == "" {
		return fmt.Errorf("register: empty format id")
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.byID[id]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateFormat, id)
	}

	g.byID[id] = len(g.plugins)
	g.plugins = append(g.plugins, p)

	return nil
}

// MustRegister is Register that panics on error.
func (g *Registry) MustRegister(p Plugin) {
	if err := g.Register(p); err != nil {
		panic(err)
	}
}

// Plugins returns registered plugins in registration order.
func (g *Registry) Plugins() []Plugin {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return slices.Clone(g.plugins)
}

// Lookup returns the plugin registered under id.
func (g *Registry) Lookup(id string) (Plugin, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	idx, ok := g.byID[strings.ToLower(strings.TrimSpace(id))]
	if !ok {
		return nil, false
	}

	return g.plugins[idx], true
}

// AcceptanceFloor returns the score a plugin must exceed.
func (g *Registry) AcceptanceFloor() int {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return g.floor
}

// SetAcceptanceFloor changes the acceptance floor.
func (g *Registry) SetAcceptanceFloor(floor int) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.floor = floor
}

// Scores rates every plugin on its own sub-reader and returns the ranking,
// best first. Ties prefer an extension match, then registration order.
func (g *Registry) Scores(r *Reader) []Ranking {
	plugins := g.Plugins()
	out := make([]Ranking, 0, len(plugins))
	for i, p := range plugins {
		score, err := scorePlugin(p, r.Clone())
		info := safeInfo(p)
		out = append(out, Ranking{
			Plugin:         p,
			Info:           info,
			Score:          score,
			Err:            err,
			ExtensionMatch: matchExtension(r.Name(), info.Extensions),
			order:          i,
		})
	}

	slices.SortStableFunc(out, compareRanking)
	return out
}

// Candidates returns rankings above the acceptance floor, best first.
func (g *Registry) Candidates(r *Reader) []Ranking {
	floor := g.AcceptanceFloor()
	ranking := g.Scores(r)

	n := 0
	for n < len(ranking) && ranking[n].Score > floor {
		n++
	}

	return ranking[:n]
}

// Detect returns the best plugin for r or ErrUnrecognized when no plugin
// scores above the acceptance floor.
func (g *Registry) Detect(r *Reader) (Plugin, int, error) {
	candidates := g.Candidates(r)
	if len(candidates) == 0 {
		return nil, 0, fmt.Errorf("%w: %s", ErrUnrecognized, r.Name())
	}

	return candidates[0].Plugin, candidates[0].Score, nil
}

// compareRanking orders by score desc, extension match, registration order.
func compareRanking(a, b Ranking) int {
	if a.Score != b.Score {
		return b.Score - a.Score
	}
	if a.ExtensionMatch != b.ExtensionMatch {
		if a.ExtensionMatch {
			return -1
		}

		return 1
	}

	return a.order - b.order
}

// scorePlugin runs Score with panic isolation; failures count as zero.
func scorePlugin(p Plugin, r *Reader) (score int, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			score = 0
			err = fmt.Errorf("%w: score %s: %v", ErrPluginFault, safeInfo(p).ID, rec)
		}
	}()

	score, err = p.Score(r)
	if err != nil || score < 0 {
		return 0, err
	}

	return score, nil
}

// parsePlugin runs Parse with panic isolation.
func parsePlugin(p Plugin, r *Reader, env *Env) (res []Resource, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			res = nil
			err = fmt.Errorf("%w: parse %s: %v", ErrPluginFault, safeInfo(p).ID, rec)
		}
	}()

	return p.Parse(r, env)
}

// safeInfo returns p.Info, recovering from a faulty implementation.
func safeInfo(p Plugin) (info Info) {
	defer func() {
		if rec := recover(); rec != nil {
			info = Info{ID: fmt.Sprintf("%T", p)}
		}
	}()

	return p.Info()
}
