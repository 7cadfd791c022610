// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/gamepak

package gamepak

import (
	"errors"
	"testing"

	"github.com/woozymasta/pathrules"
)

func filterSample() []Resource {
	return []Resource{
		{Path: `maps\e1m1.bsp`, Size: 4000},
		{Path: `maps\e1m2.bsp`, Size: 12},
		{Path: `sound\misc\menu1.wav`, Size: 300},
		{Path: "progs.dat", Size: 5},
		{Path: "mapsfile.txt", Size: 1},
	}
}

func resourcePaths(resources []Resource) []string {
	out := make([]string, len(resources))
	for i, res := range resources {
		out[i] = res.Path
	}

	return out
}

func assertPaths(t *testing.T, got []Resource, want ...string) {
	t.Helper()

	paths := resourcePaths(got)
	if len(paths) != len(want) {
		t.Fatalf("paths=%q, want %q", paths, want)
	}
	for i := range want {
		if paths[i] != want[i] {
			t.Fatalf("paths=%q, want %q", paths, want)
		}
	}
}

func TestFilterResources(t *testing.T) {
	t.Parallel()

	all, err := FilterResources(filterSample(), nil, pathrules.MatcherOptions{})
	if err != nil {
		t.Fatalf("FilterResources no rules: %v", err)
	}
	if len(all) != len(filterSample()) {
		t.Fatalf("no rules must keep everything, got %d", len(all))
	}

	got, err := FilterResources(filterSample(), includeRules("*.BSP"), pathrules.MatcherOptions{})
	if err != nil {
		t.Fatalf("FilterResources include: %v", err)
	}
	assertPaths(t, got, `maps\e1m1.bsp`, `maps\e1m2.bsp`)

	rules := append(includeRules("maps/**", "*.wav"), excludeRules("e1m2.*")...)
	got, err = FilterResources(filterSample(), rules, pathrules.MatcherOptions{})
	if err != nil {
		t.Fatalf("FilterResources include/exclude: %v", err)
	}
	assertPaths(t, got, `maps\e1m1.bsp`, `sound\misc\menu1.wav`)
}

func TestFilterResourcesInvalidRules(t *testing.T) {
	t.Parallel()

	_, err := FilterResources(filterSample(), []pathrules.Rule{{Action: pathrules.ActionUnknown, Pattern: "*.bsp"}}, pathrules.MatcherOptions{})
	if !errors.Is(err, ErrInvalidRules) {
		t.Fatalf("expected ErrInvalidRules, got %v", err)
	}
}

func TestFilterByPrefix(t *testing.T) {
	t.Parallel()

	assertPaths(t, FilterByPrefix(filterSample(), "MAPS"), `maps\e1m1.bsp`, `maps\e1m2.bsp`)
	assertPaths(t, FilterByPrefix(filterSample(), `sound\misc\`), `sound\misc\menu1.wav`)
	assertPaths(t, FilterByPrefix(filterSample(), "progs.dat"), "progs.dat")

	if got := FilterByPrefix(filterSample(), ""); len(got) != len(filterSample()) {
		t.Fatalf("empty prefix must keep everything, got %d", len(got))
	}
}

func TestFilterBySize(t *testing.T) {
	t.Parallel()

	assertPaths(t, FilterBySize(filterSample(), 12), `maps\e1m1.bsp`, `maps\e1m2.bsp`, `sound\misc\menu1.wav`)

	if got := FilterBySize(filterSample(), 0); len(got) != len(filterSample()) {
		t.Fatalf("zero size must keep everything, got %d", len(got))
	}
}

func TestExtractHonorsRules(t *testing.T) {
	t.Parallel()

	a := openFake(t, buildFake(
		fakeEntry{name: `maps\e1m1.bsp`, data: []byte("bsp")},
		fakeEntry{name: "progs.dat", data: []byte("progs")},
	), "x.fake")

	result, err := a.Extract(t.Context(), t.TempDir(), ExtractOptions{Rules: includeRules("*.bsp")})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(result.Entries) != 1 || result.Entries[0].Path != `maps\e1m1.bsp` {
		t.Fatalf("entries=%+v, want only maps\\e1m1.bsp", result.Entries)
	}
}
