// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/gamepak

package gamepak

import (
	"fmt"
	"strings"

	"github.com/woozymasta/pathrules"
)

// PathMatcher holds compiled include/exclude path rules.
type PathMatcher struct {
	matcher *pathrules.Matcher
}

// NewPathMatcher compiles rules. Rules with empty patterns are dropped;
// when nothing is left the result is nil, which matches nothing.
func NewPathMatcher(rules []pathrules.Rule, opts pathrules.MatcherOptions) (*PathMatcher, error) {
	rules = normalizeRules(rules)
	if len(rules) == 0 {
		return nil, nil
	}

	if opts.DefaultAction == pathrules.ActionUnknown {
		opts.DefaultAction = pathrules.ActionExclude
	}

	matcher, err := pathrules.NewMatcher(rules, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: compile rules: %w", ErrInvalidRules, err)
	}

	return &PathMatcher{matcher: matcher}, nil
}

// normalizeRules normalizes rule patterns and drops empty ones.
func normalizeRules(rules []pathrules.Rule) []pathrules.Rule {
	normalized := make([]pathrules.Rule, 0, len(rules))
	for _, rule := range rules {
		pattern := normalizePathForMatching(rule.Pattern)
		if pattern == "" {
			continue
		}

		normalized = append(normalized, pathrules.Rule{
			Action:  rule.Action,
			Pattern: pattern,
		})
	}

	return normalized
}

// Match reports whether path is included by the rules.
func (m *PathMatcher) Match(path string) bool {
	if m == nil || m.matcher == nil {
		return false
	}

	candidate := NormalizePath(path)
	if candidate == "" {
		return false
	}

	return m.matcher.Included(candidate, false)
}

// FilterResources keeps resources selected by rules; no rules keeps all.
func FilterResources(resources []Resource, rules []pathrules.Rule, opts pathrules.MatcherOptions) ([]Resource, error) {
	if opts == (pathrules.MatcherOptions{}) {
		opts = pathrules.MatcherOptions{CaseInsensitive: true, DefaultAction: pathrules.ActionExclude}
	}

	matcher, err := NewPathMatcher(rules, opts)
	if err != nil {
		return nil, err
	}
	if matcher == nil {
		return resources, nil
	}

	out := make([]Resource, 0, len(resources))
	for _, res := range resources {
		if matcher.Match(res.Path) {
			out = append(out, res)
		}
	}

	return out, nil
}

// FilterByPrefix keeps resources under prefix, or the exact resource it names.
func FilterByPrefix(resources []Resource, prefix string) []Resource {
	prefix = lookupKey(prefix)
	if prefix == "" {
		return resources
	}

	withSlash := prefix + "/"
	out := make([]Resource, 0, len(resources))
	for _, res := range resources {
		key := lookupKey(res.Path)
		if key == prefix || strings.HasPrefix(key, withSlash) {
			out = append(out, res)
		}
	}

	return out
}

// FilterBySize keeps resources whose decoded size is at least minSize.
func FilterBySize(resources []Resource, minSize int64) []Resource {
	if minSize <= 0 {
		return resources
	}

	out := make([]Resource, 0, len(resources))
	for _, res := range resources {
		if res.Size >= minSize {
			out = append(out, res)
		}
	}

	return out
}
