package config

import (
	"fmt"
	"strings"

	"hone/internal/types"
)

// Review destinations for watch events.
const (
	ReviewDestFile    = "file"
	ReviewDestComment = "comment-on-item"
	ReviewDestNewItem = "new-item"
	ReviewDestNone    = "none"
)

// ReviewDests lists all valid review destinations.
var ReviewDests = []string{ReviewDestFile, ReviewDestComment, ReviewDestNewItem, ReviewDestNone}

// ValidReviewDest returns whether d is a recognized review destination.
func ValidReviewDest(d string) bool {
	for _, v := range ReviewDests {
		if d == v {
			return true
		}
	}
	return false
}

// RoutingRule maps insights to a playbook section. A rule matches when the
// insight's runner equals one of Runners, or any meta tag contains one of
// Tags as a substring. A rule with neither matcher is a catch-all.
type RoutingRule struct {
	Runners []string `yaml:"runners,omitempty"`
	Tags    []string `yaml:"tags,omitempty"`
	Section string   `yaml:"section"`
}

// Matches reports whether the rule applies to an insight with the given
// source runner and meta tags. Matching is case-insensitive.
func (r RoutingRule) Matches(runner string, tags []string) bool {
	if len(r.Runners) == 0 && len(r.Tags) == 0 {
		return true
	}
	runner = strings.ToLower(runner)
	for _, want := range r.Runners {
		if runner == strings.ToLower(want) {
			return true
		}
	}
	for _, tag := range tags {
		tag = strings.ToLower(tag)
		for _, want := range r.Tags {
			if strings.Contains(tag, strings.ToLower(want)) {
				return true
			}
		}
	}
	return false
}

// DefaultRoutingRules returns the built-in routing table. Order matters:
// first match wins, and the final rule is the catch-all.
func DefaultRoutingRules() []RoutingRule {
	return []RoutingRule{
		{Runners: []string{"tsc"}, Tags: []string{"type"}, Section: "typescript/patterns"},
		{Runners: []string{"vitest"}, Tags: []string{"test"}, Section: "build/test/patterns"},
		{Tags: []string{"discovery", "meta-pattern"}, Section: "architecture/patterns"},
		{Tags: []string{"discovered-from", "dependency"}, Section: "dependency/patterns"},
		{Section: "build/test/patterns"},
	}
}

// ValidateRouting checks every rule targets a well-formed section and that a
// catch-all exists so routing is total.
func ValidateRouting(rules []RoutingRule) error {
	if len(rules) == 0 {
		return fmt.Errorf("routing table is empty")
	}
	for i, r := range rules {
		if r.Section == "" {
			return fmt.Errorf("routing rule %d: section is required", i)
		}
		if !types.ValidSection(r.Section) {
			return fmt.Errorf("routing rule %d: invalid section %q", i, r.Section)
		}
	}
	last := rules[len(rules)-1]
	if len(last.Runners) != 0 || len(last.Tags) != 0 {
		return fmt.Errorf("routing table must end with a catch-all rule")
	}
	return nil
}
