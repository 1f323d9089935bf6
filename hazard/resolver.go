// Package hazard maps a scene caption to the single most urgent safety
// warning found in it. Detection is a deterministic keyword scan over the
// caption text, not a vision model.
package hazard

import (
	"fmt"
	"strings"
)

const (
	// MostUrgent is the priority of life-critical hazards.
	MostUrgent = 1
	// LeastUrgent is the priority of trip hazards.
	LeastUrgent = 5
	// NoHazardPriority ranks below every real priority.
	NoHazardPriority = 99
)

// Rule binds a keyword to a priority, a spoken label and a display glyph.
type Rule struct {
	Keyword  string `json:"keyword"`
	Priority int    `json:"priority"`
	Label    string `json:"label"`
	Glyph    string `json:"glyph"`
}

// Verdict is the outcome of one scan. Field names on the wire are consumed by
// existing clients and must not change.
type Verdict struct {
	Detected       bool   `json:"hazard_detected"`
	Label          string `json:"hazard_type"`
	Glyph          string `json:"hazard_emoji"`
	Priority       int    `json:"hazard_priority"`
	MatchedKeyword string `json:"matched_keyword"`
}

// None returns the verdict for a caption with no hazard.
func None() Verdict {
	return Verdict{Priority: NoHazardPriority}
}

// Resolver scans captions against an immutable rule table.
// It holds no mutable state and is safe for concurrent use.
type Resolver struct {
	rules []Rule
}

// NewResolver builds a resolver over a copy of rules. Keywords must be
// non-empty and lower case; priorities must be within MostUrgent..LeastUrgent.
func NewResolver(rules []Rule) (*Resolver, error) {
	table := make([]Rule, len(rules))
	for i, r := range rules {
		if r.Keyword == "" {
			return nil, fmt.Errorf("rule %d: empty keyword", i)
		}
		if r.Keyword != strings.ToLower(r.Keyword) {
			return nil, fmt.Errorf("rule %d: keyword %q must be lower case", i, r.Keyword)
		}
		if r.Priority < MostUrgent || r.Priority > LeastUrgent {
			return nil, fmt.Errorf("rule %d (%s): priority %d out of range", i, r.Keyword, r.Priority)
		}
		table[i] = r
	}
	return &Resolver{rules: table}, nil
}

// Resolve returns the lowest-numbered priority among rules whose keyword is a
// substring of the lower-cased caption. Matching is substring containment, so
// "port" matches inside "important". Every rule is checked; a later rule only
// replaces the current best when its priority is strictly lower, so at equal
// priority the earliest registered rule wins regardless of word order in the
// caption.
func (r *Resolver) Resolve(caption string) Verdict {
	best := None()
	if caption == "" {
		return best
	}

	text := strings.ToLower(caption)
	for _, rule := range r.rules {
		if strings.Contains(text, rule.Keyword) && rule.Priority < best.Priority {
			best = Verdict{
				Detected:       true,
				Label:          rule.Label,
				Glyph:          rule.Glyph,
				Priority:       rule.Priority,
				MatchedKeyword: rule.Keyword,
			}
		}
	}
	return best
}

// Rules returns a copy of the table in registration order.
func (r *Resolver) Rules() []Rule {
	out := make([]Rule, len(r.rules))
	copy(out, r.rules)
	return out
}

var defaultResolver = mustNewResolver(rules)

func mustNewResolver(rules []Rule) *Resolver {
	r, err := NewResolver(rules)
	if err != nil {
		panic(err)
	}
	return r
}

// Default returns the resolver over the built-in table.
func Default() *Resolver {
	return defaultResolver
}

// Resolve scans caption against the built-in table.
func Resolve(caption string) Verdict {
	return defaultResolver.Resolve(caption)
}
