package hazard

import (
	"encoding/json"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve_PriorityWins(t *testing.T) {
	// Priorities 1 (fire), 3 (wet, stairs) and 5 (chair) all match
	got := Resolve("A fire near a chair on wet stairs.")

	assert.True(t, got.Detected)
	assert.Equal(t, 1, got.Priority)
	assert.Equal(t, "fire", got.MatchedKeyword)
	assert.Equal(t, "fire detected — move away immediately", got.Label)
	assert.Equal(t, "🔥", got.Glyph)
}

func TestResolve_LowestPriorityRegardlessOfTextOrder(t *testing.T) {
	// The priority-1 keyword appears last in the text
	got := Resolve("A chair and a table next to a gun.")

	assert.Equal(t, 1, got.Priority)
	assert.Equal(t, "gun", got.MatchedKeyword)
}

func TestResolve_EqualPriorityFirstRegisteredWins(t *testing.T) {
	tests := []struct {
		caption string
		want    string
	}{
		// "dog" appears first in the text, "door" is registered first
		{"A dog next to a door.", "door"},
		// "ladder" appears first in the text, "stair" is registered first
		{"A ladder near the stairs.", "stair"},
		// "smoke" appears first in the text, "burning" is registered first
		{"Smoke rising over a burning building.", "burning"},
		{"A man riding a motorcycle on a road.", "motorcycle"},
	}

	for _, tt := range tests {
		t.Run(tt.caption, func(t *testing.T) {
			assert.Equal(t, tt.want, Resolve(tt.caption).MatchedKeyword)
		})
	}
}

func TestResolve_NoMatch(t *testing.T) {
	for _, caption := range []string{
		"A bowl of fruit.",
		"A puppy sleeping.",
		"A sunset over the ocean.",
		"A green field with flowers.",
	} {
		t.Run(caption, func(t *testing.T) {
			got := Resolve(caption)
			assert.Equal(t, None(), got)
			assert.False(t, got.Detected)
			assert.Equal(t, NoHazardPriority, got.Priority)
			assert.Empty(t, got.Label)
			assert.Empty(t, got.Glyph)
			assert.Empty(t, got.MatchedKeyword)
		})
	}
}

func TestResolve_EmptyCaption(t *testing.T) {
	assert.Equal(t, Verdict{Priority: 99}, Resolve(""))
}

func TestResolve_CaseInsensitive(t *testing.T) {
	got := Resolve("FLOODED STREET")
	// "flood" is registered before "flooded"
	assert.Equal(t, "flood", got.MatchedKeyword)
	assert.Equal(t, 1, got.Priority)
}

// Substring matching is the existing behaviour: keywords match inside longer
// words. These cases pin it so a switch to whole-word matching is deliberate.
func TestResolve_SubstringMatchingIsPreserved(t *testing.T) {
	tests := []struct {
		caption  string
		keyword  string
		priority int
	}{
		{"A cat on a carpet.", "car", 2},
		{"An office with a desk.", "ice", 3},
		{"People at a business meeting.", "bus", 2},
	}

	for _, tt := range tests {
		t.Run(tt.caption, func(t *testing.T) {
			got := Resolve(tt.caption)
			assert.Equal(t, tt.keyword, got.MatchedKeyword)
			assert.Equal(t, tt.priority, got.Priority)
		})
	}
}

func TestResolve_Deterministic(t *testing.T) {
	caption := "A person with a dog crossing a wet street near a bench."
	first := Resolve(caption)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				assert.Equal(t, first, Resolve(caption))
			}
		}()
	}
	wg.Wait()
}

func TestResolver_CustomTable(t *testing.T) {
	r, err := NewResolver([]Rule{
		{"beta", 2, "beta label", "b"},
		{"alpha", 2, "alpha label", "a"},
		{"gamma", 1, "gamma label", "g"},
	})
	require.NoError(t, err)

	assert.Equal(t, "beta", r.Resolve("alpha beta").MatchedKeyword)
	// A strictly lower priority registered last still wins
	assert.Equal(t, "gamma", r.Resolve("alpha beta gamma").MatchedKeyword)
}

func TestNewResolver_Validation(t *testing.T) {
	tests := []struct {
		name string
		rule Rule
	}{
		{"empty keyword", Rule{"", 1, "x", "x"}},
		{"upper case keyword", Rule{"Fire", 1, "x", "x"}},
		{"priority too low", Rule{"fire", 0, "x", "x"}},
		{"priority too high", Rule{"fire", 6, "x", "x"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewResolver([]Rule{tt.rule})
			assert.Error(t, err)
		})
	}
}

func TestResolver_RulesReturnsCopy(t *testing.T) {
	table := Default().Rules()
	require.NotEmpty(t, table)
	assert.Equal(t, "fire", table[0].Keyword)

	table[0].Keyword = "mutated"
	assert.Equal(t, "fire", Default().Rules()[0].Keyword)
	assert.Equal(t, "fire", Resolve("fire").MatchedKeyword)
}

func TestBuiltinTable(t *testing.T) {
	seen := make(map[string]bool)
	lastPriority := MostUrgent
	for i, r := range Default().Rules() {
		assert.False(t, seen[r.Keyword], "duplicate keyword %q", r.Keyword)
		seen[r.Keyword] = true
		assert.Equal(t, strings.ToLower(r.Keyword), r.Keyword)
		assert.NotEmpty(t, r.Label, "rule %d", i)
		assert.NotEmpty(t, r.Glyph, "rule %d", i)
		// The built-in table is grouped by priority
		assert.GreaterOrEqual(t, r.Priority, lastPriority, "rule %d (%s)", i, r.Keyword)
		lastPriority = r.Priority
	}
}

func TestVerdict_JSONFieldNames(t *testing.T) {
	data, err := json.Marshal(Resolve("a wet floor"))
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(data, &fields))
	assert.Equal(t, map[string]any{
		"hazard_detected": true,
		"hazard_type":     "wet surface — slip risk",
		"hazard_emoji":    "💧",
		"hazard_priority": float64(3),
		"matched_keyword": "wet",
	}, fields)
}
