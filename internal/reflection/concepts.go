package reflection

import (
	"sort"
	"strings"

	"github.com/scrypster/arbor/pkg/types"
)

// minWordLength and minOccurrences mirror analyze_content_patterns in
// reflection_engine.rs: words longer than 4 characters appearing in at
// least 2 memories are candidate dominant concepts.
const (
	minWordLength  = 4
	minOccurrences = 2
	maxConcepts    = 5
)

// extractDominantConcepts does frequency-based keyword extraction across a
// cluster's content — a stand-in for the NLP/topic modeling the original
// documents as future work ("would use NLP/topic modeling in production").
func extractDominantConcepts(members []*types.Memory) []string {
	counts := make(map[string]int)
	for _, m := range members {
		seen := make(map[string]bool)
		for _, word := range strings.Fields(strings.ToLower(m.Content)) {
			word = strings.Trim(word, ".,!?;:\"'()[]{}")
			if len(word) <= minWordLength || seen[word] {
				continue
			}
			seen[word] = true
			counts[word]++
		}
	}

	type wc struct {
		word  string
		count int
	}
	var candidates []wc
	for w, c := range counts {
		if c >= minOccurrences {
			candidates = append(candidates, wc{w, c})
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].count != candidates[j].count {
			return candidates[i].count > candidates[j].count
		}
		return candidates[i].word < candidates[j].word
	})

	n := maxConcepts
	if len(candidates) < n {
		n = len(candidates)
	}
	out := make([]string, n)
	for i := 0; i < n; i++ {
		out[i] = candidates[i].word
	}
	return out
}

// patternFrequency returns the (word, count) pairs behind the cluster's
// dominant pattern, used by Pattern-type derivation which additionally
// needs the raw frequency rather than just the ranked concept list.
func patternFrequency(members []*types.Memory) (word string, count int) {
	counts := make(map[string]int)
	for _, m := range members {
		seen := make(map[string]bool)
		for _, w := range strings.Fields(strings.ToLower(m.Content)) {
			w = strings.Trim(w, ".,!?;:\"'()[]{}")
			if len(w) <= minWordLength || seen[w] {
				continue
			}
			seen[w] = true
			counts[w]++
		}
	}
	for w, c := range counts {
		if c > count || (c == count && w < word) {
			word, count = w, c
		}
	}
	return word, count
}
