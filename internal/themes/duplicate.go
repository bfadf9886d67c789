// Package themes decides whether proposed article themes repeat titles a tenant already published.
package themes

import (
	"strings"

	"mediacms/internal/core"
)

// DefaultThreshold is the similarity above which a candidate counts as a duplicate.
const DefaultThreshold = 0.7

// Filter classifies candidate themes against existing titles.
type Filter struct {
	Threshold float64
}

// NewFilter returns a Filter using DefaultThreshold.
func NewFilter() Filter {
	return Filter{Threshold: DefaultThreshold}
}

// Check scores every candidate against existing and reports the best match.
// A candidate is a duplicate when its best score is strictly greater than the threshold.
func (f Filter) Check(candidates, existing []string) []core.ThemeCandidate {
	normalizedExisting := make([]string, len(existing))
	for i, title := range existing {
		normalizedExisting[i] = Normalize(title)
	}

	results := make([]core.ThemeCandidate, 0, len(candidates))
	for _, candidate := range candidates {
		normalized := Normalize(candidate)

		best := 0.0
		bestTitle := ""
		for i, title := range normalizedExisting {
			score := normalizedSimilarity(normalized, title)
			if score > best {
				best = score
				bestTitle = existing[i]
			}
		}

		result := core.ThemeCandidate{
			Theme:       candidate,
			Similarity:  best,
			IsDuplicate: best > f.Threshold,
		}
		if result.IsDuplicate {
			result.MostSimilarArticle = bestTitle
		}
		results = append(results, result)
	}
	return results
}

// Check runs the default filter.
func Check(candidates, existing []string) []core.ThemeCandidate {
	return NewFilter().Check(candidates, existing)
}

// Unique returns the themes that were not flagged, in input order.
func Unique(results []core.ThemeCandidate) []string {
	var unique []string
	for _, r := range results {
		if !r.IsDuplicate {
			unique = append(unique, r.Theme)
		}
	}
	return unique
}

// Rejected returns the themes that were flagged, in input order.
func Rejected(results []core.ThemeCandidate) []string {
	var rejected []string
	for _, r := range results {
		if r.IsDuplicate {
			rejected = append(rejected, r.Theme)
		}
	}
	return rejected
}

// Normalize lowercases s and collapses runs of whitespace into single spaces.
func Normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// Similarity scores two titles in [0,1].
func Similarity(a, b string) float64 {
	return normalizedSimilarity(Normalize(a), Normalize(b))
}

func normalizedSimilarity(a, b string) float64 {
	if a == b {
		if a == "" {
			return 0
		}
		return 1.0
	}
	if a == "" || b == "" {
		return 0
	}

	ra, rb := []rune(a), []rune(b)
	longest := len(ra)
	if len(rb) > longest {
		longest = len(rb)
	}
	edit := 1 - float64(levenshtein(ra, rb))/float64(longest)

	return (Jaccard(a, b) + edit) / 2
}

// Jaccard returns |A∩B| / |A∪B| over the whitespace-separated word sets of a and b.
func Jaccard(a, b string) float64 {
	setA := wordSet(a)
	setB := wordSet(b)

	union := len(setA)
	intersection := 0
	for w := range setB {
		if _, ok := setA[w]; ok {
			intersection++
		} else {
			union++
		}
	}
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func wordSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range strings.Fields(s) {
		set[w] = struct{}{}
	}
	return set
}

// Levenshtein returns the single-rune insert/delete/substitute distance between a and b.
func Levenshtein(a, b string) int {
	return levenshtein([]rune(a), []rune(b))
}

func levenshtein(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}
