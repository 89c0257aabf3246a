package analyze

import "strings"

// DifferenceThreshold is the similarity below which two outputs are
// considered different.
const DifferenceThreshold = 0.95

// Comparison is the outcome of comparing two outputs.
type Comparison struct {
	IsDifferent bool
	Similarity  float64
}

// CompareOutputs computes a line-multiset Jaccard similarity between two
// outputs, tolerating reordering and trivial whitespace noise. Identical
// inputs score 1.0; disjoint inputs score 0.0.
func CompareOutputs(a, b string) Comparison {
	if a == b {
		return Comparison{IsDifferent: false, Similarity: 1.0}
	}

	linesA := lineCounts(a)
	linesB := lineCounts(b)
	if len(linesA) == 0 && len(linesB) == 0 {
		return Comparison{IsDifferent: false, Similarity: 1.0}
	}

	intersection := 0
	union := 0
	for line, countA := range linesA {
		countB := linesB[line]
		intersection += min(countA, countB)
		union += max(countA, countB)
	}
	for line, countB := range linesB {
		if _, seen := linesA[line]; !seen {
			union += countB
		}
	}

	similarity := 0.0
	if union > 0 {
		similarity = float64(intersection) / float64(union)
	}
	return Comparison{
		IsDifferent: similarity < DifferenceThreshold,
		Similarity:  similarity,
	}
}

func lineCounts(s string) map[string]int {
	counts := make(map[string]int)
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		counts[line]++
	}
	return counts
}
