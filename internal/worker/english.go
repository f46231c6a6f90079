package worker

import (
	"regexp"
	"strings"
)

// functionWords is a fixed list of common English function words. A
// transcript counting enough isolated hits, with a low share of
// non-ASCII characters, passes the English gate.
var functionWords = []string{
	"the", "a", "an", "is", "are", "was", "were", "be", "to", "of",
	"and", "in", "that", "it", "for", "on", "with", "as", "this", "at",
}

var functionWordPatterns = func() []*regexp.Regexp {
	patterns := make([]*regexp.Regexp, len(functionWords))
	for i, w := range functionWords {
		patterns[i] = regexp.MustCompile(`\b` + w + `\b`)
	}
	return patterns
}()

// looksEnglish applies the heuristic gate: at least minFunctionWords
// occurrences of function words as isolated tokens, and a non-ASCII
// character ratio below maxNonASCIIRatio. Thresholds are empirical and
// configurable.
func looksEnglish(text string, minFunctionWords int, maxNonASCIIRatio float64) bool {
	if text == "" {
		return false
	}

	lower := strings.ToLower(text)
	hits := 0
	for _, p := range functionWordPatterns {
		hits += len(p.FindAllStringIndex(lower, -1))
	}
	if hits < minFunctionWords {
		return false
	}

	nonASCII := 0
	total := 0
	for _, r := range text {
		total++
		if r > 127 {
			nonASCII++
		}
	}
	if total == 0 {
		return false
	}

	return float64(nonASCII)/float64(total) < maxNonASCIIRatio
}
