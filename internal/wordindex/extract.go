package wordindex

import "strings"

const punctuation = ".,!?;:'\"()[]{}—–-"

// ExtractWords pulls the distinct indexable words out of a caption:
// lowercase, punctuation stripped, order of first appearance preserved.
func ExtractWords(caption string) []string {
	cleaned := strings.ToLower(caption)
	cleaned = strings.Map(func(r rune) rune {
		if strings.ContainsRune(punctuation, r) {
			return ' '
		}
		return r
	}, cleaned)

	seen := make(map[string]struct{})
	var words []string
	for _, w := range strings.Fields(cleaned) {
		if _, ok := seen[w]; ok {
			continue
		}
		seen[w] = struct{}{}
		words = append(words, w)
	}
	return words
}
