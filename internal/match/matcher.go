package match

import (
	"regexp"
	"strings"

	"github.com/wordclip/wordclip/internal/captions"
	"github.com/wordclip/wordclip/internal/query"
)

// fuzzyWindow is how many consecutive segments are joined when looking
// for a sentence whose tokens are spread across cue boundaries.
const fuzzyWindow = 3

// FindPhrase locates the first caption segment containing the canonical
// query. Returns -1 when no segment matches.
//
// Three passes, cheapest first:
//  1. exact: word-boundary regex for words, substring for sentences
//  2. fuzzy (sentences): every token present, with variations, in a
//     3-segment window
//  3. loose (words): plain substring containment
func FindPhrase(segments []captions.Cue, canonical query.Canonical) int {
	needle := strings.ToLower(canonical.Text)

	// Pass 1: exact.
	if canonical.Kind == query.KindWord {
		exact := regexp.MustCompile(`\b` + regexp.QuoteMeta(needle) + `\b`)
		for i, seg := range segments {
			if exact.MatchString(strings.ToLower(seg.Text)) {
				return i
			}
		}
	} else {
		for i, seg := range segments {
			if strings.Contains(strings.ToLower(seg.Text), needle) {
				return i
			}
		}
	}

	// Pass 2: fuzzy sentence match across adjacent segments.
	if canonical.Kind == query.KindSentence {
		tokens := PhraseTokens(needle)
		for i := range segments {
			end := i + fuzzyWindow
			if end > len(segments) {
				end = len(segments)
			}
			var joined strings.Builder
			for _, seg := range segments[i:end] {
				joined.WriteString(strings.ToLower(seg.Text))
				joined.WriteString(" ")
			}
			window := joined.String()

			all := true
			for _, tok := range tokens {
				if !ContainsVariation(window, tok) {
					all = false
					break
				}
			}
			if all {
				return i
			}
		}
	}

	// Pass 3: loose word containment.
	if canonical.Kind == query.KindWord {
		for i, seg := range segments {
			if strings.Contains(strings.ToLower(seg.Text), needle) {
				return i
			}
		}
	}

	return -1
}
