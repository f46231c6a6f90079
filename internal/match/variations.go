package match

import (
	"regexp"
	"strings"
)

// Variations returns the set of morphological variants considered
// equivalent to a token when matching transcribed speech. The rules are
// deliberately shallow: transcription already normalizes most noise, and
// a prefix hit at a word boundary is treated as a match.
func Variations(token string) []string {
	token = strings.ToLower(strings.TrimSpace(token))
	if token == "" {
		return nil
	}

	set := map[string]struct{}{token: {}}

	switch {
	case strings.HasSuffix(token, "ion") && len(token) > 4:
		stem := token[:len(token)-3]
		set[stem] = struct{}{}
		set[stem+"ing"] = struct{}{}
	case strings.HasSuffix(token, "e"):
		set[token+"d"] = struct{}{}
		set[token[:len(token)-1]+"ing"] = struct{}{}
	case strings.HasSuffix(token, "t"):
		set[token+"ion"] = struct{}{}
		set[token+"ed"] = struct{}{}
		set[token+"ing"] = struct{}{}
	default:
		set[token+"s"] = struct{}{}
		set[token+"ed"] = struct{}{}
		set[token+"ing"] = struct{}{}
	}

	out := make([]string, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	return out
}

// variationPattern compiles a regex that hits when any variation of the
// token appears as a word prefix at a word boundary.
func variationPattern(token string) *regexp.Regexp {
	variants := Variations(token)
	quoted := make([]string, len(variants))
	for i, v := range variants {
		quoted[i] = regexp.QuoteMeta(v)
	}
	return regexp.MustCompile(`\b(?:` + strings.Join(quoted, "|") + `)\w*\b`)
}

// ContainsVariation reports whether text contains any variation of token
// at a word boundary. Matching is case-insensitive.
func ContainsVariation(text, token string) bool {
	if token == "" {
		return false
	}
	return variationPattern(token).MatchString(strings.ToLower(text))
}

// PhraseTokens splits a canonical phrase into its matchable tokens.
func PhraseTokens(phrase string) []string {
	return strings.Fields(strings.ToLower(strings.TrimSpace(phrase)))
}
