package query

import (
	"errors"
	"strings"
	"unicode/utf8"
)

// maxQueryLength bounds the canonical form of a search query.
const maxQueryLength = 200

// Kind classifies a canonical query.
type Kind string

const (
	// KindWord is a single-word query.
	KindWord Kind = "word"
	// KindSentence is a multi-word or punctuated query.
	KindSentence Kind = "sentence"
)

// ErrInvalidInput is returned when a raw query is empty or too long.
var ErrInvalidInput = errors.New("query must be non-empty and at most 200 characters")

// Canonical is the normalized form of a user query. It is the unique
// input to fingerprinting: equal canonical forms share a fingerprint.
type Canonical struct {
	Text string
	Kind Kind
}

// Canonicalize trims and lowercases a raw query and classifies it.
// A query is a sentence if it contains whitespace or terminal punctuation.
func Canonicalize(raw string) (Canonical, error) {
	text := strings.ToLower(strings.TrimSpace(raw))
	if text == "" || utf8.RuneCountInString(text) > maxQueryLength {
		return Canonical{}, ErrInvalidInput
	}

	kind := KindWord
	if strings.ContainsAny(text, " \t\n\r.,!?;:") {
		kind = KindSentence
	}

	return Canonical{Text: text, Kind: kind}, nil
}
