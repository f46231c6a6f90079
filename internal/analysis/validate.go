package analysis

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	maxSentenceLength = 1000
	maxTargetWordLen  = 100
	maxContextLength  = 500
)

// Validate checks the request's field presence, lengths, and language
// codes. A failure maps to a 400 at the HTTP surface.
func (r Request) Validate() error {
	if strings.TrimSpace(r.Sentence) == "" {
		return fmt.Errorf("sentence is required")
	}
	if utf8.RuneCountInString(r.Sentence) > maxSentenceLength {
		return fmt.Errorf("sentence exceeds %d characters", maxSentenceLength)
	}
	if strings.TrimSpace(r.TargetWord) == "" {
		return fmt.Errorf("targetWord is required")
	}
	if utf8.RuneCountInString(r.TargetWord) > maxTargetWordLen {
		return fmt.Errorf("targetWord exceeds %d characters", maxTargetWordLen)
	}
	if utf8.RuneCountInString(r.ContextBefore) > maxContextLength {
		return fmt.Errorf("contextBefore exceeds %d characters", maxContextLength)
	}
	if utf8.RuneCountInString(r.ContextAfter) > maxContextLength {
		return fmt.Errorf("contextAfter exceeds %d characters", maxContextLength)
	}
	if !IsAllowedLanguage(r.TargetLanguage) {
		return fmt.Errorf("unsupported targetLanguage %q", r.TargetLanguage)
	}
	if !IsAllowedLanguage(r.NativeLanguage) {
		return fmt.Errorf("unsupported nativeLanguage %q", r.NativeLanguage)
	}
	return nil
}
