package analysis

import (
	"strings"
	"testing"
)

const sampleJSON = `{
	"fullTranslation": "The cat sleeps.",
	"literalTranslation": "cat sleep does",
	"grammarAnalysis": "Simple present tense.",
	"breakdown": [{"word": "neko", "translation": "cat"}],
	"idioms": [],
	"difficultyNotes": "Beginner friendly."
}`

func TestParseResultPlainJSON(t *testing.T) {
	r, err := ParseResult(sampleJSON)
	if err != nil {
		t.Fatalf("ParseResult failed: %v", err)
	}
	if r.FullTranslation != "The cat sleeps." {
		t.Errorf("unexpected fullTranslation: %q", r.FullTranslation)
	}
	if len(r.Breakdown) != 1 || r.Breakdown[0].Word != "neko" {
		t.Errorf("unexpected breakdown: %+v", r.Breakdown)
	}
	if r.DifficultyNotes != "Beginner friendly." {
		t.Errorf("unexpected difficultyNotes: %q", r.DifficultyNotes)
	}
}

func TestParseResultStripsCodeFence(t *testing.T) {
	for _, fenced := range []string{
		"```json\n" + sampleJSON + "\n```",
		"```\n" + sampleJSON + "\n```",
		"  ```json\n" + sampleJSON + "\n```  ",
	} {
		r, err := ParseResult(fenced)
		if err != nil {
			t.Fatalf("ParseResult failed on fenced input: %v", err)
		}
		if r.FullTranslation != "The cat sleeps." {
			t.Errorf("unexpected fullTranslation: %q", r.FullTranslation)
		}
	}
}

func TestParseResultRejectsGarbage(t *testing.T) {
	if _, err := ParseResult("I could not analyze that sentence."); err == nil {
		t.Error("expected error for non-JSON output")
	}
}

func TestParseResultDefaultsLists(t *testing.T) {
	r, err := ParseResult(`{"fullTranslation": "x"}`)
	if err != nil {
		t.Fatalf("ParseResult failed: %v", err)
	}
	if r.Breakdown == nil || r.Idioms == nil {
		t.Error("missing lists must default to empty, not nil")
	}
}

func TestSynthesizeChunks(t *testing.T) {
	text := strings.Repeat("word ", 100) // 500 chars
	chunks := SynthesizeChunks(text)

	var rebuilt strings.Builder
	for _, c := range chunks {
		if len(c) > 100 {
			t.Errorf("chunk exceeds 100 characters: %d", len(c))
		}
		rebuilt.WriteString(c)
	}
	if rebuilt.String() != text {
		t.Error("chunks do not reassemble to the original text")
	}
}

func TestSynthesizeChunksBreaksAtBoundaries(t *testing.T) {
	text := strings.Repeat("abcde fghij ", 20)
	for _, c := range SynthesizeChunks(text) {
		if len(c) == 100 {
			// A cut exactly at the limit means no boundary was found;
			// with spaces every 6 chars that must not happen.
			t.Errorf("chunk was cut mid-word: %q", c)
		}
	}
}

func TestSynthesizeChunksShortText(t *testing.T) {
	chunks := SynthesizeChunks("short")
	if len(chunks) != 1 || chunks[0] != "short" {
		t.Errorf("unexpected chunks: %v", chunks)
	}
}

func TestValidate(t *testing.T) {
	valid := Request{
		Sentence:       "El gato duerme.",
		TargetWord:     "gato",
		TargetLanguage: "es",
		NativeLanguage: "en",
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid request rejected: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*Request)
	}{
		{"empty sentence", func(r *Request) { r.Sentence = "  " }},
		{"long sentence", func(r *Request) { r.Sentence = strings.Repeat("a", 1001) }},
		{"empty target word", func(r *Request) { r.TargetWord = "" }},
		{"long target word", func(r *Request) { r.TargetWord = strings.Repeat("a", 101) }},
		{"long context", func(r *Request) { r.ContextBefore = strings.Repeat("a", 501) }},
		{"bad target language", func(r *Request) { r.TargetLanguage = "xx" }},
		{"bad native language", func(r *Request) { r.NativeLanguage = "klingon" }},
	}
	for _, tc := range cases {
		r := valid
		tc.mutate(&r)
		if err := r.Validate(); err == nil {
			t.Errorf("%s: expected validation error", tc.name)
		}
	}

	// Chinese locale variants are part of the allowed set.
	r := valid
	r.NativeLanguage = "zh-TW"
	if err := r.Validate(); err != nil {
		t.Errorf("zh-TW should be allowed: %v", err)
	}
}

func TestRequestFingerprintNormalizes(t *testing.T) {
	a := Request{Sentence: "El gato duerme.", TargetWord: "gato", TargetLanguage: "es", NativeLanguage: "en"}
	b := Request{Sentence: "  EL GATO DUERME. ", TargetWord: "GATO", TargetLanguage: "ES", NativeLanguage: "EN"}
	if a.Fingerprint() != b.Fingerprint() {
		t.Error("fingerprint must normalize case and whitespace")
	}

	c := a
	c.ContextBefore = "something"
	if c.Fingerprint() == a.Fingerprint() {
		t.Error("context must contribute to the fingerprint")
	}
}
