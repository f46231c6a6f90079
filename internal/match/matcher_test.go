package match

import (
	"testing"

	"github.com/wordclip/wordclip/internal/captions"
	"github.com/wordclip/wordclip/internal/query"
)

func segs(texts ...string) []captions.Cue {
	out := make([]captions.Cue, len(texts))
	for i, t := range texts {
		out[i] = captions.Cue{Text: t, Start: float64(i) * 2, Duration: 2}
	}
	return out
}

func TestVariations(t *testing.T) {
	cases := map[string][]string{
		"make":   {"make", "maked", "making"},
		"act":    {"act", "action", "acted", "acting"},
		"action": {"action", "act", "acting"},
		"jump":   {"jump", "jumps", "jumped", "jumping"},
	}
	for token, want := range cases {
		got := Variations(token)
		set := make(map[string]bool, len(got))
		for _, v := range got {
			set[v] = true
		}
		for _, w := range want {
			if !set[w] {
				t.Errorf("Variations(%q) missing %q (got %v)", token, w, got)
			}
		}
	}
}

func TestContainsVariationWordBoundary(t *testing.T) {
	if !ContainsVariation("he was jumping over it", "jump") {
		t.Error("expected 'jumping' to match variation of 'jump'")
	}
	if ContainsVariation("the banjumping contest", "jump") {
		t.Error("mid-word occurrence must not match")
	}
	if !ContainsVariation("Programming is fun", "programming") {
		t.Error("matching must be case-insensitive")
	}
}

func TestFindPhraseExactWord(t *testing.T) {
	s := segs("intro text here", "python is a language", "closing words")
	c := query.Canonical{Text: "python", Kind: query.KindWord}
	if got := FindPhrase(s, c); got != 1 {
		t.Errorf("expected index 1, got %d", got)
	}
}

func TestFindPhraseWordBoundaryBeforeLoose(t *testing.T) {
	// "pythonic" contains "python" as substring but pass 1 requires a
	// word boundary; pass 3 then accepts the substring hit.
	s := segs("a pythonic approach", "nothing here")
	c := query.Canonical{Text: "python", Kind: query.KindWord}
	if got := FindPhrase(s, c); got != 0 {
		t.Errorf("expected loose match at 0, got %d", got)
	}
}

func TestFindPhraseExactSentence(t *testing.T) {
	s := segs("first", "well python is great you know", "last")
	c := query.Canonical{Text: "python is great", Kind: query.KindSentence}
	if got := FindPhrase(s, c); got != 1 {
		t.Errorf("expected index 1, got %d", got)
	}
}

func TestFindPhraseFuzzySentenceAcrossSegments(t *testing.T) {
	s := segs("so we were jumping", "over the old fence", "that afternoon")
	c := query.Canonical{Text: "jump over fence", Kind: query.KindSentence}
	if got := FindPhrase(s, c); got != 0 {
		t.Errorf("expected fuzzy match at 0, got %d", got)
	}
}

func TestFindPhraseNoMatch(t *testing.T) {
	s := segs("nothing", "relevant", "here")
	c := query.Canonical{Text: "zebra", Kind: query.KindWord}
	if got := FindPhrase(s, c); got != -1 {
		t.Errorf("expected -1, got %d", got)
	}
}

func TestExpandToSentence(t *testing.T) {
	s := segs(
		"First sentence ends here.", // 0
		"The next one",              // 1
		"contains python today",     // 2
		"and finishes here.",        // 3
		"Another sentence.",         // 4
	)

	got := ExpandToSentence(s, 2)
	if got.StartIndex != 1 || got.EndIndex != 3 {
		t.Fatalf("expected [1,3], got [%d,%d]", got.StartIndex, got.EndIndex)
	}
	if got.Caption != "The next one contains python today and finishes here." {
		t.Errorf("unexpected caption: %q", got.Caption)
	}
	if got.StartTime != s[1].Start {
		t.Errorf("unexpected start time: %f", got.StartTime)
	}
	wantEnd := s[3].End() + 2
	if got.EndTime != wantEnd {
		t.Errorf("expected end time %f, got %f", wantEnd, got.EndTime)
	}
}

func TestExpandToSentenceNoPunctuation(t *testing.T) {
	s := segs("no punctuation", "anywhere in", "this transcript")
	got := ExpandToSentence(s, 1)
	if got.StartIndex != 0 || got.EndIndex != 2 {
		t.Errorf("expected full range [0,2], got [%d,%d]", got.StartIndex, got.EndIndex)
	}
}

func TestBoundaryContainsMatchedSegment(t *testing.T) {
	s := segs(
		"Sentence one.",
		"middle part",
		"with target word",
		"ending now.",
	)
	for m := range s {
		got := ExpandToSentence(s, m)
		if got.StartTime > s[m].Start || got.EndTime < s[m].End() {
			t.Errorf("m=%d: boundary [%f,%f] does not contain segment [%f,%f]",
				m, got.StartTime, got.EndTime, s[m].Start, s[m].End())
		}
		if got.StartIndex > m || got.EndIndex < m {
			t.Errorf("m=%d: index range [%d,%d] does not contain m", m, got.StartIndex, got.EndIndex)
		}
	}
}

func TestOverlappingCues(t *testing.T) {
	s := segs("a", "b", "c", "d") // each 2s long at 0,2,4,6
	got := OverlappingCues(s, 2, 6)
	if len(got) != 2 {
		t.Fatalf("expected 2 overlapping cues, got %d", len(got))
	}
	if got[0].Text != "b" || got[1].Text != "c" {
		t.Errorf("unexpected cues: %+v", got)
	}
}
