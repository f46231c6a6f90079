package query

import (
	"strings"
	"testing"
)

func TestCanonicalizeWord(t *testing.T) {
	c, err := Canonicalize("  Hello ")
	if err != nil {
		t.Fatalf("Canonicalize failed: %v", err)
	}
	if c.Text != "hello" {
		t.Errorf("expected 'hello', got %q", c.Text)
	}
	if c.Kind != KindWord {
		t.Errorf("expected word kind, got %s", c.Kind)
	}
}

func TestCanonicalizeSentence(t *testing.T) {
	cases := []string{"hello world", "hello.", "what?", "a,b", "one:two"}
	for _, raw := range cases {
		c, err := Canonicalize(raw)
		if err != nil {
			t.Fatalf("Canonicalize(%q) failed: %v", raw, err)
		}
		if c.Kind != KindSentence {
			t.Errorf("Canonicalize(%q): expected sentence kind, got %s", raw, c.Kind)
		}
	}
}

func TestCanonicalizeRejectsEmpty(t *testing.T) {
	for _, raw := range []string{"", "   ", "\t\n"} {
		if _, err := Canonicalize(raw); err == nil {
			t.Errorf("Canonicalize(%q): expected error", raw)
		}
	}
}

func TestCanonicalizeRejectsTooLong(t *testing.T) {
	if _, err := Canonicalize(strings.Repeat("a", 201)); err == nil {
		t.Error("expected error for 201-character query")
	}
	if _, err := Canonicalize(strings.Repeat("a", 200)); err != nil {
		t.Errorf("200-character query should be accepted: %v", err)
	}
}

func TestCanonicalizeIdempotent(t *testing.T) {
	inputs := []string{"  Hello ", "HELLO WORLD.", "Python is great!", "word"}
	for _, raw := range inputs {
		first, err := Canonicalize(raw)
		if err != nil {
			t.Fatalf("Canonicalize(%q) failed: %v", raw, err)
		}
		second, err := Canonicalize(first.Text)
		if err != nil {
			t.Fatalf("Canonicalize(%q) failed: %v", first.Text, err)
		}
		if first != second {
			t.Errorf("canonicalization not idempotent for %q: %+v != %+v", raw, first, second)
		}
	}
}
