package wordindex

import (
	"reflect"
	"testing"
)

func TestExtractWords(t *testing.T) {
	got := ExtractWords("Python is a high-level programming language.")
	want := []string{"python", "is", "a", "high", "level", "programming", "language"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ExtractWords mismatch:\n got %v\nwant %v", got, want)
	}
}

func TestExtractWordsDeduplicates(t *testing.T) {
	got := ExtractWords("the cat and the dog and the bird")
	want := []string{"the", "cat", "and", "dog", "bird"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ExtractWords mismatch:\n got %v\nwant %v", got, want)
	}
}

func TestExtractWordsPunctuation(t *testing.T) {
	got := ExtractWords(`"Hello," she said (quietly) — [twice]!`)
	want := []string{"hello", "she", "said", "quietly", "twice"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ExtractWords mismatch:\n got %v\nwant %v", got, want)
	}
}

func TestExtractWordsEmpty(t *testing.T) {
	if got := ExtractWords("...!!!"); len(got) != 0 {
		t.Errorf("expected no words, got %v", got)
	}
}
