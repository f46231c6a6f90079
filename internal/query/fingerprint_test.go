package query

import "testing"

func TestFingerprintDeterministic(t *testing.T) {
	a := Fingerprint("hello world", "hello", "en", "es", "", "")
	b := Fingerprint(" Hello World ", "HELLO", "en", "es", "", "")
	if a != b {
		t.Errorf("equal canonical tuples produced different fingerprints: %s != %s", a, b)
	}
}

func TestFingerprintDistinguishesFields(t *testing.T) {
	base := Fingerprint("hello world", "hello", "en", "es", "", "")
	variants := [][]string{
		{"hello world!", "hello", "en", "es", "", ""},
		{"hello world", "world", "en", "es", "", ""},
		{"hello world", "hello", "fr", "es", "", ""},
		{"hello world", "hello", "en", "de", "", ""},
		{"hello world", "hello", "en", "es", "before", ""},
		{"hello world", "hello", "en", "es", "", "after"},
	}
	for _, v := range variants {
		if got := Fingerprint(v...); got == base {
			t.Errorf("tuple %v collided with base fingerprint", v)
		}
	}
}

func TestFingerprintFieldBoundaries(t *testing.T) {
	// The delimiter must prevent concatenation collisions across fields.
	a := Fingerprint("ab", "c")
	b := Fingerprint("a", "bc")
	if a == b {
		t.Error("field boundary collision: (ab,c) == (a,bc)")
	}
}
