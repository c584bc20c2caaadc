package util

import "testing"

func TestSanitizeTextStripsNUL(t *testing.T) {
	in := "alpha\x00beta"
	if got := SanitizeText(in); got != "alphabeta" {
		t.Fatalf("unexpected result: %q", got)
	}
}

func TestSanitizeTextKeepsWhitespace(t *testing.T) {
	in := "line one\nline two\ttabbed\x07bell"
	got := SanitizeText(in)
	if got != "line one\nline two\ttabbedbell" {
		t.Fatalf("unexpected result: %q", got)
	}
}

func TestExcerptBoundsAndNormalizes(t *testing.T) {
	in := "one   two\n\nthree four five"
	if got := Excerpt(in, 100); got != "one two three four five" {
		t.Fatalf("unexpected excerpt: %q", got)
	}
	got := Excerpt("abcdefghij klmnop", 10)
	if got != "abcdefghij..." {
		t.Fatalf("unexpected capped excerpt: %q", got)
	}
}
