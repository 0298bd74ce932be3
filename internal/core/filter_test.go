package core

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestContentFilterMask(t *testing.T) {
	f := NewContentFilter([]string{"darn", "heck", "  "}, 0)

	cases := []struct {
		in   string
		want string
	}{
		{"hello world", "hello world"},
		{"darn", "****"},
		{"Oh DaRn it", "Oh **** it"},
		{"what the heck, darn!", "what the ****, ****!"},
		{"darndarn", "********"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := f.Mask(tc.in); got != tc.want {
			t.Errorf("Mask(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestContentFilterPreservesLength(t *testing.T) {
	f := NewContentFilter([]string{"ärger"}, '#')

	in := "so viel ÄRGER heute"
	got := f.Mask(in)
	if got != "so viel ##### heute" {
		t.Fatalf("unexpected mask result %q", got)
	}
	if utf8.RuneCountInString(got) != utf8.RuneCountInString(in) {
		t.Fatalf("mask changed length: %d vs %d", utf8.RuneCountInString(got), utf8.RuneCountInString(in))
	}
}

func TestContentFilterKeepsInvalidBytes(t *testing.T) {
	f := NewContentFilter([]string{"darn"}, 0)

	cases := []struct {
		in   string
		want string
	}{
		{"\xffdarn", "\xff****"},
		{"da\xffrn darn", "da\xffrn ****"},
		{"\xff\xfe", "\xff\xfe"},
	}
	for _, tc := range cases {
		if got := f.Mask(tc.in); got != tc.want {
			t.Errorf("Mask(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestContentFilterOverlappingTerms(t *testing.T) {
	f := NewContentFilter([]string{"abc", "bcd"}, 0)
	if got := f.Mask("xabcdx"); got != "x****x" {
		t.Fatalf("expected overlapping terms masked, got %q", got)
	}
}

func TestContentFilterEmpty(t *testing.T) {
	var f *ContentFilter
	if got := f.Mask("anything"); got != "anything" {
		t.Fatalf("nil filter must pass text through, got %q", got)
	}

	long := strings.Repeat("a", 3000)
	if got := NewContentFilter(nil, 0).Mask(long); got != long {
		t.Fatalf("empty filter must not alter text")
	}
}
