package parser

import (
	"strings"
	"testing"
)

func TestTextParser_RejoinsWrappedLines(t *testing.T) {
	input := "It was the best of times,\nit was the worst of times.\n\nSecond paragraph."
	tree, err := (&TextParser{}).Parse(strings.NewReader(input), "tale.txt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if tree.Title != "tale" {
		t.Errorf("expected title %q, got %q", "tale", tree.Title)
	}
	want := "It was the best of times, it was the worst of times.\n\nSecond paragraph."
	if got := tree.Text(); got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestTextParser_BlankLineVariants(t *testing.T) {
	tests := map[string]string{
		"multiple blanks": "One.\n\n\n\nTwo.",
		"whitespace line": "One.\n   \t\nTwo.",
		"crlf":            "One.\r\n\r\nTwo.",
		"byte order mark": "\ufeffOne.\n\nTwo.",
	}
	for name, input := range tests {
		tree, err := (&TextParser{}).Parse(strings.NewReader(input), "x.txt")
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", name, err)
		}
		if got := tree.Text(); got != "One.\n\nTwo." {
			t.Errorf("%s: expected two paragraphs, got %q", name, got)
		}
	}
}

func TestTextParser_EmptyInput(t *testing.T) {
	tree, err := (&TextParser{}).Parse(strings.NewReader(" \n\n "), "empty.txt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tree.Children) != 0 {
		t.Errorf("expected no children, got %d", len(tree.Children))
	}
	if tree.Text() != "" {
		t.Errorf("expected empty text, got %q", tree.Text())
	}
}

func TestBaseTitle(t *testing.T) {
	tests := map[string]string{
		"notes.txt":            "notes",
		"dir/readme.md":        "readme",
		"archive.tar.gz":       "archive.tar",
		"noext":                "noext",
		"Chapter One.markdown": "Chapter One",
	}
	for in, want := range tests {
		if got := baseTitle(in); got != want {
			t.Errorf("baseTitle(%q): expected %q, got %q", in, want, got)
		}
	}
}
