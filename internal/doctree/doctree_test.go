package doctree

import "testing"

func TestDocTreeText_HeadingsBecomeParagraphs(t *testing.T) {
	tree := &DocTree{
		Title: "ignored",
		Children: []*DocNode{
			{
				Title: "Chapter 1",
				Text:  "Opening lines.",
				Children: []*DocNode{
					{Title: "Part A", Text: "Part A body."},
				},
			},
			{Text: "Trailing paragraph."},
		},
	}

	want := "Chapter 1\n\nOpening lines.\n\nPart A\n\nPart A body.\n\nTrailing paragraph."
	if got := tree.Text(); got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestDocTreeText_Empty(t *testing.T) {
	tree := &DocTree{Title: "empty"}
	if got := tree.Text(); got != "" {
		t.Errorf("expected empty text, got %q", got)
	}
}

func TestDocTreeText_SkipsWhitespaceNodes(t *testing.T) {
	tree := &DocTree{
		Children: []*DocNode{
			{Title: "  ", Text: "\n\t"},
			{Text: "Only this."},
		},
	}
	if got := tree.Text(); got != "Only this." {
		t.Errorf("expected %q, got %q", "Only this.", got)
	}
}
