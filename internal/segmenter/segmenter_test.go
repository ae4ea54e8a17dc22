package segmenter

import (
	"strings"
	"testing"
)

// words returns n space-separated copies of w.
func words(w string, n int) string {
	return strings.TrimSpace(strings.Repeat(w+" ", n))
}

// sentence returns a sentence of exactly n words.
func sentence(n int) string {
	return words("lorem", n-1) + " ipsum."
}

func TestPaginate_SingleParagraphWordWindows(t *testing.T) {
	pages := Paginate(words("word", 600), 250)

	if len(pages) != 3 {
		t.Fatalf("expected 3 pages, got %d", len(pages))
	}
	want := []int{250, 250, 100}
	for i, w := range want {
		if got := CountWords(pages[i]); got != w {
			t.Errorf("page %d: expected %d words, got %d", i, w, got)
		}
	}
}

func TestPaginate_EmptyInputYieldsOneEmptyPage(t *testing.T) {
	for _, input := range []string{"", "   ", "\n\n\t \n"} {
		pages := Paginate(input, 250)
		if len(pages) != 1 {
			t.Fatalf("input %q: expected 1 page, got %d", input, len(pages))
		}
		if pages[0] != "" {
			t.Errorf("input %q: expected empty page, got %q", input, pages[0])
		}
	}
}

func TestPaginate_AccumulatesParagraphs(t *testing.T) {
	var paras []string
	for range 5 {
		paras = append(paras, words("para", 100))
	}
	pages := Paginate(strings.Join(paras, "\n\n"), 250)

	if len(pages) != 3 {
		t.Fatalf("expected 3 pages, got %d", len(pages))
	}
	if got := strings.Count(pages[0], "\n\n"); got != 1 {
		t.Errorf("expected page 0 to hold two paragraphs, found %d breaks", got)
	}
	if got := CountWords(pages[2]); got != 100 {
		t.Errorf("expected last page to hold 100 words, got %d", got)
	}
}

func TestPaginate_SplitsLongParagraphAtSentences(t *testing.T) {
	var sents []string
	for range 30 {
		sents = append(sents, sentence(10))
	}
	input := words("intro", 10) + "\n\n" + strings.Join(sents, " ")

	pages := Paginate(input, 100)

	total := 0
	for i, p := range pages {
		n := CountWords(p)
		if n > 100 {
			t.Errorf("page %d: %d words exceeds budget", i, n)
		}
		if strings.TrimSpace(p) == "" {
			t.Errorf("page %d is empty", i)
		}
		total += n
	}
	if total != 310 {
		t.Errorf("expected all 310 words preserved, got %d", total)
	}
	if !strings.HasPrefix(pages[0], "intro") {
		t.Errorf("expected first page to start with the intro paragraph, got %q", pages[0][:20])
	}
	// Sentence-level parts are joined with a single space.
	if !strings.Contains(pages[1], "ipsum. lorem") {
		t.Errorf("expected sentences joined by a space on page 1, got %q", pages[1])
	}
}

func TestPaginate_UnpunctuatedParagraphOverflows(t *testing.T) {
	input := words("short", 20) + "\n\n" + words("long", 300)
	pages := Paginate(input, 100)

	if len(pages) != 2 {
		t.Fatalf("expected 2 pages, got %d", len(pages))
	}
	if got := CountWords(pages[1]); got != 300 {
		t.Errorf("expected the unpunctuated paragraph to stay whole (300 words), got %d", got)
	}
}

func TestPaginate_WhitespaceOnlyLineIsParagraphBreak(t *testing.T) {
	input := words("a", 200) + "\n   \n" + words("b", 200)
	pages := Paginate(input, 250)

	if len(pages) != 2 {
		t.Fatalf("expected 2 pages, got %d", len(pages))
	}
	if strings.Contains(pages[0], "b") {
		t.Errorf("expected second paragraph on its own page")
	}
}

func TestPaginate_WordBudgetHolds(t *testing.T) {
	var b strings.Builder
	for i := range 40 {
		n := 7 + (i*37)%180
		var sents []string
		for range n / 8 {
			sents = append(sents, sentence(8))
		}
		b.WriteString(strings.Join(sents, " "))
		b.WriteString("\n\n")
	}

	for _, limit := range []int{50, 120, 250} {
		for i, p := range Paginate(b.String(), limit) {
			if n := CountWords(p); n > limit {
				t.Errorf("limit=%d page %d: %d words exceeds budget", limit, i, n)
			}
			if p == "" {
				t.Errorf("limit=%d page %d is empty", limit, i)
			}
		}
	}
}

func TestPaginate_DefaultBudget(t *testing.T) {
	pages := Paginate(words("w", 260), 0)
	if len(pages) != 2 {
		t.Fatalf("expected default budget of %d to give 2 pages, got %d", DefaultMaxWords, len(pages))
	}
}

func TestSplitSentences(t *testing.T) {
	got := splitSentences("One. Two! Three? Four.Five")
	want := []string{"One.", "Two!", "Three?", "Four.Five"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sentence %d: expected %q, got %q", i, want[i], got[i])
		}
	}
}
