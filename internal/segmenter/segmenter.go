// Package segmenter splits extracted document text into word-bounded pages.
package segmenter

import (
	"regexp"
	"strings"
)

// DefaultMaxWords is the page budget used when none is configured.
const DefaultMaxWords = 250

// blankLine matches a paragraph break: a newline, an optional run of
// whitespace-only lines, and another newline.
var blankLine = regexp.MustCompile(`\n\s*\n`)

// Paginate splits text into ordered pages of at most maxWords words,
// preserving paragraph structure where possible.
//
// An empty or whitespace-only text yields exactly one empty page. A text with
// no paragraph breaks is cut into fixed word windows. Otherwise paragraphs are
// accumulated until the next one would overflow the budget; a paragraph that
// is itself over budget is accumulated sentence by sentence instead. A single
// sentence longer than maxWords still becomes one (oversized) page.
func Paginate(text string, maxWords int) []string {
	if maxWords <= 0 {
		maxWords = DefaultMaxWords
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return []string{""}
	}

	paragraphs := splitByParagraphs(text)
	if len(paragraphs) <= 1 {
		return splitByWords(text, maxWords)
	}

	var pages []string
	buf := pageBuffer{maxWords: maxWords}

	for _, para := range paragraphs {
		paraWords := CountWords(para)

		if paraWords > maxWords {
			for _, sent := range splitSentences(para) {
				buf.add(sent, CountWords(sent), " ", &pages)
			}
			continue
		}

		buf.add(para, paraWords, "\n\n", &pages)
	}
	buf.flush(&pages)

	if len(pages) == 0 {
		return []string{""}
	}
	return pages
}

// pageBuffer accumulates parts of the page being built.
type pageBuffer struct {
	maxWords int
	current  strings.Builder
	words    int
}

// add appends part to the current page, flushing first when part would push
// the page over budget. sep joins part to the preceding content.
func (b *pageBuffer) add(part string, partWords int, sep string, pages *[]string) {
	if b.words+partWords > b.maxWords && b.current.Len() > 0 {
		b.flush(pages)
	}
	if b.current.Len() > 0 {
		b.current.WriteString(sep)
	}
	b.current.WriteString(part)
	b.words += partWords
}

func (b *pageBuffer) flush(pages *[]string) {
	if b.current.Len() == 0 {
		return
	}
	*pages = append(*pages, b.current.String())
	b.current.Reset()
	b.words = 0
}

// splitByParagraphs splits on blank lines and drops empty paragraphs.
func splitByParagraphs(text string) []string {
	parts := blankLine.Split(text, -1)
	var result []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}

// splitByWords cuts text into fixed windows of maxWords words.
func splitByWords(text string, maxWords int) []string {
	words := strings.Fields(text)
	var pages []string
	for i := 0; i < len(words); i += maxWords {
		end := i + maxWords
		if end > len(words) {
			end = len(words)
		}
		pages = append(pages, strings.Join(words[i:end], " "))
	}
	return pages
}

// splitSentences breaks text after '.', '!' or '?' when followed by a space.
func splitSentences(text string) []string {
	var sentences []string
	var current strings.Builder

	for i, r := range text {
		current.WriteRune(r)
		if (r == '.' || r == '!' || r == '?') && i+1 < len(text) && text[i+1] == ' ' {
			if s := strings.TrimSpace(current.String()); s != "" {
				sentences = append(sentences, s)
			}
			current.Reset()
		}
	}
	if s := strings.TrimSpace(current.String()); s != "" {
		sentences = append(sentences, s)
	}

	return sentences
}
