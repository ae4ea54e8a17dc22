package segmenter

import "strings"

// CountWords counts whitespace-separated words, the unit of the page budget.
func CountWords(text string) int {
	return len(strings.Fields(text))
}
