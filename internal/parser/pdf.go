package parser

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"

	pdflib "github.com/ledongthuc/pdf"
)

// pdfSource reads page text from a PDF on demand. A page without text comes
// back empty; a page that cannot be decoded returns an error so callers can
// retry it instead of treating it as blank.
type pdfSource struct {
	path  string
	pages int

	mu       sync.Mutex
	fallback []string // pdftotext output, when the native reader failed
}

// openPDF opens path with the native reader. When that fails and fallback is
// set, pdftotext extracts the whole document once, split on form feeds.
func openPDF(path string, fallback bool) (Source, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("open document: %w", err)
	}

	n, err := countPDFPages(path)
	if err == nil {
		return &pdfSource{path: path, pages: n}, nil
	}
	if !fallback {
		return nil, fmt.Errorf("extract pdf text: %w", err)
	}

	text, ferr := pdftotext(path)
	if ferr != nil {
		return nil, fmt.Errorf("extract pdf text: %w (fallback: %v)", err, ferr)
	}
	pages := fallbackPages(text)
	return &pdfSource{path: path, pages: len(pages), fallback: pages}, nil
}

// fallbackPages splits pdftotext output into trimmed pages. pdftotext
// terminates every page with a form feed, so a trailing empty piece is dropped.
func fallbackPages(text string) []string {
	pages := splitPages(text)
	if len(pages) > 1 && strings.TrimSpace(pages[len(pages)-1]) == "" {
		pages = pages[:len(pages)-1]
	}
	for i := range pages {
		pages[i] = strings.TrimSpace(pages[i])
	}
	return pages
}

func (s *pdfSource) Pages() int {
	if s.pages == 0 {
		return 1
	}
	return s.pages
}

func (s *pdfSource) Page(i int) (string, error) {
	if i < 0 || i >= s.Pages() {
		return "", fmt.Errorf("page %d out of range", i)
	}
	if s.pages == 0 {
		return "", nil
	}
	if s.fallback != nil {
		return s.fallback[i], nil
	}

	// The reader is not safe for concurrent use; one page at a time.
	s.mu.Lock()
	defer s.mu.Unlock()
	return extractPDFPage(s.path, i+1)
}

func countPDFPages(path string) (n int, err error) {
	defer func() {
		// ledongthuc/pdf panics on some malformed inputs.
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf reader: %v", r)
		}
	}()
	f, reader, err := pdflib.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return reader.NumPage(), nil
}

// extractPDFPage returns the trimmed text of 1-based page num. A page with no
// content stream yields "".
func extractPDFPage(path string, num int) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("extract pdf page %d: reader panic: %v", num, r)
		}
	}()
	f, reader, err := pdflib.Open(path)
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	page := reader.Page(num)
	if page.V.IsNull() {
		return "", nil
	}
	text, err = page.GetPlainText(nil)
	if err != nil {
		return "", fmt.Errorf("extract pdf page %d: %w", num, err)
	}
	return strings.TrimSpace(text), nil
}

// pdftotext runs the poppler fallback extractor; tests replace it.
var pdftotext = extractPdftotext

func extractPdftotext(path string) (string, error) {
	cmd := exec.Command("pdftotext", "-layout", path, "-")
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("pdftotext: %w", err)
	}
	return string(out), nil
}

func splitPages(text string) []string {
	return strings.Split(text, "\f")
}
