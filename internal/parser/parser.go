package parser

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dgallion1/bookvoice/internal/doctree"
	"github.com/dgallion1/bookvoice/internal/segmenter"
)

// Format is the pagination family of a document.
type Format string

const (
	FormatPDF  Format = "pdf"
	FormatEPUB Format = "epub"
	FormatText Format = "text"
)

// Document is a source file with its detected format.
type Document struct {
	Path   string
	Format Format
}

// Source yields the raw text of a loaded document page by page.
// Page indices are dense in [0, Pages()).
type Source interface {
	Pages() int
	Page(i int) (string, error)
}

// Parser converts raw text-mode document bytes into a DocTree.
type Parser interface {
	Parse(r io.Reader, filename string) (*doctree.DocTree, error)
}

// Options tunes how documents are opened.
type Options struct {
	MaxWordsPerPage   int
	FallbackPdftotext bool
}

// UnsupportedFormatError is returned for file extensions with no pager.
type UnsupportedFormatError struct {
	Ext string
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("unsupported file extension: %q", e.Ext)
}

// SupportedExtensions lists file extensions this service can handle.
var SupportedExtensions = map[string]bool{
	".pdf":      true,
	".epub":     true,
	".txt":      true,
	".md":       true,
	".markdown": true,
	".html":     true,
	".htm":      true,
	".docx":     true,
}

// Detect resolves the document format from the file extension.
func Detect(path string) (Document, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".pdf":
		return Document{Path: path, Format: FormatPDF}, nil
	case ".epub":
		return Document{Path: path, Format: FormatEPUB}, nil
	case ".txt", ".md", ".markdown", ".html", ".htm", ".docx":
		return Document{Path: path, Format: FormatText}, nil
	default:
		return Document{}, &UnsupportedFormatError{Ext: ext}
	}
}

// ForFile returns the text-mode parser for a filename.
func ForFile(filename string) (Parser, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".txt":
		return &TextParser{}, nil
	case ".md", ".markdown":
		return &MarkdownParser{}, nil
	case ".html", ".htm":
		return &HTMLParser{}, nil
	case ".docx":
		return &DOCXParser{}, nil
	default:
		return nil, &UnsupportedFormatError{Ext: ext}
	}
}

// IsSupportedExtension checks if a file extension is supported.
func IsSupportedExtension(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return SupportedExtensions[ext]
}

// Open loads doc and returns its page source. PDF and EPUB keep their native
// page and chapter boundaries; text-mode documents are segmented by word count.
func Open(doc Document, opts Options) (Source, error) {
	switch doc.Format {
	case FormatPDF:
		return openPDF(doc.Path, opts.FallbackPdftotext)
	case FormatEPUB:
		return openEPUB(doc.Path)
	case FormatText:
		return openText(doc.Path, opts.MaxWordsPerPage)
	default:
		return nil, &UnsupportedFormatError{Ext: filepath.Ext(doc.Path)}
	}
}

func openText(path string, maxWords int) (Source, error) {
	p, err := ForFile(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open document: %w", err)
	}
	defer f.Close()

	tree, err := p.Parse(f, filepath.Base(path))
	if err != nil {
		return nil, err
	}
	return NewStaticSource(segmenter.Paginate(tree.Text(), maxWords)), nil
}

// StaticSource serves pages that were fully extracted at load time.
type StaticSource struct {
	pages []string
}

// NewStaticSource wraps pages; an empty slice becomes a single empty page.
func NewStaticSource(pages []string) *StaticSource {
	if len(pages) == 0 {
		pages = []string{""}
	}
	return &StaticSource{pages: pages}
}

func (s *StaticSource) Pages() int {
	return len(s.pages)
}

func (s *StaticSource) Page(i int) (string, error) {
	if i < 0 || i >= len(s.pages) {
		return "", fmt.Errorf("page %d out of range", i)
	}
	return s.pages[i], nil
}
