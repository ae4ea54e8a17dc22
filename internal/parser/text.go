package parser

import (
	"bufio"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/dgallion1/bookvoice/internal/doctree"
)

// TextParser handles plain text files. Blank or whitespace-only lines
// separate paragraphs. Hard-wrapped lines within a paragraph are rejoined
// with single spaces so narration does not pause mid-sentence.
type TextParser struct{}

func (p *TextParser) Parse(r io.Reader, filename string) (*doctree.DocTree, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16<<20)

	b := newTreeBuilder()
	var para []string
	first := true
	for sc.Scan() {
		line := sc.Text()
		if first {
			line = strings.TrimPrefix(line, "\ufeff")
			first = false
		}
		line = strings.TrimSpace(line)
		if line == "" {
			b.paragraph(strings.Join(para, " "))
			para = para[:0]
			continue
		}
		para = append(para, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read text: %w", err)
	}
	b.paragraph(strings.Join(para, " "))

	return b.build(baseTitle(filename)), nil
}

// baseTitle is the filename without directory or extension.
func baseTitle(filename string) string {
	name := filepath.Base(filename)
	return strings.TrimSuffix(name, filepath.Ext(name))
}
