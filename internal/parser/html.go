package parser

import (
	"fmt"
	"io"
	"strings"

	"github.com/dgallion1/bookvoice/internal/doctree"
	"golang.org/x/net/html"
)

// HTMLParser handles HTML files.
type HTMLParser struct{}

func (p *HTMLParser) Parse(r io.Reader, filename string) (*doctree.DocTree, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	title := baseTitle(filename)
	if t := findTitle(doc); t != "" {
		title = t
	}
	return htmlTree(doc, title), nil
}

// htmlTree walks the <body> (or the whole document) and builds a tree from
// heading tags and block-level text. Loose inline text inside containers is
// gathered into runs that become paragraphs at the next block boundary.
func htmlTree(doc *html.Node, title string) *doctree.DocTree {
	b := newTreeBuilder()
	var run strings.Builder
	flushRun := func() {
		b.paragraph(run.String())
		run.Reset()
	}

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			run.WriteString(n.Data)
			return
		case html.ElementNode:
			if level := headingLevel(n.Data); level > 0 {
				flushRun()
				b.heading(level, textContent(n))
				return
			}
			switch n.Data {
			case "script", "style", "nav", "head", "noscript", "template":
				return
			case "br":
				run.WriteString("\n")
				return
			case "p", "li", "td", "th", "blockquote", "pre", "dt", "dd", "figcaption":
				flushRun()
				b.paragraph(textContent(n))
				return
			}
			if isInline(n.Data) {
				run.WriteString(textContent(n))
				return
			}
			flushRun()
			defer flushRun()
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}

	if body := findBody(doc); body != nil {
		walk(body)
	} else {
		walk(doc)
	}
	flushRun()
	return b.build(title)
}

var inlineTags = map[string]bool{
	"a": true, "abbr": true, "b": true, "cite": true, "code": true, "em": true,
	"font": true, "i": true, "mark": true, "q": true, "s": true, "small": true,
	"span": true, "strong": true, "sub": true, "sup": true, "time": true, "u": true,
}

func isInline(tag string) bool {
	return inlineTags[tag]
}

// headingLevel returns 1-6 for h1-h6 and 0 for anything else.
func headingLevel(tag string) int {
	if len(tag) != 2 || tag[0] != 'h' || tag[1] < '1' || tag[1] > '6' {
		return 0
	}
	return int(tag[1] - '0')
}

// textContent concatenates the text below n, turning <br> into newlines.
func textContent(n *html.Node) string {
	var buf strings.Builder
	var collect func(*html.Node)
	collect = func(n *html.Node) {
		switch {
		case n.Type == html.TextNode:
			buf.WriteString(n.Data)
		case n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style"):
			return
		case n.Type == html.ElementNode && n.Data == "br":
			buf.WriteByte('\n')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			collect(c)
		}
	}
	collect(n)
	return strings.TrimSpace(buf.String())
}

func findTitle(doc *html.Node) string {
	if n := findElement(doc, "title"); n != nil {
		return textContent(n)
	}
	return ""
}

func findBody(doc *html.Node) *html.Node {
	return findElement(doc, "body")
}

// findElement returns the first element named tag in document order.
func findElement(n *html.Node, tag string) *html.Node {
	if n.Type == html.ElementNode && n.Data == tag {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, tag); found != nil {
			return found
		}
	}
	return nil
}
