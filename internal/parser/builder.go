package parser

import (
	"strings"

	"github.com/dgallion1/bookvoice/internal/doctree"
)

// treeBuilder assembles a DocTree from a flat stream of headings and
// paragraphs, nesting each heading under the nearest shallower one.
type treeBuilder struct {
	root  *doctree.DocNode
	stack []stackEntry
	text  strings.Builder
}

type stackEntry struct {
	node  *doctree.DocNode
	level int
}

func newTreeBuilder() *treeBuilder {
	root := &doctree.DocNode{}
	return &treeBuilder{
		root:  root,
		stack: []stackEntry{{node: root, level: 0}},
	}
}

// heading opens a new section at level (1 = top).
func (b *treeBuilder) heading(level int, title string) {
	b.flush()
	node := &doctree.DocNode{Title: title}
	for len(b.stack) > 1 && b.stack[len(b.stack)-1].level >= level {
		b.stack = b.stack[:len(b.stack)-1]
	}
	parent := b.stack[len(b.stack)-1].node
	parent.Children = append(parent.Children, node)
	b.stack = append(b.stack, stackEntry{node: node, level: level})
}

// paragraph appends body text to the current section.
func (b *treeBuilder) paragraph(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	if b.text.Len() > 0 {
		b.text.WriteString("\n\n")
	}
	b.text.WriteString(text)
}

func (b *treeBuilder) flush() {
	t := strings.TrimSpace(b.text.String())
	b.text.Reset()
	if t == "" {
		return
	}
	top := b.stack[len(b.stack)-1].node
	if top.Text != "" {
		top.Text += "\n\n" + t
	} else {
		top.Text = t
	}
}

// build finishes the tree. Text that precedes the first heading is kept as a
// leading node so reading order is preserved.
func (b *treeBuilder) build(title string) *doctree.DocTree {
	b.flush()
	tree := &doctree.DocTree{Title: title}
	if b.root.Text != "" {
		tree.Children = append(tree.Children, &doctree.DocNode{Text: b.root.Text})
	}
	tree.Children = append(tree.Children, b.root.Children...)
	return tree
}
