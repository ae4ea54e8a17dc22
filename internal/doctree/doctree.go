package doctree

import "strings"

// DocTree is the root of a parsed text-mode document.
type DocTree struct {
	Title    string     // Document title (from metadata or filename)
	Children []*DocNode // Top-level sections
}

// DocNode is a recursive section in the document tree.
type DocNode struct {
	Title    string     // Section heading (empty for leaf text)
	Text     string     // Text content of this node (may be empty for container nodes)
	Children []*DocNode // Subsections
}

// Text flattens the tree into blank-line separated paragraphs in reading
// order. Section headings become paragraphs of their own; the document title
// is not included.
func (t *DocTree) Text() string {
	var paras []string
	var walk func(nodes []*DocNode)
	walk = func(nodes []*DocNode) {
		for _, n := range nodes {
			if title := strings.TrimSpace(n.Title); title != "" {
				paras = append(paras, title)
			}
			if text := strings.TrimSpace(n.Text); text != "" {
				paras = append(paras, text)
			}
			walk(n.Children)
		}
	}
	walk(t.Children)
	return strings.Join(paras, "\n\n")
}
