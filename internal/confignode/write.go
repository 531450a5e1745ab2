package confignode

import "strings"

// Format renders a node as document text. A document root (empty tag)
// renders its values and children at depth zero with no surrounding
// braces, so Format(Parse(text)) is stable.
func Format(n *Node) []byte {
	var b strings.Builder
	if n.Tag == "" {
		writeBody(&b, n, 0)
	} else {
		writeNode(&b, n, 0)
	}
	return []byte(b.String())
}

func writeNode(b *strings.Builder, n *Node, depth int) {
	indent := strings.Repeat("\t", depth)
	b.WriteString(indent)
	b.WriteString(n.Tag)
	b.WriteString("\n")
	b.WriteString(indent)
	b.WriteString("{\n")
	writeBody(b, n, depth+1)
	b.WriteString(indent)
	b.WriteString("}\n")
}

func writeBody(b *strings.Builder, n *Node, depth int) {
	indent := strings.Repeat("\t", depth)
	for _, v := range n.values {
		b.WriteString(indent)
		b.WriteString(v.Name)
		b.WriteString(" = ")
		b.WriteString(v.Value)
		b.WriteString("\n")
	}
	for _, c := range n.nodes {
		writeNode(b, c, depth)
	}
}
