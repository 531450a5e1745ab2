// Package confignode models the hierarchical key-value document format
// used by crew roster save files: named nodes holding ordered name=value
// pairs and ordered child nodes.
package confignode

// Value is a single name=value pair inside a node. Duplicate names are
// allowed and order is preserved.
type Value struct {
	Name  string
	Value string
}

// Node is one tagged node of a document tree. A Node with an empty Tag
// is a document root: it has no braces of its own and only carries
// top-level values and children.
type Node struct {
	Tag    string
	values []Value
	nodes  []*Node
}

// New returns an empty node with the given tag.
func New(tag string) *Node {
	return &Node{Tag: tag}
}

// NewDocument returns an empty document root.
func NewDocument() *Node {
	return &Node{}
}

// Values returns the node's value pairs in document order.
func (n *Node) Values() []Value {
	return n.values
}

// AddValue appends a name=value pair, keeping any existing pairs with
// the same name.
func (n *Node) AddValue(name, value string) {
	n.values = append(n.values, Value{Name: name, Value: value})
}

// SetValue replaces the first pair with the given name, or appends one
// if none exists.
func (n *Node) SetValue(name, value string) {
	for i := range n.values {
		if n.values[i].Name == name {
			n.values[i].Value = value
			return
		}
	}
	n.AddValue(name, value)
}

// Value returns the first value stored under name, or "" if absent.
func (n *Node) Value(name string) string {
	v, _ := n.TryValue(name)
	return v
}

// TryValue returns the first value stored under name and whether it was
// present.
func (n *Node) TryValue(name string) (string, bool) {
	for _, v := range n.values {
		if v.Name == name {
			return v.Value, true
		}
	}
	return "", false
}

// HasValue reports whether a pair with the given name exists.
func (n *Node) HasValue(name string) bool {
	_, ok := n.TryValue(name)
	return ok
}

// RemoveValue removes every pair with the given name.
func (n *Node) RemoveValue(name string) {
	kept := n.values[:0]
	for _, v := range n.values {
		if v.Name != name {
			kept = append(kept, v)
		}
	}
	n.values = kept
}

// Children returns all child nodes in document order.
func (n *Node) Children() []*Node {
	return n.nodes
}

// Nodes returns the child nodes with the given tag in document order.
func (n *Node) Nodes(tag string) []*Node {
	var out []*Node
	for _, c := range n.nodes {
		if c.Tag == tag {
			out = append(out, c)
		}
	}
	return out
}

// FirstNode returns the first child with the given tag.
func (n *Node) FirstNode(tag string) (*Node, bool) {
	for _, c := range n.nodes {
		if c.Tag == tag {
			return c, true
		}
	}
	return nil, false
}

// AddNode appends an existing node as a child.
func (n *Node) AddNode(child *Node) {
	n.nodes = append(n.nodes, child)
}

// NewChild appends and returns an empty child node with the given tag.
func (n *Node) NewChild(tag string) *Node {
	child := New(tag)
	n.AddNode(child)
	return child
}

// RemoveNode removes the given child node, comparing by identity.
func (n *Node) RemoveNode(child *Node) bool {
	for i, c := range n.nodes {
		if c == child {
			n.nodes = append(n.nodes[:i], n.nodes[i+1:]...)
			return true
		}
	}
	return false
}

// RemoveNodes removes every child with the given tag.
func (n *Node) RemoveNodes(tag string) {
	kept := n.nodes[:0]
	for _, c := range n.nodes {
		if c.Tag != tag {
			kept = append(kept, c)
		}
	}
	n.nodes = kept
}

// Copy returns a deep copy of the node.
func (n *Node) Copy() *Node {
	out := &Node{Tag: n.Tag}
	out.values = append([]Value(nil), n.values...)
	for _, c := range n.nodes {
		out.nodes = append(out.nodes, c.Copy())
	}
	return out
}
