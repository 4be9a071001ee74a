// Package document is the rich-text tree the editor works on. Tracked changes
// live in the tree as diff nodes so they can be accepted, rejected, exported
// or flattened without going back to text.

package document

import (
	"strings"

	"github.com/google/uuid"
)

// Kind identifies the node variant.
type Kind string

const (
	KindRoot            Kind = "root"
	KindParagraph       Kind = "paragraph"
	KindHeading         Kind = "heading"
	KindText            Kind = "text"
	KindLink            Kind = "link"
	KindLineBreak       Kind = "linebreak"
	KindDiff            Kind = "diff"
	KindUpdateContainer Kind = "update-container"
)

// Format is the inline formatting bit set of a text node.
type Format uint8

const (
	FormatBold Format = 1 << iota
	FormatItalic
	FormatCode
)

// Has reports whether every bit in f2 is set.
func (f Format) Has(f2 Format) bool { return f&f2 == f2 }

// Tag classifies a diff node.
type Tag string

const (
	TagIns    Tag = "ins"
	TagDel    Tag = "del"
	TagUpdate Tag = "update"
)

// ContainerType names the side of a substitution an update container holds.
type ContainerType string

const (
	ContainerBefore ContainerType = "before"
	ContainerAfter  ContainerType = "after"
)

// Node is a single element of the document tree. Which fields are meaningful
// depends on Kind.
type Node struct {
	Kind      Kind          `json:"kind"`
	Key       string        `json:"key"`
	Text      string        `json:"text,omitempty"`
	Format    Format        `json:"format,omitempty"`
	Level     int           `json:"level,omitempty"`
	URL       string        `json:"url,omitempty"`
	Tag       Tag           `json:"tag,omitempty"`
	Container ContainerType `json:"container,omitempty"`
	Children  []*Node       `json:"children,omitempty"`

	parent *Node
}

func newNode(kind Kind, children []*Node) *Node {
	n := &Node{Kind: kind, Key: uuid.NewString()}
	n.Append(children...)
	return n
}

// NewRoot builds a document root.
func NewRoot(children ...*Node) *Node { return newNode(KindRoot, children) }

// NewParagraph builds a paragraph block.
func NewParagraph(children ...*Node) *Node { return newNode(KindParagraph, children) }

// NewHeading builds a heading block. Levels are clamped to 1..6.
func NewHeading(level int, children ...*Node) *Node {
	n := newNode(KindHeading, children)
	n.Level = clampLevel(level)
	return n
}

// NewText builds a text leaf.
func NewText(text string, format Format) *Node {
	n := newNode(KindText, nil)
	n.Text = text
	n.Format = format
	return n
}

// NewLink builds a link wrapping inline children.
func NewLink(url string, children ...*Node) *Node {
	n := newNode(KindLink, children)
	n.URL = url
	return n
}

// NewLineBreak builds a line-break leaf.
func NewLineBreak() *Node { return newNode(KindLineBreak, nil) }

// NewDiff builds an ins or del diff node. Use NewUpdate for substitutions.
func NewDiff(tag Tag, children ...*Node) *Node {
	n := newNode(KindDiff, children)
	n.Tag = tag
	return n
}

// NewUpdate builds a substitution diff node holding the before and after
// containers in that order.
func NewUpdate(before, after []*Node) *Node {
	n := newNode(KindDiff, nil)
	n.Tag = TagUpdate
	n.Append(NewContainer(ContainerBefore, before...), NewContainer(ContainerAfter, after...))
	return n
}

// NewContainer builds one side of a substitution.
func NewContainer(side ContainerType, children ...*Node) *Node {
	n := newNode(KindUpdateContainer, children)
	n.Container = side
	return n
}

func clampLevel(level int) int {
	if level < 1 {
		return 1
	}
	if level > 6 {
		return 6
	}
	return level
}

// Parent returns the owning node, or nil for roots and detached nodes.
func (n *Node) Parent() *Node {
	if n == nil {
		return nil
	}
	return n.parent
}

// IsInline reports whether the node belongs inside a block.
func (n *Node) IsInline() bool {
	switch n.Kind {
	case KindText, KindLink, KindLineBreak, KindDiff, KindUpdateContainer:
		return true
	}
	return false
}

// Append attaches children at the end, detaching them from any previous parent.
func (n *Node) Append(children ...*Node) {
	for _, child := range children {
		if child == nil {
			continue
		}
		child.Detach()
		child.parent = n
		n.Children = append(n.Children, child)
	}
}

// Index returns the position of n inside its parent, or -1.
func (n *Node) Index() int {
	if n == nil || n.parent == nil {
		return -1
	}
	for i, c := range n.parent.Children {
		if c == n {
			return i
		}
	}
	return -1
}

// Detach removes n from its parent.
func (n *Node) Detach() {
	idx := n.Index()
	if idx < 0 {
		n.parent = nil
		return
	}
	p := n.parent
	p.Children = append(p.Children[:idx:idx], p.Children[idx+1:]...)
	n.parent = nil
}

// ReplaceWith swaps n for the given nodes at the same position.
func (n *Node) ReplaceWith(nodes ...*Node) {
	idx := n.Index()
	if idx < 0 {
		return
	}
	p := n.parent
	n.parent = nil
	rest := append([]*Node{}, p.Children[idx+1:]...)
	p.Children = p.Children[:idx:idx]
	for _, repl := range nodes {
		if repl == nil {
			continue
		}
		if repl.parent != nil {
			repl.Detach()
		}
		repl.parent = p
		p.Children = append(p.Children, repl)
	}
	p.Children = append(p.Children, rest...)
}

// TakeChildren detaches and returns every child of n.
func (n *Node) TakeChildren() []*Node {
	children := n.Children
	n.Children = nil
	for _, c := range children {
		c.parent = nil
	}
	return children
}

// ContainerFor returns the update container for the given side.
func (n *Node) ContainerFor(side ContainerType) *Node {
	if n == nil || n.Kind != KindDiff || n.Tag != TagUpdate {
		return nil
	}
	for _, c := range n.Children {
		if c.Kind == KindUpdateContainer && c.Container == side {
			return c
		}
	}
	return nil
}

// TextContent concatenates the text beneath n. Line breaks count as "\n";
// for updates both sides are included, before first.
func (n *Node) TextContent() string {
	var b strings.Builder
	n.writeText(&b)
	return b.String()
}

func (n *Node) writeText(b *strings.Builder) {
	switch n.Kind {
	case KindText:
		b.WriteString(n.Text)
	case KindLineBreak:
		b.WriteByte('\n')
	default:
		for _, c := range n.Children {
			c.writeText(b)
		}
	}
}

// Clone returns a deep copy. Keys are kept so references taken on the
// original still identify the same logical node in the copy.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	out := *n
	out.parent = nil
	out.Children = nil
	for _, c := range n.Children {
		cc := c.Clone()
		cc.parent = &out
		out.Children = append(out.Children, cc)
	}
	return &out
}

// Relink rebuilds parent pointers, for trees decoded from JSON. Missing keys
// are assigned. Nil children are skipped; Check reports them.
func Relink(n *Node) {
	if n == nil {
		return
	}
	if n.Key == "" {
		n.Key = uuid.NewString()
	}
	for _, c := range n.Children {
		if c == nil {
			continue
		}
		c.parent = n
		Relink(c)
	}
}
