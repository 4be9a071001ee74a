package document

// WalkFunc is called for each node in depth-first order. Returning false
// skips the node's children.
type WalkFunc func(n *Node) bool

// Walk visits n and its descendants depth first.
func Walk(n *Node, fn WalkFunc) {
	if n == nil {
		return
	}
	if !fn(n) {
		return
	}
	// children may be replaced while walking; iterate over a snapshot
	children := append([]*Node(nil), n.Children...)
	for _, c := range children {
		Walk(c, fn)
	}
}

// Collect returns every node below n (inclusive) matching pred, in document order.
func Collect(n *Node, pred func(*Node) bool) []*Node {
	var out []*Node
	Walk(n, func(c *Node) bool {
		if pred(c) {
			out = append(out, c)
		}
		return true
	})
	return out
}

// Find returns the node with the given key.
func Find(root *Node, key string) *Node {
	var found *Node
	Walk(root, func(n *Node) bool {
		if found != nil {
			return false
		}
		if n.Key == key {
			found = n
			return false
		}
		return true
	})
	return found
}

// Diffs returns every diff node in document order.
func Diffs(root *Node) []*Node {
	return Collect(root, func(n *Node) bool { return n.Kind == KindDiff })
}

// HasDiffs reports whether any diff node or update container remains.
func HasDiffs(root *Node) bool {
	return len(Collect(root, func(n *Node) bool {
		return n.Kind == KindDiff || n.Kind == KindUpdateContainer
	})) > 0
}

// Normalize merges adjacent text runs that share a format and drops empty
// text nodes.
func Normalize(root *Node) {
	Walk(root, func(n *Node) bool {
		if len(n.Children) == 0 {
			return true
		}
		merged := n.Children[:0:0]
		for _, c := range n.Children {
			if c.Kind == KindText && c.Text == "" {
				c.parent = nil
				continue
			}
			if c.Kind == KindText && len(merged) > 0 {
				prev := merged[len(merged)-1]
				if prev.Kind == KindText && prev.Format == c.Format {
					prev.Text += c.Text
					c.parent = nil
					continue
				}
			}
			merged = append(merged, c)
		}
		n.Children = merged
		return true
	})
}

// isEmpty reports whether n carries no visible content.
func isEmpty(n *Node) bool {
	switch n.Kind {
	case KindText:
		return n.Text == ""
	case KindLineBreak:
		return false
	}
	for _, c := range n.Children {
		if !isEmpty(c) {
			return false
		}
	}
	return true
}
