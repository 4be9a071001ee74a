package document

import "github.com/google/uuid"

// PromoteHeadings hoists every heading that is not a direct child of root up
// to the top level. Imports of tracked changes that span a heading leave the
// heading inside a paragraph's diff node; here the enclosing block is split
// around it so the heading becomes a block of its own.
//
// The heading keeps its tracked status: its content is wrapped in a diff
// tagged after the innermost diff ancestor (a before container counts as a
// deletion, an after container as an insertion).
func PromoteHeadings(root *Node) {
	if root == nil {
		return
	}
	for {
		h := firstNestedHeading(root)
		if h == nil {
			return
		}
		if !promote(root, h) {
			return
		}
	}
}

func firstNestedHeading(root *Node) *Node {
	var found *Node
	Walk(root, func(n *Node) bool {
		if found != nil {
			return false
		}
		if n.Kind == KindHeading && n.Parent() != root {
			found = n
			return false
		}
		return true
	})
	return found
}

func promote(root, h *Node) bool {
	var path []int
	var tag Tag
	top := h
	for top.Parent() != nil && top.Parent() != root {
		path = append([]int{top.Index()}, path...)
		p := top.Parent()
		if tag == "" {
			tag = trackedTag(p)
		}
		top = p
	}
	if top.Parent() != root {
		return false
	}

	left, right := cut(top, path)
	if tag != "" && len(h.Children) > 0 {
		h.Append(NewDiff(tag, h.TakeChildren()...))
	}
	top.ReplaceWith(compact(left, h, right)...)
	return true
}

func trackedTag(n *Node) Tag {
	switch {
	case n.Kind == KindDiff && (n.Tag == TagIns || n.Tag == TagDel):
		return n.Tag
	case n.Kind == KindUpdateContainer && n.Container == ContainerBefore:
		return TagDel
	case n.Kind == KindUpdateContainer && n.Container == ContainerAfter:
		return TagIns
	}
	return ""
}

// cut splits n around the descendant addressed by path. The addressed node
// is detached and belongs to neither half. Empty halves come back nil.
func cut(n *Node, path []int) (left, right *Node) {
	idx := path[0]
	children := n.TakeChildren()
	leftKids := append([]*Node(nil), children[:idx]...)
	rightKids := append([]*Node(nil), children[idx+1:]...)
	if len(path) == 1 {
		leftKids = trimBreaks(leftKids, false)
		rightKids = trimBreaks(rightKids, true)
	} else {
		l, r := cut(children[idx], path[1:])
		if l != nil {
			leftKids = append(leftKids, l)
		}
		if r != nil {
			rightKids = append([]*Node{r}, rightKids...)
		}
	}

	right = shallowCopy(n)
	n.Append(leftKids...)
	right.Append(rightKids...)
	left = n
	repairUpdate(left)
	repairUpdate(right)
	if isEmpty(left) {
		left = nil
	}
	if isEmpty(right) {
		right = nil
	}
	return left, right
}

func trimBreaks(nodes []*Node, leading bool) []*Node {
	if leading {
		for len(nodes) > 0 && nodes[0].Kind == KindLineBreak {
			nodes = nodes[1:]
		}
		return nodes
	}
	for len(nodes) > 0 && nodes[len(nodes)-1].Kind == KindLineBreak {
		nodes = nodes[:len(nodes)-1]
	}
	return nodes
}

func shallowCopy(n *Node) *Node {
	return &Node{
		Kind:      n.Kind,
		Key:       uuid.NewString(),
		Text:      n.Text,
		Format:    n.Format,
		Level:     n.Level,
		URL:       n.URL,
		Tag:       n.Tag,
		Container: n.Container,
	}
}

// repairUpdate turns a cut substitution that lost one of its containers into
// a plain insertion or deletion of the side that survived.
func repairUpdate(n *Node) {
	if n.Kind != KindDiff || n.Tag != TagUpdate {
		return
	}
	before, after := n.ContainerFor(ContainerBefore), n.ContainerFor(ContainerAfter)
	switch {
	case before != nil && after != nil:
		return
	case after != nil:
		n.Tag = TagIns
		kids := after.TakeChildren()
		n.TakeChildren()
		n.Append(kids...)
	case before != nil:
		n.Tag = TagDel
		kids := before.TakeChildren()
		n.TakeChildren()
		n.Append(kids...)
	}
}

func compact(nodes ...*Node) []*Node {
	out := make([]*Node, 0, len(nodes))
	for _, n := range nodes {
		if n != nil {
			out = append(out, n)
		}
	}
	return out
}
