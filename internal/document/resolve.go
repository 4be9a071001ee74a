package document

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotDiff is returned when an accept/reject targets a non-diff node.
	ErrNotDiff = errors.New("document: node is not a diff")
	// ErrDetached is returned when the target diff is no longer in a tree.
	ErrDetached = errors.New("document: node is detached")
	// ErrInvalidSide is returned for a side other than before/after.
	ErrInvalidSide = errors.New("document: side must be before or after")
)

// Decision is the reviewer's verdict on a tracked change.
type Decision int

const (
	Accept Decision = iota
	Reject
)

func (d Decision) String() string {
	if d == Reject {
		return "reject"
	}
	return "accept"
}

// ParseDecision reads "accept" or "reject", ignoring case and surrounding
// space.
func ParseDecision(s string) (Decision, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "accept":
		return Accept, nil
	case "reject":
		return Reject, nil
	}
	return Accept, fmt.Errorf("document: unknown decision %q", s)
}

// Resolve applies a decision to a single diff node, replacing it with the
// surviving inline content.
//
//	ins:    accept keeps the content, reject drops it
//	del:    accept drops the content, reject keeps it
//	update: accept keeps the after side, reject keeps the before side
func Resolve(n *Node, decision Decision) error {
	if n == nil || n.Kind != KindDiff {
		return ErrNotDiff
	}
	parent := n.Parent()
	if parent == nil {
		return ErrDetached
	}
	var keep []*Node
	switch n.Tag {
	case TagIns:
		if decision == Accept {
			keep = n.TakeChildren()
		}
	case TagDel:
		if decision == Reject {
			keep = n.TakeChildren()
		}
	case TagUpdate:
		side := ContainerAfter
		if decision == Reject {
			side = ContainerBefore
		}
		if c := n.ContainerFor(side); c != nil {
			keep = c.TakeChildren()
		}
	default:
		return fmt.Errorf("document: unknown diff tag %q", n.Tag)
	}
	n.ReplaceWith(keep...)
	Normalize(parent)
	return nil
}

// Flatten replaces every diff node with its content in place: ins and del
// nodes yield their children, update nodes yield the container for side.
// Callers that want accept/reject semantics drop the unwanted ins/del nodes
// first (see AcceptAll, RejectAll).
func Flatten(root *Node, side ContainerType) error {
	if side != ContainerBefore && side != ContainerAfter {
		return ErrInvalidSide
	}
	nodes := Collect(root, func(n *Node) bool {
		return n.Kind == KindDiff || n.Kind == KindUpdateContainer
	})
	// innermost first so nested content is already resolved when its parent is replaced
	for i := len(nodes) - 1; i >= 0; i-- {
		n := nodes[i]
		if n.Parent() == nil {
			continue
		}
		switch {
		case n.Kind == KindDiff && n.Tag == TagUpdate:
			var keep []*Node
			if c := n.ContainerFor(side); c != nil {
				keep = c.TakeChildren()
			}
			n.ReplaceWith(keep...)
		case n.Kind == KindUpdateContainer && n.Parent().Kind == KindDiff && n.Parent().Tag == TagUpdate:
			// handled by its update node
		default:
			n.ReplaceWith(n.TakeChildren()...)
		}
	}
	Normalize(root)
	return nil
}

// AcceptAll drops deletions and keeps insertions and the after side of
// substitutions.
func AcceptAll(root *Node) {
	dropTagged(root, TagDel)
	_ = Flatten(root, ContainerAfter)
}

// RejectAll drops insertions and keeps deletions and the before side of
// substitutions.
func RejectAll(root *Node) {
	dropTagged(root, TagIns)
	_ = Flatten(root, ContainerBefore)
}

func dropTagged(root *Node, tag Tag) {
	for _, n := range Collect(root, func(n *Node) bool { return n.Kind == KindDiff && n.Tag == tag }) {
		n.Detach()
	}
}
