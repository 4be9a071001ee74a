package document

import (
	"errors"
	"fmt"
)

// ErrMalformed is wrapped by every error Check returns.
var ErrMalformed = errors.New("document: malformed tree")

// Check verifies the structure of a tree that did not come from the
// importer, typically one decoded from JSON. It rejects nil nodes, unknown
// kinds, leaf kinds with children, update containers outside an update and
// updates that do not hold exactly a before and an after container.
func Check(root *Node) error {
	if root == nil {
		return fmt.Errorf("%w: nil root", ErrMalformed)
	}
	return check(root, "root")
}

func check(n *Node, path string) error {
	switch n.Kind {
	case KindRoot, KindParagraph, KindHeading, KindLink:
	case KindText, KindLineBreak:
		if len(n.Children) > 0 {
			return fmt.Errorf("%w: %s: %s node has children", ErrMalformed, path, n.Kind)
		}
	case KindDiff:
		if err := checkDiff(n, path); err != nil {
			return err
		}
	case KindUpdateContainer:
	default:
		return fmt.Errorf("%w: %s: unknown kind %q", ErrMalformed, path, n.Kind)
	}
	for i, c := range n.Children {
		childPath := fmt.Sprintf("%s/%d", path, i)
		if c == nil {
			return fmt.Errorf("%w: %s: nil node", ErrMalformed, childPath)
		}
		if c.Kind == KindRoot {
			return fmt.Errorf("%w: %s: nested root", ErrMalformed, childPath)
		}
		if c.Kind == KindUpdateContainer && (n.Kind != KindDiff || n.Tag != TagUpdate) {
			return fmt.Errorf("%w: %s: update container outside an update", ErrMalformed, childPath)
		}
		if err := check(c, childPath); err != nil {
			return err
		}
	}
	return nil
}

func checkDiff(n *Node, path string) error {
	switch n.Tag {
	case TagIns, TagDel:
		return nil
	case TagUpdate:
		if len(n.Children) != 2 || !isContainer(n.Children[0], ContainerBefore) || !isContainer(n.Children[1], ContainerAfter) {
			return fmt.Errorf("%w: %s: update needs a before and an after container", ErrMalformed, path)
		}
		return nil
	}
	return fmt.Errorf("%w: %s: unknown diff tag %q", ErrMalformed, path, n.Tag)
}

func isContainer(n *Node, side ContainerType) bool {
	return n != nil && n.Kind == KindUpdateContainer && n.Container == side
}
