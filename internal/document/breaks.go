package document

// CleanupBreaks collapses consecutive line breaks into one and strips line
// breaks that end a block.
func CleanupBreaks(root *Node) {
	Walk(root, func(n *Node) bool {
		collapseBreakRuns(n)
		if n.Kind == KindParagraph || n.Kind == KindHeading {
			trimTrailingBreaks(n)
		}
		return true
	})
}

func collapseBreakRuns(n *Node) {
	if len(n.Children) < 2 {
		return
	}
	kept := n.Children[:0:0]
	for _, c := range n.Children {
		if c.Kind == KindLineBreak && len(kept) > 0 && kept[len(kept)-1].Kind == KindLineBreak {
			c.parent = nil
			continue
		}
		kept = append(kept, c)
	}
	n.Children = kept
}

// trimTrailingBreaks removes breaks at the end of n, descending into a
// trailing inline container.
func trimTrailingBreaks(n *Node) {
	for len(n.Children) > 0 {
		last := n.Children[len(n.Children)-1]
		switch {
		case last.Kind == KindLineBreak:
			last.Detach()
		case last.Kind == KindDiff && last.Tag != TagUpdate, last.Kind == KindLink:
			trimTrailingBreaks(last)
			return
		default:
			return
		}
	}
}

// NormalizeNewlines converts line breaks for contexts that render plain
// newlines: headings lose them entirely, paragraphs get a single "\n" per
// run of breaks.
func NormalizeNewlines(root *Node) {
	for _, h := range Collect(root, func(n *Node) bool { return n.Kind == KindHeading }) {
		for _, br := range Collect(h, func(n *Node) bool { return n.Kind == KindLineBreak }) {
			br.Detach()
		}
	}
	Walk(root, func(n *Node) bool {
		if n.Kind == KindHeading {
			return false
		}
		var out []*Node
		for _, c := range n.Children {
			if c.Kind != KindLineBreak {
				out = append(out, c)
				continue
			}
			c.parent = nil
			if len(out) > 0 && out[len(out)-1].Kind == KindText && out[len(out)-1].Text == "\n" && out[len(out)-1].Key == "" {
				continue
			}
			nl := &Node{Kind: KindText, Text: "\n", parent: n}
			out = append(out, nl)
		}
		n.Children = out
		return true
	})
	Relink(root)
	Normalize(root)
}
