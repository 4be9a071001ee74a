package markup

import (
	"regexp"
	"strings"

	"github.com/kingrea/critic/internal/document"
)

// Export serializes a tree back to marker text, re-emitting a marker span
// for every diff node. The tree is not modified.
func Export(root *document.Node) string {
	if root == nil {
		return ""
	}
	blocks := root.Children
	if root.Kind != document.KindRoot {
		blocks = []*document.Node{root}
	}
	out := make([]string, 0, len(blocks))
	for _, block := range blocks {
		var b strings.Builder
		writeNode(&b, block)
		if b.Len() > 0 {
			out = append(out, b.String())
		}
	}
	return strings.Join(out, "\n\n")
}

// ExportFlattened serializes a flattened copy of the tree: every diff node is
// replaced by its content, taking side for substitutions.
func ExportFlattened(root *document.Node, side document.ContainerType) (string, error) {
	clone := root.Clone()
	if err := document.Flatten(clone, side); err != nil {
		return "", err
	}
	return Export(clone), nil
}

// ExportResolved serializes a copy of the tree with every change accepted or
// rejected.
func ExportResolved(root *document.Node, decision document.Decision) string {
	clone := root.Clone()
	if decision == document.Reject {
		document.RejectAll(clone)
	} else {
		document.AcceptAll(clone)
	}
	return Export(clone)
}

func writeNode(b *strings.Builder, n *document.Node) {
	switch n.Kind {
	case document.KindHeading:
		b.WriteString(strings.Repeat("#", n.Level))
		b.WriteByte(' ')
		writeChildren(b, n)
	case document.KindText:
		writeInline(b, []*document.Node{n})
	case document.KindLineBreak:
		b.WriteString(LineBreak)
	case document.KindLink:
		b.WriteByte('[')
		writeChildren(b, n)
		b.WriteString("](")
		b.WriteString(n.URL)
		b.WriteByte(')')
	case document.KindDiff:
		writeDiff(b, n)
	default:
		writeChildren(b, n)
	}
}

func writeChildren(b *strings.Builder, n *document.Node) {
	writeInline(b, n.Children)
}

// writeInline writes sibling nodes, wrapping each run of text nodes that
// share bold and italic in a single pair of emphasis delimiters.
func writeInline(b *strings.Builder, nodes []*document.Node) {
	const emphasis = document.FormatBold | document.FormatItalic
	for i := 0; i < len(nodes); {
		if nodes[i].Kind != document.KindText {
			writeNode(b, nodes[i])
			i++
			continue
		}
		wrap := nodes[i].Format & emphasis
		j := i
		for j < len(nodes) && nodes[j].Kind == document.KindText && nodes[j].Format&emphasis == wrap {
			j++
		}
		open, close := delimiters(wrap)
		b.WriteString(open)
		for _, t := range nodes[i:j] {
			writeText(b, t)
		}
		b.WriteString(close)
		i = j
	}
}

func delimiters(f document.Format) (string, string) {
	switch {
	case f.Has(document.FormatBold | document.FormatItalic):
		return "**_", "_**"
	case f.Has(document.FormatBold):
		return "**", "**"
	case f.Has(document.FormatItalic):
		return "*", "*"
	}
	return "", ""
}

func writeDiff(b *strings.Builder, n *document.Node) {
	switch n.Tag {
	case document.TagIns:
		b.WriteString(InsOpen)
		writeChildren(b, n)
		b.WriteString(InsClose)
	case document.TagDel:
		b.WriteString(DelOpen)
		writeChildren(b, n)
		b.WriteString(DelClose)
	case document.TagUpdate:
		b.WriteString(SubOpen)
		if c := n.ContainerFor(document.ContainerBefore); c != nil {
			writeChildren(b, c)
		}
		b.WriteString(Separator)
		if c := n.ContainerFor(document.ContainerAfter); c != nil {
			writeChildren(b, c)
		}
		b.WriteString(SubClose)
	default:
		writeChildren(b, n)
	}
}

func writeText(b *strings.Builder, n *document.Node) {
	text := escapeText(n.Text)
	if n.Format.Has(document.FormatCode) {
		text = "`" + text + "`"
	}
	b.WriteString(text)
}

var breakRunRE = regexp.MustCompile(`(?:<br\s*/?>)+`)
var trailingBreaksRE = regexp.MustCompile(`(?:\s*<br\s*/?>)+\s*$`)

// CollapseBreaks replaces every run of consecutive line-break placeholders
// with a single one.
func CollapseBreaks(text string) string {
	return breakRunRE.ReplaceAllString(text, LineBreak)
}

// TrimTrailingBreaks strips line-break placeholders (and whitespace between
// them) from the end of text.
func TrimTrailingBreaks(text string) string {
	return trailingBreaksRE.ReplaceAllString(text, "")
}

// Cleanup applies both placeholder cleanups, for storing markup as one flat
// string.
func Cleanup(text string) string {
	return TrimTrailingBreaks(CollapseBreaks(text))
}

// BreaksToNewlines turns placeholder runs into a single newline.
func BreaksToNewlines(text string) string {
	return breakRunRE.ReplaceAllString(text, "\n")
}
