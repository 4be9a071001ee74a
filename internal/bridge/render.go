package bridge

import (
	"errors"
	"fmt"

	"github.com/kingrea/critic/internal/document"
	"github.com/kingrea/critic/internal/markup"
)

// ErrChangeNotFound is returned by ResolveChange for an unknown key.
var ErrChangeNotFound = errors.New("bridge: no change with that key")

// RenderOptions tunes Render.
type RenderOptions struct {
	// Newlines turns line-break nodes into newline text before serializing.
	// Headings lose their breaks.
	Newlines bool
	// Cleanup collapses and trims line-break placeholders in the output.
	Cleanup bool
}

// Render serializes a copy of root in the given mode. Every mode other than
// markup resolves or flattens the changes and then drops the line breaks
// they leave behind. root is not modified.
func Render(root *document.Node, mode ExportMode, opts RenderOptions) (string, error) {
	if err := document.Check(root); err != nil {
		return "", err
	}
	tree := root.Clone()
	switch mode {
	case ModeMarkup:
	case ModeAccept:
		document.AcceptAll(tree)
	case ModeReject:
		document.RejectAll(tree)
	case ModeBefore:
		if err := document.Flatten(tree, document.ContainerBefore); err != nil {
			return "", err
		}
	case ModeAfter:
		if err := document.Flatten(tree, document.ContainerAfter); err != nil {
			return "", err
		}
	default:
		return "", fmt.Errorf("unknown export mode %q", mode)
	}
	if mode != ModeMarkup {
		document.CleanupBreaks(tree)
	}
	if opts.Newlines {
		document.NormalizeNewlines(tree)
	}
	text := markup.Export(tree)
	if opts.Cleanup {
		text = markup.Cleanup(text)
	}
	return text, nil
}

// ResolveChange accepts or rejects the single change keyed key, in place.
func ResolveChange(root *document.Node, key string, decision document.Decision) error {
	if err := document.Check(root); err != nil {
		return err
	}
	n := document.Find(root, key)
	if n == nil {
		return fmt.Errorf("%w: %q", ErrChangeNotFound, key)
	}
	return document.Resolve(n, decision)
}
