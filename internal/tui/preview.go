package tui

import (
	"fmt"

	"github.com/charmbracelet/glamour"

	"github.com/kingrea/critic/internal/document"
	"github.com/kingrea/critic/internal/markup"
)

// Renderer turns markdown into terminal output.
type Renderer interface {
	Render(markdown string, width int) (string, error)
}

// RendererFunc adapts a function to Renderer.
type RendererFunc func(markdown string, width int) (string, error)

// Render calls f.
func (f RendererFunc) Render(markdown string, width int) (string, error) {
	return f(markdown, width)
}

// GlamourRenderer renders with glamour's dark style.
type GlamourRenderer struct {
	Style string
}

// Render implements Renderer.
func (g GlamourRenderer) Render(markdown string, width int) (string, error) {
	style := g.Style
	if style == "" {
		style = "dark"
	}
	if width <= 0 {
		width = 80
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(style),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return "", fmt.Errorf("tui: build renderer: %w", err)
	}
	out, err := r.Render(markdown)
	if err != nil {
		return "", fmt.Errorf("tui: render preview: %w", err)
	}
	return out, nil
}

// PreviewMarkdown resolves every change in the marker text the way decision
// says and returns plain markdown. Line-break placeholders become newlines.
func PreviewMarkdown(text string, decision document.Decision) string {
	root := markup.Load(text)
	return markup.BreaksToNewlines(markup.ExportResolved(root, decision))
}

// RenderPreview resolves text and renders it. On render failure the plain
// markdown is returned with the error.
func RenderPreview(text string, decision document.Decision, r Renderer, width int) (string, error) {
	md := PreviewMarkdown(text, decision)
	if r == nil {
		return md, nil
	}
	out, err := r.Render(md, width)
	if err != nil {
		return md, err
	}
	return out, nil
}
