package markup

import (
	"strings"
)

// Preprocess normalizes raw model output so the line-oriented importer can
// parse it: headings are moved onto their own line and newlines inside
// marker spans become line-break placeholders. It does not validate;
// malformed markers pass through unchanged. Preprocess is idempotent.
func Preprocess(raw string) string {
	text := normalizeLineEndings(raw)
	text = breakBeforeHeadings(text)
	return collapseSpanNewlines(text)
}

var lineEndings = strings.NewReplacer("\r\n", "\n", "\r", "\n")

// normalizeLineEndings maps CRLF and lone CR to LF.
func normalizeLineEndings(text string) string {
	return lineEndings.Replace(text)
}

// breakBeforeHeadings starts a new line in front of every heading marker
// that is not already at one, replacing the whitespace before it.
func breakBeforeHeadings(text string) string {
	markers := HeadingMarkers(text)
	if len(markers) == 0 {
		return text
	}
	var b strings.Builder
	b.Grow(len(text) + len(markers))
	last := 0
	for _, m := range markers {
		if m.LineStart {
			continue
		}
		cut := m.Offset
		for cut > last && (text[cut-1] == ' ' || text[cut-1] == '\t') {
			cut--
		}
		b.WriteString(text[last:cut])
		b.WriteByte('\n')
		last = m.Offset
	}
	b.WriteString(text[last:])
	return b.String()
}

// collapseSpanNewlines replaces literal newlines inside marker spans with
// the line-break placeholder.
func collapseSpanNewlines(text string) string {
	spans := Scan(text)
	if len(spans) == 0 {
		return text
	}
	var b strings.Builder
	b.Grow(len(text))
	last := 0
	for _, s := range spans {
		b.WriteString(text[last:s.Start])
		b.WriteString(strings.ReplaceAll(text[s.Start:s.End], "\n", LineBreak))
		last = s.End
	}
	b.WriteString(text[last:])
	return b.String()
}
