package markup

import (
	"regexp"
	"strings"

	"github.com/kingrea/critic/internal/document"
)

var headingLineRE = regexp.MustCompile(`^(#{1,6}) (.*)$`)

// Import converts marker text into a document tree. Markers become diff
// nodes, everything else goes through the inline formatting parser, and
// headings that end up nested inside diff nodes are promoted to the top
// level. Import never fails: malformed markers stay literal text.
func Import(text string) *document.Node {
	root := document.NewRoot()
	lines := strings.Split(normalizeLineEndings(text), "\n")
	var para []string
	flush := func() {
		if len(para) == 0 {
			return
		}
		root.Append(document.NewParagraph(parseSpans(strings.Join(para, "\n"))...))
		para = nil
	}
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			flush()
			continue
		}
		if m := headingLineRE.FindStringSubmatch(line); m != nil {
			flush()
			root.Append(document.NewHeading(len(m[1]), parseSpans(m[2])...))
			continue
		}
		para = append(para, line)
	}
	flush()
	document.Normalize(root)
	document.PromoteHeadings(root)
	return root
}

// Load preprocesses raw model output and imports it.
func Load(raw string) *document.Node {
	return Import(Preprocess(raw))
}

// parseSpans converts one block of text, turning marker spans into diff
// nodes and parsing the text around them as inline markdown.
func parseSpans(text string) []*document.Node {
	var out []*document.Node
	last := 0
	for _, span := range Scan(text) {
		out = append(out, parseInline(text[last:span.Start], 0)...)
		out = append(out, diffNode(span))
		last = span.End
	}
	return append(out, parseInline(text[last:], 0)...)
}

func diffNode(span Span) *document.Node {
	if span.Tag == document.TagUpdate {
		return document.NewUpdate(parseDiffBody(span.Before), parseDiffBody(span.After))
	}
	return document.NewDiff(span.Tag, parseDiffBody(span.Body)...)
}

// parseDiffBody parses the content of one marker span. Line-break
// placeholders split the body into lines; a line that starts with a heading
// marker becomes a nested heading for PromoteHeadings to hoist.
func parseDiffBody(body string) []*document.Node {
	body = strings.ReplaceAll(body, "\n", LineBreak)
	var out []*document.Node
	for i, part := range splitBreaks(body) {
		if i > 0 {
			out = append(out, document.NewLineBreak())
		}
		if m := headingLineRE.FindStringSubmatch(part); m != nil {
			out = append(out, document.NewHeading(len(m[1]), parseInline(m[2], 0)...))
			continue
		}
		out = append(out, parseInline(part, 0)...)
	}
	return out
}

// splitBreaks splits on line-break placeholders that are not escaped.
func splitBreaks(body string) []string {
	var parts []string
	last := 0
	for _, loc := range breakRE.FindAllStringIndex(body, -1) {
		if escapedAt(body, loc[0]) {
			continue
		}
		parts = append(parts, body[last:loc[0]])
		last = loc[1]
	}
	return append(parts, body[last:])
}

// parseInline handles bold, italic, inline code, links and line-break
// placeholders. Unmatched delimiters are kept as text.
func parseInline(text string, format document.Format) []*document.Node {
	var out []*document.Node
	var plain strings.Builder
	emit := func(nodes ...*document.Node) {
		if plain.Len() > 0 {
			out = append(out, document.NewText(plain.String(), format))
			plain.Reset()
		}
		out = append(out, nodes...)
	}

	for i := 0; i < len(text); {
		rest := text[i:]
		switch {
		case rest[0] == '\\' && len(rest) > 1 && isEscapable(rest[1]):
			plain.WriteByte(rest[1])
			i += 2
			continue
		case rest[0] == '<':
			if loc := breakRE.FindStringIndex(rest); loc != nil && loc[0] == 0 {
				emit(document.NewLineBreak())
				i += loc[1]
				continue
			}
		case rest[0] == '`':
			if end := indexUnescaped(rest[1:], "`"); end > 0 {
				emit(document.NewText(unescape(rest[1:1+end]), format|document.FormatCode))
				i += end + 2
				continue
			}
		case strings.HasPrefix(rest, "**"):
			if end := indexUnescaped(rest[2:], "**"); end > 0 {
				emit(parseInline(rest[2:2+end], format|document.FormatBold)...)
				i += end + 4
				continue
			}
		case rest[0] == '*':
			if end := closingStar(rest[1:]); end > 0 {
				emit(parseInline(rest[1:1+end], format|document.FormatItalic)...)
				i += end + 2
				continue
			}
		case rest[0] == '_' && wordBoundaryBefore(text, i):
			if end := closingUnderscore(rest[1:]); end > 0 {
				emit(parseInline(rest[1:1+end], format|document.FormatItalic)...)
				i += end + 2
				continue
			}
		case rest[0] == '[':
			if label, url, n, ok := parseLink(rest); ok {
				emit(document.NewLink(url, parseInline(label, format)...))
				i += n
				continue
			}
		}
		plain.WriteByte(text[i])
		i++
	}
	emit()
	return out
}

// closingStar finds the "*" that closes an italic run. A run of exactly two
// stars is a nested bold delimiter; a longer run closes the italic with its
// first star and leaves the rest for a following bold run.
func closingStar(s string) int {
	for i := 0; i < len(s); {
		if s[i] == '\\' {
			i += 2
			continue
		}
		if s[i] != '*' {
			i++
			continue
		}
		run := 1
		for i+run < len(s) && s[i+run] == '*' {
			run++
		}
		if run != 2 {
			return i
		}
		i += run
	}
	return -1
}

func closingUnderscore(s string) int {
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' {
			i++
			continue
		}
		if s[i] == '_' && (i+1 == len(s) || !isWordByte(s[i+1])) {
			return i
		}
	}
	return -1
}

func wordBoundaryBefore(s string, i int) bool {
	return i == 0 || !isWordByte(s[i-1])
}

func isWordByte(c byte) bool {
	return c == '_' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= 0x80
}

// parseLink matches "[label](url)" at the start of s.
func parseLink(s string) (label, url string, n int, ok bool) {
	closeLabel := indexUnescaped(s, "](")
	if closeLabel < 1 {
		return "", "", 0, false
	}
	closeURL := strings.IndexByte(s[closeLabel+2:], ')')
	if closeURL < 0 {
		return "", "", 0, false
	}
	label = s[1:closeLabel]
	url = s[closeLabel+2 : closeLabel+2+closeURL]
	if strings.ContainsAny(url, " \n") || indexUnescaped(label, "[") >= 0 {
		return "", "", 0, false
	}
	return label, url, closeLabel + 3 + closeURL, true
}
