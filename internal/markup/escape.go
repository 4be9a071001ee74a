package markup

import "strings"

// escapable lists the bytes a backslash escapes. Any other backslash is
// literal text.
const escapable = "\\*_`[]#<>{}+-~"

func isEscapable(c byte) bool {
	return strings.IndexByte(escapable, c) >= 0
}

// escapeText backslash-escapes the parts of a text run that the importer
// would otherwise read as syntax: marker sequences, emphasis and code
// delimiters, link brackets, line-break placeholders and a "#" that starts
// a line. Underscores inside a word and other harmless characters are left
// alone so ordinary prose exports unchanged.
func escapeText(text string) string {
	if text == "" {
		return ""
	}
	marker := make([]bool, len(text))
	for _, tok := range Tokenize(text) {
		if tok.Kind == TokenText {
			continue
		}
		for i := tok.Offset; i < tok.End(); i++ {
			marker[i] = true
		}
	}

	var b strings.Builder
	b.Grow(len(text) + 8)
	for i := 0; i < len(text); i++ {
		c := text[i]
		if marker[i] || needsEscape(text, i) {
			b.WriteByte('\\')
		}
		b.WriteByte(c)
	}
	return b.String()
}

func needsEscape(text string, i int) bool {
	c := text[i]
	last := i == len(text)-1
	switch c {
	case '\\':
		return last || isEscapable(text[i+1])
	case '*', '`', '[', ']':
		return true
	case '_':
		return i == 0 || !isWordByte(text[i-1]) || last || !isWordByte(text[i+1])
	case '#':
		return i == 0 || text[i-1] == '\n'
	case '<':
		loc := breakRE.FindStringIndex(text[i:])
		return loc != nil && loc[0] == 0
	case '{':
		// an opener may be completed by the closer or separator that
		// follows this run
		return i >= len(text)-2
	}
	return false
}

// unescape removes the backslash in front of every escapable byte.
func unescape(text string) string {
	if strings.IndexByte(text, '\\') < 0 {
		return text
	}
	var b strings.Builder
	b.Grow(len(text))
	for i := 0; i < len(text); i++ {
		if text[i] == '\\' && i+1 < len(text) && isEscapable(text[i+1]) {
			i++
		}
		b.WriteByte(text[i])
	}
	return b.String()
}

// indexUnescaped is strings.Index skipping backslash-escaped bytes.
func indexUnescaped(s, delim string) int {
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			i++
			continue
		}
		if strings.HasPrefix(s[i:], delim) {
			return i
		}
	}
	return -1
}

// escapedAt reports whether the byte at i is preceded by an odd run of
// backslashes.
func escapedAt(s string, i int) bool {
	n := 0
	for j := i - 1; j >= 0 && s[j] == '\\'; j-- {
		n++
	}
	return n%2 == 1
}
