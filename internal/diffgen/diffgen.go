// Package diffgen renders the difference between two texts as CriticMarkup.
package diffgen

import (
	"regexp"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

var wordRE = regexp.MustCompile(`\s+|[^\s]+`)

// Generate compares original and edited word by word and returns edited
// annotated with insertion, deletion and substitution markers. A deletion
// directly followed by an insertion becomes a substitution.
func Generate(original, edited string) string {
	dmp := diffmatchpatch.New()
	dmp.DiffTimeout = 0

	enc := newEncoder()
	a := enc.encode(original)
	b := enc.encode(edited)
	diffs := dmp.DiffMainRunes(a, b, false)
	diffs = dmp.DiffCleanupSemantic(diffs)

	var out strings.Builder
	for i := 0; i < len(diffs); i++ {
		d := diffs[i]
		text := enc.decode(d.Text)
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			out.WriteString(text)
		case diffmatchpatch.DiffDelete:
			if i+1 < len(diffs) && diffs[i+1].Type == diffmatchpatch.DiffInsert {
				writeSubstitution(&out, text, enc.decode(diffs[i+1].Text))
				i++
				continue
			}
			writeSpan(&out, "{--", text, "--}")
		case diffmatchpatch.DiffInsert:
			if i+1 < len(diffs) && diffs[i+1].Type == diffmatchpatch.DiffDelete {
				writeSubstitution(&out, enc.decode(diffs[i+1].Text), text)
				i++
				continue
			}
			writeSpan(&out, "{++", text, "++}")
		}
	}
	return out.String()
}

func writeSpan(out *strings.Builder, opener, text, closer string) {
	out.WriteString(opener)
	out.WriteString(text)
	out.WriteString(closer)
}

func writeSubstitution(out *strings.Builder, before, after string) {
	out.WriteString("{~~")
	out.WriteString(before)
	out.WriteString("~>")
	out.WriteString(after)
	out.WriteString("~~}")
}

// encoder maps each distinct word or whitespace run to a private-use rune so
// the character differ works on whole words.
type encoder struct {
	index map[string]rune
	words []string
}

func newEncoder() *encoder {
	return &encoder{index: map[string]rune{}}
}

func tokenRune(i int) rune {
	const bmpStart, bmpSize = 0xE000, 0x1900 // U+E000..U+F8FF
	if i < bmpSize {
		return rune(bmpStart + i)
	}
	return rune(0xF0000 + i - bmpSize)
}

func (e *encoder) encode(text string) []rune {
	tokens := wordRE.FindAllString(text, -1)
	out := make([]rune, 0, len(tokens))
	for _, tok := range tokens {
		r, ok := e.index[tok]
		if !ok {
			r = tokenRune(len(e.words))
			e.index[tok] = r
			e.words = append(e.words, tok)
		}
		out = append(out, r)
	}
	return out
}

func (e *encoder) decode(encoded string) string {
	var b strings.Builder
	for _, r := range encoded {
		idx := int(r - 0xE000)
		if r >= 0xF0000 {
			idx = int(r-0xF0000) + 0x1900
		}
		if idx >= 0 && idx < len(e.words) {
			b.WriteString(e.words[idx])
		}
	}
	return b.String()
}
