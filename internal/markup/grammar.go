// Package markup implements the CriticMarkup dialect used for tracked
// changes: insertions {++text++}, deletions {--text--} and substitutions
// {~~old~>new~~}. It converts between that text form and document trees.
package markup

import (
	"regexp"
	"strings"

	"github.com/alecthomas/participle/v2/lexer"

	"github.com/kingrea/critic/internal/document"
)

// Marker delimiters.
const (
	InsOpen   = "{++"
	InsClose  = "++}"
	DelOpen   = "{--"
	DelClose  = "--}"
	SubOpen   = "{~~"
	SubClose  = "~~}"
	Separator = "~>"

	// LineBreak is the placeholder that stands for a newline inside a span.
	LineBreak = "<br>"
)

var markerLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "SubOpen", Pattern: `\{~~`},
	{Name: "SubClose", Pattern: `~~\}`},
	{Name: "SubSep", Pattern: `~>`},
	{Name: "InsOpen", Pattern: `\{\+\+`},
	{Name: "InsClose", Pattern: `\+\+\}`},
	{Name: "DelOpen", Pattern: `\{--`},
	{Name: "DelClose", Pattern: `--\}`},
	{Name: "Text", Pattern: `[^{~+\-]+|[{~+\-]`},
})

// TokenKind classifies a marker token.
type TokenKind int

const (
	TokenText TokenKind = iota
	TokenInsOpen
	TokenInsClose
	TokenDelOpen
	TokenDelClose
	TokenSubOpen
	TokenSubClose
	TokenSeparator
)

// Token is one lexeme of marker text with its byte offset.
type Token struct {
	Kind   TokenKind
	Value  string
	Offset int
}

// End returns the byte offset just past the token.
func (t Token) End() int { return t.Offset + len(t.Value) }

func (t Token) isOpener() bool {
	return t.Kind == TokenInsOpen || t.Kind == TokenDelOpen || t.Kind == TokenSubOpen
}

var tokenKinds = func() map[lexer.TokenType]TokenKind {
	symbols := markerLexer.Symbols()
	return map[lexer.TokenType]TokenKind{
		symbols["Text"]:     TokenText,
		symbols["InsOpen"]:  TokenInsOpen,
		symbols["InsClose"]: TokenInsClose,
		symbols["DelOpen"]:  TokenDelOpen,
		symbols["DelClose"]: TokenDelClose,
		symbols["SubOpen"]:  TokenSubOpen,
		symbols["SubClose"]: TokenSubClose,
		symbols["SubSep"]:   TokenSeparator,
	}
}()

// Tokenize splits text into marker tokens. Every byte of the input belongs
// to exactly one token.
func Tokenize(text string) []Token {
	lex, err := markerLexer.LexString("", text)
	if err != nil {
		return []Token{{Kind: TokenText, Value: text}}
	}
	raw, err := lexer.ConsumeAll(lex)
	if err != nil {
		return []Token{{Kind: TokenText, Value: text}}
	}
	tokens := make([]Token, 0, len(raw))
	for _, tok := range raw {
		if tok.EOF() {
			continue
		}
		tokens = append(tokens, Token{Kind: tokenKinds[tok.Type], Value: tok.Value, Offset: tok.Pos.Offset})
	}
	return tokens
}

// Span is one well-formed marker occurrence.
type Span struct {
	Tag   document.Tag
	Start int // offset of the opener
	End   int // offset just past the closer
	// Body is the text between the delimiters. For substitutions Before and
	// After hold the two sides split on the first separator.
	Body   string
	Before string
	After  string
}

// BodyStart returns the offset of the first body byte.
func (s Span) BodyStart() int { return s.Start + len(InsOpen) }

// BodyEnd returns the offset just past the last body byte.
func (s Span) BodyEnd() int { return s.End - len(InsClose) }

func closerFor(k TokenKind) TokenKind {
	switch k {
	case TokenInsOpen:
		return TokenInsClose
	case TokenDelOpen:
		return TokenDelClose
	}
	return TokenSubClose
}

func tagFor(k TokenKind) document.Tag {
	switch k {
	case TokenInsOpen:
		return document.TagIns
	case TokenDelOpen:
		return document.TagDel
	}
	return document.TagUpdate
}

// Scan returns the well-formed spans of text in order. An opener is literal
// text when another opener appears before its closer, when it is never
// closed, or, for substitutions, when no separator precedes the closer.
func Scan(text string) []Span {
	return scanTokens(text, Tokenize(text))
}

func scanTokens(text string, tokens []Token) []Span {
	var spans []Span
	for i := 0; i < len(tokens); i++ {
		open := tokens[i]
		if !open.isOpener() {
			continue
		}
		want := closerFor(open.Kind)
		sep := -1
		end := -1
		for j := i + 1; j < len(tokens); j++ {
			t := tokens[j]
			if t.isOpener() {
				break
			}
			if t.Kind == TokenSeparator && sep < 0 {
				sep = j
			}
			if t.Kind == want {
				end = j
				break
			}
		}
		if end < 0 || (open.Kind == TokenSubOpen && sep < 0) {
			continue
		}
		span := Span{
			Tag:   tagFor(open.Kind),
			Start: open.Offset,
			End:   tokens[end].End(),
			Body:  text[open.End():tokens[end].Offset],
		}
		if span.Tag == document.TagUpdate {
			span.Before = text[open.End():tokens[sep].Offset]
			span.After = text[tokens[sep].End():tokens[end].Offset]
		}
		spans = append(spans, span)
		i = end
	}
	return spans
}

// SpanAt returns the span containing offset, if any.
func SpanAt(spans []Span, offset int) (Span, bool) {
	for _, s := range spans {
		if offset >= s.Start && offset < s.End {
			return s, true
		}
	}
	return Span{}, false
}

var (
	headingMarkerRE = regexp.MustCompile(`#{1,6} \S`)
	breakRE         = regexp.MustCompile(`<br\s*/?>`)
	trailingBreakRE = regexp.MustCompile(`<br\s*/?>$`)
)

// HeadingMarker is a "#" run that starts a heading in running text.
type HeadingMarker struct {
	Offset int
	Level  int
	// LineStart is true when the marker already begins a line: start of
	// input, after "\n" or after a line-break placeholder.
	LineStart bool
}

// HeadingMarkers finds heading markers. A run of one to six "#" followed by
// a space and a non-space is a heading marker unless it is glued to the
// word before it ("C# code"), escaped with a backslash, part of a longer
// "#" run, or followed by a number ("issue # 4").
func HeadingMarkers(text string) []HeadingMarker {
	var out []HeadingMarker
	for _, loc := range headingMarkerRE.FindAllStringIndex(text, -1) {
		start := loc[0]
		if start > 0 {
			if prev := text[start-1]; prev == '#' || prev == '\\' || isWordByte(prev) {
				continue
			}
		}
		if next := text[loc[1]-1]; next >= '0' && next <= '9' {
			continue
		}
		level := strings.IndexByte(text[start:], ' ')
		out = append(out, HeadingMarker{Offset: start, Level: level, LineStart: atLineStart(text[:start])})
	}
	return out
}

func atLineStart(prefix string) bool {
	return prefix == "" || strings.HasSuffix(prefix, "\n") || trailingBreakRE.MatchString(prefix)
}
