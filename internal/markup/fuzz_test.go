package markup

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/kingrea/critic/internal/document"
)

func FuzzPreprocessIdempotent(f *testing.F) {
	for _, seed := range []string{
		"",
		"a\r\r\nb",
		"Intro text ## Section",
		"{++added words ## New Section++}",
		"{~~a\n## b~>c~~} # d",
		"C# code <br>## e",
	} {
		f.Add(seed)
	}
	f.Fuzz(func(t *testing.T, raw string) {
		once := Preprocess(raw)
		if twice := Preprocess(once); twice != once {
			t.Fatalf("Preprocess not idempotent for %q:\nonce  %q\ntwice %q", raw, once, twice)
		}
	})
}

func FuzzExportRoundTrip(f *testing.F) {
	for _, seed := range [][]byte{
		{},
		[]byte("a *b* c"),
		{0, 7, 3, 1, 9, 4, 2, 200, 17, 5, 5, 5},
		[]byte("x {++y++} z # w \\ <br> _ ~> {"),
	} {
		f.Add(seed)
	}
	f.Fuzz(func(t *testing.T, data []byte) {
		tree := (&treeGen{data: data}).root()
		out := Export(tree)

		counts := map[TokenKind]int{}
		for _, tok := range Tokenize(out) {
			counts[tok.Kind]++
		}
		opens := counts[TokenInsOpen] + counts[TokenDelOpen] + counts[TokenSubOpen]
		closes := counts[TokenInsClose] + counts[TokenDelClose] + counts[TokenSubClose]
		if opens != closes || len(Scan(out)) != opens {
			t.Fatalf("unbalanced export %q: %d openers, %d closers, %d spans", out, opens, closes, len(Scan(out)))
		}
		if diff := cmp.Diff(tree, Import(out), treeOpts); diff != "" {
			t.Fatalf("round trip of %q mismatch (-want +got):\n%s", out, diff)
		}
	})
}

// treeGen builds a normalized tree from fuzz bytes. It only produces shapes
// the exporter can represent: every block starts with a plain letter, text
// holds no newlines, diffs are not nested and their sides are not empty.
type treeGen struct {
	data []byte
	pos  int
}

const genAlphabet = "ab xy*_`[]#<>{}+-~\\()/!"

func (g *treeGen) next() int {
	if g.pos >= len(g.data) {
		return 0
	}
	b := int(g.data[g.pos])
	g.pos++
	return b
}

func (g *treeGen) root() *document.Node {
	root := document.NewRoot()
	blocks := 1 + g.next()%3
	for i := 0; i < blocks; i++ {
		lead := document.NewText(string(rune('a'+g.next()%26)), 0)
		children := append([]*document.Node{lead}, g.inlines(true)...)
		if g.next()%3 == 0 {
			root.Append(document.NewHeading(1+g.next()%6, children...))
		} else {
			root.Append(document.NewParagraph(children...))
		}
	}
	document.Normalize(root)
	return root
}

func (g *treeGen) inlines(allowDiff bool) []*document.Node {
	var out []*document.Node
	n := g.next() % 5
	for i := 0; i < n; i++ {
		switch kind := g.next() % 6; {
		case kind == 0 && allowDiff:
			out = append(out, g.diff())
		case kind == 1:
			out = append(out, document.NewLink(g.url(), g.text()))
		case kind == 2:
			out = append(out, document.NewLineBreak())
		default:
			out = append(out, g.text())
		}
	}
	return out
}

func (g *treeGen) diff() *document.Node {
	switch g.next() % 3 {
	case 0:
		return document.NewDiff(document.TagIns, g.side()...)
	case 1:
		return document.NewDiff(document.TagDel, g.side()...)
	}
	return document.NewUpdate(g.side(), g.side())
}

// side always starts with a text node, so a span body never opens with a
// line break.
func (g *treeGen) side() []*document.Node {
	return append([]*document.Node{g.text()}, g.inlines(false)...)
}

func (g *treeGen) text() *document.Node {
	n := 1 + g.next()%8
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = genAlphabet[g.next()%len(genAlphabet)]
	}
	return document.NewText(string(buf), document.Format(g.next()%8))
}

func (g *treeGen) url() string {
	n := 1 + g.next()%6
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = byte('a' + g.next()%26)
	}
	return string(buf)
}
