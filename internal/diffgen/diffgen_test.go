package diffgen_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kingrea/critic/internal/diffgen"
	"github.com/kingrea/critic/internal/document"
	"github.com/kingrea/critic/internal/markup"
)

func TestGenerateExact(t *testing.T) {
	tests := []struct {
		name     string
		original string
		edited   string
		want     string
	}{
		{"identical", "same text", "same text", "same text"},
		{"substitution", "the quick fox", "the slow fox", "the {~~quick~>slow~~} fox"},
		{"all new", "", "fresh", "{++fresh++}"},
		{"all gone", "stale", "", "{--stale--}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, diffgen.Generate(tt.original, tt.edited))
		})
	}
}

func TestGenerateResolvesToBothSides(t *testing.T) {
	pairs := []struct {
		original string
		edited   string
	}{
		{"one two three", "one three"},
		{"alpha beta", "alpha beta gamma"},
		{"the quick brown fox", "the slow brown dog jumps"},
		{"keep this sentence as it is", "keep that sentence exactly as it was"},
		{"words  with   spacing", "words with spacing"},
	}
	for _, p := range pairs {
		t.Run(p.original, func(t *testing.T) {
			out := diffgen.Generate(p.original, p.edited)
			root := markup.Import(out)
			assert.Equal(t, p.edited, markup.ExportResolved(root, document.Accept), out)
			assert.Equal(t, p.original, markup.ExportResolved(root, document.Reject), out)
		})
	}
}

func TestGenerateMarksWholeWords(t *testing.T) {
	out := diffgen.Generate("color", "colour")
	assert.Equal(t, "{~~color~>colour~~}", out)
}
