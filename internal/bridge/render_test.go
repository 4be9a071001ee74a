package bridge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kingrea/critic/internal/document"
	"github.com/kingrea/critic/internal/markup"
)

func TestRenderLeavesTreeUntouched(t *testing.T) {
	text := "a {~~old~>new~~}<br><br>b {++x++}"
	root := markup.Import(text)
	for _, mode := range []ExportMode{ModeMarkup, ModeAccept, ModeReject, ModeBefore, ModeAfter} {
		_, err := Render(root, mode, RenderOptions{Newlines: true, Cleanup: true})
		require.NoError(t, err, mode)
	}
	assert.Equal(t, text, markup.Export(root))
	assert.Len(t, document.Diffs(root), 2)
}

func TestRenderCleansResolvedBreaks(t *testing.T) {
	root := markup.Import("a<br><br>{--gone--}<br>b<br>")
	got, err := Render(root, ModeAccept, RenderOptions{})
	require.NoError(t, err)
	assert.Equal(t, "a<br>b", got)

	got, err = Render(root, ModeMarkup, RenderOptions{})
	require.NoError(t, err)
	assert.Equal(t, "a<br><br>{--gone--}<br>b<br>", got)
}

func TestRenderErrors(t *testing.T) {
	_, err := Render(markup.Import("x"), "sideways", RenderOptions{})
	assert.Error(t, err)

	broken := &document.Node{Kind: document.KindRoot, Children: []*document.Node{nil}}
	_, err = Render(broken, ModeMarkup, RenderOptions{})
	assert.ErrorIs(t, err, document.ErrMalformed)
}

func TestResolveChangeNotFound(t *testing.T) {
	root := markup.Import("a {++b++}")
	err := ResolveChange(root, "nope", document.Accept)
	assert.ErrorIs(t, err, ErrChangeNotFound)
	err = ResolveChange(root, root.Key, document.Accept)
	assert.ErrorIs(t, err, document.ErrNotDiff)
}
