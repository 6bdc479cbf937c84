package core_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/folio/pkg/core"
)

func sampleTree() *core.Tree {
	return &core.Tree{Categories: []*core.Category{
		{Name: "General", Slug: core.GeneralSlug, Entries: []core.NavEntry{{Path: "home", Title: "Home"}}},
		{Name: "Guides", Slug: "guides", Entries: []core.NavEntry{{Path: "guides/setup", Title: "Setup"}},
			Children: []*core.Category{
				{Name: "Advanced", Slug: "guides/advanced", Entries: []core.NavEntry{{Path: "guides/advanced/tune", Title: "Tune"}}},
			}},
	}}
}

func TestTreeMark(t *testing.T) {
	tree := sampleTree()
	marked := tree.Mark("guides/advanced/tune")

	require.Len(t, marked.Categories, 2)
	assert.False(t, marked.Categories[0].Expanded)
	assert.True(t, marked.Categories[1].Expanded)
	assert.True(t, marked.Categories[1].Children[0].Expanded)
	assert.True(t, marked.Categories[1].Children[0].Entries[0].Current)
	assert.False(t, marked.Categories[1].Entries[0].Current)

	assert.False(t, tree.Categories[1].Expanded, "Mark must not modify the receiver")
	assert.False(t, tree.Categories[1].Children[0].Entries[0].Current)
}

func TestTreeMarkRootPage(t *testing.T) {
	marked := sampleTree().Mark("home")
	assert.True(t, marked.Categories[0].Expanded)
	assert.True(t, marked.Categories[0].Entries[0].Current)
	assert.False(t, marked.Categories[1].Expanded)
}

func TestTreeLen(t *testing.T) {
	assert.Equal(t, 3, sampleTree().Len())
	var empty *core.Tree
	assert.Equal(t, 0, empty.Len())
	assert.Nil(t, empty.Mark("x"))
}
