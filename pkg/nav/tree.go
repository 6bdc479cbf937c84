// Package nav builds and caches the navigation tree of the wiki.
package nav

import (
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/aretw0/folio/pkg/core"
)

// DefaultExclude lists the pages kept out of the tree by default.
var DefaultExclude = []string{"Sidebar"}

// Build computes the tree from a path→title map. Root pages go under
// General, directories become categories (nested directories become child
// categories) and archived pages are grouped under Archive, last.
func Build(titles map[string]string, exclude []string) *core.Tree {
	general := &core.Category{Name: "General", Slug: core.GeneralSlug}
	top := make(map[string]*core.Category)

	for p, title := range titles {
		if excluded(p, exclude) {
			continue
		}
		segs := strings.Split(p, "/")
		entry := core.NavEntry{Path: p, Title: title}
		if len(segs) == 1 {
			general.Entries = append(general.Entries, entry)
			continue
		}

		cat, ok := top[segs[0]]
		if !ok {
			cat = &core.Category{Name: categoryName(segs[0]), Slug: segs[0]}
			top[segs[0]] = cat
		}
		for i := 1; i < len(segs)-1; i++ {
			cat = child(cat, strings.Join(segs[:i+1], "/"), segs[i])
		}
		cat.Entries = append(cat.Entries, entry)
	}

	tree := &core.Tree{}
	if len(general.Entries) > 0 {
		tree.Categories = append(tree.Categories, general)
	}
	slugs := make([]string, 0, len(top))
	for slug := range top {
		if slug != core.ArchiveSlug {
			slugs = append(slugs, slug)
		}
	}
	sort.Strings(slugs)
	for _, slug := range slugs {
		tree.Categories = append(tree.Categories, top[slug])
	}
	if archive, ok := top[core.ArchiveSlug]; ok {
		tree.Categories = append(tree.Categories, archive)
	}

	for _, c := range tree.Categories {
		sortCategory(c)
	}
	return tree
}

func categoryName(slug string) string {
	if slug == core.ArchiveSlug {
		return "Archive"
	}
	return core.HumanizeSlug(slug)
}

func child(parent *core.Category, slug, seg string) *core.Category {
	for _, c := range parent.Children {
		if c.Slug == slug {
			return c
		}
	}
	c := &core.Category{Name: core.HumanizeSlug(seg), Slug: slug}
	parent.Children = append(parent.Children, c)
	return c
}

func sortCategory(c *core.Category) {
	sort.Slice(c.Entries, func(i, j int) bool {
		if c.Entries[i].Title != c.Entries[j].Title {
			return c.Entries[i].Title < c.Entries[j].Title
		}
		return c.Entries[i].Path < c.Entries[j].Path
	})
	sort.Slice(c.Children, func(i, j int) bool { return c.Children[i].Slug < c.Children[j].Slug })
	for _, ch := range c.Children {
		sortCategory(ch)
	}
}

func excluded(p string, patterns []string) bool {
	for _, pattern := range patterns {
		if ok, _ := doublestar.Match(pattern, p); ok {
			return true
		}
	}
	return false
}
