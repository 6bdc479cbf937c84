package core

import (
	"strings"
	"time"
)

// Slugs of the fixed navigation categories.
const (
	GeneralSlug = "_general"
	ArchiveSlug = ArchiveRoot
)

// Tree is the navigation structure of the wiki: root pages under
// General, one category per top-level directory, Archive last.
type Tree struct {
	Categories []*Category `json:"categories"`
	Generated  time.Time   `json:"generated"`
}

// Category groups the pages of one directory.
type Category struct {
	Name     string      `json:"name"`
	Slug     string      `json:"slug"`
	Entries  []NavEntry  `json:"entries,omitempty"`
	Children []*Category `json:"children,omitempty"`
	Expanded bool        `json:"expanded,omitempty"`
}

// NavEntry is one page in the tree.
type NavEntry struct {
	Path    string `json:"path"`
	Title   string `json:"title"`
	Current bool   `json:"current,omitempty"`
}

// PageDate is a page with the date of its content, as listed by the
// recently updated and stale widgets.
type PageDate struct {
	Path  string    `json:"path"`
	Title string    `json:"title"`
	Date  time.Time `json:"date"`
}

// Len returns the number of pages in the tree.
func (t *Tree) Len() int {
	if t == nil {
		return 0
	}
	n := 0
	var walk func(cs []*Category)
	walk = func(cs []*Category) {
		for _, c := range cs {
			n += len(c.Entries)
			walk(c.Children)
		}
	}
	walk(t.Categories)
	return n
}

// Mark returns a copy of t with current flagged and every category on
// its path expanded. t is not modified.
func (t *Tree) Mark(current string) *Tree {
	if t == nil {
		return nil
	}
	out := &Tree{Generated: t.Generated, Categories: make([]*Category, len(t.Categories))}
	for i, c := range t.Categories {
		out.Categories[i], _ = c.mark(current)
	}
	return out
}

func (c *Category) mark(current string) (*Category, bool) {
	cp := &Category{Name: c.Name, Slug: c.Slug}
	found := false
	if len(c.Entries) > 0 {
		cp.Entries = make([]NavEntry, len(c.Entries))
		for i, e := range c.Entries {
			e.Current = e.Path == current
			found = found || e.Current
			cp.Entries[i] = e
		}
	}
	for _, child := range c.Children {
		mc, ok := child.mark(current)
		found = found || ok
		cp.Children = append(cp.Children, mc)
	}
	cp.Expanded = found || (current != "" && c.Slug != GeneralSlug && strings.HasPrefix(current, c.Slug+"/"))
	return cp, found
}
