package ui

import (
	lgtree "github.com/charmbracelet/lipgloss/tree"

	"github.com/marksync/marksync/internal/tree"
)

// Bookmark is a tree node that can be drawn.
type Bookmark[N any] interface {
	tree.Branch[N]
	NodeURL() string
}

// RenderTree draws a bookmark tree. Folders are styled and suffixed with "/",
// bookmarks show their url, and native ids are shown when present.
func RenderTree[N Bookmark[N]](rootLabel string, nodes []N) string {
	root := lgtree.Root(rootLabel).
		Enumerator(lgtree.RoundedEnumerator).
		EnumeratorStyle(mutedStyle)
	addChildren(root, nodes)
	return root.String()
}

func addChildren[N Bookmark[N]](parent *lgtree.Tree, nodes []N) {
	for _, n := range nodes {
		children, isFolder := n.ChildNodes()

		label := n.NodeTitle()
		if isFolder {
			label = folderStyle.Render(label + "/")
		}
		if id := n.NodeID(); id != "" {
			label += " " + idStyle.Render("#"+id)
		}
		if !isFolder {
			if u := n.NodeURL(); u != "" {
				label += " " + mutedStyle.Render(u)
			}
			parent.Child(label)
			continue
		}

		sub := lgtree.Root(label).
			Enumerator(lgtree.RoundedEnumerator).
			EnumeratorStyle(mutedStyle)
		addChildren(sub, children)
		parent.Child(sub)
	}
}
