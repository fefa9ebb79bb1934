package ui

import (
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/marksync/marksync/internal/tree"
)

func TestRenderTree(t *testing.T) {
	lipgloss.SetColorProfile(termenv.Ascii)

	nodes := []tree.NativeNode{
		{ID: "5", Title: "Work", Children: []tree.NativeNode{
			{ID: "6", Title: "ci", URL: "https://ci.example.com"},
			{ID: "7", Title: "empty", Children: []tree.NativeNode{}},
		}},
		{ID: "8", Title: "news", URL: "https://news.example.com"},
	}

	out := RenderTree("Bookmarks bar/", nodes)

	for _, want := range []string{"Bookmarks bar/", "Work/ #5", "ci #6 https://ci.example.com", "empty/ #7", "news #8"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Index(out, "Work/") > strings.Index(out, "news") {
		t.Errorf("sibling order not preserved:\n%s", out)
	}
}

func TestRenderPortableTreeHasNoIDs(t *testing.T) {
	lipgloss.SetColorProfile(termenv.Ascii)

	out := RenderTree("[0]", []tree.PortableNode{{Title: "x", URL: "http://x"}})
	if strings.Contains(out, "#") {
		t.Errorf("portable nodes rendered with ids:\n%s", out)
	}
}
