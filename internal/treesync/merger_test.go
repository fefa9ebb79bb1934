package treesync

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/marksync/marksync/internal/tree"
)

func folder(title string, children ...tree.PortableNode) tree.PortableNode {
	if children == nil {
		children = []tree.PortableNode{}
	}
	return tree.PortableNode{Title: title, Children: children}
}

func bookmark(title string) tree.PortableNode {
	return tree.PortableNode{Title: title, URL: "http://" + title}
}

func TestPlan(t *testing.T) {
	existing := []tree.NativeNode{{ID: "7", Title: "old"}}
	target := []tree.PortableNode{bookmark("a"), bookmark("b"), bookmark("c")}

	tests := []struct {
		name      string
		parentID  string
		immutable IDSet
		want      []Action
	}{
		{name: "mutable parent", parentID: "1", immutable: NewIDSet("0"), want: []Action{ActionReuse, ActionCreate, ActionCreate}},
		{name: "immutable parent", parentID: "0", immutable: NewIDSet("0"), want: []Action{ActionReuse, ActionSkip, ActionSkip}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			steps := Plan(existing, target, tt.parentID, tt.immutable)
			got := make([]Action, len(steps))
			for i, s := range steps {
				got[i] = s.Action
				if s.Index != i {
					t.Errorf("step %d has index %d", i, s.Index)
				}
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("actions mismatch (-want +got):\n%s", diff)
			}
			if steps[0].Existing == nil || steps[0].Existing.ID != "7" {
				t.Errorf("reuse step does not point at the existing node: %+v", steps[0])
			}
		})
	}
}

func TestPlanIgnoresTitles(t *testing.T) {
	existing := []tree.NativeNode{{ID: "9", Title: "different", URL: "http://elsewhere"}}
	steps := Plan(existing, []tree.PortableNode{bookmark("same")}, "1", NewIDSet())
	if steps[0].Action != ActionReuse {
		t.Errorf("Action = %v, want reuse regardless of title", steps[0].Action)
	}
}

func TestMergeOntoEmptyReproducesTarget(t *testing.T) {
	host := newMemHost()
	m := NewMerger(host, NewIDSet("0"), quietLogger())

	target := []tree.PortableNode{
		folder("A", bookmark("x"), bookmark("y"), folder("deep", bookmark("z"))),
		bookmark("b"),
		folder("empty"),
	}

	report := m.Merge(context.Background(), nil, target, "1")

	if report.Created != tree.Count(target) {
		t.Errorf("Created = %d, want %d", report.Created, tree.Count(target))
	}
	if report.Reused != 0 || report.Failed != 0 || report.Skipped != 0 {
		t.Errorf("unexpected report: %+v", report)
	}
	if diff := cmp.Diff(target, host.portable("1")); diff != "" {
		t.Errorf("local tree mismatch (-want +got):\n%s", diff)
	}
}

func TestMergeIsIdempotent(t *testing.T) {
	host := newMemHost()
	m := NewMerger(host, NewIDSet("0"), quietLogger())
	ctx := context.Background()

	target := []tree.PortableNode{folder("A", bookmark("x"), bookmark("y"))}
	m.Merge(ctx, nil, target, "1")

	mount, err := host.GetSubTree(ctx, "1")
	if err != nil {
		t.Fatalf("GetSubTree failed: %v", err)
	}
	report := m.Merge(ctx, mount.Children, target, "1")

	if report.Created != 0 {
		t.Errorf("second merge created %d nodes, want 0", report.Created)
	}
	if report.Reused != 3 {
		t.Errorf("Reused = %d, want 3", report.Reused)
	}
	if diff := cmp.Diff(target, host.portable("1")); diff != "" {
		t.Errorf("local tree changed (-want +got):\n%s", diff)
	}
}

func TestMergeNeverCreatesUnderImmutableRoot(t *testing.T) {
	host := newMemHost()
	m := NewMerger(host, NewIDSet("0"), quietLogger())
	ctx := context.Background()

	root, err := host.GetSubTree(ctx, "0")
	if err != nil {
		t.Fatalf("GetSubTree failed: %v", err)
	}

	target := []tree.PortableNode{
		folder("bar", bookmark("x")),
		folder("other"),
		folder("extra", bookmark("never")),
	}
	report := m.Merge(ctx, root.Children, target, "0")

	if report.Skipped != 1 {
		t.Errorf("Skipped = %d, want 1", report.Skipped)
	}
	if report.Created != 1 {
		t.Errorf("Created = %d, want 1 (x under the bookmarks bar)", report.Created)
	}

	after, _ := host.GetSubTree(ctx, "0")
	if len(after.Children) != 2 {
		t.Errorf("root has %d children, want the 2 containers", len(after.Children))
	}
	if got := host.portable("1"); len(got) != 1 || got[0].Title != "x" {
		t.Errorf("bookmarks bar = %+v, want [x]", got)
	}
}

func TestMergeIsolatesFailedBranches(t *testing.T) {
	host := newMemHost()
	host.failOn["bad"] = true
	m := NewMerger(host, NewIDSet("0"), quietLogger())

	target := []tree.PortableNode{
		folder("good", bookmark("g1")),
		folder("bad", bookmark("b1"), bookmark("b2")),
		bookmark("tail"),
	}
	report := m.Merge(context.Background(), nil, target, "1")

	if report.Failed != 1 {
		t.Errorf("Failed = %d, want 1", report.Failed)
	}
	if report.Created != 3 {
		t.Errorf("Created = %d, want 3 (good, g1, tail)", report.Created)
	}

	want := []tree.PortableNode{folder("good", bookmark("g1")), bookmark("tail")}
	if diff := cmp.Diff(want, host.portable("1")); diff != "" {
		t.Errorf("local tree mismatch (-want +got):\n%s", diff)
	}
}

func TestMergeReusedBookmarkCannotHoldChildren(t *testing.T) {
	host := newMemHost()
	host.seed("1", []tree.PortableNode{bookmark("leaf")})
	m := NewMerger(host, NewIDSet("0"), quietLogger())
	ctx := context.Background()

	mount, _ := host.GetSubTree(ctx, "1")
	report := m.Merge(ctx, mount.Children, []tree.PortableNode{folder("F", bookmark("x"))}, "1")

	if report.Reused != 1 || report.Failed != 1 {
		t.Errorf("report = %+v, want 1 reused and 1 failed", report)
	}
}
