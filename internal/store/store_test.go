package store

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/marksync/marksync/internal/tree"
)

// setupTestDB opens a fresh database with the containers seeded.
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := db.InitSchema(context.Background()); err != nil {
		t.Fatalf("InitSchema() failed: %v", err)
	}
	return db
}

func mustCreate(t *testing.T, db *DB, parent, title, url string) *tree.NativeNode {
	t.Helper()

	node, err := db.Create(context.Background(), tree.CreateRequest{ParentID: parent, Title: title, URL: url})
	if err != nil {
		t.Fatalf("Create(%s/%s) failed: %v", parent, title, err)
	}
	return node
}

func titles(nodes []tree.NativeNode) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.Title
	}
	return out
}

func TestInitSchemaSeedsContainers(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	// Running twice must not duplicate the containers.
	if err := db.InitSchema(ctx); err != nil {
		t.Fatalf("second InitSchema() failed: %v", err)
	}

	count, err := db.CountNodes(ctx)
	if err != nil {
		t.Fatalf("CountNodes() failed: %v", err)
	}
	if count != 4 {
		t.Errorf("CountNodes() = %d, want 4", count)
	}

	roots, err := db.GetTree(ctx)
	if err != nil {
		t.Fatalf("GetTree() failed: %v", err)
	}
	if len(roots) != 1 || roots[0].ID != RootID {
		t.Fatalf("unexpected roots: %+v", roots)
	}
	got := titles(roots[0].Children)
	want := []string{"Bookmarks bar", "Other bookmarks", "Mobile bookmarks"}
	if len(got) != len(want) {
		t.Fatalf("containers = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("container %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestCreateAndGetSubTree(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	folder := mustCreate(t, db, "1", "Work", "")
	if !folder.IsFolder() {
		t.Error("folder created without children field")
	}
	mustCreate(t, db, folder.ID, "go", "https://go.dev")
	mustCreate(t, db, folder.ID, "pkg", "https://pkg.go.dev")

	sub, err := db.GetSubTree(ctx, "1")
	if err != nil {
		t.Fatalf("GetSubTree() failed: %v", err)
	}
	if len(sub.Children) != 1 || sub.Children[0].Title != "Work" {
		t.Fatalf("unexpected children of bar: %+v", sub.Children)
	}

	work := sub.Children[0]
	if work.ParentID != "1" {
		t.Errorf("ParentID = %q, want 1", work.ParentID)
	}
	if got := titles(work.Children); len(got) != 2 || got[0] != "go" || got[1] != "pkg" {
		t.Errorf("children = %v, want [go pkg]", got)
	}
	if work.Children[1].Index != 1 {
		t.Errorf("Index = %d, want 1", work.Children[1].Index)
	}
	if work.Children[0].Children != nil {
		t.Error("bookmark has a children field")
	}
}

func TestCreateRejectsInvalidParents(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	bookmark := mustCreate(t, db, "2", "leaf", "http://leaf")

	tests := []struct {
		name   string
		parent string
		want   error
	}{
		{name: "root container", parent: RootID, want: ErrInvalidParent},
		{name: "bookmark parent", parent: bookmark.ID, want: ErrInvalidParent},
		{name: "missing parent", parent: "999", want: ErrNotFound},
		{name: "malformed id", parent: "abc", want: ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := db.Create(ctx, tree.CreateRequest{ParentID: tt.parent, Title: "x"})
			if !errors.Is(err, tt.want) {
				t.Errorf("Create() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestCreateAtOccupiedIndexShifts(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	mustCreate(t, db, "2", "a", "http://a")
	mustCreate(t, db, "2", "c", "http://c")

	idx := 1
	if _, err := db.Create(ctx, tree.CreateRequest{ParentID: "2", Index: &idx, Title: "b", URL: "http://b"}); err != nil {
		t.Fatalf("Create() failed: %v", err)
	}

	sub, err := db.GetSubTree(ctx, "2")
	if err != nil {
		t.Fatalf("GetSubTree() failed: %v", err)
	}
	if got := titles(sub.Children); len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Errorf("children = %v, want [a b c]", got)
	}
}

func TestConcurrentIndexedCreatesKeepOrder(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	folder := mustCreate(t, db, "1", "Batch", "")
	want := []string{"n0", "n1", "n2", "n3", "n4", "n5", "n6", "n7"}

	var wg sync.WaitGroup
	errs := make(chan error, len(want))
	for i := len(want) - 1; i >= 0; i-- {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			idx := i
			_, err := db.Create(ctx, tree.CreateRequest{ParentID: folder.ID, Index: &idx, Title: want[i], URL: "http://" + want[i]})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent Create() failed: %v", err)
		}
	}

	sub, err := db.GetSubTree(ctx, folder.ID)
	if err != nil {
		t.Fatalf("GetSubTree() failed: %v", err)
	}
	got := titles(sub.Children)
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("children = %v, want %v", got, want)
		}
	}
}

func TestRemoveTree(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	folder := mustCreate(t, db, "1", "Work", "")
	mustCreate(t, db, folder.ID, "go", "https://go.dev")
	nested := mustCreate(t, db, folder.ID, "nested", "")
	mustCreate(t, db, nested.ID, "deep", "http://deep")
	mustCreate(t, db, "1", "after", "http://after")

	if err := db.RemoveTree(ctx, folder.ID); err != nil {
		t.Fatalf("RemoveTree() failed: %v", err)
	}

	count, err := db.CountNodes(ctx)
	if err != nil {
		t.Fatalf("CountNodes() failed: %v", err)
	}
	if count != 5 {
		t.Errorf("CountNodes() = %d, want 5", count)
	}

	sub, err := db.GetSubTree(ctx, "1")
	if err != nil {
		t.Fatalf("GetSubTree() failed: %v", err)
	}
	if len(sub.Children) != 1 || sub.Children[0].Title != "after" || sub.Children[0].Index != 0 {
		t.Errorf("unexpected remaining children: %+v", sub.Children)
	}

	if _, err := db.GetSubTree(ctx, nested.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("nested folder still present, err = %v", err)
	}
}

func TestRemoveTreeRejectsContainers(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	for _, id := range []string{"0", "1", "2", "3"} {
		if err := db.RemoveTree(ctx, id); !errors.Is(err, ErrProtected) {
			t.Errorf("RemoveTree(%s) error = %v, want ErrProtected", id, err)
		}
	}

	if err := db.RemoveTree(ctx, "4242"); !errors.Is(err, ErrNotFound) {
		t.Errorf("RemoveTree(missing) error = %v, want ErrNotFound", err)
	}
}
