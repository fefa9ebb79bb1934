package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/marksync/marksync/internal/tree"
)

type nodeRow struct {
	id       int64
	parentID sql.NullInt64
	title    string
	url      sql.NullString
	position int
}

// GetTree returns the whole tree as a single-element slice holding the root.
func (db *DB) GetTree(ctx context.Context) ([]tree.NativeNode, error) {
	root, err := db.GetSubTree(ctx, RootID)
	if err != nil {
		return nil, err
	}
	return []tree.NativeNode{*root}, nil
}

// GetSubTree returns the node with the given id and everything below it.
func (db *DB) GetSubTree(ctx context.Context, id string) (*tree.NativeNode, error) {
	rootID, err := parseID(id)
	if err != nil {
		return nil, err
	}

	query := `
	WITH RECURSIVE sub(id) AS (
		SELECT id FROM nodes WHERE id = ?
		UNION ALL
		SELECT n.id FROM nodes n JOIN sub ON n.parent_id = sub.id
	)
	SELECT n.id, n.parent_id, n.title, n.url, n.position
	FROM nodes n JOIN sub ON n.id = sub.id
	ORDER BY n.parent_id, n.position, n.id
	`

	rows, err := db.conn.QueryContext(ctx, query, rootID)
	if err != nil {
		return nil, fmt.Errorf("failed to query subtree %s: %w", id, err)
	}
	defer rows.Close()

	byID := make(map[int64]nodeRow)
	children := make(map[int64][]int64)
	for rows.Next() {
		var r nodeRow
		if err := rows.Scan(&r.id, &r.parentID, &r.title, &r.url, &r.position); err != nil {
			return nil, fmt.Errorf("failed to scan node: %w", err)
		}
		byID[r.id] = r
		if r.id != rootID && r.parentID.Valid {
			children[r.parentID.Int64] = append(children[r.parentID.Int64], r.id)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read subtree %s: %w", id, err)
	}

	root, ok := byID[rootID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	node := assemble(root, root.position, byID, children)
	return &node, nil
}

func assemble(r nodeRow, index int, byID map[int64]nodeRow, children map[int64][]int64) tree.NativeNode {
	n := tree.NativeNode{
		ID:    formatID(r.id),
		Index: index,
		Title: r.title,
	}
	if r.parentID.Valid {
		n.ParentID = formatID(r.parentID.Int64)
	}
	if r.url.Valid {
		n.URL = r.url.String
		return n
	}

	kids := children[r.id]
	n.Children = make([]tree.NativeNode, 0, len(kids))
	for i, kid := range kids {
		n.Children = append(n.Children, assemble(byID[kid], i, byID, children))
	}
	return n
}

// Create inserts a new node under req.ParentID.
//
// An empty URL creates a folder. When req.Index names a position already
// taken, that sibling and the ones after it move down by one; otherwise the
// index is used as given so that creations issued concurrently for distinct
// indexes end up in index order.
func (db *DB) Create(ctx context.Context, req tree.CreateRequest) (*tree.NativeNode, error) {
	parentID, err := parseID(req.ParentID)
	if err != nil {
		return nil, err
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var grandparent sql.NullInt64
	var parentURL sql.NullString
	err = tx.QueryRowContext(ctx, "SELECT parent_id, url FROM nodes WHERE id = ?", parentID).Scan(&grandparent, &parentURL)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: parent %s", ErrNotFound, req.ParentID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up parent %s: %w", req.ParentID, err)
	}
	if !grandparent.Valid {
		return nil, fmt.Errorf("%w: cannot create under the root container", ErrInvalidParent)
	}
	if parentURL.Valid {
		return nil, fmt.Errorf("%w: parent %s is a bookmark", ErrInvalidParent, req.ParentID)
	}

	position, err := reservePosition(ctx, tx, parentID, req.Index)
	if err != nil {
		return nil, err
	}

	var url sql.NullString
	if req.URL != "" {
		url = sql.NullString{String: req.URL, Valid: true}
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO nodes (parent_id, title, url, position, protected, date_added) VALUES (?, ?, ?, ?, 0, ?)`,
		parentID, req.Title, url, position, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert node: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read new node id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	node := &tree.NativeNode{
		ID:       formatID(id),
		ParentID: req.ParentID,
		Index:    position,
		Title:    req.Title,
		URL:      req.URL,
	}
	if req.URL == "" {
		node.Children = []tree.NativeNode{}
	}
	return node, nil
}

func reservePosition(ctx context.Context, tx *sql.Tx, parentID int64, index *int) (int, error) {
	if index == nil || *index < 0 {
		var next int
		err := tx.QueryRowContext(ctx,
			"SELECT COALESCE(MAX(position) + 1, 0) FROM nodes WHERE parent_id = ?", parentID,
		).Scan(&next)
		if err != nil {
			return 0, fmt.Errorf("failed to compute position: %w", err)
		}
		return next, nil
	}

	var taken int
	err := tx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM nodes WHERE parent_id = ? AND position = ?", parentID, *index,
	).Scan(&taken)
	if err != nil {
		return 0, fmt.Errorf("failed to check position: %w", err)
	}
	if taken > 0 {
		_, err := tx.ExecContext(ctx,
			"UPDATE nodes SET position = position + 1 WHERE parent_id = ? AND position >= ?", parentID, *index,
		)
		if err != nil {
			return 0, fmt.Errorf("failed to shift siblings: %w", err)
		}
	}
	return *index, nil
}

// RemoveTree deletes a node and its whole subtree.
//
// The fixed containers cannot be removed and yield ErrProtected; callers are
// expected to clear their children instead.
func (db *DB) RemoveTree(ctx context.Context, id string) error {
	nodeID, err := parseID(id)
	if err != nil {
		return err
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var parentID sql.NullInt64
	var protected bool
	err = tx.QueryRowContext(ctx, "SELECT parent_id, protected FROM nodes WHERE id = ?", nodeID).Scan(&parentID, &protected)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("failed to look up node %s: %w", id, err)
	}
	if protected {
		return fmt.Errorf("%w: %s", ErrProtected, id)
	}

	query := `
	DELETE FROM nodes WHERE id IN (
		WITH RECURSIVE sub(id) AS (
			SELECT ?
			UNION ALL
			SELECT n.id FROM nodes n JOIN sub ON n.parent_id = sub.id
		)
		SELECT id FROM sub
	)
	`
	if _, err := tx.ExecContext(ctx, query, nodeID); err != nil {
		return fmt.Errorf("failed to delete subtree %s: %w", id, err)
	}

	// Keep sibling positions dense.
	compact := `
	UPDATE nodes SET position = (
		SELECT r.rn FROM (
			SELECT id, ROW_NUMBER() OVER (ORDER BY position, id) - 1 AS rn
			FROM nodes WHERE parent_id = ?
		) r WHERE r.id = nodes.id
	)
	WHERE parent_id = ?
	`
	if _, err := tx.ExecContext(ctx, compact, parentID, parentID); err != nil {
		return fmt.Errorf("failed to compact positions: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
