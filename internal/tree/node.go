// Package tree provides the bookmark tree shapes shared by the local store,
// the remote transport and the sync engine.
//
// Two shapes exist:
//
//   - NativeNode is a node of the live local tree. It carries a stable ID and
//     a parent link and is only ever created or destroyed through the host
//     store.
//   - PortableNode is a detached structural copy (title, url, children) that
//     is safe to put on the wire.
//
// For both shapes a nil Children slice means the node has no children field
// (a bookmark). A non-nil empty slice means a folder with no children. The
// distinction survives JSON encoding.
package tree

// NativeNode is a node of the host-owned bookmark tree.
type NativeNode struct {
	ID       string       `json:"id"`
	ParentID string       `json:"parentId,omitempty"`
	Index    int          `json:"index"`
	Title    string       `json:"title"`
	URL      string       `json:"url,omitempty"`
	Children []NativeNode `json:"children,omitzero"`
}

// IsFolder reports whether the node has a children field.
func (n NativeNode) IsFolder() bool {
	return n.Children != nil
}

// NodeTitle implements Branch.
func (n NativeNode) NodeTitle() string { return n.Title }

// NodeID implements Branch.
func (n NativeNode) NodeID() string { return n.ID }

// NodeURL returns the bookmark url, empty for folders.
func (n NativeNode) NodeURL() string { return n.URL }

// ChildNodes implements Branch.
func (n NativeNode) ChildNodes() ([]NativeNode, bool) {
	return n.Children, n.Children != nil
}

// PortableNode is a transport-safe projection of a NativeNode.
type PortableNode struct {
	Title    string         `json:"title" yaml:"title"`
	URL      string         `json:"url,omitempty" yaml:"url,omitempty"`
	Children []PortableNode `json:"children,omitzero" yaml:"children,omitempty"`
}

// IsFolder reports whether the node has a children field.
func (n PortableNode) IsFolder() bool {
	return n.Children != nil
}

// NodeTitle implements Branch.
func (n PortableNode) NodeTitle() string { return n.Title }

// NodeID implements Branch. Portable nodes have no identity.
func (n PortableNode) NodeID() string { return "" }

// NodeURL returns the bookmark url, empty for folders.
func (n PortableNode) NodeURL() string { return n.URL }

// ChildNodes implements Branch.
func (n PortableNode) ChildNodes() ([]PortableNode, bool) {
	return n.Children, n.Children != nil
}

// Branch is implemented by both node shapes so folder indexing and address
// resolution work on either tree.
type Branch[N any] interface {
	NodeTitle() string
	NodeID() string
	ChildNodes() ([]N, bool)
}

// Serialize projects native nodes into portable nodes.
//
// Title and URL are copied, children are serialized recursively when present
// and left nil when absent. Sibling order is preserved exactly; identifiers
// and parent links are dropped.
func Serialize(nodes []NativeNode) []PortableNode {
	if nodes == nil {
		return nil
	}
	out := make([]PortableNode, len(nodes))
	for i, n := range nodes {
		out[i] = PortableNode{
			Title:    n.Title,
			URL:      n.URL,
			Children: Serialize(n.Children),
		}
	}
	return out
}

// Count returns the number of nodes in a portable forest.
func Count(nodes []PortableNode) int {
	total := 0
	for _, n := range nodes {
		total += 1 + Count(n.Children)
	}
	return total
}

// CreateRequest asks the host to create a node.
type CreateRequest struct {
	ParentID string
	// Index is the requested sibling position; nil appends.
	Index *int
	Title string
	// URL makes the node a bookmark; empty creates a folder.
	URL string
}
