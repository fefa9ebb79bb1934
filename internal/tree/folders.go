package tree

// FolderEntry describes one folder found by Flatten.
type FolderEntry struct {
	// Label is the chain of ancestor titles down to and including the
	// folder, each followed by "/" (for example "Bookmarks bar/Work/").
	Label string `json:"label"`

	// AddressPath locates the folder in any tree of the same shape.
	AddressPath string `json:"addressPath"`

	// ID is the folder's identifier when the flattened tree has one.
	ID string `json:"id,omitempty"`
}

type pending[N any] struct {
	node  N
	label string
	addr  Address
}

// Flatten lists every folder of the forest in pre-order.
//
// Nodes are taken from the front of a work queue. A folder is emitted and its
// children are put back at the front of the queue, so a folder's subtree is
// listed before the siblings that follow it. Bookmarks are walked past but
// never emitted.
func Flatten[N Branch[N]](nodes []N) []FolderEntry {
	queue := make([]pending[N], 0, len(nodes))
	for i, n := range nodes {
		queue = append(queue, pending[N]{node: n, label: n.NodeTitle(), addr: Address{i}})
	}

	var out []FolderEntry
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		children, ok := cur.node.ChildNodes()
		if !ok {
			continue
		}

		label := cur.label + "/"
		out = append(out, FolderEntry{
			Label:       label,
			AddressPath: cur.addr.String(),
			ID:          cur.node.NodeID(),
		})

		front := make([]pending[N], 0, len(children)+len(queue))
		for i, child := range children {
			front = append(front, pending[N]{
				node:  child,
				label: label + child.NodeTitle(),
				addr:  cur.addr.Child(i),
			})
		}
		queue = append(front, queue...)
	}
	return out
}
