// Package treesync implements the one-way synchronization between the local
// bookmark tree and a remote tree served over HTTP.
//
// # Components
//
//   - Eraser deletes subtrees, falling back to clearing the children of any
//     node the host refuses to delete.
//   - Merger walks an existing native subtree and a target portable subtree
//     side by side, index by index, reusing what exists and creating what
//     is missing.
//   - Engine wires both to the configuration, the host and the remote store
//     for the two operations, Upload and Download.
//
// # Positional identity
//
// The merger never compares titles or urls. The node at index i of the
// existing tree stands for the node at index i of the target tree. After a
// download has erased the mount point, the only nodes left are the ones the
// host refused to delete, so positions line up with the fetched tree.
//
// Nothing is ever created directly under an immutable container (the root
// of the store); existing nodes under it are still descended into.
//
//	target:   [A [x y]]         existing: []          parent: mount
//	plan:     0 → create A
//	          A: 0 → create x, 1 → create y
//
// # Concurrency
//
// Siblings are erased and merged concurrently. A child is only created after
// its parent exists. The Engine allows one outstanding run: callers asking
// for the same direction share it, callers asking for the other direction get
// ErrSyncInProgress.
//
// # Error Handling
//
//   - Missing configuration aborts with ErrConfigIncomplete before any call
//   - Transport failures abort the run; the next scheduled run retries
//   - Host rejections during erase are recovered and never surfaced
//   - Creation failures during merge are counted and isolated to their branch
package treesync
