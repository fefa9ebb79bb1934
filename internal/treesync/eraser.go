package treesync

import (
	"context"
	"log"
	"os"
	"sync"

	"github.com/marksync/marksync/internal/tree"
)

// EraseResult is the outcome of erasing one node.
//
// Removed means the node and its subtree are gone. Otherwise the host
// rejected the deletion, the node is still there and Children holds the
// outcomes of erasing its children instead.
type EraseResult struct {
	ID       string        `json:"id"`
	Title    string        `json:"title"`
	Removed  bool          `json:"removed"`
	Children []EraseResult `json:"children,omitempty"`
}

// EraseStats aggregates a set of erase outcomes.
type EraseStats struct {
	// Removed counts subtree roots deleted in one host call.
	Removed int `json:"removed"`
	// Kept counts nodes whose deletion was rejected and that were cleared
	// child by child instead.
	Kept int `json:"kept"`
}

// Summarize folds erase outcomes into counts.
func Summarize(results []EraseResult) EraseStats {
	var s EraseStats
	for _, r := range results {
		if r.Removed {
			s.Removed++
			continue
		}
		s.Kept++
		sub := Summarize(r.Children)
		s.Removed += sub.Removed
		s.Kept += sub.Kept
	}
	return s
}

// Eraser clears subtrees of the host tree.
type Eraser struct {
	host   Host
	logger *log.Logger
}

// NewEraser creates an Eraser. If logger is nil, a default logger writing to
// stderr is used.
func NewEraser(host Host, logger *log.Logger) *Eraser {
	if logger == nil {
		logger = log.New(os.Stderr, "[sync] ", log.LstdFlags)
	}
	return &Eraser{host: host, logger: logger}
}

// Erase deletes every root concurrently. A root the host refuses to delete
// stays in place and its children are erased the same way. Erase never
// fails; the returned outcomes say what was removed.
func (e *Eraser) Erase(ctx context.Context, roots []tree.NativeNode) []EraseResult {
	results := make([]EraseResult, len(roots))

	var wg sync.WaitGroup
	for i := range roots {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = e.eraseNode(ctx, roots[i])
		}(i)
	}
	wg.Wait()

	return results
}

func (e *Eraser) eraseNode(ctx context.Context, node tree.NativeNode) EraseResult {
	res := EraseResult{ID: node.ID, Title: node.Title}

	err := e.host.RemoveTree(ctx, node.ID)
	if err == nil {
		res.Removed = true
		return res
	}

	if len(node.Children) > 0 {
		e.logger.Printf("Delete of %s (%s) rejected, clearing its %d children: %v",
			node.ID, node.Title, len(node.Children), err)
	}
	res.Children = e.Erase(ctx, node.Children)
	return res
}
