package treesync

import (
	"context"
	"log"
	"os"
	"sync"
	"sync/atomic"

	"github.com/marksync/marksync/internal/tree"
)

// IDSet is a set of node identifiers.
type IDSet map[string]struct{}

// NewIDSet builds a set from ids.
func NewIDSet(ids ...string) IDSet {
	s := make(IDSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Has reports whether id is in the set.
func (s IDSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// Action is what the merger does at one index.
type Action int

const (
	// ActionReuse keeps the existing node and descends into it.
	ActionReuse Action = iota
	// ActionCreate creates the target node and descends into it.
	ActionCreate
	// ActionSkip does nothing: the parent is an immutable container.
	ActionSkip
)

// String returns a human-readable representation of the action.
func (a Action) String() string {
	switch a {
	case ActionReuse:
		return "reuse"
	case ActionCreate:
		return "create"
	case ActionSkip:
		return "skip"
	default:
		return "unknown"
	}
}

// Step is the decision for one target index.
type Step struct {
	Index    int
	Action   Action
	Existing *tree.NativeNode
	Target   tree.PortableNode
}

// Plan decides, for every index of target, whether the node at that index
// of existing is reused, a new node is created, or nothing happens.
//
// Identity is positional: existing[i] stands for target[i] whatever their
// titles and urls. Reused nodes are never updated in place.
func Plan(existing []tree.NativeNode, target []tree.PortableNode, parentID string, immutable IDSet) []Step {
	steps := make([]Step, len(target))
	for i, t := range target {
		steps[i] = Step{Index: i, Target: t}
		switch {
		case i < len(existing):
			steps[i].Action = ActionReuse
			steps[i].Existing = &existing[i]
		case immutable.Has(parentID):
			steps[i].Action = ActionSkip
		default:
			steps[i].Action = ActionCreate
		}
	}
	return steps
}

// MergeReport counts what a merge did.
type MergeReport struct {
	Reused  int `json:"reused"`
	Created int `json:"created"`
	Skipped int `json:"skipped"`
	// Failed counts creations the host refused; their subtrees were not
	// attempted.
	Failed int `json:"failed"`
}

type mergeCounters struct {
	reused, created, skipped, failed atomic.Int64
}

func (c *mergeCounters) report() MergeReport {
	return MergeReport{
		Reused:  int(c.reused.Load()),
		Created: int(c.created.Load()),
		Skipped: int(c.skipped.Load()),
		Failed:  int(c.failed.Load()),
	}
}

// Merger converges a native subtree toward a target portable subtree.
type Merger struct {
	host      Host
	immutable IDSet
	logger    *log.Logger
}

// NewMerger creates a Merger. Nodes are never created directly under an id in
// immutable. If logger is nil, a default logger writing to stderr is used.
func NewMerger(host Host, immutable IDSet, logger *log.Logger) *Merger {
	if logger == nil {
		logger = log.New(os.Stderr, "[sync] ", log.LstdFlags)
	}
	if immutable == nil {
		immutable = NewIDSet()
	}
	return &Merger{host: host, immutable: immutable, logger: logger}
}

// Merge walks existing and target in lock-step under parentID, creating
// whatever target has that existing lacks.
//
// All indexes of a level run concurrently; a node's children are only
// handled once the node itself exists. A failed creation abandons that
// branch only. Merge returns once every branch has settled.
func (m *Merger) Merge(ctx context.Context, existing []tree.NativeNode, target []tree.PortableNode, parentID string) MergeReport {
	var c mergeCounters
	m.merge(ctx, existing, target, parentID, &c)
	return c.report()
}

func (m *Merger) merge(ctx context.Context, existing []tree.NativeNode, target []tree.PortableNode, parentID string, c *mergeCounters) {
	steps := Plan(existing, target, parentID, m.immutable)

	var wg sync.WaitGroup
	for _, step := range steps {
		wg.Add(1)
		go func(step Step) {
			defer wg.Done()
			m.apply(ctx, step, parentID, c)
		}(step)
	}
	wg.Wait()
}

func (m *Merger) apply(ctx context.Context, step Step, parentID string, c *mergeCounters) {
	switch step.Action {
	case ActionSkip:
		c.skipped.Add(1)

	case ActionReuse:
		c.reused.Add(1)
		m.merge(ctx, step.Existing.Children, step.Target.Children, step.Existing.ID, c)

	case ActionCreate:
		if err := ctx.Err(); err != nil {
			c.failed.Add(1)
			return
		}
		index := step.Index
		node, err := m.host.Create(ctx, tree.CreateRequest{
			ParentID: parentID,
			Index:    &index,
			Title:    step.Target.Title,
			URL:      step.Target.URL,
		})
		if err != nil {
			c.failed.Add(1)
			m.logger.Printf("WARNING: Failed to create %q under %s at %d: %v",
				step.Target.Title, parentID, step.Index, err)
			return
		}
		c.created.Add(1)
		m.merge(ctx, node.Children, step.Target.Children, node.ID, c)
	}
}
