package treesync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/marksync/marksync/internal/config"
	"github.com/marksync/marksync/internal/remote"
	"github.com/marksync/marksync/internal/tree"
)

var errRejected = errors.New("rejected by host")

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

type memNode struct {
	id       string
	parent   string
	pos      int
	title    string
	url      string
	isFolder bool
}

// memHost is an in-memory Host. Containers "0", "1" and "2" are protected
// and "0" only accepts the protected containers as children.
type memHost struct {
	mu        sync.Mutex
	nodes     map[string]*memNode
	nextID    int
	protected IDSet
	failOn    map[string]bool // titles whose creation fails

	calls atomic.Int64
}

func newMemHost() *memHost {
	h := &memHost{
		nodes:     make(map[string]*memNode),
		nextID:    3,
		protected: NewIDSet("0", "1", "2"),
		failOn:    make(map[string]bool),
	}
	h.nodes["0"] = &memNode{id: "0", isFolder: true}
	h.nodes["1"] = &memNode{id: "1", parent: "0", pos: 0, title: "Bookmarks bar", isFolder: true}
	h.nodes["2"] = &memNode{id: "2", parent: "0", pos: 1, title: "Other bookmarks", isFolder: true}
	return h
}

func (h *memHost) childrenOf(id string) []*memNode {
	var out []*memNode
	for _, n := range h.nodes {
		if n.parent == id && n.id != id {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].pos < out[j].pos })
	return out
}

func (h *memHost) build(n *memNode, index int) tree.NativeNode {
	node := tree.NativeNode{ID: n.id, ParentID: n.parent, Index: index, Title: n.title, URL: n.url}
	if n.isFolder {
		node.Children = []tree.NativeNode{}
		for i, c := range h.childrenOf(n.id) {
			node.Children = append(node.Children, h.build(c, i))
		}
	}
	return node
}

func (h *memHost) GetSubTree(ctx context.Context, id string) (*tree.NativeNode, error) {
	h.calls.Add(1)
	h.mu.Lock()
	defer h.mu.Unlock()

	n, ok := h.nodes[id]
	if !ok {
		return nil, fmt.Errorf("node %s not found", id)
	}
	index := 0
	if id != "0" {
		for i, s := range h.childrenOf(n.parent) {
			if s.id == id {
				index = i
			}
		}
	}
	node := h.build(n, index)
	return &node, nil
}

func (h *memHost) Create(ctx context.Context, req tree.CreateRequest) (*tree.NativeNode, error) {
	h.calls.Add(1)
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.failOn[req.Title] {
		return nil, errRejected
	}
	parent, ok := h.nodes[req.ParentID]
	if !ok || !parent.isFolder || req.ParentID == "0" {
		return nil, fmt.Errorf("invalid parent %s", req.ParentID)
	}

	siblings := h.childrenOf(req.ParentID)
	pos := len(siblings)
	if len(siblings) > 0 {
		pos = siblings[len(siblings)-1].pos + 1
	}
	if req.Index != nil {
		pos = *req.Index
		for _, s := range siblings {
			if s.pos == pos {
				for _, t := range siblings {
					if t.pos >= pos {
						t.pos++
					}
				}
				break
			}
		}
	}

	n := &memNode{
		id:       strconv.Itoa(h.nextID),
		parent:   req.ParentID,
		pos:      pos,
		title:    req.Title,
		url:      req.URL,
		isFolder: req.URL == "",
	}
	h.nextID++
	h.nodes[n.id] = n

	node := h.build(n, 0)
	return &node, nil
}

func (h *memHost) RemoveTree(ctx context.Context, id string) error {
	h.calls.Add(1)
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.protected.Has(id) {
		return errRejected
	}
	n, ok := h.nodes[id]
	if !ok {
		return fmt.Errorf("node %s not found", id)
	}
	h.drop(id)
	for i, s := range h.childrenOf(n.parent) {
		s.pos = i
	}
	return nil
}

func (h *memHost) drop(id string) {
	for _, c := range h.childrenOf(id) {
		h.drop(c.id)
	}
	delete(h.nodes, id)
}

// seed creates nodes under parent, failing the test setup on error.
func (h *memHost) seed(parent string, nodes []tree.PortableNode) {
	for _, n := range nodes {
		created, err := h.Create(context.Background(), tree.CreateRequest{ParentID: parent, Title: n.Title, URL: n.URL})
		if err != nil {
			panic(err)
		}
		h.seed(created.ID, n.Children)
	}
	h.calls.Store(0)
}

func (h *memHost) portable(id string) []tree.PortableNode {
	node, err := h.GetSubTree(context.Background(), id)
	if err != nil {
		panic(err)
	}
	return tree.Serialize(node.Children)
}

// memRemote is a RemoteStore backed by one folder's children.
type memRemote struct {
	mu       sync.Mutex
	children []tree.PortableNode
	puts     []string
	fetchErr error

	// block, when set, holds FetchChildren until closed; entered is closed
	// once the first fetch is waiting.
	block   chan struct{}
	entered chan struct{}
	once    sync.Once
	fetches atomic.Int64
}

func (r *memRemote) Put(ctx context.Context, remoteRoot string, nodes []tree.PortableNode) (json.RawMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.puts = append(r.puts, remoteRoot)
	r.children = nodes
	return json.RawMessage(fmt.Sprintf(`{"ok":true,"count":%d}`, tree.Count(nodes))), nil
}

func (r *memRemote) FetchChildren(ctx context.Context, remoteRoot string) ([]tree.PortableNode, error) {
	r.fetches.Add(1)
	if r.block != nil {
		r.once.Do(func() { close(r.entered) })
		select {
		case <-r.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if r.fetchErr != nil {
		return nil, r.fetchErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.children, nil
}

type staticConfig struct {
	cfg *config.Config
}

func (s staticConfig) Load() (*config.Config, error) {
	return s.cfg, nil
}

func completeConfig() staticConfig {
	cfg := config.Default()
	cfg.Sync = config.Sync{
		WebHook:    "http://remote.test",
		Headers:    map[string]string{"x-token": "t"},
		MountOn:    "1",
		RemoteRoot: "[0]",
	}
	return staticConfig{cfg: cfg}
}

type recordingObserver struct {
	mu       sync.Mutex
	started  []Direction
	finished []error
}

func (o *recordingObserver) SyncStarted(runID string, dir Direction) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.started = append(o.started, dir)
}

func (o *recordingObserver) SyncFinished(res *Result, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.finished = append(o.finished, err)
}

func transportFailure() error {
	return &remote.TransportError{Op: "GET", URL: "http://remote.test", Err: errors.New("connection refused")}
}
