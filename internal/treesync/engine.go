package treesync

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/marksync/marksync/internal/config"
	"github.com/marksync/marksync/internal/tree"
)

// Options configures an Engine.
type Options struct {
	// Immutable lists containers nothing may be created under directly.
	// Defaults to the store's root container "0".
	Immutable IDSet

	// Observer receives run events (optional).
	Observer Observer

	// Logger for engine activity (default: stderr logger).
	Logger *log.Logger
}

// Engine runs uploads and downloads between the host tree and the remote
// store.
//
// At most one run is outstanding at a time. Concurrent calls in the same
// direction share a single run; a call in the other direction fails with
// ErrSyncInProgress.
//
// A shared run is not tied to any one caller's context. A caller whose
// context ends returns ctx.Err() at once; the run itself is cancelled only
// when every caller waiting on it has gone.
type Engine struct {
	host    Host
	remotes RemoteFactory
	configs ConfigSource

	eraser   *Eraser
	merger   *Merger
	observer Observer
	logger   *log.Logger

	flight  singleflight.Group
	mu      sync.Mutex
	running Direction
	waiting map[Direction]*flightCtx
}

// flightCtx is the context of a shared run and the number of callers on it.
type flightCtx struct {
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

// NewEngine creates an Engine.
//
// Example:
//
//	engine := treesync.NewEngine(db, func(webhook string, headers map[string]string) treesync.RemoteStore {
//	    return remote.New(webhook, headers, nil)
//	}, config.NewFile(path), treesync.Options{})
//	res, err := engine.Download(ctx)
func NewEngine(host Host, remotes RemoteFactory, configs ConfigSource, opts Options) *Engine {
	if opts.Logger == nil {
		opts.Logger = log.New(os.Stderr, "[sync] ", log.LstdFlags)
	}
	if opts.Immutable == nil {
		opts.Immutable = NewIDSet("0")
	}
	return &Engine{
		host:     host,
		remotes:  remotes,
		configs:  configs,
		eraser:   NewEraser(host, opts.Logger),
		merger:   NewMerger(host, opts.Immutable, opts.Logger),
		observer: opts.Observer,
		logger:   opts.Logger,
		waiting:  make(map[Direction]*flightCtx),
	}
}

// Running returns the direction of the outstanding run, or "" when idle.
func (e *Engine) Running() Direction {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// Upload pushes the children of the local mount point to the remote root.
func (e *Engine) Upload(ctx context.Context) (*Result, error) {
	return e.run(ctx, DirectionUpload, e.upload)
}

// Download replaces the children of the local mount point with the children
// of the remote root.
//
// The remote tree is fetched first so that an unreachable store leaves the
// local tree untouched. The local children are then erased and the fetched
// tree is merged onto what is left. A failure after erasure leaves the mount
// point partially populated until the next successful run.
func (e *Engine) Download(ctx context.Context) (*Result, error) {
	return e.run(ctx, DirectionDownload, e.download)
}

type runFunc func(ctx context.Context, cfg config.Sync, res *Result) error

func (e *Engine) run(ctx context.Context, dir Direction, fn runFunc) (*Result, error) {
	// Registering and joining the flight under one lock means a counted
	// caller is always attached to the run it is counted on.
	e.mu.Lock()
	fc := e.join(ctx, dir)
	ch := e.flight.DoChan(string(dir), func() (interface{}, error) {
		e.mu.Lock()
		if e.running != "" {
			other := e.running
			e.mu.Unlock()
			return nil, fmt.Errorf("%w: %s running", ErrSyncInProgress, other)
		}
		e.running = dir
		e.mu.Unlock()

		defer func() {
			e.mu.Lock()
			e.running = ""
			e.mu.Unlock()
		}()

		return e.execute(fc.ctx, dir, fn)
	})
	e.mu.Unlock()
	defer e.leave(dir, fc)

	select {
	case r := <-ch:
		if r.Shared {
			e.logger.Printf("Joined in-flight %s", dir)
		}
		res, _ := r.Val.(*Result)
		return res, r.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// join registers a caller on the shared run context for dir, creating it
// detached from ctx's cancellation but keeping its values. e.mu must be held.
func (e *Engine) join(ctx context.Context, dir Direction) *flightCtx {
	fc := e.waiting[dir]
	if fc == nil {
		runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		fc = &flightCtx{ctx: runCtx, cancel: cancel}
		e.waiting[dir] = fc
	}
	fc.waiters++
	return fc
}

// leave drops a caller; the last one out cancels the run context.
func (e *Engine) leave(dir Direction, fc *flightCtx) {
	e.mu.Lock()
	defer e.mu.Unlock()

	fc.waiters--
	if fc.waiters == 0 {
		fc.cancel()
		if e.waiting[dir] == fc {
			delete(e.waiting, dir)
		}
	}
}

func (e *Engine) execute(ctx context.Context, dir Direction, fn runFunc) (*Result, error) {
	res := &Result{
		RunID:     uuid.NewString(),
		Direction: dir,
		StartedAt: time.Now(),
	}

	cfg, err := e.configs.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if !cfg.Sync.Complete() {
		return nil, ErrConfigIncomplete
	}

	if e.observer != nil {
		e.observer.SyncStarted(res.RunID, dir)
	}
	e.logger.Printf("Starting %s %s (mount=%s remote=%s)", dir, res.RunID, cfg.Sync.MountOn, cfg.Sync.RemoteRoot)

	err = fn(ctx, cfg.Sync, res)
	res.Duration = time.Since(res.StartedAt)

	if e.observer != nil {
		e.observer.SyncFinished(res, err)
	}
	if err != nil {
		e.logger.Printf("%s %s failed after %v: %v", dir, res.RunID, res.Duration.Round(time.Millisecond), err)
		return res, err
	}

	e.logger.Printf("%s %s complete in %v", dir, res.RunID, res.Duration.Round(time.Millisecond))
	return res, nil
}

func (e *Engine) upload(ctx context.Context, cfg config.Sync, res *Result) error {
	mount, err := e.host.GetSubTree(ctx, cfg.MountOn)
	if err != nil {
		return fmt.Errorf("failed to read mount point %s: %w", cfg.MountOn, err)
	}

	body := tree.Serialize(mount.Children)
	if body == nil {
		body = []tree.PortableNode{}
	}
	res.Uploaded = tree.Count(body)

	reply, err := e.remotes(cfg.WebHook, cfg.Headers).Put(ctx, cfg.RemoteRoot, body)
	if err != nil {
		return err
	}
	res.Response = reply

	e.logger.Printf("Uploaded %d nodes to %s: %s", res.Uploaded, cfg.RemoteRoot, reply)
	return nil
}

func (e *Engine) download(ctx context.Context, cfg config.Sync, res *Result) error {
	target, err := e.remotes(cfg.WebHook, cfg.Headers).FetchChildren(ctx, cfg.RemoteRoot)
	if err != nil {
		return err
	}
	res.Fetched = tree.Count(target)

	mount, err := e.host.GetSubTree(ctx, cfg.MountOn)
	if err != nil {
		return fmt.Errorf("failed to read mount point %s: %w", cfg.MountOn, err)
	}

	res.Erase = Summarize(e.eraser.Erase(ctx, mount.Children))
	e.logger.Printf("Erased mount point %s: removed=%d kept=%d", cfg.MountOn, res.Erase.Removed, res.Erase.Kept)

	mount, err = e.host.GetSubTree(ctx, cfg.MountOn)
	if err != nil {
		return fmt.Errorf("failed to re-read mount point %s: %w", cfg.MountOn, err)
	}

	res.Merge = e.merger.Merge(ctx, mount.Children, target, mount.ID)
	e.logger.Printf("Merged %d remote nodes: created=%d reused=%d skipped=%d failed=%d",
		res.Fetched, res.Merge.Created, res.Merge.Reused, res.Merge.Skipped, res.Merge.Failed)
	return nil
}
