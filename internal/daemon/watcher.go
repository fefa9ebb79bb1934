package daemon

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// EventOp represents the type of change seen on the config file.
type EventOp int

const (
	// OpWrite indicates the file was created or rewritten.
	OpWrite EventOp = iota
	// OpDelete indicates the file was removed or renamed away.
	OpDelete
)

// String returns a human-readable representation of the operation.
func (op EventOp) String() string {
	switch op {
	case OpWrite:
		return "write"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// ConfigWatcher reports changes to a single file.
//
// The parent directory is watched rather than the file itself so that
// editors and atomic savers that replace the file by rename are still seen.
type ConfigWatcher struct {
	watcher *fsnotify.Watcher
	path    string
	events  chan EventOp
	errors  chan error
	done    chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// NewConfigWatcher creates a watcher for path. It emits nothing until Start.
func NewConfigWatcher(path string) (*ConfigWatcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", path, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	return &ConfigWatcher{
		watcher: watcher,
		path:    abs,
		events:  make(chan EventOp, 16),
		errors:  make(chan error, 4),
		done:    make(chan struct{}),
	}, nil
}

// Start begins watching.
func (cw *ConfigWatcher) Start() error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	if cw.running {
		return fmt.Errorf("watcher already running")
	}

	dir := filepath.Dir(cw.path)
	if err := cw.watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch config directory %s: %w", dir, err)
	}

	cw.running = true
	cw.wg.Add(1)
	go cw.processEvents()
	return nil
}

// Stop stops watching and closes the Events and Errors channels.
func (cw *ConfigWatcher) Stop() error {
	cw.mu.Lock()
	if !cw.running {
		cw.mu.Unlock()
		return cw.watcher.Close()
	}
	cw.running = false
	cw.mu.Unlock()

	close(cw.done)
	if err := cw.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}
	cw.wg.Wait()

	close(cw.events)
	close(cw.errors)
	return nil
}

// Events returns the channel of changes to the watched file.
func (cw *ConfigWatcher) Events() <-chan EventOp {
	return cw.events
}

// Errors returns the channel of watcher errors.
func (cw *ConfigWatcher) Errors() <-chan error {
	return cw.errors
}

func (cw *ConfigWatcher) processEvents() {
	defer cw.wg.Done()

	for {
		select {
		case <-cw.done:
			return

		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			op, ok := cw.convertEvent(event)
			if !ok {
				continue
			}
			select {
			case cw.events <- op:
			case <-cw.done:
				return
			}

		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			select {
			case cw.errors <- err:
			case <-cw.done:
				return
			}
		}
	}
}

func (cw *ConfigWatcher) convertEvent(event fsnotify.Event) (EventOp, bool) {
	abs, err := filepath.Abs(event.Name)
	if err != nil || abs != cw.path {
		return 0, false
	}

	switch {
	case event.Has(fsnotify.Create), event.Has(fsnotify.Write):
		return OpWrite, true
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		return OpDelete, true
	default:
		return 0, false
	}
}
