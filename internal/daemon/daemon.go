package daemon

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/marksync/marksync/internal/treesync"
)

// Actions accepted by Trigger.
const (
	ActionUpload   = "BOOKMARK_SYNC_UPLOAD"
	ActionDownload = "BOOKMARK_SYNC_DOWNLOAD"
)

// ErrUnknownAction is returned by Trigger for anything but the two actions.
var ErrUnknownAction = errors.New("unknown action")

// DefaultInterval is used when the configured interval is missing or invalid.
const DefaultInterval = 30 * time.Minute

// Runner performs syncs. *treesync.Engine implements it.
type Runner interface {
	Upload(ctx context.Context) (*treesync.Result, error)
	Download(ctx context.Context) (*treesync.Result, error)
}

// Config holds configuration for the daemon.
type Config struct {
	// Interval between scheduled downloads. Replaced by the config file's
	// value whenever the file changes.
	Interval time.Duration

	// RunOnStart queues a download as soon as the daemon starts.
	RunOnStart bool

	// Configs is re-read when the config file changes (optional).
	Configs treesync.ConfigSource

	// ConfigPath is watched for changes; empty disables watching.
	ConfigPath string

	// Logger for daemon activity
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Interval:   DefaultInterval,
		RunOnStart: true,
		Logger:     log.New(os.Stderr, "[daemon] ", log.LstdFlags),
	}
}

// Daemon schedules downloads and runs triggered syncs one at a time.
type Daemon struct {
	runner Runner
	config *Config

	watcher *ConfigWatcher
	pending chan string
	rearm   chan time.Duration

	mu       sync.Mutex
	interval time.Duration
	started  bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a daemon driving runner. config may be nil.
func New(runner Runner, config *Config) (*Daemon, error) {
	if runner == nil {
		return nil, fmt.Errorf("runner cannot be nil")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[daemon] ", log.LstdFlags)
	}
	if config.Interval <= 0 {
		config.Interval = DefaultInterval
	}

	d := &Daemon{
		runner:   runner,
		config:   config,
		pending:  make(chan string, 1),
		rearm:    make(chan time.Duration, 1),
		interval: config.Interval,
	}
	d.ctx, d.cancel = context.WithCancel(context.Background())

	if config.ConfigPath != "" {
		w, err := NewConfigWatcher(config.ConfigPath)
		if err != nil {
			return nil, err
		}
		d.watcher = w
	}
	return d, nil
}

// Interval returns the current scheduling interval.
func (d *Daemon) Interval() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.interval
}

// Trigger queues a sync. It reports false when the request was dropped
// because another one is already waiting.
func (d *Daemon) Trigger(action string) (bool, error) {
	if action != ActionUpload && action != ActionDownload {
		return false, fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}

	select {
	case d.pending <- action:
		return true, nil
	default:
		d.config.Logger.Printf("Dropping %s: a sync is already pending", action)
		return false, nil
	}
}

// Start runs the daemon until ctx is cancelled or Stop is called.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.started {
		d.mu.Unlock()
		return fmt.Errorf("daemon already started")
	}
	d.started = true
	d.mu.Unlock()

	d.config.Logger.Printf("Starting daemon (interval %v)", d.Interval())

	if d.watcher != nil {
		if err := d.watcher.Start(); err != nil {
			return err
		}
		d.config.Logger.Printf("Watching: %s", d.config.ConfigPath)
		d.wg.Add(1)
		go d.watchConfig()
	}

	if d.config.RunOnStart {
		_, _ = d.Trigger(ActionDownload)
	}

	d.wg.Add(2)
	go d.processQueue()
	go d.schedule()

	select {
	case <-ctx.Done():
		d.config.Logger.Println("Shutdown signal received")
		return d.Stop()
	case <-d.ctx.Done():
		return nil
	}
}

// Stop gracefully shuts down the daemon, waiting for a running sync.
func (d *Daemon) Stop() error {
	d.config.Logger.Println("Stopping daemon")
	d.cancel()

	if d.watcher != nil {
		if err := d.watcher.Stop(); err != nil {
			d.config.Logger.Printf("Error closing watcher: %v", err)
		}
	}

	d.wg.Wait()
	d.config.Logger.Println("Daemon stopped")
	return nil
}

// processQueue runs queued actions one after another.
func (d *Daemon) processQueue() {
	defer d.wg.Done()

	for {
		select {
		case <-d.ctx.Done():
			return
		case action := <-d.pending:
			d.run(action)
		}
	}
}

// run performs one action. Failures are logged, never propagated.
func (d *Daemon) run(action string) {
	var (
		res *treesync.Result
		err error
	)
	switch action {
	case ActionUpload:
		res, err = d.runner.Upload(d.ctx)
	case ActionDownload:
		res, err = d.runner.Download(d.ctx)
	}

	switch {
	case err == nil:
		d.config.Logger.Printf("%s done in %v", action, res.Duration.Round(time.Millisecond))
	case treesync.IsSilent(err):
		d.config.Logger.Printf("Skipping %s: %v", action, err)
	case treesync.IsRetryable(err):
		d.config.Logger.Printf("%s failed, will retry on next run: %v", action, err)
	default:
		d.config.Logger.Printf("Error running %s: %v", action, err)
	}
}

// schedule queues a download every interval.
func (d *Daemon) schedule() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.Interval())
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return

		case interval := <-d.rearm:
			ticker.Reset(interval)
			d.config.Logger.Printf("Interval changed to %v", interval)

		case <-ticker.C:
			_, _ = d.Trigger(ActionDownload)
		}
	}
}

// watchConfig re-reads the configuration when its file changes.
func (d *Daemon) watchConfig() {
	defer d.wg.Done()

	for {
		select {
		case <-d.ctx.Done():
			return

		case op, ok := <-d.watcher.Events():
			if !ok {
				return
			}
			if op == OpWrite {
				d.reloadInterval()
			}

		case err, ok := <-d.watcher.Errors():
			if !ok {
				return
			}
			d.config.Logger.Printf("Watcher error: %v", err)
		}
	}
}

func (d *Daemon) reloadInterval() {
	if d.config.Configs == nil {
		return
	}

	cfg, err := d.config.Configs.Load()
	if err != nil {
		d.config.Logger.Printf("Ignoring config change: %v", err)
		return
	}
	interval, err := cfg.Daemon.IntervalDuration()
	if err != nil || interval <= 0 {
		interval = DefaultInterval
	}

	d.mu.Lock()
	changed := interval != d.interval
	d.interval = interval
	d.mu.Unlock()
	if !changed {
		return
	}

	// Only the latest interval matters.
	select {
	case <-d.rearm:
	default:
	}
	d.rearm <- interval
}
