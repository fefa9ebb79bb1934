package daemon

import (
	"context"
	"errors"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/marksync/marksync/internal/config"
	"github.com/marksync/marksync/internal/treesync"
)

// fakeRunner records runs. When gate is set every run blocks on it after
// announcing itself on entered.
type fakeRunner struct {
	mu        sync.Mutex
	uploads   int
	downloads int
	err       error

	gate    chan struct{}
	entered chan string
}

func (r *fakeRunner) do(action string) (*treesync.Result, error) {
	if r.entered != nil {
		r.entered <- action
	}
	if r.gate != nil {
		<-r.gate
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if action == ActionUpload {
		r.uploads++
	} else {
		r.downloads++
	}
	if r.err != nil {
		return nil, r.err
	}
	return &treesync.Result{}, nil
}

func (r *fakeRunner) Upload(ctx context.Context) (*treesync.Result, error) {
	return r.do(ActionUpload)
}

func (r *fakeRunner) Download(ctx context.Context) (*treesync.Result, error) {
	return r.do(ActionDownload)
}

func (r *fakeRunner) counts() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.uploads, r.downloads
}

func testConfig() *Config {
	return &Config{
		Interval: time.Hour,
		Logger:   log.New(io.Discard, "", 0),
	}
}

// startDaemon runs d in the background and stops it at test end.
func startDaemon(t *testing.T, d *Daemon) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Start(ctx) }()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("Start returned error: %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Error("daemon did not stop")
		}
	})
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestNew(t *testing.T) {
	if _, err := New(nil, nil); err == nil {
		t.Error("expected error for nil runner")
	}

	d, err := New(&fakeRunner{}, &Config{})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if d.Interval() != DefaultInterval {
		t.Errorf("Interval() = %v, want %v", d.Interval(), DefaultInterval)
	}
}

func TestRunOnStartDownloads(t *testing.T) {
	runner := &fakeRunner{}
	cfg := testConfig()
	cfg.RunOnStart = true

	d, err := New(runner, cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	startDaemon(t, d)

	waitFor(t, "initial download", func() bool {
		_, downloads := runner.counts()
		return downloads == 1
	})
}

func TestTrigger(t *testing.T) {
	runner := &fakeRunner{}
	d, err := New(runner, testConfig())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	startDaemon(t, d)

	if _, err := d.Trigger("BOOKMARK_SYNC_SIDEWAYS"); !errors.Is(err, ErrUnknownAction) {
		t.Errorf("expected ErrUnknownAction, got %v", err)
	}

	accepted, err := d.Trigger(ActionUpload)
	if err != nil || !accepted {
		t.Fatalf("Trigger(upload) = %v, %v", accepted, err)
	}
	waitFor(t, "upload", func() bool {
		uploads, _ := runner.counts()
		return uploads == 1
	})
}

func TestTriggerDropsWhilePending(t *testing.T) {
	runner := &fakeRunner{gate: make(chan struct{}), entered: make(chan string, 4)}
	d, err := New(runner, testConfig())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	startDaemon(t, d)
	defer close(runner.gate)

	if ok, _ := d.Trigger(ActionUpload); !ok {
		t.Fatal("first trigger dropped")
	}
	select {
	case <-runner.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("first run never started")
	}

	if ok, _ := d.Trigger(ActionDownload); !ok {
		t.Error("second trigger should wait behind the running one")
	}
	if ok, _ := d.Trigger(ActionDownload); ok {
		t.Error("third trigger should be dropped while one is pending")
	}
}

func TestFailuresAreNotFatal(t *testing.T) {
	runner := &fakeRunner{err: errors.New("remote exploded")}
	d, err := New(runner, testConfig())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	startDaemon(t, d)

	for want := 1; want <= 2; want++ {
		if ok, _ := d.Trigger(ActionDownload); !ok {
			t.Fatalf("trigger %d dropped", want)
		}
		waitFor(t, "failed download", func() bool {
			_, downloads := runner.counts()
			return downloads == want
		})
	}
}

func TestScheduledDownloads(t *testing.T) {
	runner := &fakeRunner{}
	cfg := testConfig()
	cfg.Interval = 20 * time.Millisecond

	d, err := New(runner, cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	startDaemon(t, d)

	waitFor(t, "scheduled downloads", func() bool {
		_, downloads := runner.counts()
		return downloads >= 2
	})
}

func TestConfigChangeRearmsTicker(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	file := config.NewFile(path)

	initial := config.Default()
	initial.Store.Path = filepath.Join(t.TempDir(), "bookmarks.db")
	initial.Daemon.Interval = "1h"
	if err := file.Save(initial); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	runner := &fakeRunner{}
	cfg := testConfig()
	cfg.Configs = file
	cfg.ConfigPath = path

	d, err := New(runner, cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	startDaemon(t, d)

	// Let the watcher settle before editing.
	time.Sleep(50 * time.Millisecond)

	initial.Daemon.Interval = "20ms"
	if err := file.Save(initial); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	waitFor(t, "interval reload", func() bool {
		return d.Interval() == 20*time.Millisecond
	})
	waitFor(t, "downloads at the new interval", func() bool {
		_, downloads := runner.counts()
		return downloads >= 2
	})
}

func TestConfigWatcherIgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	w, err := NewConfigWatcher(path)
	if err != nil {
		t.Fatalf("NewConfigWatcher failed: %v", err)
	}
	if err := w.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer w.Stop()

	if err := os.WriteFile(filepath.Join(dir, "other.toml"), []byte("x"), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if err := os.WriteFile(path, []byte("[daemon]\n"), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	select {
	case op := <-w.Events():
		if op != OpWrite {
			t.Errorf("op = %v, want write", op)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no event for the config file")
	}
}
