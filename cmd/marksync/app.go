package main

import (
	"context"
	"fmt"
	"os"

	"github.com/marksync/marksync/internal/config"
	"github.com/marksync/marksync/internal/logging"
	"github.com/marksync/marksync/internal/remote"
	"github.com/marksync/marksync/internal/store"
	"github.com/marksync/marksync/internal/treesync"
)

// app bundles what most commands need.
type app struct {
	file *config.File
	cfg  *config.Config
	sink *logging.Sink
	db   *store.DB
}

// configFile returns the --config file or the default location.
func configFile() (*config.File, error) {
	path := configPath
	if path == "" {
		p, err := config.DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}
	return config.NewFile(path), nil
}

// dbOverride applies --db to a freshly loaded configuration.
type dbOverride struct {
	*config.File
}

func (o dbOverride) Load() (*config.Config, error) {
	cfg, err := o.File.Load()
	if err != nil {
		return nil, err
	}
	if dbPath != "" {
		cfg.Store.Path = dbPath
	}
	return cfg, nil
}

// openApp loads the configuration, sets up logging and opens the store.
func openApp(ctx context.Context) (*app, error) {
	file, err := configFile()
	if err != nil {
		return nil, err
	}
	cfg, err := dbOverride{file}.Load()
	if err != nil {
		return nil, err
	}

	sink, err := logging.NewSink(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	db, err := store.Open(cfg.Store.Path)
	if err != nil {
		_ = sink.Close()
		return nil, err
	}
	if err := db.InitSchema(ctx); err != nil {
		_ = db.Close()
		_ = sink.Close()
		return nil, err
	}

	return &app{file: file, cfg: cfg, sink: sink, db: db}, nil
}

func (a *app) Close() {
	if err := a.db.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to close database: %v\n", err)
	}
	_ = a.sink.Close()
}

// remoteFactory builds remote clients sharing the app's logger.
func (a *app) remoteFactory() treesync.RemoteFactory {
	logger := a.sink.Logger("remote")
	return func(webhook string, headers map[string]string) treesync.RemoteStore {
		return remote.New(webhook, headers, &remote.Config{Logger: logger})
	}
}

// engine wires a sync engine to the store and the remote.
func (a *app) engine(observer treesync.Observer) *treesync.Engine {
	return treesync.NewEngine(a.db, a.remoteFactory(), dbOverride{a.file}, treesync.Options{
		Observer: observer,
		Logger:   a.sink.Logger("sync"),
	})
}

// remoteClient returns a client for the configured webhook.
func (a *app) remoteClient() (*remote.Client, error) {
	if a.cfg.Sync.WebHook == "" {
		return nil, fmt.Errorf("no webhook configured (run 'marksync configure')")
	}
	return remote.New(a.cfg.Sync.WebHook, a.cfg.Sync.Headers, &remote.Config{Logger: a.sink.Logger("remote")}), nil
}
