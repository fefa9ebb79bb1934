package treesync

import (
	"context"
	"encoding/json"
	"time"

	"github.com/marksync/marksync/internal/config"
	"github.com/marksync/marksync/internal/tree"
)

// Host is the mutable local bookmark tree.
//
// Implementations must tolerate concurrent mutations of unrelated branches.
type Host interface {
	// GetSubTree returns the node with the given id and all its descendants.
	GetSubTree(ctx context.Context, id string) (*tree.NativeNode, error)

	// Create creates a node and returns it with its new identifier.
	Create(ctx context.Context, req tree.CreateRequest) (*tree.NativeNode, error)

	// RemoveTree deletes a node and its subtree. It may reject protected
	// nodes; the eraser treats any error as a rejection.
	RemoveTree(ctx context.Context, id string) error
}

// RemoteStore is the HTTP store holding the remote tree.
type RemoteStore interface {
	// Put replaces the children of the folder at remoteRoot.
	Put(ctx context.Context, remoteRoot string, nodes []tree.PortableNode) (json.RawMessage, error)

	// FetchChildren returns the children of the folder at remoteRoot.
	FetchChildren(ctx context.Context, remoteRoot string) ([]tree.PortableNode, error)
}

// RemoteFactory builds a RemoteStore for the configured endpoint. It is
// called on every run because the endpoint and headers come from the
// configuration loaded for that run.
type RemoteFactory func(webhook string, headers map[string]string) RemoteStore

// ConfigSource loads the configuration. It is consulted at the start of
// every upload and download.
type ConfigSource interface {
	Load() (*config.Config, error)
}

// Direction says which way a run moves data.
type Direction string

const (
	// DirectionUpload pushes the local mount point to the remote store.
	DirectionUpload Direction = "upload"
	// DirectionDownload replaces the local mount point with the remote tree.
	DirectionDownload Direction = "download"
)

// Result summarizes one finished run.
type Result struct {
	RunID     string        `json:"run_id"`
	Direction Direction     `json:"direction"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`

	// Uploaded is the number of nodes sent (upload only).
	Uploaded int `json:"uploaded,omitempty"`
	// Response is the remote store's reply to an upload.
	Response json.RawMessage `json:"response,omitempty"`

	// Fetched is the number of nodes received (download only).
	Fetched int         `json:"fetched,omitempty"`
	Erase   EraseStats  `json:"erase"`
	Merge   MergeReport `json:"merge"`
}

// Observer receives run lifecycle events. Calls are synchronous; keep them short.
type Observer interface {
	SyncStarted(runID string, dir Direction)
	SyncFinished(res *Result, err error)
}
