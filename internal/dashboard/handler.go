package dashboard

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/marksync/marksync/internal/treesync"
)

// SyncStartedData announces a run.
type SyncStartedData struct {
	RunID     string             `json:"run_id"`
	Direction treesync.Direction `json:"direction"`
}

// SyncFailedData describes an aborted run.
type SyncFailedData struct {
	RunID     string             `json:"run_id"`
	Direction treesync.Direction `json:"direction"`
	Error     string             `json:"error"`
	Retryable bool               `json:"retryable"`
}

// StatusData accumulates run statistics.
type StatusData struct {
	Runs          int                `json:"runs"`
	Failures      int                `json:"failures"`
	Running       treesync.Direction `json:"running,omitempty"`
	LastRunID     string             `json:"last_run_id,omitempty"`
	LastDirection treesync.Direction `json:"last_direction,omitempty"`
	LastError     string             `json:"last_error,omitempty"`
	LastFinished  time.Time          `json:"last_finished,omitzero"`
}

// Handler turns engine events into dashboard messages. It implements
// treesync.Observer.
type Handler struct {
	server *Server
	logger *log.Logger

	mu     sync.Mutex
	status StatusData
}

var _ treesync.Observer = (*Handler)(nil)

// NewHandler feeds server with engine events. Clients connecting later get
// the handler's current StatusData as their first frame.
func NewHandler(server *Server, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.Default()
	}
	h := &Handler{server: server, logger: logger}
	server.setStatusSource(h.GetStatus)
	return h
}

// SyncStarted implements treesync.Observer.
func (h *Handler) SyncStarted(runID string, dir treesync.Direction) {
	h.mu.Lock()
	h.status.Running = dir
	h.mu.Unlock()

	h.send(MessageTypeSyncStarted, SyncStartedData{RunID: runID, Direction: dir})
}

// SyncFinished implements treesync.Observer.
func (h *Handler) SyncFinished(res *treesync.Result, err error) {
	h.mu.Lock()
	h.status.Running = ""
	h.status.Runs++
	h.status.LastRunID = res.RunID
	h.status.LastDirection = res.Direction
	h.status.LastFinished = time.Now()
	h.status.LastError = ""
	if err != nil {
		h.status.Failures++
		h.status.LastError = err.Error()
	}
	status := h.status
	h.mu.Unlock()

	if err != nil {
		h.logger.Printf("Sync failed: %s %s: %v", res.Direction, res.RunID, err)
		h.send(MessageTypeSyncFailed, SyncFailedData{
			RunID:     res.RunID,
			Direction: res.Direction,
			Error:     err.Error(),
			Retryable: treesync.IsRetryable(err),
		})
	} else {
		h.send(MessageTypeSyncComplete, res)
	}
	h.send(MessageTypeStatus, status)
}

func (h *Handler) GetStatus() StatusData {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status
}

func (h *Handler) send(typ MessageType, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.logger.Printf("Failed to marshal %s data: %v", typ, err)
		return
	}
	h.server.Broadcast(Message{Type: typ, Data: data})
}
