// Package dashboard provides the daemon's HTTP surface: a WebSocket feed of
// sync events and the endpoint that triggers syncs.
package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// MessageType names a feed event.
type MessageType string

const (
	MessageTypeSyncStarted  MessageType = "sync_started"
	MessageTypeSyncComplete MessageType = "sync_complete"
	MessageTypeSyncFailed   MessageType = "sync_failed"

	// MessageTypeTrigger echoes a POST /trigger and its outcome.
	MessageTypeTrigger MessageType = "trigger"

	// MessageTypeStatus carries StatusData. Every client gets one on connect.
	MessageTypeStatus MessageType = "status"
)

// Message is one frame on the feed.
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// TriggerFunc queues a sync for action. It reports false when the request
// was dropped because one is already pending.
type TriggerFunc func(action string) (bool, error)

// TriggerRequest is the body of POST /trigger.
type TriggerRequest struct {
	Action string `json:"action"`
}

// TriggerResponse echoes the request with its outcome.
type TriggerResponse struct {
	Action string `json:"action"`
	Queued bool   `json:"queued"`
}

// outboxSize bounds how far a client may fall behind before it is dropped.
const outboxSize = 64

const writeTimeout = 5 * time.Second

// subscriber is one feed connection with its own writer goroutine.
type subscriber struct {
	conn   *websocket.Conn
	outbox chan []byte
	done   chan struct{}
	once   sync.Once
}

func (sub *subscriber) close(code websocket.StatusCode, reason string) {
	sub.once.Do(func() {
		close(sub.done)
		_ = sub.conn.Close(code, reason)
	})
}

// Server serves the feed, /health and /trigger.
type Server struct {
	addr     string
	trigger  TriggerFunc
	logger   *log.Logger
	listener net.Listener
	http     *http.Server

	mu     sync.Mutex
	subs   map[*subscriber]struct{}
	status func() StatusData
	closed bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Config holds server configuration.
type Config struct {
	// Addr to listen on (default: 127.0.0.1:7777)
	Addr string

	// Trigger receives POST /trigger requests (optional)
	Trigger TriggerFunc

	// Logger for server activity (default: stderr logger)
	Logger *log.Logger
}

// DefaultConfig returns the configuration used when NewServer gets nil.
func DefaultConfig() *Config {
	return &Config{
		Addr:   "127.0.0.1:7777",
		Logger: log.Default(),
	}
}

// NewServer creates a dashboard server; call Start to begin listening.
func NewServer(config *Config) *Server {
	if config == nil {
		config = DefaultConfig()
	}
	addr := config.Addr
	if addr == "" {
		addr = DefaultConfig().Addr
	}
	logger := config.Logger
	if logger == nil {
		logger = log.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		addr:    addr,
		trigger: config.Trigger,
		logger:  logger,
		subs:    make(map[*subscriber]struct{}),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleFeed)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/trigger", s.handleTrigger)
	mux.HandleFunc("/", s.handleRoot)
	return mux
}

// Start listens on the configured address and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = ln
	s.http = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Printf("Dashboard listening on %s", ln.Addr())
		if err := s.http.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Printf("Server error: %v", err)
		}
	}()
	return nil
}

// Stop closes every feed connection and shuts the listener down.
func (s *Server) Stop() error {
	s.cancel()

	s.mu.Lock()
	s.closed = true
	subs := s.subs
	s.subs = make(map[*subscriber]struct{})
	s.mu.Unlock()

	for sub := range subs {
		sub.close(websocket.StatusGoingAway, "shutting down")
	}

	var shutdownErr error
	if s.http != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.http.Shutdown(ctx); err != nil {
			shutdownErr = fmt.Errorf("failed to shut down dashboard: %w", err)
		}
	}

	s.wg.Wait()
	s.logger.Println("Dashboard stopped")
	return shutdownErr
}

// Broadcast queues msg for every connected client. A client whose outbox is
// full is disconnected; the others are not held up.
func (s *Server) Broadcast(msg Message) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	frame, err := json.Marshal(msg)
	if err != nil {
		s.logger.Printf("Failed to marshal %s message: %v", msg.Type, err)
		return
	}

	var slow []*subscriber
	s.mu.Lock()
	for sub := range s.subs {
		select {
		case sub.outbox <- frame:
		default:
			delete(s.subs, sub)
			slow = append(slow, sub)
		}
	}
	s.mu.Unlock()

	for _, sub := range slow {
		s.logger.Println("Dropping client that fell behind")
		sub.close(websocket.StatusPolicyViolation, "too slow")
	}
}

// setStatusSource makes new clients receive fn's snapshot on connect.
func (s *Server) setStatusSource(fn func() StatusData) {
	s.mu.Lock()
	s.status = fn
	s.mu.Unlock()
}

func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"localhost:*", "127.0.0.1:*"},
	})
	if err != nil {
		s.logger.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	sub := &subscriber{
		conn:   conn,
		outbox: make(chan []byte, outboxSize),
		done:   make(chan struct{}),
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		sub.close(websocket.StatusGoingAway, "shutting down")
		return
	}
	var snapshot StatusData
	if s.status != nil {
		snapshot = s.status()
	}
	if welcome, err := json.Marshal(snapshot); err == nil {
		if frame, err := json.Marshal(Message{Type: MessageTypeStatus, Timestamp: time.Now(), Data: welcome}); err == nil {
			sub.outbox <- frame
		}
	}
	s.subs[sub] = struct{}{}
	count := len(s.subs)
	s.wg.Add(2)
	s.mu.Unlock()

	s.logger.Printf("Client connected (total: %d)", count)

	go s.writeLoop(sub)
	go s.readLoop(sub)
}

func (s *Server) writeLoop(sub *subscriber) {
	defer s.wg.Done()

	for {
		select {
		case <-sub.done:
			return
		case <-s.ctx.Done():
			return
		case frame := <-sub.outbox:
			ctx, cancel := context.WithTimeout(s.ctx, writeTimeout)
			err := sub.conn.Write(ctx, websocket.MessageText, frame)
			cancel()
			if err != nil {
				s.drop(sub)
				return
			}
		}
	}
}

// readLoop discards client frames; it returns when the client goes away.
func (s *Server) readLoop(sub *subscriber) {
	defer s.wg.Done()
	defer s.drop(sub)

	for {
		if _, _, err := sub.conn.Read(s.ctx); err != nil {
			return
		}
	}
}

func (s *Server) drop(sub *subscriber) {
	s.mu.Lock()
	_, ok := s.subs[sub]
	delete(s.subs, sub)
	count := len(s.subs)
	s.mu.Unlock()

	sub.close(websocket.StatusNormalClosure, "")
	if ok {
		s.logger.Printf("Client disconnected (total: %d)", count)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"clients": s.ClientCount(),
	})
}

// handleTrigger forwards {"action": ...} to the trigger function and echoes
// the request back with whether it was queued.
func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.trigger == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "no sync scheduler attached")
		return
	}

	var req TriggerRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<16)).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, `body must be {"action": ...}`)
		return
	}

	queued, err := s.trigger(req.Action)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp := TriggerResponse{Action: req.Action, Queued: queued}
	if data, err := json.Marshal(resp); err == nil {
		s.Broadcast(Message{Type: MessageTypeTrigger, Data: data})
	}

	status := http.StatusAccepted
	if !queued {
		status = http.StatusOK
	}
	writeJSON(w, status, resp)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = fmt.Fprintf(w, `<!DOCTYPE html>
<html>
<head><title>marksync</title></head>
<body>
  <h1>marksync daemon</h1>
  <p>Event feed: <code>ws://%s/ws</code></p>
  <p>Health: <a href="/health">/health</a></p>
  <p>Sync now: <code>POST /trigger {"action": "BOOKMARK_SYNC_DOWNLOAD"}</code></p>
</body>
</html>`, r.Host)
}

// GetAddr returns the bound address once started, the configured one before.
func (s *Server) GetAddr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// ClientCount returns the number of connected feed clients.
func (s *Server) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
