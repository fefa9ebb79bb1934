package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/marksync/marksync/internal/tree"
)

// emptyDocument is a fresh store: one unnamed root folder, addressable as "[0]".
const emptyDocument = `[{"title":"","children":[]}]`

// ServerConfig holds remote store server configuration.
type ServerConfig struct {
	// Addr to listen on (default: 127.0.0.1:8787)
	Addr string

	// DocumentPath is where the tree is persisted as JSON.
	DocumentPath string

	// Fs holds the document (default: OS filesystem).
	Fs afero.Fs

	// Token, when set, must be presented as "Authorization: Bearer <token>".
	Token string

	// Logger for server activity (default: stderr logger)
	Logger *log.Logger
}

// Server is a minimal remote store speaking the marksync protocol.
//
// The whole tree is one JSON document. GET returns it or, with a
// propertyPath query, the value at that path. PUT /<path> replaces the
// children of the folder at <path>.
type Server struct {
	config   *ServerConfig
	listener net.Listener
	server   *http.Server
	logger   *log.Logger

	mu  sync.RWMutex
	doc []byte
}

// NewServer creates a server and loads the persisted document, if any.
func NewServer(config *ServerConfig) (*Server, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if config.DocumentPath == "" {
		return nil, fmt.Errorf("DocumentPath cannot be empty")
	}
	if config.Addr == "" {
		config.Addr = "127.0.0.1:8787"
	}
	if config.Fs == nil {
		config.Fs = afero.NewOsFs()
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[store] ", log.LstdFlags)
	}

	s := &Server{config: config, logger: config.Logger}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Server) load() error {
	data, err := afero.ReadFile(s.config.Fs, s.config.DocumentPath)
	if errors.Is(err, os.ErrNotExist) {
		s.doc = []byte(emptyDocument)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read document %s: %w", s.config.DocumentPath, err)
	}
	if !gjson.ValidBytes(data) || !gjson.ParseBytes(data).IsArray() {
		return fmt.Errorf("document %s is not a JSON array", s.config.DocumentPath)
	}
	s.doc = data
	return nil
}

func (s *Server) persist(doc []byte) error {
	fs := s.config.Fs
	if err := fs.MkdirAll(filepath.Dir(s.config.DocumentPath), 0755); err != nil {
		return fmt.Errorf("failed to create document directory: %w", err)
	}
	tmp := s.config.DocumentPath + ".tmp"
	if err := afero.WriteFile(fs, tmp, doc, 0644); err != nil {
		return fmt.Errorf("failed to write document: %w", err)
	}
	if err := fs.Rename(tmp, s.config.DocumentPath); err != nil {
		_ = fs.Remove(tmp)
		return fmt.Errorf("failed to replace document: %w", err)
	}
	return nil
}

// Handler returns the HTTP handler serving the protocol.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(s.serveHTTP)
}

// Start begins listening in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Addr, err)
	}
	s.listener = ln

	s.server = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		s.logger.Printf("Remote store listening on %s", ln.Addr())
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Printf("Server error: %v", err)
		}
	}()
	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop() error {
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}
	return nil
}

// GetAddr returns the server's listening address.
func (s *Server) GetAddr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.config.Addr
}

func (s *Server) serveHTTP(w http.ResponseWriter, r *http.Request) {
	if s.config.Token != "" && r.Header.Get("Authorization") != "Bearer "+s.config.Token {
		writeError(w, http.StatusUnauthorized, "missing or invalid token")
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.handleGet(w, r)
	case http.MethodPut:
		s.handlePut(w, r)
	default:
		w.Header().Set("Allow", "GET, PUT")
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	segs, err := parsePropertyPath(r.URL.Query().Get("propertyPath"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.mu.RLock()
	doc := s.doc
	s.mu.RUnlock()

	out := doc
	if len(segs) > 0 {
		res := gjson.GetBytes(doc, gjsonPath(segs))
		if !res.Exists() {
			writeError(w, http.StatusNotFound, "no value at property path")
			return
		}
		out = []byte(res.Raw)
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(out)
}

func (s *Server) handlePut(w http.ResponseWriter, r *http.Request) {
	p := strings.TrimPrefix(r.URL.Path, "/")
	segs, err := parsePropertyPath(p)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}
	var nodes []tree.PortableNode
	if err := json.Unmarshal(body, &nodes); err != nil {
		writeError(w, http.StatusBadRequest, "body must be a JSON array of nodes")
		return
	}
	if nodes == nil {
		nodes = []tree.PortableNode{}
	}
	normalized, err := json.Marshal(nodes)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to encode nodes")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var doc []byte
	if len(segs) == 0 {
		doc = normalized
	} else {
		path := gjsonPath(segs)
		folder := gjson.GetBytes(s.doc, path)
		if !folder.Exists() || !folder.IsObject() {
			writeError(w, http.StatusNotFound, "no folder at property path")
			return
		}
		doc, err = sjson.SetRawBytes(s.doc, path+".children", normalized)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}

	if err := s.persist(doc); err != nil {
		s.logger.Printf("Failed to persist document: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to persist document")
		return
	}
	s.doc = doc

	// count covers every stored node, not only the top level.
	count := tree.Count(nodes)
	s.logger.Printf("Stored %d nodes at %q", count, p)

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"ok":    true,
		"path":  p,
		"count": count,
	})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
