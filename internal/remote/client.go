// Package remote talks to the HTTP store holding the remote bookmark tree.
//
// The protocol is three requests:
//
//	PUT <base>/<remoteRoot>                       body: JSON array of nodes
//	GET <base>?propertyPath=<remoteRoot>.children  → JSON array of nodes
//	GET <base>                                    → the whole remote tree
//
// Configured headers are sent unchanged with every request.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/marksync/marksync/internal/tree"
)

// ErrTransport is wrapped by every TransportError.
var ErrTransport = errors.New("remote transport failure")

// TransportError describes a failed request to the remote store.
type TransportError struct {
	Op         string
	URL        string
	StatusCode int // 0 when no response was received
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s: status %d: %v", e.Op, e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.URL, e.Err)
}

func (e *TransportError) Unwrap() []error {
	return []error{ErrTransport, e.Err}
}

// maxBody bounds how much of a response is read.
const maxBody = 32 << 20

// Client is a remote store client.
type Client struct {
	base    string
	headers map[string]string
	http    *http.Client
	logger  *log.Logger
}

// Config holds optional client settings.
type Config struct {
	// HTTPClient overrides the default client (30s timeout).
	HTTPClient *http.Client

	// Logger for request activity (default: stderr logger).
	Logger *log.Logger
}

// New creates a client for the store at base. config may be nil.
func New(base string, headers map[string]string, config *Config) *Client {
	if config == nil {
		config = &Config{}
	}
	if config.HTTPClient == nil {
		config.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[remote] ", log.LstdFlags)
	}
	return &Client{
		base:    strings.TrimRight(base, "/"),
		headers: headers,
		http:    config.HTTPClient,
		logger:  config.Logger,
	}
}

// Put replaces the children of the folder at remoteRoot with nodes and
// returns the store's JSON reply.
func (c *Client) Put(ctx context.Context, remoteRoot string, nodes []tree.PortableNode) (json.RawMessage, error) {
	target := c.base + "/" + remoteRoot

	body, err := json.Marshal(nodes)
	if err != nil {
		return nil, fmt.Errorf("failed to encode nodes: %w", err)
	}

	data, err := c.do(ctx, http.MethodPut, target, body)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	if !json.Valid(data) {
		return nil, &TransportError{Op: http.MethodPut, URL: target, Err: errors.New("reply is not JSON")}
	}
	return json.RawMessage(data), nil
}

// FetchChildren returns the children of the folder at remoteRoot.
func (c *Client) FetchChildren(ctx context.Context, remoteRoot string) ([]tree.PortableNode, error) {
	target := c.base + "?propertyPath=" + url.QueryEscape(remoteRoot+".children")
	return c.fetchNodes(ctx, target)
}

// FetchTree returns the whole remote tree.
func (c *Client) FetchTree(ctx context.Context) ([]tree.PortableNode, error) {
	return c.fetchNodes(ctx, c.base)
}

func (c *Client) fetchNodes(ctx context.Context, target string) ([]tree.PortableNode, error) {
	data, err := c.do(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}

	var nodes []tree.PortableNode
	if err := json.Unmarshal(data, &nodes); err != nil {
		return nil, &TransportError{Op: http.MethodGet, URL: target, Err: fmt.Errorf("failed to decode nodes: %w", err)}
	}
	return nodes, nil
}

func (c *Client) do(ctx context.Context, method, target string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, &TransportError{Op: method, URL: target, Err: err}
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	if body != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &TransportError{Op: method, URL: target, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, &TransportError{Op: method, URL: target, StatusCode: resp.StatusCode, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := strings.TrimSpace(string(data))
		if len(msg) > 200 {
			msg = msg[:200]
		}
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return nil, &TransportError{Op: method, URL: target, StatusCode: resp.StatusCode, Err: errors.New(msg)}
	}

	c.logger.Printf("%s %s: %d (%d bytes)", method, target, resp.StatusCode, len(data))
	return data, nil
}
