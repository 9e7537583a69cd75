package tooling

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/ploston/dael/internal/daelerrors"
)

// httpRequestResponse sends one JSON-RPC request per HTTP POST and returns
// the body as the response, adapted from the teacher's
// HTTPRequestResponseTransport (internal/tools/mcp/http_transport.go).
type httpRequestResponse struct {
	url        string
	client     *http.Client
	authHeader string
	mu         sync.Mutex
	closed     bool
}

func newHTTPRequestResponse(url string, timeout time.Duration, authHeader string) *httpRequestResponse {
	return &httpRequestResponse{url: url, client: &http.Client{Timeout: timeout}, authHeader: authHeader}
}

func (t *httpRequestResponse) sendAndReceive(ctx context.Context, message []byte) ([]byte, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, fmt.Errorf("http transport is closed")
	}
	authHeader := t.authHeader
	t.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(message))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("http error %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}

func (t *httpRequestResponse) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	t.client.CloseIdleConnections()
	return nil
}

// httpTransport adapts httpRequestResponse to mcpTransport: Send issues the
// POST and queues its body; Receive drains the queue. A notification (no
// id) is sent and its response discarded.
type httpTransport struct {
	inner     *httpRequestResponse
	responses chan []byte
	mu        sync.Mutex
	closed    bool
}

func newHTTPTransport(url string, timeout time.Duration, authHeader string) *httpTransport {
	return &httpTransport{inner: newHTTPRequestResponse(url, timeout, authHeader), responses: make(chan []byte, 100)}
}

func (t *httpTransport) Send(ctx context.Context, message []byte) error {
	var msg mcpMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		return fmt.Errorf("parsing outgoing message: %w", err)
	}

	response, err := t.inner.sendAndReceive(ctx, message)
	if err != nil {
		return err
	}
	if msg.ID == nil {
		return nil
	}

	select {
	case t.responses <- response:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return fmt.Errorf("http transport response queue full")
	}
}

func (t *httpTransport) Receive(ctx context.Context) ([]byte, error) {
	select {
	case response, ok := <-t.responses:
		if !ok {
			return nil, fmt.Errorf("http transport closed")
		}
		return response, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (t *httpTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	close(t.responses)
	return t.inner.Close()
}

// httpBackend is an MCP server reached over plain HTTP request/response.
type httpBackend struct {
	id     string
	client *mcpClient
}

func newHTTPBackend(cfg ServerConfig, timeout time.Duration) (Backend, error) {
	b := &httpBackend{id: cfg.ID}
	b.client = newMCPClient(newHTTPTransport(cfg.URL, timeout, cfg.AuthHeader))

	initCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := b.client.Initialize(initCtx); err != nil {
		return nil, daelerrors.Wrap(daelerrors.MCPConnectionFailed, err, "mcp server %s: initialize over http", cfg.ID)
	}
	return b, nil
}

func (b *httpBackend) ID() string { return b.id }

func (b *httpBackend) ListTools(ctx context.Context) ([]Descriptor, error) {
	tools, err := b.client.ListTools(ctx)
	if err != nil {
		return nil, daelerrors.Wrap(daelerrors.MCPConnectionFailed, err, "mcp server %s: listing tools", b.id)
	}
	out := make([]Descriptor, 0, len(tools))
	for _, t := range tools {
		out = append(out, descriptorFromMCPTool(t, b.id))
	}
	return out, nil
}

func (b *httpBackend) Call(ctx context.Context, name string, params map[string]interface{}) (interface{}, error) {
	result, err := b.client.CallTool(ctx, name, params)
	if err != nil {
		return nil, daelerrors.Wrap(daelerrors.ToolFailed, err, "mcp server %s: tool %s failed: %v", b.id, name, err).WithRetryable(true)
	}
	return result, nil
}

func (b *httpBackend) Close() error { return b.client.Close() }
