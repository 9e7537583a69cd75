package tooling

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ploston/dael/internal/daelerrors"
)

// websocketTransport keeps a single persistent connection to a remote MCP
// server, reconnecting lazily on send failure, adapted from the teacher's
// WebSocketTransport (internal/tools/mcp/websocket_transport.go).
type websocketTransport struct {
	url        string
	authHeader string
	timeout    time.Duration

	mu   sync.Mutex
	conn *websocket.Conn

	closed    bool
	closeChan chan struct{}
}

func newWebSocketTransport(url string, timeout time.Duration, authHeader string) *websocketTransport {
	return &websocketTransport{url: url, timeout: timeout, authHeader: authHeader, closeChan: make(chan struct{})}
}

func (t *websocketTransport) connect(ctx context.Context) error {
	header := http.Header{}
	if t.authHeader != "" {
		header.Set("Authorization", t.authHeader)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, t.url, header)
	if err != nil {
		return fmt.Errorf("connecting to websocket: %w", err)
	}
	t.conn = conn
	return nil
}

func (t *websocketTransport) Send(ctx context.Context, message []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return fmt.Errorf("websocket transport is closed")
	}
	if t.conn == nil {
		if err := t.connect(ctx); err != nil {
			return err
		}
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = t.conn.SetWriteDeadline(deadline)
	}
	if err := t.conn.WriteMessage(websocket.TextMessage, message); err != nil {
		t.conn.Close()
		t.conn = nil
		return fmt.Errorf("sending websocket message: %w", err)
	}
	return nil
}

func (t *websocketTransport) Receive(ctx context.Context) ([]byte, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, fmt.Errorf("websocket transport is closed")
	}
	conn := t.conn
	t.mu.Unlock()

	if conn == nil {
		return nil, fmt.Errorf("websocket not connected")
	}
	if t.timeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(t.timeout))
	}

	msgType, message, err := conn.ReadMessage()
	if err != nil {
		t.mu.Lock()
		if t.conn != nil {
			t.conn.Close()
			t.conn = nil
		}
		t.mu.Unlock()
		return nil, fmt.Errorf("reading websocket message: %w", err)
	}
	if msgType != websocket.TextMessage {
		return nil, fmt.Errorf("unexpected websocket message type %d", msgType)
	}
	return message, nil
}

func (t *websocketTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	close(t.closeChan)
	if t.conn != nil {
		err := t.conn.Close()
		t.conn = nil
		return err
	}
	return nil
}

// websocketBackend is an MCP server reached over a persistent WebSocket
// connection.
type websocketBackend struct {
	id     string
	client *mcpClient
}

func newWebSocketBackend(cfg ServerConfig, timeout time.Duration) (Backend, error) {
	b := &websocketBackend{id: cfg.ID}
	b.client = newMCPClient(newWebSocketTransport(cfg.URL, timeout, cfg.AuthHeader))

	initCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := b.client.Initialize(initCtx); err != nil {
		return nil, daelerrors.Wrap(daelerrors.MCPConnectionFailed, err, "mcp server %s: initialize over websocket", cfg.ID)
	}
	return b, nil
}

func (b *websocketBackend) ID() string { return b.id }

func (b *websocketBackend) ListTools(ctx context.Context) ([]Descriptor, error) {
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

func (b *websocketBackend) Call(ctx context.Context, name string, params map[string]interface{}) (interface{}, error) {
	result, err := b.client.CallTool(ctx, name, params)
	if err != nil {
		return nil, daelerrors.Wrap(daelerrors.ToolFailed, err, "mcp server %s: tool %s failed: %v", b.id, name, err).WithRetryable(true)
	}
	return result, nil
}

func (b *websocketBackend) Close() error { return b.client.Close() }
