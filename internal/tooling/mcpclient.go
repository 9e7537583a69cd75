package tooling

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
)

// mcpTransport is the wire-level duplex a mcpClient rides on: stdio pipes,
// an HTTP request/response pairing, or a WebSocket connection
// (mcpstdio.go, mcphttp.go, mcpws.go).
type mcpTransport interface {
	Send(ctx context.Context, message []byte) error
	Receive(ctx context.Context) ([]byte, error)
	Close() error
}

// mcpMessage is a JSON-RPC 2.0 envelope, shared by requests, responses, and
// notifications.
type mcpMessage struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *int64          `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *mcpError       `json:"error,omitempty"`
}

type mcpError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

type mcpResponse struct {
	Result json.RawMessage
	Error  *mcpError
}

// mcpTool is one entry in a tools/list result.
type mcpTool struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// mcpClient drives the initialize / tools/list / tools/call JSON-RPC
// exchange over an mcpTransport, correlating responses to requests by id.
type mcpClient struct {
	transport mcpTransport
	requestID atomic.Int64
	pending   map[int64]chan *mcpResponse
	mu        sync.Mutex
	closed    bool
	closeChan chan struct{}
}

func newMCPClient(transport mcpTransport) *mcpClient {
	c := &mcpClient{
		transport: transport,
		pending:   make(map[int64]chan *mcpResponse),
		closeChan: make(chan struct{}),
	}
	go c.receiveLoop()
	return c
}

func (c *mcpClient) Initialize(ctx context.Context) error {
	params := map[string]interface{}{
		"protocolVersion": "2024-11-05",
		"capabilities": map[string]interface{}{
			"tools": map[string]interface{}{},
		},
		"clientInfo": map[string]interface{}{
			"name":    "dael",
			"version": "1.0.0",
		},
	}

	var result map[string]interface{}
	if err := c.call(ctx, "initialize", params, &result); err != nil {
		return fmt.Errorf("initialize failed: %w", err)
	}

	return c.notify(ctx, "notifications/initialized", nil)
}

func (c *mcpClient) ListTools(ctx context.Context) ([]mcpTool, error) {
	var result struct {
		Tools []mcpTool `json:"tools"`
	}
	if err := c.call(ctx, "tools/list", map[string]interface{}{}, &result); err != nil {
		return nil, err
	}
	return result.Tools, nil
}

func (c *mcpClient) CallTool(ctx context.Context, name string, arguments map[string]interface{}) (map[string]interface{}, error) {
	params := map[string]interface{}{"name": name}
	if len(arguments) > 0 {
		params["arguments"] = arguments
	}

	var result map[string]interface{}
	if err := c.call(ctx, "tools/call", params, &result); err != nil {
		return nil, err
	}
	return result, nil
}

func (c *mcpClient) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.closeChan)
	for _, ch := range c.pending {
		close(ch)
	}
	c.pending = nil
	c.mu.Unlock()

	return c.transport.Close()
}

func (c *mcpClient) call(ctx context.Context, method string, params interface{}, result interface{}) error {
	id := c.requestID.Add(1)

	respChan := make(chan *mcpResponse, 1)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return fmt.Errorf("mcp client is closed")
	}
	c.pending[id] = respChan
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("marshaling params: %w", err)
	}

	msgBytes, err := json.Marshal(mcpMessage{JSONRPC: "2.0", ID: &id, Method: method, Params: paramsJSON})
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	if err := c.transport.Send(ctx, msgBytes); err != nil {
		return fmt.Errorf("sending request: %w", err)
	}

	select {
	case resp := <-respChan:
		if resp == nil {
			return fmt.Errorf("mcp connection closed")
		}
		if resp.Error != nil {
			return fmt.Errorf("mcp error %d: %s", resp.Error.Code, resp.Error.Message)
		}
		if result != nil && len(resp.Result) > 0 {
			if err := json.Unmarshal(resp.Result, result); err != nil {
				return fmt.Errorf("unmarshaling result: %w", err)
			}
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.closeChan:
		return fmt.Errorf("mcp client closed")
	}
}

func (c *mcpClient) notify(ctx context.Context, method string, params interface{}) error {
	var paramsJSON json.RawMessage
	if params != nil {
		var err error
		paramsJSON, err = json.Marshal(params)
		if err != nil {
			return fmt.Errorf("marshaling notification params: %w", err)
		}
	}

	msgBytes, err := json.Marshal(mcpMessage{JSONRPC: "2.0", Method: method, Params: paramsJSON})
	if err != nil {
		return fmt.Errorf("marshaling notification: %w", err)
	}
	return c.transport.Send(ctx, msgBytes)
}

func (c *mcpClient) receiveLoop() {
	for {
		select {
		case <-c.closeChan:
			return
		default:
		}

		msgBytes, err := c.transport.Receive(context.Background())
		if err != nil {
			c.Close()
			return
		}

		var msg mcpMessage
		if err := json.Unmarshal(msgBytes, &msg); err != nil {
			continue
		}
		if msg.ID == nil {
			continue
		}

		c.mu.Lock()
		ch, ok := c.pending[*msg.ID]
		c.mu.Unlock()
		if !ok {
			continue
		}

		select {
		case ch <- &mcpResponse{Result: msg.Result, Error: msg.Error}:
		default:
		}
	}
}
