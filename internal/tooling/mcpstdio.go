package tooling

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/ploston/dael/internal/daelerrors"
	"github.com/rs/zerolog/log"
)

// stdioTransport frames JSON-RPC messages one-per-line over a subprocess's
// stdin/stdout, adapted from the teacher's StdioTransport
// (internal/tools/mcp/server.go).
type stdioTransport struct {
	stdin  io.WriteCloser
	stdout io.ReadCloser
	stderr io.ReadCloser
}

func (t *stdioTransport) Send(ctx context.Context, message []byte) error {
	if _, err := t.stdin.Write(message); err != nil {
		return err
	}
	_, err := t.stdin.Write([]byte("\n"))
	return err
}

func (t *stdioTransport) Receive(ctx context.Context) ([]byte, error) {
	var buf []byte
	tmp := make([]byte, 1)
	for {
		n, err := t.stdout.Read(tmp)
		if err != nil {
			return nil, err
		}
		if n > 0 {
			if tmp[0] == '\n' {
				break
			}
			buf = append(buf, tmp[0])
		}
	}
	return buf, nil
}

func (t *stdioTransport) Close() error {
	var errs []error
	if err := t.stdin.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := t.stdout.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := t.stderr.Close(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("closing stdio transport: %v", errs)
	}
	return nil
}

// stdioBackend is an MCP server launched as a local subprocess, speaking
// JSON-RPC over its stdin/stdout.
type stdioBackend struct {
	id      string
	client  *mcpClient
	process *exec.Cmd

	mu     sync.RWMutex
	closed bool
}

func newStdioBackend(cfg ServerConfig) (Backend, error) {
	cmd := exec.Command(cfg.Command, cfg.Args...)

	if len(cfg.Env) > 0 {
		env := os.Environ()
		for k, v := range cfg.Env {
			env = append(env, fmt.Sprintf("%s=%s", k, os.ExpandEnv(v)))
		}
		cmd.Env = env
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, daelerrors.Wrap(daelerrors.MCPConnectionFailed, err, "mcp server %s: creating stdin pipe", cfg.ID)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, daelerrors.Wrap(daelerrors.MCPConnectionFailed, err, "mcp server %s: creating stdout pipe", cfg.ID)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, daelerrors.Wrap(daelerrors.MCPConnectionFailed, err, "mcp server %s: creating stderr pipe", cfg.ID)
	}

	if err := cmd.Start(); err != nil {
		return nil, daelerrors.Wrap(daelerrors.MCPConnectionFailed, err, "mcp server %s: starting process", cfg.ID)
	}

	b := &stdioBackend{id: cfg.ID, process: cmd}
	b.client = newMCPClient(&stdioTransport{stdin: stdin, stdout: stdout, stderr: stderr})

	go drainStderr(cfg.ID, stderr)

	initCtx := context.Background()
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		initCtx, cancel = context.WithTimeout(initCtx, cfg.Timeout)
		defer cancel()
	}
	if err := b.client.Initialize(initCtx); err != nil {
		_ = cmd.Process.Kill()
		return nil, daelerrors.Wrap(daelerrors.MCPConnectionFailed, err, "mcp server %s: initialize", cfg.ID)
	}

	go b.monitorProcess()

	return b, nil
}

func drainStderr(id string, stderr io.Reader) {
	buf := make([]byte, 1024)
	for {
		n, err := stderr.Read(buf)
		if n > 0 {
			log.Debug().Str("mcp_server", id).Msg(string(buf[:n]))
		}
		if err != nil {
			return
		}
	}
}

func (b *stdioBackend) monitorProcess() {
	err := b.process.Wait()
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.closed && err != nil {
		log.Warn().Str("mcp_server", b.id).Err(err).Msg("mcp server process exited unexpectedly")
	}
}

func (b *stdioBackend) ID() string { return b.id }

func (b *stdioBackend) ListTools(ctx context.Context) ([]Descriptor, error) {
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

func (b *stdioBackend) Call(ctx context.Context, name string, params map[string]interface{}) (interface{}, error) {
	result, err := b.client.CallTool(ctx, name, params)
	if err != nil {
		return nil, daelerrors.Wrap(daelerrors.ToolFailed, err, "mcp server %s: tool %s failed: %v", b.id, name, err).WithRetryable(true)
	}
	return result, nil
}

func (b *stdioBackend) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	if err := b.client.Close(); err != nil {
		return err
	}

	if err := b.process.Process.Signal(os.Interrupt); err != nil {
		_ = b.process.Process.Kill()
	}
	done := make(chan error, 1)
	go func() { done <- b.process.Wait() }()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		_ = b.process.Process.Kill()
	}
	return nil
}
