package mcpserver

import (
	"bufio"
	"context"
	"encoding/json"
	"io"

	"github.com/rs/zerolog"
)

// ServeStdio runs the MCP server over stdin/stdout, one JSON-RPC message
// per line, for the primary agent-launched subprocess use case (spec.md
// §6.5). It blocks until stdin closes or ctx is cancelled. Framing is the
// same one-message-per-line convention the client side in
// internal/tooling/mcpstdio.go's stdioTransport expects from a peer.
func ServeStdio(ctx context.Context, d *Dispatcher, in io.Reader, out io.Writer, logger zerolog.Logger) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)
	writer := bufio.NewWriter(out)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			resp := Response{JSONRPC: jsonrpcVersion, Error: &RPCError{Code: codeParseError, Message: err.Error()}}
			if werr := writeResponse(writer, resp); werr != nil {
				return werr
			}
			continue
		}

		resp := d.Handle(ctx, req)
		if resp.JSONRPC == "" {
			continue // notification, no reply
		}
		if err := writeResponse(writer, resp); err != nil {
			return err
		}
	}

	return scanner.Err()
}

func writeResponse(w *bufio.Writer, resp Response) error {
	raw, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	if _, err := w.Write(raw); err != nil {
		return err
	}
	if err := w.WriteByte('\n'); err != nil {
		return err
	}
	return w.Flush()
}
